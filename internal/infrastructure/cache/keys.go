package cache

import "strings"

// Key builders. Serials are upper-cased and config keys lower-cased so that
// every lookup path for the same row produces the same key.

// DevicePoolBySerial keys a pool row by its serial.
func DevicePoolBySerial(serial string) string {
	return "device_pool_by_serial_" + strings.ToUpper(serial)
}

// DevicePoolByID keys a pool row by id.
func DevicePoolByID(id string) string {
	return "device_pool_by_id_" + id
}

// DeviceBySerial keys a device by its serial.
func DeviceBySerial(serial string) string {
	return "device_by_serial_" + strings.ToUpper(serial)
}

// DeviceByID keys a device by id.
func DeviceByID(id string) string {
	return "device_by_id_" + id
}

// GeoFenceByID keys a geo fence by id.
func GeoFenceByID(id string) string {
	return "geo_fence_by_id_" + id
}

// SiteConfigByKey keys a site config entry by its config key.
func SiteConfigByKey(key string) string {
	return "site_config_by_key_" + strings.ToLower(key)
}

// SiteConfigByID keys a site config entry by id.
func SiteConfigByID(id string) string {
	return "site_config_by_id_" + id
}

// SiteConfigValueByKey keys the coerced value of a config key.
func SiteConfigValueByKey(key string) string {
	return "site_config_value_by_key_" + strings.ToLower(key)
}

// SiteConfigAllAvailableKeys holds the list of config keys present in the store.
const SiteConfigAllAvailableKeys = "site_config_all_available_keys"

// UserByID keys a user by id.
func UserByID(id string) string {
	return "user_by_id_" + id
}

// FirmwareByID keys a firmware row by id.
func FirmwareByID(id string) string {
	return "firmware_by_id_" + id
}

// FirmwareLatest holds the firmware currently flagged latest.
const FirmwareLatest = "firmware_latest"
