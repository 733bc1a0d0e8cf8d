package siteconfig

// Setting keys known to the core.
const (
	KeyAdminMailingList           = "admin_mailing_list"
	KeyMaxDevicePerUser           = "max_device_per_user"
	KeyMaxGeoFencePerDevice       = "max_geo_fence_per_device"
	KeySupportMailingList         = "support_mailing_list"
	KeySocialLoginEnabled         = "social_login_enabled"
	KeyIsUserSiteUnderMaintenance = "is_user_site_under_maintenance"
	KeyIsSiteUnderMaintenance     = "is_site_under_maintenance"
	KeySiteMaintenanceMessage     = "site_maintenance_message"
	KeyBlacklistedEmails          = "blacklisted_emails"
)

// Definition is a setting declared in code with its default.
type Definition struct {
	Key             string
	Type            ValueType
	Default         string
	Description     string
	IsMultipleEntry bool
}

// Declared lists every setting SyncAvailableConfig guarantees to exist.
var Declared = []Definition{
	{
		Key:             KeyAdminMailingList,
		Type:            TypeText,
		Description:     "Comma separated e-mail addresses notified of admin events",
		IsMultipleEntry: true,
	},
	{
		Key:         KeyMaxDevicePerUser,
		Type:        TypeNumber,
		Default:     "-1",
		Description: "Maximum devices a user may own, -1 for unlimited",
	},
	{
		Key:         KeyMaxGeoFencePerDevice,
		Type:        TypeNumber,
		Default:     "50",
		Description: "Maximum geofences attached to one device, -1 for unlimited",
	},
	{
		Key:             KeySupportMailingList,
		Type:            TypeText,
		Description:     "Comma separated e-mail addresses receiving support tickets",
		IsMultipleEntry: true,
	},
	{
		Key:         KeySocialLoginEnabled,
		Type:        TypeBoolean,
		Default:     "false",
		Description: "Allow sign in with social providers",
	},
	{
		Key:         KeyIsUserSiteUnderMaintenance,
		Type:        TypeBoolean,
		Default:     "false",
		Description: "Put the user facing site in maintenance mode",
	},
	{
		Key:         KeyIsSiteUnderMaintenance,
		Type:        TypeBoolean,
		Default:     "false",
		Description: "Put the whole site in maintenance mode",
	},
	{
		Key:         KeySiteMaintenanceMessage,
		Type:        TypeText,
		Description: "Message shown while the site is in maintenance mode",
	},
	{
		Key:             KeyBlacklistedEmails,
		Type:            TypeText,
		Description:     "Comma separated e-mail addresses refused at sign up",
		IsMultipleEntry: true,
	},
}

// Lookup returns the declaration of key.
func Lookup(key string) (Definition, bool) {
	key = NormalizeKey(key)
	for _, d := range Declared {
		if d.Key == key {
			return d, true
		}
	}
	return Definition{}, false
}
