// Package geofence stores user-owned geofences and the serials of the
// devices attached to them.
//
// The geometry is kept as opaque JSON; only its shape type is checked.
// The attachment lists on both sides (Fence.AttachedDeviceSerials and
// device.Device.AttachedGeoFences) are written together by the fencing
// package inside one transaction.
package geofence
