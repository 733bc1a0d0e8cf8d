// Package fencing links devices and geofences in both directions.
//
// A link is stored twice: the fence lists the device serial and the device
// lists the fence ID. Attach and Detach write both sides in one
// transaction, and Attach re-counts the device's fences inside that
// transaction before adding one, so neither a crash nor a concurrent attach
// can leave the sides disagreeing or the device over its fence limit.
//
// The package also owns the user-facing fence lifecycle, since deleting a
// fence has to unlink it from every device.
package fencing
