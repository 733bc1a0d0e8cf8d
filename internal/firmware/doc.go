// Package firmware manages device firmware uploads and their rollout.
//
// Versions are stored in canonical semver form ("1.2" becomes "v1.2.0").
// At most one row carries the latest flag, and exactly one does whenever
// any row exists. The flag moves inside the same transaction as the write
// that triggers it, with a partial unique index as the backstop:
//
//	create v1.0.0  -> v1.0.0 latest
//	create v1.2.0  -> v1.2.0 latest
//	create v1.1.0  -> v1.2.0 stays latest
//	delete v1.2.0  -> v1.1.0 latest
//
// A sync marks the firmware synced (after which it cannot be deleted),
// appends a SyncJob and emits notify.FirmwareSyncRequested. Devices confirm
// over MQTT and each confirmation is recorded on the job.
package firmware
