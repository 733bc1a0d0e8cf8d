package firmware

import "errors"

var (
	ErrFirmwareNotFound = errors.New("firmware: not found")
	ErrFirmwareExists   = errors.New("firmware: version already exists")
	ErrInvalidVersion   = errors.New("firmware: version is not valid semver")
	ErrFirmwareSynced   = errors.New("firmware: synced firmware cannot be deleted")
	ErrAlreadySynced    = errors.New("firmware: already synced")
	ErrLatestConflict   = errors.New("firmware: latest flag changed concurrently")
	ErrSyncJobNotFound  = errors.New("firmware: sync job not found")
	ErrNoSyncTargets    = errors.New("firmware: no devices selected for sync")
	ErrNotSyncTarget    = errors.New("firmware: device is not part of the sync job")
)
