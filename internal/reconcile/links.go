package reconcile

import (
	"context"
	"errors"
	"maps"
	"slices"

	"github.com/nerrad567/tracker-core/internal/device"
	"github.com/nerrad567/tracker-core/internal/geofence"
)

// linkRepair collects the outcome of repairLinks.
type linkRepair struct {
	added   int
	removed int
	devices map[string]bool
	fences  map[string]bool
}

// linkState is an in-memory copy of both link directions plus existence
// lookups for entities that appear on one side only.
type linkState struct {
	ctx     context.Context
	devices *device.SQLiteRepository
	fences  *geofence.SQLiteRepository

	deviceFences map[string][]string
	fenceDevices map[string][]string
	deviceExists map[string]bool
	fenceExists  map[string]bool

	result linkRepair
}

// repairLinks makes both link directions agree and writes every changed row.
func repairLinks(ctx context.Context, devices *device.SQLiteRepository, fences *geofence.SQLiteRepository) (linkRepair, error) {
	deviceFences, err := devices.GeoFenceLinks(ctx)
	if err != nil {
		return linkRepair{}, err
	}
	fenceDevices, err := fences.DeviceLinks(ctx)
	if err != nil {
		return linkRepair{}, err
	}

	s := &linkState{
		ctx:          ctx,
		devices:      devices,
		fences:       fences,
		deviceFences: maps.Clone(deviceFences),
		fenceDevices: maps.Clone(fenceDevices),
		deviceExists: make(map[string]bool),
		fenceExists:  make(map[string]bool),
		result:       linkRepair{devices: map[string]bool{}, fences: map[string]bool{}},
	}
	for serial := range deviceFences {
		s.deviceExists[serial] = true
	}
	for id := range fenceDevices {
		s.fenceExists[id] = true
	}

	// Walk the snapshots so fixes made on one side are not revisited.
	for _, serial := range slices.Sorted(maps.Keys(deviceFences)) {
		for _, id := range deviceFences[serial] {
			if slices.Contains(fenceDevices[id], serial) {
				continue
			}
			ok, err := s.fenceFound(id)
			if err != nil {
				return linkRepair{}, err
			}
			if ok {
				s.fenceDevices[id] = append(s.fenceDevices[id], serial)
				s.result.fences[id] = true
				s.result.added++
			} else {
				s.deviceFences[serial] = without(s.deviceFences[serial], id)
				s.result.devices[serial] = true
				s.result.removed++
			}
		}
	}
	for _, id := range slices.Sorted(maps.Keys(fenceDevices)) {
		for _, serial := range fenceDevices[id] {
			if slices.Contains(deviceFences[serial], id) {
				continue
			}
			ok, err := s.deviceFound(serial)
			if err != nil {
				return linkRepair{}, err
			}
			if ok {
				s.deviceFences[serial] = append(s.deviceFences[serial], id)
				s.result.devices[serial] = true
				s.result.added++
			} else {
				s.fenceDevices[id] = without(s.fenceDevices[id], serial)
				s.result.fences[id] = true
				s.result.removed++
			}
		}
	}

	for serial := range s.result.devices {
		if err := devices.SetGeoFences(ctx, serial, nonNil(s.deviceFences[serial])); err != nil {
			return linkRepair{}, err
		}
	}
	for id := range s.result.fences {
		if err := fences.SetDeviceSerials(ctx, id, nonNil(s.fenceDevices[id])); err != nil {
			return linkRepair{}, err
		}
	}
	return s.result, nil
}

func (s *linkState) deviceFound(serial string) (bool, error) {
	if ok, seen := s.deviceExists[serial]; seen {
		return ok, nil
	}
	_, err := s.devices.GetBySerial(s.ctx, serial)
	switch {
	case err == nil:
		s.deviceExists[serial] = true
	case errors.Is(err, device.ErrDeviceNotFound):
		s.deviceExists[serial] = false
	default:
		return false, err
	}
	return s.deviceExists[serial], nil
}

func (s *linkState) fenceFound(id string) (bool, error) {
	if ok, seen := s.fenceExists[id]; seen {
		return ok, nil
	}
	_, err := s.fences.GetByID(s.ctx, id)
	switch {
	case err == nil:
		s.fenceExists[id] = true
	case errors.Is(err, geofence.ErrFenceNotFound):
		s.fenceExists[id] = false
	default:
		return false, err
	}
	return s.fenceExists[id], nil
}

func without(list []string, v string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
