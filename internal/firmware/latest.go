package firmware

import (
	"context"
	"errors"
)

// LatestChange describes a move of the latest flag. Empty fields mean
// "no row": Previous is empty when no row was latest before.
type LatestChange struct {
	Previous string
	Current  string
}

// Changed reports whether the flag moved.
func (c LatestChange) Changed() bool {
	return c.Previous != c.Current
}

// promoteIfNewest runs after fw has been written. fw takes the flag when no
// row holds it or when it ranks at least as high as the current holder. The old holder is
// cleared before the new one is set so the single-latest index never sees
// two rows.
func promoteIfNewest(ctx context.Context, repo Repository, fw *Firmware) (LatestChange, error) {
	current, err := repo.Latest(ctx)
	switch {
	case errors.Is(err, ErrFirmwareNotFound):
		if err := repo.SetLatest(ctx, fw.ID, true); err != nil {
			return LatestChange{}, err
		}
		fw.IsLatest = true
		return LatestChange{Current: fw.ID}, nil
	case err != nil:
		return LatestChange{}, err
	}

	if current.ID == fw.ID || CompareVersions(fw.Version, current.Version) < 0 {
		return LatestChange{Previous: current.ID, Current: current.ID}, nil
	}

	if err := repo.SetLatest(ctx, current.ID, false); err != nil {
		return LatestChange{}, err
	}
	if err := repo.SetLatest(ctx, fw.ID, true); err != nil {
		return LatestChange{}, err
	}
	fw.IsLatest = true
	return LatestChange{Previous: current.ID, Current: fw.ID}, nil
}

// restoreAfterDelete gives the flag to the highest remaining version when
// the deleted row held it. Nothing changes while some row still holds it.
func restoreAfterDelete(ctx context.Context, repo Repository, deletedID string) (LatestChange, error) {
	if current, err := repo.Latest(ctx); err == nil {
		return LatestChange{Previous: current.ID, Current: current.ID}, nil
	} else if !errors.Is(err, ErrFirmwareNotFound) {
		return LatestChange{}, err
	}

	refs, err := repo.Versions(ctx)
	if err != nil {
		return LatestChange{}, err
	}
	newest, ok := Newest(refs)
	if !ok {
		return LatestChange{Previous: deletedID}, nil
	}
	if err := repo.SetLatest(ctx, newest.ID, true); err != nil {
		return LatestChange{}, err
	}
	return LatestChange{Previous: deletedID, Current: newest.ID}, nil
}

// Recompute rebuilds the flag from scratch: clear every holder, then set
// the highest version. It repairs zero or multiple holders alike.
func Recompute(ctx context.Context, repo Repository) (LatestChange, error) {
	refs, err := repo.Versions(ctx)
	if err != nil {
		return LatestChange{}, err
	}

	var change LatestChange
	holders := 0
	for _, ref := range refs {
		if ref.IsLatest {
			holders++
			change.Previous = ref.ID
		}
	}

	newest, ok := Newest(refs)
	if holders == 1 && ok && newest.IsLatest {
		change.Current = newest.ID
		return change, nil
	}

	if holders > 0 {
		if _, err := repo.ClearLatest(ctx); err != nil {
			return LatestChange{}, err
		}
	}
	if !ok {
		return change, nil
	}
	if err := repo.SetLatest(ctx, newest.ID, true); err != nil {
		return LatestChange{}, err
	}
	change.Current = newest.ID
	if holders > 1 {
		// Force Changed() so callers invalidate caches after a repair.
		change.Previous = ""
	}
	return change, nil
}

// Inconsistent reports whether refs break the single-latest rule: exactly
// one holder while rows exist, none otherwise. Which row holds the flag is
// not checked.
func Inconsistent(refs []VersionRef) bool {
	holders := 0
	for _, ref := range refs {
		if ref.IsLatest {
			holders++
		}
	}
	if len(refs) == 0 {
		return holders != 0
	}
	return holders != 1
}
