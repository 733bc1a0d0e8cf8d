package firmware

import (
	"strings"

	"golang.org/x/mod/semver"
)

// NormalizeVersion lower-cases raw, adds the "v" prefix and returns the
// canonical semantic version ("1.2" becomes "v1.2.0"). Build metadata is
// dropped, so two uploads differing only in metadata collide.
func NormalizeVersion(raw string) (string, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return "", ErrInvalidVersion
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return "", ErrInvalidVersion
	}
	return semver.Canonical(v), nil
}

// CompareVersions orders two versions by semver precedence, returning
// -1, 0 or +1. Inputs are normalized first; an invalid version sorts
// below every valid one.
func CompareVersions(a, b string) int {
	return semver.Compare(prefixed(a), prefixed(b))
}

func prefixed(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v != "" && !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// Newest returns the ref with the highest version, or false when refs is empty.
func Newest(refs []VersionRef) (VersionRef, bool) {
	if len(refs) == 0 {
		return VersionRef{}, false
	}
	best := refs[0]
	for _, r := range refs[1:] {
		if CompareVersions(r.Version, best.Version) > 0 {
			best = r
		}
	}
	return best, true
}
