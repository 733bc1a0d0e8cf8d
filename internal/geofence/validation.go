package geofence

import (
	"encoding/json"
	"fmt"
	"strings"
)

const maxNameLength = 100

// ValidateName checks a fence name.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateGeometry checks that raw is a JSON object whose "type" is a known shape.
// The coordinates are not interpreted.
func ValidateGeometry(raw json.RawMessage) error {
	var shape struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &shape); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
	}
	switch strings.ToLower(shape.Type) {
	case ShapePolygon, ShapeCircle, ShapeRectangle:
		return nil
	}
	return fmt.Errorf("%w: unknown shape %q", ErrInvalidGeometry, shape.Type)
}
