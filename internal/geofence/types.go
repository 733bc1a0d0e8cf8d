package geofence

import (
	"encoding/json"
	"time"
)

// Shape types accepted in Fence.Geometry.
const (
	ShapePolygon   = "polygon"
	ShapeCircle    = "circle"
	ShapeRectangle = "rectangle"
)

// Fence is a named area owned by a user.
type Fence struct {
	ID                    string          `json:"id"`
	Name                  string          `json:"name"`
	Geometry              json.RawMessage `json:"fence"`
	IsActive              bool            `json:"isActive"`
	UserID                string          `json:"userId"`
	AttachedDeviceSerials []string        `json:"attachedDeviceSerials"`
	CreatedAt             time.Time       `json:"createdAt"`
	UpdatedAt             time.Time       `json:"updatedAt"`
}

// HasDevice reports whether serial is attached.
func (f *Fence) HasDevice(serial string) bool {
	for _, s := range f.AttachedDeviceSerials {
		if s == serial {
			return true
		}
	}
	return false
}

// Filter narrows ListByUser. Zero values match everything.
type Filter struct {
	Search   string
	IsActive *bool
}
