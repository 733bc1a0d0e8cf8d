package siteconfig

import (
	"strings"
	"time"
)

// ValueType is the declared type of a setting.
type ValueType string

const (
	TypeText     ValueType = "text"
	TypeNumber   ValueType = "number"
	TypeBoolean  ValueType = "boolean"
	TypeDate     ValueType = "date"
	TypeDateTime ValueType = "date-time"
)

// IsValid reports whether t is a known type.
func (t ValueType) IsValid() bool {
	switch t {
	case TypeText, TypeNumber, TypeBoolean, TypeDate, TypeDateTime:
		return true
	}
	return false
}

// Entry is one stored setting.
type Entry struct {
	ID              string    `json:"id"`
	Key             string    `json:"key"`
	Type            ValueType `json:"type"`
	Value           string    `json:"value"`
	Description     string    `json:"description"`
	IsMultipleEntry bool      `json:"isMultipleEntry"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Value is a coerced setting. Set is false when the raw value could not be
// coerced to its type (for example an empty number), in which case readers
// fall back to their default.
type Value struct {
	Type   ValueType  `json:"type"`
	Set    bool       `json:"set"`
	Text   string     `json:"text,omitempty"`
	Number int64      `json:"number,omitempty"`
	Bool   bool       `json:"bool,omitempty"`
	Time   *time.Time `json:"time,omitempty"`
}

// List splits a text value on commas, trimming blanks and dropping empties.
func (v Value) List() []string {
	return splitList(v.Text)
}

func splitList(raw string) []string {
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// NormalizeKey lower-cases and trims a setting key.
func NormalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
