package siteconfig

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Coerce converts a raw stored value to its declared type.
//
//	boolean    "true" -> true, anything else -> false
//	number     base-10 integer; empty or unparseable leaves Set=false
//	date       2006-01-02 (RFC3339 also accepted); unparseable leaves Set=false
//	date-time  RFC3339; unparseable leaves Set=false
//	text       passed through, empty string allowed
func Coerce(t ValueType, raw string) Value {
	v := Value{Type: t}
	trimmed := strings.TrimSpace(raw)

	switch t {
	case TypeBoolean:
		v.Set = true
		v.Bool = trimmed == "true"
	case TypeNumber:
		n, err := strconv.ParseInt(trimmed, 10, 64)
		if err == nil {
			v.Set = true
			v.Number = n
		}
	case TypeDate:
		if ts, ok := parseDate(trimmed); ok {
			v.Set = true
			v.Time = &ts
		}
	case TypeDateTime:
		if ts, err := time.Parse(time.RFC3339, trimmed); err == nil {
			v.Set = true
			v.Time = &ts
		}
	default:
		v.Type = TypeText
		v.Set = true
		v.Text = raw
	}
	return v
}

func parseDate(s string) (time.Time, bool) {
	if ts, err := time.Parse(dateLayout, s); err == nil {
		return ts, true
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, true
	}
	return time.Time{}, false
}

// Validate checks that raw is acceptable for type t and returns the value to
// store. List settings are re-joined without blanks. Empty input is accepted
// for every type and means "unset".
func Validate(t ValueType, raw string, multiple bool) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", nil
	}

	switch t {
	case TypeBoolean:
		if trimmed != "true" && trimmed != "false" {
			return "", fmt.Errorf("%w: %q is not true or false", ErrInvalidValue, raw)
		}
		return trimmed, nil
	case TypeNumber:
		if _, err := strconv.ParseInt(trimmed, 10, 64); err != nil {
			return "", fmt.Errorf("%w: %q is not an integer", ErrInvalidValue, raw)
		}
		return trimmed, nil
	case TypeDate:
		if _, ok := parseDate(trimmed); !ok {
			return "", fmt.Errorf("%w: %q is not a date", ErrInvalidValue, raw)
		}
		return trimmed, nil
	case TypeDateTime:
		if _, err := time.Parse(time.RFC3339, trimmed); err != nil {
			return "", fmt.Errorf("%w: %q is not an RFC3339 timestamp", ErrInvalidValue, raw)
		}
		return trimmed, nil
	}

	if multiple {
		return strings.Join(splitList(raw), ","), nil
	}
	return raw, nil
}
