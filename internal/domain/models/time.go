package models

import (
	"bytes"
	"fmt"
	"time"
)

// The backend serialises naive UTC datetimes (no offset) as well as RFC3339 values.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Time is a backend timestamp. Values without an offset are interpreted as UTC.
type Time struct {
	time.Time
}

// NewTime wraps t and returns a pointer suitable for optional fields.
func NewTime(t time.Time) *Time {
	return &Time{Time: t}
}

// ParseTime parses any of the layouts emitted by the backend.
func ParseTime(value string) (Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return Time{Time: t}, nil
		}
	}
	return Time{}, fmt.Errorf("unsupported time format %q", value)
}

// UnmarshalJSON accepts null, empty strings and every layout in timeLayouts.
func (t *Time) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("time must be a JSON string, got %s", data)
	}
	raw := string(data[1 : len(data)-1])
	if raw == "" {
		return nil
	}
	parsed, err := ParseTime(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalJSON always emits RFC3339 with an explicit offset.
func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.Time.Format(time.RFC3339Nano) + `"`), nil
}

// Valid reports whether an optional timestamp is present.
func Valid(t *Time) bool {
	return t != nil && !t.IsZero()
}

// IntOrZero resolves an optional quantity, absent values count as zero.
func IntOrZero(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
