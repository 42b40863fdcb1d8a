package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

var offsetLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
}

var wallClockLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Floating is the location of timestamps sent without a UTC offset. They are
// wall-clock readings; InZone places them in the billing time zone.
var Floating = time.FixedZone("floating", 0)

// ParseTimestamp parses the ISO-ish timestamps the dashboard sends.
// Values without an offset come back in Floating.
// Empty or malformed values return ok=false instead of an error.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" {
		return time.Time{}, false
	}
	for _, layout := range offsetLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	for _, layout := range wallClockLayouts {
		if t, err := time.ParseInLocation(layout, s, Floating); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// InZone reads t in loc. Floating timestamps keep their wall-clock fields,
// anything else is converted. A nil loc leaves t unchanged.
func InZone(t time.Time, loc *time.Location) time.Time {
	if t.IsZero() || loc == nil {
		return t
	}
	if t.Location() == Floating {
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
	}
	return t.In(loc)
}

// ID is an entity identifier. The dashboard sends both numeric and UUID keys.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	*id = ID(string(data))
	return nil
}

func (id ID) String() string { return string(id) }

// Minutes decodes a whole number of minutes from a JSON number, numeric string or null.
type Minutes int

func (m *Minutes) UnmarshalJSON(data []byte) error {
	v, ok := parseNumber(data)
	if !ok || v < 0 {
		*m = 0
		return nil
	}
	*m = Minutes(math.Round(v))
	return nil
}

// Flag decodes a boolean that may arrive as true/false, "true"/"false", 1/0 or null.
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	s := strings.ToLower(strings.Trim(string(bytes.TrimSpace(data)), `"`))
	switch s {
	case "true", "1", "yes", "y", "t":
		*f = true
	default:
		*f = false
	}
	return nil
}

// Price is a unit price that may arrive as a JSON number or as text ("125.50", "$1,200").
// Malformed or missing values decode to zero, which the resolver treats as absent.
type Price float64

func (p *Price) UnmarshalJSON(data []byte) error {
	v, ok := parseNumber(data)
	if !ok || v < 0 {
		*p = 0
		return nil
	}
	*p = Price(v)
	return nil
}

// ParsePrice parses a textual price. ok is false for empty or malformed text.
func ParsePrice(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func parseNumber(data []byte) (float64, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return 0, false
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return 0, false
		}
		return ParsePrice(s)
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return 0, false
	}
	return v, true
}

// Round2 rounds to two decimal places (hours and cents).
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
