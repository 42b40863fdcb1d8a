package models

import (
	"strings"
	"unicode"
)

// Known worker positions.
const (
	PositionLCT             = "LCT"
	PositionHWY             = "HWY"
	PositionFieldSupervisor = "FIELD_SUPERVISOR"
)

var positionAliases = map[string]string{
	"SUPERVISOR":       PositionFieldSupervisor,
	"FIELDSUPERVISOR":  PositionFieldSupervisor,
	"FIELD_SUPERVISOR": PositionFieldSupervisor,
	"FS":               PositionFieldSupervisor,
	"HIGHWAY":          PositionHWY,
}

// NormalizePosition is the single canonical form of a position used for rate
// card lookups, gap keys and mobilization eligibility.
// "field supervisor", "Field-Supervisor" and "FIELD_SUPERVISOR" all map to FIELD_SUPERVISOR.
func NormalizePosition(position string) string {
	s := strings.TrimSpace(position)
	if s == "" {
		return ""
	}
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '-' || r == ' ' || r == '.' || r == '/':
			return '_'
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			return unicode.ToUpper(r)
		}
		return -1
	}, s)
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	s = strings.Trim(s, "_")
	if alias, ok := positionAliases[s]; ok {
		return alias
	}
	return s
}

// PositionLabel renders a normalized position for display.
// Short codes stay upper case; longer names become title case ("Field Supervisor").
func PositionLabel(position string) string {
	norm := NormalizePosition(position)
	if len(norm) <= 3 {
		return norm
	}
	words := strings.Split(strings.ToLower(norm), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
