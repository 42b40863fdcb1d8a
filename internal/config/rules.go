package config

import (
	"fmt"
	"os"
	"time"

	"fieldbill/internal/shifts"

	"gopkg.in/yaml.v3"
)

// RulesConfig is the root of rules.yaml: the day-type policy used to bucket hours.
type RulesConfig struct {
	TimeZone string `yaml:"time_zone"` // IANA name, empty keeps timestamp offsets

	Weekday struct {
		RegularCapHours  float64 `yaml:"regular_cap_hours"`
		OvertimeCapHours float64 `yaml:"overtime_cap_hours"`
	} `yaml:"weekday"`

	Saturday struct {
		OvertimeWindowStart      string  `yaml:"overtime_window_start"` // "06:00"
		OvertimeWindowEnd        string  `yaml:"overtime_window_end"`   // "17:00"
		FallbackOvertimeCapHours float64 `yaml:"fallback_overtime_cap_hours"`
	} `yaml:"saturday"`

	DefaultShiftHours float64         `yaml:"default_shift_hours"`
	Holidays          []HolidayConfig `yaml:"holidays"`
}

// HolidayConfig is a calendar date billed like a Sunday.
type HolidayConfig struct {
	Date string `yaml:"date"` // "2026-12-25"
	Name string `yaml:"name"`
}

// LoadRules loads and validates the rules file.
func LoadRules(path string) (*RulesConfig, error) {
	if path == "" {
		path = "configs/rules.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules config: %w", err)
	}

	var cfg RulesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse rules config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate rules config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the rules for errors.
func (r *RulesConfig) Validate() error {
	if r.Weekday.RegularCapHours < 0 || r.Weekday.OvertimeCapHours < 0 {
		return fmt.Errorf("weekday caps cannot be negative")
	}
	if r.Saturday.FallbackOvertimeCapHours < 0 {
		return fmt.Errorf("saturday.fallback_overtime_cap_hours cannot be negative")
	}
	if r.DefaultShiftHours < 0 || r.DefaultShiftHours > 24 {
		return fmt.Errorf("default_shift_hours must be between 0 and 24, got %v", r.DefaultShiftHours)
	}

	for i, h := range r.Holidays {
		if h.Date == "" {
			return fmt.Errorf("holiday[%d]: date is required", i)
		}
		if _, err := time.Parse("2006-01-02", h.Date); err != nil {
			return fmt.Errorf("holiday[%d]: invalid date format '%s', expected YYYY-MM-DD", i, h.Date)
		}
	}

	policy, err := r.Policy()
	if err != nil {
		return err
	}
	_, err = shifts.NewClassifier(policy)
	return err
}

// Policy converts the rules into a classifier policy. Zero values keep the defaults.
func (r *RulesConfig) Policy() (shifts.Policy, error) {
	policy := shifts.DefaultPolicy()
	if r == nil {
		return policy, nil
	}

	if r.Weekday.RegularCapHours > 0 {
		policy.WeekdayRegularCap = r.Weekday.RegularCapHours
	}
	if r.Weekday.OvertimeCapHours > 0 {
		policy.WeekdayOvertimeCap = r.Weekday.OvertimeCapHours
	}
	if r.Saturday.OvertimeWindowStart != "" {
		policy.SaturdayWindowStart = r.Saturday.OvertimeWindowStart
	}
	if r.Saturday.OvertimeWindowEnd != "" {
		policy.SaturdayWindowEnd = r.Saturday.OvertimeWindowEnd
	}
	if r.Saturday.FallbackOvertimeCapHours > 0 {
		policy.SaturdayFallbackOvertimeCap = r.Saturday.FallbackOvertimeCapHours
	}
	if r.DefaultShiftHours > 0 {
		policy.DefaultShiftHours = r.DefaultShiftHours
	}
	for _, h := range r.Holidays {
		policy.Holidays = append(policy.Holidays, h.Date)
	}

	if r.TimeZone != "" {
		loc, err := time.LoadLocation(r.TimeZone)
		if err != nil {
			return shifts.Policy{}, fmt.Errorf("time_zone: %w", err)
		}
		policy.Location = loc
	}
	return policy, nil
}
