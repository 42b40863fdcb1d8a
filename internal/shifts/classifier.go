// Package shifts classifies worked time into day types and wage buckets.
package shifts

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"fieldbill/internal/models"
)

// DayType selects the bucket rules applied to a shift.
type DayType string

const (
	Weekday       DayType = "weekday"
	Saturday      DayType = "saturday"
	SundayHoliday DayType = "sunday_holiday"
)

// Bucket is a wage-multiplier classification of worked hours.
type Bucket string

const (
	Regular    Bucket = "regular"
	Overtime   Bucket = "overtime"
	DoubleTime Bucket = "double_time"
)

// Buckets is the fixed order buckets are reported and billed in.
var Buckets = []Bucket{Regular, Overtime, DoubleTime}

// Policy holds the day-type rules.
type Policy struct {
	WeekdayRegularCap           float64
	WeekdayOvertimeCap          float64
	SaturdayWindowStart         string // "06:00"
	SaturdayWindowEnd           string // "17:00"
	SaturdayFallbackOvertimeCap float64
	DefaultShiftHours           float64
	Holidays                    []string // "2026-12-25"
	// Location is used to read wall-clock times. Nil keeps each timestamp's own offset.
	Location *time.Location
}

// DefaultPolicy returns the standard field billing rules.
func DefaultPolicy() Policy {
	return Policy{
		WeekdayRegularCap:           8,
		WeekdayOvertimeCap:          4,
		SaturdayWindowStart:         "06:00",
		SaturdayWindowEnd:           "17:00",
		SaturdayFallbackOvertimeCap: 11,
		DefaultShiftHours:           8,
	}
}

// Shift is one worked interval. Zero Start/End mean the timestamps are unavailable.
type Shift struct {
	Anchor        time.Time // job start, anchors the day of week
	Start         time.Time
	End           time.Time
	BreakMinutes  int
	WorkedMinutes int
}

// HasTimes reports whether the shift has a usable interval.
func (s Shift) HasTimes() bool {
	return !s.Start.IsZero() && !s.End.IsZero() && s.End.After(s.Start)
}

// BucketHours is the hours attributed to one bucket.
type BucketHours struct {
	Bucket Bucket  `json:"bucket"`
	Hours  float64 `json:"hours"`
}

// Classification is the result of classifying a shift.
type Classification struct {
	DayType    DayType       `json:"day_type"`
	Buckets    []BucketHours `json:"buckets"`
	TotalHours float64       `json:"total_hours"`
	// Degraded is set when timestamps were unavailable and a fallback split was used.
	Degraded bool `json:"degraded,omitempty"`
}

// Hours returns the hours in bucket b, zero when absent.
func (c Classification) Hours(b Bucket) float64 {
	for _, bh := range c.Buckets {
		if bh.Bucket == b {
			return bh.Hours
		}
	}
	return 0
}

// Classifier applies a Policy. It holds no mutable state and is safe for concurrent use.
type Classifier struct {
	policy      Policy
	holidays    map[string]struct{}
	windowStart int // minutes after midnight
	windowEnd   int
}

// NewClassifier validates the policy and builds a classifier.
func NewClassifier(policy Policy) (*Classifier, error) {
	def := DefaultPolicy()
	if policy.WeekdayRegularCap <= 0 {
		policy.WeekdayRegularCap = def.WeekdayRegularCap
	}
	if policy.WeekdayOvertimeCap <= 0 {
		policy.WeekdayOvertimeCap = def.WeekdayOvertimeCap
	}
	if policy.SaturdayWindowStart == "" {
		policy.SaturdayWindowStart = def.SaturdayWindowStart
	}
	if policy.SaturdayWindowEnd == "" {
		policy.SaturdayWindowEnd = def.SaturdayWindowEnd
	}
	if policy.SaturdayFallbackOvertimeCap <= 0 {
		policy.SaturdayFallbackOvertimeCap = def.SaturdayFallbackOvertimeCap
	}
	if policy.DefaultShiftHours <= 0 {
		policy.DefaultShiftHours = def.DefaultShiftHours
	}

	start, err := parseClock(policy.SaturdayWindowStart)
	if err != nil {
		return nil, fmt.Errorf("parse saturday window start: %w", err)
	}
	end, err := parseClock(policy.SaturdayWindowEnd)
	if err != nil {
		return nil, fmt.Errorf("parse saturday window end: %w", err)
	}
	if end <= start {
		return nil, fmt.Errorf("saturday window end %s must be after start %s", policy.SaturdayWindowEnd, policy.SaturdayWindowStart)
	}

	holidays := make(map[string]struct{}, len(policy.Holidays))
	for _, h := range policy.Holidays {
		d, err := time.Parse("2006-01-02", strings.TrimSpace(h))
		if err != nil {
			return nil, fmt.Errorf("invalid holiday date %q: %w", h, err)
		}
		holidays[d.Format("2006-01-02")] = struct{}{}
	}

	return &Classifier{
		policy:      policy,
		holidays:    holidays,
		windowStart: start,
		windowEnd:   end,
	}, nil
}

// Policy returns the effective policy, defaults applied.
func (c *Classifier) Policy() Policy {
	return c.policy
}

// DayTypeOf maps a date to its day type. Holidays bill like Sundays.
func (c *Classifier) DayTypeOf(anchor time.Time) DayType {
	if anchor.IsZero() {
		return Weekday
	}
	local := c.local(anchor)
	if _, ok := c.holidays[local.Format("2006-01-02")]; ok {
		return SundayHoliday
	}
	switch local.Weekday() {
	case time.Sunday:
		return SundayHoliday
	case time.Saturday:
		return Saturday
	default:
		return Weekday
	}
}

// Classify splits a shift into buckets. It never fails: missing or inverted
// timestamps fall back to worked minutes, then to the default shift length.
func (c *Classifier) Classify(s Shift) Classification {
	s.Anchor, s.Start, s.End = c.local(s.Anchor), c.local(s.Start), c.local(s.End)
	anchor := s.Anchor
	if anchor.IsZero() {
		anchor = s.Start
	}
	day := c.DayTypeOf(anchor)

	switch day {
	case SundayHoliday:
		total, degraded := c.weekendTotal(s)
		return Classification{
			DayType:    day,
			Buckets:    nonZero(BucketHours{DoubleTime, total}),
			TotalHours: total,
			Degraded:   degraded,
		}
	case Saturday:
		return c.classifySaturday(s)
	default:
		return c.classifyWeekday(s)
	}
}

func (c *Classifier) classifyWeekday(s Shift) Classification {
	var (
		total    float64
		degraded bool
	)
	switch {
	case s.WorkedMinutes > 0:
		total = float64(s.WorkedMinutes) / 60
	case s.HasTimes():
		total = math.Max(s.End.Sub(s.Start).Hours()-breakHours(s), 0)
	default:
		total = c.policy.DefaultShiftHours
		degraded = true
	}
	total = models.Round2(total)

	regCap := c.policy.WeekdayRegularCap
	otCap := c.policy.WeekdayOvertimeCap
	regular := math.Min(total, regCap)
	overtime := math.Min(math.Max(total-regCap, 0), otCap)
	double := math.Max(total-regCap-otCap, 0)

	return Classification{
		DayType: Weekday,
		Buckets: nonZero(
			BucketHours{Regular, models.Round2(regular)},
			BucketHours{Overtime, models.Round2(overtime)},
			BucketHours{DoubleTime, models.Round2(double)},
		),
		TotalHours: total,
		Degraded:   degraded,
	}
}

func (c *Classifier) classifySaturday(s Shift) Classification {
	if !s.HasTimes() {
		total, _ := c.weekendTotal(s)
		overtime := models.Round2(math.Min(total, c.policy.SaturdayFallbackOvertimeCap))
		return Classification{
			DayType: Saturday,
			Buckets: nonZero(
				BucketHours{Overtime, overtime},
				BucketHours{DoubleTime, models.Round2(total - overtime)},
			),
			TotalHours: total,
			Degraded:   true,
		}
	}

	start := c.local(s.Start)
	end := c.local(s.End)
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	windowStart := day.Add(time.Duration(c.windowStart) * time.Minute)
	windowEnd := day.Add(time.Duration(c.windowEnd) * time.Minute)

	duration := end.Sub(start).Hours()
	rawOvertime := overlap(start, end, windowStart, windowEnd).Hours()
	rawDouble := duration - rawOvertime

	// Breaks come out of double time first, then overtime.
	brk := breakHours(s)
	overtime := rawOvertime
	if brk > rawDouble {
		overtime = math.Max(rawOvertime-(brk-rawDouble), 0)
	}

	// Double time is the rounded remainder, so the buckets always sum to the total.
	total := models.Round2(math.Max(duration-brk, 0))
	ot := math.Min(models.Round2(overtime), total)
	dt := models.Round2(total - ot)

	return Classification{
		DayType: Saturday,
		Buckets: nonZero(
			BucketHours{Overtime, ot},
			BucketHours{DoubleTime, dt},
		),
		TotalHours: total,
	}
}

// weekendTotal is shift duration minus breaks, or worked minutes / default when
// timestamps are unavailable.
func (c *Classifier) weekendTotal(s Shift) (float64, bool) {
	switch {
	case s.HasTimes():
		return models.Round2(math.Max(s.End.Sub(s.Start).Hours()-breakHours(s), 0)), false
	case s.WorkedMinutes > 0:
		return models.Round2(float64(s.WorkedMinutes) / 60), true
	default:
		return models.Round2(c.policy.DefaultShiftHours), true
	}
}

func (c *Classifier) local(t time.Time) time.Time {
	return models.InZone(t, c.policy.Location)
}

func breakHours(s Shift) float64 {
	if s.BreakMinutes <= 0 {
		return 0
	}
	return float64(s.BreakMinutes) / 60
}

func overlap(start1, end1, start2, end2 time.Time) time.Duration {
	from := start1
	if start2.After(from) {
		from = start2
	}
	to := end1
	if end2.Before(to) {
		to = end2
	}
	if !to.After(from) {
		return 0
	}
	return to.Sub(from)
}

func nonZero(in ...BucketHours) []BucketHours {
	out := make([]BucketHours, 0, len(in))
	for _, bh := range in {
		if bh.Hours > 0 {
			out = append(out, bh)
		}
	}
	return out
}

func parseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 {
		return 0, fmt.Errorf("invalid time format: %s", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 24 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour*60 + minute, nil
}
