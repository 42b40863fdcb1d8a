// Package rates resolves worked-hour buckets to priced services from a customer's rate card.
package rates

import (
	"fieldbill/internal/models"
	"fieldbill/internal/shifts"
)

type slot struct {
	day    shifts.DayType
	bucket shifts.Bucket
}

// exact maps each (day type, bucket) to the rate card tuple that prices it.
// Combinations absent here have no dedicated tuple.
var exact = map[slot]models.RateType{
	{shifts.Weekday, shifts.Regular}:          models.RateWeekdayRegular,
	{shifts.Weekday, shifts.Overtime}:         models.RateWeekdayOvertime,
	{shifts.Weekday, shifts.DoubleTime}:       models.RateWeekdayDoubleTime,
	{shifts.Saturday, shifts.Overtime}:        models.RateSaturdayOvertime,
	{shifts.Saturday, shifts.DoubleTime}:      models.RateSaturdayDoubleTime,
	{shifts.SundayHoliday, shifts.DoubleTime}: models.RateSundayHolidayDoubleTime,
}

// successor is the next less specific bucket tried when a rate is missing.
var successor = map[shifts.Bucket]shifts.Bucket{
	shifts.DoubleTime: shifts.Overtime,
	shifts.Overtime:   shifts.Regular,
}

// RateTypeFor returns the dedicated tuple for a (day type, bucket), if any.
func RateTypeFor(day shifts.DayType, bucket shifts.Bucket) (models.RateType, bool) {
	t, ok := exact[slot{day, bucket}]
	return t, ok
}

// Chain lists the tuples tried, most specific first.
//
// Double time falls back to overtime, overtime to regular. Weekend days have no
// regular tuple, so regular on a weekend resolves to the position's base service.
func Chain(day shifts.DayType, bucket shifts.Bucket) []models.RateType {
	var chain []models.RateType
	b := bucket
	for {
		if day != shifts.Weekday && b == shifts.Regular {
			chain = append(chain, models.RateBase)
			return chain
		}
		if t, ok := exact[slot{day, b}]; ok {
			chain = append(chain, t)
		}
		next, ok := successor[b]
		if !ok {
			return chain
		}
		b = next
	}
}

// GapType is the rate type reported when a (day type, bucket) cannot be priced.
func GapType(day shifts.DayType, bucket shifts.Bucket) models.RateType {
	chain := Chain(day, bucket)
	if len(chain) == 0 {
		return models.RateBase
	}
	return chain[0]
}
