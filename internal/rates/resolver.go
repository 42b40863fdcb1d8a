package rates

import (
	"fieldbill/internal/models"
	"fieldbill/internal/shifts"
)

// Resolution is a bucket priced against a rate card row.
type Resolution struct {
	// Requested is the most specific tuple for the bucket; it keys coverage gaps.
	Requested models.RateType
	// Used is the tuple that actually priced the bucket.
	Used models.RateType
	Rate models.ServiceRate
}

// FellBack reports whether a less specific tuple was used.
func (r Resolution) FellBack() bool {
	return r.Used != r.Requested
}

// Resolver walks the fallback chain. A nil catalog disables the tax-code fallback.
type Resolver struct {
	catalog *models.Catalog
}

// NewResolver creates a resolver backed by the services catalog.
func NewResolver(catalog *models.Catalog) *Resolver {
	return &Resolver{catalog: catalog}
}

// Resolve prices a bucket. ok is false when no tuple in the chain has both a
// name and a positive price, or when the row itself is missing.
func (r *Resolver) Resolve(row *models.RateCardRow, day shifts.DayType, bucket shifts.Bucket) (Resolution, bool) {
	chain := Chain(day, bucket)
	res := Resolution{Requested: GapType(day, bucket)}
	if row == nil {
		return res, false
	}
	for _, t := range chain {
		rate, ok := row.Rate(t)
		if !ok || !rate.Valid() {
			continue
		}
		res.Used = t
		res.Rate = r.withTaxCode(rate)
		return res, true
	}
	return res, false
}

// ResolveMobilization prices the one-time mobilization charge. It has no fallback.
func (r *Resolver) ResolveMobilization(row *models.RateCardRow) (Resolution, bool) {
	res := Resolution{Requested: models.RateMobilization}
	if row == nil {
		return res, false
	}
	rate, ok := row.Rate(models.RateMobilization)
	if !ok || !rate.Valid() {
		return res, false
	}
	res.Used = models.RateMobilization
	res.Rate = r.withTaxCode(rate)
	return res, true
}

func (r *Resolver) withTaxCode(rate models.ServiceRate) models.ServiceRate {
	if rate.TaxCodeID == "" {
		rate.TaxCodeID = r.catalog.TaxCode(rate.Name, rate.Category)
	}
	return rate
}
