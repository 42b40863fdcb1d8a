// Package coverage reports the rates a customer's rate card is missing.
package coverage

import (
	"sort"

	"fieldbill/internal/mobilization"
	"fieldbill/internal/models"
	"fieldbill/internal/rates"
	"fieldbill/internal/shifts"
)

// Auditor finds coverage gaps. It walks the same attendance and fallback chain
// as the line-item generator, so a bucket is reported here exactly when the
// generator would have to skip it.
type Auditor struct {
	classifier *shifts.Classifier
	resolver   *rates.Resolver
}

// NewAuditor creates an auditor.
func NewAuditor(classifier *shifts.Classifier, resolver *rates.Resolver) *Auditor {
	return &Auditor{classifier: classifier, resolver: resolver}
}

// Audit returns the deduplicated gaps, ordered by position then rate type.
func (a *Auditor) Audit(jobs []models.Job, card *models.RateCard) []models.CoverageGap {
	seen := make(map[models.CoverageGap]bool)
	var gaps []models.CoverageGap
	record := func(g models.CoverageGap) {
		if seen[g] {
			return
		}
		seen[g] = true
		gaps = append(gaps, g)
	}

	for i := range jobs {
		job := &jobs[i]
		for _, worker := range shifts.Attend(job) {
			positions := make([]string, 0, len(worker.Units))
			for _, unit := range worker.Units {
				positions = append(positions, unit.Position)
				row := card.Row(unit.Position)
				c := a.classifier.Classify(unit.Shift)
				for _, bh := range c.Buckets {
					if _, ok := a.resolver.Resolve(row, c.DayType, bh.Bucket); ok {
						continue
					}
					record(models.CoverageGap{
						Position: unit.Position,
						RateType: rates.GapType(c.DayType, bh.Bucket),
					})
				}
			}

			position, ok := mobilization.Position(positions)
			if !ok || !mobilization.Qualifies(worker.WorkerID, position, job.Vehicles, job.Timesheets) {
				continue
			}
			if _, ok := a.resolver.ResolveMobilization(card.Row(position)); !ok {
				record(models.CoverageGap{Position: position, RateType: models.RateMobilization})
			}
		}
	}

	sort.SliceStable(gaps, func(i, j int) bool {
		if gaps[i].Position != gaps[j].Position {
			return gaps[i].Position < gaps[j].Position
		}
		return rateOrder(gaps[i].RateType) < rateOrder(gaps[j].RateType)
	})
	return gaps
}

func rateOrder(t models.RateType) int {
	for i, rt := range models.RateTypes {
		if rt == t {
			return i
		}
	}
	return len(models.RateTypes)
}
