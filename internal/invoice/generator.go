// Package invoice turns job snapshots and a rate card into invoice line items.
package invoice

import (
	"fmt"
	"sort"
	"time"

	"fieldbill/internal/mobilization"
	"fieldbill/internal/models"
	"fieldbill/internal/rates"
	"fieldbill/internal/shifts"

	"github.com/rs/zerolog"
)

var bucketSuffix = map[shifts.Bucket]string{
	shifts.Regular:    "",
	shifts.Overtime:   " (OT)",
	shifts.DoubleTime: " (DT)",
}

// Generator builds line items. It performs no I/O and never mutates its inputs.
type Generator struct {
	classifier *shifts.Classifier
	resolver   *rates.Resolver
	log        zerolog.Logger
}

// NewGenerator creates a generator.
func NewGenerator(classifier *shifts.Classifier, resolver *rates.Resolver, log zerolog.Logger) *Generator {
	return &Generator{classifier: classifier, resolver: resolver, log: log}
}

// Generate returns the line items for jobs, sorted by job service date.
// Buckets that cannot be priced are skipped; the coverage auditor reports them.
func (g *Generator) Generate(jobs []models.Job, card *models.RateCard) []models.LineItem {
	items := make([]models.LineItem, 0)
	for _, idx := range g.jobOrder(jobs) {
		items = append(items, g.generateJob(&jobs[idx], card)...)
	}
	return items
}

func (g *Generator) generateJob(job *models.Job, card *models.RateCard) []models.LineItem {
	var items []models.LineItem
	date := g.serviceDate(job)

	for _, worker := range shifts.Attend(job) {
		billed := false
		positions := make([]string, 0, len(worker.Units))
		var firstShift string

		for _, unit := range worker.Units {
			positions = append(positions, unit.Position)
			row := card.Row(unit.Position)
			c := g.classifier.Classify(unit.Shift)
			label := g.shiftLabel(unit.Shift)
			if firstShift == "" {
				firstShift = label
			}

			for _, bh := range c.Buckets {
				res, ok := g.resolver.Resolve(row, c.DayType, bh.Bucket)
				if !ok {
					g.log.Debug().
						Str("job", job.JobNumber).
						Str("worker", string(worker.WorkerID)).
						Str("position", unit.Position).
						Str("rate_type", string(res.Requested)).
						Float64("hours", bh.Hours).
						Msg("bucket not priced, skipping")
					continue
				}
				items = append(items, newItem(job, worker, unit.Position, date, label, res, bh.Hours, bucketSuffix[bh.Bucket]))
				billed = true
			}
		}

		if !billed {
			continue
		}
		position, ok := mobilization.Position(positions)
		if !ok || !mobilization.Qualifies(worker.WorkerID, position, job.Vehicles, job.Timesheets) {
			continue
		}
		res, ok := g.resolver.ResolveMobilization(card.Row(position))
		if !ok {
			g.log.Debug().
				Str("job", job.JobNumber).
				Str("worker", string(worker.WorkerID)).
				Str("position", position).
				Msg("mobilization not priced, skipping")
			continue
		}
		items = append(items, newItem(job, worker, position, date, firstShift, res, 1, ""))
	}
	return items
}

func newItem(
	job *models.Job,
	worker shifts.WorkerAttendance,
	position, date, shiftLabel string,
	res rates.Resolution,
	quantity float64,
	suffix string,
) models.LineItem {
	return models.LineItem{
		JobID:      job.ID,
		JobNumber:  job.JobNumber,
		Title:      fmt.Sprintf("%s-%s%s", res.Rate.Name, job.JobNumber, suffix),
		Service:    res.Rate.Name,
		ServiceID:  res.Rate.ServiceID,
		Category:   res.Rate.Category,
		RateType:   res.Used,
		Date:       date,
		UnitPrice:  res.Rate.Price,
		Quantity:   quantity,
		TaxCodeID:  res.Rate.TaxCodeID,
		Total:      models.Round2(res.Rate.Price * quantity),
		WorkerID:   worker.WorkerID,
		WorkerName: worker.Name,
		Position:   models.PositionLabel(position),
		ShiftTime:  shiftLabel,
	}
}

// jobOrder sorts job indexes by service date; jobs without a date go last.
// Equal dates keep their input order.
func (g *Generator) jobOrder(jobs []models.Job) []int {
	order := make([]int, len(jobs))
	dates := make([]string, len(jobs))
	for i := range jobs {
		order[i] = i
		dates[i] = g.serviceDate(&jobs[i])
	}
	sort.SliceStable(order, func(a, b int) bool {
		da, db := dates[order[a]], dates[order[b]]
		if da == "" || db == "" {
			return da != "" && db == ""
		}
		return da < db
	})
	return order
}

func (g *Generator) serviceDate(job *models.Job) string {
	start, ok := job.Start()
	if !ok {
		for _, w := range shifts.Attend(job) {
			for _, u := range w.Units {
				if !u.Shift.Start.IsZero() {
					return g.local(u.Shift.Start).Format("2006-01-02")
				}
			}
		}
		return ""
	}
	return g.local(start).Format("2006-01-02")
}

func (g *Generator) shiftLabel(s shifts.Shift) string {
	if !s.HasTimes() {
		return ""
	}
	return g.local(s.Start).Format("15:04") + "-" + g.local(s.End).Format("15:04")
}

func (g *Generator) local(t time.Time) time.Time {
	return models.InZone(t, g.classifier.Policy().Location)
}
