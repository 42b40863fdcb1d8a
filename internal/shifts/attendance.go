package shifts

import (
	"time"

	"fieldbill/internal/models"
)

// Source tells where a work unit's times came from.
type Source string

const (
	SourceTimesheet Source = "timesheet"
	SourceSchedule  Source = "schedule"
	// SourcePartial is a timesheet entry without usable shift times.
	SourcePartial Source = "timesheet_partial"
)

// WorkUnit is one billable shift of one worker.
type WorkUnit struct {
	Position string // normalized
	Shift    Shift
	Source   Source
}

// WorkerAttendance groups a worker's billable shifts on a job.
type WorkerAttendance struct {
	WorkerID models.ID
	Name     string
	Units    []WorkUnit
}

// Attend resolves which shifts are billed for each worker on the job.
//
// A complete timesheet entry supersedes the worker's scheduled assignment, and a
// worker attributed through the timesheet is never billed again from the schedule.
// Accepted assignments without a complete entry bill their scheduled times, keeping
// break and worked minutes from an incomplete entry when one exists. Workers are
// returned in assignment order, then in timesheet order for unscheduled workers.
func Attend(job *models.Job) []WorkerAttendance {
	if job == nil {
		return nil
	}
	anchor, _ := job.Start()

	assigned := make(map[models.ID]*models.WorkerAssignment, len(job.Workers))
	for i := range job.Workers {
		w := &job.Workers[i]
		if w.UserID == "" {
			continue
		}
		if _, ok := assigned[w.UserID]; !ok {
			assigned[w.UserID] = w
		}
	}

	units := make(map[models.ID][]WorkUnit)
	names := make(map[models.ID]string)
	var entryOrder []models.ID
	partial := make(map[models.ID]models.TimesheetEntry)
	var partialOrder []models.ID

	for _, ts := range job.Timesheets {
		if ts.Void() {
			continue
		}
		for _, e := range ts.Entries {
			if e.WorkerID == "" {
				continue
			}
			if _, seen := names[e.WorkerID]; !seen {
				entryOrder = append(entryOrder, e.WorkerID)
			}
			if names[e.WorkerID] == "" {
				names[e.WorkerID] = e.WorkerName
			}

			if !e.Complete() {
				if _, ok := partial[e.WorkerID]; !ok {
					partial[e.WorkerID] = e
					partialOrder = append(partialOrder, e.WorkerID)
				}
				continue
			}
			start, _ := models.ParseTimestamp(e.ShiftStart)
			end, _ := models.ParseTimestamp(e.ShiftEnd)
			units[e.WorkerID] = append(units[e.WorkerID], WorkUnit{
				Position: entryPosition(e, assigned[e.WorkerID]),
				Shift: Shift{
					Anchor:        anchorOr(anchor, start),
					Start:         start,
					End:           end,
					BreakMinutes:  e.BreakMinutes,
					WorkedMinutes: e.TotalWorkMinutes,
				},
				Source: SourceTimesheet,
			})
		}
	}

	// Workers with at least one complete entry are attributed; the schedule is skipped for them.
	attributed := make(map[models.ID]bool, len(units))
	for id := range units {
		attributed[id] = true
	}

	scheduled := make(map[models.ID]bool)
	for i := range job.Workers {
		w := &job.Workers[i]
		if w.UserID == "" || !w.Accepted() || attributed[w.UserID] || scheduled[w.UserID] {
			continue
		}
		scheduled[w.UserID] = true

		start, okStart := models.ParseTimestamp(w.StartTime)
		end, okEnd := models.ParseTimestamp(w.EndTime)
		shift := Shift{Anchor: anchor}
		if okStart && okEnd {
			shift.Start, shift.End = start, end
			shift.Anchor = anchorOr(anchor, start)
		}
		source := SourceSchedule
		if e, ok := partial[w.UserID]; ok {
			shift.BreakMinutes = e.BreakMinutes
			shift.WorkedMinutes = e.TotalWorkMinutes
			source = SourcePartial
		}
		units[w.UserID] = append(units[w.UserID], WorkUnit{
			Position: models.NormalizePosition(w.Position),
			Shift:    shift,
			Source:   source,
		})
	}

	// Incomplete entries for workers nobody scheduled: bill worked minutes or the default.
	for _, id := range partialOrder {
		if attributed[id] || scheduled[id] {
			continue
		}
		e := partial[id]
		units[id] = append(units[id], WorkUnit{
			Position: entryPosition(e, assigned[id]),
			Shift: Shift{
				Anchor:        anchor,
				BreakMinutes:  e.BreakMinutes,
				WorkedMinutes: e.TotalWorkMinutes,
			},
			Source: SourcePartial,
		})
	}

	var out []WorkerAttendance
	emitted := make(map[models.ID]bool)
	emit := func(id models.ID) {
		if emitted[id] || len(units[id]) == 0 {
			return
		}
		emitted[id] = true
		out = append(out, WorkerAttendance{
			WorkerID: id,
			Name:     workerName(id, names[id], assigned[id]),
			Units:    units[id],
		})
	}
	for i := range job.Workers {
		emit(job.Workers[i].UserID)
	}
	for _, id := range entryOrder {
		emit(id)
	}
	return out
}

func entryPosition(e models.TimesheetEntry, a *models.WorkerAssignment) string {
	if e.Position != "" {
		return models.NormalizePosition(e.Position)
	}
	if a != nil {
		return models.NormalizePosition(a.Position)
	}
	return ""
}

func workerName(id models.ID, fromEntry string, a *models.WorkerAssignment) string {
	if a != nil && a.Name != "" {
		return a.Name
	}
	if fromEntry != "" {
		return fromEntry
	}
	return string(id)
}

func anchorOr(anchor, fallback time.Time) time.Time {
	if !anchor.IsZero() {
		return anchor
	}
	return fallback
}
