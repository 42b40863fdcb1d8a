// Package mobilization decides which workers earn the one-time mobilization charge.
package mobilization

import "fieldbill/internal/models"

var eligiblePositions = map[string]bool{
	models.PositionLCT:             true,
	models.PositionHWY:             true,
	models.PositionFieldSupervisor: true,
}

// Eligible reports whether a position can earn mobilization at all.
func Eligible(position string) bool {
	return eligiblePositions[models.NormalizePosition(position)]
}

// Qualifies reports whether the worker earns mobilization on the job: the position
// must be eligible and the worker must either operate one of the job's vehicles or
// carry the mob flag on any of their timesheet entries.
func Qualifies(workerID models.ID, position string, vehicles []models.Vehicle, timesheets []models.Timesheet) bool {
	if workerID == "" || !Eligible(position) {
		return false
	}
	for _, v := range vehicles {
		if v.OperatorID == workerID {
			return true
		}
	}
	for _, ts := range timesheets {
		if ts.Void() {
			continue
		}
		for _, e := range ts.Entries {
			if e.WorkerID == workerID && e.Mob {
				return true
			}
		}
	}
	return false
}

// Position picks the position under which a worker's mobilization is billed:
// the first eligible one among their shifts, in order.
func Position(positions []string) (string, bool) {
	for _, p := range positions {
		if Eligible(p) {
			return models.NormalizePosition(p), true
		}
	}
	return "", false
}
