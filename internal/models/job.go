package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Job is a completed job snapshot fetched from the dashboard API.
type Job struct {
	ID         ID                 `json:"id"`
	JobNumber  string             `json:"job_number"`
	StartTime  string             `json:"start_time"`
	CustomerID ID                 `json:"customer_id"`
	CompanyID  ID                 `json:"company_id,omitempty"`
	Vehicles   []Vehicle          `json:"vehicles"`
	Workers    []WorkerAssignment `json:"workers"`
	Timesheets []Timesheet        `json:"timesheets"`
}

// Start returns the parsed job start. ok is false when the value is missing or malformed.
func (j *Job) Start() (time.Time, bool) {
	return ParseTimestamp(j.StartTime)
}

// Vehicle is a vehicle assignment on a job.
type Vehicle struct {
	OperatorID ID     `json:"operator_id"`
	Type       string `json:"type"`
}

// WorkerAssignment is the scheduled assignment of one worker to a job.
type WorkerAssignment struct {
	UserID    ID     `json:"user_id"`
	Name      string `json:"name,omitempty"`
	Position  string `json:"position"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Status    string `json:"status"`
}

// Accepted reports whether the worker accepted the assignment.
func (w *WorkerAssignment) Accepted() bool {
	switch strings.ToLower(strings.TrimSpace(w.Status)) {
	case "accepted", "confirmed", "approved":
		return true
	}
	return false
}

// Timesheet groups the entries submitted for a job.
type Timesheet struct {
	Status  string           `json:"status"`
	Entries []TimesheetEntry `json:"entries"`
}

// Void reports whether the timesheet was rejected and must not be billed.
func (t *Timesheet) Void() bool {
	switch strings.ToLower(strings.TrimSpace(t.Status)) {
	case "rejected", "void", "voided":
		return true
	}
	return false
}

// TimesheetEntry is the actual shift a worker recorded.
type TimesheetEntry struct {
	WorkerID          ID     `json:"worker_id"`
	WorkerName        string `json:"worker_name,omitempty"`
	Position          string `json:"position"`
	ShiftStart        string `json:"shift_start"`
	ShiftEnd          string `json:"shift_end"`
	BreakMinutes      int    `json:"break_minutes"`
	TotalWorkMinutes  int    `json:"total_work_minutes"`
	TravelToMinutes   int    `json:"travel_to_minutes,omitempty"`
	TravelFromMinutes int    `json:"travel_from_minutes,omitempty"`
	Mob               bool   `json:"mob"`
}

// UnmarshalJSON accepts the alternate field names the dashboard emits for
// break and worked minutes, and tolerates numbers sent as strings.
func (e *TimesheetEntry) UnmarshalJSON(data []byte) error {
	var raw struct {
		WorkerID          ID      `json:"worker_id"`
		WorkerName        string  `json:"worker_name"`
		Position          string  `json:"position"`
		ShiftStart        *string `json:"shift_start"`
		ShiftEnd          *string `json:"shift_end"`
		BreakMinutes      Minutes `json:"break_minutes"`
		BreakTotalMinutes Minutes `json:"break_total_minutes"`
		TotalWorkMinutes  Minutes `json:"total_work_minutes"`
		ShiftTotalMinutes Minutes `json:"shift_total_minutes"`
		TravelToMinutes   Minutes `json:"travel_to_minutes"`
		TravelFromMinutes Minutes `json:"travel_from_minutes"`
		Mob               Flag    `json:"mob"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*e = TimesheetEntry{
		WorkerID:          raw.WorkerID,
		WorkerName:        raw.WorkerName,
		Position:          raw.Position,
		BreakMinutes:      int(raw.BreakMinutes),
		TotalWorkMinutes:  int(raw.TotalWorkMinutes),
		TravelToMinutes:   int(raw.TravelToMinutes),
		TravelFromMinutes: int(raw.TravelFromMinutes),
		Mob:               bool(raw.Mob),
	}
	if raw.ShiftStart != nil {
		e.ShiftStart = *raw.ShiftStart
	}
	if raw.ShiftEnd != nil {
		e.ShiftEnd = *raw.ShiftEnd
	}
	if e.BreakMinutes == 0 {
		e.BreakMinutes = int(raw.BreakTotalMinutes)
	}
	if e.TotalWorkMinutes == 0 {
		e.TotalWorkMinutes = int(raw.ShiftTotalMinutes)
	}
	return nil
}

// Complete reports whether both shift start and end are present and parseable.
func (e *TimesheetEntry) Complete() bool {
	_, okStart := ParseTimestamp(e.ShiftStart)
	_, okEnd := ParseTimestamp(e.ShiftEnd)
	return okStart && okEnd
}
