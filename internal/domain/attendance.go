package domain

import (
	"strings"
	"time"
)

// AttendanceRecord holds the most recent check-in/check-out pair for one
// (worker, calendar day). A worker may open several pairs per day after
// breaks; earlier closed pairs are superseded by the latest one. CheckOut is
// only meaningful while CheckIn is set.
type AttendanceRecord struct {
	WorkerID  string
	Day       time.Time
	CheckIn   *time.Time
	CheckOut  *time.Time
	UpdatedAt time.Time
}

// DayOf truncates a timestamp to its UTC calendar day.
func DayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// NewAttendanceCheckIn opens a fresh session for the worker on now's day.
func NewAttendanceCheckIn(workerID string, now time.Time) (AttendanceRecord, error) {
	workerID = strings.TrimSpace(workerID)
	if workerID == "" {
		return AttendanceRecord{}, ErrInvalidID
	}
	ts := now.UTC().Truncate(time.Second)
	return AttendanceRecord{
		WorkerID:  workerID,
		Day:       DayOf(now),
		CheckIn:   &ts,
		UpdatedAt: now.UTC(),
	}, nil
}

// Open reports whether the record holds a session awaiting check-out.
func (r AttendanceRecord) Open() bool {
	return r.CheckIn != nil && r.CheckOut == nil
}

// Close stamps the check-out time on an open session.
func (r *AttendanceRecord) Close(now time.Time) error {
	if !r.Open() {
		return ErrNoOpenSession
	}
	ts := now.UTC().Truncate(time.Second)
	r.CheckOut = &ts
	r.UpdatedAt = now.UTC()
	return nil
}

// Reopen replaces a closed pair with a new check-in on the same day.
func (r *AttendanceRecord) Reopen(now time.Time) error {
	if r.Open() {
		return NewConflictError(ConflictOpenSession, "an attendance session is already open")
	}
	ts := now.UTC().Truncate(time.Second)
	r.CheckIn = &ts
	r.CheckOut = nil
	r.UpdatedAt = now.UTC()
	return nil
}
