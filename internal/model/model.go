// Package model holds the persistent entities shared by storage and handlers.
package model

import "time"

type User struct {
	ID        string
	Username  string
	Email     string
	Password  string // bcrypt hash, never the raw password
	CreatedAt time.Time
}

type Group struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
}

type Project struct {
	ID             string
	Name           string
	GroupID        string
	Deadline       time.Time
	EstimatedHours int
	CreatedAt      time.Time
}

// BusyInterval is an externally imposed unavailable block sourced from a
// calendar import. Immutable once created; re-imports are idempotent on
// (user, start, end, calendar).
type BusyInterval struct {
	ID          string
	UserID      string
	Start       time.Time
	End         time.Time
	Description string
	CalendarID  string
}

// Provenance of an availability interval.
const (
	SourceManual = "manual"
	SourceAuto   = "auto"
)

// AvailabilityInterval is a free-time window owned by one user, either
// entered by hand or derived from busy data. Source never changes after
// creation.
type AvailabilityInterval struct {
	ID     string
	UserID string
	Start  time.Time
	End    time.Time
	Source string
}

// SuggestedSlot is a transient common free window offered for booking.
// It is never persisted; booking one produces a WorkSession.
type SuggestedSlot struct {
	Start    time.Time
	End      time.Time
	Duration time.Duration
}

// WorkSession is a booked time block owned by a project.
type WorkSession struct {
	ID        string
	ProjectID string
	Start     time.Time
	End       time.Time
	CreatedAt time.Time
}
