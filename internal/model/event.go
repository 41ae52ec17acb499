package model

import (
	"database/sql"
	"time"
)

// Societies and event types accepted by the events catalog.
var (
	Societies  = []string{"NCS", "MMIL"}
	EventTypes = []string{"CULTURAL", "TECHNICAL"}
)

// Event mirrors the `events` table.  Enrolled users are kept in the separate
// `enrollments` join table (set semantics, one row per user per event); the
// SheetID references the external roster spreadsheet that must stay in sync
// with that set.
type Event struct {
	ID              uint64         // events.id
	Society         string         // events.society (NCS | MMIL)
	SheetID         string         // events.sheet_id (roster spreadsheet)
	Title           string         // events.title
	Type            string         // events.type (CULTURAL | TECHNICAL)
	Image           sql.NullString // events.image
	Description     sql.NullString // events.description
	Venue           sql.NullString // events.venue
	ContactInfo     sql.NullString // events.contact_info
	Prize           sql.NullInt64  // events.prize
	EnrollmentStart sql.NullTime   // events.enrollment_start
	EnrollmentEnd   sql.NullTime   // events.enrollment_end
	EventStart      sql.NullTime   // events.event_start
	EventEnd        sql.NullTime   // events.event_end
}

// EnrollmentOpen reports whether the enrollment window contains the given
// instant.  An unset bound does not constrain that side of the window.
func (e Event) EnrollmentOpen(now time.Time) (open bool, reason string) {
	if e.EnrollmentStart.Valid && now.Before(e.EnrollmentStart.Time) {
		return false, "not_started"
	}
	if e.EnrollmentEnd.Valid && now.After(e.EnrollmentEnd.Time) {
		return false, "ended"
	}
	return true, ""
}
