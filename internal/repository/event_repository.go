package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/zealicon/zealicon-backend/internal/model"
)

// EventRepo provides catalog access to events and the enrollment set.
// Enrollments live in a join table with a composite primary key, which
// gives set semantics for free: re-enrolling is a zero-row insert.
type EventRepo struct{ db *sql.DB }

func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// DB exposes the pool so the enrollment ledger can run its saga in one
// transaction.
func (r *EventRepo) DB() *sql.DB { return r.db }

const eventColumns = `id,society,sheet_id,title,type,image,description,venue,contact_info,prize,
	enrollment_start,enrollment_end,event_start,event_end`

func scanEvent(scan func(dest ...interface{}) error) (model.Event, error) {
	var e model.Event
	err := scan(&e.ID, &e.Society, &e.SheetID, &e.Title, &e.Type, &e.Image, &e.Description,
		&e.Venue, &e.ContactInfo, &e.Prize,
		&e.EnrollmentStart, &e.EnrollmentEnd, &e.EventStart, &e.EventEnd)
	return e, err
}

// GetByID fetches a single event.
func (r *EventRepo) GetByID(ctx context.Context, id uint64) (model.Event, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+eventColumns+" FROM events WHERE id=? LIMIT 1", id)
	return scanEvent(row.Scan)
}

// EventFilter narrows List. Zero values mean "no constraint"; EnrolledBy
// restricts to events the given user is enrolled in.
type EventFilter struct {
	ID         uint64
	Society    string
	Type       string
	EnrolledBy uint64
}

// List returns events matching the filter.
func (r *EventRepo) List(ctx context.Context, f EventFilter) ([]model.Event, error) {
	q := "SELECT " + eventColumns + " FROM events WHERE 1=1"
	args := []interface{}{}
	if f.ID != 0 {
		q += " AND id=?"
		args = append(args, f.ID)
	}
	if f.Society != "" {
		q += " AND society=?"
		args = append(args, f.Society)
	}
	if f.Type != "" {
		q += " AND type=?"
		args = append(args, f.Type)
	}
	if f.EnrolledBy != 0 {
		q += " AND id IN (SELECT event_id FROM enrollments WHERE user_id=?)"
		args = append(args, f.EnrolledBy)
	}
	q += " ORDER BY id"
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Event
	for rows.Next() {
		e, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Create inserts an event and returns its id. The sheet id must already
// exist; event creation provisions the roster sheet first.
func (r *EventRepo) Create(ctx context.Context, e model.Event) (uint64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO events (society, sheet_id, title, type, image, description, venue, contact_info, prize,
		                     enrollment_start, enrollment_end, event_start, event_end)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.Society, e.SheetID, e.Title, e.Type, e.Image, e.Description, e.Venue, e.ContactInfo, e.Prize,
		e.EnrollmentStart, e.EnrollmentEnd, e.EventStart, e.EventEnd)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// Update patches the provided columns of an event. Nil pointers leave the
// column untouched. Matched is false when the event does not exist.
func (r *EventRepo) Update(ctx context.Context, id uint64, cols map[string]interface{}) (bool, error) {
	if len(cols) == 0 {
		return true, nil
	}
	sets := make([]string, 0, len(cols))
	args := make([]interface{}, 0, len(cols)+1)
	for _, col := range []string{"society", "title", "type", "image", "description", "venue",
		"contact_info", "prize", "enrollment_start", "enrollment_end", "event_start", "event_end"} {
		if v, ok := cols[col]; ok {
			sets = append(sets, col+"=?")
			args = append(args, v)
		}
	}
	if len(sets) == 0 {
		return true, nil
	}
	args = append(args, id)
	res, err := r.db.ExecContext(ctx, "UPDATE events SET "+strings.Join(sets, ", ")+" WHERE id=?", args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Delete removes an event and, through the foreign key, its enrollments.
func (r *EventRepo) Delete(ctx context.Context, id uint64) (bool, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM events WHERE id=?", id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// EnrollTx adds a user to an event's participant set inside tx. Changed is
// false when the user was already enrolled (set semantics).
func (r *EventRepo) EnrollTx(ctx context.Context, tx *sql.Tx, eventID, userID uint64) (bool, error) {
	res, err := tx.ExecContext(ctx,
		"INSERT IGNORE INTO enrollments (event_id, user_id) VALUES (?,?)", eventID, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UnenrollTx removes a user from an event's participant set inside tx.
// Changed is false when the user was not enrolled.
func (r *EventRepo) UnenrollTx(ctx context.Context, tx *sql.Tx, eventID, userID uint64) (bool, error) {
	res, err := tx.ExecContext(ctx,
		"DELETE FROM enrollments WHERE event_id=? AND user_id=?", eventID, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
