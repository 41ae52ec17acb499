// Package enroll coordinates event enrollment between the database and the
// external roster spreadsheet.
package enroll

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/zealicon/zealicon-backend/internal/model"
	"github.com/zealicon/zealicon-backend/internal/repository"
	"github.com/zealicon/zealicon-backend/internal/sheets"
)

var (
	ErrEventNotFound   = errors.New("event not found")
	ErrNotStarted      = errors.New("enrollment has not started")
	ErrEnded           = errors.New("enrollment has ended")
	ErrAlreadyEnrolled = errors.New("already enrolled in this event")
	ErrNotEnrolled     = errors.New("not enrolled in this event")
)

// EventStore is the event lookup the saga needs.
type EventStore interface {
	GetByID(ctx context.Context, id uint64) (model.Event, error)
}

// Tx is one open enrollment transaction. Satisfied by *repository.LedgerTx.
type Tx interface {
	Enroll(ctx context.Context, eventID, userID uint64) (bool, error)
	Unenroll(ctx context.Context, eventID, userID uint64) (bool, error)
	Commit() error
	Rollback() error
}

// Ledger opens enrollment transactions.
type Ledger interface {
	Begin(ctx context.Context) (Tx, error)
}

// NewRepositoryLedger adapts the concrete repository ledger to the Ledger
// interface.
func NewRepositoryLedger(l *repository.EnrollmentLedger) Ledger {
	return repoLedger{l}
}

type repoLedger struct{ l *repository.EnrollmentLedger }

func (r repoLedger) Begin(ctx context.Context) (Tx, error) {
	tx, err := r.l.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// Service runs the two-step enrollment saga: the database row changes
// first inside a transaction, then the roster sheet; a roster failure
// rolls the row change back so the two never diverge. The sheet write is
// not transactional on its side, so a crash between the sheet call and the
// commit can leave a stray roster row, which the next enrollment change
// for that user overwrites.
type Service struct {
	events EventStore
	ledger Ledger
	roster sheets.Roster
	now    func() time.Time
}

func NewService(events EventStore, ledger Ledger, roster sheets.Roster) *Service {
	return &Service{
		events: events,
		ledger: ledger,
		roster: roster,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// checkWindow loads the event and verifies its enrollment window contains
// the current instant.
func (s *Service) checkWindow(ctx context.Context, eventID uint64) (model.Event, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return model.Event{}, ErrEventNotFound
	}
	if open, reason := event.EnrollmentOpen(s.now()); !open {
		if reason == "not_started" {
			return model.Event{}, ErrNotStarted
		}
		return model.Event{}, ErrEnded
	}
	return event, nil
}

// rosterRow is the roster sheet line for one enrolled user. The user id in
// column 0 is the removal key.
func rosterRow(user model.User) []interface{} {
	name, phone, zealID := "", "", ""
	if user.Name.Valid {
		name = user.Name.String
	}
	if user.Phone.Valid {
		phone = strconv.FormatInt(user.Phone.Int64, 10)
	}
	if user.ZealID.Valid {
		zealID = user.ZealID.String
	}
	return []interface{}{strconv.FormatUint(user.ID, 10), name, user.Email, phone, zealID}
}

// Enroll adds the user to the event and appends them to its roster sheet.
// The enrollment row is committed only after the sheet write succeeds.
func (s *Service) Enroll(ctx context.Context, eventID uint64, user model.User) (model.Event, error) {
	event, err := s.checkWindow(ctx, eventID)
	if err != nil {
		return model.Event{}, err
	}
	tx, err := s.ledger.Begin(ctx)
	if err != nil {
		return model.Event{}, err
	}
	changed, err := tx.Enroll(ctx, eventID, user.ID)
	if err != nil {
		_ = tx.Rollback()
		return model.Event{}, err
	}
	if !changed {
		_ = tx.Rollback()
		return model.Event{}, ErrAlreadyEnrolled
	}
	if err := s.roster.AppendRow(ctx, event.SheetID, rosterRow(user)); err != nil {
		_ = tx.Rollback()
		return model.Event{}, fmt.Errorf("roster append: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.Event{}, err
	}
	return event, nil
}

// Unenroll removes the user from the event and from its roster sheet, with
// the same rollback-on-roster-failure contract as Enroll.
func (s *Service) Unenroll(ctx context.Context, eventID uint64, user model.User) (model.Event, error) {
	event, err := s.checkWindow(ctx, eventID)
	if err != nil {
		return model.Event{}, err
	}
	tx, err := s.ledger.Begin(ctx)
	if err != nil {
		return model.Event{}, err
	}
	changed, err := tx.Unenroll(ctx, eventID, user.ID)
	if err != nil {
		_ = tx.Rollback()
		return model.Event{}, err
	}
	if !changed {
		_ = tx.Rollback()
		return model.Event{}, ErrNotEnrolled
	}
	if err := s.roster.RemoveRow(ctx, event.SheetID, 0, strconv.FormatUint(user.ID, 10)); err != nil {
		_ = tx.Rollback()
		return model.Event{}, fmt.Errorf("roster remove: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.Event{}, err
	}
	return event, nil
}
