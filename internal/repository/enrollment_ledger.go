package repository

import (
	"context"
	"database/sql"
)

// EnrollmentLedger hands out transactions over the enrollment set so the
// enrollment saga can hold its row change open until the external roster
// write succeeds.
type EnrollmentLedger struct{ events *EventRepo }

func NewEnrollmentLedger(events *EventRepo) *EnrollmentLedger {
	return &EnrollmentLedger{events: events}
}

// Begin opens a ledger transaction. The caller must finish it with Commit
// or Rollback.
func (l *EnrollmentLedger) Begin(ctx context.Context) (*LedgerTx, error) {
	tx, err := l.events.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &LedgerTx{tx: tx, events: l.events}, nil
}

// LedgerTx is one open enrollment transaction.
type LedgerTx struct {
	tx     *sql.Tx
	events *EventRepo
}

func (t *LedgerTx) Enroll(ctx context.Context, eventID, userID uint64) (bool, error) {
	return t.events.EnrollTx(ctx, t.tx, eventID, userID)
}

func (t *LedgerTx) Unenroll(ctx context.Context, eventID, userID uint64) (bool, error) {
	return t.events.UnenrollTx(ctx, t.tx, eventID, userID)
}

func (t *LedgerTx) Commit() error   { return t.tx.Commit() }
func (t *LedgerTx) Rollback() error { return t.tx.Rollback() }
