package enroll

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/zealicon/zealicon-backend/internal/model"
)

type fakeEvents struct {
	events map[uint64]model.Event
}

func (f *fakeEvents) GetByID(ctx context.Context, id uint64) (model.Event, error) {
	e, ok := f.events[id]
	if !ok {
		return model.Event{}, sql.ErrNoRows
	}
	return e, nil
}

// fakeLedger keeps the committed enrollment set and hands out transactions
// that buffer changes until Commit.
type fakeLedger struct {
	enrolled map[[2]uint64]bool // {eventID, userID}
	begun    int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{enrolled: map[[2]uint64]bool{}}
}

func (f *fakeLedger) Begin(ctx context.Context) (Tx, error) {
	f.begun++
	return &fakeTx{ledger: f, staged: map[[2]uint64]bool{}}, nil
}

type fakeTx struct {
	ledger     *fakeLedger
	staged     map[[2]uint64]bool // pending value per key
	committed  bool
	rolledBack bool
}

func (t *fakeTx) current(key [2]uint64) bool {
	if v, ok := t.staged[key]; ok {
		return v
	}
	return t.ledger.enrolled[key]
}

func (t *fakeTx) Enroll(ctx context.Context, eventID, userID uint64) (bool, error) {
	key := [2]uint64{eventID, userID}
	if t.current(key) {
		return false, nil
	}
	t.staged[key] = true
	return true, nil
}

func (t *fakeTx) Unenroll(ctx context.Context, eventID, userID uint64) (bool, error) {
	key := [2]uint64{eventID, userID}
	if !t.current(key) {
		return false, nil
	}
	t.staged[key] = false
	return true, nil
}

func (t *fakeTx) Commit() error {
	t.committed = true
	for k, v := range t.staged {
		if v {
			t.ledger.enrolled[k] = true
		} else {
			delete(t.ledger.enrolled, k)
		}
	}
	return nil
}

func (t *fakeTx) Rollback() error {
	t.rolledBack = true
	t.staged = map[[2]uint64]bool{}
	return nil
}

type fakeRoster struct {
	appendErr error
	removeErr error
	appended  [][]interface{}
	removed   []string
}

func (f *fakeRoster) CreateSheet(ctx context.Context, title string) (string, error) {
	return "sheet-" + title, nil
}

func (f *fakeRoster) AppendRow(ctx context.Context, sheetID string, row []interface{}) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended = append(f.appended, row)
	return nil
}

func (f *fakeRoster) RemoveRow(ctx context.Context, sheetID string, keyColumn int, key string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, key)
	return nil
}

func openEvent(id uint64) model.Event {
	now := time.Now().UTC()
	return model.Event{
		ID:              id,
		Society:         "NCS",
		SheetID:         "sheet-1",
		Title:           "Robo Race",
		Type:            "TECHNICAL",
		EnrollmentStart: sql.NullTime{Time: now.Add(-time.Hour), Valid: true},
		EnrollmentEnd:   sql.NullTime{Time: now.Add(time.Hour), Valid: true},
	}
}

func testUser() model.User {
	return model.User{
		ID:     7,
		Name:   sql.NullString{String: "Asha", Valid: true},
		Email:  "asha@test.dev",
		Phone:  sql.NullInt64{Int64: 9876543210, Valid: true},
		ZealID: sql.NullString{String: "Zeal_ID-abc", Valid: true},
	}
}

func newTestService(events *fakeEvents, ledger *fakeLedger, roster *fakeRoster) *Service {
	return NewService(events, ledger, roster)
}

func TestEnrollHappyPath(t *testing.T) {
	ledger := newFakeLedger()
	roster := &fakeRoster{}
	s := newTestService(&fakeEvents{events: map[uint64]model.Event{1: openEvent(1)}}, ledger, roster)

	event, err := s.Enroll(context.Background(), 1, testUser())
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if event.ID != 1 {
		t.Errorf("returned event %d, want 1", event.ID)
	}
	if !ledger.enrolled[[2]uint64{1, 7}] {
		t.Error("enrollment not committed")
	}
	if len(roster.appended) != 1 {
		t.Fatalf("roster rows appended = %d, want 1", len(roster.appended))
	}
	row := roster.appended[0]
	if row[0] != "7" || row[1] != "Asha" || row[2] != "asha@test.dev" || row[3] != "9876543210" || row[4] != "Zeal_ID-abc" {
		t.Errorf("roster row = %v", row)
	}
}

func TestEnrollRosterFailureRollsBack(t *testing.T) {
	ledger := newFakeLedger()
	roster := &fakeRoster{appendErr: errors.New("sheets unavailable")}
	s := newTestService(&fakeEvents{events: map[uint64]model.Event{1: openEvent(1)}}, ledger, roster)

	if _, err := s.Enroll(context.Background(), 1, testUser()); err == nil {
		t.Fatal("expected error when roster append fails")
	}
	if ledger.enrolled[[2]uint64{1, 7}] {
		t.Error("enrollment committed despite roster failure")
	}
}

func TestEnrollAlreadyEnrolled(t *testing.T) {
	ledger := newFakeLedger()
	ledger.enrolled[[2]uint64{1, 7}] = true
	roster := &fakeRoster{}
	s := newTestService(&fakeEvents{events: map[uint64]model.Event{1: openEvent(1)}}, ledger, roster)

	if _, err := s.Enroll(context.Background(), 1, testUser()); !errors.Is(err, ErrAlreadyEnrolled) {
		t.Errorf("err = %v, want ErrAlreadyEnrolled", err)
	}
	if len(roster.appended) != 0 {
		t.Error("roster written for a no-op enrollment")
	}
}

func TestEnrollWindowChecks(t *testing.T) {
	now := time.Now().UTC()
	notStarted := openEvent(1)
	notStarted.EnrollmentStart = sql.NullTime{Time: now.Add(time.Hour), Valid: true}
	ended := openEvent(2)
	ended.EnrollmentEnd = sql.NullTime{Time: now.Add(-time.Minute), Valid: true}

	s := newTestService(&fakeEvents{events: map[uint64]model.Event{1: notStarted, 2: ended}},
		newFakeLedger(), &fakeRoster{})

	if _, err := s.Enroll(context.Background(), 1, testUser()); !errors.Is(err, ErrNotStarted) {
		t.Errorf("before window err = %v, want ErrNotStarted", err)
	}
	if _, err := s.Enroll(context.Background(), 2, testUser()); !errors.Is(err, ErrEnded) {
		t.Errorf("after window err = %v, want ErrEnded", err)
	}
	if _, err := s.Enroll(context.Background(), 9, testUser()); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("unknown event err = %v, want ErrEventNotFound", err)
	}
}

func TestUnenrollHappyPath(t *testing.T) {
	ledger := newFakeLedger()
	ledger.enrolled[[2]uint64{1, 7}] = true
	roster := &fakeRoster{}
	s := newTestService(&fakeEvents{events: map[uint64]model.Event{1: openEvent(1)}}, ledger, roster)

	if _, err := s.Unenroll(context.Background(), 1, testUser()); err != nil {
		t.Fatalf("Unenroll: %v", err)
	}
	if ledger.enrolled[[2]uint64{1, 7}] {
		t.Error("enrollment still committed")
	}
	if len(roster.removed) != 1 || roster.removed[0] != "7" {
		t.Errorf("roster removals = %v, want [7]", roster.removed)
	}
}

func TestUnenrollNotEnrolled(t *testing.T) {
	s := newTestService(&fakeEvents{events: map[uint64]model.Event{1: openEvent(1)}},
		newFakeLedger(), &fakeRoster{})

	if _, err := s.Unenroll(context.Background(), 1, testUser()); !errors.Is(err, ErrNotEnrolled) {
		t.Errorf("err = %v, want ErrNotEnrolled", err)
	}
}

func TestUnenrollRosterFailureRollsBack(t *testing.T) {
	ledger := newFakeLedger()
	ledger.enrolled[[2]uint64{1, 7}] = true
	roster := &fakeRoster{removeErr: errors.New("sheets unavailable")}
	s := newTestService(&fakeEvents{events: map[uint64]model.Event{1: openEvent(1)}}, ledger, roster)

	if _, err := s.Unenroll(context.Background(), 1, testUser()); err == nil {
		t.Fatal("expected error when roster remove fails")
	}
	if !ledger.enrolled[[2]uint64{1, 7}] {
		t.Error("enrollment removed despite roster failure")
	}
}
