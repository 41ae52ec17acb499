package model

import (
	"database/sql"
	"testing"
	"time"
)

func TestEnrollmentOpen(t *testing.T) {
	now := time.Now().UTC()
	nt := func(d time.Duration) sql.NullTime { return sql.NullTime{Time: now.Add(d), Valid: true} }

	cases := []struct {
		name   string
		event  Event
		open   bool
		reason string
	}{
		{"no bounds", Event{}, true, ""},
		{"inside window", Event{EnrollmentStart: nt(-time.Hour), EnrollmentEnd: nt(time.Hour)}, true, ""},
		{"before start", Event{EnrollmentStart: nt(time.Hour)}, false, "not_started"},
		{"after end", Event{EnrollmentEnd: nt(-time.Minute)}, false, "ended"},
		{"only start passed", Event{EnrollmentStart: nt(-time.Hour)}, true, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			open, reason := tc.event.EnrollmentOpen(now)
			if open != tc.open || reason != tc.reason {
				t.Errorf("got (%v, %q), want (%v, %q)", open, reason, tc.open, tc.reason)
			}
		})
	}
}

func TestOTPActive(t *testing.T) {
	now := time.Now().UTC()
	active := OTP{
		Value:     sql.NullString{String: "enc", Valid: true},
		ExpiresAt: sql.NullTime{Time: now.Add(time.Minute), Valid: true},
	}
	if !active.Active(now) {
		t.Error("unexpired code reported inactive")
	}
	expired := active
	expired.ExpiresAt.Time = now.Add(-time.Second)
	if expired.Active(now) {
		t.Error("expired code reported active")
	}
	if (OTP{}).Active(now) {
		t.Error("empty state reported active")
	}
}

func TestMerchHasSize(t *testing.T) {
	m := Merch{Sizes: []string{"S", "M", "L"}}
	if !m.HasSize("M") {
		t.Error("offered size rejected")
	}
	if m.HasSize("XXL") {
		t.Error("unoffered size accepted")
	}
	if (Merch{}).HasSize("M") {
		t.Error("size accepted on item without sizes")
	}
}
