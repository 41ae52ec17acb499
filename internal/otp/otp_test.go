package otp

import (
	"database/sql"
	"strconv"
	"testing"
	"time"

	"github.com/zealicon/zealicon-backend/internal/config"
	"github.com/zealicon/zealicon-backend/internal/model"
	"github.com/zealicon/zealicon-backend/internal/utils"
)

const secret = "test-otp-secret"

// stateFromIssue converts a planned issuance into the stored OTP state the
// next call would observe.
func stateFromIssue(iss Issue) model.OTP {
	return model.OTP{
		Value:     sql.NullString{String: iss.Encrypted, Valid: true},
		ExpiresAt: sql.NullTime{Time: iss.ExpiresAt, Valid: true},
		Tries:     iss.Tries,
		Attempts:  iss.Attempts,
	}
}

func TestPlanIssueFresh(t *testing.T) {
	now := time.Now().UTC()
	iss, err := PlanIssue(secret, model.OTP{}, now)
	if err != nil {
		t.Fatal(err)
	}
	if iss.Code < 100000 || iss.Code > 999999 {
		t.Errorf("code %d not 6 digits", iss.Code)
	}
	if iss.Tries != config.OTPTries || iss.Attempts != config.OTPAttempts {
		t.Errorf("counters %d/%d, want %d/%d", iss.Tries, iss.Attempts, config.OTPTries, config.OTPAttempts)
	}
	if !iss.ExpiresAt.Equal(now.Add(config.OTPExpiresMin * time.Minute)) {
		t.Errorf("expiry %v, want now+%dm", iss.ExpiresAt, config.OTPExpiresMin)
	}
	if iss.Reused {
		t.Error("fresh issue reported as reused")
	}
	plain, err := utils.Decrypt(secret, iss.Encrypted)
	if err != nil {
		t.Fatal(err)
	}
	if plain != strconv.Itoa(iss.Code) {
		t.Errorf("stored value decrypts to %q, want %d", plain, iss.Code)
	}
}

func TestPlanIssueThrottledWithinResendWindow(t *testing.T) {
	now := time.Now().UTC()
	first, err := PlanIssue(secret, model.OTP{}, now)
	if err != nil {
		t.Fatal(err)
	}
	_, err = PlanIssue(secret, stateFromIssue(first), now.Add(10*time.Second))
	if err != ErrTooManyRequests {
		t.Errorf("err = %v, want ErrTooManyRequests", err)
	}
}

func TestPlanIssueReusesActiveCode(t *testing.T) {
	now := time.Now().UTC()
	first, err := PlanIssue(secret, model.OTP{}, now)
	if err != nil {
		t.Fatal(err)
	}
	again, err := PlanIssue(secret, stateFromIssue(first), now.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if !again.Reused {
		t.Error("active code was not reused")
	}
	if again.Code != first.Code || again.Encrypted != first.Encrypted {
		t.Error("resend changed the code")
	}
	if again.Tries != first.Tries || again.Attempts != first.Attempts {
		t.Errorf("resend changed counters to %d/%d", again.Tries, again.Attempts)
	}
	if !again.ExpiresAt.Equal(first.ExpiresAt) {
		t.Error("resend extended the expiry")
	}
}

func TestPlanIssueAfterExpiryCostsOneTry(t *testing.T) {
	now := time.Now().UTC()
	first, err := PlanIssue(secret, model.OTP{}, now)
	if err != nil {
		t.Fatal(err)
	}
	later := now.Add(config.OTPExpiresMin*time.Minute + time.Second)
	fresh, err := PlanIssue(secret, stateFromIssue(first), later)
	if err != nil {
		t.Fatal(err)
	}
	if fresh.Tries != first.Tries-1 {
		t.Errorf("tries = %d, want %d", fresh.Tries, first.Tries-1)
	}
	if fresh.Attempts != config.OTPAttempts {
		t.Errorf("attempts = %d, want reset to %d", fresh.Attempts, config.OTPAttempts)
	}
	if fresh.Code == first.Code && fresh.Encrypted == first.Encrypted {
		t.Error("expired code was reissued verbatim")
	}
	if fresh.Reused {
		t.Error("expired reissue reported as reused")
	}
}

func TestPlanIssueExhaustedTries(t *testing.T) {
	now := time.Now().UTC()
	iss, err := PlanIssue(secret, model.OTP{}, now)
	if err != nil {
		t.Fatal(err)
	}
	state := stateFromIssue(iss)

	// Burn every resend cycle by letting each code expire.
	for i := 0; i < config.OTPTries; i++ {
		now = state.ExpiresAt.Time.Add(time.Second)
		iss, err = PlanIssue(secret, state, now)
		if err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
		state = stateFromIssue(iss)
	}
	if state.Tries != 0 {
		t.Fatalf("tries = %d after burning all cycles, want 0", state.Tries)
	}
	_, err = PlanIssue(secret, state, state.ExpiresAt.Time.Add(time.Second))
	if err != ErrTooManyAttempts {
		t.Errorf("err = %v, want ErrTooManyAttempts", err)
	}
}

func TestPlanIssueExhaustedAttempts(t *testing.T) {
	now := time.Now().UTC()
	iss, err := PlanIssue(secret, model.OTP{}, now)
	if err != nil {
		t.Fatal(err)
	}
	state := stateFromIssue(iss)
	state.Attempts = 0
	_, err = PlanIssue(secret, state, now.Add(time.Minute))
	if err != ErrTooManyAttempts {
		t.Errorf("err = %v, want ErrTooManyAttempts", err)
	}
}

func TestCheckCode(t *testing.T) {
	now := time.Now().UTC()
	iss, err := PlanIssue(secret, model.OTP{}, now)
	if err != nil {
		t.Fatal(err)
	}
	state := stateFromIssue(iss)
	correct := strconv.Itoa(iss.Code)

	t.Run("first verification", func(t *testing.T) {
		res, err := CheckCode(secret, state, correct, false, now.Add(time.Minute))
		if err != nil || res != FirstVerification {
			t.Errorf("got %v/%v, want FirstVerification", res, err)
		}
	})
	t.Run("login verification", func(t *testing.T) {
		res, err := CheckCode(secret, state, correct, true, now.Add(time.Minute))
		if err != nil || res != Verified {
			t.Errorf("got %v/%v, want Verified", res, err)
		}
	})
	t.Run("wrong code", func(t *testing.T) {
		wrong := "000000"
		if wrong == correct {
			wrong = "000001"
		}
		res, err := CheckCode(secret, state, wrong, false, now.Add(time.Minute))
		if err != nil || res != Invalid {
			t.Errorf("got %v/%v, want Invalid", res, err)
		}
	})
	t.Run("expired code", func(t *testing.T) {
		res, err := CheckCode(secret, state, correct, false, state.ExpiresAt.Time.Add(time.Second))
		if err != nil || res != Invalid {
			t.Errorf("got %v/%v, want Invalid", res, err)
		}
	})
	t.Run("no code stored", func(t *testing.T) {
		res, err := CheckCode(secret, model.OTP{}, correct, false, now)
		if err != nil || res != Invalid {
			t.Errorf("got %v/%v, want Invalid", res, err)
		}
	})
	t.Run("attempts spent", func(t *testing.T) {
		spent := state
		spent.Attempts = 0
		res, err := CheckCode(secret, spent, correct, false, now.Add(time.Minute))
		if err != nil || res != Exhausted {
			t.Errorf("got %v/%v, want Exhausted", res, err)
		}
	})
}

// Ten wrong submissions drain the attempts budget; the correct code is then
// refused even though it has not expired.
func TestAttemptExhaustionScenario(t *testing.T) {
	now := time.Now().UTC()
	iss, err := PlanIssue(secret, model.OTP{}, now)
	if err != nil {
		t.Fatal(err)
	}
	state := stateFromIssue(iss)
	correct := strconv.Itoa(iss.Code)
	wrong := "000000"
	if wrong == correct {
		wrong = "000001"
	}

	at := now.Add(time.Second)
	for i := 0; i < config.OTPAttempts; i++ {
		res, err := CheckCode(secret, state, wrong, false, at)
		if err != nil || res != Invalid {
			t.Fatalf("attempt %d: got %v/%v, want Invalid", i, res, err)
		}
		state.Attempts-- // what SpendOTPAttempt would persist
	}
	res, err := CheckCode(secret, state, correct, false, at)
	if err != nil || res != Exhausted {
		t.Errorf("got %v/%v, want Exhausted after spending all attempts", res, err)
	}
}
