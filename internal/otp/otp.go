// Package otp implements the per-identity one-time-code state machine:
// issuance, resend throttling, verification and try/attempt exhaustion.
//
// The functions here are pure decisions over the persisted OTP state; the
// repository layer applies each decision as a single conditional UPDATE so
// that two racing calls for the same identity cannot corrupt the counters.
package otp

import (
	"errors"
	"strconv"
	"time"

	"github.com/zealicon/zealicon-backend/internal/config"
	"github.com/zealicon/zealicon-backend/internal/model"
	"github.com/zealicon/zealicon-backend/internal/utils"
)

var (
	// ErrTooManyAttempts means the tries or attempts budget is depleted.
	// Terminal for this code lifecycle; support has to intervene.
	ErrTooManyAttempts = errors.New("too many attempts")
	// ErrTooManyRequests means the active code was sent too recently.
	ErrTooManyRequests = errors.New("too many requests")
)

// Issue describes the OTP state to persist and the code to mail out.
type Issue struct {
	Code      int       // plain code to send to the user
	Encrypted string    // encrypted value to store
	ExpiresAt time.Time // absolute expiry of the code
	Tries     int       // remaining resend cycles to store
	Attempts  int       // remaining verification attempts to store
	Reused    bool      // true when an active code was re-sent unchanged
}

// PlanIssue decides what code an identity should be sent.  prev is the OTP
// state currently stored for the identity (zero value when none exists).
//
// Rules:
//   - a depleted tries or attempts counter refuses issuance outright;
//   - an active code re-requested within OTPResendSec of its original send
//     is throttled;
//   - an active code outside the throttle window is re-sent verbatim, with
//     counters untouched;
//   - an expired code (tries remaining) and a missing code both produce a
//     fresh random code with attempts reset to max; only the expired case
//     costs one try.
func PlanIssue(secret string, prev model.OTP, now time.Time) (Issue, error) {
	code, err := utils.RandomNDigits(6)
	if err != nil {
		return Issue{}, err
	}
	out := Issue{
		Code:      code,
		ExpiresAt: now.Add(config.OTPExpiresMin * time.Minute),
		Tries:     config.OTPTries,
		Attempts:  config.OTPAttempts,
	}

	if prev.Value.Valid && prev.ExpiresAt.Valid {
		if prev.Tries <= 0 || prev.Attempts <= 0 {
			return Issue{}, ErrTooManyAttempts
		}
		// The code was sent at expiration - OTPExpiresMin; it may be
		// re-sent only after OTPResendSec from that instant.
		sentAt := prev.ExpiresAt.Time.Add(-config.OTPExpiresMin * time.Minute)
		if now.Before(sentAt.Add(config.OTPResendSec * time.Second)) {
			return Issue{}, ErrTooManyRequests
		}
		if now.Before(prev.ExpiresAt.Time) {
			plain, err := utils.Decrypt(secret, prev.Value.String)
			if err != nil {
				return Issue{}, err
			}
			reused, err := strconv.Atoi(plain)
			if err != nil {
				return Issue{}, err
			}
			out.Code = reused
			out.Encrypted = prev.Value.String
			out.ExpiresAt = prev.ExpiresAt.Time
			out.Tries = prev.Tries
			out.Attempts = prev.Attempts
			out.Reused = true
			return out, nil
		}
		out.Tries = prev.Tries - 1
	}

	enc, err := utils.Encrypt(secret, strconv.Itoa(out.Code))
	if err != nil {
		return Issue{}, err
	}
	out.Encrypted = enc
	return out, nil
}

// VerifyResult classifies the outcome of a code check.
type VerifyResult int

const (
	// Invalid: no unexpired code exists, or the submitted code mismatched.
	Invalid VerifyResult = iota
	// Exhausted: the attempts budget for the current code is spent.
	Exhausted
	// FirstVerification: correct code for a previously unverified identity.
	FirstVerification
	// Verified: correct code for an already verified identity.
	Verified
)

// CheckCode compares a submitted code against the stored OTP state.
// wasVerified is the identity's verified flag before this check; it decides
// between FirstVerification and Verified on success.  A mismatch must be
// followed by an atomic attempts decrement, a success by a state reset
// (counters to max, expiration to now) — both applied by the caller.
func CheckCode(secret string, cur model.OTP, submitted string, wasVerified bool, now time.Time) (VerifyResult, error) {
	if !cur.Active(now) {
		return Invalid, nil
	}
	if cur.Attempts <= 0 {
		return Exhausted, nil
	}
	plain, err := utils.Decrypt(secret, cur.Value.String)
	if err != nil {
		return Invalid, err
	}
	if plain != submitted {
		return Invalid, nil
	}
	if wasVerified {
		return Verified, nil
	}
	return FirstVerification, nil
}
