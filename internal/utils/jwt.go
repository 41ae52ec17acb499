package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
)

// Sentinel errors returned by ParseToken.  Handlers map them onto the
// AUTH_MISSING / AUTH_EXPIRED / AUTH_INVALID responses.
var (
	ErrTokenMissing = errors.New("token missing")
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

// Three token kinds exist, each signed with its own secret:
//
//   init    – claims {sub}; issued once right after a first-time OTP
//             verification so the user can complete signup without another
//             code.  No server-side state.
//   access  – claims {sub, role}; short-lived, validated statelessly.
//   refresh – claims {sub, role}; long-lived.  On top of the signature the
//             presented token must equal the single value stored on the user
//             row, which is what makes logout and rotation effective.

// NewInitToken builds and signs an HS256 JWT carrying only the user ID.
func NewInitToken(secret string, userID uint64, ttlDays int) (string, error) {
	return signToken(secret, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().UTC().Add(time.Duration(ttlDays) * 24 * time.Hour).Unix(),
		"iat": time.Now().UTC().Unix(),
	})
}

// NewAccessToken builds and signs a short-lived HS256 JWT with the user ID
// and role tier.
func NewAccessToken(secret string, userID uint64, role int, ttlMin int) (string, error) {
	return signToken(secret, jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"exp":  time.Now().UTC().Add(time.Duration(ttlMin) * time.Minute).Unix(),
		"iat":  time.Now().UTC().Unix(),
	})
}

// NewRefreshToken builds and signs a long-lived HS256 JWT with the user ID
// and role tier.  The caller persists it into the user's single refresh
// token slot, invalidating whatever token was stored there before.
func NewRefreshToken(secret string, userID uint64, role int, ttlDays int) (string, error) {
	return signToken(secret, jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"exp":  time.Now().UTC().Add(time.Duration(ttlDays) * 24 * time.Hour).Unix(),
		"iat":  time.Now().UTC().Unix(),
	})
}

func signToken(secret string, claims jwt.MapClaims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(secret))
}

// ParseToken validates raw against secret and extracts the subject and role
// claims.  Tokens without a role claim (init tokens) yield role 0.  The
// returned error is one of the sentinel values above.
func ParseToken(secret, raw string) (userID uint64, role int, err error) {
	if raw == "" {
		return 0, 0, ErrTokenMissing
	}
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, 0, ErrTokenExpired
		}
		return 0, 0, ErrTokenInvalid
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok || !tok.Valid {
		return 0, 0, ErrTokenInvalid
	}
	sub, ok := claims["sub"].(float64)
	if !ok || sub <= 0 {
		return 0, 0, ErrTokenInvalid
	}
	if r, ok := claims["role"].(float64); ok {
		role = int(r)
	}
	return uint64(sub), role, nil
}
