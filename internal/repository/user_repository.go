package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/zealicon/zealicon-backend/internal/model"
	"github.com/zealicon/zealicon-backend/internal/otp"
)

// UserRepo persists identity records. The otp_* columns, refresh_token,
// order_id and zeal_id are the shared mutable state of the auth and payment
// flows, so every transition here is a single conditional UPDATE rather
// than a read followed by a write.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = `id,name,email,phone,id_card_url,id_card_public_id,photo_url,photo_public_id,
	verified,otp_value,otp_expires_at,otp_tries,otp_attempts,order_id,zeal_id,role,refresh_token`

func scanUser(row *sql.Row) (model.User, error) {
	var u model.User
	var idCardURL, idCardID, photoURL, photoID sql.NullString
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &idCardURL, &idCardID, &photoURL, &photoID,
		&u.Verified, &u.OTP.Value, &u.OTP.ExpiresAt, &u.OTP.Tries, &u.OTP.Attempts,
		&u.OrderID, &u.ZealID, &u.Role, &u.RefreshToken)
	if err != nil {
		return model.User{}, err
	}
	u.IDCard = model.Image{SecureURL: idCardURL.String, PublicID: idCardID.String}
	u.Photo = model.Image{SecureURL: photoURL.String, PublicID: photoID.String}
	return u, nil
}

// CreateUnverified inserts a bare identity row for an email. Returns
// ErrEmailExists when the email is already registered.
func (r *UserRepo) CreateUnverified(ctx context.Context, email string) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, verified, otp_tries, otp_attempts, role) VALUES (?,0,0,0,0)",
		email)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// GetByZealID fetches a user by zeal id.
func (r *UserRepo) GetByZealID(ctx context.Context, zealID string) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE zeal_id=? LIMIT 1", zealID))
}

// StoreOTP writes a planned issuance onto the user row. The update is
// conditioned on the previously observed expiration so that two racing
// issue calls cannot both apply: the loser matches zero rows and reports
// applied=false, at which point the handler re-reads and retries.
func (r *UserRepo) StoreOTP(ctx context.Context, userID uint64, prevExpiresAt sql.NullTime, iss otp.Issue) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET otp_value=?, otp_expires_at=?, otp_tries=?, otp_attempts=?
		 WHERE id=? AND otp_expires_at <=> ?`,
		iss.Encrypted, iss.ExpiresAt.UTC(), iss.Tries, iss.Attempts,
		userID, nullTimeArg(prevExpiresAt))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SpendOTPAttempt decrements the attempts counter after a mismatched code.
// Guarded so a depleted or expired code is never decremented further.
func (r *UserRepo) SpendOTPAttempt(ctx context.Context, userID uint64, now time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET otp_attempts = otp_attempts - 1 WHERE id=? AND otp_attempts > 0 AND otp_expires_at > ?",
		userID, now.UTC())
	return err
}

// SettleOTPSuccess consumes the current code after a correct submission:
// verified is set, the stored value cleared, both counters reset to their
// maximums and the expiration collapsed to now (codes are single use).
// The expiry guard makes the reset a no-op if the code lapsed mid-flight.
func (r *UserRepo) SettleOTPSuccess(ctx context.Context, userID uint64, tries, attempts int, now time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET verified=1, otp_value=NULL, otp_expires_at=?, otp_tries=?, otp_attempts=?
		 WHERE id=? AND otp_expires_at > ?`,
		now.UTC(), tries, attempts, userID, now.UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CompleteSignup fills the profile fields of a verified identity. Matched
// is false when the user is unknown or not yet verified.
func (r *UserRepo) CompleteSignup(ctx context.Context, userID uint64, name string, phone int64, idCard, photo model.Image) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET name=?, phone=?, id_card_url=?, id_card_public_id=?, photo_url=?, photo_public_id=?
		 WHERE id=? AND verified=1`,
		name, phone, idCard.SecureURL, idCard.PublicID, photo.SecureURL, photo.PublicID, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetRefreshToken stores the single currently valid refresh token for a
// user, invalidating whatever was there before.
func (r *UserRepo) SetRefreshToken(ctx context.Context, userID uint64, token string) error {
	_, err := r.DB.ExecContext(ctx, "UPDATE users SET refresh_token=? WHERE id=?", token, userID)
	return err
}

// ClearRefreshToken empties the refresh token slot (logout).
func (r *UserRepo) ClearRefreshToken(ctx context.Context, userID uint64) error {
	_, err := r.DB.ExecContext(ctx, "UPDATE users SET refresh_token=NULL WHERE id=?", userID)
	return err
}

// RefreshTokenMatches reports whether the presented token is exactly the
// stored one, returning the user's current role. A signature-valid token
// that was superseded by a newer login fails here.
func (r *UserRepo) RefreshTokenMatches(ctx context.Context, userID uint64, token string) (int, bool, error) {
	var role int
	err := r.DB.QueryRowContext(ctx,
		"SELECT role FROM users WHERE id=? AND refresh_token=? LIMIT 1",
		userID, token).Scan(&role)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return role, true, nil
}

// SetOrderID ties the registration-fee gateway order to the user.
func (r *UserRepo) SetOrderID(ctx context.Context, userID uint64, orderID string) error {
	_, err := r.DB.ExecContext(ctx, "UPDATE users SET order_id=? WHERE id=?", orderID, userID)
	return err
}

// FindByOrderID resolves the user holding a registration order id.
func (r *UserRepo) FindByOrderID(ctx context.Context, orderID string) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE order_id=? LIMIT 1", orderID))
}

// ClaimZealID assigns a zeal id if and only if none is set yet. This is the
// idempotent registration-payment transition: of the webhook and the client
// verification call, whichever lands first matches the row; the other sees
// applied=false and no-ops. A duplicate-key error means the time-derived id
// collided with another user's and the caller should regenerate.
func (r *UserRepo) ClaimZealID(ctx context.Context, userID uint64, zealID string) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET zeal_id=? WHERE id=? AND zeal_id IS NULL",
		zealID, userID)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return false, ErrZealIDTaken
		}
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// nullTimeArg converts a NullTime into a driver-friendly argument for the
// null-safe <=> comparison.
func nullTimeArg(t sql.NullTime) interface{} {
	if !t.Valid {
		return nil
	}
	return t.Time.UTC()
}
