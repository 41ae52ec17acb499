package model

import (
	"database/sql"
	"time"
)

// Role tiers stored in users.role.  Higher tiers include the permissions
// of lower ones; middleware compares with >=.
const (
	RoleUser         = 0
	RoleSocietyAdmin = 1
	RoleAppAdmin     = 2
)

// OTP holds the one-time-code state embedded in a user row.  The code value
// is encrypted at rest (see utils.Encrypt).  Tries counts remaining resend
// cycles across code lifetimes; Attempts counts remaining verification
// attempts within the current lifetime.  Both only ever decrease until they
// are reset to their maximums on a fresh issue or a successful verification.
type OTP struct {
	Value     sql.NullString // users.otp_value (encrypted, nullable until first issue)
	ExpiresAt sql.NullTime   // users.otp_expires_at
	Tries     int            // users.otp_tries
	Attempts  int            // users.otp_attempts
}

// Active reports whether an unexpired code exists at the given instant.
func (o OTP) Active(now time.Time) bool {
	return o.Value.Valid && o.ExpiresAt.Valid && now.Before(o.ExpiresAt.Time)
}

// User mirrors the `users` table.  A row is created on the first OTP request
// (unverified), becomes verified on the first successful code check, gains
// profile fields on signup completion and gains a zeal_id only after a
// confirmed registration payment.  Rows are never deleted.
//
// Fields:
//  ID           – primary key identifier.
//  Name         – full name, set during signup completion.
//  Email        – unique email address (the OTP identity key).
//  Phone        – 10 digit phone number, set during signup completion.
//  IDCard/Photo – uploaded image references ({secure_url, public_id} pairs).
//  Verified     – true once any OTP verification has succeeded.
//  OTP          – embedded one-time-code state.
//  OrderID      – gateway order tied to the registration-fee payment.
//  ZealID       – final registration credential; written at most once.
//  Role         – integer tier (see Role* constants).
//  RefreshToken – the single currently valid refresh token, or NULL.
type User struct {
	ID           uint64         // users.id
	Name         sql.NullString // users.name
	Email        string         // users.email
	Phone        sql.NullInt64  // users.phone
	IDCard       Image          // users.id_card_url / users.id_card_public_id
	Photo        Image          // users.photo_url / users.photo_public_id
	Verified     bool           // users.verified
	OTP          OTP            // users.otp_*
	OrderID      sql.NullString // users.order_id
	ZealID       sql.NullString // users.zeal_id
	Role         int            // users.role
	RefreshToken sql.NullString // users.refresh_token
}

// Image is an uploaded object reference as returned by the image store.
// This backend only validates its shape (URL prefix and public-id prefix);
// it never uploads anything itself.
type Image struct {
	SecureURL string // https URL of the stored object
	PublicID  string // store-side identifier, prefixed with its directory
}
