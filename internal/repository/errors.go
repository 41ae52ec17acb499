// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers to distinguish between different failure scenarios. For
// example, ErrConflict signals that an operation cannot proceed due to
// current record state (enrollment window closed, stock too low), while
// ErrZealIDTaken tells the caller to regenerate and retry.
package repository

import "errors"

// ErrEmailExists is returned when creating a user whose email is already
// registered. Handlers should translate this into an HTTP 409 response.
var ErrEmailExists = errors.New("email already exists")

// ErrConflict is returned when an update cannot be performed because of
// conflicting state, such as confirming an order whose stock has run out.
// Handlers should translate this into an HTTP 409 response.
var ErrConflict = errors.New("conflict")

// ErrZealIDTaken is returned when the generated zeal id collides with an
// existing one. The id generator is time derived and can repeat within
// its resolution, so callers regenerate and retry.
var ErrZealIDTaken = errors.New("zeal id already taken")
