package domain

import (
	"context"
	"errors"
)

// Store-level sentinel errors. Repository implementations translate their
// driver-specific failures into these before returning.
var (
	// ErrNotFound signals that no record matched the lookup.
	ErrNotFound = errors.New("record not found")

	// ErrConflict signals that a conditional insert lost against an existing
	// record (unique-index violation). Callers may retry their resolution once;
	// the winning record will then be visible.
	ErrConflict = errors.New("record already exists")
)

// UserRepository is the user-store contract consumed by the broker. Uniqueness
// of email and of (provider, provider id) is enforced by the store itself:
// CreateIfAbsent must fail with ErrConflict instead of writing a duplicate.
type UserRepository interface {
	// FindByUserID returns the user with the given id, or ErrNotFound.
	FindByUserID(ctx context.Context, userID string) (*User, error)

	// FindByEmail returns the user owning the email, or ErrNotFound.
	FindByEmail(ctx context.Context, email string) (*User, error)

	// FindByProvider returns the user linked to (provider, providerID), or
	// ErrNotFound.
	FindByProvider(ctx context.Context, provider, providerID string) (*User, error)

	// FindByPoolIdentityID returns the user whose federated identity carries
	// the given pool identity id, or ErrNotFound.
	FindByPoolIdentityID(ctx context.Context, identityID string) (*User, error)

	// CreateIfAbsent inserts the user, failing with ErrConflict when another
	// record already holds the same id, email, or provider link.
	CreateIfAbsent(ctx context.Context, user *User) error

	// Update replaces the stored record for user.UserID.
	Update(ctx context.Context, user *User) error
}

// RateLimiter is the per-identity throttling capability consumed by the
// coordinator. Implementations live outside the core (e.g. a Redis fixed
// window); a nil limiter means no throttling.
type RateLimiter interface {
	// Allow reports whether the identity behind key may proceed.
	Allow(ctx context.Context, key string) (bool, error)
}
