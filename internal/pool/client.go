// Package pool talks to the managed user-pool/identity-pool system: identity
// resolution for federated logins, the native refresh grant, access-token
// introspection, and the minting of locally decodable session tokens.
package pool

import (
	"context"
	"errors"
	"time"

	"github.com/reelrooms/identity/domain"
)

// ErrAlreadyRegistered is returned by RegisterFederatedUser when the pool
// already knows the identity. Resolution treats it as success.
var ErrAlreadyRegistered = errors.New("federated user already registered with the pool")

// Credentials are the temporary credentials the pool scopes to one resolved
// identity.
type Credentials struct {
	AccessKeyID  string    `json:"access_key_id"`
	SecretKey    string    `json:"secret_key"`
	SessionToken string    `json:"session_token"`
	Expiration   time.Time `json:"expiration"`
}

// PoolUser is the pool's view of an authenticated user, as returned by
// access-token introspection.
type PoolUser struct {
	Username   string            `json:"username"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Client is the identity-pool federation endpoint. Implementations classify
// their transport failures into the broker error taxonomy before returning;
// only the sentinels above cross this boundary unclassified.
type Client interface {
	// ResolveIdentity exchanges an IdP login token for the pool's opaque
	// identity id.
	ResolveIdentity(ctx context.Context, poolID, providerName, loginToken string) (string, error)

	// ResolveCredentials obtains temporary credentials for a resolved identity,
	// presenting the same login token.
	ResolveCredentials(ctx context.Context, identityID, providerName, loginToken string) (*Credentials, error)

	// RefreshByGrant runs the pool's native refresh-token grant.
	RefreshByGrant(ctx context.Context, poolID, clientID, refreshToken string) (*domain.PoolTokenSet, error)

	// IntrospectAccessToken verifies a pool-issued access token and returns the
	// pool user it belongs to.
	IntrospectAccessToken(ctx context.Context, accessToken string) (*PoolUser, error)

	// RegisterFederatedUser records the user in the pool's own federated-user
	// directory. Returns ErrAlreadyRegistered when the pool already has it.
	RegisterFederatedUser(ctx context.Context, poolID string, user *domain.User) error
}
