package domain

import (
	"slices"
	"time"
)

// ProviderGoogle is the only external identity provider the broker currently
// federates with.
const ProviderGoogle = "google"

// AuthProviderEmail marks accounts that can also sign in with email/password
// through the pool's native flow.
const AuthProviderEmail = "email"

// FederatedIdentity links a local user to an external identity provider
// account.
type FederatedIdentity struct {
	Provider   string            `bson:"provider" json:"provider"`
	ProviderID string            `bson:"provider_id" json:"provider_id"`
	Attributes map[string]string `bson:"attributes,omitempty" json:"attributes,omitempty"`
}

// AttrPoolIdentityID is the FederatedIdentity attribute key under which the
// pool-issued identity id is persisted. Locally minted session tokens embed
// this id, so it is the join key between a decoded token and a user record.
const AttrPoolIdentityID = "identity_id"

// User is the local identity record. For first-time federated users the id is
// derived as "<provider>_<providerID>" and doubles as the pool-side username.
type User struct {
	UserID            string             `bson:"_id" json:"user_id"`
	Email             string             `bson:"email" json:"email"`
	DisplayName       string             `bson:"display_name,omitempty" json:"display_name,omitempty"`
	AvatarURL         string             `bson:"avatar_url,omitempty" json:"avatar_url,omitempty"`
	EmailVerified     bool               `bson:"email_verified" json:"email_verified"`
	AuthProviders     []string           `bson:"auth_providers" json:"auth_providers"`
	FederatedIdentity *FederatedIdentity `bson:"federated_identity,omitempty" json:"federated_identity,omitempty"`
	LastSyncAt        time.Time          `bson:"last_sync_at" json:"last_sync_at"`
	CreatedAt         time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt         time.Time          `bson:"updated_at" json:"updated_at"`
}

// HasAuthProvider reports whether the user can authenticate through the given
// provider.
func (u *User) HasAuthProvider(provider string) bool {
	return slices.Contains(u.AuthProviders, provider)
}

// AddAuthProvider records a provider, keeping the set free of duplicates.
func (u *User) AddAuthProvider(provider string) {
	if !u.HasAuthProvider(provider) {
		u.AuthProviders = append(u.AuthProviders, provider)
	}
}

// PoolIdentityID returns the pool identity id recorded for this user, or ""
// when the user has no federated identity yet.
func (u *User) PoolIdentityID() string {
	if u.FederatedIdentity == nil {
		return ""
	}
	return u.FederatedIdentity.Attributes[AttrPoolIdentityID]
}

// FederatedUserID derives the stable local user id for a first-time federated
// user.
func FederatedUserID(provider, providerID string) string {
	return provider + "_" + providerID
}
