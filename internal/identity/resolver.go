// Package identity materializes local user records from verified IdP claims:
// lookup, linking, first-time creation, and conflict detection.
package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/reelrooms/identity/config"
	"github.com/reelrooms/identity/domain"
	autherrors "github.com/reelrooms/identity/errors"
	"github.com/reelrooms/identity/internal/pool"
	"github.com/reelrooms/identity/log"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

const (
	minSubjectLen = 10
	maxSubjectLen = 50
	maxNameLen    = 256
)

// Resolver looks up, links, or creates the local user for a verified identity.
type Resolver struct {
	users  domain.UserRepository
	pool   pool.Client
	cfg    *config.BrokerConfig
	logger log.Logger

	now func() time.Time
}

// NewResolver creates a Resolver.
func NewResolver(users domain.UserRepository, poolClient pool.Client, cfg *config.BrokerConfig, logger log.Logger) *Resolver {
	return &Resolver{
		users:  users,
		pool:   poolClient,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// ResolveOrCreate returns the local user for the claims, creating or linking a
// record as needed, and reports whether the user is new. poolIdentityID is the
// pool-issued identity id for this session; it is persisted on the federated
// identity so locally minted tokens can later be resolved without the pool.
//
// The lookup/create sequence is not atomic; the store's conditional insert is
// the arbiter. A lost race surfaces as domain.ErrConflict, which callers may
// retry once.
func (r *Resolver) ResolveOrCreate(ctx context.Context, claims domain.IdentityClaims, poolIdentityID string) (*domain.User, bool, error) {
	if err := validateClaims(claims); err != nil {
		return nil, false, err
	}

	byEmail, err := r.findUser(ctx, func() (*domain.User, error) {
		return r.users.FindByEmail(ctx, claims.Email)
	})
	if err != nil {
		return nil, false, err
	}

	byProvider, err := r.findUser(ctx, func() (*domain.User, error) {
		return r.users.FindByProvider(ctx, domain.ProviderGoogle, claims.Subject)
	})
	if err != nil {
		return nil, false, err
	}

	// Two different records partially matching one identity can never be
	// merged safely. Fail closed, write nothing.
	if byEmail != nil && byProvider != nil && byEmail.UserID != byProvider.UserID {
		r.logger.Warn(ctx, "identity conflict detected", map[string]interface{}{
			"email_user_id":    byEmail.UserID,
			"provider_user_id": byProvider.UserID,
		})
		return nil, false, autherrors.NewIdentityConflict().WithContext(autherrors.ContextResolution)
	}

	switch {
	case byProvider != nil:
		r.syncProfile(byProvider, claims, poolIdentityID)
		if err := r.users.Update(ctx, byProvider); err != nil {
			return nil, false, autherrors.NewServiceUnavailable(err).WithContext(autherrors.ContextResolution)
		}
		if err := r.registerWithPool(ctx, byProvider); err != nil {
			return nil, false, err
		}
		return byProvider, false, nil

	case byEmail != nil:
		// Defense against a stale lookup result: the record we are about to
		// link must actually own the claimed email.
		if byEmail.Email != claims.Email {
			return nil, false, autherrors.NewInternal(
				fmt.Errorf("email lookup returned user %s with mismatched email", byEmail.UserID)).
				WithContext(autherrors.ContextResolution)
		}
		byEmail.FederatedIdentity = &domain.FederatedIdentity{
			Provider:   domain.ProviderGoogle,
			ProviderID: claims.Subject,
		}
		byEmail.AddAuthProvider(domain.ProviderGoogle)
		r.syncProfile(byEmail, claims, poolIdentityID)
		if err := r.users.Update(ctx, byEmail); err != nil {
			return nil, false, autherrors.NewServiceUnavailable(err).WithContext(autherrors.ContextResolution)
		}
		if err := r.registerWithPool(ctx, byEmail); err != nil {
			return nil, false, err
		}
		r.logger.Info(ctx, "linked federation to existing user", map[string]interface{}{
			"user_id": byEmail.UserID,
		})
		return byEmail, false, nil

	default:
		now := r.now().UTC()
		user := &domain.User{
			UserID:        domain.FederatedUserID(domain.ProviderGoogle, claims.Subject),
			Email:         claims.Email,
			EmailVerified: claims.EmailVerified,
			AuthProviders: []string{domain.ProviderGoogle},
			FederatedIdentity: &domain.FederatedIdentity{
				Provider:   domain.ProviderGoogle,
				ProviderID: claims.Subject,
			},
			CreatedAt: now,
		}
		r.syncProfile(user, claims, poolIdentityID)

		if err := r.users.CreateIfAbsent(ctx, user); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				// Lost the create race; the caller re-runs resolution and will
				// observe the winning record.
				return nil, false, err
			}
			return nil, false, autherrors.NewServiceUnavailable(err).WithContext(autherrors.ContextResolution)
		}
		if err := r.registerWithPool(ctx, user); err != nil {
			return nil, false, err
		}
		r.logger.Info(ctx, "created user via federation", map[string]interface{}{
			"user_id": user.UserID,
		})
		return user, true, nil
	}
}

// syncProfile refreshes the user's profile fields from the claims.
func (r *Resolver) syncProfile(user *domain.User, claims domain.IdentityClaims, poolIdentityID string) {
	now := r.now().UTC()
	if claims.Name != "" {
		user.DisplayName = claims.Name
	}
	if claims.Picture != "" {
		user.AvatarURL = claims.Picture
	}
	user.EmailVerified = claims.EmailVerified
	user.LastSyncAt = now
	user.UpdatedAt = now

	if user.FederatedIdentity != nil {
		if user.FederatedIdentity.Attributes == nil {
			user.FederatedIdentity.Attributes = map[string]string{}
		}
		attrs := user.FederatedIdentity.Attributes
		setIfPresent(attrs, "given_name", claims.GivenName)
		setIfPresent(attrs, "family_name", claims.FamilyName)
		setIfPresent(attrs, "locale", claims.Locale)
		setIfPresent(attrs, "hosted_domain", claims.HostedDomain)
		setIfPresent(attrs, domain.AttrPoolIdentityID, poolIdentityID)
	}
}

// registerWithPool records the identity in the pool's federated-user
// directory. "Already exists" is success: registration is idempotent.
func (r *Resolver) registerWithPool(ctx context.Context, user *domain.User) error {
	err := r.pool.RegisterFederatedUser(ctx, r.cfg.IdentityPoolID, user)
	if err == nil || errors.Is(err, pool.ErrAlreadyRegistered) {
		return nil
	}
	return autherrors.From(err, autherrors.ContextResolution)
}

// findUser normalizes ErrNotFound to a nil user and classifies store failures.
func (r *Resolver) findUser(ctx context.Context, lookup func() (*domain.User, error)) (*domain.User, error) {
	user, err := lookup()
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, autherrors.NewServiceUnavailable(err).WithContext(autherrors.ContextResolution)
	}
	return user, nil
}

// validateClaims fails fast on malformed input, independent of network state.
func validateClaims(claims domain.IdentityClaims) error {
	if !emailPattern.MatchString(claims.Email) {
		return autherrors.NewInvalidClaims("claims carry a malformed email address").
			WithContext(autherrors.ContextResolution)
	}
	if n := len(claims.Subject); n < minSubjectLen || n > maxSubjectLen {
		return autherrors.NewInvalidClaims("subject length is out of bounds").
			WithContext(autherrors.ContextResolution)
	}
	if len(claims.Name) > maxNameLen {
		return autherrors.NewInvalidClaims("display name exceeds the length bound").
			WithContext(autherrors.ContextResolution)
	}
	return nil
}

func setIfPresent(attrs map[string]string, key, value string) {
	if value != "" {
		attrs[key] = value
	}
}
