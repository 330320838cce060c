package federation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/reelrooms/identity/domain"
	autherrors "github.com/reelrooms/identity/errors"
	"github.com/reelrooms/identity/internal/pool"
	"github.com/reelrooms/identity/log"
)

// validationCacheTTL keeps freshly validated tokens hot for middleware-speed
// lookups without holding users long enough to mask revocation.
const validationCacheTTL = 60 * time.Second

// SessionService resolves users from session tokens. Federated opaque tokens
// are decoded locally; everything else goes through pool introspection.
type SessionService struct {
	users  domain.UserRepository
	pool   pool.Client
	cache  *ttlcache.Cache[string, *domain.User]
	logger log.Logger

	now func() time.Time
}

// NewSessionService creates a SessionService and starts its cache janitor.
// Call Stop on shutdown.
func NewSessionService(users domain.UserRepository, poolClient pool.Client, logger log.Logger) *SessionService {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *domain.User](validationCacheTTL),
		ttlcache.WithDisableTouchOnHit[string, *domain.User](),
	)
	go cache.Start()

	return &SessionService{
		users:  users,
		pool:   poolClient,
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}
}

// Stop shuts down the validation cache.
func (s *SessionService) Stop() {
	s.cache.Stop()
}

// GetUserFromToken resolves the user behind an access token, failing with a
// classified error. Tokens in the federated opaque shape are decoded without a
// pool round-trip.
func (s *SessionService) GetUserFromToken(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, autherrors.NewTokenMissing().WithContext(autherrors.ContextSession)
	}

	cacheKey := hashToken(token)
	if item := s.cache.Get(cacheKey); item != nil {
		return item.Value(), nil
	}

	var user *domain.User
	var err error
	if pool.IsFederatedShape(token) {
		user, err = s.userFromFederatedToken(ctx, token)
	} else {
		user, err = s.userFromPoolToken(ctx, token)
	}
	if err != nil {
		return nil, err
	}

	s.cache.Set(cacheKey, user, ttlcache.DefaultTTL)
	return user, nil
}

// ValidateAccessToken degrades every failure to nil. This is the one place the
// broker intentionally swallows classification: callers use it as a boolean
// gate, not as a diagnostic.
func (s *SessionService) ValidateAccessToken(ctx context.Context, token string) *domain.User {
	user, err := s.GetUserFromToken(ctx, token)
	if err != nil {
		s.logger.Debug(ctx, "access token validation failed", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}
	return user
}

func (s *SessionService) userFromFederatedToken(ctx context.Context, token string) (*domain.User, error) {
	decoded, err := pool.DecodeToken(token)
	if err != nil {
		return nil, autherrors.NewTokenMalformed("token is not a valid federated token").
			WithCause(err).
			WithContext(autherrors.ContextSession)
	}
	if decoded.Kind != pool.KindAccess {
		return nil, autherrors.NewTokenMalformed("only access tokens authenticate requests").
			WithContext(autherrors.ContextSession)
	}
	if decoded.Expired(s.now()) {
		return nil, autherrors.NewTokenExpired().WithContext(autherrors.ContextSession)
	}

	user, err := s.users.FindByPoolIdentityID(ctx, decoded.IdentityID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, autherrors.NewUserNotFound().WithContext(autherrors.ContextSession)
		}
		return nil, autherrors.NewServiceUnavailable(err).WithContext(autherrors.ContextSession)
	}
	return user, nil
}

func (s *SessionService) userFromPoolToken(ctx context.Context, token string) (*domain.User, error) {
	poolUser, err := s.pool.IntrospectAccessToken(ctx, token)
	if err != nil {
		return nil, autherrors.From(err, autherrors.ContextSession)
	}

	user, err := s.users.FindByUserID(ctx, poolUser.Username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, autherrors.NewUserNotFound().WithContext(autherrors.ContextSession)
		}
		return nil, autherrors.NewServiceUnavailable(err).WithContext(autherrors.ContextSession)
	}
	return user, nil
}

// hashToken shortens tokens into fixed-size cache keys so raw token material
// never sits in the cache.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
