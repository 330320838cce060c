package federation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelrooms/identity/domain"
	autherrors "github.com/reelrooms/identity/errors"
	"github.com/reelrooms/identity/internal/pool"
	"github.com/reelrooms/identity/log"
)

func federatedUser(poolIdentityID string) *domain.User {
	return &domain.User{
		UserID: "google_g-123456789",
		Email:  "alice@example.com",
		FederatedIdentity: &domain.FederatedIdentity{
			Provider:   "google",
			ProviderID: "g-123456789",
			Attributes: map[string]string{domain.AttrPoolIdentityID: poolIdentityID},
		},
	}
}

func newTestSessionService(t *testing.T, repo domain.UserRepository, client pool.Client) *SessionService {
	t.Helper()
	s := NewSessionService(repo, client, log.NewNop())
	t.Cleanup(s.Stop)
	return s
}

func TestGetUserFromFederatedToken(t *testing.T) {
	repo := newMemoryUserRepo(federatedUser("pid-1"))
	s := newTestSessionService(t, repo, &stubPoolClient{})

	token := pool.MintToken(pool.KindAccess, "pid-1", time.Now())
	user, err := s.GetUserFromToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "google_g-123456789", user.UserID)
}

func TestGetUserFromPoolToken(t *testing.T) {
	repo := newMemoryUserRepo(&domain.User{UserID: "u1", Email: "bob@example.com"})
	client := &stubPoolClient{introspectUser: &pool.PoolUser{Username: "u1"}}
	s := newTestSessionService(t, repo, client)

	user, err := s.GetUserFromToken(context.Background(), "opaque-pool-access-token")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.UserID)
}

func TestGetUserFromTokenFailures(t *testing.T) {
	fresh := time.Now()
	tests := []struct {
		name     string
		token    string
		wantCode autherrors.Code
	}{
		{
			name:     "empty token",
			token:    "",
			wantCode: autherrors.CodeTokenMissing,
		},
		{
			name:     "refresh token used as access token",
			token:    pool.MintToken(pool.KindRefresh, "pid-1", fresh),
			wantCode: autherrors.CodeTokenMalformed,
		},
		{
			name:     "id token used as access token",
			token:    pool.MintToken(pool.KindID, "pid-1", fresh),
			wantCode: autherrors.CodeTokenMalformed,
		},
		{
			name:     "expired federated token",
			token:    pool.MintToken(pool.KindAccess, "pid-1", fresh.Add(-2*time.Hour)),
			wantCode: autherrors.CodeTokenExpired,
		},
		{
			name:     "unknown identity",
			token:    pool.MintToken(pool.KindAccess, "pid-unknown", fresh),
			wantCode: autherrors.CodeUserNotFound,
		},
		{
			name:     "pool rejects introspection",
			token:    "opaque-pool-access-token",
			wantCode: autherrors.CodeIdentityPoolUnauthorized,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemoryUserRepo(federatedUser("pid-1"))
			s := newTestSessionService(t, repo, &stubPoolClient{})

			_, err := s.GetUserFromToken(context.Background(), tt.token)
			ae, ok := autherrors.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantCode, ae.Code)
			assert.Equal(t, autherrors.ContextSession, ae.Context)
		})
	}
}

func TestGetUserFromTokenUsesCache(t *testing.T) {
	repo := newMemoryUserRepo(federatedUser("pid-1"))
	s := newTestSessionService(t, repo, &stubPoolClient{})

	token := pool.MintToken(pool.KindAccess, "pid-1", time.Now())
	_, err := s.GetUserFromToken(context.Background(), token)
	require.NoError(t, err)
	_, err = s.GetUserFromToken(context.Background(), token)
	require.NoError(t, err)

	assert.Equal(t, 1, repo.poolIDLookups, "second resolution is served from cache")
}

func TestGetUserFromTokenDoesNotCacheFailures(t *testing.T) {
	repo := newMemoryUserRepo()
	s := newTestSessionService(t, repo, &stubPoolClient{})

	token := pool.MintToken(pool.KindAccess, "pid-unknown", time.Now())
	_, err := s.GetUserFromToken(context.Background(), token)
	require.Error(t, err)
	_, err = s.GetUserFromToken(context.Background(), token)
	require.Error(t, err)

	assert.Equal(t, 2, repo.poolIDLookups)
}

func TestValidateAccessTokenDegradesToNil(t *testing.T) {
	repo := newMemoryUserRepo(federatedUser("pid-1"))
	s := newTestSessionService(t, repo, &stubPoolClient{})

	assert.Nil(t, s.ValidateAccessToken(context.Background(), ""))
	assert.Nil(t, s.ValidateAccessToken(context.Background(), pool.MintToken(pool.KindAccess, "pid-unknown", time.Now())))
	assert.Nil(t, s.ValidateAccessToken(context.Background(), "opaque-pool-access-token"))

	user := s.ValidateAccessToken(context.Background(), pool.MintToken(pool.KindAccess, "pid-1", time.Now()))
	require.NotNil(t, user)
	assert.Equal(t, "google_g-123456789", user.UserID)
}
