package federation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelrooms/identity/config"
	"github.com/reelrooms/identity/domain"
	autherrors "github.com/reelrooms/identity/errors"
	"github.com/reelrooms/identity/internal/audit"
	"github.com/reelrooms/identity/internal/pool"
	"github.com/reelrooms/identity/log"
)

func newTestRefresher(client pool.Client, recorder audit.Recorder) *SessionRefresher {
	cfg := &config.BrokerConfig{
		FederationEnabled: true,
		IdentityPoolID:    "pool-1",
		PoolProviderName:  "accounts.google.com",
		PoolClientID:      "client-1",
	}
	exchanger := pool.NewExchanger(client, cfg, log.NewNop())
	return NewSessionRefresher(exchanger, recorder, log.NewNop())
}

func TestRefreshStandardPathWins(t *testing.T) {
	want := &domain.PoolTokenSet{
		AccessToken:  "pool-access",
		IDToken:      "pool-id",
		RefreshToken: "pool-refresh",
		ExpiresIn:    3600,
	}
	client := &stubPoolClient{refreshTokens: want}
	recorder := audit.NewMemoryRecorder()
	r := newTestRefresher(client, recorder)

	tokens, err := r.Refresh(context.Background(), "pool-refresh")
	require.NoError(t, err)
	assert.Equal(t, want, tokens)
	assert.Equal(t, 1, client.refreshCalls)

	events := recorder.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventSessionRefreshed, events[0].Type)
	assert.True(t, events[0].Success)
}

func TestRefreshFallsBackToFederatedPath(t *testing.T) {
	// The pool rejects the grant, but the token itself is a still-valid
	// locally minted refresh token.
	client := &stubPoolClient{refreshErr: autherrors.NewIdentityPoolUnauthorized()}
	r := newTestRefresher(client, audit.NewMemoryRecorder())

	refreshToken := pool.MintToken(pool.KindRefresh, "pid-1", time.Now().Add(-time.Minute))
	tokens, err := r.Refresh(context.Background(), refreshToken)
	require.NoError(t, err)
	require.True(t, tokens.Complete())

	decoded, err := pool.DecodeToken(tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "pid-1", decoded.IdentityID)

	assert.Equal(t, 1, client.refreshCalls, "standard path is always attempted first")
}

func TestRefreshStandardPathTriedFirstForFederatedTokens(t *testing.T) {
	want := &domain.PoolTokenSet{
		AccessToken:  "pool-access",
		IDToken:      "pool-id",
		RefreshToken: "pool-refresh",
		ExpiresIn:    3600,
	}
	client := &stubPoolClient{refreshTokens: want}
	r := newTestRefresher(client, audit.NewMemoryRecorder())

	// Even a federated-shaped token goes through the pool first; the shape is
	// never used to pre-route.
	refreshToken := pool.MintToken(pool.KindRefresh, "pid-1", time.Now())
	tokens, err := r.Refresh(context.Background(), refreshToken)
	require.NoError(t, err)
	assert.Equal(t, want, tokens)
	assert.Equal(t, 1, client.refreshCalls)
}

func TestRefreshSurfacesStandardErrorWhenBothPathsFail(t *testing.T) {
	client := &stubPoolClient{refreshErr: autherrors.NewIdentityPoolUnauthorized()}
	recorder := audit.NewMemoryRecorder()
	r := newTestRefresher(client, recorder)

	_, err := r.Refresh(context.Background(), "neither-pool-nor-federated")
	ae, ok := autherrors.As(err)
	require.True(t, ok)
	assert.Equal(t, autherrors.CodeInvalidRefreshToken, ae.Code)
	assert.Equal(t, autherrors.ContextRefresh, ae.Context)

	events := recorder.Events()
	require.Len(t, events, 1)
	assert.False(t, events[0].Success)
	assert.Equal(t, string(autherrors.CodeInvalidRefreshToken), events[0].Error)
}

func TestRefreshExpiredFederatedTokenFailsBothPaths(t *testing.T) {
	client := &stubPoolClient{refreshErr: autherrors.NewServiceUnavailable(assert.AnError)}
	r := newTestRefresher(client, audit.NewMemoryRecorder())

	stale := pool.MintToken(pool.KindRefresh, "pid-1", time.Now().Add(-2*time.Hour))
	_, err := r.Refresh(context.Background(), stale)
	ae, ok := autherrors.As(err)
	require.True(t, ok)

	// The standard-path error is the one surfaced.
	assert.Equal(t, autherrors.CodeServiceUnavailable, ae.Code)
}
