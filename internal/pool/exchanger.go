package pool

import (
	"context"
	"errors"
	"time"

	"github.com/reelrooms/identity/config"
	"github.com/reelrooms/identity/domain"
	autherrors "github.com/reelrooms/identity/errors"
	"github.com/reelrooms/identity/log"
)

// Exchanger turns a verified IdP token into pool-issued session material and
// handles both refresh paths.
type Exchanger struct {
	client Client
	cfg    *config.BrokerConfig
	logger log.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewExchanger creates an Exchanger.
func NewExchanger(client Client, cfg *config.BrokerConfig, logger log.Logger) *Exchanger {
	return &Exchanger{
		client: client,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// ExchangeForPoolTokens exchanges a verified IdP token for a federated pool
// token set. The configuration gate runs before any network call.
func (e *Exchanger) ExchangeForPoolTokens(ctx context.Context, idpToken string) (*domain.PoolTokenSet, error) {
	if !e.cfg.IsFederationConfigured() {
		return nil, autherrors.NewNotConfigured("identity pool federation is not configured").
			WithContext(autherrors.ContextExchange)
	}

	identityID, err := e.client.ResolveIdentity(ctx, e.cfg.IdentityPoolID, e.cfg.PoolProviderName, idpToken)
	if err != nil {
		return nil, autherrors.From(err, autherrors.ContextExchange)
	}

	// The credentials themselves are not part of the broker's result; the call
	// completes the pool-side trust handshake for this identity.
	if _, err := e.client.ResolveCredentials(ctx, identityID, e.cfg.PoolProviderName, idpToken); err != nil {
		return nil, autherrors.From(err, autherrors.ContextExchange)
	}

	tokens := MintTokenSet(identityID, e.now())
	if !tokens.Complete() {
		return nil, autherrors.NewInternal(errors.New("minted token set is incomplete")).
			WithContext(autherrors.ContextExchange)
	}

	e.logger.Debug(ctx, "exchanged idp token for pool tokens", map[string]interface{}{
		"identity_id": identityID,
	})
	return tokens, nil
}

// RefreshStandard runs the pool's native refresh-token grant. Pool-reported
// authorization failures surface as an invalid/expired refresh token.
func (e *Exchanger) RefreshStandard(ctx context.Context, refreshToken string) (*domain.PoolTokenSet, error) {
	tokens, err := e.client.RefreshByGrant(ctx, e.cfg.IdentityPoolID, e.cfg.PoolClientID, refreshToken)
	if err != nil {
		if ae, ok := autherrors.As(err); ok && ae.Code == autherrors.CodeIdentityPoolUnauthorized {
			return nil, autherrors.NewInvalidRefreshToken().
				WithCause(err).
				WithContext(autherrors.ContextRefresh)
		}
		return nil, autherrors.From(err, autherrors.ContextRefresh)
	}
	if !tokens.Complete() {
		return nil, autherrors.NewServiceUnavailable(errors.New("pool returned an incomplete token set")).
			WithContext(autherrors.ContextRefresh)
	}
	return tokens, nil
}

// RefreshFederated recovers the identity id embedded in an opaque federated
// refresh token and mints a fresh token set. The IdP is not re-contacted; the
// validity window of the old token bounds how long this path stays open.
func (e *Exchanger) RefreshFederated(ctx context.Context, refreshToken string) (*domain.PoolTokenSet, error) {
	decoded, err := DecodeToken(refreshToken)
	if err != nil {
		return nil, autherrors.NewInvalidRefreshToken().
			WithCause(err).
			WithContext(autherrors.ContextRefresh)
	}
	if decoded.Kind != KindRefresh || decoded.Expired(e.now()) {
		return nil, autherrors.NewInvalidRefreshToken().
			WithContext(autherrors.ContextRefresh)
	}

	e.logger.Debug(ctx, "refreshing federated session locally", map[string]interface{}{
		"identity_id": decoded.IdentityID,
	})
	return MintTokenSet(decoded.IdentityID, e.now()), nil
}
