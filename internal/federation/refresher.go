package federation

import (
	"context"

	"github.com/reelrooms/identity/domain"
	autherrors "github.com/reelrooms/identity/errors"
	"github.com/reelrooms/identity/internal/audit"
	"github.com/reelrooms/identity/internal/pool"
	"github.com/reelrooms/identity/log"
)

// SessionRefresher refreshes an expiring session. It always tries the pool's
// standard refresh grant first and falls back to the federated local path;
// pre-classifying the token would risk misrouting ambiguous tokens, so the
// ordering is fixed rather than heuristic.
type SessionRefresher struct {
	exchanger *pool.Exchanger
	audit     audit.Recorder
	logger    log.Logger
}

// NewSessionRefresher creates a SessionRefresher.
func NewSessionRefresher(exchanger *pool.Exchanger, recorder audit.Recorder, logger log.Logger) *SessionRefresher {
	return &SessionRefresher{
		exchanger: exchanger,
		audit:     recorder,
		logger:    logger,
	}
}

// Refresh exchanges a refresh token for a fresh token set. When both paths
// fail, the standard-path error is surfaced: it is the semantically specific
// one.
func (r *SessionRefresher) Refresh(ctx context.Context, refreshToken string) (*domain.PoolTokenSet, error) {
	tokens, stdErr := r.exchanger.RefreshStandard(ctx, refreshToken)
	if stdErr == nil {
		r.recordRefresh(ctx, true, "")
		return tokens, nil
	}

	r.logger.Debug(ctx, "standard refresh failed, attempting federated path", map[string]interface{}{
		"error": stdErr.Error(),
	})

	tokens, fedErr := r.exchanger.RefreshFederated(ctx, refreshToken)
	if fedErr == nil {
		r.recordRefresh(ctx, true, "")
		return tokens, nil
	}

	ae := autherrors.From(stdErr, autherrors.ContextRefresh)
	r.recordRefresh(ctx, false, string(ae.Code))
	return nil, ae
}

func (r *SessionRefresher) recordRefresh(ctx context.Context, success bool, code string) {
	r.audit.Record(ctx, audit.Event{
		Type:    audit.EventSessionRefreshed,
		Success: success,
		Error:   code,
	})
}
