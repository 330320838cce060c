package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/reelrooms/identity/internal/audit"
)

func TestRecorderCountsAuditEvents(t *testing.T) {
	r := NewRecorder(prometheus.NewRegistry())
	ctx := context.Background()

	r.Record(ctx, audit.Event{Type: audit.EventTokenVerified, Success: true})
	r.Record(ctx, audit.Event{Type: audit.EventTokenRejected, Success: false})
	r.Record(ctx, audit.Event{Type: audit.EventFederatedLogin, Success: true})
	r.Record(ctx, audit.Event{Type: audit.EventFederatedLoginFailed, Success: false})
	r.Record(ctx, audit.Event{Type: audit.EventSessionRefreshed, Success: true})
	r.Record(ctx, audit.Event{Type: audit.EventSecurityGateBlocked, Success: false})
	r.Record(ctx, audit.Event{Type: audit.EventSecurityGateBlocked, Success: false})

	assert.Equal(t, float64(1), testutil.ToFloat64(r.tokenVerifications.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.tokenVerifications.WithLabelValues("failure")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.logins.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.logins.WithLabelValues("failure")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.sessionRefreshes.WithLabelValues("success")))
	assert.Equal(t, float64(2), testutil.ToFloat64(r.gateBlocked))
}

func TestRecorderRegistersCollectorsOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewRecorder(reg)

	assert.Panics(t, func() { NewRecorder(reg) })
}
