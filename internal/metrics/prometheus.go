// Package metrics mirrors the audit stream into Prometheus counters. It is an
// audit.Recorder, so components stay unaware of the metrics backend.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/reelrooms/identity/internal/audit"
)

// Recorder counts audit events. Compose it with the logging recorder via
// audit.MultiRecorder.
type Recorder struct {
	tokenVerifications *prometheus.CounterVec
	logins             *prometheus.CounterVec
	sessionRefreshes   *prometheus.CounterVec
	gateBlocked        prometheus.Counter
}

// NewRecorder creates the Recorder and registers its collectors.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		tokenVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_token_verifications_total",
			Help: "IdP identity-token verifications, by result.",
		}, []string{"result"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_federated_logins_total",
			Help: "Federated login attempts, by result.",
		}, []string{"result"}),
		sessionRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_session_refreshes_total",
			Help: "Session refresh attempts, by result.",
		}, []string{"result"}),
		gateBlocked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "identity_security_gate_blocked_total",
			Help: "Sign-ins blocked by the post-verification security gate.",
		}),
	}
	reg.MustRegister(r.tokenVerifications, r.logins, r.sessionRefreshes, r.gateBlocked)
	return r
}

func (r *Recorder) Record(_ context.Context, event audit.Event) {
	result := "failure"
	if event.Success {
		result = "success"
	}

	switch event.Type {
	case audit.EventTokenVerified, audit.EventTokenRejected:
		r.tokenVerifications.WithLabelValues(result).Inc()
	case audit.EventFederatedLogin, audit.EventFederatedLoginFailed:
		r.logins.WithLabelValues(result).Inc()
	case audit.EventSessionRefreshed:
		r.sessionRefreshes.WithLabelValues(result).Inc()
	case audit.EventSecurityGateBlocked:
		r.gateBlocked.Inc()
	}
}

var _ audit.Recorder = (*Recorder)(nil)
