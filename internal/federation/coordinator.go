package federation

import (
	"context"
	"errors"
	"strings"

	"github.com/reelrooms/identity/config"
	"github.com/reelrooms/identity/domain"
	autherrors "github.com/reelrooms/identity/errors"
	"github.com/reelrooms/identity/internal/audit"
	"github.com/reelrooms/identity/internal/identity"
	"github.com/reelrooms/identity/internal/pool"
	"github.com/reelrooms/identity/log"
)

// Substrings marking automated, non-human accounts. Federated sign-in is for
// people.
var nonHumanEmailMarkers = []string{"noreply", "service-account"}

// AuthResult is the aggregate outcome of a successful federated
// authentication.
type AuthResult struct {
	User      *domain.User
	Tokens    *domain.PoolTokenSet
	IsNewUser bool
}

// Coordinator orchestrates the federated authentication flow:
// verify, security gate, exchange, consistency check, resolve, audit.
type Coordinator struct {
	verifier  *ClaimsVerifier
	exchanger *pool.Exchanger
	resolver  *identity.Resolver
	limiter   domain.RateLimiter
	cfg       *config.BrokerConfig
	audit     audit.Recorder
	logger    log.Logger
}

// NewCoordinator creates a Coordinator. limiter may be nil, in which case no
// throttling is applied.
func NewCoordinator(
	verifier *ClaimsVerifier,
	exchanger *pool.Exchanger,
	resolver *identity.Resolver,
	limiter domain.RateLimiter,
	cfg *config.BrokerConfig,
	recorder audit.Recorder,
	logger log.Logger,
) *Coordinator {
	return &Coordinator{
		verifier:  verifier,
		exchanger: exchanger,
		resolver:  resolver,
		limiter:   limiter,
		cfg:       cfg,
		audit:     recorder,
		logger:    logger,
	}
}

// Authenticate runs the full flow for one IdP identity token. Every failure
// short-circuits the remaining steps and carries the context of its origin.
func (c *Coordinator) Authenticate(ctx context.Context, idpToken string) (*AuthResult, error) {
	result, claims, err := c.authenticate(ctx, idpToken)
	if err != nil {
		ae := autherrors.From(err, autherrors.ContextVerification)
		c.audit.Record(ctx, audit.Event{
			Type:    audit.EventFederatedLoginFailed,
			Subject: claims.Subject,
			Email:   claims.Email,
			Success: false,
			Error:   string(ae.Code),
		})
		return nil, ae
	}

	c.audit.Record(ctx, audit.Event{
		Type:    audit.EventFederatedLogin,
		Subject: claims.Subject,
		Email:   claims.Email,
		Success: true,
	})
	return result, nil
}

func (c *Coordinator) authenticate(ctx context.Context, idpToken string) (*AuthResult, domain.IdentityClaims, error) {
	claims, err := c.verifier.Verify(ctx, idpToken)
	if err != nil {
		return nil, claims, err
	}

	if err := c.checkRateLimit(ctx, claims); err != nil {
		return nil, claims, err
	}

	if err := c.securityGate(ctx, claims); err != nil {
		return nil, claims, err
	}

	tokens, err := c.exchanger.ExchangeForPoolTokens(ctx, idpToken)
	if err != nil {
		return nil, claims, err
	}

	// Token-consistency check: the minted access token must embed the identity
	// that was just verified. A mismatch means the exchange got corrupted.
	decoded, err := pool.DecodeToken(tokens.AccessToken)
	if err != nil || !strings.Contains(decoded.IdentityID, claims.Subject) {
		return nil, claims, autherrors.NewTokenConsistencyFailure().
			WithContext(autherrors.ContextConsistency)
	}

	user, isNew, err := c.resolver.ResolveOrCreate(ctx, claims, decoded.IdentityID)
	if errors.Is(err, domain.ErrConflict) {
		// Lost the create race; the winning record is now visible, so one
		// retry resolves against it.
		c.logger.Info(ctx, "resolution lost create race, retrying once", map[string]interface{}{
			"subject": claims.Subject,
		})
		user, isNew, err = c.resolver.ResolveOrCreate(ctx, claims, decoded.IdentityID)
		if errors.Is(err, domain.ErrConflict) {
			err = autherrors.NewServiceUnavailable(err).WithContext(autherrors.ContextResolution)
		}
	}
	if err != nil {
		return nil, claims, autherrors.From(err, autherrors.ContextResolution)
	}

	return &AuthResult{User: user, Tokens: tokens, IsNewUser: isNew}, claims, nil
}

// checkRateLimit consults the throttling capability. The limiter failing open
// is deliberate: an unavailable limiter must not take sign-in down with it.
func (c *Coordinator) checkRateLimit(ctx context.Context, claims domain.IdentityClaims) error {
	if c.limiter == nil {
		return nil
	}
	allowed, err := c.limiter.Allow(ctx, "federated-auth:"+claims.Email)
	if err != nil {
		c.logger.Warn(ctx, "rate limiter unavailable, allowing request", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}
	if !allowed {
		return autherrors.NewRateLimited().WithContext(autherrors.ContextSecurityGate)
	}
	return nil
}

// securityGate applies the federation-specific checks that are not part of
// generic claim verification.
func (c *Coordinator) securityGate(ctx context.Context, claims domain.IdentityClaims) error {
	var gateErr *autherrors.AuthError

	switch {
	case !claims.EmailVerified:
		gateErr = autherrors.NewEmailNotVerified()
	case !c.domainAllowed(claims.Email):
		gateErr = autherrors.NewDomainNotAllowed(emailDomain(claims.Email))
	case isNonHumanEmail(claims.Email):
		gateErr = autherrors.NewServiceAccountRejected()
	}

	if gateErr == nil {
		return nil
	}

	gateErr = gateErr.WithContext(autherrors.ContextSecurityGate)
	c.audit.Record(ctx, audit.Event{
		Type:    audit.EventSecurityGateBlocked,
		Subject: claims.Subject,
		Email:   claims.Email,
		Success: false,
		Error:   string(gateErr.Code),
	})
	return gateErr
}

func (c *Coordinator) domainAllowed(email string) bool {
	if len(c.cfg.AllowedEmailDomains) == 0 {
		return true
	}
	domainPart := emailDomain(email)
	for _, allowed := range c.cfg.AllowedEmailDomains {
		if strings.EqualFold(domainPart, allowed) {
			return true
		}
	}
	return false
}

func isNonHumanEmail(email string) bool {
	lowered := strings.ToLower(email)
	for _, marker := range nonHumanEmailMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

func emailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return ""
	}
	return email[at+1:]
}
