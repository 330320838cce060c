// Package federation implements the broker core: identity-token verification,
// the federated authentication flow, session refresh, and session validation.
package federation

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/reelrooms/identity/domain"
	autherrors "github.com/reelrooms/identity/errors"
	"github.com/reelrooms/identity/internal/audit"
	"github.com/reelrooms/identity/log"
)

// TokenVerifier is the cryptographic verification capability. It performs
// signature and standard JWT mechanics and returns the decoded payload; the
// ClaimsVerifier layers the domain-specific checks on top.
type TokenVerifier interface {
	VerifySignedToken(ctx context.Context, token, audience string) (map[string]interface{}, error)
}

// KnownGoogleIssuers are the issuer values Google uses in identity tokens.
var KnownGoogleIssuers = []string{
	"https://accounts.google.com",
	"accounts.google.com",
}

const (
	// expiryMargin guards against clock skew and near-expiry races: a token
	// must stay valid at least this long past verification time.
	expiryMargin = 60 * time.Second

	// issuedAtSkew is how far in the future an iat claim may sit before the
	// token is treated as clock-forged.
	issuedAtSkew = 60 * time.Second
)

var (
	verifierEmailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// ClaimsVerifier validates an IdP identity token and produces typed claims.
// The raw decoded payload never leaves this type.
type ClaimsVerifier struct {
	verifier TokenVerifier
	clientID string
	issuers  []string
	audit    audit.Recorder
	logger   log.Logger

	now func() time.Time
}

// NewClaimsVerifier creates a ClaimsVerifier. clientID is the audience every
// token must carry.
func NewClaimsVerifier(verifier TokenVerifier, clientID string, recorder audit.Recorder, logger log.Logger) *ClaimsVerifier {
	return &ClaimsVerifier{
		verifier: verifier,
		clientID: clientID,
		issuers:  KnownGoogleIssuers,
		audit:    recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// Verify checks the token against the ordered precondition list and returns
// the verified claims. Every failure short-circuits, is classified, and is
// audited; the raw token never appears in logs or audit events.
func (v *ClaimsVerifier) Verify(ctx context.Context, token string) (domain.IdentityClaims, error) {
	claims, err := v.verify(ctx, token)
	if err != nil {
		ae := autherrors.From(err, autherrors.ContextVerification)
		v.audit.Record(ctx, audit.Event{
			Type:    audit.EventTokenRejected,
			Subject: claims.Subject,
			Email:   claims.Email,
			Success: false,
			Error:   string(ae.Code),
		})
		return domain.IdentityClaims{}, ae
	}

	v.audit.Record(ctx, audit.Event{
		Type:    audit.EventTokenVerified,
		Subject: claims.Subject,
		Email:   claims.Email,
		Success: true,
	})
	return claims, nil
}

func (v *ClaimsVerifier) verify(ctx context.Context, token string) (domain.IdentityClaims, error) {
	var claims domain.IdentityClaims

	if token == "" {
		return claims, autherrors.NewTokenMissing()
	}
	if token == "null" || token == "undefined" {
		return claims, autherrors.NewTokenMalformed("token is a serialized null value")
	}

	// Cheap shape check before any cryptographic work.
	if len(strings.Split(token, ".")) != 3 {
		return claims, autherrors.NewTokenMalformed("token does not have three segments")
	}

	payload, err := v.verifier.VerifySignedToken(ctx, token, v.clientID)
	if err != nil {
		if ae, ok := autherrors.As(err); ok {
			return claims, ae
		}
		return claims, autherrors.NewTokenMalformed("cryptographic verification failed").WithCause(err)
	}
	if len(payload) == 0 {
		return claims, autherrors.NewTokenMalformed("verifier returned an empty payload")
	}

	claims = claimsFromPayload(payload)

	if claims.Audience != v.clientID {
		return claims, autherrors.NewWrongAudience()
	}

	if !v.knownIssuer(claims.Issuer) {
		return claims, autherrors.NewInvalidIssuer(claims.Issuer)
	}

	now := v.now()
	if claims.ExpiresAt.Before(now.Add(expiryMargin)) {
		return claims, autherrors.NewTokenExpired()
	}
	if claims.IssuedAt.After(now.Add(issuedAtSkew)) {
		return claims, autherrors.NewInvalidTimestamp("token issued-at lies in the future")
	}

	if claims.Subject == "" || claims.Email == "" {
		return claims, autherrors.NewInvalidClaims("subject and email are required")
	}
	if n := len(claims.Subject); n < minSubjectLen || n > maxSubjectLen {
		return claims, autherrors.NewInvalidClaims("subject length is out of bounds")
	}
	if !verifierEmailPattern.MatchString(claims.Email) {
		return claims, autherrors.NewInvalidClaims("email does not have a valid shape")
	}

	return claims, nil
}

func (v *ClaimsVerifier) knownIssuer(issuer string) bool {
	for _, known := range v.issuers {
		if issuer == known {
			return true
		}
	}
	return false
}

const (
	minSubjectLen = 10
	maxSubjectLen = 50
)

// claimsFromPayload builds typed claims from the verified payload. Anything
// absent or of the wrong dynamic type becomes the zero value and is caught by
// the checks above.
func claimsFromPayload(payload map[string]interface{}) domain.IdentityClaims {
	return domain.IdentityClaims{
		Subject:       stringClaim(payload, "sub"),
		Email:         stringClaim(payload, "email"),
		EmailVerified: boolClaim(payload, "email_verified"),
		Name:          stringClaim(payload, "name"),
		GivenName:     stringClaim(payload, "given_name"),
		FamilyName:    stringClaim(payload, "family_name"),
		Picture:       stringClaim(payload, "picture"),
		Locale:        stringClaim(payload, "locale"),
		HostedDomain:  stringClaim(payload, "hd"),
		Audience:      stringClaim(payload, "aud"),
		Issuer:        stringClaim(payload, "iss"),
		IssuedAt:      timeClaim(payload, "iat"),
		ExpiresAt:     timeClaim(payload, "exp"),
	}
}

func stringClaim(payload map[string]interface{}, key string) string {
	switch v := payload[key].(type) {
	case string:
		return v
	case []interface{}:
		// aud may arrive as a single-element list.
		if len(v) == 1 {
			if s, ok := v[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

// boolClaim tolerates the string forms some IdPs emit for boolean claims.
func boolClaim(payload map[string]interface{}, key string) bool {
	switch v := payload[key].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return false
}

func timeClaim(payload map[string]interface{}, key string) time.Time {
	switch v := payload[key].(type) {
	case float64:
		return time.Unix(int64(v), 0)
	case int64:
		return time.Unix(v, 0)
	case int:
		return time.Unix(int64(v), 0)
	}
	return time.Time{}
}
