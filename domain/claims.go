package domain

import "time"

// IdentityClaims are the decoded, verified claims of an IdP identity token.
// Instances are produced exclusively by the claims verifier after every check
// has passed; the raw decoded payload never crosses that boundary. The value
// is treated as immutable for the remainder of the authentication attempt.
type IdentityClaims struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	GivenName     string
	FamilyName    string
	Picture       string
	Locale        string
	HostedDomain  string
	Audience      string
	Issuer        string
	IssuedAt      time.Time
	ExpiresAt     time.Time
}
