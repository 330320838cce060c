package pool

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/reelrooms/identity/domain"
)

// TokenKind is the position of an opaque federated token inside a
// PoolTokenSet.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindID      TokenKind = "id"
	KindRefresh TokenKind = "refresh"
)

// MaxTokenAge is the validity window of an opaque federated token. A token
// whose age reaches this value is expired (closed boundary on the expired
// side: age == MaxTokenAge is rejected).
const MaxTokenAge = time.Duration(domain.FederatedTokenTTLSeconds) * time.Second

// Codec sentinels. Callers classify these at their component boundary.
var (
	ErrNotFederatedToken     = errors.New("token does not have the federated opaque shape")
	ErrFederatedTokenExpired = errors.New("federated token has exceeded its validity window")
)

// DecodedToken is the recovered content of an opaque federated token.
type DecodedToken struct {
	Kind       TokenKind
	IdentityID string
	IssuedAt   time.Time
}

// Age returns how old the token is at now.
func (d *DecodedToken) Age(now time.Time) time.Duration {
	return now.Sub(d.IssuedAt)
}

// Expired reports whether the token's age has reached MaxTokenAge.
func (d *DecodedToken) Expired(now time.Time) bool {
	return d.Age(now) >= MaxTokenAge
}

// MintToken encodes the wire format "<kind>_<identityId>_<unixMillis>".
func MintToken(kind TokenKind, identityID string, at time.Time) string {
	return fmt.Sprintf("%s_%s_%d", kind, identityID, at.UnixMilli())
}

// MintTokenSet mints a full federated token set for one identity. The three
// tokens share the mint timestamp, so they expire together.
func MintTokenSet(identityID string, at time.Time) *domain.PoolTokenSet {
	return &domain.PoolTokenSet{
		AccessToken:  MintToken(KindAccess, identityID, at),
		IDToken:      MintToken(KindID, identityID, at),
		RefreshToken: MintToken(KindRefresh, identityID, at),
		ExpiresIn:    domain.FederatedTokenTTLSeconds,
	}
}

// DecodeToken recovers kind, identity id and mint time from an opaque token.
// Identity ids may themselves contain underscores, so the token is split at
// the first and the last separator only.
func DecodeToken(token string) (*DecodedToken, error) {
	first := strings.Index(token, "_")
	last := strings.LastIndex(token, "_")
	if first <= 0 || last <= first+1 || last == len(token)-1 {
		return nil, ErrNotFederatedToken
	}

	kind := TokenKind(token[:first])
	switch kind {
	case KindAccess, KindID, KindRefresh:
	default:
		return nil, ErrNotFederatedToken
	}

	millis, err := strconv.ParseInt(token[last+1:], 10, 64)
	if err != nil || millis <= 0 {
		return nil, ErrNotFederatedToken
	}

	return &DecodedToken{
		Kind:       kind,
		IdentityID: token[first+1 : last],
		IssuedAt:   time.UnixMilli(millis),
	}, nil
}

// IsFederatedShape reports whether the token looks locally minted. Used to
// pick the local-decode path for session validation without a pool round-trip.
func IsFederatedShape(token string) bool {
	_, err := DecodeToken(token)
	return err == nil
}
