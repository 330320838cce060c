package federation

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	autherrors "github.com/reelrooms/identity/errors"
)

// GoogleJWKSURI is Google's published signing-key set.
var GoogleJWKSURI = "https://www.googleapis.com/oauth2/v3/certs"

const jwksMaxAge = 1 * time.Hour

type jwk struct {
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	N   string `json:"n"` // base64url
	E   string `json:"e"` // base64url
}

type jwks struct {
	Keys []jwk `json:"keys"`
}

// GoogleTokenVerifier implements TokenVerifier with RS256 verification against
// Google's JWKS. Keys are cached and revalidated with ETags.
type GoogleTokenVerifier struct {
	jwksURI string
	http    *http.Client

	mu       sync.RWMutex
	keys     *jwks
	keysAt   time.Time
	keysETag string
}

// NewGoogleTokenVerifier creates a verifier fetching keys from the standard
// Google JWKS endpoint.
func NewGoogleTokenVerifier() *GoogleTokenVerifier {
	return &GoogleTokenVerifier{
		jwksURI: GoogleJWKSURI,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// VerifySignedToken parses and verifies the token signature and standard JWT
// mechanics, returning the decoded payload. Expiry and audience failures are
// pre-classified so the caller surfaces precise codes.
func (g *GoogleTokenVerifier) VerifySignedToken(ctx context.Context, token, audience string) (map[string]interface{}, error) {
	claims := jwtv5.MapClaims{}
	parsed, err := jwtv5.ParseWithClaims(token, claims, func(t *jwtv5.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token header has no kid")
		}
		return g.rsaKeyForKid(ctx, kid)
	}, jwtv5.WithValidMethods([]string{"RS256"}))
	if err != nil {
		if errors.Is(err, jwtv5.ErrTokenExpired) {
			return nil, autherrors.NewTokenExpired()
		}
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("token failed verification")
	}
	return claims, nil
}

func (g *GoogleTokenVerifier) rsaKeyForKid(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	keys, err := g.getJWKS(ctx)
	if err != nil {
		return nil, autherrors.NewNetworkError(err)
	}
	for _, key := range keys.Keys {
		if key.Kid != kid || key.Kty != "RSA" {
			continue
		}
		return rsaKeyFromJWK(key)
	}
	return nil, fmt.Errorf("no signing key with kid %q", kid)
}

func (g *GoogleTokenVerifier) getJWKS(ctx context.Context) (*jwks, error) {
	g.mu.RLock()
	cached := g.keys
	age := time.Since(g.keysAt)
	etag := g.keysETag
	g.mu.RUnlock()
	if cached != nil && age < jwksMaxAge {
		return cached, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.jwksURI, nil)
	if err != nil {
		return nil, err
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		g.mu.Lock()
		out := g.keys
		g.keysAt = time.Now()
		g.mu.Unlock()
		return out, nil
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("jwks fetch returned status %d", resp.StatusCode)
	}

	var fresh jwks
	if err := json.NewDecoder(resp.Body).Decode(&fresh); err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.keys = &fresh
	g.keysAt = time.Now()
	g.keysETag = resp.Header.Get("ETag")
	g.mu.Unlock()
	return &fresh, nil
}

func rsaKeyFromJWK(key jwk) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(key.N)
	if err != nil {
		return nil, fmt.Errorf("decoding modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(key.E)
	if err != nil {
		return nil, fmt.Errorf("decoding exponent: %w", err)
	}
	e := 0
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}

var _ TokenVerifier = (*GoogleTokenVerifier)(nil)
