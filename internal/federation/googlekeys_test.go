package federation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jwksHandler(fetches *atomic.Int64, notModified *atomic.Int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			notModified.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		fetches.Add(1)
		w.Header().Set("ETag", `"v1"`)
		_ = json.NewEncoder(w).Encode(jwks{Keys: []jwk{
			{Kty: "RSA", Alg: "RS256", Kid: "kid-1", N: "qw7NhcEq", E: "AQAB"},
		}})
	}
}

func newJWKSVerifier(uri string) *GoogleTokenVerifier {
	g := NewGoogleTokenVerifier()
	g.jwksURI = uri
	return g
}

// expireKeys forces the next getJWKS call to hit the network again.
func expireKeys(g *GoogleTokenVerifier) {
	g.mu.Lock()
	g.keysAt = time.Now().Add(-2 * jwksMaxAge)
	g.mu.Unlock()
}

func TestJWKSConcurrentRefresh(t *testing.T) {
	var fetches, notModified atomic.Int64
	srv := httptest.NewServer(jwksHandler(&fetches, &notModified))
	defer srv.Close()

	g := newJWKSVerifier(srv.URL)

	// Several rounds of a thundering herd hitting an expired cache. Every
	// goroutine must come back with a usable key set.
	for round := 0; round < 4; round++ {
		expireKeys(g)

		var wg sync.WaitGroup
		errs := make(chan error, 16)
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				keys, err := g.getJWKS(context.Background())
				if err != nil {
					errs <- err
					return
				}
				if len(keys.Keys) != 1 {
					errs <- assert.AnError
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("concurrent jwks refresh failed: %v", err)
		}
	}

	assert.GreaterOrEqual(t, fetches.Load()+notModified.Load(), int64(4))
}

func TestJWKSETagRevalidation(t *testing.T) {
	var fetches, notModified atomic.Int64
	srv := httptest.NewServer(jwksHandler(&fetches, &notModified))
	defer srv.Close()

	g := newJWKSVerifier(srv.URL)

	first, err := g.getJWKS(context.Background())
	require.NoError(t, err)
	require.Len(t, first.Keys, 1)
	assert.Equal(t, int64(1), fetches.Load())

	// A stale cache revalidates with the stored ETag and keeps the keys.
	expireKeys(g)
	second, err := g.getJWKS(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), fetches.Load())
	assert.Equal(t, int64(1), notModified.Load())
}

func TestJWKSCacheServesWithoutRefetch(t *testing.T) {
	var fetches, notModified atomic.Int64
	srv := httptest.NewServer(jwksHandler(&fetches, &notModified))
	defer srv.Close()

	g := newJWKSVerifier(srv.URL)

	_, err := g.getJWKS(context.Background())
	require.NoError(t, err)
	_, err = g.getJWKS(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), fetches.Load())
	assert.Zero(t, notModified.Load())
}
