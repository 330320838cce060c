package pool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/reelrooms/identity/domain"
	autherrors "github.com/reelrooms/identity/errors"
	"github.com/reelrooms/identity/log"
)

// HTTPClientConfig configures the REST client for the pool API.
type HTTPClientConfig struct {
	// Endpoint is the base URL of the pool API, e.g. "https://pool.internal".
	Endpoint string

	// TokenURL, ClientID and ClientSecret configure the client-credentials
	// grant used to authenticate to the pool API. When TokenURL is empty the
	// client talks to the pool unauthenticated (local development).
	TokenURL     string
	ClientID     string
	ClientSecret string

	Timeout time.Duration
}

// HTTPClient implements Client against the pool's REST API.
type HTTPClient struct {
	base   string
	http   *http.Client
	logger log.Logger
}

// NewHTTPClient builds the pool client. Outbound requests carry a
// client-credentials bearer token when the config provides a token URL.
func NewHTTPClient(cfg HTTPClientConfig, logger log.Logger) *HTTPClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	httpClient := &http.Client{Timeout: timeout}
	if cfg.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		httpClient = cc.Client(context.Background())
		httpClient.Timeout = timeout
	}

	return &HTTPClient{
		base:   strings.TrimRight(cfg.Endpoint, "/"),
		http:   httpClient,
		logger: logger,
	}
}

func (c *HTTPClient) ResolveIdentity(ctx context.Context, poolID, providerName, loginToken string) (string, error) {
	payload := map[string]string{
		"identity_pool_id": poolID,
		"provider":         providerName,
		"login_token":      loginToken,
	}
	var out struct {
		IdentityID string `json:"identity_id"`
	}
	if err := c.postJSON(ctx, "/v1/identities/resolve", payload, &out); err != nil {
		return "", err
	}
	if out.IdentityID == "" {
		return "", autherrors.NewInvalidParameter("pool returned an empty identity id")
	}
	return out.IdentityID, nil
}

func (c *HTTPClient) ResolveCredentials(ctx context.Context, identityID, providerName, loginToken string) (*Credentials, error) {
	payload := map[string]string{
		"provider":    providerName,
		"login_token": loginToken,
	}
	var out Credentials
	path := fmt.Sprintf("/v1/identities/%s/credentials", url.PathEscape(identityID))
	if err := c.postJSON(ctx, path, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) RefreshByGrant(ctx context.Context, poolID, clientID, refreshToken string) (*domain.PoolTokenSet, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("identity_pool_id", poolID)
	form.Set("client_id", clientID)
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, autherrors.NewInternal(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, autherrors.NewNetworkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(ctx, resp)
	}

	var tokens domain.PoolTokenSet
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return nil, autherrors.NewServiceUnavailable(err)
	}
	return &tokens, nil
}

func (c *HTTPClient) IntrospectAccessToken(ctx context.Context, accessToken string) (*PoolUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/v1/users/me", nil)
	if err != nil {
		return nil, autherrors.NewInternal(err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, autherrors.NewNetworkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(ctx, resp)
	}

	var user PoolUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, autherrors.NewServiceUnavailable(err)
	}
	return &user, nil
}

func (c *HTTPClient) RegisterFederatedUser(ctx context.Context, poolID string, user *domain.User) error {
	payload := map[string]interface{}{
		"username":       user.UserID,
		"email":          user.Email,
		"email_verified": user.EmailVerified,
		"display_name":   user.DisplayName,
	}
	if user.FederatedIdentity != nil {
		payload["provider"] = user.FederatedIdentity.Provider
		payload["provider_user_id"] = user.FederatedIdentity.ProviderID
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return autherrors.NewInternal(err)
	}

	path := fmt.Sprintf("/v1/pools/%s/federated-users", url.PathEscape(poolID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return autherrors.NewInternal(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return autherrors.NewNetworkError(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK:
		return nil
	case http.StatusConflict:
		return ErrAlreadyRegistered
	default:
		return c.statusError(ctx, resp)
	}
}

// postJSON posts a JSON payload and decodes a JSON response, mapping non-2xx
// statuses into the error taxonomy.
func (c *HTTPClient) postJSON(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return autherrors.NewInternal(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return autherrors.NewInternal(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return autherrors.NewNetworkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.statusError(ctx, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return autherrors.NewServiceUnavailable(err)
	}
	return nil
}

// statusError maps a pool HTTP status into the taxonomy. The response body is
// logged for diagnostics but never surfaces to callers.
func (c *HTTPClient) statusError(ctx context.Context, resp *http.Response) *autherrors.AuthError {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	c.logger.Warn(ctx, "pool request failed", map[string]interface{}{
		"status": resp.StatusCode,
		"path":   resp.Request.URL.Path,
		"body":   string(snippet),
	})

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		return autherrors.NewInvalidParameter("pool rejected the request shape")
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return autherrors.NewIdentityPoolUnauthorized()
	case resp.StatusCode == http.StatusNotFound:
		return autherrors.NewIdentityPoolNotFound()
	case resp.StatusCode == http.StatusTooManyRequests:
		return autherrors.NewRateLimited()
	default:
		return autherrors.NewServiceUnavailable(fmt.Errorf("pool returned status %d", resp.StatusCode))
	}
}

var _ Client = (*HTTPClient)(nil)
