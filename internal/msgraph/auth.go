package msgraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const defaultScope = "https://graph.microsoft.com/.default"

// ErrAuth wraps any failure to obtain a Graph access token. The HTTP layer
// maps it to a user-facing "try again later" response.
var ErrAuth = errors.New("graph authentication failed")

// Auth acquires app-only access tokens via the OAuth2 client-credentials
// grant and caches them in memory until shortly before expiry.
type Auth struct {
	clientID     string
	clientSecret string
	tenantID     string
	authority    string
	httpClient   *http.Client
	logger       *slog.Logger

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewAuth creates an Auth for the given Azure AD app registration. authority
// overrides the login endpoint base URL; "" means the public cloud.
func NewAuth(clientID, clientSecret, tenantID, authority string, logger *slog.Logger) *Auth {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if authority == "" {
		authority = "https://login.microsoftonline.com"
	}
	return &Auth{
		clientID:     clientID,
		clientSecret: clientSecret,
		tenantID:     tenantID,
		authority:    strings.TrimRight(authority, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// tokenResponse is the response from the token endpoint.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error"`
	ErrorDesc   string `json:"error_description"`
}

func (a *Auth) tokenEndpoint() string {
	return fmt.Sprintf("%s/%s/oauth2/v2.0/token", a.authority, a.tenantID)
}

// Token returns a valid access token, requesting a new one when the cached
// token is missing or expires within 5 minutes.
func (a *Auth) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token != "" && time.Now().Add(5*time.Minute).Before(a.expiresAt) {
		return a.token, nil
	}

	a.logger.Debug("requesting graph access token", "tenant", a.tenantID)
	resp, err := a.requestToken(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAuth, err)
	}

	a.token = resp.AccessToken
	a.expiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	return a.token, nil
}

func (a *Auth) requestToken(ctx context.Context) (*tokenResponse, error) {
	form := url.Values{
		"client_id":     {a.clientID},
		"client_secret": {a.clientSecret},
		"grant_type":    {"client_credentials"},
		"scope":         {defaultScope},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.tokenEndpoint(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading token response: %w", err)
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("parsing token response: %w", err)
	}
	if tokenResp.Error != "" {
		return nil, fmt.Errorf("token error: %s — %s", tokenResp.Error, tokenResp.ErrorDesc)
	}
	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token (status %d)", resp.StatusCode)
	}
	return &tokenResp, nil
}

// Invalidate drops the cached token, forcing the next call to re-acquire.
func (a *Auth) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = ""
}
