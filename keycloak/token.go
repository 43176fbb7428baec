package keycloak

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

// Token source errors.
var (
	ErrTokenRequired      = errors.New("token is required")
	ErrTokenRequestFailed = errors.New("admin token request failed")
)

// TokenSource supplies the bearer token for Admin API requests. The
// client reads a fresh value on every call and never mutates the source.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// staticTokenSource returns the same pre-supplied token forever.
type staticTokenSource struct {
	token string
}

// StaticTokenSource wraps a token obtained elsewhere. No refresh is
// attempted when it expires.
func StaticTokenSource(token string) TokenSource {
	return staticTokenSource{token: token}
}

func (s staticTokenSource) Token(_ context.Context) (string, error) {
	if s.token == "" {
		return "", ErrTokenRequired
	}
	return s.token, nil
}

// TokenCache stores an issued admin token outside process memory so
// several instances can share one grant. Implementations live in the
// tokencache package.
type TokenCache interface {
	// Get returns the cached token and its expiry. A cache miss is
	// reported as an empty token with a nil error.
	Get(ctx context.Context) (token string, expiresAt time.Time, err error)

	// Put stores a freshly issued token.
	Put(ctx context.Context, token string, expiresAt time.Time) error
}

// AdminTokenConfig contains configuration for AdminTokenManager.
type AdminTokenConfig struct {
	// BaseURL is the origin of the Keycloak server.
	BaseURL string

	// Realm is the realm to authenticate against (usually "master").
	Realm string

	// ClientID is the OAuth2 client ID (usually "admin-cli").
	ClientID string

	// ClientSecret switches the manager to the client_credentials grant.
	// When empty, the password grant with Username/Password is used.
	ClientSecret string

	// Username is the admin username (password grant).
	Username string

	// Password is the admin password (password grant).
	Password string

	// ExpiryBuffer is how long before expiry a token counts as stale
	// (default 30s).
	ExpiryBuffer time.Duration

	// Cache optionally shares issued tokens across instances.
	Cache TokenCache

	// HTTPClient is an optional custom HTTP client.
	HTTPClient *http.Client

	// Logger is an optional structured logger.
	Logger *slog.Logger
}

// AdminTokenManager implements TokenSource by obtaining admin tokens
// from the realm's token endpoint and caching them until shortly before
// expiry.
type AdminTokenManager struct {
	config     AdminTokenConfig
	httpClient *http.Client
	logger     *slog.Logger

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

const defaultExpiryBuffer = 30 * time.Second

// NewAdminTokenManager creates a new AdminTokenManager.
func NewAdminTokenManager(config AdminTokenConfig) *AdminTokenManager {
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: defaultHTTPTimeout,
		}
	}

	if config.ExpiryBuffer == 0 {
		config.ExpiryBuffer = defaultExpiryBuffer
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	config.BaseURL = strings.TrimSuffix(config.BaseURL, "/")

	return &AdminTokenManager{
		config:     config,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Token returns a valid admin token, obtaining a new one if needed.
func (m *AdminTokenManager) Token(ctx context.Context) (string, error) {
	m.mu.RLock()
	if m.fresh() {
		token := m.token
		m.mu.RUnlock()
		return token, nil
	}
	m.mu.RUnlock()

	return m.refresh(ctx)
}

// Invalidate clears the cached token, forcing a new grant on the next
// Token call.
func (m *AdminTokenManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.expiresAt = time.Time{}
}

// fresh reports whether the locally cached token is still usable.
// Callers must hold at least a read lock.
func (m *AdminTokenManager) fresh() bool {
	return m.token != "" && time.Now().Add(m.config.ExpiryBuffer).Before(m.expiresAt)
}

func (m *AdminTokenManager) refresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Another goroutine may have refreshed while we waited for the lock.
	if m.fresh() {
		return m.token, nil
	}

	// Try the shared cache before hitting the token endpoint.
	if m.config.Cache != nil {
		token, expiresAt, err := m.config.Cache.Get(ctx)
		if err != nil {
			m.logger.WarnContext(ctx, "token cache lookup failed", slog.Any("error", err))
		} else if token != "" && time.Now().Add(m.config.ExpiryBuffer).Before(expiresAt) {
			m.token = token
			m.expiresAt = expiresAt
			return token, nil
		}
	}

	token, expiresAt, err := m.grant(ctx)
	if err != nil {
		return "", err
	}

	m.token = token
	m.expiresAt = expiresAt

	if m.config.Cache != nil {
		if putErr := m.config.Cache.Put(ctx, token, expiresAt); putErr != nil {
			m.logger.WarnContext(ctx, "token cache store failed", slog.Any("error", putErr))
		}
	}

	return token, nil
}

// grant performs the OAuth2 token request.
func (m *AdminTokenManager) grant(ctx context.Context) (string, time.Time, error) {
	tokenURL := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token",
		m.config.BaseURL, m.config.Realm)

	data := url.Values{}
	data.Set("client_id", m.config.ClientID)
	if m.config.ClientSecret != "" {
		data.Set("grant_type", "client_credentials")
		data.Set("client_secret", m.config.ClientSecret)
	} else {
		data.Set("grant_type", "password")
		data.Set("username", m.config.Username)
		data.Set("password", m.config.Password)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %w", ErrTokenRequestFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %w", ErrTokenRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", time.Time{}, fmt.Errorf("%w: status %d: %s", ErrTokenRequestFailed, resp.StatusCode, string(body))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		TokenType   string `json:"token_type"`
	}
	if decodeErr := json.NewDecoder(resp.Body).Decode(&tokenResp); decodeErr != nil {
		return "", time.Time{}, fmt.Errorf("%w: %w", ErrTokenRequestFailed, decodeErr)
	}

	return tokenResp.AccessToken, time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second), nil
}
