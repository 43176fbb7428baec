// Package keycloak is a thin client over the Keycloak Admin REST API,
// focused on managing realm groups and group membership.
package keycloak

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultHTTPTimeout = 30 * time.Second

// ClientConfig contains configuration for Client.
type ClientConfig struct {
	// BaseURL is the origin of the Keycloak server (e.g., https://id.example.com).
	BaseURL string

	// Tokens supplies the bearer token attached to every request.
	// The client only reads from it and never triggers a refresh itself.
	Tokens TokenSource

	// HTTPClient is an optional custom HTTP client.
	HTTPClient *http.Client

	// Logger is an optional structured logger.
	Logger *slog.Logger
}

// Client is the shared context for the Admin API sub-clients.
// Every operation takes the target realm explicitly, so one Client can
// serve any number of realms behind the same server.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	logger     *slog.Logger

	// Groups manages realm groups.
	Groups *GroupsService

	// Members manages group membership.
	Members *MembersService

	// Users provides read access to realm users.
	Users *UsersService
}

// NewClient creates a new Admin API client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrBaseURLRequired
	}
	if cfg.Tokens == nil {
		return nil, ErrTokenSourceRequired
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: defaultHTTPTimeout,
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		tokens:     cfg.Tokens,
		httpClient: httpClient,
		logger:     logger,
	}
	c.Groups = &GroupsService{client: c}
	c.Members = &MembersService{client: c}
	c.Users = &UsersService{client: c}

	return c, nil
}

// do issues an authenticated request and returns the raw response.
// A non-nil error means the request never completed (token lookup or
// transport failure); status-code handling is left to the caller.
func (c *Client) do(ctx context.Context, method, url string, body io.Reader) (*http.Response, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.DebugContext(ctx, "admin API request",
		slog.String("method", method),
		slog.String("url", url),
	)

	return c.httpClient.Do(req)
}
