// Package testutil provides shared container helpers for integration
// tests.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Keycloak test configuration constants
const (
	keycloakContainerStartupTimeout   = 180 * time.Second
	keycloakContainerTerminateTimeout = 10 * time.Second
	keycloakHealthTimeout             = 5 * time.Second
	keycloakHealthRetryDelay          = 2 * time.Second
	keycloakContainerMemoryLimit      = 512 * 1024 * 1024 // 512MB

	// Default Keycloak configuration
	keycloakAdminUser     = "admin"
	keycloakAdminPassword = "admin123"
	keycloakRealm         = "master"
)

// sharedKeycloakContainer holds the singleton Keycloak container
var (
	sharedKeycloakContainer   *SharedKeycloakContainer
	sharedKeycloakContainerMu sync.Mutex
)

// SharedKeycloakContainer represents a reusable Keycloak container for tests
type SharedKeycloakContainer struct {
	Container testcontainers.Container
	URL       string
	AdminUser string
	AdminPass string
	Realm     string
}

// KeycloakTokenResponse represents the token response from Keycloak
type KeycloakTokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int    `json:"expires_in"`
	RefreshExpiresIn int    `json:"refresh_expires_in"`
	TokenType        string `json:"token_type"`
}

// GetSharedKeycloakContainer returns a singleton Keycloak container.
// The container is started once and reused across all tests.
func GetSharedKeycloakContainer(ctx context.Context) (*SharedKeycloakContainer, error) {
	sharedKeycloakContainerMu.Lock()
	defer sharedKeycloakContainerMu.Unlock()

	needsCreation := sharedKeycloakContainer == nil

	if !needsCreation && needsKeycloakContainerRecreation(ctx) {
		cleanupCrashedKeycloakContainer()
		needsCreation = true
	}

	if needsCreation {
		startupCtx, cancel := context.WithTimeout(context.Background(), keycloakContainerStartupTimeout)
		defer cancel()

		cont, err := startKeycloakContainer(startupCtx)
		if err != nil {
			return nil, fmt.Errorf("failed to start Keycloak container: %w", err)
		}
		sharedKeycloakContainer = cont
	}

	return sharedKeycloakContainer, nil
}

// needsKeycloakContainerRecreation checks if the existing container needs to be recreated
func needsKeycloakContainerRecreation(ctx context.Context) bool {
	if sharedKeycloakContainer == nil || sharedKeycloakContainer.Container == nil {
		return true
	}
	running, err := isKeycloakContainerRunning(ctx, sharedKeycloakContainer.Container)
	return err != nil || !running
}

// cleanupCrashedKeycloakContainer terminates a crashed container
func cleanupCrashedKeycloakContainer() {
	if sharedKeycloakContainer == nil {
		return
	}
	if sharedKeycloakContainer.Container != nil {
		terminateCtx, cancel := context.WithTimeout(context.Background(), keycloakContainerTerminateTimeout)
		_ = sharedKeycloakContainer.Container.Terminate(terminateCtx)
		cancel()
	}
	sharedKeycloakContainer = nil
}

// isKeycloakContainerRunning checks if the container is still running
func isKeycloakContainerRunning(ctx context.Context, cont testcontainers.Container) (bool, error) {
	if cont == nil {
		return false, nil
	}
	state, err := cont.State(ctx)
	if err != nil {
		return false, err
	}
	return state.Running, nil
}

// startKeycloakContainer starts a new Keycloak container in dev mode.
// The master realm and its bootstrap admin are all the tests need, so no
// realm import is performed.
func startKeycloakContainer(ctx context.Context) (*SharedKeycloakContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        "quay.io/keycloak/keycloak:23.0",
		ExposedPorts: []string{"8080/tcp"},
		Env: map[string]string{
			"KEYCLOAK_ADMIN":          keycloakAdminUser,
			"KEYCLOAK_ADMIN_PASSWORD": keycloakAdminPassword,
			"KC_DB":                   "dev-file",
			"KC_HEALTH_ENABLED":       "true",
		},
		Cmd: []string{"start-dev"},
		HostConfigModifier: func(hc *container.HostConfig) {
			hc.Memory = keycloakContainerMemoryLimit
			hc.MemorySwap = keycloakContainerMemoryLimit
		},
		WaitingFor: wait.ForAll(
			wait.ForHTTP("/health/ready").
				WithPort("8080/tcp").
				WithStartupTimeout(keycloakContainerStartupTimeout),
		),
	}

	cont, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
		Reuse:            false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start Keycloak container: %w", err)
	}

	host, err := cont.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := cont.MappedPort(ctx, "8080")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	keycloakURL := fmt.Sprintf("http://%s", net.JoinHostPort(host, port.Port()))

	if err := waitForRealm(ctx, keycloakURL, keycloakRealm); err != nil {
		_ = cont.Terminate(ctx)
		return nil, fmt.Errorf("realm not ready: %w", err)
	}

	return &SharedKeycloakContainer{
		Container: cont,
		URL:       keycloakURL,
		AdminUser: keycloakAdminUser,
		AdminPass: keycloakAdminPassword,
		Realm:     keycloakRealm,
	}, nil
}

// waitForRealm waits for the realm to be ready
func waitForRealm(ctx context.Context, keycloakURL, realm string) error {
	realmURL := fmt.Sprintf("%s/realms/%s", keycloakURL, realm)
	client := &http.Client{Timeout: keycloakHealthTimeout}

	maxRetries := 30
	for range maxRetries {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, realmURL, nil)
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(keycloakHealthRetryDelay):
		}
	}
	return fmt.Errorf("realm %s not ready after %d attempts", realm, maxRetries)
}

// GetAdminToken obtains an admin access token
func (c *SharedKeycloakContainer) GetAdminToken(ctx context.Context) (string, error) {
	tokenURL := fmt.Sprintf("%s/realms/master/protocol/openid-connect/token", c.URL)

	data := url.Values{}
	data.Set("grant_type", "password")
	data.Set("client_id", "admin-cli")
	data.Set("username", c.AdminUser)
	data.Set("password", c.AdminPass)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := &http.Client{Timeout: keycloakHealthTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("failed to get admin token: %s", string(body))
	}

	var tokenResp KeycloakTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", err
	}

	return tokenResp.AccessToken, nil
}

// RealmExists checks if the realm exists
func (c *SharedKeycloakContainer) RealmExists(ctx context.Context) (bool, error) {
	realmURL := fmt.Sprintf("%s/realms/%s", c.URL, c.Realm)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, realmURL, nil)
	if err != nil {
		return false, err
	}

	client := &http.Client{Timeout: keycloakHealthTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK, nil
}

// SetupTestKeycloak creates a Keycloak container using the shared container.
// This is the recommended way to get a Keycloak container for tests.
func SetupTestKeycloak(t *testing.T) *SharedKeycloakContainer {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), keycloakContainerStartupTimeout)
	defer cancel()

	cont, err := GetSharedKeycloakContainer(ctx)
	if err != nil {
		t.Fatalf("Failed to get shared Keycloak container: %v", err)
	}

	// Verify container is healthy
	if exists, err := cont.RealmExists(ctx); err != nil || !exists {
		t.Fatalf("Keycloak realm not ready: exists=%v, err=%v", exists, err)
	}

	return cont
}

// CleanupSharedKeycloakContainer terminates the shared container.
// This is typically called from TestMain or when all tests are done.
func CleanupSharedKeycloakContainer() {
	sharedKeycloakContainerMu.Lock()
	defer sharedKeycloakContainerMu.Unlock()

	if sharedKeycloakContainer != nil {
		if sharedKeycloakContainer.Container != nil {
			ctx, cancel := context.WithTimeout(context.Background(), keycloakContainerTerminateTimeout)
			defer cancel()
			_ = sharedKeycloakContainer.Container.Terminate(ctx)
		}
		sharedKeycloakContainer = nil
	}
}
