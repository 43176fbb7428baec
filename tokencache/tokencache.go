// Package tokencache provides storage backends for sharing issued admin
// tokens, satisfying the keycloak.TokenCache interface.
package tokencache

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process token cache. It is mainly useful in tests and
// as a reference implementation; the AdminTokenManager already caches
// in memory on its own.
type Memory struct {
	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{}
}

// Get returns the cached token. An expired entry reports a miss.
func (m *Memory) Get(_ context.Context) (string, time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.token == "" || !time.Now().Before(m.expiresAt) {
		return "", time.Time{}, nil
	}
	return m.token, m.expiresAt, nil
}

// Put stores a freshly issued token.
func (m *Memory) Put(_ context.Context, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	m.expiresAt = expiresAt
	return nil
}
