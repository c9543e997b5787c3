// Package credstore persists the API credential token between runs.
package credstore

import (
	"context"
	"strings"
	"sync"
)

// TokenKey is the fixed key the token is stored under.
const TokenKey = "auth_token"

type Store interface {
	// Token returns "" when no token is stored.
	Token(ctx context.Context) (string, error)
	SetToken(ctx context.Context, token string) error
	Clear(ctx context.Context) error
	Close() error
}

// Open returns a bbolt-backed store for a non-empty path and an in-memory
// store otherwise.
func Open(path string) (Store, error) {
	if strings.TrimSpace(path) == "" {
		return NewMemory(), nil
	}
	return OpenBolt(path)
}

type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.values[TokenKey], nil
}

func (m *Memory) SetToken(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if token == "" {
		delete(m.values, TokenKey)
		return nil
	}
	m.values[TokenKey] = token
	return nil
}

func (m *Memory) Clear(ctx context.Context) error {
	return m.SetToken(ctx, "")
}

func (m *Memory) Close() error {
	return nil
}
