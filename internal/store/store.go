// Package store persists per-user partitions of projects, issues and settings.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/joescharf/digest/internal/models"
)

// Store defines the persistence interface for digest. Every user owns one
// independent partition.
type Store interface {
	// View returns a private copy of the user's partition. Unknown users get
	// an empty partition with default settings.
	View(ctx context.Context, user string) (*models.Partition, error)

	// Update runs fn against a working copy of the user's partition and
	// persists the result atomically. Updates for the same user serialize.
	// If fn or the write fails, neither memory nor storage changes.
	Update(ctx context.Context, user string, fn func(p *models.Partition) error) error

	// Users lists every user with a stored partition, sorted.
	Users(ctx context.Context) ([]string, error)

	Close() error
}

// Backend names accepted by Open.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Open creates a store for the named backend at path.
func Open(ctx context.Context, backend, path string) (Store, error) {
	switch backend {
	case BackendJSON, "":
		return NewJSONStore(path)
	case BackendSQLite:
		s, err := NewSQLiteStore(path)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q: %w", backend, models.ErrValidation)
	}
}

// keyedMutex hands out one mutex per key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

// Lock blocks until the key's mutex is held and returns its unlock func.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func validUser(user string) error {
	if user == "" {
		return fmt.Errorf("empty user id: %w", models.ErrValidation)
	}
	return nil
}
