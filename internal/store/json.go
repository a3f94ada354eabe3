package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/joescharf/digest/internal/models"
)

// JSONStore keeps every partition in memory and rewrites a single JSON
// document keyed by user id on each mutation.
type JSONStore struct {
	path  string
	locks *keyedMutex

	// mu guards data. Partitions in data are never mutated in place; an
	// update swaps in a new pointer.
	mu   sync.RWMutex
	data map[string]*models.Partition

	// fileMu serializes snapshot-and-write so concurrent users never
	// overwrite each other's changes on disk.
	fileMu    sync.Mutex
	writeFile func(path string, data []byte) error
}

// NewJSONStore opens the document at path, creating its directory if needed.
// A missing file starts an empty store.
func NewJSONStore(path string) (*JSONStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create state directory: %w", models.ErrPersistence, err)
	}

	s := &JSONStore{
		path:      path,
		locks:     newKeyedMutex(),
		data:      make(map[string]*models.Partition),
		writeFile: atomicWriteFile,
	}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("%w: read %s: %w", models.ErrPersistence, path, err)
	}

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &s.data); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %w", models.ErrPersistence, path, err)
		}
	}
	if s.data == nil {
		s.data = make(map[string]*models.Partition)
	}
	for user, p := range s.data {
		if p == nil {
			s.data[user] = models.NewPartition()
		}
	}
	return s, nil
}

// Path returns the backing document path.
func (s *JSONStore) Path() string { return s.path }

func (s *JSONStore) View(_ context.Context, user string) (*models.Partition, error) {
	if err := validUser(user); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.data[user]; ok {
		return p.Clone(), nil
	}
	return models.NewPartition(), nil
}

func (s *JSONStore) Update(ctx context.Context, user string, fn func(p *models.Partition) error) error {
	if err := validUser(user); err != nil {
		return err
	}
	unlock := s.locks.Lock(user)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	working, _ := s.View(ctx, user)
	if err := fn(working); err != nil {
		return err
	}

	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	s.mu.RLock()
	snapshot := maps.Clone(s.data)
	s.mu.RUnlock()
	snapshot[user] = working

	raw, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode state: %w", models.ErrPersistence, err)
	}
	if err := s.writeFile(s.path, raw); err != nil {
		return fmt.Errorf("%w: write %s: %w", models.ErrPersistence, s.path, err)
	}

	s.mu.Lock()
	s.data[user] = working
	s.mu.Unlock()
	return nil
}

func (s *JSONStore) Users(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.data)), nil
}

// Close is a no-op; every update is already on disk.
func (s *JSONStore) Close() error { return nil }

// atomicWriteFile writes to a sibling temp file and renames it over path, so
// readers see either the old document or the new one.
func atomicWriteFile(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
