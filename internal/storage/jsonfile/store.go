// Package jsonfile implements [storage.Store] as a single flat JSON document,
// the default STATE_BACKEND. Each top-level key is a chat's storage key
// ("state_<chat_id>") mapping to its [storage.Checkpoint] value.
package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/harmonium/harmonium/internal/storage"
)

// Compile-time interface assertion.
var _ storage.Store = (*Store)(nil)

// Store is a [storage.Store] backed by one JSON file on disk. All operations
// serialize through a single mutex — simple, and sufficient for a single
// process owning all of its chats.
type Store struct {
	mu   sync.Mutex
	path string
}

// New returns a Store persisting to path. The file (and its parent
// directory) is created on first write if it does not already exist.
func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) read() ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return []byte("{}"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("jsonfile: read %q: %w", s.path, err)
	}
	if len(data) == 0 {
		return []byte("{}"), nil
	}
	return data, nil
}

// write persists data atomically by writing to a temp file and renaming it
// over the target, avoiding a torn file on crash mid-write.
func (s *Store) write(data []byte) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("jsonfile: mkdir %q: %w", dir, err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("jsonfile: write temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("jsonfile: rename temp file: %w", err)
	}
	return nil
}

// Get implements [storage.Store].
func (s *Store) Get(_ context.Context, key string) (storage.Checkpoint, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return storage.Checkpoint{}, false, err
	}
	result := gjson.GetBytes(data, gjsonKey(key))
	if !result.Exists() {
		return storage.Checkpoint{}, false, nil
	}
	var cp storage.Checkpoint
	if err := json.Unmarshal([]byte(result.Raw), &cp); err != nil {
		return storage.Checkpoint{}, false, fmt.Errorf("jsonfile: decode %q: %w", key, err)
	}
	return cp, true, nil
}

// Set implements [storage.Store].
func (s *Store) Set(_ context.Context, key string, value storage.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("jsonfile: encode %q: %w", key, err)
	}
	next, err := sjson.SetRawBytes(data, gjsonKey(key), encoded)
	if err != nil {
		return fmt.Errorf("jsonfile: set %q: %w", key, err)
	}
	return s.write(next)
}

// Delete implements [storage.Store]. It is a no-op if key is absent.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return err
	}
	next, err := sjson.DeleteBytes(data, gjsonKey(key))
	if err != nil {
		return fmt.Errorf("jsonfile: delete %q: %w", key, err)
	}
	return s.write(next)
}

// Scan implements [storage.Store].
func (s *Store) Scan(_ context.Context, prefix string) ([]storage.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return nil, err
	}

	var entries []storage.Entry
	gjson.ParseBytes(data).ForEach(func(key, value gjson.Result) bool {
		k := key.String()
		if !strings.HasPrefix(k, prefix) {
			return true
		}
		var cp storage.Checkpoint
		// A record that fails to decode is dropped rather than failing the
		// whole scan — one corrupt entry must not block every other chat's
		// resume.
		if err := json.Unmarshal([]byte(value.Raw), &cp); err != nil {
			return true
		}
		entries = append(entries, storage.Entry{Key: k, Value: cp})
		return true
	})
	return entries, nil
}

// gjsonKey escapes a storage key for use as a gjson/sjson top-level path
// segment. Chat-keyed paths ("state_123") contain no path metacharacters in
// practice, but dots would otherwise be parsed as nesting separators.
func gjsonKey(key string) string {
	return strings.ReplaceAll(key, ".", `\.`)
}
