// Package mock provides an in-memory store.DocumentStore for testing.
//
// When opened on a path the mock persists its entries to that file as JSON
// on Save, so file-level snapshot and restore can be exercised against it.
package mock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/klauern/blocksync/internal/model"
	"github.com/klauern/blocksync/internal/store"
	"github.com/klauern/blocksync/internal/util"
)

type record struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Content  []byte `json:"content"`
	Source   string `json:"source,omitempty"`
}

// Store is a mock implementation of store.DocumentStore.
type Store struct {
	mu sync.Mutex

	path    string
	open    bool
	saved   map[model.Identity]record
	staged  map[model.Identity]record
	removed map[model.Identity]bool

	openErr    error
	saveErr    error
	closeErr   error
	corrupt    bool
	addErrs    map[model.Identity]error
	exportErrs map[model.Identity]error

	calls map[string]int
}

// Ensure Store implements DocumentStore
var _ store.DocumentStore = (*Store)(nil)

// New creates a new mock store.
func New() *Store {
	return &Store{
		saved:      make(map[model.Identity]record),
		addErrs:    make(map[model.Identity]error),
		exportErrs: make(map[model.Identity]error),
		calls:      make(map[string]int),
	}
}

// WithOpenError makes Open fail.
func (s *Store) WithOpenError(err error) *Store {
	s.openErr = err
	return s
}

// WithSaveError makes Save fail. When corrupt is set the store file is
// overwritten with garbage before the error is returned.
func (s *Store) WithSaveError(err error, corrupt bool) *Store {
	s.saveErr = err
	s.corrupt = corrupt
	return s
}

// WithCloseError makes Close report err. The store is closed regardless.
func (s *Store) WithCloseError(err error) *Store {
	s.closeErr = err
	return s
}

// WithAddError makes Add fail for one identity.
func (s *Store) WithAddError(id model.Identity, err error) *Store {
	s.addErrs[id] = err
	return s
}

// WithExportError makes Export fail for one identity.
func (s *Store) WithExportError(id model.Identity, err error) *Store {
	s.exportErrs[id] = err
	return s
}

// Seed stores content for an identity as if it had been saved.
func (s *Store) Seed(id model.Identity, content string) *Store {
	s.saved[id] = record{Name: id.Name, Category: id.Category, Content: []byte(content)}
	return s
}

// Open implements store.DocumentStore. An empty path keeps the store in memory.
func (s *Store) Open(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["Open"]++

	if s.openErr != nil {
		return s.openErr
	}
	if s.open {
		return fmt.Errorf("store already open at %s", s.path)
	}
	if path != "" {
		loaded, err := load(path)
		if err != nil {
			return err
		}
		s.saved = loaded
	}
	s.path = path
	s.open = true
	s.staged = make(map[model.Identity]record)
	s.removed = make(map[model.Identity]bool)
	return nil
}

// Add implements store.DocumentStore.
func (s *Store) Add(ctx context.Context, id model.Identity, contentSource string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["Add"]++

	if !s.open {
		return store.ErrNotOpen
	}
	if err := s.addErrs[id]; err != nil {
		return err
	}
	// #nosec G304 - test fixture path
	content, err := os.ReadFile(contentSource)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", contentSource, err)
	}
	s.staged[id] = record{Name: id.Name, Category: id.Category, Content: content, Source: contentSource}
	delete(s.removed, id)
	return nil
}

// Find implements store.DocumentStore.
func (s *Store) Find(ctx context.Context, id model.Identity) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["Find"]++

	if !s.open {
		return false, store.ErrNotOpen
	}
	_, ok := s.lookup(id)
	return ok, nil
}

// Remove implements store.DocumentStore.
func (s *Store) Remove(ctx context.Context, id model.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["Remove"]++

	if !s.open {
		return store.ErrNotOpen
	}
	if _, ok := s.lookup(id); !ok {
		return fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	delete(s.staged, id)
	s.removed[id] = true
	return nil
}

// Export implements store.DocumentStore.
func (s *Store) Export(ctx context.Context, id model.Identity, outputPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["Export"]++

	if !s.open {
		return store.ErrNotOpen
	}
	if err := s.exportErrs[id]; err != nil {
		return err
	}
	r, ok := s.lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	return util.WriteFileAtomic(outputPath, r.Content, 0o644)
}

// List implements store.DocumentStore.
func (s *Store) List(ctx context.Context, categoryPrefix string) ([]store.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["List"]++

	if !s.open {
		return nil, store.ErrNotOpen
	}
	var entries []store.Entry
	for id, r := range s.view() {
		if !store.MatchesCategory(id.Category, categoryPrefix) {
			continue
		}
		entries = append(entries, store.Entry{Identity: id, Size: int64(len(r.Content)), Source: r.Source})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Identity.Less(entries[j].Identity) })
	return entries, nil
}

// Save implements store.DocumentStore.
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["Save"]++

	if !s.open {
		return store.ErrNotOpen
	}
	if s.saveErr != nil {
		if s.corrupt && s.path != "" {
			_ = os.WriteFile(s.path, []byte("\x00partial write"), 0o600)
		}
		return s.saveErr
	}

	next := s.view()
	if s.path != "" {
		if err := persist(s.path, next); err != nil {
			return err
		}
	}
	s.saved = next
	s.staged = make(map[model.Identity]record)
	s.removed = make(map[model.Identity]bool)
	return nil
}

// Close implements store.DocumentStore. Staged changes are dropped.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["Close"]++

	s.open = false
	s.staged = nil
	s.removed = nil
	return s.closeErr
}

// Calls returns how many times the named method was called.
func (s *Store) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// Mutations returns the number of Add and Remove calls.
func (s *Store) Mutations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls["Add"] + s.calls["Remove"]
}

// Saved returns the content last saved for an identity.
func (s *Store) Saved(id model.Identity) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.saved[id]
	return string(r.Content), ok
}

// IsOpen reports whether the store is open.
func (s *Store) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Reset resets the call counters.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = make(map[string]int)
}

func (s *Store) lookup(id model.Identity) (record, bool) {
	if r, ok := s.staged[id]; ok {
		return r, true
	}
	if s.removed[id] {
		return record{}, false
	}
	r, ok := s.saved[id]
	return r, ok
}

func (s *Store) view() map[model.Identity]record {
	out := make(map[model.Identity]record, len(s.saved)+len(s.staged))
	for id, r := range s.saved {
		if !s.removed[id] {
			out[id] = r
		}
	}
	for id, r := range s.staged {
		out[id] = r
	}
	return out
}

// Create writes an empty store file at path.
func Create(path string) error {
	return persist(path, map[model.Identity]record{})
}

func load(path string) (map[model.Identity]record, error) {
	// #nosec G304 - test fixture path
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", store.ErrStoreMissing, path)
	}
	if err != nil {
		return nil, err
	}
	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse store %s: %w", path, err)
	}
	out := make(map[model.Identity]record, len(records))
	for _, r := range records {
		out[model.Identity{Name: r.Name, Category: r.Category}] = r
	}
	return out, nil
}

func persist(path string, records map[model.Identity]record) error {
	list := make([]record, 0, len(records))
	for _, r := range records {
		list = append(list, r)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Category != list[j].Category {
			return list[i].Category < list[j].Category
		}
		return list[i].Name < list[j].Name
	})
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}
	return util.WriteFileAtomic(path, data, 0o640)
}
