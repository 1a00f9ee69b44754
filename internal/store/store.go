// Package store defines the document store port the sync engine mutates.
//
// A document store is an opaque container of named, categorized entries held
// in a single file. Adapters live in subpackages; the core only depends on
// the DocumentStore interface.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/klauern/blocksync/internal/model"
)

var (
	// ErrNotOpen is returned when an operation runs before Open or after Close.
	ErrNotOpen = errors.New("store is not open")
	// ErrNotFound is returned when an entry does not exist in the store.
	ErrNotFound = errors.New("entry not found in store")
	// ErrStoreMissing is returned by Open when the store file does not exist.
	ErrStoreMissing = errors.New("store file does not exist")
)

// Entry describes one entry held by a store.
type Entry struct {
	Identity  model.Identity `json:"identity" yaml:"identity"`
	Size      int64          `json:"size" yaml:"size"`
	Source    string         `json:"source,omitempty" yaml:"source,omitempty"`
	UpdatedAt time.Time      `json:"updated_at" yaml:"updated_at"`
}

// DocumentStore is the external store of entries. Mutations are staged
// until Save; Close discards anything not saved.
type DocumentStore interface {
	// Open opens the store file at path.
	Open(ctx context.Context, path string) error

	// Add inserts or replaces the entry for id with the content of the file
	// at contentSource.
	Add(ctx context.Context, id model.Identity, contentSource string) error

	// Find reports whether the entry exists.
	Find(ctx context.Context, id model.Identity) (bool, error)

	// Remove deletes the entry. It returns ErrNotFound when absent.
	Remove(ctx context.Context, id model.Identity) error

	// Export writes the entry's content to outputPath, replacing any file there.
	Export(ctx context.Context, id model.Identity, outputPath string) error

	// List returns entries whose category matches categoryPrefix, sorted by identity.
	List(ctx context.Context, categoryPrefix string) ([]Entry, error)

	// Save persists staged mutations as a single unit.
	Save(ctx context.Context) error

	// Close releases the store. Unsaved mutations are discarded.
	Close() error
}

// MatchesCategory reports whether category equals prefix or lies below it.
// An empty prefix matches everything.
func MatchesCategory(category, prefix string) bool {
	prefix = strings.Trim(prefix, model.CategorySeparator)
	if prefix == "" {
		return true
	}
	return category == prefix || strings.HasPrefix(category, prefix+model.CategorySeparator)
}
