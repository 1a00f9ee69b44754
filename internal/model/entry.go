// Package model defines the core types shared across blocksync packages.
package model

import (
	"fmt"
	"strings"
	"time"
)

// CategorySeparator joins directory segments into a category.
// Directory names can never contain it, which keeps categories unambiguous.
const CategorySeparator = "/"

// Identity is the unique key of an entry: a name inside a category.
type Identity struct {
	Name     string `json:"name" yaml:"name"`
	Category string `json:"category" yaml:"category"`
}

// Key returns the canonical "Category/Name" form of the identity.
func (id Identity) Key() string {
	return id.Category + CategorySeparator + id.Name
}

// String implements fmt.Stringer.
func (id Identity) String() string {
	return id.Key()
}

// Less orders identities by category, then name.
func (id Identity) Less(other Identity) bool {
	if id.Category != other.Category {
		return id.Category < other.Category
	}
	return id.Name < other.Name
}

// ParseIdentity parses the "Category/Name" form produced by Key.
// A value without a separator is placed in rootCategory.
func ParseIdentity(s, rootCategory string) (Identity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Identity{}, fmt.Errorf("empty identity")
	}
	idx := strings.LastIndex(s, CategorySeparator)
	if idx < 0 {
		return Identity{Name: s, Category: rootCategory}, nil
	}
	name := s[idx+1:]
	category := s[:idx]
	if name == "" {
		return Identity{}, fmt.Errorf("identity %q has an empty name", s)
	}
	if category == "" {
		category = rootCategory
	}
	return Identity{Name: name, Category: category}, nil
}

// Status is the outcome of validating a candidate file.
type Status string

const (
	// StatusValid marks a file that maps to an entry.
	StatusValid Status = "valid"
	// StatusInvalid marks a file that carries the naming convention but breaks a rule.
	StatusInvalid Status = "invalid"
	// StatusIgnored marks a file outside the naming convention.
	StatusIgnored Status = "ignored"
)

// Descriptor describes one candidate file found during a scan.
// Descriptors are rebuilt on every scan and never persisted.
type Descriptor struct {
	FullPath string    `json:"full_path" yaml:"full_path"`
	RelPath  string    `json:"rel_path" yaml:"rel_path"`
	Identity Identity  `json:"identity" yaml:"identity"`
	ModTime  time.Time `json:"mod_time" yaml:"mod_time"`
	Size     int64     `json:"size" yaml:"size"`
	Status   Status    `json:"status" yaml:"status"`
	Reason   string    `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Valid reports whether the descriptor passed validation.
func (d Descriptor) Valid() bool {
	return d.Status == StatusValid
}
