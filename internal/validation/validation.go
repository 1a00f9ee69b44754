// Package validation provides pre-batch validation checks for blocksync settings.
package validation

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauern/blocksync/internal/naming"
)

// Error represents a validation failure with context.
type Error struct {
	// Field is the name of the field or component that failed validation
	Field string
	// Message describes the validation failure
	Message string
	// Err is the underlying error (if any)
	Err error
}

// Error returns a formatted validation error message.
func (ve *Error) Error() string {
	if ve.Err != nil {
		return fmt.Sprintf("validation failed for %q: %s: %v", ve.Field, ve.Message, ve.Err)
	}
	return fmt.Sprintf("validation failed for %q: %s", ve.Field, ve.Message)
}

// Unwrap returns the underlying error for errors.Is/As.
func (ve *Error) Unwrap() error {
	return ve.Err
}

// Errors collects multiple validation errors.
type Errors []error

// Error returns a formatted error message for all validation failures.
func (ve Errors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}
	return fmt.Sprintf("%d validation errors:\n- %s", len(ve), errors.Join(ve...))
}

// Options configures validation behavior.
type Options struct {
	// RequireStore fails when the store file does not exist yet
	RequireStore bool
	// RequireWritePermission checks that the ledger directory is writable
	RequireWritePermission bool
}

// DefaultOptions returns the default validation options.
func DefaultOptions() Options {
	return Options{
		RequireStore:           true,
		RequireWritePermission: true,
	}
}

// Settings are the locations and rules a batch runs with.
type Settings struct {
	Root         string
	MaxDepth     int
	Rules        naming.Rules
	StorePath    string
	LedgerPath   string
	ManifestPath string
	BackupDir    string
}

// Result contains the outcome of a validation check.
type Result struct {
	// Valid indicates whether all validations passed
	Valid bool
	// Warnings contains non-fatal validation issues
	Warnings []string
	// Errors contains validation failures that prevent the operation
	Errors []error
}

// AddError adds an error to the validation result.
func (r *Result) AddError(err error) {
	r.Valid = false
	r.Errors = append(r.Errors, err)
}

// AddWarning adds a warning to the validation result.
func (r *Result) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// HasErrors returns true if there are any validation errors.
func (r *Result) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns the combined validation error message.
func (r *Result) Error() error {
	if !r.HasErrors() {
		return nil
	}
	if len(r.Errors) == 1 {
		return r.Errors[0]
	}
	return Errors(r.Errors)
}

// Summary returns a one-line verdict for the result.
func (r *Result) Summary() string {
	verdict := "Validation failed"
	switch {
	case r.Valid && len(r.Warnings) == 0:
		return "All validations passed"
	case r.Valid:
		verdict = "Validation passed with warnings"
	}
	if n := len(r.Warnings); n > 0 {
		verdict += fmt.Sprintf(" (%d warning(s))", n)
	}
	return verdict
}

// ValidateSettings checks everything a batch needs before it touches any file.
// The returned error is the combined error of the result.
func ValidateSettings(s Settings, opts Options) (*Result, error) {
	result := &Result{Valid: true}

	if err := ValidatePath(s.Root); err != nil {
		result.AddError(&Error{Field: "source.root", Message: "source root is not usable", Err: err})
	}
	if s.MaxDepth < 0 {
		result.AddError(&Error{Field: "source.max_depth", Message: fmt.Sprintf("must not be negative, got %d", s.MaxDepth)})
	}
	if err := s.Rules.Check(); err != nil {
		result.AddError(&Error{Field: "naming", Message: "invalid naming rules", Err: err})
	}

	if err := validateStore(s.StorePath, opts.RequireStore); err != nil {
		result.AddError(err)
	}

	files := map[string]string{
		"store.path":           s.StorePath,
		"ledger.path":          s.LedgerPath,
		"ledger.manifest_path": s.ManifestPath,
		"backup.location":      s.BackupDir,
	}
	seen := make(map[string]string, len(files))
	for _, field := range []string{"store.path", "ledger.path", "ledger.manifest_path", "backup.location"} {
		path := files[field]
		if path == "" {
			result.AddError(&Error{Field: field, Message: "path cannot be empty"})
			continue
		}
		abs := absClean(path)
		if other, ok := seen[abs]; ok {
			result.AddError(&Error{Field: field, Message: fmt.Sprintf("same path as %s: %s", other, abs)})
			continue
		}
		seen[abs] = field
		if s.Root != "" && isWithin(abs, absClean(s.Root)) {
			result.AddWarning(fmt.Sprintf("%s is inside the source tree: %s", field, abs))
		}
	}

	if opts.RequireWritePermission && s.LedgerPath != "" {
		if err := ValidateWritable(filepath.Dir(s.LedgerPath)); err != nil {
			result.AddError(err)
		}
	}

	return result, result.Error()
}

func validateStore(path string, mustExist bool) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	switch {
	case err == nil && info.IsDir():
		return &Error{Field: "store.path", Message: fmt.Sprintf("store path is a directory: %s", path)}
	case err == nil:
		return nil
	case os.IsNotExist(err) && mustExist:
		return &Error{
			Field:   "store.path",
			Message: fmt.Sprintf("store does not exist: %s (run 'blocksync store init')", path),
			Err:     err,
		}
	case os.IsNotExist(err):
		return nil
	default:
		return &Error{Field: "store.path", Message: fmt.Sprintf("cannot access store: %s", path), Err: err}
	}
}

// ValidatePath checks that path names an existing directory.
func ValidatePath(path string) error {
	if path == "" {
		return &Error{Field: "path", Message: "path cannot be empty"}
	}
	abs := absClean(path)
	info, err := os.Stat(abs)
	switch {
	case os.IsNotExist(err):
		return &Error{Field: "path", Message: "path does not exist: " + abs, Err: err}
	case err != nil:
		return &Error{Field: "path", Message: "cannot access path: " + abs, Err: err}
	case !info.IsDir():
		return &Error{Field: "path", Message: "path is not a directory: " + abs}
	}
	return nil
}

// ValidateWritable checks that dir, or its nearest existing parent, accepts
// new files. Ledger and manifest saves create their parents on demand.
func ValidateWritable(dir string) error {
	path := nearestExisting(dir)
	probe, err := os.CreateTemp(path, ".blocksync-write-test-*")
	if err != nil {
		return &Error{Field: "write permission", Message: "directory is not writable: " + path, Err: err}
	}
	_ = probe.Close()
	_ = os.Remove(probe.Name())
	return nil
}

func nearestExisting(path string) string {
	for {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(path)
		if parent == path {
			return path
		}
		path = parent
	}
}

func absClean(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}

func isWithin(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
