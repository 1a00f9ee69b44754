// Package naming validates candidate file names and derives entry identities
// from their paths.
package naming

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/klauern/blocksync/internal/model"
)

// ReservedChars are the characters that may not appear in a file name.
const ReservedChars = `/\:*?"<>|`

// spaceReplacement replaces spaces in names and category segments.
const spaceReplacement = "_"

// Rules configures the naming convention.
type Rules struct {
	// Prefix every candidate file name must start with (case-insensitive).
	Prefix string
	// Extension every candidate file name must end with (case-insensitive).
	Extension string
	// RootCategory is assigned to files directly under the scan root. A
	// top-level directory of the same name is rejected so the category keeps
	// a single export location.
	RootCategory string
}

// DefaultRules returns the default naming convention.
func DefaultRules() Rules {
	return Rules{
		Prefix:       "AT_",
		Extension:    ".docx",
		RootCategory: "General",
	}
}

// Verdict is the outcome of classifying a file name.
type Verdict struct {
	Status model.Status
	Reason string
}

// Check verifies the rules themselves are usable.
func (r Rules) Check() error {
	if strings.TrimSpace(r.Prefix) == "" {
		return fmt.Errorf("prefix must not be empty")
	}
	if strings.TrimSpace(r.Extension) == "" {
		return fmt.Errorf("extension must not be empty")
	}
	if strings.TrimSpace(r.RootCategory) == "" {
		return fmt.Errorf("root category must not be empty")
	}
	if strings.ContainsAny(r.Prefix+r.Extension, ReservedChars) {
		return fmt.Errorf("prefix and extension must not contain reserved characters")
	}
	if strings.ContainsAny(r.RootCategory, ReservedChars) {
		return fmt.Errorf("root category %q contains a reserved character", r.RootCategory)
	}
	return nil
}

// Classify sorts a bare file name into valid, invalid or ignored.
// Names without the prefix or the extension are ignored; names that carry
// both but break another rule are invalid.
func (r Rules) Classify(fileName string) Verdict {
	if !hasPrefixFold(fileName, r.Prefix) {
		return Verdict{Status: model.StatusIgnored, Reason: fmt.Sprintf("missing prefix %q", r.Prefix)}
	}
	if !hasSuffixFold(fileName, r.Extension) {
		return Verdict{Status: model.StatusIgnored, Reason: fmt.Sprintf("missing extension %q", r.Extension)}
	}
	if i := strings.IndexAny(fileName, ReservedChars); i >= 0 {
		return Verdict{
			Status: model.StatusInvalid,
			Reason: fmt.Sprintf("contains reserved character %q", fileName[i]),
		}
	}
	if len(fileName) < len(r.Prefix)+len(r.Extension) || strings.TrimSpace(r.remainder(fileName)) == "" {
		return Verdict{Status: model.StatusInvalid, Reason: "name is blank after removing prefix and extension"}
	}
	return Verdict{Status: model.StatusValid}
}

// Validate reports whether fileName is a valid entry file, with the reason
// when it is not.
func (r Rules) Validate(fileName string) (bool, string) {
	v := r.Classify(fileName)
	return v.Status == model.StatusValid, v.Reason
}

// CheckSegment validates one directory segment between the root and a file.
func (r Rules) CheckSegment(segment string) error {
	if i := strings.IndexAny(segment, ReservedChars); i >= 0 {
		return fmt.Errorf("directory %q contains reserved character %q", segment, segment[i])
	}
	if strings.TrimSpace(segment) == "" {
		return fmt.Errorf("directory name is blank")
	}
	return nil
}

// DeriveIdentity computes the identity of the file at path relative to root.
// The file name must already be valid.
func (r Rules) DeriveIdentity(path, root string) (model.Identity, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return model.Identity{}, fmt.Errorf("failed to relate %q to root %q: %w", path, root, err)
	}
	if rel == "." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || rel == ".." {
		return model.Identity{}, fmt.Errorf("path %q is outside root %q", path, root)
	}

	dir, file := filepath.Split(rel)
	if ok, reason := r.Validate(file); !ok {
		return model.Identity{}, fmt.Errorf("invalid file name %q: %s", file, reason)
	}

	category := r.category(dir)
	if category == r.RootCategory && dir != "" {
		return model.Identity{}, fmt.Errorf("directory %q collides with the root category", strings.Trim(dir, `/\`))
	}
	return model.Identity{
		Name:     normalize(strings.TrimSpace(r.remainder(file))),
		Category: category,
	}, nil
}

// NormalizeIdentity applies the space rule to a user-supplied identity so it
// compares equal to one derived from a path. An empty category becomes the
// root category.
func (r Rules) NormalizeIdentity(id model.Identity) (model.Identity, error) {
	name := normalize(strings.TrimSpace(id.Name))
	if name == "" {
		return model.Identity{}, fmt.Errorf("name is blank")
	}
	if i := strings.IndexAny(name, ReservedChars); i >= 0 {
		return model.Identity{}, fmt.Errorf("name %q contains reserved character %q", name, name[i])
	}

	category := strings.Trim(strings.TrimSpace(id.Category), model.CategorySeparator)
	if category == "" {
		return model.Identity{Name: name, Category: r.RootCategory}, nil
	}
	segments := strings.Split(category, model.CategorySeparator)
	for i, seg := range segments {
		seg = strings.TrimSpace(seg)
		if err := r.CheckSegment(seg); err != nil {
			return model.Identity{}, err
		}
		segments[i] = normalize(seg)
	}
	return model.Identity{Name: name, Category: strings.Join(segments, model.CategorySeparator)}, nil
}

// FileName returns the file name an entry is written to on export.
func (r Rules) FileName(id model.Identity) string {
	return r.Prefix + id.Name + r.Extension
}

// RelativeDir returns the directory, relative to an export root, for a category.
// The root category maps to the export root itself.
func (r Rules) RelativeDir(category string) string {
	if category == "" || category == r.RootCategory {
		return ""
	}
	return filepath.Join(strings.Split(category, model.CategorySeparator)...)
}

func (r Rules) remainder(fileName string) string {
	return fileName[len(r.Prefix) : len(fileName)-len(r.Extension)]
}

func (r Rules) category(dir string) string {
	dir = strings.Trim(filepath.ToSlash(dir), "/")
	if dir == "" {
		return r.RootCategory
	}
	segments := strings.Split(dir, "/")
	for i, s := range segments {
		segments[i] = normalize(s)
	}
	return strings.Join(segments, model.CategorySeparator)
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func hasSuffixFold(s, suffix string) bool {
	return len(s) >= len(suffix) && strings.EqualFold(s[len(s)-len(suffix):], suffix)
}

func normalize(s string) string {
	return strings.ReplaceAll(s, " ", spaceReplacement)
}
