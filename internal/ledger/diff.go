package ledger

import (
	"sort"

	"github.com/klauern/blocksync/internal/logging"
	"github.com/klauern/blocksync/internal/model"
)

// State classifies an identity against the ledger.
type State string

const (
	StateNew      State = "new"
	StateModified State = "modified"
	StateUpToDate State = "up-to-date"
	StateMissing  State = "missing"
	StateRemoved  State = "removed"
)

// Item is a scanned descriptor with its classification.
type Item struct {
	Descriptor model.Descriptor `json:"descriptor" yaml:"descriptor"`
	State      State            `json:"state" yaml:"state"`
	// Previous is the ledger entry the descriptor was compared against.
	Previous *Entry `json:"previous,omitempty" yaml:"previous,omitempty"`
}

// Gone is an identity known from a prior cycle that the current scan did not find.
type Gone struct {
	Identity model.Identity `json:"identity" yaml:"identity"`
	Path     string         `json:"path" yaml:"path"`
	State    State          `json:"state" yaml:"state"`
	Previous *Entry         `json:"previous,omitempty" yaml:"previous,omitempty"`
}

// Diff is the reconciliation of one scan against the ledger and manifest.
type Diff struct {
	New      []Item `json:"new" yaml:"new"`
	Modified []Item `json:"modified" yaml:"modified"`
	UpToDate []Item `json:"up_to_date" yaml:"up_to_date"`
	Missing  []Gone `json:"missing" yaml:"missing"`
	Removed  []Gone `json:"removed" yaml:"removed"`
	// Unresolved lists manifest paths whose identity could not be derived.
	Unresolved []string `json:"unresolved,omitempty" yaml:"unresolved,omitempty"`
}

// Resolver derives the identity of a manifest path that is no longer on disk.
type Resolver func(path string) (model.Identity, error)

// Diff classifies the valid descriptors of a scan. Manifest paths absent
// from the scan are resolved to identities with resolve; those identities
// become Missing when the ledger knows them and Removed otherwise. Ledger
// entries neither scanned nor accounted for by the manifest are Removed.
func (l *Ledger) Diff(descs []model.Descriptor, resolve Resolver) *Diff {
	d := &Diff{}

	scannedPaths := make(map[string]struct{}, len(descs))
	scannedIDs := make(map[model.Identity]struct{}, len(descs))

	for _, desc := range descs {
		if !desc.Valid() {
			continue
		}
		scannedPaths[desc.FullPath] = struct{}{}
		scannedIDs[desc.Identity] = struct{}{}

		item := Item{Descriptor: desc}
		prev, ok := l.entries[desc.Identity]
		switch {
		case !ok:
			item.State = StateNew
			d.New = append(d.New, item)
		case Truncate(desc.ModTime).After(prev.LastModified):
			item.State = StateModified
			item.Previous = &prev
			d.Modified = append(d.Modified, item)
		default:
			item.State = StateUpToDate
			item.Previous = &prev
			d.UpToDate = append(d.UpToDate, item)
		}
	}

	accounted := make(map[model.Identity]struct{})
	for _, p := range l.Manifest() {
		if _, ok := scannedPaths[p]; ok {
			continue
		}
		if resolve == nil {
			d.Unresolved = append(d.Unresolved, p)
			continue
		}
		id, err := resolve(p)
		if err != nil {
			l.logger.Debug("cannot resolve manifest path", logging.Path(p), logging.Err(err))
			d.Unresolved = append(d.Unresolved, p)
			continue
		}
		if _, ok := scannedIDs[id]; ok {
			continue
		}
		if _, ok := accounted[id]; ok {
			continue
		}
		accounted[id] = struct{}{}

		gone := Gone{Identity: id, Path: p}
		if prev, ok := l.entries[id]; ok {
			gone.State = StateMissing
			gone.Previous = &prev
			d.Missing = append(d.Missing, gone)
		} else {
			gone.State = StateRemoved
			d.Removed = append(d.Removed, gone)
		}
	}

	for id, e := range l.entries {
		if _, ok := scannedIDs[id]; ok {
			continue
		}
		if _, ok := accounted[id]; ok {
			continue
		}
		prev := e
		d.Removed = append(d.Removed, Gone{Identity: id, Path: e.SourcePath, State: StateRemoved, Previous: &prev})
	}

	d.sort()
	return d
}

func (d *Diff) sort() {
	byPath := func(items []Item) {
		sort.Slice(items, func(i, j int) bool { return items[i].Descriptor.FullPath < items[j].Descriptor.FullPath })
	}
	byID := func(gone []Gone) {
		sort.Slice(gone, func(i, j int) bool { return gone[i].Identity.Less(gone[j].Identity) })
	}
	byPath(d.New)
	byPath(d.Modified)
	byPath(d.UpToDate)
	byID(d.Missing)
	byID(d.Removed)
	sort.Strings(d.Unresolved)
}

// Pending returns New followed by Modified items, sorted by path.
func (d *Diff) Pending() []Item {
	out := make([]Item, 0, len(d.New)+len(d.Modified))
	out = append(out, d.New...)
	out = append(out, d.Modified...)
	sort.Slice(out, func(i, j int) bool { return out[i].Descriptor.FullPath < out[j].Descriptor.FullPath })
	return out
}

// All returns every scanned item regardless of state, sorted by path.
func (d *Diff) All() []Item {
	out := d.Pending()
	out = append(out, d.UpToDate...)
	sort.Slice(out, func(i, j int) bool { return out[i].Descriptor.FullPath < out[j].Descriptor.FullPath })
	return out
}

// NewIdentities returns the identities never imported before.
func (d *Diff) NewIdentities() []model.Identity {
	out := make([]model.Identity, 0, len(d.New))
	for _, it := range d.New {
		out = append(out, it.Descriptor.Identity)
	}
	return out
}

// InSync reports whether nothing needs importing and nothing went missing.
func (d *Diff) InSync() bool {
	return len(d.New) == 0 && len(d.Modified) == 0 && len(d.Missing) == 0
}

// Counts returns the number of items per state.
func (d *Diff) Counts() map[State]int {
	return map[State]int{
		StateNew:      len(d.New),
		StateModified: len(d.Modified),
		StateUpToDate: len(d.UpToDate),
		StateMissing:  len(d.Missing),
		StateRemoved:  len(d.Removed),
	}
}
