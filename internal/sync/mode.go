package sync

// Mode selects which scanned entries an import batch works on.
type Mode string

const (
	// ModePending imports new and modified entries.
	ModePending Mode = "pending"

	// ModeAll re-imports every valid entry regardless of ledger state.
	ModeAll Mode = "all"
)

// IsValid returns true if the mode is recognized.
func (m Mode) IsValid() bool {
	switch m {
	case ModePending, ModeAll:
		return true
	default:
		return false
	}
}

// AllModes returns all supported import modes.
func AllModes() []Mode {
	return []Mode{ModePending, ModeAll}
}

// String returns the string representation of the mode.
func (m Mode) String() string {
	return string(m)
}

// Description returns a human-readable description of the mode.
func (m Mode) Description() string {
	switch m {
	case ModePending:
		return "Import new and modified entries"
	case ModeAll:
		return "Re-import every valid entry"
	default:
		return "Unknown mode"
	}
}
