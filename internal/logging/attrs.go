package logging

import "log/slog"

// Attribute keys shared by every package.
const (
	KeyEntry     = "entry"
	KeyCategory  = "category"
	KeyPath      = "path"
	KeyOperation = "operation"
	KeyState     = "state"
	KeyBackup    = "backup"
	KeyCount     = "count"
	KeyError     = "error"
	KeyDuration  = "duration"
)

// Entry names an entry.
func Entry(name string) slog.Attr { return slog.String(KeyEntry, name) }

// Category names an entry category.
func Category(c string) slog.Attr { return slog.String(KeyCategory, c) }

// Path is a filesystem path.
func Path(p string) slog.Attr { return slog.String(KeyPath, p) }

// Operation names the batch or step being run.
func Operation(op string) slog.Attr { return slog.String(KeyOperation, op) }

// State is an orchestrator state.
func State(s string) slog.Attr { return slog.String(KeyState, s) }

// BackupID is a store snapshot id.
func BackupID(id string) slog.Attr { return slog.String(KeyBackup, id) }

// Count is a number of items.
func Count(n int) slog.Attr { return slog.Int(KeyCount, n) }

// Err records err. A nil error gives an empty attribute, which slog drops.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any(KeyError, err)
}
