package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauern/blocksync/internal/logging"
)

// swapDefault installs logger as the default for the duration of the test.
func swapDefault(t *testing.T, logger *slog.Logger) {
	t.Helper()
	prev := logging.Default()
	logging.SetDefault(logger)
	t.Cleanup(func() { logging.SetDefault(prev) })
}

func TestNew_Formats(t *testing.T) {
	tests := map[string]struct {
		json  bool
		check func(t *testing.T, out []byte)
	}{
		"text": {
			check: func(t *testing.T, out []byte) {
				if !strings.Contains(string(out), `msg="entry imported"`) || !strings.Contains(string(out), "entry=Foo") {
					t.Errorf("unexpected text record: %s", out)
				}
			},
		},
		"json": {
			json: true,
			check: func(t *testing.T, out []byte) {
				var rec map[string]any
				if err := json.Unmarshal(out, &rec); err != nil {
					t.Fatalf("invalid JSON record %q: %v", out, err)
				}
				if rec["msg"] != "entry imported" || rec[logging.KeyEntry] != "Foo" {
					t.Errorf("unexpected JSON record: %v", rec)
				}
			},
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := logging.New(logging.Options{Level: logging.LevelInfo, Output: &buf, JSON: tt.json})
			logger.Info("entry imported", logging.Entry("Foo"))
			tt.check(t, buf.Bytes())
		})
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.Options{Level: logging.LevelWarn, Output: &buf})

	logger.Info("scan finished")
	logger.Warn("ledger unreadable")

	out := buf.String()
	if strings.Contains(out, "scan finished") {
		t.Errorf("info record passed a warn-level logger: %s", out)
	}
	if !strings.Contains(out, "ledger unreadable") {
		t.Errorf("warn record missing: %s", out)
	}
}

func TestNew_AddSource(t *testing.T) {
	var buf bytes.Buffer
	logging.New(logging.Options{Level: logging.LevelInfo, Output: &buf, AddSource: true}).Info("located")

	if !strings.Contains(buf.String(), "logger_test.go") {
		t.Errorf("expected source location, got: %s", buf.String())
	}
}

func TestNew_NilOutputDefaultsToStderr(t *testing.T) {
	if logging.New(logging.Options{Level: logging.LevelInfo}) == nil {
		t.Fatal("New returned nil")
	}
}

func TestNew_FileHasItsOwnLevel(t *testing.T) {
	var buf bytes.Buffer
	logPath := filepath.Join(t.TempDir(), "logs", "blocksync.log")
	logger := logging.New(logging.Options{
		Level:  logging.LevelWarn,
		Output: &buf,
		File:   logging.FileOptions{Path: logPath, Level: logging.LevelInfo},
	})

	logger.With(logging.Operation("import")).Info("batch finished", logging.Count(2))
	logger.Error("store save failed")

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 file records, got %d:\n%s", len(lines), data)
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("file records should be JSON: %v", err)
	}
	if rec["operation"] != "import" || rec["count"] != float64(2) {
		t.Errorf("file record lost attributes: %v", rec)
	}

	out := buf.String()
	if strings.Contains(out, "batch finished") {
		t.Errorf("info record reached the warn-level terminal: %s", out)
	}
	if !strings.Contains(out, "store save failed") {
		t.Errorf("error record missing from terminal: %s", out)
	}
}

func TestDefaultOptions(t *testing.T) {
	opts := logging.DefaultOptions()
	if opts.Level != logging.LevelInfo || opts.Output != os.Stderr || opts.JSON || opts.File.Path != "" {
		t.Errorf("unexpected defaults: %+v", opts)
	}
}

func TestDefault_IsStableUntilReplaced(t *testing.T) {
	first := logging.Default()
	if first == nil || logging.Default() != first {
		t.Fatal("Default() should return the same logger on every call")
	}

	replacement := logging.New(logging.Options{Output: &bytes.Buffer{}})
	swapDefault(t, replacement)
	if logging.Default() != replacement {
		t.Error("SetDefault did not replace the default logger")
	}
	if slog.Default() != replacement {
		t.Error("SetDefault should also install the logger in slog")
	}
}

func TestPackageLevelHelpers(t *testing.T) {
	var buf bytes.Buffer
	swapDefault(t, logging.New(logging.Options{Level: logging.LevelDebug, Output: &buf}))

	logging.Debug("d-record")
	logging.Info("i-record")
	logging.Warn("w-record")
	logging.Error("e-record")
	logging.With("batch", "7").Info("with-record")

	out := buf.String()
	for _, want := range []string{"level=DEBUG", "level=INFO", "level=WARN", "level=ERROR", "d-record", "e-record", "batch=7"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestContext(t *testing.T) {
	if logging.FromContext(context.Background()) != nil {
		t.Error("FromContext on an empty context should be nil")
	}

	var defBuf, ctxBuf bytes.Buffer
	swapDefault(t, logging.New(logging.Options{Output: &defBuf}))
	ctxLogger := logging.New(logging.Options{Output: &ctxBuf})

	logging.WithContext(context.Background()).Info("to default")
	logging.WithContext(logging.NewContext(context.Background(), ctxLogger)).Info("to context")

	if !strings.Contains(defBuf.String(), "to default") || strings.Contains(defBuf.String(), "to context") {
		t.Errorf("default logger got: %s", defBuf.String())
	}
	if !strings.Contains(ctxBuf.String(), "to context") {
		t.Errorf("context logger got: %s", ctxBuf.String())
	}
}

func TestTimer(t *testing.T) {
	var buf bytes.Buffer
	swapDefault(t, logging.New(logging.Options{Level: logging.LevelDebug, Output: &buf}))

	logging.Timer("scan")()

	out := buf.String()
	if !strings.Contains(out, "operation=scan") || !strings.Contains(out, "duration=") {
		t.Errorf("unexpected timer record: %s", out)
	}
}

func TestAttributeHelpers(t *testing.T) {
	tests := map[string]struct {
		attr slog.Attr
		key  string
		want string
	}{
		"entry":     {logging.Entry("Foo"), logging.KeyEntry, "Foo"},
		"category":  {logging.Category("Legal/Contracts"), logging.KeyCategory, "Legal/Contracts"},
		"path":      {logging.Path("/srv/blocks/AT_Foo.docx"), logging.KeyPath, "/srv/blocks/AT_Foo.docx"},
		"operation": {logging.Operation("export"), logging.KeyOperation, "export"},
		"state":     {logging.State("saving"), logging.KeyState, "saving"},
		"backup":    {logging.BackupID("20240301-093000-000-abcd1234"), logging.KeyBackup, "20240301-093000-000-abcd1234"},
		"count":     {logging.Count(3), logging.KeyCount, "3"},
		"error":     {logging.Err(errors.New("disk full")), logging.KeyError, "disk full"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if tt.attr.Key != tt.key {
				t.Errorf("key = %q, want %q", tt.attr.Key, tt.key)
			}
			if got := tt.attr.Value.String(); got != tt.want {
				t.Errorf("value = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErr_NilIsDropped(t *testing.T) {
	if attr := logging.Err(nil); !attr.Equal(slog.Attr{}) {
		t.Errorf("Err(nil) = %v, want empty attribute", attr)
	}

	var buf bytes.Buffer
	logging.New(logging.Options{Output: &buf}).Info("ok", logging.Err(nil))
	if strings.Contains(buf.String(), logging.KeyError) {
		t.Errorf("nil error should not be logged: %s", buf.String())
	}
}
