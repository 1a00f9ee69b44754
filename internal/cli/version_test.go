package cli

import (
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/klauern/blocksync/internal/util"
)

func TestVersionCommand(t *testing.T) {
	newWorkspace(t)

	oldVersion, oldCommit, oldDate := Version, Commit, BuildDate
	Version, Commit, BuildDate = "1.2.3", "abc1234", "2024-03-01T09:30:00Z"
	t.Cleanup(func() { Version, Commit, BuildDate = oldVersion, oldCommit, oldDate })

	out := mustRun(t, "version")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	want := []string{
		"blocksync version 1.2.3",
		"  commit: abc1234",
		"  built: 2024-03-01T09:30:00Z",
		"  go: " + runtime.Version(),
	}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d: %q", len(want), len(lines), out)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i+1, lines[i], want[i])
		}
	}
}

func TestBrokenConfigIsReported(t *testing.T) {
	ws := newWorkspace(t)
	util.WriteFile(t, filepath.Join(ws.home, "config.yaml"), "source: [unterminated")

	_, err := runCLI(t, "", "status")
	if err == nil || !strings.Contains(err.Error(), "failed to load config") {
		t.Errorf("expected a config load error, got %v", err)
	}
}
