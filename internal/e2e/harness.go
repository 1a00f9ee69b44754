// Package e2e provides testing infrastructure for end-to-end CLI tests.
// It includes a harness for running CLI commands, fixtures for source trees,
// and assertions over captured output.
package e2e

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauern/blocksync/internal/cli"
)

// programName is prepended to arguments when the caller omits it.
const programName = "blocksync"

// Result contains the outcome of running a CLI command.
type Result struct {
	// Stdout contains the captured standard output.
	Stdout string
	// Stderr contains the captured standard error.
	Stderr string
	// Err is the error returned by the CLI command, if any.
	Err error
	// ExitCode is the inferred exit code (0 for success, 1 for error).
	ExitCode int
}

// Success returns true if the command completed without error.
func (r *Result) Success() bool {
	return r.Err == nil
}

// Harness provides a test harness for running E2E CLI tests.
// It manages environment isolation, temp directories, and output capture.
type Harness struct {
	t       *testing.T
	homeDir string
	env     map[string]string
}

// NewHarness creates a new E2E test harness.
// It sets up an isolated BLOCKSYNC_HOME and an empty source tree inside a
// fresh temp directory.
func NewHarness(t *testing.T) *Harness {
	t.Helper()

	homeDir := t.TempDir()

	h := &Harness{
		t:       t,
		homeDir: homeDir,
		env:     make(map[string]string),
	}

	h.SetEnv("HOME", homeDir)
	h.SetEnv("BLOCKSYNC_HOME", filepath.Join(homeDir, ".blocksync"))
	h.SetEnv("BLOCKSYNC_SOURCE_ROOT", filepath.Join(homeDir, "blocks"))
	h.SetEnv("BLOCKSYNC_CONFIG", "")

	return h
}

// SetEnv sets an environment variable for CLI commands run through this harness.
// The environment will be restored after the test completes.
func (h *Harness) SetEnv(key, value string) {
	h.t.Helper()
	h.env[key] = value
	h.t.Setenv(key, value)
}

// HomeDir returns the isolated home directory for this test harness.
func (h *Harness) HomeDir() string {
	return h.homeDir
}

// DataDir returns the blocksync home holding the store, ledger and backups.
func (h *Harness) DataDir() string {
	return h.env["BLOCKSYNC_HOME"]
}

// SourceRoot returns the directory scanned for building blocks.
func (h *Harness) SourceRoot() string {
	return h.env["BLOCKSYNC_SOURCE_ROOT"]
}

// Run executes a CLI command with the given arguments and captures the output.
func (h *Harness) Run(args ...string) *Result {
	h.t.Helper()
	return h.RunWithStdin("", args...)
}

// RunWithStdin executes a CLI command with stdin input and captures output.
// This is useful for testing commands that ask for confirmation.
func (h *Harness) RunWithStdin(stdin string, args ...string) *Result {
	h.t.Helper()

	if len(args) == 0 || args[0] != programName {
		args = append([]string{programName}, args...)
	}

	oldStdin, oldStdout, oldStderr := os.Stdin, os.Stdout, os.Stderr

	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		h.t.Fatalf("failed to create stdin pipe: %v", err)
	}
	go func() {
		defer func() {
			_ = stdinW.Close()
		}()
		_, _ = stdinW.WriteString(stdin)
	}()

	stdout, stdoutW := h.drain()
	stderr, stderrW := h.drain()
	os.Stdin, os.Stdout, os.Stderr = stdinR, stdoutW, stderrW

	cmdErr := cli.Run(context.Background(), args)

	// Closing the writers signals EOF to the readers.
	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdin, os.Stdout, os.Stderr = oldStdin, oldStdout, oldStderr
	_ = stdinR.Close()

	exitCode := 0
	if cmdErr != nil {
		exitCode = 1
	}

	return &Result{
		Stdout:   <-stdout,
		Stderr:   <-stderr,
		Err:      cmdErr,
		ExitCode: exitCode,
	}
}

// drain returns a pipe writer whose output is read concurrently, so a
// command writing more than the pipe buffer does not block.
func (h *Harness) drain() (<-chan string, *os.File) {
	h.t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		h.t.Fatalf("failed to create pipe: %v", err)
	}
	out := make(chan string, 1)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		_ = r.Close()
		out <- buf.String()
	}()
	return out, w
}
