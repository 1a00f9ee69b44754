package e2e

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"testing"
)

// describe renders a result for failure messages.
func describe(r *Result) string {
	return fmt.Sprintf("exit=%d err=%v\n--- stdout\n%s--- stderr\n%s", r.ExitCode, r.Err, r.Stdout, r.Stderr)
}

// AssertSuccess stops the test unless the command succeeded.
func AssertSuccess(t *testing.T, r *Result) {
	t.Helper()
	if !r.Success() {
		t.Fatalf("command failed\n%s", describe(r))
	}
}

// AssertError stops the test unless the command failed.
func AssertError(t *testing.T, r *Result) {
	t.Helper()
	if r.Success() {
		t.Fatalf("command succeeded, expected a failure\n%s", describe(r))
	}
}

// AssertErrorContains checks that the command failed with substr in its error.
func AssertErrorContains(t *testing.T, r *Result, substr string) {
	t.Helper()
	AssertError(t, r)
	if !strings.Contains(r.Err.Error(), substr) {
		t.Errorf("error %q does not mention %q", r.Err, substr)
	}
}

// AssertExitCode checks the process exit code the command maps to.
func AssertExitCode(t *testing.T, r *Result, want int) {
	t.Helper()
	if r.ExitCode != want {
		t.Errorf("exit code = %d, want %d\n%s", r.ExitCode, want, describe(r))
	}
}

// AssertOutputContains checks stdout for substr.
func AssertOutputContains(t *testing.T, r *Result, substr string) {
	t.Helper()
	if !strings.Contains(r.Stdout, substr) {
		t.Errorf("stdout lacks %q\n%s", substr, describe(r))
	}
}

// AssertOutputNotContains checks that stdout never mentions substr.
func AssertOutputNotContains(t *testing.T, r *Result, substr string) {
	t.Helper()
	if strings.Contains(r.Stdout, substr) {
		t.Errorf("stdout unexpectedly has %q\n%s", substr, describe(r))
	}
}

// AssertOutputEquals compares stdout byte for byte.
func AssertOutputEquals(t *testing.T, r *Result, want string) {
	t.Helper()
	if r.Stdout != want {
		t.Errorf("stdout = %q, want %q", r.Stdout, want)
	}
}

// AssertStderrContains checks stderr for substr.
func AssertStderrContains(t *testing.T, r *Result, substr string) {
	t.Helper()
	if !strings.Contains(r.Stderr, substr) {
		t.Errorf("stderr lacks %q\n%s", substr, describe(r))
	}
}

// AssertCount checks a summary line such as "Created:   2", whatever the
// padding between the label and the number.
func AssertCount(t *testing.T, r *Result, label string, want int) {
	t.Helper()
	re := regexp.MustCompile(`(?m)^\s*` + regexp.QuoteMeta(label) + `:\s+(\d+)\s*$`)
	m := re.FindStringSubmatch(r.Stdout)
	if m == nil {
		t.Errorf("no %q count in stdout\n%s", label, describe(r))
		return
	}
	if got := m[1]; got != fmt.Sprint(want) {
		t.Errorf("%s = %s, want %d", label, got, want)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	// #nosec G304 - path is provided by test code
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

// AssertFileExists checks that path exists.
func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected %s to exist: %v", path, err)
	}
}

// AssertFileNotExists checks that nothing exists at path.
func AssertFileNotExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err == nil {
		t.Errorf("expected %s to be absent", path)
	}
}

// AssertFileContains checks the content of path for substr.
func AssertFileContains(t *testing.T, path, substr string) {
	t.Helper()
	if got := readFile(t, path); !strings.Contains(got, substr) {
		t.Errorf("%s lacks %q\ncontent: %s", path, substr, got)
	}
}

// AssertFileEquals compares the content of path byte for byte.
func AssertFileEquals(t *testing.T, path, want string) {
	t.Helper()
	if got := readFile(t, path); got != want {
		t.Errorf("%s = %q, want %q", path, got, want)
	}
}

// AssertSameContent checks that two files hold identical bytes, as a store
// must after a rollback.
func AssertSameContent(t *testing.T, a, b string) {
	t.Helper()
	if readFile(t, a) != readFile(t, b) {
		t.Errorf("%s and %s differ", a, b)
	}
}
