package watch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/klauern/blocksync/internal/util"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestWatcher(t *testing.T, opts Options) *Watcher {
	t.Helper()
	opts.Logger = quietLogger()
	w, err := New(opts)
	util.AssertNoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

// start runs the watcher in the background and waits until the root is watched.
func start(t *testing.T, w *Watcher, handle Handler) (cancel func(), done <-chan error) {
	t.Helper()
	ctx, cancelFn := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx, handle) }()

	deadline := time.Now().Add(5 * time.Second)
	for len(w.Watched()) == 0 {
		if time.Now().After(deadline) {
			cancelFn()
			t.Fatal("watcher did not start")
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cancelFn, errc
}

func TestNew_Validation(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file.txt")
	util.WriteFile(t, file, "x")

	tests := map[string]Options{
		"empty root":   {},
		"missing root": {Root: filepath.Join(t.TempDir(), "missing")},
		"root is file": {Root: file},
	}
	for name, opts := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := New(opts); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNew_DefaultDebounce(t *testing.T) {
	w := newTestWatcher(t, Options{Root: t.TempDir()})
	util.AssertEqual(t, w.opts.Debounce, DefaultDebounce)
}

func TestAddTree_RespectsMaxDepth(t *testing.T) {
	root := t.TempDir()
	for _, d := range []string{"a/b/c", "x"} {
		if err := os.MkdirAll(filepath.Join(root, d), 0o750); err != nil {
			t.Fatal(err)
		}
	}

	w := newTestWatcher(t, Options{Root: root, MaxDepth: 1})
	util.AssertNoError(t, w.addTree(w.root))

	got := w.Watched()
	want := []string{w.root, filepath.Join(w.root, "a"), filepath.Join(w.root, "x")}
	if !slices.Equal(got, want) {
		t.Errorf("Watched() = %v, want %v", got, want)
	}

	w.forget(filepath.Join(w.root, "a"))
	util.AssertEqual(t, len(w.Watched()), 2)
}

func TestAddTree_Unlimited(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "a", "b", "c"), 0o750); err != nil {
		t.Fatal(err)
	}
	w := newTestWatcher(t, Options{Root: root, MaxDepth: -1})
	util.AssertNoError(t, w.addTree(w.root))
	util.AssertEqual(t, len(w.Watched()), 4)
}

func TestDepth(t *testing.T) {
	w := newTestWatcher(t, Options{Root: t.TempDir()})
	util.AssertEqual(t, w.depth(w.root), 0)
	util.AssertEqual(t, w.depth(filepath.Join(w.root, "a")), 1)
	util.AssertEqual(t, w.depth(filepath.Join(w.root, "a", "b")), 2)
}

func TestRun_DebouncesChanges(t *testing.T) {
	root := t.TempDir()
	w := newTestWatcher(t, Options{Root: root, MaxDepth: 5, Debounce: 200 * time.Millisecond})

	batches := make(chan []string, 10)
	cancel, done := start(t, w, func(_ context.Context, changed []string) error {
		batches <- changed
		return nil
	})
	defer cancel()

	foo := filepath.Join(w.root, "AT_Foo.docx")
	bar := filepath.Join(w.root, "AT_Bar.docx")
	util.WriteFile(t, foo, "foo")
	util.WriteFile(t, bar, "bar")

	select {
	case changed := <-batches:
		if !slices.Contains(changed, foo) || !slices.Contains(changed, bar) {
			t.Errorf("expected both files in one batch, got %v", changed)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("handler was not called")
	}

	cancel()
	select {
	case err := <-done:
		util.AssertNoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_WatchesNewDirectories(t *testing.T) {
	root := t.TempDir()
	w := newTestWatcher(t, Options{Root: root, MaxDepth: 5, Debounce: 100 * time.Millisecond})

	batches := make(chan []string, 10)
	cancel, _ := start(t, w, func(_ context.Context, changed []string) error {
		batches <- changed
		return nil
	})
	defer cancel()

	sub := filepath.Join(w.root, "Legal")
	if err := os.Mkdir(sub, 0o750); err != nil {
		t.Fatal(err)
	}
	select {
	case <-batches:
	case <-time.After(5 * time.Second):
		t.Fatal("no batch for new directory")
	}

	target := filepath.Join(sub, "AT_Bar.docx")
	util.WriteFile(t, target, "bar")
	deadline := time.After(5 * time.Second)
	for {
		select {
		case changed := <-batches:
			if slices.Contains(changed, target) {
				return
			}
		case <-deadline:
			t.Fatal("change inside new directory was not seen")
		}
	}
}

func TestRun_IgnoreAndHandlerErrors(t *testing.T) {
	root := t.TempDir()
	w := newTestWatcher(t, Options{
		Root:     root,
		MaxDepth: 5,
		Debounce: 100 * time.Millisecond,
		Ignore:   func(p string) bool { return strings.HasSuffix(p, ".tmp") },
	})

	batches := make(chan []string, 10)
	cancel, _ := start(t, w, func(_ context.Context, changed []string) error {
		batches <- changed
		return errors.New("store locked")
	})
	defer cancel()

	util.WriteFile(t, filepath.Join(w.root, "scratch.tmp"), "x")
	first := filepath.Join(w.root, "AT_Foo.docx")
	util.WriteFile(t, first, "foo")

	select {
	case changed := <-batches:
		for _, p := range changed {
			if strings.HasSuffix(p, ".tmp") {
				t.Errorf("ignored path reached the handler: %s", p)
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatal("handler was not called")
	}

	// A failing handler does not stop the watcher.
	second := filepath.Join(w.root, "AT_Bar.docx")
	util.WriteFile(t, second, "bar")
	deadline := time.After(5 * time.Second)
	for {
		select {
		case changed := <-batches:
			if slices.Contains(changed, second) {
				return
			}
		case <-deadline:
			t.Fatal("watcher stopped after a handler error")
		}
	}
}

func TestRun_AlreadyRunning(t *testing.T) {
	w := newTestWatcher(t, Options{Root: t.TempDir(), Debounce: time.Hour})
	cancel, _ := start(t, w, func(context.Context, []string) error { return nil })
	defer cancel()

	if err := w.Run(context.Background(), nil); !errors.Is(err, ErrRunning) {
		t.Errorf("expected ErrRunning, got %v", err)
	}
}
