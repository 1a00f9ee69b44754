// Package progress renders orchestrator progress events on the terminal.
package progress

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/klauern/blocksync/internal/logging"
	"github.com/klauern/blocksync/internal/sync"
	"github.com/klauern/blocksync/internal/ui"
)

// Bar is a 0-100 batch progress bar. When the output is not a terminal,
// colors are off or debug logging is on, it draws nothing and reports
// status changes to the debug log instead.
type Bar struct {
	bar  *progressbar.ProgressBar
	desc string
	last sync.State
}

// Options configures a Bar.
type Options struct {
	// Description is shown before the bar until a status event replaces it.
	Description string
	// Writer receives the bar. Defaults to os.Stderr.
	Writer io.Writer
}

// New returns a bar for one batch.
func New(opts Options) *Bar {
	if opts.Writer == nil {
		opts.Writer = os.Stderr
	}
	b := &Bar{desc: opts.Description}
	if !shouldShowProgress(opts.Writer) {
		logging.Debug("batch started", logging.Operation(opts.Description))
		return b
	}

	b.bar = progressbar.NewOptions(100,
		progressbar.OptionSetDescription(opts.Description),
		progressbar.OptionSetWriter(opts.Writer),
		progressbar.OptionSetWidth(20),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionThrottle(50*time.Millisecond),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionEnableColorCodes(ui.IsColorEnabled()),
	)
	return b
}

// ForBatch returns a bar and the callback that drives it, ready to hand to
// sync.WithProgress.
func ForBatch(description string, w io.Writer) (*Bar, sync.ProgressFunc) {
	b := New(Options{Description: description, Writer: w})
	return b, b.Observe
}

// Observe applies one orchestrator event. Status messages replace the
// description and percentages move the bar.
func (b *Bar) Observe(ev sync.ProgressEvent) {
	switch ev.Type {
	case sync.ProgressStatus:
		if ev.Message == "" {
			return
		}
		b.desc = ev.Message
		if b.bar != nil {
			b.bar.Describe(ev.Message)
		}
	case sync.ProgressPercent:
		if b.bar != nil {
			_ = b.bar.Set(ev.Percent)
		}
	case sync.ProgressState:
		if ev.State != b.last {
			b.last = ev.State
			logging.Debug("batch state", logging.State(string(ev.State)))
		}
	}
}

// Clear removes the bar from the terminal so a report can follow.
func (b *Bar) Clear() error {
	if b.bar == nil {
		logging.Debug("batch finished", logging.Operation(b.desc))
		return nil
	}
	return b.bar.Clear()
}

// Enabled reports whether the bar draws anything.
func (b *Bar) Enabled() bool {
	return b.bar != nil
}

// Description returns the text currently shown before the bar.
func (b *Bar) Description() string {
	return b.desc
}

// State returns the last orchestrator state observed.
func (b *Bar) State() sync.State {
	return b.last
}

func shouldShowProgress(w io.Writer) bool {
	if !ui.IsColorEnabled() {
		return false
	}
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return false
	}
	return !logging.Default().Enabled(context.Background(), logging.LevelDebug)
}
