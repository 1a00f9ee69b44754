package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/klauern/blocksync/internal/model"
	"github.com/klauern/blocksync/internal/sync"
)

// maxListedIdentities bounds how many new identities a prompt prints.
const maxListedIdentities = 20

// prompter asks yes/no questions: with a huh form when in is a terminal,
// with a plain y/N line otherwise.
type prompter struct {
	reader *bufio.Reader
	out    io.Writer
	form   bool
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	p := &prompter{reader: bufio.NewReader(in), out: out}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.form = true
	}
	return p
}

// Ask blocks until the question is answered or ctx is done. Anything but
// an explicit yes is a no.
func (p *prompter) Ask(ctx context.Context, question string) (bool, error) {
	if p.form {
		return p.askForm(ctx, question)
	}
	return p.askLine(ctx, question)
}

func (p *prompter) askForm(ctx context.Context, question string) (bool, error) {
	ok := false
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(question).
				Affirmative("Yes").
				Negative("No").
				Value(&ok),
		),
	)
	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, fmt.Errorf("confirmation failed: %w", err)
	}
	return ok, nil
}

func (p *prompter) askLine(ctx context.Context, question string) (bool, error) {
	_, _ = fmt.Fprintf(p.out, "%s [y/N]: ", question)

	type answer struct {
		line string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := p.reader.ReadString('\n')
		ch <- answer{line, err}
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case a := <-ch:
		if a.err != nil && !errors.Is(a.err, io.EOF) {
			return false, fmt.Errorf("failed to read answer: %w", a.err)
		}
		switch strings.ToLower(strings.TrimSpace(a.line)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	}
}

// confirmAction asks a yes/no question on the terminal.
func confirmAction(ctx context.Context, question string) (bool, error) {
	return newPrompter(os.Stdin, os.Stderr).Ask(ctx, question)
}

// identityConfirmer lists the identities an import would add and asks
// whether to go ahead.
type identityConfirmer struct {
	p *prompter
}

func (c *identityConfirmer) Confirm(ctx context.Context, ids []model.Identity) (bool, error) {
	describeNew(c.p.out, ids)
	return c.p.Ask(ctx, "Import these entries?")
}

// newConfirmer returns the confirmer for an import: none with --yes,
// an interactive prompt otherwise.
func newConfirmer(yes bool, in io.Reader, out io.Writer) sync.Confirmer {
	if yes {
		return sync.AlwaysConfirm
	}
	return &identityConfirmer{p: newPrompter(in, out)}
}

// describeNew writes the identities an import would add.
func describeNew(w io.Writer, ids []model.Identity) {
	_, _ = fmt.Fprintf(w, "\n%d new entr%s will be added to the store:\n", len(ids), plural(len(ids), "y", "ies"))
	for i, id := range ids {
		if i == maxListedIdentities {
			_, _ = fmt.Fprintf(w, "  ... and %d more\n", len(ids)-i)
			break
		}
		_, _ = fmt.Fprintf(w, "  + %s\n", id)
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
