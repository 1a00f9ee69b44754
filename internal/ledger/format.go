package ledger

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauern/blocksync/internal/model"
	"github.com/klauern/blocksync/internal/util"
)

const (
	fieldSep      = "|"
	commentPrefix = "#"
	escapePrefix  = `\`
	// FormatVersion is written into the ledger header.
	FormatVersion = "1"
)

// parseLedger reads ledger lines, returning the valid entries and the number
// of malformed lines skipped. A later line for the same identity wins.
func parseLedger(data []byte, logger *slog.Logger) ([]Entry, int) {
	var (
		entries []Entry
		skipped int
		lineNo  int
	)

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, commentPrefix) {
			continue
		}
		e, err := parseLine(line)
		if err != nil {
			logger.Debug("skipping ledger line", slog.Int("line", lineNo), slog.String("reason", err.Error()))
			skipped++
			continue
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		// Oversized line: keep what was read so far.
		logger.Warn("ledger read stopped early", slog.Int("line", lineNo), slog.String("reason", err.Error()))
		skipped++
	}
	return entries, skipped
}

func parseLine(line string) (Entry, error) {
	fields := strings.Split(line, fieldSep)
	if len(fields) < 4 {
		return Entry{}, fmt.Errorf("expected at least 4 fields, got %d", len(fields))
	}

	name := unescapeName(strings.TrimSpace(fields[0]))
	category := strings.TrimSpace(fields[1])
	if name == "" {
		return Entry{}, fmt.Errorf("empty name")
	}
	if category == "" {
		return Entry{}, fmt.Errorf("empty category")
	}

	modified, err := time.ParseInLocation(TimeLayout, strings.TrimSpace(fields[2]), time.Local)
	if err != nil {
		return Entry{}, fmt.Errorf("bad timestamp: %w", err)
	}

	// The source path may itself contain the separator. A trailing field
	// that is blank or a timestamp is the import time; the rest is the path.
	rest := fields[3:]
	var imported time.Time
	if n := len(rest); n > 1 {
		last := strings.TrimSpace(rest[n-1])
		if last == "" {
			rest = rest[:n-1]
		} else if t, err := time.ParseInLocation(TimeLayout, last, time.Local); err == nil {
			imported = t
			rest = rest[:n-1]
		}
	}

	source := strings.TrimSpace(strings.Join(rest, fieldSep))
	if source == "" {
		return Entry{}, fmt.Errorf("empty source path")
	}
	return Entry{
		Identity:     model.Identity{Name: name, Category: category},
		LastModified: modified,
		SourcePath:   source,
		ImportedAt:   imported,
	}, nil
}

func formatLine(e Entry) string {
	fields := []string{
		escapeName(e.Identity.Name),
		e.Identity.Category,
		e.LastModified.In(time.Local).Format(TimeLayout),
		e.SourcePath,
	}
	if !e.ImportedAt.IsZero() {
		fields = append(fields, e.ImportedAt.In(time.Local).Format(TimeLayout))
	}
	return strings.Join(fields, fieldSep)
}

// escapeName keeps a name starting with the comment prefix from reading back
// as a comment. A leading escape is itself escaped.
func escapeName(name string) string {
	if strings.HasPrefix(name, commentPrefix) || strings.HasPrefix(name, escapePrefix) {
		return escapePrefix + name
	}
	return name
}

func unescapeName(name string) string {
	return strings.TrimPrefix(name, escapePrefix)
}

func writeLedger(path string, entries []Entry, now time.Time) error {
	return util.WriteAtomic(path, FilePerm, func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		fmt.Fprintf(bw, "# blocksync ledger v%s\n", FormatVersion)
		fmt.Fprintf(bw, "# updated %s\n", now.In(time.Local).Format(TimeLayout))
		fmt.Fprintln(bw, "# Name|Category|LastModified|SourcePath|ImportedAt")
		for _, e := range entries {
			fmt.Fprintln(bw, formatLine(e))
		}
		return bw.Flush()
	})
}

// parseManifest returns the manifest paths and the number of lines skipped.
// Paths must be absolute.
func parseManifest(data []byte) ([]string, int) {
	var (
		paths   []string
		skipped int
	)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(strings.TrimRight(line, "\r"))
		if line == "" || strings.HasPrefix(line, commentPrefix) {
			continue
		}
		if !filepath.IsAbs(line) {
			skipped++
			continue
		}
		paths = append(paths, line)
	}
	return paths, skipped
}

func writeManifest(path string, paths []string) error {
	return util.WriteAtomic(path, FilePerm, func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		for _, p := range paths {
			fmt.Fprintln(bw, p)
		}
		return bw.Flush()
	})
}
