// Package report renders status, scan and batch results as tables, JSON,
// YAML or Markdown.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/klauern/blocksync/internal/logging"
)

// Format represents the output format of a report.
type Format string

const (
	// FormatTable renders aligned plain-text columns.
	FormatTable Format = "table"
	// FormatJSON renders JSON.
	FormatJSON Format = "json"
	// FormatYAML renders YAML.
	FormatYAML Format = "yaml"
	// FormatMarkdown renders a Markdown document.
	FormatMarkdown Format = "markdown"
)

// IsValid returns true if the format is recognized.
func (f Format) IsValid() bool {
	switch f {
	case FormatTable, FormatJSON, FormatYAML, FormatMarkdown:
		return true
	default:
		return false
	}
}

// String returns the string representation of the format.
func (f Format) String() string {
	return string(f)
}

// AllFormats returns all supported report formats.
func AllFormats() []Format {
	return []Format{FormatTable, FormatJSON, FormatYAML, FormatMarkdown}
}

// ParseFormat parses a string into a Format. "md" is accepted for Markdown.
func ParseFormat(s string) (Format, error) {
	format := Format(strings.ToLower(strings.TrimSpace(s)))
	if format == "md" {
		format = FormatMarkdown
	}
	if !format.IsValid() {
		return "", fmt.Errorf("unsupported format %q (valid: table, json, yaml, markdown)", s)
	}
	return format, nil
}

// Options configures rendering.
type Options struct {
	// Format specifies the output format.
	Format Format
	// Pretty enables indentation for JSON/YAML.
	Pretty bool
	// Verbose adds up-to-date entries and ignored files to tables.
	Verbose bool
}

// DefaultOptions returns the default report options.
func DefaultOptions() Options {
	return Options{
		Format: FormatTable,
		Pretty: true,
	}
}

// Renderer writes reports in the configured format.
type Renderer struct {
	opts Options
}

// New creates a new Renderer with the given options.
func New(opts Options) *Renderer {
	if opts.Format == "" {
		opts.Format = FormatTable
	}
	return &Renderer{opts: opts}
}

// Format returns the configured output format.
func (r *Renderer) Format() Format {
	return r.opts.Format
}

// document is the format-independent shape of a report. Data is what the
// structured formats encode; the rest feeds the table and Markdown views.
type document struct {
	Title   string
	Summary []field
	Columns []string
	Rows    [][]string
	Notes   []string
	Empty   string
	Data    any
}

type field struct {
	Label string
	Value string
}

func (r *Renderer) render(w io.Writer, doc document) error {
	logging.Debug("rendering report",
		slog.String("format", string(r.opts.Format)),
		slog.String("title", doc.Title),
		logging.Count(len(doc.Rows)),
	)

	var err error
	switch r.opts.Format {
	case FormatTable:
		err = writeTable(w, doc)
	case FormatMarkdown:
		err = writeMarkdown(w, doc)
	case FormatJSON:
		err = r.encodeJSON(w, doc.Data)
	case FormatYAML:
		err = r.encodeYAML(w, doc.Data)
	default:
		err = fmt.Errorf("unsupported format: %s", r.opts.Format)
	}
	if err != nil {
		logging.Error("report rendering failed",
			slog.String("format", string(r.opts.Format)),
			logging.Err(err),
		)
	}
	return err
}

func (r *Renderer) encodeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	if r.opts.Pretty {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(v)
}

func (r *Renderer) encodeYAML(w io.Writer, v any) error {
	encoder := yaml.NewEncoder(w)
	if r.opts.Pretty {
		encoder.SetIndent(2)
	}
	if err := encoder.Encode(v); err != nil {
		_ = encoder.Close()
		return err
	}
	return encoder.Close()
}

func writeTable(w io.Writer, doc document) error {
	var sb strings.Builder

	if doc.Title != "" {
		sb.WriteString(doc.Title)
		sb.WriteString("\n")
	}
	labelWidth := 0
	for _, f := range doc.Summary {
		labelWidth = max(labelWidth, len(f.Label)+1)
	}
	for _, f := range doc.Summary {
		fmt.Fprintf(&sb, "  %-*s %s\n", labelWidth, f.Label+":", f.Value)
	}

	if len(doc.Columns) > 0 {
		if len(doc.Summary) > 0 || doc.Title != "" {
			sb.WriteString("\n")
		}
		if len(doc.Rows) == 0 {
			if doc.Empty != "" {
				sb.WriteString(doc.Empty)
				sb.WriteString("\n")
			}
		} else {
			widths := columnWidths(doc)
			writeRow(&sb, doc.Columns, widths, true)
			dashes := make([]string, len(doc.Columns))
			for i, c := range doc.Columns {
				dashes[i] = strings.Repeat("-", len(c))
			}
			writeRow(&sb, dashes, widths, true)
			for _, row := range doc.Rows {
				writeRow(&sb, row, widths, false)
			}
		}
	}

	for _, n := range doc.Notes {
		sb.WriteString("\n")
		sb.WriteString(n)
		sb.WriteString("\n")
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func columnWidths(doc document) []int {
	widths := make([]int, len(doc.Columns))
	for i, c := range doc.Columns {
		widths[i] = len(c)
	}
	for _, row := range doc.Rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], len(cell))
			}
		}
	}
	return widths
}

func writeRow(sb *strings.Builder, cells []string, widths []int, header bool) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		if header {
			cell = strings.ToUpper(cell)
		}
		if i == len(cells)-1 {
			parts[i] = cell
			continue
		}
		parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}
	sb.WriteString(strings.TrimRight(strings.Join(parts, "  "), " "))
	sb.WriteString("\n")
}

func writeMarkdown(w io.Writer, doc document) error {
	var sb strings.Builder

	if doc.Title != "" {
		fmt.Fprintf(&sb, "# %s\n\n", doc.Title)
	}
	if len(doc.Summary) > 0 {
		sb.WriteString("| Property | Value |\n")
		sb.WriteString("|----------|-------|\n")
		for _, f := range doc.Summary {
			fmt.Fprintf(&sb, "| %s | %s |\n", f.Label, escapeCell(f.Value))
		}
		sb.WriteString("\n")
	}

	if len(doc.Columns) > 0 {
		if len(doc.Rows) == 0 {
			if doc.Empty != "" {
				fmt.Fprintf(&sb, "*%s*\n\n", doc.Empty)
			}
		} else {
			sb.WriteString("| " + strings.Join(doc.Columns, " | ") + " |\n")
			seps := make([]string, len(doc.Columns))
			for i := range seps {
				seps[i] = "---"
			}
			sb.WriteString("|" + strings.Join(seps, "|") + "|\n")
			for _, row := range doc.Rows {
				cells := make([]string, len(row))
				for i, c := range row {
					cells[i] = escapeCell(c)
				}
				sb.WriteString("| " + strings.Join(cells, " | ") + " |\n")
			}
			sb.WriteString("\n")
		}
	}

	for _, n := range doc.Notes {
		fmt.Fprintf(&sb, "> %s\n\n", n)
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
