// Package tui provides interactive terminal UI components using BubbleTea.
package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// listStyles are shared by the list views.
var listStyles = struct {
	Title       lipgloss.Style
	Help        lipgloss.Style
	Filter      lipgloss.Style
	FilterInput lipgloss.Style
	Confirm     lipgloss.Style
	Status      lipgloss.Style
}{
	Title:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")).Padding(0, 1),
	Help:        lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	Filter:      lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
	FilterInput: lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
	Confirm:     lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true).Padding(1, 2),
	Status:      lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Padding(0, 1),
}

// tableStyles returns the table styling shared by the list views.
func tableStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	return s
}

// tableHeight leaves room for the title, status and help lines.
func tableHeight(windowHeight int) int {
	return max(windowHeight-8, 5)
}

// filterInput is the inline "/" filter of a list view.
type filterInput struct {
	text   string
	active bool
}

// handle consumes a key while the filter is being edited and reports
// whether the filter text changed.
func (f *filterInput) handle(msg tea.KeyMsg) bool {
	switch msg.Type {
	case tea.KeyEnter:
		f.active = false
	case tea.KeyEsc:
		changed := f.text != ""
		f.text, f.active = "", false
		return changed
	case tea.KeyBackspace:
		if f.text == "" {
			return false
		}
		r := []rune(f.text)
		f.text = string(r[:len(r)-1])
		return true
	case tea.KeySpace:
		f.text += " "
		return true
	case tea.KeyRunes:
		f.text += string(msg.Runes)
		return true
	}
	return false
}

// matches reports whether any field contains the filter text, ignoring case.
func (f filterInput) matches(fields ...string) bool {
	if f.text == "" {
		return true
	}
	needle := strings.ToLower(f.text)
	for _, s := range fields {
		if strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}

func (f filterInput) view() string {
	if f.text == "" && !f.active {
		return ""
	}
	val := listStyles.FilterInput.Render(f.text)
	if f.active {
		val += "█"
	}
	return listStyles.Filter.Render("Filter: ") + val + "\n\n"
}

// Run starts a full-screen BubbleTea program with the given model and
// returns the final model.
func Run(model tea.Model) (tea.Model, error) {
	p := tea.NewProgram(model, tea.WithAltScreen())
	return p.Run()
}
