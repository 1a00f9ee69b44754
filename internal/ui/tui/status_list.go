package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/klauern/blocksync/internal/ledger"
	"github.com/klauern/blocksync/internal/model"
)

// StatusAction represents what the user chose in the status picker.
type StatusAction int

const (
	// StatusActionNone means the user quit without choosing.
	StatusActionNone StatusAction = iota
	// StatusActionImport means the user wants to import the selection.
	StatusActionImport
)

// StatusListResult contains the result of the status picker interaction.
type StatusListResult struct {
	Action   StatusAction
	Selected []model.Identity
}

const statusListDetailWidth = 80

type statusListKeyMap struct {
	Toggle    key.Binding
	ToggleAll key.Binding
	Import    key.Binding
	Filter    key.Binding
	ClearFlt  key.Binding
	Help      key.Binding
	Quit      key.Binding
}

func defaultStatusListKeyMap() statusListKeyMap {
	return statusListKeyMap{
		Toggle: key.NewBinding(
			key.WithKeys(" ", "tab"),
			key.WithHelp("space", "toggle"),
		),
		ToggleAll: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "toggle all"),
		),
		Import: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "import selection"),
		),
		Filter: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "filter"),
		),
		ClearFlt: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "clear filter"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// StatusListModel lists pending entries and lets the user pick which to import.
type StatusListModel struct {
	table    table.Model
	items    []ledger.Item
	filtered []ledger.Item
	selected map[model.Identity]bool
	keys     statusListKeyMap
	result   StatusListResult
	filter   filterInput
	showHelp bool
	quitting bool
}

// NewStatusListModel creates a picker over the given items. Every item
// starts selected.
func NewStatusListModel(items []ledger.Item) StatusListModel {
	columns := []table.Column{
		{Title: " ", Width: 3},
		{Title: "Name", Width: 30},
		{Title: "Category", Width: 24},
		{Title: "State", Width: 10},
		{Title: "Modified", Width: 16},
	}

	selected := make(map[model.Identity]bool, len(items))
	for _, it := range items {
		selected[it.Descriptor.Identity] = true
	}

	m := StatusListModel{
		items:    items,
		filtered: items,
		selected: selected,
		keys:     defaultStatusListKeyMap(),
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(m.rows()),
		table.WithFocused(true),
		table.WithHeight(15),
	)
	t.SetStyles(tableStyles())
	m.table = t
	return m
}

func (m StatusListModel) rows() []table.Row {
	caser := cases.Title(language.English)
	rows := make([]table.Row, len(m.filtered))
	for i, it := range m.filtered {
		id := it.Descriptor.Identity
		check := "[ ]"
		if m.selected[id] {
			check = "[x]"
		}
		rows[i] = table.Row{
			check,
			truncateText(id.Name, 30),
			truncateText(id.Category, 24),
			caser.String(string(it.State)),
			it.Descriptor.ModTime.Format(ledger.TimeLayout),
		}
	}
	return rows
}

// Init implements tea.Model.
func (m StatusListModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m StatusListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.table.SetHeight(tableHeight(msg.Height))

	case tea.KeyMsg:
		if m.filter.active {
			if m.filter.handle(msg) {
				m.applyFilter()
			}
			return m, nil
		}

		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp
			return m, nil

		case key.Matches(msg, m.keys.Filter):
			m.filter.active = true
			return m, nil

		case key.Matches(msg, m.keys.ClearFlt):
			m.filter.text = ""
			m.applyFilter()
			return m, nil

		case key.Matches(msg, m.keys.Toggle):
			if c := m.table.Cursor(); c >= 0 && c < len(m.filtered) {
				id := m.filtered[c].Descriptor.Identity
				m.selected[id] = !m.selected[id]
				m.table.SetRows(m.rows())
			}
			return m, nil

		case key.Matches(msg, m.keys.ToggleAll):
			all := len(m.Selection()) < len(m.items)
			for _, it := range m.items {
				m.selected[it.Descriptor.Identity] = all
			}
			m.table.SetRows(m.rows())
			return m, nil

		case key.Matches(msg, m.keys.Import):
			m.result = StatusListResult{Action: StatusActionImport, Selected: m.Selection()}
			m.quitting = true
			return m, tea.Quit
		}
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *StatusListModel) applyFilter() {
	m.filtered = m.items
	if m.filter.text != "" {
		m.filtered = nil
		for _, it := range m.items {
			if m.filter.matches(it.Descriptor.Identity.Key(), string(it.State)) {
				m.filtered = append(m.filtered, it)
			}
		}
	}
	m.table.SetRows(m.rows())
}

// Selection returns the selected identities in list order.
func (m StatusListModel) Selection() []model.Identity {
	var out []model.Identity
	for _, it := range m.items {
		if m.selected[it.Descriptor.Identity] {
			out = append(out, it.Descriptor.Identity)
		}
	}
	return out
}

// View implements tea.Model.
func (m StatusListModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(listStyles.Title.Render("Pending entries"))
	b.WriteString("\n\n")
	b.WriteString(m.filter.view())

	b.WriteString(m.table.View())
	b.WriteString("\n")
	if c := m.table.Cursor(); c >= 0 && c < len(m.filtered) {
		d := m.filtered[c].Descriptor
		path := d.RelPath
		if path == "" {
			path = d.FullPath
		}
		b.WriteString(listStyles.Status.Render(formatDetail("Path: ", path, statusListDetailWidth)))
		b.WriteString("\n")
	}
	b.WriteString(listStyles.Status.Render(fmt.Sprintf("%d of %d selected", len(m.Selection()), len(m.items))))
	b.WriteString("\n")

	if m.showHelp {
		b.WriteString("\n")
		b.WriteString(listStyles.Help.Render(`Selection:
  space    Toggle entry
  a        Toggle all
  enter    Import selected entries

Filter:
  /        Start filtering
  Esc      Clear filter

General:
  ?        Toggle full help
  q        Quit without importing`))
	} else {
		b.WriteString(listStyles.Help.Render(strings.Join([]string{
			"↑/↓ navigate", "space toggle", "a all", "enter import", "/ filter", "q quit",
		}, " • ")))
	}
	return b.String()
}

// Result returns the result of the user interaction.
func (m StatusListModel) Result() StatusListResult {
	return m.result
}

// RunStatusList runs the status picker and returns the user's choice.
func RunStatusList(items []ledger.Item) (StatusListResult, error) {
	if len(items) == 0 {
		return StatusListResult{}, nil
	}

	finalModel, err := Run(NewStatusListModel(items))
	if err != nil {
		return StatusListResult{}, err
	}
	if m, ok := finalModel.(StatusListModel); ok {
		return m.Result(), nil
	}
	return StatusListResult{}, nil
}
