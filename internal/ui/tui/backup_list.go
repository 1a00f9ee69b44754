package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/klauern/blocksync/internal/backup"
	"github.com/klauern/blocksync/internal/report"
)

// BackupAction represents the action to perform on a selected backup.
type BackupAction int

const (
	// ActionNone means no action was taken (user quit).
	ActionNone BackupAction = iota
	// ActionRestore means the user wants to restore the store from the selected backup.
	ActionRestore
	// ActionDelete means the user wants to delete the selected backup.
	ActionDelete
	// ActionVerify means the user wants to verify the selected backup.
	ActionVerify
)

// String returns the verb shown for the action.
func (a BackupAction) String() string {
	switch a {
	case ActionRestore:
		return "restore"
	case ActionDelete:
		return "delete"
	case ActionVerify:
		return "verify"
	default:
		return "none"
	}
}

// needsConfirm reports whether the action changes state and must be confirmed.
func (a BackupAction) needsConfirm() bool {
	return a == ActionRestore || a == ActionDelete
}

// BackupListResult contains the result of the backup list TUI interaction.
type BackupListResult struct {
	Action   BackupAction
	BackupID string
	Backup   backup.Metadata
}

const backupListDetailWidth = 80

type backupListKeyMap struct {
	Restore  key.Binding
	Delete   key.Binding
	Verify   key.Binding
	Filter   key.Binding
	ClearFlt key.Binding
	Help     key.Binding
	Quit     key.Binding
}

func defaultBackupListKeyMap() backupListKeyMap {
	return backupListKeyMap{
		Restore:  key.NewBinding(key.WithKeys("r", "enter"), key.WithHelp("r", "restore")),
		Delete:   key.NewBinding(key.WithKeys("d", "x"), key.WithHelp("d", "delete")),
		Verify:   key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "verify")),
		Filter:   key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "filter")),
		ClearFlt: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "clear filter")),
		Help:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// actions maps the action keys to what they do.
func (k backupListKeyMap) actions() []struct {
	binding key.Binding
	action  BackupAction
} {
	return []struct {
		binding key.Binding
		action  BackupAction
	}{
		{k.Restore, ActionRestore},
		{k.Delete, ActionDelete},
		{k.Verify, ActionVerify},
	}
}

// BackupListModel lists store snapshots and lets the user restore, delete
// or verify one. Restore and delete ask for a y/n confirmation first.
type BackupListModel struct {
	table    table.Model
	backups  []backup.Metadata
	filtered []backup.Metadata
	keys     backupListKeyMap
	filter   filterInput
	result   BackupListResult
	pending  *BackupListResult // chosen action awaiting confirmation
	showHelp bool
	quitting bool
}

// NewBackupListModel creates a list over backups, newest first as given.
func NewBackupListModel(backups []backup.Metadata) BackupListModel {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ID", Width: 30},
			{Title: "Operation", Width: 10},
			{Title: "Description", Width: 40},
			{Title: "Created", Width: 16},
			{Title: "Size", Width: 10},
		}),
		table.WithRows(backupsToRows(backups)),
		table.WithFocused(true),
		table.WithHeight(15),
	)
	t.SetStyles(tableStyles())

	return BackupListModel{
		table:    t,
		backups:  backups,
		filtered: backups,
		keys:     defaultBackupListKeyMap(),
	}
}

func backupsToRows(backups []backup.Metadata) []table.Row {
	rows := make([]table.Row, len(backups))
	for i, b := range backups {
		desc := b.Description
		if desc == "" {
			desc = b.SourcePath
		}
		rows[i] = table.Row{
			b.ID,
			b.Operation,
			truncateText(desc, 40),
			b.CreatedAt.Format("2006-01-02 15:04"),
			report.FormatBytes(b.Size),
		}
	}
	return rows
}

// Init implements tea.Model.
func (m BackupListModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m BackupListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.table.SetHeight(tableHeight(msg.Height))

	case tea.KeyMsg:
		if m.pending != nil {
			return m.confirm(msg)
		}
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
		}

		for _, a := range m.keys.actions() {
			if key.Matches(msg, a.binding) {
				return m.choose(a.action)
			}
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// choose records an action on the highlighted backup. Actions that change
// state wait for confirmation; the rest finish the interaction.
func (m BackupListModel) choose(action BackupAction) (tea.Model, tea.Cmd) {
	selected, ok := m.selected()
	if !ok {
		return m, nil
	}
	res := BackupListResult{Action: action, BackupID: selected.ID, Backup: selected}
	if action.needsConfirm() {
		m.pending = &res
		return m, nil
	}
	m.result = res
	m.quitting = true
	return m, tea.Quit
}

func (m BackupListModel) confirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch strings.ToLower(msg.String()) {
	case "y":
		m.result = *m.pending
		m.pending = nil
		m.quitting = true
		return m, tea.Quit
	case "n", "esc", "q":
		m.pending = nil
	}
	return m, nil
}

func (m *BackupListModel) applyFilter() {
	m.filtered = m.backups
	if m.filter.text != "" {
		m.filtered = nil
		for _, b := range m.backups {
			if m.filter.matches(b.ID, b.Operation, b.Description) {
				m.filtered = append(m.filtered, b)
			}
		}
	}
	m.table.SetRows(backupsToRows(m.filtered))
}

func (m BackupListModel) selected() (backup.Metadata, bool) {
	c := m.table.Cursor()
	if c < 0 || c >= len(m.filtered) {
		return backup.Metadata{}, false
	}
	return m.filtered[c], true
}

// View implements tea.Model.
func (m BackupListModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(listStyles.Title.Render("📦 blocksync store snapshots"))
	b.WriteString("\n\n")
	b.WriteString(m.filter.view())
	b.WriteString(m.table.View())
	b.WriteString("\n")

	if m.pending != nil {
		q := fmt.Sprintf("Really %s backup %s? (y/n)", m.pending.Action, m.pending.BackupID)
		b.WriteString(listStyles.Confirm.Render(q))
		return b.String()
	}

	if sel, ok := m.selected(); ok {
		b.WriteString(listStyles.Status.Render(formatDetail("Store: ", sel.SourcePath, backupListDetailWidth)))
		b.WriteString("\n")
	}
	status := fmt.Sprintf("%d backup(s)", len(m.filtered))
	if m.filter.text != "" {
		status = fmt.Sprintf("%d of %d backup(s) (filtered)", len(m.filtered), len(m.backups))
	}
	b.WriteString(listStyles.Status.Render(status))
	b.WriteString("\n")

	if m.showHelp {
		b.WriteString("\n")
		b.WriteString(listStyles.Help.Render(`Actions:
  r/enter  Restore the store from the selected backup
  d        Delete the selected backup
  v        Verify the selected backup

Filter:
  /        Start filtering
  Esc      Clear filter

General:
  ?        Toggle full help
  q        Quit`))
	} else {
		b.WriteString(listStyles.Help.Render(strings.Join([]string{
			"↑/↓ navigate", "r restore", "d delete", "v verify", "/ filter", "? help", "q quit",
		}, " • ")))
	}
	return b.String()
}

// Result returns the result of the user interaction.
func (m BackupListModel) Result() BackupListResult {
	return m.result
}

// RunBackupList runs the interactive backup list and returns the result.
func RunBackupList(backups []backup.Metadata) (BackupListResult, error) {
	if len(backups) == 0 {
		return BackupListResult{}, nil
	}

	finalModel, err := Run(NewBackupListModel(backups))
	if err != nil {
		return BackupListResult{}, err
	}
	if m, ok := finalModel.(BackupListModel); ok {
		return m.Result(), nil
	}
	return BackupListResult{}, nil
}
