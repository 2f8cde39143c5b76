package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/digitalis-io/ktopology/pkg/plan"
)

type pane int

const (
	actionsPane pane = iota
	detailPane
)

// PlanModel browses the actions of an execution plan: a table of actions
// and the full description of the selected one.
type PlanModel struct {
	table    table.Model
	detail   viewport.Model
	actions  []plan.Action
	warnings []string
	dryRun   bool
	focus    pane
	width    int
	height   int
}

func NewPlanModel(p *plan.ExecutionPlan) PlanModel {
	columns := []table.Column{
		{Title: "#", Width: 4},
		{Title: "Action", Width: 20},
		{Title: "Resource", Width: 48},
	}

	actions := p.Actions()
	rows := make([]table.Row, len(actions))
	for i, a := range actions {
		rows[i] = table.Row{fmt.Sprint(i + 1), string(a.Kind()), a.Key()}
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	m := PlanModel{
		table:    t,
		detail:   viewport.New(80, 8),
		actions:  actions,
		warnings: p.Warnings,
		dryRun:   p.DryRun(),
	}
	m.refreshDetail()
	return m
}

func (m PlanModel) Init() tea.Cmd {
	return nil
}

// Selected returns the action under the cursor, nil for an empty plan.
func (m PlanModel) Selected() plan.Action {
	if len(m.actions) == 0 {
		return nil
	}
	i := m.table.Cursor()
	if i < 0 || i >= len(m.actions) {
		return nil
	}
	return m.actions[i]
}

func (m *PlanModel) refreshDetail() {
	a := m.Selected()
	if a == nil {
		m.detail.SetContent("No action planned.")
		return
	}
	var sb strings.Builder
	sb.WriteString(lipgloss.NewStyle().Bold(true).Foreground(kindColor(a.Kind())).Render(string(a.Kind())))
	sb.WriteString(" ")
	sb.WriteString(a.Key())
	sb.WriteString("\n\n")
	sb.WriteString(a.Describe())
	m.detail.SetContent(sb.String())
	m.detail.GotoTop()
}

func (m PlanModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "tab":
			if m.focus == actionsPane {
				m.focus = detailPane
				m.table.Blur()
			} else {
				m.focus = actionsPane
				m.table.Focus()
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		tableHeight := max((msg.Height-8)/2, 3)
		m.table.SetHeight(tableHeight)
		m.table.SetWidth(msg.Width - 4)
		m.detail.Width = msg.Width - 4
		m.detail.Height = max(msg.Height-tableHeight-10, 3)
	}

	if m.focus == detailPane {
		m.detail, cmd = m.detail.Update(msg)
		return m, cmd
	}

	before := m.table.Cursor()
	m.table, cmd = m.table.Update(msg)
	if m.table.Cursor() != before {
		m.refreshDetail()
	}
	return m, cmd
}

func (m PlanModel) View() string {
	var sb strings.Builder

	title := fmt.Sprintf("ktopology - %d planned actions", len(m.actions))
	if m.dryRun {
		title += " (dry run)"
	}
	sb.WriteString(titleStyle.Render(title))
	sb.WriteString("\n\n")

	sb.WriteString(baseStyle.Render(m.table.View()))
	sb.WriteString("\n")
	sb.WriteString(baseStyle.Render(m.detail.View()))
	sb.WriteString("\n")

	for _, w := range m.warnings {
		sb.WriteString(warningStyle.Render("warning: "))
		sb.WriteString(w)
		sb.WriteString("\n")
	}

	sb.WriteString(helpStyle.Render("↑/↓: Select | Tab: Switch pane | q: Quit"))
	return sb.String()
}

// Browse runs the plan browser until the user quits.
func Browse(p *plan.ExecutionPlan) error {
	if _, err := tea.NewProgram(NewPlanModel(p), tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("failed to run plan browser: %w", err)
	}
	return nil
}
