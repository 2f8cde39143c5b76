package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/digitalis-io/ktopology/pkg/plan"
)

// RenderPlan renders the planned actions in execution order followed by
// the planning warnings.
func RenderPlan(actions []plan.Action, warnings []string) string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(fmt.Sprintf("Execution plan: %d actions", len(actions))))
	sb.WriteString("\n")

	if len(actions) == 0 {
		sb.WriteString(successStyle.Render("Nothing to do, the cluster matches the topology."))
		sb.WriteString("\n")
	} else {
		kinds := make([]plan.Kind, len(actions))
		rows := make([][]string, len(actions))
		for i, a := range actions {
			kinds[i] = a.Kind()
			rows[i] = []string{fmt.Sprint(i + 1), string(a.Kind()), a.Key(), firstLine(a.Describe())}
		}
		sb.WriteString(actionTable(kinds, []string{"#", "Action", "Resource", "Detail"}, rows))
		sb.WriteString("\n")
	}

	for _, w := range warnings {
		sb.WriteString(warningStyle.Render("warning: "))
		sb.WriteString(w)
		sb.WriteString("\n")
	}
	return sb.String()
}

// RenderReport renders the outcome of a run.
func RenderReport(result *plan.RunResult) string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Run report"))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("%s  %s  %s\n",
		successStyle.Render(fmt.Sprintf("applied %d", len(result.Applied))),
		errorStyle.Render(fmt.Sprintf("failed %d", len(result.Failed))),
		warningStyle.Render(fmt.Sprintf("skipped %d", len(result.Skipped))),
	))

	var (
		kinds []plan.Kind
		rows  [][]string
	)
	for _, a := range result.Applied {
		kinds = append(kinds, a.Kind())
		rows = append(rows, []string{"applied", string(a.Kind()), a.Key(), ""})
	}
	for _, f := range result.Failed {
		kinds = append(kinds, f.Kind)
		rows = append(rows, []string{"failed", string(f.Kind), f.Key, f.Err.Error()})
	}
	for _, a := range result.Skipped {
		kinds = append(kinds, a.Kind())
		rows = append(rows, []string{"skipped", string(a.Kind()), a.Key(), ""})
	}
	if len(rows) > 0 {
		sb.WriteString(actionTable(kinds, []string{"Status", "Action", "Resource", "Error"}, rows))
		sb.WriteString("\n")
	}
	return sb.String()
}

// actionTable renders rows whose second column is the action kind, coloured
// by kind.
func actionTable(kinds []plan.Kind, headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 1 && row >= 0 && row < len(kinds) {
				return cellStyle.Foreground(kindColor(kinds[row]))
			}
			return cellStyle
		}).
		String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
