package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/digitalis-io/ktopology/pkg/plan"
)

var (
	baseStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().Padding(0, 1)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// kindColor marks creations green, updates yellow and deletions red.
func kindColor(k plan.Kind) lipgloss.Color {
	switch k {
	case plan.KindCreateTopic, plan.KindCreateBindings, plan.KindCreateQuota:
		return lipgloss.Color("42")
	case plan.KindDeleteTopics, plan.KindDeleteBindings, plan.KindDeleteQuota:
		return lipgloss.Color("196")
	default:
		return lipgloss.Color("214")
	}
}
