// Package tui renders viewer sessions as full-screen terminal programs.
package tui

import "github.com/charmbracelet/lipgloss"

var (
	docStyle = lipgloss.NewStyle().Margin(1, 2)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#6F4E37")).
			Padding(0, 1)

	columnStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1).
			Width(36)

	activeColumnStyle = columnStyle.Copy().
				BorderForeground(lipgloss.Color("#C8A27A"))

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1).
			Width(32)

	selectedCardStyle = cardStyle.Copy().
				BorderForeground(lipgloss.Color("#0a84ff"))

	staleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#ff9f0a")).
			Padding(0, 1)

	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff453a"))

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	customerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#0a84ff")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#C8A27A")).Bold(true)
	systemStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)

	buttonStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("238")).
			Padding(0, 1).
			MarginRight(1)

	activeButtonStyle = buttonStyle.Copy().
				Background(lipgloss.Color("#30d158"))

	statusStyles = map[string]lipgloss.Style{
		"received":      lipgloss.NewStyle().Foreground(lipgloss.Color("#0a84ff")),
		"in_production": lipgloss.NewStyle().Foreground(lipgloss.Color("#ff9f0a")),
		"ready":         lipgloss.NewStyle().Foreground(lipgloss.Color("#30d158")),
		"cancelled":     lipgloss.NewStyle().Foreground(lipgloss.Color("#ff453a")),
	}
)
