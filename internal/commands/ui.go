package commands

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/gm-agent-org/mcp-guard/pkg/types"
)

// Color palette
var (
	colorPrimary   = lipgloss.Color("#FF6B35") // Orange accent
	colorSecondary = lipgloss.Color("#7C3AED") // Purple
	colorSuccess   = lipgloss.Color("#10B981") // Green
	colorWarning   = lipgloss.Color("#F59E0B") // Yellow
	colorError     = lipgloss.Color("#EF4444") // Red
	colorMuted     = lipgloss.Color("#6B7280") // Gray

	styleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary)

	styleSubtitle = lipgloss.NewStyle().
			Foreground(colorMuted)

	styleMethod = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorSecondary)

	styleDanger = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorError)

	styleCard = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorMuted).
			Padding(0, 1)

	styleDangerCard = styleCard.
			BorderForeground(colorError)
)

func decisionStyle(d types.Decision) lipgloss.Style {
	s := lipgloss.NewStyle().Bold(true)
	switch d {
	case types.DecisionAllow:
		return s.Foreground(colorSuccess)
	case types.DecisionAsk:
		return s.Foreground(colorWarning)
	default:
		return s.Foreground(colorError)
	}
}
