package ui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ECFD65")).
			Background(lipgloss.Color("#5A56E0")).
			Padding(0, 1)

	trackStyle = lipgloss.NewStyle().Bold(true)

	currentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#04B575"})

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"})

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#FF4672", Dark: "#ED567A"})

	playingBadge = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ECFD65"))

	pausedBadge = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F793FF"))
)

func stateStyle(state string) string {
	switch state {
	case "playing":
		return playingBadge.Render("▶ playing")
	case "paused":
		return pausedBadge.Render("⏸ paused")
	default:
		return dimStyle.Render("■ stopped")
	}
}
