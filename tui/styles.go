// ABOUTME: Lipgloss style constants for the watcher layout and status colors.
// ABOUTME: Provides style lookups for session and stage statuses.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/rsoaresd/tarsy-bot-sub002/timeline"
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170"))

	PendingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	RunningStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	CompletedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	FailedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

	StreamStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)

	FooterStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)

	ErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// SpinnerFrames contains the Braille-dot animation frames for active stages.
var SpinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// StyleForStage returns the style for a stage execution status.
func StyleForStage(status timeline.StageStatus) lipgloss.Style {
	switch status {
	case timeline.StageActive:
		return RunningStyle
	case timeline.StageCompleted:
		return CompletedStyle
	case timeline.StageFailed:
		return FailedStyle
	default:
		return PendingStyle
	}
}

// StyleForSession returns the style for a session status.
func StyleForSession(status timeline.SessionStatus) lipgloss.Style {
	switch status {
	case timeline.SessionInProgress, timeline.SessionCanceling:
		return RunningStyle
	case timeline.SessionCompleted:
		return CompletedStyle
	case timeline.SessionFailed, timeline.SessionTimedOut, timeline.SessionCancelled:
		return FailedStyle
	default:
		return PendingStyle
	}
}
