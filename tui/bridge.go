// ABOUTME: Bridge connecting the connection manager to the Bubble Tea message loop.
// ABOUTME: Provides EventBridge for event injection and tea.Cmd factories for REST calls and ticks.
package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/rsoaresd/tarsy-bot-sub002/api"
	"github.com/rsoaresd/tarsy-bot-sub002/live"
	"github.com/rsoaresd/tarsy-bot-sub002/timeline"
)

// EventBridge wraps a tea.Program's Send method so connection manager
// observers can inject messages into the Bubble Tea loop.
type EventBridge struct {
	send func(msg tea.Msg)
}

// NewEventBridge creates an EventBridge that sends messages via the given
// function. Typically called with program.Send as the argument.
func NewEventBridge(send func(msg tea.Msg)) *EventBridge {
	return &EventBridge{send: send}
}

// Attach feeds the manager's event stream into the merger and forwards the
// merger's view updates, plus connection status and errors, into the Bubble
// Tea loop. The forwarding goroutine exits when the merger is closed.
func (b *EventBridge) Attach(mgr *live.Manager, merger *timeline.Merger) {
	mgr.OnEvent(merger.Apply)
	mgr.OnStatus(func(s live.Status) { b.send(ConnStatusMsg{Status: s}) })
	mgr.OnError(func(err error) { b.send(ConnErrorMsg{Err: err}) })

	updates := merger.Updates()
	go func() {
		for u := range updates {
			b.send(ViewUpdateMsg{Update: u})
		}
	}()
}

// RefreshCmd returns a tea.Cmd that fetches the full session snapshot. Used
// for the initial load and to close event gaps after a reconnect.
func RefreshCmd(ctx context.Context, client *api.Client, sessionID string) tea.Cmd {
	return func() tea.Msg {
		detail, err := client.GetSession(ctx, sessionID)
		return SnapshotMsg{Detail: detail, Err: err}
	}
}

// CancelCmd returns a tea.Cmd that asks the backend to cancel the session.
func CancelCmd(ctx context.Context, client *api.Client, sessionID string) tea.Cmd {
	return func() tea.Msg {
		return ActionResultMsg{Action: "cancel", Err: client.CancelSession(ctx, sessionID)}
	}
}

// ResumeCmd returns a tea.Cmd that asks the backend to resume a paused session.
func ResumeCmd(ctx context.Context, client *api.Client, sessionID string) tea.Cmd {
	return func() tea.Msg {
		return ActionResultMsg{Action: "resume", Err: client.ResumeSession(ctx, sessionID)}
	}
}

// ResubmitCmd returns a tea.Cmd that re-runs the session's alert from scratch.
func ResubmitCmd(ctx context.Context, client *api.Client, alertID string) tea.Cmd {
	return func() tea.Msg {
		_, err := client.ResubmitAlert(ctx, alertID)
		return ActionResultMsg{Action: "resubmit", Err: err}
	}
}

// TickCmd returns a tea.Cmd that sends a TickMsg after the given interval.
// Used for spinner animation and the typewriter reveal.
func TickCmd(interval time.Duration) tea.Cmd {
	return func() tea.Msg {
		time.Sleep(interval)
		return TickMsg{Time: time.Now()}
	}
}
