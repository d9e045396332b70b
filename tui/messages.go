// ABOUTME: Bubble Tea message types used in the watcher message loop.
// ABOUTME: Each type wraps a domain event or async result for the tea.Msg interface.
package tui

import (
	"time"

	"github.com/rsoaresd/tarsy-bot-sub002/api"
	"github.com/rsoaresd/tarsy-bot-sub002/live"
	"github.com/rsoaresd/tarsy-bot-sub002/timeline"
)

// ViewUpdateMsg reports that the merged session view changed and the UI
// should re-read it.
type ViewUpdateMsg struct {
	Update timeline.ViewUpdate
}

// ConnStatusMsg reports a connection manager status transition.
type ConnStatusMsg struct {
	Status live.Status
}

// ConnErrorMsg carries a non-fatal connection error for display.
type ConnErrorMsg struct {
	Err error
}

// SnapshotMsg delivers the result of a REST timeline refresh.
type SnapshotMsg struct {
	Detail *api.SessionDetail
	Err    error
}

// ActionResultMsg reports the outcome of a control action (cancel, resume,
// resubmit) initiated from the watcher.
type ActionResultMsg struct {
	Action string
	Err    error
}

// TickMsg is sent periodically to advance spinners, elapsed times, and the
// typewriter reveal.
type TickMsg struct {
	Time time.Time
}
