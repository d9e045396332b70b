// ABOUTME: Maps session lifecycle statuses to display progress values and phase labels.
// ABOUTME: Unrecognized statuses pass through with a mid-range default instead of erroring.
package timeline

// ProgressInfo is the display-level interpretation of a session status.
type ProgressInfo struct {
	Phase    string // short display label ("queued", "processing", ...)
	Percent  int    // 0-100
	Ticking  bool   // true while the phase should animate
	Terminal bool
}

// defaultProgressPercent is used for status values the mapping does not know.
const defaultProgressPercent = 50

// ProgressFor maps a session status to its display progress. The mapping is
// deliberately total: unknown statuses get the raw status string as the phase
// and a mid-range percent so a newer backend never breaks the view.
func ProgressFor(status SessionStatus) ProgressInfo {
	switch status {
	case SessionPending:
		return ProgressInfo{Phase: "queued", Percent: 0}
	case SessionInProgress:
		return ProgressInfo{Phase: "processing", Percent: 50, Ticking: true}
	case SessionPaused:
		return ProgressInfo{Phase: "paused", Percent: 50}
	case SessionCanceling:
		return ProgressInfo{Phase: "canceling", Percent: 50, Ticking: true}
	case SessionCompleted:
		return ProgressInfo{Phase: "completed", Percent: 100, Terminal: true}
	case SessionFailed:
		return ProgressInfo{Phase: "error", Percent: 100, Terminal: true}
	case SessionCancelled:
		return ProgressInfo{Phase: "cancelled", Percent: 100, Terminal: true}
	case SessionTimedOut:
		return ProgressInfo{Phase: "timed out", Percent: 100, Terminal: true}
	default:
		return ProgressInfo{Phase: string(status), Percent: defaultProgressPercent}
	}
}
