// ABOUTME: Tests for the dashboard session list view model.
// ABOUTME: Covers idempotent summary application, terminal monotonicity, and ordering.
package timeline

import "testing"

func TestSessionListSplitsActiveAndHistorical(t *testing.T) {
	l := NewSessionList()
	l.Load([]Session{
		{SessionID: "s-1", Status: SessionInProgress, StartedAtUS: 100},
		{SessionID: "s-2", Status: SessionCompleted, StartedAtUS: 50, EndedAtUS: 90},
		{SessionID: "s-3", Status: SessionPending},
	})

	active := l.Active()
	if len(active) != 2 {
		t.Fatalf("active = %d, want 2", len(active))
	}
	if active[0].SessionID != "s-1" {
		t.Errorf("active[0] = %s, want most recently started first", active[0].SessionID)
	}

	hist := l.Historical()
	if len(hist) != 1 || hist[0].SessionID != "s-2" {
		t.Errorf("historical = %+v", hist)
	}
}

func TestSessionListStatusChangeMovesSession(t *testing.T) {
	l := NewSessionList()
	l.Apply(DashboardUpdateEvent{Session: Session{SessionID: "s-1", Status: SessionInProgress, StartedAtUS: 10}})
	l.Apply(SessionStatusChange{SessionID: "s-1", Status: SessionCompleted, Result: "done"})

	if got := len(l.Active()); got != 0 {
		t.Errorf("active = %d, want 0", got)
	}
	hist := l.Historical()
	if len(hist) != 1 {
		t.Fatalf("historical = %d, want 1", len(hist))
	}
	if hist[0].Result != "done" || hist[0].Progress != 100 {
		t.Errorf("summary = %+v", hist[0])
	}
}

func TestSessionListTerminalIsMonotonic(t *testing.T) {
	l := NewSessionList()
	l.Apply(DashboardUpdateEvent{Session: Session{SessionID: "s-1", Status: SessionCompleted}})

	// A stale in_progress summary redelivered after completion is ignored.
	l.Apply(DashboardUpdateEvent{Session: Session{SessionID: "s-1", Status: SessionInProgress}})
	l.Apply(SessionStatusChange{SessionID: "s-1", Status: SessionInProgress})

	hist := l.Historical()
	if len(hist) != 1 || hist[0].Status != SessionCompleted {
		t.Errorf("historical = %+v, want completed to stick", hist)
	}
}

func TestSessionListDuplicateApplicationIsIdempotent(t *testing.T) {
	l := NewSessionList()
	ev := DashboardUpdateEvent{Session: Session{SessionID: "s-1", Status: SessionInProgress, StartedAtUS: 5}}
	l.Apply(ev)
	l.Apply(ev)

	if got := len(l.Active()); got != 1 {
		t.Errorf("active = %d, want 1", got)
	}
}

func TestSessionListIgnoresUnrelatedEvents(t *testing.T) {
	l := NewSessionList()
	l.Apply(StageUpdateEvent{SessionID: "s-1", Stage: StageExecution{ExecutionID: "e-1"}})
	l.Apply(ConnectionEstablished{})

	if got := len(l.Active()) + len(l.Historical()); got != 0 {
		t.Errorf("sessions = %d, want 0", got)
	}
}
