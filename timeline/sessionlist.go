// ABOUTME: SessionList maintains dashboard session summaries for the list view.
// ABOUTME: Fed by dashboard_update and session_status_change events plus REST snapshots.
package timeline

import (
	"sort"
	"sync"
)

// SessionList is the merged view of all sessions visible on the dashboard
// channel. Like the Merger it is idempotent: re-applying a summary or
// reloading a snapshot converges to the same state.
type SessionList struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewSessionList creates an empty list.
func NewSessionList() *SessionList {
	return &SessionList{sessions: make(map[string]Session)}
}

// Apply folds one event into the list. Only session-level events matter;
// everything else is ignored.
func (l *SessionList) Apply(ev Event) {
	switch ev := ev.(type) {
	case DashboardUpdateEvent:
		l.upsert(ev.Session)
	case SessionStatusChange:
		l.mu.Lock()
		s, ok := l.sessions[ev.SessionID]
		if !ok {
			s = Session{SessionID: ev.SessionID}
		}
		if !s.Status.Terminal() {
			s.Status = ev.Status
			if ev.Result != "" {
				s.Result = ev.Result
			}
			if ev.ErrorMessage != "" {
				s.ErrorMessage = ev.ErrorMessage
			}
			s.Progress = ProgressFor(ev.Status).Percent
		}
		l.sessions[ev.SessionID] = s
		l.mu.Unlock()
	}
}

// upsert replaces the stored summary, keeping terminal statuses monotonic.
func (l *SessionList) upsert(s Session) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if prev, ok := l.sessions[s.SessionID]; ok && prev.Status.Terminal() && !s.Status.Terminal() {
		return
	}
	l.sessions[s.SessionID] = s
}

// Load replaces the list with a REST snapshot, used on first render and
// after reconnects.
func (l *SessionList) Load(sessions []Session) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sessions = make(map[string]Session, len(sessions))
	for _, s := range sessions {
		l.sessions[s.SessionID] = s
	}
}

// Active returns non-terminal sessions, most recently started first.
func (l *SessionList) Active() []Session {
	return l.filter(func(s Session) bool { return !s.Status.Terminal() })
}

// Historical returns terminal sessions, most recently ended first.
func (l *SessionList) Historical() []Session {
	return l.filter(func(s Session) bool { return s.Status.Terminal() })
}

func (l *SessionList) filter(keep func(Session) bool) []Session {
	l.mu.RLock()
	var out []Session
	for _, s := range l.sessions {
		if keep(s) {
			out = append(out, s)
		}
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Status.Terminal() && a.EndedAtUS != b.EndedAtUS {
			return a.EndedAtUS > b.EndedAtUS
		}
		if a.StartedAtUS != b.StartedAtUS {
			return a.StartedAtUS > b.StartedAtUS
		}
		return a.SessionID < b.SessionID
	})
	return out
}
