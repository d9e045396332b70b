// ABOUTME: Stub incident-response backend for local development and demos.
// ABOUTME: Serves the REST surface and WebSocket event stream, replaying a canned investigation.
package mock

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/rsoaresd/tarsy-bot-sub002/timeline"
)

// Server is an in-memory backend stub. Submitting an alert starts a goroutine
// that replays a canned multi-stage investigation over the event stream while
// keeping the REST snapshot consistent with what has been broadcast.
type Server struct {
	router    chi.Router
	logger    *log.Logger
	stepDelay time.Duration

	// duplicates re-delivers every persisted broadcast envelope twice, for
	// exercising client-side dedup. Stream chunks are exempt: they have no
	// dedup key.
	duplicates bool

	mu       sync.Mutex
	sessions map[string]*sessionState
	byAlert  map[string]string
	clients  map[*wsClient]struct{}
}

type sessionState struct {
	session      timeline.Session
	stages       []timeline.StageExecution
	interactions []timeline.Interaction
	cancelReq    bool
}

// Option configures a Server.
type Option func(*Server)

// WithStepDelay sets the pause between scenario steps. Zero replays the
// whole scenario as fast as the stream drains, which tests rely on.
func WithStepDelay(d time.Duration) Option {
	return func(s *Server) { s.stepDelay = d }
}

// WithDuplicateDelivery makes the server send every persisted event twice.
// Transient stream chunks are still delivered once.
func WithDuplicateDelivery() Option {
	return func(s *Server) { s.duplicates = true }
}

// WithLogger sets the server log destination.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a stub backend.
func NewServer(opts ...Option) *Server {
	s := &Server{
		logger:    log.New(io.Discard, "", 0),
		stepDelay: 400 * time.Millisecond,
		sessions:  make(map[string]*sessionState),
		byAlert:   make(map[string]string),
		clients:   make(map[*wsClient]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/sessions", s.handleListSessions)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Post("/sessions/{id}/cancel", s.handleCancel)
		r.Post("/sessions/{id}/resume", s.handleResume)
		r.Get("/session-id/{alertId}", s.handleResolveSessionID)
		r.Post("/alerts", s.handleSubmitAlert)
		r.Post("/alerts/{alertId}/resubmit", s.handleResubmit)
	})

	r.Get("/sessions/{id}", s.handleSessionPage)
	r.Get("/ws/dashboard/{userId}", s.handleWS)
	r.Get("/ws/{alertId}", s.handleLegacyWS)

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	list := make([]timeline.Session, 0, len(s.sessions))
	for _, st := range s.sessions {
		list = append(list, st.session)
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": list,
		"total":    len(list),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	st, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	detail := map[string]any{
		"session":      st.session,
		"stages":       append([]timeline.StageExecution(nil), st.stages...),
		"interactions": append([]timeline.Interaction(nil), st.interactions...),
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleResolveSessionID(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "alertId")
	s.mu.Lock()
	sessionID, ok := s.byAlert[alertID]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "session not created yet")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_id": sessionID})
}

func (s *Server) handleSubmitAlert(w http.ResponseWriter, r *http.Request) {
	var sub struct {
		AlertType string `json:"alert_type"`
		Runbook   string `json:"runbook"`
	}
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil || sub.AlertType == "" {
		writeError(w, http.StatusBadRequest, "alert_type is required")
		return
	}

	alertID := "alert-" + uuid.NewString()[:8]
	sessionID := s.startSession(alertID, sub.AlertType)
	s.logger.Printf("alert submitted alert_id=%s session_id=%s type=%s", alertID, sessionID, sub.AlertType)
	writeJSON(w, http.StatusOK, map[string]string{"alert_id": alertID, "status": "queued"})
}

func (s *Server) handleResubmit(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "alertId")
	s.mu.Lock()
	sessionID, ok := s.byAlert[alertID]
	var alertType string
	if ok {
		alertType = s.sessions[sessionID].session.AlertType
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}

	newAlertID := "alert-" + uuid.NewString()[:8]
	s.startSession(newAlertID, alertType)
	writeJSON(w, http.StatusOK, map[string]string{"alert_id": newAlertID, "status": "queued"})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	st, ok := s.sessions[id]
	if ok {
		if st.session.Status.Terminal() {
			s.mu.Unlock()
			writeError(w, http.StatusConflict, "session already completed")
			return
		}
		st.cancelReq = true
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "canceling"})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	st, ok := s.sessions[id]
	paused := ok && st.session.Status == timeline.SessionPaused
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if !paused {
		writeError(w, http.StatusConflict, "session is not paused")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resuming"})
}

// startSession registers a new session and kicks off the scenario replay.
func (s *Server) startSession(alertID, alertType string) string {
	sessionID := "sess-" + uuid.NewString()[:8]

	s.mu.Lock()
	s.sessions[sessionID] = &sessionState{
		session: timeline.Session{
			SessionID: sessionID,
			AlertID:   alertID,
			AlertType: alertType,
			Status:    timeline.SessionPending,
			Progress:  0,
		},
	}
	s.byAlert[alertID] = sessionID
	s.mu.Unlock()

	go s.runScenario(sessionID)
	return sessionID
}

// newEventID generates a sortable monotonic event id.
func newEventID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// mustMarshal wraps a payload for an envelope's data field.
func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("marshaling event payload: %v", err))
	}
	return b
}
