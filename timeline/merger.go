// ABOUTME: Folds heterogeneous WebSocket events into an ordered, deduplicated session view model.
// ABOUTME: Idempotent under redelivery; tolerant of missed events via full-state snapshot reloads.
package timeline

import (
	"io"
	"log"
	"sort"
	"sync"
	"time"
)

// Merger accumulates inbound events into a coherent view of one session.
// It is safe for concurrent use: the connection read loop applies events
// while view code reads snapshots.
//
// Correctness rests on two rules rather than on delivery guarantees:
// every persisted interaction is identified by a stable event_id and
// applying the same id twice is a no-op, and display order is derived from
// timestamp_us (ties broken by arrival order), never from delivery order.
type Merger struct {
	mu sync.RWMutex

	session      Session
	stages       []StageExecution
	interactions []*Interaction
	seen         map[string]struct{}
	streaming    map[string]*StreamingItem
	chat         []ChatMessage
	lastError    string

	arrivalSeq int64

	emitter *UpdateEmitter
	logger  *log.Logger
	now     func() time.Time
}

// MergerOption configures optional Merger behavior.
type MergerOption func(*Merger)

// WithLogger sets the logger used for dropped/unknown events.
func WithLogger(l *log.Logger) MergerOption {
	return func(m *Merger) { m.logger = l }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) MergerOption {
	return func(m *Merger) { m.now = now }
}

// NewMerger creates a Merger for the given session id.
func NewMerger(sessionID string, opts ...MergerOption) *Merger {
	m := &Merger{
		session:   Session{SessionID: sessionID, Status: SessionPending},
		seen:      make(map[string]struct{}),
		streaming: make(map[string]*StreamingItem),
		emitter:   NewUpdateEmitter(),
		logger:    log.New(io.Discard, "", 0),
		now:       time.Now,
	}
	m.session.Progress = ProgressFor(m.session.Status).Percent
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Updates returns a channel receiving a ViewUpdate after each applied change.
func (m *Merger) Updates() <-chan ViewUpdate {
	return m.emitter.Subscribe()
}

// Unsubscribe releases an update channel obtained from Updates.
func (m *Merger) Unsubscribe(ch <-chan ViewUpdate) {
	m.emitter.Unsubscribe(ch)
}

// Close releases the merger's update subscribers.
func (m *Merger) Close() {
	m.emitter.Close()
}

// ApplyRaw decodes raw wire bytes and applies the result. Malformed payloads
// and unknown types are logged and dropped; the error return describes the
// drop for callers that want their own logging, and is never fatal.
func (m *Merger) ApplyRaw(raw []byte) error {
	ev, err := DecodeEnvelope(raw)
	if err != nil {
		m.logger.Printf("timeline: dropping message: %v", err)
		return err
	}
	m.Apply(ev)
	return nil
}

// Apply folds one decoded event into the view model.
func (m *Merger) Apply(ev Event) {
	switch ev := ev.(type) {
	case ConnectionEstablished, SubscriptionResponse:
		// Transport-level acks carry no view state.

	case SessionStatusChange:
		m.applySessionStatus(ev)

	case LLMInteractionEvent:
		m.applyInteraction(ev.Interaction)

	case MCPCommunicationEvent:
		m.applyInteraction(ev.Interaction)

	case StageUpdateEvent:
		m.applyStage(ev)

	case StreamChunkEvent:
		m.applyStreamChunk(ev)

	case ChatMessageEvent:
		m.applyChat(ev)

	case DashboardUpdateEvent:
		m.applyDashboard(ev)

	case ErrorEvent:
		m.mu.Lock()
		m.lastError = ev.Message
		m.mu.Unlock()
		m.emit(ViewUpdate{Kind: UpdateBackendError, SessionID: m.SessionID(), Message: ev.Message})
	}
}

// applySessionStatus applies a lifecycle transition. Transitions are
// monotonic toward the terminal set: once terminal, only a redelivery of the
// same terminal status is accepted.
func (m *Merger) applySessionStatus(ev SessionStatusChange) {
	m.mu.Lock()
	if ev.SessionID != "" && ev.SessionID != m.session.SessionID {
		m.mu.Unlock()
		return
	}
	if m.session.Status.Terminal() && ev.Status != m.session.Status {
		m.logger.Printf("timeline: ignoring status %q after terminal %q", ev.Status, m.session.Status)
		m.mu.Unlock()
		return
	}
	if ev.Status.rank() < m.session.Status.rank() {
		m.logger.Printf("timeline: ignoring status regression %q -> %q", m.session.Status, ev.Status)
		m.mu.Unlock()
		return
	}

	m.session.Status = ev.Status
	m.session.Progress = ProgressFor(ev.Status).Percent
	if ev.Result != "" {
		m.session.Result = ev.Result
	}
	if ev.ErrorMessage != "" {
		m.session.ErrorMessage = ev.ErrorMessage
	}
	if ev.Tokens != nil {
		m.session.Tokens = *ev.Tokens
	}
	if ev.Status.Terminal() {
		if ev.TimestampUS != 0 {
			m.session.EndedAtUS = ev.TimestampUS
		}
		m.sweepAllPlaceholdersLocked()
	} else if ev.Status == SessionInProgress && m.session.StartedAtUS == 0 && ev.TimestampUS != 0 {
		m.session.StartedAtUS = ev.TimestampUS
	}
	sessionID := m.session.SessionID
	m.mu.Unlock()

	m.emit(ViewUpdate{Kind: UpdateSessionStatus, SessionID: sessionID})
}

// applyInteraction merges one persisted interaction, deduplicating by
// event_id and superseding any provisional streaming item with the same id.
func (m *Merger) applyInteraction(in Interaction) {
	m.mu.Lock()
	if _, dup := m.seen[in.EventID]; dup {
		m.mu.Unlock()
		return
	}
	m.seen[in.EventID] = struct{}{}

	m.arrivalSeq++
	in.arrival = m.arrivalSeq

	// The persisted record supersedes the provisional streaming item.
	delete(m.streaming, in.EventID)

	m.insertInteractionLocked(&in)
	m.bumpStageCountsLocked(in)
	sessionID := m.session.SessionID
	m.mu.Unlock()

	m.emit(ViewUpdate{Kind: UpdateInteraction, SessionID: sessionID, ID: in.EventID})
}

// insertInteractionLocked places the interaction at its sorted position:
// ascending timestamp_us, ties broken by arrival order.
func (m *Merger) insertInteractionLocked(in *Interaction) {
	idx := sort.Search(len(m.interactions), func(i int) bool {
		other := m.interactions[i]
		if other.TimestampUS != in.TimestampUS {
			return other.TimestampUS > in.TimestampUS
		}
		return other.arrival > in.arrival
	})
	m.interactions = append(m.interactions, nil)
	copy(m.interactions[idx+1:], m.interactions[idx:])
	m.interactions[idx] = in
}

func (m *Merger) bumpStageCountsLocked(in Interaction) {
	if in.ExecutionID == "" {
		return
	}
	for i := range m.stages {
		if m.stages[i].ExecutionID != in.ExecutionID {
			continue
		}
		switch in.Type {
		case InteractionLLM:
			m.stages[i].LLMCount++
		case InteractionMCP:
			m.stages[i].MCPCount++
		}
		return
	}
}

// applyStage upserts a stage execution and runs placeholder reconciliation:
// seeding placeholders when a parallel parent starts, swapping them for real
// children position-preservingly, and sweeping leftovers when the parent
// finishes.
func (m *Merger) applyStage(ev StageUpdateEvent) {
	stage := ev.Stage
	m.mu.Lock()
	if id := firstNonEmpty(ev.SessionID, stage.SessionID); id != "" && id != m.session.SessionID {
		m.mu.Unlock()
		return
	}
	m.upsertStageLocked(stage)
	sessionID := m.session.SessionID
	m.mu.Unlock()

	m.emit(ViewUpdate{Kind: UpdateStage, SessionID: sessionID, ID: stage.ExecutionID})
}

// applyStreamChunk creates or extends a provisional streaming item. If the
// authoritative interaction has already been merged, the chunk is stale and
// dropped. Chunks carry no dedup key: a redelivered chunk appends its text
// again, and the garbling lasts until the persisted interaction supersedes
// the item.
func (m *Merger) applyStreamChunk(ev StreamChunkEvent) {
	m.mu.Lock()
	if _, persisted := m.seen[ev.InteractionID]; persisted {
		m.mu.Unlock()
		return
	}
	item, ok := m.streaming[ev.InteractionID]
	if !ok {
		item = &StreamingItem{
			InteractionID: ev.InteractionID,
			ExecutionID:   ev.ExecutionID,
			Kind:          ev.Kind,
			StartedAt:     m.now(),
		}
		m.streaming[ev.InteractionID] = item
	}
	item.Content += ev.Content
	item.UpdatedAt = m.now()
	if ev.Kind != "" {
		item.Kind = ev.Kind
	}
	sessionID := m.session.SessionID
	m.mu.Unlock()

	m.emit(ViewUpdate{Kind: UpdateStreaming, SessionID: sessionID, ID: ev.InteractionID})
}

func (m *Merger) applyChat(ev ChatMessageEvent) {
	m.mu.Lock()
	for _, existing := range m.chat {
		if existing.MessageID != "" && existing.MessageID == ev.Message.MessageID {
			m.mu.Unlock()
			return
		}
	}
	m.chat = append(m.chat, ev.Message)
	sessionID := m.session.SessionID
	m.mu.Unlock()

	m.emit(ViewUpdate{Kind: UpdateChat, SessionID: sessionID, ID: ev.Message.MessageID})
}

// applyDashboard folds a session summary from the multiplexed dashboard
// channel. Only summaries for this merger's session are applied.
func (m *Merger) applyDashboard(ev DashboardUpdateEvent) {
	m.mu.Lock()
	if ev.Session.SessionID != m.session.SessionID {
		m.mu.Unlock()
		return
	}
	if m.session.Status.Terminal() && ev.Session.Status != m.session.Status {
		m.mu.Unlock()
		return
	}
	if ev.Session.Status.rank() < m.session.Status.rank() {
		m.mu.Unlock()
		return
	}
	summary := ev.Session
	summary.Progress = ProgressFor(summary.Status).Percent
	if summary.Result == "" {
		summary.Result = m.session.Result
	}
	if summary.ErrorMessage == "" {
		summary.ErrorMessage = m.session.ErrorMessage
	}
	m.session = summary
	sessionID := m.session.SessionID
	m.mu.Unlock()

	m.emit(ViewUpdate{Kind: UpdateSessionSummary, SessionID: sessionID})
}

// LoadSnapshot replaces the merged state with an authoritative full-state
// read from the REST API. Used on first load and after a reconnect, since
// events in flight during a disconnect may have been lost. Streaming items
// whose interaction is present in the snapshot are discarded.
func (m *Merger) LoadSnapshot(session Session, stages []StageExecution, interactions []Interaction) {
	m.mu.Lock()
	session.Progress = ProgressFor(session.Status).Percent
	m.session = session
	m.stages = nil
	m.interactions = nil
	m.seen = make(map[string]struct{})

	for _, stage := range stages {
		m.upsertStageLocked(stage)
	}
	llmSeen := make(map[string]int)
	mcpSeen := make(map[string]int)
	for i := range interactions {
		in := interactions[i]
		if _, dup := m.seen[in.EventID]; dup {
			continue
		}
		m.seen[in.EventID] = struct{}{}
		m.arrivalSeq++
		in.arrival = m.arrivalSeq
		m.insertInteractionLocked(&in)
		delete(m.streaming, in.EventID)
		switch in.Type {
		case InteractionLLM:
			llmSeen[in.ExecutionID]++
		case InteractionMCP:
			mcpSeen[in.ExecutionID]++
		}
	}
	// Snapshot stage rows may carry zero counts even when interactions
	// exist, so derive them from the interaction list. The snapshot and
	// event paths must converge on the same aggregates.
	for i := range m.stages {
		s := &m.stages[i]
		s.LLMCount = max(s.LLMCount, llmSeen[s.ExecutionID])
		s.MCPCount = max(s.MCPCount, mcpSeen[s.ExecutionID])
	}
	sessionID := m.session.SessionID
	m.mu.Unlock()

	m.emit(ViewUpdate{Kind: UpdateFullRefresh, SessionID: sessionID})
}

func (m *Merger) emit(update ViewUpdate) {
	update.Timestamp = m.now()
	m.emitter.Emit(update)
}

// SessionID returns the id of the session this merger tracks.
func (m *Merger) SessionID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.SessionID
}

// Session returns a copy of the current session state.
func (m *Merger) Session() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

// Stages returns a copy of the ordered stage list, placeholders included.
func (m *Merger) Stages() []StageExecution {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]StageExecution, len(m.stages))
	copy(out, m.stages)
	return out
}

// Interactions returns all merged interactions in display order.
func (m *Merger) Interactions() []Interaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Interaction, 0, len(m.interactions))
	for _, in := range m.interactions {
		out = append(out, *in)
	}
	return out
}

// InteractionsFor returns the merged interactions belonging to one stage
// execution, in display order. An empty executionID selects session-level
// interactions (e.g. executive summary generation).
func (m *Merger) InteractionsFor(executionID string) []Interaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Interaction
	for _, in := range m.interactions {
		if in.ExecutionID == executionID {
			out = append(out, *in)
		}
	}
	return out
}

// Streaming returns the provisional streaming items, newest-updated last.
func (m *Merger) Streaming() []StreamingItem {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]StreamingItem, 0, len(m.streaming))
	for _, item := range m.streaming {
		out = append(out, *item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out
}

// StreamingFor returns the provisional streaming item for an interaction id,
// or false if none exists (yet, or anymore).
func (m *Merger) StreamingFor(interactionID string) (StreamingItem, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.streaming[interactionID]
	if !ok {
		return StreamingItem{}, false
	}
	return *item, true
}

// Chat returns the chat transcript in arrival order.
func (m *Merger) Chat() []ChatMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ChatMessage, len(m.chat))
	copy(out, m.chat)
	return out
}

// LastError returns the most recent backend-reported error message, if any.
func (m *Merger) LastError() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastError
}
