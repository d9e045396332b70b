// ABOUTME: Update notification fan-out for the merged session view, enabling real-time observation.
// ABOUTME: Provides UpdateEmitter with subscribe/emit/unsubscribe pattern and typed ViewUpdate delivery.
package timeline

import (
	"sync"
	"time"
)

// UpdateKind discriminates the type of merged-view update.
type UpdateKind string

const (
	UpdateSessionStatus  UpdateKind = "session_status"
	UpdateStage          UpdateKind = "stage"
	UpdateInteraction    UpdateKind = "interaction"
	UpdateStreaming      UpdateKind = "streaming"
	UpdateChat           UpdateKind = "chat"
	UpdateFullRefresh    UpdateKind = "full_refresh"
	UpdateBackendError   UpdateKind = "backend_error"
	UpdateSessionSummary UpdateKind = "session_summary"
)

// ViewUpdate is emitted by the Merger after each state change it applies.
type ViewUpdate struct {
	Kind      UpdateKind `json:"kind"`
	SessionID string     `json:"session_id"`
	Timestamp time.Time  `json:"timestamp"`

	// ID identifies the changed record where applicable: execution_id for
	// stage updates, event_id for interactions, interaction_id for streaming.
	ID string `json:"id,omitempty"`

	// Message carries error text for backend_error updates.
	Message string `json:"message,omitempty"`
}

// UpdateEmitter fans merged-view updates out to subscriber channels.
type UpdateEmitter struct {
	mu          sync.RWMutex
	subscribers []chan ViewUpdate
	closed      bool
}

// NewUpdateEmitter creates a new UpdateEmitter.
func NewUpdateEmitter() *UpdateEmitter {
	return &UpdateEmitter{
		subscribers: make([]chan ViewUpdate, 0),
	}
}

// Subscribe registers and returns a buffered subscriber channel.
func (e *UpdateEmitter) Subscribe() <-chan ViewUpdate {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch := make(chan ViewUpdate, 64)
	e.subscribers = append(e.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber channel and closes it.
func (e *UpdateEmitter) Unsubscribe(ch <-chan ViewUpdate) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, sub := range e.subscribers {
		if (<-chan ViewUpdate)(sub) == ch {
			close(sub)
			e.subscribers = append(e.subscribers[:i], e.subscribers[i+1:]...)
			return
		}
	}
}

// Emit sends an update to all subscribers. Non-blocking: if a subscriber's
// channel buffer is full, the update is dropped for that subscriber. Dropped
// updates are safe because subscribers re-read the merged view, not the
// update stream, for state.
func (e *UpdateEmitter) Emit(update ViewUpdate) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return
	}

	for _, ch := range e.subscribers {
		select {
		case ch <- update:
		default:
		}
	}
}

// Close closes the emitter and all subscriber channels.
func (e *UpdateEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.closed = true

	for _, ch := range e.subscribers {
		close(ch)
	}
	e.subscribers = nil
}
