// ABOUTME: WebSocket envelope decoding into a closed set of typed event variants.
// ABOUTME: Validates payload shapes at the deserialization boundary; unknown types are reported, not guessed at.
package timeline

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Wire envelope type discriminators recognized on the session event channel.
const (
	TypeConnectionEstablished = "connection_established"
	TypeSubscriptionResponse  = "subscription_response"
	TypeSessionStatusChange   = "session_status_change"
	TypeLLMInteraction        = "llm_interaction"
	TypeMCPCommunication      = "mcp_communication"
	TypeChatMessage           = "chat_message"
	TypeStageUpdate           = "stage_update"
	TypeStreamChunk           = "stream_chunk"
	TypeDashboardUpdate       = "dashboard_update"
	TypeError                 = "error"
)

// ErrUnknownEventType is returned by DecodeEnvelope for a type discriminator
// outside the recognized set. Callers log and drop these rather than failing.
var ErrUnknownEventType = errors.New("unknown event type")

// Envelope is the raw inbound message shape shared by every event on the wire.
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Message   string          `json:"message,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
}

// Event is the closed union of decoded inbound events. Each variant carries
// a validated payload; consumers switch over the concrete types.
type Event interface {
	eventType() string
}

// ConnectionEstablished is sent by the backend once after the socket opens.
type ConnectionEstablished struct {
	UserID string `json:"user_id,omitempty"`
}

// SubscriptionResponse acknowledges (or rejects) a channel subscribe request.
type SubscriptionResponse struct {
	Channel string `json:"channel"`
	OK      bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// SessionStatusChange reports a session lifecycle transition, optionally
// carrying the final result or error text on terminal transitions.
type SessionStatusChange struct {
	SessionID    string        `json:"session_id"`
	Status       SessionStatus `json:"status"`
	Result       string        `json:"result,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	TimestampUS  int64         `json:"timestamp_us,omitempty"`
	Tokens       *TokenUsage   `json:"token_usage,omitempty"`
}

// LLMInteractionEvent carries one persisted LLM interaction.
type LLMInteractionEvent struct {
	Interaction Interaction
}

// MCPCommunicationEvent carries one persisted tool (MCP) interaction.
type MCPCommunicationEvent struct {
	Interaction Interaction
}

// ChatMessageEvent carries one chat message for the session.
type ChatMessageEvent struct {
	SessionID string      `json:"session_id"`
	Message   ChatMessage `json:"message"`
}

// StageUpdateEvent reports a stage execution starting, progressing, or
// finishing, including parallel-child updates.
type StageUpdateEvent struct {
	SessionID string         `json:"session_id"`
	Stage     StageExecution `json:"stage"`
}

// StreamChunkEvent is a transient incremental-text delta for an in-progress
// LLM generation. Not persisted; lost chunks are recovered by the eventual
// persisted interaction.
type StreamChunkEvent struct {
	SessionID     string     `json:"session_id"`
	InteractionID string     `json:"interaction_id"`
	ExecutionID   string     `json:"execution_id,omitempty"`
	Kind          StreamKind `json:"kind,omitempty"`
	Content       string     `json:"content"`
}

// DashboardUpdateEvent carries a session summary for the multiplexed
// dashboard channel (session list view).
type DashboardUpdateEvent struct {
	Session Session `json:"session"`
}

// ErrorEvent is a backend-reported error on the event channel.
type ErrorEvent struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

func (ConnectionEstablished) eventType() string { return TypeConnectionEstablished }
func (SubscriptionResponse) eventType() string  { return TypeSubscriptionResponse }
func (SessionStatusChange) eventType() string   { return TypeSessionStatusChange }
func (LLMInteractionEvent) eventType() string   { return TypeLLMInteraction }
func (MCPCommunicationEvent) eventType() string { return TypeMCPCommunication }
func (ChatMessageEvent) eventType() string      { return TypeChatMessage }
func (StageUpdateEvent) eventType() string      { return TypeStageUpdate }
func (StreamChunkEvent) eventType() string      { return TypeStreamChunk }
func (DashboardUpdateEvent) eventType() string  { return TypeDashboardUpdate }
func (ErrorEvent) eventType() string            { return TypeError }

// wireInteraction is the on-the-wire shape of a persisted interaction before
// it is normalized into an Interaction.
type wireInteraction struct {
	EventID         string      `json:"event_id"`
	SessionID       string      `json:"session_id"`
	ExecutionID     string      `json:"stage_execution_id,omitempty"`
	TimestampUS     int64       `json:"timestamp_us"`
	StepDescription string      `json:"step_description,omitempty"`
	DurationMS      int         `json:"duration_ms,omitempty"`
	Success         *bool       `json:"success,omitempty"`
	ErrorMessage    string      `json:"error_message,omitempty"`
	LLMDetails      *LLMDetails `json:"details,omitempty"`
}

type wireMCPInteraction struct {
	EventID         string      `json:"event_id"`
	SessionID       string      `json:"session_id"`
	ExecutionID     string      `json:"stage_execution_id,omitempty"`
	TimestampUS     int64       `json:"timestamp_us"`
	StepDescription string      `json:"step_description,omitempty"`
	DurationMS      int         `json:"duration_ms,omitempty"`
	Success         *bool       `json:"success,omitempty"`
	ErrorMessage    string      `json:"error_message,omitempty"`
	MCPDetails      *MCPDetails `json:"details,omitempty"`
}

// DecodeEnvelope parses raw wire bytes into a typed Event. It returns
// ErrUnknownEventType (wrapped with the offending discriminator) for types
// outside the recognized set, and a plain decode error for malformed JSON.
// Either way the connection stays usable; callers log and continue.
func DecodeEnvelope(raw []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}
	return DecodeEvent(env)
}

// DecodeEvent converts a parsed Envelope into its typed Event variant.
func DecodeEvent(env Envelope) (Event, error) {
	switch canonicalType(env.Type) {
	case TypeConnectionEstablished:
		var ev ConnectionEstablished
		if err := decodeData(env.Data, &ev); err != nil {
			return nil, err
		}
		return ev, nil

	case TypeSubscriptionResponse:
		var ev SubscriptionResponse
		if err := decodeData(env.Data, &ev); err != nil {
			return nil, err
		}
		if ev.Message == "" {
			ev.Message = env.Message
		}
		return ev, nil

	case TypeSessionStatusChange:
		var ev SessionStatusChange
		if err := decodeData(env.Data, &ev); err != nil {
			return nil, err
		}
		if ev.SessionID == "" {
			ev.SessionID = env.SessionID
		}
		if ev.SessionID == "" {
			return nil, fmt.Errorf("session_status_change missing session_id")
		}
		return ev, nil

	case TypeLLMInteraction:
		var w wireInteraction
		if err := decodeData(env.Data, &w); err != nil {
			return nil, err
		}
		if w.EventID == "" {
			return nil, fmt.Errorf("llm_interaction missing event_id")
		}
		return LLMInteractionEvent{Interaction: Interaction{
			EventID:         w.EventID,
			SessionID:       firstNonEmpty(w.SessionID, env.SessionID),
			ExecutionID:     w.ExecutionID,
			Type:            InteractionLLM,
			StepDescription: w.StepDescription,
			TimestampUS:     w.TimestampUS,
			DurationMS:      w.DurationMS,
			Success:         w.Success == nil || *w.Success,
			ErrorMessage:    w.ErrorMessage,
			LLM:             w.LLMDetails,
		}}, nil

	case TypeMCPCommunication:
		var w wireMCPInteraction
		if err := decodeData(env.Data, &w); err != nil {
			return nil, err
		}
		if w.EventID == "" {
			return nil, fmt.Errorf("mcp_communication missing event_id")
		}
		return MCPCommunicationEvent{Interaction: Interaction{
			EventID:         w.EventID,
			SessionID:       firstNonEmpty(w.SessionID, env.SessionID),
			ExecutionID:     w.ExecutionID,
			Type:            InteractionMCP,
			StepDescription: w.StepDescription,
			TimestampUS:     w.TimestampUS,
			DurationMS:      w.DurationMS,
			Success:         w.Success == nil || *w.Success,
			ErrorMessage:    w.ErrorMessage,
			MCP:             w.MCPDetails,
		}}, nil

	case TypeChatMessage:
		var ev ChatMessageEvent
		if err := decodeData(env.Data, &ev); err != nil {
			return nil, err
		}
		if ev.SessionID == "" {
			ev.SessionID = env.SessionID
		}
		return ev, nil

	case TypeStageUpdate:
		var ev StageUpdateEvent
		if err := decodeData(env.Data, &ev); err != nil {
			return nil, err
		}
		if ev.Stage.ExecutionID == "" {
			return nil, fmt.Errorf("stage_update missing execution_id")
		}
		if ev.SessionID == "" {
			ev.SessionID = firstNonEmpty(ev.Stage.SessionID, env.SessionID)
		}
		return ev, nil

	case TypeStreamChunk:
		var ev StreamChunkEvent
		if err := decodeData(env.Data, &ev); err != nil {
			return nil, err
		}
		if ev.InteractionID == "" {
			return nil, fmt.Errorf("stream_chunk missing interaction_id")
		}
		if ev.SessionID == "" {
			ev.SessionID = env.SessionID
		}
		return ev, nil

	case TypeDashboardUpdate:
		var ev DashboardUpdateEvent
		if err := decodeData(env.Data, &ev); err != nil {
			return nil, err
		}
		if ev.Session.SessionID == "" {
			return nil, fmt.Errorf("dashboard_update missing session_id")
		}
		return ev, nil

	case TypeError:
		ev := ErrorEvent{SessionID: env.SessionID, Message: env.Message}
		if len(env.Data) > 0 {
			// Some backends nest the message under data.
			var nested struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal(env.Data, &nested); err == nil && nested.Message != "" {
				ev.Message = nested.Message
			}
		}
		return ev, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, env.Type)
	}
}

// canonicalType folds the legacy discriminator spellings observed on the
// direct per-alert channel into the dashboard channel's names.
func canonicalType(t string) string {
	switch t {
	case "session_update", "status_update":
		return TypeSessionStatusChange
	case "session.status":
		return TypeSessionStatusChange
	case "stage.status":
		return TypeStageUpdate
	case "stream.chunk":
		return TypeStreamChunk
	}
	return t
}

func decodeData(data json.RawMessage, dst any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decoding event payload: %w", err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
