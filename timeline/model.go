// ABOUTME: Core view-model types for an incident-response session: Session, StageExecution, Interaction.
// ABOUTME: Mirrors the backend's session/stage/interaction JSON shapes consumed over REST and WebSocket.
package timeline

import (
	"fmt"
	"time"
)

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	SessionPending    SessionStatus = "pending"
	SessionInProgress SessionStatus = "in_progress"
	SessionPaused     SessionStatus = "paused"
	SessionCanceling  SessionStatus = "canceling"
	SessionCompleted  SessionStatus = "completed"
	SessionFailed     SessionStatus = "failed"
	SessionCancelled  SessionStatus = "cancelled"
	SessionTimedOut   SessionStatus = "timed_out"
)

// Terminal reports whether the status is one a session never leaves.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionCompleted, SessionFailed, SessionCancelled, SessionTimedOut:
		return true
	}
	return false
}

// rank orders statuses along the lifecycle so out-of-order deliveries can
// be rejected. paused and in_progress share a rank: resume moves between
// them in both directions.
func (s SessionStatus) rank() int {
	switch {
	case s == SessionPending:
		return 0
	case s == SessionCanceling:
		return 2
	case s.Terminal():
		return 3
	default:
		return 1
	}
}

// StageStatus is the lifecycle state of a single stage execution.
type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageActive    StageStatus = "active"
	StageCompleted StageStatus = "completed"
	StageFailed    StageStatus = "failed"
)

// Terminal reports whether a stage execution in this status is finished.
func (s StageStatus) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// ParallelType discriminates how a stage's agent executions run.
type ParallelType string

const (
	ParallelSingle     ParallelType = "single"
	ParallelMultiAgent ParallelType = "multi_agent"
	ParallelReplica    ParallelType = "replica"
)

// InteractionType discriminates LLM calls from MCP/tool calls.
type InteractionType string

const (
	InteractionLLM InteractionType = "llm"
	InteractionMCP InteractionType = "mcp"
)

// TokenUsage aggregates token consumption reported by the backend.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Session is the top-level unit of work: one alert being investigated by a
// chain of agent stages. It is created by the backend on alert submission and
// mutated client-side only through the Merger.
type Session struct {
	SessionID   string        `json:"session_id"`
	AlertID     string        `json:"alert_id,omitempty"`
	ChainID     string        `json:"chain_id,omitempty"`
	AlertType   string        `json:"alert_type,omitempty"`
	AgentType   string        `json:"agent_type,omitempty"`
	Status      SessionStatus `json:"status"`
	StartedAtUS int64         `json:"started_at_us,omitempty"`
	EndedAtUS   int64         `json:"completed_at_us,omitempty"`
	Tokens      TokenUsage    `json:"token_usage"`

	// Progress is a 0-100 display value derived from Status.
	Progress int `json:"progress"`

	// Result holds the final analysis text once the session completes.
	Result string `json:"result,omitempty"`

	// ErrorMessage holds the failure text for failed sessions.
	ErrorMessage string `json:"error_message,omitempty"`
}

// StageExecution is one step in a session's chain, or one parallel child of
// a multi_agent/replica stage. Parallel children share a
// ParentExecutionID and are ordered by ParallelIndex.
type StageExecution struct {
	ExecutionID       string       `json:"execution_id"`
	SessionID         string       `json:"session_id"`
	StageName         string       `json:"stage_name,omitempty"`
	StageIndex        int          `json:"stage_index"`
	Status            StageStatus  `json:"status"`
	Agent             string       `json:"agent,omitempty"`
	ParallelType      ParallelType `json:"parallel_type,omitempty"`
	ParentExecutionID string       `json:"parent_stage_execution_id,omitempty"`
	ParallelIndex     int          `json:"parallel_index,omitempty"`
	ExpectedChildren  int          `json:"expected_agent_count,omitempty"`
	StartedAtUS       int64        `json:"started_at_us,omitempty"`
	EndedAtUS         int64        `json:"completed_at_us,omitempty"`
	LLMCount          int          `json:"llm_interaction_count"`
	MCPCount          int          `json:"mcp_interaction_count"`
	ErrorMessage      string       `json:"error_message,omitempty"`

	// IsPlaceholder marks a synthetic pending stand-in created before the
	// real parallel child has reported any data.
	IsPlaceholder bool `json:"is_placeholder,omitempty"`
}

// Interaction is one recorded LLM or MCP/tool call. Immutable once merged:
// the EventID is the dedup key and reapplying the same event is a no-op.
type Interaction struct {
	EventID         string          `json:"event_id"`
	SessionID       string          `json:"session_id"`
	ExecutionID     string          `json:"execution_id,omitempty"` // empty for session-level interactions
	Type            InteractionType `json:"type"`
	StepDescription string          `json:"step_description,omitempty"`
	TimestampUS     int64           `json:"timestamp_us"`
	DurationMS      int             `json:"duration_ms,omitempty"`
	Success         bool            `json:"success"`
	ErrorMessage    string          `json:"error_message,omitempty"`

	// arrival is a monotonically increasing sequence assigned by the Merger
	// to break timestamp ties by arrival order.
	arrival int64

	// Exactly one of LLM or MCP is set, matching Type.
	LLM *LLMDetails `json:"llm_details,omitempty"`
	MCP *MCPDetails `json:"mcp_details,omitempty"`
}

// LLMDetails is the payload of an LLM interaction.
type LLMDetails struct {
	ModelName    string                `json:"model_name,omitempty"`
	Conversation []ConversationMessage `json:"conversation,omitempty"`
	Thinking     string                `json:"thinking_content,omitempty"`
	Tokens       TokenUsage            `json:"token_usage"`
}

// ConversationMessage is one message in an LLM conversation transcript.
type ConversationMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// MCPDetails is the payload of a tool (MCP) interaction.
type MCPDetails struct {
	ServerName string         `json:"server_name,omitempty"`
	ToolName   string         `json:"tool_name,omitempty"`
	Arguments  map[string]any `json:"tool_arguments,omitempty"`
	Result     map[string]any `json:"tool_result,omitempty"`
}

// StreamKind discriminates the sort of in-progress output a StreamingItem holds.
type StreamKind string

const (
	StreamThought        StreamKind = "thought"
	StreamFinalAnswer    StreamKind = "final_answer"
	StreamSummarization  StreamKind = "summarization"
	StreamNativeThinking StreamKind = "native_thinking"
	StreamToolCall       StreamKind = "tool_call"
	StreamUserMessage    StreamKind = "user_message"
)

// StreamingItem is a transient, not-yet-persisted view of in-progress LLM
// output. It is keyed by the interaction id it will eventually become, so the
// Merger can supersede it when the authoritative Interaction arrives.
type StreamingItem struct {
	// InteractionID is the llm_interaction_id or mcp_event_id this item will
	// reconcile against.
	InteractionID string     `json:"interaction_id"`
	ExecutionID   string     `json:"execution_id,omitempty"`
	Kind          StreamKind `json:"kind"`
	Content       string     `json:"content"`
	StartedAt     time.Time  `json:"started_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ChatMessage is a user or assistant chat message attached to a session.
type ChatMessage struct {
	MessageID string `json:"message_id"`
	ChatID    string `json:"chat_id,omitempty"`
	Author    string `json:"author,omitempty"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
}

// PlaceholderID derives the synthetic execution id for the placeholder
// occupying the (parent, index) slot.
func PlaceholderID(parentExecutionID string, parallelIndex int) string {
	return fmt.Sprintf("placeholder-%s-%d", parentExecutionID, parallelIndex)
}

// ChildLabel returns the display label for a parallel child before (or after)
// its real agent identity is known. Replica children are named after the
// agent; multi-agent children get a generic positional label.
func ChildLabel(parallelType ParallelType, agent string, index int) string {
	if parallelType == ParallelReplica && agent != "" {
		return fmt.Sprintf("%s-%d", agent, index)
	}
	return fmt.Sprintf("Agent %d", index)
}
