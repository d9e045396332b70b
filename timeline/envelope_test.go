// ABOUTME: Tests for envelope decoding into the closed event union.
// ABOUTME: Covers malformed JSON, unknown discriminators, legacy spellings, and payload validation.
package timeline

import (
	"errors"
	"testing"
)

func TestDecodeEnvelopeVariants(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string // expected concrete type, blank for error cases
	}{
		{
			name: "connection established",
			raw:  `{"type":"connection_established","data":{"user_id":"u-1"}}`,
			want: TypeConnectionEstablished,
		},
		{
			name: "subscription response",
			raw:  `{"type":"subscription_response","data":{"channel":"session:abc","success":true}}`,
			want: TypeSubscriptionResponse,
		},
		{
			name: "session status change",
			raw:  `{"type":"session_status_change","data":{"session_id":"abc","status":"in_progress"}}`,
			want: TypeSessionStatusChange,
		},
		{
			name: "llm interaction",
			raw:  `{"type":"llm_interaction","data":{"event_id":"ev-1","session_id":"abc","timestamp_us":100,"details":{"model_name":"gpt"}}}`,
			want: TypeLLMInteraction,
		},
		{
			name: "mcp communication",
			raw:  `{"type":"mcp_communication","data":{"event_id":"ev-2","session_id":"abc","timestamp_us":200,"details":{"tool_name":"get_pods"}}}`,
			want: TypeMCPCommunication,
		},
		{
			name: "stage update",
			raw:  `{"type":"stage_update","data":{"session_id":"abc","stage":{"execution_id":"ex-1","stage_index":1,"status":"active"}}}`,
			want: TypeStageUpdate,
		},
		{
			name: "stream chunk",
			raw:  `{"type":"stream_chunk","data":{"session_id":"abc","interaction_id":"llm-1","content":"hi"}}`,
			want: TypeStreamChunk,
		},
		{
			name: "chat message",
			raw:  `{"type":"chat_message","data":{"session_id":"abc","message":{"message_id":"m-1","content":"hello"}}}`,
			want: TypeChatMessage,
		},
		{
			name: "dashboard update",
			raw:  `{"type":"dashboard_update","data":{"session":{"session_id":"abc","status":"pending"}}}`,
			want: TypeDashboardUpdate,
		},
		{
			name: "error event",
			raw:  `{"type":"error","message":"boom","session_id":"abc"}`,
			want: TypeError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := DecodeEnvelope([]byte(tt.raw))
			if err != nil {
				t.Fatalf("DecodeEnvelope: %v", err)
			}
			if got := ev.eventType(); got != tt.want {
				t.Errorf("decoded type = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodeEnvelopeLegacySpellings(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`{"type":"session_update","data":{"session_id":"abc","status":"completed"}}`, TypeSessionStatusChange},
		{`{"type":"status_update","data":{"session_id":"abc","status":"failed"}}`, TypeSessionStatusChange},
		{`{"type":"session.status","data":{"session_id":"abc","status":"pending"}}`, TypeSessionStatusChange},
		{`{"type":"stream.chunk","data":{"interaction_id":"i-1","content":"x"}}`, TypeStreamChunk},
	}
	for _, tt := range tests {
		ev, err := DecodeEnvelope([]byte(tt.raw))
		if err != nil {
			t.Fatalf("DecodeEnvelope(%s): %v", tt.raw, err)
		}
		if got := ev.eventType(); got != tt.want {
			t.Errorf("decoded type = %q, want %q", got, tt.want)
		}
	}
}

func TestDecodeEnvelopeRejects(t *testing.T) {
	t.Run("malformed JSON", func(t *testing.T) {
		if _, err := DecodeEnvelope([]byte(`{not json`)); err == nil {
			t.Error("want decode error for malformed JSON")
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := DecodeEnvelope([]byte(`{"type":"quantum_flux","data":{}}`))
		if !errors.Is(err, ErrUnknownEventType) {
			t.Errorf("err = %v, want ErrUnknownEventType", err)
		}
	})

	t.Run("interaction without event_id", func(t *testing.T) {
		if _, err := DecodeEnvelope([]byte(`{"type":"llm_interaction","data":{"timestamp_us":1}}`)); err == nil {
			t.Error("want error for missing event_id")
		}
	})

	t.Run("stream chunk without interaction_id", func(t *testing.T) {
		if _, err := DecodeEnvelope([]byte(`{"type":"stream_chunk","data":{"content":"x"}}`)); err == nil {
			t.Error("want error for missing interaction_id")
		}
	})
}

func TestDecodeInteractionDefaultsSuccess(t *testing.T) {
	ev, err := DecodeEnvelope([]byte(`{"type":"mcp_communication","data":{"event_id":"ev-9","timestamp_us":5}}`))
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	mcp, ok := ev.(MCPCommunicationEvent)
	if !ok {
		t.Fatalf("decoded %T, want MCPCommunicationEvent", ev)
	}
	if !mcp.Interaction.Success {
		t.Error("success should default to true when omitted")
	}

	ev, err = DecodeEnvelope([]byte(`{"type":"mcp_communication","data":{"event_id":"ev-10","timestamp_us":5,"success":false,"error_message":"Connection timeout"}}`))
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	mcp = ev.(MCPCommunicationEvent)
	if mcp.Interaction.Success {
		t.Error("explicit success=false must be preserved")
	}
	if mcp.Interaction.ErrorMessage != "Connection timeout" {
		t.Errorf("error = %q, want verbatim text", mcp.Interaction.ErrorMessage)
	}
}

func TestMergerApplyRawDropsMalformed(t *testing.T) {
	m := NewMerger("sess-1")

	if err := m.ApplyRaw([]byte(`{"type":"llm_interaction","data":"not an object"}`)); err == nil {
		t.Error("want error describing the drop")
	}

	// The merger stays usable for subsequent valid messages.
	if err := m.ApplyRaw([]byte(`{"type":"session_status_change","data":{"session_id":"sess-1","status":"in_progress"}}`)); err != nil {
		t.Fatalf("valid message after malformed one: %v", err)
	}
	if s := m.Session(); s.Status != SessionInProgress {
		t.Errorf("status = %q, want in_progress", s.Status)
	}
}
