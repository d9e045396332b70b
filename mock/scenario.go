// ABOUTME: Canned investigation replay: a three-stage chain with a parallel replica stage.
// ABOUTME: Streams thinking and final-analysis chunks before persisting each LLM interaction.
package mock

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rsoaresd/tarsy-bot-sub002/live"
	"github.com/rsoaresd/tarsy-bot-sub002/timeline"
)

// dashboardChannel carries session summaries for the list view.
const dashboardChannel = "sessions"

const finalAnalysis = `## Root Cause

The namespace ` + "`superman-dev`" + ` is stuck in **Terminating** because a
finalizer on a custom resource is never removed.

## Remediation

1. Identify the blocked resource: ` + "`kubectl api-resources --verbs=list`" + `
2. Patch the finalizer out of the stuck resource.
3. Verify the namespace deletes within a minute.
`

// wireInteraction is the backend's event payload for a persisted interaction.
type wireInteraction struct {
	EventID         string `json:"event_id"`
	SessionID       string `json:"session_id"`
	ExecutionID     string `json:"stage_execution_id,omitempty"`
	TimestampUS     int64  `json:"timestamp_us"`
	StepDescription string `json:"step_description,omitempty"`
	DurationMS      int    `json:"duration_ms,omitempty"`
	Success         *bool  `json:"success,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty"`
	Details         any    `json:"details,omitempty"`
}

// runScenario replays the canned investigation for one session. Each step is
// separated by the configured delay, and a cancel request observed between
// steps short-circuits into the cancelled terminal state.
func (s *Server) runScenario(sessionID string) {
	step := func() bool {
		time.Sleep(s.stepDelay)
		s.mu.Lock()
		cancelled := s.sessions[sessionID].cancelReq
		s.mu.Unlock()
		if cancelled {
			s.setSessionStatus(sessionID, timeline.SessionCanceling, "", "")
			s.setSessionStatus(sessionID, timeline.SessionCancelled, "", "")
			return false
		}
		return true
	}

	s.setSessionStatus(sessionID, timeline.SessionInProgress, "", "")

	// Stage 1: single-agent data collection with a streamed thought.
	collect := s.upsertStage(timeline.StageExecution{
		ExecutionID: "exec-" + uuid.NewString()[:8],
		SessionID:   sessionID,
		StageName:   "data-collection",
		StageIndex:  1,
		Status:      timeline.StageActive,
		Agent:       "KubernetesAgent",
		StartedAtUS: nowUS(),
	})
	if !step() {
		return
	}

	thinkID := "llm-" + uuid.NewString()[:8]
	s.streamText(sessionID, thinkID, collect.ExecutionID, timeline.StreamThought,
		"Checking the namespace state and its finalizers before anything else.")
	s.addInteraction(sessionID, collect.ExecutionID, timeline.InteractionLLM,
		"Analyze namespace state", true, "", timeline.LLMDetails{
			ModelName: "claude-sonnet-4",
			Tokens:    timeline.TokenUsage{InputTokens: 900, OutputTokens: 220, TotalTokens: 1120},
		})
	s.addInteraction(sessionID, collect.ExecutionID, timeline.InteractionMCP,
		"kubectl get namespace superman-dev", true, "", timeline.MCPDetails{
			ServerName: "kubernetes-server",
			ToolName:   "resources_get",
			Arguments:  map[string]any{"kind": "Namespace", "name": "superman-dev"},
			Result:     map[string]any{"status": "Terminating"},
		})
	collect.Status = timeline.StageCompleted
	collect.EndedAtUS = nowUS()
	s.upsertStage(collect)
	if !step() {
		return
	}

	// Stage 2: replica-parallel verification. The parent advertises three
	// children; each reports independently and out of order.
	parent := s.upsertStage(timeline.StageExecution{
		ExecutionID:      "exec-" + uuid.NewString()[:8],
		SessionID:        sessionID,
		StageName:        "parallel-verification",
		StageIndex:       2,
		Status:           timeline.StageActive,
		Agent:            "VerificationAgent",
		ParallelType:     timeline.ParallelReplica,
		ExpectedChildren: 3,
		StartedAtUS:      nowUS(),
	})
	if !step() {
		return
	}

	for _, idx := range []int{2, 1, 3} {
		child := s.upsertStage(timeline.StageExecution{
			ExecutionID:       "exec-" + uuid.NewString()[:8],
			SessionID:         sessionID,
			StageName:         "parallel-verification",
			StageIndex:        2,
			Status:            timeline.StageActive,
			Agent:             "VerificationAgent",
			ParallelType:      timeline.ParallelReplica,
			ParentExecutionID: parent.ExecutionID,
			ParallelIndex:     idx,
			StartedAtUS:       nowUS(),
		})

		ok := idx != 2
		errMsg := ""
		if !ok {
			errMsg = "Connection timeout"
		}
		s.addInteraction(sessionID, child.ExecutionID, timeline.InteractionMCP,
			"Verify finalizer ownership", ok, errMsg, timeline.MCPDetails{
				ServerName: "kubernetes-server",
				ToolName:   "resources_list",
				Arguments:  map[string]any{"kind": "CustomResourceDefinition"},
			})

		child.Status = timeline.StageCompleted
		if !ok {
			child.Status = timeline.StageFailed
			child.ErrorMessage = errMsg
		}
		child.EndedAtUS = nowUS()
		s.upsertStage(child)
		if !step() {
			return
		}
	}

	parent.Status = timeline.StageCompleted
	parent.EndedAtUS = nowUS()
	s.upsertStage(parent)

	// Stage 3: final analysis streamed as markdown, then persisted.
	final := s.upsertStage(timeline.StageExecution{
		ExecutionID: "exec-" + uuid.NewString()[:8],
		SessionID:   sessionID,
		StageName:   "final-analysis",
		StageIndex:  3,
		Status:      timeline.StageActive,
		Agent:       "KubernetesAgent",
		StartedAtUS: nowUS(),
	})
	if !step() {
		return
	}

	finalID := "llm-" + uuid.NewString()[:8]
	s.streamText(sessionID, finalID, final.ExecutionID, timeline.StreamFinalAnswer, finalAnalysis)
	s.addInteraction(sessionID, final.ExecutionID, timeline.InteractionLLM,
		"Compose final analysis", true, "", timeline.LLMDetails{
			ModelName: "claude-sonnet-4",
			Tokens:    timeline.TokenUsage{InputTokens: 2400, OutputTokens: 610, TotalTokens: 3010},
		})
	final.Status = timeline.StageCompleted
	final.EndedAtUS = nowUS()
	s.upsertStage(final)

	s.setSessionStatus(sessionID, timeline.SessionCompleted, finalAnalysis, "")
}

// setSessionStatus updates the stored session and broadcasts the transition
// on both the session channel and the dashboard summary channel.
func (s *Server) setSessionStatus(sessionID string, status timeline.SessionStatus, result, errMsg string) {
	s.mu.Lock()
	st := s.sessions[sessionID]
	st.session.Status = status
	if result != "" {
		st.session.Result = result
	}
	if errMsg != "" {
		st.session.ErrorMessage = errMsg
	}
	switch status {
	case timeline.SessionInProgress:
		st.session.StartedAtUS = nowUS()
		st.session.Progress = 50
	case timeline.SessionCompleted, timeline.SessionFailed, timeline.SessionCancelled, timeline.SessionTimedOut:
		st.session.EndedAtUS = nowUS()
		st.session.Progress = 100
	}
	summary := st.session
	s.mu.Unlock()

	s.broadcast(live.SessionChannel(sessionID), timeline.Envelope{
		Type: timeline.TypeSessionStatusChange,
		Data: mustMarshal(map[string]any{
			"session_id":    sessionID,
			"status":        status,
			"result":        result,
			"error_message": errMsg,
			"timestamp_us":  nowUS(),
		}),
	})
	s.broadcast(dashboardChannel, timeline.Envelope{
		Type: timeline.TypeDashboardUpdate,
		Data: mustMarshal(map[string]any{"session": summary}),
	})
}

// upsertStage stores the stage and broadcasts a stage_update. Returns the
// stage so callers can mutate and re-upsert it.
func (s *Server) upsertStage(stage timeline.StageExecution) timeline.StageExecution {
	s.mu.Lock()
	st := s.sessions[stage.SessionID]
	replaced := false
	for i := range st.stages {
		if st.stages[i].ExecutionID == stage.ExecutionID {
			st.stages[i] = stage
			replaced = true
			break
		}
	}
	if !replaced {
		st.stages = append(st.stages, stage)
	}
	s.mu.Unlock()

	s.broadcast(live.SessionChannel(stage.SessionID), timeline.Envelope{
		Type: timeline.TypeStageUpdate,
		Data: mustMarshal(map[string]any{"session_id": stage.SessionID, "stage": stage}),
	})
	return stage
}

// addInteraction persists and broadcasts one LLM or MCP interaction.
func (s *Server) addInteraction(sessionID, executionID string, kind timeline.InteractionType, description string, ok bool, errMsg string, details any) {
	eventID := newEventID()
	ts := nowUS()

	interaction := timeline.Interaction{
		EventID:         eventID,
		SessionID:       sessionID,
		ExecutionID:     executionID,
		Type:            kind,
		StepDescription: description,
		TimestampUS:     ts,
		Success:         ok,
		ErrorMessage:    errMsg,
	}
	eventType := timeline.TypeLLMInteraction
	switch d := details.(type) {
	case timeline.LLMDetails:
		interaction.LLM = &d
	case timeline.MCPDetails:
		interaction.MCP = &d
		eventType = timeline.TypeMCPCommunication
	}

	s.mu.Lock()
	st := s.sessions[sessionID]
	st.interactions = append(st.interactions, interaction)
	s.mu.Unlock()

	s.broadcast(live.SessionChannel(sessionID), timeline.Envelope{
		Type: eventType,
		Data: mustMarshal(wireInteraction{
			EventID:         eventID,
			SessionID:       sessionID,
			ExecutionID:     executionID,
			TimestampUS:     ts,
			StepDescription: description,
			Success:         &ok,
			ErrorMessage:    errMsg,
			Details:         details,
		}),
	})
}

// streamText broadcasts a text as a burst of stream_chunk deltas. Chunks are
// transient; the persisted interaction that follows supersedes them.
func (s *Server) streamText(sessionID, interactionID, executionID string, kind timeline.StreamKind, text string) {
	words := strings.SplitAfter(text, " ")
	for chunk := 0; chunk < len(words); chunk += 4 {
		end := min(chunk+4, len(words))
		s.broadcast(live.SessionChannel(sessionID), timeline.Envelope{
			Type: timeline.TypeStreamChunk,
			Data: mustMarshal(map[string]any{
				"session_id":     sessionID,
				"interaction_id": interactionID,
				"execution_id":   executionID,
				"kind":           kind,
				"content":        strings.Join(words[chunk:end], ""),
			}),
		})
	}
}

func nowUS() int64 {
	return time.Now().UnixMicro()
}
