// ABOUTME: Tests for placeholder reconciliation: seeding, position-preserving swap, positional insert, sweep.
// ABOUTME: Validates sibling ordering by parallel_index and cleanup on parent terminal status.
package timeline

import (
	"fmt"
	"testing"
)

func parallelParent(n int) StageExecution {
	return StageExecution{
		ExecutionID:      "parent-1",
		SessionID:        "sess-1",
		StageName:        "investigation",
		StageIndex:       2,
		Status:           StageActive,
		Agent:            "KubernetesAgent",
		ParallelType:     ParallelReplica,
		ExpectedChildren: n,
	}
}

func realChild(index int) StageUpdateEvent {
	return StageUpdateEvent{SessionID: "sess-1", Stage: StageExecution{
		ExecutionID:       fmt.Sprintf("child-%d", index),
		SessionID:         "sess-1",
		StageIndex:        2,
		Status:            StageActive,
		Agent:             "KubernetesAgent",
		ParallelType:      ParallelReplica,
		ParentExecutionID: "parent-1",
		ParallelIndex:     index,
	}}
}

func TestPlaceholderSeeding(t *testing.T) {
	m := NewMerger("sess-1")
	m.Apply(StageUpdateEvent{SessionID: "sess-1", Stage: parallelParent(3)})

	stages := m.Stages()
	if len(stages) != 4 {
		t.Fatalf("got %d stages, want parent + 3 placeholders", len(stages))
	}
	if stages[0].ExecutionID != "parent-1" {
		t.Errorf("stage 0 = %q, want parent-1", stages[0].ExecutionID)
	}
	for i := 1; i <= 3; i++ {
		s := stages[i]
		if !s.IsPlaceholder {
			t.Errorf("stage %d not a placeholder", i)
		}
		if want := PlaceholderID("parent-1", i); s.ExecutionID != want {
			t.Errorf("stage %d id = %q, want %q", i, s.ExecutionID, want)
		}
		if s.Status != StagePending {
			t.Errorf("stage %d status = %q, want pending", i, s.Status)
		}
		if want := fmt.Sprintf("KubernetesAgent-%d", i); s.Agent != want {
			t.Errorf("stage %d label = %q, want %q", i, s.Agent, want)
		}
	}

	// Reapplying the parent must not duplicate placeholders.
	m.Apply(StageUpdateEvent{SessionID: "sess-1", Stage: parallelParent(3)})
	if got := len(m.Stages()); got != 4 {
		t.Errorf("got %d stages after reapply, want 4", got)
	}
}

func TestPlaceholderReplacementPreservesPosition(t *testing.T) {
	m := NewMerger("sess-1")
	m.Apply(StageUpdateEvent{SessionID: "sess-1", Stage: parallelParent(3)})

	before := m.Stages()
	m.Apply(realChild(2))
	after := m.Stages()

	if len(after) != len(before) {
		t.Fatalf("stage count changed: %d -> %d", len(before), len(after))
	}
	// Positions 1 and 3 (placeholders 1 and 3) untouched; position 2 now real.
	if after[1].ExecutionID != before[1].ExecutionID {
		t.Errorf("position 1 changed: %q -> %q", before[1].ExecutionID, after[1].ExecutionID)
	}
	if after[3].ExecutionID != before[3].ExecutionID {
		t.Errorf("position 3 changed: %q -> %q", before[3].ExecutionID, after[3].ExecutionID)
	}
	if after[2].ExecutionID != "child-2" || after[2].IsPlaceholder {
		t.Errorf("position 2 = %+v, want real child-2", after[2])
	}
}

func TestChildWithoutPlaceholderInsertsPositionally(t *testing.T) {
	m := NewMerger("sess-1")

	// Child index 2 arrives before its parent ever seeded placeholders.
	parent := parallelParent(0) // unknown expected count
	m.Apply(StageUpdateEvent{SessionID: "sess-1", Stage: parent})
	m.Apply(realChild(2))
	m.Apply(realChild(1))
	m.Apply(realChild(3))

	stages := m.Stages()
	if len(stages) != 4 {
		t.Fatalf("got %d stages, want 4", len(stages))
	}
	for i, want := range []string{"parent-1", "child-1", "child-2", "child-3"} {
		if stages[i].ExecutionID != want {
			t.Errorf("stage %d = %q, want %q (ascending parallel_index)", i, stages[i].ExecutionID, want)
		}
	}
}

func TestUnderestimatedChildCountDegradesToPositionalInsert(t *testing.T) {
	m := NewMerger("sess-1")
	m.Apply(StageUpdateEvent{SessionID: "sess-1", Stage: parallelParent(2)})

	// Index 3 exceeds the seeded count; no placeholder matches.
	m.Apply(realChild(3))

	stages := m.Stages()
	if len(stages) != 4 {
		t.Fatalf("got %d stages, want parent + 2 placeholders + 1 real", len(stages))
	}
	if stages[3].ExecutionID != "child-3" {
		t.Errorf("stage 3 = %q, want child-3 after both placeholders", stages[3].ExecutionID)
	}
}

func TestSweepOnParentTerminal(t *testing.T) {
	m := NewMerger("sess-1")
	m.Apply(StageUpdateEvent{SessionID: "sess-1", Stage: parallelParent(3)})
	m.Apply(realChild(1))

	parent := parallelParent(3)
	parent.Status = StageCompleted
	m.Apply(StageUpdateEvent{SessionID: "sess-1", Stage: parent})

	stages := m.Stages()
	if len(stages) != 2 {
		t.Fatalf("got %d stages, want parent + real child only", len(stages))
	}
	if stages[0].ExecutionID != "parent-1" || stages[1].ExecutionID != "child-1" {
		t.Errorf("stages = [%s %s], want [parent-1 child-1]", stages[0].ExecutionID, stages[1].ExecutionID)
	}
}

func TestTopLevelStageOrdering(t *testing.T) {
	m := NewMerger("sess-1")

	third := StageExecution{ExecutionID: "s3", SessionID: "sess-1", StageIndex: 3, Status: StagePending}
	first := StageExecution{ExecutionID: "s1", SessionID: "sess-1", StageIndex: 1, Status: StageCompleted}
	second := StageExecution{ExecutionID: "s2", SessionID: "sess-1", StageIndex: 2, Status: StageActive}

	m.Apply(StageUpdateEvent{SessionID: "sess-1", Stage: third})
	m.Apply(StageUpdateEvent{SessionID: "sess-1", Stage: first})
	m.Apply(StageUpdateEvent{SessionID: "sess-1", Stage: second})

	stages := m.Stages()
	for i, want := range []string{"s1", "s2", "s3"} {
		if stages[i].ExecutionID != want {
			t.Errorf("stage %d = %q, want %q", i, stages[i].ExecutionID, want)
		}
	}
}

func TestMultiAgentLabeling(t *testing.T) {
	if got := ChildLabel(ParallelMultiAgent, "", 2); got != "Agent 2" {
		t.Errorf("multi-agent label = %q, want %q", got, "Agent 2")
	}
	if got := ChildLabel(ParallelReplica, "LogAgent", 1); got != "LogAgent-1" {
		t.Errorf("replica label = %q, want %q", got, "LogAgent-1")
	}
}
