// ABOUTME: Placeholder reconciliation for parallel stages: seed, position-preserving swap, positional insert, sweep.
// ABOUTME: Gives immediate visual feedback for multi_agent/replica children before any real data arrives.
package timeline

// upsertStageLocked applies one stage update to the ordered stage list.
// Callers hold m.mu.
//
// Resolution order:
//  1. A stage already present by execution_id is updated in place.
//  2. A parallel child replaces its matching placeholder at the exact slot
//     it occupied, so sibling positions never jump.
//  3. Otherwise the stage is inserted positionally: children directly after
//     their parent in ascending parallel_index order, top-level stages in
//     ascending stage_index order.
//
// After the upsert, a parallel parent entering execution seeds placeholders
// for its expected children, and a parent reaching a terminal status sweeps
// placeholders that never materialized.
func (m *Merger) upsertStageLocked(stage StageExecution) {
	if i := m.stagePosLocked(stage.ExecutionID); i >= 0 {
		stage.LLMCount = max(stage.LLMCount, m.stages[i].LLMCount)
		stage.MCPCount = max(stage.MCPCount, m.stages[i].MCPCount)
		m.stages[i] = stage
	} else if i := m.placeholderPosLocked(stage.ParentExecutionID, stage.ParallelIndex); i >= 0 {
		m.stages[i] = stage
	} else {
		m.insertStageLocked(stage)
	}

	if stage.ParallelType != "" && stage.ParallelType != ParallelSingle &&
		stage.ParentExecutionID == "" && stage.ExpectedChildren > 0 &&
		stage.Status == StageActive {
		m.seedPlaceholdersLocked(stage)
	}

	if stage.Status.Terminal() && stage.ParentExecutionID == "" {
		m.sweepPlaceholdersLocked(stage.ExecutionID)
	}
}

// stagePosLocked returns the index of the stage with the given execution id,
// or -1.
func (m *Merger) stagePosLocked(executionID string) int {
	for i := range m.stages {
		if m.stages[i].ExecutionID == executionID {
			return i
		}
	}
	return -1
}

// placeholderPosLocked returns the index of the placeholder occupying the
// (parent, index) slot, or -1. At most one placeholder may occupy a slot.
func (m *Merger) placeholderPosLocked(parentID string, parallelIndex int) int {
	if parentID == "" || parallelIndex == 0 {
		return -1
	}
	for i := range m.stages {
		s := &m.stages[i]
		if s.IsPlaceholder && s.ParentExecutionID == parentID && s.ParallelIndex == parallelIndex {
			return i
		}
	}
	return -1
}

// insertStageLocked inserts a stage that matched neither an existing record
// nor a placeholder. Children land directly after their parent, before any
// sibling with a greater parallel_index; top-level stages keep ascending
// stage_index order. A child whose parent is unknown is appended, and will
// sort correctly once a snapshot reload restores the parent.
func (m *Merger) insertStageLocked(stage StageExecution) {
	pos := len(m.stages)

	if stage.ParentExecutionID != "" {
		parent := m.stagePosLocked(stage.ParentExecutionID)
		if parent >= 0 {
			pos = parent + 1
			for pos < len(m.stages) && m.stages[pos].ParentExecutionID == stage.ParentExecutionID &&
				m.stages[pos].ParallelIndex < stage.ParallelIndex {
				pos++
			}
		}
	} else {
		for i := range m.stages {
			if m.stages[i].ParentExecutionID == "" && m.stages[i].StageIndex > stage.StageIndex {
				pos = i
				break
			}
		}
	}

	m.stages = append(m.stages, StageExecution{})
	copy(m.stages[pos+1:], m.stages[pos:])
	m.stages[pos] = stage
}

// seedPlaceholdersLocked creates pending placeholders for every expected
// child slot of the parent that is not already occupied by a real child or
// an earlier placeholder.
func (m *Merger) seedPlaceholdersLocked(parent StageExecution) {
	for idx := 1; idx <= parent.ExpectedChildren; idx++ {
		if m.childPosLocked(parent.ExecutionID, idx) >= 0 {
			continue
		}
		m.insertStageLocked(StageExecution{
			ExecutionID:       PlaceholderID(parent.ExecutionID, idx),
			SessionID:         parent.SessionID,
			StageName:         parent.StageName,
			StageIndex:        parent.StageIndex,
			Status:            StagePending,
			Agent:             ChildLabel(parent.ParallelType, parent.Agent, idx),
			ParallelType:      parent.ParallelType,
			ParentExecutionID: parent.ExecutionID,
			ParallelIndex:     idx,
			IsPlaceholder:     true,
		})
	}
}

// childPosLocked returns the index of any child (real or placeholder) of the
// parent at the given parallel index, or -1.
func (m *Merger) childPosLocked(parentID string, parallelIndex int) int {
	for i := range m.stages {
		s := &m.stages[i]
		if s.ParentExecutionID == parentID && s.ParallelIndex == parallelIndex {
			return i
		}
	}
	return -1
}

// sweepPlaceholdersLocked removes pending placeholders belonging to the
// parent. They represent children that never started and will not arrive.
func (m *Merger) sweepPlaceholdersLocked(parentID string) {
	kept := m.stages[:0]
	for _, s := range m.stages {
		if s.IsPlaceholder && s.ParentExecutionID == parentID && s.Status == StagePending {
			continue
		}
		kept = append(kept, s)
	}
	m.stages = kept
}

// sweepAllPlaceholdersLocked removes every pending placeholder. Called when
// the session itself reaches a terminal status.
func (m *Merger) sweepAllPlaceholdersLocked() {
	kept := m.stages[:0]
	for _, s := range m.stages {
		if s.IsPlaceholder && s.Status == StagePending {
			continue
		}
		kept = append(kept, s)
	}
	m.stages = kept
}
