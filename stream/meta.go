package stream

import "sync/atomic"

// StreamMeta holds the vnode-wide state stream tasks coordinate
// through: the checkpoint-readiness counter spec section 5 describes
// as "the correctness property is single-commit: exactly one task
// observes the decrement-to-zero and performs the commit."
type StreamMeta struct {
	chkptNotReadyTasks atomic.Int64
	checkpointingID    atomic.Int64

	// Commit stands in for BackendDoCheckpoint(meta, checkpointingId)
	// followed by SaveTasks; wired to CheckpointBackend.CommitVnodeCheckpoint.
	Commit func(checkpointingID int64) error
}

func NewStreamMeta(commit func(checkpointingID int64) error) *StreamMeta {
	return &StreamMeta{Commit: commit}
}

// BeginCheckpoint arms the coordinator for a new checkpoint generation
// involving notReadyCount tasks.
func (m *StreamMeta) BeginCheckpoint(checkpointingID int64, notReadyCount int64) {
	m.checkpointingID.Store(checkpointingID)
	m.chkptNotReadyTasks.Store(notReadyCount)
}

// DecrementAndMaybeCommit is called once per task as it reaches
// CK_READY. The task whose decrement observes zero performs the single
// vnode-wide commit.
func (m *StreamMeta) DecrementAndMaybeCommit() error {
	if m.chkptNotReadyTasks.Add(-1) == 0 {
		if m.Commit == nil {
			return nil
		}
		return m.Commit(m.checkpointingID.Load())
	}
	return nil
}
