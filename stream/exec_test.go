package stream

import (
	"path/filepath"
	"testing"

	"github.com/tsvnode/vnode-core/common/testutil"
	"github.com/tsvnode/vnode-core/lsm"
	"github.com/tsvnode/vnode-core/queryop"
)

func newPassthroughOperator(t *testing.T) *queryop.FakeOperator {
	t.Helper()
	store, err := lsm.NewSnapshotStore(filepath.Join(testutil.TempDir(t), "snap"))
	if err != nil {
		t.Fatalf("NewSnapshotStore: %v", err)
	}
	return queryop.NewFakeOperator(store, nil, nil)
}

// TestCheckpointBarrierBlocksLaterBlocks is scenario S3: a Checkpoint
// item acts as a barrier — the block queued after it must not be
// processed until the task has cycled through CK -> CK_READY and been
// handed back to the scheduler.
func TestCheckpointBarrierBlocksLaterBlocks(t *testing.T) {
	op := newPassthroughOperator(t)
	sink := NewChannelSink(8)
	task := NewTask(1, LevelAgg, op, sink, nil)

	b1 := &queryop.DataBlock{Payload: []byte("b1")}
	b2 := &queryop.DataBlock{Payload: []byte("b2")}

	task.Input.Push(&QueueItem{Kind: ItemDataBlock, Blocks: []*queryop.DataBlock{b1}})
	task.Input.Push(&QueueItem{Kind: ItemCheckpoint, Block: &queryop.DataBlock{}, CheckpointID: 1})
	task.Input.Push(&QueueItem{Kind: ItemDataBlock, Blocks: []*queryop.DataBlock{b2}})

	task.SetStatus(StatusCheckpointInProgress)
	task.SetSchedStatus(SchedWaiting)

	if err := TryExec(task, nil); err != nil {
		t.Fatalf("TryExec: %v", err)
	}
	if task.Status() != StatusCheckpointReady {
		t.Fatalf("Status = %v, want CheckpointReady", task.Status())
	}

	got, ok := sink.Recv()
	if !ok {
		t.Fatalf("expected b1 to have been dumped to the sink")
	}
	if len(got.Blocks) != 1 || string(got.Blocks[0].Payload) != "b1" {
		t.Fatalf("dumped block = %+v, want b1", got.Blocks)
	}
	if _, ok := sink.Recv(); ok {
		t.Fatalf("b2 must not be dumped before the checkpoint barrier clears")
	}
	if task.Input.Len() != 1 {
		t.Fatalf("queue length = %d, want 1 (b2 still pending)", task.Input.Len())
	}

	// The scheduler hands the task back after the vnode-wide commit.
	task.SetStatus(StatusNormal)
	task.SetSchedStatus(SchedWaiting)
	if err := TryExec(task, nil); err != nil {
		t.Fatalf("TryExec (second): %v", err)
	}
	got2, ok := sink.Recv()
	if !ok {
		t.Fatalf("expected b2 to have been dumped to the sink")
	}
	if len(got2.Blocks) != 1 || string(got2.Blocks[0].Payload) != "b2" {
		t.Fatalf("dumped block = %+v, want b2", got2.Blocks)
	}
}

// TestBackpressureFailsWorkerOnSecondDump is scenario S4: the output
// sink rejects the second dump, which must propagate as a worker error
// with sched_status left in Failed.
func TestBackpressureFailsWorkerOnSecondDump(t *testing.T) {
	op := newPassthroughOperator(t)
	sink := NewChannelSink(1) // room for exactly one dumped batch
	task := NewTask(2, LevelAgg, op, sink, nil)

	b1 := &queryop.DataBlock{Payload: []byte("b1")}
	b2 := &queryop.DataBlock{Payload: []byte("b2")}
	task.Input.Push(&QueueItem{Kind: ItemDataBlock, Blocks: []*queryop.DataBlock{b1}})
	task.Input.Push(&QueueItem{Kind: ItemDataBlock, Blocks: []*queryop.DataBlock{b2}})

	task.SetSchedStatus(SchedWaiting)
	err := TryExec(task, nil)
	if err != ErrQueueOutOfMemory {
		t.Fatalf("TryExec err = %v, want ErrQueueOutOfMemory", err)
	}
	if task.SchedStatus() != SchedFailed {
		t.Fatalf("SchedStatus = %v, want SchedFailed", task.SchedStatus())
	}

	got, ok := sink.Recv()
	if !ok || string(got.Blocks[0].Payload) != "b1" {
		t.Fatalf("expected b1 to have been dumped before the failure")
	}
	if _, ok := sink.Recv(); ok {
		t.Fatalf("no second block should have reached the sink")
	}
}
