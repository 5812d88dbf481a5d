package stream

import (
	"github.com/pkg/errors"

	"github.com/tsvnode/vnode-core/queryop"
)

// maxStreamResultDumpThreshold bounds how many result blocks accumulate
// before ExecImpl flushes them downstream (spec section 4.3.1).
const maxStreamResultDumpThreshold = 100

// maxExecRetries bounds how many ExecTask errors other than QRY_IN_EXEC
// one ExecImpl call retries; QRY_IN_EXEC resets are not counted.
// REDESIGN R1: the source left this retry unbounded; this is the fresh
// implementation's bounded version.
const maxExecRetries = 8

// TryExec is the scheduler entry point (spec section 4.3.2). It CASes
// sched_status Waiting->Active so at most one worker executes a task at
// a time, runs ExecForAll, and on CK_READY performs (at most once,
// vnode-wide) the checkpoint commit via meta.
func TryExec(t *Task, meta *StreamMeta) error {
	if !t.CASSchedStatus(SchedWaiting, SchedActive) {
		return nil
	}

	if err := ExecForAll(t); err != nil {
		t.SetSchedStatus(SchedFailed)
		return err
	}
	t.SetSchedStatus(SchedInactive)

	if t.Status() == StatusCheckpointReady {
		if meta != nil {
			if err := meta.DecrementAndMaybeCommit(); err != nil {
				return err
			}
		}
		sendCheckpointRsp(t)
		return nil
	}

	if !t.Input.Empty() && t.Status() != StatusStop && t.Status() != StatusPause {
		if t.Reschedule != nil {
			t.Reschedule(t)
		}
	}
	return nil
}

func sendCheckpointRsp(t *Task) {
	if t.Level == LevelSource {
		t.Log.Info("sending checkpoint source response upstream")
	} else {
		t.Log.Info("sending checkpoint response upstream")
	}
}

// ExecForAll is the main per-task loop (spec section 4.3.3).
func ExecForAll(t *Task) error {
	for {
		item := t.Input.ExtractBlocks()
		if item == nil {
			if t.IsFillHistory && t.TransferState {
				return TransferStateToStreamTask(t)
			}
			return nil
		}

		if t.Level == LevelSink {
			switch item.Kind {
			case ItemDataBlock:
				if err := t.Output.Send(&StreamDataBlock{Blocks: item.Blocks}); err != nil {
					return errors.Wrapf(err, "stream: task %d dump to output sink", t.ID)
				}
				continue
			case ItemCheckpoint:
				if t.Status() != StatusCheckpointInProgress {
					return ErrUnexpectedCheckpoint
				}
				t.SetStatus(StatusCheckpointReady)
				return nil
			default:
				continue
			}
		}

		if err := SetStreamInputBlock(t, item); err != nil {
			return err
		}

		startVer := t.chkVersion()
		if err := ExecImpl(t, item); err != nil {
			return err
		}
		if t.chkVersion() < startVer {
			return ErrVersionRegressed
		}

		if item.Kind == ItemCheckpoint {
			if !t.CASStatus(StatusCheckpointInProgress, StatusCheckpointReady) {
				return ErrUnexpectedCheckpoint
			}
			return nil
		}
	}
}

// SetStreamInputBlock dispatches one queue item into the operator's
// input (spec section 4.3.4), enforcing the strictly monotone version
// invariant for Submit/MergedSubmit items.
func SetStreamInputBlock(t *Task, item *QueueItem) error {
	switch item.Kind {
	case ItemGetResult:
		return t.Op.SetMultiStreamInput([]*queryop.DataBlock{item.Block}, queryop.InputDataBlock)

	case ItemSubmit:
		if t.Level != LevelSource {
			return ErrNotSourceTask
		}
		if item.Ver <= t.chkVersion() {
			return ErrVersionNotMonotonic
		}
		t.setChkVersion(item.Ver)
		block := &queryop.DataBlock{Payload: item.Msg, SourceVer: item.Ver}
		return t.Op.SetMultiStreamInput([]*queryop.DataBlock{block}, queryop.InputDataSubmit)

	case ItemDataBlock, ItemRetrieve:
		return t.Op.SetMultiStreamInput(item.Blocks, queryop.InputDataBlock)

	case ItemMergedSubmit:
		if item.Ver <= t.chkVersion() {
			return ErrVersionNotMonotonic
		}
		t.setChkVersion(item.Ver)
		blocks := make([]*queryop.DataBlock, len(item.SubmitList))
		for i, msg := range item.SubmitList {
			blocks[i] = &queryop.DataBlock{Payload: msg, SourceVer: item.Ver}
		}
		return t.Op.SetMultiStreamInput(blocks, queryop.InputMergedSubmit)

	case ItemRefDataBlock:
		return t.Op.SetMultiStreamInput([]*queryop.DataBlock{item.Block}, queryop.InputDataBlock)

	case ItemCheckpoint:
		return t.Op.SetMultiStreamInput([]*queryop.DataBlock{item.Block}, queryop.InputCheckpoint)

	default:
		return ErrUnknownQueueItem
	}
}

// ExecImpl is the inner execution loop (spec section 4.3.5): drive the
// operator until it produces None, accumulating result blocks and
// dumping them in bounded batches.
func ExecImpl(t *Task, item *QueueItem) error {
	var acc []*queryop.DataBlock
	retries := 0

	for {
		if t.ShouldStop() {
			return nil
		}

		block, err := t.Op.ExecTask()
		if err == queryop.ErrInExec {
			// QRY_IN_EXEC just means the operator wants another pass after a
			// reset; it is not a failure and must not count against the bound.
			if rerr := t.Op.ResetTaskInfo(); rerr != nil {
				return rerr
			}
			continue
		}
		if err != nil {
			retries++
			if retries > maxExecRetries {
				t.Log.WithError(err).Warn("giving up after exceeding bounded exec retry count")
				t.SetStatus(StatusStop)
				return err
			}
			t.Log.WithError(err).Warn("operator exec error, retrying")
			continue
		}

		if block == nil {
			if item.Kind == ItemRetrieve && len(item.Blocks) > 0 {
				final := *item.Blocks[0]
				final.Type = queryop.BlockStreamPullOver
				acc = append(acc, &final)
			}
			break
		}

		if block.Type == queryop.BlockStreamRetrieve {
			broadcastToChildren(t, block)
			continue
		}

		stamped := *block
		stamped.ChildID = t.ChildID
		acc = append(acc, &stamped)

		if len(acc) >= maxStreamResultDumpThreshold {
			if err := DumpResult(t, acc); err != nil {
				return err
			}
			acc = nil
		}
	}

	if len(acc) > 0 {
		return DumpResult(t, acc)
	}
	return nil
}

func broadcastToChildren(t *Task, block *queryop.DataBlock) {
	for _, child := range t.Children {
		child.Input.Push(&QueueItem{Kind: ItemRefDataBlock, Block: block})
	}
}

// DumpResult wraps accumulated blocks as a StreamDataBlock and sends
// them to the output sink. On ErrQueueOutOfMemory the caller is
// expected to apply backpressure; the accumulated slice is simply
// dropped here rather than retried, matching the spec's "block must be
// destroyed to avoid leaks" on this path.
func DumpResult(t *Task, blocks []*queryop.DataBlock) error {
	return t.Output.Send(&StreamDataBlock{Blocks: blocks})
}
