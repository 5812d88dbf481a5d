// Package stream implements the per-task runtime that pulls queue
// items, drives an embedded query operator, batches result blocks
// downstream, and coordinates checkpoint/pause/stop lifecycle with
// sibling tasks in the same vnode.
package stream

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/tsvnode/vnode-core/queryop"
)

// Level is a task's position in the stream compute DAG.
type Level int

const (
	LevelSource Level = iota
	LevelAgg
	LevelSink
)

// Status is the task status state variable, held in an atomic int32,
// per spec section 3.2.
type Status int32

const (
	StatusNormal Status = iota
	StatusHalt
	StatusPause
	StatusStop
	StatusDropping
	StatusCheckpointInProgress // CK
	StatusCheckpointReady      // CK_READY
)

func (s Status) String() string {
	switch s {
	case StatusNormal:
		return "normal"
	case StatusHalt:
		return "halt"
	case StatusPause:
		return "pause"
	case StatusStop:
		return "stop"
	case StatusDropping:
		return "dropping"
	case StatusCheckpointInProgress:
		return "ck"
	case StatusCheckpointReady:
		return "ck_ready"
	default:
		return "unknown"
	}
}

// SchedStatus is the scheduler-ownership state machine (spec section
// 5): CAS Waiting->Active grants a worker exclusive execution rights.
type SchedStatus int32

const (
	SchedInactive SchedStatus = iota
	SchedWaiting
	SchedActive
	SchedFailed
)

// OutputStatus reflects backpressure from the task's output sink.
type OutputStatus int32

const (
	OutputNormal OutputStatus = iota
	OutputBlocked
)

// CheckpointInfo tracks a task's progress against checkpoint versions.
type CheckpointInfo struct {
	Version        int64
	CurrentVersion int64
	CheckpointingID int64
}

// Task is the spec section 3.2 Task: runtime state plus its owned
// collaborators (input queue, output sink, query operator).
type Task struct {
	ID    int64
	Level Level

	status       atomic.Int32
	schedStatus  atomic.Int32
	outputStatus atomic.Int32

	ChkInfo CheckpointInfo
	chkMu   sync.Mutex

	DataRangeStart int64
	DataRangeEnd   int64
	ChildID        int64
	IsFillHistory  bool
	TransferState  bool

	// HistoryTaskID links a fill-history Source task to the live
	// sibling it eventually hands control to (spec section 4.3.7).
	HistoryTaskID int64

	Input  *Queue
	Output OutputSink
	Op     queryop.Operator

	// Sibling is the live task a fill-history Source task transfers
	// control to (spec section 4.3.7). Children receive broadcast
	// STREAM_RETRIEVE blocks during ExecImpl (spec section 4.3.5 step 4).
	Sibling  *Task
	Children []*Task

	// Reschedule re-enqueues this task with the scheduler; set by
	// whoever owns the scheduler queue (out of scope per spec section 6).
	Reschedule func(*Task)

	Log *logrus.Entry

	mu sync.Mutex
}

// NewTask constructs a task in its initial Normal/Inactive/Normal
// state.
func NewTask(id int64, level Level, op queryop.Operator, output OutputSink, log *logrus.Entry) *Task {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	t := &Task{
		ID:     id,
		Level:  level,
		Input:  NewQueue(),
		Output: output,
		Op:     op,
		Log:    log.WithField("task_id", id),
	}
	t.status.Store(int32(StatusNormal))
	t.schedStatus.Store(int32(SchedInactive))
	t.outputStatus.Store(int32(OutputNormal))
	return t
}

func (t *Task) Status() Status { return Status(t.status.Load()) }
func (t *Task) SetStatus(s Status) { t.status.Store(int32(s)) }

// CASStatus attempts a compare-and-swap on task status.
func (t *Task) CASStatus(old, new Status) bool {
	return t.status.CompareAndSwap(int32(old), int32(new))
}

func (t *Task) SchedStatus() SchedStatus { return SchedStatus(t.schedStatus.Load()) }
func (t *Task) SetSchedStatus(s SchedStatus) { t.schedStatus.Store(int32(s)) }

// CASSchedStatus is the scheduler-ownership gate TryExec uses: only one
// worker observes a successful Waiting->Active swap.
func (t *Task) CASSchedStatus(old, new SchedStatus) bool {
	return t.schedStatus.CompareAndSwap(int32(old), int32(new))
}

func (t *Task) OutputStatus() OutputStatus { return OutputStatus(t.outputStatus.Load()) }
func (t *Task) SetOutputStatus(s OutputStatus) { t.outputStatus.Store(int32(s)) }

// ShouldStop reports whether the current status demands loops abort at
// their next check (spec section 5, cancellation).
func (t *Task) ShouldStop() bool {
	switch t.Status() {
	case StatusStop, StatusDropping:
		return true
	default:
		return false
	}
}

// isIdle is the spec section 4.3.7 idleness predicate used by
// TransferStateToStreamTask: input drained, not backpressured, and not
// currently scheduled.
func (t *Task) isIdle() bool {
	return t.Input.Empty() && t.OutputStatus() != OutputBlocked && t.SchedStatus() == SchedInactive
}

// chkVersion/setChkVersion read and record the submit version that the
// monotonic version invariant is checked against (spec section 8,
// property 3).
func (t *Task) chkVersion() int64 {
	t.chkMu.Lock()
	defer t.chkMu.Unlock()
	return t.ChkInfo.CurrentVersion
}

func (t *Task) setChkVersion(v int64) {
	t.chkMu.Lock()
	defer t.chkMu.Unlock()
	t.ChkInfo.CurrentVersion = v
}
