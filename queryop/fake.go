package queryop

import (
	"io"
	"sort"
	"sync"

	"github.com/tsvnode/vnode-core/lsm"
	"github.com/tsvnode/vnode-core/submitlog"
)

// FakeOperator is a test-double Query Operator: spec section 6 treats
// the real operator as an external collaborator out of scope, so this
// stands in for it in tmq/stream tests and the demo command, serving
// SnapshotData rows out of an lsm.SnapshotStore and Log rows out of a
// submitlog.Reader.
type FakeOperator struct {
	mu sync.Mutex

	snapshots *lsm.SnapshotStore
	uids      []int64 // deterministic iteration order over subscribed uids

	logReader *submitlog.Reader

	// scan state, reset by PrepareScan
	offset  Offset
	subType SubType

	snapCursor   int // index into uids
	rowCursor    int // index into the current uid's rows
	currentRows  []lsm.SnapshotRow
	snapExhaust  bool
	pendingMeta  *MetaResponse
	lastTbname   string
	lastSchema   *SchemaWrapper
	inExecErrors int // ExecTask calls remaining to fail with ErrInExec, for test injection

	pendingInput     []*DataBlock
	pendingInputKind InputKind

	state map[string][]byte // ReleaseState/ReloadState payload, keyed by an external handle id
}

// NewFakeOperator builds an operator over the given snapshot rows
// (already written into store) and an optional WAL reader for Log-mode
// scans. uids fixes iteration order across PrepareUid checks.
func NewFakeOperator(store *lsm.SnapshotStore, uids []int64, logReader *submitlog.Reader) *FakeOperator {
	sorted := append([]int64(nil), uids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return &FakeOperator{
		snapshots: store,
		uids:      sorted,
		logReader: logReader,
		state:     make(map[string][]byte),
	}
}

// FailNextExecWith arranges for the next n ExecTask calls to return
// ErrInExec, exercising the self-healing retry path in stream.ExecImpl.
func (f *FakeOperator) FailNextExecWith(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inExecErrors = n
}

func (f *FakeOperator) PrepareScan(offset Offset, subType SubType) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.offset = offset
	f.subType = subType
	f.pendingMeta = nil

	switch offset.Tag {
	case TagSnapshotData:
		f.snapExhaust = false
		f.snapCursor = 0
		for i, uid := range f.uids {
			if uid == offset.UID {
				f.snapCursor = i
				break
			}
		}
		return f.loadRowsLocked(offset.UID, offset.TS)
	case TagLog:
		if f.logReader == nil {
			return io.EOF
		}
		return nil
	case TagSnapshotMeta:
		return nil
	default:
		return ErrInExec
	}
}

func (f *FakeOperator) loadRowsLocked(uid int64, afterTS int64) error {
	if f.snapshots == nil {
		return io.EOF
	}
	rows, err := f.snapshots.ScanUID(uint64(uid))
	if err != nil {
		return err
	}
	f.rowCursor = 0
	for i, r := range rows {
		if r.TS > afterTS {
			f.rowCursor = i
			break
		}
		f.rowCursor = i + 1
	}
	f.currentRows = rows
	return nil
}

func (f *FakeOperator) ExecTask() (*DataBlock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.inExecErrors > 0 {
		f.inExecErrors--
		return nil, ErrInExec
	}

	switch f.offset.Tag {
	case TagSnapshotData:
		return f.execSnapshotLocked()
	case TagLog:
		return f.execLogLocked()
	default:
		// No TMQ offset is in play (a stream task drives this operator
		// purely through SetMultiStreamInput): echo back queued input
		// blocks one at a time, then None.
		return f.execPassthroughLocked()
	}
}

func (f *FakeOperator) execPassthroughLocked() (*DataBlock, error) {
	if len(f.pendingInput) == 0 {
		return nil, nil
	}
	block := f.pendingInput[0]
	f.pendingInput = f.pendingInput[1:]
	return block, nil
}

func (f *FakeOperator) execSnapshotLocked() (*DataBlock, error) {
	for {
		if f.rowCursor >= len(f.currentRows) {
			f.snapCursor++
			if f.snapCursor >= len(f.uids) {
				f.snapExhaust = true
				return nil, nil
			}
			uid := f.uids[f.snapCursor]
			if err := f.loadRowsLocked(uid, -1); err != nil {
				return nil, err
			}
			f.offset.UID = uid
			f.offset.TS = -1
			continue
		}
		row := f.currentRows[f.rowCursor]
		f.rowCursor++
		f.offset.UID = row.UID
		f.offset.TS = row.TS
		f.lastTbname = tbnameFor(row.UID)
		return &DataBlock{Type: BlockNormal, NumRows: 1, Payload: row.Row}, nil
	}
}

func (f *FakeOperator) execLogLocked() (*DataBlock, error) {
	if f.logReader == nil {
		return nil, nil
	}
	entry, err := f.logReader.Next()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	f.offset.Ver = entry.Ver
	return &DataBlock{Type: BlockNormal, SourceVer: entry.Ver, NumRows: 1, Payload: entry.Msg}, nil
}

func tbnameFor(uid int64) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz"
	if uid < 0 {
		uid = -uid
	}
	return "tbl_" + string(alphabet[uid%int64(len(alphabet))])
}

func (f *FakeOperator) ExtractOffset() (Offset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offset.Tag == TagNone {
		return None, nil
	}
	return f.offset, nil
}

func (f *FakeOperator) ExtractMetaMsg() (*MetaResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pendingMeta, nil
}

// ExtractPrepareUid returns 0 once the snapshot scan has walked every
// subscribed uid, signalling ScanTaosx to switch to Log mode.
func (f *FakeOperator) ExtractPrepareUid() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snapExhaust || f.snapCursor >= len(f.uids) {
		return 0
	}
	return f.uids[f.snapCursor]
}

func (f *FakeOperator) ExtractTbnameFromTask() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastTbname
}

func (f *FakeOperator) ExtractSchemaFromTask() *SchemaWrapper {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastSchema
}

func (f *FakeOperator) SetMultiStreamInput(blocks []*DataBlock, kind InputKind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pendingInputKind = kind
	if kind == InputCheckpoint {
		// A checkpoint is a control signal, not data to echo back through
		// ExecTask — the real operator would flush/seal state here.
		return nil
	}
	if len(blocks) == 0 {
		return nil
	}
	f.pendingInput = append(f.pendingInput, blocks...)
	return nil
}

func (f *FakeOperator) SetOpOpen() error { return nil }

func (f *FakeOperator) RecoverScanFinished() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapExhaust
}

func (f *FakeOperator) ResetTaskInfo() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pendingInput = nil
	return nil
}

func (f *FakeOperator) ReleaseState() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf := make([]byte, 0, 8)
	buf = appendInt64(buf, int64(f.rowCursor))
	buf = appendInt64(buf, int64(f.snapCursor))
	f.state["default"] = buf
	return nil
}

func (f *FakeOperator) ReloadState() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf, ok := f.state["default"]
	if !ok || len(buf) < 16 {
		return nil
	}
	f.rowCursor = int(readInt64(buf[0:8]))
	f.snapCursor = int(readInt64(buf[8:16]))
	return nil
}

func (f *FakeOperator) ResetStreamInfoTimeWindow() error { return nil }

func appendInt64(buf []byte, v int64) []byte {
	var tmp [8]byte
	u := uint64(v)
	for i := 0; i < 8; i++ {
		tmp[i] = byte(u >> (8 * i))
	}
	return append(buf, tmp[:]...)
}

func readInt64(b []byte) int64 {
	var u uint64
	for i := 0; i < 8; i++ {
		u |= uint64(b[i]) << (8 * i)
	}
	return int64(u)
}
