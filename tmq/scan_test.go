package tmq

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/tsvnode/vnode-core/common/testutil"
	"github.com/tsvnode/vnode-core/lsm"
	"github.com/tsvnode/vnode-core/queryop"
)

func newSnapshotStore(t *testing.T) *lsm.SnapshotStore {
	t.Helper()
	store, err := lsm.NewSnapshotStore(filepath.Join(testutil.TempDir(t), "snap"))
	if err != nil {
		t.Fatalf("NewSnapshotStore: %v", err)
	}
	return store
}

// TestScanDataSnapshotRowCap is scenario S1: preload 10000 rows at a
// single uid, scan from ts=0, expect totalRows in [4096, 4096+1) since
// this operator yields one row per block, and rspOffset still tagged
// SnapshotData.
func TestScanDataSnapshotRowCap(t *testing.T) {
	store := newSnapshotStore(t)
	const uid = int64(7)
	for ts := int64(1); ts <= 10000; ts++ {
		if err := store.PutRow(uint64(uid), ts, []byte("row")); err != nil {
			t.Fatalf("PutRow(%d): %v", ts, err)
		}
	}

	op := queryop.NewFakeOperator(store, []int64{uid}, nil)
	h := NewHandle(1, queryop.SubTable, op, nil, nil)

	resp, err := ScanData(h, SnapshotDataOffset(uid, 0))
	if err != nil {
		t.Fatalf("ScanData: %v", err)
	}
	if resp.TotalRows < 4096 || resp.TotalRows >= 4097 {
		t.Fatalf("TotalRows = %d, want exactly 4096 for a 1-row-per-block operator", resp.TotalRows)
	}
	if resp.RspOffset.Tag != TagSnapshotData {
		t.Fatalf("RspOffset.Tag = %v, want TagSnapshotData", resp.RspOffset.Tag)
	}
}

// fakePrepareFailOperator wraps FakeOperator so the first N PrepareScan
// calls fail, used to exercise ScanData's prepare/reset fallback.
type fakePrepareFailOperator struct {
	*queryop.FakeOperator
	failsLeft int
}

func (f *fakePrepareFailOperator) PrepareScan(offset queryop.Offset, subType queryop.SubType) error {
	if f.failsLeft > 0 {
		f.failsLeft--
		return errors.New("prepare failed")
	}
	return f.FakeOperator.PrepareScan(offset, subType)
}

// TestScanDataPrepareFallback is scenario S2: PrepareScan fails on the
// first call with a SnapshotData offset; ScanData must retry once with
// Log{ver=snapshot_version}, and since the wrapper fails the retry too
// (failsLeft: 2), return an empty response offset at Log{42}.
func TestScanDataPrepareFallback(t *testing.T) {
	store := newSnapshotStore(t)
	base := queryop.NewFakeOperator(store, nil, nil)
	op := &fakePrepareFailOperator{FakeOperator: base, failsLeft: 2}
	h := NewHandle(42, queryop.SubTable, op, nil, nil)

	resp, err := ScanData(h, SnapshotDataOffset(99, 0))
	if err != nil {
		t.Fatalf("ScanData: %v", err)
	}
	if resp.RspOffset.Tag != TagLog || resp.RspOffset.Ver != 42 {
		t.Fatalf("RspOffset = %+v, want Log{ver=42}", resp.RspOffset)
	}
	if resp.BlockNum != 0 {
		t.Fatalf("BlockNum = %d, want 0 on double prepare failure", resp.BlockNum)
	}
}

// TestScanTaosxSnapshotToLogSwitch is scenario S6: once the snapshot is
// fully drained (ExtractPrepareUid hits 0 and ExecTask returns no more
// blocks), ScanTaosx must switch the response offset explicitly to
// Log{ver = snapshot_version + 1}.
func TestScanTaosxSnapshotToLogSwitch(t *testing.T) {
	store := newSnapshotStore(t)
	const uid = int64(3)
	if err := store.PutRow(uint64(uid), 1, []byte("only-row")); err != nil {
		t.Fatalf("PutRow: %v", err)
	}

	op := queryop.NewFakeOperator(store, []int64{uid}, nil)
	h := NewHandle(42, queryop.SubTable, op, nil, nil)

	// Since this uid carries exactly one row, the same call that drains
	// it also discovers the snapshot is now fully exhausted and switches
	// the offset to the WAL.
	resp, err := ScanTaosx(h, SnapshotDataOffset(uid, 0), nil)
	if err != nil {
		t.Fatalf("ScanTaosx: %v", err)
	}
	if resp.BlockNum != 1 {
		t.Fatalf("BlockNum = %d, want 1", resp.BlockNum)
	}
	if resp.RspOffset.Tag != TagLog {
		t.Fatalf("RspOffset.Tag = %v, want TagLog", resp.RspOffset.Tag)
	}
	if resp.RspOffset.Ver != 43 {
		t.Fatalf("RspOffset.Ver = %d, want 43 (snapshot_version+1)", resp.RspOffset.Ver)
	}
}
