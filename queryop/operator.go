// Package queryop defines the Query Operator capability both the TMQ
// scan engine and the stream task executor drive: plan execution,
// offset bookkeeping, and scan/stream lifecycle are all polymorphic
// over this one interface, never exposed concretely outside it.
package queryop

import "errors"

// ErrInExec is the operator's self-healing "still executing, call me
// again" signal: callers reset the operator and retry rather than
// treating it as a failure.
var ErrInExec = errors.New("queryop: query in exec")

// Tag discriminates an Offset's active variant. Tag 0 (TagNone) is the
// invalid sentinel and must never be returned from a scan response.
type Tag uint8

const (
	TagNone Tag = iota
	TagLog
	TagSnapshotData
	TagSnapshotMeta
)

func (t Tag) String() string {
	switch t {
	case TagLog:
		return "log"
	case TagSnapshotData:
		return "snapshot-data"
	case TagSnapshotMeta:
		return "snapshot-meta"
	default:
		return "none"
	}
}

// Offset is the tagged union of resumable scan positions. Exactly one
// field group is meaningful at a time, selected by Tag.
type Offset struct {
	Tag Tag

	// Ver is meaningful when Tag == TagLog: the WAL version to resume from.
	Ver int64

	// UID/TS are meaningful when Tag == TagSnapshotData (table uid, last
	// timestamp seen) or TagSnapshotMeta (uid of the pending meta event;
	// TS unused there).
	UID int64
	TS  int64
}

// None is the invalid sentinel offset.
var None = Offset{Tag: TagNone}

// SubType is the subscription's granularity.
type SubType int

const (
	SubColumn SubType = iota
	SubTable
	SubDatabase
)

// BlockType distinguishes ordinary result blocks from the two special
// markers ExecImpl and ScanExec look for.
type BlockType int

const (
	BlockNormal BlockType = iota
	BlockStreamRetrieve
	BlockStreamPullOver
)

// DataBlock is the unit an operator produces and a stream task
// forwards: an encoded column block plus the bookkeeping ExecImpl and
// the TMQ response builder need.
type DataBlock struct {
	Type      BlockType
	SourceVer int64
	ChildID   int64
	NumRows   int64
	Payload   []byte
}

// InputKind selects how SetMultiStreamInput interprets the blocks it is
// handed, mirroring stream.QueueItem's variants.
type InputKind int

const (
	InputDataBlock InputKind = iota
	InputDataSubmit
	InputMergedSubmit
	InputCheckpoint
)

// SchemaWrapper stands in for the wire schema description a block
// carries; opaque beyond identity for this module's purposes.
type SchemaWrapper struct {
	Version int32
	Columns []string
}

// MetaResponse is populated only when a scan boundary crosses a
// schema/meta event.
type MetaResponse struct {
	Offset   Offset
	TableUID int64
	Payload  []byte
}

// Operator is the spec section 6 "Query Operator" consumed interface,
// shared verbatim by the TMQ scan engine and the stream task executor.
type Operator interface {
	PrepareScan(offset Offset, subType SubType) error
	ExecTask() (*DataBlock, error)
	ExtractOffset() (Offset, error)
	ExtractMetaMsg() (*MetaResponse, error)
	ExtractPrepareUid() int64
	ExtractTbnameFromTask() string
	ExtractSchemaFromTask() *SchemaWrapper

	SetMultiStreamInput(blocks []*DataBlock, kind InputKind) error
	SetOpOpen() error
	RecoverScanFinished() bool
	ResetTaskInfo() error
	ReleaseState() error
	ReloadState() error
	ResetStreamInfoTimeWindow() error
}
