package tmq

import "github.com/tsvnode/vnode-core/queryop"

// Offset is re-exported from queryop so tmq callers never need to
// import that package directly just to build or inspect a resumable
// scan position.
type Offset = queryop.Offset

const (
	TagNone         = queryop.TagNone
	TagLog          = queryop.TagLog
	TagSnapshotData = queryop.TagSnapshotData
	TagSnapshotMeta = queryop.TagSnapshotMeta
)

// NoneOffset is the invalid sentinel; must never appear in a response.
var NoneOffset = queryop.None

// LogOffset builds a Log{ver} offset.
func LogOffset(ver int64) Offset {
	return Offset{Tag: TagLog, Ver: ver}
}

// SnapshotDataOffset builds a SnapshotData{uid, ts} offset.
func SnapshotDataOffset(uid, ts int64) Offset {
	return Offset{Tag: TagSnapshotData, UID: uid, TS: ts}
}

// SnapshotMetaOffset builds a SnapshotMeta{uid} offset.
func SnapshotMetaOffset(uid int64) Offset {
	return Offset{Tag: TagSnapshotMeta, UID: uid}
}
