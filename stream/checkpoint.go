package stream

import (
	"encoding/binary"

	"github.com/tsvnode/vnode-core/hashindex"
	"github.com/tsvnode/vnode-core/queryop"
)

// CheckpointBackend persists per-task operator state snapshots into the
// hash-index-backed checkpoint store, and is what StreamMeta.Commit is
// wired to for the single vnode-wide checkpoint commit (spec section
// 4.3.2: "BackendDoCheckpoint(meta, checkpointingId) then SaveTasks").
type CheckpointBackend struct {
	store *hashindex.HashIndex
}

func NewCheckpointBackend(dataDir string) (*CheckpointBackend, error) {
	store, err := hashindex.New(hashindex.DefaultConfig(dataDir))
	if err != nil {
		return nil, err
	}
	return &CheckpointBackend{store: store}, nil
}

// encodeOffsetForCheckpoint serializes a resumable scan position into
// the fixed layout SaveTaskCheckpoint/LoadTaskCheckpoint round-trip.
func encodeOffsetForCheckpoint(o queryop.Offset) []byte {
	buf := make([]byte, 1+8+8+8)
	buf[0] = byte(o.Tag)
	binary.LittleEndian.PutUint64(buf[1:9], uint64(o.Ver))
	binary.LittleEndian.PutUint64(buf[9:17], uint64(o.UID))
	binary.LittleEndian.PutUint64(buf[17:25], uint64(o.TS))
	return buf
}

func decodeOffsetFromCheckpoint(buf []byte) queryop.Offset {
	if len(buf) < 25 {
		return queryop.None
	}
	return queryop.Offset{
		Tag: queryop.Tag(buf[0]),
		Ver: int64(binary.LittleEndian.Uint64(buf[1:9])),
		UID: int64(binary.LittleEndian.Uint64(buf[9:17])),
		TS:  int64(binary.LittleEndian.Uint64(buf[17:25])),
	}
}

// SaveTaskCheckpoint persists one task's resumable position for a given
// checkpoint generation.
func (b *CheckpointBackend) SaveTaskCheckpoint(taskID uint64, checkpointID int64, offset queryop.Offset) error {
	return b.store.PutCheckpoint(taskID, checkpointID, encodeOffsetForCheckpoint(offset))
}

// LoadTaskCheckpoint retrieves a previously saved resumable position.
func (b *CheckpointBackend) LoadTaskCheckpoint(taskID uint64, checkpointID int64) (queryop.Offset, error) {
	buf, err := b.store.GetCheckpoint(taskID, checkpointID)
	if err != nil {
		return queryop.None, err
	}
	return decodeOffsetFromCheckpoint(buf), nil
}

// CommitVnodeCheckpoint persists every task's current offset for
// checkpointingID, then requests a background compaction of the hash
// index; earlier generations are separate keys and stay stored. It is the
// function StreamMeta.Commit invokes exactly once per checkpoint.
func (b *CheckpointBackend) CommitVnodeCheckpoint(checkpointingID int64, tasks []*Task) error {
	for _, t := range tasks {
		offset, err := t.Op.ExtractOffset()
		if err != nil {
			return err
		}
		if err := b.SaveTaskCheckpoint(uint64(t.ID), checkpointingID, offset); err != nil {
			return err
		}
	}
	return b.store.Compact()
}

func (b *CheckpointBackend) Close() error { return b.store.Close() }
