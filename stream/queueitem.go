package stream

import (
	"sync"

	"github.com/tsvnode/vnode-core/queryop"
)

// ItemKind discriminates QueueItem's variants, spec section 3.2.
type ItemKind int

const (
	ItemSubmit ItemKind = iota
	ItemMergedSubmit
	ItemDataBlock
	ItemRefDataBlock
	ItemRetrieve
	ItemGetResult
	ItemCheckpoint
	ItemDestroy
)

// QueueItem is the tagged union a task's input queue carries.
type QueueItem struct {
	Kind ItemKind

	// Submit
	Msg []byte
	Ver int64

	// MergedSubmit
	SubmitList [][]byte

	// DataBlock / RefDataBlock / Retrieve / GetResult
	Blocks []*queryop.DataBlock
	Block  *queryop.DataBlock

	// Retrieve
	ReqID int64

	// Checkpoint
	CheckpointID int64
}

const maxMergeBatch = 32

// Queue is a task's mutex-protected FIFO input queue.
type Queue struct {
	mu    sync.Mutex
	items []*QueueItem
}

func NewQueue() *Queue { return &Queue{} }

func (q *Queue) Push(item *QueueItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
}

func (q *Queue) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) == 0
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// ExtractBlocks implements spec section 4.3.3 step 1: merge consecutive
// Submit items (up to maxMergeBatch) into a single MergedSubmit, or
// return the next non-Submit item unchanged. Returns nil when empty.
func (q *Queue) ExtractBlocks() *QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	first := q.items[0]
	if first.Kind != ItemSubmit {
		q.items = q.items[1:]
		return first
	}

	merged := [][]byte{first.Msg}
	ver := first.Ver
	n := 1
	for n < len(q.items) && n < maxMergeBatch {
		next := q.items[n]
		if next.Kind != ItemSubmit {
			break
		}
		merged = append(merged, next.Msg)
		ver = next.Ver
		n++
	}
	q.items = q.items[n:]
	if n == 1 {
		return first
	}
	return &QueueItem{Kind: ItemMergedSubmit, SubmitList: merged, Ver: ver}
}
