package btree

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/tsvnode/vnode-core/metrics"
)

// TDB_DEFAULT_FANOUT is the design fanout target used to derive maxLocal
// from the page size: a page should comfortably hold this many cells
// before it needs to balance.
const TDB_DEFAULT_FANOUT = 4

// Config mirrors the teacher's btree.Config, generalized from a
// fixed-shape KV engine config to the page-size/key-shape knobs the
// paged index needs.
type Config struct {
	// PageSize is the fixed size of every page in the backing file.
	PageSize uint32
	// KeyLen/ValLen are VariantLen, or a fixed byte length when every key
	// (or value) in the tree is known to be the same size.
	KeyLen int
	ValLen int
	// CacheSize bounds the pager's ARC cache, in pages.
	CacheSize int
	// Fanout informs maxLocal/minLocal; 0 uses TDB_DEFAULT_FANOUT.
	Fanout int
	// Log receives Debug-level traversal/balance tracing. Nil uses the
	// standard logger, matching the teacher's DefaultConfig() pattern.
	Log *logrus.Entry
	// Metrics, if set, receives balance/occupancy observations. Nil
	// disables instrumentation entirely.
	Metrics *metrics.Collectors
}

// DefaultConfig returns the teacher's convention of sane defaults for
// ad-hoc trees (tests, demos): 4KiB pages, variable-length keys/values,
// a 256-page cache.
func DefaultConfig() Config {
	return Config{
		PageSize:  4096,
		KeyLen:    VariantLen,
		ValLen:    VariantLen,
		CacheSize: 256,
		Fanout:    TDB_DEFAULT_FANOUT,
	}
}

// Tree is the paged B-tree index core. It holds no keys or cells in
// memory itself; every operation goes through pager to fetch/allocate
// pages, so page layout and durability stay the pager's concern, not
// the tree's.
type Tree struct {
	pager Pager
	cfg   Config

	keyLen, valLen     int
	maxLocal, minLocal int
	maxLeaf, minLeaf   int
	fanout             int

	latchManager *LatchManager
	log          *logrus.Entry
	metrics      *metrics.Collectors

	mu     sync.Mutex
	closed atomic.Bool
}

// Open attaches a Tree to an already-open pager (freshly created or
// loaded from disk), deriving maxLocal/minLocal/maxLeaf/minLeaf from
// cfg and the pager's page size.
func Open(pager Pager, cfg Config) (*Tree, error) {
	if cfg.Fanout <= 0 {
		cfg.Fanout = TDB_DEFAULT_FANOUT
	}
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	t := &Tree{
		pager:        pager,
		cfg:          cfg,
		keyLen:       cfg.KeyLen,
		valLen:       cfg.ValLen,
		fanout:       cfg.Fanout,
		latchManager: NewLatchManager(),
		log:          log,
		metrics:      cfg.Metrics,
	}
	t.computeDerivedConstants()

	log.WithFields(logrus.Fields{
		"page_size": pager.GetPageSize(),
		"max_local": t.maxLocal,
		"root":      pager.RootPageNo(),
	}).Debug("btree: tree opened")
	return t, nil
}

// computeDerivedConstants divides a page's usable area (page size minus
// the fixed header, AM-header and footer overhead) by the fanout target
// to bound how large a single cell's local payload may be before it
// spills to an overflow chain.
func (t *Tree) computeDerivedConstants() {
	pageSize := int(t.pager.GetPageSize())
	usable := pageSize - PageHdrSize - amHdrSize - footerSize
	t.maxLocal = usable / t.fanout
	t.minLocal = t.maxLocal / 2
	t.maxLeaf = pageSize - PageHdrSize
	t.minLeaf = t.minLocal
}

func (t *Tree) checkOpen() error {
	if t.closed.Load() {
		return ErrTreeClosed
	}
	return nil
}

// Insert seeks to the leaf position the key belongs at, rejects on an
// exact match, and otherwise splices a new cell in, balancing the path
// if the leaf overflowed.
func (t *Tree) Insert(key, val []byte) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := newCursor(t)
	cmp, err := cur.seek(key)
	if err != nil {
		return err
	}
	if cmp == 0 {
		return ErrDuplicate
	}

	cellBytes, err := t.encodeCell(cellLeaf, key, val, 0)
	if err != nil {
		return err
	}

	leafFrame := cur.top()
	if err := leafFrame.page.InsertCellAt(leafFrame.idx, cellBytes); err == nil {
		t.pager.MarkDirty(leafFrame.page.PageNo())
		t.log.WithField("key_len", len(key)).Debug("btree: insert local")
		return nil
	} else if err != ErrPageOverflow {
		return err
	}

	t.log.WithField("page", leafFrame.page.PageNo()).Debug("btree: leaf overflow, balancing")
	return t.balance(cur, cellBytes)
}

// Get performs a point lookup built on the cursor's seek.
func (t *Tree) Get(key []byte) ([]byte, error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	cur := newCursor(t)
	cmp, err := cur.seek(key)
	if err != nil {
		return nil, err
	}
	if cmp != 0 {
		return nil, ErrCellNotFound
	}
	frame := cur.top()
	dc, err := t.decodeCell(cellLeaf, frame.page.CellBytes(frame.idx))
	if err != nil {
		return nil, err
	}
	return dc.val, nil
}

// NewCursor returns a cursor positioned nowhere until Seek is called.
func (t *Tree) NewCursor() *Cursor { return newCursor(t) }

// Close flushes and releases the backing pager. Idempotent.
func (t *Tree) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	return t.pager.Close()
}
