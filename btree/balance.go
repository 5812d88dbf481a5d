package btree

import (
	"bytes"

	"github.com/pkg/errors"
)

// balance implements the six-step balance procedure: collect up to
// three sibling pages around the page that just overflowed, harvest
// every cell they hold (plus the one that didn't fit), redistribute
// the result across enough freshly-sized pages to hold it, write those
// pages out, and splice the new page boundaries into the parent as
// divider cells. When the overflowing page is the root, BalanceDeeper
// grows the tree by one level instead.
func (t *Tree) balance(cur *Cursor, overflowCell []byte) error {
	if cur.depth() == 1 {
		if t.metrics != nil {
			t.metrics.BtreeBalanceTotal.WithLabelValues("deeper").Inc()
		}
		return t.balanceDeeperLeaf(cur.top().page, overflowCell)
	}
	if t.metrics != nil {
		t.metrics.BtreeBalanceTotal.WithLabelValues("parent").Inc()
	}
	return t.balanceWithParent(cur, overflowCell)
}

// siblingGroup is the result of "collect siblings": up to three
// same-level pages, contiguous in their parent's child order, that will
// be harvested and redistributed together.
type siblingGroup struct {
	parent         *Page
	startSlot      int // parent child-slot index of pages[0]
	pages          []*Page
	dividerKeys    [][]byte // len(pages)-1, keys separating consecutive pages, owned by parent
}

func (t *Tree) collectSiblings(parent *Page, currentSlot int) (*siblingGroup, error) {
	n := int(parent.NCells())
	lo, hi := currentSlot, currentSlot
	if currentSlot > 0 {
		lo = currentSlot - 1
	}
	if currentSlot < n {
		hi = currentSlot + 1
	}

	g := &siblingGroup{parent: parent, startSlot: lo}
	for slot := lo; slot <= hi; slot++ {
		pgno, err := t.childAtSlot(parent, slot)
		if err != nil {
			return nil, err
		}
		pg, err := t.pager.FetchPage(pgno)
		if err != nil {
			return nil, errors.Wrapf(err, "btree: fetch sibling page %d during balance", pgno)
		}
		g.pages = append(g.pages, pg)
		if slot > lo {
			dc, err := t.decodeCell(cellInterior, parent.CellBytes(uint16(slot-1)))
			if err != nil {
				return nil, err
			}
			g.dividerKeys = append(g.dividerKeys, dc.key)
		}
	}
	return g, nil
}

func (t *Tree) childAtSlot(parent *Page, slot int) (uint32, error) {
	if slot == int(parent.NCells()) {
		return parent.RChild(), nil
	}
	dc, err := t.decodeCell(cellInterior, parent.CellBytes(uint16(slot)))
	if err != nil {
		return 0, err
	}
	return dc.child, nil
}

// balanceWithParent handles the common case: the overflowing page has
// a parent, so siblings exist to redistribute with.
func (t *Tree) balanceWithParent(cur *Cursor, overflowCell []byte) error {
	parentDepth := cur.depth() - 2
	parentFrame := cur.frameAt(parentDepth)
	currentSlot := int(parentFrame.idx)
	leafOrInterior := cur.top().page

	group, err := t.collectSiblings(parentFrame.page, currentSlot)
	if err != nil {
		return err
	}

	if leafOrInterior.IsLeaf() {
		return t.redistributeLeaf(group, overflowCell, parentDepth == 0, cur)
	}
	return t.redistributeInterior(group, overflowCell, parentDepth == 0, cur)
}

// harvestedLeafCell is a leaf cell pulled out of a sibling page during
// harvest, still holding its decoded key for sort placement and its
// ready-to-reinsert raw bytes.
type harvestedLeafCell struct {
	key []byte
	raw []byte
}

func (t *Tree) harvestLeaf(pages []*Page) ([]harvestedLeafCell, error) {
	var out []harvestedLeafCell
	for _, pg := range pages {
		n := pg.NCells()
		for i := uint16(0); i < n; i++ {
			raw := append([]byte(nil), pg.CellBytes(i)...)
			dc, err := t.decodeCell(cellLeaf, pg.CellBytes(i))
			if err != nil {
				return nil, err
			}
			out = append(out, harvestedLeafCell{key: dc.key, raw: raw})
		}
	}
	return out, nil
}

func insertSortedLeaf(cells []harvestedLeafCell, key, raw []byte) []harvestedLeafCell {
	i := 0
	for i < len(cells) && bytes.Compare(cells[i].key, key) < 0 {
		i++
	}
	out := make([]harvestedLeafCell, 0, len(cells)+1)
	out = append(out, cells[:i]...)
	out = append(out, harvestedLeafCell{key: key, raw: raw})
	out = append(out, cells[i:]...)
	return out
}

// redistributeLeaf implements steps 2-6 of balance for a group of leaf
// siblings: harvest their cells plus the overflowing one, pack them
// into enough leaf pages to hold everything, and promote the first key
// of every new page but the first as a divider into the parent.
func (t *Tree) redistributeLeaf(group *siblingGroup, overflowCell []byte, parentIsRoot bool, cur *Cursor) error {
	dc, err := t.decodeCell(cellLeaf, overflowCell)
	if err != nil {
		return err
	}
	cells, err := t.harvestLeaf(group.pages)
	if err != nil {
		return err
	}
	cells = insertSortedLeaf(cells, dc.key, overflowCell)

	numGroups := len(group.pages) + 1
	if numGroups > 5 {
		numGroups = 5
	}
	capacity := t.leafPageCapacity()
	buckets := packCells(cells, numGroups, capacity)
	numGroups = len(buckets)

	newPages, err := t.allocateGroupPages(group.pages, numGroups)
	if err != nil {
		return err
	}
	for i, bucket := range buckets {
		pg := newPages[i]
		pg.Reset(FlagLeaf)
		occupied := 0
		for _, c := range bucket {
			if err := pg.InsertCellAt(pg.NCells(), c.raw); err != nil {
				return err
			}
			occupied += len(c.raw)
		}
		t.pager.MarkDirty(pg.PageNo())
		if t.metrics != nil {
			t.metrics.BtreePageOccupancy.Observe(float64(occupied))
		}
	}

	dividers := make([][]byte, numGroups-1)
	for i := 1; i < numGroups; i++ {
		dividers[i-1] = buckets[i][0].key
	}

	return t.spliceParent(group, newPages, dividers, parentIsRoot, cur)
}

// harvestedEntry is one (child, key) pair pulled out of the interior
// sibling group, used by redistributeInterior; the final entry in a
// flattened group has no trailing key (it's the group's overall
// right-most child).
type harvestedEntry struct {
	child uint32
	key   []byte // nil for the very last entry
}

func (t *Tree) harvestInterior(group *siblingGroup) ([]harvestedEntry, error) {
	var out []harvestedEntry
	for gi, pg := range group.pages {
		n := pg.NCells()
		for i := uint16(0); i < n; i++ {
			dc, err := t.decodeCell(cellInterior, pg.CellBytes(i))
			if err != nil {
				return nil, err
			}
			out = append(out, harvestedEntry{child: dc.child, key: dc.key})
		}
		out = append(out, harvestedEntry{child: pg.RChild()})
		if gi < len(group.pages)-1 {
			out[len(out)-1].key = group.dividerKeys[gi]
		}
	}
	return out, nil
}

// redistributeInterior mirrors redistributeLeaf one level up: the
// harvested (child, key) sequence is split at children boundaries, the
// key straddling each boundary is promoted to the parent, and every
// other key stays local to whichever new page it landed in.
func (t *Tree) redistributeInterior(group *siblingGroup, overflowCell []byte, parentIsRoot bool, cur *Cursor) error {
	dc, err := t.decodeCell(cellInterior, overflowCell)
	if err != nil {
		return err
	}
	entries, err := t.harvestInterior(group)
	if err != nil {
		return err
	}
	entries = insertSortedEntry(entries, dc.key, dc.child)

	numGroups := len(group.pages) + 1
	if numGroups > 5 {
		numGroups = 5
	}
	capacity := t.interiorPageCapacity()
	buckets, promoted := packEntries(entries, numGroups, capacity)
	numGroups = len(buckets)

	newPages, err := t.allocateGroupPages(group.pages, numGroups)
	if err != nil {
		return err
	}
	for i, bucket := range buckets {
		pg := newPages[i]
		pg.Reset(0)
		for j := 0; j < len(bucket)-1; j++ {
			raw, err := t.encodeCell(cellInterior, bucket[j].key, nil, bucket[j].child)
			if err != nil {
				return err
			}
			if err := pg.InsertCellAt(pg.NCells(), raw); err != nil {
				return err
			}
		}
		pg.SetRChild(bucket[len(bucket)-1].child)
		t.pager.MarkDirty(pg.PageNo())
	}

	return t.spliceParent(group, newPages, promoted, parentIsRoot, cur)
}

func insertSortedEntry(entries []harvestedEntry, key []byte, child uint32) []harvestedEntry {
	i := 0
	for i < len(entries) && entries[i].key != nil && bytes.Compare(entries[i].key, key) < 0 {
		i++
	}
	// entries[i] becomes the entry following the inserted divider; the
	// inserted entry takes the child slot that used to route to entries[i]
	// and entries[i] keeps its own key/child but now sits one slot later.
	out := make([]harvestedEntry, 0, len(entries)+1)
	out = append(out, entries[:i]...)
	out = append(out, harvestedEntry{child: child, key: key})
	out = append(out, entries[i:]...)
	return out
}

// leafPageCapacity is the cell-content budget per page, leaving the
// fixed overhead (header, footer, cell-index slot already accounted per
// cell by the caller) out of the count.
func (t *Tree) leafPageCapacity() int {
	return t.maxLeaf - footerSize
}

func (t *Tree) interiorPageCapacity() int {
	return t.maxLeaf - amHdrSize - footerSize
}

// packCells bins harvested leaf cells into at most maxBuckets pages,
// each under capacity bytes, spilling into additional pages beyond
// maxBuckets only if the content truly does not fit (this should not
// happen in practice since maxBuckets already accounts for one extra
// page over the original sibling count).
func packCells(cells []harvestedLeafCell, maxBuckets, capacity int) [][]harvestedLeafCell {
	var buckets [][]harvestedLeafCell
	var cur []harvestedLeafCell
	curSize := 0
	for _, c := range cells {
		need := len(c.raw) + cellIdxEntry
		if curSize+need > capacity && len(cur) > 0 {
			buckets = append(buckets, cur)
			cur = nil
			curSize = 0
		}
		cur = append(cur, c)
		curSize += need
	}
	if len(cur) > 0 {
		buckets = append(buckets, cur)
	}
	return buckets
}

// packEntries bins the harvested (child,key) sequence into at most
// maxBuckets interior pages. Each bucket always ends with a bare child
// (the bucket's RChild); the key right before the start of the next
// bucket is promoted rather than stored locally.
func packEntries(entries []harvestedEntry, maxBuckets, capacity int) ([][]harvestedEntry, [][]byte) {
	var buckets [][]harvestedEntry
	var promoted [][]byte
	var cur []harvestedEntry
	curSize := 0
	for i, e := range entries {
		last := i == len(entries)-1
		cur = append(cur, harvestedEntry{child: e.child})
		if !last {
			need := len(e.key) + 4 + cellIdxEntry
			if curSize+need > capacity && len(cur) > 1 {
				// promote this entry's key as the divider and close the bucket
				// on the child we just appended (it becomes the bucket's RChild).
				promoted = append(promoted, e.key)
				buckets = append(buckets, cur)
				cur = nil
				curSize = 0
				continue
			}
			cur[len(cur)-1].key = e.key
			curSize += need
		}
	}
	if len(cur) > 0 {
		buckets = append(buckets, cur)
	}
	return buckets, promoted
}

// allocateGroupPages reuses the original sibling pages' page numbers
// for the first len(original) buckets and allocates fresh pages beyond
// that, so most of the group's identity (and any external references to
// unaffected siblings) survives a balance.
func (t *Tree) allocateGroupPages(original []*Page, numGroups int) ([]*Page, error) {
	out := make([]*Page, numGroups)
	for i := 0; i < numGroups; i++ {
		if i < len(original) {
			out[i] = original[i]
		} else {
			pg, err := t.pager.NewPage()
			if err != nil {
				return nil, err
			}
			out[i] = pg
		}
	}
	return out, nil
}

// spliceParent rewrites the parent's children in [startSlot,
// startSlot+len(original)-1] to point at the new pages, inserting one
// extra divider cell for every page added by the balance. If that
// insert itself overflows the parent, the overflow is balanced
// recursively one level up; it is not expected to cascade further than
// that in practice, since a single leaf/interior overflow promotes at
// most one extra divider per level.
func (t *Tree) spliceParent(group *siblingGroup, newPages []*Page, dividers [][]byte, parentIsRoot bool, cur *Cursor) error {
	parent := group.parent
	startSlot := group.startSlot
	origCount := len(group.pages)
	rchildCase := startSlot+origCount-1 == int(parent.NCells())

	var boundaryKey []byte
	if !rchildCase {
		dc, err := t.decodeCell(cellInterior, parent.CellBytes(uint16(startSlot+origCount-1)))
		if err != nil {
			return err
		}
		boundaryKey = dc.key
	}

	removeFrom := startSlot
	removeCount := origCount - 1
	if !rchildCase {
		removeCount = origCount
	}
	for i := 0; i < removeCount; i++ {
		parent.RemoveCellAt(uint16(removeFrom))
	}

	var pendingOverflow []byte
	insertCell := func(idx uint16, key []byte, child uint32) error {
		raw, err := t.encodeCell(cellInterior, key, nil, child)
		if err != nil {
			return err
		}
		if err := parent.InsertCellAt(idx, raw); err != nil {
			if err == ErrPageOverflow {
				pendingOverflow = raw
				return nil
			}
			return err
		}
		return nil
	}

	for i := 0; i < len(newPages)-1; i++ {
		if err := insertCell(uint16(removeFrom+i), dividers[i], newPages[i].PageNo()); err != nil {
			return err
		}
		if pendingOverflow != nil {
			break
		}
	}

	if pendingOverflow == nil {
		if rchildCase {
			parent.SetRChild(newPages[len(newPages)-1].PageNo())
		} else {
			if err := insertCell(uint16(removeFrom+len(newPages)-1), boundaryKey, newPages[len(newPages)-1].PageNo()); err != nil {
				return err
			}
		}
	}

	t.pager.MarkDirty(parent.PageNo())

	if pendingOverflow == nil {
		return nil
	}
	if parentIsRoot {
		return t.balanceDeeperInterior(parent, pendingOverflow)
	}
	parentCur := &Cursor{t: t, stack: cur.stack[:cur.depth()-1]}
	return t.balance(parentCur, pendingOverflow)
}

// balanceDeeperLeaf implements BalanceDeeper for a root leaf that just
// overflowed: the root's page number is kept (external callers hold
// onto it), its content moves into two freshly allocated leaf pages,
// and the root is rewritten in place as a one-cell interior page
// pointing at them.
func (t *Tree) balanceDeeperLeaf(root *Page, overflowCell []byte) error {
	if t.metrics != nil {
		t.metrics.BtreeBalanceDeeper.Inc()
	}
	dc, err := t.decodeCell(cellLeaf, overflowCell)
	if err != nil {
		return err
	}
	cells, err := t.harvestLeaf([]*Page{root})
	if err != nil {
		return err
	}
	cells = insertSortedLeaf(cells, dc.key, overflowCell)

	mid := len(cells) / 2
	left, err := t.pager.NewPage()
	if err != nil {
		return err
	}
	right, err := t.pager.NewPage()
	if err != nil {
		return err
	}
	left.Reset(FlagLeaf)
	right.Reset(FlagLeaf)
	for _, c := range cells[:mid] {
		if err := left.InsertCellAt(left.NCells(), c.raw); err != nil {
			return err
		}
	}
	for _, c := range cells[mid:] {
		if err := right.InsertCellAt(right.NCells(), c.raw); err != nil {
			return err
		}
	}
	t.pager.MarkDirty(left.PageNo())
	t.pager.MarkDirty(right.PageNo())

	root.Reset(FlagRoot)
	raw, err := t.encodeCell(cellInterior, cells[mid].key, nil, left.PageNo())
	if err != nil {
		return err
	}
	if err := root.InsertCellAt(0, raw); err != nil {
		return err
	}
	root.SetRChild(right.PageNo())
	t.pager.MarkDirty(root.PageNo())
	t.log.WithField("root", root.PageNo()).Debug("btree: grew tree by one level (leaf root split)")
	return nil
}

// balanceDeeperInterior is BalanceDeeper's counterpart for a root
// interior page that overflowed while absorbing a promoted divider: the
// same split-in-place-keeping-pgno scheme, one level up.
func (t *Tree) balanceDeeperInterior(root *Page, overflowCell []byte) error {
	dc, err := t.decodeCell(cellInterior, overflowCell)
	if err != nil {
		return err
	}
	entries, err := t.harvestInterior(&siblingGroup{pages: []*Page{root}})
	if err != nil {
		return err
	}
	entries = insertSortedEntry(entries, dc.key, dc.child)

	mid := len(entries) / 2
	midKey := entries[mid].key
	left, err := t.pager.NewPage()
	if err != nil {
		return err
	}
	right, err := t.pager.NewPage()
	if err != nil {
		return err
	}
	left.Reset(0)
	right.Reset(0)
	for i := 0; i < mid; i++ {
		raw, err := t.encodeCell(cellInterior, entries[i].key, nil, entries[i].child)
		if err != nil {
			return err
		}
		if err := left.InsertCellAt(left.NCells(), raw); err != nil {
			return err
		}
	}
	left.SetRChild(entries[mid].child)
	for i := mid + 1; i < len(entries); i++ {
		if entries[i].key == nil {
			right.SetRChild(entries[i].child)
			continue
		}
		raw, err := t.encodeCell(cellInterior, entries[i].key, nil, entries[i].child)
		if err != nil {
			return err
		}
		if err := right.InsertCellAt(right.NCells(), raw); err != nil {
			return err
		}
	}
	t.pager.MarkDirty(left.PageNo())
	t.pager.MarkDirty(right.PageNo())

	root.Reset(FlagRoot)
	raw, err := t.encodeCell(cellInterior, midKey, nil, left.PageNo())
	if err != nil {
		return err
	}
	if err := root.InsertCellAt(0, raw); err != nil {
		return err
	}
	root.SetRChild(right.PageNo())
	t.pager.MarkDirty(root.PageNo())
	t.log.WithField("root", root.PageNo()).Debug("btree: grew tree by one level (interior root split)")
	return nil
}
