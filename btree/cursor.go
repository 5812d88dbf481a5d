package btree

import "bytes"

// frame is one level of a cursor's descent: the page visited and the
// cell-index position the key search landed on within it.
type frame struct {
	page *Page
	idx  uint16
}

// Cursor is the spec 4.1 "Seek" cursor: an explicit stack of (page, idx)
// frames from root to leaf, built fresh on every Seek rather than kept
// live across tree mutations.
type Cursor struct {
	t      *Tree
	stack  []frame
	valid  bool
}

func newCursor(t *Tree) *Cursor {
	return &Cursor{t: t, stack: make([]frame, 0, 8)}
}

func (c *Cursor) top() frame {
	return c.stack[len(c.stack)-1]
}

func (c *Cursor) push(f frame) { c.stack = append(c.stack, f) }

// depth is how many levels (root through current) the cursor has
// descended; balance() uses this to find a frame's parent.
func (c *Cursor) depth() int { return len(c.stack) }

// frameAt returns the frame at the given depth (0 = root).
func (c *Cursor) frameAt(i int) frame { return c.stack[i] }

// Seek descends from the root to the leaf that would hold key,
// returning the same three-way result as bytes.Compare(key, foundKey):
// 0 means an exact match was found at the cursor's final position; any
// other value means the final position is where key would be inserted
// to keep the leaf's cell-index sorted.
func (c *Cursor) Seek(key []byte) (int, error) {
	return c.seek(key)
}

func (c *Cursor) seek(key []byte) (int, error) {
	c.stack = c.stack[:0]
	c.valid = false

	pgno := c.t.pager.RootPageNo()
	for {
		page, err := c.t.pager.FetchPage(pgno)
		if err != nil {
			return 0, err
		}

		if page.IsLeaf() {
			idx, cmp, err := c.t.searchLeafPage(page, key)
			if err != nil {
				return 0, err
			}
			c.push(frame{page: page, idx: idx})
			c.valid = true
			return cmp, nil
		}

		childIdx, child, err := c.t.searchInteriorPage(page, key)
		if err != nil {
			return 0, err
		}
		c.push(frame{page: page, idx: childIdx})
		pgno = child
	}
}

// searchLeafPage binary-searches a leaf page's cell index for key,
// returning the landing index and the bytes.Compare-style result.
func (t *Tree) searchLeafPage(page *Page, key []byte) (uint16, int, error) {
	lo, hi := uint16(0), page.NCells()
	for lo < hi {
		mid := lo + (hi-lo)/2
		dc, err := t.decodeCell(cellLeaf, page.CellBytes(mid))
		if err != nil {
			return 0, 0, err
		}
		c := bytes.Compare(key, dc.key)
		if c == 0 {
			return mid, 0, nil
		}
		if c < 0 {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo, -1, nil
}

// searchInteriorPage finds the child subtree key belongs in. Interior
// cell i's key is a separator: its child holds every key strictly less
// than it. Keys greater than or equal to every cell's key fall into the
// page's right-most child (RChild).
func (t *Tree) searchInteriorPage(page *Page, key []byte) (uint16, uint32, error) {
	lo, hi := uint16(0), page.NCells()
	for lo < hi {
		mid := lo + (hi-lo)/2
		dc, err := t.decodeCell(cellInterior, page.CellBytes(mid))
		if err != nil {
			return 0, 0, err
		}
		if bytes.Compare(key, dc.key) < 0 {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	if lo == page.NCells() {
		return lo, page.RChild(), nil
	}
	dc, err := t.decodeCell(cellInterior, page.CellBytes(lo))
	if err != nil {
		return 0, 0, err
	}
	return lo, dc.child, nil
}

// Value returns the value of the cell the cursor currently sits on.
// Valid only immediately after a Seek that found an exact match.
func (c *Cursor) Value() ([]byte, error) {
	if !c.valid {
		return nil, ErrCursorUninit
	}
	f := c.top()
	dc, err := c.t.decodeCell(cellLeaf, f.page.CellBytes(f.idx))
	if err != nil {
		return nil, err
	}
	return dc.val, nil
}
