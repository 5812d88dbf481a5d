package btree

import (
	"bytes"
)

// VariantLen marks a key or value length as variable rather than fixed
// (spec 3.3 "key_len (or Variant)").
const VariantLen = -1

// cellKind distinguishes the two cell shapes spec 3.3 describes.
type cellKind int

const (
	cellLeaf cellKind = iota
	cellInterior
)

// decodedCell is the in-memory view of a cell after decodeCell. key and
// val are copies, never slices of the page buffer; a spilled value is
// assembled from its local prefix plus the overflow chain (spec 4.1
// "Cell decode").
type decodedCell struct {
	key      []byte
	val      []byte // nil for interior cells
	child    uint32 // only for interior cells
	overflow bool
	// size is the number of bytes this cell occupies starting at its
	// cell-index offset, used by Balance to know how much to copy/move.
	size int
}

// encodeCell implements spec 4.1 "Cell encode". Leaf cells are
// `[kLen?][vLen?][key][value]`; interior cells are `[kLen?][pgno][key]`.
// When the local payload would exceed maxLocal, the value (leaf) is
// truncated to a local prefix and the remainder is spilled into a chain
// of overflow pages; the cell stores a marker byte and the 4-byte first
// overflow page number right after the key, ahead of the local prefix.
func (t *Tree) encodeCell(kind cellKind, key, val []byte, child uint32) ([]byte, error) {
	kLen := len(key)
	var buf bytes.Buffer

	if t.keyLen == VariantLen {
		var tmp [10]byte
		n := putUvarint(tmp[:], uint64(kLen))
		buf.Write(tmp[:n])
	}

	if kind == cellLeaf {
		vLen := len(val)
		total := kLen + vLen
		if total <= t.maxLocal {
			if t.valLen == VariantLen {
				var tmp [10]byte
				n := putUvarint(tmp[:], uint64(vLen))
				buf.Write(tmp[:n])
			}
			buf.Write(key)
			buf.Write(val)
			return buf.Bytes(), nil
		}
		return t.encodeOverflowLeafCell(&buf, key, val)
	}

	// Interior: fixed-size child pgno, no value payload.
	var childBuf [4]byte
	putBe32(childBuf[:], child)
	buf.Write(childBuf[:])
	buf.Write(key)
	return buf.Bytes(), nil
}

// overflowMarkerSpill is written as the first byte after the key of a
// spilled cell so decodeCell can tell local and spilled apart without
// consulting the page's free-space layout. encodeCell never writes
// overflowMarkerLocal; decodeCell accepts it as a local value.
const (
	overflowMarkerLocal = 0
	overflowMarkerSpill = 1
)

func (t *Tree) encodeOverflowLeafCell(buf *bytes.Buffer, key, val []byte) ([]byte, error) {
	if len(key) > t.maxLocal-5 {
		return nil, ErrKeyTooLarge
	}
	localBudget := t.maxLocal - len(key) - 1 /*marker*/ - 4 /*overflow pgno*/
	if localBudget < 0 {
		localBudget = 0
	}
	if localBudget > len(val) {
		localBudget = len(val)
	}
	firstPgno, err := t.spillOverflow(val[localBudget:])
	if err != nil {
		return nil, err
	}

	if t.valLen == VariantLen {
		var tmp [10]byte
		n := putUvarint(tmp[:], uint64(len(val)))
		buf.Write(tmp[:n])
	}
	buf.Write(key)
	buf.WriteByte(overflowMarkerSpill)
	var pgnoBuf [4]byte
	putBe32(pgnoBuf[:], firstPgno)
	buf.Write(pgnoBuf[:])
	buf.Write(val[:localBudget])
	return buf.Bytes(), nil
}

// spillOverflow writes data across a chain of overflow pages (flags={},
// neither Root nor Leaf) and returns the first page number in the chain.
// Each overflow page is `[next pgno: 4][payload...]`.
func (t *Tree) spillOverflow(data []byte) (uint32, error) {
	if len(data) == 0 {
		return 0, nil
	}
	pageCap := int(t.pager.GetPageSize()) - 4 - footerSize
	var firstPgno uint32
	var prev *Page
	for len(data) > 0 {
		pg, err := t.pager.NewPage()
		if err != nil {
			return 0, err
		}
		pg.Reset(0) // overflow page: flags = {}
		n := len(data)
		if n > pageCap {
			n = pageCap
		}
		copy(pg.data[4:], data[:n])
		data = data[n:]
		if prev == nil {
			firstPgno = pg.PageNo()
		} else {
			putBe32(prev.data[0:4], pg.PageNo())
			t.pager.MarkDirty(prev.PageNo())
		}
		prev = pg
	}
	if prev != nil {
		putBe32(prev.data[0:4], 0)
		t.pager.MarkDirty(prev.PageNo())
	}
	return firstPgno, nil
}

func (t *Tree) readOverflow(firstPgno uint32) ([]byte, error) {
	var out bytes.Buffer
	pageCap := int(t.pager.GetPageSize()) - 4 - footerSize
	pgno := firstPgno
	for pgno != 0 {
		pg, err := t.pager.FetchPage(pgno)
		if err != nil {
			return nil, err
		}
		next := be32(pg.data[0:4])
		end := 4 + pageCap
		if end > len(pg.data)-footerSize {
			end = len(pg.data) - footerSize
		}
		out.Write(pg.data[4:end])
		pgno = next
	}
	return out.Bytes(), nil
}

// decodeCell implements spec 4.1 "Cell decode": the inverse of
// encodeCell, reconstructing pKey/pVal from a page's cell bytes.
func (t *Tree) decodeCell(kind cellKind, raw []byte) (*decodedCell, error) {
	pos := 0
	kLen := t.keyLen
	if kLen == VariantLen {
		v, n := uvarint(raw[pos:])
		if n <= 0 {
			return nil, ErrCorruptPage
		}
		kLen = int(v)
		pos += n
	}

	if kind == cellInterior {
		child := be32(raw[pos:])
		pos += 4
		key := append([]byte(nil), raw[pos:pos+kLen]...)
		pos += kLen
		return &decodedCell{key: key, child: child, size: pos}, nil
	}

	vLen := t.valLen
	localOnly := true
	if vLen == VariantLen {
		v, n := uvarint(raw[pos:])
		if n <= 0 {
			return nil, ErrCorruptPage
		}
		vLen = int(v)
		pos += n
		if kLen+vLen > t.maxLocal {
			localOnly = false
		}
	}

	key := append([]byte(nil), raw[pos:pos+kLen]...)
	pos += kLen

	if localOnly {
		val := append([]byte(nil), raw[pos:pos+vLen]...)
		pos += vLen
		return &decodedCell{key: key, val: val, size: pos}, nil
	}

	marker := raw[pos]
	pos++
	if marker == overflowMarkerLocal {
		val := append([]byte(nil), raw[pos:pos+vLen]...)
		pos += vLen
		return &decodedCell{key: key, val: val, size: pos}, nil
	}

	firstPgno := be32(raw[pos:])
	pos += 4
	// The local budget used at encode time is whatever remained after
	// key+marker+pgno within maxLocal; recompute identically here.
	budget := t.maxLocal - len(key) - 1 - 4
	if budget < 0 {
		budget = 0
	}
	if budget > vLen {
		budget = vLen
	}
	local := append([]byte(nil), raw[pos:pos+budget]...)
	pos += budget

	rest, err := t.readOverflow(firstPgno)
	if err != nil {
		return nil, err
	}
	val := append(local, rest...)
	if len(val) > vLen {
		// readOverflow returns the last chain page whole, past the value's end.
		val = val[:vLen]
	}
	return &decodedCell{key: key, val: val, overflow: true, size: pos}, nil
}
