package btree

import (
	"encoding/binary"
	"hash/crc32"
)

// Page layout (spec section 3.3):
//
//	[ flags(1) | nCells(2) | ccells(2) | fcell(2) | nFree(2) ]   page-hdr (9B)
//	[ rChild(4) ]                                                AM-header (interior only)
//	[ cellOffset(2) ]*nCells                                     cell-index
//	<free space>
//	<cells, growing backward from the end>
//	[ checksum(4) ]                                              footer
//
// Cells are addressed by an offset into the page; the cell-index stores
// those offsets in the tree's sort order, so a binary search over the
// index is a binary search over keys without decoding every cell.
const (
	hdrOffFlags  = 0
	hdrOffNCells = 1
	hdrOffCcells = 3
	hdrOffFcell  = 5
	hdrOffNFree  = 7
	PageHdrSize  = 9 // sizeof(PageHdr) used in the spec's derived-constant formulas

	amHdrSize    = 4 // rChild, interior pages only
	cellIdxEntry = 2
	footerSize   = 4
)

// PageFlags is the page-kind bitset (spec 3.3 "Page flags").
type PageFlags uint8

const (
	FlagRoot PageFlags = 1 << iota
	FlagLeaf
)

// validPageFlags enumerates the only legal combinations; an overflow page
// has neither bit set.
func validPageFlags(f PageFlags) bool {
	switch f {
	case 0, FlagRoot, FlagLeaf, FlagRoot | FlagLeaf:
		return true
	default:
		return false
	}
}

// Page is a single fixed-size page backed by a byte slice owned by the
// pager. All accessors operate directly on that slice; there is no
// separate decoded representation kept around.
type Page struct {
	pgno  uint32
	size  uint32
	data  []byte
	dirty bool
}

// zeroPage implements spec 4.1 "Zero-page": write a fresh page header with
// nCells=0, ccells pinned to just above the footer, fcell=0, nFree
// recomputed, then Init-page.
func zeroPage(pgno uint32, size uint32, flags PageFlags) (*Page, error) {
	if !validPageFlags(flags) {
		return nil, ErrInvalidPageFlags
	}
	p := &Page{pgno: pgno, size: size, data: make([]byte, size), dirty: true}
	p.data[hdrOffFlags] = byte(flags)
	p.setNCells(0)
	p.setCcells(uint16(size) - footerSize)
	p.setFcell(0)
	p.initPage()
	return p, nil
}

// initPage implements spec 4.1 "Init-page": recompute section pointers
// from flags and refresh nFree.
func (p *Page) initPage() {
	p.setNFree(p.freeBytes())
}

// loadPage reconstructs a Page from raw bytes read by the pager,
// verifying the footer checksum.
func loadPage(pgno uint32, data []byte) (*Page, error) {
	size := uint32(len(data))
	p := &Page{pgno: pgno, size: size, data: data}
	if !p.verifyFooter() {
		return nil, ErrCorruptPage
	}
	return p, nil
}

func (p *Page) PageNo() uint32 { return p.pgno }
func (p *Page) Size() uint32   { return p.size }
func (p *Page) IsDirty() bool  { return p.dirty }
func (p *Page) markDirty()     { p.dirty = true }
func (p *Page) clearDirty()    { p.dirty = false }

func (p *Page) Flags() PageFlags { return PageFlags(p.data[hdrOffFlags]) }
func (p *Page) IsRoot() bool     { return p.Flags()&FlagRoot != 0 }
func (p *Page) IsLeaf() bool     { return p.Flags()&FlagLeaf != 0 }
func (p *Page) IsInterior() bool { return !p.IsLeaf() }
func (p *Page) IsOverflow() bool { return p.Flags() == 0 }

func (p *Page) setFlags(f PageFlags) { p.data[hdrOffFlags] = byte(f); p.markDirty() }

func (p *Page) NCells() uint16 { return binary.BigEndian.Uint16(p.data[hdrOffNCells:]) }
func (p *Page) setNCells(n uint16) {
	binary.BigEndian.PutUint16(p.data[hdrOffNCells:], n)
	p.markDirty()
}

// Ccells is the offset (from page start) of the first byte of cell
// content; cells are packed from this point to the end of the page,
// growing toward lower offsets as more are added.
func (p *Page) Ccells() uint16 { return binary.BigEndian.Uint16(p.data[hdrOffCcells:]) }
func (p *Page) setCcells(v uint16) {
	binary.BigEndian.PutUint16(p.data[hdrOffCcells:], v)
	p.markDirty()
}

func (p *Page) Fcell() uint16 { return binary.BigEndian.Uint16(p.data[hdrOffFcell:]) }
func (p *Page) setFcell(v uint16) {
	binary.BigEndian.PutUint16(p.data[hdrOffFcell:], v)
	p.markDirty()
}

func (p *Page) NFree() uint16 { return binary.BigEndian.Uint16(p.data[hdrOffNFree:]) }
func (p *Page) setNFree(v uint16) {
	binary.BigEndian.PutUint16(p.data[hdrOffNFree:], v)
}

// amHeaderOffset is where the AM-header begins, right after page-hdr.
func (p *Page) amHeaderOffset() int { return PageHdrSize }

func (p *Page) amHeaderSize() int {
	if p.IsLeaf() {
		return 0
	}
	return amHdrSize
}

// RChild is the AM-header's right-most child pointer (interior pages
// only): the subtree holding every key greater than the last cell's key.
func (p *Page) RChild() uint32 {
	if p.IsLeaf() {
		return 0
	}
	return binary.BigEndian.Uint32(p.data[p.amHeaderOffset():])
}

func (p *Page) SetRChild(pgno uint32) {
	if p.IsLeaf() {
		return
	}
	binary.BigEndian.PutUint32(p.data[p.amHeaderOffset():], pgno)
	p.markDirty()
}

// cellIndexOffset is where the cell-index array begins.
func (p *Page) cellIndexOffset() int { return p.amHeaderOffset() + p.amHeaderSize() }

func (p *Page) cellIndexEntryOffset(i uint16) int {
	return p.cellIndexOffset() + int(i)*cellIdxEntry
}

func (p *Page) cellOffsetAt(i uint16) uint16 {
	return binary.BigEndian.Uint16(p.data[p.cellIndexEntryOffset(i):])
}

func (p *Page) setCellOffsetAt(i uint16, off uint16) {
	binary.BigEndian.PutUint16(p.data[p.cellIndexEntryOffset(i):], off)
}

// pFreeStart/pFreeEnd bound the free region between the cell-index and
// the start of cell content (spec 4.1: "page overflows ... pFreeEnd -
// pFreeStart").
func (p *Page) pFreeStart() uint16 {
	return uint16(p.cellIndexOffset()) + p.NCells()*cellIdxEntry
}

func (p *Page) pFreeEnd() uint16 { return p.Ccells() }

func (p *Page) freeBytes() uint16 {
	end, start := p.pFreeEnd(), p.pFreeStart()
	if end < start {
		return 0
	}
	return end - start
}

// footerOffset is where the trailing checksum lives.
func (p *Page) footerOffset() int { return int(p.size) - footerSize }

func (p *Page) writeFooter() {
	sum := crc32.ChecksumIEEE(p.data[:p.footerOffset()])
	binary.BigEndian.PutUint32(p.data[p.footerOffset():], sum)
}

func (p *Page) verifyFooter() bool {
	want := binary.BigEndian.Uint32(p.data[p.footerOffset():])
	got := crc32.ChecksumIEEE(p.data[:p.footerOffset()])
	return want == got
}

// Bytes returns the page's raw backing storage, with the footer refreshed,
// ready to hand to the pager for a write.
func (p *Page) Bytes() []byte {
	p.writeFooter()
	return p.data
}

// CellBytes returns the cell's raw bytes, anchored at its cell-index
// offset. Cells are self-describing (length recoverable from their own
// varint-prefixed fields), so this just bounds the slice by the page end;
// decodeCell stops reading once it has consumed the fields it expects.
func (p *Page) CellBytes(i uint16) []byte {
	off := p.cellOffsetAt(i)
	return p.data[off:p.footerOffset()]
}

// InsertCellAt implements spec 4.1's PageInsertCell: splice cellBytes into
// the cell-index at logical position idx and copy its bytes into the
// free region, growing backward from Ccells. Returns ErrPageOverflow if
// there isn't room; the caller is then expected to Balance.
func (p *Page) InsertCellAt(idx uint16, cellBytes []byte) error {
	n := p.NCells()
	need := cellIdxEntry + len(cellBytes)
	if int(p.freeBytes()) < need {
		return ErrPageOverflow
	}

	newCcells := p.Ccells() - uint16(len(cellBytes))
	copy(p.data[newCcells:], cellBytes)
	p.setCcells(newCcells)

	for i := n; i > idx; i-- {
		p.setCellOffsetAt(i, p.cellOffsetAt(i-1))
	}
	p.setCellOffsetAt(idx, newCcells)
	p.setNCells(n + 1)
	p.setNFree(p.freeBytes())
	p.markDirty()
	return nil
}

// RemoveCellAt splices the cell-index entry at idx out. It does not
// reclaim the vacated cell bytes into the free region (that would need
// compaction or the fcell free-chain, unused here because the spec
// defines no Delete operation for this B-tree); Balance uses it only to
// rebuild a page's cell-index cleanly while redistributing.
func (p *Page) RemoveCellAt(idx uint16) {
	n := p.NCells()
	for i := idx; i+1 < n; i++ {
		p.setCellOffsetAt(i, p.cellOffsetAt(i+1))
	}
	p.setNCells(n - 1)
	p.markDirty()
}

// Reset clears a page back to an empty state of the given flags, keeping
// its pgno and backing buffer. Used by Balance when repacking a page.
func (p *Page) Reset(flags PageFlags) {
	for i := range p.data {
		p.data[i] = 0
	}
	p.data[hdrOffFlags] = byte(flags)
	p.setNCells(0)
	p.setCcells(uint16(p.size) - footerSize)
	p.setFcell(0)
	p.initPage()
	p.markDirty()
}
