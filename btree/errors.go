package btree

import "errors"

var (
	// ErrDuplicate is returned by Insert when a cell with an equal key
	// already occupies the seek position. The spec's duplicate-key policy
	// is reject, never upsert.
	ErrDuplicate = errors.New("btree: duplicate key")

	// ErrPageOverflow is returned internally by Page.InsertCellAt when a
	// cell does not fit in the page's free region (the page is not
	// defragmented first); the caller is expected to invoke Balance.
	ErrPageOverflow = errors.New("btree: page overflow")

	ErrInvalidPageFlags = errors.New("btree: invalid page flags")
	ErrCellNotFound      = errors.New("btree: cell not found")
	ErrCorruptPage       = errors.New("btree: corrupt page (footer checksum mismatch)")
	ErrKeyTooLarge       = errors.New("btree: key alone exceeds maxLocal, cannot spill keys")
	ErrCursorUninit      = errors.New("btree: cursor not positioned")
	ErrTreeClosed        = errors.New("btree: tree is closed")
)
