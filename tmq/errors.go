package tmq

import "errors"

// Sentinel errors surfaced by the scan engine, per spec section 7's
// error table.
var (
	ErrInvalidParameter    = errors.New("tmq: invalid parameter")
	ErrOutOfMemory         = errors.New("tmq: out of memory")
	ErrTableSchemaNotFound = errors.New("tmq: table schema not found")
)
