package tmq

import (
	"encoding/binary"

	"github.com/tsvnode/vnode-core/queryop"
)

// retrieveHeaderSize is sizeof(RetrieveTableRsp)'s fixed prefix:
// useconds(8) + precision(1) + compressed(1) + completed(1) + pad(1) +
// numOfRows(8).
const retrieveHeaderSize = 20

// precisionMillisecond is the only precision this runtime serves; the
// spec treats precision as an opaque passthrough value.
const precisionMillisecond = 0

// AddBlockToRsp packs one operator-produced block into a
// RetrieveTableRsp envelope and appends it to the response, per spec
// section 4.2.1: `{useconds=0, precision, compressed=0, completed=1,
// numOfRows=bswap64(rows)}` followed by the encoded block.
func AddBlockToRsp(r *DataResponse, block *queryop.DataBlock) {
	envelope := make([]byte, retrieveHeaderSize+len(block.Payload))
	// useconds(8) left zero
	envelope[8] = precisionMillisecond
	envelope[9] = 0 // compressed
	envelope[10] = 1 // completed
	envelope[11] = 0 // pad
	binary.BigEndian.PutUint64(envelope[12:20], uint64(block.NumRows))
	copy(envelope[retrieveHeaderSize:], block.Payload)
	r.AddBlock(envelope)
}
