package tmq

import "github.com/tsvnode/vnode-core/queryop"

// DataResponse is the spec section 3.1 Data Response: an append-only
// sequence of encoded blocks, parallel optional metadata sequences, and
// a terminal resumable offset.
type DataResponse struct {
	BlockData    [][]byte
	BlockDataLen []int32

	BlockTbname []string
	BlockSchema []*queryop.SchemaWrapper

	CreateTableLen []int32
	CreateTableReq [][]byte

	BlockNum int
	TotalRows int64

	RspOffset Offset
}

// MetaResponse mirrors queryop.MetaResponse, returned only when a scan
// boundary crosses a schema/meta event.
type MetaResponse = queryop.MetaResponse

func newDataResponse() *DataResponse {
	return &DataResponse{RspOffset: NoneOffset}
}

// AddBlock appends one wire-encoded retrieve-table envelope and its
// length to the response's parallel vectors, per AddBlockToRsp.
func (r *DataResponse) AddBlock(envelope []byte) {
	r.BlockData = append(r.BlockData, envelope)
	r.BlockDataLen = append(r.BlockDataLen, int32(len(envelope)))
	r.BlockNum++
}

func (r *DataResponse) AddTbname(name string) {
	r.BlockTbname = append(r.BlockTbname, name)
}

func (r *DataResponse) AddSchema(schema *queryop.SchemaWrapper) {
	r.BlockSchema = append(r.BlockSchema, schema)
}

func (r *DataResponse) AddCreateTableReq(req []byte) {
	r.CreateTableLen = append(r.CreateTableLen, int32(len(req)))
	r.CreateTableReq = append(r.CreateTableReq, req)
}
