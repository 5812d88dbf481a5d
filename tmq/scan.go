package tmq

import (
	"io"

	"github.com/pkg/errors"

	"github.com/tsvnode/vnode-core/queryop"
	"github.com/tsvnode/vnode-core/submitlog"
)

// snapshotRowCap is the per-scan row cap in snapshot mode (spec section
// 4.2.1 / section 6).
const snapshotRowCap = 4096

// ScanData implements spec section 4.2.1: serve a bounded batch of
// encoded data blocks starting at offset, returning the updated
// response with its terminal offset.
func ScanData(h *Handle, offset Offset) (*DataResponse, error) {
	resp := newDataResponse()
	o := offset

	if err := h.Op.PrepareScan(o, h.SubType); err != nil {
		if o.Tag == TagLog {
			resp.RspOffset = o
			return resp, nil
		}
		o = LogOffset(h.SnapshotVersion)
		if err2 := h.Op.PrepareScan(o, h.SubType); err2 != nil {
			resp.RspOffset = o
			return resp, nil
		}
	}

	for {
		block, err := h.Op.ExecTask()
		if err != nil {
			return nil, err
		}
		if block == nil {
			break
		}
		AddBlockToRsp(resp, block)
		if o.Tag == TagSnapshotData {
			resp.TotalRows += block.NumRows
			if resp.TotalRows >= snapshotRowCap {
				break
			}
		}
	}

	final, err := h.Op.ExtractOffset()
	if err != nil {
		return nil, err
	}
	if final.Tag == TagNone {
		return nil, ErrInvalidParameter
	}
	resp.RspOffset = final

	if !h.WithTbname && !h.WithSchema {
		if len(resp.BlockTbname) > 0 || len(resp.BlockSchema) > 0 {
			return nil, ErrInvalidParameter
		}
	}
	h.observeScan("data", resp)
	return resp, nil
}

// observeScan records per-scan counters when the handle carries a
// metrics collector.
func (h *Handle) observeScan(kind string, resp *DataResponse) {
	if h.Metrics == nil {
		return
	}
	h.Metrics.TmqScanBlocks.WithLabelValues(kind).Add(float64(resp.BlockNum))
	h.Metrics.TmqScanRows.WithLabelValues(kind).Add(float64(resp.TotalRows))
}

// ScanTaosx implements spec section 4.2.2: a combined snapshot+WAL scan
// that additionally resolves table name / schema metadata, and which
// explicitly switches the response offset to Log{ver = snapshot_version
// + 1} the moment the snapshot is fully drained — the behavior the spec
// flags as a source ambiguity and recommends resolving explicitly
// (section 9).
func ScanTaosx(h *Handle, offset Offset, metaRsp *MetaResponse) (*DataResponse, error) {
	resp := newDataResponse()
	o := offset

	if err := h.Op.PrepareScan(o, h.SubType); err != nil {
		if o.Tag == TagLog {
			resp.RspOffset = o
			return resp, nil
		}
		o = LogOffset(h.SnapshotVersion)
		if err2 := h.Op.PrepareScan(o, h.SubType); err2 != nil {
			resp.RspOffset = o
			return resp, nil
		}
	}

	for {
		block, err := h.Op.ExecTask()
		if err != nil {
			return nil, err
		}

		if block != nil {
			if h.WithTbname {
				resp.AddTbname(h.Op.ExtractTbnameFromTask())
			}
			if h.WithSchema {
				resp.AddSchema(h.Op.ExtractSchemaFromTask())
			}
			AddBlockToRsp(resp, block)

			if o.Tag == TagLog {
				continue
			}
			resp.TotalRows += block.NumRows
			if resp.TotalRows > snapshotRowCap {
				break
			}
			continue
		}

		if o.Tag == TagSnapshotData && h.Op.ExtractPrepareUid() == 0 {
			o = LogOffset(h.SnapshotVersion + 1)
			resp.RspOffset = o
			return resp, nil
		}

		if resp.BlockNum > 0 {
			break
		}

		meta, err := h.Op.ExtractMetaMsg()
		if err != nil {
			return nil, err
		}
		if meta == nil {
			break
		}
		if meta.Offset.Tag == TagSnapshotData {
			o = meta.Offset
			if err := h.Op.PrepareScan(o, h.SubType); err != nil {
				resp.RspOffset = o
				return resp, nil
			}
			meta.Offset.Tag = TagSnapshotMeta
			continue
		}
		if metaRsp != nil {
			*metaRsp = *meta
		}
		o = meta.Offset
		break
	}

	if final, err := h.Op.ExtractOffset(); err == nil && final.Tag != TagNone {
		o = final
	}
	resp.RspOffset = o
	h.observeScan("taosx", resp)
	return resp, nil
}

// TableResolver supplies the per-entry table metadata ScanLog needs to
// populate tbname/schema/create-table sequences. The submit-log reader
// this is modeled on carries decoded submit batches with this
// information already attached (spec section 4.2.3's
// RetrieveTaosxBlock); here it is a separate collaborator since
// submitlog.Reader only replays raw versioned payloads.
type TableResolver interface {
	ResolveTable(entry *submitlog.Entry) (uid int64, tbname string, schema *queryop.SchemaWrapper, createTableReq []byte, found bool)
}

// ScanLog implements spec section 4.2.3: drain a single submit batch
// from the handle's WAL reader starting at offset.Ver, resolving each
// entry's table metadata and, for the Database sub_type, skipping
// entries whose table uid is in filterOutUIDs.
func ScanLog(h *Handle, offset Offset, resolver TableResolver, filterOutUIDs map[int64]struct{}) (*DataResponse, error) {
	resp, err := scanLog(h, offset, resolver, filterOutUIDs)
	if err == nil {
		h.observeScan("log", resp)
	}
	return resp, err
}

func scanLog(h *Handle, offset Offset, resolver TableResolver, filterOutUIDs map[int64]struct{}) (*DataResponse, error) {
	if offset.Tag != TagLog {
		return nil, ErrInvalidParameter
	}
	resp := newDataResponse()
	resp.RspOffset = offset

	if h.Reader == nil {
		return resp, nil
	}

	entry, err := h.Reader.SeekVer(offset.Ver)
	for {
		if err == io.EOF {
			return resp, nil
		}
		if err != nil {
			return nil, errors.Wrapf(err, "tmq: scan log from ver %d", offset.Ver)
		}

		uid, tbname, schema, createReq, found := resolver.ResolveTable(entry)
		if !found {
			// TableSchemaNotFound: this batch's decoded blocks/schemas
			// are discarded, the scan continues with the next entry.
			entry, err = h.Reader.Next()
			continue
		}
		if h.SubType == queryop.SubDatabase {
			if _, filtered := filterOutUIDs[uid]; filtered {
				entry, err = h.Reader.Next()
				continue
			}
		}

		block := &queryop.DataBlock{Type: queryop.BlockNormal, SourceVer: entry.Ver, NumRows: 1, Payload: entry.Msg}
		AddBlockToRsp(resp, block)
		if h.WithTbname {
			resp.AddTbname(tbname)
		}
		if h.WithSchema {
			resp.AddSchema(schema)
		}
		if h.FetchMeta && createReq != nil {
			resp.AddCreateTableReq(createReq)
		}
		resp.TotalRows++
		resp.RspOffset = LogOffset(entry.Ver + 1)
		return resp, nil
	}
}
