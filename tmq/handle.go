package tmq

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tsvnode/vnode-core/metrics"
	"github.com/tsvnode/vnode-core/queryop"
	"github.com/tsvnode/vnode-core/submitlog"
)

// Handle is the spec section 3.1 Subscription Handle: immutable aside
// from the scan mutex that serializes concurrent RPC handler calls
// against the same subscription (spec section 5: "one subscription
// handle must not be scanned concurrently").
type Handle struct {
	ConsumerID      string
	SnapshotVersion int64
	SubType         queryop.SubType
	WithTbname      bool
	WithSchema      bool
	FetchMeta       bool

	Op     queryop.Operator
	Reader *submitlog.Reader

	// Metrics, if set, receives per-scan block/row counters. Nil
	// disables instrumentation entirely.
	Metrics *metrics.Collectors

	log *logrus.Entry
	mu  sync.Mutex
}

// NewHandle creates a subscription handle with a fresh consumer id.
func NewHandle(snapshotVersion int64, subType queryop.SubType, op queryop.Operator, reader *submitlog.Reader, log *logrus.Entry) *Handle {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	consumerID := uuid.NewString()
	return &Handle{
		ConsumerID:      consumerID,
		SnapshotVersion: snapshotVersion,
		SubType:         subType,
		Op:              op,
		Reader:          reader,
		log:             log.WithField("consumer_id", consumerID),
	}
}

// WithMetadata configures which optional metadata sequences a scan
// populates.
func (h *Handle) WithMetadata(withTbname, withSchema, fetchMeta bool) *Handle {
	h.WithTbname = withTbname
	h.WithSchema = withSchema
	h.FetchMeta = fetchMeta
	return h
}

// Lock/Unlock serialize ScanData/ScanTaosx/ScanLog calls against this
// handle; callers invoke them around a full scan.
func (h *Handle) Lock()   { h.mu.Lock() }
func (h *Handle) Unlock() { h.mu.Unlock() }
