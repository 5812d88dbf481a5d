// Package metrics exposes the Prometheus collectors the vnode runtime
// registers for its three components: pending checkpoints, TMQ scan
// throughput, and B-tree balance activity.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors bundles every metric this runtime registers, mirroring the
// teacher's own convention of constructing and registering collectors
// together rather than scattering package-level globals.
type Collectors struct {
	ChkptNotReadyTasks prometheus.Gauge

	TmqScanBlocks    *prometheus.CounterVec
	TmqScanRows      *prometheus.CounterVec
	TmqScanErrors    *prometheus.CounterVec
	TmqScanDuration  *prometheus.HistogramVec

	BtreeBalanceTotal   *prometheus.CounterVec
	BtreeBalanceDeeper  prometheus.Counter
	BtreePageOccupancy  prometheus.Histogram
}

// New builds and registers every collector against reg.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		ChkptNotReadyTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vnode",
			Subsystem: "stream",
			Name:      "checkpoint_not_ready_tasks",
			Help:      "Number of stream tasks not yet at CK_READY for the in-flight checkpoint.",
		}),
		TmqScanBlocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vnode",
			Subsystem: "tmq",
			Name:      "scan_blocks_total",
			Help:      "Data blocks served by ScanData/ScanTaosx/ScanLog, labeled by scan kind.",
		}, []string{"scan"}),
		TmqScanRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vnode",
			Subsystem: "tmq",
			Name:      "scan_rows_total",
			Help:      "Rows served across all scans, labeled by scan kind.",
		}, []string{"scan"}),
		TmqScanErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vnode",
			Subsystem: "tmq",
			Name:      "scan_errors_total",
			Help:      "Scan errors, labeled by scan kind and error sentinel.",
		}, []string{"scan", "error"}),
		TmqScanDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vnode",
			Subsystem: "tmq",
			Name:      "scan_duration_seconds",
			Help:      "Wall time of a single ScanData/ScanTaosx/ScanLog call.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"scan"}),
		BtreeBalanceTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vnode",
			Subsystem: "btree",
			Name:      "balance_total",
			Help:      "Balance invocations, labeled by kind (leaf, interior, deeper).",
		}, []string{"kind"}),
		BtreeBalanceDeeper: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vnode",
			Subsystem: "btree",
			Name:      "balance_deeper_total",
			Help:      "Root-overflow tree-growth events.",
		}),
		BtreePageOccupancy: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vnode",
			Subsystem: "btree",
			Name:      "page_occupancy_bytes",
			Help:      "Byte occupancy of pages written out by balance.",
			Buckets:   prometheus.LinearBuckets(0, 512, 16),
		}),
	}

	reg.MustRegister(
		c.ChkptNotReadyTasks,
		c.TmqScanBlocks,
		c.TmqScanRows,
		c.TmqScanErrors,
		c.TmqScanDuration,
		c.BtreeBalanceTotal,
		c.BtreeBalanceDeeper,
		c.BtreePageOccupancy,
	)
	return c
}
