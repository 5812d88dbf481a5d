package benchmark

import "time"

// WorkloadType defines the access pattern
type WorkloadType string

const (
	WorkloadWriteHeavy WorkloadType = "write-heavy" // 95% writes
	WorkloadReadHeavy  WorkloadType = "read-heavy"  // 95% reads
	WorkloadBalanced   WorkloadType = "balanced"    // 50/50
	WorkloadReadOnly   WorkloadType = "read-only"   // 100% reads
	WorkloadWriteOnly  WorkloadType = "write-only"  // 100% writes
)

// Config defines a benchmark scenario. cmd/vnodectl bench reads
// NumKeys/ValueSize/Seed off the presets in compare.go rather than
// running the full concurrent write/read mix Duration/Concurrency
// describe: the paged B-tree index has no Delete/Stats/Compact/Sync of
// its own, so it cannot stand behind the same common.StorageEngine
// driver the original three-way KV-engine comparison used.
type Config struct {
	Name string

	WorkloadType    WorkloadType
	KeyDistribution KeyDistribution

	NumKeys   int // Total unique keys in dataset
	KeySize   int // Bytes
	ValueSize int // Bytes

	Duration    time.Duration // How long to run
	Concurrency int           // Number of concurrent workers

	PreloadKeys int // Keys to load before benchmark starts

	Seed int64
}

// Result is the shape a benchmark run reports; cmd/vnodectl bench fills
// in the latency fields directly from a LatencyHistogram rather than
// going through a Benchmark runner.
type Result struct {
	Config Config

	TotalOps  int64
	WriteOps  int64
	ReadOps   int64
	Duration  time.Duration
	OpsPerSec float64

	WriteLatency LatencyStats
	ReadLatency  LatencyStats
}
