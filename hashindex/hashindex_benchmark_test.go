package hashindex

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/tsvnode/vnode-core/common/benchmark"
)

// TestQuickBenchmark drives a quick write-then-read pass over the hash
// index directly, since common/benchmark no longer ships a
// StorageEngine-driving runner (the B-tree index core it now shares
// the package with has no Delete/Stats/Compact to drive uniformly;
// see cmd/vnodectl's benchmarkOne for the same shape applied across
// all three engines).
func TestQuickBenchmark(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping benchmark in short mode")
	}

	dir, err := os.MkdirTemp("", "hashindex-bench-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	config := DefaultConfig(dir)
	config.SegmentSizeBytes = 64 * 1024 * 1024
	config.SyncOnWrite = false

	h, err := New(config)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	const numKeys = 100000
	keyGen := benchmark.NewKeyGenerator(numKeys, 16, benchmark.DistSequential, 12345)
	value := make([]byte, 100)

	writeLatencies := benchmark.NewLatencyHistogram()
	start := time.Now()
	for i := 0; i < numKeys; i++ {
		key := keyGen.GenerateSequential(i)
		opStart := time.Now()
		if err := h.Put(key, value); err != nil {
			t.Fatalf("Put(%d): %v", i, err)
		}
		writeLatencies.Record(time.Since(opStart))
	}

	readGen := benchmark.NewKeyGenerator(numKeys, 16, benchmark.DistUniform, 12346)
	readLatencies := benchmark.NewLatencyHistogram()
	readOps := int64(0)
	for i := 0; i < numKeys; i++ {
		key := readGen.NextKey()
		opStart := time.Now()
		if _, err := h.Get(key); err != nil {
			continue
		}
		readLatencies.Record(time.Since(opStart))
		readOps++
	}
	duration := time.Since(start)
	opsPerSec := float64(int64(numKeys)+readOps) / duration.Seconds()

	fmt.Printf("\n=== HashIndex Quick Benchmark ===\n")
	fmt.Printf("Throughput: %.0f ops/sec\n", opsPerSec)
	fmt.Printf("Total Ops: %d (writes: %d, reads: %d)\n", int64(numKeys)+readOps, numKeys, readOps)

	writeStats := writeLatencies.Stats()
	fmt.Printf("Write Latency: P50=%v, P99=%v, P999=%v\n", writeStats.P50, writeStats.P99, writeStats.P999)

	if readOps > 0 {
		readStats := readLatencies.Stats()
		fmt.Printf("Read Latency: P50=%v, P99=%v, P999=%v\n", readStats.P50, readStats.P99, readStats.P999)
	}

	stats := h.Stats()
	fmt.Printf("Disk Usage: %.1f MB\n", float64(stats.TotalDiskSize)/(1024*1024))

	if opsPerSec < 10000 {
		t.Errorf("Expected at least 10000 ops/sec, got %.0f", opsPerSec)
	}
}
