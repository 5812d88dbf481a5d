package lsm

import (
	"fmt"
	"math/rand"
	"os"
	"sort"
	"testing"
	"time"
)

func BenchmarkWriteHeavy(b *testing.B) {
	dir := fmt.Sprintf("/tmp/lsm-bench-write-%d", time.Now().UnixNano())
	defer os.RemoveAll(dir)

	config := DefaultConfig(dir)
	store, err := New(config)
	if err != nil {
		b.Fatalf("Failed to create snapshot store: %v", err)
	}
	defer store.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		row := []byte(fmt.Sprintf("row%010d", i))
		if err := store.PutRow(uint64(i), 1, row); err != nil {
			b.Fatalf("PutRow failed: %v", err)
		}
	}
	b.StopTimer()

	duration := b.Elapsed()
	opsPerSec := float64(b.N) / duration.Seconds()
	b.ReportMetric(opsPerSec, "ops/sec")
}

func BenchmarkReadHeavy(b *testing.B) {
	dir := fmt.Sprintf("/tmp/lsm-bench-read-%d", time.Now().UnixNano())
	defer os.RemoveAll(dir)

	config := DefaultConfig(dir)
	store, err := New(config)
	if err != nil {
		b.Fatalf("Failed to create snapshot store: %v", err)
	}
	defer store.Close()

	numUIDs := 10000
	for i := 0; i < numUIDs; i++ {
		row := []byte(fmt.Sprintf("row%010d", i))
		store.PutRow(uint64(i), 1, row)
	}

	time.Sleep(500 * time.Millisecond)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		uid := uint64(rand.Intn(numUIDs))
		_, found, err := store.GetRow(uid, 1)
		if err != nil {
			b.Fatalf("GetRow failed: %v", err)
		}
		if !found {
			b.Fatalf("uid not found: %d", uid)
		}
	}
	b.StopTimer()

	duration := b.Elapsed()
	opsPerSec := float64(b.N) / duration.Seconds()
	b.ReportMetric(opsPerSec, "ops/sec")
}

func BenchmarkBalanced(b *testing.B) {
	dir := fmt.Sprintf("/tmp/lsm-bench-balanced-%d", time.Now().UnixNano())
	defer os.RemoveAll(dir)

	config := DefaultConfig(dir)
	store, err := New(config)
	if err != nil {
		b.Fatalf("Failed to create snapshot store: %v", err)
	}
	defer store.Close()

	numUIDs := 5000
	for i := 0; i < numUIDs; i++ {
		row := []byte(fmt.Sprintf("row%010d", i))
		store.PutRow(uint64(i), 1, row)
	}

	time.Sleep(300 * time.Millisecond)

	// 50% reads, 50% writes
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if rand.Float32() < 0.5 {
			uid := uint64(rand.Intn(numUIDs))
			store.GetRow(uid, 1)
		} else {
			uid := uint64(rand.Intn(numUIDs * 2))
			row := []byte(fmt.Sprintf("row%010d", uid))
			store.PutRow(uid, 1, row)
		}
	}
	b.StopTimer()

	duration := b.Elapsed()
	opsPerSec := float64(b.N) / duration.Seconds()
	b.ReportMetric(opsPerSec, "ops/sec")
}

func BenchmarkWriteThroughput(b *testing.B) {
	benchmarks := []struct {
		name   string
		numOps int
	}{
		{"10K", 10000},
		{"50K", 50000},
		{"100K", 100000},
	}

	for _, bm := range benchmarks {
		b.Run(bm.name, func(b *testing.B) {
			dir := fmt.Sprintf("/tmp/lsm-bench-throughput-%d", time.Now().UnixNano())
			defer os.RemoveAll(dir)

			config := DefaultConfig(dir)
			store, err := New(config)
			if err != nil {
				b.Fatalf("Failed to create snapshot store: %v", err)
			}
			defer store.Close()

			b.ResetTimer()
			start := time.Now()

			for i := 0; i < bm.numOps; i++ {
				row := []byte(fmt.Sprintf("row%010d", i))
				store.PutRow(uint64(i), 1, row)
			}

			elapsed := time.Since(start)
			b.StopTimer()

			opsPerSec := float64(bm.numOps) / elapsed.Seconds()
			b.ReportMetric(opsPerSec, "ops/sec")
			b.ReportMetric(elapsed.Seconds()*1000, "ms")
		})
	}
}

func BenchmarkReadLatency(b *testing.B) {
	dir := fmt.Sprintf("/tmp/lsm-bench-latency-%d", time.Now().UnixNano())
	defer os.RemoveAll(dir)

	config := DefaultConfig(dir)
	store, err := New(config)
	if err != nil {
		b.Fatalf("Failed to create snapshot store: %v", err)
	}
	defer store.Close()

	numUIDs := 10000
	for i := 0; i < numUIDs; i++ {
		row := []byte(fmt.Sprintf("row%010d", i))
		store.PutRow(uint64(i), 1, row)
	}

	time.Sleep(500 * time.Millisecond)

	latencies := make([]time.Duration, 1000)

	b.ResetTimer()
	for i := 0; i < 1000; i++ {
		uid := uint64(rand.Intn(numUIDs))

		start := time.Now()
		store.GetRow(uid, 1)
		latencies[i] = time.Since(start)
	}
	b.StopTimer()

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	p50 := latencies[500].Microseconds()
	p95 := latencies[950].Microseconds()
	p99 := latencies[990].Microseconds()

	b.ReportMetric(float64(p50), "p50_µs")
	b.ReportMetric(float64(p95), "p95_µs")
	b.ReportMetric(float64(p99), "p99_µs")
}

func BenchmarkNegativeLookup(b *testing.B) {
	dir := fmt.Sprintf("/tmp/lsm-bench-negative-%d", time.Now().UnixNano())
	defer os.RemoveAll(dir)

	config := DefaultConfig(dir)
	store, err := New(config)
	if err != nil {
		b.Fatalf("Failed to create snapshot store: %v", err)
	}
	defer store.Close()

	numUIDs := 10000
	for i := 0; i < numUIDs; i++ {
		row := []byte(fmt.Sprintf("row%010d", i))
		store.PutRow(uint64(i), 1, row)
	}

	time.Sleep(500 * time.Millisecond)

	// Query for uids that were never written.
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		uid := uint64(numUIDs + i)
		_, found, err := store.GetRow(uid, 1)
		if err != nil {
			b.Fatalf("GetRow failed: %v", err)
		}
		if found {
			b.Fatalf("unwritten uid found!")
		}
	}
	b.StopTimer()

	duration := b.Elapsed()
	opsPerSec := float64(b.N) / duration.Seconds()
	b.ReportMetric(opsPerSec, "ops/sec")
}

func BenchmarkUpdateExisting(b *testing.B) {
	dir := fmt.Sprintf("/tmp/lsm-bench-update-%d", time.Now().UnixNano())
	defer os.RemoveAll(dir)

	config := DefaultConfig(dir)
	store, err := New(config)
	if err != nil {
		b.Fatalf("Failed to create snapshot store: %v", err)
	}
	defer store.Close()

	numUIDs := 1000
	for i := 0; i < numUIDs; i++ {
		row := []byte(fmt.Sprintf("row%010d", i))
		store.PutRow(uint64(i), 1, row)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		uid := uint64(rand.Intn(numUIDs))
		row := []byte(fmt.Sprintf("newrow%010d", i))
		if err := store.PutRow(uid, 1, row); err != nil {
			b.Fatalf("PutRow failed: %v", err)
		}
	}
	b.StopTimer()

	duration := b.Elapsed()
	opsPerSec := float64(b.N) / duration.Seconds()
	b.ReportMetric(opsPerSec, "ops/sec")
}
