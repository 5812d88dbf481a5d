package btree

import (
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tsvnode/vnode-core/metrics"
)

// TestRootSplit forces enough inserts into a small page to drive a leaf
// root past capacity and exercise balanceDeeperLeaf.
func TestRootSplit(t *testing.T) {
	tree := openTestTree(t, 256)
	defer tree.Close()

	const n = 64
	for i := 0; i < n; i++ {
		k := []byte(fmt.Sprintf("key-%04d", i))
		v := []byte(fmt.Sprintf("value-%04d", i))
		if err := tree.Insert(k, v); err != nil {
			t.Fatalf("Insert(%s): %v", k, err)
		}
	}

	for i := 0; i < n; i++ {
		k := []byte(fmt.Sprintf("key-%04d", i))
		want := fmt.Sprintf("value-%04d", i)
		got, err := tree.Get(k)
		if err != nil {
			t.Fatalf("Get(%s): %v", k, err)
		}
		if string(got) != want {
			t.Errorf("Get(%s) = %q, want %q", k, got, want)
		}
	}

	root, err := tree.pager.FetchPage(tree.pager.RootPageNo())
	if err != nil {
		t.Fatalf("FetchPage(root): %v", err)
	}
	if root.IsLeaf() {
		t.Errorf("expected root to have split into an interior page after %d inserts", n)
	}
}

// TestMultilevelGrowth inserts enough keys into a small-page tree to
// force the interior root itself to overflow and split, exercising
// balanceDeeperInterior on top of the leaf-level balancing TestRootSplit
// already covers.
func TestMultilevelGrowth(t *testing.T) {
	tree := openTestTree(t, 256)
	defer tree.Close()

	const n = 512
	for i := 0; i < n; i++ {
		k := []byte(fmt.Sprintf("key-%06d", i))
		v := []byte(fmt.Sprintf("value-%06d", i))
		if err := tree.Insert(k, v); err != nil {
			t.Fatalf("Insert(%s): %v", k, err)
		}
	}

	for i := 0; i < n; i += 7 {
		k := []byte(fmt.Sprintf("key-%06d", i))
		want := fmt.Sprintf("value-%06d", i)
		got, err := tree.Get(k)
		if err != nil {
			t.Fatalf("Get(%s): %v", k, err)
		}
		if string(got) != want {
			t.Errorf("Get(%s) = %q, want %q", k, got, want)
		}
	}

	root, err := tree.pager.FetchPage(tree.pager.RootPageNo())
	if err != nil {
		t.Fatalf("FetchPage(root): %v", err)
	}
	if root.IsLeaf() {
		t.Fatalf("expected root to be interior after %d inserts", n)
	}
}

// TestBalanceMetricsObserved checks that a Tree opened with a Metrics
// collector reports root-growth events through BtreeBalanceDeeper.
func TestBalanceMetricsObserved(t *testing.T) {
	reg := prometheus.NewRegistry()
	collectors := metrics.New(reg)

	path := t.TempDir() + "/metrics.btdb"
	pager, err := OpenFilePager(path, 256, 64, nil)
	if err != nil {
		t.Fatalf("OpenFilePager: %v", err)
	}
	cfg := DefaultConfig()
	cfg.PageSize = 256
	cfg.Metrics = collectors
	tree, err := Open(pager, cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer tree.Close()

	for i := 0; i < 64; i++ {
		k := []byte(fmt.Sprintf("key-%04d", i))
		v := []byte(fmt.Sprintf("value-%04d", i))
		if err := tree.Insert(k, v); err != nil {
			t.Fatalf("Insert(%s): %v", k, err)
		}
	}

	if got := testutil.ToFloat64(collectors.BtreeBalanceDeeper); got <= 0 {
		t.Errorf("BtreeBalanceDeeper = %v, want > 0 after forcing root growth", got)
	}
}
