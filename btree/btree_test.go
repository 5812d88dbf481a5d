package btree

import (
	"path/filepath"
	"testing"
)

func openTestTree(t *testing.T, pageSize uint32) *Tree {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.btdb")
	pager, err := OpenFilePager(path, pageSize, 64, nil)
	if err != nil {
		t.Fatalf("OpenFilePager: %v", err)
	}
	cfg := DefaultConfig()
	cfg.PageSize = pageSize
	tree, err := Open(pager, cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return tree
}

func TestInsertGetRoundTrip(t *testing.T) {
	tree := openTestTree(t, 4096)
	defer tree.Close()

	pairs := map[string]string{
		"apple":  "red",
		"banana": "yellow",
		"cherry": "dark red",
		"date":   "brown",
	}
	for k, v := range pairs {
		if err := tree.Insert([]byte(k), []byte(v)); err != nil {
			t.Fatalf("Insert(%q): %v", k, err)
		}
	}
	for k, v := range pairs {
		got, err := tree.Get([]byte(k))
		if err != nil {
			t.Fatalf("Get(%q): %v", k, err)
		}
		if string(got) != v {
			t.Errorf("Get(%q) = %q, want %q", k, got, v)
		}
	}
}

func TestInsertDuplicateRejected(t *testing.T) {
	tree := openTestTree(t, 4096)
	defer tree.Close()

	if err := tree.Insert([]byte("k"), []byte("v1")); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := tree.Insert([]byte("k"), []byte("v2")); err != ErrDuplicate {
		t.Fatalf("second insert = %v, want ErrDuplicate", err)
	}
}

func TestGetMissingKey(t *testing.T) {
	tree := openTestTree(t, 4096)
	defer tree.Close()

	if _, err := tree.Get([]byte("nope")); err != ErrCellNotFound {
		t.Fatalf("Get(missing) = %v, want ErrCellNotFound", err)
	}
}

func TestOverflowValue(t *testing.T) {
	tree := openTestTree(t, 512)
	defer tree.Close()

	bigVal := make([]byte, 2000)
	for i := range bigVal {
		bigVal[i] = byte(i % 256)
	}
	if err := tree.Insert([]byte("big"), bigVal); err != nil {
		t.Fatalf("Insert big value: %v", err)
	}
	got, err := tree.Get([]byte("big"))
	if err != nil {
		t.Fatalf("Get big value: %v", err)
	}
	if len(got) != len(bigVal) {
		t.Fatalf("Get big value len = %d, want %d", len(got), len(bigVal))
	}
	for i := range bigVal {
		if got[i] != bigVal[i] {
			t.Fatalf("Get big value[%d] = %d, want %d", i, got[i], bigVal[i])
		}
	}
}
