package lsm

import (
	"sort"
	"sync"
)

// MemTableEntry is a single row held in memory, keyed by its encoded
// (uid, ts) row key.
type MemTableEntry struct {
	RowKey   string
	Row      []byte
	Sequence uint64
	Deleted  bool
}

// MemTable is an in-memory sorted structure for staging recent row
// writes before they flush to an SSTable. It uses a sorted slice with
// binary search for simplicity.
type MemTable struct {
	mu      sync.RWMutex
	entries []MemTableEntry
	size    int // Approximate size in bytes
	maxSize int // Maximum size before flush
}

// NewMemTable creates a new memtable with the given maximum size
func NewMemTable(maxSize int) *MemTable {
	return &MemTable{
		entries: make([]MemTableEntry, 0, 1024),
		maxSize: maxSize,
	}
}

// Put inserts a row at rowKey with a sequence number
func (m *MemTable) Put(rowKey string, row []byte, seq uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Binary search to find insertion point
	idx := sort.Search(len(m.entries), func(i int) bool {
		return m.entries[i].RowKey >= rowKey
	})

	entry := MemTableEntry{
		RowKey:   rowKey,
		Row:      row,
		Sequence: seq,
		Deleted:  false,
	}

	// If the row key exists at this position, replace it
	if idx < len(m.entries) && m.entries[idx].RowKey == rowKey {
		oldSize := len(m.entries[idx].Row)
		m.entries[idx] = entry
		m.size += len(row) - oldSize
	} else {
		// Insert at the correct position
		m.entries = append(m.entries, MemTableEntry{})
		copy(m.entries[idx+1:], m.entries[idx:])
		m.entries[idx] = entry
		m.size += len(rowKey) + len(row) + 16 // key + row + overhead
	}
}

// Delete marks a row key as deleted with a tombstone
func (m *MemTable) Delete(rowKey string, seq uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Binary search to find insertion point
	idx := sort.Search(len(m.entries), func(i int) bool {
		return m.entries[i].RowKey >= rowKey
	})

	entry := MemTableEntry{
		RowKey:   rowKey,
		Row:      nil,
		Sequence: seq,
		Deleted:  true,
	}

	// If the row key exists at this position, replace it
	if idx < len(m.entries) && m.entries[idx].RowKey == rowKey {
		oldSize := len(m.entries[idx].Row)
		m.entries[idx] = entry
		m.size -= oldSize
	} else {
		// Insert tombstone at the correct position
		m.entries = append(m.entries, MemTableEntry{})
		copy(m.entries[idx+1:], m.entries[idx:])
		m.entries[idx] = entry
		m.size += len(rowKey) + 16 // key + overhead
	}
}

// Get retrieves a row for a row key.
// Returns row, sequence number, deleted flag, and found status
func (m *MemTable) Get(rowKey string) ([]byte, uint64, bool, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Binary search
	idx := sort.Search(len(m.entries), func(i int) bool {
		return m.entries[i].RowKey >= rowKey
	})

	if idx < len(m.entries) && m.entries[idx].RowKey == rowKey {
		entry := m.entries[idx]
		return entry.Row, entry.Sequence, entry.Deleted, true
	}

	return nil, 0, false, false
}

// Size returns the approximate size in bytes
func (m *MemTable) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

// IsFull returns true if the memtable has reached its maximum size
func (m *MemTable) IsFull() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size >= m.maxSize
}

// GetAllEntries returns all entries in sorted order for flushing to disk
func (m *MemTable) GetAllEntries() []MemTableEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Make a copy to avoid holding the lock during flush
	entries := make([]MemTableEntry, len(m.entries))
	copy(entries, m.entries)
	return entries
}

// Len returns the number of entries
func (m *MemTable) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
