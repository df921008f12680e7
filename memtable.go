package kvengine

import (
	"bytes"
	"sort"
)

// memtable is the in-memory, key-ordered index from key to the most recent
// record observed for that key — live value or tombstone. At most one entry
// exists per key. Ordering is lexicographic over key bytes only; a record's
// timestamp and deleted flag never participate in ordering, matching the
// original engine's Ord implementation (key comparison only).
//
// memtable does not arbitrate by timestamp: it is strictly last-write-wins
// by call order at put/delete. This is safe only because the engine
// serializes writes and recovery folds segments in on-disk order.
type memtable struct {
	entries []record
	size    int
}

func newMemtable() *memtable {
	return &memtable{}
}

// find returns the index of key in m.entries and true if present, or the
// insertion point and false if absent.
func (m *memtable) find(key []byte) (int, bool) {
	i := sort.Search(len(m.entries), func(i int) bool {
		return bytes.Compare(m.entries[i].key, key) >= 0
	})
	if i < len(m.entries) && bytes.Equal(m.entries[i].key, key) {
		return i, true
	}
	return i, false
}

// put inserts or overwrites key with a live record. The size counter is
// adjusted by the delta in value length (or the full charge on insert).
func (m *memtable) put(key, value []byte, ts uint128) {
	r := record{key: cloneBytes(key), value: cloneBytes(value), timestamp: ts}

	i, ok := m.find(key)
	if ok {
		old := m.entries[i]
		oldLen := 0
		if !old.deleted {
			oldLen = len(old.value)
		}
		m.size += len(value) - oldLen
		m.entries[i] = r
		return
	}

	m.entries = append(m.entries, record{})
	copy(m.entries[i+1:], m.entries[i:])
	m.entries[i] = r
	m.size += charge(r)
}

// delete inserts or overwrites key with a tombstone. Deleting an absent key
// still leaves a tombstone behind: this is required so recovery folding
// never resurrects a key that an earlier segment deleted (see recover.go).
func (m *memtable) delete(key []byte, ts uint128) {
	r := record{key: cloneBytes(key), deleted: true, timestamp: ts}

	i, ok := m.find(key)
	if ok {
		old := m.entries[i]
		if !old.deleted {
			m.size -= len(old.value)
		}
		m.entries[i] = r
		return
	}

	m.entries = append(m.entries, record{})
	copy(m.entries[i+1:], m.entries[i:])
	m.entries[i] = r
	m.size += charge(r)
}

// get returns the stored record for key, live or tombstone, and whether one
// exists. A tombstone is a hit, distinct from "not found".
func (m *memtable) get(key []byte) (record, bool) {
	i, ok := m.find(key)
	if !ok {
		return record{}, false
	}
	return m.entries[i], true
}

// enumerateAll returns every stored record in key order, tombstones
// included. The returned slice is owned by the caller to mutate freely.
func (m *memtable) enumerateAll() []record {
	out := make([]record, len(m.entries))
	copy(out, m.entries)
	return out
}

// loadFromRecords replaces the memtable's contents with records, which the
// caller must supply already key-sorted and deduplicated, and recomputes the
// size counter from scratch.
func (m *memtable) loadFromRecords(records []record) {
	m.entries = records
	m.size = 0
	for _, r := range m.entries {
		m.size += charge(r)
	}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
