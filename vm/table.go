package vm

import (
	"unsafe"
)

// tableMaxLoad is the load factor (live entries plus tombstones over
// capacity) that triggers growth.
const tableMaxLoad = 0.75

// entry is one slot of a Table. An empty key with a True value is a
// tombstone; any other empty slot has never been used.
type entry struct {
	key   *ObjString
	value Value
}

var entrySize = int(unsafe.Sizeof(entry{}))

func (e *entry) isTombstone() bool {
	return e.key == nil && e.value == True
}

// Table is an open-addressed hash map from interned strings to values.
// Keys compare by identity, which interning makes equivalent to content.
// The zero Table is empty and ready to use.
type Table struct {
	count   int // live entries plus tombstones
	live    int
	entries []entry

	mem allocator
}

// Len returns the number of live entries.
func (t *Table) Len() int {
	return t.live
}

// Get returns the value stored under key.
func (t *Table) Get(key *ObjString) (Value, bool) {
	if t.live == 0 {
		return Nil, false
	}
	e := findEntry(t.entries, key)
	if e.key == nil {
		return Nil, false
	}
	return e.value, true
}

// Set inserts or updates key and reports whether the key was new.
func (t *Table) Set(key *ObjString, value Value) bool {
	if float64(t.count+1) > float64(len(t.entries))*tableMaxLoad {
		t.adjustCapacity(growCapacity(len(t.entries)))
	}

	e := findEntry(t.entries, key)
	isNew := e.key == nil
	if isNew {
		t.live++
		// Reusing a tombstone does not change the load.
		if !e.isTombstone() {
			t.count++
		}
	}
	e.key = key
	e.value = value
	return isNew
}

// Delete removes key, leaving a tombstone, and reports whether it existed.
func (t *Table) Delete(key *ObjString) bool {
	if t.live == 0 {
		return false
	}
	e := findEntry(t.entries, key)
	if e.key == nil {
		return false
	}
	e.key = nil
	e.value = True
	t.live--
	return true
}

// AddAll copies every entry of from into t.
func (t *Table) AddAll(from *Table) {
	for i := range from.entries {
		e := &from.entries[i]
		if e.key != nil {
			t.Set(e.key, e.value)
		}
	}
}

// FindString looks up an interned string by content without allocating.
func (t *Table) FindString(chars string, hash uint32) *ObjString {
	if t.live == 0 {
		return nil
	}
	mask := uint32(len(t.entries) - 1)
	index := hash & mask
	for {
		e := &t.entries[index]
		if e.key == nil {
			if !e.isTombstone() {
				return nil
			}
		} else if e.key.Hash == hash && e.key.Chars == chars {
			return e.key
		}
		index = (index + 1) & mask
	}
}

// Each calls fn for every live entry.
func (t *Table) Each(fn func(key *ObjString, value Value)) {
	for i := range t.entries {
		if e := &t.entries[i]; e.key != nil {
			fn(e.key, e.value)
		}
	}
}

// Free releases the table's storage.
func (t *Table) Free() {
	if t.mem != nil {
		t.mem.reallocate(len(t.entries)*entrySize, 0)
	}
	t.entries = nil
	t.count = 0
	t.live = 0
}

// findEntry returns the slot for key: its current slot if present,
// otherwise the first tombstone passed or the empty slot that ended the
// probe. entries must be non-empty.
func findEntry(entries []entry, key *ObjString) *entry {
	mask := uint32(len(entries) - 1)
	index := key.Hash & mask
	var tombstone *entry
	for {
		e := &entries[index]
		switch {
		case e.key == key:
			return e
		case e.key == nil && !e.isTombstone():
			if tombstone != nil {
				return tombstone
			}
			return e
		case e.key == nil && tombstone == nil:
			tombstone = e
		}
		index = (index + 1) & mask
	}
}

func (t *Table) adjustCapacity(capacity int) {
	entries := make([]entry, capacity)

	t.count = 0
	for i := range t.entries {
		e := &t.entries[i]
		if e.key == nil {
			continue
		}
		dest := findEntry(entries, e.key)
		dest.key = e.key
		dest.value = e.value
		t.count++
	}

	if t.mem != nil {
		t.mem.reallocate(len(t.entries)*entrySize, capacity*entrySize)
	}
	t.entries = entries
}

// removeWhite deletes every entry whose key was not marked in the current
// collection. Only the intern table uses it.
func (t *Table) removeWhite(h *Heap) {
	for i := range t.entries {
		e := &t.entries[i]
		if e.key != nil && !h.isMarked(e.key.Ref()) {
			e.key = nil
			e.value = True
			t.live--
		}
	}
}

// mark marks every key and value in the table.
func (t *Table) mark(h *Heap) {
	for i := range t.entries {
		e := &t.entries[i]
		if e.key != nil {
			h.MarkObject(e.key)
			h.MarkValue(e.value)
		}
	}
}
