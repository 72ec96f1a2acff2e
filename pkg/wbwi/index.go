// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package wbwi

// Index is the ordered container of Entry values a batch maintains over
// its log. Two backends implement it: a hand-rolled skiplist and a btree-
// backed "rbtree" stand-in; both compare entries with the same
// entryComparator, so swapping backends never changes iteration order.
type Index interface {
	// Insert adds e to the index. The caller owns e's allocation (batches
	// allocate entries from an entryArena so pointers stay stable for the
	// batch's lifetime); Insert never copies it.
	Insert(e *Entry)
	// Remove deletes e from the index. Used only in overwrite mode, to
	// relocate an existing (cf, key) entry to a new offset.
	Remove(e *Entry)
	// Get returns the entry with the same column family and user key as
	// (cfID, key), ignoring insertion sequence (see sameKey), or nil if
	// none exists. Where several entries share the key, it returns the
	// first in index order, the newest.
	Get(cfID uint32, key []byte) *Entry
	// NewIterator returns a fresh cursor over the index.
	NewIterator() IndexIterator
	// Len reports the number of entries currently indexed.
	Len() int
}

// IndexIterator is a cursor over an Index, seekable in both directions.
// It ranges over the entries of every column family; DeltaIterator is
// responsible for stopping it at a column family boundary.
type IndexIterator interface {
	// SeekGE positions the cursor at the first entry >= search. search is
	// typically built with searchEntry or minEntry.
	SeekGE(search *Entry)
	// SeekLT positions the cursor at the last entry < search.
	SeekLT(search *Entry)
	// First positions the cursor at the index's first entry.
	First()
	// Last positions the cursor at the index's last entry.
	Last()
	// Next advances the cursor by one entry.
	Next()
	// Prev retreats the cursor by one entry.
	Prev()
	// Valid reports whether the cursor is positioned on an entry.
	Valid() bool
	// Entry returns the entry the cursor is positioned on. Valid must be
	// true.
	Entry() *Entry
}

// newIndex constructs the ordered index backend named by kind. The empty
// string selects the package default, "rbtree"; any other unrecognized
// name falls back to the skiplist backend rather than failing, matching
// the liberal string-selected-backend convention the design calls for.
func newIndex(kind string, cmp *entryComparator) Index {
	switch kind {
	case "", "rbtree":
		return newBTreeIndex(cmp)
	case "skiplist":
		return newSkiplistIndex(cmp)
	default:
		return newSkiplistIndex(cmp)
	}
}
