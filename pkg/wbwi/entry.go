// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package wbwi

import "math"

// entryFlag distinguishes a real index entry (one that points at a record
// in the log) from a sentinel entry constructed only to bound a seek.
type entryFlag uint8

const (
	flagNormal entryFlag = iota
	// flagMin marks a sentinel entry that compares less than every real
	// entry sharing its (column family, key) — used to build seek targets
	// like "the first entry of this column family" without needing an
	// actual key.
	flagMin
)

// Entry is the ordered index's descriptor: (column_family_id, offset,
// key_ref) from the design, specialized for Go so that "key_ref" is never
// a cached slice. A real entry's key is always re-read from the log at
// Offset; only a search entry (built transiently to pass to SeekGE /
// SeekLT) carries its key directly, as SearchKey.
type Entry struct {
	CFID   uint32
	Offset uint32
	// Seq is the insertion-order tiebreaker: a monotonic counter captured
	// when the entry was inserted into the index. A search entry (built by
	// searchEntry) sets this to math.MaxUint64 instead, so it sorts before
	// every real entry sharing its key; see searchEntry.
	Seq uint64
	// Flag is flagMin for seek-bound sentinels, flagNormal otherwise.
	Flag entryFlag
	// SearchKey holds the external key slice for a search entry. nil for
	// real entries and for flagMin sentinels.
	SearchKey []byte
}

// searchEntry builds a throwaway Entry carrying an external key, suitable
// for IndexIterator.SeekGE / IndexIterator.SeekLT / Index.Get. It does
// not correspond to any log record.
//
// Its Seq is set to the maximum representable value rather than zero: the
// comparator orders several entries sharing a key newest-first (the
// highest Seq sorts least), so a search entry must itself sort before
// every real entry with that key in order for SeekGE to land on the first
// (newest) one rather than skipping the whole run.
func searchEntry(cfID uint32, key []byte) *Entry {
	return &Entry{CFID: cfID, Seq: math.MaxUint64, SearchKey: key}
}

// minEntry builds the flagMin sentinel used to seek to the start of
// column family cfID.
func minEntry(cfID uint32) *Entry {
	return &Entry{CFID: cfID, Flag: flagMin}
}
