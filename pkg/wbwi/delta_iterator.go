// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package wbwi

import "github.com/cockroachdb/errors"

// DeltaIterator is a cursor over one column family's slice of a batch's
// pending mutations, in key order. It never touches a base store; it is
// also the building block BaseDeltaIterator wraps to get the delta side
// of its merge.
type DeltaIterator struct {
	batch *IndexedBatch
	cfID  uint32
	it    IndexIterator
}

func newDeltaIterator(b *IndexedBatch, cfID uint32) *DeltaIterator {
	return &DeltaIterator{batch: b, cfID: cfID, it: b.index.NewIterator()}
}

// SeekGE positions the cursor at the first pending mutation >= key.
func (d *DeltaIterator) SeekGE(key []byte) { d.it.SeekGE(searchEntry(d.cfID, key)) }

// SeekLT positions the cursor at the last pending mutation < key.
func (d *DeltaIterator) SeekLT(key []byte) { d.it.SeekLT(searchEntry(d.cfID, key)) }

// First positions the cursor at the column family's first pending
// mutation. It seeks to the (cf_id, kFlagMin) sentinel described in the
// design rather than assuming an empty key sorts first under whatever
// comparator this column family uses.
func (d *DeltaIterator) First() { d.it.SeekGE(minEntry(d.cfID)) }

// Last positions the cursor at the column family's last pending
// mutation, by seeking just short of the next column family's start.
func (d *DeltaIterator) Last() { d.it.SeekLT(minEntry(d.cfID + 1)) }

// Next advances the cursor by one pending mutation.
func (d *DeltaIterator) Next() { d.it.Next() }

// Prev retreats the cursor by one pending mutation.
func (d *DeltaIterator) Prev() { d.it.Prev() }

// Valid reports whether the cursor is positioned on a pending mutation
// belonging to this iterator's column family.
func (d *DeltaIterator) Valid() bool {
	return d.it.Valid() && d.it.Entry().CFID == d.cfID
}

// Record decodes the mutation the cursor is positioned on. Valid must be
// true.
func (d *DeltaIterator) Record() Record {
	rec, _, err := DecodeRecord(d.batch.log.data[d.it.Entry().Offset:])
	if err != nil {
		panic(errors.NewAssertionErrorWithWrappedErrf(err, "wbwi: decoding indexed entry at offset %d", d.it.Entry().Offset))
	}
	if !rec.Tag.IsKeyed() {
		panic(errors.AssertionFailedf("wbwi: indexed entry at offset %d decoded to unkeyed tag %s", d.it.Entry().Offset, rec.Tag))
	}
	return rec
}

// Error reports any error encountered positioning the cursor. DeltaIterator
// walks an in-memory index built from records already validated when they
// were appended, so it never fails on its own; it exists so
// BaseDeltaIterator.Status can fold delta-side errors in uniformly with
// base-side ones.
func (d *DeltaIterator) Error() error { return nil }

// Close releases the iterator. DeltaIterator holds no resources beyond
// what the garbage collector already tracks; Close exists so callers can
// treat it like any other iterator in a defer.
func (d *DeltaIterator) Close() error { return nil }
