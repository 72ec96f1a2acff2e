// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package wbwi

// Iterator is the read side of a base store's own iterator: a cursor a
// caller already has open over a snapshot of the underlying store.
// BaseDeltaIterator overlays a batch's pending mutations on top of one.
type Iterator interface {
	SeekGE(key []byte)
	SeekLT(key []byte)
	First()
	Last()
	Next()
	Prev()
	Valid() bool
	Key() []byte
	Value() []byte
}

// errorIterator is implemented by a base Iterator that can fail, e.g. on a
// storage read error. BaseDeltaIterator checks for it with a type
// assertion, the same way Close checks for an optional Close() error.
type errorIterator interface {
	Error() error
}

// BaseDeltaIterator merges a base store iterator with a batch's delta
// iterator for one column family, presenting the two as a single ordered
// cursor: a delta entry shadows a base entry with the same key, and a
// delta tombstone (Delete, SingleDelete, or DeleteRange keyed at its
// begin) suppresses the base entry it shadows instead of being returned
// itself.
//
// It requires the batch to be in OverwriteKey mode, since a non-
// overwrite batch can hold several stale entries for the same key and
// there is no sensible way to decide which one shadows the base.
type BaseDeltaIterator struct {
	base    Iterator
	delta   *DeltaIterator
	mergeOp MergeOperator
	cmp     KeyComparator

	forward       bool
	currentAtBase bool
	equalKeys     bool
	valid         bool
	status        error
}

func newBaseDeltaIterator(b *IndexedBatch, cfID uint32, base Iterator) *BaseDeltaIterator {
	return &BaseDeltaIterator{
		base:    base,
		delta:   newDeltaIterator(b, cfID),
		cmp:     b.cmp.comparatorFor(cfID),
		forward: true,
	}
}

// SetMergeOperator installs the operator Value uses to fold a pending
// merge operand onto the base value it shadows. Without one, Value
// returns a merge entry's raw operand rather than a resolved value.
func (it *BaseDeltaIterator) SetMergeOperator(op MergeOperator) { it.mergeOp = op }

// SeekGE positions the cursor at the first key >= key across both sides.
func (it *BaseDeltaIterator) SeekGE(key []byte) {
	it.status = nil
	it.forward = true
	it.base.SeekGE(key)
	it.delta.SeekGE(key)
	it.updateCurrent()
}

// SeekLT positions the cursor at the last key < key across both sides.
func (it *BaseDeltaIterator) SeekLT(key []byte) {
	it.status = nil
	it.forward = false
	it.base.SeekLT(key)
	it.delta.SeekLT(key)
	it.updateCurrent()
}

// First positions the cursor at the merged iteration's first key.
func (it *BaseDeltaIterator) First() {
	it.status = nil
	it.forward = true
	it.base.First()
	it.delta.First()
	it.updateCurrent()
}

// Last positions the cursor at the merged iteration's last key.
func (it *BaseDeltaIterator) Last() {
	it.status = nil
	it.forward = false
	it.base.Last()
	it.delta.Last()
	it.updateCurrent()
}

// Next advances the cursor by one key. Reversing direction after a Prev
// re-seeks both sides past the key Prev last returned, rather than trying
// to patch up whichever side wasn't current in place.
func (it *BaseDeltaIterator) Next() { it.move(true) }

// Prev retreats the cursor by one key, with the same direction-reversal
// handling as Next.
func (it *BaseDeltaIterator) Prev() { it.move(false) }

func (it *BaseDeltaIterator) move(forward bool) {
	if !it.valid {
		op := "Prev"
		if forward {
			op = "Next"
		}
		it.status = notSupportedf("wbwi: %s() on invalid iterator", op)
		return
	}
	if it.forward != forward {
		key := it.Key()
		it.forward = forward
		if forward {
			it.base.SeekGE(key)
			if it.base.Valid() && it.cmp(it.base.Key(), key) == 0 {
				it.base.Next()
			}
			it.delta.SeekGE(key)
			if it.delta.Valid() && it.cmp(it.delta.Record().Key, key) == 0 {
				it.delta.Next()
			}
		} else {
			it.base.SeekLT(key)
			it.delta.SeekLT(key)
		}
		it.updateCurrent()
		return
	}
	it.advance()
	it.updateCurrent()
}

func (it *BaseDeltaIterator) advanceBase() {
	if it.forward {
		it.base.Next()
	} else {
		it.base.Prev()
	}
}

func (it *BaseDeltaIterator) advanceDelta() {
	if it.forward {
		it.delta.Next()
	} else {
		it.delta.Prev()
	}
}

func (it *BaseDeltaIterator) advance() {
	switch {
	case it.equalKeys:
		it.advanceBase()
		it.advanceDelta()
	case it.currentAtBase:
		it.advanceBase()
	default:
		it.advanceDelta()
	}
}

func (it *BaseDeltaIterator) deltaIsTombstone() bool {
	switch it.delta.Record().Tag {
	case TagDeletion, TagColumnFamilyDeletion,
		TagSingleDeletion, TagColumnFamilySingleDeletion,
		TagRangeDeletion, TagColumnFamilyRangeDeletion:
		return true
	default:
		return false
	}
}

// updateCurrent positions the merge on whichever side holds the next key
// in the current direction, skipping delta tombstones by advancing past
// them (and the base entry they shadow, when the keys are equal) instead
// of ever surfacing a tombstone as a result.
func (it *BaseDeltaIterator) updateCurrent() {
	it.equalKeys = false
	for {
		if !it.base.Valid() {
			if !it.delta.Valid() {
				it.valid = false
				return
			}
			it.currentAtBase = false
			if it.deltaIsTombstone() {
				it.advanceDelta()
				continue
			}
			it.valid = true
			return
		}
		if !it.delta.Valid() {
			it.currentAtBase = true
			it.valid = true
			return
		}

		c := it.cmp(it.delta.Record().Key, it.base.Key())
		if !it.forward {
			c = -c
		}
		if c <= 0 {
			if c == 0 {
				it.equalKeys = true
			}
			it.currentAtBase = false
			if it.deltaIsTombstone() {
				if it.equalKeys {
					it.advance()
				} else {
					it.advanceDelta()
				}
				continue
			}
			it.valid = true
			return
		}
		it.currentAtBase = true
		it.valid = true
		return
	}
}

// Valid reports whether the cursor is positioned on a key.
func (it *BaseDeltaIterator) Valid() bool { return it.valid }

// Status reports the first error the cursor has encountered, checking its
// own operations first, then the base iterator's, then the delta
// iterator's. A nil Status does not imply Valid: exhausting both sides
// cleanly also leaves Status nil.
func (it *BaseDeltaIterator) Status() error {
	if it.status != nil {
		return it.status
	}
	if errIt, ok := it.base.(errorIterator); ok {
		if err := errIt.Error(); err != nil {
			return err
		}
	}
	return it.delta.Error()
}

// Key returns the key the cursor is positioned on. Valid must be true.
func (it *BaseDeltaIterator) Key() []byte {
	if it.currentAtBase {
		return it.base.Key()
	}
	return it.delta.Record().Key
}

// Value returns the value the cursor is positioned on. For a pending
// merge operand, it folds the operand onto the base value (if the delta
// and base keys are equal) using the merge operator set with
// SetMergeOperator; with none set, it returns the operand unresolved.
func (it *BaseDeltaIterator) Value() ([]byte, error) {
	if it.currentAtBase {
		return it.base.Value(), nil
	}
	rec := it.delta.Record()
	if rec.Tag != TagMerge && rec.Tag != TagColumnFamilyMerge {
		return rec.Value, nil
	}
	if it.mergeOp == nil {
		return rec.Value, nil
	}
	var base []byte
	if it.equalKeys {
		base = it.base.Value()
	}
	return it.mergeOp.FullMerge(it.Key(), base, [][]byte{rec.Value})
}

// Close releases the iterator's resources, including the base iterator.
func (it *BaseDeltaIterator) Close() error {
	it.delta.Close()
	if c, ok := it.base.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
