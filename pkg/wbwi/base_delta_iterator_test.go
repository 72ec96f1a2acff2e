// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package wbwi

import (
	"bytes"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

// sliceIterator is a fake Iterator over a sorted, in-memory key-value
// slice, standing in for a store's own snapshot iterator in tests.
type sliceIterator struct {
	keys, values [][]byte
	pos          int // -1 and len(keys) are the two invalid positions.
}

func newSliceIterator(kvs ...string) *sliceIterator {
	it := &sliceIterator{pos: -1}
	for i := 0; i+1 < len(kvs); i += 2 {
		it.keys = append(it.keys, []byte(kvs[i]))
		it.values = append(it.values, []byte(kvs[i+1]))
	}
	return it
}

func (it *sliceIterator) SeekGE(key []byte) {
	it.pos = len(it.keys)
	for i, k := range it.keys {
		if bytes.Compare(k, key) >= 0 {
			it.pos = i
			break
		}
	}
}

func (it *sliceIterator) SeekLT(key []byte) {
	it.pos = -1
	for i, k := range it.keys {
		if bytes.Compare(k, key) >= 0 {
			break
		}
		it.pos = i
	}
}

func (it *sliceIterator) First() {
	it.pos = -1
	if len(it.keys) > 0 {
		it.pos = 0
	}
}

func (it *sliceIterator) Last() {
	it.pos = len(it.keys) - 1
}

func (it *sliceIterator) Next() {
	if it.pos < len(it.keys) {
		it.pos++
	}
}

func (it *sliceIterator) Prev() {
	if it.pos >= 0 {
		it.pos--
	}
}

func (it *sliceIterator) Valid() bool { return it.pos >= 0 && it.pos < len(it.keys) }

func (it *sliceIterator) Key() []byte { return it.keys[it.pos] }

func (it *sliceIterator) Value() []byte { return it.values[it.pos] }

// TestScenarioS5BaseDeltaOverlay mirrors scenario S5.
func TestScenarioS5BaseDeltaOverlay(t *testing.T) {
	base := newSliceIterator("a", "A", "b", "B", "c", "C")
	b := New(Options{OverwriteKey: true})
	require.NoError(t, b.Put(0, []byte("b"), []byte("B2")))
	require.NoError(t, b.Delete(0, []byte("c")))

	it, err := b.NewBaseDeltaIterator(0, base)
	require.NoError(t, err)

	var fwd [][2]string
	for it.First(); it.Valid(); it.Next() {
		v, err := it.Value()
		require.NoError(t, err)
		fwd = append(fwd, [2]string{string(it.Key()), string(v)})
	}
	require.Equal(t, [][2]string{{"a", "A"}, {"b", "B2"}}, fwd)

	var rev [][2]string
	for it.Last(); it.Valid(); it.Prev() {
		v, err := it.Value()
		require.NoError(t, err)
		rev = append(rev, [2]string{string(it.Key()), string(v)})
	}
	require.Equal(t, [][2]string{{"b", "B2"}, {"a", "A"}}, rev)
}

func TestBaseDeltaIteratorRequiresOverwriteKey(t *testing.T) {
	b := New(Options{})
	_, err := b.NewBaseDeltaIterator(0, newSliceIterator())
	require.ErrorIs(t, err, ErrNotSupported)
}

// TestBaseDeltaIteratorDirectionReversal exercises invariant 6: from any
// valid position, prev-then-next (or next-then-prev) returns to the same
// (key, value).
func TestBaseDeltaIteratorDirectionReversal(t *testing.T) {
	base := newSliceIterator("a", "A", "c", "C", "e", "E")
	b := New(Options{OverwriteKey: true})
	require.NoError(t, b.Put(0, []byte("b"), []byte("B")))
	require.NoError(t, b.Put(0, []byte("d"), []byte("D")))

	it, err := b.NewBaseDeltaIterator(0, base)
	require.NoError(t, err)

	it.First() // a
	it.Next()  // b
	it.Next()  // c
	require.True(t, it.Valid())
	key, val := append([]byte{}, it.Key()...), mustValue(t, it)
	require.Equal(t, "c", string(key))

	it.Prev() // b
	it.Next() // back to c
	require.True(t, it.Valid())
	require.Equal(t, key, it.Key())
	require.Equal(t, val, mustValue(t, it))

	it.Prev() // c -> b
	require.True(t, it.Valid())
	key2, val2 := append([]byte{}, it.Key()...), mustValue(t, it)
	require.Equal(t, "b", string(key2))

	it.Next() // b -> c
	it.Prev() // back to b
	require.True(t, it.Valid())
	require.Equal(t, key2, it.Key())
	require.Equal(t, val2, mustValue(t, it))
}

func mustValue(t *testing.T, it *BaseDeltaIterator) []byte {
	v, err := it.Value()
	require.NoError(t, err)
	return append([]byte{}, v...)
}

func TestBaseDeltaIteratorMergeOperand(t *testing.T) {
	base := newSliceIterator("k", "base")
	b := New(Options{OverwriteKey: true})
	require.NoError(t, b.Merge(0, []byte("k"), []byte("+1")))

	it, err := b.NewBaseDeltaIterator(0, base)
	require.NoError(t, err)
	it.SetMergeOperator(concatMerge{})

	it.First()
	require.True(t, it.Valid())
	require.Equal(t, "k", string(it.Key()))
	v, err := it.Value()
	require.NoError(t, err)
	require.Equal(t, "base+1", string(v))
}

func TestBaseDeltaIteratorNextOnInvalidSetsNotSupported(t *testing.T) {
	base := newSliceIterator("a", "A")
	b := New(Options{OverwriteKey: true})
	it, err := b.NewBaseDeltaIterator(0, base)
	require.NoError(t, err)

	it.SeekGE([]byte("z")) // past everything; leaves the cursor invalid.
	require.False(t, it.Valid())
	require.NoError(t, it.Status())

	it.Next()
	require.ErrorIs(t, it.Status(), ErrNotSupported)

	it.Prev()
	require.ErrorIs(t, it.Status(), ErrNotSupported, "Status sticks until the next seek")

	it.First()
	require.NoError(t, it.Status(), "a fresh seek clears a prior Status")
}

// erroringIterator wraps sliceIterator to inject a base-side error,
// exercising BaseDeltaIterator.Status's base-error fold-in.
type erroringIterator struct {
	*sliceIterator
	err error
}

func (it *erroringIterator) Error() error { return it.err }

func TestBaseDeltaIteratorStatusFoldsInBaseError(t *testing.T) {
	base := &erroringIterator{sliceIterator: newSliceIterator("a", "A")}
	b := New(Options{OverwriteKey: true})
	require.NoError(t, b.Put(0, []byte("b"), []byte("B")))

	it, err := b.NewBaseDeltaIterator(0, base)
	require.NoError(t, err)

	it.First()
	require.True(t, it.Valid())
	require.NoError(t, it.Status())

	base.err = errors.New("read failed")
	require.ErrorIs(t, it.Status(), base.err)
}

func TestBaseDeltaIteratorMergeOperandWithoutOperatorReturnsRaw(t *testing.T) {
	base := newSliceIterator("k", "base")
	b := New(Options{OverwriteKey: true})
	require.NoError(t, b.Merge(0, []byte("k"), []byte("+1")))

	it, err := b.NewBaseDeltaIterator(0, base)
	require.NoError(t, err)

	it.First()
	v, err := it.Value()
	require.NoError(t, err)
	require.Equal(t, "+1", string(v))
}
