// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package wbwi

import "github.com/google/btree"

// btreeDegree is the branching factor passed to btree.New. google/btree
// recommends values in the 32-256 range for in-memory trees.
const btreeDegree = 64

// btreeIndex is the "rbtree" backend, named for the threaded red-black
// tree the design describes. google/btree implements a B-tree rather than
// a threaded RB-tree, so this backend re-seeks by the current entry's key
// on every Next/Prev instead of following an O(1) in-tree successor
// pointer; the tradeoff is accepted in exchange for a real, well-tested
// dependency instead of a second hand-rolled tree structure.
type btreeIndex struct {
	cmp  *entryComparator
	tree *btree.BTree
}

func newBTreeIndex(cmp *entryComparator) *btreeIndex {
	return &btreeIndex{cmp: cmp, tree: btree.New(btreeDegree)}
}

type btreeEntryItem struct {
	cmp   *entryComparator
	entry *Entry
}

func (a btreeEntryItem) Less(than btree.Item) bool {
	return a.cmp.Compare(a.entry, than.(btreeEntryItem).entry) < 0
}

func (b *btreeIndex) item(e *Entry) btreeEntryItem {
	return btreeEntryItem{cmp: b.cmp, entry: e}
}

func (b *btreeIndex) Insert(e *Entry) { b.tree.ReplaceOrInsert(b.item(e)) }

func (b *btreeIndex) Remove(e *Entry) { b.tree.Delete(b.item(e)) }

func (b *btreeIndex) Get(cfID uint32, key []byte) *Entry {
	search := b.item(searchEntry(cfID, key))
	var found *Entry
	b.tree.AscendGreaterOrEqual(search, func(i btree.Item) bool {
		if e := i.(btreeEntryItem).entry; b.cmp.sameKey(e, search.entry) {
			found = e
		}
		return false
	})
	return found
}

func (b *btreeIndex) Len() int { return b.tree.Len() }

func (b *btreeIndex) NewIterator() IndexIterator { return &btreeIterator{idx: b} }

type btreeIterator struct {
	idx   *btreeIndex
	cur   *Entry
	valid bool
}

func (it *btreeIterator) SeekGE(e *Entry) {
	search := it.idx.item(e)
	it.valid = false
	it.idx.tree.AscendGreaterOrEqual(search, func(i btree.Item) bool {
		it.cur, it.valid = i.(btreeEntryItem).entry, true
		return false
	})
}

func (it *btreeIterator) SeekLT(e *Entry) {
	search := it.idx.item(e)
	it.valid = false
	it.idx.tree.DescendLessOrEqual(search, func(i btree.Item) bool {
		e := i.(btreeEntryItem).entry
		if it.idx.cmp.Compare(e, search.entry) >= 0 {
			return true // equal to the search key: keep descending past it
		}
		it.cur, it.valid = e, true
		return false
	})
}

func (it *btreeIterator) First() {
	it.valid = false
	it.idx.tree.Ascend(func(i btree.Item) bool {
		it.cur, it.valid = i.(btreeEntryItem).entry, true
		return false
	})
}

func (it *btreeIterator) Last() {
	it.valid = false
	it.idx.tree.Descend(func(i btree.Item) bool {
		it.cur, it.valid = i.(btreeEntryItem).entry, true
		return false
	})
}

func (it *btreeIterator) Next() {
	if !it.valid {
		return
	}
	pivot := it.idx.item(it.cur)
	skippedSelf, found := false, false
	it.idx.tree.AscendGreaterOrEqual(pivot, func(i btree.Item) bool {
		if !skippedSelf {
			skippedSelf = true
			return true
		}
		it.cur, found = i.(btreeEntryItem).entry, true
		return false
	})
	it.valid = found
}

func (it *btreeIterator) Prev() {
	if !it.valid {
		return
	}
	pivot := it.idx.item(it.cur)
	skippedSelf, found := false, false
	it.idx.tree.DescendLessOrEqual(pivot, func(i btree.Item) bool {
		if !skippedSelf {
			skippedSelf = true
			return true
		}
		it.cur, found = i.(btreeEntryItem).entry, true
		return false
	})
	it.valid = found
}

func (it *btreeIterator) Valid() bool { return it.valid }

func (it *btreeIterator) Entry() *Entry { return it.cur }
