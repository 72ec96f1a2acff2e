// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package wbwi

import "math/rand"

// skiplistMaxHeight bounds the number of levels a node can occupy. 32
// levels comfortably covers batches far larger than anything this package
// expects to hold in memory at once.
const skiplistMaxHeight = 32

// skiplistBranching is the probability (1/skiplistBranching) that a node
// promoted to level i is also promoted to level i+1, the standard
// geometric level distribution pebble's own internal batch skiplist uses.
const skiplistBranching = 4

type sklNode struct {
	entry *Entry
	next  []*sklNode
	prev  *sklNode // level-0 only; Prev walks this regardless of search depth.
}

// skiplistIndex is a hand-rolled, non-concurrent skiplist ordered by
// entryComparator. It exists because no library in reach exposes the
// SeekGE/SeekLT cursor primitives DeltaIterator needs; its shape follows
// pebble's internal batch skiplist (geometric level promotion, a
// per-level head sentinel) without importing that package, since it lives
// under another module's internal/ tree. Unlike pebble's, its nodes are
// ordinary heap allocations, one per insert.
type skiplistIndex struct {
	cmp  *entryComparator
	head *sklNode
	tail *sklNode
	rnd  *rand.Rand
	size int
}

func newSkiplistIndex(cmp *entryComparator) *skiplistIndex {
	return &skiplistIndex{
		cmp:  cmp,
		head: &sklNode{next: make([]*sklNode, skiplistMaxHeight)},
		rnd:  rand.New(rand.NewSource(0)),
	}
}

func (s *skiplistIndex) randomHeight() int {
	h := 1
	for h < skiplistMaxHeight && s.rnd.Intn(skiplistBranching) == 0 {
		h++
	}
	return h
}

// findPredecessors fills preds[0:height] with, at each level, the last
// node strictly less than e, and returns the first node >= e (or nil).
func (s *skiplistIndex) findPredecessors(e *Entry, preds []*sklNode) *sklNode {
	cur := s.head
	for level := skiplistMaxHeight - 1; level >= 0; level-- {
		for cur.next[level] != nil && s.cmp.Compare(cur.next[level].entry, e) < 0 {
			cur = cur.next[level]
		}
		if level < len(preds) {
			preds[level] = cur
		}
	}
	return cur.next[0]
}

func (s *skiplistIndex) Insert(e *Entry) {
	var preds [skiplistMaxHeight]*sklNode
	s.findPredecessors(e, preds[:])
	height := s.randomHeight()
	n := &sklNode{entry: e, next: make([]*sklNode, height)}
	for level := 0; level < height; level++ {
		n.next[level] = preds[level].next[level]
		preds[level].next[level] = n
	}
	if preds[0] == s.head {
		n.prev = nil
	} else {
		n.prev = preds[0]
	}
	if n.next[0] != nil {
		n.next[0].prev = n
	} else {
		s.tail = n
	}
	s.size++
}

func (s *skiplistIndex) Remove(e *Entry) {
	var preds [skiplistMaxHeight]*sklNode
	target := s.findPredecessors(e, preds[:])
	if target == nil || target.entry != e {
		return
	}
	for level := 0; level < len(target.next); level++ {
		if preds[level].next[level] == target {
			preds[level].next[level] = target.next[level]
		}
	}
	if target.next[0] != nil {
		target.next[0].prev = target.prev
	} else {
		s.tail = target.prev
	}
	s.size--
}

func (s *skiplistIndex) Get(cfID uint32, key []byte) *Entry {
	search := searchEntry(cfID, key)
	n := s.findPredecessors(search, nil)
	if n != nil && s.cmp.sameKey(n.entry, search) {
		return n.entry
	}
	return nil
}

func (s *skiplistIndex) Len() int { return s.size }

func (s *skiplistIndex) NewIterator() IndexIterator {
	return &skiplistIterator{list: s}
}

type skiplistIterator struct {
	list *skiplistIndex
	cur  *sklNode
}

func (it *skiplistIterator) SeekGE(search *Entry) {
	it.cur = it.list.findPredecessors(search, nil)
}

func (it *skiplistIterator) SeekLT(search *Entry) {
	var preds [skiplistMaxHeight]*sklNode
	it.list.findPredecessors(search, preds[:])
	it.cur = preds[0]
	if it.cur == it.list.head {
		it.cur = nil
	}
}

func (it *skiplistIterator) First() { it.cur = it.list.head.next[0] }

func (it *skiplistIterator) Last() { it.cur = it.list.tail }

func (it *skiplistIterator) Next() {
	if it.cur != nil {
		it.cur = it.cur.next[0]
	}
}

func (it *skiplistIterator) Prev() {
	if it.cur != nil {
		it.cur = it.cur.prev
	}
}

func (it *skiplistIterator) Valid() bool { return it.cur != nil }

func (it *skiplistIterator) Entry() *Entry { return it.cur.entry }
