// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package wbwi implements an indexed write batch: a staging area that
// accumulates a sequence of mutations (put, delete, single-delete,
// delete-range, merge) destined for an underlying ordered key-value store,
// while maintaining an in-memory ordered index over those pending mutations
// so the batch can itself be queried, iterated, and merged with a base
// store snapshot before anything is committed.
//
// The design is lifted from RocksDB's WriteBatchWithIndex: a log-structured
// mutation buffer (Log), a pluggable ordered index over that log (Index,
// with a skiplist and a btree-backed backend), and a two-cursor iterator
// that overlays the index on top of a base store iterator
// (BaseDeltaIterator). None of the three pieces touch a network or another
// process; the only blocking call in the package is GetFromBatchAndDB's
// delegation to the caller-supplied store.
package wbwi
