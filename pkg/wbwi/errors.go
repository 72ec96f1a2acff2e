// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package wbwi

import (
	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
)

// Sentinel errors for the kinds named in the design: every error this
// package constructs for one of these conditions is either the sentinel
// itself or wraps it via errors.Wrapf, so callers can test with errors.Is
// from either the standard library or github.com/cockroachdb/errors.
var (
	// ErrNotFound is returned when a key has no entry in the batch (and, for
	// GetFromBatchAndDB, not in the underlying store either).
	ErrNotFound = errors.New("wbwi: not found")

	// ErrCorruption is returned when the log's byte format cannot be decoded,
	// or when a rebuild finds a keyed-record count that disagrees with the
	// log header.
	ErrCorruption = errors.New("wbwi: corruption")

	// ErrNotSupported is returned for operations that are structurally
	// disallowed: Next/Prev on an invalid iterator, a duplicate merge under
	// overwrite mode without AllowDupMerge, or constructing a base+delta
	// iterator over a batch that isn't in overwrite mode.
	ErrNotSupported = errors.New("wbwi: not supported")

	// ErrInvalidArgument is returned when a required collaborator is
	// missing, e.g. GetFromBatchAndDB needing a merge operator that was
	// never configured.
	ErrInvalidArgument = errors.New("wbwi: invalid argument")

	// ErrMemoryLimit is returned by the log when an append would grow the
	// log past its configured MaxBytes.
	ErrMemoryLimit = errors.New("wbwi: memory limit exceeded")

	// ErrMergeInProgress is not a failure: GetFromBatch returns it when the
	// newest entries for the key are merge operands, which it cannot fold
	// without a merge operator, whether or not an older Put or Delete in the
	// batch terminates the chain. No base store is consulted. Callers that
	// want a final value should supply a merge operator and query through
	// GetFromBatchAndDB, which never returns this error.
	ErrMergeInProgress = errors.New("wbwi: merge in progress")
)

func notFoundf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrNotFound, format, args...)
}

func corruptionf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrCorruption, format, args...)
}

func notSupportedf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrNotSupported, format, args...)
}

func invalidArgumentf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidArgument, format, args...)
}

func memoryLimitf(size, max uint64) error {
	return errors.Wrapf(ErrMemoryLimit,
		"wbwi: appending would grow the log to %s, exceeding the %s limit",
		humanize.Bytes(size), humanize.Bytes(max))
}
