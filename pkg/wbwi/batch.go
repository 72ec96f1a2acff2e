// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package wbwi

import (
	"context"
	"sort"
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

var batchIDGen atomic.Uint64

// Store is the read side of the underlying key-value store a batch is
// staged against. GetFromBatchAndDB is the only place this package calls
// into one; everything else operates purely on the batch's own log and
// index.
type Store interface {
	// Get returns the value for (cfID, key), or an error satisfying
	// errors.Is(err, ErrNotFound) if it is absent. callback, when non-nil,
	// is forwarded verbatim from GetFromBatchAndDB's caller; Get applies
	// whatever snapshot-visibility check it implements the same way it
	// would for a read that never went through a batch.
	Get(ctx context.Context, cfID uint32, key []byte, callback ReadCallback) ([]byte, error)
}

// MergeOperator folds a base value (nil if the key doesn't exist) and a
// sequence of merge operands, oldest first, into a final value.
type MergeOperator interface {
	FullMerge(key, existingValue []byte, operands [][]byte) ([]byte, error)
}

// ReadCallback lets GetFromBatchAndDB's caller thread a snapshot-
// visibility check through to the store lookup it falls back to, the same
// hook a direct read against the store under that snapshot would apply.
// GetFromBatchAndDB never inspects a callback itself; it only forwards it
// to Store.Get.
type ReadCallback interface {
	// IsVisible reports whether seq is visible to this read.
	IsVisible(seq uint64) bool
}

// IndexedBatch is an in-memory staging area for a sequence of mutations,
// queryable and iterable before anything in it is committed to a store.
type IndexedBatch struct {
	id    uint64
	opts  Options
	log   *Log
	cmp   *entryComparator
	index Index
	arena entryArena

	nextSeq uint64

	// obsoleteOffsets accumulates the offsets of log records shadowed by a
	// later in-place update, in OverwriteKey mode. Collapse reclaims them.
	obsoleteOffsets []uint32
}

// New constructs an empty IndexedBatch.
func New(opts Options) *IndexedBatch {
	opts = opts.withDefaults()
	log := NewLog(opts.ReservedBytes, opts.MaxBytes)
	cmp := newEntryComparator(log, opts.Comparator)
	return &IndexedBatch{
		id:    batchIDGen.Add(1),
		opts:  opts,
		log:   log,
		cmp:   cmp,
		index: newIndex(opts.IndexType, cmp),
	}
}

// SetComparatorForCF installs a non-default key comparator for a column
// family. It must be called before any mutation touching that column
// family, since entries already indexed under the old ordering are not
// reordered.
func (b *IndexedBatch) SetComparatorForCF(cfID uint32, cmp KeyComparator) {
	b.cmp.SetComparatorForCF(cfID, cmp)
}

// SetMaxBytes changes the batch's log size cap. A cap lower than the
// log's current size does not truncate anything retroactively; it only
// takes effect on the next append (or the next Collapse, which rebuilds
// the log from scratch) that would grow past it.
func (b *IndexedBatch) SetMaxBytes(maxBytes uint64) {
	b.opts.MaxBytes = maxBytes
	b.log.SetMaxBytes(maxBytes)
}

// Indexed reports whether this batch maintains an index over its
// mutations. It is always true: unlike the design this package is lifted
// from, there is no raw, unindexed batch mode here.
func (b *IndexedBatch) Indexed() bool { return true }

// ApproximateSize estimates the batch's total memory footprint: the log's
// byte size plus a fixed per-entry overhead for the index.
func (b *IndexedBatch) ApproximateSize() uint64 {
	const approxEntryOverhead = 56 // Entry struct plus tree/skiplist node overhead.
	return uint64(b.log.Size()) + uint64(b.index.Len())*approxEntryOverhead
}

// GetWriteBatch returns the batch's underlying log, live: mutating the
// batch further will be reflected through the returned value, and the
// slice returned by its Bytes method may be invalidated by a later
// mutation. Callers that need a stable copy must Bytes() and copy it
// themselves before mutating the batch again.
func (b *IndexedBatch) GetWriteBatch() *Log { return b.log }

func (b *IndexedBatch) addOrUpdateIndex(cfID uint32, key []byte, offset uint32) {
	if !b.opts.OverwriteKey {
		e := b.arena.alloc()
		*e = Entry{CFID: cfID, Offset: offset, Seq: b.nextSeq}
		b.nextSeq++
		b.index.Insert(e)
		return
	}
	if existing := b.index.Get(cfID, key); existing != nil {
		b.obsoleteOffsets = append(b.obsoleteOffsets, existing.Offset)
		b.index.Remove(existing)
		existing.Offset = offset
		existing.Seq = b.nextSeq
		b.nextSeq++
		b.index.Insert(existing)
		return
	}
	e := b.arena.alloc()
	*e = Entry{CFID: cfID, Offset: offset, Seq: b.nextSeq}
	b.nextSeq++
	b.index.Insert(e)
}

// Put stages a value write for (cfID, key).
func (b *IndexedBatch) Put(cfID uint32, key, value []byte) error {
	offset, err := b.log.AppendPut(cfID, key, value)
	if err != nil {
		return err
	}
	b.addOrUpdateIndex(cfID, key, offset)
	return nil
}

// Delete stages a deletion of (cfID, key).
func (b *IndexedBatch) Delete(cfID uint32, key []byte) error {
	offset, err := b.log.AppendDelete(cfID, key)
	if err != nil {
		return err
	}
	b.addOrUpdateIndex(cfID, key, offset)
	return nil
}

// SingleDelete stages a single-deletion of (cfID, key): like Delete, but
// asserting the key was written at most once, which a store may use to
// skip writing a tombstone at all.
func (b *IndexedBatch) SingleDelete(cfID uint32, key []byte) error {
	offset, err := b.log.AppendSingleDelete(cfID, key)
	if err != nil {
		return err
	}
	b.addOrUpdateIndex(cfID, key, offset)
	return nil
}

// DeleteRange stages a deletion of every key in [begin, end) of cfID. It
// is indexed under begin; a point lookup for some other key within the
// range does not consult it, only iteration through DeltaIterator or
// BaseDeltaIterator does.
func (b *IndexedBatch) DeleteRange(cfID uint32, begin, end []byte) error {
	offset, err := b.log.AppendDeleteRange(cfID, begin, end)
	if err != nil {
		return err
	}
	b.addOrUpdateIndex(cfID, begin, offset)
	return nil
}

// Merge stages a merge operand for (cfID, key). In OverwriteKey mode, a
// second Merge on the same key fails with ErrNotSupported unless
// AllowDupMerge is set. Even with it set, the batch does not fold the two
// operands together: OverwriteKey's in-place update simply relocates the
// index entry to the new operand, leaving the first operand's record
// obsolete. A caller that actually needs the operands combined must do
// so itself before writing the second Merge.
func (b *IndexedBatch) Merge(cfID uint32, key, operand []byte) error {
	offset, err := b.log.AppendMerge(cfID, key, operand)
	if err != nil {
		return err
	}
	before := len(b.obsoleteOffsets)
	b.addOrUpdateIndex(cfID, key, offset)
	if b.opts.OverwriteKey && !b.opts.AllowDupMerge && len(b.obsoleteOffsets) > before {
		return notSupportedf("wbwi: duplicate merge for key %q in overwrite mode without AllowDupMerge", key)
	}
	return nil
}

// PutLogData appends an opaque blob that the index never interprets.
func (b *IndexedBatch) PutLogData(blob []byte) error { return b.log.AppendLogData(blob) }

// Clear discards every mutation staged so far, along with the index and
// savepoint stack built over them. Per-CF comparators registered via
// SetComparatorForCF survive, since they describe the store's schema
// rather than this batch's content.
func (b *IndexedBatch) Clear() {
	perCF := b.cmp.perCF
	b.log.Clear()
	b.cmp = newEntryComparator(b.log, b.opts.Comparator)
	b.cmp.perCF = perCF
	b.index = newIndex(b.opts.IndexType, b.cmp)
	b.arena.reset()
	b.obsoleteOffsets = nil
	b.nextSeq = 0
}

// Rebuild discards the index and replays every keyed record currently in
// the log to reconstruct it from scratch, re-deriving OverwriteKey's
// in-place updates and obsolete-offset bookkeeping as it goes. It fails
// with ErrCorruption if the number of keyed records it decodes disagrees
// with the log header's count.
func (b *IndexedBatch) Rebuild() error {
	b.opts.Logger.InfoContext(contextWithBatchTag(context.Background(), b.id),
		"rebuilding index", "log_size", b.log.Size())
	perCF := b.cmp.perCF
	cmp := newEntryComparator(b.log, b.opts.Comparator)
	cmp.perCF = perCF
	idx := newIndex(b.opts.IndexType, cmp)
	var arena entryArena
	var seq uint64
	var obsolete []uint32

	addOrUpdate := func(cfID uint32, key []byte, offset uint32) {
		if !b.opts.OverwriteKey {
			e := arena.alloc()
			*e = Entry{CFID: cfID, Offset: offset, Seq: seq}
			seq++
			idx.Insert(e)
			return
		}
		if existing := idx.Get(cfID, key); existing != nil {
			obsolete = append(obsolete, existing.Offset)
			idx.Remove(existing)
			existing.Offset = offset
			existing.Seq = seq
			seq++
			idx.Insert(existing)
			return
		}
		e := arena.alloc()
		*e = Entry{CFID: cfID, Offset: offset, Seq: seq}
		seq++
		idx.Insert(e)
	}

	var keyedCount uint32
	reader := b.log.Records(logHeaderLen)
	for {
		rec, offset, done, err := reader.Next()
		if err != nil {
			return errors.Wrapf(err, "wbwi: rebuilding index")
		}
		if done {
			break
		}
		if !rec.Tag.IsKeyed() {
			continue
		}
		keyedCount++
		addOrUpdate(rec.CFID, rec.Key, uint32(offset))
	}
	if keyedCount != b.log.Count() {
		return corruptionf("wbwi: rebuild found %d keyed records, header says %d", keyedCount, b.log.Count())
	}

	b.cmp = cmp
	b.index = idx
	b.arena = arena
	b.nextSeq = seq
	b.obsoleteOffsets = obsolete
	return nil
}

// Collapse reclaims the log bytes of every entry OverwriteKey mode has
// shadowed. It sorts the obsolete offsets and does a single linear
// merge-walk of the log, copying surviving records into a fresh buffer
// and rebuilding the index against it; entries never move their relative
// order since the walk preserves original insertion order among
// survivors.
func (b *IndexedBatch) Collapse() error {
	if len(b.obsoleteOffsets) == 0 {
		return nil
	}
	b.opts.Logger.InfoContext(contextWithBatchTag(context.Background(), b.id),
		"collapsing log", "obsolete_records", len(b.obsoleteOffsets))
	obsolete := append([]uint32(nil), b.obsoleteOffsets...)
	sort.Slice(obsolete, func(i, j int) bool { return obsolete[i] < obsolete[j] })

	newLog := NewLog(b.log.Size(), b.opts.MaxBytes)
	newLog.SetSeqNum(b.log.SeqNum())

	perCF := b.cmp.perCF
	cmp := newEntryComparator(newLog, b.opts.Comparator)
	cmp.perCF = perCF
	idx := newIndex(b.opts.IndexType, cmp)
	var arena entryArena
	var seq uint64
	var keyedCount uint32

	reader := b.log.Records(logHeaderLen)
	for {
		rec, offset, done, err := reader.Next()
		if err != nil {
			return errors.Wrapf(err, "wbwi: collapsing log")
		}
		if done {
			break
		}
		if len(obsolete) > 0 && uint32(offset) == obsolete[0] {
			obsolete = obsolete[1:]
			continue
		}
		newOffset, err := newLog.appendDecodedRecord(rec)
		if err != nil {
			return errors.Wrapf(err, "wbwi: collapsing log")
		}
		if !rec.Tag.IsKeyed() {
			continue
		}
		keyedCount++
		e := arena.alloc()
		*e = Entry{CFID: rec.CFID, Offset: newOffset, Seq: seq}
		seq++
		idx.Insert(e)
	}
	if newLog.Count() != keyedCount {
		return corruptionf("wbwi: collapse found %d keyed records, header says %d", keyedCount, newLog.Count())
	}

	b.log = newLog
	b.cmp = cmp
	b.index = idx
	b.arena = arena
	b.nextSeq = seq
	b.obsoleteOffsets = nil
	return nil
}

// SetSavepoint marks the batch's current state for a later
// RollbackToSavepoint or PopSavepoint.
func (b *IndexedBatch) SetSavepoint() { b.log.SetSavepoint() }

// RollbackToSavepoint truncates the log back to the most recent
// savepoint and rebuilds the index against the truncated log,
// unconditionally: there is no cheaper incremental path, since an
// OverwriteKey batch's obsolete-offset bookkeeping can't be undone
// without replaying from the start.
func (b *IndexedBatch) RollbackToSavepoint() error {
	if err := b.log.RollbackToSavepoint(); err != nil {
		return err
	}
	b.opts.Logger.InfoContext(contextWithBatchTag(context.Background(), b.id),
		"rolled back to savepoint", "log_size", b.log.Size())
	return b.Rebuild()
}

// PopSavepoint discards the most recent savepoint without touching the
// log or the index.
func (b *IndexedBatch) PopSavepoint() error { return b.log.PopSavepoint() }

// scanBatch walks this batch's entries for (cfID, key) newest first (the
// index's tiebreak for entries sharing a key orders the most recently
// inserted one first) and folds them into a final batch-local answer: the
// nearest Put/Delete/SingleDelete terminates the walk, and any Merge
// operands seen before it are returned oldest-first, ready to hand to a
// MergeOperator alongside whatever base value precedes them.
func (b *IndexedBatch) scanBatch(cfID uint32, key []byte) (value []byte, found, deleted bool, operands [][]byte) {
	it := b.index.NewIterator()
	it.SeekGE(searchEntry(cfID, key))
	for it.Valid() {
		e := it.Entry()
		if e.CFID != cfID {
			break
		}
		rec, _, err := DecodeRecord(b.log.data[e.Offset:])
		if err != nil {
			panic(errors.NewAssertionErrorWithWrappedErrf(err, "wbwi: decoding indexed entry at offset %d", e.Offset))
		}
		if b.cmp.comparatorFor(cfID)(rec.Key, key) != 0 {
			break
		}
		switch rec.Tag {
		case TagValue, TagColumnFamilyValue:
			value, found, deleted = rec.Value, true, false
			reverse(operands)
			return value, found, deleted, operands
		case TagDeletion, TagColumnFamilyDeletion, TagSingleDeletion, TagColumnFamilySingleDeletion:
			value, found, deleted = nil, false, true
			reverse(operands)
			return value, found, deleted, operands
		case TagMerge, TagColumnFamilyMerge:
			operands = append(operands, rec.Value)
		}
		it.Next()
	}
	reverse(operands)
	return value, found, deleted, operands
}

func reverse(operands [][]byte) {
	for i, j := 0, len(operands)-1; i < j; i, j = i+1, j-1 {
		operands[i], operands[j] = operands[j], operands[i]
	}
}

// GetFromBatch looks up (cfID, key) within the batch alone. It fails with
// ErrMergeInProgress if the most recent writes for the key are merge
// operands with no Put or Delete in this batch to terminate the chain;
// resolving that case requires a base value from a store, via
// GetFromBatchAndDB. This holds even when a Put terminates the chain
// further back in the batch (e.g. a Put followed by a Merge in
// non-overwrite mode): GetFromBatch carries no merge operator to fold the
// operand onto that Put's value, so it reports the operand as pending
// rather than guessing. GetFromBatchAndDB, given a merge operator, folds
// in that case instead of erroring.
func (b *IndexedBatch) GetFromBatch(cfID uint32, key []byte) ([]byte, error) {
	value, found, _, operands := b.scanBatch(cfID, key)
	if len(operands) > 0 {
		return nil, ErrMergeInProgress
	}
	if found {
		return value, nil
	}
	return nil, ErrNotFound
}

// GetFromBatchAndDB resolves (cfID, key) against the batch, falling back
// to store and mergeOp to produce a final value when the batch alone
// can't: when the key isn't mentioned in the batch at all, or when it
// ends in one or more pending merge operands. mergeOp may be nil only
// when every key queried this way is certain never to have pending
// operands; a pending-operand lookup with mergeOp == nil fails with
// ErrInvalidArgument. callback, when non-nil, is forwarded to every
// store.Get this call makes, for a caller that needs the fallback read
// validated against a particular snapshot.
func (b *IndexedBatch) GetFromBatchAndDB(
	ctx context.Context, store Store, mergeOp MergeOperator, callback ReadCallback, cfID uint32, key []byte,
) ([]byte, error) {
	value, found, deleted, operands := b.scanBatch(cfID, key)
	if len(operands) == 0 {
		if found {
			return value, nil
		}
		if deleted {
			return nil, ErrNotFound
		}
		return store.Get(ctx, cfID, key, callback)
	}
	if mergeOp == nil {
		return nil, invalidArgumentf("wbwi: merge operands pending for key %q but no merge operator configured", key)
	}
	base := value
	if !found && !deleted {
		v, err := store.Get(ctx, cfID, key, callback)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		base = v
	} else if deleted {
		base = nil
	}
	return mergeOp.FullMerge(key, base, operands)
}

// NewIterator returns a cursor over cfID's slice of the batch's pending
// mutations, in key order.
func (b *IndexedBatch) NewIterator(cfID uint32) *DeltaIterator {
	return newDeltaIterator(b, cfID)
}

// NewBaseDeltaIterator overlays this batch's pending mutations for cfID
// on top of baseIter, a snapshot iterator over the underlying store. It
// requires OverwriteKey, since merging a base iterator with a delta that
// can hold several stale entries per key has no sensible resolution.
func (b *IndexedBatch) NewBaseDeltaIterator(cfID uint32, baseIter Iterator) (*BaseDeltaIterator, error) {
	if !b.opts.OverwriteKey {
		return nil, notSupportedf("wbwi: base+delta iteration requires OverwriteKey")
	}
	return newBaseDeltaIterator(b, cfID, baseIter), nil
}
