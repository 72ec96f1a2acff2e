// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package wbwi

import "encoding/binary"

// logHeaderLen is the size of the fixed-width prefix: 8 bytes for a
// sequence number, 4 bytes for a keyed-record count, both little-endian.
const logHeaderLen = 12

// Log is an append-only byte buffer of encoded mutation records, with a
// count header and a stack of savepoints supporting byte-level rollback.
// Index entries address records in the log by offset rather than by
// pointer, so Log is free to grow its backing array by ordinary append:
// nothing outside Log ever holds a slice into data across a mutation, only
// integer offsets that remain valid across reallocation.
type Log struct {
	data       []byte
	maxBytes   uint64
	savepoints []logSavepoint
}

// logSavepoint is the (log_size, count, ...) tuple captured by
// SetSavepoint, per the design's Savepoint type.
type logSavepoint struct {
	size  int
	count uint32
}

// NewLog constructs an empty log, reserving reservedBytes of initial
// capacity. maxBytes caps the log's total size; 0 means unlimited.
func NewLog(reservedBytes int, maxBytes uint64) *Log {
	capacity := logHeaderLen
	if reservedBytes > capacity {
		capacity = reservedBytes
	}
	l := &Log{
		data:     make([]byte, logHeaderLen, capacity),
		maxBytes: maxBytes,
	}
	return l
}

// Size returns the current size of the log in bytes, including the header.
func (l *Log) Size() int { return len(l.data) }

// Bytes returns the raw underlying log buffer, header included. Callers
// must not retain the returned slice past the next mutation: Log may grow
// its backing array via append, at which point previously returned slices
// stop reflecting l.data.
func (l *Log) Bytes() []byte { return l.data }

// Count returns the number of keyed records appended to the log (meta
// records do not count).
func (l *Log) Count() uint32 { return binary.LittleEndian.Uint32(l.data[8:12]) }

func (l *Log) setCount(v uint32) { binary.LittleEndian.PutUint32(l.data[8:12], v) }

// SeqNum returns the sequence number stashed in the log header.
func (l *Log) SeqNum() uint64 { return binary.LittleEndian.Uint64(l.data[0:8]) }

// SetSeqNum overwrites the log header's sequence number, used when a store
// assigns the batch a sequence number at commit time.
func (l *Log) SetSeqNum(seq uint64) { binary.LittleEndian.PutUint64(l.data[0:8], seq) }

// SetMaxBytes changes the log's size cap. A cap lower than the log's
// current size does not truncate anything retroactively; it only takes
// effect on the next append that would grow past it.
func (l *Log) SetMaxBytes(maxBytes uint64) { l.maxBytes = maxBytes }

// reserve checks that appending n more bytes would not exceed maxBytes,
// failing with ErrMemoryLimit if it would. It never mutates data; the
// actual growth (via append, which may reallocate) happens in the
// caller once reserve has cleared the check.
func (l *Log) reserve(n int) error {
	if l.maxBytes != 0 {
		want := uint64(len(l.data) + n)
		if want > l.maxBytes {
			return memoryLimitf(want, l.maxBytes)
		}
	}
	return nil
}

func (l *Log) appendRecord(tag Tag, cfID uint32, key, value []byte, keyed bool) (offset uint32, err error) {
	// Size the record before mutating data, so reserve's MemoryLimit check
	// never leaves the log half-written.
	size := EncodeRecord(nil, tag, cfID, key, value)
	if err := l.reserve(len(size)); err != nil {
		return 0, err
	}
	offset = uint32(len(l.data))
	l.data = append(l.data, size...)
	if keyed {
		l.setCount(l.Count() + 1)
	}
	return offset, nil
}

// appendDecodedRecord re-appends a record already decoded from elsewhere in
// this log (or another log with an identical header layout), used by
// Collapse to copy surviving records into a fresh buffer.
func (l *Log) appendDecodedRecord(rec Record) (uint32, error) {
	value := rec.Value
	switch rec.Tag {
	case TagLogData:
		value = rec.Blob
	case TagEndPrepareXID, TagCommitXID, TagRollbackXID:
		value = rec.XID
	}
	return l.appendRecord(rec.Tag, rec.CFID, rec.Key, value, rec.Tag.IsKeyed())
}

// AppendPut appends a value-put record for (cfID, key, value).
func (l *Log) AppendPut(cfID uint32, key, value []byte) (uint32, error) {
	return l.appendRecord(TagValue, cfID, key, value, true)
}

// AppendDelete appends a deletion record for (cfID, key).
func (l *Log) AppendDelete(cfID uint32, key []byte) (uint32, error) {
	return l.appendRecord(TagDeletion, cfID, key, nil, true)
}

// AppendSingleDelete appends a single-deletion record for (cfID, key).
func (l *Log) AppendSingleDelete(cfID uint32, key []byte) (uint32, error) {
	return l.appendRecord(TagSingleDeletion, cfID, key, nil, true)
}

// AppendDeleteRange appends a delete-range record for [begin, end) in cfID.
// The indexed key is begin; end is carried as the record's value.
func (l *Log) AppendDeleteRange(cfID uint32, begin, end []byte) (uint32, error) {
	return l.appendRecord(TagRangeDeletion, cfID, begin, end, true)
}

// AppendMerge appends a merge record for (cfID, key, operand).
func (l *Log) AppendMerge(cfID uint32, key, operand []byte) (uint32, error) {
	return l.appendRecord(TagMerge, cfID, key, operand, true)
}

// AppendLogData appends an opaque meta blob, uninterpreted by the index.
func (l *Log) AppendLogData(blob []byte) error {
	_, err := l.appendRecord(TagLogData, 0, nil, blob, false)
	return err
}

// AppendBeginPrepare appends a begin-prepare meta marker.
func (l *Log) AppendBeginPrepare() error {
	_, err := l.appendRecord(TagBeginPrepareXID, 0, nil, nil, false)
	return err
}

// AppendEndPrepare appends an end-prepare meta marker carrying a
// transaction id.
func (l *Log) AppendEndPrepare(xid []byte) error {
	_, err := l.appendRecord(TagEndPrepareXID, 0, nil, xid, false)
	return err
}

// AppendCommit appends a commit meta marker carrying a transaction id.
func (l *Log) AppendCommit(xid []byte) error {
	_, err := l.appendRecord(TagCommitXID, 0, nil, xid, false)
	return err
}

// AppendRollback appends a rollback meta marker carrying a transaction id.
func (l *Log) AppendRollback(xid []byte) error {
	_, err := l.appendRecord(TagRollbackXID, 0, nil, xid, false)
	return err
}

// AppendNoop appends a no-op meta marker.
func (l *Log) AppendNoop() error {
	_, err := l.appendRecord(TagNoop, 0, nil, nil, false)
	return err
}

// Clear resets the log to its initial, empty state, keeping its capacity.
func (l *Log) Clear() {
	l.data = l.data[:logHeaderLen]
	for i := range l.data {
		l.data[i] = 0
	}
	l.savepoints = l.savepoints[:0]
}

// Records returns an iterator-free decode of every record from offset
// start to the end of the log, in order. It's used by Rebuild and Collapse,
// which both need to walk the whole log rather than seek around in it.
func (l *Log) Records(start int) RecordReader {
	return RecordReader{data: l.data[start:], base: start}
}

// RecordReader decodes successive records starting at some offset into a
// Log's byte buffer, tracking each record's absolute offset.
type RecordReader struct {
	data []byte
	base int
}

// Next decodes the next record, returning its absolute offset within the
// log and io.EOF-like done=true once the reader is exhausted.
func (r *RecordReader) Next() (rec Record, offset int, done bool, err error) {
	if len(r.data) == 0 {
		return Record{}, 0, true, nil
	}
	offset = r.base
	rec, rest, err := DecodeRecord(r.data)
	if err != nil {
		return Record{}, offset, false, err
	}
	r.base += len(r.data) - len(rest)
	r.data = rest
	return rec, offset, false, nil
}

// SetSavepoint pushes the current (size, count) onto the savepoint stack.
func (l *Log) SetSavepoint() {
	l.savepoints = append(l.savepoints, logSavepoint{size: len(l.data), count: l.Count()})
}

// RollbackToSavepoint truncates the log to the most recently set savepoint
// and pops it, restoring the header count captured at that point. It fails
// with ErrNotFound if the savepoint stack is empty.
func (l *Log) RollbackToSavepoint() error {
	if len(l.savepoints) == 0 {
		return notFoundf("wbwi: no savepoint to rollback to")
	}
	sp := l.savepoints[len(l.savepoints)-1]
	l.savepoints = l.savepoints[:len(l.savepoints)-1]
	l.data = l.data[:sp.size]
	l.setCount(sp.count)
	return nil
}

// PopSavepoint pops the most recently set savepoint without truncating the
// log. It fails with ErrNotFound if the savepoint stack is empty.
func (l *Log) PopSavepoint() error {
	if len(l.savepoints) == 0 {
		return notFoundf("wbwi: no savepoint to pop")
	}
	l.savepoints = l.savepoints[:len(l.savepoints)-1]
	return nil
}
