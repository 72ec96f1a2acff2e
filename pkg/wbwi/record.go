// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package wbwi

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
)

// Tag identifies the kind of a single record in the log. The numbering
// matches the on-wire tag values used by the record format this package's
// log is compatible with (see the commented-out InternalKeyKind block in
// pebble's internal key type, which enumerates the same tag space).
type Tag byte

const (
	TagDeletion                   Tag = 0
	TagValue                      Tag = 1
	TagMerge                      Tag = 2
	TagLogData                    Tag = 3
	TagColumnFamilyDeletion       Tag = 4
	TagColumnFamilyValue          Tag = 5
	TagColumnFamilyMerge          Tag = 6
	TagSingleDeletion             Tag = 7
	TagColumnFamilySingleDeletion Tag = 8
	TagBeginPrepareXID            Tag = 9
	TagEndPrepareXID              Tag = 10
	TagCommitXID                  Tag = 11
	TagRollbackXID                Tag = 12
	TagNoop                       Tag = 13
	TagColumnFamilyRangeDeletion  Tag = 14
	TagRangeDeletion              Tag = 15

	tagMax = TagRangeDeletion
)

// String returns the tag's name. Tag names are safe to log unredacted;
// they carry no user data.
func (t Tag) String() string { return redact.StringWithoutMarkers(t) }

// SafeFormat implements redact.SafeFormatter.
func (t Tag) SafeFormat(w redact.SafePrinter, _ rune) {
	switch t {
	case TagDeletion:
		w.Print("deletion")
	case TagValue:
		w.Print("value")
	case TagMerge:
		w.Print("merge")
	case TagLogData:
		w.Print("log-data")
	case TagColumnFamilyDeletion:
		w.Print("cf-deletion")
	case TagColumnFamilyValue:
		w.Print("cf-value")
	case TagColumnFamilyMerge:
		w.Print("cf-merge")
	case TagSingleDeletion:
		w.Print("single-deletion")
	case TagColumnFamilySingleDeletion:
		w.Print("cf-single-deletion")
	case TagBeginPrepareXID:
		w.Print("begin-prepare")
	case TagEndPrepareXID:
		w.Print("end-prepare")
	case TagCommitXID:
		w.Print("commit")
	case TagRollbackXID:
		w.Print("rollback")
	case TagNoop:
		w.Print("noop")
	case TagColumnFamilyRangeDeletion:
		w.Print("cf-range-deletion")
	case TagRangeDeletion:
		w.Print("range-deletion")
	default:
		w.Printf("tag(%d)", byte(t))
	}
}

// IsKeyed reports whether records with this tag carry a (column family,
// key) pair and are indexed. Keyed tags increment the log header's entry
// count; meta tags do not.
func (t Tag) IsKeyed() bool {
	switch t {
	case TagDeletion, TagValue, TagMerge, TagColumnFamilyDeletion,
		TagColumnFamilyValue, TagColumnFamilyMerge, TagSingleDeletion,
		TagColumnFamilySingleDeletion, TagRangeDeletion, TagColumnFamilyRangeDeletion:
		return true
	default:
		return false
	}
}

// hasExplicitCF reports whether the tag's wire format carries an explicit
// column family id varint before the key. Tags without this carry an
// implicit column family id of 0.
func (t Tag) hasExplicitCF() bool {
	switch t {
	case TagColumnFamilyDeletion, TagColumnFamilyValue, TagColumnFamilyMerge,
		TagColumnFamilySingleDeletion, TagColumnFamilyRangeDeletion:
		return true
	default:
		return false
	}
}

// hasValue reports whether the tag's wire format carries a second
// length-prefixed payload after the key (the value for Put/Merge, the
// range end key for DeleteRange).
func (t Tag) hasValue() bool {
	switch t {
	case TagValue, TagColumnFamilyValue, TagMerge, TagColumnFamilyMerge,
		TagRangeDeletion, TagColumnFamilyRangeDeletion:
		return true
	default:
		return false
	}
}

// cfTag returns the explicit-cf variant of a default-cf keyed tag, used
// when encoding a record for a non-zero column family.
func cfTag(t Tag) Tag {
	switch t {
	case TagValue:
		return TagColumnFamilyValue
	case TagDeletion:
		return TagColumnFamilyDeletion
	case TagSingleDeletion:
		return TagColumnFamilySingleDeletion
	case TagRangeDeletion:
		return TagColumnFamilyRangeDeletion
	case TagMerge:
		return TagColumnFamilyMerge
	default:
		return t
	}
}

// Record is the decoded form of one entry in the log.
type Record struct {
	Tag   Tag
	CFID  uint32
	Key   []byte
	Value []byte
	Blob  []byte
	XID   []byte
}

// String returns a human-readable form of the record with redaction
// markers stripped, so the key and value (and any blob or transaction id
// payload) appear in full; %v uses this form too. redact.Sprint keeps the
// payload marked as unsafe, so a redacting sink can elide it.
func (r Record) String() string { return redact.StringWithoutMarkers(r) }

// SafeFormat implements redact.SafeFormatter. The tag and column family id
// are safe metadata; the key, value, blob, and transaction id are user
// data and are left unmarked so the redact machinery treats them as
// sensitive.
func (r Record) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("%s(cf=%d", r.Tag, r.CFID)
	if r.Key != nil {
		w.Printf(", key=%q", r.Key)
	}
	if r.Value != nil {
		w.Printf(", value=%q", r.Value)
	}
	if r.Blob != nil {
		w.Printf(", blob=%q", r.Blob)
	}
	if r.XID != nil {
		w.Printf(", xid=%q", r.XID)
	}
	w.Print(")")
}

// appendUvarint appends the varint encoding of v to buf.
func appendUvarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

// appendString appends a varint length prefix followed by s.
func appendString(buf []byte, s []byte) []byte {
	buf = appendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

func getUvarint(data []byte) (v uint64, rest []byte, err error) {
	v, n := binary.Uvarint(data)
	if n <= 0 {
		return 0, nil, corruptionf("wbwi: invalid varint")
	}
	return v, data[n:], nil
}

func getString(data []byte) (s []byte, rest []byte, err error) {
	n, rest, err := getUvarint(data)
	if err != nil {
		return nil, nil, err
	}
	if n > uint64(len(rest)) {
		return nil, nil, corruptionf("wbwi: truncated record: want %d bytes, have %d", n, len(rest))
	}
	return rest[:n], rest[n:], nil
}

// EncodeRecord appends the wire encoding of the given fields to buf and
// returns the result. cfID selects the default-cf or explicit-cf tag
// variant automatically.
func EncodeRecord(buf []byte, tag Tag, cfID uint32, key, value []byte) []byte {
	if cfID != 0 && tag.IsKeyed() {
		tag = cfTag(tag)
	}
	buf = append(buf, byte(tag))
	if tag.hasExplicitCF() {
		buf = appendUvarint(buf, uint64(cfID))
	}
	switch tag {
	case TagLogData:
		return appendString(buf, value)
	case TagBeginPrepareXID, TagNoop:
		return buf
	case TagEndPrepareXID, TagCommitXID, TagRollbackXID:
		return appendString(buf, value)
	}
	buf = appendString(buf, key)
	if tag.hasValue() {
		buf = appendString(buf, value)
	}
	return buf
}

// DecodeRecord decodes one record from the front of data, returning the
// decoded record and the remaining, as-yet-undecoded bytes. It fails with
// ErrCorruption on an unknown tag or a truncated payload.
func DecodeRecord(data []byte) (rec Record, rest []byte, err error) {
	if len(data) == 0 {
		return Record{}, nil, corruptionf("wbwi: empty record")
	}
	tag := Tag(data[0])
	if tag > tagMax {
		return Record{}, nil, corruptionf("wbwi: unknown record tag %d", tag)
	}
	rest = data[1:]
	rec.Tag = tag

	if tag.hasExplicitCF() {
		cfID, r, err := getUvarint(rest)
		if err != nil {
			return Record{}, nil, errors.Wrapf(err, "wbwi: decoding column family id")
		}
		rec.CFID = uint32(cfID)
		rest = r
	}

	switch tag {
	case TagLogData:
		rec.Blob, rest, err = getString(rest)
	case TagBeginPrepareXID, TagNoop:
		// No payload.
	case TagEndPrepareXID, TagCommitXID, TagRollbackXID:
		rec.XID, rest, err = getString(rest)
	default:
		rec.Key, rest, err = getString(rest)
		if err == nil && tag.hasValue() {
			rec.Value, rest, err = getString(rest)
		}
	}
	if err != nil {
		return Record{}, nil, errors.Wrapf(err, "wbwi: decoding record with tag %d", tag)
	}
	return rec, rest, nil
}
