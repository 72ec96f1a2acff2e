// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package wbwi

import (
	"bytes"

	"github.com/cockroachdb/errors"
)

// KeyComparator orders two user keys, in the manner of bytes.Compare.
type KeyComparator func(a, b []byte) int

// DefaultComparator orders keys lexicographically by their raw bytes.
func DefaultComparator(a, b []byte) int { return bytes.Compare(a, b) }

// entryComparator totally orders Entry values: first by column family,
// then by user key (resolved from the log for a real entry, taken directly
// from SearchKey for a search entry), then by insertion sequence. A
// flagMin entry compares less than every other entry sharing its column
// family, regardless of key.
//
// The mutation path never calls SetComparatorForCF. Column family 0 is
// resolved like any other: through perCF if a comparator was registered
// for it, otherwise through dflt, so the batch only ever learns about
// non-default comparators through an explicit SetComparatorForCF call.
type entryComparator struct {
	log   *Log
	dflt  KeyComparator
	perCF map[uint32]KeyComparator
}

func newEntryComparator(log *Log, dflt KeyComparator) *entryComparator {
	if dflt == nil {
		dflt = DefaultComparator
	}
	return &entryComparator{log: log, dflt: dflt}
}

// SetComparatorForCF installs a non-default comparator for a column family.
func (c *entryComparator) SetComparatorForCF(cfID uint32, cmp KeyComparator) {
	if c.perCF == nil {
		c.perCF = make(map[uint32]KeyComparator)
	}
	c.perCF[cfID] = cmp
}

func (c *entryComparator) comparatorFor(cfID uint32) KeyComparator {
	if cmp, ok := c.perCF[cfID]; ok {
		return cmp
	}
	return c.dflt
}

// key resolves e's user key: SearchKey for a search entry, a fresh decode
// of the record at e.Offset for a real one. flagMin entries have no key
// and must not reach this method.
func (c *entryComparator) key(e *Entry) []byte {
	if e.SearchKey != nil {
		return e.SearchKey
	}
	rec, _, err := DecodeRecord(c.log.data[e.Offset:])
	if err != nil {
		panic(errors.NewAssertionErrorWithWrappedErrf(err, "wbwi: decoding indexed entry at offset %d", e.Offset))
	}
	return rec.Key
}

// sameKey reports whether a and b address the same column family and user
// key, ignoring insertion sequence. Get uses this instead of Compare's
// full equality, since a search entry's Seq never coincides with a real
// entry's: it is set to sort before every real entry sharing its key, not
// to equal one of them.
func (c *entryComparator) sameKey(a, b *Entry) bool {
	return a.CFID == b.CFID && c.comparatorFor(a.CFID)(c.key(a), c.key(b)) == 0
}

// Compare implements the ordering described above.
func (c *entryComparator) Compare(a, b *Entry) int {
	if a.CFID != b.CFID {
		return cmpUint32(a.CFID, b.CFID)
	}
	if a.Flag == flagMin || b.Flag == flagMin {
		switch {
		case a.Flag == b.Flag:
			return cmpUint64(a.Seq, b.Seq)
		case a.Flag == flagMin:
			return -1
		default:
			return 1
		}
	}
	if r := c.comparatorFor(a.CFID)(c.key(a), c.key(b)); r != 0 {
		return r
	}
	// Among several entries sharing a key (non-overwrite mode only, since
	// overwrite mode never lets two live entries share a key), the most
	// recently inserted sorts first: a point lookup or delta-iterator scan
	// over the key naturally meets the newest write before older,
	// shadowed ones.
	return cmpUint64(b.Seq, a.Seq)
}

func cmpUint32(a, b uint32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpUint64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
