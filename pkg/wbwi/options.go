// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package wbwi

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/goccy/go-yaml"
)

// Options configures a new IndexedBatch. The zero value is usable:
// rbtree indexing, overwrite mode off, no byte limit, the default
// lexicographic comparator, and no logging.
type Options struct {
	// IndexType names the ordered-index backend: "rbtree" or "skiplist".
	// The empty string defaults to "rbtree"; any other unrecognized value
	// falls back to "skiplist".
	IndexType string `yaml:"index_type"`

	// OverwriteKey, when true, makes a second Put/Delete/SingleDelete for
	// a (column family, key) already in the batch replace that entry's
	// index position in place rather than appending a second, shadowing
	// entry. It also puts merge handling into its duplicate-detection
	// path; see AllowDupMerge.
	OverwriteKey bool `yaml:"overwrite_key"`

	// AllowDupMerge permits a second Merge on a (column family, key)
	// already merged in this batch under OverwriteKey. Without it, such a
	// call fails with ErrNotSupported, since the batch has no merge
	// operator to fold the two operands together itself.
	AllowDupMerge bool `yaml:"allow_dup_merge"`

	// MaxBytes caps the log's size in bytes. Zero means unlimited.
	MaxBytes uint64 `yaml:"max_bytes"`

	// ReservedBytes is the log's initial capacity, an optimization to
	// avoid early reallocation for a batch with a known approximate size.
	ReservedBytes int `yaml:"reserved_bytes"`

	// Comparator orders user keys in the default column family. Per-CF
	// comparators are set after construction, via IndexedBatch's
	// SetComparatorForCF.
	Comparator KeyComparator `yaml:"-"`

	// Logger receives diagnostic events at rollback, rebuild, and
	// collapse granularity. A nil Logger disables logging.
	Logger Logger `yaml:"-"`
}

// LoadOptionsStaticYAML reads the static, serializable subset of an
// Options value (everything but the Comparator and Logger fields, which
// cannot round-trip through YAML) from path.
func LoadOptionsStaticYAML(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, errors.Wrapf(err, "wbwi: reading options file %q", path)
	}
	var opts Options
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, errors.Wrapf(err, "wbwi: parsing options file %q", path)
	}
	return opts, nil
}

func (o Options) withDefaults() Options {
	if o.Comparator == nil {
		o.Comparator = DefaultComparator
	}
	if o.Logger == nil {
		o.Logger = noopLogger{}
	}
	return o
}
