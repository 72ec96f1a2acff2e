// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package wbwi

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOptionsWithDefaults(t *testing.T) {
	var opts Options
	opts = opts.withDefaults()
	require.NotNil(t, opts.Comparator)
	require.NotNil(t, opts.Logger)
	require.Equal(t, 0, opts.Comparator([]byte("a"), []byte("a")))
}

func TestLoadOptionsStaticYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "opts.yaml")
	contents := "index_type: skiplist\noverwrite_key: true\nallow_dup_merge: true\nmax_bytes: 1024\nreserved_bytes: 64\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	opts, err := LoadOptionsStaticYAML(path)
	require.NoError(t, err)
	require.Equal(t, "skiplist", opts.IndexType)
	require.True(t, opts.OverwriteKey)
	require.True(t, opts.AllowDupMerge)
	require.EqualValues(t, 1024, opts.MaxBytes)
	require.Equal(t, 64, opts.ReservedBytes)
}

func TestLoadOptionsStaticYAMLMissingFile(t *testing.T) {
	_, err := LoadOptionsStaticYAML(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
