// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package wbwi

import (
	"fmt"
	"strings"
	"testing"

	"github.com/cockroachdb/datadriven"
	"github.com/cockroachdb/errors"
)

// TestDataDriven runs the scripts under testdata/ against a fresh batch
// per file, one line of the "run" command's input per operation.
func TestDataDriven(t *testing.T) {
	datadriven.Walk(t, "testdata", func(t *testing.T, path string) {
		var b *IndexedBatch
		reset := func() { b = New(Options{OverwriteKey: true}) }
		reset()

		datadriven.RunTest(t, path, func(t *testing.T, d *datadriven.TestData) string {
			switch d.Cmd {
			case "reset":
				reset()
				return ""
			case "run":
				return runDataDrivenScript(t, b, d.Input)
			default:
				d.Fatalf(t, "unknown command %q", d.Cmd)
				return ""
			}
		})
	})
}

func runDataDrivenScript(t *testing.T, b *IndexedBatch, script string) string {
	var out strings.Builder
	for _, line := range strings.Split(script, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		op, args := fields[0], fields[1:]
		switch op {
		case "put":
			if err := b.Put(0, []byte(args[0]), []byte(args[1])); err != nil {
				t.Fatalf("put: %v", err)
			}
		case "delete":
			if err := b.Delete(0, []byte(args[0])); err != nil {
				t.Fatalf("delete: %v", err)
			}
		case "single-delete":
			if err := b.SingleDelete(0, []byte(args[0])); err != nil {
				t.Fatalf("single-delete: %v", err)
			}
		case "merge":
			fmt.Fprintf(&out, "merge %s %s: %s\n", args[0], args[1], errString(b.Merge(0, []byte(args[0]), []byte(args[1]))))
		case "savepoint":
			b.SetSavepoint()
		case "rollback":
			fmt.Fprintf(&out, "rollback: %s\n", errString(b.RollbackToSavepoint()))
		case "pop-savepoint":
			fmt.Fprintf(&out, "pop-savepoint: %s\n", errString(b.PopSavepoint()))
		case "collapse":
			fmt.Fprintf(&out, "collapse: %s\n", errString(b.Collapse()))
		case "get":
			v, err := b.GetFromBatch(0, []byte(args[0]))
			if err != nil {
				fmt.Fprintf(&out, "%s: %s\n", args[0], errString(err))
			} else {
				fmt.Fprintf(&out, "%s: %s\n", args[0], v)
			}
		case "scan":
			it := b.NewIterator(0)
			for it.First(); it.Valid(); it.Next() {
				rec := it.Record()
				fmt.Fprintf(&out, "%s %s", rec.Tag, rec.Key)
				if rec.Value != nil {
					fmt.Fprintf(&out, "=%s", rec.Value)
				}
				out.WriteString("\n")
			}
		default:
			t.Fatalf("unknown op %q", op)
		}
	}
	return out.String()
}

// errString normalizes an error to one of the sentinel names rather than
// its formatted message, so the script's expected output doesn't depend
// on exact error text.
func errString(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not-found"
	case errors.Is(err, ErrNotSupported):
		return "not-supported"
	case errors.Is(err, ErrCorruption):
		return "corruption"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid-argument"
	case errors.Is(err, ErrMergeInProgress):
		return "merge-in-progress"
	default:
		return err.Error()
	}
}
