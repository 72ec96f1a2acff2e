// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package wbwi

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/logtags"
)

// Logger receives diagnostic events from an IndexedBatch. The interface is
// satisfied by *slog.Logger; code that wants a no-op sink uses noopLogger.
type Logger interface {
	InfoContext(ctx context.Context, msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) InfoContext(context.Context, string, ...any) {}

// contextWithBatchTag attaches a "batch=<id>" tag to ctx, so every log
// line emitted during a single batch's lifetime can be correlated without
// the caller threading the id through every call.
func contextWithBatchTag(ctx context.Context, id uint64) context.Context {
	buf := logtags.SingleTagBuffer("batch", id)
	return logtags.WithTags(ctx, buf)
}

var _ Logger = (*slog.Logger)(nil)
