// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/inkwell/inkwell/pkg/errutil"
)

// otpPurger removes expired reset challenges.
type otpPurger interface {
	Purge(ctx context.Context) (int64, error)
}

// purgeRecorder counts purged challenges. *observability.Metrics satisfies it.
type purgeRecorder interface {
	RecordOtpPurged(n int64)
}

// runPurgeLoop purges expired challenges every interval until ctx is done.
// Failures are logged and retried on the next tick.
func runPurgeLoop(ctx context.Context, purger otpPurger, interval time.Duration, recorder purgeRecorder, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := purger.Purge(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				errutil.LogWarn(logger, "otp purge failed", err)
				continue
			}
			if n > 0 {
				logger.DebugContext(ctx, "expired reset codes purged", "count", n)
			}
			if recorder != nil {
				recorder.RecordOtpPurged(n)
			}
		}
	}
}
