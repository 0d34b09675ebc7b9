// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package instapapersync

import (
	"context"
	"time"

	"github.com/grork/storyvoid/instapaper"
)

func isRetryableAPIError(err error) bool {
	return instapaper.HasCode(err, instapaper.CodeRateLimited)
}

// call runs op, retrying rate-limited attempts with exponential backoff.
// Anything else, connectivity failures included, is left to the next pass.
func call[T any](ctx context.Context, r *run, op func(context.Context) (T, error)) (T, error) {
	backoff := r.config.BackoffMin
	for attempt := 0; ; attempt++ {
		v, err := op(ctx)
		if err == nil || !isRetryableAPIError(err) || attempt >= r.config.RateLimitRetries {
			return v, err
		}

		r.logger.Debug("rate limited, backing off", "attempt", attempt+1, "backoff", backoff)
		if serr := sleepWithContext(ctx, backoff); serr != nil {
			return v, err
		}
		backoff *= 2
		if backoff > r.config.BackoffMax {
			backoff = r.config.BackoffMax
		}
	}
}

// callErr is call for operations without a result
func callErr(ctx context.Context, r *run, op func(context.Context) error) error {
	_, err := call(ctx, r, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
