package adapter

import (
	"context"
	"math/rand"
	"time"
)

// Publish retry pacing. The delay grows exponentially from retryBase
// up to retryCap with half jitter, so adapters retrying against the
// same endpoint spread out.
const (
	retryBase = 500 * time.Millisecond
	retryCap  = 8 * time.Second
)

// Retry runs publish up to attempts times, sleeping a jittered
// exponential delay between tries. It stops early on success, on an
// error permanent reports true for, or when ctx is done. The returned
// error is the last publish error, or the context error when the run
// was cut short.
func Retry(ctx context.Context, attempts int, permanent func(error) bool, publish func() error) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 {
			if err := sleep(ctx, retryDelay(i)); err != nil {
				return err
			}
		}

		lastErr = publish()
		if lastErr == nil {
			return nil
		}
		if permanent != nil && permanent(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// retryDelay computes the delay before retry number retry (1-based).
func retryDelay(retry int) time.Duration {
	d := retryBase
	for i := 1; i < retry; i++ {
		d *= 2
		if d >= retryCap {
			d = retryCap
			break
		}
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
