package orchestrator

import (
	"context"
	"math/rand"
	"time"

	"github.com/jherleth/salvo-ai/internal/adapter"
	"github.com/jherleth/salvo-ai/internal/runner"
)

const (
	retryBaseDelay = 500 * time.Millisecond
	retryMaxDelay  = 30 * time.Second
)

// retryWithBackoff runs fn up to maxRetries+1 times, retrying only
// transient adapter errors. Delays grow exponentially from retryBaseDelay
// up to retryMaxDelay with full jitter so concurrent trials do not
// hammer a recovering provider in lockstep.
func retryWithBackoff(ctx context.Context, maxRetries int, fn func() (*runner.Trace, error)) (*runner.Trace, int, error) {
	retries := 0

	for attempt := 0; ; attempt++ {
		trace, err := fn()
		if err == nil {
			return trace, retries, nil
		}
		if !adapter.IsTransient(err) || attempt >= maxRetries {
			return nil, retries, err
		}
		if ctx.Err() != nil {
			return nil, retries, ctx.Err()
		}

		retries++
		delay := retryBaseDelay << attempt
		if delay > retryMaxDelay {
			delay = retryMaxDelay
		}
		jittered := time.Duration(rand.Float64() * float64(delay))

		timer := time.NewTimer(jittered)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, retries, ctx.Err()
		case <-timer.C:
		}
	}
}
