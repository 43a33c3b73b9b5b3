package connector

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	domain "github.com/oshokin/conda-channel-resource/internal/domain/channel"
	"github.com/oshokin/conda-channel-resource/internal/logger"
)

const (
	defaultRetryInitialInterval = 500 * time.Millisecond
	defaultRetryMaxInterval     = 10 * time.Second
)

// retryPolicy wraps transport calls in bounded exponential backoff.
// The zero policy performs every call exactly once.
type retryPolicy struct {
	maxRetries      int
	initialInterval time.Duration
	maxInterval     time.Duration
}

func newRetryPolicy(maxRetries int) retryPolicy {
	return retryPolicy{
		maxRetries:      maxRetries,
		initialInterval: defaultRetryInitialInterval,
		maxInterval:     defaultRetryMaxInterval,
	}
}

func (p retryPolicy) enabled() bool {
	return p.maxRetries > 0
}

// do runs op until it succeeds, the retries are spent or ctx is done.
// Missing objects are never retried.
func (p retryPolicy) do(ctx context.Context, op func() error) error {
	if !p.enabled() {
		return op()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.initialInterval
	b.MaxInterval = p.maxInterval
	b.MaxElapsedTime = 0

	//nolint:gosec // maxRetries is validated to be in [0, config.MaxRetries].
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.maxRetries)), ctx)

	return backoff.RetryNotify(
		func() error {
			err := op()
			if errors.Is(err, domain.ErrNoSuchObject) {
				return backoff.Permanent(err)
			}

			return err
		},
		policy,
		func(err error, wait time.Duration) {
			logger.WarnKV(ctx, "Transport call failed, retrying", "error", err, "wait", wait)
		},
	)
}
