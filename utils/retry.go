package utils

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/saveio/paychan/errors"
	"github.com/saveio/themis/common/log"
)

// RetryPolicy bounds the exponential backoff between attempts. A zero
// MaxAttempts retries until the context is done.
type RetryPolicy struct {
	MinInterval time.Duration
	MaxInterval time.Duration
	MaxAttempts uint64
}

// NewRetryPolicy waits between pollingInterval and twice the http timeout.
func NewRetryPolicy(pollingInterval time.Duration, httpTimeout time.Duration, maxAttempts uint64) RetryPolicy {
	maxInterval := 2 * httpTimeout
	if maxInterval < pollingInterval {
		maxInterval = pollingInterval
	}
	return RetryPolicy{MinInterval: pollingInterval, MaxInterval: maxInterval, MaxAttempts: maxAttempts}
}

func (this RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = this.MinInterval
	exp.MaxInterval = this.MaxInterval
	exp.MaxElapsedTime = 0
	exp.Reset()

	var b backoff.BackOff = exp
	if this.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, this.MaxAttempts-1)
	}
	return backoff.WithContext(b, ctx)
}

// Retry runs op until it succeeds, fails with an error which is not
// retryable, runs out of attempts or ctx is done. The last error is returned.
func Retry(ctx context.Context, policy RetryPolicy, name string, op func() error) error {
	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if !errors.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy.backOff(ctx), func(err error, wait time.Duration) {
		log.Warnf("[Retry] %s attempt %d failed: %s, retry in %s", name, attempt, err, wait)
	})
}
