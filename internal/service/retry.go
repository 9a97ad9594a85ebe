package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/voldermortik/blue-horizon-ai-concierge/internal/apperr"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/config"
)

// RetryPolicy retries transient tool failures with jittered exponential backoff.
// Terminal kinds (rejected query, unavailable, translation failure) run once.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64       // randomization factor in [0, 1]
	CallTimeout time.Duration // per attempt; zero leaves the caller's deadline
}

// NewRetryPolicy builds the policy from orchestrator settings
func NewRetryPolicy(cfg config.OrchestratorConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		MaxDelay:    cfg.MaxDelay,
		Jitter:      cfg.Jitter,
		CallTimeout: cfg.ToolTimeout,
	}
}

// RetryNotify is called before each retry with the error that caused it
type RetryNotify func(err error, attempt int, wait time.Duration)

// Do runs fn until it succeeds, fails with a non-transient kind, runs out of
// attempts or ctx ends. It returns the number of attempts made.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error, notify RetryNotify) (int, error) {
	attempts := 0
	operation := func() error {
		attempts++
		err := p.call(ctx, fn)
		if err == nil {
			return nil
		}
		if !apperr.Transient(apperr.KindOf(err)) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.RetryNotify(operation, p.backOff(ctx), func(err error, wait time.Duration) {
		if notify != nil {
			notify(err, attempts, wait)
		}
	})
	return attempts, err
}

func (p RetryPolicy) call(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.CallTimeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, p.CallTimeout)
	defer cancel()
	return fn(callCtx)
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.MaxInterval = p.MaxDelay
	b.RandomizationFactor = p.Jitter
	b.MaxElapsedTime = 0
	b.Reset()

	retries := p.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}
