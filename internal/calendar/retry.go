package calendar

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryConfig tunes the Retrying decorator.
type RetryConfig struct {
	// Timeout bounds a single remote call.
	Timeout time.Duration

	// MaxTries is the total number of attempts per call, first try included.
	MaxTries uint

	// InitialInterval is the first backoff delay between attempts.
	InitialInterval time.Duration
}

// DefaultRetryConfig matches the engine defaults: three attempts with a
// thirty second per-call timeout.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Timeout:         30 * time.Second,
		MaxTries:        3,
		InitialInterval: 500 * time.Millisecond,
	}
}

// Retrying wraps a Provider with a bounded per-call timeout and bounded
// exponential-backoff retries. Only transient failures (5xx, transport) are
// retried; auth and client errors fail immediately.
type Retrying struct {
	next Provider
	cfg  RetryConfig
}

// NewRetrying creates the retry decorator around next.
func NewRetrying(next Provider, cfg RetryConfig) *Retrying {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRetryConfig().Timeout
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = DefaultRetryConfig().MaxTries
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = DefaultRetryConfig().InitialInterval
	}
	return &Retrying{next: next, cfg: cfg}
}

// ListEvents implements Provider.
func (r *Retrying) ListEvents(ctx context.Context, accountID string, from, to time.Time) ([]Event, error) {
	return retryCall(ctx, r.cfg, func(ctx context.Context) ([]Event, error) {
		return r.next.ListEvents(ctx, accountID, from, to)
	})
}

// CreateEvent implements Provider.
func (r *Retrying) CreateEvent(ctx context.Context, accountID string, in EventInput) (string, error) {
	return retryCall(ctx, r.cfg, func(ctx context.Context) (string, error) {
		return r.next.CreateEvent(ctx, accountID, in)
	})
}

// UpdateEvent implements Provider.
func (r *Retrying) UpdateEvent(ctx context.Context, accountID, eventID string, in EventInput) error {
	_, err := retryCall(ctx, r.cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.next.UpdateEvent(ctx, accountID, eventID, in)
	})
	return err
}

// ListCalendars implements Provider.
func (r *Retrying) ListCalendars(ctx context.Context, accountID string) ([]CalendarInfo, error) {
	return retryCall(ctx, r.cfg, func(ctx context.Context) ([]CalendarInfo, error) {
		return r.next.ListCalendars(ctx, accountID)
	})
}

func retryCall[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	operation := func() (T, error) {
		callCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()

		v, err := fn(callCtx)
		if err != nil && !isRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.InitialInterval

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(cfg.MaxTries),
	)
}

// isRetryable reports whether the error is a transient provider failure.
func isRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	// Anything that is not a typed provider error (token refresh failures,
	// store errors) is handled by the caller, not retried here.
	return false
}
