package routing

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/Kilat-Pet-Delivery/service-navigation/internal/domain/geo"
	"github.com/Kilat-Pet-Delivery/service-navigation/internal/domain/navigation"
)

// RetryPolicy bounds how a RetryingFetcher retries.
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy retries twice starting at 250ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      2,
		InitialInterval: 250 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

// RetryingFetcher retries EngineUnavailable failures with exponential
// backoff. NoPathFound and every other error are returned immediately.
type RetryingFetcher struct {
	next   navigation.RouteFetcher
	policy RetryPolicy
	logger *zap.Logger
}

// NewRetryingFetcher wraps next with retries.
func NewRetryingFetcher(next navigation.RouteFetcher, policy RetryPolicy, logger *zap.Logger) *RetryingFetcher {
	return &RetryingFetcher{next: next, policy: policy, logger: logger}
}

// FetchRoute implements navigation.RouteFetcher.
func (r *RetryingFetcher) FetchRoute(ctx context.Context, start, end geo.Coordinate, alternatives bool) (*navigation.RoutePlan, error) {
	var plan *navigation.RoutePlan
	op := func() error {
		p, err := r.next.FetchRoute(ctx, start, end, alternatives)
		if err != nil {
			if navigation.IsRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		plan = p
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.policy.InitialInterval
	b.MaxInterval = r.policy.MaxInterval
	b.MaxElapsedTime = 0

	notify := func(err error, wait time.Duration) {
		r.logger.Warn("routing engine unavailable, retrying",
			zap.Stringer("start", start),
			zap.Stringer("end", end),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
	}

	err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(b, r.policy.MaxRetries), ctx), notify)
	if err != nil {
		var re *navigation.RoutingError
		if !errors.As(err, &re) {
			return nil, navigation.NewEngineUnavailable("retry aborted", err)
		}
		return nil, err
	}
	return plan, nil
}
