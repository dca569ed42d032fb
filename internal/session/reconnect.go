package session

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/atelierdesign/site-chat/internal/transport"
)

// ReconnectPolicy bounds automatic reconnection with exponential backoff.
type ReconnectPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxTries        uint
	MaxElapsedTime  time.Duration
}

// DefaultReconnectPolicy gives up after five attempts or two minutes.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     15 * time.Second,
		MaxTries:        5,
		MaxElapsedTime:  2 * time.Minute,
	}
}

func (p ReconnectPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	return b
}

// dial retries dialer until it succeeds, the policy is exhausted or ctx ends.
func (p ReconnectPolicy) dial(ctx context.Context, dialer transport.Dialer) (transport.Conn, error) {
	opts := []backoff.RetryOption{backoff.WithBackOff(p.backOff())}
	if p.MaxTries > 0 {
		opts = append(opts, backoff.WithMaxTries(p.MaxTries))
	}
	if p.MaxElapsedTime > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(p.MaxElapsedTime))
	}

	return backoff.Retry(ctx, func() (transport.Conn, error) {
		conn, err := dialer.Dial(ctx)
		if err != nil && ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return conn, err
	}, opts...)
}
