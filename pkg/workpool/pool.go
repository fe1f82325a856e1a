// Package workpool runs independent items with bounded concurrency and an
// optional token-bucket rate limit.
package workpool

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const DefaultWidth = 5

// Pool bounds how many items run at once and how fast new items start.
type Pool struct {
	width   int
	limiter *rate.Limiter
}

// New returns a pool running at most width items concurrently. ratePerSec <= 0
// disables rate limiting; burst defaults to width.
func New(width int, ratePerSec float64, burst int) *Pool {
	if width <= 0 {
		width = DefaultWidth
	}
	if burst <= 0 {
		burst = width
	}
	p := &Pool{width: width}
	if ratePerSec > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(ratePerSec), burst)
	}
	return p
}

func (p *Pool) Width() int { return p.width }

// Run calls fn for i in [0, n). Item failures should be recorded by fn and
// not returned: a returned error cancels the remaining items and is returned
// from Run. Context cancellation stops scheduling new items.
func (p *Pool) Run(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	if n <= 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.width)

	for i := 0; i < n; i++ {
		if p.limiter != nil {
			if err := p.limiter.Wait(gctx); err != nil {
				break
			}
		}
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			return fn(gctx, i)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Map runs fn over items and returns the results in input order.
func Map[T, R any](ctx context.Context, p *Pool, items []T, fn func(ctx context.Context, item T) R) ([]R, error) {
	out := make([]R, len(items))
	err := p.Run(ctx, len(items), func(ctx context.Context, i int) error {
		out[i] = fn(ctx, items[i])
		return nil
	})
	return out, err
}
