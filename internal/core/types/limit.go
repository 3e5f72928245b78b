package types

import (
	"context"
	"io"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"
)

const (
	DefaultConcurrency = 10
	DefaultRateLimit   = 1 * humanize.GByte // 1GB/s
	DefaultRateBurst   = 1 * humanize.MByte
)

// RateLimiter throttles byte transfers.
type RateLimiter struct {
	*rate.Limiter
}

func DefaultRateLimiter() *RateLimiter {
	return NewRateLimiter(DefaultRateLimit, DefaultRateBurst, DefaultConcurrency)
}

// NewRateLimiter creates a limiter for the given sustained rate. A zero rate
// means unlimited.
func NewRateLimiter(rateLimit, rateBurst Bytes, concurrency int) *RateLimiter {
	rateInt := rateLimit.Bytes()
	if rateInt == 0 {
		return &RateLimiter{rate.NewLimiter(rate.Inf, 0)}
	}

	// Burst scales with concurrency but is capped at a tenth of the rate.
	burstSize := int(rateBurst.Bytes()) * concurrency
	if burstSize > int(rateInt/10) {
		burstSize = int(rateInt / 10)
	}
	if burstSize < 1 {
		burstSize = 1
	}

	return &RateLimiter{rate.NewLimiter(rate.Limit(rateInt), burstSize)}
}

// ReaderFunc adapts a function to io.Reader.
type ReaderFunc func(p []byte) (int, error)

func (f ReaderFunc) Read(p []byte) (int, error) { return f(p) }

// Reader wraps r with rate limiting and context cancellation. Each read
// waits for limiter capacity before returning.
func (rl *RateLimiter) Reader(ctx context.Context, r io.Reader) io.Reader {
	return ReaderFunc(func(p []byte) (int, error) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, err := r.Read(p)
		if n > 0 && rl != nil {
			if werr := rl.WaitN(ctx, n); werr != nil {
				return n, werr
			}
		}
		return n, err
	})
}
