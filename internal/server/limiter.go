package server

import "context"

// PixelsPerTick is the number of PX commands a client may issue per tick.
const PixelsPerTick = 10

// RateLimiter is a counting semaphore topped up once per tick. Tokens live
// in a buffered channel whose capacity is the per-tick cap, so a refill can
// never overshoot and never blocks.
type RateLimiter struct {
	tokens chan struct{}
}

// NewRateLimiter returns an empty limiter. New clients wait for the first
// tick before drawing. A non-positive limit falls back to PixelsPerTick.
func NewRateLimiter(limit int) *RateLimiter {
	if limit <= 0 {
		limit = PixelsPerTick
	}
	return &RateLimiter{tokens: make(chan struct{}, limit)}
}

// Acquire takes one token, waiting for the next tick if none is left. It
// returns ctx's error if ctx ends first.
func (l *RateLimiter) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-l.tokens:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Replenish fills the limiter up to its cap.
func (l *RateLimiter) Replenish() {
	for {
		select {
		case l.tokens <- struct{}{}:
		default:
			return
		}
	}
}

// Tokens returns the number of tokens currently available.
func (l *RateLimiter) Tokens() int {
	return len(l.tokens)
}
