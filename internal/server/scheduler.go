package server

import (
	"context"
	"sync/atomic"
	"time"
)

// DefaultTickRate is the number of ticks per second used when none is configured.
const DefaultTickRate = 60

// MaxTickRate caps the tick rate so the tick interval stays positive.
const MaxTickRate = 1000

// Scheduler replenishes every client's draw allowance once per tick.
type Scheduler struct {
	registry *Registry
	interval time.Duration
	ticks    atomic.Uint64
}

// NewScheduler ticks rate times per second. A non-positive rate falls back
// to DefaultTickRate, anything above MaxTickRate is clamped to it.
func NewScheduler(r *Registry, rate int) *Scheduler {
	if rate <= 0 {
		rate = DefaultTickRate
	}
	if rate > MaxTickRate {
		rate = MaxTickRate
	}
	return &Scheduler{registry: r, interval: time.Second / time.Duration(rate)}
}

// Tick refills the limiter of every registered session.
func (s *Scheduler) Tick() {
	for _, sess := range s.registry.Snapshot() {
		sess.limiter.Replenish()
	}
	s.ticks.Add(1)
}

// Ticks returns the number of completed ticks.
func (s *Scheduler) Ticks() uint64 { return s.ticks.Load() }

func (s *Scheduler) Interval() time.Duration { return s.interval }

// Run calls Tick on every interval until ctx ends.
func (s *Scheduler) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Tick()
		}
	}
}
