package main

import (
	"context"
	"log"
	"time"

	"cookietrail/services/recorder/internal/session"
)

// startSessionSweeper drops sessions idle for longer than idleTimeout. A zero
// timeout keeps sessions for the process lifetime.
func startSessionSweeper(ctx context.Context, registry *session.Registry, interval, idleTimeout time.Duration) {
	if interval <= 0 || idleTimeout <= 0 {
		return
	}
	go runSweepLoop(ctx, registry, interval, idleTimeout)
}

func runSweepLoop(ctx context.Context, registry *session.Registry, interval, idleTimeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runSweepCycle(registry, time.Now(), idleTimeout)
		}
	}
}

func runSweepCycle(registry *session.Registry, now time.Time, idleTimeout time.Duration) int {
	removed := registry.PruneIdle(now.Add(-idleTimeout))
	if removed > 0 {
		log.Printf("session sweep completed removed=%d remaining=%d", removed, registry.Len())
	}
	return removed
}
