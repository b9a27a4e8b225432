// Package engine contains the garden economy mechanics.
//
// ARCHITECTURAL RULE: systems never reach into the database directly. All
// persistence goes through the storage interfaces, and every multi-step
// mutation runs inside one unit of work.
package engine

import (
	"context"
	"time"

	"github.com/webrender/rphq-bot/internal/platform/logger"
)

// Ticker drives the background cadences: the world growth tick and the
// periodic flush of roleplay character tallies.
// It does NOT know about gardens or prices - only time progression.
type Ticker struct {
	engine   *Engine
	logger   *logger.Logger
	stopChan chan struct{}
}

// NewTicker creates the background ticker.
func NewTicker(e *Engine, log *logger.Logger) *Ticker {
	return &Ticker{
		engine:   e,
		logger:   log,
		stopChan: make(chan struct{}),
	}
}

// Start begins both loops. Call in a goroutine.
func (t *Ticker) Start(ctx context.Context, growthInterval, flushInterval time.Duration) {
	t.logger.Info("Engine ticker started. Growth every %s, tally flush every %s.", growthInterval, flushInterval)

	growth := time.NewTicker(growthInterval)
	defer growth.Stop()
	flush := time.NewTicker(flushInterval)
	defer flush.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("Engine ticker stopped by context.")
			return
		case <-t.stopChan:
			t.logger.Info("Engine ticker stopped manually.")
			return
		case <-growth.C:
			report, err := t.engine.RunGrowthTick(ctx)
			if err != nil {
				t.logger.Error("Growth tick failed: %v", err)
				continue
			}
			if report.Skipped {
				t.logger.Warn("Growth tick skipped: previous tick still running.")
			}
		case <-flush.C:
			if err := t.engine.FlushCounts(ctx); err != nil {
				t.logger.Error("Tally flush failed: %v", err)
			}
		}
	}
}

// Stop gracefully stops the ticker.
func (t *Ticker) Stop() {
	close(t.stopChan)
}
