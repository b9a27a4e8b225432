package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/webrender/rphq-bot/internal/domain/garden"
	"github.com/webrender/rphq-bot/internal/events"
	"github.com/webrender/rphq-bot/internal/infra/storage"
	"github.com/webrender/rphq-bot/internal/platform/metrics"
)

// GrowthSystem advances every planted crop in the world on each tick.
// Missed ticks are not backfilled: growth is a flat increment per
// invocation, however late the tick fires.
type GrowthSystem struct {
	engine  *Engine
	running int32
}

func NewGrowthSystem(e *Engine) *GrowthSystem {
	return &GrowthSystem{engine: e}
}

// TickReport summarizes one growth pass.
type TickReport struct {
	Grown        int64 `json:"grown"`
	WateredBonus int64 `json:"watered_bonus"`
	Withered     int64 `json:"withered"`
	Spoiled      int64 `json:"spoiled"`
	Skipped      bool  `json:"skipped"`
}

// RunTick runs one growth pass over the whole world. Overlapping calls are
// skipped rather than queued; the next scheduled tick covers them.
//
// Order matters: wither runs before growth, otherwise the growth update
// would refresh the neglect timestamps and no crop could ever wither.
func (s *GrowthSystem) RunTick(ctx context.Context) (TickReport, error) {
	e := s.engine

	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return TickReport{Skipped: true}, nil
	}
	defer atomic.StoreInt32(&s.running, 0)

	start := time.Now()
	now := e.now()
	cutoff := now.Add(-garden.WitherAge)
	kinds := cropKinds()

	var report TickReport
	err := e.store.Run(ctx, func(st storage.Stores) error {
		var err error

		// Neglected crops reset to stage one before anything grows.
		if report.Withered, err = st.Items.ResetWithered(ctx, kinds, cutoff, now); err != nil {
			return err
		}

		// Every planted crop below max stage advances one stage; watered
		// ones advance a second.
		if report.Grown, err = st.Items.GrowPlanted(ctx, kinds, false, garden.MaxStage, now); err != nil {
			return err
		}
		if report.WateredBonus, err = st.Items.GrowPlanted(ctx, kinds, true, garden.MaxStage, now); err != nil {
			return err
		}

		// Watering lasts one tick.
		if err = st.Items.ClearWatered(ctx, now); err != nil {
			return err
		}

		// Stored produce spoils after the same age planted crops wither.
		report.Spoiled, err = st.Items.DeleteSpoiledStorage(ctx, kinds, cutoff)
		return err
	})
	if err != nil {
		return TickReport{}, storeErr(err)
	}

	if e.cache != nil {
		e.cache.InvalidateAll(ctx)
	}
	metrics.Get().RecordTick(time.Since(start))
	e.emit(events.EventTypeGrowthTick, "", "SYSTEM", "", report)
	e.logger.Info("Growth tick: %d grown, %d watered bonus, %d withered, %d spoiled",
		report.Grown, report.WateredBonus, report.Withered, report.Spoiled)
	return report, nil
}
