package engine

import (
	"context"
	"sync"

	"github.com/webrender/rphq-bot/internal/domain/garden"
	"github.com/webrender/rphq-bot/internal/events"
	"github.com/webrender/rphq-bot/internal/infra/storage"
	"github.com/webrender/rphq-bot/internal/platform/metrics"
)

// WaterSystem owns the watering can: the roleplay-characters faucet that
// fills it and the watering operation that drains it.
type WaterSystem struct {
	engine *Engine

	mu      sync.Mutex
	tallies map[string]*charTally
}

// charTally accumulates roleplay characters toward the next unit of water.
// Tallies live in memory and flush to the store periodically.
type charTally struct {
	guildID string
	userID  string
	pending int
	dirty   bool
}

func NewWaterSystem(e *Engine) *WaterSystem {
	return &WaterSystem{
		engine:  e,
		tallies: make(map[string]*charTally),
	}
}

// Load restores persisted tallies after a restart.
func (s *WaterSystem) Load(ctx context.Context) error {
	counts, err := s.engine.store.Stores().Counts.ListCounts(ctx)
	if err != nil {
		return storeErr(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range counts {
		s.tallies[c.GuildID+"|"+c.UserID] = &charTally{
			guildID: c.GuildID,
			userID:  c.UserID,
			pending: c.Characters,
		}
	}
	return nil
}

// RecordCharacters credits a member for a message. Roleplay channels count
// triple. Every full thousand characters converts to one unit of water, up
// to the can's cap; the overflow stays banked for the next message.
// Returns how many units were awarded.
func (s *WaterSystem) RecordCharacters(ctx context.Context, guildID, userID string, chars int, roleplay bool) (int, error) {
	e := s.engine

	if chars <= 0 {
		return 0, nil
	}
	weighted := chars
	if roleplay {
		weighted *= garden.RoleplayWeight
	}

	s.mu.Lock()
	key := guildID + "|" + userID
	t, ok := s.tallies[key]
	if !ok {
		t = &charTally{guildID: guildID, userID: userID}
		s.tallies[key] = t
	}
	t.pending += weighted
	awards := t.pending / garden.CharactersPerWater
	t.pending %= garden.CharactersPerWater
	t.dirty = true
	s.mu.Unlock()

	if awards == 0 {
		return 0, nil
	}

	now := e.now()
	err := e.store.Run(ctx, func(st storage.Stores) error {
		return st.Items.AddCounterCapped(ctx, guildID, userID, string(garden.KindWater), awards, garden.WaterCap, now)
	})
	if err != nil {
		return 0, storeErr(err)
	}

	e.invalidate(ctx, guildID, userID)
	e.emit(events.EventTypeWaterCredited, guildID, userID, "", map[string]interface{}{
		"units": awards,
	})
	return awards, nil
}

// Flush persists every tally touched since the last flush.
func (s *WaterSystem) Flush(ctx context.Context) error {
	e := s.engine
	now := e.now()

	s.mu.Lock()
	var pending []storage.CharCount
	var flushed []*charTally
	for _, t := range s.tallies {
		if t.dirty {
			pending = append(pending, storage.CharCount{
				GuildID: t.guildID, UserID: t.userID,
				Characters: t.pending, UpdatedAt: now,
			})
			flushed = append(flushed, t)
		}
	}
	s.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	counts := e.store.Stores().Counts
	for _, c := range pending {
		if err := counts.UpsertCount(ctx, c); err != nil {
			return storeErr(err)
		}
	}

	s.mu.Lock()
	for _, t := range flushed {
		t.dirty = false
	}
	s.mu.Unlock()
	return nil
}

// Water waters planted crops, one unit of water per tile. Only unwatered
// crops below stage five qualify. With no tiles given, every qualifying
// crop is watered, provided the can covers them all.
func (s *WaterSystem) Water(ctx context.Context, guildID, userID string, tiles []garden.Tile) (int, error) {
	e := s.engine

	unlock := e.locks.Lock(guildID, userID)
	defer unlock()

	now := e.now()
	watered := 0
	err := e.store.Run(ctx, func(st storage.Stores) error {
		g, err := e.loadGarden(ctx, st.Items, guildID, userID)
		if err != nil {
			return err
		}
		if !g.HasHouse() {
			return ErrNotFound
		}

		var targets []garden.Stack
		if len(tiles) == 0 {
			targets = g.WaterableStacks()
			if len(targets) == 0 {
				return ErrNotFound
			}
		} else {
			for _, tl := range tiles {
				stk := g.At(tl)
				if stk == nil || !stk.Waterable() {
					return ErrInvalidTarget
				}
				targets = append(targets, *stk)
			}
		}

		err = st.Items.SpendCounter(ctx, guildID, userID, string(garden.KindWater), len(targets), now)
		if err == storage.ErrInsufficient {
			return ErrInsufficientFunds
		}
		if err != nil {
			return err
		}

		ids := make([]int64, len(targets))
		for i, stk := range targets {
			ids[i] = stk.ID
		}
		watered = len(targets)
		return st.Items.SetWatered(ctx, ids, true, now)
	})
	if err != nil {
		return 0, wrapStore(err)
	}

	e.invalidate(ctx, guildID, userID)
	metrics.Get().RecordOp("water")
	e.emit(events.EventTypeWater, guildID, userID, "", map[string]interface{}{
		"tiles": watered,
	})
	return watered, nil
}
