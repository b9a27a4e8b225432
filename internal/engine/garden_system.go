package engine

import (
	"context"

	"github.com/webrender/rphq-bot/internal/domain/garden"
	"github.com/webrender/rphq-bot/internal/events"
	"github.com/webrender/rphq-bot/internal/infra/storage"
	"github.com/webrender/rphq-bot/internal/platform/metrics"
)

// GardenSystem owns garden creation and the plant/harvest lifecycle.
type GardenSystem struct {
	engine *Engine
}

func NewGardenSystem(e *Engine) *GardenSystem {
	return &GardenSystem{engine: e}
}

// GetOrCreate returns the member's garden, creating it on first visit.
// With readOnly set (someone else peeking at the garden) a missing garden
// is ErrNotFound instead of being created.
func (s *GardenSystem) GetOrCreate(ctx context.Context, guildID, userID string, readOnly bool) (garden.Garden, bool, error) {
	e := s.engine

	if readOnly {
		if e.cache != nil {
			if cached, ok := e.cache.GetGarden(ctx, guildID, userID); ok {
				return *cached, false, nil
			}
		}
		g, err := e.loadGarden(ctx, e.store.Stores().Items, guildID, userID)
		if err != nil {
			return garden.Garden{}, false, storeErr(err)
		}
		if !g.HasHouse() {
			return garden.Garden{}, false, ErrNotFound
		}
		if e.cache != nil {
			e.cache.SetGarden(ctx, guildID, userID, g)
		}
		return g, false, nil
	}

	unlock := e.locks.Lock(guildID, userID)
	defer unlock()

	g, err := e.loadGarden(ctx, e.store.Stores().Items, guildID, userID)
	if err != nil {
		return garden.Garden{}, false, storeErr(err)
	}
	if g.HasHouse() {
		return g, false, nil
	}

	// First visit: a house, one random starter crop the member does not
	// already hold, and zero-balance coin and water counters.
	now := e.now()
	starter := s.starterCrop(g)
	err = e.store.Run(ctx, func(st storage.Stores) error {
		return st.Items.InsertStacks(ctx, []storage.ItemStack{
			{
				GuildID: guildID, UserID: userID, Kind: string(garden.KindHouse),
				X: garden.HouseX, Y: garden.HouseY, Quantity: 1,
				CreatedAt: now, UpdatedAt: now,
			},
			{
				GuildID: guildID, UserID: userID, Kind: string(starter),
				Quantity: 1, CreatedAt: now, UpdatedAt: now,
			},
			{
				GuildID: guildID, UserID: userID, Kind: string(garden.KindCoins),
				CreatedAt: now, UpdatedAt: now,
			},
			{
				GuildID: guildID, UserID: userID, Kind: string(garden.KindWater),
				CreatedAt: now, UpdatedAt: now,
			},
		})
	})
	if err != nil {
		return garden.Garden{}, false, storeErr(err)
	}

	e.invalidate(ctx, guildID, userID)
	e.emit(events.EventTypeGardenCreated, guildID, userID, "", map[string]interface{}{
		"starter_crop": string(starter),
	})
	e.logger.Event("GARDEN_CREATED", userID, "Starter crop "+string(starter))

	g, err = e.loadGarden(ctx, e.store.Stores().Items, guildID, userID)
	if err != nil {
		return garden.Garden{}, false, storeErr(err)
	}
	return g, true, nil
}

// starterCrop picks a random crop the member does not hold yet; when every
// crop is held the pool resets to the full set.
func (s *GardenSystem) starterCrop(g garden.Garden) garden.Kind {
	owned := g.OwnedCrops()
	var pool []garden.Kind
	for _, k := range garden.Crops {
		if !owned[k] {
			pool = append(pool, k)
		}
	}
	if len(pool) == 0 {
		pool = garden.Crops
	}
	return pool[s.engine.randIntn(len(pool))]
}

// Plant sows one seed of kind onto a free grid tile. The seed is the oldest
// stored unit of that kind; planting starts at stage zero.
func (s *GardenSystem) Plant(ctx context.Context, guildID, userID string, kind garden.Kind, tile garden.Tile) error {
	e := s.engine

	if !kind.IsCrop() || !tile.InGrid() {
		return ErrInvalidTarget
	}

	unlock := e.locks.Lock(guildID, userID)
	defer unlock()

	now := e.now()
	err := e.store.Run(ctx, func(st storage.Stores) error {
		g, err := e.loadGarden(ctx, st.Items, guildID, userID)
		if err != nil {
			return err
		}
		if !g.HasHouse() {
			return ErrNotFound
		}
		if g.At(tile) != nil {
			return ErrOccupiedTile
		}

		seeds := g.StorageQueue(kind)
		if len(seeds) == 0 {
			return ErrNotFound
		}
		if err := st.Items.DeleteStacks(ctx, []int64{seeds[0].ID}); err != nil {
			return err
		}
		return st.Items.InsertStacks(ctx, []storage.ItemStack{{
			GuildID: guildID, UserID: userID, Kind: string(kind),
			X: tile.X, Y: tile.Y, Quantity: 0,
			CreatedAt: now, UpdatedAt: now,
		}})
	})
	if err != nil {
		return wrapStore(err)
	}

	e.invalidate(ctx, guildID, userID)
	metrics.Get().RecordOp("plant")
	e.emit(events.EventTypePlant, guildID, userID, "", map[string]interface{}{
		"kind": string(kind), "x": tile.X, "y": tile.Y,
	})
	return nil
}

// Harvest clears planted crops and moves their yield to storage: a crop at
// stage q becomes q-1 stored units. With no tiles given, every crop past
// stage one is harvested; explicitly chosen tiles are harvested as-is.
func (s *GardenSystem) Harvest(ctx context.Context, guildID, userID string, tiles []garden.Tile) (int, error) {
	e := s.engine

	unlock := e.locks.Lock(guildID, userID)
	defer unlock()

	now := e.now()
	units := 0
	var kinds []string
	err := e.store.Run(ctx, func(st storage.Stores) error {
		units = 0
		kinds = kinds[:0]

		g, err := e.loadGarden(ctx, st.Items, guildID, userID)
		if err != nil {
			return err
		}
		if !g.HasHouse() {
			return ErrNotFound
		}

		var targets []garden.Stack
		if len(tiles) == 0 {
			for _, stk := range g.Stacks {
				if stk.Planted() && stk.Quantity >= 2 {
					targets = append(targets, stk)
				}
			}
		} else {
			for _, t := range tiles {
				stk := g.At(t)
				if stk == nil || !stk.Planted() {
					return ErrInvalidTarget
				}
				targets = append(targets, *stk)
			}
		}
		if len(targets) == 0 {
			return ErrNotFound
		}

		for _, stk := range targets {
			if err := st.Items.DeleteStacks(ctx, []int64{stk.ID}); err != nil {
				return err
			}
			yield := stk.Quantity - 1
			if yield < 0 {
				yield = 0
			}
			var harvested []storage.ItemStack
			for i := 0; i < yield; i++ {
				harvested = append(harvested, storage.ItemStack{
					GuildID: guildID, UserID: userID, Kind: string(stk.Kind),
					Quantity: 1, CreatedAt: now, UpdatedAt: now,
				})
			}
			if err := st.Items.InsertStacks(ctx, harvested); err != nil {
				return err
			}
			units += yield
			kinds = append(kinds, string(stk.Kind))
		}
		return nil
	})
	if err != nil {
		return 0, wrapStore(err)
	}

	e.invalidate(ctx, guildID, userID)
	metrics.Get().RecordOp("harvest")
	e.emit(events.EventTypeHarvest, guildID, userID, "", map[string]interface{}{
		"units": units, "kinds": kinds,
	})
	return units, nil
}
