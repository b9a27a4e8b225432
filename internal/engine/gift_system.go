package engine

import (
	"context"

	"github.com/webrender/rphq-bot/internal/domain/garden"
	"github.com/webrender/rphq-bot/internal/events"
	"github.com/webrender/rphq-bot/internal/infra/storage"
	"github.com/webrender/rphq-bot/internal/platform/metrics"
)

// GiftGrantIDs are the achievement tiers that award a crop gift.
var GiftGrantIDs = []int{30, 50}

// giftUnits is how many units of the drawn crop each gift contains.
const giftUnits = 3

// GiftSystem opens achievement gifts: each unopened grant draws a random
// crop and drops three units of it into storage, exactly once.
type GiftSystem struct {
	engine *Engine
}

func NewGiftSystem(e *Engine) *GiftSystem {
	return &GiftSystem{engine: e}
}

// Grant records a newly earned gift for later opening.
func (s *GiftSystem) Grant(ctx context.Context, guildID, userID string, grantID int) error {
	e := s.engine

	valid := false
	for _, id := range GiftGrantIDs {
		if id == grantID {
			valid = true
		}
	}
	if !valid {
		return ErrInvalidTarget
	}

	now := e.now()
	err := e.store.Run(ctx, func(st storage.Stores) error {
		return st.Gifts.InsertGrants(ctx, []storage.GiftGrant{{
			GuildID: guildID, UserID: userID, GrantID: grantID, CreatedAt: now,
		}})
	})
	return wrapStore(err)
}

// Open consumes every unopened gift the member holds. Crops are drawn
// without replacement from the full crop set, regardless of what the member
// already owns; when the pool runs dry mid-batch it resets. With no
// unopened gifts the call reports ErrNotFound, so opening twice cannot
// double-award.
func (s *GiftSystem) Open(ctx context.Context, guildID, userID string) ([]garden.Kind, error) {
	e := s.engine

	unlock := e.locks.Lock(guildID, userID)
	defer unlock()

	now := e.now()
	var drawn []garden.Kind
	err := e.store.Run(ctx, func(st storage.Stores) error {
		drawn = drawn[:0]

		grants, err := st.Gifts.ListUnopened(ctx, guildID, userID, GiftGrantIDs)
		if err != nil {
			return err
		}
		if len(grants) == 0 {
			return ErrNotFound
		}

		pool := append([]garden.Kind(nil), garden.Crops...)
		ids := make([]int64, 0, len(grants))
		for _, grant := range grants {
			if len(pool) == 0 {
				pool = append(pool, garden.Crops...)
			}
			i := e.randIntn(len(pool))
			kind := pool[i]
			pool = append(pool[:i], pool[i+1:]...)

			units := make([]storage.ItemStack, giftUnits)
			for j := range units {
				units[j] = storage.ItemStack{
					GuildID: guildID, UserID: userID, Kind: string(kind),
					Quantity: 1, CreatedAt: now, UpdatedAt: now,
				}
			}
			if err := st.Items.InsertStacks(ctx, units); err != nil {
				return err
			}
			drawn = append(drawn, kind)
			ids = append(ids, grant.ID)
		}

		return st.Gifts.MarkOpened(ctx, ids)
	})
	if err != nil {
		return nil, wrapStore(err)
	}

	e.invalidate(ctx, guildID, userID)
	metrics.Get().RecordOp("gift")
	kinds := make([]string, len(drawn))
	for i, k := range drawn {
		kinds[i] = string(k)
	}
	e.emit(events.EventTypeGiftOpened, guildID, userID, "", map[string]interface{}{
		"kinds": kinds, "units_each": giftUnits,
	})
	e.logger.Event("GIFT_OPENED", userID, "Opened gifts")
	return drawn, nil
}
