package engine

import (
	"context"

	"github.com/webrender/rphq-bot/internal/domain/garden"
	"github.com/webrender/rphq-bot/internal/events"
	"github.com/webrender/rphq-bot/internal/infra/storage"
	"github.com/webrender/rphq-bot/internal/platform/metrics"
)

// EconomySystem owns the seed store and the produce stand, including the
// daily stalk market price for corn.
type EconomySystem struct {
	engine *Engine
}

func NewEconomySystem(e *Engine) *EconomySystem {
	return &EconomySystem{engine: e}
}

// SellLine is one kind in a sale basket. N of zero or less sells every
// stored unit of the kind.
type SellLine struct {
	Kind garden.Kind
	N    int
}

// ReceiptLine is the priced result of one sale line.
type ReceiptLine struct {
	Kind      garden.Kind `json:"kind"`
	Units     int         `json:"units"`
	UnitPrice int         `json:"unit_price"`
}

// Receipt totals a completed sale.
type Receipt struct {
	Total int           `json:"total"`
	Lines []ReceiptLine `json:"lines"`
}

// Buy purchases n seeds of kind at the flat store price. The coin debit is
// conditional, so two simultaneous purchases cannot overdraw the balance.
func (s *EconomySystem) Buy(ctx context.Context, guildID, userID string, kind garden.Kind, n int) error {
	e := s.engine

	if !kind.IsCrop() || n < 1 {
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

		err = st.Items.SpendCounter(ctx, guildID, userID, string(garden.KindCoins), garden.SeedPrice*n, now)
		if err == storage.ErrInsufficient {
			return ErrInsufficientFunds
		}
		if err != nil {
			return err
		}

		bought := make([]storage.ItemStack, n)
		for i := range bought {
			bought[i] = storage.ItemStack{
				GuildID: guildID, UserID: userID, Kind: string(kind),
				Quantity: 1, CreatedAt: now, UpdatedAt: now,
			}
		}
		return st.Items.InsertStacks(ctx, bought)
	})
	if err != nil {
		return wrapStore(err)
	}

	e.invalidate(ctx, guildID, userID)
	metrics.Get().RecordOp("buy")
	e.emit(events.EventTypeBuy, guildID, userID, "", map[string]interface{}{
		"kind": string(kind), "n": n, "cost": garden.SeedPrice * n,
	})
	return nil
}

// Sell trades a basket of stored units for coins, consuming oldest units
// first. Corn is priced at the seller's stalk price for today; everything
// else at the flat fruit price.
func (s *EconomySystem) Sell(ctx context.Context, guildID, userID string, lines []SellLine) (Receipt, error) {
	e := s.engine

	if len(lines) == 0 {
		return Receipt{}, ErrInvalidTarget
	}
	for _, line := range lines {
		if !line.Kind.IsCrop() {
			return Receipt{}, ErrInvalidTarget
		}
	}

	unlock := e.locks.Lock(guildID, userID)
	defer unlock()

	now := e.now()
	var receipt Receipt
	err := e.store.Run(ctx, func(st storage.Stores) error {
		receipt = Receipt{}

		g, err := e.loadGarden(ctx, st.Items, guildID, userID)
		if err != nil {
			return err
		}
		if !g.HasHouse() {
			return ErrNotFound
		}

		for _, line := range lines {
			queue := g.StorageQueue(line.Kind)
			n := line.N
			if n <= 0 {
				n = len(queue)
			}
			if n == 0 || len(queue) < n {
				return ErrNotFound
			}

			ids := make([]int64, n)
			for i := 0; i < n; i++ {
				ids[i] = queue[i].ID
			}
			if err := st.Items.DeleteStacks(ctx, ids); err != nil {
				return err
			}

			price := garden.FruitSalePrice
			if line.Kind == garden.KindCorn {
				price = e.stalkPricer(userID, now)
			}
			receipt.Lines = append(receipt.Lines, ReceiptLine{Kind: line.Kind, Units: n, UnitPrice: price})
			receipt.Total += n * price
		}

		return st.Items.AddCounter(ctx, guildID, userID, string(garden.KindCoins), receipt.Total, now)
	})
	if err != nil {
		return Receipt{}, wrapStore(err)
	}

	e.invalidate(ctx, guildID, userID)
	metrics.Get().RecordOp("sell")
	e.emit(events.EventTypeSell, guildID, userID, "", receipt)
	return receipt, nil
}
