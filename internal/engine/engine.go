package engine

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/webrender/rphq-bot/internal/domain/garden"
	"github.com/webrender/rphq-bot/internal/domain/trade"
	"github.com/webrender/rphq-bot/internal/events"
	"github.com/webrender/rphq-bot/internal/infra/storage"
	"github.com/webrender/rphq-bot/internal/platform/logger"
)

// SnapshotCache is the read cache the engine invalidates on every write.
// A nil cache disables caching entirely.
type SnapshotCache interface {
	GetGarden(ctx context.Context, guildID, userID string) (*garden.Garden, bool)
	SetGarden(ctx context.Context, guildID, userID string, g garden.Garden)
	Invalidate(ctx context.Context, guildID, userID string)
	InvalidateAll(ctx context.Context)
}

// Engine is the central orchestrator that wires the repositories, the event
// ledger and the cache to the economy mechanics.
type Engine struct {
	store    storage.Store
	eventLog *events.EventLog
	cache    SnapshotCache
	logger   *logger.Logger
	locks    *ownerLocks
	ticker   *Ticker

	// Sub-systems
	gardens *GardenSystem
	economy *EconomySystem
	trading *TradeSystem
	growth  *GrowthSystem
	gifts   *GiftSystem
	faucet  *WaterSystem

	// Injectable seams; production values unless a test overrides them.
	now         func() time.Time
	stalkPricer func(userID string, t time.Time) int
	rngMu       sync.Mutex
	rng         *rand.Rand
}

// NewEngine initializes the economy systems and dependencies. cache may be
// nil to run without a read cache.
func NewEngine(store storage.Store, eventLog *events.EventLog, cache SnapshotCache, log *logger.Logger) *Engine {
	e := &Engine{
		store:       store,
		eventLog:    eventLog,
		cache:       cache,
		logger:      log,
		locks:       newOwnerLocks(),
		now:         time.Now,
		stalkPricer: garden.StalkPrice,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	e.gardens = NewGardenSystem(e)
	e.economy = NewEconomySystem(e)
	e.trading = NewTradeSystem(e)
	e.growth = NewGrowthSystem(e)
	e.gifts = NewGiftSystem(e)
	e.faucet = NewWaterSystem(e)
	e.ticker = NewTicker(e, log)

	return e
}

// Start loads persisted state and spawns the background ticker.
func (e *Engine) Start(ctx context.Context, growthInterval, flushInterval time.Duration) error {
	e.logger.Info("Starting garden engine...")
	if err := e.faucet.Load(ctx); err != nil {
		return err
	}
	go e.ticker.Start(ctx, growthInterval, flushInterval)
	return nil
}

// SetClock overrides the engine clock. Tests use this to pin the day.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// SetStalkPricer overrides the corn price function.
func (e *Engine) SetStalkPricer(fn func(userID string, t time.Time) int) {
	e.stalkPricer = fn
}

// SetRand overrides the randomness source for starter crops and gifts.
func (e *Engine) SetRand(r *rand.Rand) {
	e.rng = r
}

// GetEventLog exposes the ledger for the transport layer.
func (e *Engine) GetEventLog() *events.EventLog {
	return e.eventLog
}

// Garden model operations.

func (e *Engine) GetOrCreateGarden(ctx context.Context, guildID, userID string, readOnly bool) (garden.Garden, bool, error) {
	return e.gardens.GetOrCreate(ctx, guildID, userID, readOnly)
}

func (e *Engine) PlantCrop(ctx context.Context, guildID, userID string, kind garden.Kind, tile garden.Tile) error {
	return e.gardens.Plant(ctx, guildID, userID, kind, tile)
}

func (e *Engine) HarvestCrops(ctx context.Context, guildID, userID string, tiles []garden.Tile) (int, error) {
	return e.gardens.Harvest(ctx, guildID, userID, tiles)
}

func (e *Engine) WaterCrops(ctx context.Context, guildID, userID string, tiles []garden.Tile) (int, error) {
	return e.faucet.Water(ctx, guildID, userID, tiles)
}

// Economy operations.

func (e *Engine) BuyCrops(ctx context.Context, guildID, userID string, kind garden.Kind, n int) error {
	return e.economy.Buy(ctx, guildID, userID, kind, n)
}

func (e *Engine) SellCrops(ctx context.Context, guildID, userID string, lines []SellLine) (Receipt, error) {
	return e.economy.Sell(ctx, guildID, userID, lines)
}

// ComputeStalkPrice returns the member's corn price for today.
func (e *Engine) ComputeStalkPrice(userID string) int {
	return e.stalkPricer(userID, e.now())
}

// Trade operations.

func (e *Engine) ProposeTrade(ctx context.Context, offer trade.Offer) (trade.Offer, error) {
	return e.trading.Propose(ctx, offer)
}

func (e *Engine) CurrentOffer(ctx context.Context, guildID, userID string) (trade.Offer, error) {
	return e.trading.Current(ctx, guildID, userID)
}

func (e *Engine) AcceptTrade(ctx context.Context, guildID, offerUserID, acceptUserID string) (trade.Offer, error) {
	return e.trading.Accept(ctx, guildID, offerUserID, acceptUserID)
}

// Growth and gifts.

func (e *Engine) RunGrowthTick(ctx context.Context) (TickReport, error) {
	return e.growth.RunTick(ctx)
}

func (e *Engine) OpenGifts(ctx context.Context, guildID, userID string) ([]garden.Kind, error) {
	return e.gifts.Open(ctx, guildID, userID)
}

func (e *Engine) GrantGift(ctx context.Context, guildID, userID string, grantID int) error {
	return e.gifts.Grant(ctx, guildID, userID, grantID)
}

// Water faucet.

func (e *Engine) RecordCharacters(ctx context.Context, guildID, userID string, chars int, roleplay bool) (int, error) {
	return e.faucet.RecordCharacters(ctx, guildID, userID, chars, roleplay)
}

func (e *Engine) FlushCounts(ctx context.Context) error {
	return e.faucet.Flush(ctx)
}

// Shared helpers used by the sub-systems.

// emit appends one event to the ledger.
func (e *Engine) emit(t events.EventType, guildID, actorID, targetID string, payload interface{}) {
	e.eventLog.Append(events.GardenEvent{
		ID:        events.GenerateEventID(),
		Timestamp: e.now(),
		Type:      t,
		GuildID:   guildID,
		ActorID:   actorID,
		TargetID:  targetID,
		Payload:   payload,
	})
}

// invalidate drops the member's cached snapshot after a write.
func (e *Engine) invalidate(ctx context.Context, guildID, userID string) {
	if e.cache != nil {
		e.cache.Invalidate(ctx, guildID, userID)
	}
}

// randIntn is a locked rng read; systems share one source.
func (e *Engine) randIntn(n int) int {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.rng.Intn(n)
}

// loadGarden reads and converts one member's stacks through the given
// repositories, so reads inside a unit of work see the transaction.
func (e *Engine) loadGarden(ctx context.Context, items storage.ItemStore, guildID, userID string) (garden.Garden, error) {
	rows, err := items.ListStacks(ctx, guildID, userID)
	if err != nil {
		return garden.Garden{}, err
	}
	return garden.Garden{GuildID: guildID, UserID: userID, Stacks: toDomainStacks(rows)}, nil
}

func toDomainStacks(rows []storage.ItemStack) []garden.Stack {
	stacks := make([]garden.Stack, len(rows))
	for i, r := range rows {
		stacks[i] = garden.Stack{
			ID:        r.ID,
			GuildID:   r.GuildID,
			UserID:    r.UserID,
			Kind:      garden.Kind(r.Kind),
			X:         r.X,
			Y:         r.Y,
			Quantity:  r.Quantity,
			Watered:   r.Watered,
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		}
	}
	return stacks
}

// cropKinds returns the crop set as storage strings.
func cropKinds() []string {
	kinds := make([]string, len(garden.Crops))
	for i, k := range garden.Crops {
		kinds[i] = string(k)
	}
	return kinds
}
