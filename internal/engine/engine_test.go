package engine

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/webrender/rphq-bot/internal/domain/garden"
	"github.com/webrender/rphq-bot/internal/events"
	"github.com/webrender/rphq-bot/internal/infra/storage"
	"github.com/webrender/rphq-bot/internal/platform/logger"
)

const (
	testGuild = "guild-1"
	alice     = "alice"
	bob       = "bob"
)

var baseTime = time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

// testRig wires an engine over the in-memory store with a controllable
// clock and a seeded rng.
type testRig struct {
	eng   *Engine
	store *storage.MemoryStore
	now   time.Time
}

func newRig(t *testing.T) *testRig {
	t.Helper()
	rig := &testRig{
		store: storage.NewMemoryStore(),
		now:   baseTime,
	}
	rig.eng = NewEngine(rig.store, events.NewEventLog(nil), nil, logger.NewLogger())
	rig.eng.SetClock(func() time.Time { return rig.now })
	rig.eng.SetRand(rand.New(rand.NewSource(42)))
	return rig
}

func (r *testRig) advance(d time.Duration) {
	r.now = r.now.Add(d)
}

func (r *testRig) insert(t *testing.T, stacks ...storage.ItemStack) {
	t.Helper()
	err := r.store.Run(context.Background(), func(st storage.Stores) error {
		return st.Items.InsertStacks(context.Background(), stacks)
	})
	require.NoError(t, err)
}

// seedHouse initializes a garden without the random starter crop, so tests
// control the shed exactly.
func (r *testRig) seedHouse(t *testing.T, guildID, userID string) {
	t.Helper()
	r.insert(t, storage.ItemStack{
		GuildID: guildID, UserID: userID, Kind: string(garden.KindHouse),
		X: garden.HouseX, Y: garden.HouseY, Quantity: 1,
		CreatedAt: r.now, UpdatedAt: r.now,
	})
}

// seedShed adds n discrete stored units of kind, created at the given time.
func (r *testRig) seedShed(t *testing.T, guildID, userID string, kind garden.Kind, n int, created time.Time) {
	t.Helper()
	stacks := make([]storage.ItemStack, n)
	for i := range stacks {
		stacks[i] = storage.ItemStack{
			GuildID: guildID, UserID: userID, Kind: string(kind),
			Quantity: 1, CreatedAt: created, UpdatedAt: created,
		}
	}
	r.insert(t, stacks...)
}

// seedCounter sets a summed counter row (coins or water).
func (r *testRig) seedCounter(t *testing.T, guildID, userID string, kind garden.Kind, n int) {
	t.Helper()
	r.insert(t, storage.ItemStack{
		GuildID: guildID, UserID: userID, Kind: string(kind),
		Quantity: n, CreatedAt: r.now, UpdatedAt: r.now,
	})
}

// seedPlanted places a crop on the grid at the given stage.
func (r *testRig) seedPlanted(t *testing.T, guildID, userID string, kind garden.Kind, x, y, stage int, watered bool) {
	t.Helper()
	r.insert(t, storage.ItemStack{
		GuildID: guildID, UserID: userID, Kind: string(kind),
		X: x, Y: y, Quantity: stage, Watered: watered,
		CreatedAt: r.now, UpdatedAt: r.now,
	})
}

// garden reloads the member's current state.
func (r *testRig) garden(t *testing.T, guildID, userID string) garden.Garden {
	t.Helper()
	g, err := r.eng.loadGarden(context.Background(), r.store.Stores().Items, guildID, userID)
	require.NoError(t, err)
	return g
}
