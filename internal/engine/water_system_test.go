package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webrender/rphq-bot/internal/domain/garden"
	"github.com/webrender/rphq-bot/internal/events"
	"github.com/webrender/rphq-bot/internal/platform/logger"
)

func TestRecordCharactersConvertsToWater(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()
	rig.seedHouse(t, testGuild, alice)

	awarded, err := rig.eng.RecordCharacters(ctx, testGuild, alice, 600, false)
	require.NoError(t, err)
	assert.Equal(t, 0, awarded, "six hundred characters is not enough yet")

	awarded, err = rig.eng.RecordCharacters(ctx, testGuild, alice, 600, false)
	require.NoError(t, err)
	assert.Equal(t, 1, awarded, "the tally crossed one thousand")

	assert.Equal(t, 1, rig.garden(t, testGuild, alice).Water())
}

func TestRecordCharactersRoleplayCountsTriple(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()
	rig.seedHouse(t, testGuild, alice)

	awarded, err := rig.eng.RecordCharacters(ctx, testGuild, alice, 700, true)
	require.NoError(t, err)
	assert.Equal(t, 2, awarded, "2100 weighted characters yields two units")

	assert.Equal(t, 2, rig.garden(t, testGuild, alice).Water())
}

func TestRecordCharactersRespectsCap(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()
	rig.seedHouse(t, testGuild, alice)
	rig.seedCounter(t, testGuild, alice, garden.KindWater, garden.WaterCap-1)

	awarded, err := rig.eng.RecordCharacters(ctx, testGuild, alice, 5000, false)
	require.NoError(t, err)
	assert.Equal(t, 5, awarded)
	assert.Equal(t, garden.WaterCap, rig.garden(t, testGuild, alice).Water(),
		"the can never overflows")
}

func TestRecordCharactersIgnoresNonPositive(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()

	awarded, err := rig.eng.RecordCharacters(ctx, testGuild, alice, 0, false)
	require.NoError(t, err)
	assert.Equal(t, 0, awarded)

	awarded, err = rig.eng.RecordCharacters(ctx, testGuild, alice, -50, true)
	require.NoError(t, err)
	assert.Equal(t, 0, awarded)
}

func TestFlushPersistsBankedRemainder(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()
	rig.seedHouse(t, testGuild, alice)

	_, err := rig.eng.RecordCharacters(ctx, testGuild, alice, 400, false)
	require.NoError(t, err)
	require.NoError(t, rig.eng.FlushCounts(ctx))

	// A fresh engine over the same store picks the banked remainder back up.
	eng2 := NewEngine(rig.store, events.NewEventLog(nil), nil, logger.NewLogger())
	eng2.SetClock(func() time.Time { return rig.now })
	require.NoError(t, eng2.faucet.Load(ctx))

	awarded, err := eng2.RecordCharacters(ctx, testGuild, alice, 600, false)
	require.NoError(t, err)
	assert.Equal(t, 1, awarded, "400 banked plus 600 new crosses the threshold")
}

func TestWaterSpendsOneUnitPerTile(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()
	rig.seedHouse(t, testGuild, alice)
	rig.seedCounter(t, testGuild, alice, garden.KindWater, 5)
	rig.seedPlanted(t, testGuild, alice, garden.KindCorn, 1, 1, 2, false)
	rig.seedPlanted(t, testGuild, alice, garden.KindPeach, 1, 2, 3, false)

	n, err := rig.eng.WaterCrops(ctx, testGuild, alice, []garden.Tile{{X: 1, Y: 1}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	g := rig.garden(t, testGuild, alice)
	assert.Equal(t, 4, g.Water())
	assert.True(t, g.At(garden.Tile{X: 1, Y: 1}).Watered)
	assert.False(t, g.At(garden.Tile{X: 1, Y: 2}).Watered)
}

func TestWaterAllWithExactBalance(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()
	rig.seedHouse(t, testGuild, alice)
	rig.seedCounter(t, testGuild, alice, garden.KindWater, 2)
	rig.seedPlanted(t, testGuild, alice, garden.KindCorn, 1, 1, 2, false)
	rig.seedPlanted(t, testGuild, alice, garden.KindPeach, 1, 2, 3, false)

	n, err := rig.eng.WaterCrops(ctx, testGuild, alice, nil)
	require.NoError(t, err, "a can holding exactly enough covers the garden")
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, rig.garden(t, testGuild, alice).Water())
}

func TestWaterAllSkipsIneligibleCrops(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()
	rig.seedHouse(t, testGuild, alice)
	rig.seedCounter(t, testGuild, alice, garden.KindWater, 10)
	rig.seedPlanted(t, testGuild, alice, garden.KindCorn, 1, 1, 2, false)
	rig.seedPlanted(t, testGuild, alice, garden.KindPeach, 1, 2, garden.WaterMaxStage, false)
	rig.seedPlanted(t, testGuild, alice, garden.KindLemon, 1, 3, 2, true)

	n, err := rig.eng.WaterCrops(ctx, testGuild, alice, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "mature and already watered crops sit out")
	assert.Equal(t, 9, rig.garden(t, testGuild, alice).Water())
}

func TestWaterInsufficientBalance(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()
	rig.seedHouse(t, testGuild, alice)
	rig.seedCounter(t, testGuild, alice, garden.KindWater, 1)
	rig.seedPlanted(t, testGuild, alice, garden.KindCorn, 1, 1, 2, false)
	rig.seedPlanted(t, testGuild, alice, garden.KindPeach, 1, 2, 3, false)

	_, err := rig.eng.WaterCrops(ctx, testGuild, alice, nil)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	g := rig.garden(t, testGuild, alice)
	assert.Equal(t, 1, g.Water(), "nothing was spent")
	assert.False(t, g.At(garden.Tile{X: 1, Y: 1}).Watered)
}

func TestWaterExplicitIneligibleTile(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()
	rig.seedHouse(t, testGuild, alice)
	rig.seedCounter(t, testGuild, alice, garden.KindWater, 10)
	rig.seedPlanted(t, testGuild, alice, garden.KindCorn, 1, 1, garden.WaterMaxStage, false)

	_, err := rig.eng.WaterCrops(ctx, testGuild, alice, []garden.Tile{{X: 1, Y: 1}})
	assert.ErrorIs(t, err, ErrInvalidTarget)

	_, err = rig.eng.WaterCrops(ctx, testGuild, alice, []garden.Tile{{X: 2, Y: 2}})
	assert.ErrorIs(t, err, ErrInvalidTarget, "an empty tile cannot be watered")
}

func TestWaterNothingEligible(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()
	rig.seedHouse(t, testGuild, alice)
	rig.seedCounter(t, testGuild, alice, garden.KindWater, 5)

	_, err := rig.eng.WaterCrops(ctx, testGuild, alice, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}
