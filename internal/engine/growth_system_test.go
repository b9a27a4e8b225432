package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webrender/rphq-bot/internal/domain/garden"
)

func TestTickGrowsWateredTwiceUnwateredOnce(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()
	rig.seedHouse(t, testGuild, alice)
	rig.seedPlanted(t, testGuild, alice, garden.KindCorn, 1, 1, 3, true)
	rig.seedPlanted(t, testGuild, alice, garden.KindPeach, 1, 2, 3, false)

	rig.advance(time.Hour)
	report, err := rig.eng.RunGrowthTick(ctx)
	require.NoError(t, err)
	assert.False(t, report.Skipped)
	assert.Equal(t, int64(2), report.Grown)
	assert.Equal(t, int64(1), report.WateredBonus)

	g := rig.garden(t, testGuild, alice)
	watered := g.At(garden.Tile{X: 1, Y: 1})
	require.NotNil(t, watered)
	assert.Equal(t, 5, watered.Quantity, "watered crops advance two stages")
	assert.False(t, watered.Watered, "watering lasts one tick")

	dry := g.At(garden.Tile{X: 1, Y: 2})
	require.NotNil(t, dry)
	assert.Equal(t, 4, dry.Quantity, "unwatered crops advance one stage")
}

func TestTickCapsAtMaxStage(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()
	rig.seedHouse(t, testGuild, alice)
	rig.seedPlanted(t, testGuild, alice, garden.KindCorn, 1, 1, garden.MaxStage, false)
	rig.seedPlanted(t, testGuild, alice, garden.KindPeach, 1, 2, garden.MaxStage-1, true)

	rig.advance(time.Hour)
	_, err := rig.eng.RunGrowthTick(ctx)
	require.NoError(t, err)

	g := rig.garden(t, testGuild, alice)
	assert.Equal(t, garden.MaxStage, g.At(garden.Tile{X: 1, Y: 1}).Quantity, "fully grown crops stop")
	assert.Equal(t, garden.MaxStage, g.At(garden.Tile{X: 1, Y: 2}).Quantity, "the watered bonus cannot pass the cap")
}

func TestTickWithersNeglectedCrops(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()
	rig.seedHouse(t, testGuild, alice)
	rig.seedPlanted(t, testGuild, alice, garden.KindCorn, 1, 1, 5, false)

	rig.advance(garden.WitherAge + time.Hour)
	report, err := rig.eng.RunGrowthTick(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Withered)

	g := rig.garden(t, testGuild, alice)
	crop := g.At(garden.Tile{X: 1, Y: 1})
	require.NotNil(t, crop)
	assert.Equal(t, 1, crop.Quantity, "a withered crop restarts at stage one, not stage two")
	assert.False(t, crop.Watered)

	// The house on its tile never withers.
	assert.Equal(t, garden.KindHouse, g.At(garden.Tile{X: garden.HouseX, Y: garden.HouseY}).Kind)
}

func TestTickSpoilsOldStoredProduce(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()
	rig.seedHouse(t, testGuild, alice)
	rig.seedShed(t, testGuild, alice, garden.KindCherries, 2, baseTime)
	rig.seedCounter(t, testGuild, alice, garden.KindCoins, 50)

	rig.advance(garden.WitherAge + time.Hour)
	rig.seedShed(t, testGuild, alice, garden.KindCherries, 1, rig.now)

	report, err := rig.eng.RunGrowthTick(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), report.Spoiled)

	g := rig.garden(t, testGuild, alice)
	assert.Equal(t, 1, g.StorageCount(garden.KindCherries), "only the fresh unit survives")
	assert.Equal(t, 50, g.Coins(), "counters never spoil")
}

func TestTickOverlapIsSkipped(t *testing.T) {
	rig := newRig(t)

	atomic.StoreInt32(&rig.eng.growth.running, 1)
	report, err := rig.eng.RunGrowthTick(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Skipped)

	atomic.StoreInt32(&rig.eng.growth.running, 0)
	rig.advance(time.Hour)
	report, err = rig.eng.RunGrowthTick(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Skipped)
}

func TestTickAffectsAllGardens(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()
	rig.seedHouse(t, testGuild, alice)
	rig.seedHouse(t, testGuild, bob)
	rig.seedPlanted(t, testGuild, alice, garden.KindCorn, 1, 1, 2, false)
	rig.seedPlanted(t, testGuild, bob, garden.KindLemon, 2, 2, 2, false)

	rig.advance(time.Hour)
	report, err := rig.eng.RunGrowthTick(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), report.Grown)

	assert.Equal(t, 3, rig.garden(t, testGuild, alice).At(garden.Tile{X: 1, Y: 1}).Quantity)
	assert.Equal(t, 3, rig.garden(t, testGuild, bob).At(garden.Tile{X: 2, Y: 2}).Quantity)
}
