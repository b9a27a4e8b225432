package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webrender/rphq-bot/internal/domain/garden"
)

func TestGetOrCreateSeedsHouseAndStarterCrop(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()

	g, created, err := rig.eng.GetOrCreateGarden(ctx, testGuild, alice, false)
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, g.HasHouse())

	house := g.At(garden.Tile{X: garden.HouseX, Y: garden.HouseY})
	require.NotNil(t, house)
	assert.Equal(t, garden.KindHouse, house.Kind)

	starters := 0
	for _, k := range garden.Crops {
		starters += g.StorageCount(k)
	}
	assert.Equal(t, 1, starters, "exactly one starter seed in the shed")

	// The counters exist from day one, as empty rows.
	require.Len(t, g.Stacks, 4, "house, starter crop, coins, water")
	counters := map[garden.Kind]bool{}
	for _, stk := range g.Stacks {
		if stk.Kind == garden.KindCoins || stk.Kind == garden.KindWater {
			assert.Equal(t, 0, stk.Quantity)
			counters[stk.Kind] = true
		}
	}
	assert.True(t, counters[garden.KindCoins])
	assert.True(t, counters[garden.KindWater])
	assert.Equal(t, 0, g.Coins())
	assert.Equal(t, 0, g.Water())

	// Second visit returns the same garden without reseeding.
	g2, created, err := rig.eng.GetOrCreateGarden(ctx, testGuild, alice, false)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Len(t, g2.Stacks, len(g.Stacks))
}

func TestGetOrCreateReadOnlyMissingGarden(t *testing.T) {
	rig := newRig(t)

	_, _, err := rig.eng.GetOrCreateGarden(context.Background(), testGuild, alice, true)
	assert.ErrorIs(t, err, ErrNotFound)

	// Peeking must not have created anything.
	g := rig.garden(t, testGuild, alice)
	assert.Empty(t, g.Stacks)
}

func TestPlantConsumesOldestSeed(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()
	rig.seedHouse(t, testGuild, alice)
	rig.seedShed(t, testGuild, alice, garden.KindCorn, 1, baseTime.Add(-2*time.Hour))
	rig.seedShed(t, testGuild, alice, garden.KindCorn, 1, baseTime.Add(-1*time.Hour))

	err := rig.eng.PlantCrop(ctx, testGuild, alice, garden.KindCorn, garden.Tile{X: 1, Y: 1})
	require.NoError(t, err)

	g := rig.garden(t, testGuild, alice)
	planted := g.At(garden.Tile{X: 1, Y: 1})
	require.NotNil(t, planted)
	assert.Equal(t, garden.KindCorn, planted.Kind)
	assert.Equal(t, 0, planted.Quantity, "planting starts at stage zero")

	queue := g.StorageQueue(garden.KindCorn)
	require.Len(t, queue, 1)
	assert.True(t, queue[0].CreatedAt.Equal(baseTime.Add(-1*time.Hour)), "the older seed was consumed")
}

func TestPlantRejectsOccupiedTile(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()
	rig.seedHouse(t, testGuild, alice)
	rig.seedShed(t, testGuild, alice, garden.KindCorn, 2, baseTime)
	rig.seedPlanted(t, testGuild, alice, garden.KindPeach, 2, 2, 1, false)

	err := rig.eng.PlantCrop(ctx, testGuild, alice, garden.KindCorn, garden.Tile{X: 2, Y: 2})
	assert.ErrorIs(t, err, ErrOccupiedTile)

	err = rig.eng.PlantCrop(ctx, testGuild, alice, garden.KindCorn, garden.Tile{X: garden.HouseX, Y: garden.HouseY})
	assert.ErrorIs(t, err, ErrOccupiedTile, "the house tile is occupied")

	// Nothing was consumed by the failed attempts.
	assert.Equal(t, 2, rig.garden(t, testGuild, alice).StorageCount(garden.KindCorn))
}

func TestPlantValidatesKindAndTile(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()
	rig.seedHouse(t, testGuild, alice)

	err := rig.eng.PlantCrop(ctx, testGuild, alice, garden.KindHouse, garden.Tile{X: 1, Y: 1})
	assert.ErrorIs(t, err, ErrInvalidTarget)

	err = rig.eng.PlantCrop(ctx, testGuild, alice, garden.KindCorn, garden.Tile{X: 0, Y: 0})
	assert.ErrorIs(t, err, ErrInvalidTarget, "the shed is not plantable")

	err = rig.eng.PlantCrop(ctx, testGuild, alice, garden.KindCorn, garden.Tile{X: 6, Y: 1})
	assert.ErrorIs(t, err, ErrInvalidTarget)
}

func TestPlantWithoutSeeds(t *testing.T) {
	rig := newRig(t)
	rig.seedHouse(t, testGuild, alice)

	err := rig.eng.PlantCrop(context.Background(), testGuild, alice, garden.KindCorn, garden.Tile{X: 1, Y: 1})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHarvestYieldsStageMinusOne(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()
	rig.seedHouse(t, testGuild, alice)
	rig.seedPlanted(t, testGuild, alice, garden.KindCorn, 1, 1, 4, false)

	units, err := rig.eng.HarvestCrops(ctx, testGuild, alice, []garden.Tile{{X: 1, Y: 1}})
	require.NoError(t, err)
	assert.Equal(t, 3, units)

	g := rig.garden(t, testGuild, alice)
	assert.Nil(t, g.At(garden.Tile{X: 1, Y: 1}), "the tile is free again")
	assert.Equal(t, 3, g.StorageCount(garden.KindCorn))
	assert.Len(t, g.StorageQueue(garden.KindCorn), 3, "yield lands as discrete units")
}

func TestHarvestAllSkipsImmatureCrops(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()
	rig.seedHouse(t, testGuild, alice)
	rig.seedPlanted(t, testGuild, alice, garden.KindCorn, 1, 1, 3, false)
	rig.seedPlanted(t, testGuild, alice, garden.KindPeach, 1, 2, 1, false)

	units, err := rig.eng.HarvestCrops(ctx, testGuild, alice, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, units)

	g := rig.garden(t, testGuild, alice)
	assert.Nil(t, g.At(garden.Tile{X: 1, Y: 1}))
	assert.NotNil(t, g.At(garden.Tile{X: 1, Y: 2}), "the stage-one crop stays planted")
}

func TestHarvestExplicitEmptyTile(t *testing.T) {
	rig := newRig(t)
	rig.seedHouse(t, testGuild, alice)

	_, err := rig.eng.HarvestCrops(context.Background(), testGuild, alice, []garden.Tile{{X: 1, Y: 1}})
	assert.ErrorIs(t, err, ErrInvalidTarget)
}

func TestHarvestNothingReady(t *testing.T) {
	rig := newRig(t)
	rig.seedHouse(t, testGuild, alice)
	rig.seedPlanted(t, testGuild, alice, garden.KindCorn, 1, 1, 1, false)

	_, err := rig.eng.HarvestCrops(context.Background(), testGuild, alice, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOperationsRequireGarden(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()

	err := rig.eng.PlantCrop(ctx, testGuild, alice, garden.KindCorn, garden.Tile{X: 1, Y: 1})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = rig.eng.HarvestCrops(ctx, testGuild, alice, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	err = rig.eng.BuyCrops(ctx, testGuild, alice, garden.KindCorn, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}
