package garden

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2026, 3, n, 12, 0, 0, 0, time.UTC)
}

func shedStack(id int64, kind Kind, qty int, created time.Time) Stack {
	return Stack{ID: id, Kind: kind, X: 0, Y: 0, Quantity: qty, CreatedAt: created}
}

func plantedStack(id int64, kind Kind, x, y, stage int) Stack {
	return Stack{ID: id, Kind: kind, X: x, Y: y, Quantity: stage}
}

func TestGroupedSumsShedRowsPerKind(t *testing.T) {
	g := Garden{Stacks: []Stack{
		shedStack(1, KindCorn, 1, day(3)),
		shedStack(2, KindCorn, 1, day(1)),
		shedStack(3, KindCorn, 1, day(2)),
		shedStack(4, KindCoins, 40, day(1)),
		plantedStack(5, KindCorn, 2, 2, 3),
	}}

	grouped := g.Grouped()
	require.Len(t, grouped, 3)

	byKindShed := make(map[Kind]Stack)
	planted := 0
	for _, s := range grouped {
		if s.InStorage() {
			byKindShed[s.Kind] = s
		} else {
			planted++
		}
	}

	assert.Equal(t, 3, byKindShed[KindCorn].Quantity)
	// The summed row keeps the oldest creation time of its members.
	assert.True(t, byKindShed[KindCorn].CreatedAt.Equal(day(1)))
	assert.Equal(t, 40, byKindShed[KindCoins].Quantity)
	assert.Equal(t, 1, planted, "planted stacks must stay individual")
}

func TestStorageQueueIsOldestFirst(t *testing.T) {
	g := Garden{Stacks: []Stack{
		shedStack(10, KindPeach, 1, day(5)),
		shedStack(11, KindPeach, 1, day(2)),
		shedStack(12, KindPeach, 1, day(2)), // same instant as 11, lower id first
		shedStack(13, KindLemon, 1, day(1)),
		plantedStack(14, KindPeach, 1, 1, 2),
	}}

	q := g.StorageQueue(KindPeach)
	require.Len(t, q, 3)
	assert.Equal(t, int64(11), q[0].ID)
	assert.Equal(t, int64(12), q[1].ID)
	assert.Equal(t, int64(10), q[2].ID)
}

func TestAtIgnoresStorageAndFindsPlanted(t *testing.T) {
	g := Garden{Stacks: []Stack{
		shedStack(1, KindCorn, 1, day(1)),
		plantedStack(2, KindGrapes, 2, 4, 1),
		{ID: 3, Kind: KindHouse, X: HouseX, Y: HouseY, Quantity: 1},
	}}

	assert.Nil(t, g.At(Tile{X: 0, Y: 0}), "the shed is not a grid tile")
	assert.Nil(t, g.At(Tile{X: 1, Y: 1}))

	got := g.At(Tile{X: 2, Y: 4})
	require.NotNil(t, got)
	assert.Equal(t, KindGrapes, got.Kind)

	house := g.At(Tile{X: HouseX, Y: HouseY})
	require.NotNil(t, house, "the house occupies its tile")
	assert.Equal(t, KindHouse, house.Kind)
}

func TestCountersSumAcrossRows(t *testing.T) {
	g := Garden{Stacks: []Stack{
		shedStack(1, KindCoins, 30, day(1)),
		shedStack(2, KindWater, 7, day(1)),
	}}
	assert.Equal(t, 30, g.Coins())
	assert.Equal(t, 7, g.Water())
	assert.Equal(t, 0, g.StorageCount(KindCherries))
}

func TestWaterableStacks(t *testing.T) {
	g := Garden{Stacks: []Stack{
		plantedStack(1, KindCorn, 1, 1, 3),                            // eligible
		{ID: 2, Kind: KindCorn, X: 1, Y: 2, Quantity: 3, Watered: true}, // already watered
		plantedStack(3, KindCorn, 1, 3, WaterMaxStage),                // too mature
		shedStack(4, KindCorn, 1, day(1)),                             // not planted
		{ID: 5, Kind: KindHouse, X: HouseX, Y: HouseY, Quantity: 1},   // not a crop
	}}

	out := g.WaterableStacks()
	require.Len(t, out, 1)
	assert.Equal(t, int64(1), out[0].ID)
}

func TestHasHouse(t *testing.T) {
	assert.False(t, Garden{}.HasHouse())
	g := Garden{Stacks: []Stack{{Kind: KindHouse, X: HouseX, Y: HouseY, Quantity: 1}}}
	assert.True(t, g.HasHouse())
}

func TestTileInGrid(t *testing.T) {
	assert.False(t, Tile{0, 0}.InGrid(), "the shed is outside the grid")
	assert.True(t, Tile{1, 1}.InGrid())
	assert.True(t, Tile{5, 5}.InGrid())
	assert.False(t, Tile{6, 1}.InGrid())
	assert.False(t, Tile{1, 6}.InGrid())
	assert.False(t, Tile{-1, 3}.InGrid())
}

func TestParseCrop(t *testing.T) {
	k, err := ParseCrop("corn")
	require.NoError(t, err)
	assert.Equal(t, KindCorn, k)

	_, err = ParseCrop("house")
	assert.Error(t, err, "the house is not plantable")
	_, err = ParseCrop("coins")
	assert.Error(t, err)
	_, err = ParseCrop("kelp")
	assert.Error(t, err)
}

func TestOwnedCrops(t *testing.T) {
	g := Garden{Stacks: []Stack{
		shedStack(1, KindCorn, 1, day(1)),
		plantedStack(2, KindGrapes, 2, 2, 1),
		shedStack(3, KindCoins, 10, day(1)),
	}}
	owned := g.OwnedCrops()
	assert.True(t, owned[KindCorn])
	assert.True(t, owned[KindGrapes])
	assert.False(t, owned[KindCoins])
	assert.False(t, owned[KindPeach])
}
