package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webrender/rphq-bot/internal/domain/garden"
)

func TestGrantValidatesTier(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()

	require.NoError(t, rig.eng.GrantGift(ctx, testGuild, alice, 30))
	require.NoError(t, rig.eng.GrantGift(ctx, testGuild, alice, 50))
	assert.ErrorIs(t, rig.eng.GrantGift(ctx, testGuild, alice, 40), ErrInvalidTarget)
}

func TestOpenAwardsThreeUnitsPerGift(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()
	rig.seedHouse(t, testGuild, alice)
	require.NoError(t, rig.eng.GrantGift(ctx, testGuild, alice, 30))
	require.NoError(t, rig.eng.GrantGift(ctx, testGuild, alice, 50))

	drawn, err := rig.eng.OpenGifts(ctx, testGuild, alice)
	require.NoError(t, err)
	require.Len(t, drawn, 2)
	assert.NotEqual(t, drawn[0], drawn[1], "a batch draws without replacement")

	g := rig.garden(t, testGuild, alice)
	for _, kind := range drawn {
		assert.Equal(t, 3, g.StorageCount(kind))
	}
}

func TestOpenTwiceCannotDoubleAward(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()
	rig.seedHouse(t, testGuild, alice)
	require.NoError(t, rig.eng.GrantGift(ctx, testGuild, alice, 30))

	drawn, err := rig.eng.OpenGifts(ctx, testGuild, alice)
	require.NoError(t, err)
	require.Len(t, drawn, 1)

	_, err = rig.eng.OpenGifts(ctx, testGuild, alice)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, 3, rig.garden(t, testGuild, alice).StorageCount(drawn[0]))
}

func TestOpenWithNoGrants(t *testing.T) {
	rig := newRig(t)
	rig.seedHouse(t, testGuild, alice)

	_, err := rig.eng.OpenGifts(context.Background(), testGuild, alice)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenDrawsIgnoreOwnership(t *testing.T) {
	ctx := context.Background()

	// Two members with identical rng seeds, one shed full and one empty,
	// draw the same kind: the pool is the full crop set either way.
	full := newRig(t)
	full.seedHouse(t, testGuild, alice)
	for _, k := range garden.Crops {
		full.seedShed(t, testGuild, alice, k, 1, baseTime)
	}
	require.NoError(t, full.eng.GrantGift(ctx, testGuild, alice, 30))
	fullDrawn, err := full.eng.OpenGifts(ctx, testGuild, alice)
	require.NoError(t, err)

	empty := newRig(t)
	empty.seedHouse(t, testGuild, alice)
	require.NoError(t, empty.eng.GrantGift(ctx, testGuild, alice, 30))
	emptyDrawn, err := empty.eng.OpenGifts(ctx, testGuild, alice)
	require.NoError(t, err)

	assert.Equal(t, emptyDrawn, fullDrawn)
}

func TestOpenBatchCoversFullCropSet(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()
	rig.seedHouse(t, testGuild, alice)

	// Owning most of the crop set does not narrow the pool.
	for _, k := range garden.Crops {
		if k != garden.KindCorn {
			rig.seedShed(t, testGuild, alice, k, 1, baseTime)
		}
	}
	for i := 0; i < len(garden.Crops); i++ {
		require.NoError(t, rig.eng.GrantGift(ctx, testGuild, alice, GiftGrantIDs[i%2]))
	}

	drawn, err := rig.eng.OpenGifts(ctx, testGuild, alice)
	require.NoError(t, err)
	require.Len(t, drawn, len(garden.Crops))

	seen := map[garden.Kind]int{}
	for _, k := range drawn {
		seen[k]++
	}
	for _, k := range garden.Crops {
		assert.Equal(t, 1, seen[k], "a batch the size of the crop set draws each kind once")
	}
}

func TestOpenPoolResetsMidBatch(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()
	rig.seedHouse(t, testGuild, alice)

	// One more gift than there are crop kinds: the pool empties after the
	// seventh draw and resets for the eighth.
	n := len(garden.Crops) + 1
	for i := 0; i < n; i++ {
		require.NoError(t, rig.eng.GrantGift(ctx, testGuild, alice, GiftGrantIDs[i%2]))
	}

	drawn, err := rig.eng.OpenGifts(ctx, testGuild, alice)
	require.NoError(t, err)
	require.Len(t, drawn, n)

	seen := map[garden.Kind]int{}
	for _, k := range drawn {
		assert.True(t, k.IsCrop())
		seen[k]++
	}
	doubles := 0
	for _, c := range seen {
		if c == 2 {
			doubles++
		}
	}
	assert.Len(t, seen, len(garden.Crops), "the first seven draws exhaust the set")
	assert.Equal(t, 1, doubles, "exactly one kind repeats after the reset")

	g := rig.garden(t, testGuild, alice)
	total := 0
	for _, k := range garden.Crops {
		total += g.StorageCount(k)
	}
	assert.Equal(t, n*3, total)
}
