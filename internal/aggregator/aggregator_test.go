package aggregator

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sando "github.com/sandodex/sandosearcher"
	"github.com/sandodex/sandosearcher/internal/payload"
)

// fakeResimulator sums each constituent's revenue to stand in for a real
// re-simulation, so aggregator logic (selection, splicing, combination
// search) can be tested without a simulator fork.
type fakeResimulator struct {
	calls int
}

func (f *fakeResimulator) Resimulate(ctx context.Context, ing sando.Ingredients, front, back []byte, targetBlock uint64, contract common.Address) (*sando.Recipe, error) {
	f.calls++
	revenue := big.NewInt(0)
	for _, m := range ing.Meats {
		revenue.Add(revenue, big.NewInt(int64(m.Nonce+1)*1_000))
	}
	return &sando.Recipe{
		UUID:        ing.UUID,
		Ingredients: ing,
		FrontRun:    sando.Leg{Calldata: front},
		BackRun:     sando.Leg{Calldata: back},
		Revenue:     revenue,
		ProfitMax:   revenue,
		TargetBlock: targetBlock,
	}, nil
}

func makeRecipe(poolAddr common.Address, revenue int64, direction sando.SwapType, nonce uint64) *sando.Recipe {
	pool := sando.Pool{Address: poolAddr, TokenA: sando.WETH}
	meat := sando.Transaction{Hash: common.BytesToHash(poolAddr.Bytes()), From: poolAddr, Nonce: nonce}
	ing := sando.NewIngredients("u-"+poolAddr.Hex(), nil, []sando.Transaction{meat}, sando.WETH, common.HexToAddress("0xc0c"), pool, direction)
	return &sando.Recipe{
		UUID:        ing.UUID,
		Ingredients: ing,
		SwapType:    direction,
		Revenue:     big.NewInt(revenue),
		FrontRun:    sando.Leg{Calldata: []byte{1, 2, 3}},
		BackRun:     sando.Leg{Calldata: []byte{4, 5, 6}},
	}
}

func TestHugeKeepsHighestRevenuePerPoolAndSplicesLegs(t *testing.T) {
	poolA := common.HexToAddress("0x01")
	low := makeRecipe(poolA, 10, sando.SwapForward, 1)
	high := makeRecipe(poolA, 500, sando.SwapForward, 2)
	pending := byPool{poolA: {low, high}}

	sim := &fakeResimulator{}
	recipe, err := Huge(context.Background(), pending, sando.SwapForward, 101, common.HexToAddress("0x9999"), sim)
	require.NoError(t, err)
	require.NotNil(t, recipe)
	assert.Equal(t, 1, sim.calls)
	assert.Len(t, recipe.Ingredients.Meats, 1)
	assert.Equal(t, high.Ingredients.Meats[0].Hash, recipe.Ingredients.Meats[0].Hash)
	assert.Equal(t, append([]byte{byte(payload.JumpMultiCall)}, high.FrontRun.Calldata...), recipe.FrontRun.Calldata)
	assert.Equal(t, append([]byte{byte(payload.JumpMultiCall)}, high.BackRun.Calldata...), recipe.BackRun.Calldata)
}

func TestHugeReturnsNilWhenNoPendingRecipes(t *testing.T) {
	sim := &fakeResimulator{}
	recipe, err := Huge(context.Background(), byPool{}, sando.SwapForward, 101, common.HexToAddress("0x9999"), sim)
	require.NoError(t, err)
	assert.Nil(t, recipe)
	assert.Equal(t, 0, sim.calls)
}

func TestMixedSkipsCollidingReversePool(t *testing.T) {
	poolA := common.HexToAddress("0x01")
	poolB := common.HexToAddress("0x02")
	forward := makeRecipe(poolA, 100, sando.SwapForward, 1)
	reverseCollide := makeRecipe(poolA, 50, sando.SwapReverse, 2)
	reverseOther := makeRecipe(poolB, 30, sando.SwapReverse, 3)

	pending := byPool{
		poolA: {forward, reverseCollide},
		poolB: {reverseOther},
	}
	sim := &fakeResimulator{}
	recipe, err := Mixed(context.Background(), pending, 101, common.HexToAddress("0x9999"), sim)
	require.NoError(t, err)
	require.NotNil(t, recipe)
	// forward(poolA) + reverseOther(poolB) meats == 2; reverseCollide dropped.
	assert.Len(t, recipe.Ingredients.Meats, 2)
}

func TestOverlayKeepsOnlyProfitIncreasingLowRecipes(t *testing.T) {
	poolA := common.HexToAddress("0x01")
	poolB := common.HexToAddress("0x02")
	poolC := common.HexToAddress("0x03")
	optimal := []*sando.Recipe{makeRecipe(poolA, 1000, sando.SwapForward, 5)}
	low := []*sando.Recipe{
		makeRecipe(poolB, 10, sando.SwapForward, 6),
		makeRecipe(poolC, 10, sando.SwapForward, 7),
	}

	sim := &fakeResimulator{}
	recipe, err := Overlay(context.Background(), optimal, low, 101, common.HexToAddress("0x9999"), sim)
	require.NoError(t, err)
	require.NotNil(t, recipe)
	assert.GreaterOrEqual(t, len(recipe.Ingredients.Meats), 1)
}

func TestOverlayEmitsPureLowAggregateWithNoOptimal(t *testing.T) {
	poolB := common.HexToAddress("0x02")
	poolC := common.HexToAddress("0x03")
	low := []*sando.Recipe{
		makeRecipe(poolB, 10, sando.SwapForward, 6),
		makeRecipe(poolC, 10, sando.SwapForward, 7),
	}
	sim := &fakeResimulator{}
	recipe, err := Overlay(context.Background(), nil, low, 101, common.HexToAddress("0x9999"), sim)
	require.NoError(t, err)
	require.NotNil(t, recipe)
	assert.Len(t, recipe.Ingredients.Meats, 2)
}
