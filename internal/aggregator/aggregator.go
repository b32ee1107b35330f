// Package aggregator implements the three aggregation modes of spec §4.5:
// Huge (same-direction), Mixed (cross-direction), and Overlay (low-revenue
// combination).
package aggregator

import (
	"context"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	sando "github.com/sandodex/sandosearcher"
	"github.com/sandodex/sandosearcher/internal/payload"
)

// Resimulator re-runs an aggregated front-run/back-run pair against a
// combined Ingredients set and returns the re-simulated Recipe. It is the
// same capability the Recipe Builder exposes (via its Resimulate method),
// kept as a narrow interface here so the aggregator does not depend on
// recipebuilder's concrete Builder type.
type Resimulator interface {
	Resimulate(ctx context.Context, ing sando.Ingredients, frontCalldata, backCalldata []byte, targetBlock uint64, contract common.Address) (*sando.Recipe, error)
}

// byPool groups live pending recipes by pool address, as the Strategy's
// recipe stores do (§3: "grouped-by-pool mappings with snapshot
// semantics").
type byPool map[common.Address][]*sando.Recipe

// Huge keeps, for the given direction, the single highest-revenue recipe per
// pool, then unions their head-txs and meats into one combined Ingredients,
// splices each recipe's front- and back-run legs in order behind a
// multi-call jump byte, and re-simulates the result as a single recipe
// against the next block.
func Huge(ctx context.Context, pending byPool, direction sando.SwapType, targetBlock uint64, contract common.Address, sim Resimulator) (*sando.Recipe, error) {
	best := highestRevenuePerPool(pending, direction)
	if len(best) == 0 {
		return nil, nil
	}
	return resimulateCombined(ctx, best, targetBlock, contract, sim)
}

// Mixed behaves like Huge but additionally combines both directions into
// one recipe, skipping reverse pools that collide with forward pools
// already included.
func Mixed(ctx context.Context, pending byPool, targetBlock uint64, contract common.Address, sim Resimulator) (*sando.Recipe, error) {
	forwardBest := highestRevenuePerPool(pending, sando.SwapForward)
	reverseBest := highestRevenuePerPool(pending, sando.SwapReverse)
	if len(forwardBest) == 0 && len(reverseBest) == 0 {
		return nil, nil
	}

	included := make([]*sando.Recipe, 0, len(forwardBest)+len(reverseBest))
	seenPools := make(map[common.Address]bool)
	for _, r := range forwardBest {
		included = append(included, r)
		seenPools[r.Ingredients.Pool.Address] = true
	}
	for _, r := range reverseBest {
		if seenPools[r.Ingredients.Pool.Address] {
			continue
		}
		included = append(included, r)
	}
	return resimulateCombined(ctx, included, targetBlock, contract, sim)
}

// Overlay combines a set of low-revenue recipes (failed standalone profit)
// with optimal recipes, probing whether adding each low recipe increases
// the combined profit_max, keeping only those that do. With no optimal
// recipes it emits a pure-low aggregate of every low recipe (one or more);
// with neither it returns nil.
func Overlay(ctx context.Context, optimal, low []*sando.Recipe, targetBlock uint64, contract common.Address, sim Resimulator) (*sando.Recipe, error) {
	if len(optimal) == 0 {
		if len(low) == 0 {
			return nil, nil
		}
		return resimulateCombined(ctx, low, targetBlock, contract, sim)
	}

	included := append([]*sando.Recipe{}, optimal...)
	baseline, err := resimulateCombined(ctx, included, targetBlock, contract, sim)
	if err != nil {
		return nil, err
	}
	baselineProfit := profitMax(baseline)

	for _, candidate := range low {
		trial := append(append([]*sando.Recipe{}, included...), candidate)
		probe, err := resimulateCombined(ctx, trial, targetBlock, contract, sim)
		if err != nil {
			continue
		}
		if profitMax(probe).Cmp(baselineProfit) > 0 {
			included = trial
			baseline = probe
			baselineProfit = profitMax(probe)
		}
	}
	return baseline, nil
}

func profitMax(r *sando.Recipe) *big.Int {
	if r == nil || r.ProfitMax == nil {
		return big.NewInt(0)
	}
	return r.ProfitMax
}

// highestRevenuePerPool keeps, for each pool, the live pending recipe with
// the greatest revenue, restricted to the given direction.
func highestRevenuePerPool(pending byPool, direction sando.SwapType) []*sando.Recipe {
	out := make([]*sando.Recipe, 0, len(pending))
	for _, recipes := range pending {
		var best *sando.Recipe
		for _, r := range recipes {
			if r.SwapType != direction {
				continue
			}
			if best == nil || r.Revenue.Cmp(best.Revenue) > 0 {
				best = r
			}
		}
		if best != nil {
			out = append(out, best)
		}
	}
	// Deterministic order for reproducible splicing and tests.
	sort.Slice(out, func(i, j int) bool {
		return out[i].Ingredients.Pool.Address.Cmp(out[j].Ingredients.Pool.Address) < 0
	})
	return out
}

func resimulateCombined(ctx context.Context, recipes []*sando.Recipe, targetBlock uint64, contract common.Address, sim Resimulator) (*sando.Recipe, error) {
	ing := unionIngredients(recipes)
	front := spliceLegs(recipes, func(r *sando.Recipe) []byte { return r.FrontRun.Calldata })
	back := spliceLegs(recipes, func(r *sando.Recipe) []byte { return r.BackRun.Calldata })
	return sim.Resimulate(ctx, ing, front, back, targetBlock, contract)
}

// unionIngredients splices the head-txs and meats of each recipe in order,
// deduplicating and sorting them by sender+nonce (the same invariant
// NewIngredients enforces for a single candidate). The combined
// Ingredients carries the first recipe's pool/token fields as its nominal
// identity; the aggregated trade itself spans all constituent pools via
// the spliced multi-call legs below.
func unionIngredients(recipes []*sando.Recipe) sando.Ingredients {
	if len(recipes) == 0 {
		return sando.Ingredients{}
	}
	var heads, meats []sando.Transaction
	for _, r := range recipes {
		heads = append(heads, r.Ingredients.HeadTxs...)
		meats = append(meats, r.Ingredients.Meats...)
	}
	first := recipes[0].Ingredients
	return sando.NewIngredients(first.UUID, heads, meats, first.StartEndToken, first.IntermediaryToken, first.Pool, first.SwapType)
}

// spliceLegs concatenates one leg (front or back) from each recipe, in
// order, behind a single multi-call jump byte — the contract's dispatcher
// for combined "huge"/"mixed"/"overlay" recipes.
func spliceLegs(recipes []*sando.Recipe, leg func(*sando.Recipe) []byte) []byte {
	b := payload.NewBuilder(payload.JumpMultiCall)
	for _, r := range recipes {
		b.Raw(leg(r))
	}
	return b.Bytes()
}
