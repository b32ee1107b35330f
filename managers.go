package sando

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sandodex/sandosearcher/internal/simulator"
)

// This file declares the capability interfaces the Strategy depends on.
// Each sub-manager package (poolreg, victim, recipebuilder,
// aggregator, emitter) operates on this package's own types, so it in
// turn imports this package — the Strategy therefore cannot import those
// packages back without a cycle. Instead it depends only on these
// narrow, root-native interfaces (the same "small capability interface"
// style as the teacher's ContractClient/TxListener); a wiring layer
// outside this package (cmd/sandosearcher) adapts the concrete managers
// to satisfy them.

// PoolRegistry is the subset of the Pool Registry the Strategy drives
// directly.
type PoolRegistry interface {
	Insert(Pool)
	Get(addr common.Address) (Pool, bool)
	GetTouchedSandwichablePools(ctx context.Context, provider simulator.StateDiffProvider, victim Transaction, latestBlock uint64) (forward, reverse []Pool, err error)
	// UpdateBlockInfo is the post-confirmation hook of §4.1, called once
	// per new block before aggregation (§5's ordering rule).
	UpdateBlockInfo(blockTxs []Transaction)
}

// Candidate is a (pool, direction) pair the Victim Classifier surfaced
// for a given victim transaction.
type Candidate struct {
	Pool      Pool
	Direction SwapType
}

// Classifier runs the victim filter and, for accepted victims, the
// stateDiff trace against the pool registry.
type Classifier interface {
	Classify(ctx context.Context, registry PoolRegistry, provider simulator.StateDiffProvider, victim Transaction, latestBaseFee, nextBaseFee *big.Int, latestBlock uint64) (candidates []Candidate, accepted bool, err error)
}

// RevenueProbe evaluates the revenue obtained by probing one input
// amount; the Optimizer calls this once per search-round boundary.
type RevenueProbe func(ctx context.Context, input *big.Int) (*big.Int, error)

// OptimizeResult is the optimum the search converged to.
type OptimizeResult struct {
	OptimalInput *big.Int
	Revenue      *big.Int
	BackIn       *big.Int // reverse only
}

// ReverseBackInProbe evaluates the sandwich's start/end-token balance
// after running the front-run at a fixed forward input, the victim, and a
// candidate back-run sized backIn — the inner search's per-iteration
// probe (§4.3).
type ReverseBackInProbe func(ctx context.Context, backIn *big.Int) (otherTokenBalance *big.Int, err error)

// Optimizer runs the juiced quadratic search over a candidate's
// inventory and, for reverse candidates, the inner back_in binary search
// over the intermediary (weth) gained at the chosen forward input.
type Optimizer interface {
	Search(ctx context.Context, inventory *big.Int, probe RevenueProbe) (*OptimizeResult, error)
	SearchReverseBackIn(ctx context.Context, intermediaryGain, minReward, initialOtherBalance *big.Int, probe ReverseBackInProbe) (*big.Int, error)
}

// RecipeBuilder turns an optimized candidate into a fully simulated
// Recipe. backIn is nil for forward candidates; for reverse candidates it
// is the Optimizer's SearchReverseBackIn result, used in place of the
// naive "sell everything back" back-run sizing.
type RecipeBuilder interface {
	Build(ctx context.Context, ing Ingredients, targetBlock uint64, contract common.Address, optimalInput, backIn *big.Int) (*Recipe, error)
	// ReverseIntermediaryGain runs the two-hop probe (§4.3): fork, replay
	// head_txs, run the front-run leg at forwardInput, and report the
	// intermediary (weth) gained plus the pre-existing start/end-token
	// balance — the bounds SearchReverseBackIn needs.
	ReverseIntermediaryGain(ctx context.Context, ing Ingredients, targetBlock uint64, contract common.Address, forwardInput *big.Int) (intermediaryGain, initialOtherBalance *big.Int, err error)
	// ReverseBackInProbe returns a ReverseBackInProbe bound to one
	// candidate's forward leg, for the Optimizer's inner search.
	ReverseBackInProbe(ctx context.Context, ing Ingredients, targetBlock uint64, contract common.Address, forwardInput *big.Int) ReverseBackInProbe
}

// Aggregator combines live pending recipes into huge/mixed/overlay
// recipes. Pending recipes are grouped by pool, matching the Strategy's
// own recipe-store shape.
type Aggregator interface {
	Huge(ctx context.Context, pending map[common.Address][]*Recipe, direction SwapType, targetBlock uint64, contract common.Address) (*Recipe, error)
	Mixed(ctx context.Context, pending map[common.Address][]*Recipe, targetBlock uint64, contract common.Address) (*Recipe, error)
	Overlay(ctx context.Context, optimal, low []*Recipe, targetBlock uint64, contract common.Address) (*Recipe, error)
}

// BundleEmitter runs the four-check bundle-emission gate and signs the
// resulting transactions.
type BundleEmitter interface {
	Emit(recipe *Recipe, signerBalance, nextBaseFee *big.Int, simTimestamp uint64, nonce uint64) (*BundleRequest, error)
}

// LowFeeResender drains the victim filter's low-fee resend set. The
// Engine calls this right after updating block info and before the
// aggregation wait, per §5's ordering rule.
type LowFeeResender interface {
	ResendLowFee() []Transaction
}
