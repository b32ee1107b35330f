// Package recipebuilder turns an optimized candidate into a fully
// simulated, fully encoded Recipe (spec §4.4).
package recipebuilder

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	sando "github.com/sandodex/sandosearcher"
	"github.com/sandodex/sandosearcher/internal/payload"
	"github.com/sandodex/sandosearcher/internal/simulator"
)

// Builder replays head_txs, encodes and simulates front- and back-run
// legs, and drops reverted meats, all against a freshly forked simulator.
type Builder struct {
	base simulator.Simulator
}

func New(base simulator.Simulator) *Builder {
	return &Builder{base: base}
}

// Build runs the full recipe construction sequence. sandwichContract is
// the address the front- and back-run legs are sent to (the "jump table"
// contract); optimalInput is the result of the Optimizer's search.
// backIn is nil for forward candidates; for reverse candidates it is the
// Optimizer's SearchReverseBackIn result, used to size the back-run
// instead of the front-run's raw bought amount.
func (b *Builder) Build(ctx context.Context, ing sando.Ingredients, targetBlock uint64, sandwichContract common.Address, optimalInput, backIn *big.Int) (*sando.Recipe, error) {
	fork, err := b.base.Fork(ctx, targetBlock-1)
	if err != nil {
		return nil, sando.NewSearchError("recipebuilder.fork", sando.KindTransientRPC, err)
	}

	for _, head := range ing.HeadTxs {
		if _, err := simulate(ctx, fork, head); err != nil {
			return nil, err
		}
	}

	preBalance, err := fork.TokenBalance(ctx, ing.StartEndToken, sandwichContract)
	if err != nil {
		return nil, sando.NewSearchError("recipebuilder.pre-balance", sando.KindSimulatorError, err)
	}

	frontLeg, frontOut, err := b.runFrontRun(ctx, fork, ing, sandwichContract, targetBlock, optimalInput)
	if err != nil {
		return nil, err
	}

	survivingMeats := make([]sando.Transaction, 0, len(ing.Meats))
	for _, meat := range ing.Meats {
		res, err := simulate(ctx, fork, meat)
		if err != nil {
			return nil, err
		}
		if res.Success {
			survivingMeats = append(survivingMeats, meat)
		}
	}

	backAmount := frontOut
	if ing.SwapType == sando.SwapReverse && backIn != nil && backIn.Sign() > 0 {
		backAmount = backIn
	}
	backLeg, err := b.runBackRun(ctx, fork, ing, sandwichContract, backAmount)
	if err != nil {
		return nil, err
	}

	postBalance, err := fork.TokenBalance(ctx, ing.StartEndToken, sandwichContract)
	if err != nil {
		return nil, sando.NewSearchError("recipebuilder.post-balance", sando.KindSimulatorError, err)
	}
	revenue := new(big.Int).Sub(postBalance, preBalance)

	finalIng := ing
	finalIng.Meats = survivingMeats

	return &sando.Recipe{
		UUID:         ing.UUID,
		Ingredients:  finalIng,
		SwapType:     ing.SwapType,
		FrontRun:     frontLeg,
		BackRun:      backLeg,
		Revenue:      revenue,
		TargetBlock:  targetBlock,
		OptimalInput: optimalInput,
		FrontrunData: frontLeg.Calldata,
	}, nil
}

func simulate(ctx context.Context, sim simulator.Simulator, tx sando.Transaction) (*simulator.Result, error) {
	res, err := sim.Simulate(ctx, simulator.TxEnv{
		From:     tx.From,
		To:       tx.To,
		Input:    tx.Input,
		Value:    tx.Value,
		GasLimit: tx.GasLimit,
	})
	if err != nil {
		return nil, sando.NewSearchError("recipebuilder.simulate", sando.KindSimulatorError, err)
	}
	if flagged := simulator.CheckOpcodes(res.Opcodes); len(flagged) > 0 {
		return nil, sando.NewUnsafeOpcodesError("recipebuilder.simulate", flagged)
	}
	return res, nil
}

// Resimulate re-runs a pre-spliced combined front-run/back-run pair (built
// by the aggregator out of several standalone recipes' legs) against a
// fresh fork, recomputing revenue and a probe-time profit_max so the
// aggregator can compare combinations. profit_max here is an estimate;
// the Bundle Emitter recomputes the authoritative value at submission
// time (§4.6).
func (b *Builder) Resimulate(ctx context.Context, ing sando.Ingredients, frontCalldata, backCalldata []byte, targetBlock uint64, contract common.Address) (*sando.Recipe, error) {
	fork, err := b.base.Fork(ctx, targetBlock-1)
	if err != nil {
		return nil, sando.NewSearchError("recipebuilder.resim-fork", sando.KindTransientRPC, err)
	}

	for _, head := range ing.HeadTxs {
		if _, err := simulate(ctx, fork, head); err != nil {
			return nil, err
		}
	}

	preBalance, err := fork.TokenBalance(ctx, ing.StartEndToken, contract)
	if err != nil {
		return nil, sando.NewSearchError("recipebuilder.resim-pre", sando.KindSimulatorError, err)
	}

	frontRes, err := simulate(ctx, fork, sando.Transaction{From: contract, To: contract, Input: frontCalldata, Value: big.NewInt(0)})
	if err != nil {
		return nil, err
	}

	survivingMeats := make([]sando.Transaction, 0, len(ing.Meats))
	for _, meat := range ing.Meats {
		res, err := simulate(ctx, fork, meat)
		if err != nil {
			return nil, err
		}
		if res.Success {
			survivingMeats = append(survivingMeats, meat)
		}
	}

	backRes, err := simulate(ctx, fork, sando.Transaction{From: contract, To: contract, Input: backCalldata, Value: big.NewInt(0)})
	if err != nil {
		return nil, err
	}

	postBalance, err := fork.TokenBalance(ctx, ing.StartEndToken, contract)
	if err != nil {
		return nil, sando.NewSearchError("recipebuilder.resim-post", sando.KindSimulatorError, err)
	}
	revenue := new(big.Int).Sub(postBalance, preBalance)

	finalIng := ing
	finalIng.Meats = survivingMeats

	gasTotal := new(big.Int).SetUint64(frontRes.GasUsed + backRes.GasUsed)
	profit := new(big.Int).Sub(revenue, gasTotal)

	return &sando.Recipe{
		UUID:        ing.UUID,
		Ingredients: finalIng,
		SwapType:    ing.SwapType,
		FrontRun:    sando.Leg{Calldata: frontCalldata, Value: big.NewInt(0), AccessList: frontRes.AccessList, GasUsed: frontRes.GasUsed},
		BackRun:     sando.Leg{Calldata: backCalldata, Value: big.NewInt(0), AccessList: backRes.AccessList, GasUsed: backRes.GasUsed},
		Revenue:     revenue,
		TargetBlock: targetBlock,
		ProfitMax:   profit,
	}, nil
}

// runFrontRun encodes the front-run using the five-byte meta-encoding,
// prepends the §6.1 check_block_number guard, simulates it to capture the
// access list and gas, and returns the amount of the other token it
// bought (used to derive the back-run input for forward candidates).
// v3 pools dispatch to runLegV3 instead of the v2 jump table.
func (b *Builder) runFrontRun(ctx context.Context, fork simulator.Simulator, ing sando.Ingredients, contract common.Address, targetBlock uint64, optimalInput *big.Int) (sando.Leg, *big.Int, error) {
	if ing.Pool.Variant == sando.VariantConcentratedV3 {
		return b.runLegV3(ctx, fork, ing, contract, targetBlock, optimalInput, true)
	}

	jump := payload.JumpV2Forward0
	if ing.SwapType == sando.SwapReverse {
		jump = payload.JumpV2Reverse0
	}
	enc, err := payload.EncodeAmount(optimalInput)
	if err != nil {
		return sando.Leg{}, nil, sando.NewSearchError("recipebuilder.encode-front", sando.KindSimulatorError, err)
	}
	calldata := append(payload.CheckBlockNumber(targetBlock), payload.NewBuilder(jump).Address(ing.Pool.Address).Amount(enc).Bytes()...)

	preOut, err := fork.TokenBalance(ctx, ing.IntermediaryToken, contract)
	if err != nil {
		return sando.Leg{}, nil, sando.NewSearchError("recipebuilder.front-pre", sando.KindSimulatorError, err)
	}

	res, err := simulate(ctx, fork, sando.Transaction{From: contract, To: ing.Pool.Address, Input: calldata, Value: big.NewInt(0)})
	if err != nil {
		return sando.Leg{}, nil, err
	}

	postOut, err := fork.TokenBalance(ctx, ing.IntermediaryToken, contract)
	if err != nil {
		return sando.Leg{}, nil, sando.NewSearchError("recipebuilder.front-post", sando.KindSimulatorError, err)
	}
	bought := new(big.Int).Sub(postOut, preOut)

	return sando.Leg{Calldata: calldata, Value: big.NewInt(0), AccessList: res.AccessList, GasUsed: res.GasUsed}, bought, nil
}

// runBackRun derives the back-run input from the simulator-observed
// sandwich balance: forward direction dust-decrements by 4 units, reverse
// encodes exactly (or the Optimizer's reverse back_in, passed in by
// Build). v3 pools dispatch to runLegV3.
func (b *Builder) runBackRun(ctx context.Context, fork simulator.Simulator, ing sando.Ingredients, contract common.Address, intermediaryHeld *big.Int) (sando.Leg, error) {
	if ing.Pool.Variant == sando.VariantConcentratedV3 {
		leg, _, err := b.runLegV3(ctx, fork, ing, contract, 0, intermediaryHeld, false)
		return leg, err
	}

	jump := payload.JumpV2Forward1
	var enc [5]byte
	var err error
	if ing.SwapType == sando.SwapForward {
		enc, err = payload.EncodeAmountWithDustDecrement(intermediaryHeld)
	} else {
		jump = payload.JumpV2Reverse1
		enc, err = payload.EncodeAmount(intermediaryHeld)
	}
	if err != nil {
		return sando.Leg{}, sando.NewSearchError("recipebuilder.encode-back", sando.KindSimulatorError, err)
	}
	calldata := payload.NewBuilder(jump).Address(ing.Pool.Address).Amount(enc).Bytes()

	res, err := simulate(ctx, fork, sando.Transaction{From: contract, To: ing.Pool.Address, Input: calldata, Value: big.NewInt(0)})
	if err != nil {
		return sando.Leg{}, err
	}
	return sando.Leg{Calldata: calldata, Value: big.NewInt(0), AccessList: res.AccessList, GasUsed: res.GasUsed}, nil
}

// runLegV3 encodes and simulates one leg of a v3 candidate: jump byte,
// pool key hash, the input token address (v3 has only two jump constants,
// Forward/Reverse, so the input token disambiguates which of the two
// legs this is), the five-byte input amount, and — when this leg's
// output is weth — a lil-router quote packed via EncodeV3Output. isFront
// decides whether the check_block_number guard is prepended and which
// token balance delta is measured.
func (b *Builder) runLegV3(ctx context.Context, fork simulator.Simulator, ing sando.Ingredients, contract common.Address, targetBlock uint64, amount *big.Int, isFront bool) (sando.Leg, *big.Int, error) {
	jump := payload.JumpV3Forward
	if ing.SwapType == sando.SwapReverse {
		jump = payload.JumpV3Reverse
	}

	tokenIn, measureToken := ing.IntermediaryToken, ing.StartEndToken
	if isFront {
		tokenIn, measureToken = ing.StartEndToken, ing.IntermediaryToken
	}
	wethIsOutput := tokenIn != sando.WETH

	keyHash, err := payload.PoolKeyHash(ing.Pool.TokenA, ing.Pool.TokenB, ing.Pool.FeeTier)
	if err != nil {
		return sando.Leg{}, nil, sando.NewSearchError("recipebuilder.v3-pool-key", sando.KindSimulatorError, err)
	}
	enc, err := payload.EncodeAmount(amount)
	if err != nil {
		return sando.Leg{}, nil, sando.NewSearchError("recipebuilder.encode-v3", sando.KindSimulatorError, err)
	}
	built := payload.NewBuilder(jump).Hash(keyHash).Address(tokenIn).Amount(enc)
	if wethIsOutput {
		quote, err := b.quoteV3(ctx, fork, ing, tokenIn, amount)
		if err != nil {
			return sando.Leg{}, nil, err
		}
		built = built.Raw(payload.EncodeV3Output(quote))
	}
	calldata := built.Bytes()
	if isFront {
		calldata = append(payload.CheckBlockNumber(targetBlock), calldata...)
	}

	pre, err := fork.TokenBalance(ctx, measureToken, contract)
	if err != nil {
		return sando.Leg{}, nil, sando.NewSearchError("recipebuilder.v3-pre", sando.KindSimulatorError, err)
	}
	res, err := simulate(ctx, fork, sando.Transaction{From: contract, To: ing.Pool.Address, Input: calldata, Value: big.NewInt(0)})
	if err != nil {
		return sando.Leg{}, nil, err
	}
	post, err := fork.TokenBalance(ctx, measureToken, contract)
	if err != nil {
		return sando.Leg{}, nil, sando.NewSearchError("recipebuilder.v3-post", sando.KindSimulatorError, err)
	}

	return sando.Leg{Calldata: calldata, Value: big.NewInt(0), AccessList: res.AccessList, GasUsed: res.GasUsed}, new(big.Int).Sub(post, pre), nil
}

// quoteV3 calls the injected lil-router to obtain a v3 leg's amount-out,
// used to size the weth-is-output field (§4.4).
func (b *Builder) quoteV3(ctx context.Context, fork simulator.Simulator, ing sando.Ingredients, tokenIn common.Address, amountIn *big.Int) (*big.Int, error) {
	keyHash, err := payload.PoolKeyHash(ing.Pool.TokenA, ing.Pool.TokenB, ing.Pool.FeeTier)
	if err != nil {
		return nil, sando.NewSearchError("recipebuilder.v3-quote-key", sando.KindSimulatorError, err)
	}
	calldata := simulator.EncodeLilRouterQuoteCall(keyHash, tokenIn, amountIn)
	res, err := simulate(ctx, fork, sando.Transaction{From: ing.Pool.Address, To: simulator.LilRouterAddress, Input: calldata})
	if err != nil {
		return nil, err
	}
	quote := simulator.LilRouterQuote{
		Pool:      [20]byte(ing.Pool.Address),
		TokenIn:   [20]byte(tokenIn),
		AmountIn:  amountIn,
		AmountOut: simulator.DecodeLilRouterQuoteResult(res.Output),
	}
	return quote.AmountOut, nil
}

// ReverseIntermediaryGain runs the two-hop probe of §4.3: fork at
// target-1, replay head_txs, record the start/end-token balance, then run
// the front-run leg at forwardInput and report how much intermediary
// (weth) it bought.
func (b *Builder) ReverseIntermediaryGain(ctx context.Context, ing sando.Ingredients, targetBlock uint64, contract common.Address, forwardInput *big.Int) (*big.Int, *big.Int, error) {
	fork, err := b.base.Fork(ctx, targetBlock-1)
	if err != nil {
		return nil, nil, sando.NewSearchError("recipebuilder.reverse-gain-fork", sando.KindTransientRPC, err)
	}
	for _, head := range ing.HeadTxs {
		if _, err := simulate(ctx, fork, head); err != nil {
			return nil, nil, err
		}
	}
	initialOther, err := fork.TokenBalance(ctx, ing.StartEndToken, contract)
	if err != nil {
		return nil, nil, sando.NewSearchError("recipebuilder.reverse-gain-balance", sando.KindSimulatorError, err)
	}
	_, bought, err := b.runFrontRun(ctx, fork, ing, contract, targetBlock, forwardInput)
	if err != nil {
		return nil, nil, err
	}
	return bought, initialOther, nil
}

// ReverseBackInProbe returns a probe bound to one reverse candidate's
// forward leg: each call forks fresh, replays head_txs and the front-run,
// runs the victim, sizes the back-run at the candidate back_in, and
// reports the resulting start/end-token balance.
func (b *Builder) ReverseBackInProbe(ctx context.Context, ing sando.Ingredients, targetBlock uint64, contract common.Address, forwardInput *big.Int) sando.ReverseBackInProbe {
	return func(ctx context.Context, backIn *big.Int) (*big.Int, error) {
		fork, err := b.base.Fork(ctx, targetBlock-1)
		if err != nil {
			return nil, sando.NewSearchError("recipebuilder.reverse-probe-fork", sando.KindTransientRPC, err)
		}
		for _, head := range ing.HeadTxs {
			if _, err := simulate(ctx, fork, head); err != nil {
				return nil, err
			}
		}
		if _, _, err := b.runFrontRun(ctx, fork, ing, contract, targetBlock, forwardInput); err != nil {
			return nil, err
		}
		for _, meat := range ing.Meats {
			if _, err := simulate(ctx, fork, meat); err != nil {
				return nil, err
			}
		}
		if _, err := b.runBackRun(ctx, fork, ing, contract, backIn); err != nil {
			return nil, err
		}
		return fork.TokenBalance(ctx, ing.StartEndToken, contract)
	}
}
