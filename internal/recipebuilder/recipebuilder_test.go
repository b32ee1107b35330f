package recipebuilder

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sando "github.com/sandodex/sandosearcher"
	"github.com/sandodex/sandosearcher/internal/payload"
	"github.com/sandodex/sandosearcher/internal/simulator"
)

// sandwichFake is a test double that understands the jump-table calldata
// format this package's Builder emits (jump byte, pool address, five-byte
// amount), unlike simulator.FakeSimulator, which only models a plain
// amountIn||tokenIn swap call sent to a pool address. It exercises a
// single v2 pool.
type sandwichFake struct {
	token0, token1     common.Address
	reserve0, reserve1 *big.Int
	balances           map[common.Address]map[common.Address]*big.Int
	revertAddrs        map[common.Address]bool
}

func newSandwichFake(token0, token1 common.Address, r0, r1 *big.Int) *sandwichFake {
	return &sandwichFake{
		token0: token0, token1: token1, reserve0: r0, reserve1: r1,
		balances:    make(map[common.Address]map[common.Address]*big.Int),
		revertAddrs: make(map[common.Address]bool),
	}
}

func (s *sandwichFake) Fork(ctx context.Context, block uint64) (simulator.Simulator, error) {
	clone := &sandwichFake{
		token0: s.token0, token1: s.token1,
		reserve0: new(big.Int).Set(s.reserve0), reserve1: new(big.Int).Set(s.reserve1),
		balances:    make(map[common.Address]map[common.Address]*big.Int),
		revertAddrs: s.revertAddrs,
	}
	for holder, toks := range s.balances {
		clone.balances[holder] = make(map[common.Address]*big.Int, len(toks))
		for tok, bal := range toks {
			clone.balances[holder][tok] = new(big.Int).Set(bal)
		}
	}
	return clone, nil
}

func (s *sandwichFake) bal(holder, token common.Address) *big.Int {
	if s.balances[holder] == nil || s.balances[holder][token] == nil {
		return big.NewInt(0)
	}
	return s.balances[holder][token]
}

func (s *sandwichFake) credit(holder, token common.Address, delta *big.Int) {
	if s.balances[holder] == nil {
		s.balances[holder] = make(map[common.Address]*big.Int)
	}
	s.balances[holder][token] = new(big.Int).Add(s.bal(holder, token), delta)
}

func (s *sandwichFake) Simulate(ctx context.Context, tx simulator.TxEnv) (*simulator.Result, error) {
	if s.revertAddrs[tx.From] {
		return &simulator.Result{Success: false, Opcodes: []string{"REVERT"}}, nil
	}
	if len(tx.Input) == 0 {
		return &simulator.Result{Success: true, Opcodes: []string{"STOP"}}, nil
	}
	jump := payload.JumpDest(tx.Input[0])
	switch jump {
	case payload.JumpCheckBlockNumber:
		tx.Input = tx.Input[5:]
		return s.Simulate(ctx, tx)
	case payload.JumpV2Forward0, payload.JumpV2Reverse0, payload.JumpV2Forward1, payload.JumpV2Reverse1:
		var enc [5]byte
		copy(enc[:], tx.Input[21:26])
		amount := payload.DecodeAmount(enc)

		buyingToken1 := jump == payload.JumpV2Forward0 || jump == payload.JumpV2Reverse1
		var out *big.Int
		if buyingToken1 {
			out = simulator.V2AmountOut(amount, s.reserve0, s.reserve1)
			s.reserve0.Add(s.reserve0, amount)
			s.reserve1.Sub(s.reserve1, out)
			s.credit(tx.From, s.token1, out)
			s.credit(tx.From, s.token0, new(big.Int).Neg(amount))
		} else {
			out = simulator.V2AmountOut(amount, s.reserve1, s.reserve0)
			s.reserve1.Add(s.reserve1, amount)
			s.reserve0.Sub(s.reserve0, out)
			s.credit(tx.From, s.token0, out)
			s.credit(tx.From, s.token1, new(big.Int).Neg(amount))
		}
		return &simulator.Result{Success: true, GasUsed: 120_000, Opcodes: []string{"CALL", "SLOAD", "SSTORE"}}, nil
	default:
		return &simulator.Result{Success: true, Opcodes: []string{"STOP"}}, nil
	}
}

func (s *sandwichFake) TokenBalance(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	return s.bal(holder, token), nil
}

func TestBuildForwardRecipeHasPositiveRevenue(t *testing.T) {
	weth := sando.WETH
	other := common.HexToAddress("0x00000000000000000000000000000000000c0c")
	pool := sando.Pool{Address: common.HexToAddress("0x00000000000000000000000000000000000001"), TokenA: weth, TokenB: other}
	contract := common.HexToAddress("0x00000000000000000000000000000000009999")

	fake := newSandwichFake(weth, other, big.NewInt(1_000_000_000_000_000_000_000), big.NewInt(2_000_000_000_000_000_000_000_000))
	// The victim buys the other token with 50 weth between the two legs,
	// pushing the price in the sandwich's favour.
	victimAmount, err := payload.EncodeAmount(big.NewInt(50_000_000_000_000_000_000))
	require.NoError(t, err)
	victim := sando.Transaction{
		Hash:  common.HexToHash("0xaa"),
		From:  common.HexToAddress("0x02"),
		Input: payload.NewBuilder(payload.JumpV2Forward0).Address(pool.Address).Amount(victimAmount).Bytes(),
	}

	ing := sando.NewIngredients("test-uuid", nil, []sando.Transaction{victim}, weth, other, pool, sando.SwapForward)

	b := New(fake)
	recipe, err := b.Build(context.Background(), ing, 101, contract, big.NewInt(10_000_000_000_000_000_000), nil)
	require.NoError(t, err)
	assert.Equal(t, sando.SwapForward, recipe.SwapType)
	assert.Greater(t, recipe.Revenue.Sign(), 0)
	assert.NotNil(t, recipe.FrontRun.Calldata)
	assert.NotNil(t, recipe.BackRun.Calldata)
	assert.Equal(t, byte(payload.JumpCheckBlockNumber), recipe.FrontRun.Calldata[0])
}

func TestBuildDropsRevertedMeats(t *testing.T) {
	weth := sando.WETH
	other := common.HexToAddress("0x00000000000000000000000000000000000c0c")
	pool := sando.Pool{Address: common.HexToAddress("0x00000000000000000000000000000000000001"), TokenA: weth, TokenB: other}
	contract := common.HexToAddress("0x00000000000000000000000000000000009999")

	fake := newSandwichFake(weth, other, big.NewInt(1_000_000_000_000_000_000_000), big.NewInt(2_000_000_000_000_000_000_000_000))
	ok := sando.Transaction{Hash: common.HexToHash("0xbb"), From: common.HexToAddress("0x03")}
	reverts := sando.Transaction{Hash: common.HexToHash("0xcc"), From: common.HexToAddress("0x04")}
	fake.revertAddrs[reverts.From] = true

	ing := sando.NewIngredients("uuid2", nil, []sando.Transaction{ok, reverts}, weth, other, pool, sando.SwapForward)

	b := New(fake)
	recipe, err := b.Build(context.Background(), ing, 101, contract, big.NewInt(10_000_000_000_000_000_000), nil)
	require.NoError(t, err)
	require.Len(t, recipe.Ingredients.Meats, 1)
	assert.Equal(t, ok.Hash, recipe.Ingredients.Meats[0].Hash)
}

func TestStrategyReverseSandwichBacksInAtSearchedAmount(t *testing.T) {
	weth := sando.WETH
	other := common.HexToAddress("0x00000000000000000000000000000000000c0c")
	pool := sando.Pool{Address: common.HexToAddress("0x00000000000000000000000000000000000001"), TokenA: weth, TokenB: other}
	contract := common.HexToAddress("0x00000000000000000000000000000000009999")

	fake := newSandwichFake(weth, other, big.NewInt(1_000_000_000_000_000_000_000), big.NewInt(2_000_000_000_000_000_000_000_000))
	victim := sando.Transaction{Hash: common.HexToHash("0xdd"), From: common.HexToAddress("0x05")}

	ing := sando.NewIngredients("uuid3", nil, []sando.Transaction{victim}, other, weth, pool, sando.SwapReverse)

	b := New(fake)
	forwardInput := big.NewInt(50_000_000_000_000_000_000)
	gain, initialOther, err := b.ReverseIntermediaryGain(context.Background(), ing, 101, contract, forwardInput)
	require.NoError(t, err)
	require.NotNil(t, gain)
	assert.True(t, gain.Sign() > 0)
	assert.Equal(t, 0, big.NewInt(0).Cmp(initialOther))

	probe := b.ReverseBackInProbe(context.Background(), ing, 101, contract, forwardInput)
	resultBalance, err := probe(context.Background(), gain)
	require.NoError(t, err)
	assert.NotNil(t, resultBalance)

	recipe, err := b.Build(context.Background(), ing, 101, contract, forwardInput, gain)
	require.NoError(t, err)
	require.NotNil(t, recipe)
	assert.Equal(t, sando.SwapReverse, recipe.SwapType)

	// The back-run (jump byte, pool address, five-byte amount) is sized at
	// the searched back_in, not at the front-run's raw output.
	wantBackIn, err := payload.EncodeAmount(gain)
	require.NoError(t, err)
	assert.Equal(t, wantBackIn[:], recipe.BackRun.Calldata[21:26])
}

// v3Fake is a test double for a single concentrated-liquidity pool: it
// understands the jump+poolKeyHash+tokenIn+amount v3 calldata this
// package's Builder emits, and answers lil-router quote calls at
// simulator.LilRouterAddress the same way a forked v3 pool's quoter
// would, priced off the same constant-product reserves sandwichFake uses
// for v2 (the real curve is out of scope; only the call/response shape
// matters here).
type v3Fake struct {
	weth, other               common.Address
	reserveWeth, reserveOther *big.Int
	balances                  map[common.Address]map[common.Address]*big.Int
	// quoteCalls is shared with every fork, so calls made on a fork are
	// counted on the fake the test holds.
	quoteCalls *int
}

func newV3Fake(weth, other common.Address, reserveWeth, reserveOther *big.Int) *v3Fake {
	return &v3Fake{
		weth: weth, other: other,
		reserveWeth: reserveWeth, reserveOther: reserveOther,
		balances:   make(map[common.Address]map[common.Address]*big.Int),
		quoteCalls: new(int),
	}
}

func (s *v3Fake) Fork(ctx context.Context, block uint64) (simulator.Simulator, error) {
	clone := &v3Fake{
		weth: s.weth, other: s.other,
		reserveWeth: new(big.Int).Set(s.reserveWeth), reserveOther: new(big.Int).Set(s.reserveOther),
		balances:   make(map[common.Address]map[common.Address]*big.Int),
		quoteCalls: s.quoteCalls,
	}
	for holder, toks := range s.balances {
		clone.balances[holder] = make(map[common.Address]*big.Int, len(toks))
		for tok, bal := range toks {
			clone.balances[holder][tok] = new(big.Int).Set(bal)
		}
	}
	return clone, nil
}

func (s *v3Fake) bal(holder, token common.Address) *big.Int {
	if s.balances[holder] == nil || s.balances[holder][token] == nil {
		return big.NewInt(0)
	}
	return s.balances[holder][token]
}

func (s *v3Fake) credit(holder, token common.Address, delta *big.Int) {
	if s.balances[holder] == nil {
		s.balances[holder] = make(map[common.Address]*big.Int)
	}
	s.balances[holder][token] = new(big.Int).Add(s.bal(holder, token), delta)
}

func (s *v3Fake) quote(tokenIn common.Address, amountIn *big.Int) *big.Int {
	if tokenIn == s.weth {
		return simulator.V2AmountOut(amountIn, s.reserveWeth, s.reserveOther)
	}
	return simulator.V2AmountOut(amountIn, s.reserveOther, s.reserveWeth)
}

func (s *v3Fake) Simulate(ctx context.Context, tx simulator.TxEnv) (*simulator.Result, error) {
	if tx.To == simulator.LilRouterAddress {
		*s.quoteCalls++
		tokenIn := common.BytesToAddress(tx.Input[32:52])
		amountIn := new(big.Int).SetBytes(tx.Input[52:84])
		out := make([]byte, 32)
		s.quote(tokenIn, amountIn).FillBytes(out)
		return &simulator.Result{Success: true, Opcodes: []string{"STATICCALL"}, Output: out}, nil
	}
	if len(tx.Input) == 0 {
		return &simulator.Result{Success: true, Opcodes: []string{"STOP"}}, nil
	}
	jump := payload.JumpDest(tx.Input[0])
	if jump == payload.JumpCheckBlockNumber {
		tx.Input = tx.Input[5:]
		return s.Simulate(ctx, tx)
	}
	if jump != payload.JumpV3Forward && jump != payload.JumpV3Reverse {
		return &simulator.Result{Success: true, Opcodes: []string{"STOP"}}, nil
	}
	tokenIn := common.BytesToAddress(tx.Input[33:53])
	var enc [5]byte
	copy(enc[:], tx.Input[53:58])
	amountIn := payload.DecodeAmount(enc)
	out := s.quote(tokenIn, amountIn)
	if tokenIn == s.weth {
		s.reserveWeth.Add(s.reserveWeth, amountIn)
		s.reserveOther.Sub(s.reserveOther, out)
		s.credit(tx.From, s.other, out)
		s.credit(tx.From, s.weth, new(big.Int).Neg(amountIn))
	} else {
		s.reserveOther.Add(s.reserveOther, amountIn)
		s.reserveWeth.Sub(s.reserveWeth, out)
		s.credit(tx.From, s.weth, out)
		s.credit(tx.From, s.other, new(big.Int).Neg(amountIn))
	}
	return &simulator.Result{Success: true, GasUsed: 180_000, Opcodes: []string{"CALL", "SLOAD", "SSTORE"}}, nil
}

func (s *v3Fake) TokenBalance(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	return s.bal(holder, token), nil
}

func TestBuildV3ForwardRecipeQuotesWethOutputLeg(t *testing.T) {
	weth := sando.WETH
	other := common.HexToAddress("0x00000000000000000000000000000000000d0d")
	pool := sando.Pool{
		Address: common.HexToAddress("0x00000000000000000000000000000000000002"),
		Variant: sando.VariantConcentratedV3,
		TokenA:  weth, TokenB: other, FeeTier: 3000,
	}
	contract := common.HexToAddress("0x00000000000000000000000000000000009998")

	fake := newV3Fake(weth, other, big.NewInt(1_000_000_000_000_000_000_000), big.NewInt(2_000_000_000_000_000_000_000_000))
	victim := sando.Transaction{Hash: common.HexToHash("0xee"), From: common.HexToAddress("0x06")}

	ing := sando.NewIngredients("uuid4", nil, []sando.Transaction{victim}, weth, other, pool, sando.SwapForward)

	b := New(fake)
	recipe, err := b.Build(context.Background(), ing, 101, contract, big.NewInt(10_000_000_000_000_000_000), nil)
	require.NoError(t, err)
	assert.Equal(t, byte(payload.JumpCheckBlockNumber), recipe.FrontRun.Calldata[0])
	assert.Equal(t, byte(payload.JumpV3Forward), recipe.FrontRun.Calldata[5])
	assert.Equal(t, byte(payload.JumpV3Forward), recipe.BackRun.Calldata[0])
	assert.Equal(t, 1, *fake.quoteCalls,"back-run leg buys weth, so it must size its output via the lil-router quote")
}
