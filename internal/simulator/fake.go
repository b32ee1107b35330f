package simulator

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// FakeV2Pool is an in-memory constant-product pool used by the fake
// simulator: no EVM, just reserves, so it runs without the real fork
// database.
type FakeV2Pool struct {
	Pool            common.Address
	Token0, Token1  common.Address
	Reserve0        *big.Int
	Reserve1        *big.Int
}

// FakeSimulator is a deterministic, in-memory stand-in for the real forked
// EVM sandbox. It models a plain pool swap call (32-byte amountIn ||
// 20-byte tokenIn sent to a pool address): it swaps that pool's reserves
// via V2AmountOut, moves balances, and records opcodes for the salmonella
// inspector. It does not decode the Recipe Builder's jump-table calldata;
// such calls run as successful no-ops.
type FakeSimulator struct {
	block    uint64
	pools    map[common.Address]*FakeV2Pool
	balances map[common.Address]map[common.Address]*big.Int // token -> holder -> balance
	opcodes  []string
	// Reverts lists txs (keyed by the hex encoding of the tx input) that the
	// fake should treat as reverting, for the "multi-meat with one revert"
	// scenario.
	Reverts map[string]bool
}

func NewFakeSimulator(block uint64) *FakeSimulator {
	return &FakeSimulator{
		block:    block,
		pools:    make(map[common.Address]*FakeV2Pool),
		balances: make(map[common.Address]map[common.Address]*big.Int),
		Reverts:  make(map[string]bool),
	}
}

func (f *FakeSimulator) AddPool(p *FakeV2Pool) {
	f.pools[p.Pool] = p
}

func (f *FakeSimulator) SetBalance(token, holder common.Address, amount *big.Int) {
	if f.balances[token] == nil {
		f.balances[token] = make(map[common.Address]*big.Int)
	}
	f.balances[token][holder] = new(big.Int).Set(amount)
}

func (f *FakeSimulator) Fork(ctx context.Context, block uint64) (Simulator, error) {
	clone := NewFakeSimulator(block)
	for addr, p := range f.pools {
		cp := *p
		cp.Reserve0 = new(big.Int).Set(p.Reserve0)
		cp.Reserve1 = new(big.Int).Set(p.Reserve1)
		clone.pools[addr] = &cp
	}
	for token, holders := range f.balances {
		clone.balances[token] = make(map[common.Address]*big.Int, len(holders))
		for h, bal := range holders {
			clone.balances[token][h] = new(big.Int).Set(bal)
		}
	}
	for k, v := range f.Reverts {
		clone.Reverts[k] = v
	}
	return clone, nil
}

func (f *FakeSimulator) balanceOf(token, holder common.Address) *big.Int {
	if f.balances[token] == nil {
		return big.NewInt(0)
	}
	if v, ok := f.balances[token][holder]; ok {
		return v
	}
	return big.NewInt(0)
}

func (f *FakeSimulator) addBalance(token, holder common.Address, delta *big.Int) {
	cur := f.balanceOf(token, holder)
	next := new(big.Int).Add(cur, delta)
	f.SetBalance(token, holder, next)
}

// Simulate treats tx.To as a pool address and tx.Input as
// 32-byte-big-endian(amountIn) || tokenIn(20 bytes), swapping tokenIn for
// the other side of the pool, crediting tx.From.
func (f *FakeSimulator) Simulate(ctx context.Context, tx TxEnv) (*Result, error) {
	f.opcodes = append(f.opcodes, "CALL", "SLOAD", "SSTORE")
	key := fmt.Sprintf("%x", tx.Input)
	if f.Reverts[key] {
		return &Result{Success: false, GasUsed: 21000, Opcodes: []string{"REVERT"}}, nil
	}
	pool, ok := f.pools[tx.To]
	if !ok || len(tx.Input) < 52 {
		return &Result{Success: true, GasUsed: 21000}, nil
	}
	amountIn := new(big.Int).SetBytes(tx.Input[:32])
	tokenIn := common.BytesToAddress(tx.Input[32:52])

	var reserveIn, reserveOut *big.Int
	var tokenOut common.Address
	if tokenIn == pool.Token0 {
		reserveIn, reserveOut, tokenOut = pool.Reserve0, pool.Reserve1, pool.Token1
	} else {
		reserveIn, reserveOut, tokenOut = pool.Reserve1, pool.Reserve0, pool.Token0
	}
	amountOut := V2AmountOut(amountIn, reserveIn, reserveOut)

	f.addBalance(tokenIn, tx.From, new(big.Int).Neg(amountIn))
	f.addBalance(tokenOut, tx.From, amountOut)
	if tokenIn == pool.Token0 {
		pool.Reserve0.Add(pool.Reserve0, amountIn)
		pool.Reserve1.Sub(pool.Reserve1, amountOut)
	} else {
		pool.Reserve1.Add(pool.Reserve1, amountIn)
		pool.Reserve0.Sub(pool.Reserve0, amountOut)
	}

	return &Result{Success: true, GasUsed: 120_000, Opcodes: []string{"CALL", "SLOAD", "SSTORE"}}, nil
}

func (f *FakeSimulator) TokenBalance(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	return f.balanceOf(token, holder), nil
}
