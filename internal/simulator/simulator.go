// Package simulator defines the forked-execution sandbox as a small
// capability interface (§9: "the EVM fork and RPC transport are modeled as
// two small capability interfaces so the core compiles against one trait
// rather than a family of parameterised generics"). The real EVM + state
// diff fork database is out of scope; this package only defines the
// contract the core consumes, plus math helpers that don't require an EVM
// at all, plus an in-memory fake (FakeSimulator).
package simulator

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// TxEnv is one transaction to execute inside a forked simulator.
type TxEnv struct {
	From     common.Address
	To       common.Address
	Input    []byte
	Value    *big.Int
	GasLimit uint64
}

// Result is what a simulated call returns.
type Result struct {
	Success    bool
	GasUsed    uint64
	AccessList gethtypes.AccessList
	Opcodes    []string // every opcode executed, for the salmonella inspector
	Logs       []*gethtypes.Log
	Output     []byte // return data, used by view-style calls like the v3 lil-router quote
}

// Simulator is the black-box fork/simulate capability. A forked instance is
// isolated: no mutable EVM state is shared between callers, matching the
// "fork-per-task" isolation rule of §5.
type Simulator interface {
	// Fork returns a new, independent Simulator forked at the given block.
	Fork(ctx context.Context, block uint64) (Simulator, error)
	// Simulate executes txEnv against the forked state and commits the
	// resulting state diff into this instance.
	Simulate(ctx context.Context, tx TxEnv) (*Result, error)
	// TokenBalance reads a token balance for an address from the forked
	// state (used to read pre/post sandwich balances).
	TokenBalance(ctx context.Context, token, holder common.Address) (*big.Int, error)
}

// StateDiffProvider is the capability the Pool Registry's victim tracing
// needs: the stateDiff of one transaction against one block.
type StateDiffProvider interface {
	StateDiff(ctx context.Context, tx common.Hash, block uint64) (StateDiff, error)
}

// StateDiff maps an address to its storage-slot deltas, enough to find the
// weth-balance delta at keccak256(pool||3).
type StateDiff map[common.Address]map[common.Hash]*big.Int // value = after - before

// LogFetcher is the capability the Pool Registry's initial sync needs: all
// logs matching a topic from a factory address starting at a genesis block.
type LogFetcher interface {
	FetchPairCreatedLogs(ctx context.Context, factory common.Address, fromBlock uint64) ([]gethtypes.Log, error)
}
