// Package sando holds the core data model and orchestration types for the
// sandwich opportunity-search and bundle-construction engine. Sub-managers
// that do the actual work live under internal/; this package only defines
// what flows between them and wires them together, mirroring the way the
// teacher's root package owns a thin Blackhole type around sub-clients.
package sando

import (
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// Variant tags a pool's AMM kind.
type Variant int

const (
	VariantConstantProductV2 Variant = iota
	VariantConcentratedV3
)

func (v Variant) String() string {
	if v == VariantConcentratedV3 {
		return "concentrated-v3"
	}
	return "constant-product-v2"
}

// WETH is the well-known wrapped-ether address used to decide whether a
// pool is weth-paired and to locate the balance-delta storage slot.
var WETH = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")

// Pool is a known, sandwichable liquidity pool.
type Pool struct {
	Address  common.Address
	Variant  Variant
	TokenA   common.Address
	TokenB   common.Address
	FeeTier  uint32 // v3 only; 0 for v2
	Genesis  uint64 // block the pool was created in, for registry sync
}

// IsWethPaired reports whether one side of the pool is WETH.
func (p Pool) IsWethPaired() bool {
	return p.TokenA == WETH || p.TokenB == WETH
}

// OtherToken returns the non-WETH side of a weth-paired pool.
func (p Pool) OtherToken() common.Address {
	if p.TokenA == WETH {
		return p.TokenB
	}
	return p.TokenA
}

// TxType mirrors the EIP-2718 typed-transaction envelope kinds the core
// cares about.
type TxType uint8

const (
	TxTypeLegacy TxType = iota
	TxTypeDynamicFee
)

// Transaction is an immutable pending-tx record. From must be populated by
// recovering the signature before the record is used anywhere in the
// pipeline — RecoverSender does that from a raw go-ethereum transaction.
type Transaction struct {
	Hash             common.Hash
	From             common.Address
	To               common.Address
	Nonce            uint64
	Input            []byte
	Value            *big.Int
	GasLimit         uint64
	GasPrice         *big.Int // legacy
	MaxFeePerGas     *big.Int // EIP-1559
	MaxPriorityFee   *big.Int // EIP-1559
	Type             TxType
	ChainID          *big.Int
	// Raw is the original signed transaction envelope, carried through so
	// head_txs and meats can be re-emitted verbatim in a BundleRequest.
	Raw *gethtypes.Transaction
}

// EffectiveMaxFee returns the fee cap the tx is willing to pay, whichever
// field applies to its type.
func (t Transaction) EffectiveMaxFee() *big.Int {
	if t.Type == TxTypeDynamicFee && t.MaxFeePerGas != nil {
		return t.MaxFeePerGas
	}
	return t.GasPrice
}

// RecoverSender builds a Transaction record from a raw go-ethereum
// transaction, recovering From via the given signer.
func RecoverSender(tx *gethtypes.Transaction, signer gethtypes.Signer) (Transaction, error) {
	from, err := gethtypes.Sender(signer, tx)
	if err != nil {
		return Transaction{}, NewSearchError("recover-sender", KindTransientRPC, err)
	}
	rec := Transaction{
		Hash:     tx.Hash(),
		From:     from,
		Nonce:    tx.Nonce(),
		Input:    tx.Data(),
		Value:    tx.Value(),
		GasLimit: tx.Gas(),
		ChainID:  tx.ChainId(),
		Raw:      tx,
	}
	if tx.To() != nil {
		rec.To = *tx.To()
	}
	switch tx.Type() {
	case gethtypes.DynamicFeeTxType:
		rec.Type = TxTypeDynamicFee
		rec.MaxFeePerGas = tx.GasFeeCap()
		rec.MaxPriorityFee = tx.GasTipCap()
	default:
		rec.Type = TxTypeLegacy
		rec.GasPrice = tx.GasPrice()
	}
	return rec, nil
}

// BlockInfo is the subset of block header data the core reasons about.
type BlockInfo struct {
	Number    uint64
	BaseFee   *big.Int
	Timestamp uint64
	GasUsed   uint64
	GasLimit  uint64
}

// elasticityMultiplier and baseFeeChangeDenominator are the EIP-1559
// constants used to derive the successor block's base fee.
const (
	elasticityMultiplier     = 2
	baseFeeChangeDenominator = 8
)

// NextBlock deterministically derives the successor block: number+1,
// timestamp+12s, base fee recalculated per the EIP-1559 rule. It depends
// only on (b.Number, b.Timestamp, b.BaseFee, b.GasUsed, b.GasLimit).
func (b BlockInfo) NextBlock() BlockInfo {
	target := b.GasLimit / elasticityMultiplier
	next := BlockInfo{
		Number:    b.Number + 1,
		Timestamp: b.Timestamp + 12,
		GasLimit:  b.GasLimit,
	}
	if b.BaseFee == nil || target == 0 {
		next.BaseFee = b.BaseFee
		return next
	}
	baseFee := new(big.Int).Set(b.BaseFee)
	if b.GasUsed == target {
		next.BaseFee = baseFee
		return next
	}
	delta := new(big.Int).Sub(big.NewInt(int64(b.GasUsed)), big.NewInt(int64(target)))
	change := new(big.Int).Mul(baseFee, delta)
	change.Div(change, big.NewInt(int64(target)))
	change.Div(change, big.NewInt(baseFeeChangeDenominator))
	adjusted := new(big.Int).Add(baseFee, change)
	if adjusted.Sign() < 0 {
		adjusted = big.NewInt(0)
	}
	next.BaseFee = adjusted
	return next
}

// SwapType distinguishes the two sandwich directions.
type SwapType int

const (
	SwapForward SwapType = iota
	SwapReverse
)

// Ingredients is a candidate under evaluation: one victim (or a set of
// co-aggregated victims), the pool, and direction.
type Ingredients struct {
	UUID              string
	HeadTxs           []Transaction
	Meats             []Transaction
	StartEndToken     common.Address
	IntermediaryToken common.Address
	Pool              Pool
	SwapType          SwapType
}

// NewIngredients builds Ingredients, applying the dedup/sort invariant:
// both HeadTxs and Meats are deduplicated by hash and, within a sender,
// sorted ascending by nonce with duplicate-nonce entries removed.
func NewIngredients(uuid string, heads, meats []Transaction, startEnd, intermediary common.Address, pool Pool, st SwapType) Ingredients {
	return Ingredients{
		UUID:              uuid,
		HeadTxs:           dedupSortByNonce(heads),
		Meats:             dedupSortByNonce(meats),
		StartEndToken:     startEnd,
		IntermediaryToken: intermediary,
		Pool:              pool,
		SwapType:          st,
	}
}

func dedupSortByNonce(txs []Transaction) []Transaction {
	byHash := make(map[common.Hash]Transaction, len(txs))
	order := make([]common.Hash, 0, len(txs))
	for _, tx := range txs {
		if _, ok := byHash[tx.Hash]; !ok {
			order = append(order, tx.Hash)
		}
		byHash[tx.Hash] = tx
	}
	out := make([]Transaction, 0, len(order))
	for _, h := range order {
		out = append(out, byHash[h])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From.Cmp(out[j].From) < 0
		}
		return out[i].Nonce < out[j].Nonce
	})
	// Drop duplicate-nonce entries per sender, keeping the first seen.
	seen := make(map[common.Address]map[uint64]bool)
	deduped := out[:0]
	for _, tx := range out {
		if seen[tx.From] == nil {
			seen[tx.From] = make(map[uint64]bool)
		}
		if seen[tx.From][tx.Nonce] {
			continue
		}
		seen[tx.From][tx.Nonce] = true
		deduped = append(deduped, tx)
	}
	return deduped
}

// Leg is one side (front-run or back-run) of a sandwich recipe.
type Leg struct {
	Calldata   []byte
	Value      *big.Int
	AccessList gethtypes.AccessList
	GasUsed    uint64
}

// Recipe is the fully-simulated, fully-encoded data needed to emit one
// bundle.
type Recipe struct {
	UUID          string
	Ingredients   Ingredients
	SwapType      SwapType
	FrontRun      Leg
	BackRun       Leg
	Revenue       *big.Int
	TargetBlock   uint64
	OptimalInput  *big.Int
	FrontrunData  []byte // preserved for aggregation splicing
	ProfitMax     *big.Int
}

// BundleRequest is the relay-submission shape (§6.3).
type BundleRequest struct {
	SimulationBlock     uint64
	TargetBlock         uint64
	SimulationTimestamp uint64
	MinTimestamp        uint64
	MaxTimestamp        uint64
	Transactions        []*gethtypes.Transaction // head_txs..., signed frontrun, meats..., signed backrun
}

// CurrentAssetSnapshot tracks signer balances for the bundle emitter's
// floor check, following the teacher's snapshot-record naming.
type CurrentAssetSnapshot struct {
	Timestamp  time.Time
	SignerWeth *big.Int
}
