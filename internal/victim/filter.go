// Package victim implements the Victim Filter & Dedup (spec §4.2): the
// gate a pending transaction must pass before it is worth forking a
// simulator over at all.
package victim

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	sando "github.com/sandodex/sandosearcher"
)

// idempotenceTTL is how long a tx hash, once processed, is suppressed
// from re-evaluation.
const idempotenceTTL = 7200 * time.Second

// approveSelector is the 4-byte selector of ERC-20 approve(address,uint256).
var approveSelector = selectorOf("approve(address,uint256)")

// liquidityOpSelectors are add/remove-liquidity selectors the filter skips
// outright: they are not swaps and can never be sandwiched for revenue.
var liquidityOpSelectors = map[[4]byte]bool{
	selectorOf("addLiquidity(address,address,uint256,uint256,uint256,uint256,address,uint256)"): true,
	selectorOf("addLiquidityETH(address,uint256,uint256,uint256,address,uint256)"):               true,
	selectorOf("removeLiquidity(address,address,uint256,uint256,uint256,address,uint256)"):       true,
	selectorOf("removeLiquidityETH(address,uint256,uint256,uint256,address,uint256)"):             true,
	selectorOf("mint(address)"): true,
	selectorOf("burn(address)"): true,
}

func selectorOf(sig string) [4]byte {
	var out [4]byte
	copy(out[:], crypto.Keccak256([]byte(sig))[:4])
	return out
}

// Filter holds the three rejection caches the victim classifier consults
// before a candidate reaches the optimizer: the low-fee resend set, the
// approve-cache, and the idempotence cache.
type Filter struct {
	mu          sync.Mutex
	lowFee      map[common.Hash]sando.Transaction
	approveSeen map[common.Hash]bool
	seenAt      map[common.Hash]time.Time
	now         func() time.Time
}

func New() *Filter {
	return &Filter{
		lowFee:      make(map[common.Hash]sando.Transaction),
		approveSeen: make(map[common.Hash]bool),
		seenAt:      make(map[common.Hash]time.Time),
		now:         time.Now,
	}
}

// Reason names why a candidate was rejected before simulation.
type Reason int

const (
	Accept Reason = iota
	ReasonLowFee
	ReasonApprove
	ReasonLiquidityOp
	ReasonDuplicate
)

func (r Reason) String() string {
	switch r {
	case ReasonLowFee:
		return "low-fee"
	case ReasonApprove:
		return "approve"
	case ReasonLiquidityOp:
		return "liquidity-op"
	case ReasonDuplicate:
		return "duplicate"
	default:
		return "accept"
	}
}

// Classify runs the four rejection checks in order and records the tx in
// whichever cache applies. A tx that clears all checks is marked seen for
// idempotence purposes and returned with reason Accept. latestBaseFee and
// nextBaseFee may be nil when the fee check does not apply (e.g. replay in
// tests).
func (f *Filter) Classify(tx sando.Transaction, latestBaseFee, nextBaseFee *big.Int) Reason {
	f.mu.Lock()
	defer f.mu.Unlock()

	if seenAt, ok := f.seenAt[tx.Hash]; ok {
		if f.now().Sub(seenAt) < idempotenceTTL {
			return ReasonDuplicate
		}
	}

	maxFee := tx.EffectiveMaxFee()
	if maxFee != nil && latestBaseFee != nil && nextBaseFee != nil {
		if maxFee.Cmp(latestBaseFee) < 0 || maxFee.Cmp(nextBaseFee) < 0 {
			f.lowFee[tx.Hash] = tx
			return ReasonLowFee
		}
	}

	if len(tx.Input) >= 4 {
		var sel [4]byte
		copy(sel[:], tx.Input[:4])
		if sel == approveSelector {
			f.approveSeen[tx.Hash] = true
			return ReasonApprove
		}
		if liquidityOpSelectors[sel] {
			return ReasonLiquidityOp
		}
	}

	f.seenAt[tx.Hash] = f.now()
	return Accept
}

// ResendLowFee drains and returns the low-fee set, for reevaluation against
// a new block's base fee. Called before the post-block aggregation wait,
// per §5's ordering guarantee.
func (f *Filter) ResendLowFee() []sando.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sando.Transaction, 0, len(f.lowFee))
	for _, tx := range f.lowFee {
		out = append(out, tx)
	}
	f.lowFee = make(map[common.Hash]sando.Transaction)
	return out
}

// IsApprove reports whether a hash was previously classified as an approve.
func (f *Filter) IsApprove(hash common.Hash) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.approveSeen[hash]
}
