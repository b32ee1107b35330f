// Package optimizer implements the juiced quadratic search and the reverse
// two-hop binary search of spec §4.3.
package optimizer

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/sandodex/sandosearcher/internal/simulator"
)

const (
	// intervals is N, the number of equal sub-intervals per round (so each
	// round emits N+1 boundary points, one per sub-interval edge).
	intervals = 15
	// relativeTolerance is the search-range-shrink stop condition: 1/1e6
	// of the interval midpoint.
	relativeTolerance = 1_000_000
	// maxZeroRounds stops the search after this many consecutive
	// all-zero-revenue rounds.
	maxZeroRounds = 10
	// reverseMaxIterations bounds the reverse-sandwich inner binary search.
	reverseMaxIterations = 20
)

// Candidate is a (victim, pool, direction) tuple ready for optimization.
type Candidate struct {
	Victim    simulator.TxEnv
	Pool      common.Address
	TokenIn   common.Address
	TokenOut  common.Address
	Inventory *big.Int // weth balance (forward) or token balance (reverse)
	Direction Direction
}

type Direction int

const (
	Forward Direction = iota
	Reverse
)

// Result is the optimum the search converged to.
type Result struct {
	OptimalInput *big.Int
	Revenue      *big.Int
	BackIn       *big.Int // reverse only
}

// RevenueFunc evaluates the revenue obtained by probing the given input
// amount in a freshly forked simulator. The Optimizer never shares a
// simulator instance across probes (fork-per-task isolation, §5).
type RevenueFunc func(ctx context.Context, input *big.Int) (*big.Int, error)

// Search runs the juiced quadratic search over [0, inventory], maximizing
// revenue. evalRevenue is called once per candidate boundary per round,
// each via its own forked simulator.
func Search(ctx context.Context, inventory *big.Int, evalRevenue RevenueFunc) (*Result, error) {
	if inventory == nil || inventory.Sign() <= 0 {
		return &Result{OptimalInput: big.NewInt(0), Revenue: big.NewInt(0)}, nil
	}

	lower := big.NewInt(0)
	upper := new(big.Int).Set(inventory)
	best := &Result{OptimalInput: big.NewInt(0), Revenue: big.NewInt(0)}
	zeroRounds := 0

	for {
		width := new(big.Int).Sub(upper, lower)
		if width.Sign() <= 0 {
			break
		}
		mid := new(big.Int).Add(lower, upper)
		mid.Div(mid, big.NewInt(2))
		tolerance := new(big.Int).Div(mid, big.NewInt(relativeTolerance))
		if tolerance.Sign() == 0 {
			tolerance = big.NewInt(1)
		}
		if width.Cmp(tolerance) < 0 {
			break
		}

		boundaries := partition(lower, upper, intervals)
		revenues := make([]*big.Int, len(boundaries))

		g, gctx := errgroup.WithContext(ctx)
		for i, b := range boundaries {
			i, b := i, b
			g.Go(func() error {
				rev, err := evalRevenue(gctx, b)
				if err != nil {
					return err
				}
				revenues[i] = rev
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		bestIdx, bestRev := argmax(revenues)
		if bestRev.Sign() > 0 && bestRev.Cmp(best.Revenue) > 0 {
			best.Revenue = bestRev
			best.OptimalInput = new(big.Int).Set(boundaries[bestIdx])
		}

		allZero := true
		for _, r := range revenues {
			if r.Sign() > 0 {
				allZero = false
				break
			}
		}
		if allZero {
			zeroRounds++
			if zeroRounds >= maxZeroRounds {
				break
			}
			// Shrink upper to intervals[N/3]-1 to probe smaller optima.
			probe := new(big.Int).Set(boundaries[intervals/3])
			probe.Sub(probe, big.NewInt(1))
			if probe.Sign() < 0 {
				probe = big.NewInt(0)
			}
			upper = probe
			continue
		}
		zeroRounds = 0

		switch {
		case bestIdx == len(boundaries)-1:
			lower = new(big.Int).Add(boundaries[bestIdx-1], big.NewInt(1))
		case bestIdx == 0:
			upper = new(big.Int).Sub(boundaries[1], big.NewInt(1))
		default:
			lower = new(big.Int).Add(boundaries[bestIdx-1], big.NewInt(1))
			upper = new(big.Int).Sub(boundaries[bestIdx+1], big.NewInt(1))
		}
	}

	return best, nil
}

// partition splits [lower, upper] into n equal sub-intervals, returning
// the n+1 boundary points (i/n for i=0..n), per spec's "partitions the
// interval into N = 15 equal sub-intervals and evaluates revenue ... for
// each boundary".
func partition(lower, upper *big.Int, n int) []*big.Int {
	width := new(big.Int).Sub(upper, lower)
	out := make([]*big.Int, n+1)
	for i := 0; i <= n; i++ {
		step := new(big.Int).Mul(width, big.NewInt(int64(i)))
		step.Div(step, big.NewInt(int64(n)))
		out[i] = new(big.Int).Add(lower, step)
	}
	return out
}

func argmax(vals []*big.Int) (int, *big.Int) {
	best := 0
	for i := range vals {
		if vals[i] == nil {
			vals[i] = big.NewInt(0)
		}
		if vals[i].Cmp(vals[best]) > 0 {
			best = i
		}
	}
	return best, vals[best]
}

// ReverseBackInSearchFunc probes a candidate back_in amount and returns
// the resulting other-token balance.
type ReverseBackInSearchFunc func(ctx context.Context, backIn *big.Int) (otherTokenBalance *big.Int, err error)

// ReverseDiffBand decides when the other-token balance is close enough to
// its initial value to call the sandwich net-zero in the intermediary.
// The spec leaves the exact tolerance an open question (§9): this
// implementation uses inventory/10_000, the "is_balance_diff_for_revenue"
// heuristic, rather than the separate MAX_DIFF_RATE_OF_ONE_ETHER constant,
// because the two are not algebraically tied and inventory-relative sizing
// degrades gracefully across both large and small pools.
func ReverseDiffBand(inventory *big.Int) *big.Int {
	if inventory == nil || inventory.Sign() <= 0 {
		return big.NewInt(1)
	}
	band := new(big.Int).Div(inventory, big.NewInt(10_000))
	if band.Sign() == 0 {
		return big.NewInt(1)
	}
	return band
}

// SearchReverseBackIn runs the inner binary search over
// back_in ∈ [0.75 * intermediaryGain, intermediaryGain - minReward],
// exiting when the other-token balance returns within ReverseDiffBand of
// initialOtherBalance, bounded to reverseMaxIterations.
func SearchReverseBackIn(ctx context.Context, intermediaryGain, minReward, initialOtherBalance *big.Int, probe ReverseBackInSearchFunc) (*big.Int, error) {
	lower := new(big.Int).Mul(intermediaryGain, big.NewInt(75))
	lower.Div(lower, big.NewInt(100))
	upper := new(big.Int).Sub(intermediaryGain, minReward)
	if upper.Cmp(lower) < 0 {
		return big.NewInt(0), nil
	}

	band := ReverseDiffBand(initialOtherBalance)
	best := new(big.Int).Set(lower)

	for i := 0; i < reverseMaxIterations; i++ {
		if lower.Cmp(upper) >= 0 {
			break
		}
		mid := new(big.Int).Add(lower, upper)
		mid.Div(mid, big.NewInt(2))

		bal, err := probe(ctx, mid)
		if err != nil {
			return nil, err
		}
		diff := new(big.Int).Sub(bal, initialOtherBalance)
		diff.Abs(diff)

		best = mid
		if diff.Cmp(band) <= 0 {
			break
		}
		if bal.Cmp(initialOtherBalance) > 0 {
			upper = new(big.Int).Sub(mid, big.NewInt(1))
		} else {
			lower = new(big.Int).Add(mid, big.NewInt(1))
		}
	}
	return best, nil
}
