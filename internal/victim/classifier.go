package victim

import (
	"context"
	"math/big"

	sando "github.com/sandodex/sandosearcher"
	"github.com/sandodex/sandosearcher/internal/simulator"
)

// TouchedPools is the minimal slice of the Pool Registry the classifier
// needs: tracing which pools a victim touched, bucketed by direction.
type TouchedPools interface {
	GetTouchedSandwichablePools(ctx context.Context, provider simulator.StateDiffProvider, victim sando.Transaction, latestBlock uint64) (forward, reverse []sando.Pool, err error)
}

// Candidate pairs a touched pool with the direction it was touched in.
type Candidate struct {
	Pool      sando.Pool
	Direction sando.SwapType
}

// Classify runs the victim filter, then (if accepted) traces the victim's
// stateDiff to find sandwichable pools, returning one Candidate per
// touched pool.
func Classify(ctx context.Context, f *Filter, registry TouchedPools, provider simulator.StateDiffProvider, victim sando.Transaction, latestBaseFee, nextBaseFee *big.Int, latestBlock uint64) ([]Candidate, Reason, error) {
	reason := f.Classify(victim, latestBaseFee, nextBaseFee)
	if reason != Accept {
		return nil, reason, nil
	}

	forward, reverse, err := registry.GetTouchedSandwichablePools(ctx, provider, victim, latestBlock)
	if err != nil {
		return nil, Accept, err
	}

	out := make([]Candidate, 0, len(forward)+len(reverse))
	for _, p := range forward {
		out = append(out, Candidate{Pool: p, Direction: sando.SwapForward})
	}
	for _, p := range reverse {
		out = append(out, Candidate{Pool: p, Direction: sando.SwapReverse})
	}
	return out, Accept, nil
}
