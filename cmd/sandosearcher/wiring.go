package main

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	sando "github.com/sandodex/sandosearcher"
	"github.com/sandodex/sandosearcher/internal/aggregator"
	"github.com/sandodex/sandosearcher/internal/optimizer"
	"github.com/sandodex/sandosearcher/internal/simulator"
	"github.com/sandodex/sandosearcher/internal/victim"
)

// This file adapts the concrete sub-managers to the narrow capability
// interfaces managers.go declares, so the root Strategy can hold them
// without importing the packages that implement them (see managers.go's
// own doc comment for why that import would cycle).

// classifierAdapter turns the package-level victim.Classify function plus
// a bound Filter into a sando.Classifier.
type classifierAdapter struct {
	filter *victim.Filter
}

func (c classifierAdapter) Classify(ctx context.Context, registry sando.PoolRegistry, provider simulator.StateDiffProvider, tx sando.Transaction, latestBaseFee, nextBaseFee *big.Int, latestBlock uint64) ([]sando.Candidate, bool, error) {
	candidates, reason, err := victim.Classify(ctx, c.filter, registry, provider, tx, latestBaseFee, nextBaseFee, latestBlock)
	if err != nil {
		return nil, false, err
	}
	if reason != victim.Accept {
		return nil, false, nil
	}
	out := make([]sando.Candidate, len(candidates))
	for i, cand := range candidates {
		out[i] = sando.Candidate{Pool: cand.Pool, Direction: cand.Direction}
	}
	return out, true, nil
}

// optimizerAdapter turns the package-level optimizer.Search function into
// a sando.Optimizer.
type optimizerAdapter struct{}

func (optimizerAdapter) Search(ctx context.Context, inventory *big.Int, probe sando.RevenueProbe) (*sando.OptimizeResult, error) {
	res, err := optimizer.Search(ctx, inventory, optimizer.RevenueFunc(probe))
	if err != nil {
		return nil, err
	}
	return &sando.OptimizeResult{OptimalInput: res.OptimalInput, Revenue: res.Revenue, BackIn: res.BackIn}, nil
}

func (optimizerAdapter) SearchReverseBackIn(ctx context.Context, intermediaryGain, minReward, initialOtherBalance *big.Int, probe sando.ReverseBackInProbe) (*big.Int, error) {
	return optimizer.SearchReverseBackIn(ctx, intermediaryGain, minReward, initialOtherBalance, optimizer.ReverseBackInSearchFunc(probe))
}

// aggregatorAdapter turns the package-level aggregator.Huge/Mixed/Overlay
// functions, bound to a Resimulator, into a sando.Aggregator.
type aggregatorAdapter struct {
	sim aggregator.Resimulator
}

func (a aggregatorAdapter) Huge(ctx context.Context, pending map[common.Address][]*sando.Recipe, direction sando.SwapType, targetBlock uint64, contract common.Address) (*sando.Recipe, error) {
	return aggregator.Huge(ctx, pending, direction, targetBlock, contract, a.sim)
}

func (a aggregatorAdapter) Mixed(ctx context.Context, pending map[common.Address][]*sando.Recipe, targetBlock uint64, contract common.Address) (*sando.Recipe, error) {
	return aggregator.Mixed(ctx, pending, targetBlock, contract, a.sim)
}

func (a aggregatorAdapter) Overlay(ctx context.Context, optimal, low []*sando.Recipe, targetBlock uint64, contract common.Address) (*sando.Recipe, error) {
	return aggregator.Overlay(ctx, optimal, low, targetBlock, contract, a.sim)
}
