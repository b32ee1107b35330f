package sando

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/sandodex/sandosearcher/internal/simulator"
)

// InventorySource resolves how much of the relevant token the sandwich
// contract can put to work for a candidate — e.g. its WETH balance for a
// forward sandwich, or its start/end (non-WETH) token balance for a
// reverse one.
type InventorySource func(ctx context.Context, candidate Candidate) (*big.Int, error)

// ProbeFactory builds the RevenueProbe a search round calls repeatedly;
// building it requires forking the simulator at the target block, which
// is an internal/simulator concern the Strategy itself has no business
// doing directly.
type ProbeFactory func(ctx context.Context, ing Ingredients, targetBlock uint64, contract common.Address) RevenueProbe

// NonceSource returns the front-run nonce the Bundle Emitter signs with;
// the back-run uses that nonce + 1.
type NonceSource func() uint64

// Strategy is the root orchestration type: it owns every sub-manager
// through the narrow interfaces declared in managers.go and the two
// grouped-by-pool recipe stores of §3 (Pending and Low-Revenue). It
// mirrors the teacher's pattern of a thin root type reached through
// sub-clients, except here the sub-clients are capability interfaces
// rather than concrete structs, to avoid an import cycle with the
// packages that implement them.
type Strategy struct {
	Registry   PoolRegistry
	Classifier Classifier
	Optimizer  Optimizer
	Builder    RecipeBuilder
	Aggregator Aggregator
	Emitter    BundleEmitter

	Provider  simulator.StateDiffProvider
	Inventory InventorySource
	Probe     ProbeFactory
	Nonces    NonceSource

	Contract      common.Address
	SignerBalance func() *big.Int

	// ReverseMinReward is the margin subtracted from the intermediary
	// gain before the reverse back_in search's upper bound (§4.3). The
	// spec leaves its exact value an open question (§9); nil means no
	// margin.
	ReverseMinReward *big.Int

	Pending    *RecipeStore
	LowRevenue *RecipeStore

	latestMu sync.RWMutex
	latest   BlockInfo
	next     BlockInfo

	senderLocks sync.Map // common.Address -> *sync.Mutex

	// Submit is called with the final BundleRequest once the Bundle
	// Emitter's checks pass; the wiring layer supplies the relay client.
	Submit func(ctx context.Context, req *BundleRequest) error
}

// NewStrategy builds a Strategy around its sub-managers and recipe stores.
func NewStrategy(registry PoolRegistry, classifier Classifier, optimizer Optimizer, builder RecipeBuilder, aggregator Aggregator, emitter BundleEmitter, provider simulator.StateDiffProvider, contract common.Address) *Strategy {
	return &Strategy{
		Registry:   registry,
		Classifier: classifier,
		Optimizer:  optimizer,
		Builder:    builder,
		Aggregator: aggregator,
		Emitter:    emitter,
		Provider:   provider,
		Contract:   contract,
		Pending:    NewRecipeStore(),
		LowRevenue: NewRecipeStore(),
	}
}

func (s *Strategy) senderLock(sender common.Address) *sync.Mutex {
	v, _ := s.senderLocks.LoadOrStore(sender, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// SetLatestBlock records the current head and its deterministic successor;
// called by Engine.handleBlock before anything else runs for that block (§5's ordering rule).
func (s *Strategy) SetLatestBlock(b BlockInfo) {
	s.latestMu.Lock()
	defer s.latestMu.Unlock()
	s.latest = b
	s.next = b.NextBlock()
}

func (s *Strategy) blocks() (latest, next BlockInfo) {
	s.latestMu.RLock()
	defer s.latestMu.RUnlock()
	return s.latest, s.next
}

// UpdateBlockInfo forwards the post-confirmation hook to the Pool
// Registry; the Engine calls this right after SetLatestBlock and before
// resending low-fee victims, per §5's ordering rule.
func (s *Strategy) UpdateBlockInfo(blockTxs []Transaction) {
	s.Registry.UpdateBlockInfo(blockTxs)
}

// OnConfirmedBlock runs the lifecycle purges the spec requires on every
// new block, in order: first drop recipes whose meats were included,
// then drop recipes superseded by a higher-nonce same-sender transaction.
func (s *Strategy) OnConfirmedBlock(confirmed map[common.Hash]bool, latestNonces map[common.Address]uint64) {
	s.Pending.PurgeIncluded(confirmed)
	s.LowRevenue.PurgeIncluded(confirmed)
	for sender, nonce := range latestNonces {
		s.Pending.PurgeSuperseded(sender, nonce)
		s.LowRevenue.PurgeSuperseded(sender, nonce)
	}
}

// HandleTx runs one pending transaction through classify -> optimize ->
// build, storing the resulting recipe in Pending or LowRevenue. It holds
// a per-sender lock for its duration so that two transactions from the
// same sender are never evaluated concurrently (§5).
func (s *Strategy) HandleTx(ctx context.Context, tx Transaction) (*Recipe, error) {
	lock := s.senderLock(tx.From)
	lock.Lock()
	defer lock.Unlock()

	latest, next := s.blocks()
	candidates, accepted, err := s.Classifier.Classify(ctx, s.Registry, s.Provider, tx, latest.BaseFee, next.BaseFee, latest.Number)
	if err != nil {
		return nil, err
	}
	if !accepted || len(candidates) == 0 {
		return nil, nil
	}

	var best *Recipe
	for _, cand := range candidates {
		recipe, err := s.evaluateCandidate(ctx, cand, tx, next.Number)
		if err != nil {
			continue
		}
		if recipe == nil {
			continue
		}
		if best == nil || recipe.Revenue.Cmp(best.Revenue) > 0 {
			best = recipe
		}
	}
	if best == nil {
		return nil, nil
	}
	if best.ProfitMax != nil && best.ProfitMax.Sign() <= 0 {
		s.LowRevenue.Add(best)
	} else {
		s.Pending.Add(best)
	}
	return best, nil
}

func (s *Strategy) evaluateCandidate(ctx context.Context, cand Candidate, victim Transaction, targetBlock uint64) (*Recipe, error) {
	startEnd, intermediary := WETH, cand.Pool.OtherToken()
	if cand.Direction == SwapReverse {
		startEnd, intermediary = intermediary, startEnd
	}
	ing := NewIngredients(uuid.NewString(), nil, []Transaction{victim}, startEnd, intermediary, cand.Pool, cand.Direction)

	inventory, err := s.Inventory(ctx, cand)
	if err != nil {
		return nil, err
	}
	if inventory == nil || inventory.Sign() <= 0 {
		return nil, NewSearchError("evaluate-candidate", KindNotSandwichable, nil)
	}

	probe := s.Probe(ctx, ing, targetBlock, s.Contract)
	result, err := s.Optimizer.Search(ctx, inventory, probe)
	if err != nil {
		return nil, err
	}
	if result == nil || result.OptimalInput == nil || result.OptimalInput.Sign() <= 0 {
		return nil, NewSearchError("evaluate-candidate", KindNotSandwichable, nil)
	}

	var backIn *big.Int
	if cand.Direction == SwapReverse {
		backIn, err = s.resolveReverseBackIn(ctx, ing, targetBlock, result.OptimalInput)
		if err != nil {
			return nil, err
		}
	}

	recipe, err := s.Builder.Build(ctx, ing, targetBlock, s.Contract, result.OptimalInput, backIn)
	if err != nil {
		return nil, err
	}
	return recipe, nil
}

// resolveReverseBackIn runs the §4.3 two-hop probe at the chosen forward
// input, then the inner binary search over back_in, for a reverse
// candidate. A nil result leaves Build to fall back to its naive sizing.
func (s *Strategy) resolveReverseBackIn(ctx context.Context, ing Ingredients, targetBlock uint64, forwardInput *big.Int) (*big.Int, error) {
	gain, initialOther, err := s.Builder.ReverseIntermediaryGain(ctx, ing, targetBlock, s.Contract, forwardInput)
	if err != nil {
		return nil, err
	}
	if gain == nil || gain.Sign() <= 0 {
		return nil, nil
	}
	minReward := s.ReverseMinReward
	if minReward == nil {
		minReward = big.NewInt(0)
	}
	probe := s.Builder.ReverseBackInProbe(ctx, ing, targetBlock, s.Contract, forwardInput)
	return s.Optimizer.SearchReverseBackIn(ctx, gain, minReward, initialOther, probe)
}

// ResendLowFee re-submits previously-rejected low-fee victims into the
// tx-handling path; the wiring layer calls this (via the victim filter's
// own ResendLowFee) right after updating block info and before the
// aggregation wait, per §5's ordering.
func (s *Strategy) ResendLowFee(ctx context.Context, txs []Transaction, handle func(context.Context, Transaction)) {
	for _, tx := range txs {
		handle(ctx, tx)
	}
}

// AggregateHuge builds the Huge recipe for one direction, across all pools,
// out of the live Pending snapshot and returns it; it does not emit it.
func (s *Strategy) AggregateHuge(ctx context.Context, direction SwapType, targetBlock uint64) (*Recipe, error) {
	pending := s.Pending.Snapshot()
	return s.Aggregator.Huge(ctx, pending, direction, targetBlock, s.Contract)
}

// AggregateMixed builds the Mixed recipe across pools from the live
// Pending snapshot.
func (s *Strategy) AggregateMixed(ctx context.Context, targetBlock uint64) (*Recipe, error) {
	pending := s.Pending.Snapshot()
	return s.Aggregator.Mixed(ctx, pending, targetBlock, s.Contract)
}

// AggregateOverlay combines the optimal aggregate recipes with the
// Low-Revenue store's contents.
func (s *Strategy) AggregateOverlay(ctx context.Context, optimal []*Recipe, targetBlock uint64) (*Recipe, error) {
	low := s.LowRevenue.All()
	return s.Aggregator.Overlay(ctx, optimal, low, targetBlock, s.Contract)
}

// EmitAndSubmit runs the Bundle Emitter's four checks and, on success,
// submits the resulting BundleRequest.
func (s *Strategy) EmitAndSubmit(ctx context.Context, recipe *Recipe, nextBaseFee *big.Int, simTimestamp uint64) error {
	if recipe == nil {
		return nil
	}
	nonce := uint64(0)
	if s.Nonces != nil {
		nonce = s.Nonces()
	}
	balance := big.NewInt(0)
	if s.SignerBalance != nil {
		balance = s.SignerBalance()
	}
	req, err := s.Emitter.Emit(recipe, balance, nextBaseFee, simTimestamp, nonce)
	if err != nil {
		return err
	}
	if s.Submit == nil {
		return nil
	}
	return s.Submit(ctx, req)
}
