package sando

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sandodex/sandosearcher/internal/queue"
)

// QueueConfig sizes the worker pools the Engine drains (§5): event_tx_queue
// scales with CPU count, the rest are fixed.
type QueueConfig struct {
	EventTxWorkers    int
	EventTxIdle       time.Duration
	EventBlockWorkers int
	EventBlockIdle    time.Duration
	ActionWorkers     int
	ActionIdle        time.Duration
	HugeWorkers       int
	HugeIdle          time.Duration
	AggregationWait   time.Duration
}

// DefaultQueueConfig returns the spec's named defaults for the given CPU
// count (event_tx_queue ~N_cpu/10ms, event_block_queue 2/100ms,
// action_queue 4/10ms, huge_*_queue 2/50ms each, 10.5s aggregation wait).
func DefaultQueueConfig(numCPU int) QueueConfig {
	if numCPU <= 0 {
		numCPU = 1
	}
	return QueueConfig{
		EventTxWorkers:    numCPU,
		EventTxIdle:       10 * time.Millisecond,
		EventBlockWorkers: 2,
		EventBlockIdle:    100 * time.Millisecond,
		ActionWorkers:     4,
		ActionIdle:        10 * time.Millisecond,
		HugeWorkers:       2,
		HugeIdle:          50 * time.Millisecond,
		AggregationWait:   10_500 * time.Millisecond,
	}
}

// Engine owns one Strategy exclusively and drives it from bounded
// channels through the fixed worker-pool queues of §5: collectors push
// onto the event channels (tx and block, both the collectors-to-strategy
// broadcast channel of capacity 102,400), workers pop and evaluate, and
// the resulting recipes flow into the action and huge-aggregation
// queues. The channel capacities match internal/queue's named
// constants.
type Engine struct {
	Strategy *Strategy

	txEvents    chan Transaction
	blockEvents chan BlockInfo

	eventTxQueue     *queue.Queue
	eventBlockQueue  *queue.Queue
	actionQueue      *queue.Queue
	hugeTaskQueue    *queue.Queue
	hugeMixedQueue   *queue.Queue
	hugeOverlayQueue *queue.Queue

	cfg QueueConfig

	// LowFeeResender drains the victim filter's low-fee resend set; the
	// wiring layer sets this after construction. Nil means resending is
	// disabled (e.g. in tests that don't wire a victim.Filter).
	LowFeeResender LowFeeResender
}

// NewEngine wires an Engine around a Strategy and a QueueConfig.
func NewEngine(strategy *Strategy, cfg QueueConfig) *Engine {
	return &Engine{
		Strategy:         strategy,
		cfg:              cfg,
		txEvents:         make(chan Transaction, queue.EventChannelCapacity),
		blockEvents:      make(chan BlockInfo, queue.EventChannelCapacity),
		eventTxQueue:     queue.New(cfg.EventTxWorkers, cfg.EventTxIdle),
		eventBlockQueue:  queue.New(cfg.EventBlockWorkers, cfg.EventBlockIdle),
		actionQueue:      queue.New(cfg.ActionWorkers, cfg.ActionIdle),
		hugeTaskQueue:    queue.New(cfg.HugeWorkers, cfg.HugeIdle),
		hugeMixedQueue:   queue.New(cfg.HugeWorkers, cfg.HugeIdle),
		hugeOverlayQueue: queue.New(cfg.HugeWorkers, cfg.HugeIdle),
	}
}

// SubmitTx enqueues a pending transaction for evaluation; collectors call
// this from their mempool subscription.
func (e *Engine) SubmitTx(tx Transaction) {
	select {
	case e.txEvents <- tx:
	default:
		// Event channel at capacity: drop rather than block the
		// collector, matching the bounded-channel, no-backpressure
		// model of §5.
	}
}

// SubmitBlock enqueues a new confirmed block header; collectors call this
// from their block-header subscription.
func (e *Engine) SubmitBlock(b BlockInfo) {
	select {
	case e.blockEvents <- b:
	default:
	}
}

// Run starts every worker pool and the two dispatcher goroutines that
// move items off the raw event channels onto the queue.Queue instances;
// it blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	go e.eventTxQueue.Run(ctx)
	go e.eventBlockQueue.Run(ctx)
	go e.actionQueue.Run(ctx)
	go e.hugeTaskQueue.Run(ctx)
	go e.hugeMixedQueue.Run(ctx)
	go e.hugeOverlayQueue.Run(ctx)

	go e.dispatchTxEvents(ctx)
	e.dispatchBlockEvents(ctx)
}

func (e *Engine) dispatchTxEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case tx := <-e.txEvents:
			tx := tx
			e.eventTxQueue.Push(func(ctx context.Context) {
				e.handleTx(ctx, tx)
			})
		}
	}
}

func (e *Engine) handleTx(ctx context.Context, tx Transaction) {
	recipe, err := e.Strategy.HandleTx(ctx, tx)
	if err != nil || recipe == nil {
		return
	}
	e.actionQueue.Push(func(ctx context.Context) {
		latest, next := e.Strategy.blocks()
		_ = e.Strategy.EmitAndSubmit(ctx, recipe, next.BaseFee, latest.Timestamp)
	})
}

func (e *Engine) dispatchBlockEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case b := <-e.blockEvents:
			b := b
			e.eventBlockQueue.Push(func(ctx context.Context) {
				e.handleBlock(ctx, b)
			})
		}
	}
}

// handleBlock runs the §5 ordering: update block info, resend low-fee
// victims, and only then — after the 10.5s aggregation wait — kick off the
// huge/mixed/overlay aggregation tasks. It does not purge the recipe stores.
func (e *Engine) handleBlock(ctx context.Context, b BlockInfo) {
	e.Strategy.SetLatestBlock(b)
	e.Strategy.UpdateBlockInfo(nil)

	if e.LowFeeResender != nil {
		txs := e.LowFeeResender.ResendLowFee()
		e.Strategy.ResendLowFee(ctx, txs, func(ctx context.Context, tx Transaction) {
			tx := tx
			e.eventTxQueue.Push(func(ctx context.Context) {
				e.handleTx(ctx, tx)
			})
		})
	}

	select {
	case <-ctx.Done():
		return
	case <-time.After(e.cfg.AggregationWait):
	}

	next := b.NextBlock()
	e.hugeTaskQueue.Push(func(ctx context.Context) {
		fwd, err := e.Strategy.AggregateHuge(ctx, SwapForward, next.Number)
		if err == nil && fwd != nil {
			_ = e.Strategy.EmitAndSubmit(ctx, fwd, next.BaseFee, b.Timestamp)
		}
		rev, err := e.Strategy.AggregateHuge(ctx, SwapReverse, next.Number)
		if err == nil && rev != nil {
			_ = e.Strategy.EmitAndSubmit(ctx, rev, next.BaseFee, b.Timestamp)
		}
	})
	e.hugeMixedQueue.Push(func(ctx context.Context) {
		mixed, err := e.Strategy.AggregateMixed(ctx, next.Number)
		if err == nil && mixed != nil {
			e.hugeOverlayQueue.Push(func(ctx context.Context) {
				overlay, err := e.Strategy.AggregateOverlay(ctx, []*Recipe{mixed}, next.Number)
				if err == nil && overlay != nil {
					_ = e.Strategy.EmitAndSubmit(ctx, overlay, next.BaseFee, b.Timestamp)
				}
			})
		}
	})
}

// ConfirmBlock runs the lifecycle purges against a mined block's
// contents; the wiring layer calls this once it has decoded the block's
// transaction hashes and per-sender highest nonce.
func (e *Engine) ConfirmBlock(confirmed map[common.Hash]bool, latestNonces map[common.Address]uint64) {
	e.Strategy.OnConfirmedBlock(confirmed, latestNonces)
}

// QueueDepths reports the current depth of every managed queue, for the
// admin console / metrics surface.
func (e *Engine) QueueDepths() map[string]int {
	return map[string]int{
		"event_tx_queue":    e.eventTxQueue.Len(),
		"event_block_queue": e.eventBlockQueue.Len(),
		"action_queue":      e.actionQueue.Len(),
		"huge_task_queue":    e.hugeTaskQueue.Len(),
		"huge_mixed_queue":   e.hugeMixedQueue.Len(),
		"huge_overlay_queue": e.hugeOverlayQueue.Len(),
	}
}
