// Package poolreg implements the Pool Registry (spec §4.1): the mapping
// from pool address to descriptor, refreshed incrementally and persisted
// via an on-disk checkpoint.
package poolreg

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	sando "github.com/sandodex/sandosearcher"
	"github.com/sandodex/sandosearcher/internal/simulator"
)

// Factory is a pair/pool-creation source to sync from, tagged with the
// block it was deployed in.
type Factory struct {
	Address common.Address
	Variant sando.Variant
	Genesis uint64
}

// Registry answers "is this address a known pool, and what are its tokens
// and variant?" Readers never block: the map is a concurrent sync.Map.
type Registry struct {
	pools        sync.Map // common.Address -> sando.Pool
	checkpointAt string
	fetcher      simulator.LogFetcher
	factories    []Factory
	lastSynced   uint64
}

func New(checkpointPath string, fetcher simulator.LogFetcher, factories []Factory) *Registry {
	return &Registry{checkpointAt: checkpointPath, fetcher: fetcher, factories: factories}
}

// checkpoint is the on-disk JSON shape of §6.5.
type checkpoint struct {
	Dexes          []Factory    `json:"dex_list"`
	Pools          []sando.Pool `json:"pool_list"`
	LastSyncBlock  uint64       `json:"last_synced_block"`
}

// Setup loads pools from the checkpoint if present; otherwise syncs all
// pair-created events for the configured factories, then rewrites the
// checkpoint.
func (r *Registry) Setup(ctx context.Context) error {
	if data, err := os.ReadFile(r.checkpointAt); err == nil {
		var cp checkpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			return fmt.Errorf("poolreg: decode checkpoint: %w", err)
		}
		for _, p := range cp.Pools {
			r.pools.Store(p.Address, p)
		}
		r.lastSynced = cp.LastSyncBlock
		return nil
	}

	for _, f := range r.factories {
		if err := r.syncFactory(ctx, f); err != nil {
			return sando.NewSearchError("poolreg.setup", sando.KindTransientRPC, err)
		}
	}
	return r.writeCheckpoint()
}

func (r *Registry) syncFactory(ctx context.Context, f Factory) error {
	logs, err := r.fetcher.FetchPairCreatedLogs(ctx, f.Address, f.Genesis)
	if err != nil {
		return err
	}
	for _, lg := range logs {
		if len(lg.Topics) < 3 || len(lg.Data) < 32 {
			continue
		}
		pool := sando.Pool{
			Address: common.BytesToAddress(lg.Data[12:32]),
			Variant: f.Variant,
			TokenA:  common.BytesToAddress(lg.Topics[1].Bytes()),
			TokenB:  common.BytesToAddress(lg.Topics[2].Bytes()),
			Genesis: lg.BlockNumber,
		}
		r.Insert(pool)
	}
	return nil
}

func (r *Registry) writeCheckpoint() error {
	cp := checkpoint{Dexes: r.factories, LastSyncBlock: r.lastSynced}
	r.pools.Range(func(_, v any) bool {
		cp.Pools = append(cp.Pools, v.(sando.Pool))
		return true
	})
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("poolreg: encode checkpoint: %w", err)
	}
	if err := os.WriteFile(r.checkpointAt, data, 0o644); err != nil {
		return fmt.Errorf("poolreg: write checkpoint: %w", err)
	}
	return nil
}

// Insert adds a pool. The registry is monotonically append-only during
// steady-state: a pool once inserted is never removed.
func (r *Registry) Insert(p sando.Pool) {
	r.pools.Store(p.Address, p)
}

// Get looks up a pool by address.
func (r *Registry) Get(addr common.Address) (sando.Pool, bool) {
	v, ok := r.pools.Load(addr)
	if !ok {
		return sando.Pool{}, false
	}
	return v.(sando.Pool), true
}

// UpdateBlockInfo is the post-confirmation hook; presently used only by
// higher layers (touched-tx pruning), so it is a no-op placeholder that
// future pruning logic can extend.
func (r *Registry) UpdateBlockInfo(blockTxs []sando.Transaction) {}

// wethBalanceSlot is the storage slot formula for a pool's weth balance:
// keccak256(pool_address || 3), where 3 is WETH's balances-mapping slot.
func wethBalanceSlot(pool common.Address) common.Hash {
	var buf [64]byte
	copy(buf[12:32], pool.Bytes())
	buf[63] = 3
	return crypto.Keccak256Hash(buf[:])
}

// GetTouchedSandwichablePools traces the victim's stateDiff on the latest
// block. A pool is "touched" iff the WETH contract's own storage diff
// carries a delta at slot keccak256(pool||3), the weth-balance mapping
// entry for that pool's address (not anything under the pool's own
// account). The sign of the delta buckets it: delta>0 forward, delta<0
// reverse. A pool appears in at most one bucket.
func (r *Registry) GetTouchedSandwichablePools(ctx context.Context, provider simulator.StateDiffProvider, victim sando.Transaction, latestBlock uint64) (forward, reverse []sando.Pool, err error) {
	diff, err := provider.StateDiff(ctx, victim.Hash, latestBlock)
	if err != nil {
		return nil, nil, sando.NewSearchError("poolreg.touched", sando.KindTransientRPC, err)
	}
	wethSlots := diff[sando.WETH]
	if len(wethSlots) == 0 {
		return nil, nil, nil
	}
	r.pools.Range(func(key, value any) bool {
		pool := value.(sando.Pool)
		if !pool.IsWethPaired() {
			return true
		}
		delta, ok := wethSlots[wethBalanceSlot(pool.Address)]
		if !ok || delta.Sign() == 0 {
			return true
		}
		if delta.Sign() > 0 {
			forward = append(forward, pool)
		} else {
			reverse = append(reverse, pool)
		}
		return true
	})
	return forward, reverse, nil
}
