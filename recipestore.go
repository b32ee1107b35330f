package sando

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// RecipeStore is a grouped-by-pool mapping of live recipes with snapshot
// semantics: readers obtain a clone, never the live map (§3: "two
// grouped-by-pool mappings with the same lifecycle rules" — the Pending
// and Low-Revenue stores are each one of these).
type RecipeStore struct {
	mu     sync.RWMutex
	byPool map[common.Address][]*Recipe
}

func NewRecipeStore() *RecipeStore {
	return &RecipeStore{byPool: make(map[common.Address][]*Recipe)}
}

// Add appends a recipe under its pool's bucket.
func (s *RecipeStore) Add(r *Recipe) {
	s.mu.Lock()
	defer s.mu.Unlock()
	addr := r.Ingredients.Pool.Address
	s.byPool[addr] = append(s.byPool[addr], r)
}

// Snapshot returns a deep-enough clone (fresh outer map and slices,
// sharing *Recipe pointers since Recipes are treated as immutable once
// built) suitable for a reader — e.g. the aggregator — to iterate without
// holding the store's lock.
func (s *RecipeStore) Snapshot() map[common.Address][]*Recipe {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[common.Address][]*Recipe, len(s.byPool))
	for addr, recipes := range s.byPool {
		cloned := make([]*Recipe, len(recipes))
		copy(cloned, recipes)
		out[addr] = cloned
	}
	return out
}

// All flattens the snapshot into one slice, for the Overlay aggregator's
// low-revenue candidate list.
func (s *RecipeStore) All() []*Recipe {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Recipe
	for _, recipes := range s.byPool {
		out = append(out, recipes...)
	}
	return out
}

// PurgeIncluded drops every recipe any of whose meats appears in the given
// confirmed-hash set — lifecycle rule (a), "purge on inclusion".
func (s *RecipeStore) PurgeIncluded(confirmed map[common.Hash]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for addr, recipes := range s.byPool {
		kept := recipes[:0]
		for _, r := range recipes {
			if !anyMeatConfirmed(r, confirmed) {
				kept = append(kept, r)
			}
		}
		if len(kept) == 0 {
			delete(s.byPool, addr)
		} else {
			s.byPool[addr] = kept
		}
	}
}

func anyMeatConfirmed(r *Recipe, confirmed map[common.Hash]bool) bool {
	for _, m := range r.Ingredients.Meats {
		if confirmed[m.Hash] {
			return true
		}
	}
	return false
}

// PurgeSuperseded drops recipes whose meats include a transaction from
// sender with a nonce <= the given nonce — lifecycle rule (b), "a
// higher-nonce transaction from the same sender supersedes them".
func (s *RecipeStore) PurgeSuperseded(sender common.Address, nonce uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for addr, recipes := range s.byPool {
		kept := recipes[:0]
		for _, r := range recipes {
			if !supersededBy(r, sender, nonce) {
				kept = append(kept, r)
			}
		}
		if len(kept) == 0 {
			delete(s.byPool, addr)
		} else {
			s.byPool[addr] = kept
		}
	}
}

func supersededBy(r *Recipe, sender common.Address, nonce uint64) bool {
	for _, m := range r.Ingredients.Meats {
		if m.From == sender && m.Nonce <= nonce {
			return true
		}
	}
	return false
}
