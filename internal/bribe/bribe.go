// Package bribe implements the process-wide ConfigurableBribePolicy and the
// bribe formula of spec §6.2. The policy is a single guarded cell: callers
// clone the value out under lock (read-copy semantics), mutation is
// admin-driven and infrequent, so critical sections stay brief.
package bribe

import (
	"fmt"
	"math/big"
	"math/rand"
	"sync"
)

// Strategy selects which bribe formula applies.
type Strategy int

const (
	StrategyOverpay Strategy = iota
	StrategyRatio
)

func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "overpay":
		return StrategyOverpay, nil
	case "ratio":
		return StrategyRatio, nil
	default:
		return 0, fmt.Errorf("unknown bribe strategy %q", s)
	}
}

func (s Strategy) String() string {
	if s == StrategyRatio {
		return "ratio"
	}
	return "overpay"
}

// Status selects whether the strategy's parameter is a fixed value or a
// randomized float within a range.
type Status int

const (
	StatusFixed Status = iota
	StatusFloat
)

func ParseStatus(s string) (Status, error) {
	switch s {
	case "fixed":
		return StatusFixed, nil
	case "float":
		return StatusFloat, nil
	default:
		return 0, fmt.Errorf("unknown bribe status %q", s)
	}
}

func (s Status) String() string {
	if s == StatusFloat {
		return "float"
	}
	return "fixed"
}

const oneEther = 1e18

// Policy is the immutable value cloned out of the Store under lock.
type Policy struct {
	Strategy     Strategy
	Status       Status
	OverpayBase  float64 // ether
	OverpayFloat float64 // ether, upper bound of uniform[0, x)
	RatioBP      *big.Int // base-points / 1e9
	RatioFloatBP *big.Int // base-points / 1e9, upper bound of uniform[0, x]
}

// Clone returns a deep copy so a caller can mutate its own copy freely.
func (p Policy) Clone() Policy {
	c := p
	if p.RatioBP != nil {
		c.RatioBP = new(big.Int).Set(p.RatioBP)
	}
	if p.RatioFloatBP != nil {
		c.RatioFloatBP = new(big.Int).Set(p.RatioFloatBP)
	}
	return c
}

// Store is the single process-wide guarded cell.
type Store struct {
	mu     sync.Mutex
	policy Policy
	rng    *rand.Rand
}

// NewStore creates a Store seeded with the given policy.
func NewStore(initial Policy) *Store {
	return &Store{policy: initial.Clone(), rng: rand.New(rand.NewSource(1))}
}

// Get returns a clone of the current policy.
func (s *Store) Get() Policy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.policy.Clone()
}

// Set replaces the current policy wholesale.
func (s *Store) Set(p Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policy = p.Clone()
}

// SetField mutates a single named field, used by the admin console's
// `config set <key> <value>` command. Keys: strategy, status,
// overpay_base, overpay_float, ratio_bp, ratio_float_bp.
func (s *Store) SetField(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch key {
	case "strategy":
		strat, err := ParseStrategy(value)
		if err != nil {
			return err
		}
		s.policy.Strategy = strat
	case "status":
		st, err := ParseStatus(value)
		if err != nil {
			return err
		}
		s.policy.Status = st
	case "overpay_base":
		v, err := parseFloat(value)
		if err != nil {
			return err
		}
		s.policy.OverpayBase = v
	case "overpay_float":
		v, err := parseFloat(value)
		if err != nil {
			return err
		}
		s.policy.OverpayFloat = v
	case "ratio_bp":
		v, ok := new(big.Int).SetString(value, 10)
		if !ok {
			return fmt.Errorf("invalid integer %q", value)
		}
		s.policy.RatioBP = v
	case "ratio_float_bp":
		v, ok := new(big.Int).SetString(value, 10)
		if !ok {
			return fmt.Errorf("invalid integer %q", value)
		}
		s.policy.RatioFloatBP = v
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return nil
}

func parseFloat(s string) (float64, error) {
	var v float64
	_, err := fmt.Sscanf(s, "%g", &v)
	if err != nil {
		return 0, fmt.Errorf("invalid float %q: %w", s, err)
	}
	return v, nil
}

// etherToWei scales a float ether amount up to wei, matching the spec's
// `* 1e18` formulas without losing precision for realistic bribe sizes.
func etherToWei(ether float64) *big.Int {
	f := new(big.Float).Mul(big.NewFloat(ether), big.NewFloat(oneEther))
	wei, _ := f.Int(nil)
	return wei
}

// Compute applies the current policy's formula to
// revenueMinusFrontrunGas (§6.2). The shared rng is not safe for
// concurrent use, so it is read under the same lock that guards the
// policy rather than handed out to the caller.
func (s *Store) Compute(revenueMinusFrontrunGas *big.Int) *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return compute(s.policy, revenueMinusFrontrunGas, s.rng)
}

func compute(p Policy, revenueMinusFrontrunGas *big.Int, rng *rand.Rand) *big.Int {
	switch p.Strategy {
	case StrategyOverpay:
		base := p.OverpayBase
		if p.Status == StatusFloat {
			base += rng.Float64() * p.OverpayFloat
		}
		return new(big.Int).Add(revenueMinusFrontrunGas, etherToWei(base))
	case StrategyRatio:
		bp := new(big.Int).Set(p.RatioBP)
		if p.Status == StatusFloat && p.RatioFloatBP != nil && p.RatioFloatBP.Sign() > 0 {
			extra := rng.Int63n(p.RatioFloatBP.Int64() + 1)
			bp.Add(bp, big.NewInt(extra))
		}
		bribe := new(big.Int).Mul(revenueMinusFrontrunGas, bp)
		bribe.Div(bribe, big.NewInt(1_000_000_000))
		return bribe
	default:
		return new(big.Int).Set(revenueMinusFrontrunGas)
	}
}
