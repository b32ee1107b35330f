package sando

import "fmt"

// Kind classifies a search failure. Kinds, not types: every failure mode
// in the pipeline maps to exactly one of these buckets (see §7 of the spec).
type Kind int

const (
	// KindNotSandwichable is the common case: zero optimum, no weth pool
	// touched, reverted simulation, or salmonella-flagged opcodes.
	KindNotSandwichable Kind = iota
	// KindUnsafeOpcodes means the salmonella inspector flagged an opcode
	// outside the whitelist in the front- or back-run.
	KindUnsafeOpcodes
	// KindSimulatorError means the EVM fork failed to run at all.
	KindSimulatorError
	// KindTransientRPC means an upstream RPC call failed; fatal during
	// setup, logged-and-skipped during steady-state.
	KindTransientRPC
	// KindProfitRejected means revenue or profit_max failed a bundle check.
	KindProfitRejected
	// KindInsufficientBalance means the searcher signer lacks funds.
	KindInsufficientBalance
)

func (k Kind) String() string {
	switch k {
	case KindNotSandwichable:
		return "not-sandwichable"
	case KindUnsafeOpcodes:
		return "unsafe-opcodes"
	case KindSimulatorError:
		return "simulator-error"
	case KindTransientRPC:
		return "transient-rpc"
	case KindProfitRejected:
		return "profit-rejected"
	case KindInsufficientBalance:
		return "insufficient-balance"
	default:
		return "unknown"
	}
}

// SearchError wraps an underlying error with its taxonomy Kind, and for
// KindUnsafeOpcodes the list of offending opcode names.
type SearchError struct {
	Kind     Kind
	Opcodes  []string
	Op       string
	Err      error
}

func (e *SearchError) Error() string {
	if len(e.Opcodes) > 0 {
		return fmt.Sprintf("%s: %s: unsafe opcodes %v", e.Op, e.Kind, e.Opcodes)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *SearchError) Unwrap() error { return e.Err }

// NewSearchError builds a SearchError, wrapping err with op/kind context.
func NewSearchError(op string, kind Kind, err error) *SearchError {
	return &SearchError{Op: op, Kind: kind, Err: err}
}

// NewUnsafeOpcodesError records a salmonella-flagged recipe.
func NewUnsafeOpcodesError(op string, opcodes []string) *SearchError {
	return &SearchError{Op: op, Kind: KindUnsafeOpcodes, Opcodes: opcodes}
}
