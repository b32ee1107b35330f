package simulator

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// v2FeeNumerator/v2FeeDenominator implement the 0.3% constant-product fee.
const (
	v2FeeNumerator   = 997
	v2FeeDenominator = 1000
)

// V2AmountOut computes k=xy output for a constant-product pool with a 0.3%
// fee: amount_in * 997 / (reserve_in * 1000 + amount_in * 997).
func V2AmountOut(amountIn, reserveIn, reserveOut *big.Int) *big.Int {
	if amountIn == nil || amountIn.Sign() <= 0 || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return big.NewInt(0)
	}
	amountInWithFee := new(big.Int).Mul(amountIn, big.NewInt(v2FeeNumerator))
	numerator := new(big.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(big.Int).Mul(reserveIn, big.NewInt(v2FeeDenominator))
	denominator.Add(denominator, amountInWithFee)
	if denominator.Sign() == 0 {
		return big.NewInt(0)
	}
	return numerator.Div(numerator, denominator)
}

// LilRouterQuote is the injected off-contract "lil-router" bytecode's
// contract: given a forked Simulator already holding the pool's state, it
// calls the router to obtain amount-out for a v3 pool deterministically.
// The real router bytecode is opaque calldata (out of scope); this type
// models the call/response shape the Recipe Builder consumes.
type LilRouterQuote struct {
	Pool      [20]byte
	TokenIn   [20]byte
	AmountIn  *big.Int
	AmountOut *big.Int
}

// LilRouterAddress is the well-known address the injected lil-router
// bytecode lives at inside the forked sandwich contract; the Recipe
// Builder calls it to size a v3 leg's weth-is-output field before
// encoding the actual swap calldata.
var LilRouterAddress = common.HexToAddress("0x000000000000000000000000000000000b0b0b")

// EncodeLilRouterQuoteCall builds the lil-router's quote call: pool key
// hash (32 bytes), tokenIn (20 bytes), amountIn (32 bytes, big-endian).
func EncodeLilRouterQuoteCall(poolKeyHash common.Hash, tokenIn common.Address, amountIn *big.Int) []byte {
	out := make([]byte, 0, 84)
	out = append(out, poolKeyHash.Bytes()...)
	out = append(out, tokenIn.Bytes()...)
	amt := make([]byte, 32)
	amountIn.FillBytes(amt)
	out = append(out, amt...)
	return out
}

// DecodeLilRouterQuoteResult parses the router's 32-byte big-endian
// amount-out response.
func DecodeLilRouterQuoteResult(data []byte) *big.Int {
	if len(data) == 0 {
		return big.NewInt(0)
	}
	return new(big.Int).SetBytes(data)
}
