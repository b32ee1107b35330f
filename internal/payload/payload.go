// Package payload encodes the sandwich contract's compact calldata format
// (§6.1): a one-byte jump destination followed by big-endian fields
// concatenated without padding, with amounts packed via the five-byte
// meta-encoding.
package payload

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// JumpDest is the leading opcode byte selecting one of the ~18 in-contract
// entry points.
type JumpDest byte

const (
	JumpV2Forward0 JumpDest = iota
	JumpV2Forward1
	JumpV2Reverse0
	JumpV2Reverse1
	JumpV3Forward
	JumpV3Reverse
	JumpMultiCall
	JumpCheckBlockNumber
)

const maxSmallLiteral = (1 << 48) - 1 // 2^48 - 1, the 6-byte small-literal ceiling
const v3WeiDivisor = 1e13

// EncodeAmount implements the five-byte meta-encoding: four bytes of
// significand plus one byte of left-shift, chosen so that
// value = significand << (8 * shift). The encoding always rounds the
// amount down to the nearest representable value.
func EncodeAmount(amount *big.Int) ([5]byte, error) {
	var out [5]byte
	if amount == nil || amount.Sign() < 0 {
		return out, fmt.Errorf("encode amount: negative or nil amount")
	}
	v := new(big.Int).Set(amount)
	shift := 0
	maxSignificand := new(big.Int).SetUint64(1<<32 - 1)
	for v.Cmp(maxSignificand) > 0 {
		v.Rsh(v, 8)
		shift++
		if shift > 255 {
			return out, fmt.Errorf("encode amount: value too large to represent")
		}
	}
	binary.BigEndian.PutUint32(out[:4], uint32(v.Uint64()))
	out[4] = byte(shift)
	return out, nil
}

// EncodeAmountWithDustDecrement encodes amount the same way as EncodeAmount
// but first reduces the significand by 4 units at the chosen shift ("dust
// preservation"), so the contract leaves a small remainder behind.
func EncodeAmountWithDustDecrement(amount *big.Int) ([5]byte, error) {
	enc, err := EncodeAmount(amount)
	if err != nil {
		return enc, err
	}
	significand := binary.BigEndian.Uint32(enc[:4])
	if significand < 4 {
		return enc, fmt.Errorf("encode amount: significand too small for dust decrement")
	}
	binary.BigEndian.PutUint32(enc[:4], significand-4)
	return enc, nil
}

// DecodeAmount is the round-trip inverse: decode(encode(amount, shift))
// equals amount rounded down to the nearest multiple of 2^(8*shift).
func DecodeAmount(enc [5]byte) *big.Int {
	significand := binary.BigEndian.Uint32(enc[:4])
	shift := uint(enc[4])
	v := new(big.Int).SetUint64(uint64(significand))
	return v.Lsh(v, 8*shift)
}

// EncodeV3Output encodes a weth-is-output amount for v3 paths: either a
// 6-byte literal when the amount fits in 2^48-1, or amount/1e13 packed
// into 9 bytes otherwise.
func EncodeV3Output(amount *big.Int) []byte {
	if amount.Cmp(big.NewInt(maxSmallLiteral)) <= 0 {
		out := make([]byte, 6)
		v := amount.Uint64()
		for i := 5; i >= 0; i-- {
			out[i] = byte(v)
			v >>= 8
		}
		return out
	}
	scaled := new(big.Int).Div(amount, big.NewInt(v3WeiDivisor))
	out := make([]byte, 9)
	b := scaled.Bytes()
	copy(out[9-len(b):], b)
	return out
}

// PoolKeyHash computes the v3 pool key hash: keccak256(encodeAbi(tokenA,
// tokenB, fee)).
func PoolKeyHash(tokenA, tokenB common.Address, fee uint32) (common.Hash, error) {
	uint24Ty, err := abi.NewType("uint24", "", nil)
	if err != nil {
		return common.Hash{}, err
	}
	addrTy, err := abi.NewType("address", "", nil)
	if err != nil {
		return common.Hash{}, err
	}
	args := abi.Arguments{{Type: addrTy}, {Type: addrTy}, {Type: uint24Ty}}
	packed, err := args.Pack(tokenA, tokenB, big.NewInt(int64(fee)))
	if err != nil {
		return common.Hash{}, fmt.Errorf("pool key hash: %w", err)
	}
	return crypto.Keccak256Hash(packed), nil
}

// Builder accumulates calldata bytes in the order the contract expects:
// jump byte, then fields big-endian with no padding.
type Builder struct {
	buf []byte
}

func NewBuilder(jump JumpDest) *Builder {
	return &Builder{buf: []byte{byte(jump)}}
}

func (b *Builder) Address(a common.Address) *Builder {
	b.buf = append(b.buf, a.Bytes()...)
	return b
}

func (b *Builder) Hash(h common.Hash) *Builder {
	b.buf = append(b.buf, h.Bytes()...)
	return b
}

func (b *Builder) Raw(p []byte) *Builder {
	b.buf = append(b.buf, p...)
	return b
}

func (b *Builder) Amount(enc [5]byte) *Builder {
	b.buf = append(b.buf, enc[:]...)
	return b
}

// CheckBlockNumber returns the check_block_number prefix (jump byte + 4-byte
// target) that limits a front-run to its intended block height; callers
// prepend it to the front-run calldata.
func CheckBlockNumber(targetBlock uint64) []byte {
	out := make([]byte, 5)
	out[0] = byte(JumpCheckBlockNumber)
	binary.BigEndian.PutUint32(out[1:], uint32(targetBlock))
	return out
}

func (b *Builder) Bytes() []byte { return b.buf }
