package victim

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	sando "github.com/sandodex/sandosearcher"
)

func makeTx(hash byte, input []byte, maxFee int64) sando.Transaction {
	return sando.Transaction{
		Hash:         common.BytesToHash([]byte{hash}),
		Input:        input,
		Type:         sando.TxTypeDynamicFee,
		MaxFeePerGas: big.NewInt(maxFee),
	}
}

func TestClassifyAcceptsOrdinarySwap(t *testing.T) {
	f := New()
	tx := makeTx(1, []byte{0x38, 0xed, 0x17, 0x39, 0, 0, 0, 0}, 100)
	reason := f.Classify(tx, big.NewInt(10), big.NewInt(10))
	assert.Equal(t, Accept, reason)
}

func TestClassifyRejectsLowFee(t *testing.T) {
	f := New()
	tx := makeTx(2, []byte{0x38, 0xed, 0x17, 0x39}, 5)
	reason := f.Classify(tx, big.NewInt(10), big.NewInt(10))
	assert.Equal(t, ReasonLowFee, reason)
	resent := f.ResendLowFee()
	assert.Len(t, resent, 1)
	assert.Empty(t, f.ResendLowFee())
}

func TestClassifyRejectsApprove(t *testing.T) {
	f := New()
	input := append(append([]byte{}, approveSelector[:]...), make([]byte, 64)...)
	tx := makeTx(3, input, 100)
	reason := f.Classify(tx, big.NewInt(10), big.NewInt(10))
	assert.Equal(t, ReasonApprove, reason)
	assert.True(t, f.IsApprove(tx.Hash))
}

func TestClassifyRejectsLiquidityOp(t *testing.T) {
	f := New()
	var sel [4]byte
	for k := range liquidityOpSelectors {
		sel = k
		break
	}
	tx := makeTx(4, sel[:], 100)
	reason := f.Classify(tx, big.NewInt(10), big.NewInt(10))
	assert.Equal(t, ReasonLiquidityOp, reason)
}

func TestClassifyRejectsDuplicateWithinTTL(t *testing.T) {
	f := New()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return clock }

	tx := makeTx(5, []byte{0x38, 0xed, 0x17, 0x39}, 100)
	assert.Equal(t, Accept, f.Classify(tx, big.NewInt(10), big.NewInt(10)))
	assert.Equal(t, ReasonDuplicate, f.Classify(tx, big.NewInt(10), big.NewInt(10)))

	clock = clock.Add(idempotenceTTL + time.Second)
	assert.Equal(t, Accept, f.Classify(tx, big.NewInt(10), big.NewInt(10)))
}
