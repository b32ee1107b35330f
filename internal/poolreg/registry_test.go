package poolreg

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sando "github.com/sandodex/sandosearcher"
	"github.com/sandodex/sandosearcher/internal/simulator"
)

var (
	testPool  = common.HexToAddress("0xaaaa000000000000000000000000000000000a")
	testOther = common.HexToAddress("0xbbbb000000000000000000000000000000000b")
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	dir := t.TempDir()
	r := New(filepath.Join(dir, "checkpoint.json"), nil, nil)
	r.Insert(sando.Pool{Address: testPool, Variant: sando.VariantConstantProductV2, TokenA: sando.WETH, TokenB: testOther})
	return r
}

func TestInsertAndGet(t *testing.T) {
	r := newTestRegistry(t)
	p, ok := r.Get(testPool)
	require.True(t, ok)
	assert.True(t, p.IsWethPaired())
}

func TestSetupWritesAndReloadsCheckpoint(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoint.json")
	r := New(path, nil, nil)
	r.Insert(sando.Pool{Address: testPool, Variant: sando.VariantConstantProductV2, TokenA: sando.WETH, TokenB: testOther})
	require.NoError(t, r.writeCheckpoint())

	_, err := os.Stat(path)
	require.NoError(t, err)

	reloaded := New(path, nil, nil)
	require.NoError(t, reloaded.Setup(context.Background()))
	p, ok := reloaded.Get(testPool)
	require.True(t, ok)
	assert.Equal(t, testOther, p.OtherToken())
}

func TestGetTouchedSandwichablePoolsBucketsBySign(t *testing.T) {
	r := newTestRegistry(t)
	slot := wethBalanceSlot(testPool)

	provider := fakeStateDiffProvider{
		diff: simulator.StateDiff{
			sando.WETH: {slot: big.NewInt(5)},
		},
	}
	forward, reverse, err := r.GetTouchedSandwichablePools(context.Background(), provider, sando.Transaction{Hash: common.HexToHash("0x01")}, 100)
	require.NoError(t, err)
	assert.Len(t, forward, 1)
	assert.Empty(t, reverse)

	provider.diff[sando.WETH][slot] = big.NewInt(-5)
	forward, reverse, err = r.GetTouchedSandwichablePools(context.Background(), provider, sando.Transaction{Hash: common.HexToHash("0x01")}, 100)
	require.NoError(t, err)
	assert.Empty(t, forward)
	assert.Len(t, reverse, 1)
}

func TestWethBalanceSlotIsKeccakOfAddressAndSlotThree(t *testing.T) {
	var buf [64]byte
	copy(buf[12:32], testPool.Bytes())
	buf[63] = 3
	want := crypto.Keccak256Hash(buf[:])
	assert.Equal(t, want, wethBalanceSlot(testPool))
}

type fakeStateDiffProvider struct {
	diff simulator.StateDiff
}

func (f fakeStateDiffProvider) StateDiff(ctx context.Context, tx common.Hash, block uint64) (simulator.StateDiff, error) {
	return f.diff, nil
}
