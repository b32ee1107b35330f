package emitter

import (
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sando "github.com/sandodex/sandosearcher"
	"github.com/sandodex/sandosearcher/internal/bribe"
)

func testKey(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key, crypto.PubkeyToAddress(key.PublicKey)
}

func testEmitter(t *testing.T, policy bribe.Policy) *Emitter {
	t.Helper()
	key, addr := testKey(t)
	store := bribe.NewStore(policy)
	return New(key, addr, big.NewInt(1), store, common.HexToAddress("0x9999"), big.NewInt(1))
}

func overpayFixedPolicy(etherBase float64) bribe.Policy {
	return bribe.Policy{Strategy: bribe.StrategyOverpay, Status: bribe.StatusFixed, OverpayBase: etherBase}
}

func TestEmitRejectsInsufficientSignerBalance(t *testing.T) {
	e := testEmitter(t, overpayFixedPolicy(0.01))
	recipe := &sando.Recipe{
		Revenue: big.NewInt(1_000_000_000_000_000_000),
		FrontRun: sando.Leg{GasUsed: 100_000},
		BackRun:  sando.Leg{GasUsed: 100_000},
		TargetBlock: 101,
	}
	_, err := e.Emit(recipe, big.NewInt(0), big.NewInt(10), 12345, 1)
	require.Error(t, err)
	var se *sando.SearchError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, sando.KindInsufficientBalance, se.Kind)
}

func TestEmitRejectsRevenueBelowBaseFee(t *testing.T) {
	e := testEmitter(t, overpayFixedPolicy(0.01))
	recipe := &sando.Recipe{
		Revenue:     big.NewInt(100),
		FrontRun:    sando.Leg{GasUsed: 100_000},
		BackRun:     sando.Leg{GasUsed: 100_000},
		TargetBlock: 101,
	}
	_, err := e.Emit(recipe, big.NewInt(1_000_000_000_000_000_000), big.NewInt(10), 12345, 1)
	require.Error(t, err)
	var se *sando.SearchError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, sando.KindProfitRejected, se.Kind)
}

func TestEmitProducesPositiveProfitBundle(t *testing.T) {
	e := testEmitter(t, overpayFixedPolicy(0.01))
	recipe := &sando.Recipe{
		Revenue:     big.NewInt(2_000_000_000_000_000_000), // 2 ether
		FrontRun:    sando.Leg{GasUsed: 100_000, Calldata: []byte{0x01}},
		BackRun:     sando.Leg{GasUsed: 100_000, Calldata: []byte{0x02}},
		TargetBlock: 101,
	}
	bundle, err := e.Emit(recipe, big.NewInt(10_000_000_000_000_000_000), big.NewInt(10), 12345, 1)
	require.NoError(t, err)
	require.NotNil(t, bundle)
	assert.Equal(t, uint64(100), bundle.SimulationBlock)
	assert.Equal(t, uint64(101), bundle.TargetBlock)
	assert.Len(t, bundle.Transactions, 2)
	assert.Greater(t, recipe.ProfitMax.Sign(), 0)
}

func TestEmitRejectsBribeBelowBaseFee(t *testing.T) {
	// ratio/fixed with ratio_bp=0 drives the back-run max fee to 0, which
	// is below any positive base fee.
	policy := bribe.Policy{Strategy: bribe.StrategyRatio, Status: bribe.StatusFixed, RatioBP: big.NewInt(0)}
	e := testEmitter(t, policy)
	recipe := &sando.Recipe{
		Revenue:     big.NewInt(2_000_000_000_000_000_000),
		FrontRun:    sando.Leg{GasUsed: 100_000},
		BackRun:     sando.Leg{GasUsed: 100_000},
		TargetBlock: 101,
	}
	_, err := e.Emit(recipe, big.NewInt(10_000_000_000_000_000_000), big.NewInt(10), 12345, 1)
	require.Error(t, err)
	var se *sando.SearchError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, sando.KindProfitRejected, se.Kind)
}
