// Package emitter implements the Bundle Emitter (spec §4.6): the final
// four-check gate before a recipe becomes a signed, submittable bundle.
package emitter

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	sando "github.com/sandodex/sandosearcher"
	"github.com/sandodex/sandosearcher/internal/bribe"
)

// gasHeadroomNumerator/Denominator scale simulated gas_used up to a
// submitted gas limit (10/7), leaving headroom against estimation error.
const (
	gasHeadroomNumerator   = 10
	gasHeadroomDenominator = 7
)

// Emitter owns the signer key and bribe store, and turns a Recipe into a
// BundleRequest once all four checks of §4.6 pass.
type Emitter struct {
	signerKey   *ecdsa.PrivateKey
	signer      common.Address
	signerBalanceFloor *big.Int
	bribes      *bribe.Store
	contract    common.Address
	chainID     *big.Int
}

func New(signerKey *ecdsa.PrivateKey, signer common.Address, balanceFloor *big.Int, bribes *bribe.Store, contract common.Address, chainID *big.Int) *Emitter {
	return &Emitter{
		signerKey:          signerKey,
		signer:             signer,
		signerBalanceFloor: balanceFloor,
		bribes:             bribes,
		contract:           contract,
		chainID:            chainID,
	}
}

// Emit runs the four checks and, on success, signs front- and back-run
// transactions and assembles the BundleRequest.
func (e *Emitter) Emit(recipe *sando.Recipe, signerBalance *big.Int, nextBaseFee *big.Int, simTimestamp uint64, nonce uint64) (*sando.BundleRequest, error) {
	if signerBalance.Cmp(e.signerBalanceFloor) < 0 {
		return nil, sando.NewSearchError("emitter.balance-floor", sando.KindInsufficientBalance,
			fmt.Errorf("signer balance %s below floor %s", signerBalance, e.signerBalanceFloor))
	}

	frontGasCost := new(big.Int).Mul(new(big.Int).SetUint64(recipe.FrontRun.GasUsed), nextBaseFee)
	if recipe.Revenue.Cmp(frontGasCost) < 0 {
		return nil, sando.NewSearchError("emitter.revenue-below-base-fee", sando.KindProfitRejected,
			fmt.Errorf("revenue %s below front-run gas cost %s", recipe.Revenue, frontGasCost))
	}

	revenueMinusFrontGas := new(big.Int).Sub(recipe.Revenue, frontGasCost)
	bribeAmount := e.bribes.Compute(revenueMinusFrontGas)
	if recipe.BackRun.GasUsed == 0 {
		return nil, sando.NewSearchError("emitter.backrun-gas", sando.KindSimulatorError, fmt.Errorf("zero back-run gas"))
	}
	backMaxFee := new(big.Int).Div(bribeAmount, new(big.Int).SetUint64(recipe.BackRun.GasUsed))
	if backMaxFee.Cmp(nextBaseFee) < 0 {
		return nil, sando.NewSearchError("emitter.bribe-below-base-fee", sando.KindProfitRejected,
			fmt.Errorf("back-run max fee %s below base fee %s", backMaxFee, nextBaseFee))
	}

	backGasCost := new(big.Int).Mul(new(big.Int).SetUint64(recipe.BackRun.GasUsed), nextBaseFee)
	profitMax := new(big.Int).Sub(recipe.Revenue, new(big.Int).Add(frontGasCost, backGasCost))
	if profitMax.Sign() <= 0 {
		return nil, sando.NewSearchError("emitter.profit-max", sando.KindProfitRejected,
			fmt.Errorf("profit_max %s not positive", profitMax))
	}
	recipe.ProfitMax = profitMax

	frontTx, err := e.buildAndSign(recipe.FrontRun, nonce, nextBaseFee, backMaxFee)
	if err != nil {
		return nil, err
	}
	backTx, err := e.buildAndSign(recipe.BackRun, nonce+1, nextBaseFee, backMaxFee)
	if err != nil {
		return nil, err
	}

	return e.buildBundle(recipe, frontTx, backTx, simTimestamp)
}

func (e *Emitter) buildAndSign(leg sando.Leg, nonce uint64, baseFee, maxFee *big.Int) (*gethtypes.Transaction, error) {
	gasLimit := leg.GasUsed * gasHeadroomNumerator / gasHeadroomDenominator
	tip := new(big.Int).Sub(maxFee, baseFee)
	if tip.Sign() < 0 {
		tip = big.NewInt(0)
	}
	tx := gethtypes.NewTx(&gethtypes.DynamicFeeTx{
		ChainID:    e.chainID,
		Nonce:      nonce,
		GasTipCap:  tip,
		GasFeeCap:  maxFee,
		Gas:        gasLimit,
		To:         &e.contract,
		Value:      leg.Value,
		Data:       leg.Calldata,
		AccessList: leg.AccessList,
	})
	signer := gethtypes.NewLondonSigner(e.chainID)
	signed, err := gethtypes.SignTx(tx, signer, e.signerKey)
	if err != nil {
		return nil, sando.NewSearchError("emitter.sign", sando.KindSimulatorError, err)
	}
	return signed, nil
}

// buildBundle assembles the relay-format BundleRequest (§6.3):
// head_txs..., signed frontrun, meats..., signed backrun.
func (e *Emitter) buildBundle(recipe *sando.Recipe, frontTx, backTx *gethtypes.Transaction, simTimestamp uint64) (*sando.BundleRequest, error) {
	txs := make([]*gethtypes.Transaction, 0, len(recipe.Ingredients.HeadTxs)+2+len(recipe.Ingredients.Meats))
	for _, h := range recipe.Ingredients.HeadTxs {
		if h.Raw == nil {
			return nil, sando.NewSearchError("emitter.head-tx-missing-raw", sando.KindSimulatorError,
				fmt.Errorf("head tx %s has no raw envelope", h.Hash))
		}
		txs = append(txs, h.Raw)
	}
	txs = append(txs, frontTx)
	for _, m := range recipe.Ingredients.Meats {
		if m.Raw == nil {
			return nil, sando.NewSearchError("emitter.meat-missing-raw", sando.KindSimulatorError,
				fmt.Errorf("meat %s has no raw envelope", m.Hash))
		}
		txs = append(txs, m.Raw)
	}
	txs = append(txs, backTx)

	return &sando.BundleRequest{
		SimulationBlock:     recipe.TargetBlock - 1,
		TargetBlock:         recipe.TargetBlock,
		SimulationTimestamp: simTimestamp,
		MinTimestamp:        simTimestamp,
		MaxTimestamp:        simTimestamp,
		Transactions:        txs,
	}, nil
}
