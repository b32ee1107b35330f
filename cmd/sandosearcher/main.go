package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	sando "github.com/sandodex/sandosearcher"
	"github.com/sandodex/sandosearcher/configs"
	"github.com/sandodex/sandosearcher/internal/bribe"
	"github.com/sandodex/sandosearcher/internal/emitter"
	"github.com/sandodex/sandosearcher/internal/ethrpc"
	"github.com/sandodex/sandosearcher/internal/poolreg"
	"github.com/sandodex/sandosearcher/internal/recipebuilder"
	"github.com/sandodex/sandosearcher/internal/simulator"
	"github.com/sandodex/sandosearcher/internal/victim"
	"github.com/sandodex/sandosearcher/pkg/adminconsole"
)

func main() {
	signerKeyHex := os.Getenv("SANDO_SIGNER_KEY")
	if signerKeyHex == "" {
		panic("SANDO_SIGNER_KEY not set")
	}
	signerKey, err := crypto.HexToECDSA(signerKeyHex)
	if err != nil {
		panic(err)
	}
	signer := crypto.PubkeyToAddress(signerKey.PublicKey)

	cfgPath := "configs/config.yml"
	if v := os.Getenv("SANDO_CONFIG"); v != "" {
		cfgPath = v
	}
	conf, err := configs.LoadConfig(cfgPath)
	if err != nil {
		panic(err)
	}

	client, err := ethclient.Dial(conf.RPC)
	if err != nil {
		panic(err)
	}

	factories, err := conf.ToFactories()
	if err != nil {
		panic(err)
	}
	fetcher := ethrpc.NewLogFetcher(client)
	registry := poolreg.New(conf.CheckpointPath, fetcher, factories)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := registry.Setup(ctx); err != nil {
		panic(err)
	}

	bribePolicy, err := conf.ToBribePolicy()
	if err != nil {
		panic(err)
	}
	bribeStore := bribe.NewStore(bribePolicy)

	contract := common.HexToAddress(conf.SandwichContract)
	chainID := big.NewInt(conf.ChainID)
	balanceFloor, ok := new(big.Int).SetString(conf.BalanceFloorWei, 10)
	if !ok {
		panic(fmt.Errorf("invalid balance_floor_wei %q", conf.BalanceFloorWei))
	}

	bundleEmitter := emitter.New(signerKey, signer, balanceFloor, bribeStore, contract, chainID)

	// The forked-execution sandbox is an external collaborator (§1): this
	// process ships with the in-memory fake so it stays runnable end to
	// end without one; operators wire a real fork backend in here by
	// swapping this value out for one that dials into their own EVM
	// execution sidecar.
	baseSimulator := simulator.NewFakeSimulator(0)
	builder := recipebuilder.New(baseSimulator)

	var stateDiffProvider simulator.StateDiffProvider = noopStateDiffProvider{}

	victimFilter := victim.New()
	strategy := sando.NewStrategy(
		registry,
		classifierAdapter{filter: victimFilter},
		optimizerAdapter{},
		builder,
		aggregatorAdapter{sim: builder},
		bundleEmitter,
		stateDiffProvider,
		contract,
	)
	strategy.Inventory = func(ctx context.Context, c sando.Candidate) (*big.Int, error) {
		return baseSimulator.TokenBalance(ctx, sando.WETH, contract)
	}
	strategy.Probe = func(ctx context.Context, ing sando.Ingredients, targetBlock uint64, contract common.Address) sando.RevenueProbe {
		return func(ctx context.Context, input *big.Int) (*big.Int, error) {
			recipe, err := builder.Build(ctx, ing, targetBlock, contract, input, nil)
			if err != nil {
				return nil, err
			}
			return recipe.Revenue, nil
		}
	}
	var nonce uint64
	strategy.Nonces = func() uint64 {
		n := nonce
		nonce += 2
		return n
	}
	strategy.SignerBalance = func() *big.Int {
		bal, err := client.BalanceAt(ctx, signer, nil)
		if err != nil {
			return big.NewInt(0)
		}
		return bal
	}
	strategy.Submit = func(ctx context.Context, req *sando.BundleRequest) error {
		fmt.Printf("bundle ready for block %d: %d transactions\n", req.TargetBlock, len(req.Transactions))
		return nil
	}

	queueCfg := conf.ToQueueConfig(runtime.NumCPU())
	engine := sando.NewEngine(strategy, sando.QueueConfig{
		EventTxWorkers:    queueCfg.EventTxWorkers,
		EventTxIdle:       queueCfg.EventTxIdle,
		EventBlockWorkers: queueCfg.EventBlockWorkers,
		EventBlockIdle:    queueCfg.EventBlockIdle,
		ActionWorkers:     queueCfg.ActionWorkers,
		ActionIdle:        queueCfg.ActionIdle,
		HugeWorkers:       queueCfg.HugeWorkers,
		HugeIdle:          queueCfg.HugeIdle,
		AggregationWait:   queueCfg.AggregationWait,
	})
	engine.LowFeeResender = victimFilter

	admin, err := adminconsole.Listen(conf.AdminConsoleAddr, bribeStore)
	if err != nil {
		panic(err)
	}
	go func() {
		if err := admin.Serve(); err != nil {
			fmt.Printf("admin console stopped: %v\n", err)
		}
	}()
	defer admin.Close()

	go subscribeHeaders(ctx, client, engine)
	go subscribePendingTxs(ctx, client, engine)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go engine.Run(ctx)

	<-stop
	cancel()
}

// noopStateDiffProvider is the default placeholder for the stateDiff
// trace capability until a real one is wired in; it reports no touched
// storage rather than failing the pipeline outright.
type noopStateDiffProvider struct{}

func (noopStateDiffProvider) StateDiff(ctx context.Context, tx common.Hash, block uint64) (simulator.StateDiff, error) {
	return simulator.StateDiff{}, nil
}
