// Package configs loads the YAML configuration file the searcher starts
// from, in the same style the teacher's own config loader uses: a single
// struct tree decoded with gopkg.in/yaml.v3, plus converters into the
// internal types each sub-manager actually wants.
package configs

import (
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	sando "github.com/sandodex/sandosearcher"
	"github.com/sandodex/sandosearcher/internal/bribe"
	"github.com/sandodex/sandosearcher/internal/poolreg"
)

// Config is the entire configuration structure from config.yml.
type Config struct {
	RPC               string            `yaml:"rpc"`
	AdminConsoleAddr  string            `yaml:"admin_console_addr"`
	CheckpointPath    string            `yaml:"checkpoint_path"`
	SandwichContract  string            `yaml:"sandwich_contract"`
	ChainID           int64             `yaml:"chain_id"`
	BalanceFloorWei   string            `yaml:"balance_floor_wei"`
	Factories         []FactoryYAML     `yaml:"factories"`
	Bribe             BribeYAML         `yaml:"bribe"`
	Queues            QueuesYAML        `yaml:"queues"`
	AggregationWaitMs int               `yaml:"aggregation_wait_ms"`
}

// FactoryYAML is one pair/pool factory source to sync on startup.
type FactoryYAML struct {
	Address string `yaml:"address"`
	Variant string `yaml:"variant"` // "v2" or "v3"
	Genesis uint64 `yaml:"genesis"`
}

// BribeYAML is the initial ConfigurableBribePolicy, admin-mutable after
// startup via pkg/adminconsole.
type BribeYAML struct {
	Strategy     string  `yaml:"strategy"`
	Status       string  `yaml:"status"`
	OverpayBase  float64 `yaml:"overpay_base"`
	OverpayFloat float64 `yaml:"overpay_float"`
	RatioBP      string  `yaml:"ratio_bp"`
	RatioFloatBP string  `yaml:"ratio_float_bp"`
}

// QueuesYAML sizes the worker pools of §5. Fields left zero fall back to
// the spec's named defaults in ToQueueConfig.
type QueuesYAML struct {
	EventTxWorkers    int `yaml:"event_tx_workers"`
	EventBlockWorkers int `yaml:"event_block_workers"`
	ActionWorkers     int `yaml:"action_workers"`
	HugeWorkers       int `yaml:"huge_workers"`
}

// LoadConfig reads and parses config.yml into a Config struct.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("configs: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("configs: parse yaml: %w", err)
	}
	return &cfg, nil
}

// ToBribePolicy converts the YAML bribe block into a bribe.Policy.
func (c *Config) ToBribePolicy() (bribe.Policy, error) {
	strat, err := bribe.ParseStrategy(c.Bribe.Strategy)
	if err != nil {
		return bribe.Policy{}, err
	}
	status, err := bribe.ParseStatus(c.Bribe.Status)
	if err != nil {
		return bribe.Policy{}, err
	}
	policy := bribe.Policy{
		Strategy:     strat,
		Status:       status,
		OverpayBase:  c.Bribe.OverpayBase,
		OverpayFloat: c.Bribe.OverpayFloat,
	}
	if c.Bribe.RatioBP != "" {
		v, ok := new(big.Int).SetString(c.Bribe.RatioBP, 10)
		if !ok {
			return bribe.Policy{}, fmt.Errorf("configs: invalid ratio_bp %q", c.Bribe.RatioBP)
		}
		policy.RatioBP = v
	}
	if c.Bribe.RatioFloatBP != "" {
		v, ok := new(big.Int).SetString(c.Bribe.RatioFloatBP, 10)
		if !ok {
			return bribe.Policy{}, fmt.Errorf("configs: invalid ratio_float_bp %q", c.Bribe.RatioFloatBP)
		}
		policy.RatioFloatBP = v
	}
	return policy, nil
}

// ToFactories converts the YAML factory list into poolreg.Factory values.
func (c *Config) ToFactories() ([]poolreg.Factory, error) {
	out := make([]poolreg.Factory, 0, len(c.Factories))
	for _, f := range c.Factories {
		variant := sando.VariantConstantProductV2
		if f.Variant == "v3" {
			variant = sando.VariantConcentratedV3
		}
		out = append(out, poolreg.Factory{
			Address: common.HexToAddress(f.Address),
			Variant: variant,
			Genesis: f.Genesis,
		})
	}
	return out, nil
}

// QueueConfig is the resolved worker-count/idle-interval plan for every
// queue the Engine drains (§5).
type QueueConfig struct {
	EventTxWorkers    int
	EventTxIdle       time.Duration
	EventBlockWorkers int
	EventBlockIdle    time.Duration
	ActionWorkers     int
	ActionIdle        time.Duration
	HugeWorkers       int
	HugeIdle          time.Duration
	AggregationWait   time.Duration
}

// ToQueueConfig resolves worker counts against the spec's named
// defaults, substituting numCPU for an unset event-tx worker count.
func (c *Config) ToQueueConfig(numCPU int) QueueConfig {
	txWorkers := c.Queues.EventTxWorkers
	if txWorkers <= 0 {
		txWorkers = numCPU
	}
	blockWorkers := c.Queues.EventBlockWorkers
	if blockWorkers <= 0 {
		blockWorkers = 2
	}
	actionWorkers := c.Queues.ActionWorkers
	if actionWorkers <= 0 {
		actionWorkers = 4
	}
	hugeWorkers := c.Queues.HugeWorkers
	if hugeWorkers <= 0 {
		hugeWorkers = 2
	}
	wait := time.Duration(c.AggregationWaitMs) * time.Millisecond
	if wait <= 0 {
		wait = 10_500 * time.Millisecond
	}
	return QueueConfig{
		EventTxWorkers:    txWorkers,
		EventTxIdle:       10 * time.Millisecond,
		EventBlockWorkers: blockWorkers,
		EventBlockIdle:    100 * time.Millisecond,
		ActionWorkers:     actionWorkers,
		ActionIdle:        10 * time.Millisecond,
		HugeWorkers:       hugeWorkers,
		HugeIdle:          50 * time.Millisecond,
		AggregationWait:   wait,
	}
}

