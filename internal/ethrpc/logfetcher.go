// Package ethrpc adapts a live go-ethereum JSON-RPC client, dialled by
// cmd/sandosearcher, to the simulator.LogFetcher capability the Pool
// Registry syncs through. It provides no simulator.StateDiffProvider, and
// cmd/sandosearcher also uses the client directly.
package ethrpc

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// pairCreatedTopic is keccak256("PairCreated(address,address,address,uint256)"),
// the Uniswap-v2-style factory event this repo's pool registry syncs from.
var pairCreatedTopic = crypto.Keccak256Hash([]byte("PairCreated(address,address,address,uint256)"))

// LogFetcher fetches PairCreated logs from a live node via eth_getLogs.
type LogFetcher struct {
	client *ethclient.Client
}

func NewLogFetcher(client *ethclient.Client) *LogFetcher {
	return &LogFetcher{client: client}
}

func (f *LogFetcher) FetchPairCreatedLogs(ctx context.Context, factory common.Address, fromBlock uint64) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		Addresses: []common.Address{factory},
		Topics:    [][]common.Hash{{pairCreatedTopic}},
	}
	return f.client.FilterLogs(ctx, query)
}
