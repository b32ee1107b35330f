package main

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	sando "github.com/sandodex/sandosearcher"
)

// subscribeHeaders polls for new block headers and feeds the Engine's
// block event channel; poll-based rather than a websocket subscription so
// it works against any RPC endpoint, matching the teacher's own
// poll-interval txlistener style.
func subscribeHeaders(ctx context.Context, client *ethclient.Client, engine *sando.Engine) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var lastSeen uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			header, err := client.HeaderByNumber(ctx, nil)
			if err != nil || header == nil {
				continue
			}
			num := header.Number.Uint64()
			if num <= lastSeen {
				continue
			}
			lastSeen = num
			engine.SubmitBlock(sando.BlockInfo{
				Number:    num,
				BaseFee:   header.BaseFee,
				Timestamp: header.Time,
				GasUsed:   header.GasUsed,
				GasLimit:  header.GasLimit,
			})
		}
	}
}

// subscribePendingTxs subscribes to newPendingTransactions (hashes only,
// per the common node implementation), fetches each transaction's full
// body, recovers its sender, and feeds it into the Engine's tx event
// channel.
func subscribePendingTxs(ctx context.Context, client *ethclient.Client, engine *sando.Engine) {
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return
	}
	signer := types.LatestSignerForChainID(chainID)

	hashes := make(chan common.Hash, 1024)
	sub, err := client.Client().EthSubscribe(ctx, hashes, "newPendingTransactions")
	if err != nil {
		return
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			if err != nil {
				return
			}
		case hash := <-hashes:
			raw, isPending, err := client.TransactionByHash(ctx, hash)
			if err != nil || raw == nil || !isPending {
				continue
			}
			rec, err := sando.RecoverSender(raw, signer)
			if err != nil {
				continue
			}
			engine.SubmitTx(rec)
		}
	}
}
