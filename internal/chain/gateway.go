package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"stakeScope/internal/metrics"
	"stakeScope/internal/retry"
)

// Reader is the raw node surface the Gateway guards. *Client implements it.
type Reader interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	CodeAt(ctx context.Context, account common.Address, number uint64) ([]byte, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, address common.Address, topic0 common.Hash) ([]types.Log, error)
}

// TxInfo is the slice of a transaction the indexer stores.
type TxInfo struct {
	From  common.Address
	Value *big.Int
}

// Gateway runs every node call under a per-call timeout and the retry policy.
type Gateway struct {
	reader  Reader
	policy  *retry.Policy
	timeout time.Duration
	metrics *metrics.Metrics

	mu      sync.Mutex
	chainID *big.Int
}

// NewGateway wraps reader. A zero timeout disables the per-call deadline.
func NewGateway(reader Reader, policy *retry.Policy, timeout time.Duration, m *metrics.Metrics) *Gateway {
	if policy == nil {
		policy = retry.NewPolicy(retry.DefaultConfig(), nil, nil)
	}
	return &Gateway{
		reader:  reader,
		policy:  policy,
		timeout: timeout,
		metrics: m,
	}
}

func call[T any](ctx context.Context, g *Gateway, op string, fn func(context.Context) (T, error)) (T, error) {
	out, err := retry.Do(ctx, g.policy, op, func(ctx context.Context) (T, error) {
		callCtx := ctx
		if g.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, g.timeout)
			defer cancel()
		}
		out, err := fn(callCtx)
		g.metrics.ObserveRPC(op, err)
		return out, err
	})
	return out, err
}

// ChainID returns the chain ID. A successful answer is cached.
func (g *Gateway) ChainID(ctx context.Context) (*big.Int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.chainID != nil {
		return g.chainID, nil
	}
	id, err := call(ctx, g, "eth_chainId", g.reader.ChainID)
	if err != nil {
		return nil, err
	}
	g.chainID = id
	return id, nil
}

// BlockNumber returns the current head.
func (g *Gateway) BlockNumber(ctx context.Context) (uint64, error) {
	return call(ctx, g, "eth_blockNumber", g.reader.BlockNumber)
}

// CodeAt returns the bytecode of account at block number.
func (g *Gateway) CodeAt(ctx context.Context, account common.Address, number uint64) ([]byte, error) {
	return call(ctx, g, "eth_getCode", func(ctx context.Context) ([]byte, error) {
		return g.reader.CodeAt(ctx, account, number)
	})
}

// BlockTimestamp returns the timestamp of block number.
func (g *Gateway) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	return call(ctx, g, "eth_getBlockByNumber", func(ctx context.Context) (uint64, error) {
		return g.reader.BlockTimestamp(ctx, number)
	})
}

// FilterLogs returns the logs of address matching topic0 in [fromBlock, toBlock].
func (g *Gateway) FilterLogs(ctx context.Context, fromBlock, toBlock uint64, address common.Address, topic0 common.Hash) ([]types.Log, error) {
	return call(ctx, g, "eth_getLogs", func(ctx context.Context) ([]types.Log, error) {
		return g.reader.FilterLogs(ctx, fromBlock, toBlock, address, topic0)
	})
}

// TransactionInfo returns the sender and value of a transaction.
func (g *Gateway) TransactionInfo(ctx context.Context, hash common.Hash) (TxInfo, error) {
	tx, err := call(ctx, g, "eth_getTransactionByHash", func(ctx context.Context) (*types.Transaction, error) {
		return g.reader.TransactionByHash(ctx, hash)
	})
	if err != nil {
		return TxInfo{}, err
	}

	chainID, err := g.ChainID(ctx)
	if err != nil {
		return TxInfo{}, fmt.Errorf("chain id: %w", err)
	}
	from, err := types.Sender(types.LatestSignerForChainID(chainID), tx)
	if err != nil {
		return TxInfo{}, fmt.Errorf("recover sender %s: %w", hash.Hex(), err)
	}

	value := tx.Value()
	if value == nil {
		value = new(big.Int)
	}
	return TxInfo{From: from, Value: new(big.Int).Set(value)}, nil
}
