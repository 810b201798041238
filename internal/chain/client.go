package chain

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Client wraps go-ethereum RPC and provides helper methods.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client

	tsCache *timestampCache
}

// timestampCacheSize bounds the number of block timestamps kept in memory.
const timestampCacheSize = 8192

// timestampCache keeps the most recently inserted block timestamps and evicts
// the oldest insertion once full.
type timestampCache struct {
	mu    sync.RWMutex
	limit int
	byNum map[uint64]uint64
	order []uint64
	next  int
}

func newTimestampCache(limit int) *timestampCache {
	if limit < 1 {
		limit = 1
	}
	return &timestampCache{
		limit: limit,
		byNum: make(map[uint64]uint64, limit),
		order: make([]uint64, 0, limit),
	}
}

func (c *timestampCache) get(number uint64) (uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ts, ok := c.byNum[number]
	return ts, ok
}

func (c *timestampCache) put(number, ts uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byNum[number]; ok {
		c.byNum[number] = ts
		return
	}
	if len(c.order) < c.limit {
		c.order = append(c.order, number)
	} else {
		delete(c.byNum, c.order[c.next])
		c.order[c.next] = number
		c.next = (c.next + 1) % c.limit
	}
	c.byNum[number] = ts
}

// NewClient creates a new chain client from the RPC URL.
func NewClient(ctx context.Context, rpcURL string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
		tsCache:   newTimestampCache(timestampCacheSize),
	}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// ChainID returns the chain ID.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	return c.ethClient.ChainID(ctx)
}

// BlockNumber returns the latest block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return c.ethClient.BlockNumber(ctx)
}

// CodeAt returns the contract bytecode at the given block.
func (c *Client) CodeAt(ctx context.Context, account common.Address, number uint64) ([]byte, error) {
	return c.ethClient.CodeAt(ctx, account, new(big.Int).SetUint64(number))
}

// BlockTimestamp returns the block timestamp, using an in-memory cache.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	if ts, ok := c.tsCache.get(number); ok {
		return ts, nil
	}

	header, err := c.ethClient.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, err
	}

	c.tsCache.put(number, header.Time)
	return header.Time, nil
}

// TransactionByHash returns a transaction by hash.
func (c *Client) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, error) {
	tx, _, err := c.ethClient.TransactionByHash(ctx, hash)
	return tx, err
}

// FilterLogs returns logs in the given range for an address and topic0 filter.
func (c *Client) FilterLogs(
	ctx context.Context,
	fromBlock uint64,
	toBlock uint64,
	address common.Address,
	topic0 common.Hash,
) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{address},
		Topics:    [][]common.Hash{{topic0}},
	}
	return c.ethClient.FilterLogs(ctx, query)
}
