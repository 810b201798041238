package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"stakeScope/internal/model"
)

// ErrDeploymentUnresolved is returned when no block with code exists and no
// fallback offset is configured.
var ErrDeploymentUnresolved = errors.New("deployment block unresolved")

// CodeReader is the chain surface the resolver needs.
type CodeReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	CodeAt(ctx context.Context, account common.Address, number uint64) ([]byte, error)
}

// DeploymentResolver finds the first block at which a contract has code.
type DeploymentResolver struct {
	chain  CodeReader
	logger *zap.Logger

	mu    sync.Mutex
	cache map[common.Address]uint64
}

func NewDeploymentResolver(chain CodeReader, logger *zap.Logger) *DeploymentResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeploymentResolver{
		chain:  chain,
		logger: logger.Named("deployment"),
		cache:  make(map[common.Address]uint64),
	}
}

// Resolve returns the deployment block of address. Resolved blocks are cached
// per address; fallback answers are not.
func (r *DeploymentResolver) Resolve(ctx context.Context, address common.Address, cfg model.DeploymentBlockConfig) (uint64, error) {
	r.mu.Lock()
	block, ok := r.cache[address]
	r.mu.Unlock()
	if ok {
		return block, nil
	}

	logger := r.logger.With(zap.String("contract", cfg.Name), zap.String("address", address.Hex()))

	if cfg.KnownBlock > 0 {
		code, err := r.chain.CodeAt(ctx, address, cfg.KnownBlock)
		switch {
		case err != nil:
			logger.Warn("verify known deployment block failed", zap.Uint64("block", cfg.KnownBlock), zap.Error(err))
		case len(code) > 0:
			r.remember(address, cfg.KnownBlock)
			return cfg.KnownBlock, nil
		default:
			logger.Warn("no code at known deployment block", zap.Uint64("block", cfg.KnownBlock))
		}
	}

	head, err := r.chain.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("get head: %w", err)
	}

	hasCode, err := r.hasCode(ctx, address, head)
	if err != nil {
		return 0, err
	}
	if !hasCode {
		if cfg.FallbackOffset == 0 {
			return 0, fmt.Errorf("%w: %s has no code at head %d", ErrDeploymentUnresolved, address.Hex(), head)
		}
		fallback := uint64(0)
		if head > cfg.FallbackOffset {
			fallback = head - cfg.FallbackOffset
		}
		logger.Warn("no code at head, using fallback block",
			zap.Uint64("head", head),
			zap.Uint64("offset", cfg.FallbackOffset),
			zap.Uint64("block", fallback),
		)
		return fallback, nil
	}

	lo, hi := uint64(0), head
	for lo < hi {
		mid := lo + (hi-lo)/2
		present, err := r.hasCode(ctx, address, mid)
		if err != nil {
			return 0, err
		}
		if present {
			hi = mid
		} else {
			lo = mid + 1
		}
	}

	logger.Info("deployment block resolved", zap.Uint64("block", lo), zap.Uint64("head", head))
	r.remember(address, lo)
	return lo, nil
}

func (r *DeploymentResolver) hasCode(ctx context.Context, address common.Address, block uint64) (bool, error) {
	code, err := r.chain.CodeAt(ctx, address, block)
	if err != nil {
		return false, fmt.Errorf("get code at %d: %w", block, err)
	}
	return len(code) > 0, nil
}

func (r *DeploymentResolver) remember(address common.Address, block uint64) {
	r.mu.Lock()
	r.cache[address] = block
	r.mu.Unlock()
}
