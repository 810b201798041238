package indexer

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"stakeScope/internal/chain"
	"stakeScope/internal/metrics"
	"stakeScope/internal/model"
	"stakeScope/internal/storage"
)

// ErrInterrupted is returned when a pass stops at a batch boundary.
var ErrInterrupted = errors.New("pass interrupted")

type interruptKey struct{}

// WithInterrupt attaches a stop signal to ctx. Once done is closed, passes
// run under the returned context stop before their next batch. A batch that
// has started is not cancelled by it.
func WithInterrupt(ctx context.Context, done <-chan struct{}) context.Context {
	return context.WithValue(ctx, interruptKey{}, done)
}

// Interrupted returns ctx.Err() or ErrInterrupted when the pass should stop.
func Interrupted(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done, _ := ctx.Value(interruptKey{}).(<-chan struct{})
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return ErrInterrupted
	default:
		return nil
	}
}

// Chain is the node surface used by the indexer. *chain.Gateway implements it.
type Chain interface {
	CodeReader
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, address common.Address, topic0 common.Hash) ([]types.Log, error)
	TransactionInfo(ctx context.Context, hash common.Hash) (chain.TxInfo, error)
}

// Stream describes one indexed event type.
type Stream interface {
	Name() model.Stream
	Address() common.Address
	Topic() common.Hash
	Deployment() model.DeploymentBlockConfig
	// Handle decodes and persists logs, returning the number of new rows.
	Handle(ctx context.Context, logs []types.Log) (int, error)
}

// Config holds indexer settings.
type Config struct {
	BatchSize uint64
}

// Result summarizes one pass.
type Result struct {
	From             uint64 `json:"from"`
	To               uint64 `json:"to"`
	Batches          int    `json:"batches"`
	Events           int    `json:"events"`
	LastIndexedBlock uint64 `json:"last_indexed_block"`
	UpToDate         bool   `json:"up_to_date"`
}

// Progress is the cursor position of a stream relative to the head.
type Progress struct {
	Stream           model.Stream `json:"stream"`
	LastIndexedBlock uint64       `json:"last_indexed_block"`
	Head             uint64       `json:"head"`
	Lag              uint64       `json:"lag"`
}

// RangeIndexer brings one stream up to date with the chain.
type RangeIndexer struct {
	stream   Stream
	chain    Chain
	cursors  storage.CursorStore
	resolver *DeploymentResolver
	cfg      Config
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// New builds a RangeIndexer with its dependencies.
func New(stream Stream, chainClient Chain, cursors storage.CursorStore, resolver *DeploymentResolver, cfg Config, logger *zap.Logger, m *metrics.Metrics) (*RangeIndexer, error) {
	if stream == nil {
		return nil, fmt.Errorf("stream is nil")
	}
	if chainClient == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	if cursors == nil {
		return nil, fmt.Errorf("cursor store is nil")
	}
	if cfg.BatchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if resolver == nil {
		resolver = NewDeploymentResolver(chainClient, logger)
	}
	return &RangeIndexer{
		stream:   stream,
		chain:    chainClient,
		cursors:  cursors,
		resolver: resolver,
		cfg:      cfg,
		logger:   logger.Named("indexer").With(zap.String("stream", string(stream.Name()))),
		metrics:  m,
	}, nil
}

func (r *RangeIndexer) Stream() model.Stream {
	return r.stream.Name()
}

// DeploymentBlock resolves the deployment block of the stream's contract.
func (r *RangeIndexer) DeploymentBlock(ctx context.Context) (uint64, error) {
	return r.resolver.Resolve(ctx, r.stream.Address(), r.stream.Deployment())
}

// Progress reports the cursor and the current head.
func (r *RangeIndexer) Progress(ctx context.Context) (Progress, error) {
	last, err := r.cursors.LastIndexedBlock(ctx, r.stream.Name())
	if err != nil {
		return Progress{}, fmt.Errorf("read cursor: %w", err)
	}
	head, err := r.chain.BlockNumber(ctx)
	if err != nil {
		return Progress{}, fmt.Errorf("get head: %w", err)
	}
	p := Progress{Stream: r.stream.Name(), LastIndexedBlock: last, Head: head}
	if head > last {
		p.Lag = head - last
	}
	return p, nil
}

// Sync indexes from the cursor (or the deployment block) up to the head.
func (r *RangeIndexer) Sync(ctx context.Context) (Result, error) {
	floor, err := r.floor(ctx)
	if err != nil {
		return Result{}, err
	}
	head, err := r.chain.BlockNumber(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("get head: %w", err)
	}
	if floor > head {
		r.logger.Debug("nothing to sync", zap.Uint64("from", floor), zap.Uint64("head", head))
		return Result{From: floor, To: head, LastIndexedBlock: floor - 1, UpToDate: true}, nil
	}
	return r.index(ctx, floor, head, floor)
}

// Backfill indexes [from, to]. A zero from means the deployment block and a
// zero to means the head. The cursor only moves when the range continues
// already indexed territory.
func (r *RangeIndexer) Backfill(ctx context.Context, from, to uint64) (Result, error) {
	if from == 0 {
		block, err := r.DeploymentBlock(ctx)
		if err != nil {
			return Result{}, err
		}
		from = block
	}
	if to == 0 {
		head, err := r.chain.BlockNumber(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("get head: %w", err)
		}
		to = head
	}
	if from > to {
		return Result{}, fmt.Errorf("from block %d is after to block %d", from, to)
	}

	floor, err := r.floor(ctx)
	if err != nil {
		return Result{}, err
	}
	return r.index(ctx, from, to, floor)
}

// floor is the first block not yet covered by the cursor.
func (r *RangeIndexer) floor(ctx context.Context) (uint64, error) {
	last, err := r.cursors.LastIndexedBlock(ctx, r.stream.Name())
	if err != nil {
		return 0, fmt.Errorf("read cursor: %w", err)
	}
	if last > 0 {
		return last + 1, nil
	}
	block, err := r.DeploymentBlock(ctx)
	if err != nil {
		return 0, fmt.Errorf("resolve deployment block: %w", err)
	}
	return block, nil
}

func (r *RangeIndexer) index(ctx context.Context, from, to, floor uint64) (Result, error) {
	ranges, err := SplitRange(from, to, r.cfg.BatchSize)
	if err != nil {
		return Result{}, err
	}

	name := string(r.stream.Name())
	res := Result{From: from, To: to}
	if floor > 0 {
		res.LastIndexedBlock = floor - 1
	}

	for _, blockRange := range ranges {
		if err := Interrupted(ctx); err != nil {
			r.logger.Info("pass stopped", zap.Uint64("last_indexed_block", res.LastIndexedBlock), zap.Error(err))
			return res, err
		}
		r.logger.Info("fetch logs", zap.Stringer("range", blockRange), zap.Uint64("blocks", blockRange.Len()))

		logs, err := r.chain.FilterLogs(ctx, blockRange.From, blockRange.To, r.stream.Address(), r.stream.Topic())
		if err != nil {
			r.metrics.ObserveBatch(name, 0, err)
			return res, fmt.Errorf("filter logs %s: %w", blockRange, err)
		}

		inserted, err := r.stream.Handle(ctx, logs)
		if err != nil {
			r.metrics.ObserveBatch(name, 0, err)
			return res, fmt.Errorf("handle logs %s: %w", blockRange, err)
		}

		if blockRange.Contains(floor) {
			if err := r.cursors.AdvanceCursor(ctx, r.stream.Name(), blockRange.To); err != nil {
				r.metrics.ObserveBatch(name, inserted, err)
				return res, fmt.Errorf("advance cursor to %d: %w", blockRange.To, err)
			}
			floor = blockRange.To + 1
			res.LastIndexedBlock = blockRange.To
			r.metrics.SetCursor(name, blockRange.To)
		}

		res.Batches++
		res.Events += inserted
		r.metrics.ObserveBatch(name, inserted, nil)
		r.logger.Info("batch complete",
			zap.Int("logs", len(logs)),
			zap.Int("inserted", inserted),
			zap.Stringer("range", blockRange),
		)
	}

	return res, nil
}
