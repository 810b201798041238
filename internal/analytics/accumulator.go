package analytics

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"go.uber.org/zap"

	"stakeScope/internal/model"
	"stakeScope/internal/storage"
)

type blockKey struct {
	number    uint64
	timestamp uint64
}

// Accumulator sums deposit rows per (block, timestamp).
type Accumulator struct {
	logger  *zap.Logger
	blocks  map[blockKey]*blockTotal
	rows    int
	skipped int
}

type blockTotal struct {
	count uint64
	total *big.Int
}

func NewAccumulator(logger *zap.Logger) *Accumulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Accumulator{logger: logger, blocks: make(map[blockKey]*blockTotal)}
}

// Add folds one row in. Rows whose amount is not a non-negative base-10
// integer are skipped with a warning.
func (a *Accumulator) Add(row model.DepositRow) {
	a.rows++
	amount, ok := new(big.Int).SetString(row.Amount, 10)
	if !ok || amount.Sign() < 0 {
		a.skipped++
		a.logger.Warn("skip deposit row with invalid amount",
			zap.Uint64("block_number", row.BlockNumber),
			zap.String("amount", row.Amount),
		)
		return
	}

	key := blockKey{number: row.BlockNumber, timestamp: row.BlockTimestamp}
	acc, ok := a.blocks[key]
	if !ok {
		acc = &blockTotal{total: new(big.Int)}
		a.blocks[key] = acc
	}
	acc.count++
	acc.total.Add(acc.total, amount)
}

// Rows returns the aggregates ordered by block.
func (a *Accumulator) Rows() []model.MaterializedRow {
	out := make([]model.MaterializedRow, 0, len(a.blocks))
	for key, acc := range a.blocks {
		out = append(out, model.MaterializedRow{
			BlockNumber:    key.number,
			BlockTimestamp: key.timestamp,
			EventCount:     acc.count,
			TotalDeposited: acc.total.String(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		return out[i].BlockTimestamp < out[j].BlockTimestamp
	})
	return out
}

func (a *Accumulator) Skipped() int { return a.skipped }

// Aggregate reads every raw deposit row and returns the per-block totals.
func Aggregate(ctx context.Context, deposits storage.DepositStore, logger *zap.Logger) (*Accumulator, error) {
	acc := NewAccumulator(logger)
	err := deposits.ScanDepositRows(ctx, func(row model.DepositRow) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		acc.Add(row)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan deposit rows: %w", err)
	}
	return acc, nil
}
