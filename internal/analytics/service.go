package analytics

import (
	"context"
	"fmt"
	"math/big"

	"stakeScope/internal/model"
	"stakeScope/internal/storage"
)

// RangeSummary totals the summary rows of a block range.
type RangeSummary struct {
	FromBlock      uint64 `json:"from_block"`
	ToBlock        uint64 `json:"to_block"`
	Blocks         int    `json:"blocks"`
	EventCount     uint64 `json:"event_count"`
	TotalDeposited string `json:"total_deposited"`
}

// Service answers analytics queries from the summary table.
type Service struct {
	summaries storage.SummaryStore
}

func NewService(summaries storage.SummaryStore) *Service {
	return &Service{summaries: summaries}
}

// Block returns the aggregate of one block, or nil when the block has no deposits.
func (s *Service) Block(ctx context.Context, block uint64) (*model.MaterializedRow, error) {
	row, ok, err := s.summaries.BlockSummary(ctx, block)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &row, nil
}

// Range returns the aggregates of [from, to] ordered by block.
func (s *Service) Range(ctx context.Context, from, to uint64) ([]model.MaterializedRow, error) {
	if from > to {
		return nil, fmt.Errorf("from block %d is after to block %d", from, to)
	}
	rows, err := s.summaries.BlockSummariesInRange(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []model.MaterializedRow{}
	}
	return rows, nil
}

// RangeTotal sums the aggregates of [from, to].
func (s *Service) RangeTotal(ctx context.Context, from, to uint64) (RangeSummary, error) {
	rows, err := s.Range(ctx, from, to)
	if err != nil {
		return RangeSummary{}, err
	}
	total := new(big.Int)
	out := RangeSummary{FromBlock: from, ToBlock: to, Blocks: len(rows)}
	for _, row := range rows {
		amount, ok := new(big.Int).SetString(row.TotalDeposited, 10)
		if !ok {
			return RangeSummary{}, fmt.Errorf("block %d: invalid total %q", row.BlockNumber, row.TotalDeposited)
		}
		total.Add(total, amount)
		out.EventCount += row.EventCount
	}
	out.TotalDeposited = total.String()
	return out, nil
}
