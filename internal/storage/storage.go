package storage

import (
	"context"

	"stakeScope/internal/model"
)

// CursorStore persists the last indexed block of each stream.
type CursorStore interface {
	// LastIndexedBlock returns zero for a stream that was never indexed.
	LastIndexedBlock(ctx context.Context, stream model.Stream) (uint64, error)
	// AdvanceCursor moves the cursor to block unless it is already past it.
	AdvanceCursor(ctx context.Context, stream model.Stream, block uint64) error
	Cursors(ctx context.Context) ([]model.Cursor, error)
}

// PodStore holds PodDeployed rows.
type PodStore interface {
	// UpsertPodDeployed inserts rows absent by (tx_hash, log_index) and
	// returns how many were new.
	UpsertPodDeployed(ctx context.Context, events []model.PodDeployedEvent) (int, error)
	PodDeployedInRange(ctx context.Context, fromBlock, toBlock uint64) ([]model.PodDeployedEvent, error)
}

// DepositStore holds StakedDeposit rows.
type DepositStore interface {
	UpsertStakedDeposits(ctx context.Context, events []model.StakedDepositEvent) (int, error)
	StakedDepositsInRange(ctx context.Context, fromBlock, toBlock uint64) ([]model.StakedDepositEvent, error)
	StakedDepositsByPubkey(ctx context.Context, pubkey string) ([]model.StakedDepositEvent, error)
	StakedDepositsByWithdrawalCredentials(ctx context.Context, credentials string) ([]model.StakedDepositEvent, error)
	// ScanDepositRows streams every raw deposit row in chain order.
	ScanDepositRows(ctx context.Context, fn func(model.DepositRow) error) error
}

// SummaryStore holds the per-block deposit summary table.
type SummaryStore interface {
	// ReplaceBlockSummaries builds the new table aside and swaps it in.
	ReplaceBlockSummaries(ctx context.Context, rows []model.MaterializedRow) error
	BlockSummary(ctx context.Context, block uint64) (model.MaterializedRow, bool, error)
	BlockSummariesInRange(ctx context.Context, fromBlock, toBlock uint64) ([]model.MaterializedRow, error)
}

// Store is the full persistence surface of the indexer.
type Store interface {
	CursorStore
	PodStore
	DepositStore
	SummaryStore
	Close()
}
