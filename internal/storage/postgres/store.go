package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"stakeScope/internal/model"
)

// Store provides Postgres persistence for events, cursors and the deposit summary.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to dsn and creates missing tables.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// LastIndexedBlock returns the cursor of stream, zero if absent.
func (s *Store) LastIndexedBlock(ctx context.Context, stream model.Stream) (uint64, error) {
	var block int64
	row := s.pool.QueryRow(ctx, `SELECT last_indexed_block FROM indexing_cursors WHERE stream=$1`, string(stream))
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return uint64(block), nil
}

// AdvanceCursor upserts the cursor and never moves it backward.
func (s *Store) AdvanceCursor(ctx context.Context, stream model.Stream, block uint64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexing_cursors (stream, last_indexed_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (stream) DO UPDATE
		SET last_indexed_block = GREATEST(indexing_cursors.last_indexed_block, EXCLUDED.last_indexed_block),
			updated_at = now()
	`, string(stream), int64(block))
	return err
}

func (s *Store) Cursors(ctx context.Context) ([]model.Cursor, error) {
	rows, err := s.pool.Query(ctx, `SELECT stream, last_indexed_block, updated_at FROM indexing_cursors ORDER BY stream`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Cursor
	for rows.Next() {
		var (
			cursor model.Cursor
			stream string
			block  int64
		)
		if err := rows.Scan(&stream, &block, &cursor.UpdatedAt); err != nil {
			return nil, err
		}
		cursor.Stream = model.Stream(stream)
		cursor.LastIndexedBlock = uint64(block)
		out = append(out, cursor)
	}
	return out, rows.Err()
}

// UpsertPodDeployed inserts PodDeployed rows, ignoring known (tx_hash, log_index) keys.
func (s *Store) UpsertPodDeployed(ctx context.Context, events []model.PodDeployedEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(`
			INSERT INTO pod_deployed_events (
				tx_hash, log_index, block_number, block_timestamp, contract_address, eigen_pod, pod_owner
			) VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (tx_hash, log_index) DO NOTHING
		`,
			e.TxHash,
			int64(e.LogIndex),
			int64(e.BlockNumber),
			int64(e.BlockTimestamp),
			e.ContractAddress,
			e.EigenPod,
			e.PodOwner,
		)
	}
	return s.sendInserts(ctx, batch, len(events))
}

// UpsertStakedDeposits inserts deposit rows, ignoring known (tx_hash, log_index) keys.
func (s *Store) UpsertStakedDeposits(ctx context.Context, events []model.StakedDepositEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(`
			INSERT INTO staked_deposit_events (`+depositColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
			ON CONFLICT (tx_hash, log_index) DO NOTHING
		`,
			e.TxHash,
			int64(e.LogIndex),
			int64(e.BlockNumber),
			int64(e.BlockTimestamp),
			e.ContractAddress,
			e.Depositor,
			e.Pubkey,
			e.WithdrawalCredentials,
			e.Amount,
			e.TxValue,
			e.Signature,
			int64(e.DepositIndex),
		)
	}
	return s.sendInserts(ctx, batch, len(events))
}

func (s *Store) sendInserts(ctx context.Context, batch *pgx.Batch, n int) (int, error) {
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	inserted := 0
	for i := 0; i < n; i++ {
		tag, err := br.Exec()
		if err != nil {
			return inserted, err
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func (s *Store) PodDeployedInRange(ctx context.Context, fromBlock, toBlock uint64) ([]model.PodDeployedEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tx_hash, log_index, block_number, block_timestamp, contract_address, eigen_pod, pod_owner
		FROM pod_deployed_events
		WHERE block_number BETWEEN $1 AND $2
		ORDER BY block_number, log_index
	`, int64(fromBlock), int64(toBlock))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PodDeployedEvent
	for rows.Next() {
		var (
			e                          model.PodDeployedEvent
			logIndex, block, timestamp int64
		)
		if err := rows.Scan(&e.TxHash, &logIndex, &block, &timestamp, &e.ContractAddress, &e.EigenPod, &e.PodOwner); err != nil {
			return nil, err
		}
		e.LogIndex, e.BlockNumber, e.BlockTimestamp = uint64(logIndex), uint64(block), uint64(timestamp)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) StakedDepositsInRange(ctx context.Context, fromBlock, toBlock uint64) ([]model.StakedDepositEvent, error) {
	return s.queryDeposits(ctx, `WHERE block_number BETWEEN $1 AND $2`, int64(fromBlock), int64(toBlock))
}

func (s *Store) StakedDepositsByPubkey(ctx context.Context, pubkey string) ([]model.StakedDepositEvent, error) {
	return s.queryDeposits(ctx, `WHERE pubkey = $1`, strings.ToLower(pubkey))
}

func (s *Store) StakedDepositsByWithdrawalCredentials(ctx context.Context, credentials string) ([]model.StakedDepositEvent, error) {
	return s.queryDeposits(ctx, `WHERE withdrawal_credentials = $1`, strings.ToLower(credentials))
}

func (s *Store) queryDeposits(ctx context.Context, where string, args ...any) ([]model.StakedDepositEvent, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+depositColumns+` FROM staked_deposit_events `+where+` ORDER BY block_number, log_index`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.StakedDepositEvent
	for rows.Next() {
		var (
			e                                 model.StakedDepositEvent
			logIndex, block, timestamp, index int64
		)
		if err := rows.Scan(
			&e.TxHash, &logIndex, &block, &timestamp, &e.ContractAddress, &e.Depositor,
			&e.Pubkey, &e.WithdrawalCredentials, &e.Amount, &e.TxValue, &e.Signature, &index,
		); err != nil {
			return nil, err
		}
		e.LogIndex, e.BlockNumber, e.BlockTimestamp, e.DepositIndex = uint64(logIndex), uint64(block), uint64(timestamp), uint64(index)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ScanDepositRows streams (block, timestamp, amount) of every deposit row.
func (s *Store) ScanDepositRows(ctx context.Context, fn func(model.DepositRow) error) error {
	rows, err := s.pool.Query(ctx, `
		SELECT block_number, block_timestamp, amount
		FROM staked_deposit_events
		ORDER BY block_number, log_index
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			block, timestamp int64
			amount           string
		)
		if err := rows.Scan(&block, &timestamp, &amount); err != nil {
			return err
		}
		if err := fn(model.DepositRow{BlockNumber: uint64(block), BlockTimestamp: uint64(timestamp), Amount: amount}); err != nil {
			return err
		}
	}
	return rows.Err()
}

// ReplaceBlockSummaries fills a shadow table and swaps it in inside one transaction,
// so readers see either the previous summary or the new one.
func (s *Store) ReplaceBlockSummaries(ctx context.Context, summaries []model.MaterializedRow) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DROP TABLE IF EXISTS deposit_block_summary_next`); err != nil {
		return fmt.Errorf("drop shadow: %w", err)
	}
	if _, err := tx.Exec(ctx, summaryShadowSQL); err != nil {
		return fmt.Errorf("create shadow: %w", err)
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"deposit_block_summary_next"},
		[]string{"block_number", "block_timestamp", "event_count", "total_deposited"},
		pgx.CopyFromSlice(len(summaries), func(i int) ([]any, error) {
			row := summaries[i]
			return []any{int64(row.BlockNumber), int64(row.BlockTimestamp), int64(row.EventCount), row.TotalDeposited}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy summaries: %w", err)
	}

	for _, stmt := range []string{
		`DROP TABLE IF EXISTS deposit_block_summary`,
		`ALTER TABLE deposit_block_summary_next RENAME TO deposit_block_summary`,
		`ALTER INDEX deposit_block_summary_next_pkey RENAME TO deposit_block_summary_pkey`,
	} {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("swap summary: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// BlockSummary returns the summary of one block; ok is false when it has no deposits.
func (s *Store) BlockSummary(ctx context.Context, block uint64) (model.MaterializedRow, bool, error) {
	var (
		out                     model.MaterializedRow
		number, timestamp, count int64
	)
	row := s.pool.QueryRow(ctx, `
		SELECT block_number, block_timestamp, event_count, total_deposited
		FROM deposit_block_summary WHERE block_number = $1
	`, int64(block))
	if err := row.Scan(&number, &timestamp, &count, &out.TotalDeposited); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.MaterializedRow{}, false, nil
		}
		return model.MaterializedRow{}, false, err
	}
	out.BlockNumber, out.BlockTimestamp, out.EventCount = uint64(number), uint64(timestamp), uint64(count)
	return out, true, nil
}

func (s *Store) BlockSummariesInRange(ctx context.Context, fromBlock, toBlock uint64) ([]model.MaterializedRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT block_number, block_timestamp, event_count, total_deposited
		FROM deposit_block_summary
		WHERE block_number BETWEEN $1 AND $2
		ORDER BY block_number
	`, int64(fromBlock), int64(toBlock))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.MaterializedRow
	for rows.Next() {
		var (
			row                      model.MaterializedRow
			number, timestamp, count int64
		)
		if err := rows.Scan(&number, &timestamp, &count, &row.TotalDeposited); err != nil {
			return nil, err
		}
		row.BlockNumber, row.BlockTimestamp, row.EventCount = uint64(number), uint64(timestamp), uint64(count)
		out = append(out, row)
	}
	return out, rows.Err()
}
