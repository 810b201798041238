package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"stakeScope/internal/model"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS pod_deployed_events (
	tx_hash          TEXT    NOT NULL,
	log_index        INTEGER NOT NULL,
	block_number     INTEGER NOT NULL,
	block_timestamp  INTEGER NOT NULL,
	contract_address TEXT    NOT NULL,
	eigen_pod        TEXT    NOT NULL,
	pod_owner        TEXT    NOT NULL,
	PRIMARY KEY (tx_hash, log_index)
);
CREATE INDEX IF NOT EXISTS pod_deployed_events_block_idx ON pod_deployed_events (block_number, log_index);

CREATE TABLE IF NOT EXISTS staked_deposit_events (
	tx_hash                TEXT    NOT NULL,
	log_index              INTEGER NOT NULL,
	block_number           INTEGER NOT NULL,
	block_timestamp        INTEGER NOT NULL,
	contract_address       TEXT    NOT NULL,
	depositor              TEXT    NOT NULL,
	pubkey                 TEXT    NOT NULL,
	withdrawal_credentials TEXT    NOT NULL,
	amount                 TEXT    NOT NULL,
	tx_value               TEXT    NOT NULL,
	signature              TEXT    NOT NULL,
	deposit_index          INTEGER NOT NULL,
	PRIMARY KEY (tx_hash, log_index)
);
CREATE INDEX IF NOT EXISTS staked_deposit_events_block_idx ON staked_deposit_events (block_number, log_index);
CREATE INDEX IF NOT EXISTS staked_deposit_events_pubkey_idx ON staked_deposit_events (pubkey);
CREATE INDEX IF NOT EXISTS staked_deposit_events_credentials_idx ON staked_deposit_events (withdrawal_credentials);

CREATE TABLE IF NOT EXISTS indexing_cursors (
	stream             TEXT    PRIMARY KEY,
	last_indexed_block INTEGER NOT NULL,
	updated_at         INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS deposit_block_summary (
	block_number    INTEGER PRIMARY KEY,
	block_timestamp INTEGER NOT NULL,
	event_count     INTEGER NOT NULL,
	total_deposited TEXT    NOT NULL
);
`

const depositColumns = `tx_hash, log_index, block_number, block_timestamp, contract_address, depositor,
	pubkey, withdrawal_credentials, amount, tx_value, signature, deposit_index`

// Store is the file-backed engine. It serializes access through one connection.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path. ":memory:" gives a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

func (s *Store) LastIndexedBlock(ctx context.Context, stream model.Stream) (uint64, error) {
	var block int64
	err := s.db.QueryRowContext(ctx, `SELECT last_indexed_block FROM indexing_cursors WHERE stream = ?`, string(stream)).Scan(&block)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return uint64(block), nil
}

func (s *Store) AdvanceCursor(ctx context.Context, stream model.Stream, block uint64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO indexing_cursors (stream, last_indexed_block, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (stream) DO UPDATE
		SET last_indexed_block = MAX(last_indexed_block, excluded.last_indexed_block),
			updated_at = excluded.updated_at
	`, string(stream), int64(block), time.Now().UTC().Unix())
	return err
}

func (s *Store) Cursors(ctx context.Context) ([]model.Cursor, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT stream, last_indexed_block, updated_at FROM indexing_cursors ORDER BY stream`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Cursor
	for rows.Next() {
		var (
			stream           string
			block, updatedAt int64
		)
		if err := rows.Scan(&stream, &block, &updatedAt); err != nil {
			return nil, err
		}
		out = append(out, model.Cursor{
			Stream:           model.Stream(stream),
			LastIndexedBlock: uint64(block),
			UpdatedAt:        time.Unix(updatedAt, 0).UTC(),
		})
	}
	return out, rows.Err()
}

func (s *Store) UpsertPodDeployed(ctx context.Context, events []model.PodDeployedEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	return s.insertAll(ctx, `
		INSERT OR IGNORE INTO pod_deployed_events (
			tx_hash, log_index, block_number, block_timestamp, contract_address, eigen_pod, pod_owner
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`, len(events), func(i int) []any {
		e := events[i]
		return []any{e.TxHash, int64(e.LogIndex), int64(e.BlockNumber), int64(e.BlockTimestamp), e.ContractAddress, e.EigenPod, e.PodOwner}
	})
}

func (s *Store) UpsertStakedDeposits(ctx context.Context, events []model.StakedDepositEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	return s.insertAll(ctx, `
		INSERT OR IGNORE INTO staked_deposit_events (`+depositColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, len(events), func(i int) []any {
		e := events[i]
		return []any{
			e.TxHash, int64(e.LogIndex), int64(e.BlockNumber), int64(e.BlockTimestamp), e.ContractAddress, e.Depositor,
			e.Pubkey, e.WithdrawalCredentials, e.Amount, e.TxValue, e.Signature, int64(e.DepositIndex),
		}
	})
}

func (s *Store) insertAll(ctx context.Context, query string, n int, args func(i int) []any) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for i := 0; i < n; i++ {
		res, err := stmt.ExecContext(ctx, args(i)...)
		if err != nil {
			return 0, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += int(affected)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

func (s *Store) PodDeployedInRange(ctx context.Context, fromBlock, toBlock uint64) ([]model.PodDeployedEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tx_hash, log_index, block_number, block_timestamp, contract_address, eigen_pod, pod_owner
		FROM pod_deployed_events
		WHERE block_number BETWEEN ? AND ?
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
	return s.queryDeposits(ctx, `WHERE block_number BETWEEN ? AND ?`, int64(fromBlock), int64(toBlock))
}

func (s *Store) StakedDepositsByPubkey(ctx context.Context, pubkey string) ([]model.StakedDepositEvent, error) {
	return s.queryDeposits(ctx, `WHERE pubkey = ?`, strings.ToLower(pubkey))
}

func (s *Store) StakedDepositsByWithdrawalCredentials(ctx context.Context, credentials string) ([]model.StakedDepositEvent, error) {
	return s.queryDeposits(ctx, `WHERE withdrawal_credentials = ?`, strings.ToLower(credentials))
}

func (s *Store) queryDeposits(ctx context.Context, where string, args ...any) ([]model.StakedDepositEvent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+depositColumns+` FROM staked_deposit_events `+where+` ORDER BY block_number, log_index`, args...)
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

// ScanDepositRows collects the rows first; the single connection cannot
// serve fn's own queries while a cursor is open.
func (s *Store) ScanDepositRows(ctx context.Context, fn func(model.DepositRow) error) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT block_number, block_timestamp, amount
		FROM staked_deposit_events
		ORDER BY block_number, log_index
	`)
	if err != nil {
		return err
	}

	var collected []model.DepositRow
	for rows.Next() {
		var (
			block, timestamp int64
			amount           string
		)
		if err := rows.Scan(&block, &timestamp, &amount); err != nil {
			rows.Close()
			return err
		}
		collected = append(collected, model.DepositRow{BlockNumber: uint64(block), BlockTimestamp: uint64(timestamp), Amount: amount})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, row := range collected {
		if err := fn(row); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceBlockSummaries builds deposit_block_summary_next and renames it over
// the live table in one transaction.
func (s *Store) ReplaceBlockSummaries(ctx context.Context, summaries []model.MaterializedRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DROP TABLE IF EXISTS deposit_block_summary_next`,
		`CREATE TABLE deposit_block_summary_next (
			block_number    INTEGER PRIMARY KEY,
			block_timestamp INTEGER NOT NULL,
			event_count     INTEGER NOT NULL,
			total_deposited TEXT    NOT NULL
		)`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("prepare shadow: %w", err)
		}
	}

	insert, err := tx.PrepareContext(ctx, `
		INSERT INTO deposit_block_summary_next (block_number, block_timestamp, event_count, total_deposited)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer insert.Close()
	for _, row := range summaries {
		if _, err := insert.ExecContext(ctx, int64(row.BlockNumber), int64(row.BlockTimestamp), int64(row.EventCount), row.TotalDeposited); err != nil {
			return fmt.Errorf("insert summary %d: %w", row.BlockNumber, err)
		}
	}

	for _, stmt := range []string{
		`DROP TABLE IF EXISTS deposit_block_summary`,
		`ALTER TABLE deposit_block_summary_next RENAME TO deposit_block_summary`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("swap summary: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) BlockSummary(ctx context.Context, block uint64) (model.MaterializedRow, bool, error) {
	var (
		out                      model.MaterializedRow
		number, timestamp, count int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT block_number, block_timestamp, event_count, total_deposited
		FROM deposit_block_summary WHERE block_number = ?
	`, int64(block)).Scan(&number, &timestamp, &count, &out.TotalDeposited)
	if errors.Is(err, sql.ErrNoRows) {
		return model.MaterializedRow{}, false, nil
	}
	if err != nil {
		return model.MaterializedRow{}, false, err
	}
	out.BlockNumber, out.BlockTimestamp, out.EventCount = uint64(number), uint64(timestamp), uint64(count)
	return out, true, nil
}

func (s *Store) BlockSummariesInRange(ctx context.Context, fromBlock, toBlock uint64) ([]model.MaterializedRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT block_number, block_timestamp, event_count, total_deposited
		FROM deposit_block_summary
		WHERE block_number BETWEEN ? AND ?
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
