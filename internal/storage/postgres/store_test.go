package postgres

import (
	"context"
	"os"
	"testing"

	"stakeScope/internal/model"
)

// Runs against a disposable database named by STAKESCOPE_TEST_PG_DSN.
func testStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("STAKESCOPE_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("STAKESCOPE_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	store, err := NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	for _, table := range []string{"pod_deployed_events", "staked_deposit_events", "indexing_cursors", "deposit_block_summary"} {
		if _, err := store.pool.Exec(ctx, "TRUNCATE "+table); err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}
	t.Cleanup(store.Close)
	return store
}

func TestUpsertIsIdempotent(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	events := []model.StakedDepositEvent{
		{TxHash: "0xaa", LogIndex: 1, BlockNumber: 10, Amount: "1000000000000000000", TxValue: "0"},
		{TxHash: "0xaa", LogIndex: 2, BlockNumber: 10, Amount: "2500000000000000000", TxValue: "0"},
	}
	inserted, err := store.UpsertStakedDeposits(ctx, events)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if inserted != 2 {
		t.Fatalf("expected 2 inserted, got %d", inserted)
	}
	inserted, err = store.UpsertStakedDeposits(ctx, events)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if inserted != 0 {
		t.Fatalf("expected 0 inserted, got %d", inserted)
	}

	got, err := store.StakedDepositsInRange(ctx, 10, 10)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
}

func TestAdvanceCursorMonotonic(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	for _, block := range []uint64{100, 50, 120} {
		if err := store.AdvanceCursor(ctx, model.StreamPod, block); err != nil {
			t.Fatalf("advance %d: %v", block, err)
		}
	}
	got, err := store.LastIndexedBlock(ctx, model.StreamPod)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != 120 {
		t.Fatalf("expected 120, got %d", got)
	}
}

func TestReplaceBlockSummariesTwice(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	first := []model.MaterializedRow{{BlockNumber: 1, BlockTimestamp: 100, EventCount: 1, TotalDeposited: "5"}}
	second := []model.MaterializedRow{{BlockNumber: 2, BlockTimestamp: 200, EventCount: 2, TotalDeposited: "7"}}
	if err := store.ReplaceBlockSummaries(ctx, first); err != nil {
		t.Fatalf("first replace: %v", err)
	}
	if err := store.ReplaceBlockSummaries(ctx, second); err != nil {
		t.Fatalf("second replace: %v", err)
	}

	if _, ok, err := store.BlockSummary(ctx, 1); err != nil || ok {
		t.Fatalf("block 1 should be gone: ok=%v err=%v", ok, err)
	}
	row, ok, err := store.BlockSummary(ctx, 2)
	if err != nil || !ok {
		t.Fatalf("block 2 missing: ok=%v err=%v", ok, err)
	}
	if row.TotalDeposited != "7" || row.EventCount != 2 {
		t.Fatalf("unexpected row: %+v", row)
	}
}
