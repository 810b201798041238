package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stakeScope/internal/model"
	"stakeScope/internal/storage/sqlite"
)

func deposit(tx string, block uint64, amount string) model.StakedDepositEvent {
	return model.StakedDepositEvent{
		TxHash:         tx,
		BlockNumber:    block,
		BlockTimestamp: 1_600_000_000 + block,
		Amount:         amount,
		TxValue:        amount,
	}
}

func openStore(t *testing.T, events ...model.StakedDepositEvent) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(store.Close)
	if len(events) > 0 {
		_, err = store.UpsertStakedDeposits(context.Background(), events)
		require.NoError(t, err)
	}
	return store
}

func TestAccumulatorSumsBigAmounts(t *testing.T) {
	acc := NewAccumulator(nil)
	acc.Add(model.DepositRow{BlockNumber: 5, BlockTimestamp: 60, Amount: "1000000000000000000"})
	acc.Add(model.DepositRow{BlockNumber: 5, BlockTimestamp: 60, Amount: "2500000000000000000"})
	acc.Add(model.DepositRow{BlockNumber: 4, BlockTimestamp: 48, Amount: "0"})

	rows := acc.Rows()
	require.Equal(t, []model.MaterializedRow{
		{BlockNumber: 4, BlockTimestamp: 48, EventCount: 1, TotalDeposited: "0"},
		{BlockNumber: 5, BlockTimestamp: 60, EventCount: 2, TotalDeposited: "3500000000000000000"},
	}, rows)
}

func TestAccumulatorBeyondUint64(t *testing.T) {
	acc := NewAccumulator(nil)
	acc.Add(model.DepositRow{BlockNumber: 1, Amount: "18446744073709551615"})
	acc.Add(model.DepositRow{BlockNumber: 1, Amount: "18446744073709551615"})
	require.Equal(t, "36893488147419103230", acc.Rows()[0].TotalDeposited)
}

func TestAccumulatorSkipsInvalidAmounts(t *testing.T) {
	acc := NewAccumulator(nil)
	acc.Add(model.DepositRow{BlockNumber: 1, Amount: "12"})
	acc.Add(model.DepositRow{BlockNumber: 1, Amount: "1.5e18"})
	acc.Add(model.DepositRow{BlockNumber: 1, Amount: "-3"})
	acc.Add(model.DepositRow{BlockNumber: 2, Amount: ""})

	require.Equal(t, 3, acc.Skipped())
	rows := acc.Rows()
	require.Len(t, rows, 1)
	require.Equal(t, uint64(1), rows[0].EventCount)
	require.Equal(t, "12", rows[0].TotalDeposited)
}

func TestRefreshAndQuery(t *testing.T) {
	ctx := context.Background()
	store := openStore(t,
		deposit("0x01", 10, "1000000000000000000"),
		deposit("0x02", 10, "2500000000000000000"),
		deposit("0x03", 12, "32000000000000000000"),
		deposit("0x04", 13, "0"),
	)
	refresher := NewRefresher(store, store, nil, nil)
	service := NewService(store)

	res, err := refresher.Refresh(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, res.Rows)
	require.Equal(t, 3, res.Blocks)

	row, err := service.Block(ctx, 10)
	require.NoError(t, err)
	require.NotNil(t, row)
	require.Equal(t, uint64(2), row.EventCount)
	require.Equal(t, "3500000000000000000", row.TotalDeposited)

	empty, err := service.Block(ctx, 11)
	require.NoError(t, err)
	require.Nil(t, empty)

	zero, err := service.Block(ctx, 13)
	require.NoError(t, err)
	require.NotNil(t, zero)
	require.Equal(t, "0", zero.TotalDeposited)

	rows, err := service.Range(ctx, 11, 12)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, uint64(12), rows[0].BlockNumber)

	total, err := service.RangeTotal(ctx, 0, 100)
	require.NoError(t, err)
	require.Equal(t, uint64(4), total.EventCount)
	require.Equal(t, "35500000000000000000", total.TotalDeposited)

	_, err = service.Range(ctx, 5, 4)
	require.Error(t, err)
}

type failingSummaries struct {
	*sqlite.Store
	fail bool
}

func (f *failingSummaries) ReplaceBlockSummaries(ctx context.Context, rows []model.MaterializedRow) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.Store.ReplaceBlockSummaries(ctx, rows)
}

func TestFailedRefreshKeepsPreviousTable(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, deposit("0x01", 10, "5"))
	summaries := &failingSummaries{Store: store}
	refresher := NewRefresher(store, summaries, nil, nil)
	service := NewService(store)

	_, err := refresher.Refresh(ctx)
	require.NoError(t, err)

	_, err = store.UpsertStakedDeposits(ctx, []model.StakedDepositEvent{deposit("0x02", 10, "7")})
	require.NoError(t, err)
	summaries.fail = true
	_, err = refresher.Refresh(ctx)
	require.Error(t, err)

	row, err := service.Block(ctx, 10)
	require.NoError(t, err)
	require.NotNil(t, row)
	require.Equal(t, "5", row.TotalDeposited)

	last, lastErr := refresher.Last()
	require.Error(t, lastErr)
	require.NotNil(t, last)
	require.Equal(t, 1, last.Rows)
}

func TestStartRefreshesEagerly(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, deposit("0x01", 10, "5"))
	refresher := NewRefresher(store, store, nil, nil)

	require.NoError(t, refresher.Start(ctx, time.Hour))
	defer refresher.Stop()

	row, err := NewService(store).Block(ctx, 10)
	require.NoError(t, err)
	require.NotNil(t, row)
	require.Error(t, refresher.Start(ctx, time.Hour))
}
