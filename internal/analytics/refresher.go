package analytics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"stakeScope/internal/metrics"
	"stakeScope/internal/storage"
)

// ErrRefreshInProgress is returned when a refresh is already running.
var ErrRefreshInProgress = errors.New("refresh already in progress")

// RefreshResult summarizes one rebuild of the summary table.
type RefreshResult struct {
	Rows     int           `json:"rows"`
	Blocks   int           `json:"blocks"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration"`
	At       time.Time     `json:"at"`
}

// Refresher rebuilds deposit_block_summary from the raw deposit rows.
type Refresher struct {
	deposits  storage.DepositStore
	summaries storage.SummaryStore
	logger    *zap.Logger
	metrics   *metrics.Metrics

	running atomic.Bool

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	last    *RefreshResult
	lastErr error
}

func NewRefresher(deposits storage.DepositStore, summaries storage.SummaryStore, logger *zap.Logger, m *metrics.Metrics) *Refresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Refresher{
		deposits:  deposits,
		summaries: summaries,
		logger:    logger.Named("refresher"),
		metrics:   m,
	}
}

// Refresh aggregates all deposits and swaps the new table in. The previous
// table stays in place when this fails.
func (r *Refresher) Refresh(ctx context.Context) (RefreshResult, error) {
	if !r.running.CompareAndSwap(false, true) {
		return RefreshResult{}, ErrRefreshInProgress
	}
	defer r.running.Store(false)

	started := time.Now()
	res, err := r.refresh(ctx)
	res.Duration = time.Since(started)
	res.At = started.UTC()
	r.metrics.ObserveRefresh(res.Duration, err)

	r.mu.Lock()
	r.lastErr = err
	if err == nil {
		r.last = &res
	}
	r.mu.Unlock()
	return res, err
}

func (r *Refresher) refresh(ctx context.Context) (RefreshResult, error) {
	acc, err := Aggregate(ctx, r.deposits, r.logger)
	if err != nil {
		return RefreshResult{}, err
	}
	rows := acc.Rows()
	if err := r.summaries.ReplaceBlockSummaries(ctx, rows); err != nil {
		return RefreshResult{}, fmt.Errorf("replace summaries: %w", err)
	}
	return RefreshResult{Rows: acc.rows, Blocks: len(rows), Skipped: acc.Skipped()}, nil
}

// Start refreshes once before returning, then again every interval.
// A failed refresh is logged and the previous table is kept.
func (r *Refresher) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("refresh interval must be greater than zero")
	}
	r.mu.Lock()
	if r.done != nil {
		r.mu.Unlock()
		return fmt.Errorf("refresher already started")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	done := r.done
	r.mu.Unlock()

	r.tick(ctx)
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				r.tick(loopCtx)
			}
		}
	}()
	return nil
}

func (r *Refresher) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Last returns the most recent successful refresh and the error of the most
// recent attempt.
func (r *Refresher) Last() (*RefreshResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.lastErr
}

func (r *Refresher) tick(ctx context.Context) {
	res, err := r.Refresh(ctx)
	switch {
	case errors.Is(err, ErrRefreshInProgress):
		r.logger.Debug("refresh in progress, skipping tick")
	case err != nil:
		r.logger.Error("refresh failed, keeping previous summary", zap.Error(err))
	default:
		r.logger.Info("summary refreshed",
			zap.Int("rows", res.Rows),
			zap.Int("blocks", res.Blocks),
			zap.Int("skipped", res.Skipped),
			zap.Duration("duration", res.Duration),
		)
	}
}
