package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"stakeScope/internal/indexer"
	"stakeScope/internal/metrics"
	"stakeScope/internal/model"
)

// ErrAlreadyRunning is returned when a pass for the stream is in flight.
var ErrAlreadyRunning = errors.New("pass already running")

// Indexer is the pass surface of a stream. *indexer.RangeIndexer implements it.
type Indexer interface {
	Stream() model.Stream
	Sync(ctx context.Context) (indexer.Result, error)
	Backfill(ctx context.Context, from, to uint64) (indexer.Result, error)
}

// Status is a snapshot of the scheduler state.
type Status struct {
	Stream     model.Stream    `json:"stream"`
	Running    bool            `json:"running"`
	Scheduled  bool            `json:"scheduled"`
	Interval   string          `json:"interval,omitempty"`
	Passes     uint64          `json:"passes"`
	LastRunAt  *time.Time      `json:"last_run_at,omitempty"`
	LastError  string          `json:"last_error,omitempty"`
	LastResult *indexer.Result `json:"last_result,omitempty"`
}

// Scheduler runs at most one pass of a stream at a time, either on a
// periodic trigger or on demand.
type Scheduler struct {
	indexer Indexer
	logger  *zap.Logger
	metrics *metrics.Metrics

	running atomic.Bool

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	interval time.Duration
	status   Status
}

func New(idx Indexer, logger *zap.Logger, m *metrics.Metrics) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		indexer: idx,
		logger:  logger.Named("scheduler").With(zap.String("stream", string(idx.Stream()))),
		metrics: m,
		status:  Status{Stream: idx.Stream()},
	}
}

// Start arms the periodic trigger. The first pass fires immediately.
// Passes started by the trigger are not cancelled with ctx. Stop asks an
// in-flight pass to end at its next batch boundary and waits for it.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("interval must be greater than zero")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return fmt.Errorf("scheduler for %s already started", s.indexer.Stream())
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.interval = interval
	passCtx := indexer.WithInterrupt(context.WithoutCancel(ctx), loopCtx.Done())
	go s.loop(loopCtx, passCtx, interval, s.done)

	s.logger.Info("schedule armed", zap.Duration("interval", interval))
	return nil
}

// Stop disarms the trigger and waits for the loop to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done, s.interval = nil, nil, 0
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("schedule stopped")
}

// RunOnce performs one incremental pass synchronously.
func (s *Scheduler) RunOnce(ctx context.Context) (indexer.Result, error) {
	return s.pass(ctx, s.indexer.Sync)
}

// Backfill indexes [from, to] under the same guard as scheduled passes.
func (s *Scheduler) Backfill(ctx context.Context, from, to uint64) (indexer.Result, error) {
	return s.pass(ctx, func(ctx context.Context) (indexer.Result, error) {
		return s.indexer.Backfill(ctx, from, to)
	})
}

// Running reports whether a pass is in flight.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.status
	out.Running = s.running.Load()
	out.Scheduled = s.done != nil
	if s.interval > 0 {
		out.Interval = s.interval.String()
	}
	return out
}

func (s *Scheduler) loop(ctx, passCtx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	s.tick(passCtx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(passCtx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	res, err := s.RunOnce(ctx)
	switch {
	case errors.Is(err, ErrAlreadyRunning):
		s.logger.Debug("pass in flight, skipping tick")
	case errors.Is(err, indexer.ErrInterrupted):
		s.logger.Info("scheduled pass interrupted", zap.Uint64("last_indexed_block", res.LastIndexedBlock))
	case err != nil:
		s.logger.Error("scheduled pass failed", zap.Error(err))
	case res.Events > 0:
		s.logger.Info("scheduled pass complete",
			zap.Int("events", res.Events),
			zap.Int("batches", res.Batches),
			zap.Uint64("last_indexed_block", res.LastIndexedBlock),
		)
	}
}

func (s *Scheduler) pass(ctx context.Context, fn func(context.Context) (indexer.Result, error)) (indexer.Result, error) {
	if !s.running.CompareAndSwap(false, true) {
		return indexer.Result{}, ErrAlreadyRunning
	}
	name := string(s.indexer.Stream())
	s.metrics.SetInFlight(name, true)
	defer func() {
		s.metrics.SetInFlight(name, false)
		s.running.Store(false)
	}()

	started := time.Now().UTC()
	res, err := fn(ctx)

	s.mu.Lock()
	s.status.Passes++
	s.status.LastRunAt = &started
	s.status.LastResult = &res
	s.status.LastError = ""
	if err != nil {
		s.status.LastError = err.Error()
	}
	s.mu.Unlock()

	return res, err
}
