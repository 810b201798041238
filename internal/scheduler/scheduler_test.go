package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stakeScope/internal/indexer"
	"stakeScope/internal/model"
)

type fakeIndexer struct {
	syncs     atomic.Int32
	backfills atomic.Int32
	release   chan struct{}
	entered   chan struct{}
	err       error
}

func (f *fakeIndexer) Stream() model.Stream { return model.StreamDeposit }

func (f *fakeIndexer) Sync(ctx context.Context) (indexer.Result, error) {
	f.syncs.Add(1)
	return f.wait()
}

func (f *fakeIndexer) Backfill(ctx context.Context, from, to uint64) (indexer.Result, error) {
	f.backfills.Add(1)
	res, err := f.wait()
	res.From, res.To = from, to
	return res, err
}

func (f *fakeIndexer) wait() (indexer.Result, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	return indexer.Result{Batches: 1, Events: 2}, f.err
}

func TestRunOnceSurfacesError(t *testing.T) {
	boom := errors.New("boom")
	s := New(&fakeIndexer{err: boom}, nil, nil)

	_, err := s.RunOnce(context.Background())
	require.ErrorIs(t, err, boom)

	status := s.Status()
	require.Equal(t, "boom", status.LastError)
	require.EqualValues(t, 1, status.Passes)
	require.False(t, status.Running)
}

func TestGuardRejectsConcurrentPasses(t *testing.T) {
	fake := &fakeIndexer{release: make(chan struct{}), entered: make(chan struct{}, 1)}
	s := New(fake, nil, nil)

	errc := make(chan error, 1)
	go func() {
		_, err := s.RunOnce(context.Background())
		errc <- err
	}()
	<-fake.entered
	require.True(t, s.Running())

	_, err := s.RunOnce(context.Background())
	require.ErrorIs(t, err, ErrAlreadyRunning)
	_, err = s.Backfill(context.Background(), 1, 10)
	require.ErrorIs(t, err, ErrAlreadyRunning)
	require.Zero(t, fake.backfills.Load())

	close(fake.release)
	require.NoError(t, <-errc)
	require.False(t, s.Running())

	fake.entered = nil
	res, err := s.Backfill(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Equal(t, uint64(1), res.From)
	require.Equal(t, uint64(10), res.To)
}

func TestScheduleKeepsRunningAfterErrors(t *testing.T) {
	fake := &fakeIndexer{err: errors.New("rpc down")}
	s := New(fake, nil, nil)

	require.NoError(t, s.Start(context.Background(), 5*time.Millisecond))
	require.Eventually(t, func() bool { return fake.syncs.Load() >= 3 }, time.Second, time.Millisecond)
	require.True(t, s.Status().Scheduled)

	s.Stop()
	after := fake.syncs.Load()
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, after, fake.syncs.Load())
	require.False(t, s.Status().Scheduled)
}

func TestStartTwiceFails(t *testing.T) {
	s := New(&fakeIndexer{}, nil, nil)
	require.NoError(t, s.Start(context.Background(), time.Hour))
	defer s.Stop()
	require.Error(t, s.Start(context.Background(), time.Hour))
	require.Error(t, New(&fakeIndexer{}, nil, nil).Start(context.Background(), 0))
}

func TestStopWaitsForInFlightPass(t *testing.T) {
	fake := &fakeIndexer{release: make(chan struct{}), entered: make(chan struct{}, 1)}
	s := New(fake, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx, time.Hour))
	<-fake.entered
	cancel()

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("stop returned while a pass was in flight")
	case <-time.After(20 * time.Millisecond):
	}

	close(fake.release)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("stop did not return after the pass finished")
	}
	require.EqualValues(t, 1, s.Status().Passes)
}

// batchingIndexer runs batches until the pass context asks it to stop.
type batchingIndexer struct {
	batches atomic.Int32
	ctxErr  atomic.Value
}

func (b *batchingIndexer) Stream() model.Stream { return model.StreamDeposit }

func (b *batchingIndexer) Sync(ctx context.Context) (indexer.Result, error) {
	var res indexer.Result
	for {
		if err := indexer.Interrupted(ctx); err != nil {
			b.ctxErr.Store(fmt.Sprint(ctx.Err()))
			return res, err
		}
		time.Sleep(time.Millisecond)
		res.Batches++
		b.batches.Add(1)
	}
}

func (b *batchingIndexer) Backfill(ctx context.Context, from, to uint64) (indexer.Result, error) {
	return b.Sync(ctx)
}

func TestStopInterruptsLongPass(t *testing.T) {
	fake := &batchingIndexer{}
	s := New(fake, nil, nil)

	require.NoError(t, s.Start(context.Background(), time.Hour))
	require.Eventually(t, func() bool { return fake.batches.Load() >= 2 }, time.Second, time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("stop did not interrupt the pass")
	}

	status := s.Status()
	require.Equal(t, indexer.ErrInterrupted.Error(), status.LastError)
	require.NotNil(t, status.LastResult)
	require.Positive(t, status.LastResult.Batches)
	require.Equal(t, "<nil>", fake.ctxErr.Load())
}
