package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ledgersweep/ledgersweep/internal/core"
)

func TestQueuePacesCompletions(t *testing.T) {
	const delay = 150 * time.Millisecond
	queue := NewQueue(core.ThrottleConfig{DelayBetweenRequests: delay})

	var (
		mu          sync.Mutex
		completions []time.Time
	)

	pending := make([]*Pending, 0, 5)
	for i := 0; i < 5; i++ {
		pending = append(pending, queue.Submit(context.Background(), func(ctx context.Context) (any, error) {
			mu.Lock()
			completions = append(completions, time.Now())
			mu.Unlock()
			return nil, nil
		}))
	}

	for _, p := range pending {
		_, err := p.Wait(context.Background())
		require.NoError(t, err)
	}

	require.Len(t, completions, 5)
	for i := 1; i < len(completions); i++ {
		gap := completions[i].Sub(completions[i-1])
		require.GreaterOrEqual(t, gap, delay, "completion %d came %s after the previous one", i, gap)
	}
}

func TestQueuePreservesFIFOOrder(t *testing.T) {
	queue := NewQueue(core.ThrottleConfig{DelayBetweenRequests: time.Millisecond})

	var (
		mu    sync.Mutex
		order []int
	)

	pending := make([]*Pending, 0, 20)
	for i := 0; i < 20; i++ {
		i := i
		pending = append(pending, queue.Submit(context.Background(), func(ctx context.Context) (any, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return i, nil
		}))
	}

	for i, p := range pending {
		value, err := p.Wait(context.Background())
		require.NoError(t, err)
		require.Equal(t, i, value)
	}

	expected := make([]int, 20)
	for i := range expected {
		expected[i] = i
	}
	require.Equal(t, expected, order)
}

func TestQueueNeverRunsConcurrently(t *testing.T) {
	queue := NewQueue(core.ThrottleConfig{})

	var (
		active  int32
		overlap int32
		wg      sync.WaitGroup
	)

	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Do(context.Background(), queue, func(ctx context.Context) (struct{}, error) {
				if atomic.AddInt32(&active, 1) > 1 {
					atomic.StoreInt32(&overlap, 1)
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&active, -1)
				return struct{}{}, nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Zero(t, atomic.LoadInt32(&overlap))
}

func TestQueueContinuesAfterFailure(t *testing.T) {
	queue := NewQueue(core.ThrottleConfig{DelayBetweenRequests: time.Millisecond})
	boom := errors.New("boom")

	failing := queue.Submit(context.Background(), func(ctx context.Context) (any, error) {
		return nil, boom
	})
	panicking := queue.Submit(context.Background(), func(ctx context.Context) (any, error) {
		panic("unexpected")
	})
	healthy := queue.Submit(context.Background(), func(ctx context.Context) (any, error) {
		return "ok", nil
	})

	_, err := failing.Wait(context.Background())
	require.ErrorIs(t, err, boom)

	_, err = panicking.Wait(context.Background())
	require.ErrorContains(t, err, "queued work panicked")

	value, err := healthy.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ok", value)
}

func TestQueueWithdrawsCancelledWork(t *testing.T) {
	queue := NewQueue(core.ThrottleConfig{})

	release := make(chan struct{})
	started := make(chan struct{})
	blocker := queue.Submit(context.Background(), func(ctx context.Context) (any, error) {
		close(started)
		<-release
		return "first", nil
	})
	<-started

	var ran int32
	ctx, cancel := context.WithCancel(context.Background())
	queued := queue.Submit(ctx, func(ctx context.Context) (any, error) {
		atomic.StoreInt32(&ran, 1)
		return nil, nil
	})
	require.Equal(t, 1, queue.Len())

	cancel()
	_, err := queued.Wait(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, queue.Len())

	close(release)
	value, err := blocker.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, "first", value)

	// Work submitted afterwards still runs.
	value, err = Do(context.Background(), queue, func(ctx context.Context) (string, error) {
		return "after", nil
	})
	require.NoError(t, err)
	require.Equal(t, "after", value)
	require.Zero(t, atomic.LoadInt32(&ran))
}

func TestQueueRequestsPerMinuteCeiling(t *testing.T) {
	// 1200 rpm is one request every 50ms.
	queue := NewQueue(core.ThrottleConfig{RequestsPerMinute: 1200})

	var starts []time.Time
	for i := 0; i < 3; i++ {
		_, err := Do(context.Background(), queue, func(ctx context.Context) (struct{}, error) {
			starts = append(starts, time.Now())
			return struct{}{}, nil
		})
		require.NoError(t, err)
	}

	require.GreaterOrEqual(t, starts[2].Sub(starts[0]), 90*time.Millisecond)
}
