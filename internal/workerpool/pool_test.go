package workerpool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitAndShutdown(t *testing.T) {
	p := New(2, 10)
	var count atomic.Int32

	for i := 0; i < 5; i++ {
		require.NoError(t, p.Submit(func(context.Context) { count.Add(1) }))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))

	assert.Equal(t, int32(5), count.Load())
	assert.Equal(t, int64(5), p.Stats().Completed)
}

func TestSubmitAfterShutdown(t *testing.T) {
	p := New(1, 1)
	require.NoError(t, p.Shutdown(context.Background()))

	assert.ErrorIs(t, p.Submit(func(context.Context) {}), ErrStopped)
	assert.Equal(t, int64(1), p.Stats().Rejected)

	// second shutdown is a no-op
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestQueueFull(t *testing.T) {
	p := New(1, 1)
	blocker := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, p.Submit(func(context.Context) {
		close(started)
		<-blocker
	}))
	<-started
	require.NoError(t, p.Submit(func(context.Context) {}))

	assert.ErrorIs(t, p.Submit(func(context.Context) {}), ErrQueueFull)

	close(blocker)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))
}

func TestPanicIsRecovered(t *testing.T) {
	p := New(1, 4)
	var ran atomic.Bool

	require.NoError(t, p.Submit(func(context.Context) { panic("boom") }))
	require.NoError(t, p.Submit(func(context.Context) { ran.Store(true) }))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))

	assert.True(t, ran.Load())
	assert.Equal(t, int64(1), p.Stats().Panicked)
}

func TestShutdownTimeoutCancelsJobs(t *testing.T) {
	p := New(1, 1)
	cancelled := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, p.Submit(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(cancelled)
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Shutdown(ctx), context.DeadlineExceeded)

	select {
	case <-cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("job context was not cancelled")
	}
}

func TestNewClampsSizes(t *testing.T) {
	p := New(0, -3)
	s := p.Stats()
	assert.Equal(t, 1, s.Workers)
	assert.Equal(t, 1, s.QueueSize)
	require.NoError(t, p.Shutdown(context.Background()))
}
