package jobmgr

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartAsyncRejectsDuplicates(t *testing.T) {
	jm := NewManager(context.Background())
	block := make(chan struct{})

	require.NoError(t, jm.StartAsync("a", func(ctx context.Context) error {
		<-block
		return nil
	}))
	err := jm.StartAsync("a", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrJobRunning)
	assert.Equal(t, []string{"a"}, jm.List())
	assert.Equal(t, "Running jobs: a", jm.Status())

	close(block)
	jm.Wait()
	assert.Empty(t, jm.List())
	assert.Equal(t, "No jobs are running.", jm.Status())
}

func TestStopCancelsAndWaits(t *testing.T) {
	jm := NewManager(context.Background())
	var exited atomic.Bool

	require.NoError(t, jm.StartAsync("loop", func(ctx context.Context) error {
		<-ctx.Done()
		exited.Store(true)
		return ctx.Err()
	}))
	require.NoError(t, jm.Stop("loop"))
	assert.True(t, exited.Load())
	assert.ErrorIs(t, jm.Stop("loop"), ErrJobNotRunning)
}

func TestEveryKeepsRunningAfterErrors(t *testing.T) {
	jm := NewManager(context.Background())
	var ticks atomic.Int32

	require.NoError(t, jm.Every("tick", 5*time.Millisecond, func(ctx context.Context) error {
		if ticks.Add(1)%2 == 0 {
			panic("boom")
		}
		return errors.New("flaky")
	}))
	assert.Eventually(t, func() bool { return ticks.Load() >= 4 }, time.Second, 5*time.Millisecond)
	require.NoError(t, jm.Stop("tick"))
}

func TestParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	jm := NewManager(ctx)
	require.NoError(t, jm.Every("tick", time.Hour, func(ctx context.Context) error { return nil }))

	cancel()
	jm.Wait()
	assert.Empty(t, jm.List())
}
