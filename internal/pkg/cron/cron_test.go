package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterValidates(t *testing.T) {
	s := New(nil)
	require.Error(t, s.Register(Job{Name: "x", Interval: time.Second}))
	require.Error(t, s.Register(Job{Name: "x", Fn: func(context.Context) error { return nil }}))

	job := Job{Name: "x", Interval: time.Second, Fn: func(context.Context) error { return nil }}
	require.NoError(t, s.Register(job))
	require.Error(t, s.Register(job), "duplicate names are refused")
}

func TestRunRecordsStatus(t *testing.T) {
	s := New(nil)
	fail := true
	require.NoError(t, s.Register(Job{
		Name:     "prune",
		Interval: time.Hour,
		Fn: func(context.Context) error {
			if fail {
				return errors.New("boom")
			}
			return nil
		},
	}))

	require.Error(t, s.Run(context.Background(), "prune"))
	items := s.List()
	require.Len(t, items, 1)
	assert.Equal(t, StatusReject, items[0].Status)
	assert.Equal(t, "boom", items[0].Message)
	require.NotNil(t, items[0].LastRunAt)

	fail = false
	require.NoError(t, s.Run(context.Background(), "prune"))
	assert.Equal(t, StatusFulfill, s.List()[0].Status)

	require.Error(t, s.Run(context.Background(), "missing"))
}

func TestStartRunsUntilCancelled(t *testing.T) {
	s := New(nil)
	var runs atomic.Int32
	require.NoError(t, s.Register(Job{
		Name:     "tick",
		Interval: 10 * time.Millisecond,
		Fn: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	require.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	s.Wait()

	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, runs.Load())
}

func TestRunTimeout(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Register(Job{
		Name:     "slow",
		Interval: time.Hour,
		Timeout:  10 * time.Millisecond,
		Fn: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}))
	err := s.Run(context.Background(), "slow")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
