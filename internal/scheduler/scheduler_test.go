package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddJob_RejectsBadSchedule(t *testing.T) {
	s := New(zerolog.Nop(), 0)
	job := JobFunc{JobName: "noop", Fn: func(context.Context) error { return nil }}

	assert.Error(t, s.AddJob("", job))
	assert.Error(t, s.AddJob("not a schedule", job))
	assert.NoError(t, s.AddJob("@daily", job))
	assert.NoError(t, s.AddJob("0 2 * * *", job))
}

func TestRunNow_PropagatesError(t *testing.T) {
	s := New(zerolog.Nop(), 0)
	boom := errors.New("boom")
	err := s.RunNow(JobFunc{JobName: "fail", Fn: func(context.Context) error { return boom }})
	assert.ErrorIs(t, err, boom)
}

func TestRunNow_AppliesTimeout(t *testing.T) {
	s := New(zerolog.Nop(), 20*time.Millisecond)
	err := s.RunNow(JobFunc{JobName: "slow", Fn: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestScheduledJobRunsAndStopCancels(t *testing.T) {
	s := New(zerolog.Nop(), 0)
	ran := make(chan struct{}, 1)
	require.NoError(t, s.AddJob("@every 1s", JobFunc{JobName: "tick", Fn: func(ctx context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}}))

	s.Start()
	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduled job did not run")
	}
	s.Stop()
	assert.Error(t, s.ctx.Err())
}
