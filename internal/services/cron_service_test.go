package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSweeper struct {
	mu          sync.Mutex
	expireCalls int
	noShowCalls int
	noShowDate  time.Time
	err         error
}

func (f *fakeSweeper) ExpireStaleCashBookings(ctx context.Context, now time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expireCalls++
	return 2, f.err
}

func (f *fakeSweeper) MarkNoShows(ctx context.Context, before time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.noShowCalls++
	f.noShowDate = before
	return 1, f.err
}

func (f *fakeSweeper) Today() time.Time {
	return time.Date(2026, 10, 21, 0, 0, 0, 0, time.UTC)
}

func TestCronService_RunNow(t *testing.T) {
	sweeper := &fakeSweeper{}
	svc := NewCronService(sweeper, CronSchedule{CashExpiry: "0 * * * * *", NoShows: "0 30 23 * * *"}, nil, quietLogger())

	run, err := svc.RunNow(JobCashExpiry)
	require.NoError(t, err)
	assert.Equal(t, 2, run.Affected)
	assert.Empty(t, run.Error)

	run, err = svc.RunNow(JobNoShows)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Affected)
	assert.Equal(t, sweeper.Today(), sweeper.noShowDate)

	_, err = svc.RunNow("reindex")
	assert.Error(t, err)

	sweeper.err = errors.New("db down")
	run, err = svc.RunNow(JobCashExpiry)
	require.NoError(t, err)
	assert.Equal(t, "db down", run.Error)

	status := svc.GetJobStatus()
	require.Len(t, status, 2)
	assert.Equal(t, JobCashExpiry, status[0].Name)
	require.NotNil(t, status[0].LastRun)
	assert.Equal(t, "db down", status[0].LastRun.Error)
	assert.True(t, status[0].NextRun.IsZero())
}

func TestCronService_StartStop(t *testing.T) {
	svc := NewCronService(&fakeSweeper{}, CronSchedule{CashExpiry: "0 * * * * *", NoShows: "0 30 23 * * *"}, time.UTC, quietLogger())
	require.NoError(t, svc.Start())
	defer svc.Stop()

	for _, job := range svc.GetJobStatus() {
		assert.False(t, job.NextRun.IsZero(), job.Name)
	}
}

func TestCronService_BadSpec(t *testing.T) {
	svc := NewCronService(&fakeSweeper{}, CronSchedule{CashExpiry: "every minute", NoShows: "0 30 23 * * *"}, time.UTC, quietLogger())
	assert.Error(t, svc.Start())
}
