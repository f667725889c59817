package scheduler

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/octoradar/octoradar/cfg"
	"github.com/octoradar/octoradar/internal/githubapi"
	"github.com/octoradar/octoradar/internal/syncer"
	"github.com/octoradar/octoradar/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSyncer struct {
	mu      sync.Mutex
	calls   int32
	results []error
	block   chan struct{}
}

func (f *fakeSyncer) Sync(ctx context.Context) (*syncer.Report, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	report := &syncer.Report{RunID: "test", StartTime: time.Now(), EndTime: time.Now()}
	if int(n) <= len(f.results) && f.results[n-1] != nil {
		return report, f.results[n-1]
	}
	return report, nil
}

func (f *fakeSyncer) callCount() int {
	return int(atomic.LoadInt32(&f.calls))
}

func newTestScheduler(t *testing.T, s syncer.Syncer) *Scheduler {
	t.Helper()

	loader, err := cfg.NewMockLoader()
	require.NoError(t, err)
	config, err := loader.Load()
	require.NoError(t, err)

	logger, err := log.NewCslLoggerWithLevel("critical")
	require.NoError(t, err)

	sched, err := NewScheduler(logger, config, s)
	require.NoError(t, err)

	sched.Interval = time.Millisecond
	sched.RetryMaxElapsed = 10 * time.Millisecond
	sched.RetryInitialInterval = time.Millisecond
	return sched
}

func TestRunStopsOnContextCancel(t *testing.T) {
	fake := &fakeSyncer{}
	sched := newTestScheduler(t, fake)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := sched.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, fake.callCount(), 1)
}

func TestRunExitsAfterConsecutiveFailures(t *testing.T) {
	boom := errors.New("boom")
	fake := &fakeSyncer{results: []error{boom, boom, boom}}
	sched := newTestScheduler(t, fake)
	sched.MaxConsecutiveErrors = 3

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := sched.Run(ctx)
	require.ErrorIs(t, err, ErrTooManyFailures)
	assert.Equal(t, 3, fake.callCount())
}

func TestRunResetsFailureCountAfterSuccess(t *testing.T) {
	boom := errors.New("boom")
	// fail, succeed, fail: never two consecutive failures.
	fake := &fakeSyncer{results: []error{boom, nil, boom, nil}}
	sched := newTestScheduler(t, fake)
	sched.MaxConsecutiveErrors = 2

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := sched.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, fake.callCount(), 4)
}

func TestRetriesTransientApiErrors(t *testing.T) {
	transient := &githubapi.ApiError{StatusCode: http.StatusBadGateway, URL: "https://api.github.com/user/orgs"}
	fake := &fakeSyncer{results: []error{transient, transient}}
	sched := newTestScheduler(t, fake)
	sched.RetryMaxElapsed = time.Second

	report, err := sched.TriggerNow(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, 3, fake.callCount())
}

func TestDoesNotRetryPermanentErrors(t *testing.T) {
	permanent := &githubapi.ApiError{StatusCode: http.StatusUnauthorized, URL: "https://api.github.com/user/orgs"}
	fake := &fakeSyncer{results: []error{permanent}}
	sched := newTestScheduler(t, fake)

	_, err := sched.TriggerNow(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, fake.callCount())
}

func TestTriggerNowRefusesOverlap(t *testing.T) {
	block := make(chan struct{})
	fake := &fakeSyncer{block: block}
	sched := newTestScheduler(t, fake)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = sched.TriggerNow(context.Background())
	}()

	// Wait for the first run to be in flight.
	require.Eventually(t, sched.IsRunning, time.Second, time.Millisecond)

	_, err := sched.TriggerNow(context.Background())
	require.ErrorIs(t, err, ErrSyncInProgress)

	close(block)
	<-done
	assert.False(t, sched.IsRunning())
}

func TestLastReportIsRecorded(t *testing.T) {
	fake := &fakeSyncer{}
	sched := newTestScheduler(t, fake)

	require.Nil(t, sched.LastReport())

	report, err := sched.TriggerNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, report, sched.LastReport())
}
