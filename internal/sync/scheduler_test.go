package sync

import (
	"context"
	"errors"
	"log/slog"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxamed/calsync/internal/store"
	"github.com/praxamed/calsync/internal/store/storetest"
)

// stubRunner scripts per-account outcomes and counts invocations.
type stubRunner struct {
	mu      gosync.Mutex
	results map[string]*Result
	errs    map[string]error
	calls   map[string]int

	// block, when set, holds every Run until released.
	block chan struct{}
}

func newStubRunner() *stubRunner {
	return &stubRunner{
		results: make(map[string]*Result),
		errs:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

func (r *stubRunner) Run(_ context.Context, accountID string) (*Result, error) {
	r.mu.Lock()
	r.calls[accountID]++
	block := r.block
	r.mu.Unlock()

	if block != nil {
		<-block
	}
	if err := r.errs[accountID]; err != nil {
		return nil, err
	}
	if res, ok := r.results[accountID]; ok {
		return res, nil
	}
	return &Result{AccountID: accountID, Success: true}, nil
}

func (r *stubRunner) callCount(accountID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[accountID]
}

func TestRunAllIsolatesAccountFailures(t *testing.T) {
	fake := storetest.New()
	a := fake.AddAccount(store.CalendarAccount{UserID: "u1", SyncEnabled: true})
	b := fake.AddAccount(store.CalendarAccount{UserID: "u2", SyncEnabled: true})
	fake.AddAccount(store.CalendarAccount{UserID: "u3", SyncEnabled: false})

	runner := newStubRunner()
	runner.errs[a.ID] = errors.New("token refresh failed")

	sched := NewScheduler(fake.Accounts(), runner, slog.New(slog.DiscardHandler))
	reports, err := sched.RunAll(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 2, "disabled accounts are not scheduled")

	byID := make(map[string]RunReport, len(reports))
	for _, rep := range reports {
		byID[rep.AccountID] = rep
	}
	assert.False(t, byID[a.ID].Success)
	assert.Contains(t, byID[a.ID].Error, "token refresh failed")
	assert.True(t, byID[b.ID].Success)
	require.NotNil(t, byID[b.ID].Result)
	assert.Equal(t, 1, runner.callCount(b.ID), "one account's failure must not skip the rest")
}

func TestRunAllListFailure(t *testing.T) {
	fake := storetest.New()
	fake.Errs["ListSyncEnabled"] = errors.New("connection refused")

	sched := NewScheduler(fake.Accounts(), newStubRunner(), slog.New(slog.DiscardHandler))
	reports, err := sched.RunAll(context.Background())
	require.Error(t, err)
	assert.Nil(t, reports)
}

func TestRunAllStopsAtAccountBoundaryOnCancel(t *testing.T) {
	fake := storetest.New()
	fake.AddAccount(store.CalendarAccount{UserID: "u1", SyncEnabled: true})
	fake.AddAccount(store.CalendarAccount{UserID: "u2", SyncEnabled: true})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sched := NewScheduler(fake.Accounts(), newStubRunner(), slog.New(slog.DiscardHandler))
	reports, err := sched.RunAll(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, reports)
}

func TestRunAccountCoalescesConcurrentTriggers(t *testing.T) {
	fake := storetest.New()
	acc := fake.AddAccount(store.CalendarAccount{UserID: "u1", SyncEnabled: true})

	runner := newStubRunner()
	runner.block = make(chan struct{})
	runner.results[acc.ID] = &Result{AccountID: acc.ID, Success: true, ImportedCount: 3}

	sched := NewScheduler(fake.Accounts(), runner, slog.New(slog.DiscardHandler))

	const triggers = 4
	results := make(chan *Result, triggers)
	var wg gosync.WaitGroup
	for i := 0; i < triggers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := sched.RunAccount(context.Background(), acc.ID)
			if !assert.NoError(t, err) {
				return
			}
			results <- res
		}()
	}

	// Let every goroutine reach the in-flight run before releasing it.
	require.Eventually(t, func() bool {
		return runner.callCount(acc.ID) >= 1
	}, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(runner.block)
	wg.Wait()
	close(results)

	for res := range results {
		assert.Equal(t, 3, res.ImportedCount)
	}
	assert.Equal(t, 1, runner.callCount(acc.ID), "concurrent triggers for one account share a single run")
}
