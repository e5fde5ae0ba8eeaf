package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/praxamed/calsync/internal/logging"
	"github.com/praxamed/calsync/internal/store"
)

// Runner executes one synchronization pass for one account.
type Runner interface {
	Run(ctx context.Context, accountID string) (*Result, error)
}

// RunReport is the per-account outcome of a scheduler pass.
type RunReport struct {
	AccountID string  `json:"accountId"`
	Success   bool    `json:"success"`
	Error     string  `json:"error,omitempty"`
	Result    *Result `json:"result,omitempty"`
}

// Scheduler iterates all sync-enabled accounts and runs the orchestrator for
// each, isolating failures per account. Concurrent triggers for the same
// account coalesce into a single run, which keeps the de-duplication
// invariant safe from double imports.
type Scheduler struct {
	accounts store.AccountRepository
	runner   Runner
	logger   *slog.Logger

	group singleflight.Group
}

// NewScheduler creates a scheduler over the given account repository.
func NewScheduler(accounts store.AccountRepository, runner Runner, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{accounts: accounts, runner: runner, logger: logger}
}

// RunAccount runs a single account, coalescing with any run of the same
// account already in flight.
func (s *Scheduler) RunAccount(ctx context.Context, accountID string) (*Result, error) {
	v, err, _ := s.group.Do(accountID, func() (any, error) {
		return s.runner.Run(ctx, accountID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

// RunAll runs every sync-enabled account. One account's failure is recorded
// and does not prevent the remaining accounts from running. Cancellation is
// honored at account boundaries: the current account finishes, the rest are
// abandoned.
func (s *Scheduler) RunAll(ctx context.Context) ([]RunReport, error) {
	accounts, err := s.accounts.ListSyncEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync-enabled accounts: %w", err)
	}

	reports := make([]RunReport, 0, len(accounts))
	for _, acc := range accounts {
		if ctx.Err() != nil {
			return reports, ctx.Err()
		}

		res, err := s.RunAccount(ctx, acc.ID)
		if err != nil {
			s.logger.Error("account sync failed", logging.Account(acc.ID), logging.Err(err))
			reports = append(reports, RunReport{AccountID: acc.ID, Success: false, Error: err.Error()})
			continue
		}
		reports = append(reports, RunReport{AccountID: acc.ID, Success: res.Success, Result: res})
	}
	return reports, nil
}

// RunEvery runs scheduler passes at the given interval until the context is
// cancelled. The first pass runs immediately.
func (s *Scheduler) RunEvery(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		reports, err := s.RunAll(ctx)
		if err != nil && ctx.Err() == nil {
			s.logger.Error("scheduler pass failed", logging.Err(err))
		} else {
			s.logger.Info("scheduler pass finished", slog.Int("accounts", len(reports)))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
