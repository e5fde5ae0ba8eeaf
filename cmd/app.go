package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/oauth2"

	"github.com/praxamed/calsync/internal/calendar"
	"github.com/praxamed/calsync/internal/config"
	"github.com/praxamed/calsync/internal/match"
	"github.com/praxamed/calsync/internal/store"
	"github.com/praxamed/calsync/internal/sync"
	"github.com/praxamed/calsync/internal/token"
)

// app bundles the wired components shared by the sync and serve commands.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *store.Store
	provider  calendar.Provider
	scheduler *sync.Scheduler
}

// newApp loads configuration, connects to the database, applies pending
// migrations and wires the sync engine.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	st, err := store.Open(cfg.DB.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	oauthConf := &oauth2.Config{
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.OAuth.AuthURL,
			TokenURL: cfg.OAuth.TokenURL,
		},
		Scopes: cfg.OAuth.Scopes,
	}
	tokens := token.New(st.Accounts(), oauthConf, logger)

	retryCfg := calendar.DefaultRetryConfig()
	retryCfg.Timeout = cfg.Sync.RequestTimeout
	retryCfg.MaxTries = uint(cfg.Sync.MaxRetries)
	provider := calendar.NewRetrying(calendar.NewGoogleProvider(tokens, st.Accounts()), retryCfg)

	matcher := match.NewSubstringMatcher(st.Patients(), cfg.Sync.MatchThreshold)
	orch := sync.NewOrchestrator(st.Accounts(), st.Appointments(), tokens, provider, matcher, logger)
	scheduler := sync.NewScheduler(st.Accounts(), orch, logger)

	return &app{
		cfg:       cfg,
		logger:    logger,
		store:     st,
		provider:  provider,
		scheduler: scheduler,
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("failed to close database", slog.Any("error", err))
	}
}
