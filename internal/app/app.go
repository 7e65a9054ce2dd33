// Package app wires a workspace into a ready engine and orchestrator.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"disruptline/internal/config"
	"disruptline/internal/coordination"
	"disruptline/internal/db"
	"disruptline/internal/engine"
	"disruptline/internal/logging"
	"disruptline/internal/migrate"
	"disruptline/internal/reasoning"
)

// Options controls how a workspace is opened.
type Options struct {
	Workspace string
	// Config overrides the workspace disruptline.yml when set.
	Config *config.Config
	// Logger overrides the configured logger when set.
	Logger *zap.Logger
	Now    func() time.Time
}

// App holds the collaborators for one open workspace.
type App struct {
	DB           *sql.DB
	Config       *config.Config
	Logger       *zap.Logger
	Engine       engine.Engine
	Orchestrator coordination.Orchestrator
}

// Open ensures the workspace exists, migrates the ledger and builds the
// engine and orchestrator on top of it.
func Open(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		var err error
		cfg, err = config.LoadOptional(opts.Workspace)
		if err != nil {
			return nil, err
		}
	}
	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = logging.New(cfg.Logging)
		if err != nil {
			return nil, err
		}
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}
	if v, err := migrate.Version(ctx, conn); err == nil {
		logger.Debug("ledger ready", zap.String("path", db.Path(opts.Workspace)), zap.Int("schema_version", v))
	}

	e := engine.New(conn, logger)
	if opts.Now != nil {
		e.Now = opts.Now
	}
	history := e.Ledger
	history.Now = e.Now

	deps := coordination.Deps{
		Cases:   e,
		History: history,
		Results: e.Repo,
		Logger:  logger,
		Now:     opts.Now,
	}
	if strings.TrimSpace(cfg.Reasoning.Endpoint) != "" {
		deps.Reasoner = reasoning.NewClient(cfg.Reasoning)
	} else {
		logger.Info("reasoning endpoint not configured, root-cause synthesis uses the fallback")
	}
	return &App{
		DB:           conn,
		Config:       cfg,
		Logger:       logger,
		Engine:       e,
		Orchestrator: coordination.New(*cfg, deps),
	}, nil
}

// Close flushes the logger and closes the ledger.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	// Sync on stderr fails with EINVAL on linux; nothing to report.
	_ = a.Logger.Sync()
	return a.DB.Close()
}
