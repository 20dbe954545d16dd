// Package app wires configuration, logging, storage, and the pipeline into
// one application object for the CLI.
package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/daverage/planfact/internal/config"
	"github.com/daverage/planfact/internal/evidence"
	"github.com/daverage/planfact/internal/logging"
	"github.com/daverage/planfact/internal/pipeline"
	"github.com/daverage/planfact/internal/storage"
	"github.com/daverage/planfact/internal/suggest"
	"github.com/daverage/planfact/internal/verify"
)

// CoreModule holds the cross-cutting application components.
type CoreModule struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *storage.DB
}

// App holds the assembled application.
type App struct {
	Core     CoreModule
	Evidence *evidence.Service
	Pipeline *pipeline.Runner
	Ctx      context.Context
	Cancel   context.CancelFunc
}

// NewApp initializes the application for the given data directory. An empty
// dataDir falls back to the default under the user's home.
func NewApp(dataDir string) (*App, error) {
	return newApp(dataDir, false)
}

// NewQuietApp logs to file only; used by commands that print machine-readable
// output on stdout.
func NewQuietApp(dataDir string) (*App, error) {
	return newApp(dataDir, true)
}

func newApp(dataDir string, quiet bool) (*App, error) {
	cfg, err := config.Load(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	var logger *zap.Logger
	if quiet {
		logger, err = logging.NewFileOnlyLogger(cfg.LogLevel, cfg.LogFile)
	} else {
		logger, err = logging.NewLogger(cfg.LogLevel, cfg.LogFile)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	db, err := storage.NewDB(cfg.DBPath)
	if err != nil {
		logger.Error("failed to initialize database", zap.Error(err))
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	evidenceService := evidence.NewService(db, logger)

	var assigner *suggest.AutoAssigner
	if cfg.SuggestEnabled {
		client := suggest.NewClient(cfg.SuggestBaseURL, cfg.SuggestAPIKey, cfg.SuggestModel,
			time.Duration(cfg.SuggestTimeoutSeconds)*time.Second)
		assigner = suggest.NewAutoAssigner(client, logger, cfg.PatternMinConfidence)
		logger.Info("suggestion service enabled",
			zap.String("base_url", cfg.SuggestBaseURL),
			zap.String("model", cfg.SuggestModel))
	}

	runner := pipeline.NewRunner(db, evidenceService, logger, pipeline.Options{
		Thresholds: verify.Thresholds{
			DistractionMinutes:    cfg.DistractionMinutes,
			VerifiedCoverage:      cfg.VerifiedCoverage,
			PartialCoverage:       cfg.PartialCoverage,
			ContradictionCoverage: cfg.ContradictionCoverage,
			MinGapMinutes:         cfg.MinGapMinutes,
		},
		PatternMinConfidence:  cfg.PatternMinConfidence,
		AnomalySlotConfidence: cfg.AnomalySlotConfidence,
		Assigner:              assigner,
	})

	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		Core: CoreModule{
			Config: cfg,
			Logger: logger,
			DB:     db,
		},
		Evidence: evidenceService,
		Pipeline: runner,
		Ctx:      ctx,
		Cancel:   cancel,
	}, nil
}

// Close gracefully shuts down the application resources.
func (a *App) Close() {
	if a.Cancel != nil {
		a.Cancel()
	}

	if a.Core.DB != nil {
		if err := a.Core.DB.Close(); err != nil {
			a.Core.Logger.Error("failed to close database connection", zap.Error(err))
		}
	}
	if a.Core.Logger != nil {
		if err := a.Core.Logger.Sync(); err != nil {
			if !strings.Contains(err.Error(), "invalid argument") &&
				!strings.Contains(err.Error(), "bad file descriptor") &&
				!strings.Contains(err.Error(), "inappropriate ioctl for device") {
				fmt.Fprintf(os.Stderr, "error syncing logger: %v\n", err)
			}
		}
	}
}

// ContextWithLogger returns a new context carrying the application's logger.
func (a *App) ContextWithLogger(ctx context.Context) context.Context {
	return logging.ContextWithLogger(ctx, a.Core.Logger)
}

// LoggerFromContext retrieves the logger from the context, or falls back to
// the app logger.
func (a *App) LoggerFromContext(ctx context.Context) *zap.Logger {
	if logger, ok := logging.LoggerFromContext(ctx); ok {
		return logger
	}
	return a.Core.Logger
}
