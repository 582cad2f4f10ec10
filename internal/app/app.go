// Package app wires configuration into a running DeepCheck server.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bryanwahyu/deepcheck/internal/application"
	appai "github.com/bryanwahyu/deepcheck/internal/application/ai"
	appscans "github.com/bryanwahyu/deepcheck/internal/application/scans"
	"github.com/bryanwahyu/deepcheck/internal/config"
	domai "github.com/bryanwahyu/deepcheck/internal/domain/ai"
	"github.com/bryanwahyu/deepcheck/internal/domain/detection"
	"github.com/bryanwahyu/deepcheck/internal/domain/journal"
	"github.com/bryanwahyu/deepcheck/internal/infra/ai/openai"
	"github.com/bryanwahyu/deepcheck/internal/infra/db/memory"
	mysqlp "github.com/bryanwahyu/deepcheck/internal/infra/db/mysql"
	"github.com/bryanwahyu/deepcheck/internal/infra/db/postgres"
	"github.com/bryanwahyu/deepcheck/internal/infra/db/sqlite"
	"github.com/bryanwahyu/deepcheck/internal/infra/detector/remote"
	"github.com/bryanwahyu/deepcheck/internal/infra/httpserver"
	minioStore "github.com/bryanwahyu/deepcheck/internal/infra/storage"
	"github.com/bryanwahyu/deepcheck/internal/middleware"
)

// memoryJournalCap bounds the in-process journal.
const memoryJournalCap = 10000

// App is a fully wired server.
type App struct {
	cfg      *config.Config
	logger   *slog.Logger
	server   *http.Server
	registry *appscans.Registry
	db       *sql.DB
}

// New builds every dependency named in cfg. Optional integrations
// (archive, explainer) are skipped when disabled.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{cfg: cfg, logger: logger}
	var deps []middleware.Dependency

	// journal
	repo, db, err := openJournal(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("journal (%s): %w", cfg.Journal.Driver, err)
	}
	a.db = db
	if db != nil {
		deps = append(deps, middleware.Dependency{Name: "journal", Check: middleware.PingDB(db)})
	}

	// detector
	detector := remote.NewClient(cfg.Detector.Endpoint, cfg.Detector.Timeout)
	deps = append(deps, middleware.Dependency{Name: "detector", Check: detector.Check, Timeout: detectorCheckTimeout})

	metrics := middleware.NewMetrics()
	clock := application.SystemClock{}

	svc := &appscans.Service{
		Detector:      detector,
		Journal:       repo,
		Metrics:       metrics,
		Clock:         clock,
		Logger:        logger,
		MinDisplay:    cfg.Detector.MinDisplay,
		RecordTimeout: cfg.Journal.Timeout,
	}

	// archive
	if cfg.Minio.Enabled {
		store, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("minio init: %w", err)
		}
		svc.Archive = store
		deps = append(deps, middleware.Dependency{Name: "archive", Check: store.Check})
	}

	// explainer
	var explainer domai.Explainer
	if cfg.OpenAI.Enabled {
		explainer = openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.BaseURL)
	}
	explain := appai.NewService(explainer, repo)

	mode := detection.ParseMode(cfg.Detector.DefaultMode, detection.DefaultMode)
	a.registry = appscans.NewRegistry(clock, cfg.Session.TTL, mode)

	handler := httpserver.NewRouter(httpserver.Options{
		Scans:          svc,
		Sessions:       a.registry,
		Explainer:      explain,
		Metrics:        metrics,
		Dependencies:   deps,
		Logger:         logger,
		MaxImageBytes:  cfg.Detector.MaxImageBytes,
		DefaultMode:    mode,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: writeTimeout(cfg.Detector.Timeout, cfg.Journal.Timeout),
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("deepcheck configured",
		"endpoint", detector.Endpoint(),
		"journal", cfg.Journal.Driver,
		"archive", cfg.Minio.Enabled,
		"explainer", explain.Enabled(),
		"default_mode", mode,
	)
	return a, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler { return a.server.Handler }

// Run serves until ctx is done, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go a.registry.Run(sweepCtx, a.cfg.Session.SweepInterval, a.logger)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	err := a.server.Shutdown(shutdownCtx)
	a.registry.CloseAll()
	return err
}

// Close releases the journal database, if any.
func (a *App) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

func openJournal(ctx context.Context, cfg *config.Config) (journal.Repository, *sql.DB, error) {
	switch strings.ToLower(cfg.Journal.Driver) {
	case "memory", "":
		return memory.NewJournalRepository(memoryJournalCap), nil, nil
	case "sqlite":
		db, err := sqlite.Connect(ctx, cfg.Journal.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return sqlite.NewJournalRepository(db), db, nil
	case "mysql":
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, nil, err
		}
		return mysqlp.NewJournalRepository(db), db, nil
	case "postgres":
		db, err := postgres.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewJournalRepository(db), db, nil
	}
	return nil, nil, fmt.Errorf("unknown driver %q", cfg.Journal.Driver)
}

// detectorCheckTimeout allows for a cold start of the hosted endpoint.
const detectorCheckTimeout = 10 * time.Second

// writeTimeout leaves room for a synchronous detect plus its archive
// upload and journal save. An unbounded detector gets no write deadline.
func writeTimeout(detector, record time.Duration) time.Duration {
	if detector <= 0 {
		return 0
	}
	return 15*time.Second + detector + 2*record
}
