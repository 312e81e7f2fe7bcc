package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jkaninda/sindano/internal/config"
	"github.com/jkaninda/sindano/internal/engine"
	"github.com/jkaninda/sindano/internal/observability"
	"github.com/jkaninda/sindano/internal/sandbox"
	"github.com/jkaninda/sindano/internal/store"
	pgstore "github.com/jkaninda/sindano/internal/store/postgres"
	sqlitestore "github.com/jkaninda/sindano/internal/store/sqlite"
	"github.com/jkaninda/sindano/internal/workspace"
)

// SharedComponents holds all initialized subsystems the commands require.
// Built once by initShared, torn down by Cleanup.
type SharedComponents struct {
	Config    *config.Config
	Logger    *slog.Logger
	Workspace *workspace.Workspace
	Store     store.Store // nil when documents come from the filesystem.
	Engine    *engine.Engine
	Obs       *observability.Observability

	cleanups []func()
}

// Cleanup runs all deferred cleanup functions in reverse order.
func (sc *SharedComponents) Cleanup() {
	for i := len(sc.cleanups) - 1; i >= 0; i-- {
		sc.cleanups[i]()
	}
}

func (sc *SharedComponents) addCleanup(fn func()) {
	sc.cleanups = append(sc.cleanups, fn)
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// initShared performs the common initialization all commands share.
// Callers must call sc.Cleanup() when done.
func initShared(cfg *config.Config, logger *slog.Logger) (*SharedComponents, error) {
	sc := &SharedComponents{
		Config: cfg,
		Logger: logger,
	}

	// Workspace.
	ws, err := initWorkspace(cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing workspace: %w", err)
	}
	sc.Workspace = ws
	logger.Debug("workspace initialized", slog.String("root", ws.Root))

	// Observability.
	obs, err := observability.New(cfg.Observability, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing observability: %w", err)
	}
	sc.Obs = obs
	sc.addCleanup(func() {
		if obs != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			obs.Shutdown(shutdownCtx)
		}
	})
	if obs != nil {
		logger.Debug("observability initialized",
			slog.Bool("metrics", obs.Registry != nil),
			slog.Bool("tracing", obs.Tracer != nil),
		)
	}

	// Document source and audit recorder. Without a storage backend,
	// documents come from the workspace documents directory and no audit
	// records are persisted.
	var source engine.DocumentSource
	var recorder engine.RunRecorder

	if cfg.Storage != nil {
		dbStore, err := initStore(cfg, ws, logger)
		if err != nil {
			sc.Cleanup()
			return nil, fmt.Errorf("initializing storage: %w", err)
		}
		sc.Store = dbStore
		sc.addCleanup(func() {
			if err := dbStore.Close(); err != nil {
				logger.Error("closing store", slog.String("error", err.Error()))
			}
		})

		if err := dbStore.Migrate(context.Background()); err != nil {
			sc.Cleanup()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
		logger.Debug("storage initialized", slog.String("driver", dbStore.Driver()))

		source = dbStore
		recorder = dbStore
	} else {
		fsStore, err := store.NewFSStore(ws.DocumentsDir(), logger)
		if err != nil {
			sc.Cleanup()
			return nil, fmt.Errorf("initializing document store: %w", err)
		}
		source = fsStore
		logger.Debug("document store initialized", slog.String("root", fsStore.Root()))
	}

	// Sandbox.
	sbx := sandbox.NewJSSandbox(sandbox.JSConfig{
		DefaultTimeout: cfg.Engine.DefaultTimeout(),
		MaxOutputBytes: cfg.Engine.MaxOutputBytes(),
	}, logger)
	logger.Debug("sandbox initialized",
		slog.Duration("default_timeout", cfg.Engine.DefaultTimeout()),
		slog.Int("max_output_bytes", cfg.Engine.MaxOutputBytes()),
	)

	// Engine.
	eng := engine.New(source, sbx, engine.Config{
		DefaultTimeout: cfg.Engine.DefaultTimeout(),
	}, logger)
	if recorder != nil {
		eng.WithRunRecorder(recorder)
	}
	if obs != nil && obs.Registry != nil {
		eng.WithMetrics(engine.NewMetrics(obs.Registry))
	}
	if obs != nil && obs.Tracer != nil {
		eng.WithTracer(obs.Tracer.Tracer())
	}
	sc.Engine = eng

	return sc, nil
}

// initWorkspace creates and returns the workspace, resolving the root from config or defaults.
func initWorkspace(cfg *config.Config) (*workspace.Workspace, error) {
	root := cfg.Workspace
	if root == "" {
		return workspace.Default()
	}
	return workspace.New(root)
}

// initStore creates the appropriate storage backend from config.
func initStore(cfg *config.Config, ws *workspace.Workspace, logger *slog.Logger) (store.Store, error) {
	driver := cfg.Storage.StorageDriver()

	switch driver {
	case "postgres":
		return initPostgresStore(cfg, logger)
	case "sqlite":
		return initSQLiteStore(cfg, ws, logger)
	default:
		return nil, fmt.Errorf("unknown storage driver: %q", driver)
	}
}

func initSQLiteStore(cfg *config.Config, ws *workspace.Workspace, logger *slog.Logger) (store.Store, error) {
	dbPath := ws.DatabasePath()
	journalMode := "wal"

	if cfg.Storage.SQLite != nil {
		if cfg.Storage.SQLite.Path != "" {
			dbPath = cfg.Storage.SQLite.Path
		}
		if cfg.Storage.SQLite.JournalMode != "" {
			journalMode = cfg.Storage.SQLite.JournalMode
		}
	}

	return sqlitestore.Open(sqlitestore.Config{
		Path:        dbPath,
		JournalMode: journalMode,
	}, logger)
}

func initPostgresStore(cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	var dsn string
	if cfg.Storage.Postgres != nil {
		dsn = cfg.Storage.Postgres.DSN
	}
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required (set storage.postgres.dsn or SINDANO_DB_DSN)")
	}

	pgCfg := pgstore.Config{DSN: dsn}
	if cfg.Storage.Postgres != nil {
		pgCfg.MaxOpenConns = cfg.Storage.Postgres.MaxOpenConns
		pgCfg.MaxIdleConns = cfg.Storage.Postgres.MaxIdleConns
		pgCfg.ConnMaxLifetimeS = cfg.Storage.Postgres.ConnMaxLifetimeS
	}

	return pgstore.Open(pgCfg, logger)
}
