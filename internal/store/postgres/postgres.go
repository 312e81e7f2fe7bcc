// Package postgres implements the unified Store interface with PostgreSQL
// via GORM. The SQLite backend reuses the models and repository logic
// defined here — only the driver and DSN handling differ.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jkaninda/sindano/internal/domain"
	"github.com/jkaninda/sindano/internal/store"
)

// Config holds PostgreSQL-specific settings.
type Config struct {
	DSN              string
	MaxOpenConns     int // Default: 25
	MaxIdleConns     int // Default: 5
	ConnMaxLifetimeS int // Default: 1800 (30 min)
}

// Store implements store.Store backed by GORM.
type Store struct {
	db     *gorm.DB
	driver string
	logger *slog.Logger
}

// Open creates a PostgreSQL-backed Store.
func Open(cfg Config, slogger *slog.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: NewGormLogger(slogger),
	})
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrapping sql.DB: %w", err)
	}
	maxOpen := cfg.MaxOpenConns
	if maxOpen == 0 {
		maxOpen = 25
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle == 0 {
		maxIdle = 5
	}
	lifetime := cfg.ConnMaxLifetimeS
	if lifetime == 0 {
		lifetime = 1800
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(time.Duration(lifetime) * time.Second)

	return NewWithDB(db, "postgres", slogger), nil
}

// NewWithDB wraps an already-open GORM handle. Used by the SQLite backend.
func NewWithDB(db *gorm.DB, driver string, slogger *slog.Logger) *Store {
	return &Store{db: db, driver: driver, logger: slogger}
}

// --- models ---

// DocumentModel stores patchable source documents by identity.
type DocumentModel struct {
	ID        uint   `gorm:"primaryKey"`
	Identity  string `gorm:"uniqueIndex;size:512;not null"`
	Content   string `gorm:"type:text;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (DocumentModel) TableName() string { return "documents" }

// PatchRunModel is the append-only audit record of one pipeline run.
type PatchRunModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	Identity       string    `gorm:"index;size:512;not null"`
	MarkersFound   int
	PatchesApplied int
	Executed       bool
	Errors         string `gorm:"type:text"` // JSON-encoded descriptor list.
	DurationMs     int64
	CreatedAt      time.Time `gorm:"index"`
}

func (PatchRunModel) TableName() string { return "patch_runs" }

// --- store.Store ---

// Read returns a document's content by identity.
func (s *Store) Read(ctx context.Context, identity string) (string, error) {
	var model DocumentModel
	err := s.db.WithContext(ctx).Where("identity = ?", identity).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("%w: %s", store.ErrNotFound, identity)
		}
		return "", fmt.Errorf("reading document %s: %w", identity, err)
	}
	return model.Content, nil
}

// PutDocument creates or replaces a document.
func (s *Store) PutDocument(ctx context.Context, identity, content string) error {
	if identity == "" {
		return fmt.Errorf("document identity is required")
	}
	model := DocumentModel{Identity: identity, Content: content}
	err := s.db.WithContext(ctx).
		Where("identity = ?", identity).
		Assign(map[string]any{"content": content}).
		FirstOrCreate(&model).Error
	if err != nil {
		return fmt.Errorf("storing document %s: %w", identity, err)
	}
	return nil
}

// Record appends a patch-run audit record. This is the only write method on
// patch runs — immutability is enforced at the interface level.
func (s *Store) Record(ctx context.Context, run *domain.PatchRun) error {
	model, err := toRunModel(run)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("recording patch run: %w", err)
	}
	return nil
}

// ListRuns returns audit records, newest first.
func (s *Store) ListRuns(ctx context.Context, identity string, limit int) ([]domain.PatchRun, error) {
	if limit <= 0 {
		limit = 100
	}

	q := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if identity != "" {
		q = q.Where("identity = ?", identity)
	}

	var models []PatchRunModel
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("listing patch runs: %w", err)
	}

	runs := make([]domain.PatchRun, len(models))
	for i := range models {
		runs[i] = toRunDomain(&models[i])
	}
	return runs, nil
}

// Migrate creates or updates the schema.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&DocumentModel{}, &PatchRunModel{}); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Driver returns the backend name.
func (s *Store) Driver() string { return s.driver }

// --- conversions ---

func toRunModel(run *domain.PatchRun) (PatchRunModel, error) {
	id := run.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	encoded, err := json.Marshal(run.Errors)
	if err != nil {
		return PatchRunModel{}, fmt.Errorf("encoding error descriptors: %w", err)
	}
	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return PatchRunModel{
		ID:             id,
		Identity:       run.Identity,
		MarkersFound:   run.MarkersFound,
		PatchesApplied: run.PatchesApplied,
		Executed:       run.Executed,
		Errors:         string(encoded),
		DurationMs:     run.DurationMs,
		CreatedAt:      createdAt,
	}, nil
}

func toRunDomain(m *PatchRunModel) domain.PatchRun {
	var descriptors []string
	_ = json.Unmarshal([]byte(m.Errors), &descriptors)
	return domain.PatchRun{
		ID:             m.ID,
		Identity:       m.Identity,
		MarkersFound:   m.MarkersFound,
		PatchesApplied: m.PatchesApplied,
		Executed:       m.Executed,
		Errors:         descriptors,
		DurationMs:     m.DurationMs,
		CreatedAt:      m.CreatedAt,
	}
}

// --- gorm logging ---

// NewGormLogger routes GORM's internal logging through slog at debug level.
func NewGormLogger(slogger *slog.Logger) logger.Interface {
	return logger.New(slogWriter{logger: slogger}, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

type slogWriter struct {
	logger *slog.Logger
}

func (w slogWriter) Printf(format string, args ...any) {
	if w.logger != nil {
		w.logger.Debug(fmt.Sprintf(format, args...))
	}
}
