// Package ledger persists the history of upload runs.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethpandaops/artifactoor/pkg/config"
	"github.com/ethpandaops/artifactoor/pkg/upload"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// Store provides persistence for upload runs.
type Store interface {
	upload.Recorder

	Start(ctx context.Context) error
	Stop() error

	// ListRuns returns the most recent runs first. A non-positive limit
	// returns every run.
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListArtifacts(ctx context.Context, runID string) ([]Artifact, error)
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.DatabaseConfig
	db  *gorm.DB
}

// NewStore creates a new Store backed by the configured database driver.
func NewStore(log logrus.FieldLogger, cfg *config.DatabaseConfig) Store {
	return &store{
		log: log.WithField("component", "ledger"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	switch s.cfg.Driver {
	case config.DatabaseDriverSQLite:
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case config.DatabaseDriverPostgres:
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Discard,
	})
	if err != nil {
		return fmt.Errorf("opening ledger database: %w", err)
	}

	s.db = db

	if err := s.db.WithContext(ctx).AutoMigrate(
		&Run{},
		&Artifact{},
	); err != nil {
		return fmt.Errorf("running ledger migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).Debug("Ledger database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// RecordRun stores rec and its artifacts in one transaction.
func (s *store) RecordRun(ctx context.Context, rec *upload.RunRecord) error {
	run := &Run{
		RunID:        rec.RunID,
		Subdirectory: rec.Subdirectory,
		Status:       rec.Status,
		Error:        rec.Error,
		Attempts:     rec.Attempts,
		Files:        rec.Files,
		StartedAt:    rec.StartedAt,
		FinishedAt:   rec.FinishedAt,
	}

	if run.Files == 0 {
		run.Files = len(rec.Artifacts)
	}

	artifacts := make([]*Artifact, 0, len(rec.Artifacts))

	for _, a := range rec.Artifacts {
		if a.Deduplicated {
			run.Deduplicated++
		} else {
			run.Uploaded++
		}

		artifacts = append(artifacts, &Artifact{
			RunID:        rec.RunID,
			Path:         a.Path,
			Key:          a.Key,
			URL:          a.URL,
			Hash:         a.Hash,
			Size:         a.Size,
			Deduplicated: a.Deduplicated,
			FileID:       a.FileID,
		})
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(run).Error; err != nil {
			return fmt.Errorf("inserting run: %w", err)
		}

		if len(artifacts) == 0 {
			return nil
		}

		if err := tx.Create(artifacts).Error; err != nil {
			return fmt.Errorf("inserting artifacts: %w", err)
		}

		return nil
	})
}

// ListRuns returns runs ordered by start time, newest first.
func (s *store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	q := s.db.WithContext(ctx).Order("started_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var runs []Run
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	return runs, nil
}

// GetRun returns a single run by id.
func (s *store) GetRun(ctx context.Context, runID string) (*Run, error) {
	var run Run

	err := s.db.WithContext(ctx).Where("run_id = ?", runID).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%s: %w", runID, ErrRunNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("getting run: %w", err)
	}

	return &run, nil
}

// ListArtifacts returns the artifacts of a run in upload order.
func (s *store) ListArtifacts(ctx context.Context, runID string) ([]Artifact, error) {
	var artifacts []Artifact
	if err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("id ASC").
		Find(&artifacts).Error; err != nil {
		return nil, fmt.Errorf("listing artifacts: %w", err)
	}

	return artifacts, nil
}
