// Package ledger tracks historical store versions and appended batches in a
// relational database. It serializes concurrent appends: a writer reads the
// store's version, prepares its replacement and commits only if the version
// is still the one it read.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/ethpandaops/perfpipe/pkg/config"
)

// ErrVersionConflict is returned by Commit when another writer advanced the
// store since its version was read.
var ErrVersionConflict = errors.New("store version conflict")

const (
	migrateAttempts = 10
	migrateDelay    = 50 * time.Millisecond
)

// Commit describes one append to publish.
type Commit struct {
	StorePath  string
	BatchID    string
	Expected   int64
	TotalRows  int64
	Appended   int64
	Duplicates int64
}

// Store provides persistence for store versions and the batch ledger.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	// Version returns the current version of the store at path, registering
	// it at version 0 when unknown.
	Version(ctx context.Context, path string) (int64, error)

	// Commit advances the store from c.Expected to c.Expected+1, records
	// the batch and runs publish, all in one transaction. publish runs only
	// after the version check passed; if it fails nothing is recorded.
	Commit(ctx context.Context, c *Commit, publish func() error) (int64, error)

	ListBatches(ctx context.Context, path string) ([]AppendedBatch, error)
	HasBatch(ctx context.Context, path, batchID string) (bool, error)
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.LedgerConfig
	db  *gorm.DB
}

// NewStore creates a new ledger Store backed by the configured driver.
func NewStore(log logrus.FieldLogger, cfg *config.LedgerConfig) Store {
	return &store{
		log: log.WithField("component", "ledger"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(sqliteDSN(s.cfg.SQLite.Path))
	case "postgres":
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

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening ledger database: %w", err)
	}

	s.db = db

	if err := s.migrate(ctx); err != nil {
		return fmt.Errorf("running ledger migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).
		Debug("Ledger database connected")

	return nil
}

// migrate creates the ledger tables. Several processes may start on a fresh
// database at once; a loser sees "already exists" or a busy database and
// retries, by which time the schema is in place and AutoMigrate is a no-op.
func (s *store) migrate(ctx context.Context) error {
	return retry.Do(
		func() error {
			return s.db.WithContext(ctx).AutoMigrate(
				&StoreVersion{},
				&AppendedBatch{},
			)
		},
		retry.Context(ctx),
		retry.Attempts(migrateAttempts),
		retry.Delay(migrateDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.MaxDelay(time.Second),
		retry.LastErrorOnly(true),
		retry.RetryIf(isMigrationRace),
		retry.OnRetry(func(n uint, err error) {
			s.log.WithError(err).WithField("attempt", n+1).
				Debug("Ledger migration raced another process, retrying")
		}),
	)
}

// isMigrationRace matches the errors a concurrent schema creation produces
// on sqlite and postgres.
func isMigrationRace(err error) bool {
	msg := strings.ToLower(err.Error())

	for _, marker := range []string{
		"already exists",
		"database is locked",
		"sqlite_busy",
		"duplicate key value",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}

	return false
}

// sqliteDSN adds a busy timeout so concurrent processes wait for the write
// lock instead of failing with SQLITE_BUSY.
func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}

	return path + sep + "_pragma=busy_timeout(5000)"
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

func (s *store) Version(ctx context.Context, path string) (int64, error) {
	var current StoreVersion

	err := s.db.WithContext(ctx).Where("path = ?", path).First(&current).Error
	if err == nil {
		return current.Version, nil
	}

	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("reading store version: %w", err)
	}

	row := StoreVersion{Path: path, UpdatedAt: time.Now().UTC()}

	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error; err != nil {
		return 0, fmt.Errorf("registering store %s: %w", path, err)
	}

	if err := s.db.WithContext(ctx).
		Where("path = ?", path).
		First(&current).Error; err != nil {
		return 0, fmt.Errorf("reading store version: %w", err)
	}

	return current.Version, nil
}

func (s *store) Commit(ctx context.Context, c *Commit, publish func() error) (int64, error) {
	next := c.Expected + 1
	now := time.Now().UTC()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&StoreVersion{}).
			Where("path = ? AND version = ?", c.StorePath, c.Expected).
			Updates(map[string]any{
				"version":    next,
				"row_count":  c.TotalRows,
				"updated_at": now,
			})
		if res.Error != nil {
			return fmt.Errorf("advancing store version: %w", res.Error)
		}

		if res.RowsAffected == 0 {
			return ErrVersionConflict
		}

		if err := tx.Create(&AppendedBatch{
			StorePath:    c.StorePath,
			BatchID:      c.BatchID,
			RowCount:     c.Appended,
			Duplicates:   c.Duplicates,
			StoreVersion: next,
			AppendedAt:   now,
		}).Error; err != nil {
			return fmt.Errorf("recording batch: %w", err)
		}

		// The rename cannot be rolled back, so it goes last.
		if err := publish(); err != nil {
			return fmt.Errorf("publishing store: %w", err)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.WithFields(logrus.Fields{
		"store":   c.StorePath,
		"batch":   c.BatchID,
		"version": next,
	}).Debug("Committed store version")

	return next, nil
}

// ListBatches returns the batches appended to path, newest first. An empty
// path lists every store.
func (s *store) ListBatches(ctx context.Context, path string) ([]AppendedBatch, error) {
	q := s.db.WithContext(ctx).Order("store_version DESC, id DESC")
	if path != "" {
		q = q.Where("store_path = ?", path)
	}

	var batches []AppendedBatch
	if err := q.Find(&batches).Error; err != nil {
		return nil, fmt.Errorf("listing batches: %w", err)
	}

	return batches, nil
}

func (s *store) HasBatch(ctx context.Context, path, batchID string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&AppendedBatch{}).
		Where("store_path = ? AND batch_id = ?", path, batchID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("looking up batch: %w", err)
	}

	return count > 0, nil
}
