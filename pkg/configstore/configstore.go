// Package configstore persists a replica's reconfiguration history:
// one row per accepted PRIME_OOB_CONFIG_MSG, read back through
// History and Latest, recording what configurations this replica has
// passed through and when. No spire-master subcommand reads it. It plays no part in reconfiguration itself —
// pkg/reconfig and pkg/master own that — it only observes and
// records.
//
// Grounded on pkg/controlplane/store/gorm.go in the teacher repo
// (GORM-over-SQLite-with-WAL store shape), simplified to the
// single-node SQLite case: a replica's reconfiguration ledger has no
// multi-writer requirement that would justify the teacher's
// PostgreSQL option, so this package drops that branch rather than
// carry an unused dialector.
package configstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/spire-resilient-systems/itrc/pkg/wire"
)

// ConfigurationRecord is one row of reconfiguration history: the
// configuration's fencing number, the replica-set sizing it
// installed, and when this replica accepted it.
type ConfigurationRecord struct {
	ID                        uint `gorm:"primaryKey"`
	GlobalConfigurationNumber uint32 `gorm:"uniqueIndex;not null"`
	N                         uint32
	F                         uint32
	K                         uint32
	NumCCReplicas             uint32
	NumDCReplicas             uint32
	AcceptedAt                time.Time `gorm:"not null"`
}

// TableName pins the table name so it does not follow GORM's
// pluralization of "ConfigurationRecord" across a schema change.
func (ConfigurationRecord) TableName() string { return "configuration_history" }

// Store is a replica's reconfiguration-history ledger.
type Store struct {
	db *gorm.DB
}

// Open creates (or opens) the SQLite-backed ledger at path, applying
// the same WAL/busy-timeout pragmas as the teacher's control-plane
// store for safe concurrent access from a reconfiguration writer and
// a History reader.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("configstore: create directory for %s: %w", path, err)
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("configstore: open %s: %w", path, err)
	}

	if err := db.AutoMigrate(&ConfigurationRecord{}); err != nil {
		return nil, fmt.Errorf("configstore: migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// RecordAccepted appends one entry to the history for a configuration
// this replica just accepted. A duplicate global_configuration_number
// is ignored rather than erroring: a replica that replays the same
// accepted configuration (e.g. after a restart) must not fail the
// ledger write over it.
func (s *Store) RecordAccepted(ctx context.Context, cfg *wire.ConfigMessage, acceptedAt time.Time) error {
	rec := &ConfigurationRecord{
		GlobalConfigurationNumber: cfg.GlobalConfigurationNumber,
		N:                         cfg.N,
		F:                         cfg.F,
		K:                         cfg.K,
		NumCCReplicas:             cfg.NumCCReplicas,
		NumDCReplicas:             cfg.NumDCReplicas,
		AcceptedAt:                acceptedAt,
	}
	err := s.db.WithContext(ctx).
		Where("global_configuration_number = ?", rec.GlobalConfigurationNumber).
		FirstOrCreate(rec).Error
	if err != nil {
		return fmt.Errorf("configstore: record configuration %d: %w", rec.GlobalConfigurationNumber, err)
	}
	return nil
}

// History returns the most recent n accepted configurations, newest
// first. n <= 0 returns the entire history.
func (s *Store) History(ctx context.Context, n int) ([]ConfigurationRecord, error) {
	var records []ConfigurationRecord
	q := s.db.WithContext(ctx).Order("global_configuration_number DESC")
	if n > 0 {
		q = q.Limit(n)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("configstore: list history: %w", err)
	}
	return records, nil
}

// Latest returns the most recently accepted configuration, or nil if
// this replica has never recorded one.
func (s *Store) Latest() (*ConfigurationRecord, error) {
	var rec ConfigurationRecord
	err := s.db.Order("global_configuration_number DESC").First(&rec).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("configstore: latest: %w", err)
	}
	return &rec, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("configstore: underlying db: %w", err)
	}
	return sqlDB.Close()
}
