package timing

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	v1 "github.com/cc-executor/cc-executor/pkg/api/v1"
)

// SQLiteStore is the zero-infra persistent Timing Store backend, used when
// timing_store_dsn has no scheme or a file:/sqlite: scheme.
type SQLiteStore struct {
	db   *sql.DB
	opts Options
}

// NewSQLiteStore opens (creating if needed) a SQLite database at path and migrates its
// schema to the latest version.
func NewSQLiteStore(path string, opts Options) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite timing store: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := migrateSQLite(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite timing store: %w", err)
	}

	return &SQLiteStore{db: db, opts: opts}, nil
}

func migrateSQLite(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return err
	}

	src, err := iofs.New(migrationsFS, "migrations/sqlite")
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// Lookup implements Store.
func (s *SQLiteStore) Lookup(ctx context.Context, fingerprint string) (*v1.Estimate, error) {
	var samplesJSON string
	var lastUpdated time.Time

	err := s.db.QueryRowContext(ctx,
		`SELECT samples, last_updated FROM timing_records WHERE fingerprint = ?`,
		fingerprint).Scan(&samplesJSON, &lastUpdated)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if s.opts.TTL > 0 && time.Since(lastUpdated) > s.opts.TTL {
		return nil, nil
	}

	var samples []float64
	if err := json.Unmarshal([]byte(samplesJSON), &samples); err != nil {
		return nil, err
	}

	return s.opts.Estimate(samples), nil
}

// Record implements Store.
func (s *SQLiteStore) Record(ctx context.Context, fingerprint, commandClass string, durationS float64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var samplesJSON string
	err = tx.QueryRowContext(ctx, `SELECT samples FROM timing_records WHERE fingerprint = ?`, fingerprint).Scan(&samplesJSON)

	var samples []float64
	switch err {
	case nil:
		if unmarshalErr := json.Unmarshal([]byte(samplesJSON), &samples); unmarshalErr != nil {
			samples = nil
		}
	case sql.ErrNoRows:
		samples = nil
	default:
		return err
	}

	samples = append(samples, durationS)
	cap := s.opts.SamplesCap
	if cap <= 0 {
		cap = 100
	}
	if len(samples) > cap {
		samples = samples[len(samples)-cap:]
	}

	encoded, err := json.Marshal(samples)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO timing_records (fingerprint, command_class, samples, last_updated)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET
			command_class = excluded.command_class,
			samples = excluded.samples,
			last_updated = excluded.last_updated
	`, fingerprint, commandClass, string(encoded), time.Now().UTC())
	if err != nil {
		return err
	}

	return tx.Commit()
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
