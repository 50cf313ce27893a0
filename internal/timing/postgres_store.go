package timing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	v1 "github.com/cc-executor/cc-executor/pkg/api/v1"
)

// PostgresStore is the Timing Store backend used when timing_store_dsn carries a
// postgres:// scheme, for deployments sharing a central database across replicas.
type PostgresStore struct {
	pool *pgxpool.Pool
	opts Options
}

// NewPostgresStore connects to dsn and migrates the timing_records schema.
func NewPostgresStore(ctx context.Context, dsn string, opts Options) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres timing store: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres timing store: %w", err)
	}

	if err := migratePostgres(dsn); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate postgres timing store: %w", err)
	}

	return &PostgresStore{pool: pool, opts: opts}, nil
}

func migratePostgres(dsn string) error {
	src, err := iofs.New(postgresMigrationsFS, "migrations/postgres")
	if err != nil {
		return err
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
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
func (s *PostgresStore) Lookup(ctx context.Context, fingerprint string) (*v1.Estimate, error) {
	var samplesJSON []byte
	var lastUpdated time.Time

	err := s.pool.QueryRow(ctx,
		`SELECT samples, last_updated FROM timing_records WHERE fingerprint = $1`,
		fingerprint).Scan(&samplesJSON, &lastUpdated)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	if s.opts.TTL > 0 && time.Since(lastUpdated) > s.opts.TTL {
		return nil, nil
	}

	var samples []float64
	if err := json.Unmarshal(samplesJSON, &samples); err != nil {
		return nil, err
	}
	return s.opts.Estimate(samples), nil
}

// Record implements Store.
func (s *PostgresStore) Record(ctx context.Context, fingerprint, commandClass string, durationS float64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var samplesJSON []byte
	err = tx.QueryRow(ctx, `SELECT samples FROM timing_records WHERE fingerprint = $1`, fingerprint).Scan(&samplesJSON)

	var samples []float64
	if err == nil {
		if unmarshalErr := json.Unmarshal(samplesJSON, &samples); unmarshalErr != nil {
			samples = nil
		}
	} else if !isNoRows(err) {
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

	_, err = tx.Exec(ctx, `
		INSERT INTO timing_records (fingerprint, command_class, samples, last_updated)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (fingerprint) DO UPDATE SET
			command_class = excluded.command_class,
			samples = excluded.samples,
			last_updated = excluded.last_updated
	`, fingerprint, commandClass, encoded, time.Now().UTC())
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
