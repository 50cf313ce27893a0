package timing

import (
	"context"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/cc-executor/cc-executor/internal/common/errors"
)

// Open selects and constructs a Store backend from dsn:
//   - "": MemoryStore (the default, zero-infra backend).
//   - "postgres://..." or "postgresql://...": PostgresStore.
//   - anything else (bare path, "file:...", "sqlite:..."): SQLiteStore.
//
// Any backend construction failure is logged and Open falls back to a MemoryStore,
// matching the spec's "degrade silently when unavailable" policy — callers never see
// a TimingStoreUnavailable error at startup, only a warning log line.
func Open(dsn string, opts Options, log *zap.Logger) Store {
	if dsn == "" {
		return NewMemoryStore(opts)
	}

	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		store, err := NewPostgresStore(context.Background(), dsn, opts)
		if err != nil {
			log.Warn("postgres timing store unavailable, falling back to memory",
				zap.Error(apperrors.TimingStoreUnavailable(err)))
			return NewMemoryStore(opts)
		}
		return store

	default:
		path := strings.TrimPrefix(strings.TrimPrefix(dsn, "sqlite:"), "file:")
		store, err := NewSQLiteStore(path, opts)
		if err != nil {
			log.Warn("sqlite timing store unavailable, falling back to memory",
				zap.Error(apperrors.TimingStoreUnavailable(err)))
			return NewMemoryStore(opts)
		}
		return store
	}
}
