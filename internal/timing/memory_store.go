package timing

import (
	"context"
	"sync"
	"time"

	v1 "github.com/cc-executor/cc-executor/pkg/api/v1"
)

// MemoryStore is the default, always-available Timing Store backend: an in-process
// map with a bounded, trimmed sample list per fingerprint and TTL-based eviction.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*v1.TimingRecord
	opts    Options
}

// NewMemoryStore builds an empty MemoryStore and, when opts.TTL is positive, starts its
// background TTL sweeper.
func NewMemoryStore(opts Options) *MemoryStore {
	if opts.SamplesCap <= 0 {
		opts.SamplesCap = 100
	}
	s := &MemoryStore{
		records: make(map[string]*v1.TimingRecord),
		opts:    opts,
	}
	if opts.TTL > 0 {
		go s.sweepLoop()
	}
	return s
}

func (s *MemoryStore) sweepLoop() {
	interval := s.opts.TTL / 10
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for now := range ticker.C {
		s.sweepExpired(now)
	}
}

// Lookup implements Store.
func (s *MemoryStore) Lookup(_ context.Context, fingerprint string) (*v1.Estimate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[fingerprint]
	if !ok {
		return nil, nil
	}
	if s.opts.TTL > 0 && time.Since(rec.LastUpdated) > s.opts.TTL {
		return nil, nil
	}
	return s.opts.Estimate(rec.Samples), nil
}

// Record implements Store.
func (s *MemoryStore) Record(_ context.Context, fingerprint, commandClass string, durationS float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[fingerprint]
	if !ok {
		rec = &v1.TimingRecord{Fingerprint: fingerprint, CommandClass: commandClass}
		s.records[fingerprint] = rec
	}

	rec.Samples = append(rec.Samples, durationS)
	if len(rec.Samples) > s.opts.SamplesCap {
		rec.Samples = rec.Samples[len(rec.Samples)-s.opts.SamplesCap:]
	}
	rec.CommandClass = commandClass
	rec.LastUpdated = time.Now()
	return nil
}

// Close implements Store; MemoryStore holds no external resources.
func (s *MemoryStore) Close() error { return nil }

// sweepExpired removes fingerprints whose last sample is older than the configured
// TTL. Called periodically by sweepLoop; not required for correctness since Lookup
// already checks TTL, but keeps the map from growing unboundedly over a long-lived
// process.
func (s *MemoryStore) sweepExpired(now time.Time) {
	if s.opts.TTL <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for fp, rec := range s.records {
		if now.Sub(rec.LastUpdated) > s.opts.TTL {
			delete(s.records, fp)
		}
	}
}
