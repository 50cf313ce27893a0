package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cc-executor/cc-executor/internal/common/config"
	apperrors "github.com/cc-executor/cc-executor/internal/common/errors"
	"github.com/cc-executor/cc-executor/internal/metrics"
	v1 "github.com/cc-executor/cc-executor/pkg/api/v1"
)

// Registry is the admission-controlled set of live Sessions, keyed by session_id. It
// rejects new sessions once max_sessions is reached and periodically sweeps sessions
// that have been idle past session_idle_timeout_s.
type Registry struct {
	cfg  *config.Config
	deps Deps
	log  *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewRegistry builds a Registry. Start must be called to begin the idle sweep.
func NewRegistry(cfg *config.Config, deps Deps, log *zap.Logger) *Registry {
	return &Registry{
		cfg:      cfg,
		deps:     deps,
		log:      log.With(zap.String("component", "session_registry")),
		sessions: make(map[string]*Session),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background idle-session sweep. It returns immediately; call Stop
// to shut the sweep down.
func (r *Registry) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.sweepLoop(ctx)
}

// Stop halts the idle sweep and terminates every tracked session, guaranteeing every
// live process group is signaled before the service exits.
func (r *Registry) Stop() {
	close(r.stopCh)
	r.wg.Wait()

	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Terminate()
	}
	metrics.ActiveSessions.Set(0)
}

// Admit creates and tracks a new Session, rejecting the request if the registry is
// already at max_sessions.
func (r *Registry) Admit(sessionID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.sessions) >= r.cfg.Server.MaxSessions {
		metrics.SessionsRejected.Inc()
		return nil, apperrors.Admission("session registry is at capacity")
	}

	s := New(sessionID, r.deps)
	r.sessions[sessionID] = s
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	return s, nil
}

// Get returns the session for id, if tracked.
func (r *Registry) Get(sessionID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	return s, ok
}

// Remove untracks and terminates sessionID, e.g. on WebSocket disconnect.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	if ok {
		s.Terminate()
	}
}

// Count returns the number of currently admitted sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) sweepLoop(ctx context.Context) {
	defer r.wg.Done()

	interval := time.Duration(r.cfg.Server.SessionIdleTimeoutS) * time.Second / 10
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.sweepIdle()
		}
	}
}

func (r *Registry) sweepIdle() {
	cutoff := time.Duration(r.cfg.Server.SessionIdleTimeoutS) * time.Second

	r.mu.RLock()
	var stale []string
	for id, s := range r.sessions {
		if s.State() == v1.SessionIdle || s.State() == v1.SessionClosed {
			if time.Since(s.LastActivityAt()) > cutoff {
				stale = append(stale, id)
			}
		}
	}
	r.mu.RUnlock()

	for _, id := range stale {
		r.log.Info("evicting idle session", zap.String("session_id", id))
		r.Remove(id)
	}
}
