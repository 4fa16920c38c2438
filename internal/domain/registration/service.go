package registration

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/intake/intake/internal/platform/attachment"
)

// DefaultSessionTTL is how long an untouched session is kept.
const DefaultSessionTTL = 2 * time.Hour

// Manager owns the live registration sessions.
type Manager struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Wizard

	deps   Collaborators
	store  attachment.Store
	clock  Clock
	ttl    time.Duration
	logger zerolog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c Clock) ManagerOption {
	return func(m *Manager) { m.clock = c }
}

// WithSessionTTL sets the idle time after which Sweep evicts a session.
func WithSessionTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// NewManager creates a Manager. A nil store gets an in-memory one.
func NewManager(deps Collaborators, store attachment.Store, logger zerolog.Logger, opts ...ManagerOption) *Manager {
	if store == nil {
		store = attachment.NewInMemoryStore()
	}
	m := &Manager{
		sessions: make(map[uuid.UUID]*Wizard),
		deps:     deps,
		store:    store,
		clock:    SystemClock,
		ttl:      DefaultSessionTTL,
		logger:   logger,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Create starts a new session on the first step.
func (m *Manager) Create() *Wizard {
	id := uuid.New()
	w := newWizard(id, m.deps, m.store, m.clock, m.logger.With().Str("session_id", id.String()).Logger())

	m.mu.Lock()
	m.sessions[id] = w
	m.mu.Unlock()

	m.logger.Info().Str("session_id", id.String()).Msg("registration session started")
	return w
}

// Get returns a live session.
func (m *Manager) Get(id uuid.UUID) (*Wizard, error) {
	m.mu.RLock()
	w, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return w, nil
}

// Close ends a session and drops its attachments.
func (m *Manager) Close(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	w, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	m.closeWizard(ctx, w)
	return nil
}

func (m *Manager) closeWizard(ctx context.Context, w *Wizard) {
	w.Close()
	if err := m.store.DeleteSession(ctx, w.id.String()); err != nil {
		m.logger.Warn().Err(err).Str("session_id", w.id.String()).Msg("failed to delete session attachments")
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep closes every session idle for longer than the TTL and returns how
// many were evicted.
func (m *Manager) Sweep(ctx context.Context, now time.Time) int {
	var stale []*Wizard
	m.mu.Lock()
	for id, w := range m.sessions {
		if now.Sub(w.idleSince()) > m.ttl {
			stale = append(stale, w)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, w := range stale {
		m.closeWizard(ctx, w)
	}
	if len(stale) > 0 {
		m.logger.Info().Int("evicted", len(stale)).Msg("idle registration sessions closed")
	}
	return len(stale)
}

// Run sweeps on every interval until ctx is done, then closes every
// remaining session.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.CloseAll(context.Background())
			return
		case <-ticker.C:
			m.Sweep(ctx, m.clock.Now())
		}
	}
}

// CloseAll ends every session.
func (m *Manager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	all := make([]*Wizard, 0, len(m.sessions))
	for id, w := range m.sessions {
		all = append(all, w)
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	for _, w := range all {
		m.closeWizard(ctx, w)
	}
}
