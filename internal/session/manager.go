package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/dataghost/internal/core"
)

var (
	// ErrSessionNotFound is returned for an unknown or expired session id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrTooManySessions is returned by Create when MaxSessions are live.
	ErrTooManySessions = errors.New("too many sessions")
)

// ManagerOptions configures a Manager. Zero values fall back to defaults.
type ManagerOptions struct {
	Asker           Asker
	Parser          *core.Parser
	Limiter         *core.IngestLimiter
	MaxSessions     int           // default: 1000
	IdleTimeout     time.Duration // default: 30m
	CleanupInterval time.Duration // default: 1m
	Logger          *slog.Logger
	Now             func() time.Time
}

// Manager keys controllers by id, bounds how many may exist and disposes
// the ones left idle.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Controller

	asker           Asker
	parser          *core.Parser
	limiter         *core.IngestLimiter
	maxSessions     int
	idleTimeout     time.Duration
	cleanupInterval time.Duration
	logger          *slog.Logger
	now             func() time.Time
}

// NewManager creates an empty manager. Call Run to start idle expiry.
func NewManager(opts ManagerOptions) *Manager {
	if opts.Asker == nil {
		panic("session: ManagerOptions.Asker is required")
	}
	if opts.Parser == nil {
		opts.Parser = core.NewParser(core.ParseOptions{})
	}
	if opts.Limiter == nil {
		opts.Limiter = core.NewIngestLimiter(core.DefaultIngestSlots, core.DefaultIngestWait)
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 1000
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 30 * time.Minute
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Manager{
		sessions:        make(map[string]*Controller),
		asker:           opts.Asker,
		parser:          opts.Parser,
		limiter:         opts.Limiter,
		maxSessions:     opts.MaxSessions,
		idleTimeout:     opts.IdleTimeout,
		cleanupInterval: opts.CleanupInterval,
		logger:          opts.Logger,
		now:             opts.Now,
	}
}

// Create registers a new empty session.
func (m *Manager) Create() (*Controller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) >= m.maxSessions {
		return nil, ErrTooManySessions
	}

	c := New(Options{
		ID:     uuid.New().String(),
		Asker:  m.asker,
		Logger: m.logger,
		Now:    m.now,
	})
	m.sessions[c.ID()] = c

	m.logger.Info("session created", "session_id", c.ID(), "active_sessions", len(m.sessions))
	return c, nil
}

// Get returns the session for id and marks it active.
func (m *Manager) Get(id string) (*Controller, error) {
	m.mu.RLock()
	c, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrSessionNotFound
	}
	c.touch()
	return c, nil
}

// Delete disposes the session and forgets it.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	c, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	c.Dispose()
	m.logger.Info("session deleted", "session_id", id)
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Ingest parses r under a limiter slot and loads the result into session id.
// A parse failure leaves the session's current data untouched.
func (m *Manager) Ingest(ctx context.Context, id string, r io.Reader) (core.CSVData, error) {
	c, err := m.Get(id)
	if err != nil {
		return core.CSVData{}, err
	}

	data, err := m.limiter.Parse(ctx, m.parser, r)
	if err != nil {
		return core.CSVData{}, err
	}

	if err := c.LoadData(data); err != nil {
		return core.CSVData{}, err
	}
	return data, nil
}

// LimiterStatus reports ingestion slot usage.
func (m *Manager) LimiterStatus() core.IngestStatus {
	return m.limiter.Status()
}

// Run disposes idle sessions every CleanupInterval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	m.logger.Info("session janitor started",
		"idle_timeout", m.idleTimeout,
		"interval", m.cleanupInterval,
	)

	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("session janitor stopped")
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Sweep disposes sessions idle longer than IdleTimeout. A session with a
// request in flight is never idle. It returns how many were removed.
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.idleTimeout)

	m.mu.Lock()
	var expired []*Controller
	for id, c := range m.sessions {
		if c.State() == StatePending || c.LastActive().After(cutoff) {
			continue
		}
		expired = append(expired, c)
		delete(m.sessions, id)
	}
	remaining := len(m.sessions)
	m.mu.Unlock()

	for _, c := range expired {
		c.Dispose()
	}

	if len(expired) > 0 {
		m.logger.Info("expired idle sessions",
			"expired", len(expired),
			"active_sessions", remaining,
		)
	}
	return len(expired)
}

// Close disposes every session and waits for in-progress ingestion to
// finish or ctx to end.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	all := make([]*Controller, 0, len(m.sessions))
	for _, c := range m.sessions {
		all = append(all, c)
	}
	m.sessions = make(map[string]*Controller)
	m.mu.Unlock()

	for _, c := range all {
		c.Dispose()
	}

	return m.limiter.WaitForDrain(ctx)
}
