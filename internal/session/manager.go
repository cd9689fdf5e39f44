package session

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"chargemap/internal/geo"
	"chargemap/internal/store"
	"chargemap/internal/types"
)

// Repository persists session parameters so a session outlives process
// restarts and idle eviction. Get returns an AppError with
// ErrCodeNotFoundSession when the id is unknown.
type Repository interface {
	Save(ctx context.Context, s *types.MapSession) error
	Get(ctx context.Context, id string) (*types.MapSession, error)
	Delete(ctx context.Context, id string) error
}

// nopRepository keeps sessions in memory only: evicted sessions are gone.
type nopRepository struct{}

func (nopRepository) Save(context.Context, *types.MapSession) error { return nil }
func (nopRepository) Delete(_ context.Context, id string) error     { return notFound(id) }
func (nopRepository) Get(_ context.Context, id string) (*types.MapSession, error) {
	return nil, notFound(id)
}

// ManagerConfig holds the manager's tunables.
type ManagerConfig struct {
	InitialCenter types.LatLng
	InitialZoom   int
	CloseDelay    time.Duration
	IdleTimeout   time.Duration
}

// Manager owns the live sessions of the process.
type Manager struct {
	cfg      ManagerConfig
	fetcher  Fetcher
	repo     Repository
	observer Observer
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a Manager. repo and observer may be nil.
func NewManager(cfg ManagerConfig, fetcher Fetcher, repo Repository, observer Observer, logger *slog.Logger) *Manager {
	if repo == nil {
		repo = nopRepository{}
	}
	if observer == nil {
		observer = noopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.InitialZoom <= 0 {
		cfg.InitialZoom = geo.DefaultZoom
	}
	if cfg.InitialCenter == (types.LatLng{}) {
		cfg.InitialCenter = geo.DefaultCenter
	}
	return &Manager{
		cfg:      cfg,
		fetcher:  fetcher,
		repo:     repo,
		observer: observer,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Create starts a session for a window with the given aspect ratio
// (width/height) and kicks off the initial fetch.
func (m *Manager) Create(ctx context.Context, aspect float64) (*Session, <-chan struct{}, error) {
	if aspect <= 0 || math.IsNaN(aspect) || math.IsInf(aspect, 0) {
		return nil, nil, types.NewAppError(types.ErrCodeValidationInvalidAspect,
			"aspect_ratio must be a positive number", nil)
	}

	region := geo.InitialRegion(m.cfg.InitialCenter, aspect, m.cfg.InitialZoom)
	s := m.newSession("ms_"+uuid.NewString(), store.New(region), time.Time{})

	if err := m.save(ctx, s); err != nil {
		return nil, nil, err
	}
	m.register(s)
	m.logger.InfoContext(ctx, "map session created", "session_id", s.ID(), "aspect_ratio", aspect)

	return s, s.Refresh(ctx), nil
}

// Get returns a live session, restoring it from the repository if it has
// been evicted. A restored session refetches its sites.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return s, nil
	}

	rec, err := m.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if existing, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	s = m.newSession(rec.ID, store.Restore(store.Params{Region: rec.Region, Filters: rec.Filters}, nil), rec.CreatedAt)
	m.sessions[id] = s
	n := len(m.sessions)
	m.mu.Unlock()

	m.observer.SetActiveSessions(n)
	m.logger.InfoContext(ctx, "map session restored", "session_id", id)
	s.Refresh(ctx)
	return s, nil
}

// Persist stores the session's current parameters.
func (m *Manager) Persist(ctx context.Context, s *Session) error {
	return m.save(ctx, s)
}

// Delete drops the session from memory and the repository.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()

	if ok {
		s.stopCloseTimer()
		m.observer.SetActiveSessions(n)
	}

	err := m.repo.Delete(ctx, id)
	var appErr *types.AppError
	if ok && errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundSession {
		return nil
	}
	return err
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep evicts sessions idle for longer than the idle timeout. Evicted
// sessions stay in the repository and are restored on next access.
func (m *Manager) Sweep(now time.Time) int {
	if m.cfg.IdleTimeout <= 0 {
		return 0
	}
	var evicted []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		if now.Sub(s.LastActive()) > m.cfg.IdleTimeout {
			evicted = append(evicted, s)
			delete(m.sessions, id)
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()

	for _, s := range evicted {
		s.stopCloseTimer()
	}
	if len(evicted) > 0 {
		m.observer.SetActiveSessions(n)
		m.logger.Info("evicted idle map sessions", "count", len(evicted), "remaining", n)
	}
	return len(evicted)
}

// Run sweeps idle sessions every interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-ticker.C:
			m.Sweep(t)
		}
	}
}

// Shutdown stops every session and waits for in-flight fetches.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

func (m *Manager) newSession(id string, st *store.Store, createdAt time.Time) *Session {
	return New(id, st, Options{
		Fetcher:    m.fetcher,
		Observer:   m.observer,
		Logger:     m.logger,
		CloseDelay: m.cfg.CloseDelay,
		Now:        m.now,
		CreatedAt:  createdAt,
	})
}

func (m *Manager) register(s *Session) {
	m.mu.Lock()
	m.sessions[s.ID()] = s
	n := len(m.sessions)
	m.mu.Unlock()
	m.observer.SetActiveSessions(n)
}

func (m *Manager) save(ctx context.Context, s *Session) error {
	p := s.Params()
	now := m.now().UTC()
	rec := &types.MapSession{
		ID:        s.ID(),
		Region:    p.Region,
		Filters:   p.Filters,
		CreatedAt: s.CreatedAt().UTC(),
		UpdatedAt: now,
	}
	return m.repo.Save(ctx, rec)
}

func notFound(id string) error {
	return types.NewAppErrorWithDetails(types.ErrCodeNotFoundSession, "map session not found", nil,
		map[string]any{"session_id": id})
}
