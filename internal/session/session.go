// Package session drives one map session: it owns the session's state store,
// runs the fetch effect whenever the query parameters are committed, and owns
// the timer that completes the popup close animation.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"chargemap/internal/external"
	"chargemap/internal/navigation"
	"chargemap/internal/store"
	"chargemap/internal/types"
)

// DefaultCloseDelay is how long a site stays in the closing phase.
const DefaultCloseDelay = 300 * time.Millisecond

// Fetcher retrieves the charge sites matching a region and filters.
type Fetcher interface {
	FetchChargeSites(ctx context.Context, region types.Region, filters types.Filters) ([]types.ChargeSite, error)
}

// Fetch outcomes reported to the Observer.
const (
	OutcomeSuccess = "success"
	OutcomeTimeout = "timeout"
	OutcomeError   = "error"
)

// Observer receives session events for metrics.
type Observer interface {
	ObserveFetch(outcome string, duration time.Duration)
	ObserveViewport(requeried bool)
	SetActiveSessions(n int)
}

type noopObserver struct{}

func (noopObserver) ObserveFetch(string, time.Duration) {}
func (noopObserver) ObserveViewport(bool)               {}
func (noopObserver) SetActiveSessions(int)              {}

// ClickAction is what a marker click resolved to.
type ClickAction string

const (
	ClickSelected   ClickAction = "selected"
	ClickSwitched   ClickAction = "switched"
	ClickUnselected ClickAction = "unselected"
)

// Session is one user's map. All methods are safe for concurrent use.
type Session struct {
	id         string
	createdAt  time.Time
	store      *store.Store
	fetcher    Fetcher
	observer   Observer
	logger     *slog.Logger
	closeDelay time.Duration
	now        func() time.Time

	mu         sync.Mutex
	closeTimer *time.Timer
	lastActive time.Time
	lastFetch  <-chan struct{}

	fetches sync.WaitGroup
}

// Options configures a Session.
type Options struct {
	Fetcher    Fetcher
	Observer   Observer
	Logger     *slog.Logger
	CloseDelay time.Duration
	Now        func() time.Time
	// CreatedAt is kept for restored sessions. Zero means now.
	CreatedAt time.Time
}

// New creates a session around st. No fetch is started.
func New(id string, st *store.Store, opts Options) *Session {
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.CloseDelay <= 0 {
		opts.CloseDelay = DefaultCloseDelay
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	now := opts.Now()
	createdAt := opts.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	return &Session{
		id:         id,
		createdAt:  createdAt,
		store:      st,
		fetcher:    opts.Fetcher,
		observer:   opts.Observer,
		logger:     opts.Logger.With("session_id", id),
		closeDelay: opts.CloseDelay,
		now:        opts.Now,
		lastActive: now,
		lastFetch:  closedChan(),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// CreatedAt returns when the session was first created. Restored sessions
// keep their original time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Snapshot returns the current state.
func (s *Session) Snapshot() store.State {
	s.touch()
	return s.store.Snapshot()
}

// Params returns the committed query parameters.
func (s *Session) Params() store.Params {
	return s.store.Params()
}

// LastActive returns the time of the last call on the session.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// UpdateViewport evaluates candidate against the last committed region and
// fetches when it is committed. Any open popup is closed either way. done is
// closed when the triggered fetch resolves, or immediately when none was
// triggered.
//
// While the navigation chooser is open or a fetch error is showing the map is
// frozen: the candidate is dropped, nothing is closed and ignored names the
// reason.
func (s *Session) UpdateViewport(ctx context.Context, candidate types.Region) (requeried bool, ignored store.ViewportLock, done <-chan struct{}) {
	s.touch()
	requeried, ignored = s.store.UpdateRegionUnlessLocked(candidate)
	if ignored != store.Unlocked {
		s.logger.DebugContext(ctx, "viewport locked, ignoring move", "reason", string(ignored))
		return false, ignored, closedChan()
	}
	s.observer.ObserveViewport(requeried)

	done = closedChan()
	if requeried {
		s.logger.DebugContext(ctx, "viewport left covered region, requerying",
			"latitude", candidate.Latitude,
			"longitude", candidate.Longitude,
		)
		done = s.startFetch(ctx)
	}
	s.Unselect()
	return requeried, store.Unlocked, done
}

// UpdateFilters replaces the filters, closes any open popup and fetches.
func (s *Session) UpdateFilters(ctx context.Context, f types.Filters) <-chan struct{} {
	s.touch()
	s.store.UpdateFilters(f)
	s.Unselect()
	return s.startFetch(ctx)
}

// Refresh refetches with the current parameters. It is the retry action after
// a failed fetch.
func (s *Session) Refresh(ctx context.Context) <-chan struct{} {
	s.touch()
	return s.startFetch(ctx)
}

// Wait blocks until the most recently started fetch resolves or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.lastFetch
	s.mu.Unlock()
	return WaitFor(ctx, done)
}

// WaitFor blocks until done is closed or ctx is done.
func WaitFor(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// startFetch marks the store pending and fetches in the background. Fetches
// are never cancelled; whichever resolves last determines the stored list.
func (s *Session) startFetch(ctx context.Context) <-chan struct{} {
	params := s.store.FetchStarted()
	done := make(chan struct{})

	s.mu.Lock()
	s.lastFetch = done
	s.mu.Unlock()

	fetchCtx := context.WithoutCancel(ctx)
	s.fetches.Add(1)
	go func() {
		defer s.fetches.Done()
		defer close(done)

		start := time.Now()
		sites, err := s.fetcher.FetchChargeSites(fetchCtx, params.Region, params.Filters)
		elapsed := time.Since(start)

		if err != nil {
			outcome := OutcomeError
			var te *external.TimeoutError
			if errors.As(err, &te) {
				outcome = OutcomeTimeout
			}
			s.observer.ObserveFetch(outcome, elapsed)
			s.logger.WarnContext(fetchCtx, "charge site fetch failed",
				"error", err,
				"duration_ms", elapsed.Milliseconds(),
			)
			s.store.FetchFailed(err.Error())
			return
		}

		s.observer.ObserveFetch(OutcomeSuccess, elapsed)
		s.logger.DebugContext(fetchCtx, "charge sites fetched",
			"count", len(sites),
			"duration_ms", elapsed.Milliseconds(),
		)
		s.store.FetchSucceeded(sites)
	}()
	return done
}

// ClickSite applies a marker click: clicking the selected site closes it,
// clicking another site switches to it, and with nothing selected the site
// is opened.
func (s *Session) ClickSite(id int64) (ClickAction, error) {
	s.touch()
	if current, ok := s.store.Selection().SiteID(); ok {
		if current == id {
			s.Unselect()
			return ClickUnselected, nil
		}
		if err := s.SwitchSite(id); err != nil {
			return "", err
		}
		return ClickSwitched, nil
	}
	if err := s.SelectSite(id); err != nil {
		return "", err
	}
	return ClickSelected, nil
}

// SelectSite opens the site with the given id from the current list.
func (s *Session) SelectSite(id int64) error {
	s.touch()
	site, err := s.lookup(id)
	if err != nil {
		return err
	}
	if s.store.Select(site) {
		s.stopCloseTimer()
	}
	return nil
}

// SwitchSite replaces the selection without a closing phase.
func (s *Session) SwitchSite(id int64) error {
	s.touch()
	site, err := s.lookup(id)
	if err != nil {
		return err
	}
	s.store.Switch(site)
	s.stopCloseTimer()
	return nil
}

// Unselect starts closing the open site and schedules completion.
func (s *Session) Unselect() {
	s.touch()
	h, ok := s.store.Unselect()
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closeTimer != nil {
		s.closeTimer.Stop()
	}
	s.closeTimer = time.AfterFunc(s.closeDelay, func() {
		s.store.FinishClosing(h)
	})
}

// ShowNavigation toggles the navigation chooser.
func (s *Session) ShowNavigation(show bool) {
	s.touch()
	if show {
		s.store.ShowNavigation()
	} else {
		s.store.HideNavigation()
	}
}

// NavigationLinks returns directions links for the selected site. A site that
// is closing still has links.
func (s *Session) NavigationLinks() ([]navigation.Link, error) {
	s.touch()
	sel := s.store.Selection()
	if sel.Site == nil {
		return nil, types.NewAppError(types.ErrCodeNotFoundChargeSite, "no charge site is selected", nil)
	}
	return navigation.Links(*sel.Site), nil
}

// Close stops the close timer and waits for in-flight fetches.
func (s *Session) Close() {
	s.stopCloseTimer()
	s.fetches.Wait()
}

func (s *Session) lookup(id int64) (types.ChargeSite, error) {
	site, ok := types.FindSite(s.store.Snapshot().Sites.ChargeSites, id)
	if !ok {
		return types.ChargeSite{}, types.NewAppErrorWithDetails(types.ErrCodeNotFoundChargeSite,
			"charge site is not in the current list", nil, map[string]any{"site_id": id})
	}
	return site, nil
}

func (s *Session) stopCloseTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closeTimer != nil {
		s.closeTimer.Stop()
		s.closeTimer = nil
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = s.now()
	s.mu.Unlock()
}

func closedChan() <-chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}
