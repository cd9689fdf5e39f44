// Package store holds the per-session application state: the fetched site
// list and its fetch status, the region/filter query parameters, the
// selection lifecycle and the navigation chooser flag.
//
// Each slice is updated by a pure transition function; Store serializes them
// behind a single lock and hands out value snapshots.
package store

import (
	"sync"

	"chargemap/internal/types"
)

// State is a snapshot of every slice.
type State struct {
	Sites      Sites      `json:"chargeSites"`
	Params     Params     `json:"params"`
	Selection  Selection  `json:"selection"`
	Navigation Navigation `json:"navigation"`
}

// CloseHandle identifies a pending Open→Closing transition. FinishClosing only
// applies if no select, switch or newer unselect happened since the handle
// was issued.
type CloseHandle uint64

// Store is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	state State
	// closeSeq is bumped by every selection transition.
	closeSeq uint64
}

// New returns a store with the given initial region and all filters Any.
func New(region types.Region) *Store {
	return &Store{
		state: State{
			Sites:      initialSites(),
			Params:     Params{Region: region},
			Selection:  IdleSelection(),
			Navigation: Navigation{},
		},
	}
}

// Restore returns a store seeded from a previously persisted state. Selection
// always restarts from Idle and the fetch status from idle.
func Restore(params Params, sites []types.ChargeSite) *Store {
	s := New(params.Region)
	s.state.Params.Filters = params.Filters
	if sites != nil {
		s.state.Sites.ChargeSites = sites
	}
	return s
}

// Snapshot returns a copy of the current state. The site slice is shared and
// must be treated as read-only.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.state
	if st.Selection.Site != nil {
		site := *st.Selection.Site
		st.Selection.Site = &site
	}
	if st.Sites.Error != nil {
		msg := *st.Sites.Error
		st.Sites.Error = &msg
	}
	return st
}

// Params returns the current query parameters.
func (s *Store) Params() Params {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Params
}

// UpdateRegion commits candidate if it falls outside the territory covered by
// the stored region, and reports whether it did.
func (s *Store) UpdateRegion(candidate types.Region) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, committed := updateRegion(s.state.Params, candidate)
	s.state.Params = next
	return committed
}

// UpdateRegionUnlessLocked is UpdateRegion for map gestures. While the
// viewport is locked the candidate is dropped and the lock is returned.
func (s *Store) UpdateRegionUnlessLocked(candidate types.Region) (committed bool, lock ViewportLock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lock := viewportLock(s.state); lock != Unlocked {
		return false, lock
	}
	next, committed := updateRegion(s.state.Params, candidate)
	s.state.Params = next
	return committed, Unlocked
}

// UpdateFilters replaces all three filters.
func (s *Store) UpdateFilters(f types.Filters) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Params = updateFilters(s.state.Params, f)
}

// FetchStarted marks the fetch pending and returns the params to fetch with.
func (s *Store) FetchStarted() Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Sites = fetchStarted(s.state.Sites)
	return s.state.Params
}

// FetchSucceeded replaces the site list.
func (s *Store) FetchSucceeded(sites []types.ChargeSite) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Sites = fetchSucceeded(s.state.Sites, sites)
}

// FetchFailed records the error message; an empty message is replaced by a
// generic one.
func (s *Store) FetchFailed(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Sites = fetchFailed(s.state.Sites, message)
}

// Select opens site. Selecting the site already held is a no-op, even while
// it is closing.
func (s *Store) Select(site types.ChargeSite) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, changed := selectSite(s.state.Selection, site)
	if changed {
		s.state.Selection = next
		s.closeSeq++
	}
	return changed
}

// Switch replaces the selection with site without a closing phase.
func (s *Store) Switch(site types.ChargeSite) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Selection = switchSite(s.state.Selection, site)
	s.closeSeq++
}

// Unselect starts closing the open site. ok is false when nothing was open.
func (s *Store) Unselect() (h CloseHandle, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, changed := unselect(s.state.Selection)
	if !changed {
		return 0, false
	}
	s.state.Selection = next
	s.closeSeq++
	return CloseHandle(s.closeSeq), true
}

// FinishClosing completes the close started by h. It does nothing when the
// selection has moved on since.
func (s *Store) FinishClosing(h CloseHandle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if uint64(h) != s.closeSeq {
		return false
	}
	next, changed := finishClosing(s.state.Selection)
	if changed {
		s.state.Selection = next
		s.closeSeq++
	}
	return changed
}

// Selection returns the current selection.
func (s *Store) Selection() Selection {
	return s.Snapshot().Selection
}

// ShowNavigation opens the navigation chooser.
func (s *Store) ShowNavigation() {
	s.setNavigation(true)
}

// HideNavigation closes the navigation chooser.
func (s *Store) HideNavigation() {
	s.setNavigation(false)
}

func (s *Store) setNavigation(show bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Navigation = setNavigation(s.state.Navigation, show)
}
