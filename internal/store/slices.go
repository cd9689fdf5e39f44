package store

import (
	"chargemap/internal/geo"
	"chargemap/internal/types"
)

// defaultFetchError is stored when a fetch fails without a usable message.
const defaultFetchError = "failed to fetch charge sites"

// Sites is the fetched site list and the status of the current fetch cycle.
type Sites struct {
	ChargeSites []types.ChargeSite `json:"chargeSites"`
	Loading     types.LoadStatus   `json:"loading"`
	Error       *string            `json:"error"`
}

// Params is the region and filter pair that scopes the next fetch.
type Params struct {
	Region  types.Region  `json:"region"`
	Filters types.Filters `json:"filters"`
}

// Navigation tracks whether the navigation-app chooser is visible.
type Navigation struct {
	ShowPopup bool `json:"showPopup"`
}

// ViewportLock names why map move and zoom are ignored. The map is frozen
// while the navigation chooser is up or a fetch error is being shown.
type ViewportLock string

const (
	Unlocked           ViewportLock = ""
	LockedByNavigation ViewportLock = "navigation_open"
	LockedByFetchError ViewportLock = "fetch_error"
)

func viewportLock(st State) ViewportLock {
	switch {
	case st.Navigation.ShowPopup:
		return LockedByNavigation
	case st.Sites.Error != nil:
		return LockedByFetchError
	default:
		return Unlocked
	}
}

func initialSites() Sites {
	return Sites{ChargeSites: []types.ChargeSite{}, Loading: types.LoadIdle}
}

// fetchStarted begins a new fetch cycle. The site list and any previous
// error stay as they are until the cycle resolves.
func fetchStarted(s Sites) Sites {
	s.Loading = types.LoadPending
	return s
}

func fetchSucceeded(s Sites, sites []types.ChargeSite) Sites {
	if sites == nil {
		sites = []types.ChargeSite{}
	}
	return Sites{ChargeSites: sites, Loading: types.LoadSucceeded}
}

// fetchFailed marks the cycle failed. The previous site list is left in the
// slot.
func fetchFailed(s Sites, message string) Sites {
	if message == "" {
		message = defaultFetchError
	}
	s.Loading = types.LoadFailed
	s.Error = &message
	return s
}

// updateRegion commits candidate when it leaves the territory covered by the
// stored region. Decision and commit happen together.
func updateRegion(p Params, candidate types.Region) (Params, bool) {
	if !geo.ShouldRequery(p.Region, candidate) {
		return p, false
	}
	p.Region = candidate
	return p, true
}

func updateFilters(p Params, f types.Filters) Params {
	p.Filters = f
	return p
}

func setNavigation(_ Navigation, show bool) Navigation {
	return Navigation{ShowPopup: show}
}
