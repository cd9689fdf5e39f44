package store

import "chargemap/internal/types"

// Selection is the selection lifecycle: Idle, Open(site) or Closing(site).
// The site is retained while closing so the popup can render its closing
// animation.
type Selection struct {
	Phase types.SelectionPhase `json:"phase"`
	Site  *types.ChargeSite    `json:"site"`
}

// IdleSelection is the initial state.
func IdleSelection() Selection {
	return Selection{Phase: types.PhaseIdle}
}

// IsOpen reports whether a site is selected and not closing.
func (s Selection) IsOpen() bool { return s.Phase == types.PhaseOpen }

// IsClosing reports whether the popup is mid-close.
func (s Selection) IsClosing() bool { return s.Phase == types.PhaseClosing }

// SiteID returns the selected site's id, if any site is held.
func (s Selection) SiteID() (int64, bool) {
	if s.Site == nil {
		return 0, false
	}
	return s.Site.ID, true
}

// selectSite opens site unless it is already the held site, in which case the
// state is returned unchanged (including while closing). changed reports
// whether a transition happened.
func selectSite(s Selection, site types.ChargeSite) (next Selection, changed bool) {
	if id, ok := s.SiteID(); ok && id == site.ID {
		return s, false
	}
	return openSelection(site), true
}

// switchSite replaces the selection unconditionally, skipping the closing
// animation.
func switchSite(_ Selection, site types.ChargeSite) Selection {
	return openSelection(site)
}

// unselect moves Open(site) to Closing(site). Idle and Closing are left alone.
func unselect(s Selection) (next Selection, changed bool) {
	if s.Phase != types.PhaseOpen {
		return s, false
	}
	return Selection{Phase: types.PhaseClosing, Site: s.Site}, true
}

// finishClosing moves Closing(site) to Idle.
func finishClosing(s Selection) (next Selection, changed bool) {
	if s.Phase != types.PhaseClosing {
		return s, false
	}
	return IdleSelection(), true
}

func openSelection(site types.ChargeSite) Selection {
	held := site
	return Selection{Phase: types.PhaseOpen, Site: &held}
}
