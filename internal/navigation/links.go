// Package navigation builds deep links that hand a charge site's coordinates
// to an external navigation app.
package navigation

import (
	"strconv"

	"chargemap/internal/types"
)

// App identifies a supported navigation application.
type App string

const (
	AppGoogleMaps App = "google_maps"
	AppWaze       App = "waze"
	AppAppleMaps  App = "apple_maps"
)

// Apps lists the supported applications in display order.
var Apps = []App{AppGoogleMaps, AppWaze, AppAppleMaps}

// Label returns the user-facing name.
func (a App) Label() string {
	switch a {
	case AppGoogleMaps:
		return "Google Maps"
	case AppWaze:
		return "Waze"
	case AppAppleMaps:
		return "Apple Maps"
	default:
		return string(a)
	}
}

// Link is one navigation option for a site.
type Link struct {
	App   App    `json:"app"`
	Label string `json:"label"`
	URL   string `json:"url"`
}

// URL returns the deep link for destination. Coordinates are inserted
// verbatim in shortest round-trip decimal form.
func URL(app App, destination types.ChargeSite) (string, bool) {
	lat := formatCoord(destination.Latitude)
	lon := formatCoord(destination.Longitude)
	switch app {
	case AppGoogleMaps:
		return "https://www.google.com/maps/dir/?api=1&destination=" + lat + "," + lon, true
	case AppWaze:
		return "https://waze.com/ul?ll=" + lat + "," + lon + "&navigate=yes", true
	case AppAppleMaps:
		return "https://beta.maps.apple.com/?daddr=" + lat + "," + lon, true
	default:
		return "", false
	}
}

// Links returns a link for every supported app.
func Links(destination types.ChargeSite) []Link {
	links := make([]Link, 0, len(Apps))
	for _, app := range Apps {
		u, _ := URL(app, destination)
		links = append(links, Link{App: app, Label: app.Label(), URL: u})
	}
	return links
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
