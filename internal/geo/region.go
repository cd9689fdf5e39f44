// Package geo implements the viewport arithmetic of the map client: the
// initial region half-span, the viewport-to-region conversion, and the requery
// decision that tells the store whether a new viewport has left the territory
// covered by the last fetch.
//
// Known limitation: every comparison here is linear in raw degrees. Nothing
// accounts for antimeridian wrapping or for the jitter the backend applies to
// obfuscated coordinates, so decisions near ±180° longitude are wrong. The
// backend's distance query has the same limitation. Fixing it needs a
// wrap-aware (great-circle) comparison on both sides at once.
package geo

import (
	"math"

	"chargemap/internal/types"
)

// QueryDistanceScale is how many times farther than the visible region sites
// are fetched. It must equal the backend's QUERY_DISTANCE_SCALE, otherwise the
// client will requery too early or leave gaps the backend never returned.
const QueryDistanceScale = 2.0

// DefaultZoom is the zoom level the map opens at.
const DefaultZoom = 12

// DefaultCenter is the map's initial center.
var DefaultCenter = types.LatLng{Lat: 45.54698979840522, Lng: -122.66310214492715}

// CalculateDelta estimates a half-span in degrees for the given aspect
// multiplier at the given zoom: (180 * aspect) / 2^(zoom-1).
func CalculateDelta(aspect float64, zoom int) float64 {
	return (180 * aspect) / math.Pow(2, float64(zoom-1))
}

// InitialRegion builds the startup region. The latitude delta is scaled by the
// window aspect ratio (width/height) while the longitude delta always uses an
// aspect of 1. The asymmetry matches what the backend has always received and
// is kept for parity.
func InitialRegion(center types.LatLng, aspect float64, zoom int) types.Region {
	return types.Region{
		Latitude:       center.Lat,
		Longitude:      center.Lng,
		LatitudeDelta:  CalculateDelta(aspect, zoom),
		LongitudeDelta: CalculateDelta(1, zoom),
	}
}

// MaxDistance is the radius the backend searches for a region with the given
// deltas.
func MaxDistance(latitudeDelta, longitudeDelta float64) float64 {
	return QueryDistanceScale * math.Max(latitudeDelta, longitudeDelta)
}

// box is an axis-aligned rectangle in the engine's own frame: west/east are
// derived from latitude and south/north from longitude.
type box struct {
	west, east, south, north float64
}

// staleBox is the territory covered by a fetch of last: a square of
// MaxDistance half-span around its center.
func staleBox(last types.Region) box {
	d := MaxDistance(last.LatitudeDelta, last.LongitudeDelta)
	return box{
		west:  last.Latitude - d,
		east:  last.Latitude + d,
		south: last.Longitude - d,
		north: last.Longitude + d,
	}
}

// viewBox is the candidate's own rectangle using its unscaled deltas.
func viewBox(r types.Region) box {
	return box{
		west:  r.Latitude - r.LatitudeDelta,
		east:  r.Latitude + r.LatitudeDelta,
		south: r.Longitude - r.LongitudeDelta,
		north: r.Longitude + r.LongitudeDelta,
	}
}

// ShouldRequery reports whether candidate extends beyond the territory
// covered by the last fetched region on any of its four sides. It is not
// symmetric in its arguments.
func ShouldRequery(last, candidate types.Region) bool {
	old := staleBox(last)
	nb := viewBox(candidate)
	return nb.west < old.west ||
		nb.east > old.east ||
		nb.south < old.south ||
		nb.north > old.north
}

// RegionFromBounds converts map viewport bounds into the region the engine
// consumes. The horizontal (east-west) span becomes latitudeDelta and the
// vertical span becomes longitudeDelta; this is the frame ShouldRequery was
// written against and must not be "corrected" on one side only.
func RegionFromBounds(north, south, east, west float64) types.Region {
	return types.Region{
		Latitude:       (north + south) / 2,
		Longitude:      (east + west) / 2,
		LatitudeDelta:  math.Abs(east-west) / 2,
		LongitudeDelta: math.Abs(south-north) / 2,
	}
}
