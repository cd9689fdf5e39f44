// Package types holds the domain model shared by the chargemap gateway: the
// charge-site record returned by the backend, the query region and tri-state
// filters that scope a fetch, and the error catalogue used by every layer.
package types

import (
	"fmt"
	"math"
	"time"
)

// ChargeSite is a single charge site as returned by the backend API.
// Records are never patched client-side; every fetch replaces the whole list.
// Field names follow the backend's camelCase wire format.
type ChargeSite struct {
	ID               int64   `json:"id"`
	UserID           int64   `json:"userId"`
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
	ObfuscatedStatus bool    `json:"obfuscatedStatus"`
	ReservedStatus   bool    `json:"reservedStatus"`
	PrivateStatus    bool    `json:"privateStatus"`
	RateOfCharge     float64 `json:"rateOfCharge"`
}

// FindSite returns the site with the given id from sites, if present.
func FindSite(sites []ChargeSite, id int64) (ChargeSite, bool) {
	for _, s := range sites {
		if s.ID == id {
			return s, true
		}
	}
	return ChargeSite{}, false
}

// Region is a center point plus half-span deltas, in degrees. It describes the
// last region actually queried against the backend, which is not necessarily
// the region currently on screen.
type Region struct {
	Latitude       float64 `json:"latitude" validate:"latitude"`
	Longitude      float64 `json:"longitude" validate:"longitude"`
	LatitudeDelta  float64 `json:"latitudeDelta" validate:"gte=0"`
	LongitudeDelta float64 `json:"longitudeDelta" validate:"gte=0"`
}

// Validate checks that the deltas are non-negative finite numbers and the
// center is a finite coordinate.
func (r Region) Validate() error {
	for name, v := range map[string]float64{
		"latitude":       r.Latitude,
		"longitude":      r.Longitude,
		"latitudeDelta":  r.LatitudeDelta,
		"longitudeDelta": r.LongitudeDelta,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return NewAppErrorWithDetails(ErrCodeValidationInvalidRegion,
				fmt.Sprintf("%s must be a finite number", name), nil,
				map[string]any{"field": name})
		}
	}
	if r.LatitudeDelta < 0 || r.LongitudeDelta < 0 {
		return NewAppError(ErrCodeValidationInvalidRegion, "region deltas must be non-negative", nil)
	}
	return nil
}

// Filters holds the three independent filter axes. A zero Filters value
// places no constraint on any axis.
type Filters struct {
	ObfuscatedFilter Filter `json:"obfuscatedFilter"`
	ReservedFilter   Filter `json:"reservedFilter"`
	PrivateFilter    Filter `json:"privateFilter"`
}

// LatLng is a bare coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// MapSession is the persisted part of a map session: the parameters of its
// last committed query. Sites and selection are not persisted; a restored
// session refetches.
type MapSession struct {
	ID        string    `json:"id"`
	Region    Region    `json:"region"`
	Filters   Filters   `json:"filters"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
