package domain

import (
	"fmt"
	"math"
)

const earthRadiusMiles = 3958.8

// Location is a geographic point with an optional street address.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

// NewLocation creates a validated location.
func NewLocation(lat, lon float64, address string) (Location, error) {
	loc := Location{Latitude: lat, Longitude: lon, Address: address}
	if err := loc.Validate(); err != nil {
		return Location{}, err
	}
	return loc, nil
}

// Validate checks coordinate bounds.
func (l Location) Validate() error {
	if l.Latitude < -90 || l.Latitude > 90 {
		return NewValidationError("location.latitude", "must be between -90 and 90")
	}
	if l.Longitude < -180 || l.Longitude > 180 {
		return NewValidationError("location.longitude", "must be between -180 and 180")
	}
	return nil
}

// IsZero reports whether no coordinates are set.
func (l Location) IsZero() bool {
	return l.Latitude == 0 && l.Longitude == 0
}

// DistanceMiles returns the great-circle distance to other.
func (l Location) DistanceMiles(other Location) float64 {
	lat1 := l.Latitude * math.Pi / 180
	lat2 := other.Latitude * math.Pi / 180
	dLat := (other.Latitude - l.Latitude) * math.Pi / 180
	dLon := (other.Longitude - l.Longitude) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusMiles * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Key returns a stable key with coordinates rounded to roughly 100m.
func (l Location) Key() string {
	return fmt.Sprintf("%.3f,%.3f", l.Latitude, l.Longitude)
}

func (l Location) String() string {
	if l.Address != "" {
		return l.Address
	}
	return l.Key()
}
