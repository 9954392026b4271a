// internal/domain/geo/service.go

package geo

import (
	"errors"
)

// GeohashPrecision is the number of characters stored in a post's geohash
const GeohashPrecision = 9

// ErrInvalidCoordinates is returned for a latitude or longitude out of range
var ErrInvalidCoordinates = errors.New("coordinates out of range")

// Location represents a geographic point
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Service defines the interface for geospatial helpers used by posts
type Service interface {
	// Validate checks that a location is on the globe
	Validate(location Location) error

	// Geohash encodes a location at GeohashPrecision
	Geohash(location Location) string
}
