// internal/service/geo/service.go

package geo

import (
	"fmt"
	"math"

	"github.com/mmcloughlin/geohash"

	"wimbli/internal/domain/geo"
)

// GeoSpatialService implements geo.Service
type GeoSpatialService struct {
	precision uint
}

// NewGeoSpatialService creates a new geospatial service
func NewGeoSpatialService() *GeoSpatialService {
	return &GeoSpatialService{precision: geo.GeohashPrecision}
}

// Validate checks that a location is on the globe
func (s *GeoSpatialService) Validate(location geo.Location) error {
	if math.IsNaN(location.Latitude) || location.Latitude < -90 || location.Latitude > 90 {
		return fmt.Errorf("latitude %v: %w", location.Latitude, geo.ErrInvalidCoordinates)
	}
	if math.IsNaN(location.Longitude) || location.Longitude < -180 || location.Longitude > 180 {
		return fmt.Errorf("longitude %v: %w", location.Longitude, geo.ErrInvalidCoordinates)
	}
	return nil
}

// Geohash encodes a location at the configured precision
func (s *GeoSpatialService) Geohash(location geo.Location) string {
	return geohash.EncodeWithPrecision(location.Latitude, location.Longitude, s.precision)
}
