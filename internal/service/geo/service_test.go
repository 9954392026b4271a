package geo

import (
	"errors"
	"testing"

	"github.com/mmcloughlin/geohash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wimbli/internal/domain/geo"
)

func TestGeohashPrecision(t *testing.T) {
	s := NewGeoSpatialService()
	loc := geo.Location{Latitude: 37.7749, Longitude: -122.4194}

	hash := s.Geohash(loc)
	require.Len(t, hash, geo.GeohashPrecision)
	assert.Equal(t, "9q8yy", hash[:5])
	assert.True(t, geohash.BoundingBox(hash).Contains(loc.Latitude, loc.Longitude))
}

func TestValidate(t *testing.T) {
	s := NewGeoSpatialService()

	assert.NoError(t, s.Validate(geo.Location{Latitude: -90, Longitude: 180}))

	err := s.Validate(geo.Location{Latitude: 91})
	assert.True(t, errors.Is(err, geo.ErrInvalidCoordinates))

	err = s.Validate(geo.Location{Longitude: -181})
	assert.ErrorIs(t, err, geo.ErrInvalidCoordinates)
}
