package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// northOf returns a point the given number of meters due north of (lat, lng).
// A pure latitude displacement makes the haversine distance exact, which lets
// the tests probe the overlap boundary precisely.
func northOf(lat, lng, meters float64) (float64, float64) {
	return lat + (meters/EarthRadiusMeters)*180/math.Pi, lng
}

func TestDistanceZero(t *testing.T) {
	assert.Zero(t, DistanceMeters(37.5665, 126.9780, 37.5665, 126.9780))
}

func TestDistanceSymmetry(t *testing.T) {
	d1 := DistanceMeters(37.5665, 126.9780, 37.56655, 126.97805)
	d2 := DistanceMeters(37.56655, 126.97805, 37.5665, 126.9780)
	assert.InDelta(t, d1, d2, 1e-9)
}

func TestDistanceSeoulScenario(t *testing.T) {
	// Two users ~6m apart in central Seoul.
	d := DistanceMeters(37.5665, 126.9780, 37.56655, 126.97805)
	require.Greater(t, d, 5.0)
	require.Less(t, d, 8.0)
}

func TestDistanceBoundary(t *testing.T) {
	lat, lng := 37.5665, 126.9780

	lat20, lng20 := northOf(lat, lng, 20.0)
	assert.InDelta(t, 20.0, DistanceMeters(lat, lng, lat20, lng20), 1e-6)

	lat21, lng21 := northOf(lat, lng, 20.01)
	assert.Greater(t, DistanceMeters(lat, lng, lat21, lng21), 20.0)
}

func TestDistanceFiftyMeters(t *testing.T) {
	lat, lng := 37.5665, 126.9780
	lat50, lng50 := northOf(lat, lng, 50.0)
	assert.InDelta(t, 50.0, DistanceMeters(lat, lng, lat50, lng50), 1e-6)
}

func TestViewportContains(t *testing.T) {
	v := Viewport{MinLatitude: 37.0, MaxLatitude: 38.0, MinLongitude: 126.0, MaxLongitude: 127.0}
	assert.True(t, v.Contains(37.5665, 126.9780))
	assert.True(t, v.Contains(37.0, 126.0))
	assert.False(t, v.Contains(36.9999, 126.5))
	assert.False(t, v.Contains(37.5, 127.0001))
}
