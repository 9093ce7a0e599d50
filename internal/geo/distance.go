package geo

import "math"

// EarthRadiusMeters is the Earth radius used for Haversine.
const EarthRadiusMeters = 6371000.0

// DistanceMeters returns the great-circle distance in meters between two
// points given in degrees.
func DistanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	φ1, φ2 := rad(lat1), rad(lat2)
	Δφ := rad(lat2 - lat1)
	Δλ := rad(lng2 - lng1)
	a := math.Sin(Δφ/2)*math.Sin(Δφ/2) +
		math.Cos(φ1)*math.Cos(φ2)*math.Sin(Δλ/2)*math.Sin(Δλ/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// Point is a position in degrees.
type Point struct {
	Latitude  float64
	Longitude float64
}

// Distance returns the great-circle distance in meters between two points.
func Distance(a, b Point) float64 {
	return DistanceMeters(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

// Viewport is a latitude/longitude bounding box.
type Viewport struct {
	MinLatitude  float64 `json:"min_latitude"`
	MaxLatitude  float64 `json:"max_latitude"`
	MinLongitude float64 `json:"min_longitude"`
	MaxLongitude float64 `json:"max_longitude"`
}

// Contains reports whether the point lies inside the box (inclusive).
func (v Viewport) Contains(lat, lng float64) bool {
	return lat >= v.MinLatitude && lat <= v.MaxLatitude &&
		lng >= v.MinLongitude && lng <= v.MaxLongitude
}
