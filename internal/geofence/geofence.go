package geofence

import "math"

// EarthRadius is the mean Earth radius in meters used by Distance.
const EarthRadius = 6371000.0

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

// Valid reports whether the point lies within the latitude/longitude ranges.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Verdict is the outcome of a single geofence check.
type Verdict struct {
	Distance float64
	Inside   bool
	Radius   float64
}

// Distance returns the great-circle distance in meters between two coordinates.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	φ1 := lat1 * math.Pi / 180
	φ2 := lat2 * math.Pi / 180
	Δφ := (lat2 - lat1) * math.Pi / 180
	Δλ := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(Δφ/2)*math.Sin(Δφ/2) + math.Cos(φ1)*math.Cos(φ2)*math.Sin(Δλ/2)*math.Sin(Δλ/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadius * c
}

// IsInside reports whether a distance falls within radius. The boundary counts as inside.
func IsInside(distance, radius float64) bool {
	return distance <= radius
}

// Evaluate measures p against a circular fence around center.
func Evaluate(center, p Point, radius float64) Verdict {
	d := Distance(center.Lat, center.Lon, p.Lat, p.Lon)
	return Verdict{Distance: d, Inside: IsInside(d, radius), Radius: radius}
}
