package queue

import "math"

// earthRadiusKm is the mean Earth radius used by the spherical approximation.
const earthRadiusKm = 6371.0

// DistanceKm computes the great-circle (haversine) distance between two
// coordinate pairs, in kilometers.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// IsWithinRadius reports whether the claimed point lies within radiusKm of
// the hospital point. The boundary is inclusive.
func IsWithinRadius(patientLat, patientLon, hospitalLat, hospitalLon, radiusKm float64) bool {
	return DistanceKm(patientLat, patientLon, hospitalLat, hospitalLon) <= radiusKm
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
