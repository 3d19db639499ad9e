package protection

import (
	"math"
	"strings"
)

const earthRadiusKm = 6371.0

// DistanceKm is the great-circle distance between two points (haversine).
func DistanceKm(a, b Point) float64 {
	dLat := (b.Lat - a.Lat) * (math.Pi / 180.0)
	dLng := (b.Lng - a.Lng) * (math.Pi / 180.0)

	lat1 := a.Lat * (math.Pi / 180.0)
	lat2 := b.Lat * (math.Pi / 180.0)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLng/2)*math.Sin(dLng/2)*math.Cos(lat1)*math.Cos(lat2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}
