package distance

import (
	"context"
	"math"

	"fieldroute/internal/model"
)

const earthRadiusMiles = 3958.8

// HaversineMiles returns the great-circle distance between two points.
func HaversineMiles(a, b model.GeoPoint) float64 {
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusMiles * c
}

// Haversine is a Provider that estimates travel cost as straight-line
// distance at a fixed average speed. It is the default when no routing
// service is configured and the fallback when one fails.
type Haversine struct {
	SpeedMph float64
}

func NewHaversine(speedMph float64) *Haversine {
	if speedMph <= 0 {
		speedMph = 30
	}
	return &Haversine{SpeedMph: speedMph}
}

func (h *Haversine) Distance(_ context.Context, a, b model.GeoPoint) (Result, error) {
	mi := HaversineMiles(a, b)
	return Result{Miles: mi, Minutes: mi / h.SpeedMph * 60}, nil
}
