package distance

import (
	"context"

	"fieldroute/internal/model"
)

// Result is the travel cost between two points.
type Result struct {
	Miles   float64
	Minutes float64
}

// Provider returns travel distance and duration between two coordinates.
// Implementations may block on I/O; callers pass a context for cancellation.
type Provider interface {
	Distance(ctx context.Context, a, b model.GeoPoint) (Result, error)
}
