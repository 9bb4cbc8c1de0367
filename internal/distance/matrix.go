package distance

import (
	"context"
	"sync"

	"fieldroute/internal/model"
)

// Matrix is a run-scoped memoized distance lookup over a set of nodes.
// Each coordinate pair is resolved through the Provider at most once per
// run; if the provider fails the leg falls back to a straight-line estimate
// and the matrix is marked degraded. A Matrix is discarded when the run
// completes — nothing is cached across optimization runs.
type Matrix struct {
	nodes    []model.GeoPoint
	provider Provider
	fallback *Haversine

	mu       sync.Mutex
	memo     map[[2]int]Result
	degraded bool
}

func NewMatrix(nodes []model.GeoPoint, provider Provider, fallbackSpeedMph float64) *Matrix {
	return &Matrix{
		nodes:    nodes,
		provider: provider,
		fallback: NewHaversine(fallbackSpeedMph),
		memo:     make(map[[2]int]Result, len(nodes)*len(nodes)),
	}
}

// Leg returns the travel cost from node i to node j.
func (m *Matrix) Leg(ctx context.Context, i, j int) Result {
	if i == j {
		return Result{}
	}
	key := [2]int{i, j}
	m.mu.Lock()
	if r, ok := m.memo[key]; ok {
		m.mu.Unlock()
		return r
	}
	m.mu.Unlock()

	r, err := m.provider.Distance(ctx, m.nodes[i], m.nodes[j])
	if err != nil {
		// Degrade to a straight-line estimate rather than failing the run.
		// A leg skipped because the run deadline expired is a timeout, not
		// a provider failure, so it does not flip the degraded flag.
		r, _ = m.fallback.Distance(ctx, m.nodes[i], m.nodes[j])
		if ctx.Err() == nil {
			m.mu.Lock()
			m.degraded = true
			m.mu.Unlock()
		}
	}

	m.mu.Lock()
	m.memo[key] = r
	m.mu.Unlock()
	return r
}

// Degraded reports whether any leg fell back to a haversine estimate.
func (m *Matrix) Degraded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.degraded
}

// Prefetch resolves all pairwise legs up front with bounded concurrency so
// the search phases run against warm memoization only.
func (m *Matrix) Prefetch(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 5
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i := range m.nodes {
		for j := range m.nodes {
			if i == j {
				continue
			}
			if ctx.Err() != nil {
				wg.Wait()
				return
			}
			wg.Add(1)
			go func(i, j int) {
				sem <- struct{}{}
				defer wg.Done()
				defer func() { <-sem }()
				m.Leg(ctx, i, j)
			}(i, j)
		}
	}
	wg.Wait()
}
