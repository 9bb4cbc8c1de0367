package distance

import (
	"context"
	"fmt"

	"fieldroute/internal/model"
)

// Mock is a deterministic Provider for tests, keyed by coordinate pair.
type Mock struct {
	m    map[string]Result
	Fail map[string]bool // pairs that return an error
}

func NewMock() *Mock {
	return &Mock{m: map[string]Result{}, Fail: map[string]bool{}}
}

func pairKey(a, b model.GeoPoint) string {
	return fmt.Sprintf("%.4f,%.4f|%.4f,%.4f", a.Lat, a.Lng, b.Lat, b.Lng)
}

// Set registers the result for a->b (and b->a unless already set).
func (p *Mock) Set(a, b model.GeoPoint, miles, minutes float64) {
	p.m[pairKey(a, b)] = Result{Miles: miles, Minutes: minutes}
	if _, ok := p.m[pairKey(b, a)]; !ok {
		p.m[pairKey(b, a)] = Result{Miles: miles, Minutes: minutes}
	}
}

// FailPair makes lookups for a->b return an error.
func (p *Mock) FailPair(a, b model.GeoPoint) {
	p.Fail[pairKey(a, b)] = true
}

func (p *Mock) Distance(_ context.Context, a, b model.GeoPoint) (Result, error) {
	k := pairKey(a, b)
	if p.Fail[k] {
		return Result{}, fmt.Errorf("mock: forced failure for %s", k)
	}
	r, ok := p.m[k]
	if !ok {
		return Result{}, fmt.Errorf("mock: missing pair %s", k)
	}
	return r, nil
}
