package opt

import (
	"context"

	"fieldroute/internal/distance"
)

// improver carries the shared state of one local-search run. Candidate
// moves are evaluated against the current solution snapshot and only an
// accepted move mutates it, so the solution the caller holds is never
// observed mid-move.
type improver struct {
	ctx context.Context
	p   Problem
	m   *distance.Matrix
	cfg Config

	sol       Solution
	evaluated int
	accepted  int
	passes    int
}

// Improve applies 2-opt, relocation, and swap moves until no move improves
// the objective, the move-evaluation budget is spent, or the deadline
// expires. It never returns a solution worse than the one it was given.
func Improve(ctx context.Context, p Problem, m *distance.Matrix, cfg Config, sol Solution) (Solution, Metrics) {
	im := &improver{ctx: ctx, p: p, m: m, cfg: cfg, sol: sol}
	for {
		if im.exhausted() {
			break
		}
		im.passes++
		improved := im.twoOptPass()
		if !improved {
			improved = im.relocatePass()
		}
		if !improved {
			improved = im.swapPass()
		}
		if !improved {
			break
		}
	}
	return im.sol, Metrics{
		MovesEvaluated: im.evaluated,
		MovesAccepted:  im.accepted,
		Passes:         im.passes,
		TimedOut:       ctx.Err() != nil,
	}
}

func (im *improver) exhausted() bool {
	return im.evaluated >= im.cfg.MoveBudget || im.ctx.Err() != nil
}

// routeCost is the weighted objective contribution of a single route.
func (im *improver) routeCost(ti int, order []int) (float64, bool) {
	s := scheduleRoute(im.ctx, im.p, im.m, im.cfg, ti, order)
	if !s.feasible {
		return 0, false
	}
	return im.cfg.DistanceWeight*s.distance + im.cfg.TimeWeight*s.driveMin, true
}

// Objective is the weighted total the improver minimizes: distance and
// drive time across all routes plus a penalty per unassigned urgent or
// high-priority job, so the search never trades a placed urgent job for
// shaved distance.
func Objective(ctx context.Context, p Problem, m *distance.Matrix, cfg Config, sol Solution) float64 {
	total := 0.0
	for ti, route := range sol.Routes {
		s := scheduleRoute(ctx, p, m, cfg, ti, route)
		total += cfg.DistanceWeight*s.distance + cfg.TimeWeight*s.driveMin
	}
	for si := range sol.Unassigned {
		if p.Stops[si].PriorityRank >= 2 {
			total += cfg.UnassignedPenalty
		}
	}
	return total
}

// twoOptPass reverses contiguous sub-sequences within each route.
func (im *improver) twoOptPass() bool {
	improved := false
	for ti := range im.sol.Routes {
		route := im.sol.Routes[ti]
		n := len(route)
		if n < 3 {
			continue
		}
		base, _ := im.routeCost(ti, route)
		for i := 0; i < n-1; i++ {
			for k := i + 1; k < n; k++ {
				if im.exhausted() {
					return improved
				}
				im.evaluated++
				cand := append([]int(nil), route...)
				for a, b := i, k; a < b; a, b = a+1, b-1 {
					cand[a], cand[b] = cand[b], cand[a]
				}
				c, ok := im.routeCost(ti, cand)
				if !ok || c+improveEpsilon >= base {
					continue
				}
				im.sol.Routes[ti] = cand
				route = cand
				base = c
				im.accepted++
				improved = true
			}
		}
	}
	return improved
}

// relocatePass moves one stop to a different position in any route.
func (im *improver) relocatePass() bool {
	improved := false
	for a := range im.sol.Routes {
		for i := 0; i < len(im.sol.Routes[a]); i++ {
			for b := range im.sol.Routes {
				src := im.sol.Routes[a]
				if i >= len(src) {
					break
				}
				si := src[i]
				if fb, _ := Feasible(im.p.Techs[b], im.p.Stops[si]); !fb {
					continue
				}
				limit := len(im.sol.Routes[b])
				if a == b {
					limit-- // removing first shortens the route
				}
				for pos := 0; pos <= limit; pos++ {
					if a == b && pos == i {
						continue // no-op move
					}
					if im.exhausted() {
						return improved
					}
					im.evaluated++
					if im.tryRelocate(a, i, b, pos) {
						im.accepted++
						improved = true
						break // route a changed; restart its scan
					}
				}
			}
		}
	}
	return improved
}

func (im *improver) tryRelocate(a, i, b, pos int) bool {
	src := im.sol.Routes[a]
	si := src[i]
	newA := append(append([]int(nil), src[:i]...), src[i+1:]...)

	var newB []int
	if a == b {
		newB = insertAt(newA, pos, si)
	} else {
		newB = insertAt(im.sol.Routes[b], pos, si)
	}

	if a == b {
		before, _ := im.routeCost(a, src)
		after, ok := im.routeCost(a, newB)
		if !ok || after+improveEpsilon >= before {
			return false
		}
		im.sol.Routes[a] = newB
		return true
	}

	beforeA, _ := im.routeCost(a, src)
	beforeB, _ := im.routeCost(b, im.sol.Routes[b])
	afterA, okA := im.routeCost(a, newA)
	afterB, okB := im.routeCost(b, newB)
	if !okA || !okB || afterA+afterB+improveEpsilon >= beforeA+beforeB {
		return false
	}
	im.sol.Routes[a] = newA
	im.sol.Routes[b] = newB
	return true
}

// swapPass exchanges one stop between two different routes.
func (im *improver) swapPass() bool {
	improved := false
	n := len(im.sol.Routes)
	for a := 0; a < n; a++ {
		for b := a + 1; b < n; b++ {
			for i := 0; i < len(im.sol.Routes[a]); i++ {
				for j := 0; j < len(im.sol.Routes[b]); j++ {
					if im.exhausted() {
						return improved
					}
					im.evaluated++
					if im.trySwap(a, i, b, j) {
						im.accepted++
						improved = true
					}
				}
			}
		}
	}
	return improved
}

func (im *improver) trySwap(a, i, b, j int) bool {
	ra, rb := im.sol.Routes[a], im.sol.Routes[b]
	sa, sb := ra[i], rb[j]
	if fb, _ := Feasible(im.p.Techs[a], im.p.Stops[sb]); !fb {
		return false
	}
	if fb, _ := Feasible(im.p.Techs[b], im.p.Stops[sa]); !fb {
		return false
	}
	ca := append([]int(nil), ra...)
	cb := append([]int(nil), rb...)
	ca[i], cb[j] = sb, sa

	beforeA, _ := im.routeCost(a, ra)
	beforeB, _ := im.routeCost(b, rb)
	afterA, okA := im.routeCost(a, ca)
	afterB, okB := im.routeCost(b, cb)
	if !okA || !okB || afterA+afterB+improveEpsilon >= beforeA+beforeB {
		return false
	}
	im.sol.Routes[a] = ca
	im.sol.Routes[b] = cb
	return true
}
