package opt

import (
	"context"
	"math"
	"sort"

	"fieldroute/internal/distance"
)

// Construct builds an initial feasible assignment by greedy insertion.
// Jobs are taken in priority order and placed at the position with the
// smallest marginal distance across all technicians; jobs with no feasible
// slot anywhere are left unassigned. On context expiry the remaining jobs
// are marked with the timeout reason and the partial solution is returned.
func Construct(ctx context.Context, p Problem, m *distance.Matrix, cfg Config) Solution {
	sol := emptySolution(p)

	order := make([]int, len(p.Stops))
	for i := range order {
		order[i] = i
	}
	// Priority desc, window start asc (windowless last), value desc.
	sort.SliceStable(order, func(a, b int) bool {
		sa, sb := p.Stops[order[a]], p.Stops[order[b]]
		if sa.PriorityRank != sb.PriorityRank {
			return sa.PriorityRank > sb.PriorityRank
		}
		wa, wb := math.Inf(1), math.Inf(1)
		if sa.HasWindow() {
			wa = sa.WindowStart
		}
		if sb.HasWindow() {
			wb = sb.WindowStart
		}
		if wa != wb {
			return wa < wb
		}
		return sa.Value > sb.Value
	})

	timedOut := false
	for _, si := range order {
		if timedOut || ctx.Err() != nil {
			timedOut = true
			sol.Unassigned[si] = ReasonTimeout
			continue
		}
		ti, pos, ok := bestInsertion(ctx, p, m, cfg, sol, si)
		if !ok {
			sol.Unassigned[si] = ReasonNoFeasibleSlot
			continue
		}
		sol.Routes[ti] = insertAt(sol.Routes[ti], pos, si)
	}
	return sol
}

// bestInsertion scans every technician and position for the cheapest
// feasible slot. Ties break by marginal time, then by fewest assigned stops.
func bestInsertion(ctx context.Context, p Problem, m *distance.Matrix, cfg Config, sol Solution, si int) (bestTech, bestPos int, ok bool) {
	bestDist := math.Inf(1)
	bestTime := math.Inf(1)
	bestLoad := math.MaxInt

	for ti := range p.Techs {
		if feasible, _ := Feasible(p.Techs[ti], p.Stops[si]); !feasible {
			continue
		}
		base := scheduleRoute(ctx, p, m, cfg, ti, sol.Routes[ti])
		for pos := 0; pos <= len(sol.Routes[ti]); pos++ {
			cand := scheduleRoute(ctx, p, m, cfg, ti, insertAt(sol.Routes[ti], pos, si))
			if !cand.feasible {
				continue
			}
			dDist := cand.distance - base.distance
			dTime := cand.driveMin - base.driveMin
			load := len(sol.Routes[ti])
			if dDist < bestDist-improveEpsilon ||
				(math.Abs(dDist-bestDist) <= improveEpsilon && dTime < bestTime-improveEpsilon) ||
				(math.Abs(dDist-bestDist) <= improveEpsilon && math.Abs(dTime-bestTime) <= improveEpsilon && load < bestLoad) {
				bestDist, bestTime, bestLoad = dDist, dTime, load
				bestTech, bestPos, ok = ti, pos, true
			}
		}
	}
	return bestTech, bestPos, ok
}

func insertAt(route []int, pos, si int) []int {
	out := make([]int, 0, len(route)+1)
	out = append(out, route[:pos]...)
	out = append(out, si)
	out = append(out, route[pos:]...)
	return out
}
