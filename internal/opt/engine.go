package opt

import (
	"context"
	"time"

	"fieldroute/internal/distance"
	"fieldroute/internal/model"
)

// Solve runs one optimization: construct an initial assignment by greedy
// insertion, improve it with bounded local search, and score the result.
// A run is stateless and synchronous; the distance matrix it builds is
// scoped to this call and discarded with it. On deadline expiry the best
// solution found so far is returned, never an error.
func Solve(ctx context.Context, p Problem, provider distance.Provider, cfg Config) (model.OptimizationResult, Metrics) {
	cfg = cfg.WithDefaults()
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, cfg.TimeBudget)
	defer cancel()

	met := Metrics{Stops: len(p.Stops), Technicians: len(p.Techs)}
	m := distance.NewMatrix(p.Nodes, provider, cfg.FallbackSpeedMph)

	// No capacity: a valid outcome, not an error.
	if len(p.Techs) == 0 {
		sol := emptySolution(p)
		for si := range p.Stops {
			sol.Unassigned[si] = ReasonNoFeasibleSlot
		}
		res := Score(ctx, p, m, cfg, sol)
		met.ElapsedMs = time.Since(start).Milliseconds()
		return res, met
	}

	m.Prefetch(ctx, cfg.PrefetchWorkers)

	sol := Construct(ctx, p, m, cfg)
	met.InitialCost = Objective(ctx, p, m, cfg, sol)

	improved, imMet := Improve(ctx, p, m, cfg, sol)
	met.MovesEvaluated = imMet.MovesEvaluated
	met.MovesAccepted = imMet.MovesAccepted
	met.Passes = imMet.Passes
	met.TimedOut = imMet.TimedOut
	met.FinalCost = Objective(ctx, p, m, cfg, improved)

	// Never return a solution worse than construction.
	if met.FinalCost > met.InitialCost {
		improved = sol
		met.FinalCost = met.InitialCost
	}

	res := Score(ctx, p, m, cfg, improved)
	met.Degraded = res.Degraded
	met.ElapsedMs = time.Since(start).Milliseconds()
	return res, met
}
