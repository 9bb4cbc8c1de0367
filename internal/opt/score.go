package opt

import (
	"context"
	"time"

	"fieldroute/internal/distance"
	"fieldroute/internal/model"
)

// Score turns a solution into the response contract: per-route metrics,
// aggregate totals, and savings against the naive baseline. Scoring is a
// pure function of the solution and problem; calling it twice yields
// identical metrics.
func Score(ctx context.Context, p Problem, m *distance.Matrix, cfg Config, sol Solution) model.OptimizationResult {
	res := model.OptimizationResult{
		Routes:         []model.OptimizedRoute{},
		UnassignedJobs: append([]model.UnassignedJob{}, p.Rejected...),
	}

	for ti, route := range sol.Routes {
		if len(route) == 0 {
			continue
		}
		t := p.Techs[ti]
		sched := scheduleRoute(ctx, p, m, cfg, ti, route)

		jobs := make([]model.Job, 0, len(route))
		for ord, si := range route {
			j := p.Stops[si].Job
			j.TechnicianID = t.Technician.ID
			j.StopOrder = ord + 1
			jobs = append(jobs, j)
		}

		res.Routes = append(res.Routes, model.OptimizedRoute{
			TechnicianID:        t.Technician.ID,
			TechnicianName:      t.Technician.Name,
			Jobs:                jobs,
			TotalDistance:       sched.distance,
			TotalDriveTime:      sched.driveMin,
			TotalServiceTime:    sched.serviceMin,
			EfficiencyScore:     efficiency(sched.serviceMin, sched.driveMin),
			EstimatedCompletion: clockOn(p.Date, sched.endMin),
		})
		res.TotalDistance += sched.distance
		res.TotalTime += sched.driveMin + sched.serviceMin + sched.waitMin
	}

	for si, reason := range sol.Unassigned {
		res.UnassignedJobs = append(res.UnassignedJobs, model.UnassignedJob{Job: p.Stops[si].Job, Reason: reason})
	}

	baseDist, baseDrive := baseline(ctx, p, m, cfg)
	optDrive := 0.0
	for _, r := range res.Routes {
		optDrive += r.TotalDriveTime
	}
	res.Savings = model.OptimizationSavings{
		DistanceSaved: floorZero(baseDist - res.TotalDistance),
		TimeSaved:     floorZero(baseDrive - optDrive),
	}
	res.Savings.FuelCostSaved = res.Savings.DistanceSaved * cfg.CostPerMile
	res.Degraded = m.Degraded()
	return res
}

// baseline chains routable jobs across technicians round-robin in input
// order with no reordering. It exists only for the savings report.
func baseline(ctx context.Context, p Problem, m *distance.Matrix, cfg Config) (miles, driveMin float64) {
	if len(p.Techs) == 0 || len(p.Stops) == 0 {
		return 0, 0
	}
	routes := make([][]int, len(p.Techs))
	for si := range p.Stops {
		ti := si % len(p.Techs)
		routes[ti] = append(routes[ti], si)
	}
	for ti, route := range routes {
		if len(route) == 0 {
			continue
		}
		node := p.Techs[ti].Node
		for _, si := range route {
			leg := m.Leg(ctx, node, p.Stops[si].Node)
			miles += leg.Miles
			driveMin += leg.Minutes
			node = p.Stops[si].Node
		}
		if cfg.IncludeReturnLeg {
			leg := m.Leg(ctx, node, p.Techs[ti].Node)
			miles += leg.Miles
			driveMin += leg.Minutes
		}
	}
	return miles, driveMin
}

// efficiency is productive service time over total route time, 0-100.
// An empty route scores 0, not NaN.
func efficiency(serviceMin, driveMin float64) float64 {
	total := serviceMin + driveMin
	if total <= 0 {
		return 0
	}
	score := serviceMin / total * 100
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func floorZero(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// clockOn renders minutes-from-midnight as an RFC3339 timestamp on the
// plan date.
func clockOn(date time.Time, minutes float64) string {
	return date.Add(time.Duration(minutes * float64(time.Minute))).UTC().Format(time.RFC3339)
}
