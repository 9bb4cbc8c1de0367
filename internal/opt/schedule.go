package opt

import (
	"context"

	"fieldroute/internal/distance"
)

// routeSchedule is the simulated day for one technician's stop order.
type routeSchedule struct {
	feasible   bool
	distance   float64 // miles, including the start leg and optional return leg
	driveMin   float64
	serviceMin float64
	waitMin    float64 // idle time before windows open
	endMin     float64 // time of day the route completes
}

// scheduleRoute propagates arrival times through order and checks hard
// constraints: service may not begin after a window closes and must finish
// by shift end. Arrival before a window opens becomes wait time.
func scheduleRoute(ctx context.Context, p Problem, m *distance.Matrix, cfg Config, ti int, order []int) routeSchedule {
	t := p.Techs[ti]
	sched := routeSchedule{feasible: true, endMin: t.ShiftStart}
	if len(order) == 0 {
		return sched
	}

	cur := t.ShiftStart
	node := t.Node
	for _, si := range order {
		s := p.Stops[si]
		leg := m.Leg(ctx, node, s.Node)
		sched.distance += leg.Miles
		sched.driveMin += leg.Minutes
		cur += leg.Minutes

		if s.HasWindow() && cur < s.WindowStart {
			sched.waitMin += s.WindowStart - cur
			cur = s.WindowStart
		}
		if s.HasWindow() && cur > s.WindowEnd {
			sched.feasible = false
			return sched
		}

		cur += s.DurationMin
		sched.serviceMin += s.DurationMin
		if cur > t.ShiftEnd {
			sched.feasible = false
			return sched
		}
		node = s.Node
	}

	if cfg.IncludeReturnLeg {
		leg := m.Leg(ctx, node, t.Node)
		sched.distance += leg.Miles
		sched.driveMin += leg.Minutes
		cur += leg.Minutes
	}
	sched.endMin = cur
	return sched
}
