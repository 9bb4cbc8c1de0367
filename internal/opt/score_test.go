package opt

import (
	"context"
	"reflect"
	"testing"

	"fieldroute/internal/distance"
	"fieldroute/internal/model"
)

func TestScoreIdempotent(t *testing.T) {
	p := crossedProblem(t)
	cfg := Config{}.WithDefaults()
	ctx := context.Background()
	m := distance.NewMatrix(p.Nodes, distance.NewHaversine(30), cfg.FallbackSpeedMph)

	sol := Construct(ctx, p, m, cfg)
	first := Score(ctx, p, m, cfg, sol)
	second := Score(ctx, p, m, cfg, sol)

	if !reflect.DeepEqual(first.Routes, second.Routes) {
		t.Fatal("scoring the same solution twice produced different routes")
	}
	if first.TotalDistance != second.TotalDistance || first.TotalTime != second.TotalTime {
		t.Fatal("scoring the same solution twice produced different totals")
	}
	if first.Savings != second.Savings {
		t.Fatal("scoring the same solution twice produced different savings")
	}
}

func TestScoreEmptyRouteOmitted(t *testing.T) {
	p, err := Assemble("2026-03-02",
		[]model.Job{jobAt("j1", fiveMilesLat, "pest_control")},
		[]model.Technician{activeTech("t1", "Sam", "pest_control"), activeTech("t2", "Idle", "pest_control")})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	cfg := Config{}.WithDefaults()
	ctx := context.Background()
	m := distance.NewMatrix(p.Nodes, distance.NewHaversine(30), cfg.FallbackSpeedMph)

	res := Score(ctx, p, m, cfg, Construct(ctx, p, m, cfg))
	if len(res.Routes) != 1 {
		t.Fatalf("routes = %d, want only the loaded technician", len(res.Routes))
	}
}

func TestEfficiencyBounds(t *testing.T) {
	if got := efficiency(0, 0); got != 0 {
		t.Fatalf("empty route efficiency = %v, want 0", got)
	}
	if got := efficiency(60, 0); got != 100 {
		t.Fatalf("all-service efficiency = %v, want 100", got)
	}
	if got := efficiency(60, 60); got != 50 {
		t.Fatalf("50/50 efficiency = %v, want 50", got)
	}
}

func TestScoreIncludesReturnLeg(t *testing.T) {
	p, err := Assemble("2026-03-02",
		[]model.Job{jobAt("j1", fiveMilesLat, "pest_control")},
		[]model.Technician{activeTech("t1", "Sam", "pest_control")})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	ctx := context.Background()

	without := Config{}.WithDefaults()
	mw := distance.NewMatrix(p.Nodes, distance.NewHaversine(30), without.FallbackSpeedMph)
	one := Score(ctx, p, mw, without, Construct(ctx, p, mw, without))

	with := Config{IncludeReturnLeg: true}.WithDefaults()
	mr := distance.NewMatrix(p.Nodes, distance.NewHaversine(30), with.FallbackSpeedMph)
	two := Score(ctx, p, mr, with, Construct(ctx, p, mr, with))

	if two.Routes[0].TotalDistance <= one.Routes[0].TotalDistance {
		t.Fatalf("return leg not counted: %v <= %v", two.Routes[0].TotalDistance, one.Routes[0].TotalDistance)
	}
}
