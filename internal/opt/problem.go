package opt

import (
	"time"

	"fieldroute/internal/model"
)

// Reason codes for jobs the engine could not place.
const (
	ReasonUnlocatable       = "unlocatable"
	ReasonInvalidTimeWindow = "invalid_time_window"
	ReasonInvalidDuration   = "invalid_duration"
	ReasonNoFeasibleSlot    = "no_feasible_slot"
	ReasonTimeout           = "timeout"
)

// Stop is one routable job, normalized for the solver. Times of day are
// minutes from midnight on the plan date; WindowStart/WindowEnd are -1 when
// the job is flexible.
type Stop struct {
	Job          model.Job
	Node         int // index into Problem.Nodes
	DurationMin  float64
	WindowStart  float64
	WindowEnd    float64
	PriorityRank int // 3 urgent .. 0 low
	Skill        string
	Value        float64
}

// HasWindow reports whether the stop carries a time window.
func (s Stop) HasWindow() bool { return s.WindowStart >= 0 }

// Tech is a technician normalized for the solver.
type Tech struct {
	Technician model.Technician
	Node       int // base location index into Problem.Nodes
	ShiftStart float64
	ShiftEnd   float64
	Skills     map[string]struct{}
}

// Problem is an immutable snapshot of one optimization run's inputs.
// Rejected holds jobs diverted before routing (unlocatable or invalid
// windows); they are reported in the result's unassigned list untouched.
type Problem struct {
	Date     time.Time
	Stops    []Stop
	Techs    []Tech
	Nodes    []model.GeoPoint
	Rejected []model.UnassignedJob
}

// Config tunes one optimization run. Zero values take solver defaults.
type Config struct {
	CostPerMile       float64
	IncludeReturnLeg  bool
	MoveBudget        int           // hard cap on moves evaluated by the improver
	TimeBudget        time.Duration // overall deadline for the run
	DistanceWeight    float64
	TimeWeight        float64
	UnassignedPenalty float64 // objective penalty per unassigned urgent/high job
	FallbackSpeedMph  float64
	PrefetchWorkers   int
}

const improveEpsilon = 0.01

func (c Config) WithDefaults() Config {
	if c.CostPerMile <= 0 {
		c.CostPerMile = 0.65
	}
	if c.MoveBudget <= 0 {
		c.MoveBudget = 20000
	}
	if c.TimeBudget <= 0 {
		c.TimeBudget = 2 * time.Second
	}
	if c.DistanceWeight <= 0 {
		c.DistanceWeight = 1
	}
	if c.TimeWeight <= 0 {
		c.TimeWeight = 0.25
	}
	if c.UnassignedPenalty <= 0 {
		c.UnassignedPenalty = 10000
	}
	if c.FallbackSpeedMph <= 0 {
		c.FallbackSpeedMph = 30
	}
	if c.PrefetchWorkers <= 0 {
		c.PrefetchWorkers = 5
	}
	return c
}

// PriorityRank maps a priority tag to its ordinal so downstream comparisons
// are plain integer comparisons.
func PriorityRank(p string) int {
	switch p {
	case "urgent":
		return 3
	case "high":
		return 2
	case "medium":
		return 1
	default:
		return 0
	}
}

// Solution assigns stop indices to technician routes. Routes[i] is the
// visiting order for Techs[i]; Unassigned maps stop index to reason code.
type Solution struct {
	Routes     [][]int
	Unassigned map[int]string
}

func emptySolution(p Problem) Solution {
	return Solution{Routes: make([][]int, len(p.Techs)), Unassigned: map[int]string{}}
}

// clone copies the assignment so move evaluation never mutates the
// current-best solution in place.
func (s Solution) clone() Solution {
	out := Solution{Routes: make([][]int, len(s.Routes)), Unassigned: make(map[int]string, len(s.Unassigned))}
	for i, r := range s.Routes {
		out.Routes[i] = append([]int(nil), r...)
	}
	for k, v := range s.Unassigned {
		out.Unassigned[k] = v
	}
	return out
}

// Metrics describes what one solver run did; exposed via admin endpoints.
type Metrics struct {
	Stops          int     `json:"stops"`
	Technicians    int     `json:"technicians"`
	MovesEvaluated int     `json:"movesEvaluated"`
	MovesAccepted  int     `json:"movesAccepted"`
	Passes         int     `json:"passes"`
	InitialCost    float64 `json:"initialCost"`
	FinalCost      float64 `json:"finalCost"`
	ElapsedMs      int64   `json:"elapsedMs"`
	Degraded       bool    `json:"degraded"`
	TimedOut       bool    `json:"timedOut"`
}
