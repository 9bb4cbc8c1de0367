package model

// Core domain types for field-service route optimization.

// GeoPoint is a resolved latitude/longitude pair.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// TimeWindow constrains when service on a job may begin. Both values are
// times of day in "HH:MM" (24h) form on the plan date.
type TimeWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// JobIn is the write model accepted by POST /v1/jobs.
type JobIn struct {
	JobNumber      string         `json:"jobNumber,omitempty"`
	Address        string         `json:"address,omitempty"`
	City           string         `json:"city,omitempty"`
	State          string         `json:"state,omitempty"`
	PostalCode     string         `json:"postalCode,omitempty"`
	Location       *GeoPoint      `json:"location,omitempty"`
	DurationMin    int            `json:"durationMin"`
	TimeWindow     *TimeWindow    `json:"timeWindow,omitempty"`
	Priority       string         `json:"priority,omitempty"` // low, medium, high, urgent
	ServiceType    string         `json:"serviceType,omitempty"`
	EstimatedValue float64        `json:"estimatedValue,omitempty"`
	ScheduledDate  string         `json:"scheduledDate"` // ISO-8601 date
	Attributes     map[string]any `json:"attributes,omitempty"`
}

// Job is a unit of work to be scheduled. Read-only input to the optimizer;
// a run never mutates jobs, it only proposes assignments.
type Job struct {
	ID             string      `json:"id"`
	JobNumber      string      `json:"jobNumber,omitempty"`
	Address        string      `json:"address,omitempty"`
	City           string      `json:"city,omitempty"`
	State          string      `json:"state,omitempty"`
	PostalCode     string      `json:"postalCode,omitempty"`
	Location       *GeoPoint   `json:"location,omitempty"`
	DurationMin    int         `json:"durationMin"`
	TimeWindow     *TimeWindow `json:"timeWindow,omitempty"`
	Priority       string      `json:"priority"`
	ServiceType    string      `json:"serviceType,omitempty"`
	EstimatedValue float64     `json:"estimatedValue,omitempty"`
	ScheduledDate  string      `json:"scheduledDate,omitempty"`
	TechnicianID   string      `json:"technicianId,omitempty"`
	StopOrder      int         `json:"stopOrder,omitempty"`
	Status         string      `json:"status,omitempty"`
}

// TechnicianIn is the write model accepted by POST /v1/technicians.
type TechnicianIn struct {
	Name          string    `json:"name"`
	Phone         string    `json:"phone,omitempty"`
	ShiftStart    string    `json:"shiftStart"` // "HH:MM"
	ShiftEnd      string    `json:"shiftEnd"`
	StartLocation *GeoPoint `json:"startLocation,omitempty"`
	StartAddress  string    `json:"startAddress,omitempty"`
	Skills        []string  `json:"skills,omitempty"`
	Active        *bool     `json:"active,omitempty"`
}

// Technician is a schedulable resource for one plan date.
type Technician struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Phone         string    `json:"phone,omitempty"`
	ShiftStart    string    `json:"shiftStart"`
	ShiftEnd      string    `json:"shiftEnd"`
	StartLocation *GeoPoint `json:"startLocation,omitempty"`
	StartAddress  string    `json:"startAddress,omitempty"`
	Skills        []string  `json:"skills,omitempty"`
	Active        bool      `json:"active"`
}

// OptimizeRequest is the inbound contract for POST /v1/optimize.
// Zero-valued tuning fields fall back to tenant config, then defaults.
type OptimizeRequest struct {
	TenantID         string  `json:"tenantId,omitempty"`
	Date             string  `json:"date"`
	TechnicianID     string  `json:"technicianId,omitempty"`
	CostPerMile      float64 `json:"costPerMile,omitempty"`
	IncludeReturnLeg *bool   `json:"includeReturnLeg,omitempty"`
	MoveBudget       int     `json:"moveBudget,omitempty"`
	TimeBudgetMs     int     `json:"timeBudgetMs,omitempty"`
	DistanceWeight   float64 `json:"distanceWeight,omitempty"`
	TimeWeight       float64 `json:"timeWeight,omitempty"`
}

// OptimizedRoute is one technician's ordered day, with derived metrics.
type OptimizedRoute struct {
	TechnicianID        string  `json:"technician_id"`
	TechnicianName      string  `json:"technician_name"`
	Jobs                []Job   `json:"jobs"`                 // visiting order
	TotalDistance       float64 `json:"total_distance"`       // miles
	TotalDriveTime      float64 `json:"total_drive_time"`     // minutes
	TotalServiceTime    float64 `json:"total_service_time"`   // minutes
	EfficiencyScore     float64 `json:"efficiency_score"`     // 0-100
	EstimatedCompletion string  `json:"estimated_completion"` // RFC3339
}

// UnassignedJob pairs a job with the reason it could not be routed.
type UnassignedJob struct {
	Job    Job    `json:"job"`
	Reason string `json:"reason"` // unlocatable, invalid_time_window, invalid_duration, no_feasible_slot, timeout
}

// OptimizationSavings reports optimized totals against the naive baseline.
// All values are floored at zero.
type OptimizationSavings struct {
	DistanceSaved float64 `json:"distance_saved"`
	TimeSaved     float64 `json:"time_saved"`
	FuelCostSaved float64 `json:"fuel_cost_saved"`
}

// OptimizationResult is the outbound contract for POST /v1/optimize.
// Every input job appears exactly once across Routes and UnassignedJobs.
type OptimizationResult struct {
	Routes         []OptimizedRoute    `json:"routes"`
	TotalDistance  float64             `json:"total_distance"`
	TotalTime      float64             `json:"total_time"`
	Savings        OptimizationSavings `json:"optimization_savings"`
	UnassignedJobs []UnassignedJob     `json:"unassigned_jobs"`
	Degraded       bool                `json:"degraded,omitempty"`
}

// ApplyRequest persists a previously returned proposal: each job's
// technician assignment and stop order are written back to the job store.
type ApplyRequest struct {
	TenantID string           `json:"tenantId,omitempty"`
	Date     string           `json:"date"`
	Routes   []OptimizedRoute `json:"routes"`
}

// OptimizerConfig is the per-tenant tuning profile. Fields left zero fall
// through to server defaults at run time.
type OptimizerConfig struct {
	CostPerMile      float64 `json:"costPerMile,omitempty"`
	IncludeReturnLeg *bool   `json:"includeReturnLeg,omitempty"`
	MoveBudget       int     `json:"moveBudget,omitempty"`
	TimeBudgetMs     int     `json:"timeBudgetMs,omitempty"`
	DistanceWeight   float64 `json:"distanceWeight,omitempty"`
	TimeWeight       float64 `json:"timeWeight,omitempty"`
	FallbackSpeedMph float64 `json:"fallbackSpeedMph,omitempty"`
}

// SubscriptionRequest registers a webhook endpoint for plan events.
type SubscriptionRequest struct {
	TenantID string   `json:"tenantId,omitempty"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret,omitempty"`
}

type Subscription struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret,omitempty"`
}
