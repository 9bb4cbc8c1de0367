package api

import (
	"fmt"
	"time"

	"fieldroute/internal/model"
)

const dateLayout = "2006-01-02"

func validateOptimizeRequest(req *model.OptimizeRequest) error {
	if req.Date == "" {
		return fmt.Errorf("date is required")
	}
	if _, err := time.Parse(dateLayout, req.Date); err != nil {
		return fmt.Errorf("date must be YYYY-MM-DD: %v", err)
	}
	if req.CostPerMile < 0 {
		return fmt.Errorf("costPerMile must be >= 0")
	}
	if req.MoveBudget < 0 {
		return fmt.Errorf("moveBudget must be >= 0")
	}
	if req.TimeBudgetMs < 0 {
		return fmt.Errorf("timeBudgetMs must be >= 0")
	}
	if req.DistanceWeight < 0 {
		return fmt.Errorf("distanceWeight must be >= 0")
	}
	if req.TimeWeight < 0 {
		return fmt.Errorf("timeWeight must be >= 0")
	}
	return nil
}

func validateApplyRequest(req *model.ApplyRequest) error {
	if req.Date == "" {
		return fmt.Errorf("date is required")
	}
	if _, err := time.Parse(dateLayout, req.Date); err != nil {
		return fmt.Errorf("date must be YYYY-MM-DD: %v", err)
	}
	if len(req.Routes) == 0 {
		return fmt.Errorf("routes must not be empty")
	}
	for i, rt := range req.Routes {
		if rt.TechnicianID == "" {
			return fmt.Errorf("routes[%d].technician_id is required", i)
		}
	}
	return nil
}
