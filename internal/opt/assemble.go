package opt

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"fieldroute/internal/model"
)

// Assemble validates and normalizes one day's jobs and technicians into a
// Problem. Jobs that cannot be routed at all are diverted to Rejected with a
// reason code rather than failing the run; only a malformed date is an error.
func Assemble(date string, jobs []model.Job, techs []model.Technician) (Problem, error) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return Problem{}, fmt.Errorf("assemble: invalid date %q: %w", date, err)
	}

	p := Problem{Date: day}

	for _, t := range techs {
		if !t.Active {
			continue
		}
		start, err1 := parseClock(t.ShiftStart)
		end, err2 := parseClock(t.ShiftEnd)
		if err1 != nil || err2 != nil || start >= end {
			log.Printf("assemble: technician %s has invalid shift %q-%q, skipping", t.ID, t.ShiftStart, t.ShiftEnd)
			continue
		}
		if t.StartLocation == nil {
			log.Printf("assemble: technician %s has no start location, skipping", t.ID)
			continue
		}
		skills := make(map[string]struct{}, len(t.Skills))
		for _, s := range t.Skills {
			skills[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
		}
		p.Techs = append(p.Techs, Tech{
			Technician: t,
			Node:       -1, // assigned below, after stop nodes
			ShiftStart: start,
			ShiftEnd:   end,
			Skills:     skills,
		})
	}

	for _, j := range jobs {
		if j.Location == nil {
			p.Rejected = append(p.Rejected, model.UnassignedJob{Job: j, Reason: ReasonUnlocatable})
			continue
		}
		if j.DurationMin <= 0 {
			p.Rejected = append(p.Rejected, model.UnassignedJob{Job: j, Reason: ReasonInvalidDuration})
			continue
		}
		ws, we := -1.0, -1.0
		if j.TimeWindow != nil {
			s, err1 := parseClock(j.TimeWindow.Start)
			e, err2 := parseClock(j.TimeWindow.End)
			// A window must be a real interval wide enough to hold the job.
			if err1 != nil || err2 != nil || s >= e || e-s < float64(j.DurationMin) {
				p.Rejected = append(p.Rejected, model.UnassignedJob{Job: j, Reason: ReasonInvalidTimeWindow})
				continue
			}
			ws, we = s, e
		}
		p.Stops = append(p.Stops, Stop{
			Job:          j,
			Node:         len(p.Nodes),
			DurationMin:  float64(j.DurationMin),
			WindowStart:  ws,
			WindowEnd:    we,
			PriorityRank: PriorityRank(j.Priority),
			Skill:        strings.ToLower(strings.TrimSpace(j.ServiceType)),
			Value:        j.EstimatedValue,
		})
		p.Nodes = append(p.Nodes, *j.Location)
	}

	for i := range p.Techs {
		p.Techs[i].Node = len(p.Nodes)
		p.Nodes = append(p.Nodes, *p.Techs[i].Technician.StartLocation)
	}

	return p, nil
}

// parseClock converts "HH:MM" to minutes from midnight.
func parseClock(s string) (float64, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return float64(h*60 + m), nil
}
