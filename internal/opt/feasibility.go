package opt

// Feasible answers whether assigning stop s to tech t is structurally
// possible, ignoring whatever else is on the route. It prunes the search
// space before construction; full feasibility against cumulative route time
// is re-checked by scheduleRoute during insertion and improvement.
func Feasible(t Tech, s Stop) (bool, string) {
	// Skill match. "any" (or no tag) matches every technician; any other tag
	// must be in the technician's skill set.
	if s.Skill != "" && s.Skill != "any" {
		if _, ok := t.Skills[s.Skill]; !ok {
			return false, "skill_mismatch"
		}
	}

	// The shift must overlap the window by at least the job duration.
	if s.HasWindow() {
		lo := s.WindowStart
		if t.ShiftStart > lo {
			lo = t.ShiftStart
		}
		hi := s.WindowEnd
		if t.ShiftEnd < hi {
			hi = t.ShiftEnd
		}
		if hi-lo < s.DurationMin {
			return false, "window_outside_shift"
		}
	}

	// The job alone must fit inside the shift.
	if s.DurationMin > t.ShiftEnd-t.ShiftStart {
		return false, "exceeds_shift"
	}

	return true, ""
}
