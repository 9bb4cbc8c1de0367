package opt

import "testing"

func mkTech(shiftStart, shiftEnd float64, skills ...string) Tech {
	set := map[string]struct{}{}
	for _, s := range skills {
		set[s] = struct{}{}
	}
	return Tech{ShiftStart: shiftStart, ShiftEnd: shiftEnd, Skills: set}
}

func TestFeasibleSkillMatch(t *testing.T) {
	tech := mkTech(480, 1020, "pest_control")
	if ok, _ := Feasible(tech, Stop{Skill: "hvac", DurationMin: 30, WindowStart: -1, WindowEnd: -1}); ok {
		t.Fatal("hvac must not match pest_control tech")
	}
	if ok, _ := Feasible(tech, Stop{Skill: "pest_control", DurationMin: 30, WindowStart: -1, WindowEnd: -1}); !ok {
		t.Fatal("matching skill rejected")
	}
	// "any" and empty tags match everyone
	if ok, _ := Feasible(tech, Stop{Skill: "any", DurationMin: 30, WindowStart: -1, WindowEnd: -1}); !ok {
		t.Fatal(`"any" tag rejected`)
	}
	if ok, _ := Feasible(tech, Stop{DurationMin: 30, WindowStart: -1, WindowEnd: -1}); !ok {
		t.Fatal("untagged job rejected")
	}
	// a tech with no declared skills only gets untagged/"any" jobs
	bare := mkTech(480, 1020)
	if ok, reason := Feasible(bare, Stop{Skill: "hvac", DurationMin: 30, WindowStart: -1, WindowEnd: -1}); ok || reason != "skill_mismatch" {
		t.Fatalf("skill-less tech took a tagged job: ok=%v reason=%q", ok, reason)
	}
	if ok, _ := Feasible(bare, Stop{Skill: "any", DurationMin: 30, WindowStart: -1, WindowEnd: -1}); !ok {
		t.Fatal(`skill-less tech rejected an "any" job`)
	}
	if ok, _ := Feasible(bare, Stop{DurationMin: 30, WindowStart: -1, WindowEnd: -1}); !ok {
		t.Fatal("skill-less tech rejected an untagged job")
	}
}

func TestFeasibleWindowOverlap(t *testing.T) {
	tech := mkTech(480, 1020) // 08:00-17:00
	// window closes before the shift starts
	if ok, reason := Feasible(tech, Stop{DurationMin: 30, WindowStart: 360, WindowEnd: 420}); ok || reason != "window_outside_shift" {
		t.Fatalf("ok=%v reason=%q", ok, reason)
	}
	// overlap exists but is narrower than the duration
	if ok, _ := Feasible(tech, Stop{DurationMin: 60, WindowStart: 450, WindowEnd: 510}); ok {
		t.Fatal("30-minute overlap cannot hold a 60-minute job")
	}
	if ok, _ := Feasible(tech, Stop{DurationMin: 60, WindowStart: 480, WindowEnd: 600}); !ok {
		t.Fatal("valid overlap rejected")
	}
}

func TestFeasibleDurationExceedsShift(t *testing.T) {
	tech := mkTech(480, 540) // one-hour shift
	if ok, reason := Feasible(tech, Stop{DurationMin: 90, WindowStart: -1, WindowEnd: -1}); ok || reason != "exceeds_shift" {
		t.Fatalf("ok=%v reason=%q", ok, reason)
	}
}
