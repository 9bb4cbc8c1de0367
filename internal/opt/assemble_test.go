package opt

import (
	"testing"

	"fieldroute/internal/model"
)

func TestAssembleRejectsInvalidWindow(t *testing.T) {
	// duration exceeds the window: must never reach routing
	j := jobAt("j1", fiveMilesLat, "pest_control")
	j.TimeWindow = &model.TimeWindow{Start: "09:00", End: "09:30"}
	j.DurationMin = 60

	p, err := Assemble("2026-03-02", []model.Job{j}, []model.Technician{activeTech("t1", "Sam", "pest_control")})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if len(p.Stops) != 0 {
		t.Fatalf("stops = %d, want 0", len(p.Stops))
	}
	if len(p.Rejected) != 1 || p.Rejected[0].Reason != ReasonInvalidTimeWindow {
		t.Fatalf("rejected = %+v, want one %s", p.Rejected, ReasonInvalidTimeWindow)
	}
}

func TestAssembleRejectsDegenerateWindow(t *testing.T) {
	j := jobAt("j1", fiveMilesLat, "pest_control")
	j.TimeWindow = &model.TimeWindow{Start: "09:00", End: "09:00"}

	p, err := Assemble("2026-03-02", []model.Job{j}, nil)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if len(p.Rejected) != 1 || p.Rejected[0].Reason != ReasonInvalidTimeWindow {
		t.Fatalf("rejected = %+v, want %s", p.Rejected, ReasonInvalidTimeWindow)
	}
}

func TestAssembleRejectsUnlocatable(t *testing.T) {
	j := model.Job{ID: "j1", DurationMin: 30, Priority: "high", Address: "unknown rd"}

	p, err := Assemble("2026-03-02", []model.Job{j}, nil)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if len(p.Rejected) != 1 || p.Rejected[0].Reason != ReasonUnlocatable {
		t.Fatalf("rejected = %+v, want %s", p.Rejected, ReasonUnlocatable)
	}
}

func TestAssembleSkipsInactiveAndInvalidTechs(t *testing.T) {
	inactive := activeTech("t1", "Off")
	inactive.Active = false
	badShift := activeTech("t2", "Backwards")
	badShift.ShiftStart, badShift.ShiftEnd = "17:00", "08:00"
	noBase := activeTech("t3", "Nowhere")
	noBase.StartLocation = nil
	ok := activeTech("t4", "Sam", "pest_control")

	p, err := Assemble("2026-03-02", nil, []model.Technician{inactive, badShift, noBase, ok})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if len(p.Techs) != 1 || p.Techs[0].Technician.ID != "t4" {
		t.Fatalf("techs = %+v, want only t4", p.Techs)
	}
}

func TestAssembleBadDate(t *testing.T) {
	if _, err := Assemble("03/02/2026", nil, nil); err == nil {
		t.Fatal("expected error for malformed date")
	}
}

func TestParseClock(t *testing.T) {
	if v, err := parseClock("08:30"); err != nil || v != 510 {
		t.Fatalf("parseClock(08:30) = %v, %v", v, err)
	}
	for _, bad := range []string{"", "8", "25:00", "08:75", "abc"} {
		if _, err := parseClock(bad); err == nil {
			t.Fatalf("parseClock(%q) should fail", bad)
		}
	}
}

func TestPriorityRankTotalOrder(t *testing.T) {
	if !(PriorityRank("urgent") > PriorityRank("high") &&
		PriorityRank("high") > PriorityRank("medium") &&
		PriorityRank("medium") > PriorityRank("low")) {
		t.Fatal("priority ranks are not totally ordered")
	}
	if PriorityRank("") != PriorityRank("low") {
		t.Fatal("unknown priority should rank as low")
	}
}
