package api

import (
    "bytes"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "testing"

    "fieldroute/internal/config"
    "fieldroute/internal/model"
)

func newTestServer(t *testing.T) *Server {
    t.Helper()
    s, err := NewServer(config.Config{})
    if err != nil { t.Fatalf("NewServer: %v", err) }
    return s
}

func postJSON(t *testing.T, h http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
    t.Helper()
    b, _ := json.Marshal(body)
    rr := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
    req.Header.Set("Content-Type", "application/json")
    h(rr, req)
    return rr
}

func seedDay(t *testing.T, s *Server, date string) {
    t.Helper()
    jobs := map[string]any{
        "tenantId": "t_demo",
        "jobs": []map[string]any{
            {"jobNumber": "J-1", "location": map[string]float64{"lat": 33.45, "lng": -112.07}, "durationMin": 45, "priority": "urgent", "scheduledDate": date},
            {"jobNumber": "J-2", "location": map[string]float64{"lat": 33.50, "lng": -112.10}, "durationMin": 30, "priority": "medium", "scheduledDate": date, "timeWindow": map[string]string{"start": "09:00", "end": "15:00"}},
            {"jobNumber": "J-3", "location": map[string]float64{"lat": 33.40, "lng": -112.00}, "durationMin": 60, "priority": "high", "scheduledDate": date},
        },
    }
    if rr := postJSON(t, s.JobsHandler, "/v1/jobs", jobs); rr.Code != http.StatusAccepted {
        t.Fatalf("seed jobs: got %d body %s", rr.Code, rr.Body.String())
    }
    techs := map[string]any{
        "tenantId": "t_demo",
        "technicians": []map[string]any{
            {"name": "Ava", "shiftStart": "08:00", "shiftEnd": "17:00", "startLocation": map[string]float64{"lat": 33.44, "lng": -112.05}},
            {"name": "Ben", "shiftStart": "07:00", "shiftEnd": "16:00", "startLocation": map[string]float64{"lat": 33.52, "lng": -112.12}},
        },
    }
    if rr := postJSON(t, s.TechniciansHandler, "/v1/technicians", techs); rr.Code != http.StatusCreated {
        t.Fatalf("seed technicians: got %d body %s", rr.Code, rr.Body.String())
    }
}

func TestHealthReady(t *testing.T) {
    s := newTestServer(t)
    rr := httptest.NewRecorder()
    s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
    if rr.Code != 200 { t.Fatalf("health: got %d", rr.Code) }
    rr = httptest.NewRecorder()
    s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
    if rr.Code != 200 { t.Fatalf("ready: got %d", rr.Code) }
}

func TestJobsCreateListDedup(t *testing.T) {
    s := newTestServer(t)
    body := map[string]any{
        "tenantId": "t_demo",
        "jobs": []map[string]any{
            {"jobNumber": "J-9", "location": map[string]float64{"lat": 1, "lng": 2}, "durationMin": 30, "scheduledDate": "2026-09-01"},
        },
    }
    rr := postJSON(t, s.JobsHandler, "/v1/jobs", body)
    if rr.Code != http.StatusAccepted { t.Fatalf("jobs create: got %d", rr.Code) }
    var out struct {
        Created int `json:"created"`
        Skipped int `json:"skipped"`
    }
    _ = json.Unmarshal(rr.Body.Bytes(), &out)
    if out.Created != 1 || out.Skipped != 0 { t.Fatalf("first create: %+v", out) }

    rr = postJSON(t, s.JobsHandler, "/v1/jobs", body)
    _ = json.Unmarshal(rr.Body.Bytes(), &out)
    if out.Created != 0 || out.Skipped != 1 { t.Fatalf("dedup: %+v", out) }

    rr = httptest.NewRecorder()
    s.JobsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/jobs?date=2026-09-01&limit=5", nil))
    if rr.Code != 200 { t.Fatalf("jobs list: got %d", rr.Code) }
    var list struct{ Items []model.Job `json:"items"` }
    _ = json.Unmarshal(rr.Body.Bytes(), &list)
    if len(list.Items) != 1 { t.Fatalf("want 1 job, got %d", len(list.Items)) }
}

func TestOptimizeEndToEnd(t *testing.T) {
    s := newTestServer(t)
    seedDay(t, s, "2026-09-02")

    rr := postJSON(t, s.OptimizeHandler, "/v1/optimize", map[string]any{"tenantId": "t_demo", "date": "2026-09-02"})
    if rr.Code != 200 { t.Fatalf("optimize: %d body %s", rr.Code, rr.Body.String()) }
    var res model.OptimizationResult
    if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil { t.Fatalf("decode: %v", err) }
    if len(res.Routes) == 0 { t.Fatal("expected at least one route") }
    assigned := 0
    for _, rt := range res.Routes {
        assigned += len(rt.Jobs)
        for i, j := range rt.Jobs {
            if j.StopOrder != i+1 { t.Fatalf("stop order: got %d at index %d", j.StopOrder, i) }
        }
    }
    if assigned+len(res.UnassignedJobs) != 3 { t.Fatalf("assigned %d + unassigned %d != 3", assigned, len(res.UnassignedJobs)) }

    // run is a proposal: jobs are untouched until applied
    lr := httptest.NewRecorder()
    s.JobsHandler(lr, httptest.NewRequest(http.MethodGet, "/v1/jobs?date=2026-09-02", nil))
    var list struct{ Items []model.Job `json:"items"` }
    _ = json.Unmarshal(lr.Body.Bytes(), &list)
    for _, j := range list.Items {
        if j.TechnicianID != "" { t.Fatalf("job %s assigned before apply", j.ID) }
    }
}

func TestOptimizeValidation(t *testing.T) {
    s := newTestServer(t)
    cases := []map[string]any{
        {},                                       // missing date
        {"date": "09/02/2026"},                   // wrong format
        {"date": "2026-09-02", "costPerMile": -1},
        {"date": "2026-09-02", "timeBudgetMs": -5},
    }
    for i, c := range cases {
        rr := postJSON(t, s.OptimizeHandler, "/v1/optimize", c)
        if rr.Code != http.StatusBadRequest { t.Fatalf("case %d: got %d", i, rr.Code) }
    }
}

func TestOptimizeForbiddenForTechnician(t *testing.T) {
    s := newTestServer(t)
    b, _ := json.Marshal(map[string]any{"date": "2026-09-02"})
    rr := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodPost, "/v1/optimize", bytes.NewReader(b))
    req.Header.Set("X-Role", "technician")
    s.OptimizeHandler(rr, req)
    if rr.Code != http.StatusForbidden { t.Fatalf("got %d", rr.Code) }
}

func TestRoutesApply(t *testing.T) {
    s := newTestServer(t)
    seedDay(t, s, "2026-09-03")

    rr := postJSON(t, s.OptimizeHandler, "/v1/optimize", map[string]any{"tenantId": "t_demo", "date": "2026-09-03"})
    if rr.Code != 200 { t.Fatalf("optimize: %d", rr.Code) }
    var res model.OptimizationResult
    _ = json.Unmarshal(rr.Body.Bytes(), &res)
    if len(res.Routes) == 0 { t.Fatal("no routes") }

    apply := model.ApplyRequest{TenantID: "t_demo", Date: "2026-09-03", Routes: res.Routes}
    rr = postJSON(t, s.RoutesApplyHandler, "/v1/routes/apply", apply)
    if rr.Code != 200 { t.Fatalf("apply: %d body %s", rr.Code, rr.Body.String()) }
    var out struct{ Updated int `json:"updated"` }
    _ = json.Unmarshal(rr.Body.Bytes(), &out)
    if out.Updated == 0 { t.Fatal("apply updated nothing") }

    lr := httptest.NewRecorder()
    s.JobsHandler(lr, httptest.NewRequest(http.MethodGet, "/v1/jobs?date=2026-09-03", nil))
    var list struct{ Items []model.Job `json:"items"` }
    _ = json.Unmarshal(lr.Body.Bytes(), &list)
    seen := 0
    for _, j := range list.Items {
        if j.TechnicianID != "" {
            seen++
            if j.Status != "scheduled" { t.Fatalf("job %s status %q", j.ID, j.Status) }
            if j.StopOrder < 1 { t.Fatalf("job %s stop order %d", j.ID, j.StopOrder) }
        }
    }
    if seen != out.Updated { t.Fatalf("listed %d assigned, apply reported %d", seen, out.Updated) }
}

func TestApplyValidation(t *testing.T) {
    s := newTestServer(t)
    rr := postJSON(t, s.RoutesApplyHandler, "/v1/routes/apply", map[string]any{"date": "2026-09-03"})
    if rr.Code != http.StatusBadRequest { t.Fatalf("empty routes: got %d", rr.Code) }
    rr = postJSON(t, s.RoutesApplyHandler, "/v1/routes/apply", map[string]any{
        "date": "2026-09-03", "routes": []map[string]any{{"technician_id": ""}},
    })
    if rr.Code != http.StatusBadRequest { t.Fatalf("missing technician_id: got %d", rr.Code) }
}

func TestOptimizerConfigRoundTrip(t *testing.T) {
    s := newTestServer(t)
    ret := true
    cfg := model.OptimizerConfig{CostPerMile: 1.25, MoveBudget: 500, TimeBudgetMs: 750, IncludeReturnLeg: &ret}
    rr := httptest.NewRecorder()
    b, _ := json.Marshal(map[string]any{"config": cfg})
    req := httptest.NewRequest(http.MethodPut, "/v1/admin/optimizer/config", bytes.NewReader(b))
    s.AdminOptimizerConfigHandler(rr, req)
    if rr.Code != 200 { t.Fatalf("put config: %d", rr.Code) }

    rr = httptest.NewRecorder()
    s.OptimizerConfigHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/optimizer/config", nil))
    if rr.Code != 200 { t.Fatalf("get effective: %d", rr.Code) }
    var out struct {
        Defaults struct {
            CostPerMile  float64 `json:"costPerMile"`
            MoveBudget   int     `json:"moveBudget"`
            TimeBudgetMs int64   `json:"timeBudgetMs"`
        } `json:"defaults"`
    }
    _ = json.Unmarshal(rr.Body.Bytes(), &out)
    if out.Defaults.CostPerMile != 1.25 { t.Fatalf("costPerMile: %v", out.Defaults.CostPerMile) }
    if out.Defaults.MoveBudget != 500 { t.Fatalf("moveBudget: %v", out.Defaults.MoveBudget) }
    if out.Defaults.TimeBudgetMs != 750 { t.Fatalf("timeBudgetMs: %v", out.Defaults.TimeBudgetMs) }
}

func TestAdminConfigForbiddenForDispatcher(t *testing.T) {
    s := newTestServer(t)
    rr := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodGet, "/v1/admin/optimizer/config", nil)
    req.Header.Set("X-Role", "dispatcher")
    s.AdminOptimizerConfigHandler(rr, req)
    if rr.Code != http.StatusForbidden { t.Fatalf("got %d", rr.Code) }
}

func TestPlanMetricsRecorded(t *testing.T) {
    s := newTestServer(t)
    seedDay(t, s, "2026-09-04")
    rr := postJSON(t, s.OptimizeHandler, "/v1/optimize", map[string]any{"tenantId": "t_demo", "date": "2026-09-04"})
    if rr.Code != 200 { t.Fatalf("optimize: %d", rr.Code) }

    rr = httptest.NewRecorder()
    s.PlanMetricsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/admin/plan-metrics?planDate=2026-09-04", nil))
    if rr.Code != 200 { t.Fatalf("plan metrics: %d", rr.Code) }
    var out struct{ Items []map[string]any `json:"items"` }
    _ = json.Unmarshal(rr.Body.Bytes(), &out)
    if len(out.Items) != 1 { t.Fatalf("want 1 run, got %d", len(out.Items)) }
    if _, ok := out.Items[0]["finalCost"]; !ok { t.Fatalf("missing finalCost: %+v", out.Items[0]) }
}

func TestSubscriptionsCRUD(t *testing.T) {
    s := newTestServer(t)
    rr := postJSON(t, s.SubscriptionsHandler, "/v1/subscriptions", model.SubscriptionRequest{
        URL: "https://example.test/hook", Events: []string{"plan.completed"}, Secret: "sh",
    })
    if rr.Code != http.StatusCreated { t.Fatalf("create sub: %d", rr.Code) }
    var sub model.Subscription
    _ = json.Unmarshal(rr.Body.Bytes(), &sub)
    if sub.ID == "" { t.Fatal("missing subscription id") }

    rr = httptest.NewRecorder()
    s.SubscriptionsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/subscriptions", nil))
    if rr.Code != 200 { t.Fatalf("list subs: %d", rr.Code) }

    rr = httptest.NewRecorder()
    s.SubscriptionByIDHandler(rr, httptest.NewRequest(http.MethodDelete, "/v1/subscriptions/"+sub.ID, nil))
    if rr.Code != http.StatusNoContent { t.Fatalf("delete sub: %d", rr.Code) }
}

func TestSingleTechnicianReoptimize(t *testing.T) {
    s := newTestServer(t)
    seedDay(t, s, "2026-09-05")

    rr := postJSON(t, s.OptimizeHandler, "/v1/optimize", map[string]any{"tenantId": "t_demo", "date": "2026-09-05"})
    if rr.Code != 200 { t.Fatalf("optimize: %d", rr.Code) }
    var res model.OptimizationResult
    _ = json.Unmarshal(rr.Body.Bytes(), &res)
    apply := model.ApplyRequest{TenantID: "t_demo", Date: "2026-09-05", Routes: res.Routes}
    if rr = postJSON(t, s.RoutesApplyHandler, "/v1/routes/apply", apply); rr.Code != 200 { t.Fatalf("apply: %d", rr.Code) }

    var busy string
    for _, rt := range res.Routes {
        if len(rt.Jobs) > 0 { busy = rt.TechnicianID; break }
    }
    if busy == "" { t.Fatal("no technician got work") }

    rr = postJSON(t, s.OptimizeHandler, "/v1/optimize", map[string]any{"tenantId": "t_demo", "date": "2026-09-05", "technicianId": busy})
    if rr.Code != 200 { t.Fatalf("reoptimize: %d body %s", rr.Code, rr.Body.String()) }
    var res2 model.OptimizationResult
    _ = json.Unmarshal(rr.Body.Bytes(), &res2)
    for _, rt := range res2.Routes {
        if rt.TechnicianID != busy { t.Fatalf("unexpected technician %s in single-tech run", rt.TechnicianID) }
    }

    rr = postJSON(t, s.OptimizeHandler, "/v1/optimize", map[string]any{"tenantId": "t_demo", "date": "2026-09-05", "technicianId": "tech_missing"})
    if rr.Code != http.StatusNotFound { t.Fatalf("missing tech: got %d", rr.Code) }
}
