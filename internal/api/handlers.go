package api

import (
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "strings"
    "time"

    "fieldroute/internal/buildinfo"
    "fieldroute/internal/metrics"
    "fieldroute/internal/model"
    "fieldroute/internal/opt"
)

// JobsHandler handles POST/GET /v1/jobs
func (s *Server) JobsHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        var req struct {
            TenantID string        `json:"tenantId"`
            Jobs     []model.JobIn `json:"jobs"`
        }
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if req.TenantID == "" { _, req.TenantID = s.withTenant(r) }
        ids, created, skipped, err := s.Store.CreateJobs(r.Context(), req.TenantID, req.Jobs)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Create jobs failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusAccepted, map[string]any{"ids": ids, "created": created, "skipped": skipped})
    case http.MethodGet:
        _, tenant := s.withTenant(r)
        date := r.URL.Query().Get("date")
        status := r.URL.Query().Get("status")
        cursor := r.URL.Query().Get("cursor")
        limit := 100
        if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
        items, next, err := s.Store.ListJobs(r.Context(), tenant, date, status, cursor, limit)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "List jobs failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// TechniciansHandler handles POST/GET /v1/technicians
func (s *Server) TechniciansHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        var req struct {
            TenantID    string               `json:"tenantId"`
            Technicians []model.TechnicianIn `json:"technicians"`
        }
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if req.TenantID == "" { _, req.TenantID = s.withTenant(r) }
        items, err := s.Store.CreateTechnicians(r.Context(), req.TenantID, req.Technicians)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Create technicians failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusCreated, map[string]any{"items": items})
    case http.MethodGet:
        _, tenant := s.withTenant(r)
        cursor := r.URL.Query().Get("cursor")
        limit := 100
        if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
        items, next, err := s.Store.ListTechnicians(r.Context(), tenant, cursor, limit)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "List technicians failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// OptimizeHandler handles POST /v1/optimize. The response is a proposal;
// nothing is persisted until the caller applies it via /v1/routes/apply.
func (s *Server) OptimizeHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    p := s.getPrincipal(r)
    if !p.CanPlan() { writeProblem(w, 403, "Forbidden", "dispatcher or admin required", r.URL.Path); return }
    var req model.OptimizeRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if err := validateOptimizeRequest(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid optimize request", err.Error(), r.URL.Path)
        return
    }
    if req.TenantID == "" { req.TenantID = p.Tenant }

    jobs, err := s.Store.JobsForDate(r.Context(), req.TenantID, req.Date)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Load jobs failed", err.Error(), r.URL.Path)
        return
    }
    techs, err := s.Store.ActiveTechnicians(r.Context(), req.TenantID)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Load technicians failed", err.Error(), r.URL.Path)
        return
    }
    if req.TechnicianID != "" {
        // single-technician reoptimize: only their roster slot and their jobs
        jobs = filterJobsByTech(jobs, req.TechnicianID)
        techs = filterTechByID(techs, req.TechnicianID)
        if len(techs) == 0 {
            writeProblem(w, http.StatusNotFound, "Technician not found", "no active technician "+req.TechnicianID, r.URL.Path)
            return
        }
    }

    problem, err := opt.Assemble(req.Date, jobs, techs)
    if err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid plan inputs", err.Error(), r.URL.Path)
        return
    }
    cfg := s.runConfig(r.Context(), req.TenantID, req)
    res, met := opt.Solve(r.Context(), problem, s.Provider, cfg)

    metrics.OptimizeRuns.WithLabelValues(runOutcome(res, met)).Inc()
    metrics.OptimizeDuration.Observe(float64(met.ElapsedMs) / 1000)
    for _, uj := range res.UnassignedJobs {
        metrics.JobsUnassigned.WithLabelValues(uj.Reason).Inc()
    }

    if err := s.Store.SavePlanMetrics(r.Context(), req.TenantID, req.Date, metricsToMap(met)); err == nil {
        summary := map[string]any{
            "date":          req.Date,
            "routes":        len(res.Routes),
            "unassigned":    len(res.UnassignedJobs),
            "totalDistance": res.TotalDistance,
            "degraded":      res.Degraded,
            "ts":            time.Now().UTC().Format(time.RFC3339),
        }
        s.Pub.Emit(r.Context(), req.TenantID, "plan.completed", summary)
        s.Broker.Publish(req.Date, SSEEvent{Type: "plan.completed", Data: summary})
    }
    writeJSON(w, http.StatusOK, res)
}

// RoutesApplyHandler handles POST /v1/routes/apply: persists a proposal by
// writing technician assignments and stop order back onto the jobs.
func (s *Server) RoutesApplyHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    p := s.getPrincipal(r)
    if !p.CanPlan() { writeProblem(w, 403, "Forbidden", "dispatcher or admin required", r.URL.Path); return }
    var req model.ApplyRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if err := validateApplyRequest(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid apply request", err.Error(), r.URL.Path)
        return
    }
    if req.TenantID == "" { req.TenantID = p.Tenant }
    updated, err := s.Store.ApplyRoutes(r.Context(), req)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Apply routes failed", err.Error(), r.URL.Path)
        return
    }
    data := map[string]any{
        "date":    req.Date,
        "routes":  len(req.Routes),
        "updated": updated,
        "ts":      time.Now().UTC().Format(time.RFC3339),
    }
    s.Pub.Emit(r.Context(), req.TenantID, "routes.applied", data)
    s.Broker.Publish(req.Date, SSEEvent{Type: "routes.applied", Data: data})
    writeJSON(w, http.StatusOK, map[string]any{"updated": updated})
}

// OptimizerConfigHandler returns effective optimizer defaults for the tenant
func (s *Server) OptimizerConfigHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/optimizer/config" || r.Method != http.MethodGet { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    p := s.getPrincipal(r)
    cfg := s.runConfig(r.Context(), p.Tenant, model.OptimizeRequest{}).WithDefaults()
    writeJSON(w, 200, map[string]any{"defaults": map[string]any{
        "costPerMile":      cfg.CostPerMile,
        "includeReturnLeg": cfg.IncludeReturnLeg,
        "moveBudget":       cfg.MoveBudget,
        "timeBudgetMs":     cfg.TimeBudget.Milliseconds(),
        "distanceWeight":   cfg.DistanceWeight,
        "timeWeight":       cfg.TimeWeight,
        "fallbackSpeedMph": cfg.FallbackSpeedMph,
    }})
}

// Admin get/set optimizer tenant config
func (s *Server) AdminOptimizerConfigHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/admin/optimizer/config" { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    p := s.getPrincipal(r)
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    switch r.Method {
    case http.MethodGet:
        cfg, _, err := s.Store.GetOptimizerConfig(r.Context(), p.Tenant)
        if err != nil { writeProblem(w, 500, "Load config failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, map[string]any{"config": cfg})
    case http.MethodPut:
        var body struct{ Config *model.OptimizerConfig `json:"config"` }
        if err := json.NewDecoder(r.Body).Decode(&body); err != nil { writeProblem(w, 400, "Invalid JSON", err.Error(), r.URL.Path); return }
        if body.Config == nil { writeProblem(w, 400, "Missing config", "", r.URL.Path); return }
        if err := s.Store.SaveOptimizerConfig(r.Context(), p.Tenant, *body.Config); err != nil { writeProblem(w, 500, "Save failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, map[string]bool{"ok": true})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// PlanEventsHandler streams plan events for one date over SSE:
// GET /v1/plans/{date}/events/stream
func (s *Server) PlanEventsHandler(w http.ResponseWriter, r *http.Request) {
    rest := strings.TrimPrefix(r.URL.Path, "/v1/plans/")
    if rest == r.URL.Path || rest == "" {
        writeProblem(w, http.StatusNotFound, "Not Found", "missing date", r.URL.Path)
        return
    }
    parts := strings.Split(rest, "/")
    date := parts[0]
    if len(parts) < 3 || parts[1] != "events" || parts[2] != "stream" {
        writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
        return
    }
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    if _, err := time.Parse(dateLayout, date); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid date", err.Error(), r.URL.Path)
        return
    }
    flusher, ok := w.(http.Flusher)
    if !ok { writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path); return }
    w.Header().Set("Content-Type", "text/event-stream")
    w.Header().Set("Cache-Control", "no-cache")
    w.Header().Set("Connection", "keep-alive")
    ch := s.Broker.Subscribe(date)
    defer s.Broker.Unsubscribe(date, ch)
    // initial heartbeat
    fmt.Fprintf(w, "event: heartbeat\n")
    fmt.Fprintf(w, "data: {\"date\":\"%s\",\"ts\":\"%s\"}\n\n", date, time.Now().Format(time.RFC3339))
    flusher.Flush()
    notify := r.Context().Done()
    for {
        select {
        case <-notify:
            return
        case evt := <-ch:
            b, _ := json.Marshal(evt.Data)
            fmt.Fprintf(w, "event: %s\n", evt.Type)
            fmt.Fprintf(w, "data: %s\n\n", string(b))
            flusher.Flush()
        case <-time.After(15 * time.Second):
            fmt.Fprintf(w, "event: heartbeat\n")
            fmt.Fprintf(w, "data: {\"date\":\"%s\",\"ts\":\"%s\"}\n\n", date, time.Now().Format(time.RFC3339))
            flusher.Flush()
        }
    }
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        p := s.getPrincipal(r)
        if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
        var req model.SubscriptionRequest
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if req.TenantID == "" { req.TenantID = p.Tenant }
        sub, err := s.Store.CreateSubscription(r.Context(), req)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusCreated, sub)
    case http.MethodGet:
        p := s.getPrincipal(r)
        if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
        cursor := r.URL.Query().Get("cursor")
        limit := 100
        if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
        items, next, err := s.Store.ListSubscriptions(r.Context(), p.Tenant, cursor, limit)
        if err != nil { writeProblem(w, 500, "List subscriptions failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// Subscription delete (admin)
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
    if !strings.HasPrefix(r.URL.Path, "/v1/subscriptions/") { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    if r.Method != http.MethodDelete { w.WriteHeader(405); return }
    p := s.getPrincipal(r)
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
    if err := s.Store.DeleteSubscription(r.Context(), p.Tenant, id); err != nil { writeProblem(w, 500, "Delete subscription failed", err.Error(), r.URL.Path); return }
    w.WriteHeader(204)
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, 200, map[string]any{"status": "ok", "build": buildinfo.Info()})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    // Check DB connectivity when using Postgres store
    type pinger interface{ Ping(ctx context.Context) error }
    if pg, ok := s.Store.(pinger); ok {
        ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
        defer cancel()
        if err := pg.Ping(ctx); err != nil { writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path); return }
    }
    writeJSON(w, 200, map[string]string{"status": "ready"})
}

// Admin: webhook deliveries list and retry
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/admin/webhook-deliveries" { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    p := s.getPrincipal(r)
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    if r.Method != http.MethodGet { w.WriteHeader(405); return }
    status := r.URL.Query().Get("status")
    cursor := r.URL.Query().Get("cursor")
    limit := 100
    if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
    items, next, err := s.Store.ListWebhookDeliveries(r.Context(), p.Tenant, status, cursor, limit)
    if err != nil { writeProblem(w, 500, "List deliveries failed", err.Error(), r.URL.Path); return }
    writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
    if !strings.HasPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/") || !strings.HasSuffix(r.URL.Path, "/retry") { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    if r.Method != http.MethodPost { w.WriteHeader(405); return }
    p := s.getPrincipal(r)
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/"), "/retry")
    if err := s.Store.RetryWebhookDelivery(r.Context(), p.Tenant, id); err != nil { writeProblem(w, 500, "Retry delivery failed", err.Error(), r.URL.Path); return }
    writeJSON(w, 202, map[string]int{"accepted": 1})
}

// Admin: webhook DLQ list and requeue
func (s *Server) WebhookDLQHandler(w http.ResponseWriter, r *http.Request) {
    p := s.getPrincipal(r)
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    if r.URL.Path == "/v1/admin/webhook-dlq" && r.Method == http.MethodGet {
        cursor := r.URL.Query().Get("cursor")
        limit := 100
        if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
        eventType := r.URL.Query().Get("eventType")
        items, next, err := s.Store.ListWebhookDLQ(r.Context(), p.Tenant, eventType, cursor, limit)
        if err != nil { writeProblem(w, 500, "List DLQ failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
        return
    }
    if strings.HasPrefix(r.URL.Path, "/v1/admin/webhook-dlq/") && strings.HasSuffix(r.URL.Path, "/requeue") && r.Method == http.MethodPost {
        id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/admin/webhook-dlq/"), "/requeue")
        if err := s.Store.RequeueWebhookDLQ(r.Context(), p.Tenant, id); err != nil { writeProblem(w, 500, "Requeue failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 202, map[string]int{"accepted": 1})
        return
    }
    writeProblem(w, 404, "Not Found", "", r.URL.Path)
}

// Admin plan metrics history
func (s *Server) PlanMetricsHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/admin/plan-metrics" || r.Method != http.MethodGet { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    p := s.getPrincipal(r)
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    planDate := r.URL.Query().Get("planDate")
    items, err := s.Store.ListPlanMetrics(r.Context(), p.Tenant, planDate)
    if err != nil { writeProblem(w, 500, "Plan metrics failed", err.Error(), r.URL.Path); return }
    writeJSON(w, 200, map[string]any{"items": items})
}

// runConfig resolves a run's tuning: request field > tenant config > server defaults.
func (s *Server) runConfig(ctx context.Context, tenant string, req model.OptimizeRequest) opt.Config {
    cfg := opt.Config{
        CostPerMile:      s.Defaults.CostPerMile,
        IncludeReturnLeg: s.Defaults.IncludeReturnLeg,
        MoveBudget:       s.Defaults.MoveBudget,
        TimeBudget:       time.Duration(s.Defaults.TimeBudgetMs) * time.Millisecond,
        DistanceWeight:   s.Defaults.DistanceWeight,
        TimeWeight:       s.Defaults.TimeWeight,
        FallbackSpeedMph: s.Defaults.FallbackSpeedMph,
        PrefetchWorkers:  s.Defaults.PrefetchWorkers,
    }
    if tc, ok, err := s.Store.GetOptimizerConfig(ctx, tenant); err == nil && ok {
        if tc.CostPerMile > 0 { cfg.CostPerMile = tc.CostPerMile }
        if tc.IncludeReturnLeg != nil { cfg.IncludeReturnLeg = *tc.IncludeReturnLeg }
        if tc.MoveBudget > 0 { cfg.MoveBudget = tc.MoveBudget }
        if tc.TimeBudgetMs > 0 { cfg.TimeBudget = time.Duration(tc.TimeBudgetMs) * time.Millisecond }
        if tc.DistanceWeight > 0 { cfg.DistanceWeight = tc.DistanceWeight }
        if tc.TimeWeight > 0 { cfg.TimeWeight = tc.TimeWeight }
        if tc.FallbackSpeedMph > 0 { cfg.FallbackSpeedMph = tc.FallbackSpeedMph }
    }
    if req.CostPerMile > 0 { cfg.CostPerMile = req.CostPerMile }
    if req.IncludeReturnLeg != nil { cfg.IncludeReturnLeg = *req.IncludeReturnLeg }
    if req.MoveBudget > 0 { cfg.MoveBudget = req.MoveBudget }
    if req.TimeBudgetMs > 0 { cfg.TimeBudget = time.Duration(req.TimeBudgetMs) * time.Millisecond }
    if req.DistanceWeight > 0 { cfg.DistanceWeight = req.DistanceWeight }
    if req.TimeWeight > 0 { cfg.TimeWeight = req.TimeWeight }
    return cfg
}

func runOutcome(res model.OptimizationResult, met opt.Metrics) string {
    switch {
    case met.TimedOut:
        return "timeout"
    case res.Degraded:
        return "degraded"
    default:
        return "ok"
    }
}

func metricsToMap(m opt.Metrics) map[string]any {
    b, _ := json.Marshal(m)
    out := map[string]any{}
    _ = json.Unmarshal(b, &out)
    return out
}

func filterJobsByTech(jobs []model.Job, techID string) []model.Job {
    out := make([]model.Job, 0, len(jobs))
    for _, j := range jobs {
        if j.TechnicianID == techID { out = append(out, j) }
    }
    return out
}

func filterTechByID(techs []model.Technician, id string) []model.Technician {
    for _, t := range techs {
        if t.ID == id { return []model.Technician{t} }
    }
    return nil
}
