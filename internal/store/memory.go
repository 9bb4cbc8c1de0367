package store

import (
    "context"
    "sync"
    "time"

    "github.com/google/uuid"
    "fieldroute/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
    mu       sync.Mutex
    jobs     map[string]model.Job        // id -> job
    jobsTen  map[string][]string         // tenant -> job ids (insertion order)
    techs    map[string]model.Technician // id -> technician
    techsTen map[string][]string         // tenant -> technician ids
    jobNums  map[string]string           // tenant|jobNumber -> job id, dedup
    subs     map[string][]model.Subscription
    // Webhooks queue state
    deliveries         map[string]*memDelivery
    deliveriesByTenant map[string][]string
    dlq                []map[string]any
    planMx             map[string]map[string][]map[string]any // tenant -> planDate -> runs
    optCfg             map[string]model.OptimizerConfig
}

func NewMemory() *Memory {
    return &Memory{
        jobs:               map[string]model.Job{},
        jobsTen:            map[string][]string{},
        techs:              map[string]model.Technician{},
        techsTen:           map[string][]string{},
        jobNums:            map[string]string{},
        subs:               map[string][]model.Subscription{},
        deliveries:         map[string]*memDelivery{},
        deliveriesByTenant: map[string][]string{},
        dlq:                []map[string]any{},
        planMx:             map[string]map[string][]map[string]any{},
        optCfg:             map[string]model.OptimizerConfig{},
    }
}

// memDelivery augments WebhookDelivery with scheduling/metrics
type memDelivery struct {
    WebhookDelivery
    NextAttemptAt time.Time
    LastError     string
    ResponseCode  int
    LatencyMs     int
    DeliveredAt   *time.Time
}

func (m *Memory) CreateJobs(ctx context.Context, tenantID string, jobs []model.JobIn) ([]string, int, int, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    ids := []string{}
    created, skipped := 0, 0
    for _, in := range jobs {
        if in.JobNumber != "" {
            if _, dup := m.jobNums[tenantID+"|"+in.JobNumber]; dup { skipped++; continue }
        }
        id := uuid.New().String()
        j := model.Job{
            ID: id, JobNumber: in.JobNumber,
            Address: in.Address, City: in.City, State: in.State, PostalCode: in.PostalCode,
            Location: in.Location, DurationMin: in.DurationMin, TimeWindow: in.TimeWindow,
            Priority: in.Priority, ServiceType: in.ServiceType, EstimatedValue: in.EstimatedValue,
            ScheduledDate: in.ScheduledDate, Status: "pending",
        }
        if j.Priority == "" { j.Priority = "medium" }
        m.jobs[id] = j
        m.jobsTen[tenantID] = append(m.jobsTen[tenantID], id)
        if in.JobNumber != "" { m.jobNums[tenantID+"|"+in.JobNumber] = id }
        ids = append(ids, id)
        created++
    }
    return ids, created, skipped, nil
}

func (m *Memory) ListJobs(ctx context.Context, tenantID, date, status, cursor string, limit int) ([]model.Job, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    ids := m.jobsTen[tenantID]
    start := 0
    if cursor != "" {
        for i, id := range ids {
            if id == cursor { start = i + 1; break }
        }
    }
    if limit <= 0 { limit = 100 }
    out := []model.Job{}
    var next string
    for i := start; i < len(ids) && len(out) < limit; i++ {
        j := m.jobs[ids[i]]
        if date != "" && j.ScheduledDate != date { continue }
        if status != "" && j.Status != status { continue }
        out = append(out, j)
        next = ids[i]
    }
    if len(out) < limit { next = "" }
    return out, next, nil
}

func (m *Memory) JobsForDate(ctx context.Context, tenantID, date string) ([]model.Job, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []model.Job{}
    for _, id := range m.jobsTen[tenantID] {
        j := m.jobs[id]
        if j.ScheduledDate == date && j.Status != "completed" && j.Status != "cancelled" {
            out = append(out, j)
        }
    }
    return out, nil
}

func (m *Memory) CreateTechnicians(ctx context.Context, tenantID string, techs []model.TechnicianIn) ([]model.Technician, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []model.Technician{}
    for _, in := range techs {
        t := model.Technician{
            ID: uuid.New().String(), Name: in.Name, Phone: in.Phone,
            ShiftStart: in.ShiftStart, ShiftEnd: in.ShiftEnd,
            StartLocation: in.StartLocation, StartAddress: in.StartAddress,
            Skills: in.Skills, Active: true,
        }
        if in.Active != nil { t.Active = *in.Active }
        m.techs[t.ID] = t
        m.techsTen[tenantID] = append(m.techsTen[tenantID], t.ID)
        out = append(out, t)
    }
    return out, nil
}

func (m *Memory) ListTechnicians(ctx context.Context, tenantID, cursor string, limit int) ([]model.Technician, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    ids := m.techsTen[tenantID]
    start := 0
    if cursor != "" {
        for i, id := range ids {
            if id == cursor { start = i + 1; break }
        }
    }
    if limit <= 0 { limit = 100 }
    out := []model.Technician{}
    var next string
    for i := start; i < len(ids) && len(out) < limit; i++ {
        out = append(out, m.techs[ids[i]])
        next = ids[i]
    }
    if len(out) < limit { next = "" }
    return out, next, nil
}

func (m *Memory) ActiveTechnicians(ctx context.Context, tenantID string) ([]model.Technician, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []model.Technician{}
    for _, id := range m.techsTen[tenantID] {
        if t := m.techs[id]; t.Active { out = append(out, t) }
    }
    return out, nil
}

func (m *Memory) ApplyRoutes(ctx context.Context, req model.ApplyRequest) (int, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    updated := 0
    for _, rt := range req.Routes {
        for ord, j := range rt.Jobs {
            cur, ok := m.jobs[j.ID]
            if !ok { continue }
            cur.TechnicianID = rt.TechnicianID
            cur.StopOrder = ord + 1
            cur.ScheduledDate = req.Date
            cur.Status = "scheduled"
            m.jobs[j.ID] = cur
            updated++
        }
    }
    return updated, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    s := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
    m.subs[req.TenantID] = append(m.subs[req.TenantID], s)
    return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    var out []model.Subscription
    for _, s := range m.subs[tenantID] {
        for _, e := range s.Events {
            if e == eventType { out = append(out, s); break }
        }
    }
    return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    list := m.subs[tenantID]
    start := 0
    if cursor != "" {
        for i := range list {
            if list[i].ID == cursor { start = i + 1; break }
        }
    }
    if limit <= 0 { limit = 100 }
    end := start + limit
    if end > len(list) { end = len(list) }
    items := append([]model.Subscription(nil), list[start:end]...)
    next := ""
    if end < len(list) { next = list[end-1].ID }
    return items, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, tenantID, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    arr := m.subs[tenantID]
    out := make([]model.Subscription, 0, len(arr))
    for _, s := range arr {
        if s.ID != id { out = append(out, s) }
    }
    m.subs[tenantID] = out
    return nil
}

// Webhook deliveries
func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    id := uuid.New().String()
    d := &memDelivery{WebhookDelivery: WebhookDelivery{ID: id, TenantID: tenantID, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: "pending", Attempts: 0}, NextAttemptAt: time.Now()}
    m.deliveries[id] = d
    m.deliveriesByTenant[tenantID] = append(m.deliveriesByTenant[tenantID], id)
    return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    now := time.Now()
    out := []WebhookDelivery{}
    for _, id := range m.iterDeliveryIDs() {
        d := m.deliveries[id]
        if d == nil { continue }
        if (d.Status == "pending" || d.Status == "retry") && !d.NextAttemptAt.After(now) {
            out = append(out, d.WebhookDelivery)
            if limit > 0 && len(out) >= limit { break }
        }
    }
    return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return nil }
    d.Attempts++
    d.ResponseCode = responseCode
    d.LatencyMs = latencyMs
    if success {
        d.Status = "delivered"
        now := time.Now()
        d.DeliveredAt = &now
    } else {
        d.Status = "retry"
        d.LastError = lastError
        if nextAttemptAt != nil { d.NextAttemptAt = *nextAttemptAt } else { d.NextAttemptAt = time.Now().Add(1 * time.Minute) }
    }
    return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d != nil { d.Status = "failed" }
    row := map[string]any{"id": id, "lastError": lastError, "responseCode": responseCode, "latencyMs": latencyMs}
    if d != nil {
        row["tenantId"] = d.TenantID
        row["eventType"] = d.EventType
    }
    m.dlq = append(m.dlq, row)
    return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []map[string]any{}
    for _, id := range m.deliveriesByTenant[tenantID] {
        d := m.deliveries[id]
        if d == nil { continue }
        if status == "" || d.Status == status {
            item := map[string]any{"id": d.ID, "eventType": d.EventType, "status": d.Status, "attempts": d.Attempts, "url": d.URL}
            if !d.NextAttemptAt.IsZero() { item["nextAttemptAt"] = d.NextAttemptAt }
            if d.LastError != "" { item["lastError"] = d.LastError }
            out = append(out, item)
        }
    }
    return out, "", nil
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d != nil && d.TenantID == tenantID {
        d.Status = "pending"
        d.NextAttemptAt = time.Now()
    }
    return nil
}

func (m *Memory) ListWebhookDLQ(ctx context.Context, tenantID, eventType, cursor string, limit int) ([]map[string]any, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []map[string]any{}
    for _, row := range m.dlq {
        if t, _ := row["tenantId"].(string); t != "" && t != tenantID { continue }
        if eventType != "" {
            if et, _ := row["eventType"].(string); et != eventType { continue }
        }
        out = append(out, row)
    }
    return out, "", nil
}

func (m *Memory) RequeueWebhookDLQ(ctx context.Context, tenantID, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil || d.TenantID != tenantID { return ErrNotFound }
    d.Status = "pending"
    d.NextAttemptAt = time.Now()
    kept := m.dlq[:0]
    for _, row := range m.dlq {
        if rid, _ := row["id"].(string); rid != id { kept = append(kept, row) }
    }
    m.dlq = kept
    return nil
}

func (m *Memory) SavePlanMetrics(ctx context.Context, tenantID, planDate string, metrics map[string]any) error {
    m.mu.Lock(); defer m.mu.Unlock()
    if m.planMx[tenantID] == nil { m.planMx[tenantID] = map[string][]map[string]any{} }
    row := map[string]any{"planDate": planDate, "runAt": time.Now().UTC().Format(time.RFC3339)}
    for k, v := range metrics { row[k] = v }
    m.planMx[tenantID][planDate] = append(m.planMx[tenantID][planDate], row)
    return nil
}

func (m *Memory) ListPlanMetrics(ctx context.Context, tenantID, planDate string) ([]map[string]any, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if planDate != "" {
        return append([]map[string]any(nil), m.planMx[tenantID][planDate]...), nil
    }
    out := []map[string]any{}
    for _, runs := range m.planMx[tenantID] { out = append(out, runs...) }
    return out, nil
}

func (m *Memory) GetOptimizerConfig(ctx context.Context, tenantID string) (model.OptimizerConfig, bool, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    cfg, ok := m.optCfg[tenantID]
    return cfg, ok, nil
}

func (m *Memory) SaveOptimizerConfig(ctx context.Context, tenantID string, cfg model.OptimizerConfig) error {
    m.mu.Lock(); defer m.mu.Unlock()
    m.optCfg[tenantID] = cfg
    return nil
}

// helper: iterate delivery IDs by tenant order
func (m *Memory) iterDeliveryIDs() []string {
    ids := []string{}
    for _, lst := range m.deliveriesByTenant {
        ids = append(ids, lst...)
    }
    return ids
}
