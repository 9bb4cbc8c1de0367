package store

import (
    "context"
    "crypto/sha256"
    "database/sql"
    "encoding/hex"
    "encoding/json"
    "errors"
    "fmt"
    "time"

    "github.com/google/uuid"
    _ "github.com/jackc/pgx/v5/stdlib"

    "fieldroute/internal/model"
)

type Postgres struct {
    db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    if err := db.Ping(); err != nil {
        return nil, err
    }
    p := &Postgres{db: db}
    if err := p.ensureSchema(context.Background()); err != nil {
        return nil, fmt.Errorf("bootstrap schema: %w", err)
    }
    return p, nil
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
    stmts := []string{
        `CREATE TABLE IF NOT EXISTS jobs (
            id UUID PRIMARY KEY,
            tenant_id TEXT NOT NULL,
            job_number TEXT,
            address TEXT, city TEXT, state TEXT, postal_code TEXT,
            lat DOUBLE PRECISION, lng DOUBLE PRECISION,
            duration_min INT NOT NULL DEFAULT 0,
            window_start TEXT, window_end TEXT,
            priority TEXT NOT NULL DEFAULT 'medium',
            service_type TEXT,
            estimated_value DOUBLE PRECISION,
            scheduled_date TEXT,
            technician_id TEXT,
            stop_order INT,
            status TEXT NOT NULL DEFAULT 'pending',
            created_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
        `CREATE UNIQUE INDEX IF NOT EXISTS jobs_tenant_number ON jobs (tenant_id, job_number) WHERE job_number IS NOT NULL`,
        `CREATE INDEX IF NOT EXISTS jobs_tenant_date ON jobs (tenant_id, scheduled_date)`,
        `CREATE TABLE IF NOT EXISTS technicians (
            id UUID PRIMARY KEY,
            tenant_id TEXT NOT NULL,
            name TEXT NOT NULL,
            phone TEXT,
            shift_start TEXT NOT NULL,
            shift_end TEXT NOT NULL,
            start_lat DOUBLE PRECISION, start_lng DOUBLE PRECISION,
            start_address TEXT,
            skills JSONB,
            active BOOLEAN NOT NULL DEFAULT true,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
        `CREATE TABLE IF NOT EXISTS subscriptions (
            id UUID PRIMARY KEY,
            tenant_id TEXT NOT NULL,
            url TEXT NOT NULL,
            events JSONB NOT NULL,
            secret TEXT
        )`,
        `CREATE TABLE IF NOT EXISTS webhook_deliveries (
            id UUID PRIMARY KEY,
            tenant_id TEXT NOT NULL,
            subscription_id UUID,
            event_type TEXT NOT NULL,
            url TEXT NOT NULL,
            secret TEXT,
            payload BYTEA NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            attempts INT NOT NULL DEFAULT 0,
            next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            last_error TEXT,
            response_code INT,
            latency_ms INT,
            delivered_at TIMESTAMPTZ,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            dedup_key TEXT
        )`,
        `CREATE UNIQUE INDEX IF NOT EXISTS webhook_dedup ON webhook_deliveries (tenant_id, event_type, url, dedup_key)`,
        `CREATE TABLE IF NOT EXISTS webhook_dlq (
            id UUID PRIMARY KEY,
            tenant_id TEXT NOT NULL,
            delivery_id UUID,
            event_type TEXT,
            url TEXT,
            secret TEXT,
            payload BYTEA,
            attempts INT,
            last_error TEXT,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
        `CREATE TABLE IF NOT EXISTS plan_metrics (
            id UUID PRIMARY KEY,
            tenant_id TEXT NOT NULL,
            plan_date TEXT NOT NULL,
            run_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            metrics JSONB NOT NULL
        )`,
        `CREATE INDEX IF NOT EXISTS plan_metrics_tenant_date ON plan_metrics (tenant_id, plan_date)`,
        `CREATE TABLE IF NOT EXISTS optimizer_config (
            tenant_id TEXT PRIMARY KEY,
            config JSONB NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
    }
    for _, s := range stmts {
        if _, err := p.db.ExecContext(ctx, s); err != nil { return err }
    }
    return nil
}

// CreateJobs inserts jobs. Dedup by (tenant_id, job_number) when provided.
func (p *Postgres) CreateJobs(ctx context.Context, tenantID string, jobs []model.JobIn) ([]string, int, int, error) {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return nil, 0, 0, err }
    defer func(){ _ = tx.Rollback() }()

    ids := []string{}
    created, skipped := 0, 0
    for _, in := range jobs {
        if in.JobNumber != "" {
            var existsID string
            err = tx.QueryRowContext(ctx, `SELECT id::text FROM jobs WHERE tenant_id=$1 AND job_number=$2`, tenantID, in.JobNumber).Scan(&existsID)
            if err == nil { skipped++; continue }
            if !errors.Is(err, sql.ErrNoRows) { return nil, 0, 0, err }
        }
        id := uuid.New()
        var lat, lng any
        if in.Location != nil { lat, lng = in.Location.Lat, in.Location.Lng }
        var ws, we any
        if in.TimeWindow != nil { ws, we = nullIfEmpty(in.TimeWindow.Start), nullIfEmpty(in.TimeWindow.End) }
        priority := in.Priority
        if priority == "" { priority = "medium" }
        _, err = tx.ExecContext(ctx, `INSERT INTO jobs (id, tenant_id, job_number, address, city, state, postal_code, lat, lng, duration_min, window_start, window_end, priority, service_type, estimated_value, scheduled_date, status)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,'pending')`,
            id, tenantID, nullIfEmpty(in.JobNumber), nullIfEmpty(in.Address), nullIfEmpty(in.City), nullIfEmpty(in.State), nullIfEmpty(in.PostalCode),
            lat, lng, in.DurationMin, ws, we, priority, nullIfEmpty(in.ServiceType), in.EstimatedValue, nullIfEmpty(in.ScheduledDate))
        if err != nil { return nil, 0, 0, err }
        ids = append(ids, id.String())
        created++
    }
    if err := tx.Commit(); err != nil { return nil, 0, 0, err }
    return ids, created, skipped, nil
}

const jobCols = `id::text, COALESCE(job_number,''), COALESCE(address,''), COALESCE(city,''), COALESCE(state,''), COALESCE(postal_code,''),
    lat, lng, duration_min, window_start, window_end, priority, COALESCE(service_type,''), COALESCE(estimated_value,0),
    COALESCE(scheduled_date,''), COALESCE(technician_id,''), COALESCE(stop_order,0), status`

func scanJob(sc interface{ Scan(...any) error }) (model.Job, error) {
    var j model.Job
    var lat, lng sql.NullFloat64
    var ws, we sql.NullString
    err := sc.Scan(&j.ID, &j.JobNumber, &j.Address, &j.City, &j.State, &j.PostalCode,
        &lat, &lng, &j.DurationMin, &ws, &we, &j.Priority, &j.ServiceType, &j.EstimatedValue,
        &j.ScheduledDate, &j.TechnicianID, &j.StopOrder, &j.Status)
    if err != nil { return j, err }
    if lat.Valid && lng.Valid { j.Location = &model.GeoPoint{Lat: lat.Float64, Lng: lng.Float64} }
    if ws.Valid && we.Valid { j.TimeWindow = &model.TimeWindow{Start: ws.String, End: we.String} }
    return j, nil
}

func (p *Postgres) ListJobs(ctx context.Context, tenantID, date, status, cursor string, limit int) ([]model.Job, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    q := `SELECT ` + jobCols + ` FROM jobs WHERE tenant_id=$1`
    args := []any{tenantID}
    idx := 2
    if date != "" { q += fmt.Sprintf(` AND scheduled_date=$%d`, idx); args = append(args, date); idx++ }
    if status != "" { q += fmt.Sprintf(` AND status=$%d`, idx); args = append(args, status); idx++ }
    if cursor != "" { q += fmt.Sprintf(` AND id::text > $%d`, idx); args = append(args, cursor); idx++ }
    q += fmt.Sprintf(` ORDER BY id LIMIT $%d`, idx)
    args = append(args, limit)
    rows, err := p.db.QueryContext(ctx, q, args...)
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.Job{}
    var last string
    for rows.Next() {
        j, err := scanJob(rows)
        if err != nil { return nil, "", err }
        out = append(out, j)
        last = j.ID
    }
    next := ""
    if len(out) == limit { next = last }
    return out, next, nil
}

func (p *Postgres) JobsForDate(ctx context.Context, tenantID, date string) ([]model.Job, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT `+jobCols+` FROM jobs WHERE tenant_id=$1 AND scheduled_date=$2 AND status NOT IN ('completed','cancelled') ORDER BY created_at`, tenantID, date)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Job{}
    for rows.Next() {
        j, err := scanJob(rows)
        if err != nil { return nil, err }
        out = append(out, j)
    }
    return out, rows.Err()
}

func (p *Postgres) CreateTechnicians(ctx context.Context, tenantID string, techs []model.TechnicianIn) ([]model.Technician, error) {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return nil, err }
    defer func(){ _ = tx.Rollback() }()
    out := []model.Technician{}
    for _, in := range techs {
        t := model.Technician{
            ID: uuid.New().String(), Name: in.Name, Phone: in.Phone,
            ShiftStart: in.ShiftStart, ShiftEnd: in.ShiftEnd,
            StartLocation: in.StartLocation, StartAddress: in.StartAddress,
            Skills: in.Skills, Active: true,
        }
        if in.Active != nil { t.Active = *in.Active }
        var lat, lng any
        if t.StartLocation != nil { lat, lng = t.StartLocation.Lat, t.StartLocation.Lng }
        skills, _ := json.Marshal(t.Skills)
        _, err = tx.ExecContext(ctx, `INSERT INTO technicians (id, tenant_id, name, phone, shift_start, shift_end, start_lat, start_lng, start_address, skills, active)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
            t.ID, tenantID, t.Name, nullIfEmpty(t.Phone), t.ShiftStart, t.ShiftEnd, lat, lng, nullIfEmpty(t.StartAddress), skills, t.Active)
        if err != nil { return nil, err }
        out = append(out, t)
    }
    if err := tx.Commit(); err != nil { return nil, err }
    return out, nil
}

const techCols = `id::text, name, COALESCE(phone,''), shift_start, shift_end, start_lat, start_lng, COALESCE(start_address,''), skills, active`

func scanTech(sc interface{ Scan(...any) error }) (model.Technician, error) {
    var t model.Technician
    var lat, lng sql.NullFloat64
    var skills []byte
    err := sc.Scan(&t.ID, &t.Name, &t.Phone, &t.ShiftStart, &t.ShiftEnd, &lat, &lng, &t.StartAddress, &skills, &t.Active)
    if err != nil { return t, err }
    if lat.Valid && lng.Valid { t.StartLocation = &model.GeoPoint{Lat: lat.Float64, Lng: lng.Float64} }
    if len(skills) > 0 { _ = json.Unmarshal(skills, &t.Skills) }
    return t, nil
}

func (p *Postgres) ListTechnicians(ctx context.Context, tenantID, cursor string, limit int) ([]model.Technician, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    var rows *sql.Rows
    var err error
    if cursor != "" {
        rows, err = p.db.QueryContext(ctx, `SELECT `+techCols+` FROM technicians WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT `+techCols+` FROM technicians WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
    }
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.Technician{}
    var last string
    for rows.Next() {
        t, err := scanTech(rows)
        if err != nil { return nil, "", err }
        out = append(out, t)
        last = t.ID
    }
    next := ""
    if len(out) == limit { next = last }
    return out, next, nil
}

func (p *Postgres) ActiveTechnicians(ctx context.Context, tenantID string) ([]model.Technician, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT `+techCols+` FROM technicians WHERE tenant_id=$1 AND active ORDER BY created_at`, tenantID)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Technician{}
    for rows.Next() {
        t, err := scanTech(rows)
        if err != nil { return nil, err }
        out = append(out, t)
    }
    return out, rows.Err()
}

// ApplyRoutes writes a proposal back onto the jobs table in one transaction.
func (p *Postgres) ApplyRoutes(ctx context.Context, req model.ApplyRequest) (int, error) {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return 0, err }
    defer func(){ _ = tx.Rollback() }()
    updated := 0
    for _, rt := range req.Routes {
        for ord, j := range rt.Jobs {
            res, err := tx.ExecContext(ctx, `UPDATE jobs SET technician_id=$1, stop_order=$2, scheduled_date=$3, status='scheduled' WHERE tenant_id=$4 AND id=$5`,
                rt.TechnicianID, ord+1, req.Date, req.TenantID, j.ID)
            if err != nil { return 0, err }
            if n, _ := res.RowsAffected(); n > 0 { updated++ }
        }
    }
    if err := tx.Commit(); err != nil { return 0, err }
    return updated, nil
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    id := uuid.New().String()
    ev, _ := json.Marshal(req.Events)
    _, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, tenant_id, url, events, secret) VALUES ($1,$2,$3,$4,$5)`, id, req.TenantID, req.URL, ev, req.Secret)
    if err != nil { return model.Subscription{}, err }
    return model.Subscription{ID: id, TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, COALESCE(secret,''), events FROM subscriptions WHERE tenant_id=$1 AND events @> $2::jsonb`, tenantID, fmt.Sprintf("[%q]", eventType))
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Subscription{}
    for rows.Next() {
        var s model.Subscription
        var events []byte
        if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &events); err != nil { return nil, err }
        s.TenantID = tenantID
        _ = json.Unmarshal(events, &s.Events)
        out = append(out, s)
    }
    return out, nil
}

func (p *Postgres) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    var rows *sql.Rows
    var err error
    if cursor != "" {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, COALESCE(secret,''), events FROM subscriptions WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, COALESCE(secret,''), events FROM subscriptions WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
    }
    if err != nil { return nil, "", err }
    defer rows.Close()
    var out []model.Subscription
    var last string
    for rows.Next() {
        var s model.Subscription
        var ev []byte
        if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &ev); err != nil { return nil, "", err }
        s.TenantID = tenantID
        _ = json.Unmarshal(ev, &s.Events)
        out = append(out, s)
        last = s.ID
    }
    next := ""
    if len(out) == limit { next = last }
    return out, next, nil
}

func (p *Postgres) DeleteSubscription(ctx context.Context, tenantID, id string) error {
    _, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE tenant_id=$1 AND id=$2`, tenantID, id)
    return err
}

// Webhook deliveries
func (p *Postgres) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    id := uuid.New().String()
    dk := computeDedupKey(payload)
    _, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at, dedup_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',0,now(),$8)
        ON CONFLICT (tenant_id, event_type, url, dedup_key) DO NOTHING`, id, tenantID, nullIfEmpty(subscriptionID), eventType, url, nullIfEmpty(secret), payload, dk)
    if err != nil { return "", err }
    return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, tenant_id, COALESCE(subscription_id::text,''), event_type, url, COALESCE(secret,''), payload, status, attempts
        FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at ASC LIMIT $1`, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []WebhookDelivery{}
    for rows.Next() {
        var d WebhookDelivery
        if err := rows.Scan(&d.ID, &d.TenantID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil { return nil, err }
        out = append(out, d)
    }
    return out, nil
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    if !success {
        if nextAttemptAt == nil { t := time.Now().Add(1 * time.Minute); nextAttemptAt = &t }
        _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='retry', last_error=$1, next_attempt_at=$2, updated_at=now(), response_code=$4, latency_ms=$5 WHERE id=$3`,
            nullIfEmpty(lastError), *nextAttemptAt, id, responseCode, latencyMs)
        return err
    }
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='delivered', delivered_at=now(), updated_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`, id, responseCode, latencyMs)
    return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='failed', last_error=$2, updated_at=now(), response_code=$3, latency_ms=$4 WHERE id=$1`, id, nullIfEmpty(lastError), responseCode, latencyMs)
    if err != nil { return err }
    // move to DLQ
    _, err = p.db.ExecContext(ctx, `INSERT INTO webhook_dlq (id, tenant_id, delivery_id, event_type, url, secret, payload, attempts, last_error)
        SELECT gen_random_uuid(), tenant_id, id, event_type, url, secret, payload, attempts+1, $2 FROM webhook_deliveries WHERE id=$1`, id, nullIfEmpty(lastError))
    return err
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    q := `SELECT id::text, event_type, status, attempts, next_attempt_at, COALESCE(last_error,''), url FROM webhook_deliveries WHERE tenant_id=$1`
    var rows *sql.Rows
    var err error
    if status != "" {
        q += ` AND status=$2 ORDER BY id LIMIT $3`
        rows, err = p.db.QueryContext(ctx, q, tenantID, status, limit)
    } else {
        q += ` ORDER BY id LIMIT $2`
        rows, err = p.db.QueryContext(ctx, q, tenantID, limit)
    }
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []map[string]any{}
    var last string
    for rows.Next() {
        var id, typ, st, lastErr, url string
        var attempts int
        var nextAt sql.NullTime
        if err := rows.Scan(&id, &typ, &st, &attempts, &nextAt, &lastErr, &url); err != nil { return nil, "", err }
        m := map[string]any{"id": id, "eventType": typ, "status": st, "attempts": attempts, "url": url}
        if nextAt.Valid { m["nextAttemptAt"] = nextAt.Time }
        if lastErr != "" { m["lastError"] = lastErr }
        out = append(out, m)
        last = id
    }
    next := ""
    if len(out) == limit { next = last }
    return out, next, nil
}

func (p *Postgres) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='pending', next_attempt_at=now() WHERE tenant_id=$1 AND id=$2`, tenantID, id)
    return err
}

func (p *Postgres) ListWebhookDLQ(ctx context.Context, tenantID, eventType, cursor string, limit int) ([]map[string]any, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    q := `SELECT id::text, delivery_id::text, COALESCE(event_type,''), COALESCE(url,''), COALESCE(last_error,''), COALESCE(attempts,0), created_at FROM webhook_dlq WHERE tenant_id=$1`
    args := []any{tenantID}
    idx := 2
    if eventType != "" { q += fmt.Sprintf(` AND event_type=$%d`, idx); args = append(args, eventType); idx++ }
    if cursor != "" { q += fmt.Sprintf(` AND id::text > $%d`, idx); args = append(args, cursor); idx++ }
    q += fmt.Sprintf(` ORDER BY id LIMIT $%d`, idx)
    args = append(args, limit)
    rows, err := p.db.QueryContext(ctx, q, args...)
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []map[string]any{}
    var last string
    for rows.Next() {
        var id, delivery, typ, url, lastErr string
        var attempts int
        var createdAt time.Time
        if err := rows.Scan(&id, &delivery, &typ, &url, &lastErr, &attempts, &createdAt); err != nil { return nil, "", err }
        out = append(out, map[string]any{"id": id, "deliveryId": delivery, "eventType": typ, "url": url, "lastError": lastErr, "attempts": attempts, "createdAt": createdAt})
        last = id
    }
    next := ""
    if len(out) == limit { next = last }
    return out, next, nil
}

func (p *Postgres) RequeueWebhookDLQ(ctx context.Context, tenantID, id string) error {
    var deliveryID string
    err := p.db.QueryRowContext(ctx, `SELECT delivery_id::text FROM webhook_dlq WHERE tenant_id=$1 AND id=$2`, tenantID, id).Scan(&deliveryID)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) { return ErrNotFound }
        return err
    }
    _, err = p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='pending', next_attempt_at=now() WHERE tenant_id=$1 AND id=$2`, tenantID, deliveryID)
    if err != nil { return err }
    _, err = p.db.ExecContext(ctx, `DELETE FROM webhook_dlq WHERE tenant_id=$1 AND id=$2`, tenantID, id)
    return err
}

func (p *Postgres) SavePlanMetrics(ctx context.Context, tenantID, planDate string, metrics map[string]any) error {
    js, err := json.Marshal(metrics)
    if err != nil { return err }
    _, err = p.db.ExecContext(ctx, `INSERT INTO plan_metrics (id, tenant_id, plan_date, metrics) VALUES ($1,$2,$3,$4)`,
        uuid.New().String(), tenantID, planDate, js)
    return err
}

func (p *Postgres) ListPlanMetrics(ctx context.Context, tenantID, planDate string) ([]map[string]any, error) {
    q := `SELECT plan_date, run_at, metrics FROM plan_metrics WHERE tenant_id=$1`
    args := []any{tenantID}
    if planDate != "" { q += ` AND plan_date=$2`; args = append(args, planDate) }
    q += ` ORDER BY run_at`
    rows, err := p.db.QueryContext(ctx, q, args...)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []map[string]any{}
    for rows.Next() {
        var date string
        var runAt time.Time
        var js []byte
        if err := rows.Scan(&date, &runAt, &js); err != nil { return nil, err }
        row := map[string]any{}
        _ = json.Unmarshal(js, &row)
        row["planDate"] = date
        row["runAt"] = runAt.UTC().Format(time.RFC3339)
        out = append(out, row)
    }
    return out, nil
}

func (p *Postgres) GetOptimizerConfig(ctx context.Context, tenantID string) (model.OptimizerConfig, bool, error) {
    var cfg model.OptimizerConfig
    var js []byte
    err := p.db.QueryRowContext(ctx, `SELECT config FROM optimizer_config WHERE tenant_id=$1`, tenantID).Scan(&js)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) { return cfg, false, nil }
        return cfg, false, err
    }
    if err := json.Unmarshal(js, &cfg); err != nil { return cfg, false, err }
    return cfg, true, nil
}

func (p *Postgres) SaveOptimizerConfig(ctx context.Context, tenantID string, cfg model.OptimizerConfig) error {
    js, err := json.Marshal(cfg)
    if err != nil { return err }
    _, err = p.db.ExecContext(ctx, `INSERT INTO optimizer_config (tenant_id, config, updated_at) VALUES ($1, $2, now())
        ON CONFLICT (tenant_id) DO UPDATE SET config=$2, updated_at=now()`, tenantID, js)
    return err
}

// Ping reports database connectivity; used by the readiness probe.
func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// Helpers
func nullIfEmpty(s string) any { if s == "" { return nil }; return s }

func computeDedupKey(payload []byte) string {
    h := sha256.Sum256(payload)
    return hex.EncodeToString(h[:])
}
