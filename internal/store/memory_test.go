package store

import (
    "context"
    "testing"
    "time"

    "fieldroute/internal/model"
)

func TestMemoryCreateJobsDedup(t *testing.T) {
    m := NewMemory()
    ctx := context.Background()
    in := []model.JobIn{
        {JobNumber: "FS-100", DurationMin: 60, ScheduledDate: "2026-03-02"},
        {JobNumber: "FS-100", DurationMin: 60, ScheduledDate: "2026-03-02"},
        {DurationMin: 30, ScheduledDate: "2026-03-02"},
    }
    ids, created, skipped, err := m.CreateJobs(ctx, "t1", in)
    if err != nil { t.Fatal(err) }
    if created != 2 || skipped != 1 {
        t.Fatalf("created=%d skipped=%d, want 2/1", created, skipped)
    }
    if len(ids) != 2 {
        t.Fatalf("ids=%d, want 2", len(ids))
    }
    jobs, err := m.JobsForDate(ctx, "t1", "2026-03-02")
    if err != nil { t.Fatal(err) }
    if len(jobs) != 2 {
        t.Fatalf("jobs for date = %d, want 2", len(jobs))
    }
    if jobs[0].Priority != "medium" {
        t.Fatalf("default priority = %q, want medium", jobs[0].Priority)
    }
}

func TestMemoryApplyRoutes(t *testing.T) {
    m := NewMemory()
    ctx := context.Background()
    ids, _, _, err := m.CreateJobs(ctx, "t1", []model.JobIn{
        {DurationMin: 60, ScheduledDate: "2026-03-02"},
        {DurationMin: 45, ScheduledDate: "2026-03-02"},
    })
    if err != nil { t.Fatal(err) }
    updated, err := m.ApplyRoutes(ctx, model.ApplyRequest{
        TenantID: "t1", Date: "2026-03-02",
        Routes: []model.OptimizedRoute{{
            TechnicianID: "tech-1",
            Jobs:         []model.Job{{ID: ids[1]}, {ID: ids[0]}, {ID: "missing"}},
        }},
    })
    if err != nil { t.Fatal(err) }
    if updated != 2 {
        t.Fatalf("updated=%d, want 2", updated)
    }
    jobs, _ := m.JobsForDate(ctx, "t1", "2026-03-02")
    for _, j := range jobs {
        if j.TechnicianID != "tech-1" || j.Status != "scheduled" {
            t.Fatalf("job %s not applied: tech=%q status=%q", j.ID, j.TechnicianID, j.Status)
        }
        if j.ID == ids[1] && j.StopOrder != 1 {
            t.Fatalf("stop order for first job = %d, want 1", j.StopOrder)
        }
    }
}

func TestMemoryWebhookLifecycle(t *testing.T) {
    m := NewMemory()
    ctx := context.Background()
    id, err := m.EnqueueWebhook(ctx, "t1", "sub1", "plan.completed", "http://example.com/hook", "s3cret", []byte(`{}`))
    if err != nil { t.Fatal(err) }

    due, err := m.FetchDueWebhookDeliveries(ctx, 10)
    if err != nil { t.Fatal(err) }
    if len(due) != 1 || due[0].ID != id {
        t.Fatalf("due=%v, want the enqueued delivery", due)
    }

    // failed attempt schedules a retry in the future
    next := time.Now().Add(time.Hour)
    if err := m.MarkWebhookDelivery(ctx, id, false, &next, "boom", 500, 12); err != nil { t.Fatal(err) }
    due, _ = m.FetchDueWebhookDeliveries(ctx, 10)
    if len(due) != 0 {
        t.Fatalf("retry not yet due, got %d deliveries", len(due))
    }

    // manual retry makes it due again
    if err := m.RetryWebhookDelivery(ctx, "t1", id); err != nil { t.Fatal(err) }
    due, _ = m.FetchDueWebhookDeliveries(ctx, 10)
    if len(due) != 1 {
        t.Fatalf("after retry, due=%d, want 1", len(due))
    }

    // exhausting attempts dead-letters it
    if err := m.FailWebhookDelivery(ctx, id, "gave up", 503, 40); err != nil { t.Fatal(err) }
    dlq, _, err := m.ListWebhookDLQ(ctx, "t1", "", "", 10)
    if err != nil { t.Fatal(err) }
    if len(dlq) != 1 {
        t.Fatalf("dlq=%d, want 1", len(dlq))
    }
    if err := m.RequeueWebhookDLQ(ctx, "t1", id); err != nil { t.Fatal(err) }
    due, _ = m.FetchDueWebhookDeliveries(ctx, 10)
    if len(due) != 1 {
        t.Fatalf("after requeue, due=%d, want 1", len(due))
    }
}

func TestMemoryOptimizerConfigRoundTrip(t *testing.T) {
    m := NewMemory()
    ctx := context.Background()
    if _, ok, _ := m.GetOptimizerConfig(ctx, "t1"); ok {
        t.Fatal("config present before save")
    }
    want := model.OptimizerConfig{CostPerMile: 0.72, MoveBudget: 5000}
    if err := m.SaveOptimizerConfig(ctx, "t1", want); err != nil { t.Fatal(err) }
    got, ok, err := m.GetOptimizerConfig(ctx, "t1")
    if err != nil || !ok {
        t.Fatalf("get after save: ok=%v err=%v", ok, err)
    }
    if got.CostPerMile != want.CostPerMile || got.MoveBudget != want.MoveBudget {
        t.Fatalf("got %+v, want %+v", got, want)
    }
}

func TestMemoryListJobsPagination(t *testing.T) {
    m := NewMemory()
    ctx := context.Background()
    for i := 0; i < 5; i++ {
        _, _, _, err := m.CreateJobs(ctx, "t1", []model.JobIn{{DurationMin: 30, ScheduledDate: "2026-03-02"}})
        if err != nil { t.Fatal(err) }
    }
    page1, next, err := m.ListJobs(ctx, "t1", "", "", "", 3)
    if err != nil { t.Fatal(err) }
    if len(page1) != 3 || next == "" {
        t.Fatalf("page1=%d next=%q", len(page1), next)
    }
    page2, next2, err := m.ListJobs(ctx, "t1", "", "", next, 3)
    if err != nil { t.Fatal(err) }
    if len(page2) != 2 || next2 != "" {
        t.Fatalf("page2=%d next2=%q", len(page2), next2)
    }
}
