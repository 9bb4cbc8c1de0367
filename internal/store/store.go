package store

import (
    "context"
    "errors"
    "time"

    "fieldroute/internal/model"
)

// Store is the persistence interface used by the API server.
type Store interface {
    // Jobs
    CreateJobs(ctx context.Context, tenantID string, jobs []model.JobIn) (ids []string, created, skipped int, err error)
    ListJobs(ctx context.Context, tenantID, date, status, cursor string, limit int) (items []model.Job, nextCursor string, err error)
    JobsForDate(ctx context.Context, tenantID, date string) ([]model.Job, error)

    // Technicians
    CreateTechnicians(ctx context.Context, tenantID string, techs []model.TechnicianIn) ([]model.Technician, error)
    ListTechnicians(ctx context.Context, tenantID, cursor string, limit int) ([]model.Technician, string, error)
    ActiveTechnicians(ctx context.Context, tenantID string) ([]model.Technician, error)

    // Route application (write-back of an accepted proposal)
    ApplyRoutes(ctx context.Context, req model.ApplyRequest) (updated int, err error)

    // Subscriptions
    CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
    GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error)
    ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error)
    DeleteSubscription(ctx context.Context, tenantID, id string) error

    // Webhook deliveries
    EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
    FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
    MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
    FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
    ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error)
    RetryWebhookDelivery(ctx context.Context, tenantID, id string) error

    // Dead-letter queue
    ListWebhookDLQ(ctx context.Context, tenantID, eventType, cursor string, limit int) ([]map[string]any, string, error)
    RequeueWebhookDLQ(ctx context.Context, tenantID, id string) error

    // Plan metrics history
    SavePlanMetrics(ctx context.Context, tenantID, planDate string, metrics map[string]any) error
    ListPlanMetrics(ctx context.Context, tenantID, planDate string) ([]map[string]any, error)

    // Optimizer config per tenant
    GetOptimizerConfig(ctx context.Context, tenantID string) (model.OptimizerConfig, bool, error)
    SaveOptimizerConfig(ctx context.Context, tenantID string, cfg model.OptimizerConfig) error
}

var ErrNotFound = errors.New("not found")
