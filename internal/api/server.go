package api

import (
    "context"
    "net/http"
    "strings"

    "fieldroute/internal/auth"
    "fieldroute/internal/config"
    "fieldroute/internal/distance"
    "fieldroute/internal/store"
    "fieldroute/internal/webhooks"
)

type Server struct {
    Store    store.Store
    Pub      *webhooks.Publisher
    Auth     *auth.Verifier
    Broker   EventBroker
    Provider distance.Provider
    Defaults config.Optimizer
}

// NewServer wires dependencies from configuration. No database_url means the
// in-memory store; no osrm_url means straight-line distance estimates.
func NewServer(cfg config.Config) (*Server, error) {
    var s store.Store
    if strings.TrimSpace(cfg.DatabaseURL) == "" {
        s = store.NewMemory()
    } else {
        sp, err := store.NewPostgres(cfg.DatabaseURL)
        if err != nil {
            return nil, err
        }
        s = sp
    }
    var broker EventBroker
    if cfg.RedisURL != "" {
        if rb, err := NewRedisBroker(cfg.RedisURL); err == nil { broker = rb } else { broker = NewBroker() }
    } else {
        broker = NewBroker()
    }
    var provider distance.Provider
    if cfg.OSRMURL != "" {
        provider = distance.NewOSRM(cfg.OSRMURL)
    } else {
        provider = distance.NewHaversine(cfg.Optimizer.FallbackSpeedMph)
    }
    return &Server{
        Store:    s,
        Pub:      webhooks.NewPublisher(s),
        Auth:     auth.NewVerifierFromEnv(),
        Broker:   broker,
        Provider: provider,
        Defaults: cfg.Optimizer,
    }, nil
}

func (s *Server) withTenant(r *http.Request) (context.Context, string) {
    // For now, get tenant from header; in production decode from JWT.
    tenant := r.Header.Get("X-Tenant-Id")
    if tenant == "" { tenant = "t_demo" }
    ctx := context.WithValue(r.Context(), ctxKeyTenant{}, tenant)
    return ctx, tenant
}

type ctxKeyTenant struct{}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
    return webhooks.NewWorker(s.Store)
}
