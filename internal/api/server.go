package api

import (
    "fmt"
    "log"
    "strings"

    "golang.org/x/time/rate"

    "feedmill/internal/auth"
    "feedmill/internal/channel"
    "feedmill/internal/config"
    "feedmill/internal/store"
    "feedmill/internal/wa"
    "feedmill/internal/webhooks"
)

type Server struct {
    Cfg     config.Config
    Store   store.Store
    Pub     *webhooks.Publisher
    Auth    *auth.Verifier
    Broker  EventBroker
    Channel channel.Adapter

    intake *rate.Limiter
}

// NewServer creates a Server. If DATABASE_URL is unset, uses in-memory store.
func NewServer() (*Server, error) {
    cfg, err := config.Load()
    if err != nil {
        return nil, err
    }
    var s store.Store
    if strings.TrimSpace(cfg.DatabaseURL) == "" {
        s = store.NewMemory()
    } else {
        sp, err := store.NewPostgres(cfg.DatabaseURL)
        if err != nil {
            return nil, err
        }
        if cfg.AutoMigrate {
            if err := sp.MigrateDir(cfg.MigrateDir); err != nil {
                return nil, fmt.Errorf("migrate %s: %w", cfg.MigrateDir, err)
            }
        }
        s = sp
    }
    // Broker selection
    var broker EventBroker
    if cfg.RedisURL != "" {
        rb, err := NewRedisBroker()
        if err != nil {
            log.Printf("redis broker unavailable, falling back to in-memory: %v", err)
            broker = NewBroker()
        } else {
            broker = rb
        }
    } else {
        broker = NewBroker()
    }
    // Conversational channel: WhatsApp when credentials are present.
    var ch channel.Adapter = channel.Noop{}
    if cfg.WhatsApp.PhoneID != "" && cfg.WhatsApp.Token != "" {
        ch = wa.NewClient(cfg.WhatsApp.PhoneID, cfg.WhatsApp.Token)
    }
    return &Server{
        Cfg:     cfg,
        Store:   s,
        Pub:     webhooks.NewPublisher(s),
        Auth:    auth.NewVerifierFromEnv(),
        Broker:  broker,
        Channel: ch,
        intake:  rate.NewLimiter(rate.Limit(cfg.IntakeRatePerMin/60.0), 10),
    }, nil
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
    return webhooks.NewWorker(s.Store)
}
