package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadgen-platform/internal/audit"
	"leadgen-platform/internal/auth"
	"leadgen-platform/internal/billing"
	"leadgen-platform/internal/config"
	"leadgen-platform/internal/httpapi"
	"leadgen-platform/internal/integrations/apify"
	"leadgen-platform/internal/integrations/contactout"
	"leadgen-platform/internal/integrations/gemini"
	"leadgen-platform/internal/integrations/vapi"
	"leadgen-platform/internal/knowledgebase"
	"leadgen-platform/internal/metrics"
	"leadgen-platform/internal/notify"
	"leadgen-platform/internal/pipeline"
	"leadgen-platform/internal/pricing"
	"leadgen-platform/internal/reporting"
	"leadgen-platform/internal/store"
	"leadgen-platform/internal/validator"
	"leadgen-platform/internal/webhook"
	"leadgen-platform/migrations"
	"leadgen-platform/pkg/httpclient"
	"leadgen-platform/pkg/logger"
	"leadgen-platform/pkg/utils"
	"leadgen-platform/pkg/workpool"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env, logger.Options{Level: cfg.App.LogLevel, Service: "leadgen-api"})
	slog.SetDefault(log)
	rootCtx = logger.With(rootCtx, log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if cfg.DB.AutoMigrate {
		if err := migrations.Up(rootCtx, db, log); err != nil {
			log.Error("migrations failed", "err", err)
			os.Exit(1)
		}
	}

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	st := store.NewPostgres(db)
	bill := billing.NewService(st, pricing.FromConfig(cfg.Pricing))
	aud := audit.NewService(st)

	// Vendor clients share the error hook and the per-vendor token bucket.
	vendorOpts := []httpclient.Option{
		httpclient.WithErrorHook(metrics.RecordIntegrationError),
		httpclient.WithRateLimit(cfg.Pipeline.VendorRatePerSec, cfg.Pipeline.Workers),
	}
	gem := gemini.New(cfg.Gemini, vendorOpts...)
	maps := apify.New(cfg.Apify, vendorOpts...)
	people := contactout.New(cfg.ContactOut, vendorOpts...)
	voice := vapi.New(cfg.VAPI, cfg.WebhookURL(), vendorOpts...)
	if cfg.WebhookURL() == "" {
		log.Warn("APP_PUBLIC_URL not set; VAPI call events will not reach this service")
	}

	pool := workpool.New(cfg.Pipeline.Workers, cfg.Pipeline.VendorRatePerSec, cfg.Pipeline.Workers)

	var publisher notify.Publisher = notify.NopPublisher{}
	if cfg.AMQP.URL != "" {
		conn, err := notify.Dial(cfg.AMQP.URL)
		if err != nil {
			log.Error("rabbitmq init failed", "err", err)
			os.Exit(1)
		}
		defer conn.Close()
		publisher = notify.NewAMQPPublisher(conn)
		startNotifyConsumer(rootCtx, log, cfg, conn)
	}

	pipe := pipeline.New(pipeline.Deps{
		Store:     st,
		Billing:   bill,
		Audit:     aud,
		Scraper:   maps,
		AdHoc:     maps,
		Validator: validator.New(gem, cfg.Gemini.ValidationModel, pool),
		Contacts:  people,
		Dialer:    voice,
		RunLock:   pipeline.NewRedisRunLock(rdb),
		Pool:      pool,
		LockTTL:   cfg.Pipeline.StuckAfter,
	})

	kb := knowledgebase.New(knowledgebase.Deps{
		Store:  st,
		Drafts: knowledgebase.NewRedisDraftStore(rdb),
		Gemini: gem,
		Model:  cfg.Gemini.GenerationModel,
		Audit:  aud,
	})

	processor := webhook.NewProcessor(st, bill, publisher, webhook.NewRedisDeduper(rdb), cfg.Pipeline.WebhookDedupTTL)

	go pipeline.NewRecoveryWorker(pipe, cfg.Pipeline.RecoveryInterval, cfg.Pipeline.StuckAfter).Start(rootCtx)

	h := httpapi.Handlers{
		Auth:          authManager,
		Store:         st,
		Billing:       bill,
		Pipeline:      pipe,
		Knowledge:     kb,
		Reporting:     reporting.NewService(st),
		Audit:         aud,
		Webhook:       processor,
		WebhookSecret: cfg.VAPI.WebhookSecret,
		Ready: map[string]func(context.Context) error{
			"postgres": st.Ping,
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		},
		IssueTokens: cfg.IsDevelopment(),
		OpenTopUp:   !cfg.IsProduction(),
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           newRouter(cfg, log, h),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Scrape runs inline and polls the actor until it finishes.
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}

// startNotifyConsumer sends appointment confirmations when SMTP is configured.
func startNotifyConsumer(ctx context.Context, log *slog.Logger, cfg config.Config, conn *notify.Conn) {
	if cfg.SMTP.Host == "" {
		log.Info("SMTP not configured; appointment confirmations are queued but not sent")
		return
	}
	ch, err := conn.Channel()
	if err != nil {
		log.Error("open consumer channel failed", "err", err)
		return
	}
	consumer := notify.NewConsumer(ch, notify.NewMailSender(cfg.SMTP))
	go func() {
		if err := consumer.Start(ctx); err != nil {
			log.Error("notify consumer stopped", "err", err)
		}
	}()
}
