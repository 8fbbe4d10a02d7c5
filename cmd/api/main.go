package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"absensi/internal/auth"
	"absensi/internal/config"
	"absensi/internal/handler"
	"absensi/internal/httpmiddleware"
	"absensi/internal/logging"
	"absensi/internal/outbox"
	"absensi/internal/session"
	"absensi/internal/sheetclient"
	"absensi/internal/shell"
	"absensi/internal/store"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg)
	defer func() { _ = log.Sync() }()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, log); err != nil {
		log.Fatal("api server failed", zap.Error(err))
	}
}

func run(cfg config.App, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.SheetURL == "" {
		return errors.New("SHEET_URL is required")
	}
	gw := sheetclient.New(cfg.SheetURL, cfg.SheetTimeout, log.Named("sheet"))

	var rdb *store.Redis
	if cfg.SessionBackend == "redis" || cfg.QueueBackend == "redis" {
		var err error
		if rdb, err = store.NewRedis(ctx, cfg.RedisAddr, log); err != nil {
			return err
		}
		defer rdb.Close()
	}

	var (
		db       *store.DB
		sessions session.Store
	)
	switch cfg.SessionBackend {
	case "memory":
		sessions = session.NewMemory()
	case "redis":
		sessions = session.NewRedis(rdb.Client, cfg.SessionTTL)
	case "postgres":
		var err error
		if db, err = store.NewDB(ctx, cfg.DatabaseURL, log); err != nil {
			return err
		}
		defer db.Close()
		if sessions, err = session.NewPostgres(ctx, db.Client, cfg.SessionTTL); err != nil {
			return fmt.Errorf("session table: %w", err)
		}
	default:
		return fmt.Errorf("unknown SESSION_BACKEND %q", cfg.SessionBackend)
	}

	var q outbox.Queue
	switch cfg.QueueBackend {
	case "memory":
		q = outbox.NewInMemory(256)
		replayer := &outbox.Replayer{
			Queue:       q,
			Writer:      gw,
			MaxAttempts: cfg.OutboxMaxAttempts,
			Backoff:     cfg.OutboxBackoff,
			Log:         log.Named("outbox"),
		}
		go func() { _ = replayer.Run(ctx) }()
	case "redis":
		q = outbox.NewRedisQueue(rdb.Client, cfg.OutboxKey)
		log.Info("outbox replayed by worker", zap.String("key", cfg.OutboxKey))
	default:
		return fmt.Errorf("unknown QUEUE_BACKEND %q", cfg.QueueBackend)
	}

	sh := shell.New(gw, shell.Options{
		Window:      cfg.ReconcileWindow,
		SyncTimeout: cfg.SyncTimeout,
		Outbox:      q,
		Log:         log.Named("shell"),
	})
	sh.SyncInBackground(shell.Silent)
	if cfg.AutosyncSchedule != "" {
		stopAutosync, err := sh.StartAutosync(cfg.AutosyncSchedule)
		if err != nil {
			return err
		}
		defer stopAutosync()
	}

	h := handler.New(sh, session.NewManager(sessions, log.Named("session")),
		auth.Admin{Username: cfg.AdminUsername, PasswordHash: cfg.AdminPasswordHash},
		handler.Tokens{
			SigningKey: cfg.JWTSigningKey,
			Issuer:     cfg.JWTIssuer,
			TTL:        cfg.SessionTTL,
			Secure:     cfg.CookieSecure,
		}, log.Named("http"))
	if rdb != nil {
		h.AddCheck("redis", rdb.Healthy)
	}
	if db != nil {
		h.AddCheck("db", db.Healthy)
	}
	if cfg.AdminPasswordHash == "" {
		log.Warn("ADMIN_PASSWORD_HASH not set, administrator login disabled")
	}

	limiter := httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin, nil)
	go sweep(ctx, limiter)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(log.Named("http"), "/healthz", "/metrics"))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(limiter.GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	h.Routes(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.SheetTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server forced shutdown", zap.Error(err))
	}
	sh.Wait()
	log.Info("server exited")
	return nil
}

func sweep(ctx context.Context, l *httpmiddleware.TokenBucket) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.Sweep(10 * time.Minute)
		case <-ctx.Done():
			return
		}
	}
}
