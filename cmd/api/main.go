package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/bryanwahyu/mushroom-id/internal/application"
	"github.com/bryanwahyu/mushroom-id/internal/application/analysis"
	"github.com/bryanwahyu/mushroom-id/internal/config"
	"github.com/bryanwahyu/mushroom-id/internal/infra/ai/openai"
	"github.com/bryanwahyu/mushroom-id/internal/infra/httpserver"
	"github.com/bryanwahyu/mushroom-id/internal/infra/imageenc"
	"github.com/bryanwahyu/mushroom-id/internal/logger"
	"github.com/bryanwahyu/mushroom-id/internal/middleware"
)

const (
	limiterSweepEvery = 5 * time.Minute
	limiterMaxIdle    = 10 * time.Minute
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	cfg, err := config.Load(path)
	if err != nil {
		logger.WithError(err).Fatal("config load error")
	}
	logger.Configure(cfg.Log.Level, cfg.Log.Format)

	// model client
	client, err := openai.NewClient(openai.Options{
		APIKey:      cfg.AI.APIKey,
		BaseURL:     cfg.AI.BaseURL,
		Model:       cfg.AI.Model,
		MaxTokens:   cfg.AI.MaxTokens,
		ImageDetail: cfg.AI.ImageDetail,
	})
	if err != nil {
		logger.WithError(err).Fatal("model client init error")
	}

	svc := analysis.NewService(imageenc.New(), client, application.SystemClock{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	limiter := middleware.NewRateLimiter(cfg.RateLimit.Capacity, cfg.RateLimit.RefillRate)
	go sweepLimiter(ctx, limiter)

	mux := chi.NewRouter()
	mux.Mount("/", httpserver.NewRouter(svc, httpserver.Options{
		MaxUploadBytes: cfg.Upload.MaxBytes,
		AllowedTypes:   cfg.Upload.AllowedTypes,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		APIKeys:        cfg.Auth.APIKeys,
		RateLimiter:    limiter,
		HealthCheckers: map[string]middleware.HealthChecker{
			"model": middleware.NewModelHealthChecker(client, middleware.DefaultPingTTL),
		},
	}))

	addr := cfg.Addr()
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// run server
	go func() {
		logger.WithFields(logrus.Fields{
			"addr":  addr,
			"model": client.Model(),
		}).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server error")
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down server...")
	cancel()

	ctx2, cancel2 := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel2()
	if err := srv.Shutdown(ctx2); err != nil {
		logger.WithError(err).Error("shutdown error")
	}
}

func sweepLimiter(ctx context.Context, limiter *middleware.RateLimiter) {
	ticker := time.NewTicker(limiterSweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Sweep(limiterMaxIdle)
		}
	}
}
