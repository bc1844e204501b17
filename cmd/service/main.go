package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/climate-api/internal/config"
	"github.com/kjstillabower/climate-api/internal/dataset"
	httphandler "github.com/kjstillabower/climate-api/internal/http"
	"github.com/kjstillabower/climate-api/internal/lifecycle"
	"github.com/kjstillabower/climate-api/internal/models"
	"github.com/kjstillabower/climate-api/internal/observability"
	"github.com/kjstillabower/climate-api/internal/query"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	openCtx, openCancel := context.WithTimeout(context.Background(), 10*time.Second)
	data, err := dataset.Open(openCtx, dataset.Options{
		Path:            cfg.DatasetPath,
		MaxOpenConns:    cfg.DatasetMaxOpenConns,
		MaxIdleConns:    cfg.DatasetMaxIdleConns,
		ConnMaxLifetime: cfg.DatasetConnMaxLifetime,
		LogQueries:      cfg.DatasetLogQueries,
		Logger:          logger.Named("dataset"),
	})
	if err != nil {
		openCancel()
		logger.Fatal("dataset", zap.String("path", cfg.DatasetPath), zap.Error(err))
	}
	stats, err := data.Stats(openCtx)
	openCancel()
	if err != nil {
		logger.Fatal("dataset stats", zap.Error(err))
	}
	fields := []zap.Field{
		zap.String("path", cfg.DatasetPath),
		zap.Int("measurements", stats.Measurements),
		zap.Int("stations", stats.Stations),
		zap.Int("measured_stations", stats.MeasuredStations),
		zap.Bool("log_queries", cfg.DatasetLogQueries),
	}
	if stats.Measurements > 0 {
		fields = append(fields,
			zap.String("first_date", stats.FirstDate.Format(models.DateLayout)),
			zap.String("last_date", stats.LastDate.Format(models.DateLayout)))
	} else {
		logger.Warn("dataset has no measurements; /api/v1.0/tobs will return 404")
	}
	logger.Info("dataset opened", fields...)

	engine := query.NewEngine(data)

	healthConfig := &httphandler.HealthConfig{
		OverloadWindow:       cfg.OverloadWindow,
		OverloadThresholdPct: cfg.OverloadThresholdPct,
		RateLimitRPS:         cfg.RateLimitRPS,
		DegradedWindow:       cfg.DegradedWindow,
		DegradedErrorPct:     cfg.DegradedErrorPct,
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(engine, data, healthConfig, logger)
	router := httphandler.NewRouter(handler, httphandler.RouterOptions{
		Limiter:        limiter,
		RequestTimeout: cfg.RequestTimeout,
	})

	observability.RegisterRateLimitGauges(cfg.OverloadWindow)

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.InFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.InFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	// Scans still running after the wait fail on a closed pool; their handlers report 503.
	if err := data.Close(); err != nil {
		logger.Error("dataset close", zap.Error(err))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
