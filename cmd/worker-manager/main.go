// cmd/worker-manager/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"go.uber.org/zap"

	"medkit-workers/internal/common/camunda"
	"medkit-workers/internal/common/config"
	"medkit-workers/internal/common/database"
	httpx "medkit-workers/internal/common/http"
	"medkit-workers/internal/common/llm"
	"medkit-workers/internal/common/logger"
	"medkit-workers/internal/common/observability"
	"medkit-workers/internal/knowledge"
	"medkit-workers/pkg/registry"

	ahi "medkit-workers/internal/workers/ai-conversation/analyze-health-image"
	ha "medkit-workers/internal/workers/ai-conversation/health-advice"
	ip "medkit-workers/internal/workers/ai-conversation/interpret-prescription"
	pui "medkit-workers/internal/workers/ai-conversation/parse-user-intent"
	sa "medkit-workers/internal/workers/ai-conversation/suggest-ayurvedic"
	dm "medkit-workers/internal/workers/medicine/describe-medicine"
	sm "medkit-workers/internal/workers/medicine/search-medicines"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.NewWithOutput(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...",
		zap.String("environment", cfg.App.Environment),
		zap.String("version", cfg.App.Version),
	)

	obs := observability.New(cfg.Observability.ServiceName, cfg.Observability.JaegerEndpoint)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init Zeebe Client with retry ---
	var zeebe *camunda.Client
	err = retryWithBackoff(func() error {
		var err error
		zeebe, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
			ConnectionTimeout:      config.GetDuration(cfg.Camunda.RequestTimeout),
		})
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Process-wide singletons ---
	transport := httpx.NewTransportFromConfig(cfg.Transport, httpx.WithLogger(log))
	genai := llm.NewClientFromConfig(cfg, transport, log)
	cache := knowledge.NewRedisIdentifierCache(redis, config.GetDuration(cfg.Aggregation.CacheTTL), log)
	describer := knowledge.NewPipeline(cfg, transport, genai, cache, obs, log)

	zapLog.Info("Knowledge pipeline initialized",
		zap.String("drugsCom", cfg.APIs.DrugsCom.BaseURL),
		zap.String("rxnav", cfg.APIs.RxNav.BaseURL),
		zap.String("model", cfg.APIs.GenAI.Model),
	)

	// --- Register workers ---
	catalog, err := registry.Default()
	if err != nil {
		zapLog.Fatal("activity registry unreadable", zap.Error(err))
	}

	client := zeebe.GetClient()
	var workers []*camunda.Worker
	register := func(taskType string, handler worker.JobHandler) {
		if !config.IsWorkerEnabled(cfg, taskType) {
			zapLog.Info("Worker disabled by config", zap.String("taskType", taskType))
			return
		}
		if _, ok := catalog.Find(taskType); !ok {
			zapLog.Warn("Task type missing from activity registry", zap.String("taskType", taskType))
		}
		workers = append(workers, camunda.StartWorker(client, taskType, config.GetWorkerConfig(cfg, taskType), instrument(obs, taskType, handler), log))
	}

	register(dm.TaskType, dm.NewHandler(dm.NewConfig(cfg), describer, &describeMedicineLoggerAdapter{log}).Handle)
	register(sm.TaskType, sm.NewHandler(sm.NewConfig(cfg), pg, genai, &searchMedicinesLoggerAdapter{log}).Handle)
	register(pui.TaskType, pui.NewHandler(pui.NewConfig(cfg), genai, &parseUserIntentLoggerAdapter{log}).Handle)
	register(ha.TaskType, ha.NewHandler(ha.NewConfig(cfg), genai, &healthAdviceLoggerAdapter{log}).Handle)
	register(ahi.TaskType, ahi.NewHandler(ahi.NewConfig(cfg), genai, &analyzeHealthImageLoggerAdapter{log}).Handle)
	register(ip.TaskType, ip.NewHandler(ip.NewConfig(cfg), pg, genai, &interpretPrescriptionLoggerAdapter{log}).Handle)
	register(sa.TaskType, sa.NewHandler(sa.NewConfig(cfg), genai, &suggestAyurvedicLoggerAdapter{log}).Handle)

	zapLog.Info("All workers registered", zap.Int("count", len(workers)))

	// --- Health & Metrics Server ---
	server := &http.Server{
		Addr: cfg.App.HealthAddr,
		Handler: newHealthMux(map[string]Check{
			"zeebe":    zeebe.HealthCheck,
			"postgres": pg.Ping,
			"redis":    redis.Ping,
		}, 5*time.Second),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, w := range workers {
		w.Stop()
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping health server", zap.Error(err))
	}

	if err := zeebe.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

// Logger adapters for workers that declare their own Logger interfaces
type describeMedicineLoggerAdapter struct {
	logger.Logger
}

func (a *describeMedicineLoggerAdapter) With(fields map[string]interface{}) dm.Logger {
	return &describeMedicineLoggerAdapter{a.Logger.With(fields)}
}

type searchMedicinesLoggerAdapter struct {
	logger.Logger
}

func (a *searchMedicinesLoggerAdapter) With(fields map[string]interface{}) sm.Logger {
	return &searchMedicinesLoggerAdapter{a.Logger.With(fields)}
}

type parseUserIntentLoggerAdapter struct {
	logger.Logger
}

func (a *parseUserIntentLoggerAdapter) With(fields map[string]interface{}) pui.Logger {
	return &parseUserIntentLoggerAdapter{a.Logger.With(fields)}
}

type healthAdviceLoggerAdapter struct {
	logger.Logger
}

func (a *healthAdviceLoggerAdapter) With(fields map[string]interface{}) ha.Logger {
	return &healthAdviceLoggerAdapter{a.Logger.With(fields)}
}

type analyzeHealthImageLoggerAdapter struct {
	logger.Logger
}

func (a *analyzeHealthImageLoggerAdapter) With(fields map[string]interface{}) ahi.Logger {
	return &analyzeHealthImageLoggerAdapter{a.Logger.With(fields)}
}

type interpretPrescriptionLoggerAdapter struct {
	logger.Logger
}

func (a *interpretPrescriptionLoggerAdapter) With(fields map[string]interface{}) ip.Logger {
	return &interpretPrescriptionLoggerAdapter{a.Logger.With(fields)}
}

type suggestAyurvedicLoggerAdapter struct {
	logger.Logger
}

func (a *suggestAyurvedicLoggerAdapter) With(fields map[string]interface{}) sa.Logger {
	return &suggestAyurvedicLoggerAdapter{a.Logger.With(fields)}
}
