// pipeline-worker runs campaign workflows durably and exposes the
// submission API.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/adcraft/ad-pipeline/internal/app"
	"github.com/adcraft/ad-pipeline/internal/brief"
	"github.com/adcraft/ad-pipeline/internal/config"
	"github.com/adcraft/ad-pipeline/internal/dbosruntime"
	"github.com/adcraft/ad-pipeline/internal/handlers"
	"github.com/adcraft/ad-pipeline/internal/ledger"
	"github.com/adcraft/ad-pipeline/internal/logging"
	"github.com/adcraft/ad-pipeline/internal/metrics"
	"github.com/adcraft/ad-pipeline/internal/orchestrator"
	"github.com/adcraft/ad-pipeline/internal/workflows"
	"github.com/adcraft/ad-pipeline/pkg/pipeline"
)

func main() {
	settings, err := config.Load()
	if err != nil {
		fallback := logging.New("production", false)
		fallback.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := logging.New(settings.Env, false)

	stack, err := app.Build(settings, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build processing stack")
	}

	runtime, err := dbosruntime.NewRuntime(context.Background(), dbosruntime.Config{
		DatabaseURL: settings.DatabaseURL,
		AppName:     "pipeline-worker",
		QueueName:   settings.QueueName,
		Concurrency: settings.Concurrency,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize DBOS")
	}

	runLedger, err := ledger.New(runtime.DB(), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize run ledger")
	}

	workflowRunner := workflows.NewWorkflowRunner(runtime)

	campaign := workflows.NewCampaignWorkflow(
		instrumented{stack.Orchestrator},
		nil,
		logger,
	)
	workflowRunner.Register(pipeline.JobCampaign, campaign)
	logger.Info().Str("workflow", campaign.Name()).Str("job", pipeline.JobCampaign).Msg("registered workflow")

	// Launch must come after workflow registration.
	if err := runtime.Launch(); err != nil {
		logger.Fatal().Err(err).Msg("failed to launch DBOS")
	}
	defer runtime.Shutdown(10 * time.Second)

	logger.Info().
		Str("queue", runtime.QueueName()).
		Int("concurrency", runtime.Concurrency()).
		Msg("DBOS runtime initialized")

	asyncHandler := handlers.NewAsyncHandler(workflowRunner, runtime, runLedger, logger)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))
	r.Get("/health", handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	asyncHandler.Routes(r)

	server := &http.Server{
		Addr:    settings.HTTPAddr,
		Handler: r,
	}

	go func() {
		logger.Info().Str("addr", settings.HTTPAddr).Msg("pipeline worker starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}

// instrumented records metrics for every processed campaign.
type instrumented struct {
	inner workflows.Processor
}

func (p instrumented) ProcessCampaign(ctx context.Context, b *brief.Brief) (*orchestrator.CampaignSummary, error) {
	summary, err := p.inner.ProcessCampaign(ctx, b)
	metrics.RecordSummary(summary)
	return summary, err
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	})
}

// requestLogger logs one line per request.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}
