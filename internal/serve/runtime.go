// Package serve runs mimic as a long-lived speech service: an embedded
// or external NATS bus carries say requests in and audio chunks out,
// with health endpoints, Prometheus metrics and OTel traces.
package serve

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mimicvoice/mimic/internal/backend"
	"github.com/mimicvoice/mimic/internal/bus"
	"github.com/mimicvoice/mimic/internal/config"
	"github.com/mimicvoice/mimic/internal/eventlog"
	"github.com/mimicvoice/mimic/internal/natsserver"
	"github.com/mimicvoice/mimic/internal/registry"
)

// Runtime owns the service's moving parts and their shutdown order.
type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{cfg: cfg, logger: logger}
}

// Start brings the service up and blocks until ctx is cancelled.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricHandler, err := setupTelemetry(r.cfg.Serve.Telemetry, r.logger)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	embedded, err := natsserver.Start(r.cfg.Serve.Bus, r.logger)
	if err != nil {
		return err
	}
	defer embedded.Shutdown()

	busClient, err := bus.Connect(ctx, r.cfg.Serve.Bus, r.logger)
	if err != nil {
		return err
	}
	defer busClient.Close()

	store, err := registry.Open(r.cfg.DataDir)
	if err != nil {
		return err
	}

	events, err := eventlog.Open(ctx, r.cfg.EventLog, r.logger)
	if err != nil {
		return err
	}
	defer events.Close()

	b, err := backend.New(r.cfg.Backend, r.cfg.DefaultModel, r.logger)
	if err != nil {
		return err
	}
	defer b.Close()

	service := NewService(ctx, busClient, b, store, events, r.logger)
	if err := service.Start(); err != nil {
		return fmt.Errorf("start speech service: %w", err)
	}
	defer service.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricHandler != nil && r.cfg.Serve.Telemetry.PrometheusBind == "" {
		mux.Handle("/metrics", metricHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.Serve.Bind, r.cfg.Serve.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	var metricsServer *http.Server
	if metricHandler != nil && r.cfg.Serve.Telemetry.PrometheusBind != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metricHandler)
		metricsServer = &http.Server{
			Addr:              r.cfg.Serve.Telemetry.PrometheusBind,
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				r.logger.Error("metrics server failed", slog.String("error", err.Error()))
			}
		}()
	}

	r.ready.Store(true)
	r.logger.Info("serve mode started", slog.String("addr", addr))

	<-ctx.Done()
	r.logger.Info("serve mode stopping")
	r.ready.Store(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("metrics shutdown error", slog.String("error", err.Error()))
		}
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
