package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-interview/internal/bus"
	"github.com/loqalabs/loqa-interview/internal/capability"
	"github.com/loqalabs/loqa-interview/internal/config"
	"github.com/loqalabs/loqa-interview/internal/natsserver"
	"github.com/loqalabs/loqa-interview/internal/stt"
	"github.com/loqalabs/loqa-interview/internal/telemetry"
)

// Runtime is the local speech backend: an optional embedded NATS server, the
// transcription service, and an HTTP server for health and metrics.
type Runtime struct {
	cfg        config.Config
	logger     *slog.Logger
	engine     stt.Engine
	httpServer *http.Server
	nats       *natsserver.EmbeddedServer
	bus        *bus.Client
	stt        *stt.Service
	registry   *capability.Registry
	addr       atomic.Value
	ready      atomic.Bool
	wg         sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger, engine stt.Engine) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
		engine: engine,
	}
}

// Addr is the HTTP listen address once the runtime is serving.
func (r *Runtime) Addr() string {
	if v, ok := r.addr.Load().(string); ok {
		return v
	}
	return ""
}

// Start runs until ctx is cancelled.
func (r *Runtime) Start(ctx context.Context) error {
	shutdownTelemetry, metricsHandler, err := telemetry.Setup(ctx, r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}

	busCfg := r.cfg.Bus
	r.nats, err = natsserver.Start(busCfg, r.logger.With(slog.String("component", "nats")))
	if err != nil {
		_ = shutdownTelemetry(context.Background())
		return err
	}
	if r.nats != nil {
		busCfg.Servers = []string{r.nats.ClientURL()}
	}

	r.bus, err = bus.Connect(ctx, r.cfg.RuntimeName, busCfg, r.logger)
	if err != nil {
		r.nats.Shutdown()
		_ = shutdownTelemetry(context.Background())
		return err
	}

	sttCfg := r.cfg.STT
	sttCfg.Enabled = true
	r.stt = stt.NewService(ctx, sttCfg, r.bus, r.engine)
	if err := r.stt.Start(); err != nil {
		r.bus.Close()
		r.nats.Shutdown()
		_ = shutdownTelemetry(context.Background())
		return err
	}

	r.registry, err = capability.NewRegistry(ctx, capability.Options{
		Role: "speech-backend",
		Capabilities: []capability.Capability{{
			Name: capability.Transcription,
			Attributes: map[string]string{
				"engine":   r.cfg.STT.Mode,
				"language": r.cfg.STT.Language,
			},
		}},
	}, r.cfg.Bus, r.bus, r.logger)
	if err != nil {
		r.stt.Close()
		r.bus.Close()
		r.nats.Shutdown()
		_ = shutdownTelemetry(context.Background())
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	mux.Handle("/metrics", metricsHandler)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		r.registry.Close()
		r.stt.Close()
		r.bus.Close()
		r.nats.Shutdown()
		_ = shutdownTelemetry(context.Background())
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	r.addr.Store(listener.Addr().String())
	r.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", listener.Addr().String()), slog.String("stt_mode", r.cfg.STT.Mode))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	var errs []error
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	r.wg.Wait()
	r.registry.Close()
	r.stt.Close()
	r.bus.Close()
	r.nats.Shutdown()
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		r.logger.Error("shutdown errors", slog.String("error", err.Error()))
	}
	return nil
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.bus.Healthy() && r.stt.Healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
