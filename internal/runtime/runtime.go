package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/loqalabs/loqa-txbridge/internal/bridge"
	"github.com/loqalabs/loqa-txbridge/internal/bus"
	"github.com/loqalabs/loqa-txbridge/internal/capability"
	"github.com/loqalabs/loqa-txbridge/internal/config"
	"github.com/loqalabs/loqa-txbridge/internal/eventstore"
	"github.com/loqalabs/loqa-txbridge/internal/natsserver"
	"github.com/loqalabs/loqa-txbridge/internal/protocol"
	"github.com/loqalabs/loqa-txbridge/internal/stt"
)

const pruneInterval = time.Hour

type Runtime struct {
	cfg         config.Config
	version     string
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	bus         *bus.Client
	service     *bridge.Service
	ready       atomic.Bool
	checks      []func() bool
	wg          sync.WaitGroup
}

func New(cfg config.Config, version string, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:     cfg,
		version: version,
		logger:  logger,
	}
}

// Start wires the bridge and blocks until ctx is cancelled.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.version, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		r.shutdownTelemetry()
		return fmt.Errorf("open event store: %w", err)
	}
	defer r.shutdownTelemetry()
	defer store.Close()
	if err := store.Ensure(); err != nil {
		return fmt.Errorf("event store: %w", err)
	}

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return err
	}
	defer embedded.Shutdown()

	busCfg := r.cfg.Bus
	if embedded != nil {
		busCfg.Servers = []string{embedded.ClientURL()}
	}
	r.bus, err = bus.Connect(ctx, busCfg, r.cfg.RuntimeName, r.logger)
	if err != nil {
		return err
	}
	defer r.bus.Close()

	engine, err := stt.NewEngine(r.cfg.STT, r.logger)
	if err != nil {
		return fmt.Errorf("create stt engine: %w", err)
	}
	if err := engine.Available(); err != nil {
		r.logger.Warn("stt engine unavailable; requests will fail until it is",
			slog.String("engine", engine.Name()), slog.String("error", err.Error()))
	}

	capabilities, err := capability.NewRegistry(ctx, r.cfg.Node, r.bus, capability.BridgeCapabilities(engine.Name(), ""), r.logger)
	if err != nil {
		return fmt.Errorf("start capability registry: %w", err)
	}
	defer capabilities.Close()

	dispatcher := bridge.NewDispatcher(engine, bridge.NewRegistry(), store, bridge.Options{
		SampleRate: r.cfg.STT.SampleRate,
		ChunkBytes: r.cfg.STT.ChunkBytes,
		OnModelLoaded: func(h *bridge.Handle) {
			capabilities.UpdateLocal(capability.BridgeCapabilities(h.Engine, h.Path()))
		},
	}, r.logger)

	if path := r.cfg.STT.ModelPath; path != "" {
		resp := dispatcher.Handle(ctx, protocol.Request{
			Method:    protocol.MethodInitModel,
			Arguments: map[string]any{protocol.ArgPath: path},
		})
		if resp.Status != protocol.StatusOK {
			return fmt.Errorf("preload model %s: %s", path, resp.Error.Message)
		}
	}

	r.service = bridge.NewService(ctx, r.cfg.Bridge, r.bus, dispatcher)
	if err := r.service.Start(); err != nil {
		return err
	}
	defer r.service.Close()

	r.checks = []func() bool{r.bus.Healthy, r.service.Healthy, capabilities.Healthy}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.pruneLoop(ctx, store)
	}()

	router := chi.NewRouter()
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Get("/healthz", r.handleHealth)
	router.Get("/readyz", r.handleReady)
	if metricsHandler != nil {
		router.Handle("/metrics", metricsHandler)
	}
	bridge.HistoryRoutes(router, store)
	capability.Routes(router, capabilities)
	if r.cfg.HTTP.Channel {
		bridge.Routes(router, dispatcher, time.Duration(r.cfg.Bridge.RequestTimeoutMS)*time.Millisecond)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
			cancel()
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("channel", r.cfg.Bridge.Channel),
		slog.String("engine", engine.Name()))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()
	return nil
}

func (r *Runtime) shutdownTelemetry() {
	if r.tracerClose == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.tracerClose(ctx); err != nil {
		r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
	}
	r.tracerClose = nil
}

func (r *Runtime) pruneLoop(ctx context.Context, store *eventstore.Store) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.Prune(ctx); err != nil {
				r.logger.Warn("event store prune failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// isReady reports whether startup finished and every dependency check passes.
func (r *Runtime) isReady() bool {
	if !r.ready.Load() {
		return false
	}
	for _, check := range r.checks {
		if !check() {
			return false
		}
	}
	return true
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.isReady() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
