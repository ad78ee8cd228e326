package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"RatePulse/internal/domain/repository"
	"RatePulse/internal/engine"
	"RatePulse/internal/handler/api"
	"RatePulse/internal/hub"
	pkgch "RatePulse/pkg/clickhouse"
	"RatePulse/pkg/config"
	xhttp "RatePulse/pkg/http"
	pkgkafka "RatePulse/pkg/kafka"
	applogger "RatePulse/pkg/logger"
)

// App owns the process lifecycle: it starts the engine and the broadcast
// hub, serves HTTP, and tears everything down in reverse order on signal.
type App struct {
	cfg *config.Config
	log *applogger.Logger

	eng      *engine.Engine
	hub      *hub.Hub
	cfgStore repository.ConfigStore
	chClient *pkgch.Client
	producer *pkgkafka.Producer
	logBuf   *api.LogBuffer

	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	eng *engine.Engine,
	h *hub.Hub,
	cfgStore repository.ConfigStore,
	chClient *pkgch.Client,
	producer *pkgkafka.Producer,
) *App {
	return &App{
		cfg:      cfg,
		log:      log,
		eng:      eng,
		hub:      h,
		cfgStore: cfgStore,
		chClient: chClient,
		producer: producer,
	}
}

// SetLogBuffer enables the in-memory debug log endpoint.
func (a *App) SetLogBuffer(buf *api.LogBuffer) { a.logBuf = buf }

// handlerGroup fans route registration out to every handler.
type handlerGroup []xhttp.Handler

func (g handlerGroup) RegisterRoutes(e *echo.Echo) {
	for _, h := range g {
		h.RegisterRoutes(e)
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.eng.Start(ctx); err != nil {
		return err
	}
	a.log.Info("engine started",
		applogger.Int("pairs", len(a.cfg.Engine.Pairs)),
		applogger.Duration("refresh_interval", a.cfg.Engine.RefreshInterval),
	)

	a.hub.Start(ctx)

	handlers := handlerGroup{
		api.NewRatesHandler(a.log, a.eng),
		api.NewWSHandler(a.log, a.hub),
		api.NewDebugHandler(a.logBuf),
	}

	opts := []xhttp.ServerOption{
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(a.cfg.Server.CORS),
	}
	if a.cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(a.log))
	}
	a.httpServer = xhttp.NewServer(handlers, opts...)
	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}
	a.log.Info("http server started", applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown stops producers first: no new events once the hub and engine
// stop, then the HTTP server drains, then infrastructure clients close.
func (a *App) shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	a.hub.Shutdown(shutdownCtx)

	if err := a.eng.Stop(shutdownCtx); err != nil {
		a.log.Warn("engine stop error", applogger.Error(err))
	}

	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.cfgStore != nil {
		if err := a.cfgStore.Close(); err != nil {
			a.log.Warn("config store close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.log.Warn("kafka producer close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	// give the async log collector a moment to flush
	time.Sleep(100 * time.Millisecond)
	return nil
}
