package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/Swind/go-idle-tasks/core"
	"github.com/Swind/go-idle-tasks/idle"
	promexp "github.com/Swind/go-idle-tasks/observability/prometheus"
	"github.com/Swind/go-idle-tasks/runner"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run a periodic load and expose its metrics over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "Listen address (default from config)"},
			&cli.DurationFlag{Name: "interval", Value: 2 * time.Second, Usage: "Pause between two load rounds"},
			&cli.IntFlag{Name: "tasks", Value: 200, Usage: "Tasks per batch"},
		},
		Action: serveAction,
	}
}

// loadServer runs demo batches on one event loop and serves their metrics.
type loadServer struct {
	env      *appEnv
	loop     *core.EventLoop
	registry *prom.Registry
	metrics  *promexp.MetricsExporter
	poller   *promexp.SnapshotPoller
	router   *chi.Mux
	tasks    int
}

func newLoadServer(env *appEnv, tasks int) (*loadServer, error) {
	registry := prom.NewRegistry()
	metrics, err := promexp.NewMetricsExporter("idletasks", registry, promexp.ExporterOptions{})
	if err != nil {
		return nil, fmt.Errorf("metrics exporter: %w", err)
	}
	poller, err := promexp.NewSnapshotPoller(registry, time.Second)
	if err != nil {
		return nil, fmt.Errorf("snapshot poller: %w", err)
	}

	loop := core.NewEventLoop(&core.EventLoopConfig{
		Name:       "serve",
		IdlePeriod: env.cfg.Idle.IdlePeriod,
		Logger:     env.coreLogger("serve"),
	})
	poller.AddLoop(loop.Name(), loop)

	s := &loadServer{
		env:      env,
		loop:     loop,
		registry: registry,
		metrics:  metrics,
		poller:   poller,
		router:   chi.NewRouter(),
		tasks:    tasks,
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.loggingMiddleware)
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/stats", s.handleStats)
	s.router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	return s, nil
}

func (s *loadServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.loop.IsClosed() {
		http.Error(w, "event loop closed", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (s *loadServer) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.loop.Stats()); err != nil {
		s.env.logger.WithError(err).Warn("encode stats")
	}
}

func (s *loadServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.env.logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("request")
	})
}

// runLoad alternates sync and async batches until ctx is done.
func (s *loadServer) runLoad(ctx context.Context, interval time.Duration) {
	logger := s.env.coreLogger("serve")
	provider := idle.NewLoopProvider(s.loop)

	for {
		syncResults, err := runner.RunTasks(provider, fibTasks(s.tasks, 20), runner.SyncOptions[int]{
			Logger:  logger,
			Metrics: s.metrics,
			Name:    "serve-sync",
		}).Wait(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("sync batch failed", core.F("error", err))
		} else {
			logger.Info("sync batch done", core.F("rounds", summarizeSync(syncResults).Rounds))
		}

		asyncResults, err := runner.RunAsyncTasks(ctx, latencyTasks(s.tasks, 50*time.Millisecond, 0.1), runner.AsyncOptions[int]{
			Max:       s.env.cfg.Async.Max,
			RetryTime: s.env.cfg.Async.RetryTime,
			Timeout:   s.env.cfg.Async.Timeout,
			Timers:    s.loop,
			Logger:    logger,
			Metrics:   s.metrics,
			Name:      "serve-async",
		}).Wait(ctx)
		if err != nil {
			return
		}
		summary := summarizeAsync(asyncResults)
		logger.Info("async batch done", core.F("succeeded", summary.Succeeded), core.F("failed", summary.Failed))

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

func serveAction(c *cli.Context) error {
	env := envFrom(c)
	addr := env.cfg.MetricsAddr
	if c.IsSet("addr") {
		addr = c.String("addr")
	}

	s, err := newLoadServer(env, c.Int("tasks"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	defer s.loop.Stop()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s.poller.Start(ctx)
	defer s.poller.Stop()
	go s.runLoad(ctx, c.Duration("interval"))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		env.logger.WithField("addr", addr).Info("server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		env.logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return cli.Exit(fmt.Sprintf("server error: %v", err), 1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return cli.Exit(fmt.Sprintf("shutdown: %v", err), 1)
	}
	env.logger.Info("server stopped")
	return nil
}
