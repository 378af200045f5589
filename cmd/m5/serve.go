// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 M5 Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/fxg4n/m5/internal/auth"
	"github.com/fxg4n/m5/internal/auth/memory"
	"github.com/fxg4n/m5/internal/config"
	"github.com/fxg4n/m5/internal/httpapi"
	"github.com/fxg4n/m5/internal/logging"
	"github.com/fxg4n/m5/internal/observability"
	"github.com/fxg4n/m5/internal/ratelimit"
)

const limiterCleanupInterval = time.Minute

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values use their default implementations.
type ServeDeps struct {
	backendDeps

	// Listen binds the API listener.
	// Default: net.Listen
	Listen func(network, addr string) (net.Listener, error)

	// ObservabilityServerFactory creates the metrics and health server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, ready observability.ReadinessChecker) ObservabilityServer
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
	Registry() prometheus.Registerer
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the identity HTTP API together with the metrics and health
endpoints and the expired session pruner.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}
}

// runServeWithDeps runs the server until a signal arrives, ctx is cancelled
// or a listener fails. If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.Listen == nil {
		deps.Listen = net.Listen
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, ready)
		}
	}

	logger := logging.SetDefault(logging.Options{
		Service: "m5",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
	})
	logger.Info("starting server", "store", cfg.Store, "addr", cfg.HTTP.Addr)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	b, err := openBackend(ctx, cfg, &deps.backendDeps)
	if err != nil {
		return err
	}
	defer b.close()

	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	var registry prometheus.Registerer
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, b.ready)
		metrics = obsServer.Metrics()
		registry = obsServer.Registry()
	} else {
		reg := prometheus.NewRegistry()
		metrics = observability.NewMetrics(reg)
		registry = reg
	}

	th, err := newThrottles(ctx, cfg.RateLimit, registry)
	if err != nil {
		return err
	}
	defer th.close()

	opts := []auth.Option{auth.WithRecorder(metrics), auth.WithLogger(logger)}
	if cfg.Lockout.Threshold > 0 {
		opts = append(opts, auth.WithLockout(th.lockout, cfg.Lockout.Threshold, cfg.Lockout.Duration))
	}
	svc, err := newService(cfg, b, opts...)
	if err != nil {
		return err
	}

	listener, err := deps.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return oops.Code("LISTEN_FAILED").With("addr", cfg.HTTP.Addr).Wrap(err)
	}

	apiServer := &http.Server{
		Handler: httpapi.NewRouter(httpapi.Config{
			Service:    svc,
			Limiter:    th.limiter,
			Metrics:    metrics,
			Logger:     logger,
			TrustProxy: cfg.HTTP.TrustProxy,
		}),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}
	apiErrChan := make(chan error, 1)
	go func() {
		defer close(apiErrChan)
		if serveErr := apiServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			apiErrChan <- serveErr
		}
	}()
	go monitorServerErrors(ctx, cancel, apiErrChan, "api")

	if obsServer != nil {
		obsErrChan, startErr := obsServer.Start()
		if startErr != nil {
			shutdownAPI(apiServer, cfg.HTTP.ShutdownTimeout)
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(startErr)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	if cfg.Session.PruneInterval > 0 {
		go runPruner(ctx, svc, cfg.Session.PruneInterval)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Printf("Serving on %s\n", listener.Addr())
	logger.Info("server ready", "addr", listener.Addr().String())

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	shutdownAPI(apiServer, cfg.HTTP.ShutdownTimeout)

	if obsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer shutdownCancel()
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

func shutdownAPI(srv *http.Server, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Warn("error stopping api server", "error", err)
	}
}

// throttles pairs the request limiter with the login lockout store.
type throttles struct {
	limiter ratelimit.Limiter
	lockout auth.LockoutStore
	close   func()
}

// newThrottles shares both through Redis when a URL is configured and keeps
// them in process otherwise.
func newThrottles(ctx context.Context, cfg config.RateLimitConfig, reg prometheus.Registerer) (*throttles, error) {
	limits := ratelimit.Config{Limit: cfg.Limit, Window: cfg.Window}

	if cfg.RedisURL != "" {
		client, err := ratelimit.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		slog.Info("using redis rate limiter")
		return &throttles{
			limiter: ratelimit.NewRedisWindow(client, "", limits),
			lockout: ratelimit.NewRedisLockout(client, ""),
			close: func() {
				if err := client.Close(); err != nil {
					slog.Warn("failed to close redis client", "error", err)
				}
			},
		}, nil
	}

	tb := ratelimit.NewTokenBucket(limits, limiterCleanupInterval, ratelimit.WithRegistry(reg))
	return &throttles{limiter: tb, lockout: memory.NewLockoutStore(), close: tb.Close}, nil
}

// runPruner deletes expired sessions every interval until ctx is done.
func runPruner(ctx context.Context, svc *auth.Service, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.PruneExpired(ctx)
			if err != nil {
				if ctx.Err() == nil {
					slog.Warn("session prune failed", "error", err)
				}
				continue
			}
			if n > 0 {
				slog.Info("pruned expired sessions", "count", n)
			}
		}
	}
}

// monitorServerErrors cancels ctx when a server reports an error. It exits
// when an error is received, the channel is closed, or ctx is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
