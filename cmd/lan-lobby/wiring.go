package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"lan-lobby/internal/dedup"
	"lan-lobby/internal/discovery"
	"lan-lobby/internal/lobby"
	"lan-lobby/internal/metrics"
	"lan-lobby/internal/telemetry"
)

func newLogger(lc fx.Lifecycle, cfg lobby.Config) (*zap.SugaredLogger, error) {
	log, err := telemetry.New(cfg.Debug)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(func() {
		_ = log.Sync()
	}))
	return log, nil
}

func newFxLogger(cfg lobby.Config, log *zap.SugaredLogger) fxevent.Logger {
	if !cfg.Debug {
		return fxevent.NopLogger
	}
	return &fxevent.ZapLogger{Logger: log.Desugar().Named("fx")}
}

func newMetrics() (*metrics.Prometheus, metrics.Metrics) {
	p := metrics.NewPrometheus("")
	return p, p
}

func newDedup(cfg lobby.Config, log *zap.SugaredLogger, m metrics.Metrics) *dedup.Deduplicator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return dedup.New(dedup.Config{
		Seed:       seed,
		Expiration: cfg.DedupExpiry,
		Logger:     log.Named("dedup"),
		Metrics:    m,
	})
}

func newBroadcast(cfg lobby.Config, log *zap.SugaredLogger, m metrics.Metrics) (*discovery.BroadcastManager, error) {
	enc, err := lobby.ResolveEncoding(cfg.Encoding)
	if err != nil {
		return nil, err
	}
	return discovery.NewBroadcastManager(discovery.Config{
		Port:      cfg.Port,
		Encoding:  enc,
		ReuseAddr: cfg.ReuseAddr,
		Logger:    log,
		Metrics:   m,
	}), nil
}

func newStore(cfg lobby.Config, log *zap.SugaredLogger) (lobby.SightingStore, error) {
	return lobby.OpenHistory(cfg, log.Named("history"))
}

func newLobby(
	cfg lobby.Config,
	log *zap.SugaredLogger,
	m metrics.Metrics,
	bm *discovery.BroadcastManager,
	d *dedup.Deduplicator,
	st lobby.SightingStore,
) (*lobby.App, error) {
	return lobby.New(cfg, lobby.Deps{
		Transport: bm,
		Dedup:     d,
		Store:     st,
		Logger:    log.Named("lobby"),
		Metrics:   m,
	})
}

// registerLobby starts the lobby with the fx app and stops it on every exit
// path, including a failed start.
func registerLobby(lc fx.Lifecycle, sd fx.Shutdowner, app *lobby.App, log *zap.SugaredLogger) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			if err := app.Start(startCtx); err != nil {
				cancel()
				_ = app.Stop()
				return err
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := app.Run(ctx); err != nil {
					log.Errorw("lobby stopped", "err", err)
					_ = sd.Shutdown(fx.ExitCode(1))
				}
			}()

			// Not joined on stop: a blocked stdin read cannot be interrupted.
			go func() {
				err := app.ReadCommands(ctx, os.Stdin)
				if errors.Is(err, lobby.ErrQuit) {
					_ = sd.Shutdown()
					return
				}
				if err != nil {
					log.Warnw("stdin", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			wg.Wait()
			return app.Stop()
		},
	})
}

func registerMetricsServer(lc fx.Lifecycle, cfg lobby.Config, prom *metrics.Prometheus, log *zap.SugaredLogger) {
	if cfg.MetricsAddr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", prom.Handler())
	srv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Infow("metrics listening", "addr", ln.Addr().String())
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Errorw("metrics server", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
