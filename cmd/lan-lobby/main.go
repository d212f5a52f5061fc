package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"

	"lan-lobby/internal/lobby"
)

func main() {
	envFile := os.Getenv("LAN_LOBBY_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	cfg, err := lobby.LoadConfig(envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	// flags override .env and environment
	flag.StringVar(&cfg.Name, "name", cfg.Name, "display name")
	flag.IntVar(&cfg.Port, "port", cfg.Port, "lobby UDP port (bind and broadcast)")
	flag.StringVar(&cfg.Encoding, "encoding", cfg.Encoding, "payload text encoding (utf-8, windows-1252, ...)")
	flag.BoolVar(&cfg.ReuseAddr, "reuse-addr", cfg.ReuseAddr, "share the port with other processes on this host")
	flag.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "directory for local state (default: next to the executable)")
	flag.BoolVar(&cfg.NoHistory, "no-history", cfg.NoHistory, "do not record seen players on disk")
	flag.DurationVar(&cfg.AnnounceInterval, "announce", cfg.AnnounceInterval, "interval between alive beacons")
	flag.DurationVar(&cfg.StaleAfter, "stale-after", cfg.StaleAfter, "drop players silent for longer than this")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve Prometheus metrics on this address (e.g. :9464)")
	flag.BoolVar(&cfg.Debug, "debug", cfg.Debug, "enable debug logging")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	app := fx.New(
		fx.Supply(cfg),
		fx.WithLogger(newFxLogger),
		fx.Provide(
			newLogger,
			newMetrics,
			newDedup,
			newBroadcast,
			newStore,
			newLobby,
		),
		fx.Invoke(
			registerMetricsServer,
			registerLobby,
		),
	)
	app.Run()

	if err := app.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "lan-lobby: %v\n", err)
		os.Exit(1)
	}
}
