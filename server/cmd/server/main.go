package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/profile"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/automoto/rewind/assets"
	"github.com/automoto/rewind/config"
	"github.com/automoto/rewind/logging/slogadapter"
	"github.com/automoto/rewind/metrics"
	"github.com/automoto/rewind/server/core"
	"github.com/automoto/rewind/shared/protocol"
	"github.com/automoto/rewind/transport/quicnet"
)

func main() {
	config.Bind(flag.CommandLine)
	port := flag.Uint("port", 7373, "Server port")
	maxPlayers := flag.Int("max-players", 8, "Maximum connected players, 0 for no limit")
	version := flag.String("version", protocol.Version, "Required client version (empty = accept any)")
	debug := flag.Bool("debug", false, "Log at debug level")
	profileMode := flag.String("profile", "", "Write a profile: cpu, mem or trace")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slogadapter.New(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	switch *profileMode {
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile, profile.ProfilePath(".")).Stop()
	case "trace":
		defer profile.Start(profile.TraceProfile, profile.ProfilePath(".")).Stop()
	}

	var levelFS fs.FS
	if config.Server.LevelDir != "" {
		levelFS = os.DirFS(config.Server.LevelDir)
	}
	lvl, err := assets.OpenLevel(levelFS, ".", config.Server.Level)
	if err != nil {
		log.Fatalf("Failed to load level: %v", err)
	}

	reg := prometheus.NewRegistry()
	collector := metrics.New(reg, "server")

	server, err := core.NewServer(core.Options{
		Name:           config.Server.Name,
		Version:        *version,
		Level:          lvl,
		Prediction:     config.Prediction,
		Physics:        config.Physics,
		Kit:            config.Kit,
		MaxPlayers:     *maxPlayers,
		ReconnectGrace: config.Server.ReconnectGrace,
		Logger:         logger,
		Metrics:        collector,
	})
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	if config.Net.MetricsAddress != "" {
		go serveMetrics(config.Net.MetricsAddress, reg)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server.Run()
	log.Printf("Starting Rewind server %q on port %d (transport: %s, tick rate: %d/s, level: %s, version: %s)",
		config.Server.Name, *port, config.Net.Transport, config.Prediction.TickRate, lvl.Name, *version)

	errc := make(chan error, 1)
	switch config.Net.Transport {
	case "quic":
		tlsConf, err := quicnet.SelfSignedTLS("localhost")
		if err != nil {
			log.Fatalf("TLS setup failed: %v", err)
		}
		if err := server.ListenQUIC(ctx, fmt.Sprintf(":%d", *port), tlsConf); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	case "ws":
		go func() { errc <- server.ListenWebsocket(*port) }()
	default:
		log.Fatalf("Unknown transport %q", config.Net.Transport)
	}

	select {
	case <-ctx.Done():
		log.Println("Shutting down server...")
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Server error: %v", err)
		}
	}
	server.Stop()
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	log.Printf("Serving metrics on %s/metrics", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("Metrics server error: %v", err)
	}
}
