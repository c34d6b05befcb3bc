// Command aubridge runs the audio socket bridge as a standalone daemon with
// a built-in demo host pipeline. A peer process (for example a TTS/STT
// agent) connects to the Unix socket and exchanges raw S16LE frames with the
// selected host mode: loopback (echo), tone, or silence.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/evancourt/aubridge/internal/config"
	"github.com/evancourt/aubridge/internal/health"
	"github.com/evancourt/aubridge/internal/observe"
	"github.com/evancourt/aubridge/pkg/audio"
	"github.com/evancourt/aubridge/pkg/bridge"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "path to the YAML configuration file (empty: built-in defaults)")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "aubridge: %v\n", err)
			return 1
		}
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Server.LogLevel.Level(),
	}))
	slog.SetDefault(logger)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Metrics provider ──────────────────────────────────────────────────────
	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "aubridge"})
	if err != nil {
		slog.Error("failed to initialise metrics provider", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}()

	// ── Bridge ────────────────────────────────────────────────────────────────
	br, err := bridge.New(bridge.Config{SocketPath: cfg.Bridge.SocketPath})
	if err != nil {
		slog.Error("failed to start bridge", "err", err)
		return 1
	}
	defer br.Close()

	streamCfg := bridge.StreamConfig{
		Format: audio.Format{SampleRate: cfg.Stream.SampleRate, Channels: 1},
		Ptime:  cfg.Stream.Ptime(),
	}

	// ── Demo host pipeline ────────────────────────────────────────────────────
	h := newHost(cfg.Host, streamCfg)
	src, err := br.NewSource(streamCfg, h.Capture)
	if err != nil {
		slog.Error("failed to create capture stream", "err", err)
		return 1
	}
	defer src.Close()

	snk, err := br.NewSink(streamCfg, h.Render)
	if err != nil {
		slog.Error("failed to create render stream", "err", err)
		return 1
	}
	defer snk.Close()

	slog.Info("aubridge ready",
		"socket", br.SocketPath(),
		"format", streamCfg.Format,
		"ptime", streamCfg.Ptime,
		"host_mode", cfg.Host.Mode,
	)

	// ── Serve until signalled ─────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		health.New(health.SocketChecker(br.SocketPath())).Register(mux)
		srv := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux}

		g.Go(func() error {
			slog.Info("metrics endpoint listening", "addr", cfg.Server.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return gctx.Err()
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	slog.Info("shutdown signal received, stopping…")
	return 0
}
