package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/austintgriffith/openclaw-spine/internal/api"
	"github.com/austintgriffith/openclaw-spine/internal/config"
	"github.com/austintgriffith/openclaw-spine/internal/jobs"
	"github.com/austintgriffith/openclaw-spine/internal/logging"
	"github.com/austintgriffith/openclaw-spine/internal/metrics"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configFile string
	var debug bool

	root := &cobra.Command{
		Use:   "spine",
		Short: "Spine coordinates head and claw workers over a file-backed job queue",
	}

	root.PersistentFlags().StringVar(&configFile, "config", "", "path to a YAML config file (optional; env vars take precedence)")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug-level logging")

	root.AddCommand(newServeCommand(&configFile, &debug))

	return root
}

func newServeCommand(configFile *string, debug *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Spine HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(*configFile, *debug)
		},
	}
	return cmd
}

func serve(configFile string, debug bool) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logging.New(debug)

	store, err := jobs.NewStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}

	engine := jobs.NewEngine(store, jobs.Config{
		LeaseDuration:      time.Duration(cfg.LeaseDurationSeconds) * time.Second,
		DefaultMaxAttempts: cfg.DefaultMaxAttempts,
	}, log)

	m := metrics.New()

	reaper := jobs.NewReaper(engine, time.Duration(cfg.ReaperIntervalMillis)*time.Millisecond, log)
	reaper.OnSweep(func(stats jobs.ReaperStats) {
		m.ReaperSweeps.Inc()
		m.ReaperExpired.Add(float64(stats.Expired))
		m.ReaperDead.Add(float64(stats.Dead))
		m.ReaperErrors.Add(float64(stats.Errors))
	})

	server := api.NewServer(engine, cfg.HeadTokens, cfg.LeftClawTokens, cfg.RightClawTokens, m, log)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: server,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go reaper.Run(ctx)

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("spine listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server stopped unexpectedly")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return httpServer.Shutdown(shutdownCtx)
}
