package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/goodtune/focusd/internal/api"
	"github.com/goodtune/focusd/internal/clock"
	"github.com/goodtune/focusd/internal/config"
	"github.com/goodtune/focusd/internal/gate"
	"github.com/goodtune/focusd/internal/metrics"
	"github.com/goodtune/focusd/internal/retention"
	"github.com/goodtune/focusd/internal/systemd"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start focusd server",
	Long:  `Start the focusd daemon with the blocking gate, retention janitor, local API and metrics endpoints.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting focusd")

	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	app, err := openComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().
		Str("type", cfg.Storage.Type).
		Str("path", cfg.Storage.Path).
		Str("timezone", app.location.String()).
		Msg("Storage initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clk := clock.RealClock{}

	// Blocking gate
	var (
		blockingGate *gate.Gate
		policy       *gate.Policy
		gateDone     = make(chan struct{})
	)
	if cfg.Gate.Enabled {
		policy, err = gate.NewPolicy(cfg.Gate.PolicyDir, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize gate policy: %w", err)
		}

		blocker := newBlocker(cfg.Gate, logger)
		blockingGate = gate.New(app.tracker, policy, blocker, clk, gate.Config{
			IdlePollInterval: parseDuration(cfg.Gate.IdlePollInterval, gate.DefaultIdlePollInterval),
			RecheckEpsilon:   parseDuration(cfg.Gate.RecheckEpsilon, gate.DefaultRecheckEpsilon),
		}, logger)

		go func() {
			defer close(gateDone)
			_ = blockingGate.Run(ctx)
		}()
		logger.Info().Str("policy_dir", cfg.Gate.PolicyDir).Msg("Blocking gate started")
	} else {
		close(gateDone)
		logger.Info().Msg("Blocking gate disabled")
	}

	// Retention janitor
	var janitor *retention.Janitor
	if cfg.Retention.Enabled {
		janitor, err = retention.NewJanitor(app.store.Relax(), app.store.Marks(), app.tracker, clk, retention.Config{
			Days:     cfg.Retention.Days,
			Schedule: cfg.Retention.Schedule,
			Location: app.location,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize retention janitor: %w", err)
		}
		if err := janitor.Start(ctx); err != nil {
			return fmt.Errorf("failed to start retention janitor: %w", err)
		}
	}

	// Local API
	var trigger api.Trigger
	if blockingGate != nil {
		trigger = blockingGate
	}
	apiAddr := net.JoinHostPort(cfg.Server.BindAddress, strconv.Itoa(cfg.Server.APIPort))
	apiServer := api.NewServer(apiAddr, api.NewHandler(app.tracker, app.selector, trigger, clk, logger), logger)
	if sdListeners.API != nil {
		apiServer.SetListener(sdListeners.API)
	}
	if err := apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	// Metrics
	metricsAddr := net.JoinHostPort(cfg.Server.BindAddress, strconv.Itoa(cfg.Server.MetricsPort))
	metricsServer := metrics.NewServer(metricsAddr, logger)
	if sdListeners.Metrics != nil {
		metricsServer.SetListener(sdListeners.Metrics)
	}
	if err := metricsServer.Start(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	logger.Info().Msg("focusd startup complete")
	logger.Info().Msgf("API: http://%s/api/relax", apiAddr)
	logger.Info().Msgf("Metrics: http://%s/metrics", metricsAddr)

	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	}
	go systemd.RunWatchdog(ctx, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range sigChan {
		if sig != syscall.SIGHUP {
			logger.Info().Msg("Shutdown signal received, gracefully stopping...")
			break
		}

		logger.Info().Msg("SIGHUP received, reloading gate policy...")
		if policy == nil {
			continue
		}
		_ = systemd.NotifyReloading()
		if err := policy.Reload(); err != nil {
			logger.Error().Err(err).Msg("Failed to reload gate policy")
		} else {
			blockingGate.Trigger()
		}
		_ = systemd.NotifyReady()
	}

	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	cancel()
	<-gateDone

	if janitor != nil {
		janitor.Stop()
	}

	if err := apiServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping API server")
	}
	if err := metricsServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping metrics server")
	}

	logger.Info().Msg("focusd stopped")
	return nil
}

func newBlocker(cfg config.GateConfig, logger zerolog.Logger) gate.Blocker {
	if len(cfg.BlockCommand) == 0 && len(cfg.UnblockCommand) == 0 {
		return gate.NewNopBlocker(logger)
	}
	return gate.NewExecBlocker(cfg.BlockCommand, cfg.UnblockCommand, logger)
}
