package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nexuscore/agentrt/internal/channel"
	"github.com/nexuscore/agentrt/internal/config"
	"github.com/spf13/cobra"
)

func buildServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start every enabled transport and the cron scheduler",
		Long: `Start the agentrt gateway: load configuration, start every enabled
channel adapter (Telegram, Discord, Slack), start the cron scheduler, and
run the ingress router until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), resolveConfigPath(configPath))
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to YAML configuration file")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := slog.Default()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	if err := buildChannelAdapters(a.adapters, cfg.Channels, logger); err != nil {
		return err
	}
	if cfg.Channels.Console {
		a.adapters.Register(channel.NewConsoleAdapter(os.Stdin, os.Stdout))
	}

	if err := a.adapters.StartAll(ctx); err != nil {
		return fmt.Errorf("start channel adapters: %w", err)
	}
	defer a.adapters.StopAll(context.Background())

	a.cronSched.Start(ctx)

	logger.Info("agentrt serving", "version", version, "workspace", cfg.Workspace.Dir, "llm_provider", cfg.LLM.Provider)
	a.router.Run(ctx)

	logger.Info("agentrt shutting down")
	return nil
}
