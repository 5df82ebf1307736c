// Package main provides the CLI entry point for agentrt, a multi-channel
// conversational agent runtime.
//
// agentrt connects messaging platforms (Telegram, Discord, Slack) and an
// interactive console to LLM providers (Anthropic, OpenAI) through a single
// tool-using turn loop with shell approval gating, cron-driven reminders,
// and sub-agent delegation.
//
// # Basic usage
//
//	agentrt serve --config agentrt.yaml
//	agentrt console --config agentrt.yaml
//	agentrt doctor --config agentrt.yaml
//
// # Environment variables
//
//   - AGENTRT_WORKSPACE_DIR: workspace root (default .agentrt)
//   - AGENTRT_LLM_PROVIDER / AGENTRT_LLM_MODEL: model backend selection
//   - ANTHROPIC_API_KEY / OPENAI_API_KEY: provider credentials
//   - TELEGRAM_BOT_TOKEN / DISCORD_BOT_TOKEN / SLACK_BOT_TOKEN / SLACK_APP_TOKEN
//   - AGENTRT_GROUP_POLICY, AGENTRT_LOG_LEVEL, AGENTRT_MAX_ITERATIONS
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Build metadata, injected via -ldflags at release time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultConfigPath = "agentrt.yaml"

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		if _, ok := err.(argumentError); ok {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// argumentError marks a failure as an invalid-argument error (exit code 2)
// rather than an unconfigured-environment error (exit code 1).
type argumentError struct{ err error }

func (e argumentError) Error() string { return e.err.Error() }

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "agentrt",
		Short:        "agentrt - multi-channel conversational agent runtime",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(
		buildServeCmd(),
		buildConsoleCmd(),
		buildDoctorCmd(),
		buildRunSubagentCmd(),
	)
	return rootCmd
}

// resolveConfigPath applies the AGENTRT_CONFIG environment override when the
// caller left the --config flag at its default.
func resolveConfigPath(path string) string {
	if strings.TrimSpace(path) == "" || path == defaultConfigPath {
		if v := strings.TrimSpace(os.Getenv("AGENTRT_CONFIG")); v != "" {
			return v
		}
	}
	return path
}
