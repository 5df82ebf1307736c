package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/nexuscore/agentrt/internal/config"
	"github.com/nexuscore/agentrt/internal/diagnostics"
	"github.com/nexuscore/agentrt/internal/tools"
	"github.com/nexuscore/agentrt/internal/tools/fs"
	"github.com/nexuscore/agentrt/internal/tools/memory"
	"github.com/nexuscore/agentrt/internal/turn"
	"github.com/nexuscore/agentrt/internal/workspace"
	"github.com/spf13/cobra"
)

// buildRunSubagentCmd builds the hidden worker subcommand a sub-agent
// process re-execs into. It is never invoked directly by a user.
func buildRunSubagentCmd() *cobra.Command {
	var (
		configPath string
		task       string
		name       string
	)
	cmd := &cobra.Command{
		Use:    subagentRunnerFlag,
		Hidden: true,
		Short:  "internal: run one sub-agent task to completion and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubagentTask(cmd.Context(), resolveConfigPath(configPath), name, task)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to YAML configuration file")
	cmd.Flags().StringVar(&task, "task", "", "task description for this sub-agent")
	cmd.Flags().StringVar(&name, "name", "subagent", "sub-agent name, used only for logging")
	return cmd
}

func runSubagentTask(ctx context.Context, configPath, name, task string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	client, err := buildLLMClient(cfg.LLM)
	if err != nil {
		return err
	}

	registry := tools.NewRegistry()
	fsCfg := fs.Config{Workspace: cfg.Workspace.Dir}
	for _, t := range []tools.Tool{
		fs.NewReadTool(fsCfg),
		fs.NewWriteTool(fsCfg),
		fs.NewEditTool(fsCfg),
		fs.NewGrepTool(fsCfg),
		memory.NewTool(memory.NewInMemoryStore()),
	} {
		if err := registry.Register(t); err != nil {
			return err
		}
	}

	bus := diagnostics.NewBus()
	layout := workspace.New(cfg.Workspace.Dir)
	driver := turn.New(client, registry, bus, turn.Config{
		MaxIterations:      cfg.Turn.MaxIterations,
		MaxTokens:          cfg.Turn.MaxTokens,
		ToolResultMaxBytes: cfg.Turn.ToolResultMaxBytes,
		RetryAttempts:      cfg.Turn.RetryAttempts,
		RequestLogDir:      layout.LogsDir(),
	})

	slog.Info("sub-agent starting", "name", name)
	system := fmt.Sprintf("You are a focused sub-agent named %q. Complete the assigned task and report the result.", name)
	result, err := driver.Run(ctx, cfg.LLM.Model, system, nil, task)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	fmt.Println(result.Reply)
	return nil
}
