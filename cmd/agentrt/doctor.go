package main

import (
	"context"
	"fmt"
	"os"

	"github.com/nexuscore/agentrt/internal/config"
	"github.com/nexuscore/agentrt/internal/cron"
	"github.com/nexuscore/agentrt/internal/workspace"
	"github.com/spf13/cobra"
)

// buildDoctorCmd builds a migrate-style sanity check: load the config, make
// sure the workspace layout exists and is writable, and confirm the cron
// run-history database opens cleanly. It never mutates configuration.
func buildDoctorCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Sanity-check configuration and workspace layout",
		Long: `doctor loads the configuration, validates it, ensures every
workspace subdirectory exists, and confirms the cron run-history store opens.
It exits non-zero on the first problem found.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd.Context(), resolveConfigPath(configPath))
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to YAML configuration file")
	return cmd
}

func runDoctor(ctx context.Context, configPath string) error {
	fmt.Printf("config file: %s\n", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: load config: %v\n", err)
		return err
	}
	fmt.Println("OK: config loaded")

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: validate config: %v\n", err)
		return err
	}
	fmt.Println("OK: config valid")

	layout := workspace.New(cfg.Workspace.Dir)
	if err := layout.Ensure(); err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: ensure workspace %s: %v\n", cfg.Workspace.Dir, err)
		return err
	}
	fmt.Printf("OK: workspace ready at %s\n", cfg.Workspace.Dir)

	store, err := cron.OpenStore(layout.CronRunsDBFile())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: open cron store: %v\n", err)
		return err
	}
	store.Close()
	fmt.Println("OK: cron run-history store opens")

	approvalCfg, err := layout.LoadApprovalConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: load approval config: %v\n", err)
		return err
	}
	fmt.Printf("OK: approval policy %q loaded\n", approvalCfg.Policy.Security)

	fmt.Println("all checks passed")
	return nil
}
