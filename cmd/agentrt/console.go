package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nexuscore/agentrt/internal/channel"
	"github.com/nexuscore/agentrt/internal/config"
	"github.com/spf13/cobra"
)

func buildConsoleCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Drop into an interactive console session",
		Long: `Start agentrt with only the console transport: no Telegram, Discord, or
Slack adapters. Supports slash commands (/stats, /todo, /models, /subagents,
/tasks, /multi, /quit) in addition to plain-text turns.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsole(cmd.Context(), resolveConfigPath(configPath))
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to YAML configuration file")
	return cmd
}

func runConsole(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	a, err := buildApp(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer a.close()

	pipeIn, pipeOut := io.Pipe()
	consoleAdapter := channel.NewConsoleAdapter(pipeIn, os.Stdout)
	a.adapters.Register(consoleAdapter)
	if err := a.adapters.StartAll(ctx); err != nil {
		return fmt.Errorf("start console adapter: %w", err)
	}
	defer a.adapters.StopAll(context.Background())

	a.cronSched.Start(ctx)
	go a.router.Run(ctx)

	fmt.Println("agentrt console — type a message, or /help for commands")
	return runREPL(ctx, a, pipeOut)
}

// runREPL reads stdin line by line, intercepting slash commands locally and
// forwarding everything else (joined across /multi blocks) into forward for
// the console adapter to pick up as a normal inbound message.
func runREPL(ctx context.Context, a *app, forward io.Writer) error {
	scanner := bufio.NewScanner(os.Stdin)
	var multiline []string
	inMulti := false

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := scanner.Text()

		if inMulti {
			if strings.TrimSpace(line) == "/end" {
				inMulti = false
				fmt.Fprintln(forward, strings.Join(multiline, "\n"))
				multiline = nil
				continue
			}
			multiline = append(multiline, line)
			continue
		}

		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "/") {
			if trimmed == "" {
				continue
			}
			fmt.Fprintln(forward, line)
			continue
		}

		cmd, rest, _ := strings.Cut(trimmed, " ")
		switch cmd {
		case "/quit", "/exit":
			return nil
		case "/multi":
			inMulti = true
			fmt.Println("entering multi-line mode; end with /end")
		case "/stats":
			printStats(a)
		case "/todo":
			fmt.Println(rest)
			fmt.Println("(todo state is managed by the model via todo_write during a turn)")
		case "/models":
			fmt.Printf("provider=%s model=%s\n", a.cfg.LLM.Provider, a.cfg.LLM.Model)
		case "/subagents":
			printSubagents(a)
		case "/tasks":
			printTasks(a)
		case "/help":
			printHelp()
		default:
			fmt.Printf("unknown command %q; try /help\n", cmd)
		}
	}
	return scanner.Err()
}

func printHelp() {
	fmt.Println("commands: /stats /todo /models /subagents /tasks /multi /quit")
}

func printStats(a *app) {
	for _, s := range a.bus.Stats() {
		fmt.Printf("%-24s count=%-6d errors=%-4d avg_ms=%.1f\n", s.Type, s.Count, s.ErrorCount, s.AvgDurationMs)
	}
}

func printSubagents(a *app) {
	agents := a.supervisor.List()
	if len(agents) == 0 {
		fmt.Println("no sub-agents")
		return
	}
	for _, sa := range agents {
		fmt.Printf("%-36s %-16s status=%s\n", sa.ID, sa.Name, sa.Status)
	}
}

func printTasks(a *app) {
	jobs := a.cronSched.ListJobs()
	reminders := a.cronSched.ListReminders()
	fmt.Printf("%d cron job(s), %d reminder(s)\n", len(jobs), len(reminders))
	for _, j := range jobs {
		fmt.Printf("  job  %-36s %-20s enabled=%v\n", j.ID, j.Name, j.Enabled)
	}
	for _, r := range reminders {
		fmt.Printf("  rem  %-36s fires=%s\n", r.ID, r.FireAt)
	}
}
