package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nexuscore/agentrt/internal/approval"
	"github.com/nexuscore/agentrt/internal/channel"
	"github.com/nexuscore/agentrt/internal/config"
	"github.com/nexuscore/agentrt/internal/cron"
	"github.com/nexuscore/agentrt/internal/dedup"
	"github.com/nexuscore/agentrt/internal/diagnostics"
	"github.com/nexuscore/agentrt/internal/history"
	"github.com/nexuscore/agentrt/internal/ingress"
	"github.com/nexuscore/agentrt/internal/llmclient"
	"github.com/nexuscore/agentrt/internal/scheduler"
	"github.com/nexuscore/agentrt/internal/subagent"
	"github.com/nexuscore/agentrt/internal/tools"
	"github.com/nexuscore/agentrt/internal/tools/approvaltool"
	"github.com/nexuscore/agentrt/internal/tools/crontool"
	"github.com/nexuscore/agentrt/internal/tools/diagnostictool"
	"github.com/nexuscore/agentrt/internal/tools/fs"
	"github.com/nexuscore/agentrt/internal/tools/memory"
	"github.com/nexuscore/agentrt/internal/tools/planning"
	"github.com/nexuscore/agentrt/internal/tools/shell"
	"github.com/nexuscore/agentrt/internal/tools/subagenttool"
	"github.com/nexuscore/agentrt/internal/turn"
	"github.com/nexuscore/agentrt/internal/workspace"
)

// app bundles every long-lived collaborator the serve and console
// subcommands wire together, so both share one construction path.
type app struct {
	cfg        *config.Config
	layout     workspace.Layout
	bus        *diagnostics.Bus
	metrics    *diagnostics.PrometheusExporter
	approval   *approval.Engine
	watcher    *config.ApprovalWatcher
	cronStore  *cron.Store
	cronSched  *cron.Scheduler
	supervisor *subagent.Supervisor
	adapters   *channel.Registry
	router     *ingress.Router
	logger     *slog.Logger
}

// buildApp wires every component named in the runtime's component table
// against cfg. Callers are responsible for calling close() on shutdown and
// for starting whichever long-running loops (cronSched.Start, adapters,
// router.Run) their subcommand needs.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	layout := workspace.New(cfg.Workspace.Dir)
	if err := layout.Ensure(); err != nil {
		return nil, fmt.Errorf("ensure workspace: %w", err)
	}

	bus := diagnostics.NewBus()
	metrics, err := diagnostics.NewPrometheusExporter(bus, nil)
	if err != nil {
		return nil, fmt.Errorf("prometheus exporter: %w", err)
	}

	approvalCfg, err := layout.LoadApprovalConfig()
	if err != nil {
		return nil, fmt.Errorf("load approval config: %w", err)
	}
	engine := approval.New(approvalCfg)

	watcher := config.NewApprovalWatcher(layout.ApprovalDir(), func() {
		cfg, err := layout.LoadApprovalConfig()
		if err != nil {
			logger.Warn("reload approval config", "error", err)
			return
		}
		if err := engine.ImportConfig(cfg); err != nil {
			logger.Warn("apply reloaded approval config", "error", err)
		}
	}, logger)
	if err := watcher.Start(ctx); err != nil {
		return nil, fmt.Errorf("start approval watcher: %w", err)
	}

	cronStore, err := cron.OpenStore(layout.CronRunsDBFile())
	if err != nil {
		watcher.Stop()
		return nil, fmt.Errorf("open cron store: %w", err)
	}

	client, err := buildLLMClient(cfg.LLM)
	if err != nil {
		cronStore.Close()
		watcher.Stop()
		return nil, err
	}

	registry := tools.NewRegistry()
	if err := registerTools(registry, cfg, layout, engine); err != nil {
		cronStore.Close()
		watcher.Stop()
		return nil, fmt.Errorf("register tools: %w", err)
	}

	driver := turn.New(client, registry, bus, turn.Config{
		MaxIterations:      cfg.Turn.MaxIterations,
		MaxToolCalls:       cfg.Turn.MaxToolCalls,
		MaxWallTime:        cfg.Turn.MaxWallTime,
		MaxTokens:          cfg.Turn.MaxTokens,
		ToolResultMaxBytes: cfg.Turn.ToolResultMaxBytes,
		RetryAttempts:      cfg.Turn.RetryAttempts,
		RequestLogDir:      layout.LogsDir(),
	})

	adapters := channel.NewRegistry()
	sched := scheduler.New(bus)
	hist := history.New()

	router := ingress.New(adapters, dedup.New(dedup.Options{TTL: 60 * time.Second}), sched, driver, hist, bus, ingress.Config{
		GroupPolicy: ingress.GroupPolicy(cfg.Channels.GroupPolicy),
	})

	cronSched := cron.NewScheduler(router.CronSink(), bus, cron.WithTickInterval(cfg.Cron.TickInterval), cron.WithStore(cronStore))

	supervisor := subagent.NewSupervisor(selfExecRunner(), bus)
	if err := subagenttool.RegisterAll(registry, supervisor, "console"); err != nil {
		cronStore.Close()
		watcher.Stop()
		return nil, fmt.Errorf("register subagent tools: %w", err)
	}
	if err := crontool.RegisterAll(registry, cronSched); err != nil {
		cronStore.Close()
		watcher.Stop()
		return nil, fmt.Errorf("register cron tools: %w", err)
	}
	if err := diagnostictool.RegisterAll(registry, bus); err != nil {
		cronStore.Close()
		watcher.Stop()
		return nil, fmt.Errorf("register diagnostic tools: %w", err)
	}

	return &app{
		cfg:        cfg,
		layout:     layout,
		bus:        bus,
		metrics:    metrics,
		approval:   engine,
		watcher:    watcher,
		cronStore:  cronStore,
		cronSched:  cronSched,
		supervisor: supervisor,
		adapters:   adapters,
		router:     router,
		logger:     logger,
	}, nil
}

func (a *app) close() {
	a.cronSched.Stop()
	a.cronStore.Close()
	a.watcher.Stop()
	a.metrics.Close()
}

// registerTools wires the fs/shell/memory/planning/approval tool families;
// cron/subagent/diagnostic are registered separately in buildApp once their
// backing collaborators exist.
func registerTools(registry *tools.Registry, cfg *config.Config, layout workspace.Layout, engine *approval.Engine) error {
	fsCfg := fs.Config{Workspace: cfg.Workspace.Dir}
	for _, t := range []tools.Tool{
		fs.NewReadTool(fsCfg),
		fs.NewWriteTool(fsCfg),
		fs.NewEditTool(fsCfg),
		fs.NewGrepTool(fsCfg),
		shell.New(engine, cfg.Workspace.Dir),
		memory.NewTool(memory.NewInMemoryStore()),
		planning.NewTool(planning.NewStore()),
	} {
		if err := registry.Register(t); err != nil {
			return err
		}
	}
	return approvaltool.RegisterAll(registry, engine)
}

func buildLLMClient(cfg config.LLMConfig) (llmclient.Client, error) {
	switch cfg.Provider {
	case "openai":
		return llmclient.NewOpenAIClient(llmclient.OpenAIConfig{
			APIKey:       cfg.OpenAIKey,
			DefaultModel: cfg.Model,
		})
	default:
		return llmclient.NewAnthropicClient(llmclient.AnthropicConfig{
			APIKey:       cfg.AnthropicKey,
			BaseURL:      cfg.AnthropicURL,
			DefaultModel: cfg.Model,
		})
	}
}

// buildChannelAdapters registers every channel the config enables onto reg.
func buildChannelAdapters(reg *channel.Registry, cfg config.ChannelsConfig, logger *slog.Logger) error {
	if cfg.Telegram.Enabled {
		a, err := channel.NewTelegramAdapter(channel.TelegramConfig{Token: cfg.Telegram.Token, Logger: logger})
		if err != nil {
			return fmt.Errorf("telegram adapter: %w", err)
		}
		reg.Register(a)
	}
	if cfg.Discord.Enabled {
		a, err := channel.NewDiscordAdapter(channel.DiscordConfig{Token: cfg.Discord.Token, Logger: logger})
		if err != nil {
			return fmt.Errorf("discord adapter: %w", err)
		}
		reg.Register(a)
	}
	if cfg.Slack.Enabled {
		a, err := channel.NewSlackAdapter(channel.SlackConfig{BotToken: cfg.Slack.BotToken, AppToken: cfg.Slack.AppToken, Logger: logger})
		if err != nil {
			return fmt.Errorf("slack adapter: %w", err)
		}
		reg.Register(a)
	}
	return nil
}
