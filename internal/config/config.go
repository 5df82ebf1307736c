// Package config loads the runtime's YAML configuration file, resolving
// $include directives and applying environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the root configuration structure for the agent runtime.
type Config struct {
	Workspace WorkspaceConfig `yaml:"workspace"`
	LLM       LLMConfig       `yaml:"llm"`
	Channels  ChannelsConfig  `yaml:"channels"`
	Cron      CronConfig      `yaml:"cron"`
	Turn      TurnConfig      `yaml:"turn"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// WorkspaceConfig controls where persisted state lives on disk.
type WorkspaceConfig struct {
	Dir string `yaml:"dir"`
}

// LLMConfig selects and configures the model backend.
type LLMConfig struct {
	Provider      string `yaml:"provider"` // "anthropic" or "openai"
	Model         string `yaml:"model"`
	AnthropicKey  string `yaml:"anthropic_api_key"`
	AnthropicURL  string `yaml:"anthropic_base_url"`
	OpenAIKey     string `yaml:"openai_api_key"`
}

// ChannelsConfig configures which transport adapters to start and the
// group-chat mention policy applied by the ingress router.
type ChannelsConfig struct {
	GroupPolicy string         `yaml:"group_policy"` // all | mention-only | none
	Telegram    TelegramConfig `yaml:"telegram"`
	Discord     DiscordConfig  `yaml:"discord"`
	Slack       SlackConfig    `yaml:"slack"`
	Console     bool           `yaml:"console"`
}

// TelegramConfig configures the Telegram adapter.
type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
}

// DiscordConfig configures the Discord adapter.
type DiscordConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
}

// SlackConfig configures the Slack adapter.
type SlackConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	AppToken string `yaml:"app_token"`
}

// CronConfig configures the cron scheduler's tick cadence.
type CronConfig struct {
	TickInterval time.Duration `yaml:"tick_interval"`
}

// TurnConfig configures the turn driver's bounds.
type TurnConfig struct {
	MaxIterations      int           `yaml:"max_iterations"`
	MaxToolCalls       int           `yaml:"max_tool_calls"`
	MaxWallTime        time.Duration `yaml:"max_wall_time"`
	MaxTokens          int           `yaml:"max_tokens"`
	ToolResultMaxBytes int           `yaml:"tool_result_max_bytes"`
	RetryAttempts      int           `yaml:"retry_attempts"`
}

// LoggingConfig controls the slog handler and level.
type LoggingConfig struct {
	Format string `yaml:"format"` // "json" or "text"
	Level  string `yaml:"level"`  // debug | info | warn | error
}

// applyEnvOverrides layers environment variables on top of file-sourced
// values: file first, then env, so deployments can override secrets
// without editing the checked-in file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AGENTRT_WORKSPACE_DIR"); v != "" {
		cfg.Workspace.Dir = v
	}
	if v := os.Getenv("AGENTRT_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("AGENTRT_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.LLM.AnthropicKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.OpenAIKey = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Channels.Telegram.Token = v
	}
	if v := os.Getenv("DISCORD_BOT_TOKEN"); v != "" {
		cfg.Channels.Discord.Token = v
	}
	if v := os.Getenv("SLACK_BOT_TOKEN"); v != "" {
		cfg.Channels.Slack.BotToken = v
	}
	if v := os.Getenv("SLACK_APP_TOKEN"); v != "" {
		cfg.Channels.Slack.AppToken = v
	}
	if v := os.Getenv("AGENTRT_GROUP_POLICY"); v != "" {
		cfg.Channels.GroupPolicy = v
	}
	if v := os.Getenv("AGENTRT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("AGENTRT_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Turn.MaxIterations = n
		}
	}
}

// applyDefaults fills in the runtime's defaults for anything the file and
// environment left unset.
func applyDefaults(cfg *Config) {
	if cfg.Workspace.Dir == "" {
		cfg.Workspace.Dir = ".agentrt"
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "anthropic"
	}
	if cfg.Channels.GroupPolicy == "" {
		cfg.Channels.GroupPolicy = "all"
	}
	if cfg.Cron.TickInterval == 0 {
		cfg.Cron.TickInterval = time.Second
	}
	if cfg.Turn.MaxIterations == 0 {
		cfg.Turn.MaxIterations = 50
	}
	if cfg.Turn.MaxTokens == 0 {
		cfg.Turn.MaxTokens = 4096
	}
	if cfg.Turn.ToolResultMaxBytes == 0 {
		cfg.Turn.ToolResultMaxBytes = 50 * 1024
	}
	if cfg.Turn.RetryAttempts == 0 {
		cfg.Turn.RetryAttempts = 2
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// Validate checks invariants that defaulting cannot fix on its own.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LLM.Provider) {
	case "anthropic":
		if c.LLM.AnthropicKey == "" {
			return fmt.Errorf("config: llm.anthropic_api_key (or ANTHROPIC_API_KEY) is required when provider is anthropic")
		}
	case "openai":
		if c.LLM.OpenAIKey == "" {
			return fmt.Errorf("config: llm.openai_api_key (or OPENAI_API_KEY) is required when provider is openai")
		}
	default:
		return fmt.Errorf("config: unknown llm.provider %q", c.LLM.Provider)
	}

	switch c.Channels.GroupPolicy {
	case "all", "mention-only", "none":
	default:
		return fmt.Errorf("config: unknown channels.group_policy %q", c.Channels.GroupPolicy)
	}
	return nil
}
