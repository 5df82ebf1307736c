package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/nexuscore/agentrt/pkg/models"
)

// DiscordConfig configures the Discord adapter.
type DiscordConfig struct {
	Token  string
	Logger *slog.Logger
}

// DiscordAdapter implements channel.Adapter over a discordgo gateway session.
type DiscordAdapter struct {
	cfg      DiscordConfig
	session  *discordgo.Session
	messages chan models.MessageContext
	logger   *slog.Logger
	wg       sync.WaitGroup
	selfID   string
}

// NewDiscordAdapter validates cfg and returns an adapter ready to Start.
func NewDiscordAdapter(cfg DiscordConfig) (*DiscordAdapter, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("channel: discord token is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &DiscordAdapter{
		cfg:      cfg,
		messages: make(chan models.MessageContext, 100),
		logger:   cfg.Logger.With("adapter", "discord"),
	}, nil
}

// Type identifies this adapter's channel.
func (a *DiscordAdapter) Type() string { return "discord" }

// Messages returns the adapter's inbound stream.
func (a *DiscordAdapter) Messages() <-chan models.MessageContext { return a.messages }

// Start opens the gateway session and registers the message handler.
func (a *DiscordAdapter) Start(ctx context.Context) error {
	session, err := discordgo.New("Bot " + a.cfg.Token)
	if err != nil {
		return fmt.Errorf("channel: create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent

	session.AddHandler(a.handleMessageCreate)

	if err := session.Open(); err != nil {
		return fmt.Errorf("channel: open discord session: %w", err)
	}
	a.session = session
	if session.State != nil && session.State.User != nil {
		a.selfID = session.State.User.ID
	}
	a.logger.Info("discord adapter connected")
	return nil
}

// Stop closes the gateway session.
func (a *DiscordAdapter) Stop(ctx context.Context) error {
	if a.session == nil {
		return nil
	}
	err := a.session.Close()
	close(a.messages)
	return err
}

// Send posts text back to a Discord channel.
func (a *DiscordAdapter) Send(ctx context.Context, chatID, text string) error {
	if a.session == nil {
		return fmt.Errorf("channel: discord adapter not started")
	}
	_, err := a.session.ChannelMessageSend(chatID, text)
	return err
}

func (a *DiscordAdapter) handleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}

	chatType := models.ChatGroup
	if m.GuildID == "" {
		chatType = models.ChatDirect
	}

	mentioned := chatType == models.ChatDirect
	for _, u := range m.Mentions {
		if u.ID == a.selfID {
			mentioned = true
		}
	}
	if a.selfID != "" && strings.Contains(m.Content, "<@"+a.selfID+">") {
		mentioned = true
	}

	mc := models.MessageContext{
		Channel:     "discord",
		ChatType:    chatType,
		ChatID:      m.ChannelID,
		UserID:      m.Author.ID,
		UserName:    m.Author.Username,
		MessageID:   m.ID,
		Text:        m.Content,
		TimestampMs: time.Now().UnixMilli(),
		Mentioned:   mentioned,
	}
	if ts, err := m.Timestamp.Parse(); err == nil {
		mc.TimestampMs = ts.UnixMilli()
	}

	select {
	case a.messages <- mc:
	default:
		a.logger.Warn("discord inbound buffer full, dropping message", "channel_id", m.ChannelID)
	}
}
