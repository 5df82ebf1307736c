package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"github.com/nexuscore/agentrt/pkg/models"
)

// TelegramConfig configures the Telegram adapter.
type TelegramConfig struct {
	Token  string
	Logger *slog.Logger
}

// TelegramAdapter implements channel.Adapter over long polling via
// go-telegram/bot.
type TelegramAdapter struct {
	cfg      TelegramConfig
	bot      *bot.Bot
	messages chan models.MessageContext
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	logger   *slog.Logger
}

// NewTelegramAdapter validates cfg and returns an adapter ready to Start.
func NewTelegramAdapter(cfg TelegramConfig) (*TelegramAdapter, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("channel: telegram token is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &TelegramAdapter{
		cfg:      cfg,
		messages: make(chan models.MessageContext, 100),
		logger:   cfg.Logger.With("adapter", "telegram"),
	}, nil
}

// Type identifies this adapter's channel.
func (a *TelegramAdapter) Type() string { return "telegram" }

// Messages returns the adapter's inbound stream.
func (a *TelegramAdapter) Messages() <-chan models.MessageContext { return a.messages }

// Start connects to Telegram and begins long polling in the background.
func (a *TelegramAdapter) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	b, err := bot.New(a.cfg.Token, bot.WithDefaultHandler(a.handleUpdate))
	if err != nil {
		return fmt.Errorf("channel: create telegram bot: %w", err)
	}
	a.bot = b

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer close(a.messages)
		a.logger.Info("telegram adapter starting long polling")
		b.Start(runCtx)
	}()
	return nil
}

// Stop cancels the polling loop and waits for it to drain.
func (a *TelegramAdapter) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	done := make(chan struct{})
	go func() { a.wg.Wait(); close(done) }()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send posts text back to a Telegram chat.
func (a *TelegramAdapter) Send(ctx context.Context, chatID, text string) error {
	if a.bot == nil {
		return fmt.Errorf("channel: telegram adapter not started")
	}
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("channel: invalid telegram chat id %q: %w", chatID, err)
	}
	_, err = a.bot.SendMessage(ctx, &bot.SendMessageParams{ChatID: id, Text: text})
	return err
}

func (a *TelegramAdapter) handleUpdate(ctx context.Context, b *bot.Bot, update *tgmodels.Update) {
	if update.Message == nil {
		return
	}
	msg := update.Message

	chatType := models.ChatDirect
	switch msg.Chat.Type {
	case "group", "supergroup":
		chatType = models.ChatGroup
	case "channel":
		chatType = models.ChatChannel
	}

	mentioned := chatType == models.ChatDirect
	if b != nil {
		if me, err := b.GetMe(ctx); err == nil {
			for _, entity := range msg.Entities {
				if entity.Type == tgmodels.MessageEntityTypeMention && containsUsername(msg.Text, entity, me.Username) {
					mentioned = true
				}
			}
		}
	}

	var userID string
	if msg.From != nil {
		userID = strconv.FormatInt(msg.From.ID, 10)
	}

	mc := models.MessageContext{
		Channel:     "telegram",
		ChatType:    chatType,
		ChatID:      strconv.FormatInt(msg.Chat.ID, 10),
		UserID:      userID,
		MessageID:   strconv.Itoa(msg.ID),
		Text:        msg.Text,
		TimestampMs: time.Unix(int64(msg.Date), 0).UnixMilli(),
		Mentioned:   mentioned,
	}
	if msg.From != nil {
		mc.UserName = msg.From.Username
	}

	select {
	case a.messages <- mc:
	case <-ctx.Done():
	default:
		a.logger.Warn("telegram inbound buffer full, dropping message", "chat_id", mc.ChatID)
	}
}

func containsUsername(text string, entity tgmodels.MessageEntity, username string) bool {
	if username == "" {
		return false
	}
	end := entity.Offset + entity.Length
	if end > len(text) || entity.Offset < 0 {
		return false
	}
	return text[entity.Offset:end] == "@"+username
}
