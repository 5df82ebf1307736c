package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/nexuscore/agentrt/pkg/models"
)

// SlackConfig configures the Slack adapter. It connects over Socket Mode, so
// no public webhook endpoint is required.
type SlackConfig struct {
	BotToken string // xoxb-...
	AppToken string // xapp-...
	Logger   *slog.Logger
}

// SlackAdapter implements channel.Adapter over Slack's Socket Mode API.
type SlackAdapter struct {
	cfg       SlackConfig
	client    *slack.Client
	socket    *socketmode.Client
	messages  chan models.MessageContext
	logger    *slog.Logger
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	botUserID string
}

// NewSlackAdapter validates cfg and returns an adapter ready to Start.
func NewSlackAdapter(cfg SlackConfig) (*SlackAdapter, error) {
	if cfg.BotToken == "" || cfg.AppToken == "" {
		return nil, fmt.Errorf("channel: slack bot_token and app_token are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	client := slack.New(cfg.BotToken, slack.OptionAppLevelToken(cfg.AppToken))
	return &SlackAdapter{
		cfg:      cfg,
		client:   client,
		socket:   socketmode.New(client),
		messages: make(chan models.MessageContext, 100),
		logger:   cfg.Logger.With("adapter", "slack"),
	}, nil
}

// Type identifies this adapter's channel.
func (a *SlackAdapter) Type() string { return "slack" }

// Messages returns the adapter's inbound stream.
func (a *SlackAdapter) Messages() <-chan models.MessageContext { return a.messages }

// Start authenticates, then runs the Socket Mode event loop in the
// background.
func (a *SlackAdapter) Start(ctx context.Context) error {
	auth, err := a.client.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("channel: slack auth test: %w", err)
	}
	a.botUserID = auth.UserID

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer close(a.messages)
		a.runEventLoop(runCtx)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.socket.Run(); err != nil && runCtx.Err() == nil {
			a.logger.Error("slack socket mode stopped", "error", err)
		}
	}()

	a.logger.Info("slack adapter connected", "bot_user_id", a.botUserID)
	return nil
}

// Stop cancels the event loop and waits for it to drain.
func (a *SlackAdapter) Stop(ctx context.Context) error {
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

// Send posts text back to a Slack channel or DM.
func (a *SlackAdapter) Send(ctx context.Context, chatID, text string) error {
	_, _, err := a.client.PostMessageContext(ctx, chatID, slack.MsgOptionText(text, false))
	return err
}

func (a *SlackAdapter) runEventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-a.socket.Events:
			if !ok {
				return
			}
			if evt.Type == socketmode.EventTypeEventsAPI {
				a.handleEventsAPI(evt)
			}
		}
	}
}

func (a *SlackAdapter) handleEventsAPI(evt socketmode.Event) {
	apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
	if !ok {
		return
	}
	if evt.Request != nil {
		a.socket.Ack(*evt.Request)
	}
	if apiEvent.Type != slackevents.CallbackEvent {
		return
	}

	switch ev := apiEvent.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		a.emit(ev.Channel, ev.User, ev.Text, ev.TimeStamp, true)
	case *slackevents.MessageEvent:
		if ev.BotID != "" || (ev.SubType != "" && ev.SubType != "file_share") {
			return
		}
		mentioned := strings.Contains(ev.Text, "<@"+a.botUserID+">")
		isDM := strings.HasPrefix(ev.Channel, "D")
		if !isDM && !mentioned && ev.ThreadTimeStamp == "" {
			return
		}
		a.emit(ev.Channel, ev.User, ev.Text, ev.TimeStamp, mentioned || isDM)
	}
}

func (a *SlackAdapter) emit(channelID, userID, text, ts string, mentioned bool) {
	clean := strings.TrimSpace(stripMentions(text))
	mc := models.MessageContext{
		Channel:     "slack",
		ChatType:    chatTypeForSlackChannel(channelID),
		ChatID:      channelID,
		UserID:      userID,
		MessageID:   ts,
		Text:        clean,
		TimestampMs: slackTimestampToMs(ts),
		Mentioned:   mentioned,
	}
	select {
	case a.messages <- mc:
	default:
		a.logger.Warn("slack inbound buffer full, dropping message", "channel", channelID)
	}
}

func chatTypeForSlackChannel(channelID string) models.ChatType {
	if strings.HasPrefix(channelID, "D") {
		return models.ChatDirect
	}
	return models.ChatGroup
}

func stripMentions(text string) string {
	for strings.Contains(text, "<@") {
		start := strings.Index(text, "<@")
		end := strings.Index(text[start:], ">")
		if end == -1 {
			break
		}
		text = text[:start] + text[start+end+1:]
	}
	return text
}

func slackTimestampToMs(ts string) int64 {
	var sec, micro int64
	if _, err := fmt.Sscanf(ts, "%d.%d", &sec, &micro); err != nil {
		return time.Now().UnixMilli()
	}
	return sec*1000 + micro/1000
}
