// Package ingress implements the router that normalizes inbound messages
// from every transport adapter onto one processing pipeline: deduplicate,
// submit to the session scheduler, run a turn, write the reply back.
package ingress

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nexuscore/agentrt/internal/channel"
	"github.com/nexuscore/agentrt/internal/cron"
	"github.com/nexuscore/agentrt/internal/dedup"
	"github.com/nexuscore/agentrt/internal/diagnostics"
	"github.com/nexuscore/agentrt/internal/scheduler"
	"github.com/nexuscore/agentrt/internal/turn"
	"github.com/nexuscore/agentrt/pkg/models"
)

// HeartbeatOK is a reserved reply sentinel that is never written back to a
// transport; it lets the turn driver signal "nothing to say" without the
// router treating an empty string and a deliberate no-op differently.
const HeartbeatOK = "HEARTBEAT_OK"

// GroupPolicy controls which group-chat messages are processed.
type GroupPolicy string

const (
	// GroupPolicyAll processes every group message regardless of mention.
	GroupPolicyAll GroupPolicy = "all"
	// GroupPolicyMentionOnly processes group messages only when the bot was
	// mentioned.
	GroupPolicyMentionOnly GroupPolicy = "mention-only"
	// GroupPolicyNone drops all group-chat messages before they reach a turn.
	GroupPolicyNone GroupPolicy = "none"
)

// HistoryStore is the narrow persistence contract the router needs: fetch a
// session's prior turns and append new ones. Concrete storage (the in-memory
// internal/history store) lives outside this package.
type HistoryStore interface {
	Load(sessionKey string) []models.HistoryMessage
	Append(sessionKey string, messages ...models.HistoryMessage)
}

// TurnRunner is the narrow contract the router needs from the turn driver,
// named here so tests can substitute a scripted double without pulling in a
// real model client.
type TurnRunner interface {
	Run(ctx context.Context, model, system string, history []models.HistoryMessage, userText string) (*turn.Result, error)
}

// Config configures a Router.
type Config struct {
	GroupPolicy  GroupPolicy
	SystemPrompt string
	Model        string
}

// Router wires the dedup index, session scheduler, and turn driver into the
// single path every channel adapter and the cron scheduler feed into.
type Router struct {
	adapters *channel.Registry
	dedupIdx *dedup.Index
	sched    *scheduler.Scheduler
	driver   TurnRunner
	history  HistoryStore
	bus      *diagnostics.Bus
	cfg      Config
}

// New builds a Router.
func New(adapters *channel.Registry, dedupIdx *dedup.Index, sched *scheduler.Scheduler, driver TurnRunner, history HistoryStore, bus *diagnostics.Bus, cfg Config) *Router {
	if cfg.GroupPolicy == "" {
		cfg.GroupPolicy = GroupPolicyAll
	}
	return &Router{
		adapters: adapters,
		dedupIdx: dedupIdx,
		sched:    sched,
		driver:   driver,
		history:  history,
		bus:      bus,
		cfg:      cfg,
	}
}

// Run drains every adapter's aggregated inbound stream and feeds each
// message through onMessage until ctx is cancelled.
func (r *Router) Run(ctx context.Context) {
	for msg := range r.adapters.AggregateMessages(ctx) {
		go r.onMessage(ctx, msg)
	}
}

// onMessage is the single entry point every transport adapter (and the cron
// scheduler's synthesized messages) funnels through: filter by group
// policy, deduplicate, submit to the session lane, run a turn, write the
// reply back.
func (r *Router) onMessage(ctx context.Context, msg models.MessageContext) {
	if !r.passesGroupPolicy(msg) {
		return
	}

	key := dedup.Key(string(msg.Channel), msg.ChatID, msg.MessageID, msg.Text, msg.TimestampMs)
	acquired, release := r.dedupIdx.Acquire(key)
	if !acquired {
		r.emit(diagnostics.EventMessageQueued, msg, "duplicate message dropped", true, nil)
		return
	}
	defer release()

	sessionKey := msg.SessionKey()
	r.emit(diagnostics.EventMessageQueued, msg, "message queued", false, nil)

	err := r.sched.Submit(ctx, sessionKey, func(taskCtx context.Context) error {
		return r.runTurn(taskCtx, msg)
	})
	if err != nil {
		r.emit(diagnostics.EventError, msg, fmt.Sprintf("turn submission failed: %v", err), true, nil)
		return
	}

	r.dedupIdx.MarkProcessed(key)
}

func (r *Router) runTurn(ctx context.Context, msg models.MessageContext) error {
	sessionKey := msg.SessionKey()

	var history []models.HistoryMessage
	if r.history != nil {
		history = r.history.Load(sessionKey)
	}

	result, err := r.driver.Run(ctx, r.cfg.Model, r.cfg.SystemPrompt, history, msg.Text)
	if err != nil {
		reason := "failed"
		if errors.Is(err, context.Canceled) {
			reason = "cancelled"
		}
		r.emit(diagnostics.EventError, msg, fmt.Sprintf("turn failed: %v", err), true, nil)
		r.emit(diagnostics.EventMessageProcessed, msg, "turn did not complete", true, map[string]any{
			"outcome": "error", "reason": reason,
		})
		return err
	}

	if r.history != nil {
		newTurns := result.History[len(history):]
		r.history.Append(sessionKey, newTurns...)
	}

	r.emit(diagnostics.EventMessageProcessed, msg, "turn completed", false, map[string]any{"outcome": "completed"})
	return r.send(ctx, msg.Channel, msg.ChatID, result.Reply)
}

// send writes text back to the originating channel, skipping empty strings
// and the reserved heartbeat sentinel.
func (r *Router) send(ctx context.Context, channelType models.ChannelType, chatID, text string) error {
	if text == "" || text == HeartbeatOK {
		return nil
	}
	out, ok := r.adapters.GetOutbound(string(channelType))
	if !ok {
		return fmt.Errorf("ingress: no outbound adapter registered for channel %q", channelType)
	}
	return out.Send(ctx, chatID, text)
}

// CronSink adapts a fired cron job/reminder payload into the same onMessage
// path real transport messages take, rather than calling a sender directly.
func (r *Router) CronSink() cron.Sink {
	return func(ctx context.Context, payload cron.Payload) error {
		r.onMessage(ctx, models.MessageContext{
			Channel:     models.ChannelType(payload.Channel),
			ChatType:    models.ChatDirect,
			ChatID:      payload.ChatID,
			Text:        payload.Text,
			TimestampMs: time.Now().UnixMilli(),
		})
		return nil
	}
}

func (r *Router) passesGroupPolicy(msg models.MessageContext) bool {
	if msg.ChatType != models.ChatGroup && msg.ChatType != models.ChatChannel {
		return true
	}
	switch r.cfg.GroupPolicy {
	case GroupPolicyNone:
		return false
	case GroupPolicyMentionOnly:
		return msg.Mentioned
	default:
		return true
	}
}

func (r *Router) emit(t diagnostics.EventType, msg models.MessageContext, message string, isErr bool, fields map[string]any) {
	if r.bus == nil {
		return
	}
	r.bus.Emit(diagnostics.EventInput{
		Type:       t,
		SessionKey: msg.SessionKey(),
		Channel:    string(msg.Channel),
		IsError:    isErr,
		Message:    message,
		Fields:     fields,
	})
}

// normalizeMentionToken trims value, strips a leading @ and then a leading #,
// and lowercases the rest, so one identity spelled differently across
// transports compares equal.
func normalizeMentionToken(value string) string {
	token := strings.TrimSpace(value)
	token = strings.TrimPrefix(token, "@")
	token = strings.TrimPrefix(token, "#")
	return strings.ToLower(token)
}
