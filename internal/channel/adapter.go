// Package channel defines the transport adapter contract: how a console,
// Telegram, Discord, or Slack connector plugs into the ingress router
// without the router knowing which transport it's talking to.
package channel

import (
	"context"

	"github.com/nexuscore/agentrt/pkg/models"
)

// Adapter is the minimal contract every transport connector implements.
type Adapter interface {
	// Type returns the stable channel identifier (telegram, discord, slack,
	// console, ...).
	Type() string
}

// LifecycleAdapter is implemented by adapters that must be started and
// stopped cleanly around the process lifetime.
type LifecycleAdapter interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// OutboundAdapter is implemented by adapters that can write a reply back to
// a chat.
type OutboundAdapter interface {
	Send(ctx context.Context, chatID, text string) error
}

// InboundAdapter is implemented by adapters that emit normalized inbound
// messages. The channel is closed when the adapter shuts down.
type InboundAdapter interface {
	Messages() <-chan models.MessageContext
}

// FullAdapter aggregates every capability a complete connector offers.
type FullAdapter interface {
	Adapter
	LifecycleAdapter
	OutboundAdapter
	InboundAdapter
}

// Registry tracks adapters by channel type and fans their inbound messages
// into one stream for the ingress router.
type Registry struct {
	adapters map[string]Adapter
	inbound  map[string]InboundAdapter
	outbound map[string]OutboundAdapter
	lifec    map[string]LifecycleAdapter
}

// NewRegistry returns an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
		inbound:  make(map[string]InboundAdapter),
		outbound: make(map[string]OutboundAdapter),
		lifec:    make(map[string]LifecycleAdapter),
	}
}

// Register adds an adapter, wiring whichever optional capabilities it
// implements.
func (r *Registry) Register(a Adapter) {
	t := a.Type()
	r.adapters[t] = a

	if in, ok := a.(InboundAdapter); ok {
		r.inbound[t] = in
	} else {
		delete(r.inbound, t)
	}
	if out, ok := a.(OutboundAdapter); ok {
		r.outbound[t] = out
	} else {
		delete(r.outbound, t)
	}
	if lc, ok := a.(LifecycleAdapter); ok {
		r.lifec[t] = lc
	} else {
		delete(r.lifec, t)
	}
}

// Get returns an adapter by channel type.
func (r *Registry) Get(channelType string) (Adapter, bool) {
	a, ok := r.adapters[channelType]
	return a, ok
}

// GetOutbound returns the outbound half of an adapter, if it has one.
func (r *Registry) GetOutbound(channelType string) (OutboundAdapter, bool) {
	a, ok := r.outbound[channelType]
	return a, ok
}

// All returns every registered adapter.
func (r *Registry) All() []Adapter {
	out := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	return out
}

// StartAll starts every lifecycle-capable adapter, stopping at the first
// failure.
func (r *Registry) StartAll(ctx context.Context) error {
	for _, a := range r.lifec {
		if err := a.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// StopAll stops every lifecycle-capable adapter, continuing past individual
// failures and returning the last one observed.
func (r *Registry) StopAll(ctx context.Context) error {
	var lastErr error
	for _, a := range r.lifec {
		if err := a.Stop(ctx); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// AggregateMessages fans every adapter's inbound stream into one channel.
// The returned channel closes once ctx is cancelled and every adapter
// goroutine has exited.
func (r *Registry) AggregateMessages(ctx context.Context) <-chan models.MessageContext {
	out := make(chan models.MessageContext)
	done := make(chan struct{}, len(r.inbound))

	for _, adapter := range r.inbound {
		go func(a InboundAdapter) {
			defer func() { done <- struct{}{} }()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-a.Messages():
					if !ok {
						return
					}
					select {
					case out <- msg:
					case <-ctx.Done():
						return
					}
				}
			}
		}(adapter)
	}

	go func() {
		for range r.inbound {
			<-done
		}
		close(out)
	}()

	return out
}
