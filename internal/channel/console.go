package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nexuscore/agentrt/pkg/models"
)

// ConsoleAdapter reads lines from an input stream and writes replies to an
// output stream — the transport used by the interactive REPL. There is
// exactly one chat session, "local".
type ConsoleAdapter struct {
	in       io.Reader
	out      io.Writer
	messages chan models.MessageContext
	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewConsoleAdapter builds a console adapter over in/out.
func NewConsoleAdapter(in io.Reader, out io.Writer) *ConsoleAdapter {
	return &ConsoleAdapter{
		in:       in,
		out:      out,
		messages: make(chan models.MessageContext, 8),
		done:     make(chan struct{}),
	}
}

// Type identifies this adapter's channel.
func (a *ConsoleAdapter) Type() string { return "console" }

// Messages returns the adapter's inbound stream.
func (a *ConsoleAdapter) Messages() <-chan models.MessageContext { return a.messages }

// Start begins reading lines from the input stream in the background. Each
// non-empty line becomes one MessageContext on the "local" chat.
func (a *ConsoleAdapter) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	go func() {
		defer close(a.messages)
		defer close(a.done)

		scanner := bufio.NewScanner(a.in)
		for scanner.Scan() {
			if runCtx.Err() != nil {
				return
			}
			line := scanner.Text()
			if line == "" {
				continue
			}
			mc := models.MessageContext{
				Channel:     "console",
				ChatType:    models.ChatDirect,
				ChatID:      "local",
				UserID:      "local",
				MessageID:   uuid.NewString(),
				Text:        line,
				TimestampMs: time.Now().UnixMilli(),
				Mentioned:   true,
			}
			select {
			case a.messages <- mc:
			case <-runCtx.Done():
				return
			}
		}
	}()
	return nil
}

// Stop cancels the read loop. Since bufio.Scanner.Scan blocks on stdin with
// no context support, Stop does not wait for the goroutine to exit when the
// input stream is still open (a CLI exits the process anyway on /quit).
func (a *ConsoleAdapter) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	return nil
}

// Send writes text to the output stream.
func (a *ConsoleAdapter) Send(ctx context.Context, chatID, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := fmt.Fprintln(a.out, text)
	return err
}
