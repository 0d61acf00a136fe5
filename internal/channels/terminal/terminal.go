// Package terminal is an interactive stdin/stdout chat channel.
package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/shoptaongon/taobot/internal/gateway"
	"github.com/shoptaongon/taobot/internal/store"
)

// Commands recognized on their own line.
const (
	ResetCommand = "/reset"
	ExitCommand  = "/exit"
)

// Channel implements a single-user terminal REPL. Replies are streamed as
// they are generated. The session id persists across runs in the device store.
type Channel struct {
	Chat      gateway.ChatService
	Device    store.DeviceStore
	Assistant string
	Welcome   string
	In        io.Reader
	Out       io.Writer
	Logger    zerolog.Logger
}

func (c *Channel) Name() string {
	return "terminal"
}

// Start runs the REPL until EOF, /exit, or ctx is canceled.
func (c *Channel) Start(ctx context.Context) error {
	sessionID, err := store.SessionID(ctx, c.Device)
	if err != nil {
		return fmt.Errorf("loading session id: %w", err)
	}
	log := c.Logger.With().Str("session_id", sessionID).Logger()
	log.Debug().Msg("terminal session")

	assistant := c.Assistant
	if assistant == "" {
		assistant = "Táo"
	}
	fmt.Fprintf(c.Out, "%s (Enter to send, %s to start over, %s or Ctrl+D to quit)\n\n", assistant, ResetCommand, ExitCommand)
	if c.Welcome != "" {
		fmt.Fprintf(c.Out, "%s: %s\n\n", assistant, c.Welcome)
	}

	// The scanner runs in its own goroutine so ctx cancellation is not
	// blocked on a pending read.
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.In)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(c.Out, "You: ")
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			fmt.Fprintln(c.Out)
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			fmt.Fprintln(c.Out)
			return nil
		}

		text := strings.TrimSpace(line)
		switch text {
		case "":
			continue
		case ExitCommand:
			return nil
		case ResetCommand:
			c.Chat.ResetSession(sessionID)
			fmt.Fprintf(c.Out, "(conversation cleared)\n\n")
			continue
		}

		fmt.Fprintf(c.Out, "%s: ", assistant)
		err := c.Chat.StreamMessage(ctx, sessionID, text, func(chunk string) {
			fmt.Fprint(c.Out, chunk)
		})
		fmt.Fprint(c.Out, "\n\n")
		if err != nil {
			log.Error().Err(err).Msg("message failed")
		}
	}
}
