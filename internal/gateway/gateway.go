// Package gateway runs the presentation channels (terminal, HTTP) that feed
// user messages to the conversation orchestrator.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
)

// ChatService is the orchestrator surface the channels drive.
type ChatService interface {
	SendMessage(ctx context.Context, sessionID, text string) (string, error)
	StreamMessage(ctx context.Context, sessionID, text string, onChunk func(string)) error
	ResetSession(sessionID string)
}

// Channel is one presentation surface.
type Channel interface {
	// Name returns the unique name of the channel.
	Name() string
	// Start serves the channel. It blocks until ctx is canceled or the
	// channel has nothing more to do (e.g. stdin reached EOF).
	Start(ctx context.Context) error
}

// Gateway manages the registered channels.
type Gateway struct {
	channels map[string]Channel
	logger   zerolog.Logger
	mu       sync.RWMutex
}

// New creates an empty Gateway.
func New(logger zerolog.Logger) *Gateway {
	return &Gateway{
		channels: make(map[string]Channel),
		logger:   logger,
	}
}

// Register adds a channel, replacing any channel with the same name.
func (g *Gateway) Register(c Channel) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.channels[c.Name()] = c
}

// StartAll runs every registered channel until ctx is canceled or any one
// of them returns; the others are then canceled. A channel panic is
// recovered and reported as its error. The first non-cancellation error is
// returned.
func (g *Gateway) StartAll(ctx context.Context) error {
	g.mu.RLock()
	channels := make([]Channel, 0, len(g.channels))
	for _, c := range g.channels {
		channels = append(channels, c)
	}
	g.mu.RUnlock()
	if len(channels) == 0 {
		return errors.New("no channels registered")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := pool.New().WithErrors().WithContext(ctx).WithFirstError()
	for _, c := range channels {
		p.Go(func(ctx context.Context) error {
			defer cancel()
			g.logger.Info().Str("channel", c.Name()).Msg("channel starting")
			err := runChannel(ctx, c)
			if err != nil {
				g.logger.Error().Err(err).Str("channel", c.Name()).Msg("channel stopped")
				return err
			}
			g.logger.Info().Str("channel", c.Name()).Msg("channel stopped")
			return nil
		})
	}
	return p.Wait()
}

func runChannel(ctx context.Context, c Channel) (err error) {
	var pc panics.Catcher
	pc.Try(func() { err = c.Start(ctx) })
	if r := pc.Recovered(); r != nil {
		return fmt.Errorf("channel %s: %w", c.Name(), r.AsError())
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ChannelNames returns the registered channel names in sorted order.
func (g *Gateway) ChannelNames() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	names := make([]string, 0, len(g.channels))
	for name := range g.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
