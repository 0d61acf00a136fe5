package memory

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/shoptaongon/taobot/internal/core"
	"github.com/shoptaongon/taobot/internal/health"
	"github.com/shoptaongon/taobot/internal/session"
)

// DefaultThreshold is the turn count above which a conversation is compacted.
const DefaultThreshold = 30

const (
	summarizerSystem = "You are a helpful assistant efficiently summarizing conversation logs."
	summarizePrompt  = "Summarize the following conversation between a customer and a sales assistant in two to three sentences. " +
		"Capture only the customer's intent and any preferences they stated (products, budget, colors, storage). " +
		"Do not include greetings or tool output details.\n\n"
)

var errEmptySummary = errors.New("empty summary")

// SessionStore is the part of session.Store the compactor needs.
type SessionStore interface {
	GetOrCreate(id string, factory session.PreambleFactory) *session.Conversation
	Reset(id string)
}

// Compactor replaces long conversations with a fresh one whose preamble
// carries a short summary of the old history.
type Compactor struct {
	Client    core.LLMClient
	Sessions  SessionStore
	Threshold int
	Logger    zerolog.Logger

	health health.Tracker
}

func NewCompactor(client core.LLMClient, sessions SessionStore, threshold int, logger zerolog.Logger) *Compactor {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Compactor{Client: client, Sessions: sessions, Threshold: threshold, Logger: logger}
}

// NeedsCompaction reports whether conv has grown past the threshold.
func (c *Compactor) NeedsCompaction(conv *session.Conversation) bool {
	return conv.TurnCount() > c.Threshold
}

// Compact summarizes conv when it exceeds the threshold and reseeds the
// session with the summary threaded into a new preamble built by factory.
// A nil factory makes the summary itself the preamble.
// It returns the conversation to continue with and whether compaction ran.
// On failure the original conversation is returned unchanged; the caller
// must hold the session lock.
func (c *Compactor) Compact(ctx context.Context, id string, conv *session.Conversation, factory session.PreambleFactory) (*session.Conversation, bool) {
	if !c.NeedsCompaction(conv) {
		return conv, false
	}
	turns := conv.Turns()
	log := c.Logger.With().Str("session_id", id).Int("turns", len(turns)).Logger()

	summary, err := c.summarize(ctx, turns)
	if err != nil {
		c.health.RecordError(err)
		log.Warn().Err(err).Msg("compaction failed, keeping full history")
		return conv, false
	}
	c.health.RecordSuccess()

	c.Sessions.Reset(id)
	fresh := c.Sessions.GetOrCreate(id, func(profile *session.Profile, _ string) string {
		if factory == nil {
			return summary
		}
		return factory(profile, summary)
	})
	log.Info().Int("summary_len", len(summary)).Msg("conversation compacted")
	return fresh, true
}

func (c *Compactor) summarize(ctx context.Context, turns []core.Turn) (string, error) {
	resp, err := c.Client.Complete(ctx, core.Request{
		System: summarizerSystem,
		Turns:  []core.Turn{core.UserTurn(summarizePrompt + core.Transcript(turns))},
	})
	if err != nil {
		return "", err
	}
	summary := strings.TrimSpace(resp.Text)
	if summary == "" {
		return "", errEmptySummary
	}
	return summary, nil
}

// HealthCheck reports the outcome of recent compactions.
func (c *Compactor) HealthCheck() health.ComponentHealth {
	return c.health.Check("compactor")
}
