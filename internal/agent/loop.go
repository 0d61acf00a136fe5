package agent

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/shoptaongon/taobot/internal/core"
	"github.com/shoptaongon/taobot/internal/health"
	"github.com/shoptaongon/taobot/internal/memory"
	"github.com/shoptaongon/taobot/internal/session"
)

const (
	// ConfigurationMessage is returned for every message while no model backend is configured.
	ConfigurationMessage = "The AI assistant is not configured. Please set an API key and restart the application."
	// FallbackMessage replaces the reply whenever the model call fails.
	FallbackMessage = "Sorry, I seem to be having trouble connecting. Please try again in a moment."
)

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrNoSession    = errors.New("session id is empty")
)

// Loop is the conversation orchestrator. Each user message runs
// AWAIT_MODEL, at most one AWAIT_TOOL round, AWAIT_MODEL_FINAL and DONE,
// serialized per session. A nil Client is the NOT_CONFIGURED state.
type Loop struct {
	Client    core.LLMClient
	Sessions  *session.Store
	Executor  core.ToolExecutor
	Tools     []core.ToolSpec
	Compactor *memory.Compactor
	Preamble  session.PreambleFactory
	Logger    zerolog.Logger

	health health.Tracker
}

// Configured reports whether a model backend is available.
func (l *Loop) Configured() bool {
	return l.Client != nil
}

// SendMessage handles text in buffered mode and returns the assistant reply.
// Model failures are reported as FallbackMessage, never as an error.
func (l *Loop) SendMessage(ctx context.Context, sessionID, text string) (string, error) {
	if !l.Configured() {
		l.Logger.Warn().Str("session_id", sessionID).Str("state", string(StateNotConfigured)).Msg("message rejected")
		return ConfigurationMessage, nil
	}
	conv, log, unlock, err := l.begin(ctx, sessionID, text)
	if err != nil {
		return "", err
	}
	defer unlock()

	log.Debug().Str("state", string(StateAwaitModel)).Int("turns", conv.TurnCount()).Msg("calling model")
	resp, err := l.Client.Complete(ctx, conv.Request(l.Tools))
	if err != nil {
		return l.fail(log, StateAwaitModel, err), nil
	}

	reply := resp.Text
	if len(resp.ToolCalls) > 0 {
		l.runTool(ctx, log, conv, resp.ToolCalls)

		log.Debug().Str("state", string(StateAwaitModelFinal)).Msg("calling model with tool result")
		final, err := l.Client.Complete(ctx, conv.Request(l.Tools))
		if err != nil {
			return l.fail(log, StateAwaitModelFinal, err), nil
		}
		if len(final.ToolCalls) > 0 {
			log.Warn().Str("tool", final.ToolCalls[0].Name).Msg("ignoring tool request after tool round")
		}
		reply = final.Text
	}
	l.health.RecordSuccess()
	return l.finish(log, conv, reply), nil
}

// StreamMessage handles text in streaming mode. Fragments are passed to
// onChunk in generation order on the caller's goroutine; the recorded
// assistant turn is their concatenation. Failures are streamed as
// FallbackMessage.
func (l *Loop) StreamMessage(ctx context.Context, sessionID, text string, onChunk func(string)) error {
	if !l.Configured() {
		l.Logger.Warn().Str("session_id", sessionID).Str("state", string(StateNotConfigured)).Msg("message rejected")
		onChunk(ConfigurationMessage)
		return nil
	}
	conv, log, unlock, err := l.begin(ctx, sessionID, text)
	if err != nil {
		return err
	}
	defer unlock()

	var forwarded strings.Builder
	emit := func(s string) {
		forwarded.WriteString(s)
		onChunk(s)
	}

	log.Debug().Str("state", string(StateAwaitModel)).Int("turns", conv.TurnCount()).Msg("streaming model")
	calls, err := l.streamSegment(ctx, conv, emit)
	if err != nil {
		onChunk(l.fail(log, StateAwaitModel, err))
		return nil
	}

	if len(calls) > 0 {
		l.runTool(ctx, log, conv, calls)

		log.Debug().Str("state", string(StateAwaitModelFinal)).Msg("streaming model with tool result")
		again, err := l.streamSegment(ctx, conv, emit)
		if err != nil {
			onChunk(l.fail(log, StateAwaitModelFinal, err))
			return nil
		}
		if len(again) > 0 {
			log.Warn().Str("tool", again[0].Name).Msg("ignoring tool request after tool round")
		}
	}
	l.health.RecordSuccess()

	// The recorded turn is exactly what was delivered; only a reply that
	// delivered nothing is replaced.
	if forwarded.Len() == 0 {
		log.Warn().Str("state", string(StateDone)).Msg("model streamed no text")
		onChunk(FallbackMessage)
		return nil
	}
	conv.Append(core.AssistantTurn(forwarded.String()))
	log.Debug().Str("state", string(StateDone)).Int("reply_len", forwarded.Len()).Msg("message handled")
	return nil
}

// ResetSession discards the session's conversation. It waits for an
// in-flight message on the same session to finish.
func (l *Loop) ResetSession(sessionID string) {
	unlock := l.Sessions.Lock(sessionID)
	defer unlock()
	l.Sessions.Reset(sessionID)
	l.Logger.Info().Str("session_id", sessionID).Msg("session reset")
}

// HealthCheck reports recent model call outcomes.
func (l *Loop) HealthCheck() health.ComponentHealth {
	h := l.health.Check("llm")
	if !l.Configured() {
		h.Status = health.StatusError
		h.Message = "not configured"
	}
	return h
}

// begin validates input, takes the session lock, compacts if needed and
// records the user turn. The caller must call unlock.
func (l *Loop) begin(ctx context.Context, sessionID, text string) (*session.Conversation, zerolog.Logger, func(), error) {
	if sessionID == "" {
		return nil, l.Logger, nil, ErrNoSession
	}
	if strings.TrimSpace(text) == "" {
		return nil, l.Logger, nil, ErrEmptyMessage
	}
	log := l.Logger.With().Str("session_id", sessionID).Logger()

	unlock := l.Sessions.Lock(sessionID)
	defer func() {
		if r := recover(); r != nil {
			unlock()
			panic(r)
		}
	}()
	conv := l.Sessions.GetOrCreate(sessionID, l.Preamble)
	if l.Compactor != nil {
		var compacted bool
		if conv, compacted = l.Compactor.Compact(ctx, sessionID, conv, l.Preamble); compacted {
			log.Info().Msg("history compacted before message")
		}
	}
	conv.Append(core.UserTurn(text))
	return conv, log, unlock, nil
}

// runTool executes the first requested call and records the tool turn.
// Later calls in the same round are dropped.
func (l *Loop) runTool(ctx context.Context, log zerolog.Logger, conv *session.Conversation, calls []core.ToolCall) {
	call := calls[0]
	if len(calls) > 1 {
		log.Warn().Int("dropped", len(calls)-1).Msg("model requested several tools, running the first")
	}
	if call.ID == "" {
		call.ID = "call_" + session.NewID()
	}
	log.Info().Str("state", string(StateAwaitTool)).Str("tool", call.Name).Str("args", call.ArgumentsJSON()).Msg("running tool")

	var result core.ToolResult
	if l.Executor == nil {
		result = core.ErrorResult("tools unavailable")
	} else {
		result = l.Executor.Execute(ctx, call)
	}
	if result == nil {
		result = core.ToolResult{}
	}
	if msg, failed := result.Error(); failed {
		log.Warn().Str("tool", call.Name).Str("error", msg).Msg("tool returned error")
	}
	conv.Append(core.ToolTurn(call, result))
}

// streamSegment forwards text events until the stream ends or a tool call
// arrives, in which case the rest of the stream is discarded.
func (l *Loop) streamSegment(ctx context.Context, conv *session.Conversation, emit func(string)) ([]core.ToolCall, error) {
	stream, err := l.Client.Stream(ctx, conv.Request(l.Tools))
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	for {
		ev, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if ev.Text != "" {
			emit(ev.Text)
		}
		if len(ev.ToolCalls) > 0 {
			return ev.ToolCalls, nil
		}
	}
}

// finish records reply as the assistant turn. An empty reply is not
// recorded and is replaced with FallbackMessage.
func (l *Loop) finish(log zerolog.Logger, conv *session.Conversation, reply string) string {
	if strings.TrimSpace(reply) == "" {
		log.Warn().Str("state", string(StateDone)).Msg("model returned no text")
		return FallbackMessage
	}
	conv.Append(core.AssistantTurn(reply))
	log.Debug().Str("state", string(StateDone)).Int("reply_len", len(reply)).Msg("message handled")
	return reply
}

func (l *Loop) fail(log zerolog.Logger, state State, err error) string {
	l.health.RecordError(err)
	log.Error().Err(err).Str("state", string(StateFailed)).Str("failed_in", string(state)).Msg("model call failed")
	return FallbackMessage
}
