package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/shoptaongon/taobot/internal/agent"
	"github.com/shoptaongon/taobot/internal/health"
	"github.com/shoptaongon/taobot/internal/session"
)

const (
	maxBodySize     = 64 * 1024
	shutdownTimeout = 5 * time.Second
)

// ProfileSetter records a profile for sessions created afterwards.
type ProfileSetter interface {
	Set(sessionID string, p session.Profile)
}

// Server serves the chat and health endpoints.
type Server struct {
	Addr     string
	Chat     ChatService
	Health   *health.Registry
	Profiles ProfileSetter // optional
	Logger   zerolog.Logger
}

type chatRequest struct {
	SessionID string           `json:"session_id"`
	Message   string           `json:"message"`
	Profile   *session.Profile `json:"profile,omitempty"`
}

type chatResponse struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
}

type resetRequest struct {
	SessionID string `json:"session_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) Name() string { return "http" }

// Handler returns the routed handler with panic recovery.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("POST /chat/stream", s.handleChatStream)
	mux.HandleFunc("POST /session/reset", s.handleReset)
	return s.recoverer(mux)
}

// Start listens on Addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Logger.Info().Str("addr", s.Addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.Logger.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("handler panicked")
				writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.Health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": health.StatusOK})
		return
	}
	report := s.Health.Check()
	status := http.StatusOK
	if report.Status == health.StatusError {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChat(w, r)
	if !ok {
		return
	}
	reply, err := s.Chat.SendMessage(r.Context(), req.SessionID, req.Message)
	if err != nil {
		s.writeChatError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{SessionID: req.SessionID, Reply: reply})
}

// handleChatStream answers with text/event-stream: one data event per
// fragment, then a done event carrying the session id.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChat(w, r)
	if !ok {
		return
	}
	flusher, _ := w.(http.Flusher)

	started := false
	start := func() {
		if started {
			return
		}
		started = true
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
	}

	err := s.Chat.StreamMessage(r.Context(), req.SessionID, req.Message, func(chunk string) {
		start()
		writeEvent(w, "", map[string]string{"delta": chunk})
		if flusher != nil {
			flusher.Flush()
		}
	})
	if err != nil && !started {
		s.writeChatError(w, err)
		return
	}
	start()
	if err != nil {
		writeEvent(w, "error", errorResponse{Error: err.Error()})
	}
	writeEvent(w, "done", map[string]string{"session_id": req.SessionID})
	if flusher != nil {
		flusher.Flush()
	}
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if req.SessionID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: agent.ErrNoSession.Error()})
		return
	}
	s.Chat.ResetSession(req.SessionID)
	w.WriteHeader(http.StatusNoContent)
}

// decodeChat parses and validates a chat request, allocating a session id
// when the client has none. It writes the error response itself.
func (s *Server) decodeChat(w http.ResponseWriter, r *http.Request) (chatRequest, bool) {
	var req chatRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return req, false
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: agent.ErrEmptyMessage.Error()})
		return req, false
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
		s.Logger.Debug().Str("session_id", req.SessionID).Msg("allocated session")
	}
	if req.Profile != nil && s.Profiles != nil {
		s.Profiles.Set(req.SessionID, *req.Profile)
	}
	return req, true
}

func (s *Server) writeChatError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, agent.ErrEmptyMessage), errors.Is(err, agent.ErrNoSession):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		s.Logger.Error().Err(err).Msg("chat failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return fmt.Errorf("reading body: %w", err)
	}
	if len(body) > maxBodySize {
		return errors.New("request body too large")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeEvent(w io.Writer, event string, v any) {
	data, _ := json.Marshal(v)
	if event != "" {
		fmt.Fprintf(w, "event: %s\n", event)
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}
