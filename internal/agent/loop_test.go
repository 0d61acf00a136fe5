package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoptaongon/taobot/internal/core"
	"github.com/shoptaongon/taobot/internal/memory"
	"github.com/shoptaongon/taobot/internal/session"
	"github.com/shoptaongon/taobot/internal/tools"
)

// scripted is one canned model reply. For Complete, resp/err are used; for
// Stream, events are yielded in order followed by streamErr (io.EOF when nil).
type scripted struct {
	resp      *core.Response
	err       error
	events    []core.StreamEvent
	streamErr error
}

type fakeClient struct {
	mu       sync.Mutex
	script   []scripted
	requests []core.Request
}

func (f *fakeClient) next(req core.Request) scripted {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if len(f.script) == 0 {
		return scripted{err: errors.New("unexpected model call")}
	}
	s := f.script[0]
	f.script = f.script[1:]
	return s
}

func (f *fakeClient) Complete(ctx context.Context, req core.Request) (*core.Response, error) {
	s := f.next(req)
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

func (f *fakeClient) Stream(ctx context.Context, req core.Request) (core.Stream, error) {
	s := f.next(req)
	if s.err != nil {
		return nil, s.err
	}
	return &fakeStream{events: s.events, err: s.streamErr}, nil
}

func (f *fakeClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeStream struct {
	events []core.StreamEvent
	err    error
	closed bool
}

func (s *fakeStream) Next() (core.StreamEvent, error) {
	if len(s.events) > 0 {
		ev := s.events[0]
		s.events = s.events[1:]
		return ev, nil
	}
	if s.err != nil {
		return core.StreamEvent{}, s.err
	}
	return core.StreamEvent{}, io.EOF
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

type recordingExecutor struct {
	mu     sync.Mutex
	calls  []core.ToolCall
	result core.ToolResult
}

func (r *recordingExecutor) Execute(ctx context.Context, call core.ToolCall) core.ToolResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
	if r.result == nil {
		return core.ToolResult{"ok": true}
	}
	return r.result
}

func text(s string) scripted {
	return scripted{resp: &core.Response{Text: s}}
}

func toolRequest(calls ...core.ToolCall) scripted {
	return scripted{resp: &core.Response{ToolCalls: calls}}
}

func findProducts(query string) core.ToolCall {
	return core.ToolCall{ID: "call_1", Name: "find_products", Arguments: map[string]any{"query": query}}
}

func newLoop(client core.LLMClient, exec core.ToolExecutor) *Loop {
	return &Loop{
		Client:   client,
		Sessions: session.NewStore(nil),
		Executor: exec,
		Tools:    tools.DefaultRegistry().Specs(),
		Preamble: NewPreamble(GeneratePersona("", "")),
		Logger:   zerolog.Nop(),
	}
}

func storeServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func httpExecutor(t *testing.T, baseURL string) core.ToolExecutor {
	t.Helper()
	exec, err := tools.NewExecutor(tools.DefaultRegistry(), baseURL, time.Second, zerolog.Nop())
	require.NoError(t, err)
	return exec
}

func TestSendMessage_PlainReply(t *testing.T) {
	client := &fakeClient{script: []scripted{text("Hello! How can I help?")}}
	l := newLoop(client, &recordingExecutor{})

	reply, err := l.SendMessage(context.Background(), "s1", "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello! How can I help?", reply)

	conv, ok := l.Sessions.Get("s1")
	require.True(t, ok)
	turns := conv.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, core.UserTurn("hi"), turns[0])
	assert.Equal(t, core.AssistantTurn("Hello! How can I help?"), turns[1])

	require.Len(t, client.requests, 1)
	assert.Contains(t, client.requests[0].System, "Táo")
	assert.Len(t, client.requests[0].Tools, len(tools.Catalog()))
}

func TestSendMessage_IPhonePriceLookup(t *testing.T) {
	srv := storeServer(t, http.StatusOK, `{"products":[{"name":"iPhone 15","price":"22.990.000₫"}]}`)
	client := &fakeClient{script: []scripted{
		toolRequest(findProducts("iPhone 15")),
		text("The iPhone 15 is 22.990.000₫."),
	}}
	l := newLoop(client, httpExecutor(t, srv.URL))

	reply, err := l.SendMessage(context.Background(), "s1", "How much is the iPhone 15?")
	require.NoError(t, err)
	assert.Contains(t, reply, "22.990.000₫")

	require.Len(t, client.requests, 2)
	followUp := client.requests[1].Turns
	require.Len(t, followUp, 2)
	assert.Equal(t, core.RoleTool, followUp[1].Role)
	assert.Equal(t, "find_products", followUp[1].ToolCall.Name)
	assert.Contains(t, followUp[1].Content, "22.990.000₫")

	conv, _ := l.Sessions.Get("s1")
	roles := []core.Role{}
	for _, turn := range conv.Turns() {
		roles = append(roles, turn.Role)
	}
	assert.Equal(t, []core.Role{core.RoleUser, core.RoleTool, core.RoleAssistant}, roles)
}

func TestSendMessage_ToolHTTPErrorReachesModel(t *testing.T) {
	srv := storeServer(t, http.StatusInternalServerError, `boom`)
	client := &fakeClient{script: []scripted{
		toolRequest(core.ToolCall{ID: "c", Name: "check_order_status", Arguments: map[string]any{"order_id": "TN-1"}}),
		text("Sorry, I couldn't look up your order right now."),
	}}
	l := newLoop(client, httpExecutor(t, srv.URL))

	reply, err := l.SendMessage(context.Background(), "s1", "Where is order TN-1?")
	require.NoError(t, err)
	assert.Equal(t, "Sorry, I couldn't look up your order right now.", reply)

	toolTurn := client.requests[1].Turns[1]
	msg, failed := toolTurn.ToolResult.Error()
	require.True(t, failed)
	assert.True(t, strings.HasPrefix(msg, "HTTP 500"))
}

func TestSendMessage_NotConfigured(t *testing.T) {
	exec := &recordingExecutor{}
	l := newLoop(nil, exec)

	reply, err := l.SendMessage(context.Background(), "s1", "hi")
	require.NoError(t, err)
	assert.Equal(t, ConfigurationMessage, reply)

	var chunks []string
	require.NoError(t, l.StreamMessage(context.Background(), "s1", "hi", func(s string) { chunks = append(chunks, s) }))
	assert.Equal(t, []string{ConfigurationMessage}, chunks)

	assert.Zero(t, l.Sessions.Len())
	assert.Empty(t, exec.calls)
	assert.Equal(t, "error", l.HealthCheck().Status)
}

func TestSendMessage_ModelErrorReturnsFallback(t *testing.T) {
	client := &fakeClient{script: []scripted{{err: errors.New("HTTP 503")}}}
	l := newLoop(client, &recordingExecutor{})

	reply, err := l.SendMessage(context.Background(), "s1", "hi")
	require.NoError(t, err)
	assert.Equal(t, FallbackMessage, reply)

	conv, _ := l.Sessions.Get("s1")
	assert.Equal(t, []core.Turn{core.UserTurn("hi")}, conv.Turns())
}

func TestSendMessage_FollowUpErrorKeepsToolTurn(t *testing.T) {
	client := &fakeClient{script: []scripted{
		toolRequest(findProducts("iPad")),
		{err: errors.New("connection reset")},
	}}
	l := newLoop(client, &recordingExecutor{})

	reply, err := l.SendMessage(context.Background(), "s1", "iPad?")
	require.NoError(t, err)
	assert.Equal(t, FallbackMessage, reply)

	conv, _ := l.Sessions.Get("s1")
	turns := conv.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, core.RoleTool, turns[1].Role)
}

func TestSendMessage_FirstToolWins(t *testing.T) {
	exec := &recordingExecutor{}
	client := &fakeClient{script: []scripted{
		toolRequest(findProducts("iPhone"), core.ToolCall{ID: "call_2", Name: "list_promotions"}),
		text("done"),
	}}
	l := newLoop(client, exec)

	_, err := l.SendMessage(context.Background(), "s1", "deals on iPhone?")
	require.NoError(t, err)
	require.Len(t, exec.calls, 1)
	assert.Equal(t, "find_products", exec.calls[0].Name)
}

func TestSendMessage_SecondToolRequestNotExecuted(t *testing.T) {
	exec := &recordingExecutor{}
	client := &fakeClient{script: []scripted{
		toolRequest(findProducts("Mac")),
		{resp: &core.Response{Text: "Here is what I found.", ToolCalls: []core.ToolCall{{Name: "list_promotions"}}}},
	}}
	l := newLoop(client, exec)

	reply, err := l.SendMessage(context.Background(), "s1", "Mac?")
	require.NoError(t, err)
	assert.Equal(t, "Here is what I found.", reply)
	assert.Len(t, exec.calls, 1)
	assert.Equal(t, 2, client.calls())
}

func TestSendMessage_SecondToolRequestWithoutTextFallsBack(t *testing.T) {
	client := &fakeClient{script: []scripted{
		toolRequest(findProducts("Mac")),
		toolRequest(core.ToolCall{Name: "list_promotions"}),
	}}
	l := newLoop(client, &recordingExecutor{})

	reply, err := l.SendMessage(context.Background(), "s1", "Mac?")
	require.NoError(t, err)
	assert.Equal(t, FallbackMessage, reply)

	conv, _ := l.Sessions.Get("s1")
	assert.Equal(t, 2, conv.TurnCount())
}

func TestSendMessage_AssignsMissingCallID(t *testing.T) {
	exec := &recordingExecutor{}
	client := &fakeClient{script: []scripted{
		toolRequest(core.ToolCall{Name: "list_promotions"}),
		text("ok"),
	}}
	l := newLoop(client, exec)

	_, err := l.SendMessage(context.Background(), "s1", "promos?")
	require.NoError(t, err)
	require.Len(t, exec.calls, 1)
	assert.True(t, strings.HasPrefix(exec.calls[0].ID, "call_"))
}

func TestSendMessage_InvalidInput(t *testing.T) {
	l := newLoop(&fakeClient{}, &recordingExecutor{})

	_, err := l.SendMessage(context.Background(), "s1", "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	_, err = l.SendMessage(context.Background(), "", "hi")
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Zero(t, l.Sessions.Len())
}

func TestStreamMessage_ConcatenationMatchesRecordedTurn(t *testing.T) {
	client := &fakeClient{script: []scripted{{events: []core.StreamEvent{{Text: "Hel"}, {Text: "lo "}, {Text: "there"}}}}}
	l := newLoop(client, &recordingExecutor{})

	var chunks []string
	require.NoError(t, l.StreamMessage(context.Background(), "s1", "hi", func(s string) { chunks = append(chunks, s) }))

	assert.Equal(t, []string{"Hel", "lo ", "there"}, chunks)
	conv, _ := l.Sessions.Get("s1")
	turns := conv.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, strings.Join(chunks, ""), turns[1].Content)
}

func TestStreamMessage_ToolRound(t *testing.T) {
	exec := &recordingExecutor{result: core.ToolResult{"products": []any{"iPhone 15"}}}
	client := &fakeClient{script: []scripted{
		{events: []core.StreamEvent{{Text: "Let me check. "}, {ToolCalls: []core.ToolCall{findProducts("iPhone 15")}}, {Text: "never seen"}}},
		{events: []core.StreamEvent{{Text: "It is "}, {Text: "22.990.000₫."}}},
	}}
	l := newLoop(client, exec)

	var chunks []string
	require.NoError(t, l.StreamMessage(context.Background(), "s1", "iPhone 15 price?", func(s string) { chunks = append(chunks, s) }))

	assert.Equal(t, []string{"Let me check. ", "It is ", "22.990.000₫."}, chunks)
	require.Len(t, exec.calls, 1)

	conv, _ := l.Sessions.Get("s1")
	turns := conv.Turns()
	require.Len(t, turns, 3)
	assert.Equal(t, core.RoleTool, turns[1].Role)
	assert.Equal(t, "Let me check. It is 22.990.000₫.", turns[2].Content)
}

func TestStreamMessage_ErrorMidStream(t *testing.T) {
	client := &fakeClient{script: []scripted{{events: []core.StreamEvent{{Text: "par"}}, streamErr: errors.New("stream broke")}}}
	l := newLoop(client, &recordingExecutor{})

	var chunks []string
	require.NoError(t, l.StreamMessage(context.Background(), "s1", "hi", func(s string) { chunks = append(chunks, s) }))

	assert.Equal(t, []string{"par", FallbackMessage}, chunks)
	conv, _ := l.Sessions.Get("s1")
	assert.Equal(t, 1, conv.TurnCount())
}

func TestStreamMessage_OpenErrorAfterTool(t *testing.T) {
	client := &fakeClient{script: []scripted{
		{events: []core.StreamEvent{{ToolCalls: []core.ToolCall{findProducts("AirPods")}}}},
		{err: errors.New("HTTP 429")},
	}}
	l := newLoop(client, &recordingExecutor{})

	var chunks []string
	require.NoError(t, l.StreamMessage(context.Background(), "s1", "AirPods?", func(s string) { chunks = append(chunks, s) }))

	assert.Equal(t, []string{FallbackMessage}, chunks)
	conv, _ := l.Sessions.Get("s1")
	turns := conv.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, core.RoleTool, turns[1].Role)
}

func TestStreamMessage_EmptyReplyFallsBack(t *testing.T) {
	client := &fakeClient{script: []scripted{{}}}
	l := newLoop(client, &recordingExecutor{})

	var chunks []string
	require.NoError(t, l.StreamMessage(context.Background(), "s1", "hi", func(s string) { chunks = append(chunks, s) }))
	assert.Equal(t, []string{FallbackMessage}, chunks)
}

func TestStreamMessage_WhitespaceReplyRecordedAsDelivered(t *testing.T) {
	client := &fakeClient{script: []scripted{{events: []core.StreamEvent{{Text: "  "}, {Text: "\n"}}}}}
	l := newLoop(client, &recordingExecutor{})

	var delivered strings.Builder
	require.NoError(t, l.StreamMessage(context.Background(), "s1", "hi", func(s string) { delivered.WriteString(s) }))
	assert.Equal(t, "  \n", delivered.String())

	conv, _ := l.Sessions.Get("s1")
	turns := conv.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, core.AssistantTurn(delivered.String()), turns[1])
}

func TestStreamMessage_EmptyReplyNotRecorded(t *testing.T) {
	client := &fakeClient{script: []scripted{{}}}
	l := newLoop(client, &recordingExecutor{})

	require.NoError(t, l.StreamMessage(context.Background(), "s1", "hi", func(string) {}))
	conv, _ := l.Sessions.Get("s1")
	assert.Equal(t, []core.Turn{core.UserTurn("hi")}, conv.Turns())
}

func fillConversation(conv *session.Conversation, n int) {
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			conv.Append(core.UserTurn(fmt.Sprintf("q%d", i)))
		} else {
			conv.Append(core.AssistantTurn(fmt.Sprintf("a%d", i)))
		}
	}
}

func TestSendMessage_CompactsAboveThreshold(t *testing.T) {
	client := &fakeClient{script: []scripted{
		text("Customer is comparing iPhone models and prefers 256GB."),
		text("Sure!"),
	}}
	l := newLoop(client, &recordingExecutor{})
	l.Compactor = memory.NewCompactor(client, l.Sessions, memory.DefaultThreshold, zerolog.Nop())
	fillConversation(l.Sessions.GetOrCreate("s1", l.Preamble), memory.DefaultThreshold+1)

	reply, err := l.SendMessage(context.Background(), "s1", "And the Pro?")
	require.NoError(t, err)
	assert.Equal(t, "Sure!", reply)
	assert.Equal(t, 2, client.calls())

	answerReq := client.requests[1]
	assert.Contains(t, answerReq.System, "prefers 256GB")
	require.Len(t, answerReq.Turns, 1)
	assert.Equal(t, "And the Pro?", answerReq.Turns[0].Content)

	conv, _ := l.Sessions.Get("s1")
	assert.Equal(t, 2, conv.TurnCount())
}

func TestSendMessage_NoCompactionAtThreshold(t *testing.T) {
	client := &fakeClient{script: []scripted{text("Sure!")}}
	l := newLoop(client, &recordingExecutor{})
	l.Compactor = memory.NewCompactor(client, l.Sessions, memory.DefaultThreshold, zerolog.Nop())
	fillConversation(l.Sessions.GetOrCreate("s1", l.Preamble), memory.DefaultThreshold)

	_, err := l.SendMessage(context.Background(), "s1", "And the Pro?")
	require.NoError(t, err)
	assert.Equal(t, 1, client.calls())

	conv, _ := l.Sessions.Get("s1")
	assert.Equal(t, memory.DefaultThreshold+2, conv.TurnCount())
}

func TestSendMessage_CompactionFailureStillAnswers(t *testing.T) {
	client := &fakeClient{script: []scripted{
		{err: errors.New("summary failed")},
		text("Sure!"),
	}}
	l := newLoop(client, &recordingExecutor{})
	l.Compactor = memory.NewCompactor(client, l.Sessions, memory.DefaultThreshold, zerolog.Nop())
	fillConversation(l.Sessions.GetOrCreate("s1", l.Preamble), memory.DefaultThreshold+1)

	reply, err := l.SendMessage(context.Background(), "s1", "And the Pro?")
	require.NoError(t, err)
	assert.Equal(t, "Sure!", reply)

	conv, _ := l.Sessions.Get("s1")
	assert.Equal(t, memory.DefaultThreshold+3, conv.TurnCount())
}

func TestResetSession(t *testing.T) {
	client := &fakeClient{script: []scripted{text("one"), text("two")}}
	l := newLoop(client, &recordingExecutor{})

	_, err := l.SendMessage(context.Background(), "s1", "first")
	require.NoError(t, err)
	l.ResetSession("s1")
	_, err = l.SendMessage(context.Background(), "s1", "second")
	require.NoError(t, err)

	assert.Len(t, client.requests[1].Turns, 1)
}

func TestSendMessage_SameSessionSerialized(t *testing.T) {
	const n = 10
	script := make([]scripted, n)
	for i := range script {
		script[i] = text("ok")
	}
	client := &fakeClient{script: script}
	l := newLoop(client, &recordingExecutor{})

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = l.SendMessage(context.Background(), "shared", fmt.Sprintf("m%d", i))
		}(i)
	}
	wg.Wait()

	conv, _ := l.Sessions.Get("shared")
	turns := conv.Turns()
	require.Len(t, turns, 2*n)
	for i := 0; i < len(turns); i += 2 {
		assert.Equal(t, core.RoleUser, turns[i].Role)
		assert.Equal(t, core.RoleAssistant, turns[i+1].Role)
	}
}

type panickingClient struct{}

func (panickingClient) Complete(context.Context, core.Request) (*core.Response, error) {
	panic("summarizer exploded")
}

func (panickingClient) Stream(context.Context, core.Request) (core.Stream, error) {
	panic("summarizer exploded")
}

func TestSendMessage_CompactsWithoutPreambleFactory(t *testing.T) {
	client := &fakeClient{script: []scripted{
		text("Customer wants a MacBook under 30 million."),
		text("Here are some options."),
	}}
	l := newLoop(client, &recordingExecutor{})
	l.Preamble = nil
	l.Compactor = memory.NewCompactor(client, l.Sessions, 2, zerolog.Nop())
	fillConversation(l.Sessions.GetOrCreate("s1", nil), 3)

	reply, err := l.SendMessage(context.Background(), "s1", "Any student discount?")
	require.NoError(t, err)
	assert.Equal(t, "Here are some options.", reply)

	conv, _ := l.Sessions.Get("s1")
	assert.Equal(t, "Customer wants a MacBook under 30 million.", conv.Preamble())
	assert.Equal(t, 2, conv.TurnCount())
}

func TestSendMessage_PanicReleasesSessionLock(t *testing.T) {
	l := newLoop(&fakeClient{}, &recordingExecutor{})
	l.Compactor = memory.NewCompactor(panickingClient{}, l.Sessions, 2, zerolog.Nop())
	fillConversation(l.Sessions.GetOrCreate("s1", l.Preamble), 3)

	assert.PanicsWithValue(t, "summarizer exploded", func() {
		_, _ = l.SendMessage(context.Background(), "s1", "hello")
	})

	done := make(chan struct{})
	go func() {
		l.ResetSession("s1")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session lock still held after panic")
	}
	_, ok := l.Sessions.Get("s1")
	assert.False(t, ok)
}

func TestSendMessage_ModelFailureLoggedAsFailed(t *testing.T) {
	var logs strings.Builder
	l := newLoop(&fakeClient{script: []scripted{{err: errors.New("503 from provider")}}}, &recordingExecutor{})
	l.Logger = zerolog.New(&logs)

	reply, err := l.SendMessage(context.Background(), "s1", "hello")
	require.NoError(t, err)
	assert.Equal(t, FallbackMessage, reply)
	assert.Contains(t, logs.String(), `"state":"FAILED"`)
	assert.Contains(t, logs.String(), `"failed_in":"AWAIT_MODEL"`)
}
