package session

import (
	"sync"

	"github.com/shoptaongon/taobot/internal/core"
)

// Conversation is the ordered turn history of one session plus the system
// preamble fixed at creation. Turns are append-only; compaction builds a new
// Conversation instead of editing this one.
type Conversation struct {
	id       string
	preamble string
	turns    []core.Turn
	mu       sync.RWMutex
}

// NewConversation returns an empty conversation with the given preamble.
func NewConversation(id, preamble string) *Conversation {
	return &Conversation{id: id, preamble: preamble}
}

func (c *Conversation) ID() string {
	return c.id
}

// Preamble is the system prompt: persona, optional profile, optional summary.
func (c *Conversation) Preamble() string {
	return c.preamble
}

// Append adds turns at the end of the history.
func (c *Conversation) Append(turns ...core.Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, turns...)
}

// Turns returns a copy of the history safe for the caller to keep.
func (c *Conversation) Turns() []core.Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()

	copied := make([]core.Turn, len(c.turns))
	for i, t := range c.turns {
		copied[i] = t
		if t.ToolCall != nil {
			call := *t.ToolCall
			copied[i].ToolCall = &call
		}
	}
	return copied
}

// TurnCount is the number of turns recorded so far.
func (c *Conversation) TurnCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.turns)
}

// Request assembles the model request for the current history.
func (c *Conversation) Request(tools []core.ToolSpec) core.Request {
	return core.Request{System: c.preamble, Turns: c.Turns(), Tools: tools}
}
