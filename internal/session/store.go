// Package session keeps conversations in memory, keyed by session id.
package session

import (
	"sync"

	"github.com/google/uuid"
)

// PreambleFactory builds the system preamble for a new conversation from the
// session's profile (nil when none) and a prior-conversation summary ("" when none).
type PreambleFactory func(profile *Profile, summary string) string

// Store maps session ids to conversations. It is safe for concurrent use;
// Lock provides the per-session serialization callers need across a whole
// message exchange.
type Store struct {
	mu       sync.RWMutex
	convs    map[string]*Conversation
	locks    map[string]*sync.Mutex
	profiles ProfileSource
}

// NewStore returns an empty store. profiles may be nil.
func NewStore(profiles ProfileSource) *Store {
	return &Store{
		convs:    make(map[string]*Conversation),
		locks:    make(map[string]*sync.Mutex),
		profiles: profiles,
	}
}

// NewID returns a fresh random session id.
func NewID() string {
	return uuid.NewString()
}

// GetOrCreate returns the conversation for id, creating it with factory when
// absent. Repeated calls return the same conversation.
func (s *Store) GetOrCreate(id string, factory PreambleFactory) *Conversation {
	s.mu.RLock()
	conv, ok := s.convs[id]
	s.mu.RUnlock()
	if ok {
		return conv
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok := s.convs[id]; ok {
		return conv
	}
	profile, _ := s.Profile(id)
	preamble := ""
	if factory != nil {
		preamble = factory(profile, "")
	}
	conv = NewConversation(id, preamble)
	s.convs[id] = conv
	return conv
}

// Get returns the conversation for id without creating one.
func (s *Store) Get(id string) (*Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.convs[id]
	return conv, ok
}

// Reset discards the conversation for id. Resetting an unknown id is a no-op.
func (s *Store) Reset(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.convs, id)
}

// Len is the number of live conversations.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.convs)
}

// Lock acquires the session's exclusive lock, waiting if another exchange on
// the same session is in flight. The returned func releases it. Locks outlive
// Reset so a reset cannot split two waiters onto different mutexes.
func (s *Store) Lock(id string) (unlock func()) {
	s.mu.Lock()
	m, ok := s.locks[id]
	if !ok {
		m = &sync.Mutex{}
		s.locks[id] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// Profile returns the profile configured for id, if any.
func (s *Store) Profile(id string) (*Profile, bool) {
	if s.profiles == nil {
		return nil, false
	}
	p, ok := s.profiles.Profile(id)
	if !ok || p.Empty() {
		return nil, false
	}
	return &p, true
}
