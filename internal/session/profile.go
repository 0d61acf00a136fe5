package session

import (
	"strings"
	"sync"
)

// Profile is optional end-user information threaded into the preamble.
type Profile struct {
	Name        string   `json:"name,omitempty"`
	Preferences []string `json:"preferences,omitempty"`
	Notes       string   `json:"notes,omitempty"`
}

// Empty reports whether the profile carries nothing worth telling the model.
func (p Profile) Empty() bool {
	return strings.TrimSpace(p.Name) == "" && len(p.Preferences) == 0 && strings.TrimSpace(p.Notes) == ""
}

// ProfileSource resolves the profile for a session, if any.
type ProfileSource interface {
	Profile(sessionID string) (Profile, bool)
}

// StaticProfiles is an in-memory ProfileSource. Fallback, when set, applies
// to sessions without a specific entry.
type StaticProfiles struct {
	mu       sync.RWMutex
	byID     map[string]Profile
	Fallback *Profile
}

func NewStaticProfiles() *StaticProfiles {
	return &StaticProfiles{byID: make(map[string]Profile)}
}

// Set records the profile for sessionID. It only affects conversations
// created afterwards.
func (s *StaticProfiles) Set(sessionID string, p Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[sessionID] = p
}

func (s *StaticProfiles) Profile(sessionID string) (Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.byID[sessionID]; ok {
		return p, true
	}
	if s.Fallback != nil {
		return *s.Fallback, true
	}
	return Profile{}, false
}
