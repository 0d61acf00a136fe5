package agent

import (
	"strings"

	"github.com/shoptaongon/taobot/internal/session"
)

// NewPreamble returns a session.PreambleFactory that composes persona with
// the customer's profile and, after compaction, the prior-conversation summary.
func NewPreamble(persona string) session.PreambleFactory {
	return func(profile *session.Profile, summary string) string {
		return BuildPreamble(persona, profile, summary)
	}
}

// BuildPreamble assembles the system preamble.
func BuildPreamble(persona string, profile *session.Profile, summary string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(persona))

	if profile != nil && !profile.Empty() {
		b.WriteString("\n\n== CUSTOMER ==")
		if name := strings.TrimSpace(profile.Name); name != "" {
			b.WriteString("\n- Name: " + name)
		}
		for _, pref := range profile.Preferences {
			if pref = strings.TrimSpace(pref); pref != "" {
				b.WriteString("\n- Preference: " + pref)
			}
		}
		if notes := strings.TrimSpace(profile.Notes); notes != "" {
			b.WriteString("\n- Notes: " + notes)
		}
	}

	if summary = strings.TrimSpace(summary); summary != "" {
		b.WriteString("\n\n== EARLIER IN THIS CONVERSATION ==\n")
		b.WriteString(summary)
	}
	return b.String()
}
