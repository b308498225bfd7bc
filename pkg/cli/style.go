package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/haivivi/socratchat/pkg/chat"
	"github.com/haivivi/socratchat/pkg/voicechat"
)

// Theme defines the terminal colors.
type Theme struct {
	Primary lipgloss.Color // assistant and accents
	User    lipgloss.Color
	Warn    lipgloss.Color
	Dim     lipgloss.Color // hints and help text
}

// DefaultTheme is a parchment and laurel palette.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#d4a373"),
	User:    lipgloss.Color("#8ecae6"),
	Warn:    lipgloss.Color("#ffb703"),
	Dim:     lipgloss.Color("#6e7681"),
}

// Styles holds all styles derived from a theme.
type Styles struct {
	Assistant lipgloss.Style
	User      lipgloss.Style
	Advisory  lipgloss.Style
	Status    lipgloss.Style
	Help      lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Assistant: lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		User:      lipgloss.NewStyle().Bold(true).Foreground(t.User),
		Advisory:  lipgloss.NewStyle().Foreground(t.Warn),
		Status:    lipgloss.NewStyle().Foreground(t.Primary).Padding(0, 1),
		Help:      lipgloss.NewStyle().Foreground(t.Dim),
	}
}

// Message renders one chat line with a speaker label.
func (s Styles) Message(m chat.Message) string {
	label := s.Assistant.Render("Socrate")
	if m.Role == chat.RoleUser {
		label = s.User.Render("Vous")
	}
	text := m.Content
	if m.IsStreaming {
		text += s.Help.Render(" …")
	}
	return label + " " + text
}

// Notice renders a user-facing advisory.
func (s Styles) Notice(text string) string {
	return s.Advisory.Render(text)
}

// State renders a one-line summary of a voice session snapshot.
func (s Styles) State(st voicechat.Snapshot) string {
	var parts []string
	switch {
	case st.HandsFree:
		parts = append(parts, "mains libres", st.Mode.String())
	case st.VoiceActive:
		parts = append(parts, "voix active")
	}
	if st.Recording {
		parts = append(parts, "● rec")
	}
	if agent := st.Agent.String(); agent != "" {
		parts = append(parts, agent)
	}
	if st.SpeakReplies {
		parts = append(parts, "🔊")
	}
	if len(parts) == 0 {
		parts = append(parts, "prêt")
	}
	line := s.Status.Render("[" + strings.Join(parts, " · ") + "]")
	if st.Hint != "" {
		line += " " + s.Help.Render(st.Hint)
	}
	return line
}
