package ai

import (
	"regexp"
	"strings"

	"github.com/codeready-toolchain/lexi/pkg/models"
)

// MapHistory converts a transcript to backend messages. Repository change
// markers are UI-only and dropped; unknown types are sent as human messages.
func MapHistory(messages []models.ChatMessage) []models.AgentMessage {
	out := make([]models.AgentMessage, 0, len(messages))
	for _, m := range messages {
		switch {
		case m.Type == models.MessageTypeRepositoryChange:
			continue
		case m.Type == models.MessageTypeAI:
			out = append(out, models.AgentMessage{Type: models.RoleAI, Content: m.Content})
		case m.Sender == models.SenderSystem:
			out = append(out, models.AgentMessage{Type: models.RoleSystem, Content: m.Content})
		default:
			out = append(out, models.AgentMessage{Type: models.RoleHuman, Content: m.Content})
		}
	}
	return out
}

// LastAIMessage returns the content of the last ai message, or NoResponseOutput.
func LastAIMessage(output []models.AgentMessage) string {
	for i := len(output) - 1; i >= 0; i-- {
		if output[i].Type == models.RoleAI {
			return output[i].Content
		}
	}
	return NoResponseOutput
}

// Mention matches the token addressing the assistant, ignoring case.
// The zero value matches nothing.
type Mention struct {
	re *regexp.Regexp
}

// NewMention compiles token once for repeated matching.
func NewMention(token string) Mention {
	if token == "" {
		return Mention{}
	}
	return Mention{re: regexp.MustCompile(`(?i)` + regexp.QuoteMeta(token))}
}

// In reports whether content carries the mention.
func (m Mention) In(content string) bool {
	return m.re != nil && m.re.MatchString(content)
}

// Strip removes every occurrence of the mention and collapses whitespace.
func (m Mention) Strip(content string) string {
	if m.re != nil {
		content = m.re.ReplaceAllString(content, "")
	}
	return strings.Join(strings.Fields(content), " ")
}
