package ui

import (
	"strings"

	"github.com/dsouza-anush/open-deep-research/internal/chat"
)

// welcomeMarkdown greets an empty conversation with starter queries.
const welcomeMarkdown = `# Deep Research

Ask a question and a background research job will gather sources and write a
report. Reports render here as formatted markdown.

Some starters:

- What are the latest breakthroughs in AI-powered medical diagnosis?
- Which carbon capture technologies are closest to commercial deployment?
- What is the current state of quantum computing hardware?
- How is the global electric vehicle market expected to shift over the next 3 years?
`

// BuildTranscriptMarkdown renders a conversation's message sequence as
// markdown, one section per message.
func BuildTranscriptMarkdown(c *chat.Conversation) string {
	var b strings.Builder
	for _, m := range c.Messages {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		switch m.Role {
		case chat.RoleUser:
			b.WriteString("## You\n\n")
		case chat.RoleAssistant:
			b.WriteString("## Researcher\n\n")
		default:
			b.WriteString("## " + m.Role + "\n\n")
		}
		b.WriteString(content + "\n\n")
	}
	return strings.TrimSpace(b.String()) + "\n"
}

// LatestReport returns the content of the most recent assistant message,
// or empty when the conversation has none.
func LatestReport(c *chat.Conversation) string {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == chat.RoleAssistant {
			return c.Messages[i].Content
		}
	}
	return ""
}
