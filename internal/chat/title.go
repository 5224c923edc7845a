package chat

const (
	placeholderTitle = "New Conversation"
	titleRuneLimit   = 50
)

// DeriveTitle produces a conversation title from the first user message.
// Kept as a pure function so it can be tested without a Manager.
func DeriveTitle(content string) string {
	runes := []rune(content)
	if len(runes) <= titleRuneLimit {
		return content
	}
	return string(runes[:titleRuneLimit]) + "..."
}
