package assistant

import (
	"strings"

	"lifelog/internal/storage"
)

const (
	apologyReply  = "Sorry, I couldn't come up with a reply just now. Your message has been saved."
	revokedSuffix = " (Revoked)"
)

// buildChatPrompt renders the filtered history as "User:" lines and,
// unless regenerating, appends the new message as the final line. The
// persona block travels separately as the system prompt.
func buildChatPrompt(history []storage.Message, newMessage string, isRegeneration bool) string {
	var b strings.Builder
	for _, m := range history {
		b.WriteString("User: ")
		b.WriteString(m.Text)
		b.WriteString("\n")
	}
	if !isRegeneration && newMessage != "" {
		b.WriteString("User: ")
		b.WriteString(newMessage)
		b.WriteString("\n")
	}
	b.WriteString("You:")
	return b.String()
}
