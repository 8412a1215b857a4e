package prompt

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/janhq/chat-stream-api/internal/domain/conversation"
)

// GenerationCue tells the model the next utterance is its own.
const GenerationCue = "Assistant:"

const turnSeparator = "\n\n"

// DefaultStopSequences keep the model from writing the user's next turn.
var DefaultStopSequences = []string{"\nUser:"}

// Build renders turns as "<Role>: <content>" blocks separated by blank lines.
// Unless the last turn is the assistant's, the generation cue is appended.
func Build(turns []conversation.Turn) string {
	var b strings.Builder
	for i, turn := range turns {
		if i > 0 {
			b.WriteString(turnSeparator)
		}
		b.WriteString(roleLabel(turn.Role))
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(turn.Content))
	}

	if len(turns) == 0 || turns[len(turns)-1].Role != conversation.RoleAssistant {
		if b.Len() > 0 {
			b.WriteString(turnSeparator)
		}
		b.WriteString(GenerationCue)
	}
	return b.String()
}

func roleLabel(role conversation.Role) string {
	name := strings.TrimSpace(string(role))
	if name == "" {
		return "User"
	}
	r, size := utf8.DecodeRuneInString(name)
	return string(unicode.ToUpper(r)) + strings.ToLower(name[size:])
}
