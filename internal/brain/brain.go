package brain

import "context"

// Message is one entry of the conversation passed to the completion model.
type Message struct {
	Role    string
	Content string
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Completer is the language-model completion capability. Implementations
// return the first choice's trimmed text.
type Completer interface {
	Complete(ctx context.Context, system string, history []Message) (string, error)
	Model() string
}
