package llm

// Roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single message in a completion request.
type Message struct {
	// Role is one of RoleSystem, RoleUser or RoleAssistant.
	Role string

	// Content is the text content of the message.
	Content string
}

// ModelCapabilities describes what a model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum number of tokens generated in one
	// completion.
	MaxOutputTokens int

	// SupportsJSONMode reports whether the model reliably follows an
	// instruction to answer with a single JSON object.
	SupportsJSONMode bool
}
