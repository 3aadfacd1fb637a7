package llm

import "context"

// Message represents a conversation message.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Client defines the interface for LLM providers used as live text producers.
type Client interface {
	// CompleteStream generates a response to the conversation and streams it
	// as incremental text fragments through the returned channel. The channel
	// is closed when the completion ends or ctx is cancelled.
	CompleteStream(ctx context.Context, messages []Message) (<-chan string, error)
}
