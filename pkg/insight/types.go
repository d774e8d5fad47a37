// Package insight requests AI-generated market analysis from a
// chat-completion style endpoint and assembles the streamed response into a
// continuously-updated text value.
package insight

import (
	"context"
	"time"
)

// Message roles understood by the chat endpoint.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat message in a request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the chat-completion payload sent to the endpoint.
type Request struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

// Analysis is one completed insight: the final assembled text plus the raw
// line log kept for diagnostics.
type Analysis struct {
	ID        string
	Model     string
	Text      string
	RawLog    []string
	CreatedAt time.Time
}

// UpdateFunc receives the growing accumulated text while a response streams.
type UpdateFunc func(accumulated string)

// StreamClient generates an analysis for a request, reporting intermediate
// accumulated text through onUpdate. Implementations must treat context
// cancellation as an abort, not a failure.
type StreamClient interface {
	Analyze(ctx context.Context, req Request, onUpdate UpdateFunc) (Analysis, error)
}

// NewUserRequest builds a single-turn user request.
func NewUserRequest(model, prompt string) Request {
	return Request{
		Model:    model,
		Messages: []Message{{Role: RoleUser, Content: prompt}},
	}
}
