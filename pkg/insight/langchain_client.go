package insight

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// LangChainClient implements StreamClient on top of LangChain Go's Ollama
// provider. It is the alternative to the native Client for deployments that
// reach the model through LangChain instead of the raw chat endpoint.
type LangChainClient struct {
	llm     llms.Model
	baseURL string
	model   string
}

// NewLangChainClient creates a LangChain-backed insight client.
func NewLangChainClient(baseURL, model string) (*LangChainClient, error) {
	var opts []ollama.Option
	if baseURL != "" {
		opts = append(opts, ollama.WithServerURL(baseURL))
	}
	if model != "" {
		opts = append(opts, ollama.WithModel(model))
	}

	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create LangChain Ollama client: %w", err)
	}

	return &LangChainClient{
		llm:     llm,
		baseURL: baseURL,
		model:   model,
	}, nil
}

// Analyze implements StreamClient using LangChain Go's streaming callback.
func (lc *LangChainClient) Analyze(ctx context.Context, req Request, onUpdate UpdateFunc) (Analysis, error) {
	messages := make([]llms.MessageContent, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messageType := llms.ChatMessageTypeHuman
		switch msg.Role {
		case RoleSystem:
			messageType = llms.ChatMessageTypeSystem
		case RoleAssistant:
			messageType = llms.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(messageType, msg.Content))
	}

	var accumulated strings.Builder
	streamingFunc := func(ctx context.Context, chunk []byte) error {
		accumulated.Write(chunk)
		if onUpdate != nil {
			onUpdate(accumulated.String())
		}
		return ctx.Err()
	}

	response, err := lc.llm.GenerateContent(ctx, messages, llms.WithStreamingFunc(streamingFunc))
	if err != nil {
		return Analysis{}, err
	}

	final := accumulated.String()
	// Some providers skip streaming entirely; fall back to the response.
	if final == "" && len(response.Choices) > 0 {
		final = response.Choices[0].Content
		if onUpdate != nil && final != "" {
			onUpdate(final)
		}
	}

	return Analysis{
		ID:        uuid.NewString(),
		Model:     req.Model,
		Text:      final,
		CreatedAt: time.Now(),
	}, nil
}

// Verify interface compliance
var _ StreamClient = (*LangChainClient)(nil)
