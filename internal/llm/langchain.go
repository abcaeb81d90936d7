package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/cobi-dev0615/Montor.ia-sub000/internal/domain"
)

// LangChainCompleter drives any langchaingo chat model.
type LangChainCompleter struct {
	model       llms.Model
	temperature float64
	maxTokens   int
}

// NewLangChainCompleter wraps an existing model.
func NewLangChainCompleter(model llms.Model, temperature float64, maxTokens int) *LangChainCompleter {
	return &LangChainCompleter{model: model, temperature: temperature, maxTokens: maxTokens}
}

// NewOpenAI creates a completer for OpenAI-compatible endpoints.
func NewOpenAI(cfg Config) (*LangChainCompleter, error) {
	opts := []openai.Option{openai.WithToken(cfg.APIKey)}
	if cfg.Model != "" {
		opts = append(opts, openai.WithModel(cfg.Model))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	return NewLangChainCompleter(model, cfg.Temperature, cfg.MaxTokens), nil
}

// NewOllama creates a completer for a local Ollama server.
func NewOllama(cfg Config) (*LangChainCompleter, error) {
	opts := []ollama.Option{ollama.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
	}
	model, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}
	return NewLangChainCompleter(model, cfg.Temperature, cfg.MaxTokens), nil
}

// Complete implements Completer.
func (c *LangChainCompleter) Complete(ctx context.Context, history []domain.Message, systemPrompt string) (string, error) {
	messages := make([]llms.MessageContent, 0, len(history)+1)
	if systemPrompt != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt))
	}
	for _, m := range history {
		messages = append(messages, llms.TextParts(chatRole(m.Role), m.Content))
	}

	var opts []llms.CallOption
	if c.temperature > 0 {
		opts = append(opts, llms.WithTemperature(c.temperature))
	}
	if c.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(c.maxTokens))
	}

	resp, err := c.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", classify(err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", classify(ErrEmptyCompletion)
	}
	text := strings.TrimSpace(resp.Choices[0].Content)
	if text == "" {
		return "", classify(ErrEmptyCompletion)
	}
	return text, nil
}

func chatRole(r domain.Role) llms.ChatMessageType {
	switch r {
	case domain.RoleAssistant:
		return llms.ChatMessageTypeAI
	case domain.RoleSystem:
		return llms.ChatMessageTypeSystem
	default:
		return llms.ChatMessageTypeHuman
	}
}
