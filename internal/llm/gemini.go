package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/cobi-dev0615/Montor.ia-sub000/internal/domain"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiCompleter talks to the Gemini API through the genai SDK.
type GeminiCompleter struct {
	client      *genai.Client
	model       string
	temperature float64
	maxTokens   int
}

// NewGemini creates a Gemini completer.
func NewGemini(ctx context.Context, cfg Config) (*GeminiCompleter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiCompleter{client: client, model: model, temperature: cfg.Temperature, maxTokens: cfg.MaxTokens}, nil
}

// Complete implements Completer.
func (g *GeminiCompleter) Complete(ctx context.Context, history []domain.Message, systemPrompt string) (string, error) {
	contents := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		if m.Role == domain.RoleSystem {
			// Gemini only takes system text as the system instruction.
			continue
		}
		role := genai.Role(genai.RoleUser)
		if m.Role == domain.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	if len(contents) == 0 {
		return "", &Error{Kind: KindEmpty, Err: errors.New("no conversation to complete")}
	}

	cfg := &genai.GenerateContentConfig{}
	if systemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}
	if g.temperature > 0 {
		t := float32(g.temperature)
		cfg.Temperature = &t
	}
	if g.maxTokens > 0 {
		cfg.MaxOutputTokens = int32(g.maxTokens)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", classify(err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", classify(ErrEmptyCompletion)
	}
	return text, nil
}
