package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/cobi-dev0615/Montor.ia-sub000/internal/domain"
)

// Provider selects the backing model API.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderOllama Provider = "ollama"
	ProviderGemini Provider = "gemini"
)

// Config selects and configures a provider.
type Config struct {
	Provider    Provider
	Model       string
	BaseURL     string
	APIKey      string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// New builds the Completer for cfg.Provider, bounded by cfg.Timeout per call.
func New(ctx context.Context, cfg Config) (Completer, error) {
	var (
		c   Completer
		err error
	)
	switch cfg.Provider {
	case ProviderOpenAI:
		c, err = NewOpenAI(cfg)
	case ProviderOllama:
		c, err = NewOllama(cfg)
	case ProviderGemini:
		c, err = NewGemini(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	if cfg.Timeout > 0 {
		c = WithTimeout(c, cfg.Timeout)
	}
	return c, nil
}

type timeoutCompleter struct {
	next    Completer
	timeout time.Duration
}

// WithTimeout bounds every Complete call of next.
func WithTimeout(next Completer, timeout time.Duration) Completer {
	return &timeoutCompleter{next: next, timeout: timeout}
}

func (t *timeoutCompleter) Complete(ctx context.Context, history []domain.Message, systemPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Complete(ctx, history, systemPrompt)
}
