// Package llm wraps the hosted model APIs behind a single-shot completion call.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vincentbai/stepcoach/internal/config"
)

const defaultMaxTokens = 512

var ErrEmptyResponse = errors.New("model returned no text")

// Request is one prompt with an optional screenshot attached.
type Request struct {
	System    string
	Prompt    string
	Image     []byte
	MediaType string // image/png when empty
	MaxTokens int
}

func (r Request) mediaType() string {
	if r.MediaType == "" {
		return "image/png"
	}
	return r.MediaType
}

func (r Request) maxTokens() int64 {
	if r.MaxTokens > 0 {
		return int64(r.MaxTokens)
	}
	return defaultMaxTokens
}

type Provider interface {
	ID() string
	Complete(ctx context.Context, request Request) (string, error)
}

// New builds the provider named in cfg.LLM.
func New(cfg *config.Config) (Provider, error) {
	var provider Provider
	switch cfg.LLM.Provider {
	case "anthropic":
		provider = NewAnthropicProvider(cfg.LLM.APIKey, cfg.LLM.Model)
	case "openai":
		model := cfg.LLM.Model
		if model == "" || strings.HasPrefix(model, "claude") {
			model = "gpt-4o-mini"
		}
		provider = NewOpenAIProvider(cfg.LLM.APIKey, model)
	case "static":
		provider = &Static{}
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
	provider = WithMaxTokens(provider, cfg.LLM.MaxTokens)
	return WithTimeout(provider, cfg.LLMTimeout()), nil
}

type cappedProvider struct {
	Provider
	limit int
}

// WithMaxTokens caps the completion length of every request at limit.
// Requests that ask for no particular length get the limit.
func WithMaxTokens(provider Provider, limit int) Provider {
	if limit <= 0 {
		return provider
	}
	return &cappedProvider{Provider: provider, limit: limit}
}

func (p *cappedProvider) Complete(ctx context.Context, request Request) (string, error) {
	if request.MaxTokens <= 0 || request.MaxTokens > p.limit {
		request.MaxTokens = p.limit
	}
	return p.Provider.Complete(ctx, request)
}

type timeoutProvider struct {
	Provider
	timeout time.Duration
}

// WithTimeout bounds every Complete call.
func WithTimeout(provider Provider, timeout time.Duration) Provider {
	if timeout <= 0 {
		return provider
	}
	return &timeoutProvider{Provider: provider, timeout: timeout}
}

func (p *timeoutProvider) Complete(ctx context.Context, request Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.Provider.Complete(ctx, request)
}
