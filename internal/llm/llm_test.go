package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vincentbai/stepcoach/internal/config"
)

func TestNewSelectsProvider(t *testing.T) {
	tests := []struct {
		provider string
		model    string
		want     string
	}{
		{"anthropic", "claude-sonnet-4-5", "anthropic"},
		{"openai", "claude-sonnet-4-5", "openai"},
		{"static", "", "static"},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.LLM.Provider = tt.provider
			cfg.LLM.Model = tt.model
			cfg.LLM.APIKey = "sk-test"

			provider, err := New(cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, provider.ID())
		})
	}

	cfg := config.DefaultConfig()
	cfg.LLM.Provider = "llama"
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestOpenAIModelFallback(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LLM.Provider = "openai"
	cfg.LLM.APIKey = "sk-test"

	provider, err := New(cfg)
	require.NoError(t, err)
	timed, ok := provider.(*timeoutProvider)
	require.True(t, ok)
	capped, ok := timed.Provider.(*cappedProvider)
	require.True(t, ok)
	assert.Equal(t, cfg.LLM.MaxTokens, capped.limit)
	assert.Equal(t, "gpt-4o-mini", capped.Provider.(*OpenAIProvider).model)
}

func TestWithMaxTokens(t *testing.T) {
	ctx := context.Background()
	base := &Static{Response: "ok"}
	provider := WithMaxTokens(base, 200)

	for _, asked := range []int{0, 120, 400} {
		_, err := provider.Complete(ctx, Request{MaxTokens: asked})
		require.NoError(t, err)
	}
	requests := base.Requests()
	require.Len(t, requests, 3)
	assert.Equal(t, 200, requests[0].MaxTokens)
	assert.Equal(t, 120, requests[1].MaxTokens)
	assert.Equal(t, 200, requests[2].MaxTokens)

	assert.Same(t, base, WithMaxTokens(base, 0))
}

func TestNewAppliesConfiguredMaxTokens(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LLM.Provider = "static"
	cfg.LLM.MaxTokens = 100

	provider, err := New(cfg)
	require.NoError(t, err)
	capped := provider.(*timeoutProvider).Provider.(*cappedProvider)
	static := capped.Provider.(*Static)
	static.Response = "ok"

	_, err = provider.Complete(context.Background(), Request{MaxTokens: 300})
	require.NoError(t, err)
	require.Len(t, static.Requests(), 1)
	assert.Equal(t, 100, static.Requests()[0].MaxTokens)
}

func TestStatic(t *testing.T) {
	ctx := context.Background()

	static := &Static{Response: "Click Save"}
	answer, err := static.Complete(ctx, Request{Prompt: "p1"})
	require.NoError(t, err)
	assert.Equal(t, "Click Save", answer)

	failing := &Static{Err: errors.New("rate limited")}
	_, err = failing.Complete(ctx, Request{})
	assert.EqualError(t, err, "rate limited")

	empty := &Static{}
	_, err = empty.Complete(ctx, Request{})
	assert.ErrorIs(t, err, ErrEmptyResponse)

	echo := &Static{Reply: func(r Request) (string, error) { return r.Prompt, nil }}
	answer, err = echo.Complete(ctx, Request{Prompt: "echo"})
	require.NoError(t, err)
	assert.Equal(t, "echo", answer)

	assert.Len(t, static.Requests(), 1)
	assert.Equal(t, "p1", static.Requests()[0].Prompt)
}

func TestWithTimeoutCancels(t *testing.T) {
	slow := &Static{Reply: func(Request) (string, error) { return "late", nil }}
	provider := WithTimeout(slow, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := provider.Complete(ctx, Request{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, slow.Requests())
}

func TestRequestDefaults(t *testing.T) {
	assert.Equal(t, "image/png", Request{}.mediaType())
	assert.Equal(t, "image/jpeg", Request{MediaType: "image/jpeg"}.mediaType())
	assert.Equal(t, int64(defaultMaxTokens), Request{}.maxTokens())
	assert.Equal(t, int64(64), Request{MaxTokens: 64}.maxTokens())
}
