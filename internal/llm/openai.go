package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

type OpenAIProvider struct {
	client openai.Client
	model  string
}

func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	return &OpenAIProvider{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (p *OpenAIProvider) ID() string {
	return "openai"
}

func (p *OpenAIProvider) Complete(ctx context.Context, request Request) (string, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if request.System != "" {
		messages = append(messages, openai.SystemMessage(request.System))
	}

	if len(request.Image) > 0 {
		dataURL := "data:" + request.mediaType() + ";base64," + base64.StdEncoding.EncodeToString(request.Image)
		messages = append(messages, openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
			openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
			openai.TextContentPart(request.Prompt),
		}))
	} else {
		messages = append(messages, openai.UserMessage(request.Prompt))
	}

	params := openai.ChatCompletionNewParams{
		Model:               shared.ChatModel(p.model),
		Messages:            messages,
		MaxCompletionTokens: openai.Int(request.maxTokens()),
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}
	if len(completion.Choices) == 0 || strings.TrimSpace(completion.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return completion.Choices[0].Message.Content, nil
}
