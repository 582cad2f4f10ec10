package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	domai "github.com/bryanwahyu/deepcheck/internal/domain/ai"
	"github.com/bryanwahyu/deepcheck/internal/infra/ai/prompt"
)

const maxTokens = 512

type Client struct {
	*openai.Client
	Model string
}

// NewClient builds an explainer. baseURL may be empty for the public API.
func NewClient(apiKey, model, baseURL string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{Client: openai.NewClientWithConfig(cfg), Model: model}
}

func (c *Client) Explain(ctx context.Context, req domai.ExplainRequest) (domai.Explanation, error) {
	model := c.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	chat := openai.ChatCompletionRequest{
		Model: model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.GetSystemPrompt()},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: prompt.GetUserPrompt(req.Mode, req.IsFake, req.Confidence)},
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
						URL:    req.ImageURL,
						Detail: openai.ImageURLDetailLow,
					}},
				},
			},
		},
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4") || strings.HasPrefix(model, "gpt-5") {
		chat.MaxCompletionTokens = maxTokens
	} else {
		chat.MaxTokens = maxTokens
	}

	resp, err := c.CreateChatCompletion(ctx, chat)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return domai.Explanation{}, fmt.Errorf("%w: %v", domai.ErrQuotaExceeded, err)
		}
		return domai.Explanation{}, fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return domai.Explanation{}, errors.New("chat completion returned no choices")
	}
	return parseExplanation(resp.Choices[0].Message.Content)
}

func parseExplanation(content string) (domai.Explanation, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var out domai.Explanation
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &out); err != nil {
		return domai.Explanation{}, fmt.Errorf("decode explanation: %w", err)
	}
	if out.Summary == "" {
		return domai.Explanation{}, errors.New("explanation has no summary")
	}
	if out.Signals == nil {
		out.Signals = []string{}
	}
	return out, nil
}
