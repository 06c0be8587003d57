package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	domai "github.com/bryanwahyu/mushroom-id/internal/domain/ai"
	"github.com/bryanwahyu/mushroom-id/internal/domain/mushroom"
	"github.com/bryanwahyu/mushroom-id/internal/infra/ai/prompt"
	"github.com/bryanwahyu/mushroom-id/internal/logger"
)

const (
	defaultModel     = "gpt-4o-mini"
	defaultMaxTokens = 1024
)

// Options configures the chat completions endpoint.
type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	ImageDetail string // auto, low or high
	HTTPClient  *http.Client
}

// Client identifies mushrooms through an OpenAI-compatible chat completions API.
type Client struct {
	api       *openai.Client
	model     string
	maxTokens int
	detail    openai.ImageURLDetail
}

var _ domai.Client = (*Client)(nil)

// NewClient builds a client bound to one credential. A missing key is a
// transport failure since no request could ever authenticate.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, mushroom.TransportFailure("openai.NewClient", domai.ErrUnauthorized)
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}

	c := &Client{
		api:       openai.NewClientWithConfig(cfg),
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
		detail:    openai.ImageURLDetail(opts.ImageDetail),
	}
	if c.model == "" {
		c.model = defaultModel
	}
	if c.maxTokens <= 0 {
		c.maxTokens = defaultMaxTokens
	}
	if c.detail == "" {
		c.detail = openai.ImageURLDetailAuto
	}
	return c, nil
}

// Model returns the model name requests are sent to.
func (c *Client) Model() string { return c.model }

// Analyze sends the image with the mycologist prompt and returns the
// validated identification. Exactly one request is made.
func (c *Client) Analyze(ctx context.Context, image mushroom.ImagePayload) (mushroom.Analysis, error) {
	const op = "openai.Analyze"

	req := c.buildRequest(image)

	logger.WithFields(logrus.Fields{
		"model":      c.model,
		"media_type": image.MediaType,
		"image_size": image.Size(),
	}).Debug("sending mushroom identification request")

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return mushroom.Analysis{}, mushroom.TransportFailure(op, classify(err))
	}

	if len(resp.Choices) == 0 {
		return mushroom.Analysis{}, mushroom.MalformedFailure(op, "response has no choices", nil)
	}
	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return mushroom.Analysis{}, mushroom.MalformedFailure(op, "model refused: "+choice.Message.Refusal, nil)
	}

	logger.WithFields(logrus.Fields{
		"model":             resp.Model,
		"finish_reason":     choice.FinishReason,
		"prompt_tokens":     resp.Usage.PromptTokens,
		"completion_tokens": resp.Usage.CompletionTokens,
	}).Debug("received mushroom identification response")

	return mushroom.ParseAnalysis(choice.Message.Content)
}

// Ping fetches the configured model's metadata.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.GetModel(ctx, c.model); err != nil {
		return mushroom.TransportFailure("openai.Ping", classify(err))
	}
	return nil
}

func (c *Client) buildRequest(image mushroom.ImagePayload) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   prompt.SchemaName,
				Schema: prompt.GetResponseSchema(),
				Strict: true,
			},
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.GetSystemPrompt()},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    image.DataURL(),
							Detail: c.detail,
						},
					},
					{Type: openai.ChatMessagePartTypeText, Text: prompt.GetUserPrompt()},
				},
			},
		},
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if isReasoningModel(c.model) {
		req.MaxCompletionTokens = c.maxTokens
	} else {
		req.MaxTokens = c.maxTokens
	}
	return req
}

func isReasoningModel(model string) bool {
	for _, p := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}

// classify attaches the domain sentinel for status codes callers act on.
func classify(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %w", domai.ErrUnauthorized, err)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", domai.ErrQuotaExceeded, err)
	}
	return err
}
