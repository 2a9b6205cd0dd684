package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/triadworks/triad/pkg/config"
)

// maxOutputTokens bounds a single stage response. Stage outputs are
// JSON records well under this; the cap only guards against runaways.
const maxOutputTokens = 8192

type anthropicClient struct {
	client      anthropic.Client
	model       string
	temperature float32
}

func newAnthropicClient(cfg *config.Config) (*anthropicClient, error) {
	if cfg.ProviderAPIKey == "" {
		return nil, fmt.Errorf("provider_api_key is required for the anthropic provider")
	}

	options := []option.RequestOption{option.WithAPIKey(cfg.ProviderAPIKey)}
	if cfg.ChatBaseURL != "" {
		options = append(options, option.WithBaseURL(cfg.ChatBaseURL))
	}

	return &anthropicClient{
		client:      anthropic.NewClient(options...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}, nil
}

func (c *anthropicClient) Model() string { return c.model }

func (c *anthropicClient) Chat(ctx context.Context, messages []Message) (*ChatResponse, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(apiModel(c.model)),
		MaxTokens:   maxOutputTokens,
		Temperature: anthropic.Float(float64(c.temperature)),
	}

	// Anthropic takes system text out of band; user/assistant turns
	// go in the messages list.
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			params.System = append(params.System, anthropic.TextBlockParam{Text: msg.Content})
		case RoleAssistant:
			params.Messages = append(params.Messages,
				anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			params.Messages = append(params.Messages,
				anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic chat call: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	return &ChatResponse{
		Text: sb.String(),
		Usage: &Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}, nil
}
