package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/triadworks/triad/pkg/config"
)

// openaiClient serves both the openai and azure providers; the SDK
// handles either through its client config.
type openaiClient struct {
	client      *openai.Client
	model       string
	temperature float32
}

func newOpenAIClient(cfg *config.Config) (*openaiClient, error) {
	if cfg.ProviderAPIKey == "" {
		return nil, fmt.Errorf("provider_api_key is required for the %s provider", cfg.Provider)
	}

	var clientCfg openai.ClientConfig
	if cfg.Provider == config.ProviderAzure {
		clientCfg = openai.DefaultAzureConfig(cfg.ProviderAPIKey, cfg.ProviderEndpoint)
		if cfg.ProviderDeployment != "" {
			deployment := cfg.ProviderDeployment
			clientCfg.AzureModelMapperFunc = func(string) string { return deployment }
		}
	} else {
		clientCfg = openai.DefaultConfig(cfg.ProviderAPIKey)
		if cfg.ChatBaseURL != "" {
			clientCfg.BaseURL = cfg.ChatBaseURL
		}
	}

	return &openaiClient{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}, nil
}

func (c *openaiClient) Model() string { return c.model }

func (c *openaiClient) Chat(ctx context.Context, messages []Message) (*ChatResponse, error) {
	req := openai.ChatCompletionRequest{
		Model:       apiModel(c.model),
		Temperature: c.temperature,
	}
	for _, msg := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai chat call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai chat call: response carried no choices")
	}

	return &ChatResponse{
		Text: resp.Choices[0].Message.Content,
		Usage: &Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}
