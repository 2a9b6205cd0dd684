// Package llm abstracts the chat endpoint: given an ordered list of
// role-tagged messages, a provider returns text plus a token-usage
// record. Providers are selected by configuration; the pipeline only
// sees the ChatClient interface.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/triadworks/triad/pkg/config"
)

// Role tags a conversation message.
type Role string

// Message roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged conversation entry.
type Message struct {
	Role    Role
	Content string
}

// Usage is the provider-reported token consumption for one call.
// Nil Usage on a ChatResponse means the provider omitted it.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ChatResponse is the result of one chat-endpoint call.
type ChatResponse struct {
	Text  string
	Usage *Usage
}

// ChatClient is the chat endpoint interface. Implementations must be
// safe for concurrent use; every call honors ctx cancellation and
// deadline.
type ChatClient interface {
	Chat(ctx context.Context, messages []Message) (*ChatResponse, error)
	Model() string
}

// NewClient builds the configured provider's chat client.
func NewClient(cfg *config.Config) (ChatClient, error) {
	switch cfg.Provider {
	case config.ProviderAnthropic:
		return newAnthropicClient(cfg)
	case config.ProviderOpenAI, config.ProviderAzure:
		return newOpenAIClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
}

// apiModel strips the pricing-table provider prefix ("anthropic/",
// "openai/") from a model identifier before it goes on the wire.
func apiModel(model string) string {
	if idx := strings.IndexByte(model, '/'); idx >= 0 {
		return model[idx+1:]
	}
	return model
}
