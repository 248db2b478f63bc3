// Package llms implements the model collaborator: chat-completion providers
// behind a single Provider interface, plus a name-keyed registry. Providers are
// deliberately thin HTTP clients; parsing replies into role schemas happens in
// the agent layer.
package llms

import (
	"context"

	"github.com/ameenalkhaldi/Automation-Framework/pkg/registry"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single role-tagged message in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider is a blocking chat-completion client. Generate sends the full
// message sequence and returns the assistant text plus total tokens consumed.
type Provider interface {
	Generate(ctx context.Context, messages []Message) (text string, tokens int, err error)

	ModelName() string

	Close() error
}

// StructuredProvider is implemented by providers that can force a JSON object
// reply at the API level. Callers fall back to Generate (and prompt-level
// schema instructions) when the provider does not implement it.
type StructuredProvider interface {
	Provider

	GenerateJSON(ctx context.Context, messages []Message) (text string, tokens int, err error)
}

// Registry holds named providers.
type Registry struct {
	*registry.BaseRegistry[Provider]
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		BaseRegistry: registry.NewBaseRegistry[Provider](),
	}
}
