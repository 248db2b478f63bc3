package llms

import (
	"fmt"

	"github.com/ameenalkhaldi/Automation-Framework/pkg/config"
)

// NewProviderFromConfig creates the provider selected by cfg.Type.
func NewProviderFromConfig(cfg *config.LLMProviderConfig) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("LLM config cannot be nil")
	}

	switch cfg.Type {
	case "openai":
		return NewOpenAIProviderFromConfig(cfg)
	case "anthropic":
		return NewAnthropicProviderFromConfig(cfg)
	case "ollama":
		return NewOllamaProviderFromConfig(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM type: %s (supported: openai, anthropic, ollama)", cfg.Type)
	}
}

// CreateFromConfig creates a provider from config and registers it under name.
func (r *Registry) CreateFromConfig(name string, cfg *config.LLMProviderConfig) (Provider, error) {
	if name == "" {
		return nil, fmt.Errorf("LLM name cannot be empty")
	}

	provider, err := NewProviderFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}

	if err := r.Register(name, provider); err != nil {
		return nil, fmt.Errorf("failed to register LLM: %w", err)
	}

	return provider, nil
}
