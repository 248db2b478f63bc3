package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ameenalkhaldi/Automation-Framework/pkg/config"
)

// ============================================================================
// OLLAMA PROVIDER
// ============================================================================

// OllamaProvider implements Provider for a local Ollama server.
type OllamaProvider struct {
	config *config.LLMProviderConfig
	client *http.Client
}

type ollamaRequest struct {
	Model    string        `json:"model"`
	Messages []Message     `json:"messages"`
	Stream   bool          `json:"stream"`
	Format   string        `json:"format,omitempty"`
	Options  ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	PromptEvalCount int     `json:"prompt_eval_count"`
	EvalCount       int     `json:"eval_count"`
	Error           string  `json:"error,omitempty"`
}

// NewOllamaProviderFromConfig creates an Ollama provider from config.
func NewOllamaProviderFromConfig(cfg *config.LLMProviderConfig) (*OllamaProvider, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &OllamaProvider{
		config: cfg,
		client: &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second},
	}, nil
}

// Generate sends the message sequence and returns the assistant reply.
func (p *OllamaProvider) Generate(ctx context.Context, messages []Message) (string, int, error) {
	return p.generate(ctx, messages, "")
}

// GenerateJSON forces a JSON object reply via Ollama's format parameter.
func (p *OllamaProvider) GenerateJSON(ctx context.Context, messages []Message) (string, int, error) {
	return p.generate(ctx, messages, "json")
}

// ModelName returns the configured model.
func (p *OllamaProvider) ModelName() string {
	return p.config.Model
}

// Close is a no-op for the Ollama provider.
func (p *OllamaProvider) Close() error {
	return nil
}

func (p *OllamaProvider) generate(ctx context.Context, messages []Message, format string) (string, int, error) {
	request := ollamaRequest{
		Model:    p.config.Model,
		Messages: messages,
		Stream:   false,
		Format:   format,
		Options: ollamaOptions{
			Temperature: p.config.Temperature,
			NumPredict:  p.config.MaxTokens,
		},
	}

	jsonData, err := json.Marshal(request)
	if err != nil {
		return "", 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.Host+"/api/chat", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", 0, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var response ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", 0, fmt.Errorf("failed to decode response: %w", err)
	}
	if response.Error != "" {
		return "", 0, fmt.Errorf("Ollama API error: %s", response.Error)
	}

	tokens := response.PromptEvalCount + response.EvalCount
	return response.Message.Content, tokens, nil
}

var _ StructuredProvider = (*OllamaProvider)(nil)
var _ StructuredProvider = (*OpenAIProvider)(nil)
var _ Provider = (*AnthropicProvider)(nil)
