package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ameenalkhaldi/Automation-Framework/pkg/config"
)

// ============================================================================
// OPENAI PROVIDER
// ============================================================================

// OpenAIProvider implements Provider for the OpenAI chat completions API and
// any OpenAI-compatible endpoint.
type OpenAIProvider struct {
	config *config.LLMProviderConfig
	client *http.Client
}

type openAIRequest struct {
	Model               string                `json:"model"`
	Messages            []Message             `json:"messages"`
	MaxTokens           int                   `json:"max_tokens,omitempty"`
	MaxCompletionTokens int                   `json:"max_completion_tokens,omitempty"`
	Temperature         float64               `json:"temperature"`
	ResponseFormat      *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIResponse struct {
	Choices []openAIChoice `json:"choices"`
	Usage   openAIUsage    `json:"usage"`
	Error   *openAIError   `json:"error,omitempty"`
}

type openAIChoice struct {
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// NewOpenAIProvider creates an OpenAI provider with default settings.
func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	cfg := &config.LLMProviderConfig{
		Type:   "openai",
		Model:  model,
		APIKey: apiKey,
	}
	provider, _ := NewOpenAIProviderFromConfig(cfg)
	return provider
}

// NewOpenAIProviderFromConfig creates an OpenAI provider from config.
func NewOpenAIProviderFromConfig(cfg *config.LLMProviderConfig) (*OpenAIProvider, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &OpenAIProvider{
		config: cfg,
		client: &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second},
	}, nil
}

// WithBaseURL sets a custom base URL (proxies, local OpenAI-compatible servers).
func (p *OpenAIProvider) WithBaseURL(baseURL string) *OpenAIProvider {
	p.config.Host = strings.TrimSuffix(baseURL, "/")
	return p
}

// Generate sends the message sequence and returns the assistant reply.
func (p *OpenAIProvider) Generate(ctx context.Context, messages []Message) (string, int, error) {
	return p.generate(ctx, messages, nil)
}

// GenerateJSON forces a JSON object reply via response_format.
func (p *OpenAIProvider) GenerateJSON(ctx context.Context, messages []Message) (string, int, error) {
	return p.generate(ctx, messages, &openAIResponseFormat{Type: "json_object"})
}

// ModelName returns the configured model.
func (p *OpenAIProvider) ModelName() string {
	return p.config.Model
}

// Close is a no-op for the OpenAI provider.
func (p *OpenAIProvider) Close() error {
	return nil
}

func (p *OpenAIProvider) generate(ctx context.Context, messages []Message, format *openAIResponseFormat) (string, int, error) {
	request := openAIRequest{
		Model:          p.config.Model,
		Messages:       messages,
		Temperature:    p.config.Temperature,
		ResponseFormat: format,
	}

	// Newer model families only accept max_completion_tokens.
	if p.isNewerModel() {
		request.MaxCompletionTokens = p.config.MaxTokens
	} else {
		request.MaxTokens = p.config.MaxTokens
	}

	response, err := p.makeRequest(ctx, request)
	if err != nil {
		return "", 0, err
	}

	if response.Error != nil {
		return "", 0, fmt.Errorf("OpenAI API error: %s", response.Error.Message)
	}

	if len(response.Choices) == 0 {
		return "", 0, fmt.Errorf("no response choices returned")
	}

	return response.Choices[0].Message.Content, response.Usage.TotalTokens, nil
}

func (p *OpenAIProvider) isNewerModel() bool {
	model := p.config.Model
	for _, prefix := range []string{"o1", "o3", "gpt-5"} {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

func (p *OpenAIProvider) makeRequest(ctx context.Context, request openAIRequest) (*openAIResponse, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.Host+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var response openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &response, nil
}
