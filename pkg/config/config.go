// Package config defines the YAML configuration surface of the automation
// framework: the LLM provider settings, the workflow bounds, and the
// report/transcript/metrics options. Every config struct follows the same
// convention: SetDefaults fills zero values, Validate rejects nonsense.
package config

import (
	"fmt"
)

// ============================================================================
// TOP-LEVEL CONFIGURATION
// ============================================================================

// Config is the root configuration for one automation run.
type Config struct {
	LLM      LLMProviderConfig `yaml:"llm"`
	Workflow WorkflowConfig    `yaml:"workflow"`
	Reports  ReportsConfig     `yaml:"reports"`
	Logs     LogsConfig        `yaml:"logs"`
	Metrics  MetricsConfig     `yaml:"metrics"`
}

// SetDefaults fills defaults for all sections.
func (c *Config) SetDefaults() {
	c.LLM.SetDefaults()
	c.Workflow.SetDefaults()
	c.Reports.SetDefaults()
	c.Logs.SetDefaults()
	c.Metrics.SetDefaults()
}

// Validate validates all sections.
func (c *Config) Validate() error {
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	if err := c.Workflow.Validate(); err != nil {
		return fmt.Errorf("workflow: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	return nil
}

// ============================================================================
// LLM PROVIDER CONFIGURATION
// ============================================================================

// LLMProviderConfig configures the model collaborator behind every agent.
type LLMProviderConfig struct {
	// Type selects the provider implementation: openai, anthropic or ollama.
	Type string `yaml:"type"`

	// Model is the provider-specific model name.
	Model string `yaml:"model"`

	// APIKey authenticates against the provider. May be left empty and
	// resolved from the environment (OPENAI_API_KEY / ANTHROPIC_API_KEY).
	APIKey string `yaml:"api_key,omitempty"`

	// Host overrides the provider base URL (proxies, local servers).
	Host string `yaml:"host,omitempty"`

	Temperature float64 `yaml:"temperature,omitempty"`
	MaxTokens   int     `yaml:"max_tokens,omitempty"`

	// Timeout bounds a single model exchange, in seconds.
	Timeout int `yaml:"timeout,omitempty"`
}

// SetDefaults fills provider defaults.
func (c *LLMProviderConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "openai"
	}
	if c.Model == "" {
		switch c.Type {
		case "anthropic":
			c.Model = "claude-sonnet-4-20250514"
		case "ollama":
			c.Model = "llama3.2"
		default:
			c.Model = "gpt-4o-mini"
		}
	}
	if c.Host == "" {
		switch c.Type {
		case "openai":
			c.Host = "https://api.openai.com/v1"
		case "anthropic":
			c.Host = "https://api.anthropic.com"
		case "ollama":
			c.Host = "http://localhost:11434"
		}
	}
	if c.Temperature == 0 {
		c.Temperature = 0.2
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
	if c.Timeout == 0 {
		c.Timeout = 120
	}
}

// Validate validates the provider config.
func (c *LLMProviderConfig) Validate() error {
	switch c.Type {
	case "openai", "anthropic", "ollama":
	default:
		return fmt.Errorf("unsupported provider type: %s (supported: openai, anthropic, ollama)", c.Type)
	}
	if c.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %v", c.Temperature)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max_tokens cannot be negative")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}
	return nil
}

// ============================================================================
// WORKFLOW BOUNDS
// ============================================================================

// WorkflowConfig carries the termination bounds of the orchestration loop.
type WorkflowConfig struct {
	// MaxPlanRevisions bounds how many times a task may adopt a revised
	// plan (rejections and mid-execution replans both count). The counter
	// never resets, which is what guarantees global termination.
	MaxPlanRevisions int `yaml:"max_plan_revisions"`

	// MaxStepRetries bounds how many times one step is re-executed after a
	// reviewer rejection before a replan is forced.
	MaxStepRetries int `yaml:"max_step_retries"`

	// ExchangeTimeout bounds one model exchange, in seconds. Zero inherits
	// the provider timeout.
	ExchangeTimeout int `yaml:"exchange_timeout,omitempty"`
}

// SetDefaults fills the documented default bounds.
func (c *WorkflowConfig) SetDefaults() {
	if c.MaxPlanRevisions == 0 {
		c.MaxPlanRevisions = 3
	}
	if c.MaxStepRetries == 0 {
		c.MaxStepRetries = 2
	}
}

// Validate validates the bounds.
func (c *WorkflowConfig) Validate() error {
	if c.MaxPlanRevisions < 0 {
		return fmt.Errorf("max_plan_revisions cannot be negative")
	}
	if c.MaxStepRetries < 0 {
		return fmt.Errorf("max_step_retries cannot be negative")
	}
	if c.ExchangeTimeout < 0 {
		return fmt.Errorf("exchange_timeout cannot be negative")
	}
	return nil
}

// ============================================================================
// REPORTS, TRANSCRIPTS, METRICS
// ============================================================================

// ReportsConfig configures per-task report output.
type ReportsConfig struct {
	Dir string `yaml:"dir"`

	// HTML additionally renders each Markdown report to HTML.
	HTML bool `yaml:"html,omitempty"`
}

// SetDefaults fills report defaults.
func (c *ReportsConfig) SetDefaults() {
	if c.Dir == "" {
		c.Dir = "reports"
	}
}

// LogsConfig configures the per-run transcript log.
type LogsConfig struct {
	Dir string `yaml:"dir"`
}

// SetDefaults fills transcript defaults.
func (c *LogsConfig) SetDefaults() {
	if c.Dir == "" {
		c.Dir = "logs"
	}
}

// MetricsConfig configures the optional Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Addr    string `yaml:"addr,omitempty"`
}

// SetDefaults fills metrics defaults.
func (c *MetricsConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":9090"
	}
}

// Validate validates the metrics config.
func (c *MetricsConfig) Validate() error {
	if c.Enabled && c.Addr == "" {
		return fmt.Errorf("addr cannot be empty when metrics are enabled")
	}
	return nil
}
