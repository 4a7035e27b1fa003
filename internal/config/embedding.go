package config

import (
	"fmt"
	"os"
	"time"
)

// EmbeddingConfig defines the OpenAI-compatible embeddings endpoint used to
// vectorize captions and queries.
type EmbeddingConfig struct {
	Model      string        `mapstructure:"model"`
	APIKey     string        `mapstructure:"api_key"`
	APIKeyEnv  string        `mapstructure:"api_key_env"` // Environment variable name for API key
	BaseURL    string        `mapstructure:"base_url"`
	BaseURLEnv string        `mapstructure:"base_url_env"` // Environment variable name for base URL
	Dimensions int           `mapstructure:"dimensions"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// ResolveEnvVars loads APIKey and BaseURL from the referenced environment
// variables. Direct values take precedence if already set.
func (c *EmbeddingConfig) ResolveEnvVars() {
	if c.APIKeyEnv != "" && c.APIKey == "" {
		if val := os.Getenv(c.APIKeyEnv); val != "" {
			c.APIKey = val
		}
	}

	if c.BaseURLEnv != "" && c.BaseURL == "" {
		if val := os.Getenv(c.BaseURLEnv); val != "" {
			c.BaseURL = val
		}
	}
}

// inheritFrom fills the endpoint and key from the VLM settings when unset,
// since LM Studio serves both models behind one base URL.
func (c *EmbeddingConfig) inheritFrom(vlm *VLMConfig) {
	if c.BaseURL == "" && c.BaseURLEnv == "" {
		c.BaseURL = vlm.BaseURL
	}
	if c.APIKey == "" && c.APIKeyEnv == "" {
		c.APIKey = vlm.APIKey
	}
}

// Validate checks that the embedding configuration has all required fields.
func (c *EmbeddingConfig) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("embedding: model is required")
	}
	if c.Dimensions <= 0 {
		return fmt.Errorf("embedding %q: dimensions must be positive", c.Model)
	}
	if c.BaseURL == "" {
		return fmt.Errorf("embedding %q: base_url is required (set directly or via %s)", c.Model, c.BaseURLEnv)
	}
	return nil
}
