// Package config defines the immutable host configuration. It is loaded
// once at startup and never re-read mid-session.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the main configuration structure for mermhost.
type Config struct {
	LLM     LLMConfig     `yaml:"llm" json:"llm"`
	MCP     MCPConfig     `yaml:"mcp" json:"mcp"`
	Retry   RetryConfig   `yaml:"retry" json:"retry"`
	Render  RenderConfig  `yaml:"render" json:"render"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// LLMConfig describes the completion endpoint. The endpoint must speak
// the OpenAI chat-completions protocol; Moonshot's API does.
type LLMConfig struct {
	APIKey    string        `yaml:"api_key" json:"api_key"`
	BaseURL   string        `yaml:"base_url" json:"base_url"`
	Model     string        `yaml:"model" json:"model"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	MaxTokens int           `yaml:"max_tokens" json:"max_tokens"`
}

// MCPConfig describes how to reach the tool service.
type MCPConfig struct {
	ID        string            `yaml:"id" json:"id"`
	Transport string            `yaml:"transport" json:"transport"` // stdio | http
	URL       string            `yaml:"url" json:"url,omitempty"`
	Headers   map[string]string `yaml:"headers" json:"headers,omitempty"`
	Command   string            `yaml:"command" json:"command,omitempty"`
	Args      []string          `yaml:"args" json:"args,omitempty"`
	Env       map[string]string `yaml:"env" json:"env,omitempty"`
	WorkDir   string            `yaml:"workdir" json:"workdir,omitempty"`
	Timeout   time.Duration     `yaml:"timeout" json:"timeout"`
}

// RetryConfig bounds the transient-failure retries in the registry and
// the invoker.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" json:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" json:"max_delay"`
}

// RenderConfig configures the bundled mermaid render service used by
// `mermhost serve`.
type RenderConfig struct {
	CLIPath   string `yaml:"cli_path" json:"cli_path"`
	OutputDir string `yaml:"output_dir" json:"output_dir"`
	Listen    string `yaml:"listen" json:"listen"`
}

type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file,omitempty"`
}

// Default returns a configuration with every field that has a sensible
// default filled in. Secrets stay empty.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			BaseURL:   "https://api.moonshot.cn/v1",
			Model:     "moonshot-v1-8k",
			Timeout:   30 * time.Second,
			MaxTokens: 2000,
		},
		MCP: MCPConfig{
			ID:        "mermaid",
			Transport: "http",
			URL:       "http://127.0.0.1:8000/mcp",
			Timeout:   30 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     10 * time.Second,
		},
		Render: RenderConfig{
			CLIPath:   "mmdc",
			OutputDir: "./output",
			Listen:    "127.0.0.1:8000",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate checks the configuration for problems that would only
// surface as confusing failures later.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required (or set %s)", EnvAPIKey)
	}
	if c.LLM.BaseURL == "" {
		return fmt.Errorf("llm.base_url is required")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}

	switch strings.ToLower(c.MCP.Transport) {
	case "stdio":
		if c.MCP.Command == "" {
			return fmt.Errorf("mcp.command is required for stdio transport")
		}
	case "http":
		if !strings.HasPrefix(c.MCP.URL, "http://") && !strings.HasPrefix(c.MCP.URL, "https://") {
			return fmt.Errorf("mcp.url must start with http:// or https://")
		}
	default:
		return fmt.Errorf("mcp.transport must be stdio or http, got %q", c.MCP.Transport)
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	return nil
}
