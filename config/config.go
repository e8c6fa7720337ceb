package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Browser  BrowserConfig
	Renderer RendererConfig
	LLM      LLMConfig
	Auth     AuthConfig
	Log      LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string
}

// RendererConfig controls per-request rendering behavior.
type RendererConfig struct {
	// Timeout is the maximum wait for render completion.
	Timeout time.Duration // default: 6s (BROWSER_TIMEOUT, milliseconds)

	// Stealth enables anti-bot-detection evasions (navigator.webdriver masking).
	Stealth bool // default: false

	// BlockedResourceTypes lists resource types aborted before fetch.
	// default: ["Image", "Stylesheet", "Font", "Media"]
	BlockedResourceTypes []string
}

// LLMConfig controls the extraction LLM provider.
type LLMConfig struct {
	// APIKey authenticates against the LLM provider. Required.
	APIKey string

	// Model is the chat completion model identifier.
	Model string // default: "gpt-4-turbo-preview"

	// BaseURL is the OpenAI-compatible API base URL.
	BaseURL string // default: "https://api.openai.com/v1"

	// Timeout is the maximum wait for extraction completion.
	Timeout time.Duration // default: 30s (LLM_TIMEOUT, milliseconds)

	// PromptFile is the path to the extraction prompt template.
	PromptFile string // default: "prompts/prompt.txt"
}

// AuthConfig controls API key authentication for inbound callers.
type AuthConfig struct {
	// APIKeys is the list of valid caller keys. Empty disables auth.
	APIKeys []string
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("DISTILL_HOST", "0.0.0.0"),
			Port: envIntOr("DISTILL_PORT", 8080),
			Mode: envOr("DISTILL_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:   envBoolOr("DISTILL_HEADLESS", true),
			NoSandbox:  envBoolOr("DISTILL_NO_SANDBOX", false),
			BrowserBin: os.Getenv("DISTILL_BROWSER_BIN"),
		},
		Renderer: RendererConfig{
			Timeout: envMillisOr("BROWSER_TIMEOUT", 6*time.Second),
			Stealth: envBoolOr("DISTILL_STEALTH", false),
			BlockedResourceTypes: envSliceOr("DISTILL_BLOCKED_RESOURCES", []string{
				"Image", "Stylesheet", "Font", "Media",
			}),
		},
		LLM: LLMConfig{
			APIKey:     os.Getenv("OPENAI_API_KEY"),
			Model:      envOr("OPENAI_MODEL", "gpt-4-turbo-preview"),
			BaseURL:    envOr("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Timeout:    envMillisOr("LLM_TIMEOUT", 30*time.Second),
			PromptFile: envOr("PROMPT_FILE", "prompts/prompt.txt"),
		},
		Auth: AuthConfig{
			APIKeys: envSliceOr("DISTILL_API_KEYS", nil),
		},
		Log: LogConfig{
			Level:  envOr("DISTILL_LOG_LEVEL", "info"),
			Format: envOr("DISTILL_LOG_FORMAT", "json"),
		},
	}
}

// Validate checks that required settings are present.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return errors.New("OPENAI_API_KEY environment variable is required")
	}
	return nil
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// envMillisOr reads an integer number of milliseconds. The timeout variables
// have historically been millisecond-valued, so plain integers are expected.
func envMillisOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
