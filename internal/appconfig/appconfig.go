// internal/appconfig/appconfig.go
// Package appconfig manages loading and interpreting application configuration.
package appconfig

import (
	"strings"
	"time"
)

const (
	// DefaultConfigPath is the default path to the application's configuration file.
	DefaultConfigPath = "config/config.json"
	// DefaultModel is used when neither the config file nor flags select a model.
	DefaultModel = "gemini-2.5-flash"
	// defaultRequestTimeout is the default timeout for a whole streamed generation.
	defaultRequestTimeout = 600 * time.Second
	// defaultMinReportChars and defaultMaxReportChars bound the accepted report length.
	defaultMinReportChars = 100
	defaultMaxReportChars = 60000
	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	defaultOpenAIBaseURL     = "https://api.openai.com/v1"
)

// Provider names, shared with the adapters and the provider factory.
const (
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
)

// Environment variables holding provider credentials.
const (
	EnvGeminiAPIKey     = "GEMINI_API_KEY"
	EnvOpenRouterAPIKey = "OPENROUTER_API_KEY"
	EnvOpenAIAPIKey     = "OPENAI_API_KEY"
)

// Config represents the top-level application configuration.
type Config struct {
	Model             string `mapstructure:"model" json:"model"`
	GeminiAPIKey      string `mapstructure:"geminiApiKey" json:"-"`
	OpenRouterAPIKey  string `mapstructure:"openrouterApiKey" json:"-"`
	OpenAIAPIKey      string `mapstructure:"openaiApiKey" json:"-"`
	OpenRouterBaseURL string `mapstructure:"openrouterBaseUrl" json:"openrouterBaseUrl,omitempty"`
	OpenAIBaseURL     string `mapstructure:"openaiBaseUrl" json:"openaiBaseUrl,omitempty"`
	TimeoutSeconds    int    `mapstructure:"timeout" json:"timeout,omitempty"`
	MinReportChars    int    `mapstructure:"minReportChars" json:"minReportChars,omitempty"`
	MaxReportChars    int    `mapstructure:"maxReportChars" json:"maxReportChars,omitempty"`
	Language          string `mapstructure:"language" json:"language,omitempty"`
	Theme             string `mapstructure:"theme" json:"theme,omitempty"`
	OutputType        string `mapstructure:"outputType" json:"outputType,omitempty"`
	LogFile           string `mapstructure:"logFile" json:"logFile,omitempty"`
	Debug             bool   `mapstructure:"debug" json:"debug"`
	Metrics           bool   `mapstructure:"metrics" json:"metrics"`
	MetricsFile       string `mapstructure:"metricsFile" json:"metricsFile,omitempty"`
	ConfigPath        string `mapstructure:"-" json:"-"`
}

// RequestTimeout returns the timeout for a whole generation, falling back to the default if not specified.
func (c Config) RequestTimeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return defaultRequestTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ReportBounds returns the minimum and maximum accepted report length in characters.
func (c Config) ReportBounds() (int, int) {
	minChars, maxChars := c.MinReportChars, c.MaxReportChars
	if minChars <= 0 {
		minChars = defaultMinReportChars
	}
	if maxChars <= 0 {
		maxChars = defaultMaxReportChars
	}
	if maxChars < minChars {
		maxChars = minChars
	}
	return minChars, maxChars
}

// SelectedModel returns the configured model identifier or DefaultModel.
func (c Config) SelectedModel() string {
	if m := strings.TrimSpace(c.Model); m != "" {
		return m
	}
	return DefaultModel
}

// LogFilePath returns the path to the application log file, applying a default if not set.
func (c Config) LogFilePath() string {
	if path := c.LogFile; strings.TrimSpace(path) != "" {
		return path
	}
	return "pagesmith.log"
}

// MetricsFilePath returns where per-model metrics are persisted.
func (c Config) MetricsFilePath() string {
	if path := strings.TrimSpace(c.MetricsFile); path != "" {
		return path
	}
	return "reports/data/model_metrics.json"
}

// OpenRouterURL returns the OpenRouter API base URL.
func (c Config) OpenRouterURL() string {
	if u := strings.TrimRight(strings.TrimSpace(c.OpenRouterBaseURL), "/"); u != "" {
		return u
	}
	return defaultOpenRouterBaseURL
}

// OpenAIURL returns the OpenAI API base URL.
func (c Config) OpenAIURL() string {
	if u := strings.TrimRight(strings.TrimSpace(c.OpenAIBaseURL), "/"); u != "" {
		return u
	}
	return defaultOpenAIBaseURL
}

// CredentialEnv returns the environment variable that holds the key for provider.
func CredentialEnv(provider string) string {
	switch provider {
	case ProviderGemini:
		return EnvGeminiAPIKey
	case ProviderOpenRouter:
		return EnvOpenRouterAPIKey
	case ProviderOpenAI:
		return EnvOpenAIAPIKey
	default:
		return ""
	}
}

// APIKey returns the configured key for provider, or "" when none is set.
func (c Config) APIKey(provider string) string {
	switch provider {
	case ProviderGemini:
		return strings.TrimSpace(c.GeminiAPIKey)
	case ProviderOpenRouter:
		return strings.TrimSpace(c.OpenRouterAPIKey)
	case ProviderOpenAI:
		return strings.TrimSpace(c.OpenAIAPIKey)
	default:
		return ""
	}
}

// Credential reports the environment key name for provider and whether a key is configured.
func (c Config) Credential(provider string) (string, bool) {
	return CredentialEnv(provider), c.APIKey(provider) != ""
}
