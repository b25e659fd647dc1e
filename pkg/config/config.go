// Package config provides configuration loading, defaults, and validation for condensers,
// the summarizer client, compliance reporting, metrics, and event log storage.
//
// Configuration is read from YAML (JSON is accepted as a YAML subset). Loading always
// applies defaults before validation, so a zero-length file yields a usable config.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"contextcore/pkg/logx"
)

// Provider names.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"
)

// Environment variables holding provider credentials.
const (
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvGoogleAPIKey    = "GOOGLE_GENAI_API_KEY"
	EnvGeminiAPIKey    = "GEMINI_API_KEY"
	EnvOllamaHost      = "OLLAMA_HOST"
)

// Condenser types.
const (
	CondenserNoOp               = "noop"
	CondenserForce              = "force"
	CondenserRolling            = "rolling"
	CondenserLLMSummarizing     = "llm_summarizing"
	CondenserTokenBudget        = "token_budget"
	CondenserObservationMasking = "observation_masking"
	CondenserPipeline           = "pipeline"
)

// Event log backends.
const (
	EventLogMemory = "memory"
	EventLogSQLite = "sqlite"
)

// Defaults applied when a field is left unset.
const (
	DefaultMaxSize          = 120
	DefaultKeepFirst        = 1
	DefaultMaxTokens        = 100000
	DefaultAttentionWindow  = 100
	DefaultSummaryMaxTokens = 2048
	DefaultTemperature      = 0.2
	DefaultMetricsNamespace = "contextcore"
	DefaultRetryAttempts    = 3
	DefaultRetryDelay       = 250 * time.Millisecond
	DefaultRetryMaxDelay    = 10 * time.Second
	DefaultRetryBackoff     = 2.0
	DefaultSummaryTimeout   = 2 * time.Minute
	DefaultCircuitFailures  = 5
	DefaultCircuitSuccesses = 1
	DefaultCircuitCooldown  = 30 * time.Second
	DefaultOllamaHost       = "http://localhost:11434"
)

//nolint:gochecknoglobals // package logger
var logger = logx.NewLogger("config")

// ModelInfo contains static information about a known LLM model.
type ModelInfo struct {
	Provider         string // API provider
	MaxContextTokens int    // Maximum context window size in tokens
	MaxOutputTokens  int    // Maximum output tokens per request
}

// KnownModels maps model names to provider and context sizes. Unknown models are
// resolved through ProviderPatterns.
//
//nolint:gochecknoglobals // Intentional global for static model registry
var KnownModels = map[string]ModelInfo{
	"claude-sonnet-4-5":          {Provider: ProviderAnthropic, MaxContextTokens: 200000, MaxOutputTokens: 8192},
	"claude-sonnet-4-20250514":   {Provider: ProviderAnthropic, MaxContextTokens: 200000, MaxOutputTokens: 8192},
	"claude-haiku-4-5":           {Provider: ProviderAnthropic, MaxContextTokens: 200000, MaxOutputTokens: 8192},
	"claude-opus-4-1":            {Provider: ProviderAnthropic, MaxContextTokens: 200000, MaxOutputTokens: 32000},
	"claude-3-7-sonnet-20250219": {Provider: ProviderAnthropic, MaxContextTokens: 200000, MaxOutputTokens: 8192},
	"gpt-4o":                     {Provider: ProviderOpenAI, MaxContextTokens: 128000, MaxOutputTokens: 16384},
	"gpt-4o-mini":                {Provider: ProviderOpenAI, MaxContextTokens: 128000, MaxOutputTokens: 16384},
	"gpt-5":                      {Provider: ProviderOpenAI, MaxContextTokens: 400000, MaxOutputTokens: 128000},
	"o3":                         {Provider: ProviderOpenAI, MaxContextTokens: 200000, MaxOutputTokens: 100000},
	"o3-mini":                    {Provider: ProviderOpenAI, MaxContextTokens: 200000, MaxOutputTokens: 100000},
	"gemini-2.5-flash":           {Provider: ProviderGoogle, MaxContextTokens: 1048576, MaxOutputTokens: 65536},
	"gemini-2.5-pro":             {Provider: ProviderGoogle, MaxContextTokens: 1048576, MaxOutputTokens: 65536},
	"llama3.1":                   {Provider: ProviderOllama, MaxContextTokens: 128000, MaxOutputTokens: 4096},
	"qwen2.5-coder":              {Provider: ProviderOllama, MaxContextTokens: 32768, MaxOutputTokens: 4096},
}

// ProviderPattern represents a prefix rule for inferring a provider from a model name.
type ProviderPattern struct {
	Prefix   string
	Provider string
}

// ProviderPatterns allows using new models without code changes.
//
//nolint:gochecknoglobals // Intentional global for inference rules
var ProviderPatterns = []ProviderPattern{
	{"claude", ProviderAnthropic},
	{"gpt", ProviderOpenAI},
	{"o1", ProviderOpenAI},
	{"o3", ProviderOpenAI},
	{"o4", ProviderOpenAI},
	{"gemini", ProviderGoogle},
	{"phi", ProviderOllama},
	{"llama", ProviderOllama},
	{"qwen", ProviderOllama},
	{"mistral", ProviderOllama},
	{"deepseek", ProviderOllama},
}

// GetModelProvider returns the API provider for a given model.
func GetModelProvider(modelName string) (string, error) {
	if info, exists := KnownModels[modelName]; exists {
		return info.Provider, nil
	}

	for i := range ProviderPatterns {
		if strings.HasPrefix(modelName, ProviderPatterns[i].Prefix) {
			return ProviderPatterns[i].Provider, nil
		}
	}

	return "", fmt.Errorf("unknown model '%s': no known provider mapping or pattern match", modelName)
}

// GetModelInfo returns the ModelInfo for a model, with conservative defaults for unknown
// models. The bool reports whether the model was found in KnownModels.
func GetModelInfo(modelName string) (ModelInfo, bool) {
	if info, exists := KnownModels[modelName]; exists {
		return info, true
	}

	provider, _ := GetModelProvider(modelName)
	return ModelInfo{
		Provider:         provider,
		MaxContextTokens: 32000,
		MaxOutputTokens:  4096,
	}, false
}

// Config is the root configuration.
type Config struct {
	Summarizer  *SummarizerConfig `yaml:"summarizer,omitempty"`
	Condenser   CondenserConfig   `yaml:"condenser"`
	EventLog    EventLogConfig    `yaml:"eventlog"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	SecretsFile string            `yaml:"secrets_file,omitempty"` // Encrypted secrets consulted before the environment
	Compliance  ComplianceConfig  `yaml:"compliance"`
}

// CondenserConfig describes one condenser. Pipelines nest stages; force wraps its first stage.
type CondenserConfig struct {
	Type            string            `yaml:"type"`
	Stages          []CondenserConfig `yaml:"stages,omitempty"`
	KeepFirst       *int              `yaml:"keep_first,omitempty"`
	HandlesRequests *bool             `yaml:"handles_requests,omitempty"`
	MaxSize         int               `yaml:"max_size,omitempty"`
	MaxTokens       int               `yaml:"max_tokens,omitempty"`
	AttentionWindow int               `yaml:"attention_window,omitempty"`
	MaxEventTokens  int               `yaml:"max_event_tokens,omitempty"` // Per-event token cap when rendering for summaries
}

// SummarizerConfig configures the LLM used by summarizing condensers.
type SummarizerConfig struct {
	Provider    string      `yaml:"provider,omitempty"`
	Model       string      `yaml:"model"`
	BaseURL     string      `yaml:"base_url,omitempty"`
	Retry       RetryConfig   `yaml:"retry"`
	Circuit     CircuitConfig `yaml:"circuit"`
	Timeout     time.Duration `yaml:"timeout,omitempty"` // Per-attempt deadline
	MaxTokens   int           `yaml:"max_tokens,omitempty"`
	Temperature float32       `yaml:"temperature,omitempty"`
}

// CircuitConfig controls when a failing summarizer stops being called.
type CircuitConfig struct {
	FailureThreshold int           `yaml:"failure_threshold,omitempty"`
	SuccessThreshold int           `yaml:"success_threshold,omitempty"`
	Cooldown         time.Duration `yaml:"cooldown,omitempty"`
}

// RetryConfig defines retry behavior for summarizer calls.
type RetryConfig struct {
	MaxAttempts   int           `yaml:"max_attempts,omitempty"`
	InitialDelay  time.Duration `yaml:"initial_delay,omitempty"`
	MaxDelay      time.Duration `yaml:"max_delay,omitempty"`
	BackoffFactor float64       `yaml:"backoff_factor,omitempty"`
	Jitter        *bool         `yaml:"jitter,omitempty"`
}

// ComplianceConfig controls the compliance monitor.
type ComplianceConfig struct {
	Enabled       *bool `yaml:"enabled,omitempty"`
	LogViolations *bool `yaml:"log_violations,omitempty"`
}

// MetricsConfig controls prometheus metrics.
type MetricsConfig struct {
	Namespace string `yaml:"namespace,omitempty"`
	Enabled   bool   `yaml:"enabled"`
}

// EventLogConfig selects the event log backend and the optional JSONL mirror.
type EventLogConfig struct {
	Backend    string `yaml:"backend,omitempty"`
	SQLitePath string `yaml:"sqlite_path,omitempty"`
	JSONLDir   string `yaml:"jsonl_dir,omitempty"`
}

// IsEnabled reports whether the compliance monitor should run.
func (c ComplianceConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// ShouldLogViolations reports whether violations are written to the log.
func (c ComplianceConfig) ShouldLogViolations() bool {
	return c.LogViolations == nil || *c.LogViolations
}

// Requests reports whether the condenser reacts to condensation requests.
func (c *CondenserConfig) Requests() bool {
	return c.HandlesRequests == nil || *c.HandlesRequests
}

// First returns keep_first after defaults have been applied.
func (c *CondenserConfig) First() int {
	if c.KeepFirst == nil {
		return DefaultKeepFirst
	}
	return *c.KeepFirst
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// GetAPIKey returns the API key for a provider, checking decrypted secrets before the
// environment. For Ollama it returns the host URL instead.
func GetAPIKey(provider string) (string, error) {
	var envVars []string
	switch provider {
	case ProviderAnthropic:
		envVars = []string{EnvAnthropicAPIKey}
	case ProviderOpenAI:
		envVars = []string{EnvOpenAIAPIKey}
	case ProviderGoogle:
		envVars = []string{EnvGoogleAPIKey, EnvGeminiAPIKey}
	case ProviderOllama:
		if host := os.Getenv(EnvOllamaHost); host != "" {
			return host, nil
		}
		return DefaultOllamaHost, nil
	default:
		return "", fmt.Errorf("unknown provider: %s", provider)
	}

	for _, envVar := range envVars {
		if key, err := GetSecret(envVar); err == nil && key != "" {
			return key, nil
		}
	}

	return "", fmt.Errorf("API key not found: %s not set in secrets file or environment", strings.Join(envVars, " or "))
}

func boolPtr(b bool) *bool { return &b }

func intPtr(i int) *int { return &i }

// applyDefaults sets default values for missing configuration.
func applyDefaults(cfg *Config) {
	if cfg.Summarizer != nil {
		s := cfg.Summarizer
		if s.Provider == "" && s.Model != "" {
			if provider, err := GetModelProvider(s.Model); err == nil {
				s.Provider = provider
			}
		}
		if s.MaxTokens == 0 {
			s.MaxTokens = DefaultSummaryMaxTokens
		}
		if s.Temperature == 0 {
			s.Temperature = DefaultTemperature
		}
		if s.Retry.MaxAttempts == 0 {
			s.Retry.MaxAttempts = DefaultRetryAttempts
		}
		if s.Retry.InitialDelay == 0 {
			s.Retry.InitialDelay = DefaultRetryDelay
		}
		if s.Retry.MaxDelay == 0 {
			s.Retry.MaxDelay = DefaultRetryMaxDelay
		}
		if s.Retry.BackoffFactor == 0 {
			s.Retry.BackoffFactor = DefaultRetryBackoff
		}
		if s.Retry.Jitter == nil {
			s.Retry.Jitter = boolPtr(true)
		}
		if s.Timeout == 0 {
			s.Timeout = DefaultSummaryTimeout
		}
		if s.Circuit.FailureThreshold == 0 {
			s.Circuit.FailureThreshold = DefaultCircuitFailures
		}
		if s.Circuit.SuccessThreshold == 0 {
			s.Circuit.SuccessThreshold = DefaultCircuitSuccesses
		}
		if s.Circuit.Cooldown == 0 {
			s.Circuit.Cooldown = DefaultCircuitCooldown
		}
	}

	if cfg.Condenser.Type == "" {
		if cfg.Summarizer != nil {
			cfg.Condenser.Type = CondenserLLMSummarizing
		} else {
			cfg.Condenser.Type = CondenserRolling
		}
	}
	applyCondenserDefaults(&cfg.Condenser)

	if cfg.Compliance.Enabled == nil {
		cfg.Compliance.Enabled = boolPtr(true)
	}
	if cfg.Compliance.LogViolations == nil {
		cfg.Compliance.LogViolations = boolPtr(true)
	}

	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}

	if cfg.EventLog.Backend == "" {
		cfg.EventLog.Backend = EventLogMemory
	}
}

func applyCondenserDefaults(c *CondenserConfig) {
	switch c.Type {
	case CondenserRolling, CondenserLLMSummarizing, CondenserForce:
		if c.MaxSize == 0 {
			c.MaxSize = DefaultMaxSize
		}
		if c.KeepFirst == nil {
			c.KeepFirst = intPtr(DefaultKeepFirst)
		}
		if c.HandlesRequests == nil {
			c.HandlesRequests = boolPtr(true)
		}
	case CondenserTokenBudget:
		if c.MaxTokens == 0 {
			c.MaxTokens = DefaultMaxTokens
		}
		if c.KeepFirst == nil {
			c.KeepFirst = intPtr(DefaultKeepFirst)
		}
	case CondenserObservationMasking:
		if c.AttentionWindow == 0 {
			c.AttentionWindow = DefaultAttentionWindow
		}
	}

	for i := range c.Stages {
		if c.Stages[i].Type == "" {
			c.Stages[i].Type = CondenserRolling
		}
		applyCondenserDefaults(&c.Stages[i])
	}
}

// validateConfig checks structure only. Credentials are resolved when clients are built.
func validateConfig(cfg *Config) error {
	if err := validateCondenser(&cfg.Condenser, cfg.Summarizer != nil, "condenser"); err != nil {
		return err
	}

	if s := cfg.Summarizer; s != nil {
		if s.Model == "" {
			return fmt.Errorf("summarizer model cannot be empty")
		}
		switch s.Provider {
		case ProviderAnthropic, ProviderOpenAI, ProviderGoogle, ProviderOllama:
		case "":
			return fmt.Errorf("summarizer provider could not be inferred from model %q", s.Model)
		default:
			return fmt.Errorf("unknown summarizer provider %q", s.Provider)
		}
		if s.MaxTokens <= 0 {
			return fmt.Errorf("summarizer max_tokens must be positive (got %d)", s.MaxTokens)
		}
		if s.Temperature < 0 || s.Temperature > 2 {
			return fmt.Errorf("summarizer temperature must be between 0 and 2 (got %.2f)", s.Temperature)
		}
		if s.Retry.MaxAttempts < 1 {
			return fmt.Errorf("summarizer retry max_attempts must be at least 1")
		}
		if s.Timeout < 0 {
			return fmt.Errorf("summarizer timeout cannot be negative (got %v)", s.Timeout)
		}
		if s.Circuit.FailureThreshold < 1 || s.Circuit.SuccessThreshold < 1 || s.Circuit.Cooldown < 0 {
			return fmt.Errorf("summarizer circuit thresholds must be positive and cooldown non-negative")
		}
	}

	switch cfg.EventLog.Backend {
	case EventLogMemory:
	case EventLogSQLite:
		if cfg.EventLog.SQLitePath == "" {
			return fmt.Errorf("eventlog backend sqlite requires sqlite_path")
		}
	default:
		return fmt.Errorf("unknown eventlog backend %q", cfg.EventLog.Backend)
	}

	return nil
}

func validateCondenser(c *CondenserConfig, hasSummarizer bool, path string) error {
	if c.KeepFirst != nil && *c.KeepFirst < 0 {
		return fmt.Errorf("%s: keep_first cannot be negative", path)
	}

	switch c.Type {
	case CondenserNoOp:
	case CondenserRolling, CondenserLLMSummarizing:
		if c.MaxSize < 2 {
			return fmt.Errorf("%s: max_size must be at least 2 (got %d)", path, c.MaxSize)
		}
		if c.First() >= c.MaxSize/2 {
			return fmt.Errorf("%s: keep_first (%d) must be less than max_size/2 (%d)", path, c.First(), c.MaxSize/2)
		}
		if c.Type == CondenserLLMSummarizing && !hasSummarizer {
			return fmt.Errorf("%s: llm_summarizing requires a summarizer section", path)
		}
	case CondenserForce:
		if len(c.Stages) > 1 {
			return fmt.Errorf("%s: force wraps at most one stage", path)
		}
		for i := range c.Stages {
			switch c.Stages[i].Type {
			case CondenserRolling, CondenserLLMSummarizing:
			default:
				return fmt.Errorf("%s: force can only wrap rolling or llm_summarizing, got %q", path, c.Stages[i].Type)
			}
		}
	case CondenserTokenBudget:
		if c.MaxTokens <= 0 {
			return fmt.Errorf("%s: max_tokens must be positive", path)
		}
	case CondenserObservationMasking:
		if c.AttentionWindow <= 0 {
			return fmt.Errorf("%s: attention_window must be positive", path)
		}
	case CondenserPipeline:
		if len(c.Stages) == 0 {
			return fmt.Errorf("%s: pipeline requires at least one stage", path)
		}
	default:
		return fmt.Errorf("%s: unknown condenser type %q", path, c.Type)
	}

	for i := range c.Stages {
		if err := validateCondenser(&c.Stages[i], hasSummarizer, fmt.Sprintf("%s.stages[%d]", path, i)); err != nil {
			return err
		}
	}
	return nil
}
