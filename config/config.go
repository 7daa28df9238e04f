// Package config loads webpilot settings from an optional YAML file and
// WEBPILOT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/martinemde/webpilot/agentloop"
	"github.com/martinemde/webpilot/browser"
	"github.com/martinemde/webpilot/llm"
	"github.com/martinemde/webpilot/memory"
)

// EnvPrefix is prepended to every environment variable, e.g.
// WEBPILOT_LLM_MODEL for llm.model.
const EnvPrefix = "WEBPILOT"

// Config represents the full webpilot configuration.
type Config struct {
	LLM      LLMConfig      `mapstructure:"llm"`
	History  HistoryConfig  `mapstructure:"history"`
	Document DocumentConfig `mapstructure:"document"`
	Agent    AgentConfig    `mapstructure:"agent"`
	Browser  browser.Config `mapstructure:"browser"`
	Log      LogConfig      `mapstructure:"log"`
}

// LLMConfig selects the model behind the oracle and the summarizer.
type LLMConfig struct {
	Provider       string  `mapstructure:"provider"`
	Model          string  `mapstructure:"model"`
	SummaryModel   string  `mapstructure:"summary_model"` // empty uses Model
	APIKey         string  `mapstructure:"api_key"`       // empty lets the provider SDK read its own variable
	Temperature    float64 `mapstructure:"temperature"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	MaxRetries     int     `mapstructure:"max_retries"`
	Tokenizer      string  `mapstructure:"tokenizer"` // tiktoken or approx
	TokenizerModel string  `mapstructure:"tokenizer_model"`
}

// HistoryConfig bounds the interaction history.
type HistoryConfig struct {
	MaxTokens        int     `mapstructure:"max_tokens"`
	TriggerThreshold float64 `mapstructure:"trigger_threshold"`
	TargetThreshold  float64 `mapstructure:"target_threshold"`
	MaxPasses        int     `mapstructure:"max_passes"`
}

// DocumentConfig bounds the agent's text file.
type DocumentConfig struct {
	MaxTokens int `mapstructure:"max_tokens"`
}

// AgentConfig tunes the turn loop.
type AgentConfig struct {
	MaxTurns            int    `mapstructure:"max_turns"`
	MaxPageChars        int    `mapstructure:"max_page_chars"`
	MaxPageLines        int    `mapstructure:"max_page_lines"`
	LoopDetection       bool   `mapstructure:"loop_detection"`
	LoopDetectionWindow int    `mapstructure:"loop_detection_window"`
	Instructions        string `mapstructure:"instructions"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json or console
}

// New returns a viper instance with defaults and environment binding. When
// path is empty, ./webpilot.yaml and $HOME/.config/webpilot/webpilot.yaml are
// searched and a missing file is not an error.
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		return v, nil
	}

	v.SetConfigName("webpilot")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/webpilot")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// Load reads the configuration from v and validates it.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so environment variables can override
// settings that no file mentions.
func setDefaults(v *viper.Viper) {
	history := memory.DefaultHistoryConfig()
	session := agentloop.DefaultSessionConfig()
	b := browser.DefaultConfig()

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.summary_model", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.max_retries", llm.DefaultRetryPolicy().MaxRetries)
	v.SetDefault("llm.tokenizer", "tiktoken")
	v.SetDefault("llm.tokenizer_model", "gpt-4o")

	v.SetDefault("history.max_tokens", history.MaxTokens)
	v.SetDefault("history.trigger_threshold", history.TriggerThreshold)
	v.SetDefault("history.target_threshold", history.TargetThreshold)
	v.SetDefault("history.max_passes", history.MaxPasses)

	v.SetDefault("document.max_tokens", session.DocumentMaxTokens)

	v.SetDefault("agent.max_turns", 50)
	v.SetDefault("agent.max_page_chars", session.MaxPageChars)
	v.SetDefault("agent.max_page_lines", session.MaxPageLines)
	v.SetDefault("agent.loop_detection", session.EnableLoopDetection)
	v.SetDefault("agent.loop_detection_window", session.LoopDetectionWindow)
	v.SetDefault("agent.instructions", "")

	v.SetDefault("browser.headless", b.Headless)
	v.SetDefault("browser.bin", b.Bin)
	v.SetDefault("browser.control_url", b.ControlURL)
	v.SetDefault("browser.navigation_timeout", b.NavigationTimeout)
	v.SetDefault("browser.settle_timeout", b.SettleTimeout)
	v.SetDefault("browser.viewport_width", b.ViewportWidth)
	v.SetDefault("browser.viewport_height", b.ViewportHeight)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if _, ok := llm.DefaultModels[c.LLM.Provider]; !ok {
		return fmt.Errorf("invalid llm provider: %q (must be one of %s)", c.LLM.Provider, strings.Join(knownProviders(), ", "))
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("llm max_tokens must be positive, got %d", c.LLM.MaxTokens)
	}
	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("llm max_retries must not be negative, got %d", c.LLM.MaxRetries)
	}
	switch c.LLM.Tokenizer {
	case "tiktoken", "approx":
	default:
		return fmt.Errorf("invalid tokenizer: %q (must be tiktoken or approx)", c.LLM.Tokenizer)
	}

	if info := llm.GetModelInfo(c.Model()); info != nil {
		if info.Provider != c.LLM.Provider {
			return fmt.Errorf("model %q belongs to provider %q, not %q", info.ID, info.Provider, c.LLM.Provider)
		}
		if budget := c.History.MaxTokens + c.Document.MaxTokens + c.LLM.MaxTokens; budget > info.ContextWindow {
			return fmt.Errorf("history, document and completion budgets (%d tokens) exceed the %d token context window of %s",
				budget, info.ContextWindow, info.ID)
		}
	}

	if err := c.HistoryConfig().Validate(); err != nil {
		return err
	}
	if c.Document.MaxTokens <= 0 {
		return fmt.Errorf("document max_tokens must be positive, got %d", c.Document.MaxTokens)
	}
	if c.Agent.MaxTurns < 0 {
		return fmt.Errorf("agent max_turns must not be negative, got %d", c.Agent.MaxTurns)
	}
	if c.Agent.LoopDetection && c.Agent.LoopDetectionWindow <= 0 {
		return fmt.Errorf("agent loop_detection_window must be positive, got %d", c.Agent.LoopDetectionWindow)
	}

	if err := c.Browser.Validate(); err != nil {
		return err
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %q (must be debug, info, warn or error)", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format: %q (must be json or console)", c.Log.Format)
	}
	return nil
}

// Model returns the configured oracle model with aliases expanded, or the
// provider default.
func (c *Config) Model() string {
	if c.LLM.Model != "" {
		return llm.ResolveModel(c.LLM.Model)
	}
	return llm.DefaultModels[c.LLM.Provider]
}

// SummaryModel returns the model used for history compaction.
func (c *Config) SummaryModel() string {
	if c.LLM.SummaryModel != "" {
		return llm.ResolveModel(c.LLM.SummaryModel)
	}
	return c.Model()
}

// RetryPolicy returns the retry policy for model requests.
func (c *Config) RetryPolicy() llm.RetryPolicy {
	p := llm.DefaultRetryPolicy()
	p.MaxRetries = c.LLM.MaxRetries
	return p
}

// HistoryConfig maps the history section onto memory.HistoryConfig.
func (c *Config) HistoryConfig() memory.HistoryConfig {
	return memory.HistoryConfig{
		MaxTokens:        c.History.MaxTokens,
		TriggerThreshold: c.History.TriggerThreshold,
		TargetThreshold:  c.History.TargetThreshold,
		MaxPasses:        c.History.MaxPasses,
	}
}

// SessionConfig maps the configuration onto agentloop.SessionConfig.
func (c *Config) SessionConfig() agentloop.SessionConfig {
	s := agentloop.DefaultSessionConfig()
	s.History = c.HistoryConfig()
	s.DocumentMaxTokens = c.Document.MaxTokens
	s.MaxTurns = c.Agent.MaxTurns
	s.MaxPageChars = c.Agent.MaxPageChars
	s.MaxPageLines = c.Agent.MaxPageLines
	s.EnableLoopDetection = c.Agent.LoopDetection
	s.LoopDetectionWindow = c.Agent.LoopDetectionWindow
	s.UserInstructions = c.Agent.Instructions
	return s
}

// Tokenizer builds the configured tokenizer.
func (c *Config) Tokenizer() (memory.Tokenizer, error) {
	if c.LLM.Tokenizer == "approx" {
		return memory.ApproxTokenizer, nil
	}
	return memory.NewTiktokenTokenizer(c.LLM.TokenizerModel)
}

func knownProviders() []string {
	names := make([]string, 0, len(llm.DefaultModels))
	for name := range llm.DefaultModels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Effective renders every setting v resolves as YAML, with secrets
// redacted.
func Effective(v *viper.Viper) ([]byte, error) {
	settings := v.AllSettings()
	if section, ok := settings["llm"].(map[string]interface{}); ok {
		if key, _ := section["api_key"].(string); key != "" {
			section["api_key"] = "REDACTED"
		}
	}
	out, err := yaml.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("render config: %w", err)
	}
	return out, nil
}
