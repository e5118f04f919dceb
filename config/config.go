// Package config loads toolflow settings from a TOML file with environment
// overrides and turns them into engine, registry and backend options.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/skosovsky/toolflow"
	"github.com/skosovsky/toolflow/backend/anthropic"
	"github.com/skosovsky/toolflow/backend/openai"
	"github.com/skosovsky/toolflow/chat"
	"github.com/skosovsky/toolflow/engine"
)

// Environment variables that override file values.
const (
	EnvAPIKey  = "TOOLFLOW_API_KEY"
	EnvBaseURL = "TOOLFLOW_BASE_URL"
	EnvModel   = "TOOLFLOW_MODEL"
)

// Providers understood by Backend.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config is the file schema.
type Config struct {
	Provider string       `toml:"provider"`
	Model    string       `toml:"model"`
	APIKey   string       `toml:"api_key"`
	BaseURL  string       `toml:"base_url"`
	LogLevel string       `toml:"log_level"`
	Engine   EngineConfig `toml:"engine"`
	Tools    ToolsConfig  `toml:"tools"`
	// Source is the file the config was read from, if any.
	Source string `toml:"-"`
}

// EngineConfig holds iteration settings.
type EngineConfig struct {
	MaxTurns   int    `toml:"max_turns"`
	ToolChoice string `toml:"tool_choice"`
	MaxTokens  int64  `toml:"max_tokens"`
}

// ToolsConfig holds registry settings.
type ToolsConfig struct {
	Timeout        Duration `toml:"timeout"`
	MaxConcurrency int      `toml:"max_concurrency"`
}

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Provider: ProviderOpenAI,
		LogLevel: "info",
		Engine: EngineConfig{
			MaxTurns:   engine.DefaultMaxTurns,
			ToolChoice: string(chat.ToolChoiceAuto),
		},
		Tools: ToolsConfig{
			Timeout: Duration{30 * time.Second},
		},
	}
}

// DefaultPath returns ~/.toolflow/config.toml, or "" when $HOME is unknown.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".toolflow", "config.toml")
}

// Merge applies non-zero values from source onto c.
func (c *Config) Merge(source *Config) {
	if source.Provider != "" {
		c.Provider = source.Provider
	}
	if source.Model != "" {
		c.Model = source.Model
	}
	if source.APIKey != "" {
		c.APIKey = source.APIKey
	}
	if source.BaseURL != "" {
		c.BaseURL = source.BaseURL
	}
	if source.LogLevel != "" {
		c.LogLevel = source.LogLevel
	}
	if source.Engine.MaxTurns > 0 {
		c.Engine.MaxTurns = source.Engine.MaxTurns
	}
	if source.Engine.ToolChoice != "" {
		c.Engine.ToolChoice = source.Engine.ToolChoice
	}
	if source.Engine.MaxTokens > 0 {
		c.Engine.MaxTokens = source.Engine.MaxTokens
	}
	if source.Tools.Timeout.Duration > 0 {
		c.Tools.Timeout = source.Tools.Timeout
	}
	if source.Tools.MaxConcurrency > 0 {
		c.Tools.MaxConcurrency = source.Tools.MaxConcurrency
	}
	if source.Source != "" {
		c.Source = source.Source
	}
}

// Load reads path (DefaultPath when empty) over Default and applies the
// environment overrides. A missing file is not an error. Unknown keys are.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath()
	}
	if path != "" {
		content, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			loaded, err := Parse(content)
			if err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
			loaded.Source = path
			cfg.Merge(&loaded)
		}
	}
	cfg.applyEnv()
	return cfg, cfg.Validate()
}

// Parse decodes TOML content without defaults or environment overrides.
func Parse(content []byte) (Config, error) {
	var cfg Config
	dec := toml.NewDecoder(bytes.NewReader(content))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if env := strings.TrimSpace(os.Getenv(EnvAPIKey)); env != "" {
		c.APIKey = env
	}
	if env := strings.TrimSpace(os.Getenv(EnvBaseURL)); env != "" {
		c.BaseURL = env
	}
	if env := strings.TrimSpace(os.Getenv(EnvModel)); env != "" {
		c.Model = env
	}
}

// Validate checks enumerated fields.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("config: unknown provider %q", c.Provider)
	}
	if _, err := c.toolChoice(); err != nil {
		return err
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func (c Config) toolChoice() (chat.ToolChoice, error) {
	mode, name, _ := strings.Cut(c.Engine.ToolChoice, ":")
	switch m := chat.ToolChoiceMode(strings.TrimSpace(mode)); m {
	case "", chat.ToolChoiceAuto, chat.ToolChoiceNone, chat.ToolChoiceRequired:
		return chat.ToolChoice{Mode: m}, nil
	case chat.ToolChoiceTool:
		name = strings.TrimSpace(name)
		if name == "" {
			return chat.ToolChoice{}, errors.New(`config: tool_choice "tool" needs a name, e.g. "tool:lookup"`)
		}
		return chat.ToolChoice{Mode: m, Name: name}, nil
	default:
		return chat.ToolChoice{}, fmt.Errorf("config: unknown tool_choice %q", c.Engine.ToolChoice)
	}
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(s) == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("config: %w", err)
	}
	return level, nil
}

// SlogLevel returns the configured log level, falling back to info.
func (c Config) SlogLevel() slog.Level {
	level, _ := parseLevel(c.LogLevel)
	return level
}

// EngineOptions converts the engine section. Invalid values are skipped;
// call Validate first to surface them.
func (c Config) EngineOptions(logger *slog.Logger) []engine.Option {
	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithMaxTurns(c.Engine.MaxTurns),
		engine.WithModel(c.Model),
	}
	if choice, err := c.toolChoice(); err == nil && choice.Mode != "" {
		opts = append(opts, engine.WithToolChoice(choice))
	}
	return opts
}

// RegistryOptions converts the tools section.
func (c Config) RegistryOptions() []toolflow.RegistryOption {
	opts := []toolflow.RegistryOption{
		toolflow.WithMaxConcurrency(c.Tools.MaxConcurrency),
	}
	if c.Tools.Timeout.Duration > 0 {
		opts = append(opts, toolflow.WithDefaultTimeout(c.Tools.Timeout.Duration))
	}
	return opts
}

// Backend builds the configured model backend.
func (c Config) Backend(logger *slog.Logger) (chat.Backend, error) {
	switch c.Provider {
	case ProviderOpenAI:
		return openai.New(openai.Options{
			APIKey:  c.APIKey,
			BaseURL: c.BaseURL,
			Model:   c.Model,
			Logger:  logger,
		})
	case ProviderAnthropic:
		return anthropic.New(anthropic.Options{
			APIKey:    c.APIKey,
			BaseURL:   c.BaseURL,
			Model:     c.Model,
			MaxTokens: c.Engine.MaxTokens,
			Logger:    logger,
		})
	default:
		return nil, fmt.Errorf("config: unknown provider %q", c.Provider)
	}
}
