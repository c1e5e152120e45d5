// ABOUTME: Settings loading with global + project YAML config merge and CLI overrides
// ABOUTME: Zero-valued fields never override; ${VAR} references are expanded after merging

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Render formats accepted by RenderSettings.Format.
const (
	FormatText = "text"
	FormatANSI = "ansi"
	FormatHTML = "html"
)

// Settings holds the merged configuration.
type Settings struct {
	BaseURL  string   `yaml:"base_url,omitempty"`
	APIKey   string   `yaml:"api_key,omitempty"`
	Provider string   `yaml:"provider,omitempty"`
	Model    string   `yaml:"model,omitempty"`
	Models   []string `yaml:"models,omitempty"`

	// CancelMarker is appended to a reply cancelled without backend text.
	CancelMarker string `yaml:"cancel_marker,omitempty"`
	// FlushInterval throttles display updates while streaming. Zero
	// updates on every chunk.
	FlushInterval time.Duration `yaml:"flush_interval,omitempty"`

	Render   RenderSettings `yaml:"render,omitempty"`
	LogLevel string         `yaml:"log_level,omitempty"`
	Redis    RedisSettings  `yaml:"redis,omitempty"`
}

// RenderSettings controls how replies are printed.
type RenderSettings struct {
	Format string `yaml:"format,omitempty"`
	// Width wraps ANSI output; zero uses the terminal width.
	Width int    `yaml:"width,omitempty"`
	Style string `yaml:"style,omitempty"`
}

// RedisSettings enables shared cache invalidation when Addr is set.
type RedisSettings struct {
	Addr    string `yaml:"addr,omitempty"`
	Channel string `yaml:"channel,omitempty"`
}

// Defaults returns the settings used when nothing is configured.
func Defaults() *Settings {
	return &Settings{
		BaseURL:  "http://localhost:3000",
		LogLevel: "warn",
		Render: RenderSettings{
			Format: FormatANSI,
			Style:  "monokai",
		},
		Redis: RedisSettings{Channel: "pi-chat:invalidate"},
	}
}

// Load reads global then project-local settings, applies overrides on top
// of both, and expands environment references. Missing files are skipped.
func Load(projectRoot string, overrides *Settings) (*Settings, error) {
	global, err := loadFile(GlobalConfigFile())
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading global config: %w", err)
	}

	project, err := loadFile(ProjectConfigFile(projectRoot))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	merged := merge(merge(merge(Defaults(), global), project), overrides)
	ResolveEnvVars(merged)
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return merged, nil
}

// loadFile reads Settings from a YAML file. Returns zero Settings if the
// file does not exist.
func loadFile(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return &Settings{}, err
	}
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &s, nil
}

// merge returns base with every non-zero field of over applied.
func merge(base, over *Settings) *Settings {
	if base == nil {
		base = &Settings{}
	}
	result := *base
	if over == nil {
		return &result
	}

	setString(&result.BaseURL, over.BaseURL)
	setString(&result.APIKey, over.APIKey)
	setString(&result.Provider, over.Provider)
	setString(&result.Model, over.Model)
	setString(&result.CancelMarker, over.CancelMarker)
	setString(&result.LogLevel, over.LogLevel)
	setString(&result.Render.Format, over.Render.Format)
	setString(&result.Render.Style, over.Render.Style)
	setString(&result.Redis.Addr, over.Redis.Addr)
	setString(&result.Redis.Channel, over.Redis.Channel)

	if len(over.Models) > 0 {
		result.Models = append([]string(nil), over.Models...)
	}
	if over.FlushInterval != 0 {
		result.FlushInterval = over.FlushInterval
	}
	if over.Render.Width != 0 {
		result.Render.Width = over.Render.Width
	}
	return &result
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate rejects settings the pipeline cannot run with.
func (s *Settings) Validate() error {
	switch s.Render.Format {
	case FormatText, FormatANSI, FormatHTML:
	default:
		return fmt.Errorf("unknown render format %q (want %s, %s or %s)",
			s.Render.Format, FormatText, FormatANSI, FormatHTML)
	}
	if s.FlushInterval < 0 {
		return fmt.Errorf("flush_interval must not be negative, got %s", s.FlushInterval)
	}
	if s.Render.Width < 0 {
		return fmt.Errorf("render.width must not be negative, got %d", s.Render.Width)
	}
	return nil
}
