// Package config loads and merges the Settings documents that configure an
// agentloop.Loop (spec §6): global and project-scoped YAML files, each key
// accepted in camelCase or snake_case with camelCase winning on conflict.
// Grounded on the teacher's internal/config/config.go Load/applyDefaults/
// applyEnvOverrides/validateConfig shape, adapted from a single
// fully-typed yaml.v3 struct decode (which cannot express "accept either
// casing, prefer one") to a two-stage decode: raw YAML into a generic key
// tree, then a manual dual-key extraction pass.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ThinkingLevel mirrors agentloop's enum without importing it, keeping
// config free of a dependency on the loop package it configures.
type ThinkingLevel string

const (
	ThinkingOff     ThinkingLevel = "off"
	ThinkingMinimal ThinkingLevel = "minimal"
	ThinkingLow     ThinkingLevel = "low"
	ThinkingMedium  ThinkingLevel = "medium"
	ThinkingHigh    ThinkingLevel = "high"
	ThinkingXHigh   ThinkingLevel = "xhigh"
)

func validThinkingLevel(v string) bool {
	switch ThinkingLevel(v) {
	case ThinkingOff, ThinkingMinimal, ThinkingLow, ThinkingMedium, ThinkingHigh, ThinkingXHigh:
		return true
	default:
		return false
	}
}

// ModelConfig identifies a model, either fully specified or built from the
// "<provider>:<modelId>" shorthand string (spec §6).
type ModelConfig struct {
	Provider string
	ModelID  string
	BaseURL  string
}

// ProviderConfig holds per-provider credentials (spec §6 `providers` map).
type ProviderConfig struct {
	APIKey  string
	BaseURL string
}

// Settings is the fully-merged, defaulted configuration surface for one
// agentloop.Loop (spec §6's "External Interfaces / Settings").
type Settings struct {
	DefaultModel         *ModelConfig
	ScopedModels         []ModelConfig
	DefaultThinkingLevel ThinkingLevel

	Providers map[string]ProviderConfig

	// CompactionEnabled and RetryEnabled are *bool, not bool, so a Settings
	// built from a decoded map can distinguish "key absent" (nil, apply
	// the documented default) from "key present and false" (respected as
	// false) — spec §9's REDESIGN FLAG calls out the naive `||` idiom that
	// collapses that distinction as a defect to avoid.
	CompactionEnabled *bool
	ReserveTokens     int
	KeepRecentTokens  int

	RetryEnabled *bool
	MaxRetries   int
	BaseDelayMs  int

	ShellPath     string
	CommandPrefix string

	AutoResizeImages *bool

	ExtensionPaths []string

	Theme string
}

// DefaultSettings returns the struct-literal defaults used when no map was
// decoded at all (e.g. programmatic construction in a test or a binary
// with no settings file). DefaultThinkingLevel is "medium" here, which
// differs from the "off" default that applyDefaults gives an absent key
// after Load decodes the settings files — spec §6 documents both defaults explicitly
// as distinct: "default `off` from map, `:medium` in struct defaults".
func DefaultSettings() Settings {
	trueVal := true
	return Settings{
		DefaultThinkingLevel: ThinkingMedium,
		Providers:            map[string]ProviderConfig{},
		CompactionEnabled:    &trueVal,
		ReserveTokens:        16384,
		KeepRecentTokens:     20000,
		RetryEnabled:         &trueVal,
		MaxRetries:           3,
		BaseDelayMs:          1000,
		AutoResizeImages:     &trueVal,
		Theme:                "default",
	}
}

// Load reads and merges a global settings file and an optional project
// settings file (spec §6's merge rules: project overrides global for
// scalars, list fields concatenate global-then-project, provider maps
// shallow-merge with project keys winning). Either path may be empty, in
// which case that layer contributes nothing.
func Load(globalPath, projectPath string) (Settings, error) {
	global, err := loadLayer(globalPath)
	if err != nil {
		return Settings{}, fmt.Errorf("loading global settings: %w", err)
	}
	project, err := loadLayer(projectPath)
	if err != nil {
		return Settings{}, fmt.Errorf("loading project settings: %w", err)
	}

	merged := Merge(global, project)
	applyEnvOverrides(&merged)
	applyDefaults(&merged)
	if err := validate(merged); err != nil {
		return Settings{}, err
	}
	return merged, nil
}

func loadLayer(path string) (Settings, error) {
	if strings.TrimSpace(path) == "" {
		return Settings{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Settings{}, nil
		}
		return Settings{}, err
	}

	expanded := os.ExpandEnv(string(data))
	var raw map[string]any
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return Settings{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return decodeSettings(raw), nil
}

// Merge combines a global and a project Settings layer per spec §6.
// Project always wins for scalars (including *bool fields: a project
// layer that set compactionEnabled explicitly, even to false, overrides
// global). Absent scalars (nil pointers, zero values) fall through to
// global.
func Merge(global, project Settings) Settings {
	out := global

	if project.DefaultModel != nil {
		out.DefaultModel = project.DefaultModel
	}
	out.ScopedModels = append(append([]ModelConfig{}, global.ScopedModels...), project.ScopedModels...)

	if project.DefaultThinkingLevel != "" {
		out.DefaultThinkingLevel = project.DefaultThinkingLevel
	}

	out.Providers = mergeProviders(global.Providers, project.Providers)

	if project.CompactionEnabled != nil {
		out.CompactionEnabled = project.CompactionEnabled
	}
	if project.ReserveTokens != 0 {
		out.ReserveTokens = project.ReserveTokens
	}
	if project.KeepRecentTokens != 0 {
		out.KeepRecentTokens = project.KeepRecentTokens
	}

	if project.RetryEnabled != nil {
		out.RetryEnabled = project.RetryEnabled
	}
	if project.MaxRetries != 0 {
		out.MaxRetries = project.MaxRetries
	}
	if project.BaseDelayMs != 0 {
		out.BaseDelayMs = project.BaseDelayMs
	}

	if project.ShellPath != "" {
		out.ShellPath = project.ShellPath
	}
	if project.CommandPrefix != "" {
		out.CommandPrefix = project.CommandPrefix
	}
	if project.AutoResizeImages != nil {
		out.AutoResizeImages = project.AutoResizeImages
	}

	out.ExtensionPaths = append(append([]string{}, global.ExtensionPaths...), project.ExtensionPaths...)

	if project.Theme != "" {
		out.Theme = project.Theme
	}

	return out
}

func mergeProviders(global, project map[string]ProviderConfig) map[string]ProviderConfig {
	out := make(map[string]ProviderConfig, len(global)+len(project))
	for k, v := range global {
		out[k] = v
	}
	for k, v := range project {
		out[k] = v
	}
	return out
}

func applyDefaults(s *Settings) {
	d := DefaultSettings()
	if s.CompactionEnabled == nil {
		s.CompactionEnabled = d.CompactionEnabled
	}
	if s.ReserveTokens == 0 {
		s.ReserveTokens = d.ReserveTokens
	}
	if s.KeepRecentTokens == 0 {
		s.KeepRecentTokens = d.KeepRecentTokens
	}
	if s.RetryEnabled == nil {
		s.RetryEnabled = d.RetryEnabled
	}
	if s.MaxRetries == 0 {
		s.MaxRetries = d.MaxRetries
	}
	if s.BaseDelayMs == 0 {
		s.BaseDelayMs = d.BaseDelayMs
	}
	if s.AutoResizeImages == nil {
		s.AutoResizeImages = d.AutoResizeImages
	}
	if s.Theme == "" {
		s.Theme = d.Theme
	}
	if s.DefaultThinkingLevel == "" {
		// Map-derived absence defaults to "off", not DefaultSettings'
		// "medium" (spec §6); see the DefaultSettings doc comment.
		s.DefaultThinkingLevel = ThinkingOff
	}
	if s.Providers == nil {
		s.Providers = map[string]ProviderConfig{}
	}
}

func applyEnvOverrides(s *Settings) {
	if v := strings.TrimSpace(os.Getenv("AGENTCORE_SHELL_PATH")); v != "" {
		s.ShellPath = v
	}
	if v := strings.TrimSpace(os.Getenv("AGENTCORE_MAX_RETRIES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.MaxRetries = n
		}
	}
}

type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "settings validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validate(s Settings) error {
	var issues []string

	if s.DefaultThinkingLevel != "" && !validThinkingLevel(string(s.DefaultThinkingLevel)) {
		issues = append(issues, fmt.Sprintf("defaultThinkingLevel %q is not one of off,minimal,low,medium,high,xhigh", s.DefaultThinkingLevel))
	}
	if s.ReserveTokens < 0 {
		issues = append(issues, "reserveTokens must be >= 0")
	}
	if s.KeepRecentTokens < 0 {
		issues = append(issues, "keepRecentTokens must be >= 0")
	}
	if s.MaxRetries < 0 {
		issues = append(issues, "maxRetries must be >= 0")
	}
	if s.BaseDelayMs < 0 {
		issues = append(issues, "baseDelayMs must be >= 0")
	}
	for i, m := range s.ScopedModels {
		if strings.TrimSpace(m.Provider) == "" || strings.TrimSpace(m.ModelID) == "" {
			issues = append(issues, fmt.Sprintf("scopedModels[%d] requires provider and modelId", i))
		}
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}
