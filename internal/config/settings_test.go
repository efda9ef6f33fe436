package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSettings(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing settings fixture: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeSettings(t, `theme: dark`)

	s, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Theme != "dark" {
		t.Fatalf("expected theme dark, got %q", s.Theme)
	}
	if s.CompactionEnabled == nil || !*s.CompactionEnabled {
		t.Fatalf("expected compactionEnabled to default true")
	}
	if s.ReserveTokens != 16384 {
		t.Fatalf("expected reserveTokens default 16384, got %d", s.ReserveTokens)
	}
	if s.DefaultThinkingLevel != ThinkingOff {
		t.Fatalf("expected defaultThinkingLevel default off, got %q", s.DefaultThinkingLevel)
	}
}

func TestLoadPreservesExplicitFalse(t *testing.T) {
	path := writeSettings(t, `compactionEnabled: false`)

	s, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.CompactionEnabled == nil || *s.CompactionEnabled {
		t.Fatalf("expected compactionEnabled explicitly false to be preserved")
	}
}

func TestSnakeCaseAcceptedWhenCamelCaseAbsent(t *testing.T) {
	path := writeSettings(t, `
theme: fromCamel
shell_path: fromSnake
`)

	s, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Theme != "fromCamel" {
		t.Fatalf("expected camelCase-only key to apply, got %q", s.Theme)
	}
	if s.ShellPath != "fromSnake" {
		t.Fatalf("expected snake_case fallback to apply when camelCase absent, got %q", s.ShellPath)
	}
}

func TestCamelCaseWinsOnConflict(t *testing.T) {
	path := writeSettings(t, `
maxRetries: 7
max_retries: 2
`)

	s, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.MaxRetries != 7 {
		t.Fatalf("expected camelCase value 7 to win, got %d", s.MaxRetries)
	}
}

func TestProjectOverridesGlobalScalars(t *testing.T) {
	globalPath := writeSettings(t, `
theme: light
maxRetries: 5
`)
	projectPath := writeSettings(t, `theme: dark`)

	s, err := Load(globalPath, projectPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Theme != "dark" {
		t.Fatalf("expected project theme to override global, got %q", s.Theme)
	}
	if s.MaxRetries != 5 {
		t.Fatalf("expected global maxRetries to survive when project doesn't set it, got %d", s.MaxRetries)
	}
}

func TestListFieldsConcatenateGlobalThenProject(t *testing.T) {
	globalPath := writeSettings(t, `extensionPaths: ["/global/a", "/global/b"]`)
	projectPath := writeSettings(t, `extensionPaths: ["/project/c"]`)

	s, err := Load(globalPath, projectPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"/global/a", "/global/b", "/project/c"}
	if len(s.ExtensionPaths) != len(want) {
		t.Fatalf("expected %v, got %v", want, s.ExtensionPaths)
	}
	for i := range want {
		if s.ExtensionPaths[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, s.ExtensionPaths)
		}
	}
}

func TestProviderMapsShallowMergeProjectWins(t *testing.T) {
	globalPath := writeSettings(t, `
providers:
  anthropic: {apiKey: global-key}
  openai: {apiKey: global-openai-key}
`)
	projectPath := writeSettings(t, `
providers:
  anthropic: {apiKey: project-key}
`)

	s, err := Load(globalPath, projectPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Providers["anthropic"].APIKey != "project-key" {
		t.Fatalf("expected project to override anthropic key, got %q", s.Providers["anthropic"].APIKey)
	}
	if s.Providers["openai"].APIKey != "global-openai-key" {
		t.Fatalf("expected global-only openai entry preserved, got %q", s.Providers["openai"].APIKey)
	}
}

func TestDefaultModelShorthandString(t *testing.T) {
	path := writeSettings(t, `defaultModel: "anthropic:claude-x"`)

	s, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.DefaultModel == nil {
		t.Fatalf("expected defaultModel to be parsed")
	}
	if s.DefaultModel.Provider != "anthropic" || s.DefaultModel.ModelID != "claude-x" {
		t.Fatalf("expected provider=anthropic modelId=claude-x, got %+v", s.DefaultModel)
	}
}

func TestInvalidThinkingLevelRejected(t *testing.T) {
	path := writeSettings(t, `defaultThinkingLevel: "extreme"`)

	if _, err := Load(path, ""); err == nil {
		t.Fatalf("expected validation error for invalid thinking level")
	}
}

func TestMissingSettingsFileIsNotAnError(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"), "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Theme != "default" {
		t.Fatalf("expected default theme when no file present, got %q", s.Theme)
	}
}
