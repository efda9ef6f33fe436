package config

import "strings"

// decodeSettings builds a Settings from a raw YAML document decoded into a
// generic map, accepting each recognized key in camelCase or snake_case
// and preferring camelCase when both are present (spec §6). yaml.v3's
// struct-tag decoding can express only one fixed key name per field, so
// this package decodes to map[string]any first and performs its own
// dual-key field lookup rather than relying on struct tags, mirroring the
// teacher's pattern of a second pass (applyEnvOverrides) layered on top of
// a straight yaml.Unmarshal, generalized to casing instead of environment.
func decodeSettings(raw map[string]any) Settings {
	var s Settings

	if v, ok := pick(raw, "defaultModel", "default_model"); ok {
		s.DefaultModel = parseModelConfig(v)
	}
	if v, ok := pick(raw, "scopedModels", "scoped_models"); ok {
		if list, ok := v.([]any); ok {
			for _, item := range list {
				if mc := parseModelConfig(item); mc != nil {
					s.ScopedModels = append(s.ScopedModels, *mc)
				}
			}
		}
	}
	if v, ok := pickString(raw, "defaultThinkingLevel", "default_thinking_level"); ok {
		s.DefaultThinkingLevel = ThinkingLevel(v)
	}

	if v, ok := pick(raw, "providers", "providers"); ok {
		if m, ok := v.(map[string]any); ok {
			s.Providers = make(map[string]ProviderConfig, len(m))
			for name, pv := range m {
				if pm, ok := pv.(map[string]any); ok {
					apiKey, _ := pickString(pm, "apiKey", "api_key")
					baseURL, _ := pickString(pm, "baseUrl", "base_url")
					s.Providers[name] = ProviderConfig{APIKey: apiKey, BaseURL: baseURL}
				}
			}
		}
	}

	if v, ok := pickBool(raw, "compactionEnabled", "compaction_enabled"); ok {
		s.CompactionEnabled = &v
	}
	if v, ok := pickInt(raw, "reserveTokens", "reserve_tokens"); ok {
		s.ReserveTokens = v
	}
	if v, ok := pickInt(raw, "keepRecentTokens", "keep_recent_tokens"); ok {
		s.KeepRecentTokens = v
	}

	if v, ok := pickBool(raw, "retryEnabled", "retry_enabled"); ok {
		s.RetryEnabled = &v
	}
	if v, ok := pickInt(raw, "maxRetries", "max_retries"); ok {
		s.MaxRetries = v
	}
	if v, ok := pickInt(raw, "baseDelayMs", "base_delay_ms"); ok {
		s.BaseDelayMs = v
	}

	if v, ok := pickString(raw, "shellPath", "shell_path"); ok {
		s.ShellPath = v
	}
	if v, ok := pickString(raw, "commandPrefix", "command_prefix"); ok {
		s.CommandPrefix = v
	}

	if v, ok := pickBool(raw, "autoResizeImages", "auto_resize_images"); ok {
		s.AutoResizeImages = &v
	}

	if v, ok := pick(raw, "extensionPaths", "extension_paths"); ok {
		if list, ok := v.([]any); ok {
			for _, item := range list {
				if str, ok := item.(string); ok {
					s.ExtensionPaths = append(s.ExtensionPaths, str)
				}
			}
		}
	}

	if v, ok := pickString(raw, "theme", "theme"); ok {
		s.Theme = v
	}

	return s
}

// pick looks up camel first, then snake, in m; camel wins if both are set.
func pick(m map[string]any, camel, snake string) (any, bool) {
	if v, ok := m[camel]; ok {
		return v, true
	}
	if v, ok := m[snake]; ok {
		return v, true
	}
	return nil, false
}

func pickString(m map[string]any, camel, snake string) (string, bool) {
	v, ok := pick(m, camel, snake)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func pickBool(m map[string]any, camel, snake string) (bool, bool) {
	v, ok := pick(m, camel, snake)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

func pickInt(m map[string]any, camel, snake string) (int, bool) {
	v, ok := pick(m, camel, snake)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func parseModelConfig(v any) *ModelConfig {
	switch val := v.(type) {
	case string:
		provider, modelID, ok := strings.Cut(val, ":")
		if !ok {
			return &ModelConfig{ModelID: val}
		}
		return &ModelConfig{Provider: provider, ModelID: modelID}
	case map[string]any:
		provider, _ := pickString(val, "provider", "provider")
		modelID, _ := pickString(val, "modelId", "model_id")
		baseURL, _ := pickString(val, "baseUrl", "base_url")
		return &ModelConfig{Provider: provider, ModelID: modelID, BaseURL: baseURL}
	default:
		return nil
	}
}
