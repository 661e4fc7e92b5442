// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// settingsEnvVar names the environment variable holding the path to the
// settings file.
const settingsEnvVar = "CLAUDE_MEM_SETTINGS"

const (
	defaultOpenRouterModel = "openai/gpt-4o-mini"
	defaultGeminiModel     = "gemini-2.0-flash"
)

// Settings selects an LLM provider and carries its credentials. Kept
// separate from [DaemonConfig] since it is the one file that holds
// secrets and may be managed with tighter permissions or a different
// deployment mechanism.
type Settings struct {
	// Provider selects the backend: "openrouter" or "gemini". Unknown
	// values fall back to OpenRouter; see [llm.Client].
	Provider string `yaml:"provider"`

	OpenRouter ProviderSettings `yaml:"openrouter"`
	Gemini     ProviderSettings `yaml:"gemini"`
}

// ProviderSettings holds one provider's API key and model name.
type ProviderSettings struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// DefaultSettings returns settings with the openrouter provider
// selected, default model names, and no keys configured. A file is required to supply
// at least the API key for whichever provider is selected.
func DefaultSettings() *Settings {
	return &Settings{
		Provider: "openrouter",
		OpenRouter: ProviderSettings{
			Model: defaultOpenRouterModel,
		},
		Gemini: ProviderSettings{
			Model: defaultGeminiModel,
		},
	}
}

// LoadSettings loads the settings file named by the CLAUDE_MEM_SETTINGS
// environment variable.
func LoadSettings() (*Settings, error) {
	path := os.Getenv(settingsEnvVar)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your settings file, or use --settings", settingsEnvVar)
	}
	return LoadSettingsFile(path)
}

// LoadSettingsFile loads settings from a specific file path, merging
// onto [DefaultSettings]. API key and model fields support ${VAR} and
// ${VAR:-default} expansion, so a checked-in settings file can defer
// the actual secret to the environment.
func LoadSettingsFile(path string) (*Settings, error) {
	settings := DefaultSettings()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	settings.OpenRouter.APIKey = expandVars(settings.OpenRouter.APIKey)
	settings.OpenRouter.Model = expandVars(settings.OpenRouter.Model)
	settings.Gemini.APIKey = expandVars(settings.Gemini.APIKey)
	settings.Gemini.Model = expandVars(settings.Gemini.Model)

	return settings, nil
}
