package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/capitalize-ai/assistant/internal/model"
)

// DefaultModels is the catalog used when no models file is configured.
var DefaultModels = []model.ModelInfo{
	{Provider: "openai", Model: "o3-mini", Label: "o3-mini"},
	{Provider: "openai", Model: "gpt-4o", Label: "GPT-4o"},
	{Provider: "openai", Model: "gpt-4o-mini", Label: "GPT-4o mini"},
	{Provider: "anthropic", Model: "claude-sonnet-4-5", Label: "Claude Sonnet 4.5"},
	{Provider: "anthropic", Model: "claude-haiku-4-5", Label: "Claude Haiku 4.5"},
}

type modelsFile struct {
	Models []model.ModelInfo `yaml:"models"`
}

// LoadModels reads a YAML model catalog:
//
//	models:
//	  - provider: openai
//	    model: gpt-4o
//	    label: GPT-4o
//
// An empty path returns DefaultModels.
func LoadModels(path string) ([]model.ModelInfo, error) {
	if path == "" {
		return DefaultModels, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read models file: %w", err)
	}

	var f modelsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse models file: %w", err)
	}
	if len(f.Models) == 0 {
		return nil, errors.New("models file lists no models")
	}
	for i, m := range f.Models {
		if m.Provider == "" || m.Model == "" {
			return nil, fmt.Errorf("models[%d]: provider and model are required", i)
		}
		if m.Label == "" {
			f.Models[i].Label = m.Model
		}
	}
	return f.Models, nil
}

// FilterModels keeps the models whose provider has a client.
func FilterModels(models []model.ModelInfo, available func(provider string) bool) []model.ModelInfo {
	out := make([]model.ModelInfo, 0, len(models))
	for _, m := range models {
		if available(m.Provider) {
			out = append(out, m)
		}
	}
	return out
}
