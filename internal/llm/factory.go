package llm

import (
	"fmt"

	"github.com/mohammad-safakhou/guidekg/config"
	"github.com/mohammad-safakhou/guidekg/internal/agent/core"
)

// NewProvider builds the core.LLMProvider that serves a given routing
// model, searching the configured providers for one that declares it.
func NewProvider(cfg config.LLMConfig, model string) (core.LLMProvider, error) {
	for name, providerCfg := range cfg.Providers {
		if _, ok := modelIndex(providerCfg)[model]; !ok {
			continue
		}
		provider, err := newProvider(providerCfg)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", name, err)
		}
		return provider, nil
	}
	return nil, fmt.Errorf("no configured provider serves model %q", model)
}

func newProvider(cfg config.LLMProvider) (core.LLMProvider, error) {
	switch cfg.Type {
	case "openai":
		return NewOpenAIProvider(cfg)
	case "ollama":
		return NewOllamaProvider(cfg)
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
}

// modelIndex keys a provider's models by their routing name.
func modelIndex(cfg config.LLMProvider) map[string]config.LLMModel {
	index := make(map[string]config.LLMModel, len(cfg.Models))
	for alias, model := range cfg.Models {
		if model.Name == "" {
			model.Name = alias
		}
		index[model.Name] = model
	}
	return index
}

func modelNames(models map[string]config.LLMModel) []string {
	names := make([]string, 0, len(models))
	for name := range models {
		names = append(names, name)
	}
	return names
}

// apiName is the vendor-facing model identifier, defaulting to the routing
// name when no override is configured.
func apiName(model config.LLMModel) string {
	if model.APIName != "" {
		return model.APIName
	}
	return model.Name
}
