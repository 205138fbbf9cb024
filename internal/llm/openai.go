package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/mohammad-safakhou/guidekg/config"
	"github.com/mohammad-safakhou/guidekg/internal/agent/core"
)

// OpenAIProvider implements core.LLMProvider on the OpenAI chat completions
// API. It also serves OpenAI-compatible endpoints through the base URL
// override.
type OpenAIProvider struct {
	client *openai.Client
	config config.LLMProvider
	models map[string]config.LLMModel
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(cfg config.LLMProvider) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
		models: modelIndex(cfg),
	}, nil
}

func (p *OpenAIProvider) Generate(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, error) {
	text, _, _, err := p.GenerateWithTokens(ctx, prompt, model, options)
	return text, err
}

func (p *OpenAIProvider) GenerateWithTokens(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, int64, int64, error) {
	modelCfg, ok := p.models[model]
	if !ok {
		return "", 0, 0, fmt.Errorf("model %q not configured for openai provider", model)
	}

	timeout := p.config.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	ctxWithTimeout, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: apiName(modelCfg),
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a clinical knowledge extraction assistant working within the OMOP CDM framework. Respond only with the requested JSON.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens:   modelCfg.MaxTokens,
		Temperature: float32(modelCfg.Temperature),
	}
	applyOptions(&req, options)

	resp, err := p.client.CreateChatCompletion(ctxWithTimeout, req)
	if err != nil {
		return "", 0, 0, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", 0, 0, fmt.Errorf("no response from OpenAI")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	return text, int64(resp.Usage.PromptTokens), int64(resp.Usage.CompletionTokens), nil
}

func (p *OpenAIProvider) GetAvailableModels() []string {
	return modelNames(p.models)
}

func (p *OpenAIProvider) GetModelInfo(model string) (core.ModelInfo, error) {
	modelCfg, ok := p.models[model]
	if !ok {
		return core.ModelInfo{}, fmt.Errorf("model %q not configured for openai provider", model)
	}
	return core.ModelInfo{
		Name:            model,
		Provider:        "openai",
		MaxTokens:       modelCfg.MaxTokens,
		CostPer1KInput:  modelCfg.CostPer1K,
		CostPer1KOutput: modelCfg.CostPer1KOutput,
	}, nil
}

func (p *OpenAIProvider) CalculateCost(inputTokens, outputTokens int64, model string) float64 {
	modelCfg, ok := p.models[model]
	if !ok {
		return 0
	}
	return float64(inputTokens)/1000.0*modelCfg.CostPer1K + float64(outputTokens)/1000.0*modelCfg.CostPer1KOutput
}

func applyOptions(req *openai.ChatCompletionRequest, options map[string]interface{}) {
	if options == nil {
		return
	}
	if v, ok := options["temperature"].(float64); ok {
		req.Temperature = float32(v)
	}
	if v, ok := options["max_tokens"].(int); ok {
		req.MaxTokens = v
	}
}
