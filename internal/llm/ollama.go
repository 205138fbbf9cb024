package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mohammad-safakhou/guidekg/config"
	"github.com/mohammad-safakhou/guidekg/internal/agent/core"
)

// OllamaProvider implements core.LLMProvider against a local Ollama server.
type OllamaProvider struct {
	baseURL    string
	httpClient *http.Client
	models     map[string]config.LLMModel
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	System  string        `json:"system,omitempty"`
	Options ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`

	PromptEvalCount int `json:"prompt_eval_count,omitempty"`
	EvalCount       int `json:"eval_count,omitempty"`
}

type ollamaError struct {
	Error string `json:"error"`
}

// NewOllamaProvider creates a new Ollama provider
func NewOllamaProvider(cfg config.LLMProvider) (*OllamaProvider, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		// Local models can be slow on long clinical documents.
		timeout = 10 * time.Minute
	}

	return &OllamaProvider{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		models:     modelIndex(cfg),
	}, nil
}

func (p *OllamaProvider) Generate(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, error) {
	text, _, _, err := p.GenerateWithTokens(ctx, prompt, model, options)
	return text, err
}

func (p *OllamaProvider) GenerateWithTokens(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, int64, int64, error) {
	modelCfg, ok := p.models[model]
	if !ok {
		return "", 0, 0, fmt.Errorf("model %q not configured for ollama provider", model)
	}

	apiReq := ollamaRequest{
		Model:  apiName(modelCfg),
		Prompt: prompt,
		Stream: false,
		System: "You are a clinical knowledge extraction assistant working within the OMOP CDM framework. Respond only with the requested JSON.",
		Options: ollamaOptions{
			Temperature: modelCfg.Temperature,
			NumPredict:  modelCfg.MaxTokens,
		},
	}

	resp, err := p.makeRequest(ctx, apiReq)
	if err != nil {
		return "", 0, 0, fmt.Errorf("ollama API error: %w", err)
	}

	text := strings.TrimSpace(resp.Response)
	inputTokens := int64(resp.PromptEvalCount)
	outputTokens := int64(resp.EvalCount)
	if inputTokens == 0 && outputTokens == 0 {
		// Some models omit counts; fall back to a rough 4 chars/token estimate.
		inputTokens = int64(len(prompt) / 4)
		outputTokens = int64(len(text) / 4)
	}
	return text, inputTokens, outputTokens, nil
}

func (p *OllamaProvider) GetAvailableModels() []string {
	return modelNames(p.models)
}

func (p *OllamaProvider) GetModelInfo(model string) (core.ModelInfo, error) {
	modelCfg, ok := p.models[model]
	if !ok {
		return core.ModelInfo{}, fmt.Errorf("model %q not configured for ollama provider", model)
	}
	return core.ModelInfo{
		Name:            model,
		Provider:        "ollama",
		MaxTokens:       modelCfg.MaxTokens,
		CostPer1KInput:  modelCfg.CostPer1K,
		CostPer1KOutput: modelCfg.CostPer1KOutput,
	}, nil
}

// CalculateCost is zero for local models unless a cost is configured.
func (p *OllamaProvider) CalculateCost(inputTokens, outputTokens int64, model string) float64 {
	modelCfg, ok := p.models[model]
	if !ok {
		return 0
	}
	return float64(inputTokens)/1000.0*modelCfg.CostPer1K + float64(outputTokens)/1000.0*modelCfg.CostPer1KOutput
}

func (p *OllamaProvider) makeRequest(ctx context.Context, apiReq ollamaRequest) (*ollamaResponse, error) {
	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/generate", p.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		var apiErr ollamaError
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("API error (%d): %s", httpResp.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("API error (%d): %s", httpResp.StatusCode, string(respBody))
	}

	var resp ollamaResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &resp, nil
}
