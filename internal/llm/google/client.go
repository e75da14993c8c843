// Package google adapts google.golang.org/genai to the llm.Backend
// interface. It is the first-choice vision-capable backend in the routing
// table and the only backend wired for AI-grounded external research
// (external_research_strategy=ai_only|hybrid, §4.B).
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	genai "google.golang.org/genai"

	"chaptersynth/internal/config"
	"chaptersynth/internal/llm"
)

// Client is the Google Gemini llm.Backend implementation.
type Client struct {
	client *genai.Client
	model  string
	rates  llm.RateTable
}

// New builds a Google Client from the gateway's provider config.
func New(cfg config.ProviderConfig, httpClient *http.Client, rates llm.RateTable) (*Client, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-1.5-flash"
	}
	httpOpts := genai.HTTPOptions{}
	if cfg.Timeout > 0 {
		t := cfg.Timeout
		httpOpts.Timeout = &t
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		httpOpts.BaseURL = strings.TrimSuffix(base, "/") + "/"
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      strings.TrimSpace(cfg.APIKey),
		HTTPClient:  httpClient,
		HTTPOptions: httpOpts,
	})
	if err != nil {
		return nil, fmt.Errorf("init google client: %w", err)
	}
	return &Client{client: client, model: model, rates: rates}, nil
}

func (c *Client) ID() string           { return "google" }
func (c *Client) SupportsSchema() bool { return false }

func (c *Client) rate(model string) llm.ModelRate {
	if c.rates == nil {
		return llm.ModelRate{}
	}
	return c.rates.Rate(c.ID(), model)
}

// GenerateText implements one-shot text generation over Models.GenerateContent.
func (c *Client) GenerateText(ctx context.Context, req llm.TextRequest) (llm.TextResult, error) {
	cfg := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		t := float32(req.Temperature)
		cfg.Temperature = &t
	}
	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return llm.TextResult{}, fmt.Errorf("google generate_text: %w", err)
	}
	in, out := usageTokens(resp)
	rate := c.rate(c.model)
	return llm.TextResult{
		Text:         textFromResponse(resp),
		ProviderID:   c.ID(),
		ModelID:      c.model,
		InputTokens:  in,
		OutputTokens: out,
		CostUSD:      llm.ComputeCost(rate, in, out),
	}, nil
}

// GenerateStructured requests JSON-only prose and lets the Gateway validate
// it against req.Schema — Gemini's native response_schema support is not
// exercised here since this project's schemas are a narrow closed subset
// already validated centrally in internal/llm.ValidateSchema.
func (c *Client) GenerateStructured(ctx context.Context, req llm.TextRequest) (llm.StructuredResult, error) {
	structured := req
	structured.SystemPrompt = strings.TrimSpace(req.SystemPrompt + "\n\nRespond with a single JSON object only, no prose, no markdown fences.")
	textResult, err := c.GenerateText(ctx, structured)
	if err != nil {
		return llm.StructuredResult{}, fmt.Errorf("google generate_structured: %w", err)
	}
	raw := extractJSONObject(textResult.Text)
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return llm.StructuredResult{}, fmt.Errorf("google generate_structured: decode response: %w", err)
	}
	return llm.StructuredResult{
		Data:         data,
		ProviderID:   textResult.ProviderID,
		ModelID:      textResult.ModelID,
		InputTokens:  textResult.InputTokens,
		OutputTokens: textResult.OutputTokens,
		CostUSD:      textResult.CostUSD,
	}, nil
}

// GenerateEmbedding implements the embedding operation over Models.EmbedContent.
func (c *Client) GenerateEmbedding(ctx context.Context, text, modelID string) (llm.EmbeddingResult, error) {
	model := modelID
	if model == "" {
		model = "text-embedding-004"
	}
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}
	resp, err := c.client.Models.EmbedContent(ctx, model, contents, nil)
	if err != nil {
		return llm.EmbeddingResult{}, fmt.Errorf("google generate_embedding: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return llm.EmbeddingResult{}, fmt.Errorf("google generate_embedding: empty response")
	}
	vec := make([]float32, len(resp.Embeddings[0].Values))
	copy(vec, resp.Embeddings[0].Values)
	return llm.EmbeddingResult{
		Vector:     vec,
		ProviderID: c.ID(),
		ModelID:    model,
	}, nil
}

// AnalyzeImage implements vision analysis, the task this backend is the
// first-choice provider for (§4.A routing table).
func (c *Client) AnalyzeImage(ctx context.Context, image []byte, prompt string, maxTokens int) (llm.ImageResult, error) {
	cfg := &genai.GenerateContentConfig{}
	if maxTokens > 0 {
		cfg.MaxOutputTokens = int32(maxTokens)
	}
	parts := []*genai.Part{
		genai.NewPartFromBytes(image, "image/png"),
		genai.NewPartFromText(prompt),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return llm.ImageResult{}, fmt.Errorf("google analyze_image: %w", err)
	}
	in, out := usageTokens(resp)
	rate := c.rate(c.model)
	return llm.ImageResult{
		Text:         textFromResponse(resp),
		ProviderID:   c.ID(),
		ModelID:      c.model,
		InputTokens:  in,
		OutputTokens: out,
		CostUSD:      llm.ComputeCost(rate, in, out),
	}, nil
}

func textFromResponse(resp *genai.GenerateContentResponse) string {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String()
}

func usageTokens(resp *genai.GenerateContentResponse) (int, int) {
	if resp.UsageMetadata == nil {
		return 0, 0
	}
	return int(resp.UsageMetadata.PromptTokenCount), int(resp.UsageMetadata.CandidatesTokenCount)
}

func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < 0 || end < start {
		return s
	}
	return s[start : end+1]
}
