// Package anthropic adapts github.com/anthropics/anthropic-sdk-go to the
// llm.Backend interface. Anthropic has no native strict-JSON-schema response
// mode in the subset this project uses, so SupportsSchema reports false and
// the Gateway validates GenerateStructured's output itself.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"chaptersynth/internal/config"
	"chaptersynth/internal/llm"
)

const defaultMaxTokens int64 = 2048

// Client is the Anthropic llm.Backend implementation.
type Client struct {
	sdk       anthropic.Client
	model     string
	maxTokens int64
	rates     llm.RateTable
}

// New builds an Anthropic Client from the gateway's provider config.
func New(cfg config.ProviderConfig, httpClient *http.Client, rates llm.RateTable) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithHTTPClient(httpClient),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}
	return &Client{
		sdk:       anthropic.NewClient(opts...),
		model:     model,
		maxTokens: defaultMaxTokens,
		rates:     rates,
	}
}

func (c *Client) ID() string           { return "anthropic" }
func (c *Client) SupportsSchema() bool { return false }

func (c *Client) rate(model string) llm.ModelRate {
	if c.rates == nil {
		return llm.ModelRate{}
	}
	return c.rates.Rate(c.ID(), model)
}

// GenerateText implements one-shot text generation over Messages.New.
func (c *Client) GenerateText(ctx context.Context, req llm.TextRequest) (llm.TextResult, error) {
	params := c.baseParams(req)
	resp, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		return llm.TextResult{}, fmt.Errorf("anthropic generate_text: %w", err)
	}
	text := textFromBlocks(resp)
	in, out := int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens)
	rate := c.rate(string(params.Model))
	return llm.TextResult{
		Text:         text,
		ProviderID:   c.ID(),
		ModelID:      string(params.Model),
		InputTokens:  in,
		OutputTokens: out,
		CostUSD:      llm.ComputeCost(rate, in, out),
	}, nil
}

// GenerateStructured asks for a JSON object in the prompt (Anthropic has no
// native schema-enforced response mode in this project's narrow usage) and
// lets the Gateway validate the parsed object against req.Schema.
func (c *Client) GenerateStructured(ctx context.Context, req llm.TextRequest) (llm.StructuredResult, error) {
	structuredReq := req
	structuredReq.SystemPrompt = strings.TrimSpace(req.SystemPrompt + "\n\nRespond with a single JSON object only, no prose, no markdown fences.")
	params := c.baseParams(structuredReq)
	resp, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		return llm.StructuredResult{}, fmt.Errorf("anthropic generate_structured: %w", err)
	}
	raw := extractJSONObject(textFromBlocks(resp))
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return llm.StructuredResult{}, fmt.Errorf("anthropic generate_structured: decode response: %w", err)
	}
	in, out := int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens)
	rate := c.rate(string(params.Model))
	return llm.StructuredResult{
		Data:         data,
		ProviderID:   c.ID(),
		ModelID:      string(params.Model),
		InputTokens:  in,
		OutputTokens: out,
		CostUSD:      llm.ComputeCost(rate, in, out),
	}, nil
}

// GenerateEmbedding is not offered by Anthropic; the routing table never
// sends embedding tasks here, but the method exists to satisfy Backend.
func (c *Client) GenerateEmbedding(ctx context.Context, text, model string) (llm.EmbeddingResult, error) {
	return llm.EmbeddingResult{}, fmt.Errorf("anthropic: generate_embedding not supported")
}

// AnalyzeImage sends an inline base64 image block alongside the prompt.
func (c *Client) AnalyzeImage(ctx context.Context, image []byte, prompt string, maxTokens int) (llm.ImageResult, error) {
	mt := c.maxTokens
	if maxTokens > 0 {
		mt = int64(maxTokens)
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: mt,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64("image/png", encodeBase64(image)),
				anthropic.NewTextBlock(prompt),
			),
		},
	}
	resp, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		return llm.ImageResult{}, fmt.Errorf("anthropic analyze_image: %w", err)
	}
	in, out := int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens)
	rate := c.rate(c.model)
	return llm.ImageResult{
		Text:         textFromBlocks(resp),
		ProviderID:   c.ID(),
		ModelID:      c.model,
		InputTokens:  in,
		OutputTokens: out,
		CostUSD:      llm.ComputeCost(rate, in, out),
	}, nil
}

func (c *Client) baseParams(req llm.TextRequest) anthropic.MessageNewParams {
	maxTokens := c.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	return params
}

func textFromBlocks(resp *anthropic.Message) string {
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

// extractJSONObject trims any prose/fencing the model adds around a JSON
// object despite instructions, returning the first balanced {...} span.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

func encodeBase64(b []byte) string {
	const enc = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"
	var out strings.Builder
	for i := 0; i < len(b); i += 3 {
		var n uint32
		rem := len(b) - i
		n = uint32(b[i]) << 16
		if rem > 1 {
			n |= uint32(b[i+1]) << 8
		}
		if rem > 2 {
			n |= uint32(b[i+2])
		}
		out.WriteByte(enc[(n>>18)&0x3F])
		out.WriteByte(enc[(n>>12)&0x3F])
		if rem > 1 {
			out.WriteByte(enc[(n>>6)&0x3F])
		} else {
			out.WriteByte('=')
		}
		if rem > 2 {
			out.WriteByte(enc[n&0x3F])
		} else {
			out.WriteByte('=')
		}
	}
	return out.String()
}
