// Package openai adapts github.com/openai/openai-go/v2 to the llm.Backend
// interface. It is the reference implementation of a schema-native backend:
// GenerateStructured asks the Responses API to enforce the caller's JSON
// schema strictly rather than relying on the Gateway's own validator.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	rs "github.com/openai/openai-go/v2/responses"

	"chaptersynth/internal/config"
	"chaptersynth/internal/llm"
)

// Client is the OpenAI llm.Backend implementation.
type Client struct {
	sdk            sdk.Client
	model          string
	embeddingModel string
	visionModel    string
	rates          llm.RateTable
}

// New builds an OpenAI Client from the gateway's provider config.
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
		model = "gpt-4o-mini"
	}
	return &Client{
		sdk:            sdk.NewClient(opts...),
		model:          model,
		embeddingModel: "text-embedding-3-small",
		visionModel:    model,
		rates:          rates,
	}
}

func (c *Client) ID() string            { return "openai" }
func (c *Client) SupportsSchema() bool  { return true }

func (c *Client) rate(model string) llm.ModelRate {
	if c.rates == nil {
		return llm.ModelRate{}
	}
	return c.rates.Rate(c.ID(), model)
}

// GenerateText implements one-shot text generation over Chat Completions.
func (c *Client) GenerateText(ctx context.Context, req llm.TextRequest) (llm.TextResult, error) {
	model := c.model
	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(model),
		Messages: c.buildMessages(req),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = sdk.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(req.Temperature)
	}

	comp, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		return llm.TextResult{}, fmt.Errorf("openai generate_text: %w", err)
	}
	var text string
	if len(comp.Choices) > 0 {
		text = comp.Choices[0].Message.Content
	}
	in, out := int(comp.Usage.PromptTokens), int(comp.Usage.CompletionTokens)
	rate := c.rate(model)
	return llm.TextResult{
		Text:         text,
		ProviderID:   c.ID(),
		ModelID:      model,
		InputTokens:  in,
		OutputTokens: out,
		CostUSD:      llm.ComputeCost(rate, in, out),
	}, nil
}

// GenerateStructured asks the Responses API for a strict JSON-schema
// response so the result needs no further validation by the caller.
func (c *Client) GenerateStructured(ctx context.Context, req llm.TextRequest) (llm.StructuredResult, error) {
	model := c.model
	schemaName := req.SchemaName
	if schemaName == "" {
		schemaName = "structured_response"
	}
	strictSchema := ensureStrictJSONSchema(req.Schema)

	items, instructions := c.buildResponsesInput(req)
	params := rs.ResponseNewParams{
		Model: rs.ResponsesModel(model),
		Input: rs.ResponseNewParamsInputUnion{OfInputItemList: items},
		Text: rs.ResponseTextConfigParam{
			Format: rs.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &rs.ResponseFormatTextJSONSchemaConfigParam{
					Name:   schemaName,
					Schema: strictSchema,
					Strict: sdk.Bool(true),
				},
			},
		},
	}
	if instructions != "" {
		params.Instructions = sdk.String(instructions)
	}

	resp, err := c.sdk.Responses.New(ctx, params)
	if err != nil {
		return llm.StructuredResult{}, fmt.Errorf("openai generate_structured: %w", err)
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(resp.OutputText()), &data); err != nil {
		return llm.StructuredResult{}, fmt.Errorf("openai generate_structured: decode response: %w", err)
	}
	in, out := int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens)
	rate := c.rate(model)
	return llm.StructuredResult{
		Data:         data,
		ProviderID:   c.ID(),
		ModelID:      model,
		InputTokens:  in,
		OutputTokens: out,
		CostUSD:      llm.ComputeCost(rate, in, out),
	}, nil
}

// GenerateEmbedding implements the embedding operation over the Embeddings API.
func (c *Client) GenerateEmbedding(ctx context.Context, text, modelID string) (llm.EmbeddingResult, error) {
	model := modelID
	if model == "" {
		model = c.embeddingModel
	}
	resp, err := c.sdk.Embeddings.New(ctx, sdk.EmbeddingNewParams{
		Model: sdk.EmbeddingModel(model),
		Input: sdk.EmbeddingNewParamsInputUnion{OfString: sdk.String(text)},
	})
	if err != nil {
		return llm.EmbeddingResult{}, fmt.Errorf("openai generate_embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return llm.EmbeddingResult{}, fmt.Errorf("openai generate_embedding: empty response")
	}
	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, f := range resp.Data[0].Embedding {
		vec[i] = float32(f)
	}
	in := int(resp.Usage.PromptTokens)
	rate := c.rate(model)
	return llm.EmbeddingResult{
		Vector:      vec,
		ProviderID:  c.ID(),
		ModelID:     model,
		InputTokens: in,
		CostUSD:     llm.ComputeCost(rate, in, 0),
	}, nil
}

// AnalyzeImage sends an inline base64 image as part of a chat completion
// user message and returns the model's textual analysis.
func (c *Client) AnalyzeImage(ctx context.Context, image []byte, prompt string, maxTokens int) (llm.ImageResult, error) {
	model := c.visionModel
	dataURL := "data:image/png;base64," + encodeBase64(image)
	params := sdk.ChatCompletionNewParams{
		Model: sdk.ChatModel(model),
		Messages: []sdk.ChatCompletionMessageParamUnion{
			sdk.UserMessage(prompt),
			{
				OfUser: &sdk.ChatCompletionUserMessageParam{
					Content: sdk.ChatCompletionUserMessageParamContentUnion{
						OfArrayOfContentParts: []sdk.ChatCompletionContentPartUnionParam{
							{OfImageURL: &sdk.ChatCompletionContentPartImageParam{
								ImageURL: sdk.ChatCompletionContentPartImageImageURLParam{URL: dataURL},
							}},
						},
					},
				},
			},
		},
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = sdk.Int(int64(maxTokens))
	}
	start := time.Now()
	comp, err := c.sdk.Chat.Completions.New(ctx, params)
	_ = start
	if err != nil {
		return llm.ImageResult{}, fmt.Errorf("openai analyze_image: %w", err)
	}
	var text string
	if len(comp.Choices) > 0 {
		text = comp.Choices[0].Message.Content
	}
	in, out := int(comp.Usage.PromptTokens), int(comp.Usage.CompletionTokens)
	rate := c.rate(model)
	return llm.ImageResult{
		Text:         text,
		ProviderID:   c.ID(),
		ModelID:      model,
		InputTokens:  in,
		OutputTokens: out,
		CostUSD:      llm.ComputeCost(rate, in, out),
	}, nil
}

func (c *Client) buildMessages(req llm.TextRequest) []sdk.ChatCompletionMessageParamUnion {
	var msgs []sdk.ChatCompletionMessageParamUnion
	if req.SystemPrompt != "" {
		msgs = append(msgs, sdk.SystemMessage(req.SystemPrompt))
	}
	msgs = append(msgs, sdk.UserMessage(req.Prompt))
	return msgs
}

func (c *Client) buildResponsesInput(req llm.TextRequest) (rs.ResponseInputParam, string) {
	items := rs.ResponseInputParam{
		rs.ResponseInputItemUnionParam{OfInputMessage: &rs.ResponseInputItemMessageParam{
			Content: rs.ResponseInputMessageContentListParam{rs.ResponseInputContentParamOfInputText(req.Prompt)},
			Role:    "user",
		}},
	}
	return items, req.SystemPrompt
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

// ensureStrictJSONSchema recursively forces additionalProperties:false onto
// every object schema, matching OpenAI's strict structured-output
// requirement that every object enumerate its full key set.
func ensureStrictJSONSchema(in map[string]any) map[string]any {
	if in == nil {
		return map[string]any{"type": "object", "additionalProperties": false}
	}
	out := make(map[string]any, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	if t, _ := out["type"].(string); t == "object" || out["properties"] != nil {
		out["additionalProperties"] = false
		if props, ok := out["properties"].(map[string]any); ok {
			newProps := make(map[string]any, len(props))
			for k, child := range props {
				if childMap, ok := child.(map[string]any); ok {
					newProps[k] = ensureStrictJSONSchema(childMap)
				} else {
					newProps[k] = child
				}
			}
			out["properties"] = newProps
		}
	}
	if items, ok := out["items"].(map[string]any); ok {
		out["items"] = ensureStrictJSONSchema(items)
	}
	return out
}
