package llm

import "context"

// TextResult is the response of a GenerateText call.
type TextResult struct {
	Text         string
	ProviderID   string
	ModelID      string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
}

// StructuredResult is the response of a GenerateStructured call. Data is
// guaranteed (by Gateway, not by the backend) to validate against the
// caller's schema before it is returned to application code.
type StructuredResult struct {
	Data         map[string]any
	ProviderID   string
	ModelID      string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
}

// EmbeddingResult is the response of a GenerateEmbedding call.
type EmbeddingResult struct {
	Vector      []float32
	Dim         int
	ProviderID  string
	ModelID     string
	InputTokens int
	CostUSD     float64
}

// ImageResult is the response of an AnalyzeImage call.
type ImageResult struct {
	Text         string
	ProviderID   string
	ModelID      string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
}

// TextRequest carries the parameters for a GenerateText/GenerateStructured
// call. Schema is nil for GenerateText and non-nil for GenerateStructured.
type TextRequest struct {
	Prompt       string
	SystemPrompt string
	// CacheableSystemPrompt marks SystemPrompt as safe to cache across calls
	// (§4.A+): task instructions and schema preambles rather than per-call
	// user content. Backends that support prompt caching may use this hint.
	CacheableSystemPrompt bool
	MaxTokens    int
	Temperature  float64
	Schema       map[string]any
	SchemaName   string
}

// Backend is the narrow per-provider contract the Gateway dispatches to.
// Each registered provider (openai, anthropic, google) implements this once;
// the Gateway owns routing, fallback, retries, circuit breaking and cost
// accounting on top of it (§4.A, §9 — provider is a value, registered at
// startup).
type Backend interface {
	// ID is the provider identifier used in the routing table and in
	// results (e.g. "openai", "anthropic", "google").
	ID() string

	GenerateText(ctx context.Context, req TextRequest) (TextResult, error)
	GenerateStructured(ctx context.Context, req TextRequest) (StructuredResult, error)
	GenerateEmbedding(ctx context.Context, text string, model string) (EmbeddingResult, error)
	AnalyzeImage(ctx context.Context, image []byte, prompt string, maxTokens int) (ImageResult, error)

	// SupportsSchema reports whether the backend enforces structured output
	// natively (true) or whether the Gateway must validate best-effort JSON
	// itself after the call (false, §4.A "Structured outputs").
	SupportsSchema() bool
}
