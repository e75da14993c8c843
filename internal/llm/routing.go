package llm

// TaskTag is the closed set of task tags the routing table dispatches on
// (§4.A). RoutingTable is a plain map rather than a hard-coded switch;
// NewGateway installs DefaultRoutingTable and WithRoutingTable replaces it.
// config.Config has no routing key, so the table is not read from config.
type TaskTag string

const (
	TaskContentDrafting    TaskTag = "content-drafting"
	TaskFactVerification   TaskTag = "fact-verification"
	TaskMetadataExtraction TaskTag = "metadata-extraction"
	TaskVision             TaskTag = "vision"
	TaskEmbedding          TaskTag = "embedding"
	TaskSummarization      TaskTag = "summarization"
	// TaskSourceRelevance backs the Relevance Filter (§4.D).
	TaskSourceRelevance TaskTag = "source_relevance"
)

// RoutingTable maps a task tag to an ordered fallback chain of provider ids.
// Exhaustion of the chain surfaces ProviderUnavailable.
type RoutingTable map[TaskTag][]string

// DefaultRoutingTable mirrors the closed routing table named in §4.A. It is
// the table every Gateway uses unless WithRoutingTable replaces it.
func DefaultRoutingTable() RoutingTable {
	return RoutingTable{
		TaskContentDrafting:    {"openai", "anthropic"},
		TaskFactVerification:   {"anthropic", "openai"},
		TaskMetadataExtraction: {"anthropic", "openai"},
		TaskVision:             {"google", "anthropic", "openai"},
		TaskEmbedding:          {"openai"},
		TaskSummarization:      {"openai", "anthropic"},
		TaskSourceRelevance:    {"anthropic", "openai"},
	}
}

// Chain returns the fallback chain for a task tag, falling back to a
// single-provider chain of "openai" if the tag is unconfigured.
func (t RoutingTable) Chain(tag TaskTag) []string {
	if chain, ok := t[tag]; ok && len(chain) > 0 {
		return chain
	}
	return []string{"openai"}
}
