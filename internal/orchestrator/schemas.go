package orchestrator

// Structured-output schemas for the orchestrator's own generate_structured
// calls (stage 1, 2, 5, 12). Field names mirror
// backend/schemas/ai_schemas.py's CHAPTER_ANALYSIS_SCHEMA,
// CONTEXT_BUILDING_SCHEMA, and CHAPTER_REVIEW_SCHEMA usage sites in
// chapter_orchestrator.py.

var chapterAnalysisSchema = map[string]any{
	"type":     "object",
	"required": []any{"primary_concepts", "document_type", "keywords", "complexity", "estimated_section_count"},
	"properties": map[string]any{
		"primary_concepts":        map[string]any{"type": "array"},
		"document_type":           map[string]any{"type": "string"},
		"keywords":                map[string]any{"type": "array"},
		"complexity":              map[string]any{"type": "string"},
		"estimated_section_count": map[string]any{"type": "number"},
	},
}

var contextBuildingSchema = map[string]any{
	"type":     "object",
	"required": []any{"research_gaps", "key_references", "source_category_distribution", "temporal_range_estimate", "overall_confidence"},
	"properties": map[string]any{
		"research_gaps":                 map[string]any{"type": "array"},
		"key_references":                map[string]any{"type": "array"},
		"source_category_distribution":  map[string]any{"type": "object"},
		"temporal_range_estimate":       map[string]any{"type": "string"},
		"overall_confidence":            map[string]any{"type": "number"},
	},
}

var planningSchema = map[string]any{
	"type":     "object",
	"required": []any{"sections"},
	"properties": map[string]any{
		"sections": map[string]any{"type": "array"},
	},
}

var reviewSchema = map[string]any{
	"type":     "object",
	"required": []any{"contradictions", "readability_issues", "missing_transitions", "citation_issues", "logical_flow_issues", "unclear_explanations", "overall_quality_assessment", "overall_recommendation"},
	"properties": map[string]any{
		"contradictions":             map[string]any{"type": "array"},
		"readability_issues":         map[string]any{"type": "array"},
		"missing_transitions":        map[string]any{"type": "array"},
		"citation_issues":            map[string]any{"type": "array"},
		"logical_flow_issues":        map[string]any{"type": "array"},
		"unclear_explanations":       map[string]any{"type": "array"},
		"overall_quality_assessment": map[string]any{"type": "object"},
		"overall_recommendation":     map[string]any{"type": "string"},
	},
}
