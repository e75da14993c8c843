package domain

// Reference is a citation record derived from a Source, numbered within
// its owning Document (stage 8, citation network).
type Reference struct {
	Number     int
	SourceID   string
	Title      string
	Authors    []string
	Year       int
	Journal    string
	ExternalID string
	Type       SourceType
}

// BuildReferences flattens a source list into a numbered reference list in
// first-seen order, matching the §5 ordering guarantee.
func BuildReferences(sources []Source) []Reference {
	refs := make([]Reference, 0, len(sources))
	for i, s := range sources {
		refs = append(refs, Reference{
			Number:     i + 1,
			SourceID:   s.ID,
			Title:      s.Title,
			Authors:    s.Authors,
			Year:       s.Year,
			Journal:    s.Journal,
			ExternalID: s.ExternalID,
			Type:       s.Type,
		})
	}
	return refs
}
