package embedpipeline

// maxEmbedChars approximates the embedding model's token ceiling (8191
// tokens at ~3 chars/token, kept conservative) as a safe character count
// (§4.J "truncate extracted text to an input-token ceiling").
const maxEmbedChars = 24000

// truncateForEmbedding returns text capped at maxEmbedChars and whether it
// was cut.
func truncateForEmbedding(text string) (string, bool) {
	if len(text) <= maxEmbedChars {
		return text, false
	}
	return text[:maxEmbedChars], true
}
