package domain

// Image is a candidate figure extracted from source material (scanned PDF
// pages, textbook chapters) available for placement during stage 7. Keywords
// and Caption drive the keyword-overlap scoring the orchestrator uses to
// match images to section content; FilePath/SourcePDF are carried through
// for provenance.
type Image struct {
	ID          string
	Caption     string
	Description string
	Keywords    []string
	FilePath    string
	SourcePDF   string
}
