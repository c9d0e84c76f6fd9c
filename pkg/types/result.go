package types

// SearchResult represents one ranked document returned by a search
type SearchResult struct {
	// Identification
	ID          string // Source document ID
	ParagraphID string // Representative paragraph
	Rank        int    // Position in result set (1-based)

	// Display
	Title   string
	URL     string
	Text    string // Full representative paragraph
	Snippet string // Bounded window around the best match

	// Scoring
	Score float64
}

// Validate checks if the search result is valid
func (sr *SearchResult) Validate() error {
	if sr.ID == "" {
		return ErrMissingDocumentID
	}

	if sr.Rank < 1 {
		return ErrInvalidRank
	}

	if sr.Score < 0 {
		return ErrInvalidScore
	}

	if sr.Snippet == "" && sr.Text != "" {
		return ErrEmptyContent
	}

	return nil
}

// ScoredParagraph is a scorer's output for one paragraph of an index snapshot.
type ScoredParagraph struct {
	Pos   int // Paragraph position (extraction order) in the snapshot
	Score float64
}
