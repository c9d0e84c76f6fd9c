package types

import "errors"

// Domain errors shared across packages
var (
	ErrMissingDocumentID = errors.New("document ID is required")
	ErrInvalidKind       = errors.New("invalid document kind")
	ErrInvalidRank       = errors.New("rank must be >= 1")
	ErrInvalidScore      = errors.New("score must be non-negative")
	ErrEmptyContent      = errors.New("content cannot be empty")

	// ErrEmptyQuery is reported when a query has no searchable tokens
	ErrEmptyQuery = errors.New("empty query")
	// ErrEmptyCorpus is reported when there are no paragraphs to search
	ErrEmptyCorpus = errors.New("empty corpus")
	// ErrBackendUnavailable is reported when an optional scorer backend is not usable
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrNotFound is returned by stores when a document does not exist
	ErrNotFound = errors.New("not found")
)
