package types

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DocumentKind classifies where a document came from.
type DocumentKind string

const (
	KindPage DocumentKind = "page"
	KindNote DocumentKind = "note"
	KindCode DocumentKind = "code"
)

// paragraphNamespace seeds name-based paragraph IDs.
var paragraphNamespace = uuid.MustParse("6f1c0e52-1d4b-4c8e-9a57-3b2f0d6c9e41")

// Document is a unit of content owned by the host application.
type Document struct {
	ID        string
	Kind      DocumentKind
	Slug      string
	Title     string
	URL       string
	Text      string
	UpdatedAt time.Time
}

// Validate checks the fields the retrieval core depends on.
func (d *Document) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return ErrMissingDocumentID
	}
	switch d.Kind {
	case "", KindPage, KindNote, KindCode:
		return nil
	default:
		return ErrInvalidKind
	}
}

// DisplayTitle returns the title, falling back to the URL and then the ID.
func (d *Document) DisplayTitle() string {
	if d.Title != "" {
		return d.Title
	}
	if d.URL != "" {
		return d.URL
	}
	return d.ID
}

// Paragraph is an immutable chunk of a document's text.
type Paragraph struct {
	ID    string
	DocID string
	Order int

	// Denormalized from the owning document for fast rendering
	Title string
	URL   string

	Text string
}

// ParagraphID returns the deterministic ID of the paragraph at order within docID.
func ParagraphID(docID string, order int) string {
	name := docID + "#" + strconv.Itoa(order)
	return uuid.NewSHA1(paragraphNamespace, []byte(name)).String()
}

// NewParagraph builds the paragraph at order for doc.
func NewParagraph(doc Document, order int, text string) Paragraph {
	return Paragraph{
		ID:    ParagraphID(doc.ID, order),
		DocID: doc.ID,
		Order: order,
		Title: doc.Title,
		URL:   doc.URL,
		Text:  text,
	}
}

// ContentKey identifies a paragraph by its content rather than its position.
// Two scorers that enumerate paragraphs differently agree on this key.
func (p *Paragraph) ContentKey() string {
	return strings.ToLower(strings.Join(strings.Fields(p.Text), " ")) + "\x00" + p.URL
}
