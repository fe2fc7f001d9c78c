package query

import "strings"

// Kind identifies the query variant.
type Kind string

const (
	// KindText is a short text description.
	KindText Kind = "text"
	// KindImage is an uploaded image.
	KindImage Kind = "image"
)

// Query is either a text description or raw image bytes.
// The zero value is neither and is rejected by the search service.
type Query struct {
	kind  Kind
	text  string
	image []byte
}

// Text creates a text query.
func Text(s string) Query { return Query{kind: KindText, text: s} }

// Image creates an image query. The bytes are not copied.
func Image(data []byte) Query { return Query{kind: KindImage, image: data} }

// Kind returns the variant.
func (q Query) Kind() Kind { return q.kind }

// Text returns the description for a text query.
func (q Query) Text() string { return q.text }

// Image returns the bytes for an image query.
func (q Query) Image() []byte { return q.image }

// IsEmpty reports whether the query carries no payload. Blank text counts as empty.
func (q Query) IsEmpty() bool {
	switch q.kind {
	case KindText:
		return strings.TrimSpace(q.text) == ""
	case KindImage:
		return len(q.image) == 0
	default:
		return true
	}
}
