package export

// Field is a labelled metadata value rendered ahead of the document body.
type Field struct {
	Label string
	Value string
}

// Document is a single article-style export: metadata fields plus a free-text body.
type Document struct {
	Title     string
	Fields    []Field
	BodyLabel string
	Body      string
}
