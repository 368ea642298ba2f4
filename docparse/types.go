// Package docparse extracts normalized, structured content from uploaded
// learning documents.
//
// Two parser strategies are registered with a Factory: an advanced parser
// backed by a conversion engine (structure, tables, images, OCR signals) and
// a dependency-light basic parser (plain text extraction only). The Factory
// selects the best parser per file, runs fallback chains on failure, and
// tracks per-parser performance. The Processor is the façade the rest of the
// application consumes.
//
// Usage:
//
//	proc := docparse.NewProcessor(docparse.ProcessorConfig{})
//	res, err := proc.ProcessFile(ctx, data, "lesson.pdf", "application/pdf", docparse.DefaultProcessOptions())
package docparse

import "time"

// ParsedDocument is the normalized output contract every parser produces.
// It is treated as immutable once returned.
//
// Structure, Tables and Images are nil when the producing parser does not
// support the capability, and empty (non-nil) when the capability is
// supported but nothing was found. Callers rely on that distinction.
type ParsedDocument struct {
	Content   string     `json:"content"`
	Metadata  Metadata   `json:"metadata"`
	Structure *Structure `json:"structure,omitempty"`
	Tables    []Table    `json:"tables"`
	Images    []Image    `json:"images"`
}

// Metadata describes the parsed document. Counts are computed from Content
// after normalization, so CharacterCount always equals len(Content).
type Metadata struct {
	Filename       string    `json:"filename"`
	FileSize       int64     `json:"file_size"`
	ParserType     string    `json:"parser_type"`
	WordCount      int       `json:"word_count"`
	CharacterCount int       `json:"character_count"`
	LineCount      int       `json:"line_count"`
	PageCount      int       `json:"page_count,omitempty"`
	Title          string    `json:"title,omitempty"`
	Author         string    `json:"author,omitempty"`
	Subject        string    `json:"subject,omitempty"`
	Creator        string    `json:"creator,omitempty"`
	Producer       string    `json:"producer,omitempty"`
	Language       string    `json:"language,omitempty"`
	TableCount     int       `json:"table_count,omitempty"`
	ImageCount     int       `json:"image_count,omitempty"`
	ParsedAt       time.Time `json:"parsed_at"`
}

// Structure is the hierarchical breakdown of a document.
type Structure struct {
	Headings   []Heading   `json:"headings"`
	Paragraphs []TextBlock `json:"paragraphs"`
	Lists      []TextBlock `json:"lists"`
	Pages      []PageInfo  `json:"pages"`
}

// Heading is a classified heading with level 1-6.
type Heading struct {
	Text  string  `json:"text"`
	Level int     `json:"level"`
	Page  int     `json:"page"`
	BBox  *BBox   `json:"bbox,omitempty"`
}

// TextBlock is a paragraph or list item with its position.
type TextBlock struct {
	Text string `json:"text"`
	Page int    `json:"page"`
	BBox *BBox  `json:"bbox,omitempty"`
}

// PageInfo is a per-page descriptor.
type PageInfo struct {
	Number int     `json:"number"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
}

// BBox is a bounding box in page coordinates.
type BBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Table is one extracted table. Content is carried in the first form that
// succeeded: structured Cells, delimited CSV, or Raw engine output.
// ContentExtracted is false when all three failed.
type Table struct {
	ID               int        `json:"table_id"`
	Page             int        `json:"page"`
	BBox             *BBox      `json:"bbox,omitempty"`
	Rows             int        `json:"rows"`
	Columns          int        `json:"columns"`
	Cells            [][]string `json:"cells,omitempty"`
	CSV              string     `json:"csv,omitempty"`
	Raw              string     `json:"raw,omitempty"`
	Caption          string     `json:"caption,omitempty"`
	ContentExtracted bool       `json:"content_extracted"`
}

// Image is one extracted image descriptor. OCRText carries any text the
// engine recognized inside the image.
type Image struct {
	ID      int    `json:"image_id"`
	Page    int    `json:"page"`
	BBox    *BBox  `json:"bbox,omitempty"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	Format  string `json:"format,omitempty"`
	Caption string `json:"caption,omitempty"`
	AltText string `json:"alt_text,omitempty"`
	OCRText string `json:"ocr_text,omitempty"`
}

// ExtractionQuality captures signals about PDF text extraction quality.
// It feeds the OCR-needed heuristic when a scanned document yields no text.
type ExtractionQuality struct {
	PageCount       int     `json:"page_count"`
	CharsPerPage    float64 `json:"chars_per_page"`
	PrintableRatio  float64 `json:"printable_ratio"`
	HasImageStreams bool    `json:"has_image_streams"`
}

// NeedsOCR reports whether the document likely needs OCR to yield text.
func (q *ExtractionQuality) NeedsOCR() bool {
	return (q.CharsPerPage < 50 && q.HasImageStreams) || q.PrintableRatio < 0.85
}
