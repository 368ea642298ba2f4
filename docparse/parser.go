package docparse

import "context"

// Parser is one extraction strategy. Implementations must be safe for
// concurrent use; the only shared state they may mutate is their own metrics.
type Parser interface {
	// Name identifies the parser in metrics, errors and metadata.
	Name() string

	// CanParse reports whether this parser handles the given file. It must
	// check both the declared MIME type and the filename extension, since
	// callers may supply an unreliable or generic MIME type.
	CanParse(fileType, filename string) bool

	// Parse extracts a normalized document from content. It validates size
	// against the parser's own maximum, never leaves temporary resources
	// behind on any exit path, and honors ctx cancellation/deadline.
	Parse(ctx context.Context, content []byte, filename string) (*ParsedDocument, error)

	// SupportedTypes returns the MIME types this parser declares support for.
	SupportedTypes() []string
}

// ParserMetrics is a snapshot of one parser's cumulative performance.
type ParserMetrics struct {
	Initialized           bool    `json:"initialized"`
	Error                 string  `json:"error,omitempty"`
	DocumentsProcessed    int     `json:"documents_processed"`
	SuccessfulDocuments   int     `json:"successful_documents"`
	TotalProcessingTime   float64 `json:"total_processing_time"`
	SuccessRate           float64 `json:"success_rate"`
	AverageProcessingTime float64 `json:"average_processing_time"`
}
