package docparse

// Engine is the conversion backend of the advanced parser. Convert is a
// blocking call operating on a file path; the advanced parser is responsible
// for materializing input to a scoped temporary file and for running the
// call off the request goroutine.
//
// Engine results are mapped into ConversionResult at this boundary: every
// optional field is explicitly empty or populated, so downstream extraction
// never probes for capabilities.
type Engine interface {
	Name() string
	Convert(path string) (*ConversionResult, error)
}

// EngineFactory constructs an Engine. Construction failure means the advanced
// parser is unavailable for the whole process lifetime (degraded mode), not a
// per-document error.
type EngineFactory func(opts EngineOptions) (Engine, error)

// EngineOptions are the pipeline options honored by engines.
type EngineOptions struct {
	EnableOCR             bool   `json:"enable_ocr" yaml:"enable_ocr"`
	EnableTableExtraction bool   `json:"enable_table_extraction" yaml:"enable_table_extraction"`
	ProcessingMode        string `json:"processing_mode" yaml:"processing_mode"` // "accurate" or "fast"
}

// ConversionResult is the fixed internal schema every engine output is mapped
// into. Markdown and PlainText are alternative text exports; either may be
// empty.
type ConversionResult struct {
	Markdown  string
	PlainText string
	Pages     []EnginePage
	Texts     []EngineText
	Tables    []EngineTable
	Images    []EngineImage
	Meta      EngineMeta
	Quality   *ExtractionQuality
}

// EnginePage describes one page of the source document.
type EnginePage struct {
	Number int
	Width  float64
	Height float64
}

// EngineText is one labeled text element. Label values follow the engine's
// own vocabulary ("heading", "title", "paragraph", "list_item", ...); Level
// and FontSize are zero when the engine does not provide them.
type EngineText struct {
	Text     string
	Label    string
	Page     int
	BBox     *BBox
	Level    int
	FontSize float64
}

// EngineTable is one detected table with its content in whichever forms the
// engine managed to produce.
type EngineTable struct {
	Page    int
	BBox    *BBox
	Rows    int
	Columns int
	Cells   [][]string
	CSV     string
	Raw     string
	Caption string
}

// EngineImage is one detected image.
type EngineImage struct {
	Page    int
	BBox    *BBox
	Width   int
	Height  int
	Format  string
	Caption string
	AltText string
	OCRText string
}

// EngineMeta carries document-level metadata when the source exposes it.
type EngineMeta struct {
	Title    string
	Author   string
	Subject  string
	Creator  string
	Producer string
	Language string
}
