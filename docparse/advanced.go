package docparse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ParserTypeAdvanced identifies the advanced parser in metadata and metrics.
const ParserTypeAdvanced = "advanced"

// AdvancedConfig configures the advanced parser.
type AdvancedConfig struct {
	EnableOCR             bool   `json:"enable_ocr" yaml:"enable_ocr"`
	EnableTableExtraction bool   `json:"enable_table_extraction" yaml:"enable_table_extraction"`
	ProcessingMode        string `json:"processing_mode" yaml:"processing_mode"`

	// MaxFileSize is the largest input accepted, in bytes (default 50 MB).
	MaxFileSize int64 `json:"max_file_size" yaml:"max_file_size"`

	// Timeout bounds one conversion (default 5 minutes).
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// EngineFactory builds the conversion backend. Defaults to the built-in
	// converter engine. Injectable for tests and for degraded-mode scenarios.
	EngineFactory EngineFactory `json:"-" yaml:"-"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

// NewAdvancedConfig returns the default configuration: OCR and table
// extraction on, accurate mode.
func NewAdvancedConfig() AdvancedConfig {
	return AdvancedConfig{
		EnableOCR:             true,
		EnableTableExtraction: true,
		ProcessingMode:        "accurate",
		MaxFileSize:           50 * 1024 * 1024,
		Timeout:               5 * time.Minute,
	}
}

func (c *AdvancedConfig) defaults() {
	if c.ProcessingMode == "" {
		c.ProcessingMode = "accurate"
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 50 * 1024 * 1024
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Minute
	}
	if c.EngineFactory == nil {
		c.EngineFactory = NewConverterEngine
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// AdvancedParser is the structure-aware strategy. It extracts text, document
// metadata, headings with levels, tables and images through a conversion
// engine. Every extraction substep is fault-tolerant: a failing substep
// degrades its own output and the parse carries on.
type AdvancedParser struct {
	cfg    AdvancedConfig
	engine Engine
	logger *slog.Logger

	mu        sync.Mutex
	processed int64
	errors    int64
	totalTime time.Duration
}

// NewAdvancedParser constructs the parser and its engine. An engine
// construction failure is returned wrapped in ErrEngineUnavailable; the
// caller (normally the factory) degrades to basic-only operation.
func NewAdvancedParser(cfg AdvancedConfig) (*AdvancedParser, error) {
	cfg.defaults()
	engine, err := cfg.EngineFactory(EngineOptions{
		EnableOCR:             cfg.EnableOCR,
		EnableTableExtraction: cfg.EnableTableExtraction,
		ProcessingMode:        cfg.ProcessingMode,
	})
	if err != nil {
		if !errors.Is(err, ErrEngineUnavailable) {
			err = fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
		}
		return nil, err
	}
	return &AdvancedParser{cfg: cfg, engine: engine, logger: cfg.Logger}, nil
}

func (p *AdvancedParser) Name() string { return ParserTypeAdvanced }

var advancedTypes = map[string]bool{
	MimePDF:      true,
	MimeDocx:     true,
	MimeDoc:      true,
	MimePptx:     true,
	MimeXlsx:     true,
	MimeHTML:     true,
	MimeMarkdown: true,
	MimeText:     true,
}

func (p *AdvancedParser) CanParse(fileType, filename string) bool {
	return matchesType(advancedTypes, fileType, filename)
}

func (p *AdvancedParser) SupportedTypes() []string {
	return []string{MimePDF, MimeDocx, MimeDoc, MimePptx, MimeXlsx, MimeHTML, MimeMarkdown, MimeText}
}

// Options reports the engine options this parser was built with.
func (p *AdvancedParser) Options() EngineOptions {
	return EngineOptions{
		EnableOCR:             p.cfg.EnableOCR,
		EnableTableExtraction: p.cfg.EnableTableExtraction,
		ProcessingMode:        p.cfg.ProcessingMode,
	}
}

// InstanceMetrics returns this parser's own counters.
func (p *AdvancedParser) InstanceMetrics() (processed, errCount int64, total time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.processed, p.errors, p.totalTime
}

// Parse materializes the content to a scoped temp file and runs the engine
// conversion off the calling goroutine, bounded by the configured timeout and
// the caller's context.
func (p *AdvancedParser) Parse(ctx context.Context, content []byte, filename string) (*ParsedDocument, error) {
	start := time.Now()
	doc, err := p.parse(ctx, content, filename)

	p.mu.Lock()
	p.processed++
	p.totalTime += time.Since(start)
	if err != nil {
		p.errors++
	}
	p.mu.Unlock()

	return doc, err
}

func (p *AdvancedParser) parse(ctx context.Context, content []byte, filename string) (*ParsedDocument, error) {
	if int64(len(content)) > p.cfg.MaxFileSize {
		return nil, &ParseError{
			Parser:  ParserTypeAdvanced,
			Message: fmt.Sprintf("file %s is too large: %d bytes (max %d)", filename, len(content), p.cfg.MaxFileSize),
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, &ParseError{Parser: ParserTypeAdvanced, Message: "canceled", Err: err}
	}

	res, err := p.convert(ctx, content, filename)
	if err != nil {
		return nil, &ParseError{
			Parser:  ParserTypeAdvanced,
			Message: fmt.Sprintf("conversion failed for %s", filename),
			Err:     err,
		}
	}

	text := p.extractText(res, filename)

	words, chars, lines := textStats(text)
	meta := Metadata{
		Filename:       filename,
		FileSize:       int64(len(content)),
		ParserType:     ParserTypeAdvanced,
		WordCount:      words,
		CharacterCount: chars,
		LineCount:      lines,
		PageCount:      len(res.Pages),
		Title:          res.Meta.Title,
		Author:         res.Meta.Author,
		Subject:        res.Meta.Subject,
		Creator:        res.Meta.Creator,
		Producer:       res.Meta.Producer,
		Language:       res.Meta.Language,
		ParsedAt:       time.Now().UTC(),
	}

	structure := p.extractStructure(res, filename)
	tables := p.extractTables(res, filename)
	images := p.extractImages(res)
	meta.TableCount = len(tables)
	meta.ImageCount = len(images)

	return &ParsedDocument{
		Content:   text,
		Metadata:  meta,
		Structure: structure,
		Tables:    tables,
		Images:    images,
	}, nil
}

type conversionOutcome struct {
	res *ConversionResult
	err error
}

// convert writes content to a temp file and runs the blocking engine call in
// its own goroutine. The goroutine owns the temp file: it is removed only
// after Convert returns, so a timed-out call never races the engine on the
// file, and the file is never leaked.
func (p *AdvancedParser) convert(ctx context.Context, content []byte, filename string) (*ConversionResult, error) {
	tmp, err := os.CreateTemp("", "docparse-*"+extensionFor(DetectFileType("", filename), filename))
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	path := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(path)
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("close temp file: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	out := make(chan conversionOutcome, 1)
	go func() {
		defer os.Remove(path)
		res, err := p.engine.Convert(path)
		out <- conversionOutcome{res: res, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("conversion timed out or canceled: %w", ctx.Err())
	case o := <-out:
		return o.res, o.err
	}
}

// extractText prefers the Markdown export and falls back to plain text. An
// empty result is not fatal here; scoring and callers decide what to do with
// contentless documents.
func (p *AdvancedParser) extractText(res *ConversionResult, filename string) string {
	if md := strings.TrimSpace(res.Markdown); md != "" {
		return md
	}
	if plain := strings.TrimSpace(res.PlainText); plain != "" {
		return plain
	}
	p.logger.Warn("no text extracted", "filename", filename, "engine", p.engine.Name())
	return ""
}

// extractStructure builds the heading outline, paragraph list and page info.
// Errors inside classification degrade to defaults rather than failing the
// parse.
func (p *AdvancedParser) extractStructure(res *ConversionResult, filename string) *Structure {
	s := &Structure{}

	for _, page := range res.Pages {
		s.Pages = append(s.Pages, PageInfo{Number: page.Number, Width: page.Width, Height: page.Height})
	}

	for _, t := range res.Texts {
		switch t.Label {
		case "heading", "title", "subtitle", "h1", "h2", "h3", "h4", "h5", "h6",
			"section_header", "page_header":
			s.Headings = append(s.Headings, Heading{
				Text:  t.Text,
				Level: headingLevel(t),
				Page:  t.Page,
				BBox:  t.BBox,
			})
		case "list_item":
			s.Lists = append(s.Lists, TextBlock{Text: t.Text, Page: t.Page, BBox: t.BBox})
		default:
			s.Paragraphs = append(s.Paragraphs, TextBlock{Text: t.Text, Page: t.Page, BBox: t.BBox})
		}
	}

	sort.SliceStable(s.Headings, func(i, j int) bool {
		a, b := s.Headings[i], s.Headings[j]
		if a.Page != b.Page {
			return a.Page < b.Page
		}
		ay, by := 0.0, 0.0
		if a.BBox != nil {
			ay = a.BBox.Y
		}
		if b.BBox != nil {
			by = b.BBox.Y
		}
		return ay < by
	})

	if len(s.Headings) == 0 && len(s.Paragraphs) == 0 && len(s.Lists) == 0 && len(s.Pages) == 0 {
		p.logger.Debug("no structural elements detected", "filename", filename)
	}
	return s
}

// headingLevel resolves a heading level from the richest signal available:
// an explicit level, then font size, then the element label, then the text
// shape itself.
func headingLevel(t EngineText) int {
	if t.Level > 0 {
		if t.Level > 6 {
			return 6
		}
		return t.Level
	}

	if t.FontSize > 0 {
		switch {
		case t.FontSize >= 20:
			return 1
		case t.FontSize >= 18:
			return 2
		case t.FontSize >= 16:
			return 3
		case t.FontSize >= 14:
			return 4
		case t.FontSize >= 12:
			return 5
		default:
			return 6
		}
	}

	label := strings.ToLower(t.Label)
	if len(label) == 2 && label[0] == 'h' && label[1] >= '1' && label[1] <= '6' {
		n, _ := strconv.Atoi(label[1:])
		return n
	}
	switch label {
	case "title":
		return 1
	case "subtitle":
		return 2
	}

	text := strings.TrimSpace(t.Text)
	if text == strings.ToUpper(text) && len(text) < 100 && text != "" {
		return 1
	}
	if strings.HasSuffix(text, ":") && len(text) < 50 {
		return 2
	}
	return 3
}

// extractTables maps engine tables, preferring structured cells, then CSV,
// then the raw rendering. ContentExtracted is false only when all three are
// missing.
func (p *AdvancedParser) extractTables(res *ConversionResult, filename string) []Table {
	if !p.cfg.EnableTableExtraction {
		return []Table{}
	}
	tables := make([]Table, 0, len(res.Tables))
	for i, et := range res.Tables {
		t := Table{
			ID:      i + 1,
			Page:    et.Page,
			BBox:    et.BBox,
			Rows:    et.Rows,
			Columns: et.Columns,
			Caption: et.Caption,
		}
		switch {
		case len(et.Cells) > 0:
			t.Cells = et.Cells
			t.CSV = et.CSV
			t.ContentExtracted = true
		case et.CSV != "":
			t.CSV = et.CSV
			t.ContentExtracted = true
		case et.Raw != "":
			t.Raw = et.Raw
			t.ContentExtracted = true
		default:
			p.logger.Warn("table detected without extractable content",
				"filename", filename, "table", t.ID, "page", t.Page)
		}
		tables = append(tables, t)
	}
	return tables
}

func (p *AdvancedParser) extractImages(res *ConversionResult) []Image {
	images := make([]Image, 0, len(res.Images))
	for i, ei := range res.Images {
		images = append(images, Image{
			ID:      i + 1,
			Page:    ei.Page,
			BBox:    ei.BBox,
			Width:   ei.Width,
			Height:  ei.Height,
			Format:  ei.Format,
			Caption: ei.Caption,
			AltText: ei.AltText,
			OCRText: ei.OCRText,
		})
	}
	return images
}
