package docparse

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ParserTypeBasic identifies the basic parser in metadata and metrics.
const ParserTypeBasic = "basic"

// BasicConfig configures the basic parser.
type BasicConfig struct {
	// MaxFileSize is the largest input accepted, in bytes (default 10 MB).
	MaxFileSize int64 `json:"max_file_size" yaml:"max_file_size"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *BasicConfig) defaults() {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 10 * 1024 * 1024
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// BasicParser is the dependency-light fallback strategy: plain text
// extraction for PDF, Word, plain text and Markdown. It produces no
// structure, tables or images; those fields are nil in its output.
// Fallback to other strategies is the factory's responsibility, never
// attempted here.
type BasicParser struct {
	cfg    BasicConfig
	logger *slog.Logger
}

// NewBasicParser creates a BasicParser. It has no external dependency and
// never fails to initialize.
func NewBasicParser(cfg BasicConfig) *BasicParser {
	cfg.defaults()
	return &BasicParser{cfg: cfg, logger: cfg.Logger}
}

func (p *BasicParser) Name() string { return ParserTypeBasic }

var basicTypes = map[string]bool{
	MimePDF:      true,
	MimeDocx:     true,
	MimeText:     true,
	MimeMarkdown: true,
}

func (p *BasicParser) CanParse(fileType, filename string) bool {
	return matchesType(basicTypes, fileType, filename)
}

func (p *BasicParser) SupportedTypes() []string {
	return []string{MimePDF, MimeText, MimeDocx, MimeMarkdown}
}

// Parse extracts plain text. The effective format comes from the filename
// extension first and falls back to treating the bytes as UTF-8 text, since
// the declared MIME type is not passed down by the factory.
func (p *BasicParser) Parse(ctx context.Context, content []byte, filename string) (*ParsedDocument, error) {
	if int64(len(content)) > p.cfg.MaxFileSize {
		return nil, &ParseError{
			Parser:  ParserTypeBasic,
			Message: fmt.Sprintf("file %s is too large: %d bytes (max %d)", filename, len(content), p.cfg.MaxFileSize),
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, &ParseError{Parser: ParserTypeBasic, Message: "canceled", Err: err}
	}

	fileType := DetectFileType("", filename)

	var (
		text      string
		pageCount int
		err       error
	)
	switch fileType {
	case MimePDF:
		text, pageCount, err = p.extractPDF(ctx, content)
	case MimeDocx:
		text, err = p.extractDocx(content)
	default:
		// Plain text and markdown, or unknown extensions: treat as UTF-8.
		text = string(content)
	}
	if err != nil {
		return nil, &ParseError{
			Parser:  ParserTypeBasic,
			Message: fmt.Sprintf("failed to parse %s", filename),
			Err:     err,
		}
	}

	cleaned := NormalizeText(text)
	words, chars, lines := textStats(cleaned)

	return &ParsedDocument{
		Content: cleaned,
		Metadata: Metadata{
			Filename:       filename,
			FileSize:       int64(len(content)),
			ParserType:     ParserTypeBasic,
			WordCount:      words,
			CharacterCount: chars,
			LineCount:      lines,
			PageCount:      pageCount,
			ParsedAt:       time.Now().UTC(),
		},
		// No structure, table or image support in this strategy.
		Structure: nil,
		Tables:    nil,
		Images:    nil,
	}, nil
}

// extractPDF concatenates per-page text, newline-joined.
func (p *BasicParser) extractPDF(ctx context.Context, content []byte) (string, int, error) {
	pdf, err := openPDF(content)
	if err != nil {
		return "", 0, fmt.Errorf("pdfcpu read: %w", err)
	}

	var sb strings.Builder
	for pageNr := 1; pageNr <= pdf.PageCount; pageNr++ {
		if err := ctx.Err(); err != nil {
			return "", 0, err
		}
		pageText := pdfPageText(pdf, pageNr)
		if pageText == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(pageText)
	}
	if sb.Len() == 0 {
		return "", 0, fmt.Errorf("no text content found in PDF")
	}
	return sb.String(), pdf.PageCount, nil
}

// extractDocx joins paragraph texts, newline-separated.
func (p *BasicParser) extractDocx(content []byte) (string, error) {
	paras, err := docxParagraphs(content)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, para := range paras {
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(para.Text)
	}
	return sb.String(), nil
}
