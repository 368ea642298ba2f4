package docparse

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// converterEngine is the built-in conversion engine: structure-aware
// extraction for PDF, Office Open XML, HTML, Markdown and plain text, all in
// pure Go. It implements Engine over the same per-format extraction used
// elsewhere in the package, plus HTML-to-markdown export and table/image
// detection.
type converterEngine struct {
	opts   EngineOptions
	logger *slog.Logger
	md     *markdownConverter
}

// NewConverterEngine constructs the built-in engine. It validates options and
// pre-builds the HTML-to-markdown converter; a construction error here means
// the advanced parser will be reported as unavailable.
func NewConverterEngine(opts EngineOptions) (Engine, error) {
	switch opts.ProcessingMode {
	case "", "accurate", "fast":
	default:
		return nil, fmt.Errorf("%w: unknown processing mode %q", ErrEngineUnavailable, opts.ProcessingMode)
	}
	md, err := newMarkdownConverter()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	return &converterEngine{
		opts:   opts,
		logger: slog.Default(),
		md:     md,
	}, nil
}

func (e *converterEngine) Name() string { return "converter" }

// Convert reads the file and maps it into the fixed ConversionResult schema.
func (e *converterEngine) Convert(path string) (*ConversionResult, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return e.convertPDF(content)
	case ".docx", ".doc":
		return e.convertDocx(content)
	case ".pptx":
		return e.convertPptx(content)
	case ".xlsx":
		return e.convertXlsx(content)
	case ".html", ".htm":
		return e.convertHTML(content)
	case ".md", ".markdown":
		return e.convertMarkdown(content)
	case ".txt", ".text", ".tmp":
		return &ConversionResult{
			PlainText: string(content),
			Texts:     []EngineText{{Text: string(content), Label: "paragraph", Page: 1}},
			Pages:     []EnginePage{{Number: 1}},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %q", filepath.Ext(path))
	}
}

// convertPDF extracts per-page text, labels heading candidates, and records
// image streams. When OCR is enabled and a page yields no text despite image
// streams, the quality block flags the document as OCR-needing; no native OCR
// engine is bundled.
func (e *converterEngine) convertPDF(content []byte) (*ConversionResult, error) {
	pdf, err := openPDF(content)
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}

	res := &ConversionResult{}
	var all strings.Builder

	for pageNr := 1; pageNr <= pdf.PageCount; pageNr++ {
		res.Pages = append(res.Pages, EnginePage{Number: pageNr})

		pageText := pdfPageText(pdf, pageNr)
		if pageText == "" {
			continue
		}
		if all.Len() > 0 {
			all.WriteByte('\n')
		}
		all.WriteString(pageText)

		for i, para := range splitParagraphs(pageText) {
			label := "paragraph"
			if looksLikeHeading(para) {
				label = "heading"
			}
			if pageNr == 1 && i == 0 && res.Meta.Title == "" {
				res.Meta.Title = firstLineOf(para)
				label = "title"
			}
			res.Texts = append(res.Texts, EngineText{
				Text:  para,
				Label: label,
				Page:  pageNr,
				BBox:  &BBox{Y: float64(i)},
			})
		}
	}

	if pdfHasImageStreams(pdf) {
		// Page attribution of XObjects is approximate; record presence so
		// the OCR and visual-gap signals have something to work with.
		res.Images = append(res.Images, EngineImage{Page: 1})
	}

	fullText := all.String()
	if fullText == "" {
		q := pdfQuality(pdf, "")
		if e.opts.EnableOCR && q.NeedsOCR() {
			e.logger.Warn("PDF yields no text and likely needs OCR", "pages", pdf.PageCount)
		}
		return nil, fmt.Errorf("no text content found in PDF")
	}

	res.PlainText = fullText
	res.Quality = pdfQuality(pdf, fullText)
	return res, nil
}

func (e *converterEngine) convertDocx(content []byte) (*ConversionResult, error) {
	paras, err := docxParagraphs(content)
	if err != nil {
		return nil, err
	}
	if len(paras) == 0 {
		return nil, fmt.Errorf("no text content found in document")
	}

	res := &ConversionResult{Pages: []EnginePage{{Number: 1}}}
	var plain, md strings.Builder

	for i, para := range paras {
		level := docxHeadingLevel(para.Style)
		label := "paragraph"
		if level > 0 {
			label = "heading"
			if res.Meta.Title == "" {
				res.Meta.Title = para.Text
			}
		}
		res.Texts = append(res.Texts, EngineText{
			Text:  para.Text,
			Label: label,
			Page:  1,
			BBox:  &BBox{Y: float64(i)},
			Level: level,
		})

		if plain.Len() > 0 {
			plain.WriteByte('\n')
			md.WriteString("\n\n")
		}
		plain.WriteString(para.Text)
		if level > 0 {
			md.WriteString(strings.Repeat("#", level) + " ")
		}
		md.WriteString(para.Text)
	}

	if e.opts.EnableTableExtraction {
		tables, err := docxTables(content)
		if err == nil {
			for _, cells := range tables {
				res.Tables = append(res.Tables, engineTableFromCells(cells, 1))
			}
		}
	}

	res.PlainText = plain.String()
	res.Markdown = md.String()
	return res, nil
}

func (e *converterEngine) convertPptx(content []byte) (*ConversionResult, error) {
	slides, err := pptxSlides(content)
	if err != nil {
		return nil, err
	}

	res := &ConversionResult{}
	var plain strings.Builder

	for i, texts := range slides {
		page := i + 1
		res.Pages = append(res.Pages, EnginePage{Number: page})
		for j, text := range texts {
			label := "paragraph"
			if j == 0 {
				// First placeholder on a slide is its title.
				label = "heading"
				if res.Meta.Title == "" {
					res.Meta.Title = text
				}
			}
			res.Texts = append(res.Texts, EngineText{
				Text:  text,
				Label: label,
				Page:  page,
				BBox:  &BBox{Y: float64(j)},
				Level: 1,
			})
			if plain.Len() > 0 {
				plain.WriteByte('\n')
			}
			plain.WriteString(text)
		}
	}

	if plain.Len() == 0 {
		return nil, fmt.Errorf("no text content found in presentation")
	}
	res.PlainText = plain.String()
	return res, nil
}

func (e *converterEngine) convertXlsx(content []byte) (*ConversionResult, error) {
	sheets, err := xlsxSheets(content)
	if err != nil {
		return nil, err
	}

	res := &ConversionResult{}
	var plain strings.Builder

	for i, rows := range sheets {
		page := i + 1
		res.Pages = append(res.Pages, EnginePage{Number: page})
		if e.opts.EnableTableExtraction && len(rows) > 0 {
			res.Tables = append(res.Tables, engineTableFromCells(rows, page))
		}
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, " "))
			if line == "" {
				continue
			}
			if plain.Len() > 0 {
				plain.WriteByte('\n')
			}
			plain.WriteString(line)
		}
	}

	if plain.Len() == 0 {
		return nil, fmt.Errorf("no cell content found in workbook")
	}
	res.PlainText = plain.String()
	return res, nil
}

func (e *converterEngine) convertMarkdown(content []byte) (*ConversionResult, error) {
	res := &ConversionResult{
		Markdown: string(content),
		Pages:    []EnginePage{{Number: 1}},
	}

	var plain strings.Builder
	pos := 0
	for _, block := range markdownBlocks(string(content)) {
		if plain.Len() > 0 {
			plain.WriteByte('\n')
		}
		plain.WriteString(block.Text)

		label := "paragraph"
		if block.Level > 0 {
			label = "heading"
			if res.Meta.Title == "" {
				res.Meta.Title = block.Text
			}
		}
		res.Texts = append(res.Texts, EngineText{
			Text:  block.Text,
			Label: label,
			Page:  1,
			BBox:  &BBox{Y: float64(pos)},
			Level: block.Level,
		})
		pos++
	}

	res.PlainText = plain.String()
	return res, nil
}

// mdBlock is one parsed Markdown block.
type mdBlock struct {
	Text  string
	Level int // heading level, 0 for body
}

// markdownBlocks splits Markdown into ATX headings and paragraphs.
func markdownBlocks(content string) []mdBlock {
	var blocks []mdBlock
	var current strings.Builder

	flush := func() {
		if text := strings.TrimSpace(current.String()); text != "" {
			blocks = append(blocks, mdBlock{Text: text})
		}
		current.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "#") {
			flush()
			level := 0
			for _, ch := range trimmed {
				if ch != '#' {
					break
				}
				level++
			}
			if level > 6 {
				level = 6
			}
			text := strings.TrimSpace(strings.TrimRight(strings.TrimLeft(trimmed, "#"), "#"))
			if text != "" {
				blocks = append(blocks, mdBlock{Text: text, Level: level})
			}
			continue
		}
		if trimmed == "" {
			flush()
			continue
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(trimmed)
	}
	flush()
	return blocks
}

// engineTableFromCells builds an EngineTable with a CSV rendering alongside
// the structured cells.
func engineTableFromCells(cells [][]string, page int) EngineTable {
	cols := 0
	for _, row := range cells {
		if len(row) > cols {
			cols = len(row)
		}
	}
	var csv strings.Builder
	for _, row := range cells {
		for i, cell := range row {
			if i > 0 {
				csv.WriteByte(',')
			}
			if strings.ContainsAny(cell, ",\"\n") {
				cell = `"` + strings.ReplaceAll(cell, `"`, `""`) + `"`
			}
			csv.WriteString(cell)
		}
		csv.WriteByte('\n')
	}
	return EngineTable{
		Page:    page,
		Rows:    len(cells),
		Columns: cols,
		Cells:   cells,
		CSV:     csv.String(),
	}
}

// splitParagraphs splits text on blank lines, trimming each part.
func splitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var result []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, p)
		}
	}
	if len(result) == 0 && strings.TrimSpace(text) != "" {
		result = []string{strings.TrimSpace(text)}
	}
	return result
}

// looksLikeHeading marks short standalone lines as heading candidates; the
// advanced parser decides the level.
func looksLikeHeading(text string) bool {
	if strings.ContainsRune(text, '\n') {
		return false
	}
	trimmed := strings.TrimSpace(text)
	if len(trimmed) == 0 || len(trimmed) >= 100 {
		return false
	}
	upper := strings.ToUpper(trimmed)
	if trimmed == upper && strings.IndexFunc(trimmed, func(r rune) bool { return r >= 'A' && r <= 'Z' }) >= 0 {
		return true
	}
	return strings.HasSuffix(trimmed, ":") && len(trimmed) < 50
}

func firstLineOf(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[:idx]
	}
	text = strings.TrimSpace(text)
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}
