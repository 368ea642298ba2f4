package docparse

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Office Open XML extraction: docx paragraphs, pptx slides, xlsx sheets.
// All three formats are ZIP archives holding XML parts.

type officePara struct {
	Text  string
	Style string // paragraph style id, e.g. "Heading1", "Title"
}

// zipEntry finds a file inside a ZIP archive read from memory.
func zipEntry(zr *zip.Reader, name string) (io.ReadCloser, error) {
	for _, f := range zr.File {
		if f.Name == name {
			return f.Open()
		}
	}
	return nil, fmt.Errorf("%s not found in archive", name)
}

// docxParagraphs parses word/document.xml and returns styled paragraphs.
func docxParagraphs(content []byte) ([]officePara, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	rc, err := zipEntry(zr, "word/document.xml")
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	decoder := xml.NewDecoder(rc)
	var paras []officePara
	var current strings.Builder
	var style string
	inParagraph := false

	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case t.Name.Local == "p":
				inParagraph = true
				current.Reset()
				style = ""
			case t.Name.Local == "pStyle" && inParagraph:
				for _, attr := range t.Attr {
					if attr.Name.Local == "val" {
						style = attr.Value
					}
				}
			case t.Name.Local == "br" && inParagraph:
				current.WriteByte('\n')
			case t.Name.Local == "tab" && inParagraph:
				current.WriteByte(' ')
			}
		case xml.CharData:
			if inParagraph {
				current.Write(t)
			}
		case xml.EndElement:
			if t.Name.Local == "p" && inParagraph {
				inParagraph = false
				text := strings.TrimSpace(current.String())
				if text != "" {
					paras = append(paras, officePara{Text: text, Style: style})
				}
			}
		}
	}
	return paras, nil
}

// docxHeadingLevel maps a Word paragraph style to a heading level, 0 for body.
func docxHeadingLevel(style string) int {
	s := strings.ToLower(style)
	switch {
	case s == "title":
		return 1
	case s == "subtitle":
		return 2
	case strings.HasPrefix(s, "heading"):
		if n, err := strconv.Atoi(strings.TrimPrefix(s, "heading")); err == nil && n >= 1 {
			if n > 6 {
				return 6
			}
			return n
		}
		return 3
	}
	return 0
}

// docxTables parses <w:tbl> elements from word/document.xml into cell grids.
func docxTables(content []byte) ([][][]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	rc, err := zipEntry(zr, "word/document.xml")
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	decoder := xml.NewDecoder(rc)
	var tables [][][]string
	var table [][]string
	var row []string
	var cell strings.Builder
	tblDepth := 0
	inCell := false

	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				tblDepth++
				if tblDepth == 1 {
					table = nil
				}
			case "tr":
				if tblDepth == 1 {
					row = nil
				}
			case "tc":
				if tblDepth == 1 {
					inCell = true
					cell.Reset()
				}
			}
		case xml.CharData:
			if inCell {
				cell.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "tc":
				if tblDepth == 1 && inCell {
					inCell = false
					row = append(row, strings.TrimSpace(cell.String()))
				}
			case "tr":
				if tblDepth == 1 && len(row) > 0 {
					table = append(table, row)
				}
			case "tbl":
				tblDepth--
				if tblDepth == 0 && len(table) > 0 {
					tables = append(tables, table)
				}
			}
		}
	}
	return tables, nil
}

// pptxSlides parses ppt/slides/slideN.xml parts in slide order and returns
// the text runs of each slide.
func pptxSlides(content []byte) ([][]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}

	var names []string
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "ppt/slides/slide") && strings.HasSuffix(f.Name, ".xml") {
			names = append(names, f.Name)
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no slides found in archive")
	}
	sort.Slice(names, func(i, j int) bool { return slideNumber(names[i]) < slideNumber(names[j]) })

	slides := make([][]string, 0, len(names))
	for _, name := range names {
		rc, err := zipEntry(zr, name)
		if err != nil {
			return nil, err
		}
		texts := drawingTexts(rc)
		rc.Close()
		slides = append(slides, texts)
	}
	return slides, nil
}

func slideNumber(name string) int {
	base := strings.TrimSuffix(strings.TrimPrefix(name, "ppt/slides/slide"), ".xml")
	n, _ := strconv.Atoi(base)
	return n
}

// drawingTexts collects <a:t> text runs from a DrawingML part, one entry per
// paragraph (<a:p>).
func drawingTexts(r io.Reader) []string {
	decoder := xml.NewDecoder(r)
	var texts []string
	var current strings.Builder
	inText := false

	flush := func() {
		if t := strings.TrimSpace(current.String()); t != "" {
			texts = append(texts, t)
		}
		current.Reset()
	}

	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				flush()
			}
		}
	}
	flush()
	return texts
}

// xlsxSheets parses worksheet XML parts and returns one cell grid per sheet.
// Shared strings are resolved; formulas yield their cached values.
func xlsxSheets(content []byte) ([][][]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}

	shared := xlsxSharedStrings(zr)

	var names []string
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "xl/worksheets/sheet") && strings.HasSuffix(f.Name, ".xml") {
			names = append(names, f.Name)
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no worksheets found in archive")
	}
	sort.Strings(names)

	var sheets [][][]string
	for _, name := range names {
		rc, err := zipEntry(zr, name)
		if err != nil {
			return nil, err
		}
		rows := xlsxRows(rc, shared)
		rc.Close()
		sheets = append(sheets, rows)
	}
	return sheets, nil
}

func xlsxSharedStrings(zr *zip.Reader) []string {
	rc, err := zipEntry(zr, "xl/sharedStrings.xml")
	if err != nil {
		return nil
	}
	defer rc.Close()

	decoder := xml.NewDecoder(rc)
	var strs []string
	var current strings.Builder
	depth := 0
	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "si":
				current.Reset()
				depth = 1
			case "t":
				if depth == 1 {
					depth = 2
				}
			}
		case xml.CharData:
			if depth == 2 {
				current.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				if depth == 2 {
					depth = 1
				}
			case "si":
				strs = append(strs, current.String())
				depth = 0
			}
		}
	}
	return strs
}

// xlsxRows decodes <row><c t="s|str|n"><v>…</v></c></row> cells.
func xlsxRows(r io.Reader, shared []string) [][]string {
	decoder := xml.NewDecoder(r)
	var rows [][]string
	var row []string
	var cellType string
	var value strings.Builder
	inValue := false

	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "row":
				row = nil
			case "c":
				cellType = ""
				for _, attr := range t.Attr {
					if attr.Name.Local == "t" {
						cellType = attr.Value
					}
				}
			case "v", "is":
				inValue = true
				value.Reset()
			}
		case xml.CharData:
			if inValue {
				value.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "v", "is":
				inValue = false
			case "c":
				v := strings.TrimSpace(value.String())
				if cellType == "s" {
					if idx, err := strconv.Atoi(v); err == nil && idx >= 0 && idx < len(shared) {
						v = shared[idx]
					}
				}
				row = append(row, v)
				value.Reset()
			case "row":
				if len(row) > 0 {
					rows = append(rows, row)
				}
			}
		}
	}
	return rows
}
