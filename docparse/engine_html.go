package docparse

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	mdtable "github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// markdownConverter wraps the HTML-to-markdown pipeline with a sanitizer in
// front. Scripts, styles and event handlers never reach the converter.
type markdownConverter struct {
	policy *bluemonday.Policy
	conv   *htmltomarkdown.Converter
}

func newMarkdownConverter() (*markdownConverter, error) {
	policy := bluemonday.UGCPolicy()
	policy.AllowTables()
	policy.AllowAttrs("alt", "title").OnElements("img")

	conv := htmltomarkdown.NewConverter(
		htmltomarkdown.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			mdtable.NewTablePlugin(),
		),
	)
	return &markdownConverter{policy: policy, conv: conv}, nil
}

// Convert sanitizes then renders Markdown.
func (m *markdownConverter) Convert(rawHTML []byte) (string, error) {
	clean := m.policy.SanitizeBytes(rawHTML)
	md, err := m.conv.ConvertString(string(clean))
	if err != nil {
		return "", fmt.Errorf("markdown conversion: %w", err)
	}
	return strings.TrimSpace(md), nil
}

// convertHTML walks the sanitized DOM for headings, paragraphs and list items,
// pulls tables and images via goquery, and exports Markdown through the
// converter pipeline.
func (e *converterEngine) convertHTML(content []byte) (*ConversionResult, error) {
	clean := e.md.policy.SanitizeBytes(content)

	root, err := html.Parse(bytes.NewReader(clean))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	res := &ConversionResult{Pages: []EnginePage{{Number: 1}}}

	pos := 0
	var plain strings.Builder
	emit := func(text, label string, level int) {
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		res.Texts = append(res.Texts, EngineText{
			Text:  text,
			Label: label,
			Page:  1,
			BBox:  &BBox{Y: float64(pos)},
			Level: level,
		})
		pos++
		if plain.Len() > 0 {
			plain.WriteByte('\n')
		}
		plain.WriteString(text)
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Nav, atom.Footer, atom.Header, atom.Aside:
				return
			case atom.Title:
				if res.Meta.Title == "" {
					res.Meta.Title = strings.TrimSpace(nodeText(n))
				}
				return
			case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
				level := int(n.Data[1] - '0')
				emit(nodeText(n), "heading", level)
				return
			case atom.P, atom.Blockquote, atom.Pre:
				emit(nodeText(n), "paragraph", 0)
				return
			case atom.Li:
				emit(nodeText(n), "list_item", 0)
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	doc := goquery.NewDocumentFromNode(root)

	if e.opts.EnableTableExtraction {
		doc.Find("table").Each(func(_ int, sel *goquery.Selection) {
			cells := htmlTableCells(sel)
			if len(cells) == 0 {
				return
			}
			t := engineTableFromCells(cells, 1)
			t.Caption = strings.TrimSpace(sel.Find("caption").First().Text())
			res.Tables = append(res.Tables, t)
		})
	}

	doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
		alt, _ := sel.Attr("alt")
		title, _ := sel.Attr("title")
		src, _ := sel.Attr("src")
		res.Images = append(res.Images, EngineImage{
			Page:    1,
			Format:  imageFormatFromSrc(src),
			Caption: title,
			AltText: alt,
		})
	})

	if res.Meta.Title == "" && len(res.Texts) > 0 && res.Texts[0].Label == "heading" {
		res.Meta.Title = res.Texts[0].Text
	}

	md, err := e.md.conv.ConvertString(string(clean))
	if err != nil {
		e.logger.Warn("markdown export failed, keeping plain text only", "error", err)
	} else {
		res.Markdown = strings.TrimSpace(md)
	}

	res.PlainText = plain.String()
	if res.PlainText == "" && res.Markdown == "" {
		return nil, fmt.Errorf("no text content found in HTML")
	}
	return res, nil
}

// htmlTableCells flattens a <table> selection into a grid, header rows first.
func htmlTableCells(sel *goquery.Selection) [][]string {
	var cells [][]string
	sel.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var row []string
		tr.Find("th, td").Each(func(_ int, td *goquery.Selection) {
			row = append(row, strings.TrimSpace(td.Text()))
		})
		if len(row) > 0 {
			cells = append(cells, row)
		}
	})
	return cells
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

func imageFormatFromSrc(src string) string {
	if idx := strings.IndexByte(src, '?'); idx >= 0 {
		src = src[:idx]
	}
	if idx := strings.LastIndexByte(src, '.'); idx >= 0 {
		ext := strings.ToLower(src[idx+1:])
		if len(ext) <= 4 {
			if _, err := strconv.Atoi(ext); err != nil {
				return ext
			}
		}
	}
	return ""
}
