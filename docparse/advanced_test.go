package docparse

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// fakeEngine returns a canned result or error, optionally after a delay.
type fakeEngine struct {
	res   *ConversionResult
	err   error
	delay time.Duration
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Convert(path string) (*ConversionResult, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.res, f.err
}

func fakeFactory(e Engine) EngineFactory {
	return func(EngineOptions) (Engine, error) { return e, nil }
}

func newAdvancedWith(t *testing.T, e Engine) *AdvancedParser {
	t.Helper()
	cfg := NewAdvancedConfig()
	cfg.EngineFactory = fakeFactory(e)
	p, err := NewAdvancedParser(cfg)
	if err != nil {
		t.Fatalf("NewAdvancedParser: %v", err)
	}
	return p
}

func TestAdvancedParserMapsConversion(t *testing.T) {
	engine := &fakeEngine{res: &ConversionResult{
		Markdown:  "# Chapter One\n\nThe quick brown fox.",
		PlainText: "Chapter One\nThe quick brown fox.",
		Pages:     []EnginePage{{Number: 1, Width: 612, Height: 792}},
		Texts: []EngineText{
			{Text: "Chapter One", Label: "title", Page: 1, BBox: &BBox{Y: 10}},
			{Text: "The quick brown fox.", Label: "paragraph", Page: 1, BBox: &BBox{Y: 50}},
		},
		Tables: []EngineTable{{Page: 1, Rows: 2, Columns: 2, Cells: [][]string{{"a", "b"}, {"c", "d"}}, CSV: "a,b\nc,d\n"}},
		Images: []EngineImage{{Page: 1, Format: "png", AltText: "diagram"}},
		Meta:   EngineMeta{Title: "Chapter One", Author: "Jo"},
	}}
	p := newAdvancedWith(t, engine)

	doc, err := p.Parse(context.Background(), []byte("content"), "book.pdf")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.Content != "# Chapter One\n\nThe quick brown fox." {
		t.Errorf("markdown export should win, got %q", doc.Content)
	}
	if doc.Metadata.Title != "Chapter One" || doc.Metadata.Author != "Jo" {
		t.Errorf("metadata = %+v", doc.Metadata)
	}
	if doc.Metadata.PageCount != 1 {
		t.Errorf("page count = %d", doc.Metadata.PageCount)
	}
	if doc.Structure == nil || len(doc.Structure.Headings) != 1 {
		t.Fatalf("structure = %+v", doc.Structure)
	}
	if doc.Structure.Headings[0].Level != 1 {
		t.Errorf("title heading level = %d, want 1", doc.Structure.Headings[0].Level)
	}
	if len(doc.Tables) != 1 || !doc.Tables[0].ContentExtracted {
		t.Errorf("tables = %+v", doc.Tables)
	}
	if doc.Metadata.TableCount != 1 || doc.Metadata.ImageCount != 1 {
		t.Errorf("counts = %d/%d", doc.Metadata.TableCount, doc.Metadata.ImageCount)
	}
	if len(doc.Images) != 1 || doc.Images[0].AltText != "diagram" {
		t.Errorf("images = %+v", doc.Images)
	}
}

func TestAdvancedParserTextFallback(t *testing.T) {
	engine := &fakeEngine{res: &ConversionResult{PlainText: "plain only"}}
	p := newAdvancedWith(t, engine)

	doc, err := p.Parse(context.Background(), []byte("x"), "a.txt")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.Content != "plain only" {
		t.Errorf("content = %q", doc.Content)
	}
}

func TestAdvancedParserEmptyTextSurvives(t *testing.T) {
	engine := &fakeEngine{res: &ConversionResult{Pages: []EnginePage{{Number: 1}}}}
	p := newAdvancedWith(t, engine)

	doc, err := p.Parse(context.Background(), []byte("x"), "scan.pdf")
	if err != nil {
		t.Fatalf("empty extraction must not fail the parse: %v", err)
	}
	if doc.Content != "" {
		t.Errorf("content = %q, want empty", doc.Content)
	}
}

func TestAdvancedParserTableContentChain(t *testing.T) {
	tests := []struct {
		name      string
		table     EngineTable
		wantCells bool
		wantCSV   string
		wantRaw   string
		extracted bool
	}{
		{"cells preferred", EngineTable{Cells: [][]string{{"x"}}, CSV: "x\n", Raw: "r"}, true, "x\n", "", true},
		{"csv fallback", EngineTable{CSV: "a,b\n"}, false, "a,b\n", "", true},
		{"raw fallback", EngineTable{Raw: "| a | b |"}, false, "", "| a | b |", true},
		{"nothing extracted", EngineTable{Rows: 3, Columns: 2}, false, "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeEngine{res: &ConversionResult{
				PlainText: "text",
				Tables:    []EngineTable{tt.table},
			}}
			p := newAdvancedWith(t, engine)
			doc, err := p.Parse(context.Background(), []byte("x"), "a.pdf")
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			got := doc.Tables[0]
			if (got.Cells != nil) != tt.wantCells {
				t.Errorf("cells present = %v, want %v", got.Cells != nil, tt.wantCells)
			}
			if got.CSV != tt.wantCSV || got.Raw != tt.wantRaw {
				t.Errorf("csv=%q raw=%q", got.CSV, got.Raw)
			}
			if got.ContentExtracted != tt.extracted {
				t.Errorf("content_extracted = %v, want %v", got.ContentExtracted, tt.extracted)
			}
		})
	}
}

func TestAdvancedParserTimeout(t *testing.T) {
	engine := &fakeEngine{
		res:   &ConversionResult{PlainText: "late"},
		delay: 200 * time.Millisecond,
	}
	cfg := NewAdvancedConfig()
	cfg.EngineFactory = fakeFactory(engine)
	cfg.Timeout = 20 * time.Millisecond
	p, err := NewAdvancedParser(cfg)
	if err != nil {
		t.Fatalf("NewAdvancedParser: %v", err)
	}

	if _, err := p.Parse(context.Background(), []byte("x"), "slow.pdf"); err == nil {
		t.Fatal("want timeout error")
	}
}

func TestAdvancedParserOversize(t *testing.T) {
	cfg := NewAdvancedConfig()
	cfg.EngineFactory = fakeFactory(&fakeEngine{res: &ConversionResult{PlainText: "t"}})
	cfg.MaxFileSize = 4
	p, err := NewAdvancedParser(cfg)
	if err != nil {
		t.Fatalf("NewAdvancedParser: %v", err)
	}

	var pe *ParseError
	if _, err := p.Parse(context.Background(), []byte("12345"), "big.pdf"); !errors.As(err, &pe) {
		t.Fatalf("want ParseError, got %v", err)
	}
}

func TestAdvancedParserEngineConstructionFailure(t *testing.T) {
	cfg := NewAdvancedConfig()
	cfg.EngineFactory = func(EngineOptions) (Engine, error) {
		return nil, fmt.Errorf("engine binary missing")
	}
	_, err := NewAdvancedParser(cfg)
	if !errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("want ErrEngineUnavailable, got %v", err)
	}
}

func TestAdvancedParserInstanceMetrics(t *testing.T) {
	ok := &fakeEngine{res: &ConversionResult{PlainText: "t"}}
	p := newAdvancedWith(t, ok)

	p.Parse(context.Background(), []byte("x"), "a.txt")
	p.engine = &fakeEngine{err: fmt.Errorf("boom")}
	p.Parse(context.Background(), []byte("x"), "b.txt")

	processed, errCount, total := p.InstanceMetrics()
	if processed != 2 || errCount != 1 {
		t.Errorf("processed=%d errors=%d, want 2/1", processed, errCount)
	}
	if total <= 0 {
		t.Errorf("total time = %v", total)
	}
}

func TestHeadingLevel(t *testing.T) {
	tests := []struct {
		name string
		in   EngineText
		want int
	}{
		{"explicit level", EngineText{Level: 4, FontSize: 22}, 4},
		{"explicit level clamped", EngineText{Level: 9}, 6},
		{"font size large", EngineText{FontSize: 21}, 1},
		{"font size 18", EngineText{FontSize: 18}, 2},
		{"font size 16", EngineText{FontSize: 16.5}, 3},
		{"font size 14", EngineText{FontSize: 14}, 4},
		{"font size 12", EngineText{FontSize: 12}, 5},
		{"font size small", EngineText{FontSize: 9}, 6},
		{"h2 label", EngineText{Label: "h2"}, 2},
		{"title label", EngineText{Label: "title"}, 1},
		{"subtitle label", EngineText{Label: "subtitle"}, 2},
		{"all caps text", EngineText{Label: "heading", Text: "INTRODUCTION"}, 1},
		{"colon text", EngineText{Label: "heading", Text: "Grammar notes:"}, 2},
		{"default", EngineText{Label: "heading", Text: "A normal heading"}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := headingLevel(tt.in); got != tt.want {
				t.Errorf("headingLevel = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestHeadingsSortedByPageThenPosition(t *testing.T) {
	engine := &fakeEngine{res: &ConversionResult{
		PlainText: "t",
		Texts: []EngineText{
			{Text: "B", Label: "heading", Page: 2, BBox: &BBox{Y: 5}},
			{Text: "C", Label: "heading", Page: 2, BBox: &BBox{Y: 50}},
			{Text: "A", Label: "heading", Page: 1, BBox: &BBox{Y: 100}},
		},
	}}
	p := newAdvancedWith(t, engine)

	doc, err := p.Parse(context.Background(), []byte("x"), "a.pdf")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got := []string{}
	for _, h := range doc.Structure.Headings {
		got = append(got, h.Text)
	}
	want := []string{"A", "B", "C"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("heading order = %v, want %v", got, want)
		}
	}
}
