package docparse

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestBasicParserText(t *testing.T) {
	p := NewBasicParser(BasicConfig{})
	content := []byte("  First   line  \n\n\nSecond line here  \n")

	doc, err := p.Parse(context.Background(), content, "notes.txt")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.Content != "First line\nSecond line here" {
		t.Errorf("content = %q", doc.Content)
	}
	if doc.Metadata.ParserType != ParserTypeBasic {
		t.Errorf("parser type = %q", doc.Metadata.ParserType)
	}
	if doc.Metadata.WordCount != 5 {
		t.Errorf("word count = %d, want 5", doc.Metadata.WordCount)
	}
	if doc.Metadata.LineCount != 2 {
		t.Errorf("line count = %d, want 2", doc.Metadata.LineCount)
	}
	if doc.Metadata.CharacterCount != len(doc.Content) {
		t.Errorf("character count = %d, want %d", doc.Metadata.CharacterCount, len(doc.Content))
	}
	if doc.Structure != nil || doc.Tables != nil || doc.Images != nil {
		t.Error("basic parser must not produce structure, tables or images")
	}
}

func TestBasicParserMarkdownTreatedAsText(t *testing.T) {
	p := NewBasicParser(BasicConfig{})
	doc, err := p.Parse(context.Background(), []byte("# Title\n\nBody text."), "guide.md")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !strings.Contains(doc.Content, "# Title") {
		t.Errorf("markdown syntax should pass through, got %q", doc.Content)
	}
}

func TestBasicParserOversize(t *testing.T) {
	p := NewBasicParser(BasicConfig{MaxFileSize: 10})
	_, err := p.Parse(context.Background(), make([]byte, 11), "big.txt")

	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("want ParseError, got %v", err)
	}
	if pe.Parser != ParserTypeBasic {
		t.Errorf("parser tag = %q", pe.Parser)
	}
}

func TestBasicParserCorruptDocx(t *testing.T) {
	p := NewBasicParser(BasicConfig{})
	_, err := p.Parse(context.Background(), []byte("not a zip archive"), "broken.docx")

	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("want ParseError, got %v", err)
	}
}

func TestBasicParserCanceledContext(t *testing.T) {
	p := NewBasicParser(BasicConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Parse(ctx, []byte("hello"), "a.txt"); err == nil {
		t.Fatal("want error for canceled context")
	}
}

func TestBasicParserCanParse(t *testing.T) {
	p := NewBasicParser(BasicConfig{})
	tests := []struct {
		fileType string
		filename string
		want     bool
	}{
		{MimePDF, "a.pdf", true},
		{"", "a.txt", true},
		{"", "a.md", true},
		{MimeDocx, "a.docx", true},
		{MimePptx, "deck.pptx", false},
		{MimeHTML, "page.html", false},
	}
	for _, tt := range tests {
		if got := p.CanParse(tt.fileType, tt.filename); got != tt.want {
			t.Errorf("CanParse(%q, %q) = %v, want %v", tt.fileType, tt.filename, got, tt.want)
		}
	}
}
