package docparse

import "testing"

func TestDetectFileType(t *testing.T) {
	tests := []struct {
		name     string
		declared string
		filename string
		want     string
	}{
		{"declared pdf wins", MimePDF, "notes.txt", MimePDF},
		{"generic falls back to extension", "application/octet-stream", "lesson.pdf", MimePDF},
		{"empty falls back to extension", "", "story.docx", MimeDocx},
		{"charset parameter stripped", "text/plain; charset=utf-8", "readme", MimeText},
		{"markdown extension", "", "guide.md", MimeMarkdown},
		{"uppercase extension", "", "REPORT.PDF", MimePDF},
		{"unknown declared and extension", "application/zip", "archive.zip", ""},
		{"no extension no type", "", "README", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectFileType(tt.declared, tt.filename); got != tt.want {
				t.Errorf("DetectFileType(%q, %q) = %q, want %q", tt.declared, tt.filename, got, tt.want)
			}
		})
	}
}

func TestMatchesType(t *testing.T) {
	supported := map[string]bool{MimePDF: true, MimeText: true}

	if !matchesType(supported, MimePDF, "x.bin") {
		t.Error("declared supported type should match regardless of extension")
	}
	if !matchesType(supported, "application/octet-stream", "notes.txt") {
		t.Error("extension fallback should match")
	}
	if matchesType(supported, MimeDocx, "doc.docx") {
		t.Error("unsupported type should not match")
	}
}

func TestExtensionFor(t *testing.T) {
	if got := extensionFor(MimePDF, "upload"); got != ".pdf" {
		t.Errorf("got %q, want .pdf", got)
	}
	if got := extensionFor("", "lesson.docx"); got != ".docx" {
		t.Errorf("got %q, want .docx (filename extension wins)", got)
	}
	if got := extensionFor("application/unknown", "blob"); got != ".tmp" {
		t.Errorf("got %q, want .tmp", got)
	}
}

func TestNormalizeText(t *testing.T) {
	in := "  Hello   world  \n\n\n  second    line \n"
	want := "Hello world\nsecond line"
	if got := NormalizeText(in); got != want {
		t.Errorf("NormalizeText = %q, want %q", got, want)
	}
}
