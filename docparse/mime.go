package docparse

import (
	"path/filepath"
	"strings"
)

// MIME types handled by the pipeline.
const (
	MimePDF      = "application/pdf"
	MimeDocx     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeDoc      = "application/msword"
	MimePptx     = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	MimeXlsx     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MimeHTML     = "text/html"
	MimeMarkdown = "text/markdown"
	MimeText     = "text/plain"
)

// extToMime maps filename extensions to MIME types. Used as a fallback when
// callers supply an absent or generic MIME type (e.g. application/octet-stream).
var extToMime = map[string]string{
	".pdf":      MimePDF,
	".docx":     MimeDocx,
	".doc":      MimeDoc,
	".pptx":     MimePptx,
	".xlsx":     MimeXlsx,
	".html":     MimeHTML,
	".htm":      MimeHTML,
	".md":       MimeMarkdown,
	".markdown": MimeMarkdown,
	".txt":      MimeText,
}

// mimeToExt maps MIME types to a canonical extension.
var mimeToExt = map[string]string{
	MimePDF:      ".pdf",
	MimeDocx:     ".docx",
	MimeDoc:      ".doc",
	MimePptx:     ".pptx",
	MimeXlsx:     ".xlsx",
	MimeHTML:     ".html",
	MimeMarkdown: ".md",
	MimeText:     ".txt",
}

// DetectFileType resolves the effective MIME type for a file. A declared
// non-generic MIME type wins; otherwise the filename extension decides.
// Returns "" when neither is recognized.
func DetectFileType(declared, filename string) string {
	declared = normalizeMime(declared)
	if declared != "" && declared != "application/octet-stream" {
		if _, ok := mimeToExt[declared]; ok {
			return declared
		}
	}
	ext := strings.ToLower(filepath.Ext(filename))
	return extToMime[ext]
}

// matchesType reports whether a (fileType, filename) pair is covered by the
// given MIME set, checking the declared type first and the extension as a
// fallback.
func matchesType(supported map[string]bool, fileType, filename string) bool {
	if supported[normalizeMime(fileType)] {
		return true
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if m, ok := extToMime[ext]; ok {
		return supported[m]
	}
	return false
}

// normalizeMime strips parameters ("text/plain; charset=utf-8" → "text/plain").
func normalizeMime(m string) string {
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = m[:i]
	}
	return strings.ToLower(strings.TrimSpace(m))
}

// extensionFor returns the canonical extension for a MIME type, or ".tmp"
// when unknown (temp-file suffix for the conversion engine).
func extensionFor(fileType, filename string) string {
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" {
		return ext
	}
	if ext, ok := mimeToExt[normalizeMime(fileType)]; ok {
		return ext
	}
	return ".tmp"
}
