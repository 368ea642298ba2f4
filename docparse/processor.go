package docparse

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kljensen/snowball"

	"github.com/edulingo/edulingo/idgen"
)

// ProcessorConfig configures the document processor.
type ProcessorConfig struct {
	// MaxFileSize rejects uploads before any parser runs (default 10 MB).
	MaxFileSize int64 `json:"max_file_size" yaml:"max_file_size"`

	// MaxContentLength truncates extracted text for downstream prompt use
	// (default 100000 characters).
	MaxContentLength int `json:"max_content_length" yaml:"max_content_length"`

	// Service configures the underlying parsing service.
	Service ServiceConfig `json:"service" yaml:"service"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *ProcessorConfig) defaults() {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 10 * 1024 * 1024
	}
	if c.MaxContentLength <= 0 {
		c.MaxContentLength = 100000
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// ProcessOptions selects per-call enrichment steps.
type ProcessOptions struct {
	ExtractTopics   bool           `json:"extract_topics"`
	GenerateSummary bool           `json:"generate_summary"`
	Engine          *EngineOptions `json:"engine,omitempty"`
}

// DefaultProcessOptions enables both enrichment steps.
func DefaultProcessOptions() ProcessOptions {
	return ProcessOptions{ExtractTopics: true, GenerateSummary: true}
}

// ProcessingInfo records how a result was produced.
type ProcessingInfo struct {
	ParserUsed        string    `json:"parser_used"`
	ProcessingSeconds float64   `json:"processing_seconds"`
	ProcessedAt       time.Time `json:"processed_at"`
	TopicsExtracted   bool      `json:"topics_extracted"`
	SummaryGenerated  bool      `json:"summary_generated"`
}

// Result is the processor's consumer-facing output: parsed document plus
// lesson-oriented enrichment.
type Result struct {
	DocumentID       string         `json:"document_id"`
	Filename         string         `json:"filename"`
	FileType         string         `json:"file_type"`
	Content          string         `json:"content"`
	ContentTruncated bool           `json:"content_truncated"`
	Metadata         Metadata       `json:"metadata"`
	Structure        *Structure     `json:"structure,omitempty"`
	Tables           []Table        `json:"tables"`
	Images           []Image        `json:"images"`
	KeyTopics        []string       `json:"key_topics,omitempty"`
	Summary          string         `json:"summary,omitempty"`
	ProcessingInfo   ProcessingInfo `json:"processing_info"`
}

// ProcessorStats describes processor capabilities and limits.
type ProcessorStats struct {
	AvailableParsers []string `json:"available_parsers"`
	SupportedTypes   []string `json:"supported_types"`
	MaxFileSize      int64    `json:"max_file_size"`
	MaxContentLength int      `json:"max_content_length"`
}

// Processor is the pipeline façade: validation, parsing via the service,
// then content-level enrichment (topics, summary, truncation).
type Processor struct {
	cfg     ProcessorConfig
	service *ParserService
	logger  *slog.Logger
	newID   idgen.Generator
}

// NewProcessor builds the processor and its parsing service.
func NewProcessor(cfg ProcessorConfig) *Processor {
	cfg.defaults()
	cfg.Service.Logger = cfg.Logger
	return &Processor{
		cfg:     cfg,
		service: NewParserService(cfg.Service),
		logger:  cfg.Logger,
		newID:   idgen.Prefixed("doc_", idgen.UUIDv7()),
	}
}

// Service exposes the underlying parsing service for stats and health checks.
func (p *Processor) Service() *ParserService { return p.service }

// ProcessFile validates, parses and enriches one upload. Each call gets a
// fresh document ID; processing the same bytes twice yields identical content
// under different IDs.
func (p *Processor) ProcessFile(ctx context.Context, content []byte, filename, fileType string, opts ProcessOptions) (*Result, error) {
	start := time.Now()

	if len(content) == 0 {
		return nil, &ValidationError{Filename: filename, Reason: "empty file"}
	}
	if int64(len(content)) > p.cfg.MaxFileSize {
		return nil, &ValidationError{
			Filename: filename,
			Reason:   fmt.Sprintf("file too large: %d bytes (max %d)", len(content), p.cfg.MaxFileSize),
		}
	}
	effectiveType := DetectFileType(fileType, filename)
	if effectiveType == "" {
		return nil, &ValidationError{Filename: filename, Reason: fmt.Sprintf("unsupported file type %q", fileType)}
	}

	doc, err := p.service.ProcessDocument(ctx, content, filename, effectiveType, opts.Engine)
	if err != nil {
		return nil, err
	}

	text, truncated := p.truncate(doc.Content)

	res := &Result{
		DocumentID:       p.newID(),
		Filename:         filename,
		FileType:         effectiveType,
		Content:          text,
		ContentTruncated: truncated,
		Metadata:         doc.Metadata,
		Structure:        doc.Structure,
		Tables:           doc.Tables,
		Images:           doc.Images,
	}

	if opts.ExtractTopics {
		res.KeyTopics = KeyTopics(doc.Content, 15)
	}
	if opts.GenerateSummary {
		res.Summary = Summarize(doc.Content, 3)
	}

	res.ProcessingInfo = ProcessingInfo{
		ParserUsed:        doc.Metadata.ParserType,
		ProcessingSeconds: time.Since(start).Seconds(),
		ProcessedAt:       time.Now().UTC(),
		TopicsExtracted:   opts.ExtractTopics,
		SummaryGenerated:  opts.GenerateSummary,
	}

	p.logger.Info("document processed",
		"document_id", res.DocumentID,
		"filename", filename,
		"parser", res.ProcessingInfo.ParserUsed,
		"truncated", truncated,
		"duration_ms", time.Since(start).Milliseconds())

	return res, nil
}

// truncate bounds content length, appending a marker when cut. The cut point
// backs up to a rune boundary so the output stays valid UTF-8.
func (p *Processor) truncate(content string) (string, bool) {
	if len(content) <= p.cfg.MaxContentLength {
		return content, false
	}
	cut := p.cfg.MaxContentLength
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut] + "\n[Content truncated...]", true
}

// Stats describes the processor's current capabilities.
func (p *Processor) Stats() ProcessorStats {
	f := p.service.Factory()
	return ProcessorStats{
		AvailableParsers: f.GetAvailableParsers(),
		SupportedTypes:   f.SupportedTypes(),
		MaxFileSize:      p.cfg.MaxFileSize,
		MaxContentLength: p.cfg.MaxContentLength,
	}
}

// ParserMetrics returns per-parser metrics from the default factory.
func (p *Processor) ParserMetrics() map[string]ParserMetrics {
	return p.service.Factory().Metrics()
}

// stopWords are common English words excluded from topic extraction.
var stopWords = map[string]bool{
	"this": true, "that": true, "with": true, "have": true, "will": true,
	"from": true, "they": true, "know": true, "want": true, "been": true,
	"good": true, "much": true, "some": true, "time": true, "very": true,
	"when": true, "come": true, "here": true, "just": true, "like": true,
	"long": true, "make": true, "many": true, "over": true, "such": true,
	"take": true, "than": true, "them": true, "well": true, "were": true,
	"what": true, "your": true, "about": true, "which": true, "their": true,
	"would": true, "there": true, "could": true, "other": true, "these": true,
	"after": true, "first": true, "also": true, "into": true, "only": true,
	"then": true, "more": true, "most": true, "where": true, "before": true,
	"should": true, "because": true, "through": true, "between": true,
	"being": true, "while": true, "those": true, "each": true, "does": true,
}

// KeyTopics extracts the most frequent content words. Tokens are lowercased,
// stripped to alphanumerics and folded by English stem so inflections count
// together; the first surface form seen represents its stem in the output.
func KeyTopics(text string, limit int) []string {
	type topic struct {
		surface string
		count   int
		order   int
	}
	byStem := map[string]*topic{}
	seen := 0

	for _, raw := range strings.Fields(strings.ToLower(text)) {
		word := strings.Map(func(r rune) rune {
			if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, raw)
		if len(word) <= 3 || stopWords[word] {
			continue
		}

		stem, err := snowball.Stem(word, "english", true)
		if err != nil || stem == "" {
			stem = word
		}
		t, ok := byStem[stem]
		if !ok {
			t = &topic{surface: word, order: seen}
			seen++
			byStem[stem] = t
		}
		t.count++
	}

	topics := make([]*topic, 0, len(byStem))
	for _, t := range byStem {
		topics = append(topics, t)
	}
	sort.Slice(topics, func(i, j int) bool {
		if topics[i].count != topics[j].count {
			return topics[i].count > topics[j].count
		}
		return topics[i].order < topics[j].order
	})

	if limit > len(topics) {
		limit = len(topics)
	}
	out := make([]string, 0, limit)
	for _, t := range topics[:limit] {
		out = append(out, t.surface)
	}
	return out
}

// Summarize returns the first maxSentences substantial sentences of the text.
func Summarize(text string, maxSentences int) string {
	var picked []string
	for _, s := range strings.Split(text, ".") {
		s = strings.TrimSpace(s)
		if len(s) > 20 {
			picked = append(picked, s)
			if len(picked) == maxSentences {
				break
			}
		}
	}
	if len(picked) == 0 {
		return ""
	}
	return strings.Join(picked, ". ") + "."
}
