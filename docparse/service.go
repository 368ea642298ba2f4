package docparse

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ServiceConfig configures the parsing service.
type ServiceConfig struct {
	// CacheSize bounds the number of factory instances kept for distinct
	// option sets (default 10). Oldest entry is evicted first.
	CacheSize int `json:"cache_size" yaml:"cache_size"`

	// MaxConcurrent bounds batch parallelism (default 3).
	MaxConcurrent int `json:"max_concurrent" yaml:"max_concurrent"`

	// Factory is the baseline configuration; per-request overrides are
	// applied on top of it.
	Factory FactoryConfig `json:"factory" yaml:"factory"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *ServiceConfig) defaults() {
	if c.CacheSize <= 0 {
		c.CacheSize = 10
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 3
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// ServiceStats is a snapshot of service-level counters.
type ServiceStats struct {
	CacheHits     int64   `json:"cache_hits"`
	CacheMisses   int64   `json:"cache_misses"`
	Errors        int64   `json:"errors"`
	CachedParsers int     `json:"cached_parsers"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// HealthStatus is the service health report. Status is "healthy",
// "disabled" (advanced engine absent, an expected degraded mode) or
// "unhealthy".
type HealthStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// BatchItem is one document in a batch request.
type BatchItem struct {
	Filename string
	FileType string
	Content  []byte
}

// BatchResult pairs a batch item with its outcome, in input order.
type BatchResult struct {
	Filename string
	Document *ParsedDocument
	Err      error
}

// ParserService fronts the factory with an instance cache and bounded batch
// processing. Requests with identical option sets share one factory; distinct
// sets each get their own, up to CacheSize, oldest evicted first.
type ParserService struct {
	cfg     ServiceConfig
	logger  *slog.Logger
	started time.Time
	sem     chan struct{}

	mu     sync.Mutex
	cache  map[string]*ParserFactory
	order  []string // insertion order for eviction
	hits   int64
	misses int64
	errs   int64
}

// NewParserService builds the service and warms the default factory.
func NewParserService(cfg ServiceConfig) *ParserService {
	cfg.defaults()
	s := &ParserService{
		cfg:     cfg,
		logger:  cfg.Logger,
		started: time.Now(),
		sem:     make(chan struct{}, cfg.MaxConcurrent),
		cache:   map[string]*ParserFactory{},
	}
	s.factoryFor(nil)
	return s
}

// optionsKey derives the cache key from the fields that differ from the
// baseline. Nil overrides share the "default" entry.
func (s *ParserService) optionsKey(overrides *EngineOptions) string {
	if overrides == nil {
		return "default"
	}
	base := s.cfg.Factory.Advanced
	key := ""
	if overrides.EnableOCR != base.EnableOCR {
		key += fmt.Sprintf("ocr=%t;", overrides.EnableOCR)
	}
	if overrides.EnableTableExtraction != base.EnableTableExtraction {
		key += fmt.Sprintf("tables=%t;", overrides.EnableTableExtraction)
	}
	if overrides.ProcessingMode != "" && overrides.ProcessingMode != base.ProcessingMode {
		key += fmt.Sprintf("mode=%s;", overrides.ProcessingMode)
	}
	if key == "" {
		return "default"
	}
	return key
}

// factoryFor returns the cached factory for the override set, building and
// caching it on a miss.
func (s *ParserService) factoryFor(overrides *EngineOptions) *ParserFactory {
	key := s.optionsKey(overrides)

	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.cache[key]; ok {
		s.hits++
		return f
	}
	s.misses++

	cfg := s.cfg.Factory
	cfg.Logger = s.logger
	if overrides != nil {
		cfg.Advanced.EnableOCR = overrides.EnableOCR
		cfg.Advanced.EnableTableExtraction = overrides.EnableTableExtraction
		if overrides.ProcessingMode != "" {
			cfg.Advanced.ProcessingMode = overrides.ProcessingMode
		}
	}
	f := NewFactory(cfg)

	if len(s.order) >= s.cfg.CacheSize {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.cache, oldest)
		s.logger.Debug("evicted cached parser factory", "key", oldest)
	}
	s.cache[key] = f
	s.order = append(s.order, key)
	return f
}

// ProcessDocument parses one document through the factory matching the
// override set.
func (s *ParserService) ProcessDocument(ctx context.Context, content []byte, filename, fileType string, overrides *EngineOptions) (*ParsedDocument, error) {
	f := s.factoryFor(overrides)
	doc, err := f.ParseDocument(ctx, content, filename, fileType)
	if err != nil {
		s.mu.Lock()
		s.errs++
		s.mu.Unlock()
		return nil, err
	}
	return doc, nil
}

// ProcessBatch parses a batch with bounded concurrency. Results preserve
// input order; one document's failure never affects the others.
func (s *ParserService) ProcessBatch(ctx context.Context, items []BatchItem, overrides *EngineOptions) []BatchResult {
	results := make([]BatchResult, len(items))
	var wg sync.WaitGroup

	for i, item := range items {
		wg.Add(1)
		go func(i int, item BatchItem) {
			defer wg.Done()
			select {
			case s.sem <- struct{}{}:
				defer func() { <-s.sem }()
			case <-ctx.Done():
				results[i] = BatchResult{Filename: item.Filename, Err: ctx.Err()}
				return
			}

			doc, err := s.ProcessDocument(ctx, item.Content, item.Filename, item.FileType, overrides)
			if err != nil {
				s.logger.Warn("batch item failed", "filename", item.Filename, "error", err)
			}
			results[i] = BatchResult{Filename: item.Filename, Document: doc, Err: err}
		}(i, item)
	}

	wg.Wait()
	return results
}

// Factory exposes the default factory for metrics and capability queries.
func (s *ParserService) Factory() *ParserFactory {
	return s.factoryFor(nil)
}

// Stats returns service-level counters.
func (s *ParserService) Stats() ServiceStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ServiceStats{
		CacheHits:     s.hits,
		CacheMisses:   s.misses,
		Errors:        s.errs,
		CachedParsers: len(s.cache),
		UptimeSeconds: time.Since(s.started).Seconds(),
	}
}

// Health reports service health. A missing advanced engine is "disabled",
// an expected degraded mode; any other initialization failure is
// "unhealthy".
func (s *ParserService) Health() HealthStatus {
	f := s.factoryFor(nil)
	if msg, failed := f.InitFailure(ParserTypeAdvanced); failed {
		if f.Has(ParserTypeBasic) {
			return HealthStatus{Status: "disabled", Message: msg}
		}
		return HealthStatus{Status: "unhealthy", Message: msg}
	}
	if !f.Has(ParserTypeBasic) && !f.Has(ParserTypeAdvanced) {
		return HealthStatus{Status: "unhealthy", Message: "no parsers registered"}
	}
	return HealthStatus{Status: "healthy"}
}
