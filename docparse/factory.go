package docparse

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// FactoryConfig configures parser registration and fallback policy.
type FactoryConfig struct {
	// PreferAdvanced registers the advanced parser ahead of the basic one,
	// making it the default primary for every type it supports.
	PreferAdvanced bool `json:"prefer_advanced" yaml:"prefer_advanced"`

	// EnableFallback lets ParseDocument retry remaining compatible parsers
	// after the primary fails.
	EnableFallback bool `json:"enable_fallback" yaml:"enable_fallback"`

	// Advanced configures the advanced parser instance owned by the factory.
	Advanced AdvancedConfig `json:"advanced" yaml:"advanced"`

	// Basic configures the always-available fallback parser.
	Basic BasicConfig `json:"basic" yaml:"basic"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

// NewFactoryConfig returns the default policy: advanced preferred, fallback on.
func NewFactoryConfig() FactoryConfig {
	return FactoryConfig{
		PreferAdvanced: true,
		EnableFallback: true,
		Advanced:       NewAdvancedConfig(),
	}
}

// parserState pairs a registered parser with its cumulative metrics.
type parserState struct {
	parser     Parser
	processed  int
	successful int
	totalTime  time.Duration
}

func (s *parserState) successRate() float64 {
	if s.processed == 0 {
		return 0.5 // neutral prior until real data arrives
	}
	return float64(s.successful) / float64(s.processed)
}

func (s *parserState) averageTime() float64 {
	if s.processed == 0 {
		return 10.0
	}
	return s.totalTime.Seconds() / float64(s.processed)
}

// ParserFactory owns the parser registry: it constructs the strategies,
// selects a primary per document via performance scoring, orchestrates
// fallback, and aggregates metrics. Selection and bookkeeping are
// mutex-guarded; Parse calls themselves run outside the lock.
type ParserFactory struct {
	cfg    FactoryConfig
	logger *slog.Logger

	mu       sync.Mutex
	parsers  []*parserState // registration order
	failures map[string]string
}

// NewFactory builds the registry. The basic parser always registers; a failed
// advanced construction is recorded in metrics as uninitialized and the
// factory stays fully usable in degraded mode.
func NewFactory(cfg FactoryConfig) *ParserFactory {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	f := &ParserFactory{
		cfg:      cfg,
		logger:   cfg.Logger,
		failures: map[string]string{},
	}

	advanced, err := NewAdvancedParser(cfg.Advanced)
	if err != nil {
		f.failures[ParserTypeAdvanced] = err.Error()
		f.logger.Warn("advanced parser unavailable, continuing with basic only", "error", err)
	}

	if cfg.PreferAdvanced && advanced != nil {
		f.register(advanced)
	}
	f.register(NewBasicParser(cfg.Basic))
	if !cfg.PreferAdvanced && advanced != nil {
		f.register(advanced)
	}
	return f
}

func (f *ParserFactory) register(p Parser) {
	f.parsers = append(f.parsers, &parserState{parser: p})
	f.logger.Info("parser registered", "parser", p.Name())
}

// GetParser selects the best parser for the file: compatible parsers are
// scored on capability and past performance, highest score wins, registration
// order breaks ties.
func (f *ParserFactory) GetParser(fileType, filename string) (Parser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	compatible := f.compatible(fileType, filename)
	if len(compatible) == 0 {
		return nil, &NoCompatibleParserError{FileType: fileType, Filename: filename}
	}
	if len(compatible) == 1 {
		return compatible[0].parser, nil
	}

	best := compatible[0]
	bestScore := f.score(best, fileType)
	for _, s := range compatible[1:] {
		if sc := f.score(s, fileType); sc > bestScore {
			best, bestScore = s, sc
		}
	}
	f.logger.Debug("parser selected", "parser", best.parser.Name(), "score", bestScore, "file_type", fileType)
	return best.parser, nil
}

func (f *ParserFactory) compatible(fileType, filename string) []*parserState {
	var out []*parserState
	for _, s := range f.parsers {
		if s.parser.CanParse(fileType, filename) {
			out = append(out, s)
		}
	}
	return out
}

// score rates a parser for a file type. The advanced strategy gets a
// capability bonus plus an extra bump for the formats where structure matters
// most; observed success rate and latency adjust the rest.
func (f *ParserFactory) score(s *parserState, fileType string) float64 {
	var score float64
	advanced := s.parser.Name() == ParserTypeAdvanced
	if advanced {
		score += 10
	}
	score += s.successRate() * 5
	if penalty := 5 - s.averageTime(); penalty > 0 {
		score += penalty
	}
	if advanced && (normalizeMime(fileType) == MimePDF || normalizeMime(fileType) == MimeDocx) {
		score += 5
	}
	return score
}

// ParseDocument runs the primary parser and, when fallback is enabled, walks
// the remaining compatible parsers in registration order. Every attempt is
// recorded in metrics; total failure returns an error enumerating all
// attempts.
func (f *ParserFactory) ParseDocument(ctx context.Context, content []byte, filename, fileType string) (*ParsedDocument, error) {
	primary, err := f.GetParser(fileType, filename)
	if err != nil {
		return nil, err
	}

	var attempts []ParseAttempt

	doc, err := f.tryParse(ctx, primary, content, filename)
	if err == nil {
		return doc, nil
	}
	attempts = append(attempts, ParseAttempt{Parser: primary.Name(), Err: err})
	f.logger.Warn("primary parser failed", "parser", primary.Name(), "filename", filename, "error", err)

	if f.cfg.EnableFallback {
		f.mu.Lock()
		rest := f.compatible(fileType, filename)
		f.mu.Unlock()

		for _, s := range rest {
			if s.parser == primary {
				continue
			}
			doc, err := f.tryParse(ctx, s.parser, content, filename)
			if err == nil {
				f.logger.Info("fallback parser succeeded", "parser", s.parser.Name(), "filename", filename)
				return doc, nil
			}
			attempts = append(attempts, ParseAttempt{Parser: s.parser.Name(), Err: err})
			f.logger.Warn("fallback parser failed", "parser", s.parser.Name(), "filename", filename, "error", err)
		}
	}

	return nil, &AllParsersExhaustedError{Filename: filename, Attempts: attempts}
}

// tryParse runs one parser and records the attempt's wall-clock outcome.
func (f *ParserFactory) tryParse(ctx context.Context, p Parser, content []byte, filename string) (*ParsedDocument, error) {
	start := time.Now()
	doc, err := p.Parse(ctx, content, filename)
	elapsed := time.Since(start)

	f.mu.Lock()
	for _, s := range f.parsers {
		if s.parser == p {
			s.processed++
			s.totalTime += elapsed
			if err == nil {
				s.successful++
			}
			break
		}
	}
	f.mu.Unlock()

	return doc, err
}

// GetAvailableParsers returns registered parser names in registration order.
func (f *ParserFactory) GetAvailableParsers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.parsers))
	for _, s := range f.parsers {
		names = append(names, s.parser.Name())
	}
	return names
}

// SupportedTypes returns the sorted union of all registered parsers' types.
func (f *ParserFactory) SupportedTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	set := map[string]bool{}
	for _, s := range f.parsers {
		for _, t := range s.parser.SupportedTypes() {
			set[t] = true
		}
	}
	types := make([]string, 0, len(set))
	for t := range set {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Metrics returns a snapshot per parser, including parsers that failed to
// initialize.
func (f *ParserFactory) Metrics() map[string]ParserMetrics {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[string]ParserMetrics, len(f.parsers)+len(f.failures))
	for _, s := range f.parsers {
		m := ParserMetrics{
			Initialized:         true,
			DocumentsProcessed:  s.processed,
			SuccessfulDocuments: s.successful,
			TotalProcessingTime: s.totalTime.Seconds(),
		}
		if s.processed > 0 {
			m.SuccessRate = float64(s.successful) / float64(s.processed)
			m.AverageProcessingTime = s.totalTime.Seconds() / float64(s.processed)
		}
		out[s.parser.Name()] = m
	}
	for name, msg := range f.failures {
		out[name] = ParserMetrics{Initialized: false, Error: msg}
	}
	return out
}

// Has reports whether a parser with the given name is registered.
func (f *ParserFactory) Has(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.parsers {
		if s.parser.Name() == name {
			return true
		}
	}
	return false
}

// InitFailure returns the recorded construction error for a parser name, if any.
func (f *ParserFactory) InitFailure(name string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.failures[name]
	return msg, ok
}
