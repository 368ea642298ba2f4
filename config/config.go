// Package config holds runtime configuration: YAML file with defaults, plus
// environment overrides for deployment settings and secrets.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Upload        UploadConfig        `yaml:"upload"`
	Parser        ParserConfig        `yaml:"parser"`
	Content       ContentConfig       `yaml:"content"`
	Session       SessionConfig       `yaml:"session"`
	OpenAI        OpenAIConfig        `yaml:"openai"`
	Speech        SpeechConfig        `yaml:"speech"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// UploadConfig bounds document uploads.
type UploadConfig struct {
	MaxFileSize       int64    `yaml:"max_file_size"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

// ParserConfig controls the parsing pipeline. The boolean flags default to
// true; UnmarshalYAML tells absent keys apart from an explicit false.
type ParserConfig struct {
	PreferAdvanced        bool
	EnableFallback        bool
	EnableOCR             bool
	EnableTableExtraction bool
	ProcessingMode        string
	AdvancedMaxFileSize   int64
	ConversionTimeout     time.Duration
	CacheSize             int
	MaxConcurrent         int

	decoded bool
}

// UnmarshalYAML decodes through pointer booleans so each flag defaults
// independently when its key is absent.
func (p *ParserConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		PreferAdvanced        *bool         `yaml:"prefer_advanced"`
		EnableFallback        *bool         `yaml:"enable_fallback"`
		EnableOCR             *bool         `yaml:"enable_ocr"`
		EnableTableExtraction *bool         `yaml:"enable_table_extraction"`
		ProcessingMode        string        `yaml:"processing_mode"`
		AdvancedMaxFileSize   int64         `yaml:"advanced_max_file_size"`
		ConversionTimeout     time.Duration `yaml:"conversion_timeout"`
		CacheSize             int           `yaml:"cache_size"`
		MaxConcurrent         int           `yaml:"max_concurrent"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	p.PreferAdvanced = boolOr(raw.PreferAdvanced, true)
	p.EnableFallback = boolOr(raw.EnableFallback, true)
	p.EnableOCR = boolOr(raw.EnableOCR, true)
	p.EnableTableExtraction = boolOr(raw.EnableTableExtraction, true)
	p.ProcessingMode = raw.ProcessingMode
	p.AdvancedMaxFileSize = raw.AdvancedMaxFileSize
	p.ConversionTimeout = raw.ConversionTimeout
	p.CacheSize = raw.CacheSize
	p.MaxConcurrent = raw.MaxConcurrent
	p.decoded = true
	return nil
}

func boolOr(v *bool, def bool) bool {
	if v != nil {
		return *v
	}
	return def
}

// ContentConfig bounds extracted content.
type ContentConfig struct {
	MaxLength int `yaml:"max_length"`
}

// SessionConfig controls the session store.
type SessionConfig struct {
	MaxAge        time.Duration `yaml:"max_age"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// OpenAIConfig controls the tutor agent. The API key comes only from the
// OPENAI_API_KEY environment variable, never from the file.
type OpenAIConfig struct {
	APIKey      string  `yaml:"-"`
	Model       string  `yaml:"model"`
	MaxTokens   int64   `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// SpeechConfig controls the STT/TTS adapters.
type SpeechConfig struct {
	TranscribeModel string `yaml:"transcribe_model"`
	SpeechModel     string `yaml:"speech_model"`
	Voice           string `yaml:"voice"`
}

// ObservabilityConfig controls the event log.
type ObservabilityConfig struct {
	DBPath        string `yaml:"db_path"`
	RetentionDays int    `yaml:"retention_days"`
}

func (c *Config) defaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8000"
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}
	if c.Server.ReadTimeout <= 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout <= 0 {
		c.Server.WriteTimeout = 60 * time.Second
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}

	if c.Upload.MaxFileSize <= 0 {
		c.Upload.MaxFileSize = 10 * 1024 * 1024
	}
	if len(c.Upload.AllowedExtensions) == 0 {
		c.Upload.AllowedExtensions = []string{".pdf", ".txt", ".docx", ".md"}
	}

	if !c.Parser.decoded {
		c.Parser.PreferAdvanced = true
		c.Parser.EnableFallback = true
		c.Parser.EnableOCR = true
		c.Parser.EnableTableExtraction = true
	}
	if c.Parser.ProcessingMode == "" {
		c.Parser.ProcessingMode = "accurate"
	}
	if c.Parser.AdvancedMaxFileSize <= 0 {
		c.Parser.AdvancedMaxFileSize = 50 * 1024 * 1024
	}
	if c.Parser.ConversionTimeout <= 0 {
		c.Parser.ConversionTimeout = 5 * time.Minute
	}
	if c.Parser.CacheSize <= 0 {
		c.Parser.CacheSize = 10
	}
	if c.Parser.MaxConcurrent <= 0 {
		c.Parser.MaxConcurrent = 3
	}

	if c.Content.MaxLength <= 0 {
		c.Content.MaxLength = 100000
	}

	if c.Session.MaxAge <= 0 {
		c.Session.MaxAge = 24 * time.Hour
	}
	if c.Session.SweepInterval <= 0 {
		c.Session.SweepInterval = time.Hour
	}

	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4o-mini"
	}
	if c.OpenAI.MaxTokens <= 0 {
		c.OpenAI.MaxTokens = 2000
	}
	if c.OpenAI.Temperature <= 0 {
		c.OpenAI.Temperature = 0.7
	}

	if c.Speech.TranscribeModel == "" {
		c.Speech.TranscribeModel = "whisper-1"
	}
	if c.Speech.SpeechModel == "" {
		c.Speech.SpeechModel = "tts-1"
	}
	if c.Speech.Voice == "" {
		c.Speech.Voice = "alloy"
	}

	if c.Observability.DBPath == "" {
		c.Observability.DBPath = "edulingo-events.db"
	}
	if c.Observability.RetentionDays <= 0 {
		c.Observability.RetentionDays = 30
	}
}

// Load reads a YAML config file, applies defaults and env overrides. An empty
// path yields the default configuration.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.defaults()
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides deployment settings and secrets from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		c.OpenAI.Model = v
	}
	if v := os.Getenv("OBSERVABILITY_DB"); v != "" {
		c.Observability.DBPath = v
	}
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.Upload.MaxFileSize = n
		}
	}
}
