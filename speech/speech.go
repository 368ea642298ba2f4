// Package speech adapts speech-to-text and text-to-speech for the tutoring
// flow. Like the tutor agent, it degrades to mock output without credentials.
package speech

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Config configures the adapters.
type Config struct {
	// APIKey enables live audio calls. Empty key means mock mode.
	APIKey string `json:"-" yaml:"-"`

	// TranscribeModel is the STT model (default whisper-1).
	TranscribeModel string `json:"transcribe_model" yaml:"transcribe_model"`

	// SpeechModel is the TTS model (default tts-1).
	SpeechModel string `json:"speech_model" yaml:"speech_model"`

	// Voice is the TTS voice (default alloy).
	Voice string `json:"voice" yaml:"voice"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.TranscribeModel == "" {
		c.TranscribeModel = "whisper-1"
	}
	if c.SpeechModel == "" {
		c.SpeechModel = "tts-1"
	}
	if c.Voice == "" {
		c.Voice = "alloy"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Transcription is the STT result.
type Transcription struct {
	Text       string  `json:"text"`
	Language   string  `json:"language,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Service provides Transcribe and Synthesize.
type Service struct {
	cfg    Config
	client *openai.Client
	logger *slog.Logger
}

// NewService builds the service; a missing key selects mock mode.
func NewService(cfg Config) *Service {
	cfg.defaults()
	s := &Service{cfg: cfg, logger: cfg.Logger}
	if cfg.APIKey == "" {
		s.logger.Warn("no OpenAI API key configured, speech runs in mock mode")
		return s
	}
	client := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	s.client = &client
	return s
}

// Mock reports whether the service serves canned output.
func (s *Service) Mock() bool { return s.client == nil }

// Transcribe converts spoken audio to text.
func (s *Service) Transcribe(ctx context.Context, audio io.Reader, filename, language string) (*Transcription, error) {
	if s.client == nil {
		return &Transcription{
			Text:       "Mock transcription - speech service not configured",
			Language:   language,
			Confidence: 0,
		}, nil
	}

	resp, err := s.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model:    openai.AudioModel(s.cfg.TranscribeModel),
		File:     openai.File(audio, filename, "application/octet-stream"),
		Language: openai.String(language),
	})
	if err != nil {
		return nil, fmt.Errorf("transcription: %w", err)
	}
	return &Transcription{Text: resp.Text, Language: language, Confidence: 1}, nil
}

// Synthesize renders text as WAV audio.
func (s *Service) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if text == "" {
		return nil, fmt.Errorf("empty text")
	}
	if s.client == nil {
		return silentWAV(500), nil
	}

	resp, err := s.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          openai.SpeechModel(s.cfg.SpeechModel),
		Input:          text,
		Voice:          openai.AudioSpeechNewParamsVoice(s.cfg.Voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatWAV,
	})
	if err != nil {
		return nil, fmt.Errorf("speech synthesis: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	return audio, nil
}

// silentWAV builds a valid 16-bit mono PCM WAV of silence, used as the mock
// synthesis output so clients still receive playable audio.
func silentWAV(ms int) []byte {
	const sampleRate = 16000
	samples := sampleRate * ms / 1000
	dataSize := samples * 2

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVEfmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataSize))
	buf.Write(make([]byte, dataSize))
	return buf.Bytes()
}
