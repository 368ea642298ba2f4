package speech

import (
	"bytes"
	"context"
	"encoding/binary"
	"strings"
	"testing"
)

func TestMockTranscribe(t *testing.T) {
	s := NewService(Config{})
	if !s.Mock() {
		t.Fatal("service without key should run in mock mode")
	}

	tr, err := s.Transcribe(context.Background(), strings.NewReader("audio"), "clip.wav", "en")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text == "" || tr.Language != "en" {
		t.Errorf("transcription = %+v", tr)
	}
}

func TestMockSynthesizeProducesWAV(t *testing.T) {
	s := NewService(Config{})

	audio, err := s.Synthesize(context.Background(), "Hello student")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !bytes.HasPrefix(audio, []byte("RIFF")) {
		t.Fatal("mock audio missing RIFF header")
	}
	if string(audio[8:12]) != "WAVE" {
		t.Error("mock audio missing WAVE marker")
	}
	riffSize := binary.LittleEndian.Uint32(audio[4:8])
	if int(riffSize)+8 != len(audio) {
		t.Errorf("RIFF size %d inconsistent with %d bytes", riffSize, len(audio))
	}
}

func TestSynthesizeEmptyText(t *testing.T) {
	s := NewService(Config{})
	if _, err := s.Synthesize(context.Background(), ""); err == nil {
		t.Fatal("want error for empty text")
	}
}
