package stt

import (
	"context"
	"testing"
)

func TestMockEngineReportsReceivedBytes(t *testing.T) {
	engine := NewMockEngine()
	if err := engine.Available(); err != nil {
		t.Fatalf("mock engine should always be available: %v", err)
	}
	model, err := engine.LoadModel(context.Background(), "/models/any")
	if err != nil {
		t.Fatalf("load model: %v", err)
	}
	got, err := NewSession(model, writeRaw(t, 100), SessionOptions{SampleRate: 16000, ChunkBytes: 32}).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got.Text != "[transcript bytes=100 rate=16000]" {
		t.Fatalf("unexpected transcript %q", got.Text)
	}
}

func TestMockEngineEmptyAudioIsNoSpeech(t *testing.T) {
	model, err := NewMockEngine().LoadModel(context.Background(), "/models/any")
	if err != nil {
		t.Fatalf("load model: %v", err)
	}
	got, err := NewSession(model, writeRaw(t, 0), SessionOptions{SampleRate: 16000}).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got.Speech {
		t.Fatalf("expected no speech, got %+v", got)
	}
}

func TestMockModelRejectsInvalidRate(t *testing.T) {
	model, _ := NewMockEngine().LoadModel(context.Background(), "/models/any")
	if _, err := model.NewRecognizer(context.Background(), 0); err == nil {
		t.Fatal("expected error for zero sample rate")
	}
}
