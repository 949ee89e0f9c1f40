package stt

import (
	"context"
	"encoding/json"
	"fmt"
)

type mockEngine struct{}

// NewMockEngine returns an engine that reports how much audio it received
// instead of recognizing speech.
func NewMockEngine() Engine {
	return &mockEngine{}
}

func (m *mockEngine) Name() string     { return "mock" }
func (m *mockEngine) Available() error { return nil }

func (m *mockEngine) LoadModel(_ context.Context, path string) (Model, error) {
	return &mockModel{path: path}, nil
}

type mockModel struct {
	path string
}

func (m *mockModel) Path() string { return m.path }

func (m *mockModel) NewRecognizer(_ context.Context, sampleRate int) (Recognizer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	return &mockRecognizer{sampleRate: sampleRate}, nil
}

type mockRecognizer struct {
	sampleRate int
	received   int
}

func (m *mockRecognizer) Push(_ context.Context, pcm []byte) ([]Hypothesis, error) {
	m.received += len(pcm)
	return nil, nil
}

func (m *mockRecognizer) Finish(context.Context) ([]Hypothesis, Hypothesis, error) {
	text := ""
	if m.received > 0 {
		text = fmt.Sprintf("[transcript bytes=%d rate=%d]", m.received, m.sampleRate)
	}
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, Hypothesis{}, err
	}
	return nil, Hypothesis{Payload: payload}, nil
}

func (m *mockRecognizer) Close() error { return nil }
