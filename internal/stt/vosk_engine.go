//go:build vosk

package stt

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	vosk "github.com/alphacep/vosk-api/go"
	"github.com/loqalabs/loqa-txbridge/internal/config"
)

type voskEngine struct {
	log *slog.Logger
}

func newVoskEngine(_ config.STTConfig, logger *slog.Logger) Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	vosk.SetLogLevel(-1)
	return &voskEngine{log: logger.With(slog.String("component", "stt-vosk"))}
}

func (e *voskEngine) Name() string     { return "vosk" }
func (e *voskEngine) Available() error { return nil }

// LoadModel loads an unpacked Vosk model directory. Replaced models are not
// freed because sessions started against them may still be running.
func (e *voskEngine) LoadModel(_ context.Context, path string) (Model, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("vosk model not found: %w", err)
	}
	model, err := vosk.NewModel(path)
	if err != nil {
		return nil, fmt.Errorf("load vosk model: %w", err)
	}
	e.log.Info("vosk model loaded", slog.String("path", path))
	return &voskModel{model: model, path: path}, nil
}

type voskModel struct {
	model *vosk.VoskModel
	path  string
}

func (m *voskModel) Path() string { return m.path }

func (m *voskModel) NewRecognizer(_ context.Context, sampleRate int) (Recognizer, error) {
	rec, err := vosk.NewRecognizer(m.model, float64(sampleRate))
	if err != nil {
		return nil, fmt.Errorf("create vosk recognizer: %w", err)
	}
	return &voskRecognizer{rec: rec}, nil
}

type voskRecognizer struct {
	rec *vosk.VoskRecognizer
}

// Push returns the utterance result whenever Vosk detects an utterance end.
// In-progress partial results are not surfaced.
func (r *voskRecognizer) Push(_ context.Context, pcm []byte) ([]Hypothesis, error) {
	switch r.rec.AcceptWaveform(pcm) {
	case 1:
		return []Hypothesis{{Payload: []byte(r.rec.Result())}}, nil
	case 0:
		return nil, nil
	default:
		return nil, fmt.Errorf("vosk rejected audio chunk")
	}
}

func (r *voskRecognizer) Finish(context.Context) ([]Hypothesis, Hypothesis, error) {
	return nil, Hypothesis{Payload: []byte(r.rec.FinalResult())}, nil
}

func (r *voskRecognizer) Close() error {
	if r.rec != nil {
		r.rec.Free()
		r.rec = nil
	}
	return nil
}
