package stt

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loqalabs/loqa-txbridge/internal/config"
)

// Hypothesis is one recognition event as emitted by an engine. A nil
// Payload means the engine had nothing for that window.
type Hypothesis struct {
	Payload []byte
}

// Engine loads recognition models. Implementations exist per backend.
type Engine interface {
	Name() string
	// Available reports why the engine cannot serve requests, or nil.
	Available() error
	LoadModel(ctx context.Context, path string) (Model, error)
}

// Model is a loaded, read-only recognition model. It must be safe to create
// recognizers from multiple goroutines.
type Model interface {
	Path() string
	NewRecognizer(ctx context.Context, sampleRate int) (Recognizer, error)
}

// Recognizer is a single-use streaming recognizer owned by one session.
type Recognizer interface {
	// Push feeds PCM16 little-endian audio and returns the hypotheses the
	// engine completed while consuming it. pcm is only valid during the call.
	Push(ctx context.Context, pcm []byte) ([]Hypothesis, error)
	// Finish ends the audio stream. It returns hypotheses still pending,
	// followed by exactly one final hypothesis.
	Finish(ctx context.Context) ([]Hypothesis, Hypothesis, error)
	Close() error
}

// NewEngine builds the engine selected by cfg.Engine.
func NewEngine(cfg config.STTConfig, logger *slog.Logger) (Engine, error) {
	switch cfg.Engine {
	case "", "mock":
		return NewMockEngine(), nil
	case "exec":
		return NewExecEngine(cfg, logger)
	case "vosk":
		return newVoskEngine(cfg, logger), nil
	case "whisper":
		return newWhisperEngine(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown stt engine %q", cfg.Engine)
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
