//go:build whisper

package stt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/loqalabs/loqa-txbridge/internal/config"
)

type whisperEngine struct {
	language string
	log      *slog.Logger
}

func newWhisperEngine(cfg config.STTConfig, logger *slog.Logger) Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &whisperEngine{language: cfg.Language, log: logger.With(slog.String("component", "stt-whisper"))}
}

func (e *whisperEngine) Name() string     { return "whisper" }
func (e *whisperEngine) Available() error { return nil }

// LoadModel expects path to name a ggml model file.
func (e *whisperEngine) LoadModel(_ context.Context, path string) (Model, error) {
	model, err := whisper.New(path)
	if err != nil {
		return nil, fmt.Errorf("load whisper model: %w", err)
	}
	e.log.Info("whisper model loaded", slog.String("path", path))
	return &whisperModel{model: model, path: path, language: e.language}, nil
}

type whisperModel struct {
	model    whisper.Model
	path     string
	language string
	// whisper contexts share model state; processing is serialized per model.
	mu sync.Mutex
}

func (m *whisperModel) Path() string { return m.path }

func (m *whisperModel) NewRecognizer(_ context.Context, sampleRate int) (Recognizer, error) {
	if sampleRate != whisper.SampleRate {
		return nil, fmt.Errorf("whisper requires %d Hz audio, got %d", whisper.SampleRate, sampleRate)
	}
	return &whisperRecognizer{model: m}, nil
}

// whisperRecognizer buffers the whole stream; whisper.cpp is not incremental.
type whisperRecognizer struct {
	model   *whisperModel
	samples []float32
	carry   []byte
}

func (r *whisperRecognizer) Push(_ context.Context, pcm []byte) ([]Hypothesis, error) {
	if len(r.carry) > 0 {
		pcm = append(r.carry, pcm...)
		r.carry = nil
	}
	whole := len(pcm) &^ 1
	for i := 0; i < whole; i += 2 {
		sample := int16(binary.LittleEndian.Uint16(pcm[i:]))
		r.samples = append(r.samples, float32(sample)/32768.0)
	}
	if whole < len(pcm) {
		r.carry = []byte{pcm[whole]}
	}
	return nil, nil
}

func (r *whisperRecognizer) Finish(context.Context) ([]Hypothesis, Hypothesis, error) {
	r.model.mu.Lock()
	defer r.model.mu.Unlock()

	wctx, err := r.model.model.NewContext()
	if err != nil {
		return nil, Hypothesis{}, fmt.Errorf("whisper context: %w", err)
	}
	wctx.SetTranslate(false)
	if r.model.language != "" {
		if err := wctx.SetLanguage(r.model.language); err != nil {
			return nil, Hypothesis{}, fmt.Errorf("whisper language: %w", err)
		}
	}
	if err := wctx.Process(r.samples, nil, nil, nil); err != nil {
		return nil, Hypothesis{}, fmt.Errorf("whisper process: %w", err)
	}

	var segments []Hypothesis
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, Hypothesis{}, err
		}
		payload, err := json.Marshal(map[string]string{"text": strings.TrimSpace(segment.Text)})
		if err != nil {
			return nil, Hypothesis{}, err
		}
		segments = append(segments, Hypothesis{Payload: payload})
	}
	return segments, Hypothesis{}, nil
}

func (r *whisperRecognizer) Close() error {
	r.samples = nil
	return nil
}
