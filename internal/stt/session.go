package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
	"sync/atomic"
)

// ErrSessionUsed is returned when Run is called on a session that already ran.
var ErrSessionUsed = errors.New("transcription session already used")

// State is the lifecycle position of a Session.
type State int32

const (
	StateIdle State = iota
	StateStreaming
	StateCompleted
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Transcript is the outcome of a completed session. Speech is false when no
// fragment carried any non-whitespace text; Text is then empty.
type Transcript struct {
	Text   string
	Speech bool
}

// SessionOptions tunes a single session.
type SessionOptions struct {
	// SampleRate applies to raw PCM input only; WAV files use their header.
	SampleRate int
	ChunkBytes int
	Open       OpenFunc
	Logger     *slog.Logger
}

const defaultChunkBytes = 4096

// Session drives one recognizer over one audio file. It is not reusable.
type Session struct {
	model     Model
	path      string
	opts      SessionOptions
	log       *slog.Logger
	state     atomic.Int32
	fragments []string
}

func NewSession(model Model, path string, opts SessionOptions) *Session {
	if opts.ChunkBytes <= 0 {
		opts.ChunkBytes = defaultChunkBytes
	}
	if opts.Open == nil {
		opts.Open = OpenFile
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Session{
		model: model,
		path:  path,
		opts:  opts,
		log:   logger.With(slog.String("component", "stt-session")),
	}
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// Run streams the audio file through a fresh recognizer and blocks until the
// final hypothesis arrives or the session fails. The file and recognizer are
// released before Run returns.
func (s *Session) Run(ctx context.Context) (Transcript, error) {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateStreaming)) {
		return Transcript{}, ErrSessionUsed
	}
	transcript, err := s.run(ctx)
	if err != nil {
		s.state.Store(int32(StateErrored))
		return Transcript{}, err
	}
	s.state.Store(int32(StateCompleted))
	return transcript, nil
}

func (s *Session) run(ctx context.Context) (Transcript, error) {
	src, err := openAudio(s.opts.Open, s.path, s.opts.SampleRate)
	if err != nil {
		return Transcript{}, err
	}
	defer func() {
		if err := src.Close(); err != nil {
			s.log.Warn("failed to close audio file", slogError(err))
		}
	}()

	rec, err := s.model.NewRecognizer(ctx, src.format.SampleRate)
	if err != nil {
		return Transcript{}, fmt.Errorf("create recognizer: %w", err)
	}
	defer func() {
		if err := rec.Close(); err != nil {
			s.log.Warn("failed to release recognizer", slogError(err))
		}
	}()

	s.log.Debug("session streaming",
		slog.String("path", s.path),
		slog.String("container", src.container),
		slog.Int("sample_rate", src.format.SampleRate))

	listener := Listener{OnResult: s.collect, OnFinal: s.collect}
	for ev, err := range stream(ctx, rec, src.pcm, s.opts.ChunkBytes) {
		if err != nil {
			return Transcript{}, err
		}
		if err := listener.Handle(ev); err != nil {
			return Transcript{}, err
		}
	}
	return JoinFragments(s.fragments), nil
}

func (s *Session) collect(text string) {
	if text != "" {
		s.fragments = append(s.fragments, text)
	}
}

// stream pushes r through rec chunk by chunk and yields hypotheses in
// emission order, ending with exactly one final event. Cancellation is
// observed between chunks.
func stream(ctx context.Context, rec Recognizer, r io.Reader, chunkBytes int) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		buf := make([]byte, chunkBytes)
		for {
			if err := ctx.Err(); err != nil {
				yield(Event{}, fmt.Errorf("stream audio: %w", err))
				return
			}
			n, readErr := io.ReadFull(r, buf)
			if n > 0 {
				hyps, err := rec.Push(ctx, buf[:n])
				if err != nil {
					yield(Event{}, fmt.Errorf("push audio: %w", err))
					return
				}
				for _, h := range hyps {
					if !yield(Event{Hypothesis: h}, nil) {
						return
					}
				}
			}
			if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
				break
			}
			if readErr != nil {
				yield(Event{}, fmt.Errorf("read audio: %w", readErr))
				return
			}
		}

		pending, final, err := rec.Finish(ctx)
		if err != nil {
			yield(Event{}, fmt.Errorf("finish recognition: %w", err))
			return
		}
		for _, h := range pending {
			if !yield(Event{Hypothesis: h}, nil) {
				return
			}
		}
		yield(Event{Final: true, Hypothesis: final}, nil)
	}
}

// JoinFragments joins fragments with single spaces. A join that is empty or
// all whitespace means no speech was recognized.
func JoinFragments(fragments []string) Transcript {
	joined := strings.Join(fragments, " ")
	if strings.TrimSpace(joined) == "" {
		return Transcript{}
	}
	return Transcript{Text: joined, Speech: true}
}
