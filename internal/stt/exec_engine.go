package stt

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/loqalabs/loqa-txbridge/internal/config"
	"github.com/mattn/go-shellwords"
)

// execEngine runs an external recognizer per session. The command receives
// PCM16 on stdin and writes one JSON hypothesis per line on stdout:
//
//	{"text": "...", "final": false}
//
// The first line with final=true (or EOF) terminates the session.
type execEngine struct {
	cmd      []string
	language string
	log      *slog.Logger
}

type execLine struct {
	Final bool `json:"final"`
}

func NewExecEngine(cfg config.STTConfig, logger *slog.Logger) (Engine, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse stt command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("stt command is empty")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &execEngine{
		cmd:      args,
		language: cfg.Language,
		log:      logger.With(slog.String("component", "stt-exec")),
	}, nil
}

func (e *execEngine) Name() string { return "exec" }

func (e *execEngine) Available() error {
	if _, err := exec.LookPath(e.cmd[0]); err != nil {
		return fmt.Errorf("stt command unavailable: %w", err)
	}
	return nil
}

func (e *execEngine) LoadModel(_ context.Context, path string) (Model, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat model: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("model path %s is not a directory", path)
	}
	return &execModel{engine: e, path: path}, nil
}

type execModel struct {
	engine *execEngine
	path   string
}

func (m *execModel) Path() string { return m.path }

func (m *execModel) NewRecognizer(ctx context.Context, sampleRate int) (Recognizer, error) {
	args := append([]string{}, m.engine.cmd[1:]...)
	args = append(args, "--model", m.path, "--sample-rate", strconv.Itoa(sampleRate))
	if m.engine.language != "" {
		args = append(args, "--language", m.engine.language)
	}

	command := exec.CommandContext(ctx, m.engine.cmd[0], args...)
	rec := &execRecognizer{cmd: command, done: make(chan struct{})}
	command.Stderr = &rec.stderr

	stdin, err := command.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stt stdin: %w", err)
	}
	stdout, err := command.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stt stdout: %w", err)
	}
	if err := command.Start(); err != nil {
		return nil, fmt.Errorf("start stt command: %w", err)
	}
	rec.stdin = stdin
	go rec.readLines(stdout)
	return rec, nil
}

type execRecognizer struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr bytes.Buffer
	done   chan struct{}

	mu      sync.Mutex
	pending []Hypothesis
	final   *Hypothesis
	readErr error

	closeOnce sync.Once
	waited    bool
}

func (r *execRecognizer) readLines(stdout io.Reader) {
	defer close(r.done)
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		h := Hypothesis{Payload: append([]byte(nil), line...)}
		var meta execLine
		_ = json.Unmarshal(line, &meta)

		r.mu.Lock()
		switch {
		case r.final != nil:
		case meta.Final:
			r.final = &h
		default:
			r.pending = append(r.pending, h)
		}
		r.mu.Unlock()
	}
	err := scanner.Err()
	if err != nil {
		// Keep the pipe flowing so the command can exit and Push never
		// blocks on a stalled child.
		_, _ = io.Copy(io.Discard, stdout)
	}
	r.mu.Lock()
	r.readErr = err
	r.mu.Unlock()
}

func (r *execRecognizer) take() []Hypothesis {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.pending
	r.pending = nil
	return out
}

func (r *execRecognizer) Push(_ context.Context, pcm []byte) ([]Hypothesis, error) {
	if _, err := r.stdin.Write(pcm); err != nil {
		return nil, fmt.Errorf("write audio to stt command: %w", err)
	}
	return r.take(), nil
}

func (r *execRecognizer) Finish(ctx context.Context) ([]Hypothesis, Hypothesis, error) {
	if err := r.stdin.Close(); err != nil {
		return nil, Hypothesis{}, fmt.Errorf("close stt stdin: %w", err)
	}
	select {
	case <-r.done:
	case <-ctx.Done():
		return nil, Hypothesis{}, ctx.Err()
	}
	r.waited = true
	if err := r.cmd.Wait(); err != nil {
		return nil, Hypothesis{}, fmt.Errorf("stt command failed: %w: %s", err, r.stderr.String())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.readErr != nil {
		return nil, Hypothesis{}, fmt.Errorf("read stt output: %w", r.readErr)
	}
	pending := r.pending
	r.pending = nil
	var final Hypothesis
	if r.final != nil {
		final = *r.final
	}
	return pending, final, nil
}

// Close stops the command if it is still running and reaps it.
func (r *execRecognizer) Close() error {
	r.closeOnce.Do(func() {
		_ = r.stdin.Close()
		if r.waited {
			return
		}
		if r.cmd.Process != nil {
			_ = r.cmd.Process.Kill()
		}
		<-r.done
		_ = r.cmd.Wait()
		r.waited = true
	})
	return nil
}
