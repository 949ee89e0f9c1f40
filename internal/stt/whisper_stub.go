//go:build !whisper

package stt

import (
	"context"
	"errors"
	"log/slog"

	"github.com/loqalabs/loqa-txbridge/internal/config"
)

var errWhisperDisabled = errors.New("whisper.cpp support is not compiled in (build with -tags whisper)")

type whisperEngine struct{}

func newWhisperEngine(config.STTConfig, *slog.Logger) Engine { return whisperEngine{} }

func (whisperEngine) Name() string     { return "whisper" }
func (whisperEngine) Available() error { return errWhisperDisabled }

func (whisperEngine) LoadModel(context.Context, string) (Model, error) {
	return nil, errWhisperDisabled
}
