//go:build !vosk

package stt

import (
	"context"
	"errors"
	"log/slog"

	"github.com/loqalabs/loqa-txbridge/internal/config"
)

var errVoskDisabled = errors.New("vosk support is not compiled in (build with -tags vosk)")

type voskEngine struct{}

func newVoskEngine(config.STTConfig, *slog.Logger) Engine { return voskEngine{} }

func (voskEngine) Name() string     { return "vosk" }
func (voskEngine) Available() error { return errVoskDisabled }

func (voskEngine) LoadModel(context.Context, string) (Model, error) {
	return nil, errVoskDisabled
}
