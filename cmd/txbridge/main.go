package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/loqalabs/loqa-txbridge/internal/bridge"
	"github.com/loqalabs/loqa-txbridge/internal/bus"
	"github.com/loqalabs/loqa-txbridge/internal/config"
	"github.com/loqalabs/loqa-txbridge/internal/protocol"
)

var version = "0.1.0-dev"

type globalFlags struct {
	servers string
	channel string
	timeout time.Duration
}

func (g *globalFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&g.servers, "servers", envOr("TXBRIDGE_BUS_SERVERS", "nats://localhost:4222"), "Comma-separated NATS server URLs")
	fs.StringVar(&g.channel, "channel", envOr("TXBRIDGE_BRIDGE_CHANNEL", protocol.DefaultChannel), "Bridge channel subject")
	fs.DurationVar(&g.timeout, "timeout", 2*time.Minute, "Request timeout")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "expected 'init-model', 'transcribe', 'status' or 'version'")
		os.Exit(2)
	}

	var (
		globals    globalFlags
		path       string
		sampleRate int
	)
	initCmd := flag.NewFlagSet("init-model", flag.ExitOnError)
	initCmd.StringVar(&path, "path", "", "Model directory")
	globals.register(initCmd)

	transcribeCmd := flag.NewFlagSet("transcribe", flag.ExitOnError)
	transcribeCmd.StringVar(&path, "path", "", "Audio file (WAV or raw PCM16)")
	transcribeCmd.IntVar(&sampleRate, "sample-rate", 0, "Sample rate for raw PCM input")
	globals.register(transcribeCmd)

	statusCmd := flag.NewFlagSet("status", flag.ExitOnError)
	globals.register(statusCmd)

	var (
		method string
		args   map[string]any
	)
	switch os.Args[1] {
	case "init-model":
		initCmd.Parse(os.Args[2:])
		method, args = protocol.MethodInitModel, map[string]any{protocol.ArgPath: path}
	case "transcribe":
		transcribeCmd.Parse(os.Args[2:])
		method, args = protocol.MethodTranscribe, map[string]any{protocol.ArgPath: path}
		if sampleRate > 0 {
			args[protocol.ArgSampleRate] = sampleRate
		}
	case "status":
		statusCmd.Parse(os.Args[2:])
		method = protocol.MethodStatus
	case "version":
		fmt.Println(version)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}

	if err := run(globals, method, args, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(g globalFlags, method string, args map[string]any, out io.Writer) error {
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := bus.Connect(ctx, config.BusConfig{
		Servers:        strings.Split(g.servers, ","),
		ConnectTimeout: 2000,
	}, "txbridge-cli", logger)
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := bridge.NewClient(client.Conn(), g.channel).Call(ctx, method, args)
	if err != nil {
		return err
	}
	return printResponse(out, method, resp)
}

func printResponse(out io.Writer, method string, resp protocol.Response) error {
	switch resp.Status {
	case protocol.StatusNotImplemented:
		return fmt.Errorf("bridge does not implement %s", method)
	case protocol.StatusError:
		if resp.Error == nil {
			return errors.New("bridge returned an error without details")
		}
		return fmt.Errorf("%s: %s", resp.Error.Code, resp.Error.Message)
	}

	switch method {
	case protocol.MethodTranscribe:
		text, speech, err := resp.Transcript()
		if err != nil {
			return fmt.Errorf("decode transcript: %w", err)
		}
		if !speech {
			fmt.Fprintln(out, "(no speech detected)")
			return nil
		}
		fmt.Fprintln(out, text)
	case protocol.MethodStatus:
		var st protocol.ModelStatus
		if err := json.Unmarshal(resp.Result, &st); err != nil {
			return fmt.Errorf("decode status: %w", err)
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	default:
		fmt.Fprintln(out, "ok")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
