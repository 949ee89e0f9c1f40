package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.STT.SampleRate != 44100 {
		t.Fatalf("expected default fallback sample rate 44100, got %d", cfg.STT.SampleRate)
	}
	if cfg.Bridge.Channel != "voiceoutliner.tx" {
		t.Fatalf("expected default channel, got %q", cfg.Bridge.Channel)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TXBRIDGE_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("TXBRIDGE_BUS_USERNAME", "alice")
	t.Setenv("TXBRIDGE_BUS_PASSWORD", "secret")
	t.Setenv("TXBRIDGE_BUS_TLS_INSECURE", "true")
	t.Setenv("TXBRIDGE_BUS_CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("TXBRIDGE_NODE_ID", "test-node")
	t.Setenv("TXBRIDGE_NODE_HEARTBEAT_INTERVAL_MS", "1500")
	t.Setenv("TXBRIDGE_NODE_HEARTBEAT_TIMEOUT_MS", "5000")
	t.Setenv("TXBRIDGE_EVENT_STORE_PATH", "./tmp.db")
	t.Setenv("TXBRIDGE_EVENT_STORE_RETENTION_MODE", "persistent")
	t.Setenv("TXBRIDGE_STT_ENGINE", "exec")
	t.Setenv("TXBRIDGE_STT_COMMAND", "vosk-stream --json")
	t.Setenv("TXBRIDGE_STT_SAMPLE_RATE", "16000")
	t.Setenv("TXBRIDGE_BRIDGE_CHANNEL", "voiceoutliner.saga.chat/androidtx")
	t.Setenv("TXBRIDGE_BRIDGE_MAX_CONCURRENCY", "2")
	t.Setenv("TXBRIDGE_TELEMETRY_STDOUT_TRACES", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if !cfg.Bus.TLSInsecure {
		t.Fatal("expected tls insecure override true")
	}
	if cfg.Bus.ConnectTimeout != 5000 {
		t.Fatalf("expected timeout 5000, got %d", cfg.Bus.ConnectTimeout)
	}
	if cfg.Node.ID != "test-node" {
		t.Fatalf("expected node id override")
	}
	if cfg.Node.HeartbeatInterval != 1500 || cfg.Node.HeartbeatTimeout != 5000 {
		t.Fatalf("expected heartbeat overrides")
	}
	if cfg.EventStore.Path != "./tmp.db" || cfg.EventStore.RetentionMode != "persistent" {
		t.Fatalf("expected event store overrides")
	}
	if cfg.STT.Engine != "exec" || cfg.STT.Command != "vosk-stream --json" {
		t.Fatalf("expected stt engine overrides, got %+v", cfg.STT)
	}
	if cfg.STT.SampleRate != 16000 {
		t.Fatalf("expected sample rate override, got %d", cfg.STT.SampleRate)
	}
	if cfg.Bridge.Channel != "voiceoutliner.saga.chat/androidtx" || cfg.Bridge.MaxConcurrency != 2 {
		t.Fatalf("expected bridge overrides, got %+v", cfg.Bridge)
	}
	if !cfg.Telemetry.StdoutTraces {
		t.Fatal("expected stdout traces override")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "txbridge.yaml")
	data := []byte("stt:\n  engine: mock\n  sample_rate: 22050\nbridge:\n  channel: custom.tx\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.STT.SampleRate != 22050 || cfg.Bridge.Channel != "custom.tx" {
		t.Fatalf("file values not applied: %+v %+v", cfg.STT, cfg.Bridge)
	}
	if cfg.STT.ChunkBytes != 4096 {
		t.Fatalf("expected defaults preserved for unset keys, got %d", cfg.STT.ChunkBytes)
	}
}

func TestValidateRejectsExecWithoutCommand(t *testing.T) {
	t.Setenv("TXBRIDGE_STT_ENGINE", "exec")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for exec engine without command")
	}
}

func TestValidateRejectsOddChunkSize(t *testing.T) {
	t.Setenv("TXBRIDGE_STT_CHUNK_BYTES", "4095")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for odd chunk size")
	}
}
