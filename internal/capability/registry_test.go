package capability

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/loqalabs/loqa-txbridge/internal/bus"
	"github.com/loqalabs/loqa-txbridge/internal/config"
	"github.com/loqalabs/loqa-txbridge/internal/natsserver"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestBridgeCapabilities(t *testing.T) {
	caps := BridgeCapabilities("vosk", "/models/en")
	if len(caps) != 3 {
		t.Fatalf("expected 3 capabilities, got %d", len(caps))
	}
	for _, c := range caps {
		if c.Attributes["engine"] != "vosk" || c.Attributes["model_path"] != "/models/en" {
			t.Fatalf("unexpected attributes %+v", c)
		}
	}
	if _, ok := BridgeCapabilities("mock", "")[0].Attributes["model_path"]; ok {
		t.Fatal("model_path must be omitted when no model is loaded")
	}
}

func TestRegistryAnnouncesAndUpdates(t *testing.T) {
	srv, err := natsserver.Start(config.BusConfig{Embedded: true, Host: "127.0.0.1", Port: -1}, newLogger())
	if err != nil {
		t.Fatalf("start nats: %v", err)
	}
	t.Cleanup(srv.Shutdown)
	client, err := bus.Connect(context.Background(), config.BusConfig{Servers: []string{srv.ClientURL()}, ConnectTimeout: 2000}, "capability-test", newLogger())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)

	cfg := config.NodeConfig{ID: "node-a", Role: "stt-bridge", HeartbeatInterval: 50, HeartbeatTimeout: 5000}
	reg, err := NewRegistry(context.Background(), cfg, client, BridgeCapabilities("mock", ""), newLogger())
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	t.Cleanup(reg.Close)

	if !reg.Healthy() {
		t.Fatal("local node should be healthy after announce")
	}
	if nodes := reg.Query(WithCapabilityFilter("stt.transcribe")); len(nodes) != 1 || nodes[0].ID != "node-a" {
		t.Fatalf("unexpected query result %+v", nodes)
	}

	reg.UpdateLocal(BridgeCapabilities("mock", "/models/en"))
	deadline := time.Now().Add(2 * time.Second)
	for {
		nodes := reg.Query(nil)
		if len(nodes) == 1 && nodes[0].Capabilities[0].Attributes["model_path"] == "/models/en" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("capabilities were not re-announced: %+v", nodes)
		}
		time.Sleep(20 * time.Millisecond)
	}
	if got := reg.LocalCapabilities(); got[0].Attributes["model_path"] != "/models/en" {
		t.Fatalf("unexpected local capabilities %+v", got)
	}
}
