package bridge

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/loqalabs/loqa-txbridge/internal/bus"
	"github.com/loqalabs/loqa-txbridge/internal/config"
	"github.com/loqalabs/loqa-txbridge/internal/natsserver"
	"github.com/loqalabs/loqa-txbridge/internal/protocol"
)

func startBus(t *testing.T) *bus.Client {
	t.Helper()
	srv, err := natsserver.Start(config.BusConfig{Embedded: true, Host: "127.0.0.1", Port: -1}, newLogger())
	if err != nil {
		t.Fatalf("start embedded nats: %v", err)
	}
	t.Cleanup(srv.Shutdown)

	client, err := bus.Connect(context.Background(), config.BusConfig{
		Servers:        []string{srv.ClientURL()},
		ConnectTimeout: 2000,
	}, "txbridge-test", newLogger())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func TestServiceRoundTrip(t *testing.T) {
	busClient := startBus(t)
	d, _ := newTestDispatcher(t, &fakeEngine{incremental: []string{"good"}, final: "morning"})

	cfg := config.BridgeConfig{Enabled: true, Channel: "test.tx", QueueGroup: "txbridge", RequestTimeoutMS: 5000, MaxConcurrency: 2}
	svc := NewService(context.Background(), cfg, busClient, d)
	if err := svc.Start(); err != nil {
		t.Fatalf("start service: %v", err)
	}
	t.Cleanup(svc.Close)
	if !svc.Healthy() {
		t.Fatal("service should be healthy after start")
	}

	client := NewClient(busClient.Conn(), "test.tx")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Call(ctx, protocol.MethodTranscribe, map[string]any{protocol.ArgPath: writeAudio(t)})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != protocol.CodeModelUninitialized {
		t.Fatalf("expected model_uninitialized, got %+v", resp)
	}

	if resp, err = client.Call(ctx, protocol.MethodInitModel, map[string]any{protocol.ArgPath: "/models/en"}); err != nil || resp.Status != protocol.StatusOK {
		t.Fatalf("initModel: %+v %v", resp, err)
	}

	resp, err = client.Call(ctx, protocol.MethodTranscribe, map[string]any{protocol.ArgPath: writeAudio(t)})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	text, speech, err := resp.Transcript()
	if err != nil || !speech || text != "good morning" {
		t.Fatalf("unexpected transcript %q speech=%v err=%v", text, speech, err)
	}
}

func TestServiceRejectsMalformedEnvelope(t *testing.T) {
	busClient := startBus(t)
	d, _ := newTestDispatcher(t, &fakeEngine{})
	svc := NewService(context.Background(), config.BridgeConfig{Enabled: true, Channel: "test.bad", MaxConcurrency: 1}, busClient, d)
	if err := svc.Start(); err != nil {
		t.Fatalf("start service: %v", err)
	}
	t.Cleanup(svc.Close)

	msg, err := busClient.Conn().Request("test.bad", []byte("{not json"), 2*time.Second)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	var resp protocol.Response
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != protocol.CodeBadRequest {
		t.Fatalf("expected bad_request, got %+v", resp)
	}
}

func TestServiceDisabled(t *testing.T) {
	busClient := startBus(t)
	d, _ := newTestDispatcher(t, &fakeEngine{})
	svc := NewService(context.Background(), config.BridgeConfig{Enabled: false}, busClient, d)
	if err := svc.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !svc.Healthy() {
		t.Fatal("disabled service reports healthy")
	}
	svc.Close()
}
