package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/loqa-txbridge/internal/bus"
	"github.com/loqalabs/loqa-txbridge/internal/config"
	"github.com/loqalabs/loqa-txbridge/internal/protocol"
	"github.com/nats-io/nats.go"
)

// Service exposes a Dispatcher as request/reply on the bridge channel.
type Service struct {
	cfg        config.BridgeConfig
	bus        *bus.Client
	dispatcher *Dispatcher
	log        *slog.Logger
	sem        chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
	sub        *nats.Subscription

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewService(parent context.Context, cfg config.BridgeConfig, busClient *bus.Client, dispatcher *Dispatcher) *Service {
	ctx, cancel := context.WithCancel(parent)
	limit := cfg.MaxConcurrency
	if limit <= 0 {
		limit = 1
	}
	return &Service{
		cfg:        cfg,
		bus:        busClient,
		dispatcher: dispatcher,
		log:        busClient.Logger().With(slog.String("component", "bridge-service")),
		sem:        make(chan struct{}, limit),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	channel := s.cfg.Channel
	if channel == "" {
		channel = protocol.DefaultChannel
	}
	sub, err := s.bus.Conn().QueueSubscribe(channel, s.cfg.QueueGroup, s.handleRequest)
	if err != nil {
		return fmt.Errorf("subscribe bridge channel: %w", err)
	}
	s.sub = sub
	s.log.Info("bridge channel ready", slog.String("channel", channel), slog.String("queue", s.cfg.QueueGroup))
	return nil
}

// Close stops accepting requests and waits for in-flight ones to answer.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
	s.wg.Wait()
	s.cancel()
}

func (s *Service) Healthy() bool {
	if !s.cfg.Enabled {
		return true
	}
	return s.sub != nil && s.sub.IsValid() && s.bus.Healthy()
}

func (s *Service) handleRequest(msg *nats.Msg) {
	var req protocol.Request
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.log.Warn("failed to decode bridge request", slogError(err))
		s.respond(msg, protocol.Failure("", protocol.CodeBadRequest, "invalid request envelope: "+err.Error()))
		return
	}

	// Blocks the subscription goroutine until a slot frees up.
	select {
	case s.sem <- struct{}{}:
	case <-s.ctx.Done():
		s.respond(msg, protocol.Failure(req.RequestID, protocol.CodeInternal, "bridge shutting down"))
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.sem
		s.respond(msg, protocol.Failure(req.RequestID, protocol.CodeInternal, "bridge shutting down"))
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer func() { <-s.sem }()

		ctx := s.ctx
		if s.cfg.RequestTimeoutMS > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.RequestTimeoutMS)*time.Millisecond)
			defer cancel()
		}
		s.respond(msg, s.dispatcher.Handle(ctx, req))
	}()
}

func (s *Service) respond(msg *nats.Msg, resp protocol.Response) {
	if msg.Reply == "" {
		s.log.Debug("bridge request has no reply subject", slog.String("request_id", resp.RequestID))
		return
	}
	data, err := json.Marshal(resp)
	if err != nil {
		s.log.Warn("failed to marshal bridge response", slogError(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		s.log.Warn("failed to send bridge response", slogError(err))
	}
}
