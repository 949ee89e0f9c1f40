package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-txbridge/internal/eventstore"
	"github.com/loqalabs/loqa-txbridge/internal/protocol"
	"github.com/loqalabs/loqa-txbridge/internal/stt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/loqalabs/loqa-txbridge/bridge"

// Journal records bridge requests. *eventstore.Store satisfies it.
type Journal interface {
	AppendSession(ctx context.Context, sessionID, method, path string) error
	AppendEvent(ctx context.Context, evt eventstore.Event) error
}

// Options tunes the dispatcher.
type Options struct {
	// SampleRate is used for raw audio when the request does not name one.
	SampleRate int
	ChunkBytes int
	Open       stt.OpenFunc
	Clock      func() time.Time
	// OnModelLoaded runs after a new handle is published.
	OnModelLoaded func(*Handle)
}

// Dispatcher routes named bridge operations to the recognizer. It is safe for
// concurrent use; each transcribe request runs its own session.
type Dispatcher struct {
	engine   stt.Engine
	models   *Registry
	journal  Journal
	opts     Options
	log      *slog.Logger
	tracer   trace.Tracer
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

func NewDispatcher(engine stt.Engine, models *Registry, journal Journal, opts Options, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if models == nil {
		models = NewRegistry()
	}
	d := &Dispatcher{
		engine:  engine,
		models:  models,
		journal: journal,
		opts:    opts,
		log:     logger.With(slog.String("component", "bridge")),
		tracer:  otel.Tracer(instrumentationName),
	}
	meter := otel.Meter(instrumentationName)
	var err error
	if d.requests, err = meter.Int64Counter("txbridge.requests", metric.WithDescription("Bridge requests by method and status")); err != nil {
		d.log.Warn("failed to create request counter", slogError(err))
	}
	if d.duration, err = meter.Float64Histogram("txbridge.request.duration", metric.WithDescription("Bridge request latency"), metric.WithUnit("ms")); err != nil {
		d.log.Warn("failed to create duration histogram", slogError(err))
	}
	return d
}

// Models exposes the registry the dispatcher publishes to.
func (d *Dispatcher) Models() *Registry {
	return d.models
}

// Handle serves one request and always produces a response; panics raised
// while serving are converted into the method's failure code.
func (d *Dispatcher) Handle(ctx context.Context, req protocol.Request) (resp protocol.Response) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	start := time.Now()
	ctx, span := d.tracer.Start(ctx, "bridge."+req.Method, trace.WithAttributes(
		attribute.String("bridge.method", req.Method),
		attribute.String("bridge.request_id", req.RequestID),
	))
	defer func() {
		if rec := recover(); rec != nil {
			d.log.Error("bridge operation panicked",
				slog.String("method", req.Method),
				slog.String("request_id", req.RequestID),
				slog.Any("panic", rec))
			resp = protocol.Failure(req.RequestID, panicCode(req.Method), fmt.Sprintf("panic: %v", rec))
		}
		d.observe(ctx, span, req, resp, time.Since(start))
		span.End()
	}()
	return d.dispatch(ctx, req)
}

func (d *Dispatcher) dispatch(ctx context.Context, req protocol.Request) protocol.Response {
	var (
		result json.RawMessage
		err    error
	)
	switch req.Method {
	case protocol.MethodInitModel:
		err = d.initModel(ctx, req.Arguments)
	case protocol.MethodTranscribe:
		result, err = d.transcribe(ctx, req.Arguments)
	case protocol.MethodStatus:
		result, err = d.status()
	default:
		d.log.Debug("unknown bridge method", slog.String("method", req.Method))
		return protocol.NotImplemented(req.RequestID)
	}
	if err != nil {
		return failure(req.RequestID, err)
	}
	return protocol.OK(req.RequestID, result)
}

func (d *Dispatcher) initModel(ctx context.Context, args map[string]any) error {
	path, err := pathArgument(args)
	if err != nil {
		return err
	}
	if err := d.engine.Available(); err != nil {
		return newError(protocol.CodeInitFailed, "recognizer unavailable", err)
	}
	model, err := d.engine.LoadModel(ctx, path)
	if err != nil {
		return newError(protocol.CodeInitFailed, "failed to load model", err)
	}
	handle := &Handle{Model: model, Engine: d.engine.Name(), LoadedAt: d.opts.Clock().UTC()}
	d.models.Set(handle)
	d.log.Info("model loaded", slog.String("path", path), slog.String("engine", handle.Engine))
	if d.opts.OnModelLoaded != nil {
		d.opts.OnModelLoaded(handle)
	}
	return nil
}

func (d *Dispatcher) transcribe(ctx context.Context, args map[string]any) (json.RawMessage, error) {
	path, err := pathArgument(args)
	if err != nil {
		return nil, err
	}
	handle, ok := d.models.Get()
	if !ok {
		return nil, newError(protocol.CodeModelUninitialized, "no model loaded; call initModel first", nil)
	}
	rate, err := sampleRateArgument(args, d.opts.SampleRate)
	if err != nil {
		return nil, err
	}
	if err := d.engine.Available(); err != nil {
		return nil, newError(protocol.CodeTranscribeFailed, "recognizer unavailable", err)
	}

	session := stt.NewSession(handle.Model, path, stt.SessionOptions{
		SampleRate: rate,
		ChunkBytes: d.opts.ChunkBytes,
		Open:       d.opts.Open,
		Logger:     d.log,
	})
	transcript, err := session.Run(ctx)
	if err != nil {
		return nil, newError(protocol.CodeTranscribeFailed, "transcription failed", err)
	}
	if !transcript.Speech {
		d.log.Info("no speech detected", slog.String("path", path))
		return protocol.NullResult, nil
	}
	d.log.Info("transcription complete", slog.String("path", path), slog.Int("chars", len(transcript.Text)))
	payload, err := json.Marshal(transcript.Text)
	if err != nil {
		return nil, newError(protocol.CodeTranscribeFailed, "encode transcript", err)
	}
	return payload, nil
}

func (d *Dispatcher) status() (json.RawMessage, error) {
	st := protocol.ModelStatus{Engine: d.engine.Name()}
	if handle, ok := d.models.Get(); ok {
		loadedAt := handle.LoadedAt
		st.ModelLoaded = true
		st.ModelPath = handle.Path()
		st.Engine = handle.Engine
		st.LoadedAt = &loadedAt
	}
	payload, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("encode status: %w", err)
	}
	return payload, nil
}

func (d *Dispatcher) observe(ctx context.Context, span trace.Span, req protocol.Request, resp protocol.Response, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("method", req.Method),
		attribute.String("status", string(resp.Status)),
	)
	if d.requests != nil {
		d.requests.Add(ctx, 1, attrs)
	}
	if d.duration != nil {
		d.duration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
	}

	span.SetAttributes(attribute.String("bridge.status", string(resp.Status)))
	if resp.Error != nil {
		span.SetAttributes(attribute.String("bridge.error_code", resp.Error.Code))
		span.SetStatus(codes.Error, resp.Error.Message)
		d.log.Warn("bridge request failed",
			slog.String("method", req.Method),
			slog.String("request_id", req.RequestID),
			slog.String("code", resp.Error.Code),
			slog.String("message", resp.Error.Message))
	}

	d.record(ctx, span, req, resp)
}

func (d *Dispatcher) record(ctx context.Context, span trace.Span, req protocol.Request, resp protocol.Response) {
	if d.journal == nil {
		return
	}
	path, _ := req.Arguments[protocol.ArgPath].(string)
	// The request context may already be cancelled; the journal entry is
	// still written.
	ctx = context.WithoutCancel(ctx)
	if err := d.journal.AppendSession(ctx, req.RequestID, req.Method, path); err != nil {
		d.log.Warn("failed to journal request", slogError(err))
		return
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		d.log.Warn("failed to encode journal payload", slogError(err))
		return
	}
	evt := eventstore.Event{
		SessionID: req.RequestID,
		Type:      "bridge.response",
		Payload:   payload,
	}
	if sc := span.SpanContext(); sc.HasTraceID() {
		evt.TraceID = sc.TraceID().String()
	}
	if err := d.journal.AppendEvent(ctx, evt); err != nil {
		d.log.Warn("failed to journal response", slogError(err))
	}
}

func pathArgument(args map[string]any) (string, error) {
	path, _ := args[protocol.ArgPath].(string)
	if strings.TrimSpace(path) == "" {
		return "", newError(protocol.CodeNullPath, "path argument is required", nil)
	}
	return path, nil
}

// sampleRateArgument reads the optional sample_rate argument. JSON numbers
// arrive as float64; only positive whole values are accepted.
func sampleRateArgument(args map[string]any, fallback int) (int, error) {
	raw, ok := args[protocol.ArgSampleRate]
	if !ok || raw == nil {
		return fallback, nil
	}
	var rate int
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) || v > math.MaxInt32 {
			return 0, newError(protocol.CodeBadRequest, fmt.Sprintf("sample_rate must be a whole number, got %v", v), nil)
		}
		rate = int(v)
	case int:
		rate = v
	case json.Number:
		n, err := v.Int64()
		if err != nil || n > math.MaxInt32 {
			return 0, newError(protocol.CodeBadRequest, fmt.Sprintf("sample_rate must be a whole number, got %s", v), nil)
		}
		rate = int(n)
	default:
		return 0, newError(protocol.CodeBadRequest, fmt.Sprintf("sample_rate must be a number, got %T", raw), nil)
	}
	if rate <= 0 {
		return 0, newError(protocol.CodeBadRequest, fmt.Sprintf("sample_rate must be positive, got %d", rate), nil)
	}
	return rate, nil
}

func panicCode(method string) string {
	switch method {
	case protocol.MethodInitModel:
		return protocol.CodeInitFailed
	case protocol.MethodTranscribe:
		return protocol.CodeTranscribeFailed
	default:
		return protocol.CodeInternal
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
