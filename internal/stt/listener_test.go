package stt

import (
	"errors"
	"testing"
)

func TestExtractTextPresent(t *testing.T) {
	text, err := ExtractText(Hypothesis{Payload: []byte(`{"text":"turn on the lights","result":[{"conf":1}]}`)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "turn on the lights" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestExtractTextAbsentPayload(t *testing.T) {
	text, err := ExtractText(Hypothesis{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "" {
		t.Fatalf("expected empty text, got %q", text)
	}
}

func TestExtractTextMissingField(t *testing.T) {
	_, err := ExtractText(Hypothesis{Payload: []byte(`{"partial":"hello"}`)})
	if !errors.Is(err, ErrMalformedHypothesis) {
		t.Fatalf("expected ErrMalformedHypothesis, got %v", err)
	}
}

func TestExtractTextInvalidJSON(t *testing.T) {
	_, err := ExtractText(Hypothesis{Payload: []byte(`not json`)})
	if !errors.Is(err, ErrMalformedHypothesis) {
		t.Fatalf("expected ErrMalformedHypothesis, got %v", err)
	}
}

func TestListenerRoutesByKind(t *testing.T) {
	var results, finals []string
	l := Listener{
		OnResult: func(text string) { results = append(results, text) },
		OnFinal:  func(text string) { finals = append(finals, text) },
	}
	if err := l.Handle(Event{Hypothesis: Hypothesis{Payload: []byte(`{"text":"one"}`)}}); err != nil {
		t.Fatal(err)
	}
	if err := l.Handle(Event{Hypothesis: Hypothesis{}}); err != nil {
		t.Fatal(err)
	}
	if err := l.Handle(Event{Final: true, Hypothesis: Hypothesis{Payload: []byte(`{"text":"two"}`)}}); err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || results[0] != "one" || results[1] != "" {
		t.Fatalf("unexpected results %q", results)
	}
	if len(finals) != 1 || finals[0] != "two" {
		t.Fatalf("unexpected finals %q", finals)
	}
}

func TestListenerPropagatesMalformedPayload(t *testing.T) {
	called := false
	l := Listener{OnFinal: func(string) { called = true }}
	err := l.Handle(Event{Final: true, Hypothesis: Hypothesis{Payload: []byte(`{}`)}})
	if !errors.Is(err, ErrMalformedHypothesis) {
		t.Fatalf("expected ErrMalformedHypothesis, got %v", err)
	}
	if called {
		t.Fatal("callback must not run for malformed payload")
	}
}
