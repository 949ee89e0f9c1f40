package stt

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedHypothesis is returned when a hypothesis payload is not JSON
// or carries no text field.
var ErrMalformedHypothesis = errors.New("malformed hypothesis")

// Event is a hypothesis tagged with its position in the session.
type Event struct {
	Final      bool
	Hypothesis Hypothesis
}

// Listener turns raw recognizer events into text callbacks. It holds no
// state of its own and is driven from a single goroutine per session.
type Listener struct {
	OnResult func(text string)
	OnFinal  func(text string)
}

// Handle extracts the text of ev and invokes the matching callback.
func (l Listener) Handle(ev Event) error {
	text, err := ExtractText(ev.Hypothesis)
	if err != nil {
		return err
	}
	cb := l.OnResult
	if ev.Final {
		cb = l.OnFinal
	}
	if cb != nil {
		cb(text)
	}
	return nil
}

type hypothesisBody struct {
	Text *string `json:"text"`
}

// ExtractText returns the text field of a hypothesis payload. An absent
// payload yields the empty string.
func ExtractText(h Hypothesis) (string, error) {
	if len(h.Payload) == 0 {
		return "", nil
	}
	var body hypothesisBody
	if err := json.Unmarshal(h.Payload, &body); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedHypothesis, err)
	}
	if body.Text == nil {
		return "", fmt.Errorf("%w: missing text field", ErrMalformedHypothesis)
	}
	return *body.Text, nil
}
