package protocol

import (
	"encoding/json"
	"time"
)

// Request is a named bridge operation with its argument bag.
type Request struct {
	RequestID string         `json:"request_id,omitempty"`
	Method    string         `json:"method"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Status tags the outcome carried by a Response.
type Status string

const (
	StatusOK             Status = "ok"
	StatusError          Status = "error"
	StatusNotImplemented Status = "not_implemented"
)

// Error is the (code, message) pair returned across the bridge boundary.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// Response answers exactly one Request.
type Response struct {
	RequestID string          `json:"request_id,omitempty"`
	Status    Status          `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *Error          `json:"error,omitempty"`
}

// ModelStatus is the result payload of the status operation.
type ModelStatus struct {
	ModelLoaded bool       `json:"model_loaded"`
	ModelPath   string     `json:"model_path,omitempty"`
	Engine      string     `json:"engine"`
	LoadedAt    *time.Time `json:"loaded_at,omitempty"`
}

const (
	MethodInitModel  = "initModel"
	MethodTranscribe = "transcribe"
	MethodStatus     = "status"

	ArgPath       = "path"
	ArgSampleRate = "sample_rate"
)

const (
	CodeNullPath           = "null_path"
	CodeInitFailed         = "init_failed"
	CodeModelUninitialized = "model_uninitialized"
	CodeTranscribeFailed   = "transcribe_failed"
	CodeBadRequest         = "bad_request"
	CodeInternal           = "internal"
)

const (
	DefaultChannel          = "voiceoutliner.tx"
	SubjectNodeAnnounce     = "ctrl.node.announce"
	SubjectNodeHeartbeatFmt = "ctrl.node.heartbeat.%s"
)

// NullResult is the explicit "no speech" transcript payload.
var NullResult = json.RawMessage("null")

func OK(requestID string, result json.RawMessage) Response {
	return Response{RequestID: requestID, Status: StatusOK, Result: result}
}

func Failure(requestID, code, message string) Response {
	return Response{RequestID: requestID, Status: StatusError, Error: &Error{Code: code, Message: message}}
}

func NotImplemented(requestID string) Response {
	return Response{RequestID: requestID, Status: StatusNotImplemented}
}

// Transcript decodes a transcribe result. speech is false when the bridge
// reported that no speech was detected.
func (r Response) Transcript() (text string, speech bool, err error) {
	if len(r.Result) == 0 || string(r.Result) == "null" {
		return "", false, nil
	}
	if err := json.Unmarshal(r.Result, &text); err != nil {
		return "", false, err
	}
	return text, true, nil
}
