package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/loqalabs/loqa-txbridge/internal/protocol"
)

const maxArgumentsBytes = 1 << 20

// Routes mounts the bridge channel on r as POST /v1/channel/{method}. The
// body is the JSON argument object; the reply is the response envelope.
func Routes(r chi.Router, d *Dispatcher, timeout time.Duration) {
	r.Post("/v1/channel/{method}", func(w http.ResponseWriter, req *http.Request) {
		method := chi.URLParam(req, "method")
		args, err := decodeArguments(req)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, protocol.Failure("", protocol.CodeBadRequest, err.Error()))
			return
		}

		ctx := req.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		resp := d.Handle(ctx, protocol.Request{
			RequestID: req.Header.Get("X-Request-Id"),
			Method:    method,
			Arguments: args,
		})
		writeJSON(w, httpStatus(resp), resp)
	})
}

func decodeArguments(req *http.Request) (map[string]any, error) {
	body, err := io.ReadAll(io.LimitReader(req.Body, maxArgumentsBytes))
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, nil
	}
	var args map[string]any
	if err := json.Unmarshal(body, &args); err != nil {
		return nil, errors.New("arguments must be a JSON object")
	}
	return args, nil
}

func httpStatus(resp protocol.Response) int {
	switch resp.Status {
	case protocol.StatusOK:
		return http.StatusOK
	case protocol.StatusNotImplemented:
		return http.StatusNotImplemented
	}
	if resp.Error == nil {
		return http.StatusInternalServerError
	}
	switch resp.Error.Code {
	case protocol.CodeNullPath, protocol.CodeBadRequest:
		return http.StatusBadRequest
	case protocol.CodeModelUninitialized:
		return http.StatusConflict
	case protocol.CodeInitFailed, protocol.CodeTranscribeFailed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
