package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/loqalabs/loqa-txbridge/internal/eventstore"
)

// History reads the request journal. *eventstore.Store satisfies it.
type History interface {
	RecentSessions(ctx context.Context, limit int) ([]eventstore.Session, error)
	ListSessionEvents(ctx context.Context, sessionID string, limit int) ([]eventstore.Event, error)
}

type sessionView struct {
	SessionID string    `json:"session_id"`
	Method    string    `json:"method"`
	Path      string    `json:"path,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type eventView struct {
	ID        int64           `json:"id"`
	TraceID   string          `json:"trace_id,omitempty"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// HistoryRoutes mounts read-only journal queries:
//
//	GET /v1/sessions?limit=N
//	GET /v1/sessions/{id}/events?limit=N
func HistoryRoutes(r chi.Router, h History) {
	r.Get("/v1/sessions", func(w http.ResponseWriter, req *http.Request) {
		sessions, err := h.RecentSessions(req.Context(), queryLimit(req))
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		out := make([]sessionView, 0, len(sessions))
		for _, s := range sessions {
			out = append(out, sessionView{SessionID: s.SessionID, Method: s.Method, Path: s.Path, CreatedAt: s.CreatedAt})
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Get("/v1/sessions/{id}/events", func(w http.ResponseWriter, req *http.Request) {
		events, err := h.ListSessionEvents(req.Context(), chi.URLParam(req, "id"), queryLimit(req))
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		if len(events) == 0 {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "no events for session"})
			return
		}
		out := make([]eventView, 0, len(events))
		for _, e := range events {
			view := eventView{ID: e.ID, TraceID: e.TraceID, Type: e.Type, CreatedAt: e.CreatedAt}
			if json.Valid(e.Payload) {
				view.Payload = e.Payload
			} else if len(e.Payload) > 0 {
				view.Payload, _ = json.Marshal(string(e.Payload))
			}
			out = append(out, view)
		}
		writeJSON(w, http.StatusOK, out)
	})
}

// queryLimit returns the limit query parameter, or 0 to let the store pick.
func queryLimit(req *http.Request) int {
	limit, err := strconv.Atoi(req.URL.Query().Get("limit"))
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}
