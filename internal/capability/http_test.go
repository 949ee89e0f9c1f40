package capability

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

type staticNodes struct {
	local []Capability
	nodes []NodeInfo
}

func (s staticNodes) LocalCapabilities() []Capability { return s.local }

func (s staticNodes) Query(filter func(NodeInfo) bool) []NodeInfo {
	var out []NodeInfo
	for _, n := range s.nodes {
		if filter == nil || filter(n) {
			out = append(out, n)
		}
	}
	return out
}

func TestNodesRouteFiltersByCapability(t *testing.T) {
	src := staticNodes{
		local: BridgeCapabilities("mock", ""),
		nodes: []NodeInfo{
			{ID: "bridge-a", Capabilities: BridgeCapabilities("vosk", "/models/en"), Healthy: true},
			{ID: "tts-b", Capabilities: []Capability{{Name: "tts.speak"}}, Healthy: true},
		},
	}
	r := chi.NewRouter()
	Routes(r, src)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/nodes?capability=stt.transcribe", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	var view nodesView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(view.Nodes) != 1 || view.Nodes[0].ID != "bridge-a" {
		t.Fatalf("expected only the bridge node, got %+v", view.Nodes)
	}
	if len(view.Local) != 3 {
		t.Fatalf("expected local bridge capabilities, got %+v", view.Local)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/nodes", nil))
	view = nodesView{}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(view.Nodes) != 2 {
		t.Fatalf("expected all nodes without a filter, got %+v", view.Nodes)
	}
}
