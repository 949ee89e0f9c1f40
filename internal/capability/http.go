package capability

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NodeSource is the read side of a Registry.
type NodeSource interface {
	LocalCapabilities() []Capability
	Query(filter func(NodeInfo) bool) []NodeInfo
}

type nodesView struct {
	Local []Capability `json:"local"`
	Nodes []NodeInfo   `json:"nodes"`
}

// Routes mounts GET /v1/nodes. The optional capability query parameter
// narrows the result to nodes advertising that operation.
func Routes(r chi.Router, src NodeSource) {
	r.Get("/v1/nodes", func(w http.ResponseWriter, req *http.Request) {
		var filter func(NodeInfo) bool
		if name := req.URL.Query().Get("capability"); name != "" {
			filter = WithCapabilityFilter(name)
		}
		view := nodesView{Local: src.LocalCapabilities(), Nodes: src.Query(filter)}
		if view.Nodes == nil {
			view.Nodes = []NodeInfo{}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(view)
	})
}
