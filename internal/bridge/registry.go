package bridge

import (
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-txbridge/internal/stt"
)

// Handle is a loaded model as published to the registry.
type Handle struct {
	Model    stt.Model
	Engine   string
	LoadedAt time.Time
}

func (h *Handle) Path() string {
	return h.Model.Path()
}

// Registry holds the process-wide model handle. Readers observe either the
// previous or the next handle, never a partially published one. Replaced
// handles are not released; sessions that borrowed them keep using them.
type Registry struct {
	current atomic.Pointer[Handle]
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Set publishes h, replacing any earlier handle. Last write wins.
func (r *Registry) Set(h *Handle) {
	r.current.Store(h)
}

func (r *Registry) Get() (*Handle, bool) {
	h := r.current.Load()
	return h, h != nil
}
