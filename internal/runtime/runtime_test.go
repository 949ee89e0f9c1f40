package runtime

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestReadyRequiresEveryCheck(t *testing.T) {
	peerHealthy := true
	r := &Runtime{checks: []func() bool{
		func() bool { return true },
		func() bool { return peerHealthy },
	}}

	assertReady := func(want int) {
		t.Helper()
		rec := httptest.NewRecorder()
		r.handleReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		if rec.Code != want {
			t.Fatalf("expected %d, got %d", want, rec.Code)
		}
	}

	assertReady(http.StatusServiceUnavailable)

	r.ready.Store(true)
	assertReady(http.StatusOK)

	peerHealthy = false
	assertReady(http.StatusServiceUnavailable)
}
