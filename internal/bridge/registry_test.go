package bridge

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestRegistryEmpty(t *testing.T) {
	if _, ok := NewRegistry().Get(); ok {
		t.Fatal("new registry should hold no handle")
	}
}

func TestRegistryConcurrentPublish(t *testing.T) {
	reg := NewRegistry()
	engine := &fakeEngine{}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				model, _ := engine.LoadModel(context.Background(), fmt.Sprintf("/models/%d", i))
				reg.Set(&Handle{Model: model, Engine: "fake", LoadedAt: time.Now()})
			}
		}(i)
	}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if h, ok := reg.Get(); ok && (h.Model == nil || h.Engine != "fake") {
					t.Errorf("observed a partially published handle: %+v", h)
					return
				}
			}
		}()
	}
	wg.Wait()

	if _, ok := reg.Get(); !ok {
		t.Fatal("expected a handle after concurrent publishes")
	}
}
