package events

import (
	"sync"
	"testing"
)

func TestHubEmitOrder(t *testing.T) {
	h := NewHub[int]()
	var got []int
	h.Subscribe(func(v int) { got = append(got, v*10) })
	h.Subscribe(func(v int) { got = append(got, v*100) })

	h.Emit(1)
	h.Emit(2)

	want := []int{10, 100, 20, 200}
	if len(got) != len(want) {
		t.Fatalf("expected %d deliveries, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delivery %d: expected %d, got %d", i, want[i], got[i])
		}
	}
}

func TestHubUnsubscribe(t *testing.T) {
	h := NewHub[string]()
	count := 0
	unsub := h.Subscribe(func(string) { count++ })

	h.Emit("a")
	unsub()
	h.Emit("b")

	if count != 1 {
		t.Errorf("expected 1 delivery after unsubscribe, got %d", count)
	}
	if h.Len() != 0 {
		t.Errorf("expected 0 subscribers, got %d", h.Len())
	}
}

func TestHubNilSubscriber(t *testing.T) {
	h := NewHub[int]()
	unsub := h.Subscribe(nil)
	unsub() // must not panic
	h.Emit(1)
	if h.Len() != 0 {
		t.Errorf("nil subscriber should not be registered")
	}
}

func TestHubConcurrentEmit(t *testing.T) {
	h := NewHub[int]()
	var mu sync.Mutex
	total := 0
	h.Subscribe(func(v int) {
		mu.Lock()
		total += v
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Emit(1)
		}()
	}
	wg.Wait()

	if total != 50 {
		t.Errorf("expected 50 deliveries, got %d", total)
	}
}
