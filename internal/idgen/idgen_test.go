package idgen

import (
	"sync"
	"testing"
	"time"
)

func TestGenerator_NewID_IsValid(t *testing.T) {
	g := New()

	id := g.NewID()
	if len(id) != 26 {
		t.Errorf("len(id) = %d, want 26", len(id))
	}
	if !Valid(id) {
		t.Errorf("Valid(%q) = false, want true", id)
	}
}

func TestGenerator_MonotonicWithinSameMillisecond(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g := New()
	g.now = func() time.Time { return fixed }

	prev := g.NewID()
	for i := 0; i < 1000; i++ {
		next := g.NewID()
		if next <= prev {
			t.Fatalf("ids not monotonic: %q <= %q", next, prev)
		}
		prev = next
	}
}

func TestGenerator_ConcurrentUse_NoDuplicates(t *testing.T) {
	g := New()

	const workers = 8
	const perWorker = 500

	var mu sync.Mutex
	seen := make(map[string]struct{}, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := g.NewID()
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != workers*perWorker {
		t.Errorf("unique ids = %d, want %d", len(seen), workers*perWorker)
	}
}

func TestValid(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"01ARZ3NDEKTSV4RRFFQ69G5FAV", true},
		{"01arz3ndektsv4rrffq69g5fav", true},
		{"", false},
		{"not-a-ulid", false},
		{"01ARZ3NDEKTSV4RRFFQ69G5FA", false},
	}

	for _, tt := range tests {
		if got := Valid(tt.id); got != tt.want {
			t.Errorf("Valid(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}
