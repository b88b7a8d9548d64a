package scenario

import (
	"sync"
	"testing"

	"github.com/rampline/rampline/internal/config"
)

func reqs(names ...string) []*config.Request {
	out := make([]*config.Request, 0, len(names))
	for _, n := range names {
		out = append(out, &config.Request{Name: n, Method: "GET", Kind: config.KindCustom})
	}
	return out
}

func TestIteratorRoundRobin(t *testing.T) {
	it, err := NewIterator(reqs("a", "b", "c"))
	if err != nil {
		t.Fatalf("NewIterator error = %v", err)
	}

	want := []string{"a", "b", "c", "a", "b"}
	for i, name := range want {
		req, err := it.Next()
		if err != nil {
			t.Fatalf("Next error = %v", err)
		}
		if req.Name != name {
			t.Fatalf("Next[%d] = %q, want %q", i, req.Name, name)
		}
	}
}

func TestIteratorCurrentBeforeNext(t *testing.T) {
	it, err := NewIterator(reqs("a"))
	if err != nil {
		t.Fatalf("NewIterator error = %v", err)
	}
	if _, ok := it.Current(); ok {
		t.Fatal("Current before first Next must report no descriptor")
	}

	if _, err := it.Next(); err != nil {
		t.Fatalf("Next error = %v", err)
	}
	req, ok := it.Current()
	if !ok || req.Name != "a" {
		t.Fatalf("Current = %v, %v; want a, true", req, ok)
	}
}

func TestIteratorEmptySet(t *testing.T) {
	if _, err := NewIterator(nil); err != ErrNoRequests {
		t.Fatalf("error = %v, want ErrNoRequests", err)
	}
}

func TestSharedIteratorAdvancesOneRotation(t *testing.T) {
	shared, err := NewSharedIterator(reqs("a", "b"))
	if err != nil {
		t.Fatalf("NewSharedIterator error = %v", err)
	}

	const perWorker = 100
	var wg sync.WaitGroup
	counts := make([]map[string]int, 4)
	for i := range counts {
		counts[i] = make(map[string]int)
		wg.Add(1)
		go func(m map[string]int) {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				req, err := shared.Next()
				if err != nil {
					t.Errorf("Next error = %v", err)
					return
				}
				m[req.Name]++
			}
		}(counts[i])
	}
	wg.Wait()

	total := map[string]int{}
	for _, m := range counts {
		for k, v := range m {
			total[k] += v
		}
	}
	if total["a"] != 200 || total["b"] != 200 {
		t.Fatalf("shared rotation uneven: %v", total)
	}
}
