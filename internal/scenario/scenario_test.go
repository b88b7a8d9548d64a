package scenario

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rampline/rampline/internal/config"
	"github.com/rampline/rampline/internal/stats"
	"github.com/rampline/rampline/internal/worker"
)

func customRequest(name string, invoke config.InvokeFunc) *config.Request {
	return &config.Request{
		Name:            name,
		Method:          "POST",
		Kind:            config.KindCustom,
		ExpectedLatency: time.Second,
		Invoke:          invoke,
	}
}

func newTestScenario(t *testing.T, desc *config.Scenario) *Scenario {
	t.Helper()
	sc, err := New(desc, Options{Collector: stats.NewCollector(nil, 64)})
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	return sc
}

func startScenario(sc *Scenario) chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sc.Run(context.Background())
	}()
	return done
}

func waitForCount(t *testing.T, sc *Scenario, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if sc.WorkerCount() >= want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("worker count never reached %d, currently %d", want, sc.WorkerCount())
}

func stopAndJoin(t *testing.T, sc *Scenario, done chan struct{}) {
	t.Helper()
	sc.Stop()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scenario did not unwind after stop")
	}
}

func TestAdditiveRampGrowsAndClampsAtMax(t *testing.T) {
	idle := func(ctx context.Context) error {
		time.Sleep(time.Millisecond)
		return nil
	}
	desc := &config.Scenario{
		Name:           "additive",
		MinConcurrency: 2,
		MaxConcurrency: 10,
		RampUp:         []int{2, 3, 4},
		RampUpWait:     []time.Duration{20 * time.Millisecond},
		Requests:       []*config.Request{customRequest("a", idle)},
	}
	sc := newTestScenario(t, desc)
	done := startScenario(sc)

	waitForCount(t, sc, 2)
	waitForCount(t, sc, 4)
	waitForCount(t, sc, 7)
	waitForCount(t, sc, 10)

	// The final ramp value is sustained; the population must hold at the
	// ceiling.
	for i := 0; i < 20; i++ {
		if got := sc.WorkerCount(); got > 10 {
			t.Fatalf("worker count %d exceeds max_concurrency 10", got)
		}
		time.Sleep(5 * time.Millisecond)
	}
	stopAndJoin(t, sc, done)
}

func TestMultiplicativeRampDoublesPopulation(t *testing.T) {
	idle := func(ctx context.Context) error {
		time.Sleep(time.Millisecond)
		return nil
	}
	desc := &config.Scenario{
		Name:           "multiply",
		MinConcurrency: 1,
		MaxConcurrency: 100,
		RampUp:         []int{2},
		RampUpWait:     []time.Duration{20 * time.Millisecond},
		Multiply:       true,
		Requests:       []*config.Request{customRequest("a", idle)},
	}
	sc := newTestScenario(t, desc)
	done := startScenario(sc)

	waitForCount(t, sc, 1)
	waitForCount(t, sc, 2)
	waitForCount(t, sc, 4)
	waitForCount(t, sc, 8)

	stopAndJoin(t, sc, done)
}

func TestMultiplicativeRampNeverExceedsMax(t *testing.T) {
	idle := func(ctx context.Context) error {
		time.Sleep(time.Millisecond)
		return nil
	}
	desc := &config.Scenario{
		Name:           "capped",
		MinConcurrency: 1,
		MaxConcurrency: 4,
		RampUp:         []int{3},
		RampUpWait:     []time.Duration{10 * time.Millisecond},
		Multiply:       true,
		Requests:       []*config.Request{customRequest("a", idle)},
	}
	sc := newTestScenario(t, desc)
	done := startScenario(sc)

	waitForCount(t, sc, 4)
	for i := 0; i < 20; i++ {
		if got := sc.WorkerCount(); got > 4 {
			t.Fatalf("worker count %d exceeds max_concurrency 4", got)
		}
		time.Sleep(5 * time.Millisecond)
	}
	stopAndJoin(t, sc, done)
}

func TestStopJoinsEveryWorker(t *testing.T) {
	var calls atomic.Int64
	desc := &config.Scenario{
		Name:           "stoppable",
		MinConcurrency: 3,
		MaxConcurrency: 10,
		RampUp:         []int{1},
		RampUpWait:     []time.Duration{10 * time.Millisecond},
		Requests: []*config.Request{customRequest("a", func(ctx context.Context) error {
			calls.Add(1)
			time.Sleep(time.Millisecond)
			return nil
		})},
	}
	sc := newTestScenario(t, desc)
	done := startScenario(sc)

	waitForCount(t, sc, 3)
	deadline := time.After(2 * time.Second)
	for calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatal("workers never dispatched")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	stopAndJoin(t, sc, done)

	for _, task := range sc.currentTasks() {
		if task.State() != worker.StateStopped {
			t.Fatalf("task state = %s after stop, want stopped", task.State())
		}
	}
}

func TestRunOnceBatchesStayWithinMax(t *testing.T) {
	var inflight, peak atomic.Int64
	invoke := func(ctx context.Context) error {
		cur := inflight.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inflight.Add(-1)
		return nil
	}
	desc := &config.Scenario{
		Name:           "batched",
		MinConcurrency: 2,
		MaxConcurrency: 5,
		RampUp:         []int{1},
		RampUpWait:     []time.Duration{5 * time.Millisecond},
		RunOnce:        true,
		Requests:       []*config.Request{customRequest("a", invoke)},
	}
	sc := newTestScenario(t, desc)
	done := startScenario(sc)

	time.Sleep(300 * time.Millisecond)
	stopAndJoin(t, sc, done)

	if peak.Load() == 0 {
		t.Fatal("no batch ever dispatched")
	}
	if peak.Load() > 5 {
		t.Fatalf("peak concurrency %d exceeds max_concurrency 5", peak.Load())
	}
}

func TestRunOnceStopsSpawningAtMaxConcurrency(t *testing.T) {
	var calls atomic.Int64
	desc := &config.Scenario{
		Name:           "saturated",
		MinConcurrency: 2,
		MaxConcurrency: 2,
		RampUp:         []int{1},
		RampUpWait:     []time.Duration{5 * time.Millisecond},
		RunOnce:        true,
		Requests: []*config.Request{customRequest("a", func(ctx context.Context) error {
			calls.Add(1)
			return nil
		})},
	}
	sc := newTestScenario(t, desc)
	done := startScenario(sc)

	// The initial batch already fills max_concurrency; every later ramp
	// step must spawn nothing.
	time.Sleep(300 * time.Millisecond)
	stopAndJoin(t, sc, done)

	if got := calls.Load(); got != 2 {
		t.Fatalf("total dispatches = %d, want 2 (no batches past the ceiling)", got)
	}
}

func TestRunOnceMultiplicativeStopsAtCeiling(t *testing.T) {
	var calls atomic.Int64
	desc := &config.Scenario{
		Name:           "doubling",
		MinConcurrency: 1,
		MaxConcurrency: 4,
		RampUp:         []int{2},
		RampUpWait:     []time.Duration{5 * time.Millisecond},
		RunOnce:        true,
		Multiply:       true,
		Requests: []*config.Request{customRequest("a", func(ctx context.Context) error {
			calls.Add(1)
			return nil
		})},
	}
	sc := newTestScenario(t, desc)
	done := startScenario(sc)

	// Batches of 1, 2, then 4 run to completion; 4 is the ceiling, so the
	// generation sequence ends there.
	time.Sleep(300 * time.Millisecond)
	stopAndJoin(t, sc, done)

	if got := calls.Load(); got != 7 {
		t.Fatalf("total dispatches = %d, want 1+2+4 = 7", got)
	}
}

func TestPrivateIteratorPinsWorkerToFirstRequest(t *testing.T) {
	var aCalls, bCalls atomic.Int64
	desc := &config.Scenario{
		Name:           "pinned",
		MinConcurrency: 1,
		MaxConcurrency: 1,
		RampUp:         []int{0},
		RampUpWait:     []time.Duration{5 * time.Millisecond},
		Requests: []*config.Request{
			customRequest("a", func(ctx context.Context) error { aCalls.Add(1); return nil }),
			customRequest("b", func(ctx context.Context) error { bCalls.Add(1); return nil }),
		},
	}
	sc := newTestScenario(t, desc)
	done := startScenario(sc)

	deadline := time.After(2 * time.Second)
	for aCalls.Load() < 10 {
		select {
		case <-deadline:
			t.Fatal("pinned worker never dispatched")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	stopAndJoin(t, sc, done)

	if bCalls.Load() != 0 {
		t.Fatalf("worker pinned to request a also dispatched b %d times", bCalls.Load())
	}
}

func TestSharedIteratorBalancesDispatchAcrossWorkers(t *testing.T) {
	var mu sync.Mutex
	counts := map[string]int64{}
	record := func(name string) config.InvokeFunc {
		return func(ctx context.Context) error {
			mu.Lock()
			counts[name]++
			mu.Unlock()
			time.Sleep(time.Millisecond)
			return nil
		}
	}
	desc := &config.Scenario{
		Name:                   "shared",
		MinConcurrency:         2,
		MaxConcurrency:         2,
		RampUp:                 []int{0},
		RampUpWait:             []time.Duration{5 * time.Millisecond},
		IterateThroughRequests: true,
		Requests: []*config.Request{
			customRequest("a", record("a")),
			customRequest("b", record("b")),
		},
	}
	sc := newTestScenario(t, desc)
	done := startScenario(sc)

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		total := counts["a"] + counts["b"]
		mu.Unlock()
		if total >= 40 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("shared scenario never reached 40 dispatches")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	stopAndJoin(t, sc, done)

	mu.Lock()
	defer mu.Unlock()
	diff := counts["a"] - counts["b"]
	if diff < 0 {
		diff = -diff
	}
	// One shared rotation: the counts can only diverge by the number of
	// in-flight workers.
	if diff > 2 {
		t.Fatalf("shared rotation unbalanced: a=%d b=%d", counts["a"], counts["b"])
	}
}

func TestRatePerSecondPacesDispatch(t *testing.T) {
	var calls atomic.Int64
	desc := &config.Scenario{
		Name:           "paced",
		MinConcurrency: 2,
		MaxConcurrency: 2,
		RampUp:         []int{0},
		RampUpWait:     []time.Duration{5 * time.Millisecond},
		RatePerSecond:  20,
		Requests: []*config.Request{customRequest("a", func(ctx context.Context) error {
			calls.Add(1)
			return nil
		})},
	}
	sc := newTestScenario(t, desc)
	start := time.Now()
	done := startScenario(sc)

	time.Sleep(300 * time.Millisecond)
	stopAndJoin(t, sc, done)
	elapsed := time.Since(start)

	got := calls.Load()
	if got == 0 {
		t.Fatal("paced scenario never dispatched")
	}
	// The limiter allows an initial burst of rate_per_second tokens, then
	// one dispatch per 50ms shared across both workers. Two unpaced no-op
	// workers would run tens of thousands of iterations in this window.
	ceiling := 20 + int64(elapsed/(50*time.Millisecond)) + 4
	if got > ceiling {
		t.Fatalf("dispatched %d units in %s at 20/s, want at most %d", got, elapsed, ceiling)
	}
}

func TestScenarioRejectsInvalidDescriptor(t *testing.T) {
	desc := &config.Scenario{Name: "broken", MaxConcurrency: 0}
	if _, err := New(desc, Options{}); err == nil {
		t.Fatal("expected validation error")
	}
}
