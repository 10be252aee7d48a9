package admission

import (
	"sync"
	"testing"
	"time"
)

func TestAcquireReleaseWithinCapacity(t *testing.T) {
	c := New(2, 0, 0)
	if !c.Acquire(time.Second) {
		t.Fatal("first acquire within capacity should succeed")
	}
	if !c.Acquire(time.Second) {
		t.Fatal("second acquire within capacity should succeed")
	}
	if c.InUse() != 2 {
		t.Fatalf("InUse() = %d, want 2", c.InUse())
	}
	c.Release()
	if c.InUse() != 1 {
		t.Fatalf("InUse() after release = %d, want 1", c.InUse())
	}
}

func TestAcquireTimesOutAtCapacity(t *testing.T) {
	c := New(1, 0, 0)
	if !c.Acquire(time.Second) {
		t.Fatal("first acquire should succeed")
	}
	start := time.Now()
	if c.Acquire(50 * time.Millisecond) {
		t.Fatal("acquire beyond capacity should fail")
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("acquire returned too early: %v", elapsed)
	}
}

func TestThirdConnectionRejectedAtCapacityTwo(t *testing.T) {
	// Mirrors spec.md §8 scenario 4: max_connections=2, three concurrent
	// admission attempts, the third must fail without holding a slot.
	c := New(2, 0, 0)
	var wg sync.WaitGroup
	results := make([]bool, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx] = c.Acquire(200 * time.Millisecond)
		}(i)
	}
	wg.Wait()

	successCount := 0
	for _, ok := range results {
		if ok {
			successCount++
		}
	}
	if successCount != 2 {
		t.Fatalf("expected exactly 2 successful admissions, got %d", successCount)
	}
}

func TestCapacityReportsConfiguredMax(t *testing.T) {
	c := New(5, 0, 0)
	if c.Capacity() != 5 {
		t.Fatalf("Capacity() = %d, want 5", c.Capacity())
	}
}

func TestAllowIPDisabledByDefault(t *testing.T) {
	c := New(10, 0, 0)
	for i := 0; i < 100; i++ {
		if !c.AllowIP("203.0.113.5") {
			t.Fatal("AllowIP must always return true when the throttle is disabled")
		}
	}
}

func TestAllowIPThrottlesBurstExcess(t *testing.T) {
	c := New(10, 1, 2) // 1 token/sec refill, burst of 2
	allowed := 0
	for i := 0; i < 5; i++ {
		if c.AllowIP("203.0.113.5") {
			allowed++
		}
	}
	if allowed > 2 {
		t.Fatalf("expected at most burst(2) immediate allowances, got %d", allowed)
	}
	if allowed == 0 {
		t.Fatal("expected at least one allowance within burst")
	}
}

func TestAllowIPTracksPerSourceIndependently(t *testing.T) {
	c := New(10, 1, 1)
	if !c.AllowIP("203.0.113.1") {
		t.Fatal("first request from IP A should be allowed")
	}
	if !c.AllowIP("203.0.113.2") {
		t.Fatal("IP B's throttle must be independent of IP A's")
	}
}

func TestReleaseWithoutAcquireDoesNotPanic(t *testing.T) {
	c := New(1, 0, 0)
	c.Release() // must be a safe no-op, not a negative-capacity panic
}
