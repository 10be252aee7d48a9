package chaos

import (
	"math"
	"testing"
)

func TestNewSeededInitialState(t *testing.T) {
	e1 := NewSeeded(1234, []byte("conn-a"))
	e2 := NewSeeded(1234, []byte("conn-a"))
	if e1.x != e2.x || e1.y != e2.y || e1.z != e2.z || e1.logisticX != e2.logisticX {
		t.Fatal("same seed must produce identical initial state")
	}

	e3 := NewSeeded(1234, []byte("conn-b"))
	if e1.x == e3.x && e1.y == e3.y && e1.z == e3.z {
		t.Fatal("different connection ids must produce different initial state")
	}
}

func TestMixStaysInUnitInterval(t *testing.T) {
	e := NewSeeded(99, []byte("unit-interval"))
	for i := 0; i < 5000; i++ {
		v := e.Mix()
		if v < 0 || v >= 1 {
			t.Fatalf("Mix() out of [0,1): %v at iteration %d", v, i)
		}
	}
}

func TestMixIsDeterministicGivenSameSeed(t *testing.T) {
	e1 := NewSeeded(42, []byte("determinism"))
	e2 := NewSeeded(42, []byte("determinism"))
	for i := 0; i < 100; i++ {
		a, b := e1.Mix(), e2.Mix()
		if a != b {
			t.Fatalf("divergence at iteration %d: %v != %v", i, a, b)
		}
	}
}

func TestFragmentCountWithinBounds(t *testing.T) {
	e := NewSeeded(7, []byte("fragcount"))
	for i := 0; i < 1000; i++ {
		n := e.FragmentCount(3, 7)
		if n < 3 || n > 7 {
			t.Fatalf("FragmentCount out of [3,7]: %d", n)
		}
	}
}

func TestFragmentCountDegenerateRange(t *testing.T) {
	e := NewSeeded(7, []byte("degenerate"))
	for i := 0; i < 50; i++ {
		if n := e.FragmentCount(4, 4); n != 4 {
			t.Fatalf("FragmentCount(4,4) = %d, want 4", n)
		}
	}
}

func TestJitterDelayWithinExpectedRange(t *testing.T) {
	e := NewSeeded(7, []byte("jitter"))
	for i := 0; i < 2000; i++ {
		d := e.JitterDelay(0.5, 2.5)
		if d.Seconds() < 0.0005 || d.Seconds() > 0.0030 {
			t.Fatalf("JitterDelay out of expected envelope: %v", d)
		}
	}
}

func TestShannonEntropyBoundedByLog2Buckets(t *testing.T) {
	e := NewSeeded(5, []byte("entropy"))
	for i := 0; i < 2000; i++ {
		e.Mix()
	}
	h := e.ShannonEntropy()
	if h < 0 || h > math.Log2(10)+1e-9 {
		t.Fatalf("ShannonEntropy out of bounds: %v", h)
	}
}

func TestRingBoundedAtCapacity(t *testing.T) {
	e := NewSeeded(5, []byte("ring"))
	for i := 0; i < sampleRingCap+50; i++ {
		e.Mix()
	}
	if e.ringLen != sampleRingCap {
		t.Fatalf("ring length = %d, want %d", e.ringLen, sampleRingCap)
	}
	samples := e.recentSamples()
	if len(samples) != sampleRingCap {
		t.Fatalf("recentSamples length = %d, want %d", len(samples), sampleRingCap)
	}
}
