package policy

import (
	"sync"
	"testing"
	"time"
)

func TestRateLimiter_SecondAcquireWithinWindowFails(t *testing.T) {
	l := newRateLimiter(100 * time.Millisecond)
	defer l.Close()

	if !l.TryAcquire("1.2.3.4") {
		t.Fatal("First acquire should succeed")
	}
	if l.TryAcquire("1.2.3.4") {
		t.Error("Second acquire within the window should fail")
	}
	if !l.IsThrottled("1.2.3.4") {
		t.Error("Identity should report throttled within the window")
	}
}

func TestRateLimiter_ReacquireAfterWindow(t *testing.T) {
	l := newRateLimiter(50 * time.Millisecond)
	defer l.Close()

	if !l.TryAcquire("1.2.3.4") {
		t.Fatal("First acquire should succeed")
	}

	time.Sleep(80 * time.Millisecond)

	if l.IsThrottled("1.2.3.4") {
		t.Error("Identity should not be throttled after the window elapses")
	}
	if !l.TryAcquire("1.2.3.4") {
		t.Error("Acquire should succeed again after the window elapses")
	}
}

func TestRateLimiter_IdentitiesAreIndependent(t *testing.T) {
	l := newRateLimiter(time.Second)
	defer l.Close()

	if !l.TryAcquire("1.2.3.4") {
		t.Fatal("First identity should acquire")
	}
	if !l.TryAcquire("5.6.7.8") {
		t.Error("Different identity should not be throttled")
	}
	if l.IsThrottled("unknown") {
		t.Error("Never-seen identity should not be throttled")
	}
}

func TestRateLimiter_ConcurrentAcquireAdmitsOne(t *testing.T) {
	l := newRateLimiter(time.Second)
	defer l.Close()

	const goroutines = 32
	var wg sync.WaitGroup
	admitted := make(chan struct{}, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.TryAcquire("9.9.9.9") {
				admitted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(admitted)

	count := 0
	for range admitted {
		count++
	}
	if count != 1 {
		t.Errorf("Expected exactly one admitted acquire, got %d", count)
	}
}

func TestRateLimiter_DefaultCooldown(t *testing.T) {
	l := NewRateLimiter()
	defer l.Close()

	if l.cooldown != Cooldown {
		t.Errorf("Expected default cooldown %v, got %v", Cooldown, l.cooldown)
	}
}
