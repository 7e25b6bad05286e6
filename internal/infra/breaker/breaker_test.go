package breaker

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var testConfig = Config{
	MaxFailures:       5,
	Cooldown:          10 * time.Second,
	HalfOpenMaxProbes: 3,
}

func openBreaker(t *testing.T, clock *fakeClock) *Breaker {
	t.Helper()
	b := New(testConfig, WithClock(clock.Now))
	for range 5 {
		if !b.CanAttempt() {
			t.Fatal("closed breaker rejected an attempt")
		}
		b.RecordFailure()
	}
	return b
}

func TestBreaker_OpensAfterMaxFailures(t *testing.T) {
	clock := newFakeClock()
	b := New(testConfig, WithClock(clock.Now))

	for i := 1; i <= 4; i++ {
		b.RecordFailure()
		if got := b.State(); got != StateClosed {
			t.Fatalf("after %d failures state = %v, want CLOSED", i, got)
		}
	}

	b.RecordFailure()
	snap := b.Snapshot()
	if snap.State != StateOpen {
		t.Errorf("state = %v, want OPEN", snap.State)
	}
	if snap.FailureCount != 5 {
		t.Errorf("failureCount = %d, want 5", snap.FailureCount)
	}
	if !snap.LastFailureAt.Equal(clock.Now()) {
		t.Errorf("lastFailureAt = %v, want %v", snap.LastFailureAt, clock.Now())
	}
}

func TestBreaker_RejectsDuringCooldown(t *testing.T) {
	clock := newFakeClock()
	b := openBreaker(t, clock)

	clock.Advance(9999 * time.Millisecond)
	if b.CanAttempt() {
		t.Fatal("expected rejection before cooldown elapsed")
	}
	if got := b.RemainingCooldown(); got != time.Millisecond {
		t.Errorf("remaining cooldown = %v, want 1ms", got)
	}
	if got := b.State(); got != StateOpen {
		t.Errorf("state = %v, want OPEN", got)
	}
}

func TestBreaker_HalfOpenEntry(t *testing.T) {
	clock := newFakeClock()
	b := openBreaker(t, clock)

	clock.Advance(10 * time.Second)
	if !b.CanAttempt() {
		t.Fatal("expected first probe to be permitted")
	}
	snap := b.Snapshot()
	if snap.State != StateHalfOpen {
		t.Errorf("state = %v, want HALF_OPEN", snap.State)
	}
	if snap.HalfOpenProbes != 1 {
		t.Errorf("halfOpenProbes = %d, want 1", snap.HalfOpenProbes)
	}
}

func TestBreaker_HalfOpenProbeBudget(t *testing.T) {
	clock := newFakeClock()
	b := openBreaker(t, clock)
	clock.Advance(10 * time.Second)

	permitted := 0
	for range 10 {
		if b.CanAttempt() {
			permitted++
		}
	}
	if permitted != 3 {
		t.Errorf("permitted probes = %d, want 3", permitted)
	}
}

func TestBreaker_ReleaseProbe(t *testing.T) {
	clock := newFakeClock()
	b := openBreaker(t, clock)
	clock.Advance(10 * time.Second)

	for range 3 {
		if !b.CanAttempt() {
			t.Fatal("probe within budget rejected")
		}
	}
	if b.CanAttempt() {
		t.Fatal("fourth probe should be rejected")
	}

	b.ReleaseProbe()
	if !b.CanAttempt() {
		t.Error("released probe should be reusable")
	}

	// no effect outside HalfOpen
	b.Reset()
	b.ReleaseProbe()
	if got := b.Snapshot().HalfOpenProbes; got != 0 {
		t.Errorf("HalfOpenProbes = %d, want 0", got)
	}
}

func TestBreaker_Recovery(t *testing.T) {
	clock := newFakeClock()
	b := openBreaker(t, clock)
	clock.Advance(10 * time.Second)
	b.CanAttempt()

	b.RecordSuccess()

	snap := b.Snapshot()
	if snap.State != StateClosed {
		t.Errorf("state = %v, want CLOSED", snap.State)
	}
	if snap.FailureCount != 0 {
		t.Errorf("failureCount = %d, want 0", snap.FailureCount)
	}
	if snap.HalfOpenProbes != 0 {
		t.Errorf("halfOpenProbes = %d, want 0 outside HALF_OPEN", snap.HalfOpenProbes)
	}
}

func TestBreaker_Relapse(t *testing.T) {
	clock := newFakeClock()
	b := openBreaker(t, clock)
	clock.Advance(10 * time.Second)
	b.CanAttempt()

	clock.Advance(2 * time.Second)
	b.RecordFailure()

	snap := b.Snapshot()
	if snap.State != StateOpen {
		t.Fatalf("state = %v, want OPEN", snap.State)
	}
	if !snap.LastFailureAt.Equal(clock.Now()) {
		t.Errorf("lastFailureAt not refreshed: %v, want %v", snap.LastFailureAt, clock.Now())
	}
	if b.CanAttempt() {
		t.Error("relapsed breaker should reject until a fresh cooldown elapses")
	}
}

func TestBreaker_GradualForgiveness(t *testing.T) {
	b := New(testConfig)
	for range 3 {
		b.RecordFailure()
	}

	b.RecordSuccess()
	b.RecordSuccess()
	if got := b.Snapshot().FailureCount; got != 1 {
		t.Fatalf("failureCount = %d, want 1", got)
	}

	for range 5 {
		b.RecordSuccess()
	}
	if got := b.Snapshot().FailureCount; got != 0 {
		t.Errorf("failureCount = %d, want 0", got)
	}
}

func TestBreaker_ResetOnSuccess(t *testing.T) {
	cfg := testConfig
	cfg.ResetOnSuccess = true
	b := New(cfg)
	for range 4 {
		b.RecordFailure()
	}
	b.RecordSuccess()
	if got := b.Snapshot().FailureCount; got != 0 {
		t.Errorf("failureCount = %d, want 0", got)
	}
}

func TestBreaker_Reset(t *testing.T) {
	clock := newFakeClock()
	b := openBreaker(t, clock)

	b.Reset()

	snap := b.Snapshot()
	if snap.State != StateClosed || snap.FailureCount != 0 {
		t.Errorf("after reset got %v/%d, want CLOSED/0", snap.State, snap.FailureCount)
	}
	if !b.CanAttempt() {
		t.Error("reset breaker should permit attempts")
	}
}

func TestBreaker_TransitionHook(t *testing.T) {
	clock := newFakeClock()
	var got []string
	b := New(testConfig, WithClock(clock.Now), WithTransitionHook(func(from, to State) {
		got = append(got, from.String()+"->"+to.String())
	}))

	for range 5 {
		b.RecordFailure()
	}
	clock.Advance(10 * time.Second)
	b.CanAttempt()
	b.RecordSuccess()

	want := []string{"CLOSED->OPEN", "OPEN->HALF_OPEN", "HALF_OPEN->CLOSED"}
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestBreaker_ConcurrentFailures(t *testing.T) {
	clock := newFakeClock()
	opened := 0
	var mu sync.Mutex
	b := New(testConfig, WithClock(clock.Now), WithTransitionHook(func(from, to State) {
		if to == StateOpen {
			mu.Lock()
			opened++
			mu.Unlock()
		}
	}))

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.RecordFailure()
		}()
	}
	wg.Wait()

	if opened != 1 {
		t.Errorf("breaker opened %d times, want 1", opened)
	}
	if got := b.Snapshot().FailureCount; got != 5 {
		t.Errorf("failureCount = %d, want 5", got)
	}
}

func TestBreaker_ConcurrentProbes(t *testing.T) {
	clock := newFakeClock()
	b := openBreaker(t, clock)
	clock.Advance(10 * time.Second)

	var wg sync.WaitGroup
	var mu sync.Mutex
	permitted := 0
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.CanAttempt() {
				mu.Lock()
				permitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if permitted != 3 {
		t.Errorf("permitted probes = %d, want 3", permitted)
	}
}
