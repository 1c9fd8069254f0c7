package circuitbreaker

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

// fakeClock lets tests move time without sleeping
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(cfg Config) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := New(cfg)
	cb.now = clock.Now
	return cb, clock
}

func TestNew(t *testing.T) {
	cb := New(Config{
		Name:      "lrclib",
		Threshold: 3,
		Cooldown:  10 * time.Second,
	})

	if cb.Name() != "lrclib" {
		t.Errorf("Expected name 'lrclib', got %q", cb.Name())
	}
	if cb.threshold != 3 {
		t.Errorf("Expected threshold 3, got %d", cb.threshold)
	}
	if cb.cooldown != 10*time.Second {
		t.Errorf("Expected cooldown 10s, got %v", cb.cooldown)
	}
	if cb.State() != StateClosed {
		t.Errorf("Expected initial state CLOSED, got %s", cb.State())
	}
}

func TestNew_Defaults(t *testing.T) {
	cb := New(Config{})

	if cb.threshold != 5 {
		t.Errorf("Expected default threshold 5, got %d", cb.threshold)
	}
	if cb.cooldown != 2*time.Minute {
		t.Errorf("Expected default cooldown 2m, got %v", cb.cooldown)
	}
	if cb.halfOpenTimeout != 30*time.Second {
		t.Errorf("Expected default halfOpenTimeout 30s, got %v", cb.halfOpenTimeout)
	}
	if cb.Name() != "default" {
		t.Errorf("Expected default name 'default', got %q", cb.Name())
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(Config{Threshold: 3, Cooldown: time.Minute})

	for i := 1; i < 3; i++ {
		cb.RecordFailure()
		if cb.State() != StateClosed {
			t.Fatalf("Expected CLOSED after %d failures", i)
		}
		if !cb.Allow() {
			t.Fatalf("Expected Allow() while CLOSED")
		}
	}

	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Errorf("Expected OPEN after 3 failures, got %s", cb.State())
	}
	if cb.Allow() {
		t.Error("Expected Allow() to return false in OPEN state")
	}
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb, _ := newTestBreaker(Config{Threshold: 3, Cooldown: time.Minute})

	cb.RecordFailure()
	cb.RecordFailure()
	if cb.Failures() != 2 {
		t.Errorf("Expected 2 failures, got %d", cb.Failures())
	}

	cb.RecordSuccess()
	if cb.Failures() != 0 {
		t.Errorf("Expected 0 failures after success, got %d", cb.Failures())
	}

	// Non-consecutive failures never trip the breaker
	cb.RecordFailure()
	cb.RecordFailure()
	if cb.State() != StateClosed {
		t.Errorf("Expected CLOSED, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	tests := []struct {
		name     string
		report   func(cb *CircuitBreaker)
		expected State
	}{
		{"Probe success closes", (*CircuitBreaker).RecordSuccess, StateClosed},
		{"Probe failure reopens", (*CircuitBreaker).RecordFailure, StateOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb, clock := newTestBreaker(Config{Threshold: 2, Cooldown: time.Minute})
			cb.RecordFailure()
			cb.RecordFailure()

			clock.Advance(59 * time.Second)
			if cb.Allow() {
				t.Fatal("Expected Allow() to return false before cooldown")
			}

			clock.Advance(time.Second)
			if !cb.Allow() {
				t.Fatal("Expected the probe to be allowed after cooldown")
			}
			if cb.State() != StateHalfOpen {
				t.Fatalf("Expected HALF-OPEN, got %s", cb.State())
			}
			if cb.Allow() {
				t.Error("Expected a second request to be blocked while probing")
			}

			tt.report(cb)
			if cb.State() != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, cb.State())
			}
		})
	}
}

func TestCircuitBreaker_HalfOpenTimeout(t *testing.T) {
	cb, clock := newTestBreaker(Config{Threshold: 1, Cooldown: time.Minute, HalfOpenTimeout: 10 * time.Second})

	cb.RecordFailure()
	clock.Advance(time.Minute)
	cb.Allow()

	if got := cb.TimeUntilRetry(); got != 10*time.Second {
		t.Errorf("Expected 10s until probe timeout, got %v", got)
	}

	clock.Advance(10 * time.Second)
	if cb.Allow() {
		t.Error("Expected Allow() to return false when the probe timed out")
	}
	if cb.State() != StateOpen {
		t.Errorf("Expected OPEN after probe timeout, got %s", cb.State())
	}
	if got := cb.TimeUntilRetry(); got != time.Minute {
		t.Errorf("Expected a fresh cooldown, got %v", got)
	}
}

func TestCircuitBreaker_TimeUntilRetry(t *testing.T) {
	cb, clock := newTestBreaker(Config{Threshold: 1, Cooldown: time.Minute})

	if cb.TimeUntilRetry() != 0 {
		t.Error("Expected 0 when CLOSED")
	}

	cb.RecordFailure()
	clock.Advance(20 * time.Second)
	if got := cb.TimeUntilRetry(); got != 40*time.Second {
		t.Errorf("Expected 40s, got %v", got)
	}

	clock.Advance(time.Hour)
	if cb.TimeUntilRetry() != 0 {
		t.Error("Expected 0 once the cooldown has passed")
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb, _ := newTestBreaker(Config{Threshold: 1, Cooldown: time.Hour})
	cb.RecordFailure()

	if !cb.IsOpen() {
		t.Fatal("Expected OPEN")
	}

	cb.Reset()
	if cb.State() != StateClosed || cb.Failures() != 0 {
		t.Errorf("Expected CLOSED with no failures, got %s/%d", cb.State(), cb.Failures())
	}
	if !cb.Allow() {
		t.Error("Expected Allow() after reset")
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	var got []string
	cb, clock := newTestBreaker(Config{
		Name:      "netease",
		Threshold: 1,
		Cooldown:  time.Second,
		OnStateChange: func(name string, from, to State) {
			got = append(got, name+":"+from.String()+"->"+to.String())
		},
	})

	cb.RecordFailure()
	clock.Advance(time.Second)
	cb.Allow()
	cb.RecordSuccess()
	cb.Reset() // already closed, no transition

	expected := []string{
		"netease:CLOSED->OPEN",
		"netease:OPEN->HALF-OPEN",
		"netease:HALF-OPEN->CLOSED",
	}
	if len(got) != len(expected) {
		t.Fatalf("Expected %d transitions, got %v", len(expected), got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("Transition %d: expected %q, got %q", i, expected[i], got[i])
		}
	}
}

func TestCircuitBreaker_Status(t *testing.T) {
	cb, _ := newTestBreaker(Config{Name: "lrclib", Threshold: 2, Cooldown: 30 * time.Second})
	cb.RecordFailure()
	cb.RecordFailure()

	status := cb.Status()
	if status.Name != "lrclib" || status.State != StateOpen || status.Failures != 2 || status.Threshold != 2 {
		t.Errorf("Unexpected status: %+v", status)
	}
	if status.RetryInSeconds != 30 {
		t.Errorf("Expected 30s until retry, got %v", status.RetryInSeconds)
	}

	data, err := json.Marshal(status)
	if err != nil {
		t.Fatalf("Failed to marshal status: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal status: %v", err)
	}
	if decoded["state"] != "OPEN" {
		t.Errorf("Expected state rendered as 'OPEN', got %v", decoded["state"])
	}
}

func TestCircuitBreaker_StateString(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateClosed, "CLOSED"},
		{StateOpen, "OPEN"},
		{StateHalfOpen, "HALF-OPEN"},
		{State(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if tt.state.String() != tt.expected {
			t.Errorf("Expected %q, got %q", tt.expected, tt.state.String())
		}
	}
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	cb := New(Config{Threshold: 100, Cooldown: time.Minute})
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			cb.Allow()
		}()
		go func() {
			defer wg.Done()
			cb.RecordFailure()
		}()
		go func() {
			defer wg.Done()
			cb.Status()
		}()
	}
	wg.Wait()

	if cb.Failures() != 50 {
		t.Errorf("Expected 50 failures, got %d", cb.Failures())
	}
}
