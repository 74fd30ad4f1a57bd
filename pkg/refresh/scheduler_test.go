package refresh

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func newTestScheduler(t *testing.T, cfg Config, inFlight func(string) bool) (*Scheduler, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := log.New(&syncWriter{w: &buf})
	logger.SetLevel(log.DebugLevel)
	s := New(cfg, inFlight, logger)
	s.jitter = func() time.Duration { return 0 }
	t.Cleanup(s.Close)
	return s, &buf
}

// syncWriter serializes writes from background refresh goroutines.
type syncWriter struct {
	mu sync.Mutex
	w  *bytes.Buffer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func counting(n *atomic.Int32) Refresher {
	return func(context.Context) error {
		n.Add(1)
		return nil
	}
}

func TestMaybeTriggerAtMostOncePerInterval(t *testing.T) {
	s, _ := newTestScheduler(t, Config{MinInterval: time.Hour, Threshold: 0.25, Concurrency: 4}, nil)
	var calls atomic.Int32
	expired := time.Now().Add(-time.Minute)

	triggered := 0
	for range 100 {
		if s.MaybeTrigger("trending", expired, time.Hour, counting(&calls)) {
			triggered++
		}
	}
	s.Wait()

	if triggered != 1 {
		t.Errorf("triggered = %d, want 1", triggered)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
}

func TestMaybeTriggerIntervalElapsed(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New(Config{MinInterval: 30 * time.Second, Concurrency: 1}, nil, nil, WithClock(func() time.Time { return now }))
	defer s.Close()
	var calls atomic.Int32

	if !s.MaybeTrigger("k", time.Time{}, 0, counting(&calls)) {
		t.Fatal("first trigger should fire")
	}
	s.Wait()

	now = now.Add(29 * time.Second)
	if s.MaybeTrigger("k", time.Time{}, 0, counting(&calls)) {
		t.Error("trigger inside the interval should be skipped")
	}

	now = now.Add(time.Second)
	if !s.MaybeTrigger("k", time.Time{}, 0, counting(&calls)) {
		t.Error("trigger after the interval should fire")
	}
	s.Wait()

	if got := calls.Load(); got != 2 {
		t.Errorf("refresh calls = %d, want 2", got)
	}
}

func TestMaybeTriggerThreshold(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		remaining time.Duration
		want      bool
	}{
		{"plenty left", 50 * time.Minute, false},
		{"exactly at threshold", 15 * time.Minute, false},
		{"below threshold", 10 * time.Minute, true},
		{"expired", -time.Minute, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestScheduler(t, Config{Threshold: 0.25, Concurrency: 1}, nil)
			s.now = func() time.Time { return now }
			var calls atomic.Int32

			got := s.MaybeTrigger("k", now.Add(tt.remaining), time.Hour, counting(&calls))
			s.Wait()
			if got != tt.want {
				t.Errorf("MaybeTrigger() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMaybeTriggerNotDueDoesNotConsumeInterval(t *testing.T) {
	s, _ := newTestScheduler(t, Config{MinInterval: time.Hour, Threshold: 0.25, Concurrency: 1}, nil)
	var calls atomic.Int32

	s.MaybeTrigger("k", time.Now().Add(time.Hour), time.Hour, counting(&calls))
	if !s.MaybeTrigger("k", time.Now().Add(-time.Second), time.Hour, counting(&calls)) {
		t.Error("a fresh read must not block the refresh of a later stale read")
	}
	s.Wait()
}

func TestMaybeTriggerSkipsInFlight(t *testing.T) {
	s, _ := newTestScheduler(t, Config{Concurrency: 1}, func(key string) bool { return key == "busy" })
	var calls atomic.Int32

	if s.MaybeTrigger("busy", time.Time{}, 0, counting(&calls)) {
		t.Error("key with an in-flight fetch should not be refreshed")
	}
	if !s.MaybeTrigger("idle", time.Time{}, 0, counting(&calls)) {
		t.Error("idle key should be refreshed")
	}
	s.Wait()
	if got := calls.Load(); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
}

func TestMaybeTriggerPoolFullRollsBack(t *testing.T) {
	s, _ := newTestScheduler(t, Config{MinInterval: time.Hour, Concurrency: 1}, nil)
	release := make(chan struct{})
	blocking := func(context.Context) error {
		<-release
		return nil
	}
	var calls atomic.Int32

	if !s.MaybeTrigger("a", time.Time{}, 0, blocking) {
		t.Fatal("first trigger should fire")
	}
	if s.MaybeTrigger("b", time.Time{}, 0, counting(&calls)) {
		t.Error("trigger with a full pool should be skipped")
	}
	close(release)
	s.Wait()

	if !s.MaybeTrigger("b", time.Time{}, 0, counting(&calls)) {
		t.Error("skipped trigger should not have consumed the interval")
	}
	s.Wait()
	if got := calls.Load(); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
}

func TestRefreshFailureIsLoggedAndSwallowed(t *testing.T) {
	s, buf := newTestScheduler(t, Config{Concurrency: 1}, nil)

	ok := s.MaybeTrigger("k", time.Time{}, 0, func(context.Context) error {
		return errors.New("upstream down")
	})
	s.Wait()

	if !ok {
		t.Fatal("trigger should fire")
	}
	out := buf.String()
	if !strings.Contains(out, "background refresh failed") || !strings.Contains(out, "upstream down") {
		t.Errorf("failure not logged:\n%s", out)
	}
	if !strings.Contains(out, "task=") {
		t.Errorf("log should carry a task id:\n%s", out)
	}
}

func TestRefreshPanicIsRecovered(t *testing.T) {
	s, buf := newTestScheduler(t, Config{Concurrency: 1}, nil)

	s.MaybeTrigger("k", time.Time{}, 0, func(context.Context) error { panic("boom") })
	s.Wait()

	if !strings.Contains(buf.String(), "background refresh panicked") {
		t.Errorf("panic not logged:\n%s", buf.String())
	}
}

func TestCloseCancelsJitter(t *testing.T) {
	s, _ := newTestScheduler(t, Config{MaxJitter: time.Hour, Concurrency: 1}, nil)
	s.jitter = func() time.Duration { return time.Hour }
	var calls atomic.Int32

	s.MaybeTrigger("k", time.Time{}, 0, counting(&calls))

	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close() did not cancel the jitter delay")
	}
	if got := calls.Load(); got != 0 {
		t.Errorf("refresh ran %d times after Close", got)
	}
	if s.MaybeTrigger("other", time.Time{}, 0, counting(&calls)) {
		t.Error("MaybeTrigger after Close should be skipped")
	}
}

func TestRandomJitterBounds(t *testing.T) {
	s := New(Config{MaxJitter: 50 * time.Millisecond}, nil, nil)
	defer s.Close()
	for range 100 {
		if d := s.randomJitter(); d < 0 || d >= 50*time.Millisecond {
			t.Fatalf("jitter %v out of [0, 50ms)", d)
		}
	}

	s0 := New(Config{}, nil, nil)
	defer s0.Close()
	if d := s0.randomJitter(); d != 0 {
		t.Errorf("jitter with MaxJitter=0 = %v, want 0", d)
	}
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	if c.MinInterval != 30*time.Second || c.Threshold != 0.25 || c.MaxJitter != 3*time.Second || c.Concurrency != 8 {
		t.Errorf("DefaultConfig() = %+v", c)
	}
}
