package reader

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncer_Burst(t *testing.T) {
	sched := &fakeScheduler{}
	d := NewDebouncer(sched, time.Second)

	var calls []int
	for i := range 5 {
		d.Call(func() { calls = append(calls, i) })
	}
	if sched.scheduled() != 5 {
		t.Fatalf("scheduled = %d, want 5", sched.scheduled())
	}
	if fired := sched.Fire(); fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
	if len(calls) != 1 || calls[0] != 4 {
		t.Errorf("calls = %v, want only the last one", calls)
	}
	for _, tm := range sched.timers {
		if tm.delay != time.Second {
			t.Errorf("delay = %v, want 1s", tm.delay)
		}
	}

	if fired := sched.Fire(); fired != 0 {
		t.Errorf("second Fire() = %d, want 0", fired)
	}
}

func TestDebouncer_Stop(t *testing.T) {
	sched := &fakeScheduler{}
	d := NewDebouncer(sched, time.Second)

	called := false
	d.Call(func() { called = true })
	d.Stop()
	if sched.Fire() != 0 || called {
		t.Error("stopped call must not fire")
	}
}

func TestDebouncer_SupersededWhileFiring(t *testing.T) {
	sched := &fakeScheduler{}
	d := NewDebouncer(sched, time.Second)

	var n int
	d.Call(func() { n++ })
	// emulate timer that already started firing when next call arrived:
	// Stop returns false but the stale callback must not run
	stale := sched.timers[0]
	stale.fired = true
	d.Call(func() { n += 10 })
	stale.fn()
	if n != 0 {
		t.Errorf("superseded callback ran, n = %d", n)
	}
	sched.Fire()
	if n != 10 {
		t.Errorf("n = %d, want 10", n)
	}
}

func TestDebouncer_WallClock(t *testing.T) {
	d := NewDebouncer(nil, 20*time.Millisecond)

	var n atomic.Int32
	done := make(chan struct{})
	for range 5 {
		d.Call(func() {
			n.Add(1)
			close(done)
		})
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("debounced call never fired")
	}
	time.Sleep(50 * time.Millisecond)
	if n.Load() != 1 {
		t.Errorf("fired %d times, want 1", n.Load())
	}
}
