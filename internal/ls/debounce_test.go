package ls

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebounceCollapsesBurst(t *testing.T) {
	d := newDebouncer(30*time.Millisecond, maxDebounce)
	defer d.Stop()

	var first, last atomic.Int32
	for i := 0; i < 5; i++ {
		if i == 4 {
			d.Call(func() { last.Add(1) })
		} else {
			d.Call(func() { first.Add(1) })
		}
	}

	time.Sleep(150 * time.Millisecond)
	if got := first.Load(); got != 0 {
		t.Fatalf("superseded functions fired %d times", got)
	}
	if got := last.Load(); got != 1 {
		t.Fatalf("last function fired %d times, want 1", got)
	}
}

func TestDebounceFiresWithinMaxWait(t *testing.T) {
	d := newDebouncer(40*time.Millisecond, 120*time.Millisecond)
	defer d.Stop()

	fired := make(chan time.Time, 1)
	start := time.Now()

	// Churn faster than the wait window for longer than maxWait; the
	// deadline must force a fire regardless.
	stop := time.After(300 * time.Millisecond)
churn:
	for {
		d.Call(func() {
			select {
			case fired <- time.Now():
			default:
			}
		})
		select {
		case <-stop:
			break churn
		case <-time.After(10 * time.Millisecond):
		}
	}

	select {
	case at := <-fired:
		if elapsed := at.Sub(start); elapsed > 250*time.Millisecond {
			t.Fatalf("first fire after %v, want within maxWait plus slack", elapsed)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("debouncer never fired under continuous churn")
	}
}

func TestDebounceZeroWindowStillFires(t *testing.T) {
	d := newDebouncer(0, maxDebounce)
	defer d.Stop()

	fired := make(chan struct{}, 1)
	d.Call(func() { fired <- struct{}{} })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("zero window did not fire")
	}
}

func TestReconfigureFlushesPendingCall(t *testing.T) {
	d := newDebouncer(10*time.Second, 10*time.Second)
	defer d.Stop()

	fired := make(chan struct{}, 1)
	d.Call(func() { fired <- struct{}{} })

	d.Reconfigure(10 * time.Millisecond)
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("pending call was not flushed on reconfigure")
	}
}

func TestStopDropsPendingCall(t *testing.T) {
	d := newDebouncer(20*time.Millisecond, maxDebounce)

	var count atomic.Int32
	d.Call(func() { count.Add(1) })
	d.Stop()

	time.Sleep(100 * time.Millisecond)
	if got := count.Load(); got != 0 {
		t.Fatalf("stopped debouncer fired %d times", got)
	}
}
