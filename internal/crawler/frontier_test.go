package crawler

import (
	"testing"
	"time"
)

func TestFrontierFIFO(t *testing.T) {
	t.Parallel()

	f := newFrontier()
	f.push(mustRequest(t, "http://x/1"), mustRequest(t, "http://x/2"))
	f.push(mustRequest(t, "http://x/3"))

	for _, want := range []string{"http://x/1", "http://x/2", "http://x/3"} {
		req, ok := f.take()
		if !ok || req.URL() != want {
			t.Fatalf("take() = %v, %v; want %s", req, ok, want)
		}
	}
	if f.inFlightCount() != 3 {
		t.Errorf("inFlightCount() = %d, want 3", f.inFlightCount())
	}
}

func TestFrontierDrains(t *testing.T) {
	t.Parallel()

	f := newFrontier()
	if _, ok := f.take(); ok {
		t.Fatal("take() on an empty frontier with nothing in flight should return false")
	}

	f.push(mustRequest(t, "http://x/"))
	if _, ok := f.take(); !ok {
		t.Fatal("take() = false with a queued request")
	}

	// A second worker waits while the first is in flight and receives the
	// child pushed before done.
	got := make(chan string, 1)
	go func() {
		req, ok := f.take()
		if !ok {
			got <- ""
			return
		}
		got <- req.URL()
		f.done()
	}()

	time.Sleep(10 * time.Millisecond)
	f.push(mustRequest(t, "http://x/child"))
	f.done()

	if u := <-got; u != "http://x/child" {
		t.Errorf("waiting worker got %q, want the child", u)
	}
	if _, ok := f.take(); ok {
		t.Error("take() after draining should return false")
	}
}

func TestFrontierStopKeepsQueue(t *testing.T) {
	t.Parallel()

	f := newFrontier()
	f.push(mustRequest(t, "http://x/1"), mustRequest(t, "http://x/2"))
	f.stop()

	if _, ok := f.take(); ok {
		t.Fatal("take() after stop should return false")
	}
	if f.len() != 2 {
		t.Errorf("len() = %d after stop, want 2", f.len())
	}

	f.start(0)
	if _, ok := f.take(); !ok {
		t.Error("take() after start should succeed")
	}
}

func TestFrontierStopWakesWaiters(t *testing.T) {
	t.Parallel()

	f := newFrontier()
	f.push(mustRequest(t, "http://x/"))
	if _, ok := f.take(); !ok {
		t.Fatal("take() = false")
	}

	done := make(chan bool, 1)
	go func() {
		_, ok := f.take()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	f.stop()

	select {
	case ok := <-done:
		if ok {
			t.Error("waiting take() returned a request after stop")
		}
	case <-time.After(time.Second):
		t.Fatal("stop did not wake the waiting worker")
	}
}

func TestFrontierLimit(t *testing.T) {
	t.Parallel()

	f := newFrontier()
	f.start(2)
	for _, u := range []string{"http://x/1", "http://x/2", "http://x/3"} {
		f.push(mustRequest(t, u))
	}

	for range 2 {
		if _, ok := f.take(); !ok {
			t.Fatal("take() = false under the limit")
		}
	}
	if _, ok := f.take(); ok {
		t.Error("take() beyond the limit should return false")
	}
	if !f.limitReached() {
		t.Error("limitReached() = false")
	}
	if f.len() != 1 {
		t.Errorf("len() = %d, want 1", f.len())
	}
}

func TestFrontierSnapshotRestore(t *testing.T) {
	t.Parallel()

	f := newFrontier()
	f.push(mustRequest(t, "http://x/1"), mustRequest(t, "http://x/2"))

	snap := f.snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot() has %d requests, want 2", len(snap))
	}

	g := newFrontier()
	g.restore(snap)
	req, ok := g.take()
	if !ok || req.URL() != "http://x/1" {
		t.Errorf("restored frontier took %v, %v", req, ok)
	}
	if f.len() != 2 {
		t.Error("snapshot must not drain the source")
	}
}
