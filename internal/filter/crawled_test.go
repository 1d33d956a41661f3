package filter

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/nao1215/crawlkit/internal/checkpoint"
	"github.com/nao1215/crawlkit/internal/model"
)

func newStores(t *testing.T) map[string]func() Store {
	t.Helper()

	return map[string]func() Store{
		StoreExact: func() Store { return NewExactStore() },
		StoreBloom: func() Store {
			s, err := NewBloomStore(1000, 0.001)
			if err != nil {
				t.Fatal(err)
			}
			return s
		},
	}
}

func TestCrawledDedup(t *testing.T) {
	t.Parallel()

	for kind, newStore := range newStores(t) {
		t.Run(kind, func(t *testing.T) {
			t.Parallel()

			c, err := NewCrawled(nil, newStore())
			if err != nil {
				t.Fatal(err)
			}

			r := mustRequest(t, "http://example.com/a")
			if !c.Accept(r) {
				t.Error("first Accept should return true")
			}
			if c.Accept(r) {
				t.Error("second Accept should return false")
			}

			// Same identity, different headers and fragment.
			dup := mustRequest(t, "HTTP://EXAMPLE.com:80/a#frag", model.WithHeader("X-Test", "1"))
			if c.Accept(dup) {
				t.Error("requests with the same identity should be duplicates")
			}
			if !c.Seen(r.Identity()) {
				t.Error("Seen should report recorded identities")
			}
		})
	}
}

func TestCrawledPreFilterRejectionDoesNotRecord(t *testing.T) {
	t.Parallel()

	var allow atomic.Bool
	pre := Func(func(*model.Request) bool { return allow.Load() })

	c, err := NewCrawled(pre, NewExactStore())
	if err != nil {
		t.Fatal(err)
	}

	r := mustRequest(t, "http://example.com/a")
	if c.Accept(r) {
		t.Error("pre-filter rejection should reject")
	}
	if c.Seen(r.Identity()) || c.Len() != 0 {
		t.Error("pre-filter rejection must not touch the store")
	}

	allow.Store(true)
	if !c.Accept(r) {
		t.Error("request rejected earlier by the pre-filter should be accepted once allowed")
	}
}

func TestCrawledConcurrentAccept(t *testing.T) {
	t.Parallel()

	const workers = 64

	for kind, newStore := range newStores(t) {
		t.Run(kind, func(t *testing.T) {
			t.Parallel()

			c, err := NewCrawled(nil, newStore())
			if err != nil {
				t.Fatal(err)
			}
			r := mustRequest(t, "http://example.com/race")

			var (
				wg       sync.WaitGroup
				accepted atomic.Int32
				start    = make(chan struct{})
			)
			for range workers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					if c.Accept(r) {
						accepted.Add(1)
					}
				}()
			}
			close(start)
			wg.Wait()

			if got := accepted.Load(); got != 1 {
				t.Errorf("expected exactly one acceptance, got %d", got)
			}
		})
	}
}

func TestCrawledNesting(t *testing.T) {
	t.Parallel()

	inner, err := NewCrawled(nil, NewExactStore())
	if err != nil {
		t.Fatal(err)
	}

	_, err = NewCrawled(And(acceptAll, Not(Not(inner))), NewExactStore())
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || !errors.Is(err, ErrNestedCrawled) {
		t.Errorf("expected ConfigError wrapping ErrNestedCrawled, got %v", err)
	}

	// Side by side is fine.
	other, err := NewCrawled(nil, NewExactStore(), WithCheckpointName("OtherCrawled"))
	if err != nil {
		t.Fatal(err)
	}
	if err := CheckNesting(Or(inner, other)); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if _, err := NewCrawled(nil, nil); !errors.Is(err, ErrNilStore) {
		t.Errorf("expected ErrNilStore, got %v", err)
	}
}

func TestCrawledCheckpointRoundTrip(t *testing.T) {
	t.Parallel()

	for kind, newStore := range newStores(t) {
		t.Run(kind, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			src, err := NewCrawled(nil, newStore())
			if err != nil {
				t.Fatal(err)
			}

			var seen []*model.Request
			for i := range 50 {
				r := mustRequest(t, fmt.Sprintf("http://example.com/page/%d", i))
				src.Accept(r)
				seen = append(seen, r)
			}

			if err := checkpoint.Stash(dir, src); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			dst, err := NewCrawled(nil, newStore())
			if err != nil {
				t.Fatal(err)
			}
			if err := checkpoint.Recover(dir, dst); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if dst.Len() != src.Len() {
				t.Errorf("expected %d identities, got %d", src.Len(), dst.Len())
			}
			for _, r := range seen {
				if dst.Accept(r) {
					t.Errorf("recovered filter accepted previously seen %s", r.URL())
				}
			}
			fresh := mustRequest(t, "http://example.com/never-seen")
			if !dst.Accept(fresh) {
				t.Error("recovered filter should accept new identities")
			}
		})
	}
}

func TestCrawledRecoverStoreMismatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src, err := NewCrawled(nil, NewExactStore())
	if err != nil {
		t.Fatal(err)
	}
	src.Accept(mustRequest(t, "http://example.com/"))
	if err := checkpoint.Stash(dir, src); err != nil {
		t.Fatal(err)
	}

	bs, err := NewBloomStore(10, 0.01)
	if err != nil {
		t.Fatal(err)
	}
	dst, err := NewCrawled(nil, bs)
	if err != nil {
		t.Fatal(err)
	}
	err = checkpoint.Recover(dir, dst)
	if !errors.Is(err, ErrStoreMismatch) || !errors.Is(err, checkpoint.ErrSchemaMismatch) {
		t.Errorf("expected store mismatch, got %v", err)
	}
	if dst.Len() != 0 {
		t.Error("filter should be unchanged after a failed recovery")
	}
}

// TestCrawledBloomCapacity records capacity identities through a Bloom-backed
// filter and checks false positives on unseen identities stay near the
// configured rate while recorded identities are never accepted again.
func TestCrawledBloomCapacity(t *testing.T) {
	t.Parallel()

	const (
		capacity  = 5000
		errorRate = 0.01
		samples   = 50000
	)

	store, err := NewBloomStore(capacity, errorRate)
	if err != nil {
		t.Fatal(err)
	}
	c, err := NewCrawled(nil, store)
	if err != nil {
		t.Fatal(err)
	}

	var falseRejects int
	for i := range capacity {
		if !c.Accept(mustRequest(t, fmt.Sprintf("http://seen.example/%d", i))) {
			falseRejects++
		}
	}
	for i := range capacity {
		if c.Accept(mustRequest(t, fmt.Sprintf("http://seen.example/%d", i))) {
			t.Fatalf("recorded identity %d accepted again", i)
		}
	}

	var fp int
	for i := range samples {
		if c.Seen(mustRequest(t, fmt.Sprintf("http://unseen.example/%d", i)).Identity()) {
			fp++
		}
	}
	rate := float64(fp) / samples
	if rate > errorRate*2 {
		t.Errorf("false-positive rate %.4f exceeds twice the configured %.4f", rate, errorRate)
	}
	if falseRejects > capacity/50 {
		t.Errorf("too many false rejections while filling: %d", falseRejects)
	}
}

func TestBloomStoreOverCapacity(t *testing.T) {
	t.Parallel()

	store, err := NewBloomStore(50, 0.01)
	if err != nil {
		t.Fatal(err)
	}
	for i := range 50 {
		store.Add(fmt.Sprintf("http://example.com/%d", i))
	}
	if store.OverCapacity() {
		t.Errorf("store over capacity with %d identities", store.Len())
	}
	atCap := store.EstimatedFalsePositiveRate()

	for i := 50; i < 200; i++ {
		store.Add(fmt.Sprintf("http://example.com/%d", i))
	}
	if !store.OverCapacity() {
		t.Errorf("store not over capacity with %d identities", store.Len())
	}
	if store.EstimatedFalsePositiveRate() <= atCap {
		t.Error("false-positive estimate should grow past capacity")
	}
}

func TestCrawledFalsePositiveRate(t *testing.T) {
	t.Parallel()

	exact, err := NewCrawled(nil, NewExactStore())
	if err != nil {
		t.Fatal(err)
	}
	store, err := NewBloomStore(10, 0.01)
	if err != nil {
		t.Fatal(err)
	}
	bloomed, err := NewCrawled(nil, store)
	if err != nil {
		t.Fatal(err)
	}

	for i := range 10 {
		exact.Accept(mustRequest(t, fmt.Sprintf("http://example.com/%d", i)))
		bloomed.Accept(mustRequest(t, fmt.Sprintf("http://example.com/%d", i)))
	}
	if exact.FalsePositiveRate() != 0 || bloomed.FalsePositiveRate() != 0 {
		t.Error("no false-positive rate expected within capacity")
	}

	for i := 10; i < 100; i++ {
		exact.Accept(mustRequest(t, fmt.Sprintf("http://example.com/%d", i)))
		bloomed.Accept(mustRequest(t, fmt.Sprintf("http://example.com/%d", i)))
	}
	if exact.FalsePositiveRate() != 0 {
		t.Error("exact store never reports false positives")
	}
	if rate := bloomed.FalsePositiveRate(); rate <= 0.01 || rate > 1 {
		t.Errorf("FalsePositiveRate() = %v past capacity, want above 0.01", rate)
	}
}
