package crawler

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/crawlkit/internal/bloom"
	"github.com/nao1215/crawlkit/internal/checkpoint"
	"github.com/nao1215/crawlkit/internal/client"
	"github.com/nao1215/crawlkit/internal/filter"
	"github.com/nao1215/crawlkit/internal/model"
	"github.com/nao1215/crawlkit/internal/pipeline"
)

// fakeSite is a Fetcher serving HTML pages from memory.
type fakeSite struct {
	pages map[string]string
	errs  map[string]error
	delay time.Duration

	// gate, when set, blocks every fetch until it is closed; entered
	// receives one value per fetch before it blocks.
	gate    chan struct{}
	entered chan string

	mu          sync.Mutex
	calls       map[string]int
	active      int
	maxActive   int
	generations map[string]int
}

func newFakeSite() *fakeSite {
	return &fakeSite{
		pages:       make(map[string]string),
		errs:        make(map[string]error),
		calls:       make(map[string]int),
		generations: make(map[string]int),
	}
}

// page adds an HTML page at rawURL linking to links.
func (f *fakeSite) page(rawURL string, links ...string) {
	var b strings.Builder
	b.WriteString("<html><head><title>")
	b.WriteString(rawURL)
	b.WriteString("</title></head><body>")
	for _, l := range links {
		fmt.Fprintf(&b, `<a href="%s">%s</a>`, l, l)
	}
	b.WriteString("</body></html>")
	f.pages[rawURL] = b.String()
}

func (f *fakeSite) Fetch(ctx context.Context, req *model.Request) (*model.Response, error) {
	u := req.EffectiveURL()

	f.mu.Lock()
	f.calls[u]++
	f.generations[u] = req.Generation()
	f.active++
	f.maxActive = max(f.maxActive, f.active)
	body, ok := f.pages[u]
	fetchErr := f.errs[u]
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if f.entered != nil {
		f.entered <- u
	}
	if f.gate != nil {
		<-f.gate
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	if fetchErr != nil {
		return nil, fetchErr
	}
	if !ok {
		return nil, &client.StatusError{Status: http.StatusNotFound, URL: u}
	}
	header := http.Header{"Content-Type": {"text/html; charset=utf-8"}}
	return model.NewResponse(req, http.StatusOK, header, []byte(body), ""), nil
}

func (f *fakeSite) callCount(u string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[u]
}

func (f *fakeSite) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// star builds a root page linking to n leaf pages.
func star(n int) (*fakeSite, []string) {
	site := newFakeSite()
	leaves := make([]string, n)
	for i := range leaves {
		leaves[i] = fmt.Sprintf("http://x/p%d", i)
		site.page(leaves[i])
	}
	site.page("http://x/", leaves...)
	return site, leaves
}

func mustCrawled(t *testing.T, pre filter.Filter, store filter.Store, opts ...filter.CrawledOption) *filter.Crawled {
	t.Helper()
	c, err := filter.NewCrawled(pre, store, opts...)
	if err != nil {
		t.Fatalf("NewCrawled: %v", err)
	}
	return c
}

func mustGeneration(t *testing.T, n int) filter.Filter {
	t.Helper()
	g, err := filter.Generation(n)
	if err != nil {
		t.Fatalf("Generation(%d): %v", n, err)
	}
	return g
}

func TestSpiderEndToEnd(t *testing.T) {
	t.Parallel()

	bloomStore, err := filter.NewBloomStore(1000, 0.001)
	if err != nil {
		t.Fatalf("NewBloomStore: %v", err)
	}
	stores := map[string]filter.Store{
		"exact": filter.NewExactStore(),
		"bloom": bloomStore,
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			site := newFakeSite()
			site.page("http://x/a", "/b", "#top")
			site.page("http://x/b", "/a", "http://X:80/a#frag")

			spider := NewSpider(site,
				WithSeedURLs("http://x/a"),
				WithFilter(mustCrawled(t, mustGeneration(t, 1), store)),
				WithConcurrency(2),
			)
			if err := spider.Run(context.Background()); err != nil {
				t.Fatalf("Run: %v", err)
			}

			if spider.State() != StateCompleted {
				t.Errorf("State() = %s, want completed", spider.State())
			}
			for _, u := range []string{"http://x/a", "http://x/b"} {
				if got := site.callCount(u); got != 1 {
					t.Errorf("%s fetched %d times, want 1", u, got)
				}
			}
			stats := spider.Stats()
			if stats.Fetched != 2 || stats.Enqueued != 2 || stats.Failed != 0 {
				t.Errorf("unexpected stats: %+v", stats)
			}
			// The self-link on /a is a duplicate; the links on /b are past
			// the generation limit.
			if stats.Rejected != 2 {
				t.Errorf("Rejected = %d, want 2", stats.Rejected)
			}
			if stats.MaxGeneration != 1 {
				t.Errorf("MaxGeneration = %d, want 1", stats.MaxGeneration)
			}
			if spider.FrontierLen() != 0 || spider.InFlight() != 0 {
				t.Errorf("frontier %d, in flight %d after completion", spider.FrontierLen(), spider.InFlight())
			}
		})
	}
}

func TestSpiderMaxGenerationZero(t *testing.T) {
	t.Parallel()

	site, _ := star(3)
	spider := NewSpider(site,
		WithSeedURLs("http://x/"),
		WithFilter(mustCrawled(t, mustGeneration(t, 0), filter.NewExactStore())),
	)
	if err := spider.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := site.totalCalls(); got != 1 {
		t.Errorf("fetched %d requests, want only the seed", got)
	}
	if got := spider.Stats().Rejected; got != 3 {
		t.Errorf("Rejected = %d, want 3", got)
	}
}

func TestSpiderGenerationMonotonicity(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	site.page("http://x/0", "/1")
	site.page("http://x/1", "/2", "/0")
	site.page("http://x/2", "/3")
	site.page("http://x/3", "/4")

	spider := NewSpider(site,
		WithSeedURLs("http://x/0"),
		WithFilter(mustCrawled(t, mustGeneration(t, 2), filter.NewExactStore())),
		WithConcurrency(3),
	)
	if err := spider.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := map[string]int{"http://x/0": 0, "http://x/1": 1, "http://x/2": 2}
	site.mu.Lock()
	defer site.mu.Unlock()
	if len(site.generations) != len(want) {
		t.Fatalf("fetched %v, want %v", site.generations, want)
	}
	for u, g := range want {
		if site.generations[u] != g {
			t.Errorf("%s has generation %d, want %d", u, site.generations[u], g)
		}
	}
	if got := spider.Stats().MaxGeneration; got != 2 {
		t.Errorf("MaxGeneration = %d, want 2", got)
	}
}

func TestSpiderConcurrencyLimit(t *testing.T) {
	t.Parallel()

	site, leaves := star(40)
	site.delay = 5 * time.Millisecond

	spider := NewSpider(site, WithSeedURLs("http://x/"), WithConcurrency(4))
	if err := spider.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, u := range leaves {
		if got := site.callCount(u); got != 1 {
			t.Errorf("%s fetched %d times, want 1", u, got)
		}
	}
	site.mu.Lock()
	maxActive := site.maxActive
	site.mu.Unlock()
	if maxActive > 4 {
		t.Errorf("%d concurrent fetches, limit is 4", maxActive)
	}
	if maxActive < 2 {
		t.Errorf("%d concurrent fetches, expected the pool to fan out", maxActive)
	}
}

func TestSpiderPauseStashResume(t *testing.T) {
	t.Parallel()

	site, leaves := star(10)
	dir := t.TempDir()

	var first *Spider
	responses := 0
	first = NewSpider(site,
		WithSeedURLs("http://x/"),
		WithConcurrency(1),
		WithCrawlID("crawl-1"),
		WithOnResponse(func(*model.Response) {
			responses++
			if responses == 3 {
				first.Pause()
			}
		}),
	)
	if err := first.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if first.State() != StatePaused {
		t.Fatalf("State() = %s, want paused", first.State())
	}
	if got := first.Stats().Fetched; got != 3 {
		t.Errorf("Fetched = %d before pause, want 3", got)
	}
	if got := first.FrontierLen(); got != 8 {
		t.Errorf("FrontierLen() = %d, want 8", got)
	}
	if err := first.Stash(dir); err != nil {
		t.Fatalf("Stash: %v", err)
	}

	second := NewSpider(site, WithConcurrency(3))
	if !second.CanRecover(dir) {
		t.Fatal("CanRecover() = false after Stash")
	}
	if err := second.Recover(dir); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if second.CrawlID() != "crawl-1" || second.State() != StatePaused || second.FrontierLen() != 8 {
		t.Fatalf("recovered id %q state %s frontier %d", second.CrawlID(), second.State(), second.FrontierLen())
	}
	if err := second.Run(context.Background()); err != nil {
		t.Fatalf("resumed Run: %v", err)
	}
	if second.State() != StateCompleted {
		t.Errorf("State() = %s, want completed", second.State())
	}

	for _, u := range append([]string{"http://x/"}, leaves...) {
		if got := site.callCount(u); got != 1 {
			t.Errorf("%s fetched %d times across both runs, want 1", u, got)
		}
	}
	if got := second.Stats().Fetched; got != 11 {
		t.Errorf("Fetched = %d after resume, want 11", got)
	}
}

func TestSpiderCancelledContext(t *testing.T) {
	t.Parallel()

	site, _ := star(2)
	spider := NewSpider(site, WithSeedURLs("http://x/"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := spider.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() = %v, want context.Canceled", err)
	}
	if spider.State() != StatePaused {
		t.Errorf("State() = %s, want paused", spider.State())
	}
	if spider.FrontierLen() != 1 || site.totalCalls() != 0 {
		t.Errorf("frontier %d, fetches %d; the seed should still be queued", spider.FrontierLen(), site.totalCalls())
	}

	if err := spider.Run(context.Background()); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if spider.State() != StateCompleted || spider.Stats().Fetched != 3 {
		t.Errorf("state %s fetched %d after resuming", spider.State(), spider.Stats().Fetched)
	}
}

func TestSpiderCancelKeepsInFlightResults(t *testing.T) {
	t.Parallel()

	site, _ := star(3)
	site.gate = make(chan struct{})
	site.entered = make(chan string, 16)

	spider := NewSpider(site, WithSeedURLs("http://x/"), WithConcurrency(1))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- spider.Run(ctx) }()

	<-site.entered
	cancel()
	// Give the cancellation time to stop the frontier before the fetch returns.
	time.Sleep(20 * time.Millisecond)
	close(site.gate)

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() = %v, want context.Canceled", err)
	}
	if got := spider.Stats().Fetched; got != 1 {
		t.Errorf("Fetched = %d, want the in-flight seed only", got)
	}
	if got := spider.FrontierLen(); got != 3 {
		t.Errorf("FrontierLen() = %d, want the 3 links of the in-flight page", got)
	}
}

func TestSpiderCrawlTimeout(t *testing.T) {
	t.Parallel()

	site, _ := star(50)
	site.delay = 20 * time.Millisecond

	spider := NewSpider(site,
		WithSeedURLs("http://x/"),
		WithConcurrency(1),
		WithCrawlTimeout(100*time.Millisecond),
	)
	err := spider.Run(context.Background())
	if !errors.Is(err, ErrCrawlTimeout) {
		t.Fatalf("Run() = %v, want ErrCrawlTimeout", err)
	}
	if spider.State() != StatePaused {
		t.Errorf("State() = %s, want paused", spider.State())
	}
	if spider.FrontierLen() == 0 {
		t.Error("expected work left in the frontier")
	}
}

func TestSpiderMaxPages(t *testing.T) {
	t.Parallel()

	site, _ := star(10)
	spider := NewSpider(site, WithSeedURLs("http://x/"), WithConcurrency(1), WithMaxPages(4))

	if err := spider.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if spider.State() != StateCompleted {
		t.Errorf("State() = %s, want completed", spider.State())
	}
	if got := site.totalCalls(); got != 4 {
		t.Errorf("fetched %d pages, want 4", got)
	}
	if spider.FrontierLen() != 7 {
		t.Errorf("FrontierLen() = %d, want 7", spider.FrontierLen())
	}
}

func TestSpiderRetryBound(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	site.page("http://x/", "/flaky")
	site.errs["http://x/flaky"] = &client.TransportError{Kind: client.KindTimeout, URL: "http://x/flaky", Err: context.DeadlineExceeded}

	var mu sync.Mutex
	var dropped []error
	spider := NewSpider(site,
		WithSeedURLs("http://x/"),
		WithMaxRetries(2),
		WithOnError(func(_ *model.Request, err error) {
			mu.Lock()
			dropped = append(dropped, err)
			mu.Unlock()
		}),
	)
	if err := spider.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := site.callCount("http://x/flaky"); got != 3 {
		t.Errorf("flaky fetched %d times, want 1 + 2 retries", got)
	}
	stats := spider.Stats()
	if stats.Retried != 2 || stats.Failed != 1 || stats.Failures["timeout"] != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if len(dropped) != 1 || !errors.Is(dropped[0], client.ErrTimeout) {
		t.Errorf("OnError received %v, want one timeout", dropped)
	}
	if spider.State() != StateCompleted {
		t.Errorf("State() = %s; failed fetches never fail the crawl", spider.State())
	}
}

func TestSpiderStatusFailure(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	site.page("http://x/", "/missing")

	spider := NewSpider(site, WithSeedURLs("http://x/"))
	if err := spider.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	stats := spider.Stats()
	if stats.Failed != 1 || stats.Failures[FailureStatus] != 1 || stats.Retried != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestSpiderPipeline(t *testing.T) {
	t.Parallel()

	site, _ := star(2)

	var mu sync.Mutex
	seen := 0
	p := pipeline.New()
	p.AddStep(pipeline.NewStepFunc("count", func(_ context.Context, _ *model.Response) error {
		mu.Lock()
		defer mu.Unlock()
		seen++
		return nil
	}))
	p.AddStep(pipeline.NewStepFunc("reject-leaves", func(_ context.Context, resp *model.Response) error {
		if resp.URL() != "http://x/" {
			return errors.New("leaf")
		}
		return nil
	}))

	spider := NewSpider(site, WithSeedURLs("http://x/"), WithPipeline(p))
	if err := spider.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if seen != 3 {
		t.Errorf("pipeline saw %d responses, want 3", seen)
	}
	if got := spider.Stats().PipelineErrors; got != 2 {
		t.Errorf("PipelineErrors = %d, want 2", got)
	}
}

func TestSpiderStashWhileInFlight(t *testing.T) {
	t.Parallel()

	site, _ := star(1)
	site.gate = make(chan struct{})
	site.entered = make(chan string, 4)

	spider := NewSpider(site, WithSeedURLs("http://x/"))
	done := make(chan error, 1)
	go func() { done <- spider.Run(context.Background()) }()

	<-site.entered
	if err := spider.Stash(t.TempDir()); !errors.Is(err, ErrInFlight) {
		t.Errorf("Stash() while fetching = %v, want ErrInFlight", err)
	}
	if err := spider.Recover(t.TempDir()); !errors.Is(err, ErrRunning) {
		t.Errorf("Recover() while running = %v, want ErrRunning", err)
	}
	if err := spider.Run(context.Background()); !errors.Is(err, ErrRunning) {
		t.Errorf("second Run() = %v, want ErrRunning", err)
	}
	close(site.gate)

	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := spider.Stash(t.TempDir()); err != nil {
		t.Errorf("Stash() after completion = %v", err)
	}
	if err := spider.Run(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Run() on a completed spider = %v, want ErrInvalidState", err)
	}
}

func TestSpiderRecoverIsAtomic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	site, _ := star(2)

	source := NewSpider(site, WithSeedURLs("http://x/", "http://x/p0"), WithCrawlID("stashed"))
	if err := source.Stash(dir); err != nil {
		t.Fatalf("Stash: %v", err)
	}
	blob := checkpoint.BlobPath(dir, filter.DefaultCrawledName)
	if err := os.WriteFile(blob, []byte("component: CrawledFilter\nversion: 1\nfields: {}\n"), 0o600); err != nil {
		t.Fatalf("corrupt blob: %v", err)
	}

	crawled := mustCrawled(t, nil, filter.NewExactStore())
	target := NewSpider(site, WithSeedURLs("http://x/p1"), WithFilter(crawled), WithCrawlID("fresh"))

	err := target.Recover(dir)
	var recErr *checkpoint.RecoveryError
	if !errors.As(err, &recErr) || !errors.Is(err, checkpoint.ErrSchemaMismatch) {
		t.Fatalf("Recover() = %v, want a schema mismatch", err)
	}
	if target.CrawlID() != "fresh" || target.FrontierLen() != 1 || crawled.Len() != 1 {
		t.Errorf("spider changed by failed recovery: id %q frontier %d filter %d",
			target.CrawlID(), target.FrontierLen(), crawled.Len())
	}
	if !crawled.Seen(mustRequest(t, "http://x/p1").Identity()) || crawled.Seen(mustRequest(t, "http://x/").Identity()) {
		t.Error("filter state changed by failed recovery")
	}
}

func TestSpiderRecoverMissingCheckpoint(t *testing.T) {
	t.Parallel()

	spider := NewSpider(newFakeSite(), WithSeedURLs("http://x/"))
	dir := t.TempDir()
	if spider.CanRecover(dir) {
		t.Error("CanRecover() = true for an empty directory")
	}
	if err := spider.Recover(dir); !errors.Is(err, checkpoint.ErrBlobNotFound) {
		t.Errorf("Recover() = %v, want ErrBlobNotFound", err)
	}
}

func TestSpiderStashRoundTripWithBloom(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	site, leaves := star(5)
	newBloom := func() *filter.Crawled {
		store, err := filter.NewBloomStore(100, 0.001)
		if err != nil {
			t.Fatalf("NewBloomStore: %v", err)
		}
		return mustCrawled(t, nil, store, filter.WithCheckpointName("Seen"))
	}

	first := NewSpider(site, WithSeedURLs("http://x/"), WithFilter(newBloom()), WithMaxPages(1))
	if err := first.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := first.Stash(dir); err != nil {
		t.Fatalf("Stash: %v", err)
	}
	if _, err := os.Stat(checkpoint.BlobPath(dir, "Seen")); err != nil {
		t.Fatalf("filter blob missing: %v", err)
	}

	restored := newBloom()
	second := NewSpider(site, WithFilter(restored))
	if err := second.Recover(dir); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	for _, u := range append([]string{"http://x/"}, leaves...) {
		if !restored.Seen(mustRequest(t, u).Identity()) {
			t.Errorf("%s not recorded after recovery", u)
		}
	}
	if second.FrontierLen() != 5 || second.Stats().Fetched != 1 {
		t.Errorf("frontier %d fetched %d after recovery", second.FrontierLen(), second.Stats().Fetched)
	}
	if second.State() != StateCompleted {
		t.Fatalf("State() = %s, want the stashed completed state", second.State())
	}
}

func TestSpiderRecoverCorruptBloom(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	site, _ := star(2)
	newBloom := func() *filter.Crawled {
		store, err := filter.NewBloomStore(10, 0.01)
		if err != nil {
			t.Fatalf("NewBloomStore: %v", err)
		}
		return mustCrawled(t, nil, store)
	}

	source := NewSpider(site, WithSeedURLs("http://x/"), WithFilter(newBloom()))
	if err := source.Stash(dir); err != nil {
		t.Fatalf("Stash: %v", err)
	}

	// Claim 2^64-1 bits while carrying none: the sizing header is 28 bytes,
	// followed by the bit count, the hash count and the bitset length.
	path := checkpoint.BlobPath(dir, filter.DefaultCrawledName)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read blob: %v", err)
	}
	bitsField := regexp.MustCompile(`bits: (\S+)`)
	match := bitsField.FindSubmatch(data)
	if match == nil {
		t.Fatalf("no bits field in blob:\n%s", data)
	}
	raw, err := base64.StdEncoding.DecodeString(string(match[1]))
	if err != nil {
		t.Fatalf("decode bits: %v", err)
	}
	raw = raw[:28+24]
	binary.BigEndian.PutUint64(raw[28:], math.MaxUint64)
	binary.BigEndian.PutUint64(raw[44:], math.MaxUint64)
	data = bitsField.ReplaceAll(data, []byte("bits: "+base64.StdEncoding.EncodeToString(raw)))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write blob: %v", err)
	}

	restored := newBloom()
	target := NewSpider(site, WithSeedURLs("http://x/p0"), WithFilter(restored), WithCrawlID("fresh"))
	err = target.Recover(dir)
	var recErr *checkpoint.RecoveryError
	if !errors.As(err, &recErr) || !errors.Is(err, bloom.ErrCorruptData) {
		t.Fatalf("Recover() = %v, want a RecoveryError for corrupt bloom data", err)
	}
	if target.CrawlID() != "fresh" {
		t.Errorf("CrawlID() = %q after failed recovery", target.CrawlID())
	}

	// The original filter is still in place and usable.
	if !restored.Seen(mustRequest(t, "http://x/p0").Identity()) || restored.Seen(mustRequest(t, "http://x/p1").Identity()) {
		t.Error("filter state changed by failed recovery")
	}
	if err := target.Run(context.Background()); err != nil {
		t.Fatalf("Run after failed recovery: %v", err)
	}
	if site.callCount("http://x/p0") != 1 {
		t.Errorf("http://x/p0 fetched %d times, want 1", site.callCount("http://x/p0"))
	}
}

func TestSpiderConfigErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts func(t *testing.T) []Option
		want error
	}{
		{
			name: "zero concurrency",
			opts: func(*testing.T) []Option { return []Option{WithConcurrency(0)} },
			want: ErrInvalidConcurrency,
		},
		{
			name: "relative seed",
			opts: func(*testing.T) []Option { return []Option{WithSeedURLs("/relative")} },
			want: ErrInvalidSeed,
		},
		{
			name: "unsupported scheme",
			opts: func(*testing.T) []Option { return []Option{WithSeedURLs("ftp://x/")} },
			want: model.ErrInvalidURL,
		},
		{
			name: "unencodable seed body",
			opts: func(t *testing.T) []Option {
				return []Option{WithSeeds(mustRequest(t, "http://x/", model.WithJSON(make(chan int))))}
			},
			want: ErrInvalidSeed,
		},
		{
			name: "negative retries",
			opts: func(*testing.T) []Option { return []Option{WithMaxRetries(-1)} },
			want: ErrInvalidOption,
		},
		{
			name: "negative max pages",
			opts: func(*testing.T) []Option { return []Option{WithMaxPages(-1)} },
			want: ErrInvalidOption,
		},
		{
			name: "duplicate checkpoint names",
			opts: func(t *testing.T) []Option {
				a := mustCrawled(t, nil, filter.NewExactStore())
				b := mustCrawled(t, nil, filter.NewExactStore())
				return []Option{WithFilter(filter.Or(a, b))}
			},
			want: ErrDuplicateCheckpoint,
		},
		{
			name: "checkpoint name taken by the spider",
			opts: func(t *testing.T) []Option {
				return []Option{WithFilter(mustCrawled(t, nil, filter.NewExactStore(), filter.WithCheckpointName("Spider")))}
			},
			want: ErrDuplicateCheckpoint,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			site, _ := star(1)
			spider := NewSpider(site, append([]Option{WithSeedURLs("http://x/")}, tt.opts(t)...)...)

			err := spider.Run(context.Background())
			var configErr *ConfigError
			if !errors.As(err, &configErr) {
				t.Fatalf("Run() = %v, want *ConfigError", err)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Run() = %v, want %v", err, tt.want)
			}
			if spider.State() != StateFailed {
				t.Errorf("State() = %s, want failed", spider.State())
			}
			if site.totalCalls() != 0 {
				t.Error("fetcher called despite the configuration error")
			}
		})
	}
}

func TestFailureKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{&client.TransportError{Kind: client.KindConnect, Err: errors.New("refused")}, "connect"},
		{&client.TransportError{Kind: client.KindTLS, Err: errors.New("x509")}, "tls"},
		{fmt.Errorf("wrapped: %w", &client.TransportError{Kind: client.KindTimeout}), "timeout"},
		{&client.StatusError{Status: http.StatusInternalServerError}, FailureStatus},
		{&client.ConfigError{Err: model.ErrUnknownDataFormat}, FailureConfig},
		{context.DeadlineExceeded, "timeout"},
		{errors.New("boom"), "other"},
	}
	for _, tt := range tests {
		if got := FailureKind(tt.err); got != tt.want {
			t.Errorf("FailureKind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestParseState(t *testing.T) {
	t.Parallel()

	for _, s := range []State{StateIdle, StateRunning, StatePaused, StateCompleted, StateFailed} {
		got, err := ParseState(s.String())
		if err != nil || got != s {
			t.Errorf("ParseState(%q) = %v, %v", s.String(), got, err)
		}
	}
	if _, err := ParseState("sleeping"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("ParseState(sleeping) = %v, want ErrInvalidState", err)
	}
}

func mustRequest(t *testing.T, rawURL string, opts ...model.RequestOption) *model.Request {
	t.Helper()
	req, err := model.NewRequest(rawURL, opts...)
	if err != nil {
		t.Fatalf("NewRequest(%q): %v", rawURL, err)
	}
	return req
}
