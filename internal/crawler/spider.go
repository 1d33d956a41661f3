package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/crawlkit/internal/client"
	"github.com/nao1215/crawlkit/internal/filter"
	"github.com/nao1215/crawlkit/internal/log"
	"github.com/nao1215/crawlkit/internal/model"
	"github.com/nao1215/crawlkit/internal/pipeline"
)

const (
	// DefaultConcurrency is the default number of workers.
	DefaultConcurrency = 4

	// DefaultMaxRetries is the default number of retries per request.
	DefaultMaxRetries = 0
)

// Fetcher fetches a single request. *client.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, req *model.Request) (*model.Response, error)
}

// Spider crawls from a set of seeds.
//
// Design decision: We call it "Spider" rather than "Crawler" because:
//  1. "Spider" is the traditional term for web crawlers
//  2. Distinguishes the component from the package name
//  3. Clearer in code: crawler.NewSpider() vs crawler.NewCrawler()
//
// A Spider is created once per crawl. Run fetches with a fixed pool of
// workers; Pause, context cancellation or the crawl timeout stop dispatch
// and leave the frontier intact, so Stash followed by Recover on a new
// Spider resumes the crawl.
type Spider struct {
	fetcher Fetcher

	// filter decides which discovered requests enter the frontier.
	filter filter.Filter

	frontier *frontier

	concurrency  int
	maxRetries   int
	maxPages     int
	crawlTimeout time.Duration

	pipeline   *pipeline.Pipeline
	onResponse func(*model.Response)
	onError    func(*model.Request, error)
	logger     *slog.Logger

	// seeds are collected by options and filtered once every option is applied.
	seeds []*model.Request

	// configErr is the first configuration problem; Run reports it.
	configErr error

	// mu guards the fields below.
	mu      sync.Mutex
	state   State
	crawlID string
	stats   Stats
	paused  bool
}

// Option configures a Spider.
type Option func(*Spider)

// WithSeeds adds seed requests.
func WithSeeds(reqs ...*model.Request) Option {
	return func(s *Spider) {
		for _, req := range reqs {
			if req == nil {
				s.fail("seeds", fmt.Errorf("%w: nil request", ErrInvalidSeed))
				continue
			}
			s.seeds = append(s.seeds, req)
		}
	}
}

// WithSeedURLs adds GET seed requests for each URL.
func WithSeedURLs(urls ...string) Option {
	return func(s *Spider) {
		for _, raw := range urls {
			req, err := model.NewRequest(raw)
			if err != nil {
				s.fail("seeds", fmt.Errorf("%w: %w", ErrInvalidSeed, err))
				continue
			}
			s.seeds = append(s.seeds, req)
		}
	}
}

// WithFilter sets the filter applied to seeds and discovered requests.
// The default records every identity in an exact crawled filter.
func WithFilter(f filter.Filter) Option {
	return func(s *Spider) {
		if f != nil {
			s.filter = f
		}
	}
}

// WithConcurrency sets the number of workers.
func WithConcurrency(n int) Option {
	return func(s *Spider) {
		s.concurrency = n
	}
}

// WithMaxRetries sets how many times a failed request is retried.
func WithMaxRetries(n int) Option {
	return func(s *Spider) {
		s.maxRetries = n
	}
}

// WithCrawlTimeout bounds the wall-clock time of a single Run. Zero
// means no limit.
func WithCrawlTimeout(d time.Duration) Option {
	return func(s *Spider) {
		s.crawlTimeout = d
	}
}

// WithMaxPages bounds the number of fetches over the whole crawl,
// retries included. Zero means unlimited.
func WithMaxPages(n int) Option {
	return func(s *Spider) {
		s.maxPages = n
	}
}

// WithPipeline sets the pipeline every successful response goes through
// before its links are extracted.
func WithPipeline(p *pipeline.Pipeline) Option {
	return func(s *Spider) {
		s.pipeline = p
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Spider) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCrawlID sets the crawl id. The default is a random UUID.
func WithCrawlID(id string) Option {
	return func(s *Spider) {
		if id != "" {
			s.crawlID = id
		}
	}
}

// WithOnResponse sets a hook called for every successful response. It is
// called from worker goroutines and must be safe for concurrent use.
func WithOnResponse(fn func(*model.Response)) Option {
	return func(s *Spider) {
		s.onResponse = fn
	}
}

// WithOnError sets a hook called for every request dropped after its
// last attempt. It is called from worker goroutines and must be safe for
// concurrent use.
func WithOnError(fn func(*model.Request, error)) Option {
	return func(s *Spider) {
		s.onError = fn
	}
}

// NewSpider creates a Spider. Seeds pass through the filter here, so a
// crawled filter records them before the first fetch. Configuration
// errors are reported by Run.
func NewSpider(fetcher Fetcher, opts ...Option) *Spider {
	s := &Spider{
		fetcher:     fetcher,
		frontier:    newFrontier(),
		concurrency: DefaultConcurrency,
		maxRetries:  DefaultMaxRetries,
		logger:      slog.Default(),
		state:       StateIdle,
		crawlID:     uuid.NewString(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.filter == nil {
		// NewCrawled only fails for a nil store or a nested pre-filter.
		crawled, _ := filter.NewCrawled(nil, filter.NewExactStore()) //nolint:errcheck // see above
		s.filter = crawled
	}

	s.validate()
	if s.configErr == nil {
		s.seed()
	}
	s.seeds = nil
	return s
}

func (s *Spider) fail(option string, err error) {
	if s.configErr == nil {
		s.configErr = &ConfigError{Option: option, Err: err}
	}
}

func (s *Spider) validate() {
	if s.fetcher == nil {
		s.fail("fetcher", fmt.Errorf("%w: nil fetcher", ErrInvalidOption))
	}
	if s.concurrency < 1 {
		s.fail("concurrency", fmt.Errorf("%w: %d", ErrInvalidConcurrency, s.concurrency))
	}
	if s.maxRetries < 0 {
		s.fail("max_retries", fmt.Errorf("%w: max retries %d", ErrInvalidOption, s.maxRetries))
	}
	if s.maxPages < 0 {
		s.fail("max_pages", fmt.Errorf("%w: max pages %d", ErrInvalidOption, s.maxPages))
	}
	if s.crawlTimeout < 0 {
		s.fail("crawl_timeout", fmt.Errorf("%w: crawl timeout %s", ErrInvalidOption, s.crawlTimeout))
	}
	for _, req := range s.seeds {
		if _, err := req.Body(); err != nil {
			s.fail("seeds", fmt.Errorf("%w: %s: %w", ErrInvalidSeed, req, err))
		}
	}
	if err := filter.CheckNesting(s.filter); err != nil {
		s.fail("filter", err)
	}

	names := map[string]bool{spiderCheckpointName: true}
	for _, c := range filter.Components(s.filter) {
		name := c.CheckpointName()
		if names[name] {
			s.fail("filter", fmt.Errorf("%w: %q", ErrDuplicateCheckpoint, name))
		}
		names[name] = true
	}
}

func (s *Spider) seed() {
	accepted := make([]*model.Request, 0, len(s.seeds))
	for _, req := range s.seeds {
		if s.filter.Accept(req) {
			accepted = append(accepted, req)
			continue
		}
		s.stats.Rejected++
	}
	s.stats.Enqueued += len(accepted)
	s.frontier.push(accepted...)
}

// Run crawls until the frontier drains, the page limit is reached, or
// the crawl is stopped. It may be called again after a pause.
//
// Run returns a *ConfigError for an invalid configuration, ctx.Err() or
// ErrCrawlTimeout when the crawl stopped with work left, and nil when it
// completed or was paused with Pause.
func (s *Spider) Run(ctx context.Context) error {
	s.mu.Lock()
	crawlID := s.crawlID
	if s.configErr != nil {
		s.state = StateFailed
		s.mu.Unlock()
		s.logger.Error("invalid crawl configuration", "crawl_id", crawlID, "error", s.configErr)
		return s.configErr
	}
	switch s.state {
	case StateIdle, StatePaused:
	case StateRunning:
		s.mu.Unlock()
		return ErrRunning
	default:
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot run a %s spider", ErrInvalidState, state)
	}

	limit := 0
	if s.maxPages > 0 {
		limit = s.maxPages - s.stats.Dispatched
		if limit <= 0 {
			s.state = StateCompleted
			s.mu.Unlock()
			return nil
		}
	}
	s.frontier.start(limit)
	s.state = StateRunning
	s.paused = false
	s.mu.Unlock()

	started := time.Now()
	s.logger.Info("crawl started",
		"crawl_id", crawlID,
		"frontier", s.frontier.len(),
		"concurrency", s.concurrency,
	)

	runCtx := ctx
	if s.crawlTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeoutCause(ctx, s.crawlTimeout, ErrCrawlTimeout)
		defer cancel()
	}
	if runCtx.Err() != nil {
		s.frontier.stop()
	}
	stopWatch := context.AfterFunc(runCtx, s.frontier.stop)
	defer stopWatch()

	// In-flight fetches finish even when the crawl is cancelled; each is
	// bounded by its own request timeout.
	fetchCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	for range s.concurrency {
		g.Go(func() error {
			s.work(fetchCtx)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never return errors

	var err error
	s.mu.Lock()
	switch {
	case s.frontier.limitReached():
		s.state = StateCompleted
		s.logger.Info("page limit reached", "crawl_id", crawlID, "max_pages", s.maxPages)
	case s.frontier.len() == 0:
		s.state = StateCompleted
	default:
		s.state = StatePaused
		if !s.paused {
			err = ctx.Err()
			if cause := context.Cause(runCtx); errors.Is(cause, ErrCrawlTimeout) {
				err = ErrCrawlTimeout
			}
		}
	}
	state, stats := s.state, s.stats.clone()
	s.mu.Unlock()

	s.logger.Info("crawl stopped",
		"crawl_id", crawlID,
		"state", state.String(),
		"fetched", stats.Fetched,
		"failed", stats.Failed,
		"frontier", s.frontier.len(),
		"elapsed", time.Since(started).Round(time.Millisecond),
	)
	return err
}

// Pause stops dispatching new requests. Run returns once every in-flight
// request is finished. Pause has no effect unless the spider is running.
func (s *Spider) Pause() {
	s.mu.Lock()
	running := s.state == StateRunning
	if running {
		s.paused = true
	}
	s.mu.Unlock()

	if running {
		s.frontier.stop()
	}
}

func (s *Spider) work(ctx context.Context) {
	for {
		req, ok := s.frontier.take()
		if !ok {
			return
		}
		s.process(ctx, req)
		s.frontier.done()
	}
}

// process fetches req and enqueues the accepted links of the response.
// It runs sequentially within one worker.
func (s *Spider) process(ctx context.Context, req *model.Request) {
	s.mu.Lock()
	s.stats.Dispatched++
	s.mu.Unlock()

	s.logger.Debug("fetching", log.RequestAttr(req))

	resp, err := s.fetcher.Fetch(ctx, req)
	if err != nil {
		s.handleFailure(req, err)
		return
	}

	s.mu.Lock()
	s.stats.Fetched++
	s.stats.MaxGeneration = max(s.stats.MaxGeneration, req.Generation())
	s.mu.Unlock()

	if s.onResponse != nil {
		s.onResponse(resp)
	}
	if s.pipeline != nil {
		if err := s.pipeline.Execute(ctx, resp); err != nil {
			s.mu.Lock()
			s.stats.PipelineErrors++
			s.mu.Unlock()
		}
	}

	links, err := resp.Links()
	if err != nil {
		s.logger.Debug("link extraction failed", "url", resp.URL(), "error", err)
		return
	}

	var accepted []*model.Request
	rejected := 0
	for child := range links {
		if s.filter.Accept(child) {
			accepted = append(accepted, child)
			continue
		}
		rejected++
	}

	s.mu.Lock()
	s.stats.Enqueued += len(accepted)
	s.stats.Rejected += rejected
	s.mu.Unlock()

	s.frontier.push(accepted...)
}

func (s *Spider) handleFailure(req *model.Request, err error) {
	kind := FailureKind(err)

	if retryable(err) && req.Retries() < s.maxRetries {
		s.mu.Lock()
		s.stats.Retried++
		s.mu.Unlock()

		s.logger.Debug("retrying request", log.RequestAttr(req), "kind", kind, "error", err)
		// The filter already recorded this identity; the retry bypasses it.
		s.frontier.push(req.Retry())
		return
	}

	s.mu.Lock()
	s.stats.Failed++
	if s.stats.Failures == nil {
		s.stats.Failures = make(map[string]int)
	}
	s.stats.Failures[kind]++
	s.mu.Unlock()

	s.logger.Warn("request failed", log.RequestAttr(req), "kind", kind, "error", err)
	if s.onError != nil {
		s.onError(req, err)
	}
}

// FailureKind names the kind of a fetch error: connect, timeout, tls or
// other for transport errors, status for an HTTP status at or above the
// client threshold, and config for an invalid request.
func FailureKind(err error) string {
	if kind, ok := client.KindOf(err); ok {
		return kind.String()
	}
	var configErr *client.ConfigError
	switch {
	case errors.Is(err, client.ErrBadStatus):
		return FailureStatus
	case errors.As(err, &configErr):
		return FailureConfig
	case errors.Is(err, context.DeadlineExceeded):
		return client.KindTimeout.String()
	default:
		return client.KindOther.String()
	}
}

// retryable reports whether another attempt could succeed.
func retryable(err error) bool {
	var configErr *client.ConfigError
	return !errors.As(err, &configErr)
}

// State returns the lifecycle state.
func (s *Spider) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns a copy of the crawl counters.
func (s *Spider) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats.clone()
}

// CrawlID returns the crawl id.
func (s *Spider) CrawlID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.crawlID
}

// FrontierLen returns the number of queued requests.
func (s *Spider) FrontierLen() int {
	return s.frontier.len()
}

// InFlight returns the number of requests being fetched.
func (s *Spider) InFlight() int {
	return s.frontier.inFlightCount()
}

// Filter returns the filter the spider applies.
func (s *Spider) Filter() filter.Filter {
	return s.filter
}
