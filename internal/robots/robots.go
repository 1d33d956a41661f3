package robots

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"

	"github.com/nao1215/crawlkit/internal/client"
	"github.com/nao1215/crawlkit/internal/filter"
	"github.com/nao1215/crawlkit/internal/model"
)

// DefaultTTL is how long fetched rules are cached per host.
const DefaultTTL = 30 * time.Minute

// Fetcher fetches robots.txt. *client.Client implements it, so robots.txt
// goes through the same transport, proxy and politeness limits as pages.
type Fetcher interface {
	Fetch(ctx context.Context, req *model.Request) (*model.Response, error)
}

// Agent evaluates robots.txt rules with caching and host overrides.
//
// Robots errors fail open: when robots.txt cannot be fetched or parsed the
// host is treated as allowing everything until the cache entry expires. A
// 401 or 403 answer is not an error: it disallows the whole host.
type Agent struct {
	fetcher   Fetcher
	userAgent string
	ttl       time.Duration
	logger    *slog.Logger
	overrides map[string]struct{}
	now       func() time.Time

	group singleflight.Group

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	fetched time.Time
	// rules is nil when robots.txt could not be used.
	rules *robotstxt.RobotsData
}

// Option configures an Agent.
type Option func(*Agent)

// WithUserAgent sets the user agent whose group is evaluated. Rules for
// "*" apply when the file has no matching group.
func WithUserAgent(ua string) Option {
	return func(a *Agent) {
		a.userAgent = ua
	}
}

// WithTTL sets how long rules are cached per host.
func WithTTL(ttl time.Duration) Option {
	return func(a *Agent) {
		if ttl > 0 {
			a.ttl = ttl
		}
	}
}

// WithOverrides lists hosts whose robots.txt is ignored.
func WithOverrides(hosts ...string) Option {
	return func(a *Agent) {
		for _, host := range hosts {
			host = strings.ToLower(strings.TrimSpace(host))
			if host == "" {
				continue
			}
			a.overrides[host] = struct{}{}
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAgent creates an Agent that fetches robots.txt with fetcher.
func NewAgent(fetcher Fetcher, opts ...Option) *Agent {
	a := &Agent{
		fetcher:   fetcher,
		ttl:       DefaultTTL,
		logger:    slog.Default(),
		overrides: make(map[string]struct{}),
		now:       time.Now,
		cache:     make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Allowed reports whether rawURL may be crawled.
func (a *Agent) Allowed(ctx context.Context, rawURL string) bool {
	target, err := url.Parse(rawURL)
	if err != nil || !target.IsAbs() {
		return false
	}

	if _, ok := a.overrides[strings.ToLower(target.Hostname())]; ok {
		return true
	}

	rules := a.rules(ctx, target)
	if rules == nil {
		return true
	}

	return rules.TestAgent(target.RequestURI(), a.userAgent)
}

// Filter returns a filter that accepts the requests robots.txt allows.
func (a *Agent) Filter() filter.Filter {
	return filter.Func(func(req *model.Request) bool {
		return a.Allowed(context.Background(), req.EffectiveURL())
	})
}

func (a *Agent) rules(ctx context.Context, target *url.URL) *robotstxt.RobotsData {
	key := strings.ToLower(target.Scheme + "://" + target.Host)

	a.mu.RLock()
	entry, ok := a.cache[key]
	a.mu.RUnlock()
	if ok && a.now().Sub(entry.fetched) < a.ttl {
		return entry.rules
	}

	// Concurrent workers hitting a new host share one robots.txt fetch.
	v, _, _ := a.group.Do(key, func() (any, error) {
		rules, err := a.fetch(ctx, key+"/robots.txt")
		if err != nil {
			a.logger.Debug("robots.txt unavailable, allowing all", "host", target.Host, "error", err)
		}
		a.mu.Lock()
		a.cache[key] = cacheEntry{fetched: a.now(), rules: rules}
		a.mu.Unlock()
		return rules, nil
	})
	rules, _ := v.(*robotstxt.RobotsData) //nolint:errcheck // nil means allow all
	return rules
}

func (a *Agent) fetch(ctx context.Context, robotsURL string) (*robotstxt.RobotsData, error) {
	req, err := model.NewRequest(robotsURL)
	if err != nil {
		return nil, fmt.Errorf("build robots request: %w", err)
	}

	status, body := 0, []byte(nil)
	resp, err := a.fetcher.Fetch(ctx, req)
	var statusErr *client.StatusError
	switch {
	case errors.As(err, &statusErr) && statusErr.Status < http.StatusInternalServerError:
		// 401 and 403 forbid crawling; robotstxt decides from the status.
		status = statusErr.Status
	case err != nil:
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	default:
		status, body = resp.Status(), resp.Body()
	}

	data, err := robotstxt.FromStatusAndBytes(status, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}
	return data, nil
}
