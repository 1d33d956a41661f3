package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"strings"
	"time"

	"github.com/nao1215/crawlkit/internal/decode"
	"github.com/nao1215/crawlkit/internal/model"
)

const (
	// DefaultUserAgent is sent when no user agent is configured.
	DefaultUserAgent = "crawlkit/1.0"

	// DefaultTimeout applies to requests without their own timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultStatusThreshold is the lowest status treated as a failure.
	DefaultStatusThreshold = 400
)

// siteConfig holds headers and cookies sent to one host.
type siteConfig struct {
	headers map[string]string
	cookies map[string]string
}

// Client fetches requests through a Transport.
type Client struct {
	transport Transport
	userAgent string
	timeout   time.Duration
	threshold int
	headers   http.Header
	sites     map[string]siteConfig
	decoder   decode.Decoder
	logger    *slog.Logger

	delay        time.Duration
	rateRequests int
	rateWindow   time.Duration
	limiter      *hostLimiter
}

// Option configures a Client.
type Option func(*Client)

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithDefaultTimeout sets the timeout for requests that carry none.
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithStatusThreshold sets the lowest status code treated as a failure.
func WithStatusThreshold(status int) Option {
	return func(c *Client) {
		if status > 0 {
			c.threshold = status
		}
	}
}

// WithHeaders sets headers sent with every request.
func WithHeaders(headers map[string]string) Option {
	return func(c *Client) {
		for k, v := range headers {
			c.headers.Set(k, v)
		}
	}
}

// WithSiteHeaders sets headers and a raw cookie string ("a=1; b=2") sent
// only to host.
func WithSiteHeaders(host string, headers map[string]string, cookie string) Option {
	return func(c *Client) {
		sc := siteConfig{
			headers: maps.Clone(headers),
			cookies: make(map[string]string),
		}
		if cookie != "" {
			if parsed, err := http.ParseCookie(cookie); err == nil {
				for _, ck := range parsed {
					sc.cookies[ck.Name] = ck.Value
				}
			}
		}
		c.sites[strings.ToLower(host)] = sc
	}
}

// WithRateLimit allows at most requests per window to each host.
func WithRateLimit(requests int, window time.Duration) Option {
	return func(c *Client) {
		c.rateRequests = requests
		c.rateWindow = window
	}
}

// WithDelay sets the minimum delay between requests to the same host.
func WithDelay(d time.Duration) Option {
	return func(c *Client) {
		c.delay = d
	}
}

// WithDecoder sets the decoder attached to every Response.
func WithDecoder(d decode.Decoder) Option {
	return func(c *Client) {
		if d != nil {
			c.decoder = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New returns a Client executing calls through t.
func New(t Transport, opts ...Option) *Client {
	c := &Client{
		transport: t,
		userAgent: DefaultUserAgent,
		timeout:   DefaultTimeout,
		threshold: DefaultStatusThreshold,
		headers:   make(http.Header),
		sites:     make(map[string]siteConfig),
		decoder:   decode.Charset{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.limiter = newHostLimiter(c.delay, c.rateRequests, c.rateWindow)
	return c
}

// Fetch executes req and returns its Response.
//
// The request body is encoded before anything else; an unknown data format
// or an unencodable payload returns a *ConfigError without touching the
// network. Transport failures return a *TransportError and statuses at or
// above the threshold a *StatusError.
func (c *Client) Fetch(ctx context.Context, req *model.Request) (*model.Response, error) {
	if req == nil {
		return nil, ErrNilRequest
	}

	call, err := c.buildCall(req)
	if err != nil {
		return nil, err
	}

	if err := c.limiter.wait(ctx, req.Host()); err != nil {
		return nil, &TransportError{Kind: classifyContext(err), URL: call.URL, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, call.Timeout)
	defer cancel()

	start := time.Now()
	res, err := c.transport.Execute(ctx, call)
	elapsed := time.Since(start)
	if err != nil {
		terr := c.transportError(ctx, call.URL, err)
		c.logger.Debug("fetch failed",
			slog.String("url", call.URL),
			slog.String("kind", terr.Kind.String()),
			slog.Duration("elapsed", elapsed),
			slog.String("error", terr.Err.Error()))
		return nil, terr
	}

	finalURL := res.FinalURL
	if finalURL == "" {
		finalURL = call.URL
	}
	if res.Status >= c.threshold {
		return nil, &StatusError{Status: res.Status, URL: finalURL}
	}

	c.logger.Debug("fetched",
		slog.String("url", call.URL),
		slog.Int("status", res.Status),
		slog.Int("bytes", len(res.Body)),
		slog.Duration("elapsed", elapsed))

	return model.NewResponse(req, res.Status, res.Header, res.Body, finalURL,
		model.WithDecoder(c.decoder),
		model.WithElapsed(elapsed),
	), nil
}

// buildCall applies client defaults, site settings and the request's own
// configuration, in increasing order of precedence.
func (c *Client) buildCall(req *model.Request) (Call, error) {
	if !req.DataFormat().Valid() {
		return Call{}, &ConfigError{
			URL: req.URL(),
			Err: fmt.Errorf("%w: %s", model.ErrUnknownDataFormat, req.DataFormat()),
		}
	}
	body, err := req.Body()
	if err != nil {
		return Call{}, &ConfigError{URL: req.URL(), Err: err}
	}

	header := c.headers.Clone()
	header.Set("User-Agent", c.userAgent)
	cookies := make(map[string]string)

	if site, ok := c.sites[req.Host()]; ok {
		for k, v := range site.headers {
			header.Set(k, v)
		}
		maps.Copy(cookies, site.cookies)
	}

	for k, vs := range req.Headers() {
		header.Del(k)
		for _, v := range vs {
			header.Add(k, v)
		}
	}
	maps.Copy(cookies, req.Cookies())

	if ct := req.DataFormat().ContentType(); ct != "" && header.Get("Content-Type") == "" {
		header.Set("Content-Type", ct)
	}

	timeout := req.Timeout()
	if timeout <= 0 {
		timeout = c.timeout
	}

	return Call{
		Method:  req.Method(),
		URL:     req.EffectiveURL(),
		Header:  header,
		Cookies: cookies,
		Timeout: timeout,
		Body:    body,
	}, nil
}

// transportError normalizes err to a *TransportError. A deadline hit by
// the per-request context is always a timeout.
func (c *Client) transportError(ctx context.Context, rawURL string, err error) *TransportError {
	var te *TransportError
	if errors.As(err, &te) {
		out := *te
		if out.URL == "" {
			out.URL = rawURL
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			out.Kind = KindTimeout
		}
		return &out
	}

	kind := classifyContext(err)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &TransportError{Kind: kind, URL: rawURL, Err: err}
}

func classifyContext(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindOther
}
