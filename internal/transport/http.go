package transport

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/nao1215/crawlkit/internal/client"
	"golang.org/x/net/proxy"
	"golang.org/x/net/publicsuffix"
)

const (
	// DefaultMaxBodySize caps response bodies.
	DefaultMaxBodySize int64 = 10 * 1024 * 1024

	// DefaultMaxRedirects is the longest redirect chain followed.
	DefaultMaxRedirects = 10

	// DefaultDialTimeout bounds connection setup.
	DefaultDialTimeout = 30 * time.Second

	acceptEncoding = "gzip, deflate, br"
)

// HTTP is a client.Transport backed by net/http.
type HTTP struct {
	client      *http.Client
	maxBodySize int64
	proxyAddr   string
}

type options struct {
	proxyAddr           string
	dialTimeout         time.Duration
	maxBodySize         int64
	maxRedirects        int
	maxIdleConns        int
	maxIdleConnsPerHost int
	insecureSkipVerify  bool
	logger              *slog.Logger
}

// Option configures an HTTP transport.
type Option func(*options)

// WithSOCKS5Proxy routes every connection through the SOCKS5 proxy at addr
// ("host:port").
func WithSOCKS5Proxy(addr string) Option {
	return func(o *options) {
		o.proxyAddr = addr
	}
}

// WithDialTimeout bounds connection setup.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.dialTimeout = d
		}
	}
}

// WithMaxBodySize caps response bodies; larger bodies fail the call.
func WithMaxBodySize(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxBodySize = n
		}
	}
}

// WithMaxRedirects sets the longest redirect chain followed. Past the limit
// the last redirect response is returned as is.
func WithMaxRedirects(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxRedirects = n
		}
	}
}

// WithMaxIdleConns sets the connection pool limits.
func WithMaxIdleConns(total, perHost int) Option {
	return func(o *options) {
		if total > 0 {
			o.maxIdleConns = total
		}
		if perHost > 0 {
			o.maxIdleConnsPerHost = perHost
		}
	}
}

// WithInsecureSkipVerify disables certificate verification. Onion services
// usually serve self-signed certificates; the onion address authenticates
// the service instead.
func WithInsecureSkipVerify(skip bool) Option {
	return func(o *options) {
		o.insecureSkipVerify = skip
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New returns an HTTP transport. It validates the proxy address but does
// not contact the proxy.
func New(opts ...Option) (*HTTP, error) {
	o := options{
		dialTimeout:         DefaultDialTimeout,
		maxBodySize:         DefaultMaxBodySize,
		maxRedirects:        DefaultMaxRedirects,
		maxIdleConns:        100,
		maxIdleConnsPerHost: 4,
		logger:              slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	dialer := &net.Dialer{Timeout: o.dialTimeout, KeepAlive: 30 * time.Second}
	dialContext := dialer.DialContext

	if o.proxyAddr != "" {
		if !isValidProxyAddress(o.proxyAddr) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidProxyAddress, o.proxyAddr)
		}
		socks, err := proxy.SOCKS5("tcp", o.proxyAddr, nil, dialer)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		cd, ok := socks.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("SOCKS5 dialer does not support contexts")
		}
		dialContext = cd.DialContext
	}

	transport := &http.Transport{
		DialContext:           dialContext,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: o.insecureSkipVerify}, //nolint:gosec // opt-in for onion services
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          o.maxIdleConns,
		MaxIdleConnsPerHost:   o.maxIdleConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: time.Second,
		// Bodies are decoded in readBody, which also understands br.
		DisableCompression: true,
	}

	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List}) //nolint:errcheck // cookiejar.New never fails

	maxRedirects, logger := o.maxRedirects, o.logger
	return &HTTP{
		client: &http.Client{
			Transport: transport,
			Jar:       jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					logger.Debug("redirect limit reached",
						slog.String("url", req.URL.String()),
						slog.Int("limit", maxRedirects))
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		maxBodySize: o.maxBodySize,
		proxyAddr:   o.proxyAddr,
	}, nil
}

// ProxyAddress returns the SOCKS5 proxy address, or "" for direct
// connections.
func (h *HTTP) ProxyAddress() string {
	return h.proxyAddr
}

// Close releases idle connections.
func (h *HTTP) Close() {
	h.client.CloseIdleConnections()
}

// Execute implements client.Transport.
func (h *HTTP) Execute(ctx context.Context, call client.Call) (*client.Result, error) {
	if call.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, call.Timeout)
		defer cancel()
	}

	var body io.Reader
	if len(call.Body) > 0 {
		body = bytes.NewReader(call.Body)
	}
	method := call.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, call.URL, body)
	if err != nil {
		return nil, &client.TransportError{Kind: client.KindOther, URL: call.URL, Err: err}
	}
	for k, vs := range call.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", acceptEncoding)
	}
	for name, value := range call.Cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, &client.TransportError{Kind: Classify(err), URL: call.URL, Err: err}
	}
	defer resp.Body.Close()

	data, err := h.readBody(resp)
	if err != nil {
		return nil, &client.TransportError{Kind: Classify(err), URL: call.URL, Err: err}
	}

	finalURL := call.URL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	header := resp.Header.Clone()
	// The body handed on is decoded, so its encoding headers no longer apply.
	if header.Get("Content-Encoding") != "" {
		header.Del("Content-Encoding")
		header.Del("Content-Length")
	}

	return &client.Result{
		Status:   resp.StatusCode,
		Header:   header,
		Body:     data,
		FinalURL: finalURL,
	}, nil
}

func (h *HTTP) readBody(resp *http.Response) ([]byte, error) {
	reader := io.Reader(resp.Body)

	switch enc := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))); enc {
	case "", "identity":
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "deflate":
		fl := flate.NewReader(resp.Body)
		defer fl.Close()
		reader = fl
	case "br":
		reader = brotli.NewReader(resp.Body)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, enc)
	}

	data, err := io.ReadAll(io.LimitReader(reader, h.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > h.maxBodySize {
		return nil, fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, h.maxBodySize)
	}
	return data, nil
}

// isValidProxyAddress checks for a "host:port" address with a port in
// 1-65535.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 1 && n <= 65535
}
