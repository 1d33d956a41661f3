package client

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/crawlkit/internal/model"
)

func mustRequest(t *testing.T, rawURL string, opts ...model.RequestOption) *model.Request {
	t.Helper()

	req, err := model.NewRequest(rawURL, opts...)
	if err != nil {
		t.Fatalf("NewRequest(%q): %v", rawURL, err)
	}
	return req
}

// recorder is a fake transport that records calls and replies with a
// fixed result or error.
type recorder struct {
	calls  atomic.Int32
	last   Call
	result *Result
	err    error
}

func (r *recorder) Execute(_ context.Context, call Call) (*Result, error) {
	r.calls.Add(1)
	r.last = call
	if r.err != nil {
		return nil, r.err
	}
	if r.result != nil {
		return r.result, nil
	}
	return &Result{Status: http.StatusOK, Header: http.Header{"Content-Type": {"text/html"}}, Body: []byte("<html></html>")}, nil
}

func TestFetchBuildsCall(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	c := New(rec,
		WithUserAgent("test-agent"),
		WithHeaders(map[string]string{"Accept-Language": "en", "X-Default": "d"}),
		WithSiteHeaders("example.com", map[string]string{"X-Default": "site", "X-Site": "s"}, "session=abc; theme=dark"),
		WithDefaultTimeout(5*time.Second),
	)

	req := mustRequest(t, "http://example.com/search?q=go",
		model.WithMethod("post"),
		model.WithParams(map[string][]string{"page": {"2"}}),
		model.WithHeader("X-Site", "request"),
		model.WithCookie("theme", "light"),
		model.WithForm(map[string]string{"name": "gopher"}),
	)

	resp, err := c.Fetch(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Request() != req {
		t.Error("response should reference its request")
	}

	call := rec.last
	if call.Method != http.MethodPost {
		t.Errorf("expected POST, got %s", call.Method)
	}
	if !strings.Contains(call.URL, "page=2") || !strings.Contains(call.URL, "q=go") {
		t.Errorf("params should be merged into the URL, got %s", call.URL)
	}
	if call.Timeout != 5*time.Second {
		t.Errorf("expected default timeout, got %v", call.Timeout)
	}

	headerTests := map[string]string{
		"User-Agent":      "test-agent",
		"Accept-Language": "en",
		"X-Default":       "site",
		"X-Site":          "request",
		"Content-Type":    "application/x-www-form-urlencoded",
	}
	for k, want := range headerTests {
		if got := call.Header.Get(k); got != want {
			t.Errorf("header %s = %q, want %q", k, got, want)
		}
	}

	if call.Cookies["session"] != "abc" || call.Cookies["theme"] != "light" {
		t.Errorf("unexpected cookies %v", call.Cookies)
	}
	if string(call.Body) != "name=gopher" {
		t.Errorf("unexpected body %q", call.Body)
	}
}

func TestFetchJSONBody(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	c := New(rec)
	req := mustRequest(t, "http://example.com/api", model.WithMethod("POST"), model.WithJSON(map[string]int{"n": 1}))

	if _, err := c.Fetch(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if rec.last.Header.Get("Content-Type") != "application/json" {
		t.Errorf("unexpected content type %q", rec.last.Header.Get("Content-Type"))
	}
	if string(rec.last.Body) != `{"n":1}` {
		t.Errorf("unexpected body %q", rec.last.Body)
	}
}

func TestFetchConfigErrorsBeforeNetwork(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		opts    []model.RequestOption
		wantErr error
	}{
		{
			name:    "unknown data format",
			opts:    []model.RequestOption{model.WithData(model.DataFormat(42), "x")},
			wantErr: model.ErrUnknownDataFormat,
		},
		{
			name:    "unencodable form",
			opts:    []model.RequestOption{model.WithForm(3.14)},
			wantErr: model.ErrUnsupportedData,
		},
		{
			name:    "unencodable json",
			opts:    []model.RequestOption{model.WithJSON(make(chan int))},
			wantErr: model.ErrUnsupportedData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := &recorder{}
			c := New(rec)
			resp, err := c.Fetch(context.Background(), mustRequest(t, "http://example.com/", tt.opts...))

			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) || !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected ConfigError wrapping %v, got %v", tt.wantErr, err)
			}
			if resp != nil {
				t.Error("no response should be returned")
			}
			if rec.calls.Load() != 0 {
				t.Error("transport must not be called for a configuration error")
			}
		})
	}
}

func TestFetchTransportErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		wantKind Kind
		wantIs   error
	}{
		{name: "connect", err: &TransportError{Kind: KindConnect, Err: errors.New("refused")}, wantKind: KindConnect, wantIs: ErrConnect},
		{name: "tls", err: &TransportError{Kind: KindTLS, Err: errors.New("bad cert")}, wantKind: KindTLS, wantIs: ErrTLS},
		{name: "plain error", err: errors.New("boom"), wantKind: KindOther, wantIs: ErrTransport},
		{name: "deadline", err: context.DeadlineExceeded, wantKind: KindTimeout, wantIs: ErrTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := New(&recorder{err: tt.err})
			resp, err := c.Fetch(context.Background(), mustRequest(t, "http://example.com/"))
			if resp != nil {
				t.Error("no response should be returned on error")
			}
			if !errors.Is(err, tt.wantIs) || !errors.Is(err, ErrTransport) {
				t.Fatalf("expected %v, got %v", tt.wantIs, err)
			}
			kind, ok := KindOf(err)
			if !ok || kind != tt.wantKind {
				t.Errorf("expected kind %s, got %s", tt.wantKind, kind)
			}
		})
	}
}

func TestFetchPerRequestTimeout(t *testing.T) {
	t.Parallel()

	slow := TransportFunc(func(ctx context.Context, _ Call) (*Result, error) {
		<-ctx.Done()
		return nil, &TransportError{Kind: KindOther, Err: ctx.Err()}
	})
	c := New(slow)

	start := time.Now()
	_, err := c.Fetch(context.Background(), mustRequest(t, "http://example.com/", model.WithTimeout(20*time.Millisecond)))
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("request timeout was not applied")
	}
}

func TestFetchStatusThreshold(t *testing.T) {
	t.Parallel()

	notFound := &Result{Status: http.StatusNotFound, Header: http.Header{}, Body: []byte("missing")}

	c := New(&recorder{result: notFound})
	_, err := c.Fetch(context.Background(), mustRequest(t, "http://example.com/missing"))
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Status != http.StatusNotFound {
		t.Fatalf("expected StatusError 404, got %v", err)
	}
	if !errors.Is(err, ErrBadStatus) {
		t.Error("StatusError should match ErrBadStatus")
	}

	lenient := New(&recorder{result: notFound}, WithStatusThreshold(500))
	resp, err := lenient.Fetch(context.Background(), mustRequest(t, "http://example.com/missing"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status() != http.StatusNotFound {
		t.Errorf("expected 404 response, got %d", resp.Status())
	}
}

func TestFetchFinalURL(t *testing.T) {
	t.Parallel()

	rec := &recorder{result: &Result{
		Status:   http.StatusOK,
		Header:   http.Header{"Content-Type": {"text/html"}},
		Body:     []byte(`<a href="next">next</a>`),
		FinalURL: "http://example.com/moved/here",
	}}
	c := New(rec)

	resp, err := c.Fetch(context.Background(), mustRequest(t, "http://example.com/old"))
	if err != nil {
		t.Fatal(err)
	}
	if resp.URL() != "http://example.com/moved/here" {
		t.Errorf("unexpected final URL %q", resp.URL())
	}
	seq, err := resp.Links()
	if err != nil {
		t.Fatal(err)
	}
	for link := range seq {
		if link.URL() != "http://example.com/moved/next" {
			t.Errorf("link should resolve against the final URL, got %s", link.URL())
		}
	}
}

func TestFetchDelay(t *testing.T) {
	t.Parallel()

	c := New(&recorder{}, WithDelay(50*time.Millisecond))
	req := mustRequest(t, "http://example.com/")

	start := time.Now()
	for range 3 {
		if _, err := c.Fetch(context.Background(), req); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("expected at least 100ms between three requests, got %v", elapsed)
	}
}

func TestFetchRateLimitCancelled(t *testing.T) {
	t.Parallel()

	c := New(&recorder{}, WithRateLimit(1, time.Hour))
	req := mustRequest(t, "http://example.com/")
	if _, err := c.Fetch(context.Background(), req); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Fetch(ctx, req); !errors.Is(err, ErrTransport) {
		t.Errorf("expected a transport error while waiting for the limiter, got %v", err)
	}
}

func TestFetchNilRequest(t *testing.T) {
	t.Parallel()

	if _, err := New(&recorder{}).Fetch(context.Background(), nil); !errors.Is(err, ErrNilRequest) {
		t.Errorf("expected ErrNilRequest, got %v", err)
	}
}
