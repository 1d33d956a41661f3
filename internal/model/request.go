package model

import (
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Request describes a single HTTP fetch.
//
// A Request is immutable once NewRequest returns. Accessors hand out copies
// of maps and headers, so callers cannot change a request that is already
// queued in a frontier or recorded in a filter.
type Request struct {
	// url is the request URL as parsed, without Params merged in.
	url *url.URL

	method     string
	headers    http.Header
	cookies    map[string]string
	params     url.Values
	data       any
	dataFormat DataFormat
	timeout    time.Duration

	// generation is the hop distance from a seed request.
	generation int

	// retries counts how many times this request was re-enqueued after a failure.
	retries int

	// identity is the normalized effective URL, computed once at construction.
	identity string
}

// RequestOption configures a Request under construction.
type RequestOption func(*Request)

// WithMethod sets the HTTP method. The default is GET.
func WithMethod(method string) RequestOption {
	return func(r *Request) {
		r.method = strings.ToUpper(strings.TrimSpace(method))
	}
}

// WithHeader adds a header value.
func WithHeader(key, value string) RequestOption {
	return func(r *Request) {
		r.headers.Add(key, value)
	}
}

// WithHeaders adds all headers in h.
func WithHeaders(h map[string]string) RequestOption {
	return func(r *Request) {
		for k, v := range h {
			r.headers.Set(k, v)
		}
	}
}

// WithCookie sets a cookie sent with the request.
func WithCookie(name, value string) RequestOption {
	return func(r *Request) {
		r.cookies[name] = value
	}
}

// WithParams adds query parameters. They are merged into the URL query
// when the request is sent and take part in the request identity.
func WithParams(params url.Values) RequestOption {
	return func(r *Request) {
		for k, vs := range params {
			for _, v := range vs {
				r.params.Add(k, v)
			}
		}
	}
}

// WithForm sets a form-encoded body. data may be url.Values,
// map[string]string, map[string][]string or a pre-encoded string.
func WithForm(data any) RequestOption {
	return WithData(DataFormatForm, data)
}

// WithJSON sets a JSON body. data is marshaled with encoding/json;
// json.RawMessage and []byte are sent verbatim.
func WithJSON(data any) RequestOption {
	return WithData(DataFormatJSON, data)
}

// WithData sets the body and its format. Unknown formats are accepted here
// and rejected by the client before any network activity.
func WithData(format DataFormat, data any) RequestOption {
	return func(r *Request) {
		r.dataFormat = format
		r.data = data
	}
}

// WithTimeout sets the per-request timeout. Zero means the client default.
func WithTimeout(d time.Duration) RequestOption {
	return func(r *Request) {
		r.timeout = d
	}
}

// WithGeneration sets the hop distance from a seed.
func WithGeneration(g int) RequestOption {
	return func(r *Request) {
		r.generation = g
	}
}

// NewRequest builds a Request for rawURL.
// The URL must be absolute and use http or https.
func NewRequest(rawURL string, opts ...RequestOption) (*Request, error) {
	u, err := parseAbsolute(rawURL)
	if err != nil {
		return nil, err
	}

	r := &Request{
		url:     u,
		method:  http.MethodGet,
		headers: make(http.Header),
		cookies: make(map[string]string),
		params:  make(url.Values),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.method == "" {
		r.method = http.MethodGet
	}
	if r.generation < 0 {
		return nil, ErrInvalidGeneration
	}

	r.identity = normalize(r.effectiveURL())
	return r, nil
}

// URL returns the request URL without Params merged in.
func (r *Request) URL() string {
	return r.url.String()
}

// EffectiveURL returns the URL that is actually sent, with Params merged
// into the query string.
func (r *Request) EffectiveURL() string {
	return r.effectiveURL().String()
}

func (r *Request) effectiveURL() *url.URL {
	u := *r.url
	if len(r.params) == 0 {
		return &u
	}
	q := u.Query()
	for k, vs := range r.params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return &u
}

// Host returns the lowercased host (with port, if any) of the request URL.
func (r *Request) Host() string {
	return strings.ToLower(r.url.Host)
}

// Method returns the HTTP method.
func (r *Request) Method() string {
	return r.method
}

// Headers returns a copy of the request headers.
func (r *Request) Headers() http.Header {
	return r.headers.Clone()
}

// Cookies returns a copy of the request cookies.
func (r *Request) Cookies() map[string]string {
	return maps.Clone(r.cookies)
}

// Params returns a copy of the query parameters.
func (r *Request) Params() url.Values {
	out := make(url.Values, len(r.params))
	for k, vs := range r.params {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

// Data returns the body payload as given to WithData.
func (r *Request) Data() any {
	return r.data
}

// DataFormat returns the body format.
func (r *Request) DataFormat() DataFormat {
	return r.dataFormat
}

// Timeout returns the per-request timeout; zero means the client default.
func (r *Request) Timeout() time.Duration {
	return r.timeout
}

// Generation returns the hop distance from a seed request.
func (r *Request) Generation() int {
	return r.generation
}

// Retries returns how many times the request has been retried.
func (r *Request) Retries() int {
	return r.retries
}

// Identity returns the dedup key of the request.
func (r *Request) Identity() string {
	return r.identity
}

// String implements fmt.Stringer.
func (r *Request) String() string {
	return r.method + " " + r.EffectiveURL()
}

// Child returns a GET request for a link discovered on the response to r.
// The child is one generation further from the seed than r.
func (r *Request) Child(rawURL string) (*Request, error) {
	return NewRequest(rawURL, WithGeneration(r.generation+1))
}

// Retry returns a copy of r with the retry counter incremented.
func (r *Request) Retry() *Request {
	c := r.clone()
	c.retries++
	return c
}

func (r *Request) clone() *Request {
	u := *r.url
	return &Request{
		url:        &u,
		method:     r.method,
		headers:    r.headers.Clone(),
		cookies:    maps.Clone(r.cookies),
		params:     r.Params(),
		data:       r.data,
		dataFormat: r.dataFormat,
		timeout:    r.timeout,
		generation: r.generation,
		retries:    r.retries,
		identity:   r.identity,
	}
}

// Body encodes the payload according to the data format.
// It returns a nil body for DataFormatNone.
func (r *Request) Body() ([]byte, error) {
	switch r.dataFormat {
	case DataFormatNone:
		return nil, nil
	case DataFormatForm:
		return encodeForm(r.data)
	case DataFormatJSON:
		return encodeJSON(r.data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDataFormat, r.dataFormat)
	}
}

func encodeForm(data any) ([]byte, error) {
	switch v := data.(type) {
	case nil:
		return nil, nil
	case url.Values:
		return []byte(v.Encode()), nil
	case map[string][]string:
		return []byte(url.Values(v).Encode()), nil
	case map[string]string:
		values := make(url.Values, len(v))
		for k, s := range v {
			values.Set(k, s)
		}
		return []byte(values.Encode()), nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("%w: form data of type %T", ErrUnsupportedData, data)
	}
}

func encodeJSON(data any) ([]byte, error) {
	switch v := data.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return v, nil
	case []byte:
		return v, nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedData, err)
		}
		return b, nil
	}
}
