package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"iter"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/nao1215/crawlkit/internal/decode"
	"golang.org/x/net/html"
)

// linkSelector matches every element whose attribute may reference another page
// or resource.
const linkSelector = "a[href], area[href], link[href], img[src], script[src], iframe[src], frame[src]"

// skippedSchemes are link prefixes that never lead to a fetchable page.
var skippedSchemes = []string{"javascript:", "mailto:", "tel:", "data:"}

// Response is the result of fetching a Request.
//
// Responses are produced by the client only. The body is decoded to text
// and parsed into a document on first access; both results are cached for
// the lifetime of the Response and invalidated by SetEncoding.
type Response struct {
	request *Request
	status  int
	header  http.Header
	body    []byte
	url     string
	elapsed time.Duration
	decoder decode.Decoder

	// mu guards the lazily decoded fields below.
	mu       sync.Mutex
	decoded  bool
	text     string
	encoding string
	override string
	decErr   error
	doc      *goquery.Document
	docErr   error
}

// ResponseOption configures a Response under construction.
type ResponseOption func(*Response)

// WithDecoder sets the decoder used for Text and Document.
func WithDecoder(d decode.Decoder) ResponseOption {
	return func(r *Response) {
		if d != nil {
			r.decoder = d
		}
	}
}

// WithElapsed records how long the fetch took.
func WithElapsed(d time.Duration) ResponseOption {
	return func(r *Response) {
		r.elapsed = d
	}
}

// NewResponse builds a Response for req. finalURL is the URL after
// redirects; when empty the effective request URL is used.
func NewResponse(req *Request, status int, header http.Header, body []byte, finalURL string, opts ...ResponseOption) *Response {
	if header == nil {
		header = make(http.Header)
	}
	if finalURL == "" && req != nil {
		finalURL = req.EffectiveURL()
	}

	r := &Response{
		request: req,
		status:  status,
		header:  header,
		body:    body,
		url:     finalURL,
		decoder: decode.Charset{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Request returns the request this response answers.
func (r *Response) Request() *Request {
	return r.request
}

// Status returns the HTTP status code.
func (r *Response) Status() int {
	return r.status
}

// Header returns the response headers.
func (r *Response) Header() http.Header {
	return r.header
}

// Body returns the raw body bytes.
func (r *Response) Body() []byte {
	return r.body
}

// URL returns the final URL after redirects.
func (r *Response) URL() string {
	return r.url
}

// Elapsed returns the fetch duration.
func (r *Response) Elapsed() time.Duration {
	return r.elapsed
}

// ContentType returns the media type of the body without parameters.
func (r *Response) ContentType() string {
	ct := r.header.Get("Content-Type")
	if ct == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.SplitN(ct, ";", 2)[0]))
	}
	return mediaType
}

// Hash returns the hex SHA-256 of the body, or "" for an empty body.
func (r *Response) Hash() string {
	if len(r.body) == 0 {
		return ""
	}
	sum := sha256.Sum256(r.body)
	return hex.EncodeToString(sum[:])
}

// IsHTML reports whether the body is an HTML document. Without a
// Content-Type header the body is sniffed.
func (r *Response) IsHTML() bool {
	ct := r.ContentType()
	if ct == "" {
		ct, _, _ = strings.Cut(http.DetectContentType(r.body), ";")
	}
	return ct == "text/html" || ct == "application/xhtml+xml"
}

// Text returns the body decoded to UTF-8.
func (r *Response) Text() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decodeLocked()
	return r.text, r.decErr
}

// Encoding returns the name of the encoding used to decode the body.
func (r *Response) Encoding() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decodeLocked()
	return r.encoding
}

// SetEncoding overrides encoding detection. Cached text and document are
// discarded and rebuilt on next access.
func (r *Response) SetEncoding(name string) error {
	canonical, err := decode.Canonical(name)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.override = canonical
	r.decoded = false
	r.text, r.encoding, r.decErr = "", "", nil
	r.doc, r.docErr = nil, nil
	return nil
}

func (r *Response) decodeLocked() {
	if r.decoded {
		return
	}
	r.decoded = true

	if r.override != "" {
		r.encoding = r.override
		r.text, r.decErr = r.decoder.DecodeAs(r.body, r.override)
		return
	}
	r.text, r.encoding, r.decErr = r.decoder.Decode(r.body, r.header.Get("Content-Type"))
}

// Document returns the parsed HTML document.
func (r *Response) Document() (*goquery.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.doc != nil || r.docErr != nil {
		return r.doc, r.docErr
	}

	r.decodeLocked()
	if r.decErr != nil {
		r.docErr = r.decErr
		return nil, r.docErr
	}

	root, err := html.Parse(strings.NewReader(r.text))
	if err != nil {
		r.docErr = fmt.Errorf("parse document: %w", err)
		return nil, r.docErr
	}
	r.doc = goquery.NewDocumentFromNode(root)
	if u, err := url.Parse(r.url); err == nil {
		r.doc.Url = u
	}
	return r.doc, nil
}

// Title returns the trimmed <title> text, or "" when there is none.
func (r *Response) Title() string {
	if !r.IsHTML() {
		return ""
	}
	doc, err := r.Document()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// Links returns the requests for every link found in the document.
//
// Links are resolved against the final response URL (or a <base href>),
// so relative links on a redirected page point where the browser would
// go. Each link is yielded once per iteration. The sequence is finite and
// may be ranged over again; it is recomputed from the cached document.
// Non-HTML responses yield nothing.
func (r *Response) Links() (iter.Seq[*Request], error) {
	if !r.IsHTML() {
		return func(func(*Request) bool) {}, nil
	}

	doc, err := r.Document()
	if err != nil {
		return nil, err
	}

	base, err := url.Parse(r.url)
	if err != nil {
		return nil, fmt.Errorf("%w: response URL %q", ErrInvalidURL, r.url)
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if b, err := base.Parse(strings.TrimSpace(href)); err == nil {
			base = b
		}
	}

	return func(yield func(*Request) bool) {
		seen := make(map[string]struct{})
		doc.Find(linkSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			ref, ok := s.Attr("href")
			if !ok {
				ref, _ = s.Attr("src")
			}
			link := resolveLink(base, ref)
			if link == "" {
				return true
			}

			child, err := r.child(link)
			if err != nil {
				return true
			}
			if _, dup := seen[child.Identity()]; dup {
				return true
			}
			seen[child.Identity()] = struct{}{}
			return yield(child)
		})
	}, nil
}

func (r *Response) child(link string) (*Request, error) {
	if r.request == nil {
		return NewRequest(link, WithGeneration(1))
	}
	return r.request.Child(link)
}

// resolveLink resolves ref against base. It returns "" for references that
// do not point to a fetchable page.
func resolveLink(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || ref == "#" {
		return ""
	}
	lower := strings.ToLower(ref)
	for _, prefix := range skippedSchemes {
		if strings.HasPrefix(lower, prefix) {
			return ""
		}
	}

	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(u)
	resolved.Fragment = ""
	resolved.RawFragment = ""
	return resolved.String()
}
