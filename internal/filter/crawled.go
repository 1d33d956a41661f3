package filter

import (
	"fmt"
	"sync"

	"github.com/nao1215/crawlkit/internal/checkpoint"
	"github.com/nao1215/crawlkit/internal/model"
)

// DefaultCrawledName is the checkpoint name of a Crawled filter.
const DefaultCrawledName = "CrawledFilter"

// Crawled accepts each request identity at most once.
//
// Accept consults the pre-filter first; a rejection returns false without
// touching the store. Otherwise the identity is tested and recorded in one
// step under the filter's lock, so concurrent callers presenting the same
// identity see exactly one acceptance.
type Crawled struct {
	pre  Filter
	name string

	mu    sync.Mutex
	store Store
}

// CrawledOption configures a Crawled filter.
type CrawledOption func(*Crawled)

// WithCheckpointName sets the checkpoint name. Crawls that use more than one
// Crawled filter give each a distinct name.
func WithCheckpointName(name string) CrawledOption {
	return func(c *Crawled) {
		if name != "" {
			c.name = name
		}
	}
}

// NewCrawled returns a Crawled filter recording into store. A nil pre
// accepts everything. pre must not contain another Crawled filter.
func NewCrawled(pre Filter, store Store, opts ...CrawledOption) (*Crawled, error) {
	if store == nil {
		return nil, &ConfigError{Filter: "crawled", Err: ErrNilStore}
	}
	if containsCrawled(pre) {
		return nil, &ConfigError{Filter: "crawled", Err: ErrNestedCrawled}
	}

	c := &Crawled{pre: pre, store: store, name: DefaultCrawledName}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Accept implements Filter.
func (c *Crawled) Accept(req *model.Request) bool {
	if c.pre != nil && !c.pre.Accept(req) {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Add(req.Identity())
}

// Seen reports whether identity was recorded. It never records.
func (c *Crawled) Seen(identity string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Contains(identity)
}

// Len returns the number of recorded identities.
func (c *Crawled) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Len()
}

// FalsePositiveRate returns the estimated false-positive rate of a Bloom
// store that recorded more identities than it was sized for, and 0
// otherwise.
func (c *Crawled) FalsePositiveRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if bs, ok := c.store.(*BloomStore); ok && bs.OverCapacity() {
		return bs.EstimatedFalsePositiveRate()
	}
	return 0
}

// StoreKind returns the kind of the backing store.
func (c *Crawled) StoreKind() string {
	return c.store.Kind()
}

func (c *Crawled) operands() []Filter {
	if c.pre == nil {
		return nil
	}
	return []Filter{c.pre}
}

// CheckpointName implements checkpoint.Component.
func (c *Crawled) CheckpointName() string {
	return c.name
}

// CheckpointFields implements checkpoint.Component.
func (c *Crawled) CheckpointFields() []string {
	return []string{"store", "count", "state"}
}

// EncodeCheckpoint implements checkpoint.Component.
func (c *Crawled) EncodeCheckpoint(enc *checkpoint.Encoder) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := enc.Encode("store", c.store.Kind()); err != nil {
		return err
	}
	if err := enc.Encode("count", c.store.Len()); err != nil {
		return err
	}
	return c.store.encodeState(enc)
}

// DecodeCheckpoint implements checkpoint.Component. The blob must have been
// written by a store of the same kind.
func (c *Crawled) DecodeCheckpoint(dec *checkpoint.Decoder) (func(), error) {
	var kind string
	if err := dec.Decode("store", &kind); err != nil {
		return nil, err
	}
	if kind != c.store.Kind() {
		return nil, fmt.Errorf("%w: blob has %q, filter has %q", ErrStoreMismatch, kind, c.store.Kind())
	}

	restore, err := c.store.decodeState(dec)
	if err != nil {
		return nil, err
	}
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		restore()
	}, nil
}

// Walk calls fn for f and every filter reachable from it, depth first.
func Walk(f Filter, fn func(Filter)) {
	if f == nil {
		return
	}
	fn(f)
	if p, ok := f.(parent); ok {
		for _, child := range p.operands() {
			Walk(child, fn)
		}
	}
}

// CheckNesting returns a *ConfigError wrapping ErrNestedCrawled when any
// Crawled filter in f has another Crawled filter reachable from its
// pre-filter.
func CheckNesting(f Filter) error {
	var err error
	Walk(f, func(g Filter) {
		if c, ok := g.(*Crawled); ok && err == nil && containsCrawled(c.pre) {
			err = &ConfigError{Filter: "crawled", Err: ErrNestedCrawled}
		}
	})
	return err
}

func containsCrawled(f Filter) bool {
	var found bool
	Walk(f, func(g Filter) {
		if _, ok := g.(*Crawled); ok {
			found = true
		}
	})
	return found
}

// Components returns every checkpointable filter reachable from f.
func Components(f Filter) []checkpoint.Component {
	var out []checkpoint.Component
	Walk(f, func(g Filter) {
		if c, ok := g.(checkpoint.Component); ok {
			out = append(out, c)
		}
	})
	return out
}
