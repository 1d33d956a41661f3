package filter

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/nao1215/crawlkit/internal/model"
)

// Filter decides whether a request is dispatched.
type Filter interface {
	Accept(req *model.Request) bool
}

// parent is implemented by filters that wrap other filters.
type parent interface {
	operands() []Filter
}

type and []Filter

// And accepts when every operand accepts. With no operands it accepts.
func And(filters ...Filter) Filter {
	return and(append([]Filter(nil), filters...))
}

// Accept implements Filter.
func (a and) Accept(req *model.Request) bool {
	for _, f := range a {
		if !f.Accept(req) {
			return false
		}
	}
	return true
}

func (a and) operands() []Filter { return a }

type or []Filter

// Or accepts when any operand accepts. With no operands it rejects.
func Or(filters ...Filter) Filter {
	return or(append([]Filter(nil), filters...))
}

// Accept implements Filter.
func (o or) Accept(req *model.Request) bool {
	for _, f := range o {
		if f.Accept(req) {
			return true
		}
	}
	return false
}

func (o or) operands() []Filter { return o }

type not struct {
	inner Filter
}

// Not inverts f.
func Not(f Filter) Filter {
	return not{inner: f}
}

// Accept implements Filter.
func (n not) Accept(req *model.Request) bool {
	return !n.inner.Accept(req)
}

func (n not) operands() []Filter { return []Filter{n.inner} }

type funcFilter func(*model.Request) bool

// Func adapts fn to a Filter.
func Func(fn func(*model.Request) bool) Filter {
	return funcFilter(fn)
}

// Accept implements Filter.
func (f funcFilter) Accept(req *model.Request) bool {
	return f(req)
}

type regex struct {
	re *regexp.Regexp
}

// Regex accepts requests whose URL matches pattern.
func Regex(pattern string) (Filter, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, &ConfigError{Filter: "regex", Err: fmt.Errorf("%w: %w", ErrInvalidPattern, err)}
	}
	return regex{re: re}, nil
}

// MustRegex is like Regex but panics on an invalid pattern.
func MustRegex(pattern string) Filter {
	f, err := Regex(pattern)
	if err != nil {
		panic(err)
	}
	return f
}

// Accept implements Filter.
func (r regex) Accept(req *model.Request) bool {
	return r.re.MatchString(req.URL())
}

type urlScoped struct {
	fn func(*url.URL) bool
}

// URLScoped applies fn to the parsed effective URL of the request.
func URLScoped(fn func(*url.URL) bool) Filter {
	return urlScoped{fn: fn}
}

// Accept implements Filter.
func (s urlScoped) Accept(req *model.Request) bool {
	u, err := url.Parse(req.EffectiveURL())
	if err != nil {
		return false
	}
	return s.fn(u)
}

type sameHost map[string]struct{}

// SameHost accepts requests whose host is one of hosts. Comparison ignores
// case.
func SameHost(hosts ...string) Filter {
	set := make(sameHost, len(hosts))
	for _, h := range hosts {
		set[strings.ToLower(strings.TrimSpace(h))] = struct{}{}
	}
	return set
}

// Accept implements Filter.
func (s sameHost) Accept(req *model.Request) bool {
	_, ok := s[req.Host()]
	return ok
}

type generation struct {
	max int
}

// Generation accepts requests at most max hops away from a seed. The
// generation is attached to each request when it is created.
func Generation(maxGeneration int) (Filter, error) {
	if maxGeneration < 0 {
		return nil, &ConfigError{Filter: "generation", Err: ErrInvalidMaxGeneration}
	}
	return generation{max: maxGeneration}, nil
}

// Accept implements Filter.
func (g generation) Accept(req *model.Request) bool {
	return req.Generation() <= g.max
}

type glob struct {
	ignore []string
	follow []string
}

// Glob filters on the URL path. A path matching any ignore pattern is
// rejected. When follow is non-empty, a path must also match one of its
// patterns. Patterns use filepath.Match syntax plus two shorthands:
// "/dir/*" matches everything below /dir and "*.ext" matches by
// extension at any depth.
func Glob(ignore, follow []string) (Filter, error) {
	for _, p := range append(append([]string(nil), ignore...), follow...) {
		if _, err := filepath.Match(p, ""); err != nil {
			return nil, &ConfigError{Filter: "glob", Err: fmt.Errorf("%w: %w", ErrInvalidPattern, err)}
		}
	}
	return glob{
		ignore: append([]string(nil), ignore...),
		follow: append([]string(nil), follow...),
	}, nil
}

// Accept implements Filter.
func (g glob) Accept(req *model.Request) bool {
	u, err := url.Parse(req.URL())
	if err != nil {
		return false
	}
	path := u.Path
	if path == "" {
		path = "/"
	}

	for _, p := range g.ignore {
		if matchPattern(p, path) {
			return false
		}
	}
	if len(g.follow) == 0 {
		return true
	}
	for _, p := range g.follow {
		if matchPattern(p, path) {
			return true
		}
	}
	return false
}

func matchPattern(pattern, path string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}

	if ext, ok := strings.CutPrefix(pattern, "*"); ok && strings.HasPrefix(ext, ".") {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}

	if matched, err := filepath.Match(pattern, path); err == nil && matched {
		return true
	}

	// Wildcard patterns without a slash also match the last path segment.
	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		if matched, err := filepath.Match(pattern, filepath.Base(path)); err == nil && matched {
			return true
		}
	}
	return false
}
