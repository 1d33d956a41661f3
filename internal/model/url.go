package model

import (
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"
)

// defaultPorts maps schemes to the port that may be dropped from a host.
var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// NormalizeURL returns the canonical form of rawURL used as a dedup key.
//
// Normalization lowercases scheme and host, drops the default port and the
// fragment, turns an empty path into "/", and sorts the query by key and
// then by value. Percent-encoding of the path is kept as-is.
func NormalizeURL(rawURL string) (string, error) {
	u, err := parseAbsolute(rawURL)
	if err != nil {
		return "", err
	}
	return normalize(u), nil
}

// parseAbsolute parses rawURL and checks that it is an absolute http(s) URL.
func parseAbsolute(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme in %q", ErrInvalidURL, rawURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host in %q", ErrInvalidURL, rawURL)
	}
	return u, nil
}

func normalize(u *url.URL) string {
	n := *u
	n.Scheme = strings.ToLower(n.Scheme)
	n.Host = strings.ToLower(n.Host)
	n.User = nil
	n.Fragment = ""
	n.RawFragment = ""

	if host, port, err := net.SplitHostPort(n.Host); err == nil && defaultPorts[n.Scheme] == port {
		n.Host = host
		if strings.Contains(host, ":") {
			n.Host = "[" + host + "]"
		}
	}

	if n.Path == "" {
		n.Path = "/"
		n.RawPath = ""
	}

	n.RawQuery = sortedQuery(n.Query())
	n.ForceQuery = false

	return n.String()
}

// sortedQuery encodes values with keys sorted and, within a key, values sorted.
func sortedQuery(values url.Values) string {
	if len(values) == 0 {
		return ""
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		vs := append([]string(nil), values[k]...)
		sort.Strings(vs)
		for _, v := range vs {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}
