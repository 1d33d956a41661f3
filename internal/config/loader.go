package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".crawlkit"

// xdgConfigFile is the file looked up under XDGConfigDir.
const xdgConfigFile = "config.yaml"

var (
	// ErrConfigNotFound is returned when the configuration file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrInvalidSiteConfig is returned when a site section cannot be used:
	// an unparsable host key, two keys naming the same host, a negative
	// depth or a malformed glob.
	ErrInvalidSiteConfig = errors.New("invalid site configuration")
)

// LoadConfigFile reads site configurations from a YAML file.
//
// Unknown fields are rejected so a misspelled option does not silently
// widen a crawl. Site keys may be written as a bare host ("example.com"),
// a host with port, or a URL; they are stored as the lower-cased host[:port]
// the crawler looks up. A missing file yields ErrConfigNotFound.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if err := cf.normalize(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cf, nil
}

// normalize rewrites site keys to hosts and validates every section.
func (cf *File) normalize() error {
	if err := validateSite("defaults", cf.Defaults); err != nil {
		return err
	}

	sites := make(map[string]SiteConfig, len(cf.Sites))
	for key, site := range cf.Sites {
		host, err := siteHost(key)
		if err != nil {
			return err
		}
		if _, dup := sites[host]; dup {
			return fmt.Errorf("%w: host %q is configured more than once", ErrInvalidSiteConfig, host)
		}
		if err := validateSite(host, site); err != nil {
			return err
		}
		sites[host] = site
	}
	cf.Sites = sites
	return nil
}

// siteHost turns a site key into the host[:port] used for lookups.
func siteHost(key string) (string, error) {
	raw := strings.TrimSpace(key)
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: site key %q is not a host", ErrInvalidSiteConfig, key)
	}
	return strings.ToLower(u.Host), nil
}

func validateSite(name string, site SiteConfig) error {
	if site.Depth < 0 {
		return fmt.Errorf("%w: %s: depth must be non-negative", ErrInvalidSiteConfig, name)
	}
	for _, p := range append(append([]string(nil), site.IgnorePatterns...), site.FollowPatterns...) {
		if _, err := filepath.Match(p, ""); err != nil {
			return fmt.Errorf("%w: %s: pattern %q: %w", ErrInvalidSiteConfig, name, p, err)
		}
	}
	return nil
}

// FindConfigFile returns the configuration file to load, or "" when none
// exists. An explicit configPath is used as is. Otherwise the first of
// these that exists wins:
//
//	./.crawlkit
//	$XDG_CONFIG_HOME/crawlkit/config.yaml
//	~/.crawlkit
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if fileExists(configPath) {
			return configPath
		}
		return ""
	}

	var candidates []string
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, DefaultConfigFile))
	}
	candidates = append(candidates, filepath.Join(XDGConfigDir(), xdgConfigFile))
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, DefaultConfigFile))
	}

	for _, path := range candidates {
		if fileExists(path) {
			return path
		}
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
