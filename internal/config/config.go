package config

import (
	"errors"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/crawlkit/internal/bloom"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "crawlkit"

	// DefaultConcurrency is the number of spider workers. Four keeps a
	// single host busy without looking like a flood.
	DefaultConcurrency = 4

	// DefaultTimeout is the per-request timeout. Requests through Tor
	// need a larger value.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxGeneration bounds how many links away from a seed the
	// crawl goes. Generation 0 is the seed itself.
	DefaultMaxGeneration = 3

	// DefaultMaxPages is the maximum number of fetches per crawl.
	// This prevents runaway crawling on large or infinitely-generating sites.
	DefaultMaxPages = 1000

	// DefaultMaxRetries is how many times a failed request is retried.
	DefaultMaxRetries = 1

	// DefaultDedupMode keeps every crawled identity in memory exactly.
	DefaultDedupMode = DedupExact

	// DefaultBloomCapacity is the number of URLs the Bloom filter is sized for.
	DefaultBloomCapacity = 1_000_000

	// DefaultBloomErrorRate is the Bloom filter false-positive rate at capacity.
	DefaultBloomErrorRate = 0.001

	// DefaultStatusThreshold is the lowest status treated as a failed fetch.
	DefaultStatusThreshold = 400

	// DefaultCrawlDelay is the minimum delay between requests to one host.
	// This is a politeness setting to avoid overwhelming servers.
	DefaultCrawlDelay = 500 * time.Millisecond

	// DefaultUserAgent identifies crawlkit in HTTP requests.
	// Using a descriptive User-Agent is good practice and allows operators
	// to identify crawler traffic in their logs.
	DefaultUserAgent = "crawlkit/1.0 (+https://github.com/nao1215/crawlkit)"

	// DefaultMaxBodySize limits the maximum response body size to read.
	DefaultMaxBodySize = 10 * 1024 * 1024 // 10MB

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute
)

// Dedup modes select the store behind the crawled filter.
const (
	// DedupExact remembers every identity in a map.
	DedupExact = "exact"

	// DedupBloom remembers identities in a Bloom filter of fixed size.
	DedupBloom = "bloom"
)

// Config holds all configuration options for a crawl.
// This struct is populated from CLI flags, the config file and the
// environment, and passed through the application via dependency
// injection rather than global state.
//
// Design decision: We use a single flat struct instead of nested structs
// for simplicity. The number of options is manageable.
type Config struct {
	// Seeds are the URLs the crawl starts from.
	Seeds []string

	// Concurrency is the number of spider workers.
	Concurrency int

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// CrawlTimeout bounds the wall-clock time of the crawl. Zero means no
	// limit. A crawl that times out is paused and can be resumed.
	CrawlTimeout time.Duration

	// MaxGeneration is the maximum link distance from a seed.
	MaxGeneration int

	// MaxPages is the maximum number of fetches. Zero means unlimited.
	MaxPages int

	// MaxRetries is how many times a failed request is retried.
	MaxRetries int

	// DedupMode is DedupExact or DedupBloom.
	DedupMode string

	// BloomCapacity and BloomErrorRate size the Bloom filter in bloom mode.
	BloomCapacity  uint
	BloomErrorRate float64

	// StatusThreshold is the lowest HTTP status treated as a failure.
	StatusThreshold int

	// CrawlDelay is the minimum delay between requests to one host.
	CrawlDelay time.Duration

	// RateLimit allows at most RateLimit requests per RateWindow to one
	// host. Zero disables the token bucket.
	RateLimit  int
	RateWindow time.Duration

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string

	// MaxBodySize is the maximum response body size in bytes.
	MaxBodySize int64

	// SameHost restricts the crawl to the hosts of the seeds.
	SameHost bool

	// RespectRobots filters URLs through robots.txt.
	RespectRobots bool

	// ProxyAddress is a SOCKS5 proxy in "host:port" form. Empty means a
	// direct connection.
	ProxyAddress string

	// UseTor starts an embedded Tor daemon and crawls through it.
	UseTor bool

	// TorStartupTimeout is the maximum time to wait for the embedded Tor
	// daemon to bootstrap. Only used when UseTor is true.
	TorStartupTimeout time.Duration

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool

	// CheckpointDir is where the crawl is stashed when it is interrupted.
	// Defaults to the XDG state directory.
	CheckpointDir string

	// Resume recovers the crawl from CheckpointDir before running.
	Resume bool

	// DBDir is the directory of the crawl history database. Empty
	// disables persistence.
	DBDir string

	// Verbose enables detailed log output using slog.LevelDebug.
	Verbose bool

	// ConfigFilePath is the path to the configuration file.
	// If empty, the tool searches for .crawlkit in the current directory
	// and then in the user's home directory.
	ConfigFilePath string

	// SiteConfigs holds site-specific configurations loaded from the config file.
	SiteConfigs *File

	// JSONReport enables JSON report output.
	// Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport enables Markdown report output.
	// Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile is the output file path for the report.
	// When set, the report is written to this file instead of stdout.
	ReportFile string
}

// NewConfig creates a new Config with default values.
//
// Design decision: We use a constructor function instead of relying on
// zero values because many defaults are non-zero. This also serves as
// documentation of what the defaults are.
func NewConfig() *Config {
	return &Config{
		Concurrency:       DefaultConcurrency,
		Timeout:           DefaultTimeout,
		MaxGeneration:     DefaultMaxGeneration,
		MaxPages:          DefaultMaxPages,
		MaxRetries:        DefaultMaxRetries,
		DedupMode:         DefaultDedupMode,
		BloomCapacity:     DefaultBloomCapacity,
		BloomErrorRate:    DefaultBloomErrorRate,
		StatusThreshold:   DefaultStatusThreshold,
		CrawlDelay:        DefaultCrawlDelay,
		UserAgent:         DefaultUserAgent,
		MaxBodySize:       DefaultMaxBodySize,
		SameHost:          true,
		RespectRobots:     true,
		TorStartupTimeout: DefaultTorStartupTimeout,
		CheckpointDir:     DefaultCheckpointDir(),
	}
}

// XDGDataDir returns the XDG data directory for crawlkit.
// On Linux: ~/.local/share/crawlkit
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for crawlkit.
// On Linux: ~/.config/crawlkit
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGStateDir returns the XDG state directory for crawlkit.
// On Linux: ~/.local/state/crawlkit
func XDGStateDir() string {
	return filepath.Join(xdg.StateHome, AppName)
}

// DefaultCheckpointDir is where interrupted crawls are stashed.
func DefaultCheckpointDir() string {
	return filepath.Join(XDGStateDir(), "checkpoints")
}

// DefaultDBDir is where the crawl history database lives.
func DefaultDBDir() string {
	return XDGDataDir()
}

// Validate checks if the configuration is valid.
// It returns the first sentinel error describing what is invalid.
//
// Design decision: We validate at the config level rather than at each
// point of use to fail fast and provide clear error messages upfront.
func (c *Config) Validate() error {
	if len(c.Seeds) == 0 && !c.Resume {
		return ErrNoSeed
	}

	if c.Concurrency < 1 {
		return ErrInvalidConcurrency
	}

	// A zero per-request timeout would fail every request.
	if c.Timeout <= 0 || c.CrawlTimeout < 0 || c.TorStartupTimeout < 0 {
		return ErrInvalidTimeout
	}

	if c.MaxGeneration < 0 {
		return ErrInvalidMaxGeneration
	}

	if c.MaxPages < 0 {
		return ErrInvalidMaxPages
	}

	switch c.DedupMode {
	case DedupExact:
	case DedupBloom:
		if _, _, err := bloom.Estimate(c.BloomCapacity, c.BloomErrorRate); err != nil {
			if errors.Is(err, bloom.ErrInvalidCapacity) {
				return ErrInvalidBloomCapacity
			}
			return ErrInvalidBloomErrorRate
		}
	default:
		return ErrInvalidDedupMode
	}

	if c.StatusThreshold < 100 || c.StatusThreshold > 599 {
		return ErrInvalidStatusThreshold
	}

	if c.MaxRetries < 0 {
		return ErrInvalidMaxRetries
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	if c.CrawlDelay < 0 {
		return ErrInvalidCrawlDelay
	}

	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}

	if c.RateLimit < 0 || (c.RateLimit > 0 && c.RateWindow <= 0) {
		return ErrInvalidRateLimit
	}

	return nil
}

// DedupDescription explains the memory and accuracy trade-off of the
// dedup mode, for logging at startup.
func (c *Config) DedupDescription() string {
	if c.DedupMode != DedupBloom {
		return "exact dedup keeps every crawled URL in memory; memory grows with the crawl"
	}
	desc, err := bloom.Describe(c.BloomCapacity, c.BloomErrorRate)
	if err != nil {
		return err.Error()
	}
	return desc
}
