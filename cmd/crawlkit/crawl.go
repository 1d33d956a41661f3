package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/nao1215/crawlkit/internal/client"
	"github.com/nao1215/crawlkit/internal/config"
	"github.com/nao1215/crawlkit/internal/crawler"
	"github.com/nao1215/crawlkit/internal/database"
	"github.com/nao1215/crawlkit/internal/filter"
	"github.com/nao1215/crawlkit/internal/log"
	"github.com/nao1215/crawlkit/internal/model"
	"github.com/nao1215/crawlkit/internal/pipeline"
	"github.com/nao1215/crawlkit/internal/report"
	"github.com/nao1215/crawlkit/internal/robots"
	"github.com/nao1215/crawlkit/internal/tor"
	"github.com/nao1215/crawlkit/internal/transport"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// manifestFile is written next to the spider checkpoint so --resume works
// without repeating the seeds.
const manifestFile = "crawl.yaml"

var (
	errOnionNeedsProxy = errors.New("onion seeds need --tor or --proxy")
	errNoCheckpoint    = errors.New("no checkpoint to resume")
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [seed-url...]",
		Short: "Crawl websites starting from seed URLs",
		Long: `Crawl fetches the seed URLs and follows the links it finds.

Requests are dispatched by a pool of workers. Each discovered link passes
the filter chain (same host, depth, ignore/follow patterns, robots.txt)
and is deduplicated before it is queued. Press Ctrl+C once to pause: the
crawl is stashed to the checkpoint directory and continues with --resume.
Press Ctrl+C twice to exit immediately without a checkpoint.

Examples:
  # Crawl a site three links deep
  crawlkit crawl https://example.com/

  # Crawl two sites with 8 workers and a Bloom filter
  crawlkit crawl -n 8 --dedup bloom https://example.com/ https://example.org/

  # Crawl an onion service through the embedded Tor daemon
  crawlkit crawl --tor http://<56 characters>.onion/

  # Continue a paused crawl
  crawlkit crawl --resume

  # Write a Markdown report to a file
  crawlkit crawl --markdown -o report.md https://example.com/`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	// Crawl behavior flags
	cmd.Flags().IntP("concurrency", "n", config.DefaultConcurrency,
		"Number of concurrent workers")
	cmd.Flags().IntP("depth", "d", config.DefaultMaxGeneration,
		"Maximum link depth from a seed (0 fetches the seeds only)")
	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxPages,
		"Stop after this many pages (0 for no limit)")
	cmd.Flags().Int("retries", config.DefaultMaxRetries,
		"Retries for requests that fail with a transport error")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each request")
	cmd.Flags().Duration("crawl-timeout", 0,
		"Pause the crawl after this long (0 for no limit)")
	cmd.Flags().Duration("delay", config.DefaultCrawlDelay,
		"Minimum delay between requests to the same host")
	cmd.Flags().Int("rate", 0,
		"Maximum requests per host within --rate-window (0 for no limit)")
	cmd.Flags().Duration("rate-window", time.Second,
		"Window for --rate")
	cmd.Flags().Int("status-threshold", config.DefaultStatusThreshold,
		"Treat responses with this status or above as failures")
	cmd.Flags().Bool("same-host", true,
		"Only follow links to the seed hosts")
	cmd.Flags().Bool("robots", true,
		"Honour robots.txt")
	cmd.Flags().StringP("user-agent", "u", config.DefaultUserAgent,
		"User-Agent header sent with every request")
	cmd.Flags().Int64("max-body", config.DefaultMaxBodySize,
		"Maximum response body size in bytes")

	// Dedup flags
	cmd.Flags().String("dedup", config.DefaultDedupMode,
		"URL dedup store: exact or bloom")
	cmd.Flags().Uint("bloom-capacity", config.DefaultBloomCapacity,
		"Expected number of URLs for the Bloom filter")
	cmd.Flags().Float64("bloom-error-rate", config.DefaultBloomErrorRate,
		"False positive rate for the Bloom filter")

	// Proxy flags
	cmd.Flags().String("proxy", "",
		"SOCKS5 proxy address (e.g., 127.0.0.1:9050); overrides "+config.EnvProxy)
	cmd.Flags().Bool("tor", false,
		"Start an embedded Tor daemon and crawl through it")
	cmd.Flags().DurationP("tor-timeout", "T", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")
	cmd.Flags().BoolP("insecure", "k", false,
		"Skip TLS certificate verification")

	// Checkpoint and storage flags
	cmd.Flags().String("checkpoint-dir", config.DefaultCheckpointDir(),
		"Directory for pause checkpoints; overrides "+config.EnvCheckpointDir)
	cmd.Flags().BoolP("resume", "r", false,
		"Resume the crawl stashed in the checkpoint directory")
	cmd.Flags().String("db-dir", config.DefaultDBDir(),
		"Directory of the crawl database")
	cmd.Flags().Bool("no-db", false,
		"Do not record pages and failures in the crawl database")

	// Configuration files
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: "+config.DefaultConfigFile+" in current or home directory)")
	cmd.Flags().String("env-file", config.DefaultEnvFile,
		"dotenv file read for "+config.EnvProxy+", "+config.EnvUserAgent+" and "+config.EnvCheckpointDir)

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := log.NewSecureLogger(cmd.ErrOrStderr(), cfg.Verbose)
	slog.SetDefault(logger)

	return runCrawl(cmd.Context(), cfg, logger, cmd.OutOrStdout())
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from cobra command flags, the dotenv file
// and the configuration file. Flags win over the environment.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	if cfg.Concurrency, err = flags.GetInt("concurrency"); err != nil {
		return nil, err
	}
	if cfg.MaxGeneration, err = flags.GetInt("depth"); err != nil {
		return nil, err
	}
	if cfg.MaxPages, err = flags.GetInt("max-pages"); err != nil {
		return nil, err
	}
	if cfg.MaxRetries, err = flags.GetInt("retries"); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.CrawlTimeout, err = flags.GetDuration("crawl-timeout"); err != nil {
		return nil, err
	}
	if cfg.CrawlDelay, err = flags.GetDuration("delay"); err != nil {
		return nil, err
	}
	if cfg.RateLimit, err = flags.GetInt("rate"); err != nil {
		return nil, err
	}
	if cfg.RateWindow, err = flags.GetDuration("rate-window"); err != nil {
		return nil, err
	}
	if cfg.StatusThreshold, err = flags.GetInt("status-threshold"); err != nil {
		return nil, err
	}
	if cfg.SameHost, err = flags.GetBool("same-host"); err != nil {
		return nil, err
	}
	if cfg.RespectRobots, err = flags.GetBool("robots"); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, err
	}
	if cfg.MaxBodySize, err = flags.GetInt64("max-body"); err != nil {
		return nil, err
	}
	if cfg.DedupMode, err = flags.GetString("dedup"); err != nil {
		return nil, err
	}
	if cfg.BloomCapacity, err = flags.GetUint("bloom-capacity"); err != nil {
		return nil, err
	}
	if cfg.BloomErrorRate, err = flags.GetFloat64("bloom-error-rate"); err != nil {
		return nil, err
	}
	if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
		return nil, err
	}
	if cfg.UseTor, err = flags.GetBool("tor"); err != nil {
		return nil, err
	}
	if cfg.TorStartupTimeout, err = flags.GetDuration("tor-timeout"); err != nil {
		return nil, err
	}
	if cfg.InsecureSkipVerify, err = flags.GetBool("insecure"); err != nil {
		return nil, err
	}
	if cfg.CheckpointDir, err = flags.GetString("checkpoint-dir"); err != nil {
		return nil, err
	}
	if cfg.Resume, err = flags.GetBool("resume"); err != nil {
		return nil, err
	}
	if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
		return nil, err
	}
	noDB, err := flags.GetBool("no-db")
	if err != nil {
		return nil, err
	}
	if noDB {
		cfg.DBDir = ""
	}
	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	cfg.Verbose = getVerboseFlag(cmd)

	envFile, err := flags.GetString("env-file")
	if err != nil {
		return nil, err
	}
	if err := applyEnv(cmd, cfg, envFile); err != nil {
		return nil, err
	}

	if err := loadSiteConfigs(cfg); err != nil {
		return nil, err
	}

	cfg.Seeds = args
	return cfg, nil
}

// applyEnv fills proxy, user agent and checkpoint directory from the
// environment unless the matching flag was given.
func applyEnv(cmd *cobra.Command, cfg *config.Config, envFile string) error {
	env := *cfg
	if err := config.ApplyEnv(&env, envFile); err != nil {
		return err
	}

	flags := cmd.Flags()
	if !flags.Changed("proxy") {
		cfg.ProxyAddress = env.ProxyAddress
	}
	if !flags.Changed("user-agent") {
		cfg.UserAgent = env.UserAgent
	}
	if !flags.Changed("checkpoint-dir") {
		cfg.CheckpointDir = env.CheckpointDir
	}
	return nil
}

// loadSiteConfigs loads per-site settings. An explicitly named file must
// exist; otherwise a missing file means no site settings.
func loadSiteConfigs(cfg *config.Config) error {
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)

	switch {
	case configPath != "":
		siteConfigs, err := config.LoadConfigFile(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		cfg.SiteConfigs = siteConfigs
	case explicitConfigPath:
		return fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	default:
		cfg.SiteConfigs = &config.File{
			Sites: make(map[string]config.SiteConfig),
		}
	}
	return nil
}

// crawlSession collects what the spider reports through its callbacks.
type crawlSession struct {
	// ctx outlives interrupts so failures of the last in-flight requests
	// are still recorded.
	ctx     context.Context
	db      *database.CrawlDB
	logger  *slog.Logger
	crawlID string

	mu       sync.Mutex
	failures report.Summary
}

func (s *crawlSession) recordFailure(req *model.Request, err error) {
	kind := crawler.FailureKind(err)

	s.mu.Lock()
	s.failures.AddFailure(req.EffectiveURL(), kind, err.Error())
	s.mu.Unlock()

	if s.db == nil {
		return
	}
	record := &database.FailureRecord{
		CrawlID:    s.crawlID,
		URL:        req.EffectiveURL(),
		Kind:       kind,
		Message:    err.Error(),
		Generation: req.Generation(),
	}
	if err := s.db.RecordFailure(s.ctx, record); err != nil {
		s.logger.Error("failed to record failure", log.RequestAttr(req), "error", err)
	}
}

func (s *crawlSession) fill(summary *report.Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.failures.Failures {
		summary.AddFailure(f.URL, f.Kind, f.Message)
	}
}

// checkpointManifest records what --resume needs besides the spider state.
type checkpointManifest struct {
	CrawlID   string    `yaml:"crawl_id"`
	Seeds     []string  `yaml:"seeds"`
	StashedAt time.Time `yaml:"stashed_at"`
}

func readManifest(dir string) (*checkpointManifest, error) {
	data, err := os.ReadFile(filepath.Clean(filepath.Join(dir, manifestFile)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w in %s", errNoCheckpoint, dir)
		}
		return nil, err
	}
	var m checkpointManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", manifestFile, err)
	}
	return &m, nil
}

func writeManifest(dir string, m *checkpointManifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, manifestFile), data, 0600)
}

// runCrawl executes the crawl and writes the report to out or cfg.ReportFile.
func runCrawl(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var manifest *checkpointManifest
	if cfg.Resume {
		m, err := readManifest(cfg.CheckpointDir)
		switch {
		case err == nil:
			manifest = m
			if len(cfg.Seeds) == 0 {
				cfg.Seeds = m.Seeds
			}
		case len(cfg.Seeds) == 0:
			return fmt.Errorf("cannot resume: %w", err)
		}
	}

	needsTor, err := tor.CheckSeeds(cfg.Seeds)
	if err != nil {
		return err
	}
	if needsTor && cfg.ProxyAddress == "" && !cfg.UseTor {
		return errOnionNeedsProxy
	}

	proxyAddr, stopTor, err := resolveProxy(ctx, cfg, logger, out)
	if err != nil {
		return err
	}
	defer stopTor()

	tr, err := transport.New(
		transport.WithSOCKS5Proxy(proxyAddr),
		transport.WithDialTimeout(cfg.Timeout),
		transport.WithMaxBodySize(cfg.MaxBodySize),
		transport.WithMaxIdleConns(0, cfg.Concurrency),
		transport.WithInsecureSkipVerify(cfg.InsecureSkipVerify),
		transport.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("failed to create transport: %w", err)
	}
	defer tr.Close()

	fetcher := client.New(tr, clientOptions(cfg, logger)...)

	var agent *robots.Agent
	if cfg.RespectRobots {
		agent = robots.NewAgent(fetcher,
			robots.WithUserAgent(cfg.UserAgent),
			robots.WithOverrides(robotsOverrides(cfg)...),
			robots.WithLogger(logger),
		)
	}

	crawled, err := buildFilter(cfg, agent)
	if err != nil {
		return fmt.Errorf("failed to build filter: %w", err)
	}

	var db *database.CrawlDB
	if cfg.DBDir != "" {
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Info("database opened", "dir", cfg.DBDir)
	}

	session := &crawlSession{
		ctx:    context.WithoutCancel(ctx),
		db:     db,
		logger: logger,
	}

	p := pipeline.New(
		pipeline.WithLogger(logger),
		pipeline.WithContinueOnError(true),
	)

	spider := crawler.NewSpider(fetcher,
		crawler.WithSeedURLs(cfg.Seeds...),
		crawler.WithFilter(crawled),
		crawler.WithConcurrency(cfg.Concurrency),
		crawler.WithMaxRetries(cfg.MaxRetries),
		crawler.WithMaxPages(cfg.MaxPages),
		crawler.WithCrawlTimeout(cfg.CrawlTimeout),
		crawler.WithPipeline(p),
		crawler.WithLogger(logger),
		crawler.WithOnError(session.recordFailure),
	)

	if cfg.Resume {
		if !spider.CanRecover(cfg.CheckpointDir) {
			return fmt.Errorf("%w in %s", errNoCheckpoint, cfg.CheckpointDir)
		}
		if err := spider.Recover(cfg.CheckpointDir); err != nil {
			return fmt.Errorf("failed to recover checkpoint: %w", err)
		}
		if spider.State() == crawler.StateCompleted {
			fmt.Fprintf(out, "Crawl %s already completed; nothing to resume.\n", spider.CrawlID())
			return nil
		}
		attrs := []any{"crawlID", spider.CrawlID(), "pending", spider.FrontierLen()}
		if manifest != nil {
			attrs = append(attrs, "stashedAt", manifest.StashedAt.Format(time.RFC3339))
		}
		logger.Info("checkpoint recovered", attrs...)
	}

	crawlID := spider.CrawlID()
	session.crawlID = crawlID

	p.AddStep(pipeline.NewLogStep(logger))
	if db != nil {
		p.AddStep(pipeline.NewStoreStep(db, crawlID))
		if err := db.StartCrawl(ctx, crawlID, cfg.Seeds); err != nil {
			return fmt.Errorf("failed to record crawl: %w", err)
		}
	}

	logger.Info("starting crawl",
		"crawlID", crawlID,
		"seeds", cfg.Seeds,
		"concurrency", cfg.Concurrency,
		"maxGeneration", cfg.MaxGeneration,
		"dedup", cfg.DedupDescription(),
	)

	stopSignals := pauseOnInterrupt(spider, logger)
	startedAt := time.Now()
	runErr := spider.Run(ctx)
	finishedAt := time.Now()
	stopSignals()

	state := spider.State()
	summary := report.NewSummary(spider, cfg.Seeds, startedAt, finishedAt)
	summary.Dedup = cfg.DedupDescription()
	if rate := crawled.FalsePositiveRate(); rate > 0 {
		logger.Warn("bloom filter over capacity; raise --bloom-capacity",
			"capacity", cfg.BloomCapacity,
			"falsePositiveRate", rate,
		)
		summary.FalsePositiveRate = rate
	}
	summary.SetError(runErr)
	session.fill(summary)

	if state == crawler.StatePaused {
		if err := stashCheckpoint(spider, cfg.CheckpointDir, cfg.Seeds); err != nil {
			logger.Error("failed to stash checkpoint", "dir", cfg.CheckpointDir, "error", err)
			summary.SetError(err)
		} else {
			summary.CheckpointDir = cfg.CheckpointDir
		}
	}

	if db != nil {
		finishCtx := context.WithoutCancel(ctx)
		if err := db.FinishCrawl(finishCtx, crawlID, state.String(), statsMap(spider.Stats(), p.Stats())); err != nil {
			logger.Error("failed to finish crawl record", "crawlID", crawlID, "error", err)
		}
	}

	if err := outputReport(cfg, summary, out); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if state == crawler.StateFailed {
		return runErr
	}
	return nil
}

// resolveProxy returns the SOCKS5 address to crawl through, starting the
// embedded Tor daemon when asked. The returned stop func is never nil.
func resolveProxy(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) (string, func(), error) {
	noop := func() {}

	if cfg.UseTor {
		fmt.Fprintln(out, "Starting embedded Tor daemon...")
		fmt.Fprintf(out, "This may take 1-3 minutes while Tor bootstraps and connects to the network.\n\n")

		embeddedTor := tor.NewEmbeddedTor(
			tor.WithStartupTimeout(cfg.TorStartupTimeout),
			tor.WithLogger(logger),
		)
		addr, err := embeddedTor.Ready(ctx)
		if err != nil {
			_ = embeddedTor.Stop() //nolint:errcheck // Start may have been cancelled midway
			return "", noop, fmt.Errorf("failed to start embedded Tor: %w", err)
		}
		stop := func() {
			logger.Info("stopping embedded Tor daemon...")
			if err := embeddedTor.Stop(); err != nil {
				logger.Error("failed to stop embedded Tor", "error", err)
			}
		}

		fmt.Fprintf(out, "Embedded Tor daemon started successfully!\n")
		fmt.Fprintf(out, "SOCKS proxy: %s\n\n", addr)
		return addr, stop, nil
	}

	if cfg.ProxyAddress == "" {
		return "", noop, nil
	}
	if err := tor.VerifyProxy(ctx, cfg.ProxyAddress); err != nil {
		return "", noop, fmt.Errorf("proxy check failed: %w", err)
	}
	logger.Info("SOCKS5 proxy verified", "address", cfg.ProxyAddress)
	return cfg.ProxyAddress, noop, nil
}

// clientOptions maps the configuration onto client options. Site headers
// and cookies are registered for every configured host and every seed host.
func clientOptions(cfg *config.Config, logger *slog.Logger) []client.Option {
	opts := []client.Option{
		client.WithUserAgent(cfg.UserAgent),
		client.WithDefaultTimeout(cfg.Timeout),
		client.WithStatusThreshold(cfg.StatusThreshold),
		client.WithDelay(cfg.CrawlDelay),
		client.WithLogger(logger),
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, client.WithRateLimit(cfg.RateLimit, cfg.RateWindow))
	}
	if cfg.SiteConfigs == nil {
		return opts
	}

	if len(cfg.SiteConfigs.Defaults.Headers) > 0 {
		opts = append(opts, client.WithHeaders(cfg.SiteConfigs.Defaults.Headers))
	}
	for _, host := range configuredHosts(cfg) {
		site := cfg.SiteConfigs.GetSiteConfig(host)
		if site.Cookie == "" && len(site.Headers) == 0 {
			continue
		}
		opts = append(opts, client.WithSiteHeaders(host, site.Headers, site.Cookie))
	}
	return opts
}

// configuredHosts returns the seed hosts followed by the hosts of the
// configuration file, without duplicates.
func configuredHosts(cfg *config.Config) []string {
	hosts := seedHosts(cfg.Seeds)
	seen := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		seen[h] = struct{}{}
	}
	if cfg.SiteConfigs != nil {
		for _, h := range cfg.SiteConfigs.Hosts() {
			h = strings.ToLower(h)
			if _, ok := seen[h]; ok {
				continue
			}
			seen[h] = struct{}{}
			hosts = append(hosts, h)
		}
	}
	return hosts
}

// seedHosts returns the lowercased host (with port) of every parsable seed.
func seedHosts(seeds []string) []string {
	var hosts []string
	seen := make(map[string]struct{}, len(seeds))
	for _, seed := range seeds {
		u, err := url.Parse(seed)
		if err != nil || u.Host == "" {
			continue
		}
		host := strings.ToLower(u.Host)
		if _, ok := seen[host]; ok {
			continue
		}
		seen[host] = struct{}{}
		hosts = append(hosts, host)
	}
	return hosts
}

// robotsOverrides lists the hosts whose site configuration ignores robots.txt.
func robotsOverrides(cfg *config.Config) []string {
	if cfg.SiteConfigs == nil {
		return nil
	}
	var hosts []string
	for _, host := range configuredHosts(cfg) {
		if cfg.SiteConfigs.GetSiteConfig(host).IgnoreRobots {
			hosts = append(hosts, host)
		}
	}
	return hosts
}

// buildFilter assembles the crawl filter: same host, per-site scope and
// robots.txt, wrapped in the crawled filter that deduplicates identities.
func buildFilter(cfg *config.Config, agent *robots.Agent) (*filter.Crawled, error) {
	var chain []filter.Filter
	if cfg.SameHost {
		chain = append(chain, filter.SameHost(seedHosts(cfg.Seeds)...))
	}

	scope, err := newSiteScope(cfg)
	if err != nil {
		return nil, err
	}
	chain = append(chain, scope)

	if agent != nil {
		chain = append(chain, agent.Filter())
	}

	store, err := newStore(cfg)
	if err != nil {
		return nil, err
	}
	return filter.NewCrawled(filter.And(chain...), store)
}

// newSiteScope returns a filter applying the depth and path patterns of
// the request's site, falling back to the defaults.
func newSiteScope(cfg *config.Config) (filter.Filter, error) {
	build := func(site config.SiteConfig) (filter.Filter, error) {
		depth := cfg.MaxGeneration
		if site.Depth > 0 {
			depth = site.Depth
		}
		gen, err := filter.Generation(depth)
		if err != nil {
			return nil, err
		}
		glob, err := filter.Glob(site.IgnorePatterns, site.FollowPatterns)
		if err != nil {
			return nil, err
		}
		return filter.And(gen, glob), nil
	}

	if cfg.SiteConfigs == nil {
		return build(config.SiteConfig{})
	}

	fallback, err := build(cfg.SiteConfigs.Defaults)
	if err != nil {
		return nil, fmt.Errorf("defaults: %w", err)
	}

	sites := make(map[string]filter.Filter, len(cfg.SiteConfigs.Sites))
	for _, host := range cfg.SiteConfigs.Hosts() {
		f, err := build(cfg.SiteConfigs.GetSiteConfig(host))
		if err != nil {
			return nil, fmt.Errorf("site %s: %w", host, err)
		}
		sites[strings.ToLower(host)] = f
	}
	if len(sites) == 0 {
		return fallback, nil
	}

	return filter.Func(func(req *model.Request) bool {
		if f, ok := sites[req.Host()]; ok {
			return f.Accept(req)
		}
		return fallback.Accept(req)
	}), nil
}

func newStore(cfg *config.Config) (filter.Store, error) {
	if cfg.DedupMode == config.DedupBloom {
		store, err := filter.NewBloomStore(cfg.BloomCapacity, cfg.BloomErrorRate)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	return filter.NewExactStore(), nil
}

// pauseOnInterrupt pauses the spider on the first interrupt and exits on
// the second. The returned func stops listening.
func pauseOnInterrupt(spider *crawler.Spider, logger *slog.Logger) func() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case <-sigCh:
		case <-done:
			return
		}
		logger.Warn("received shutdown signal, pausing crawl (press Ctrl+C again to exit without a checkpoint)")
		spider.Pause()

		select {
		case <-sigCh:
		case <-done:
			return
		}
		logger.Error("received second shutdown signal, exiting")
		os.Exit(130)
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

// stashCheckpoint writes the spider checkpoint and the resume manifest.
func stashCheckpoint(spider *crawler.Spider, dir string, seeds []string) error {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	if err := spider.Stash(dir); err != nil {
		return err
	}
	return writeManifest(dir, &checkpointManifest{
		CrawlID:   spider.CrawlID(),
		Seeds:     seeds,
		StashedAt: time.Now().UTC(),
	})
}

// statsMap flattens spider and pipeline step counters for the crawl database.
func statsMap(stats crawler.Stats, steps []pipeline.StepStats) map[string]int {
	m := map[string]int{
		"enqueued":        stats.Enqueued,
		"dispatched":      stats.Dispatched,
		"fetched":         stats.Fetched,
		"failed":          stats.Failed,
		"retried":         stats.Retried,
		"rejected":        stats.Rejected,
		"pipeline_errors": stats.PipelineErrors,
		"max_generation":  stats.MaxGeneration,
	}
	for kind, n := range stats.Failures {
		m["failures."+kind] = n
	}
	for _, st := range steps {
		m["step."+st.Name+".ok"] = st.OK
		if st.Dropped > 0 {
			m["step."+st.Name+".dropped"] = st.Dropped
		}
		if st.Failed > 0 {
			m["step."+st.Name+".failed"] = st.Failed
		}
	}
	return m
}

// outputReport writes the crawl summary in the requested format.
func outputReport(cfg *config.Config, summary *report.Summary, stdout io.Writer) error {
	output := stdout
	if cfg.ReportFile != "" {
		f, err := report.Create(cfg.ReportFile)
		if err != nil {
			return err
		}
		defer f.Close()
		output = f
	}

	format := report.FormatText
	switch {
	case cfg.JSONReport:
		format = report.FormatJSON
	case cfg.MarkdownReport:
		format = report.FormatMarkdown
	}
	_, err := report.New(format, output, report.Options{
		Version: getVersion(),
		Verbose: cfg.Verbose,
	}).Write(summary)
	return err
}
