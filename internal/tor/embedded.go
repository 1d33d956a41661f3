package tor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nao1215/tornago"
)

// DefaultStartupTimeout is how long Start waits for Tor to bootstrap.
const DefaultStartupTimeout = 3 * time.Minute

// EmbeddedTor runs a Tor daemon through tornago so a crawl can reach
// .onion seeds without a system Tor installation.
//
// Bootstrapping takes one to three minutes: the daemon fetches directory
// information and builds its first circuits before the SOCKS port
// accepts connections. An EmbeddedTor is safe for concurrent use.
type EmbeddedTor struct {
	startupTimeout time.Duration
	logger         *slog.Logger

	mu      sync.Mutex
	process *tornago.TorProcess
}

// EmbeddedTorOption configures an EmbeddedTor.
type EmbeddedTorOption func(*EmbeddedTor)

// WithStartupTimeout bounds bootstrapping. Non-positive values keep
// DefaultStartupTimeout.
func WithStartupTimeout(timeout time.Duration) EmbeddedTorOption {
	return func(e *EmbeddedTor) {
		if timeout > 0 {
			e.startupTimeout = timeout
		}
	}
}

// WithLogger sets the logger for daemon lifecycle messages.
func WithLogger(logger *slog.Logger) EmbeddedTorOption {
	return func(e *EmbeddedTor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEmbeddedTor returns a stopped daemon manager.
func NewEmbeddedTor(opts ...EmbeddedTorOption) *EmbeddedTor {
	e := &EmbeddedTor{
		startupTimeout: DefaultStartupTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type startResult struct {
	process *tornago.TorProcess
	err     error
}

// Start launches the daemon and waits for it to bootstrap. Starting a
// running daemon is a no-op.
//
// Cancelling ctx makes Start return ctx.Err() right away; a daemon that
// finishes bootstrapping afterwards is stopped in the background.
func (e *EmbeddedTor) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.process != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// ":0" lets the OS pick free ports, so several crawls can run at once.
	launchCfg, err := tornago.NewTorLaunchConfig(
		tornago.WithTorSocksAddr(":0"),
		tornago.WithTorControlAddr(":0"),
		tornago.WithTorStartupTimeout(e.startupTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create Tor launch config: %w", err)
	}

	e.logger.Info("starting embedded Tor daemon", "timeout", e.startupTimeout)
	started := time.Now()

	done := make(chan startResult, 1)
	go func() {
		process, err := tornago.StartTorDaemon(launchCfg)
		done <- startResult{process: process, err: err}
	}()

	var res startResult
	select {
	case res = <-done:
	case <-ctx.Done():
		go func() {
			if r := <-done; r.err == nil {
				_ = r.process.Stop() //nolint:errcheck // Best effort cleanup
			}
		}()
		return ctx.Err()
	}
	if res.err != nil {
		return fmt.Errorf("failed to start embedded Tor daemon: %w", res.err)
	}

	e.process = res.process
	e.logger.Info("embedded Tor daemon ready",
		"socks", res.process.SocksAddr(),
		"elapsed", time.Since(started).Round(time.Second),
	)
	return nil
}

// Ready starts the daemon if needed and returns its SOCKS5 address once a
// SOCKS handshake succeeds. A daemon that fails the check is stopped.
func (e *EmbeddedTor) Ready(ctx context.Context) (string, error) {
	if err := e.Start(ctx); err != nil {
		return "", err
	}
	addr, err := e.ProxyAddr()
	if err != nil {
		return "", err
	}
	if err := VerifyProxy(ctx, addr); err != nil {
		_ = e.Stop() //nolint:errcheck // The check failure is the error worth reporting
		return "", fmt.Errorf("embedded Tor: %w", err)
	}
	return addr, nil
}

// Stop shuts the daemon down. Stopping a stopped daemon is a no-op.
func (e *EmbeddedTor) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.process == nil {
		return nil
	}
	err := e.process.Stop()
	e.process = nil
	return err
}

// SocksAddr returns the "host:port" SOCKS5 address, or "" when stopped.
func (e *EmbeddedTor) SocksAddr() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.process == nil {
		return ""
	}
	return e.process.SocksAddr()
}

// ControlAddr returns the control port address, or "" when stopped.
func (e *EmbeddedTor) ControlAddr() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.process == nil {
		return ""
	}
	return e.process.ControlAddr()
}

// IsRunning reports whether the daemon is up.
func (e *EmbeddedTor) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.process != nil
}

// ProxyAddr returns the SOCKS5 address, or ErrNotRunning when stopped.
func (e *EmbeddedTor) ProxyAddr() (string, error) {
	if addr := e.SocksAddr(); addr != "" {
		return addr, nil
	}
	return "", ErrNotRunning
}
