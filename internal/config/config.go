// Package config parses process-level configuration for the target
// daemon, adapted from cmd/rds-csi-plugin/main.go's flat flag.* globals
// collected into a struct at startup.
package config

import (
	"flag"
	"fmt"
	"runtime"
	"time"
)

// Config holds every flag the target daemon accepts.
type Config struct {
	// NumPollerCores is the number of CPU-pinned poller goroutines to
	// run (spec.md §5). Defaults to GOMAXPROCS.
	NumPollerCores int

	// MetricsAddress is the listen address for the Prometheus /metrics
	// endpoint. Empty disables it.
	MetricsAddress string

	// DiscoverySubNQN is the NQN the Discovery subsystem is registered
	// under.
	DiscoverySubNQN string

	// DiscoveryPollerCore pins the Discovery subsystem to a specific
	// poller core.
	DiscoveryPollerCore int

	// MaxConnectionsPerSession bounds how many connections a session may
	// accumulate (spec.md §3, §4.4.2's Number-of-Queues virtualisation).
	MaxConnectionsPerSession int

	// BreakerConsecutiveFailures/-Timeout/-Interval size the per-subsystem
	// passthrough circuit breaker (internal/breaker).
	BreakerConsecutiveFailures int
	BreakerTimeout             time.Duration
	BreakerInterval            time.Duration

	// ConnectRateLimit/-Burst size the pool-wide Connect attempt limiter
	// (internal/poller.Pool).
	ConnectRateLimit float64
	ConnectRateBurst int

	// Version, when true, tells main to print the version and exit.
	Version bool
}

// Parse binds flags to a Config and parses args (typically
// os.Args[1:]), mirroring cmd/rds-csi-plugin/main.go's
// klog.InitFlags(nil); flag.Parse() pattern.
func Parse(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{}

	fs.IntVar(&cfg.NumPollerCores, "poller-cores", runtime.GOMAXPROCS(0), "Number of CPU-pinned poller goroutines")
	fs.StringVar(&cfg.MetricsAddress, "metrics-address", ":9810", "Address for the Prometheus metrics endpoint (empty to disable)")
	fs.StringVar(&cfg.DiscoverySubNQN, "discovery-nqn", "nqn.2014-08.org.nvmexpress.discovery", "NQN the Discovery subsystem is registered under")
	fs.IntVar(&cfg.DiscoveryPollerCore, "discovery-poller-core", 0, "Poller core the Discovery subsystem is pinned to")
	fs.IntVar(&cfg.MaxConnectionsPerSession, "max-connections-per-session", 8, "Maximum connections a single session may accumulate")
	fs.IntVar(&cfg.BreakerConsecutiveFailures, "breaker-consecutive-failures", 3, "Consecutive passthrough submission failures before a subsystem's circuit opens")
	fs.DurationVar(&cfg.BreakerTimeout, "breaker-timeout", 30*time.Second, "How long a subsystem's circuit stays open before a half-open retry")
	fs.DurationVar(&cfg.BreakerInterval, "breaker-interval", time.Minute, "Closed-state failure count reset period")
	fs.Float64Var(&cfg.ConnectRateLimit, "connect-rate-limit", 500, "Maximum fabric Connect attempts per second across the whole pool")
	fs.IntVar(&cfg.ConnectRateBurst, "connect-rate-burst", 100, "Burst size for the Connect attempt limiter")
	fs.BoolVar(&cfg.Version, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	if cfg.NumPollerCores < 1 {
		return nil, fmt.Errorf("poller-cores must be >= 1, got %d", cfg.NumPollerCores)
	}
	if cfg.DiscoveryPollerCore >= cfg.NumPollerCores {
		return nil, fmt.Errorf("discovery-poller-core %d is out of range for %d poller cores", cfg.DiscoveryPollerCore, cfg.NumPollerCores)
	}

	return cfg, nil
}
