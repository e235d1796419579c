// Command nvmf-targetd runs the NVMe-oF target dispatch core: a fixed
// pool of CPU-pinned pollers serving Connect, Property Get/Set, and
// Discovery/NVMe admin and I/O commands against subsystems registered in
// an in-memory registry. Adapted from cmd/rds-csi-plugin/main.go's
// flag-parse, metrics-server, signal-driven-shutdown shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"k8s.io/klog/v2"

	"git.srvlab.io/whiskey/nvmf-targetd/internal/breaker"
	"git.srvlab.io/whiskey/nvmf-targetd/internal/config"
	"git.srvlab.io/whiskey/nvmf-targetd/internal/metrics"
	"git.srvlab.io/whiskey/nvmf-targetd/internal/poller"
	"git.srvlab.io/whiskey/nvmf-targetd/internal/reconcile"
	"git.srvlab.io/whiskey/nvmf-targetd/internal/subsystem"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	klog.InitFlags(nil)

	cfg, err := config.Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		klog.Fatalf("config: %v", err)
	}

	if cfg.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	m := metrics.New()

	registry := subsystem.NewMemoryRegistry()
	discovery := subsystem.NewDiscovery(cfg.DiscoverySubNQN, cfg.DiscoveryPollerCore, cfg.MaxConnectionsPerSession)
	if err := registry.Register(discovery); err != nil {
		klog.Fatalf("registering discovery subsystem: %v", err)
	}

	cb := breaker.New(cfg.BreakerConsecutiveFailures, cfg.BreakerTimeout, cfg.BreakerInterval)

	pool := poller.NewPool(cfg.NumPollerCores, cfg.ConnectRateLimit, cfg.ConnectRateBurst)
	defer pool.Stop()

	m.SetActiveSessionGauge(pool.SessionCount)
	m.SetAERSlotGauge(pool.AERPinnedCount)

	sweeper := reconcile.NewSweeper(func(subnqn string, err error) {
		if err != nil {
			klog.Warningf("AER release on teardown for subsystem %s failed: %v", subnqn, err)
		}
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sweeper.Start(ctx)
	defer sweeper.Stop()

	// One Dispatcher per poller core; the transport (RDMA/TCP framing,
	// buffer registration) is external per spec.md §1 and, on accepting a
	// connection pinned to core i, calls dispatchers[i].Exec per received
	// command.
	dispatchers := make([]*poller.Dispatcher, cfg.NumPollerCores)
	for i := range dispatchers {
		dispatchers[i] = poller.NewDispatcher(i, pool, registry, cb, m, sweeper)
	}
	klog.V(2).Infof("built %d dispatchers for external transport binding", len(dispatchers))

	if cfg.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		server := &http.Server{Addr: cfg.MetricsAddress, Handler: mux}
		go func() {
			klog.Infof("starting metrics server on %s", cfg.MetricsAddress)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				klog.Errorf("metrics server failed: %v", err)
			}
		}()
		defer server.Close()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	klog.Infof("nvmf-targetd started with %d poller cores", cfg.NumPollerCores)
	sig := <-sigCh
	klog.Infof("received signal %s, shutting down", sig)
}
