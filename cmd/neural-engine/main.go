// Command neural-engine runs the Neural Engine control plane: device
// discovery and management, sample ingestion, windowed processing, and
// the tamper-evident ledger, all behind one HTTP API (spec.md §4).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/neurascale/neural-engine/internal/config"
	"github.com/neurascale/neural-engine/internal/logging"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "neural-engine: load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "neural-engine: build logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error(err, "neural-engine: exited with error")
		os.Exit(1)
	}
}

// run wires every component, starts their goroutines under an
// errgroup, and blocks until ctx is cancelled, at which point it drains
// every component with a bounded shutdown grace period.
func run(ctx context.Context, cfg *config.Config, logger logr.Logger) error {
	a, shutdown, err := build(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build components: %w", err)
	}

	for _, w := range a.pipelineWorkers {
		if err := w.source.EnsureGroup(ctx); err != nil {
			return fmt.Errorf("ensure pipeline consumer group: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.ingestionService.Run(gctx)
		return nil
	})

	g.Go(func() error {
		a.deviceManager.RunHealthMonitor(gctx)
		return nil
	})

	g.Go(func() error {
		a.alertHistory.Watch(gctx, a.deviceManager)
		return nil
	})

	for _, w := range a.pipelineWorkers {
		w := w
		g.Go(func() error {
			return w.topology.Run(gctx)
		})
	}

	g.Go(func() error {
		logger.Info("neural-engine: api server listening", "addr", a.apiServer.Addr)
		if err := a.apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	a.metricsServer.StartAsync()

	g.Go(func() error {
		runRootChain(gctx, a, logger)
		return nil
	})

	g.Go(func() error {
		runReconciliation(gctx, a, logger)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		shutdown(shutdownCtx)
		return nil
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// runRootChain ticks the cross-shard root chain at its configured
// cadence until ctx is cancelled (spec.md §4.8: "a cross-shard root
// chain (periodic, e.g. per minute)"). A failed tick is logged and
// retried on the next cadence rather than treated as fatal: a missed
// root entry narrows the window root verification covers, it does not
// corrupt any shard's own chain.
func runRootChain(ctx context.Context, a *app, logger logr.Logger) {
	ticker := time.NewTicker(a.rootChainCadence)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.rootChain.Tick(ctx, time.Now().UnixNano()); err != nil {
				logger.Error(err, "neural-engine: root chain tick failed")
			}
		}
	}
}

// reconciliationInterval is how often each shard's analytical store is
// checked against its chain store for divergence (spec.md §4.8's
// reconciliation job). This is independent of rootChainCadence: root
// chain ticks detect chain tampering, reconciliation detects the
// analytical store silently falling out of sync with its own chain.
const reconciliationInterval = 10 * time.Minute

func runReconciliation(ctx context.Context, a *app, logger logr.Logger) {
	ticker := time.NewTicker(reconciliationInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for shard := 0; shard < a.reconcileShards; shard++ {
				divergences, err := a.reconciler.Reconcile(ctx, shard, 0, maxUint64Seq)
				if err != nil {
					logger.Error(err, "neural-engine: reconciliation failed", "shard", shard)
					continue
				}
				for _, d := range divergences {
					logger.Error(nil, "neural-engine: analytical store divergence detected",
						"shard", d.Shard, "seq", d.Seq, "reason", d.Reason)
				}
			}
		}
	}
}

// maxUint64Seq reconciles from genesis through the highest representable
// sequence number; Reconciler.Reconcile reads no further than each
// shard's actual chain range regardless of this upper bound.
const maxUint64Seq = ^uint64(0)
