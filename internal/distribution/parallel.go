package distribution

import (
	"context"
	"time"

	"distscan/internal/model"
	"distscan/internal/pkg/logger"
)

// DefaultPollInterval is how often the parallel loop drains the event
// queue: it waits one interval after every drain, per spec.md §4.2's
// "≈100 ms".
const DefaultPollInterval = 100 * time.Millisecond

// Parallel dispatches subparts event-drivenly: every scanner keeps one
// job outstanding at a time, fed by scanner-completion and
// firewall-detection events as they arrive. This is the strategy
// spec.md §4.2 calls "the interesting one".
type Parallel struct {
	PollInterval time.Duration
}

func (p Parallel) Run(ctx context.Context, b *Base, inst Instance) error {
	interval := p.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	subparts := GenerateSubparts(hostAddrs(inst.Targets), inst.Ports, DefaultPortsPerSubpart, 0)
	logger.Info("parallel: generated subparts", map[string]interface{}{"count": len(subparts)})

	b.startFirewallMonitoring(ctx)

	for _, h := range inst.Scanners {
		b.dispatchSubpart(ctx, &subparts, h.Address)
	}

	nbScanners := len(inst.Scanners)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for len(subparts) > 0 || b.detectedCount() < nbScanners || b.jobCount() > 0 {
		for _, ev := range b.events.drain() {
			b.handleEvent(ctx, ev, &subparts)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	return nil
}

// handleEvent processes one event per spec.md §4.2's main loop body.
func (b *Base) handleEvent(ctx context.Context, ev model.Event, subparts *[]model.Subpart) {
	switch {
	case ev.IsScanner():
		b.decJobs()
		scanner, target := ev.ScannerDone.Scanner, ev.ScannerDone.Target
		logger.Info("parallel: scanner completion event", map[string]interface{}{"scanner": scanner, "target": target})

		if _, ok := b.scannerClients[scanner]; !ok {
			return
		}
		if err := b.fetchAndMergeScanner(ctx, scanner, target); err != nil {
			logger.Warn("parallel: failed to fetch scan state", map[string]interface{}{"scanner": scanner, "error": err.Error()})
		}

		if len(*subparts) > 0 && !b.isDetected(scanner) {
			b.dispatchSubpart(ctx, subparts, scanner)
		}

	case ev.IsFirewall():
		alert := ev.FirewallHit.Alert
		scanner := alert.IPSrc
		logger.Info("parallel: firewall detection event", map[string]interface{}{"scanner": scanner, "target": alert.IPDst})

		client, ok := b.scannerClients[scanner]
		if !ok {
			// Unknown scanner named by the alert; dropped silently per spec.md §4.2.
			logger.Debug("parallel: firewall named unknown scanner, dropping", map[string]interface{}{"scanner": scanner})
			return
		}

		if err := client.StopScan(ctx); err != nil {
			logger.Warn("parallel: stop_scan failed", map[string]interface{}{"scanner": scanner, "error": err.Error()})
		}
		if err := b.fetchAndMergeScanner(ctx, scanner, alert.IPDst); err != nil {
			logger.Warn("parallel: failed to fetch partial results after detection", map[string]interface{}{"scanner": scanner, "error": err.Error()})
		}
		b.markDetected(scanner)
	}
}
