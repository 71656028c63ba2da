package distribution

import (
	"context"
	"time"

	"distscan/internal/config"
	"distscan/internal/model"
	"distscan/internal/pkg/logger"
)

// Naive dispatches subparts sequentially, one scanner at a time, polling
// the firewall after each subpart — the "next attacker takes over"
// pattern from spec.md §4.2. This follows the intent of the source's
// newer tree: firewall polling rather than passive alerts, since the
// naive strategy never starts a live log snitch.
type Naive struct{}

func (Naive) Run(ctx context.Context, b *Base, inst Instance) error {
	subparts := GenerateSubparts(hostAddrs(inst.Targets), inst.Ports, DefaultPortsPerSubpart, 0)
	logger.Info("naive: generated subparts", map[string]interface{}{"count": len(subparts)})

	for _, h := range inst.Scanners {
		scanner := h.Address
		if b.isDetected(scanner) {
			continue
		}

		for len(subparts) > 0 {
			sp := subparts[len(subparts)-1]
			subparts = subparts[:len(subparts)-1]

			if err := b.execAndWait(ctx, scanner, sp); err != nil {
				logger.Warn("naive: exec_scan failed, moving to next scanner", map[string]interface{}{
					"scanner": scanner, "error": err.Error(),
				})
				break
			}

			if err := b.fetchAndMergeScanner(ctx, scanner, sp.Target); err != nil {
				logger.Warn("naive: failed to fetch scan state", map[string]interface{}{"scanner": scanner, "error": err.Error()})
			}

			if detected, alert := b.pollFirewalls(ctx); detected != "" {
				b.handleFirewallHit(ctx, alert)
				if detected == scanner {
					break
				}
			}
		}
	}

	return nil
}

// execAndWait runs one subpart synchronously: dispatch, then poll the
// scanner until it is no longer alive. The naive strategy has no event
// queue to wait on, so it polls poll_scan directly instead, sleeping
// config.TimingDelay(scanTiming) between polls — the same
// timing-dependent inter-poll delay the source's naive.py applies via
// common.timing_sleep while waiting on a remote scan.
func (b *Base) execAndWait(ctx context.Context, scanner string, sp model.Subpart) error {
	client := b.scannerClients[scanner]
	req := model.ExecScanRequest{
		Method:      b.inst.ScanMethod,
		Timing:      b.inst.ScanTiming,
		Target:      sp.Target,
		Ports:       sp.Ports,
		Coordinator: model.CoordinatorAddr{}, // naive doesn't rely on the callback
	}
	if err := client.ExecScan(ctx, req); err != nil {
		return err
	}

	delay := config.TimingDelay(b.inst.ScanTiming)
	for {
		poll, err := client.PollScan(ctx)
		if err != nil || !poll.Alive {
			return nil
		}
		if delay > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
		}
	}
}

// pollFirewalls asks every firewall for its accumulated alert list and
// returns the first alert naming one of this instance's scanners, along
// with that scanner's address. Returns ("", zero) if none found.
func (b *Base) pollFirewalls(ctx context.Context) (string, model.Alert) {
	for _, client := range b.firewallClients {
		state, err := client.SnitchState(ctx)
		if err != nil {
			continue
		}
		for _, alert := range state.Alerts {
			if _, ok := b.scannerClients[alert.IPSrc]; ok && !b.isDetected(alert.IPSrc) {
				return alert.IPSrc, alert
			}
		}
	}
	return "", model.Alert{}
}

// handleFirewallHit stops the named scanner, merges its partial
// results, and records it as detected.
func (b *Base) handleFirewallHit(ctx context.Context, alert model.Alert) {
	scanner := alert.IPSrc
	client, ok := b.scannerClients[scanner]
	if !ok {
		logger.Debug("distribution: firewall named unknown scanner, dropping", map[string]interface{}{"scanner": scanner})
		return
	}
	if err := client.StopScan(ctx); err != nil {
		logger.Warn("distribution: stop_scan failed", map[string]interface{}{"scanner": scanner, "error": err.Error()})
	}
	if err := b.fetchAndMergeScanner(ctx, scanner, alert.IPDst); err != nil {
		logger.Warn("distribution: failed to fetch partial results after detection", map[string]interface{}{"scanner": scanner, "error": err.Error()})
	}
	b.markDetected(scanner)
}

func hostAddrs(hosts []model.Host) []string {
	out := make([]string, len(hosts))
	for i, h := range hosts {
		out[i] = h.Address
	}
	return out
}
