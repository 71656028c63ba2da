// Package config loads the JSON experiment-matrix configuration file
// described in spec.md §6, the way neoAgent/internal/config/loader.go
// layers a viper instance over a config file.
package config

import (
	"fmt"
	"time"

	"distscan/internal/model"
)

// Config is the top-level JSON document.
type Config struct {
	Hosts       HostsConfig       `mapstructure:"hosts" json:"hosts"`
	Experiments ExperimentsConfig `mapstructure:"experiments" json:"experiments"`
}

// HostsConfig lists the agent endpoints available to the engine. Addresses
// may use the "A.B.C.x-y" range syntax, expanded by ExpandHostRanges.
type HostsConfig struct {
	Scanners  []model.Host `mapstructure:"scanners" json:"scanners"`
	Firewalls []model.Host `mapstructure:"firewalls" json:"firewalls"`
	Targets   []model.Host `mapstructure:"targets" json:"targets"`
}

// FirewallArgs configures the log snitch dispatched to every firewall at
// the start of a parallel-strategy run.
type FirewallArgs struct {
	Patterns []string `mapstructure:"patterns" json:"patterns"`
	LogFile  string   `mapstructure:"logfile" json:"logfile"`
	Timing   float64  `mapstructure:"timing" json:"timing"` // poll interval, seconds
}

// ExperimentsConfig is the cross-product definition from spec.md §3.
type ExperimentsConfig struct {
	DistributionMethods []string     `mapstructure:"distributionMethods" json:"distributionMethods"`
	ScanMethods         []string     `mapstructure:"scanMethods" json:"scanMethods"`
	ScanTimings         []string     `mapstructure:"scanTimings" json:"scanTimings"`
	ScannerNumberValues []int        `mapstructure:"scannerNumberValues" json:"scannerNumberValues"`
	TargetNumberValues  []int        `mapstructure:"targetNumberValues" json:"targetNumberValues"`
	Count               int          `mapstructure:"count" json:"count"`
	Ports               []int        `mapstructure:"ports" json:"ports"`
	FirewallArgs        FirewallArgs `mapstructure:"firewall_args" json:"firewall_args"`
	// PollIntervalMS overrides the parallel strategy's idle event-queue
	// poll interval (milliseconds). Zero keeps the strategy's built-in
	// default.
	PollIntervalMS int `mapstructure:"poll_interval_ms" json:"poll_interval_ms"`
}

// TimingDelay maps a scan timing name to the inter-poll delay the naive
// strategy sleeps while waiting on a scanner, mirroring the source's
// core/common.py timing_sleep: insane/aggressive never sleep,
// normal/polite sleep 1s, sneaky/paranoid sleep 5s. Unrecognized timings
// don't sleep at all.
func TimingDelay(scanTiming string) time.Duration {
	switch scanTiming {
	case "normal", "polite":
		return 1 * time.Second
	case "sneaky", "paranoid":
		return 5 * time.Second
	default:
		return 0
	}
}

// validDistributionMethods is the set the engine knows how to run.
var validDistributionMethods = map[string]bool{
	"naive":    true,
	"parallel": true,
}

// Validate checks the structural invariants that would otherwise surface
// as a confusing failure deep in an experiment run. Any violation is a
// spec.md §7 category-1 configuration error: fatal at startup.
func (c *Config) Validate() error {
	if len(c.Hosts.Scanners) == 0 {
		return fmt.Errorf("config: no scanner hosts configured")
	}
	if len(c.Hosts.Targets) == 0 {
		return fmt.Errorf("config: no target hosts configured")
	}
	if c.Experiments.Count <= 0 {
		return fmt.Errorf("config: experiments.count must be positive")
	}
	if len(c.Experiments.DistributionMethods) == 0 {
		return fmt.Errorf("config: no distribution methods configured")
	}
	for _, m := range c.Experiments.DistributionMethods {
		if !validDistributionMethods[m] {
			return fmt.Errorf("config: unrecognized distribution method %q", m)
		}
	}
	for _, n := range c.Experiments.ScannerNumberValues {
		if n <= 0 || n > len(c.Hosts.Scanners) {
			return fmt.Errorf("config: scannerNumberValues entry %d exceeds available scanners (%d)", n, len(c.Hosts.Scanners))
		}
	}
	for _, n := range c.Experiments.TargetNumberValues {
		if n <= 0 || n > len(c.Hosts.Targets) {
			return fmt.Errorf("config: targetNumberValues entry %d exceeds available targets (%d)", n, len(c.Hosts.Targets))
		}
	}
	return nil
}

// ExpandHostRanges expands every "A.B.C.x-y" host address in place.
func (c *Config) ExpandHostRanges() error {
	var err error
	if c.Hosts.Scanners, err = model.ExpandHosts(c.Hosts.Scanners); err != nil {
		return fmt.Errorf("expand scanner hosts: %w", err)
	}
	if c.Hosts.Firewalls, err = model.ExpandHosts(c.Hosts.Firewalls); err != nil {
		return fmt.Errorf("expand firewall hosts: %w", err)
	}
	if c.Hosts.Targets, err = model.ExpandHosts(c.Hosts.Targets); err != nil {
		return fmt.Errorf("expand target hosts: %w", err)
	}
	return nil
}
