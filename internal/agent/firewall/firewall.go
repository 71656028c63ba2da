// Package firewall implements the firewall agent from spec.md §4.4: it
// tails a log file on an interval, matches each new alert record against
// a set of patterns, and reports matches as they occur (and, via
// start_snitch's coordinator, live pushes them as events).
package firewall

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"distscan/internal/model"
	"distscan/internal/pkg/logger"
	"distscan/internal/rpc"
)

// Config configures the snitch loop's defaults. IntervalSec on a
// particular start_snitch request overrides PollInterval.
type Config struct {
	OwnAddr      string
	PollInterval time.Duration
}

func DefaultConfig() Config {
	return Config{PollInterval: 1 * time.Second}
}

// Agent is the firewall's in-process state. A single Agent serves one
// snitch session at a time, reset on each start_snitch.
type Agent struct {
	cfg Config

	mu       sync.Mutex
	patterns []string
	alerts   []model.Alert
	cancel   context.CancelFunc
	running  bool
}

func New(cfg Config) *Agent {
	return &Agent{cfg: cfg}
}

// StartSnitch begins tailing req.LogFile, polling for new content every
// req.IntervalSec (falling back to cfg.PollInterval when unset) and
// matching complete alert records against req.Patterns. Matches
// accumulate in memory for snitch_state, and are additionally pushed to
// req.Coordinator (if set) as they're found, mirroring the original's
// live alerting.
func (a *Agent) StartSnitch(ctx context.Context, req *model.StartSnitchRequest) (*struct{}, error) {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return nil, fmt.Errorf("firewall: a snitch is already running")
	}

	interval := a.cfg.PollInterval
	if req.IntervalSec > 0 {
		interval = time.Duration(req.IntervalSec * float64(time.Second))
	}

	a.patterns = append([]string(nil), req.Patterns...)
	a.alerts = nil

	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.running = true
	a.mu.Unlock()

	logger.Info("firewall: snitch started", map[string]interface{}{
		"log_file": req.LogFile, "patterns": req.Patterns, "interval": interval.String(),
	})

	go a.tail(runCtx, req.LogFile, interval, req.Coordinator)

	return nil, nil
}

// tail polls log_file for new content every interval, accumulating
// newly appended bytes into a buffer and extracting every complete
// three-line alert record out of it (per alertRecordRe). Content
// written before start_snitch is ignored, matching the original's "seek
// to end, then follow" semantics. A record that straddles a poll
// boundary (its first two lines arrive on one tick, its third on the
// next) is kept in the buffer until it completes, rather than lost or
// matched against a single line.
func (a *Agent) tail(ctx context.Context, path string, interval time.Duration, coord model.CoordinatorAddr) {
	f, err := os.Open(path)
	if err != nil {
		logger.Error("firewall: cannot open log file", err, map[string]interface{}{"log_file": path})
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
		return
	}
	defer f.Close()

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		logger.Warn("firewall: seek to end failed", map[string]interface{}{"error": err.Error()})
	}

	var pending string
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			chunk, err := io.ReadAll(f)
			if err != nil {
				logger.Warn("firewall: read failed", map[string]interface{}{"error": err.Error()})
				continue
			}
			if len(chunk) == 0 {
				continue
			}
			pending += string(chunk)

			records := parseRecords(pending)
			if len(records) == 0 {
				continue
			}
			for _, rec := range records {
				a.analyse(rec, coord)
			}
			pending = pending[records[len(records)-1].End:]
		}
	}
}

// analyse matches rec's alert text against every configured pattern,
// case insensitively (substring match, per the original's re.search
// with re.IGNORECASE). All patterns that trip land in a single Alert
// since they describe the same record, matching analyse_output's
// matching_patterns grouping.
func (a *Agent) analyse(rec alertRecord, coord model.CoordinatorAddr) {
	a.mu.Lock()
	patterns := a.patterns
	a.mu.Unlock()

	lower := strings.ToLower(rec.AlertText)
	var hit []string
	for _, p := range patterns {
		if strings.Contains(lower, strings.ToLower(p)) {
			hit = append(hit, p)
		}
	}
	if len(hit) == 0 {
		return
	}

	alert := model.Alert{
		Patterns:   hit,
		DetectedBy: a.cfg.OwnAddr,
		IPSrc:      rec.IPSrc,
		IPDst:      rec.IPDst,
		Date:       recordDate(rec.DateStr),
	}

	a.mu.Lock()
	a.alerts = append(a.alerts, alert)
	a.mu.Unlock()

	logger.Info("firewall: pattern matched", map[string]interface{}{"patterns": hit, "alert": rec.AlertText})

	if coord.Empty() {
		return
	}
	client := rpc.NewCoordinatorClient(coord.Addr())
	ctx, cancel := context.WithTimeout(context.Background(), rpc.DefaultTimeout)
	defer cancel()
	event := model.AddEventRequest{Firewall: &alert}
	if err := client.AddEvent(ctx, event); err != nil {
		logger.Warn("firewall: failed to notify coordinator of alert", map[string]interface{}{"error": err.Error()})
	}
}

// recordDate parses dateStr ("MM/DD-HH:MM:SS", as produced by
// alertRecordRe) against the current local year, since the log's own
// timestamp never carries one. Falls back to the wall clock if dateStr
// fails to parse, which should only happen if alertRecordRe's date group
// is malformed.
func recordDate(dateStr string) int64 {
	now := time.Now()
	withYear := fmt.Sprintf("%04d/%s", now.Year(), dateStr)
	t, err := time.ParseInLocation("2006/01/02-15:04:05", withYear, now.Location())
	if err != nil {
		logger.Warn("firewall: failed to parse alert timestamp", map[string]interface{}{"date": dateStr, "error": err.Error()})
		return now.Unix()
	}
	return t.Unix()
}

// StopSnitch halts the tail loop.
func (a *Agent) StopSnitch(ctx context.Context, _ *struct{}) (*struct{}, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
	}
	a.running = false
	return nil, nil
}

// SnitchState returns every alert seen so far this session.
func (a *Agent) SnitchState(ctx context.Context, _ *struct{}) (*model.SnitchStateResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]model.Alert, len(a.alerts))
	copy(out, a.alerts)
	return &model.SnitchStateResponse{Alerts: out}, nil
}
