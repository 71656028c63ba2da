package model

import "fmt"

// This file defines the wire payloads for the RPC surface in spec.md §6.
// All of it is plain JSON-tagged data; transport lives in internal/rpc.

// CoordinatorAddr identifies where an agent should deliver add_event
// callbacks. A zero value (empty Address) means "don't callback".
type CoordinatorAddr struct {
	Address string `json:"address"`
	Port    int    `json:"port"`
}

// Empty reports whether this address is unset.
func (c CoordinatorAddr) Empty() bool { return c.Address == "" }

// Addr formats the address as "host:port", suitable for dialing.
func (c CoordinatorAddr) Addr() string { return fmt.Sprintf("%s:%d", c.Address, c.Port) }

// --- Scanner RPCs ---

type ExecScanRequest struct {
	Method      string           `json:"method"`
	Timing      string           `json:"timing"`
	Target      string           `json:"target"`
	Ports       []int            `json:"ports"`
	Coordinator CoordinatorAddr  `json:"coordinator"`
}

type PollScanResponse struct {
	Alive bool `json:"alive"`
}

type ScanStateResponse struct {
	PortState  map[int]ScannerPortStateEntry      `json:"port_state"`
	Traffic    map[string]map[int][]Packet        `json:"traffic"` // traffic[target][port]
	Timestamps Timestamps                         `json:"timestamps"`
}

// ScannerPortStateEntry mirrors the original's (state, timestamp) tuple;
// the coordinator only consumes State, but Discovered is kept for
// debug logging / the supplemented probe-duration analysis in
// SPEC_FULL.md §E.1.
type ScannerPortStateEntry struct {
	State      PortState `json:"state"`
	Discovered int64     `json:"discovered"` // epoch seconds
}

type Timestamps struct {
	Begin int64 `json:"begin"`
	End   int64 `json:"end"`
}

// --- Firewall RPCs ---

type StartSnitchRequest struct {
	Patterns    []string        `json:"patterns"`
	LogFile     string          `json:"log_file"`
	IntervalSec float64         `json:"interval_sec"`
	Coordinator CoordinatorAddr `json:"coordinator"`
}

type SnitchStateResponse struct {
	Alerts []Alert `json:"alerts"`
}

// --- Target RPCs ---

type StartMonitorRequest struct {
	ScannerIPs []string `json:"scanner_ips"`
}

type GetTrafficResponse struct {
	// Traffic[scanner][localPort] = packets received from that scanner.
	Traffic map[string]map[int][]Packet `json:"traffic"`
}

type GetOpenPortsResponse struct {
	Ports []int `json:"ports"`
}

// --- Coordinator RPC ---

// AddEventRequest is the reverse callback body agents POST to the
// coordinator. Exactly one of Scanner/Firewall is set, mirroring the
// Event sum type.
type AddEventRequest struct {
	Scanner  *ScannerCompletion `json:"scanner,omitempty"`
	Firewall *Alert             `json:"firewall,omitempty"`
}

// ToEvent converts the wire payload into the in-process Event sum type.
func (r AddEventRequest) ToEvent() Event {
	if r.Scanner != nil {
		return NewScannerEvent(r.Scanner.Scanner, r.Scanner.Target)
	}
	return NewFirewallEvent(*r.Firewall)
}

// FromEvent builds the wire payload for an Event.
func FromEvent(e Event) AddEventRequest {
	if e.IsScanner() {
		return AddEventRequest{Scanner: e.ScannerDone}
	}
	return AddEventRequest{Firewall: &e.FirewallHit.Alert}
}
