package model

import "github.com/google/uuid"

// PortState is the classification of a single port.
type PortState string

const (
	PortOpen   PortState = "open"
	PortClosed PortState = "closed"
)

// ScanMethodConnect is the connect-style scan selector: its probe traffic
// carries flags only, never a sequence number.
const ScanMethodConnect = "-sT"

// Subpart is the atomic dispatch unit: one target and a subset of the
// experiment's port set. ID tags the parallel strategy's dispatch log
// line (as job_id); it is not sent to the scanner and does not appear
// in completion events.
type Subpart struct {
	ID     string
	Target string
	Ports  []int
}

// NewSubpartID returns a fresh job identifier for a dispatched subpart.
func NewSubpartID() string { return uuid.NewString() }

// Packet is one observed TCP exchange. Seq is unset (zero-value ignored,
// see HasSeq) for the connect-style scan, which doesn't expose sequence
// numbers.
type Packet struct {
	Flags  string
	Seq    int
	HasSeq bool
}

// Matches reports whether two packets are considered the same exchange
// for fusion purposes: full (flags, seq) equality everywhere except the
// connect-style scan, where only flags are compared.
func (p Packet) Matches(other Packet, scanMethod string) bool {
	if scanMethod == ScanMethodConnect {
		return p.Flags == other.Flags
	}
	return p.Flags == other.Flags && p.Seq == other.Seq
}

// ScannerPortState is one scanner's classification of a target port, and
// which scanner produced it.
type ScannerPortState struct {
	State   PortState
	Scanner string
}

// PortStateObservations holds the two independent ground-truth/reported
// maps described in spec.md §3.
type PortStateObservations struct {
	// Targets[target][port] = ground truth from the target's listening sockets.
	Targets map[string]map[int]PortState
	// Scanners[target][port] = the scanner-reported classification.
	Scanners map[string]map[int]ScannerPortState
}

func NewPortStateObservations() *PortStateObservations {
	return &PortStateObservations{
		Targets:  make(map[string]map[int]PortState),
		Scanners: make(map[string]map[int]ScannerPortState),
	}
}

// TrafficObservations holds the two independent packet-exchange maps
// described in spec.md §3.
type TrafficObservations struct {
	// Scanners[scanner][target][port] = packets the scanner's probe saw.
	Scanners map[string]map[string]map[int][]Packet
	// Targets[target][scanner][port] = packets the target's sniffer saw.
	Targets map[string]map[string]map[int][]Packet
}

func NewTrafficObservations() *TrafficObservations {
	return &TrafficObservations{
		Scanners: make(map[string]map[string]map[int][]Packet),
		Targets:  make(map[string]map[string]map[int][]Packet),
	}
}

// Alert is a firewall detection event, as produced by the log snitch.
type Alert struct {
	Patterns   []string `json:"patterns"`
	DetectedBy string   `json:"detected_by"`
	IPSrc      string   `json:"ip_src"`
	IPDst      string   `json:"ip_dst"`
	Date       int64    `json:"date"` // epoch seconds
}

// Event is the sum type fed into the coordinator's event queue: exactly
// one of ScannerDone or FirewallHit is non-nil. Consumers use IsScanner/
// IsFirewall rather than a string tag, keeping the dispatch switch typed.
type Event struct {
	ScannerDone  *ScannerCompletion
	FirewallHit  *FirewallDetection
}

// ScannerCompletion reports that a scanner finished its current subpart.
type ScannerCompletion struct {
	Scanner string
	Target  string
}

// FirewallDetection reports that a firewall flagged a scanner.
type FirewallDetection struct {
	Alert Alert
}

// NewScannerEvent builds an Event wrapping a scanner completion.
func NewScannerEvent(scanner, target string) Event {
	return Event{ScannerDone: &ScannerCompletion{Scanner: scanner, Target: target}}
}

// NewFirewallEvent builds an Event wrapping a firewall detection.
func NewFirewallEvent(alert Alert) Event {
	return Event{FirewallHit: &FirewallDetection{Alert: alert}}
}

// IsScanner reports whether this event is a scanner completion.
func (e Event) IsScanner() bool { return e.ScannerDone != nil }

// IsFirewall reports whether this event is a firewall detection.
func (e Event) IsFirewall() bool { return e.FirewallHit != nil }
