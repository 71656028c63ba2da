package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Host is an agent's RPC endpoint: {address, port}.
type Host struct {
	Address string `json:"ip" mapstructure:"ip"`
	Port    int    `json:"port" mapstructure:"port"`
}

// Addr formats the host as "address:port", suitable for dialing.
func (h Host) Addr() string {
	return fmt.Sprintf("%s:%d", h.Address, h.Port)
}

// ExpandHosts expands any compact range addresses ("A.B.C.x-y") in hosts
// into individual Host records, one per address in the range. Hosts whose
// address contains no range syntax pass through unchanged.
func ExpandHosts(hosts []Host) ([]Host, error) {
	expanded := make([]Host, 0, len(hosts))
	for _, h := range hosts {
		addrs, err := expandAddress(h.Address)
		if err != nil {
			return nil, fmt.Errorf("expand host %q: %w", h.Address, err)
		}
		for _, a := range addrs {
			expanded = append(expanded, Host{Address: a, Port: h.Port})
		}
	}
	return expanded, nil
}

// expandAddress expands "192.168.0.10-20" style last-octet ranges. An
// address with no "-" in its last octet is returned as a single-element
// slice unchanged.
func expandAddress(addr string) ([]string, error) {
	lastDot := strings.LastIndex(addr, ".")
	if lastDot == -1 {
		return []string{addr}, nil
	}

	prefix := addr[:lastDot+1]
	lastOctet := addr[lastDot+1:]

	dash := strings.Index(lastOctet, "-")
	if dash == -1 {
		return []string{addr}, nil
	}

	startStr, endStr := lastOctet[:dash], lastOctet[dash+1:]
	start, err := strconv.Atoi(startStr)
	if err != nil {
		return nil, fmt.Errorf("bad range start %q: %w", startStr, err)
	}
	end, err := strconv.Atoi(endStr)
	if err != nil {
		return nil, fmt.Errorf("bad range end %q: %w", endStr, err)
	}
	if start > end {
		return nil, fmt.Errorf("range start %d greater than end %d", start, end)
	}
	if start < 0 || end > 255 {
		return nil, fmt.Errorf("range %d-%d outside octet bounds", start, end)
	}

	out := make([]string, 0, end-start+1)
	for v := start; v <= end; v++ {
		out = append(out, fmt.Sprintf("%s%d", prefix, v))
	}
	return out, nil
}
