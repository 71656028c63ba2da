package scanner

import "regexp"

// These match the three probe-output line families from spec.md §4.3.
// They're deliberately loose (the probe binary is an external
// collaborator per spec.md §1) but anchor on the same tokens the
// original nmap --packet-trace output used (SENT/RCVD/Discovered),
// generalized to any probe that emits a compatible trace.
var (
	sentRe = regexp.MustCompile(
		`SENT.*TCP\s+(?:\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}):\d{1,5}\s*>\s*` +
			`(?P<ip_dst>\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}):(?P<port_dst>\d{1,5})\s*` +
			`(?P<flags>[A-Z]*)\b.*?seq=(?P<seq>\d+)`)

	rcvdRe = regexp.MustCompile(
		`RCVD.*TCP\s+(?P<ip_src>\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}):(?P<port_src>\d{1,5})\s*>\s*` +
			`\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}:\d{1,5}\s*(?P<flags>[A-Z]*)\b.*?seq=(?P<seq>\d+)`)

	connRe = regexp.MustCompile(
		`CONN.*>\s*(?P<ip_dst>\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}):(?P<port_dst>\d{1,5})`)

	portStateRe = regexp.MustCompile(
		`Discovered\s+(?P<state>[\w|]+)\s+port\s+(?P<port>\d+).*on\s+(?P<ip>\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})`)
)

// namedGroups extracts submatches from re into a map keyed by group name,
// skipping the unnamed whole-match group.
func namedGroups(re *regexp.Regexp, line string) (map[string]string, bool) {
	m := re.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	out := make(map[string]string, len(m))
	for i, name := range re.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		out[name] = m[i]
	}
	return out, true
}
