package firewall

import "regexp"

// alertRecordRe matches one Snort-style IDS alert record — the format
// spec.md §4.4 and original_source/remote/firewall.py's alert_pattern_re
// both describe as three lines:
//
//	[**] [gid:sid:rev] alert-text [**]
//	<classification/priority line>
//	MM/DD-HH:MM:SS.micros ip_src -> ip_dst
//
// The alert text, timestamp (year-less) and both addresses live on
// different lines of the same record, so matching has to operate on the
// whole record, not a single log line.
var alertRecordRe = regexp.MustCompile(
	`\[\*\*\] \[[^\]]*\] (?P<alert>.*) \[\*\*\]\n` +
		`.*\n` +
		`(?P<date>\d{2}/\d{2}-\d{2}:\d{2}:\d{2})\.\d+ ` +
		`(?P<ip_src>\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})` +
		` -> ` +
		`(?P<ip_dst>\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})\n`,
)

var alertRecordGroups = alertRecordRe.SubexpNames()

// alertRecord is one parsed occurrence of alertRecordRe. End is the byte
// offset in the source buffer just past the match, so callers can trim
// already-consumed records while keeping any trailing partial one.
type alertRecord struct {
	AlertText string
	DateStr   string // "MM/DD-HH:MM:SS", year not yet known
	IPSrc     string
	IPDst     string
	End       int
}

// parseRecords scans buf for every complete alert record it contains.
// Mirrors analyse_output's approach of joining all newly read lines and
// running finditer over the whole blob, since a record spans three
// lines and can't be recognized one line at a time.
func parseRecords(buf string) []alertRecord {
	matches := alertRecordRe.FindAllStringSubmatchIndex(buf, -1)
	records := make([]alertRecord, 0, len(matches))
	for _, m := range matches {
		rec := alertRecord{End: m[1]}
		for i, name := range alertRecordGroups {
			if name == "" || m[2*i] < 0 {
				continue
			}
			val := buf[m[2*i]:m[2*i+1]]
			switch name {
			case "alert":
				rec.AlertText = val
			case "date":
				rec.DateStr = val
			case "ip_src":
				rec.IPSrc = val
			case "ip_dst":
				rec.IPDst = val
			}
		}
		records = append(records, rec)
	}
	return records
}
