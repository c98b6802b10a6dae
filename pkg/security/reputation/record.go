package reputation

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// MaliciousHighThreshold is the engine count at which a hash is rated high risk.
const MaliciousHighThreshold = 5

// Record is the analysis summary VirusTotal holds for one hash.
type Record struct {
	SHA256      string
	Malicious   int
	Suspicious  int
	Harmless    int
	Undetected  int
	Reputation  int
	Name        string
	ThreatNames []string
	AnalyzedAt  time.Time
}

// Verdict is the detection a Record contributes, if any.
type Verdict struct {
	Name    string
	Type    string // "malware" or "suspicious"
	Risk    string // "high", "medium" or "low"
	Details string
}

// Engines is the number of engines that produced a verdict.
func (r *Record) Engines() int {
	return r.Malicious + r.Suspicious + r.Harmless + r.Undetected
}

// Detection converts the stats into a verdict. ok is false when no engine flagged the file.
func (r *Record) Detection() (v Verdict, ok bool) {
	if r == nil {
		return Verdict{}, false
	}
	switch {
	case r.Malicious > 0:
		risk := "medium"
		if r.Malicious >= MaliciousHighThreshold {
			risk = "high"
		}
		return Verdict{
			Name:    "VirusTotal: " + r.label(),
			Type:    "malware",
			Risk:    risk,
			Details: fmt.Sprintf("%d of %d engines flagged this file as malicious", r.Malicious, r.Engines()),
		}, true
	case r.Suspicious > 0:
		return Verdict{
			Name:    "VirusTotal: suspicious",
			Type:    "suspicious",
			Risk:    "low",
			Details: fmt.Sprintf("%d of %d engines flagged this file as suspicious", r.Suspicious, r.Engines()),
		}, true
	}
	return Verdict{}, false
}

func (r *Record) label() string {
	if len(r.ThreatNames) == 0 {
		return "malicious"
	}
	names := append([]string(nil), r.ThreatNames...)
	sort.Strings(names)
	if len(names) > 3 {
		names = names[:3]
	}
	return strings.Join(names, ", ")
}
