package domain

// ThreatLevel is the severity scale shared by detections and scan verdicts.
// Ordering: none < low < medium < high.
type ThreatLevel string

const (
	ThreatNone   ThreatLevel = "none"
	ThreatLow    ThreatLevel = "low"
	ThreatMedium ThreatLevel = "medium"
	ThreatHigh   ThreatLevel = "high"
)

var threatRank = map[ThreatLevel]int{
	ThreatNone:   0,
	ThreatLow:    1,
	ThreatMedium: 2,
	ThreatHigh:   3,
}

// Rank returns the position of the level on the severity scale.
// Unknown values rank as none.
func (t ThreatLevel) Rank() int {
	return threatRank[t]
}

// Valid reports whether t is one of the four known levels.
func (t ThreatLevel) Valid() bool {
	_, ok := threatRank[t]
	return ok
}

// MaxThreatLevel returns the more severe of a and b.
func MaxThreatLevel(a, b ThreatLevel) ThreatLevel {
	if b.Rank() > a.Rank() {
		return b
	}
	if !a.Valid() {
		return ThreatNone
	}
	return a
}

// AggregateThreatLevel is the maximum implied risk over findings.
// An empty slice yields none. Adding a finding can never lower the result.
func AggregateThreatLevel(findings []Detection) ThreatLevel {
	level := ThreatNone
	for _, d := range findings {
		level = MaxThreatLevel(level, d.ImpliedRisk())
		if level == ThreatHigh {
			break
		}
	}
	return level
}

// ConfidenceForRisk maps a heuristic risk to the confidence reported on its detection.
func ConfidenceForRisk(risk ThreatLevel) float64 {
	switch risk {
	case ThreatHigh:
		return 0.9
	case ThreatMedium:
		return 0.7
	case ThreatLow:
		return 0.5
	default:
		return 0
	}
}
