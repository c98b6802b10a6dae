package usecase

import (
	"fmt"
	"strings"

	"file-scan-backend/internal/domain"
)

// NoIssuesSummary is the summary text of a scan without findings.
const NoIssuesSummary = "No security issues were detected in this file."

const genericRiskFactor = "potential security concern detected"

var closingByLevel = map[domain.ThreatLevel]string{
	domain.ThreatHigh:   "This file poses a serious security risk and should not be opened, executed or shared.",
	domain.ThreatMedium: "This file contains potentially risky patterns and should be reviewed carefully before use.",
	domain.ThreatLow:    "The findings are informational and are unlikely to pose a direct threat.",
}

var recommendationsByLevel = map[domain.ThreatLevel][]string{
	domain.ThreatHigh: {
		"Do not open or execute this file.",
		"Delete the file or keep it quarantined for analysis.",
		"Scan any system that has already opened this file.",
	},
	domain.ThreatMedium: {
		"Review the flagged code before running it.",
		"Run the file only in an isolated environment.",
	},
	domain.ThreatLow: {
		"Review the noted items when convenient.",
	},
	domain.ThreatNone: {
		"No action required.",
	},
}

// BuildSummary derives the narrative verdict from the record's findings.
// notes are carried through verbatim.
func BuildSummary(record *domain.ScanRecord, notes []string) domain.Summary {
	level := domain.AggregateThreatLevel(record.Findings)

	summary := domain.Summary{
		RiskFactors:     make([]string, 0, len(record.Findings)),
		Recommendations: append([]string(nil), recommendationsByLevel[level]...),
		Notes:           notes,
	}
	if len(record.Findings) == 0 {
		summary.Text = NoIssuesSummary
		return summary
	}

	for _, f := range record.Findings {
		details := strings.TrimSpace(f.Details)
		if details == "" {
			details = genericRiskFactor
		}
		summary.RiskFactors = append(summary.RiskFactors, fmt.Sprintf("%s: %s", f.Name, details))
	}

	noun := "issues"
	if len(record.Findings) == 1 {
		noun = "issue"
	}
	text := fmt.Sprintf("Analysis identified %d potential security %s (%s).",
		len(record.Findings), noun, strings.Join(record.DetectionTypes(), ", "))
	if closing := closingByLevel[level]; closing != "" {
		text += " " + closing
	}
	summary.Text = text
	return summary
}
