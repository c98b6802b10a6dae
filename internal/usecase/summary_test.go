package usecase

import (
	"testing"
	"time"

	"file-scan-backend/internal/domain"

	"github.com/stretchr/testify/assert"
)

func recordWith(findings ...domain.Detection) *domain.ScanRecord {
	r := domain.NewScanRecord("id", domain.FileInfo{Name: "f"}, time.Now())
	_ = r.AddFindings(findings...)
	return r
}

func TestBuildSummary_NoFindings(t *testing.T) {
	s := BuildSummary(recordWith(), nil)
	assert.Equal(t, NoIssuesSummary, s.Text)
	assert.Equal(t, []string{}, s.RiskFactors)
	assert.Equal(t, []string{"No action required."}, s.Recommendations)
}

func TestBuildSummary_RiskFactorsInOrder(t *testing.T) {
	s := BuildSummary(recordWith(
		domain.Detection{Name: "External URL", Type: domain.DetectionNetwork, Risk: domain.ThreatLow, Details: "2 matches"},
		domain.Detection{Name: "Weak PRNG", Type: domain.DetectionCrypto, Risk: domain.ThreatLow},
		domain.Detection{Name: "Another URL", Type: domain.DetectionNetwork, Risk: domain.ThreatLow, Details: "  "},
	), []string{"note"})

	assert.Equal(t, []string{
		"External URL: 2 matches",
		"Weak PRNG: " + genericRiskFactor,
		"Another URL: " + genericRiskFactor,
	}, s.RiskFactors)
	assert.Equal(t, "Analysis identified 3 potential security issues (network, crypto). "+closingByLevel[domain.ThreatLow], s.Text)
	assert.Equal(t, []string{"note"}, s.Notes)
}

func TestBuildSummary_ClosingFollowsLevel(t *testing.T) {
	high := BuildSummary(recordWith(domain.Detection{Name: "Eicar", Type: domain.DetectionMalware}), nil)
	assert.Contains(t, high.Text, closingByLevel[domain.ThreatHigh])
	assert.Len(t, high.Recommendations, 3)

	medium := BuildSummary(recordWith(domain.Detection{Name: "DOM", Type: domain.DetectionXSS, Risk: domain.ThreatMedium}), nil)
	assert.Contains(t, medium.Text, closingByLevel[domain.ThreatMedium])
	assert.Contains(t, medium.Text, "1 potential security issue (xss)")
}
