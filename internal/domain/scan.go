package domain

import (
	"context"
	"time"
)

// DetectionType categorises a finding.
type DetectionType string

const (
	DetectionMalware            DetectionType = "malware"
	DetectionSuspicious         DetectionType = "suspicious"
	DetectionPhishing           DetectionType = "phishing"
	DetectionAdware             DetectionType = "adware"
	DetectionSpyware            DetectionType = "spyware"
	DetectionObfuscation        DetectionType = "obfuscation"
	DetectionCodeExecution      DetectionType = "code-execution"
	DetectionXSS                DetectionType = "xss"
	DetectionDataLeakage        DetectionType = "data-leakage"
	DetectionFileAccess         DetectionType = "file-access"
	DetectionPrototypePollution DetectionType = "prototype-pollution"
	DetectionCrypto             DetectionType = "crypto"
	DetectionNetwork            DetectionType = "network"
	DetectionOther              DetectionType = "other"
)

var knownDetectionTypes = map[DetectionType]bool{
	DetectionMalware: true, DetectionSuspicious: true, DetectionPhishing: true,
	DetectionAdware: true, DetectionSpyware: true, DetectionObfuscation: true,
	DetectionCodeExecution: true, DetectionXSS: true, DetectionDataLeakage: true,
	DetectionFileAccess: true, DetectionPrototypePollution: true, DetectionCrypto: true,
	DetectionNetwork: true, DetectionOther: true,
}

// ParseDetectionType maps unknown tags to DetectionOther.
func ParseDetectionType(s string) DetectionType {
	t := DetectionType(s)
	if knownDetectionTypes[t] {
		return t
	}
	return DetectionOther
}

// Detection sources
const (
	SourceAntivirus  = "antivirus"
	SourceHeuristic  = "heuristic"
	SourceReputation = "reputation"
)

// Detection is a single finding contributed by one detector.
type Detection struct {
	Name       string        `json:"name"`
	Type       DetectionType `json:"type"`
	Confidence float64       `json:"confidence"`
	Risk       ThreatLevel   `json:"risk,omitempty"` // empty for antivirus signatures
	Details    string        `json:"details,omitempty"`
	Count      int           `json:"count,omitempty"`
	Source     string        `json:"source,omitempty"`
}

// ImpliedRisk is the severity the detection contributes to the verdict.
// Detections without an explicit risk are antivirus hits and imply high.
func (d Detection) ImpliedRisk() ThreatLevel {
	if d.Risk == "" {
		return ThreatHigh
	}
	if !d.Risk.Valid() {
		return ThreatMedium
	}
	return d.Risk
}

// FileInfo is captured at submission and never changes.
type FileInfo struct {
	Name             string `json:"name"`
	DeclaredMimeType string `json:"declared_mime_type"`
	DetectedMimeType string `json:"detected_mime_type,omitempty"`
	SizeBytes        uint64 `json:"size_bytes"`
}

type FileHashes struct {
	MD5    string `json:"md5"`
	SHA1   string `json:"sha1"`
	SHA256 string `json:"sha256"`
}

// Summary is the narrative verdict generated from the findings.
type Summary struct {
	Text            string   `json:"text"`
	RiskFactors     []string `json:"risk_factors"`
	Recommendations []string `json:"recommendations,omitempty"`
	Notes           []string `json:"notes,omitempty"`
}

// ScanRecord is the root aggregate of one submitted file.
type ScanRecord struct {
	ScanID              string      `json:"scan_id"`
	FileInfo            FileInfo    `json:"file_info"`
	FileHashes          FileHashes  `json:"file_hashes"`
	Findings            []Detection `json:"findings"`
	ThreatLevel         ThreatLevel `json:"threat_level"`
	Summary             Summary     `json:"summary"`
	ScanDate            time.Time   `json:"scan_date"`
	ScanDurationSeconds float64     `json:"scan_duration_seconds"`
	Completed           bool        `json:"completed"`
	DegradedStages      []string    `json:"degraded_stages,omitempty"`
}

// NewScanRecord starts an in-flight record.
func NewScanRecord(scanID string, info FileInfo, startedAt time.Time) *ScanRecord {
	return &ScanRecord{
		ScanID:      scanID,
		FileInfo:    info,
		Findings:    []Detection{},
		ThreatLevel: ThreatNone,
		Summary:     Summary{RiskFactors: []string{}},
		ScanDate:    startedAt,
	}
}

// AddFindings appends one detector's output and recomputes the threat level.
func (r *ScanRecord) AddFindings(findings ...Detection) error {
	if r.Completed {
		return ErrRecordFrozen
	}
	r.Findings = append(r.Findings, findings...)
	r.ThreatLevel = AggregateThreatLevel(r.Findings)
	return nil
}

// MarkDegraded records a stage that failed and contributed nothing.
func (r *ScanRecord) MarkDegraded(stage ScanStage) {
	r.DegradedStages = append(r.DegradedStages, string(stage))
}

// Complete freezes the record.
func (r *ScanRecord) Complete(summary Summary, finishedAt time.Time) error {
	if r.Completed {
		return ErrRecordFrozen
	}
	r.ThreatLevel = AggregateThreatLevel(r.Findings)
	r.Summary = summary
	r.ScanDurationSeconds = finishedAt.Sub(r.ScanDate).Seconds()
	r.Completed = true
	return nil
}

// HistoryItem returns the lightweight listing view of the record.
func (r *ScanRecord) HistoryItem() ScanHistoryItem {
	return ScanHistoryItem{
		ID:             r.ScanID,
		FileName:       r.FileInfo.Name,
		FileType:       r.FileInfo.DeclaredMimeType,
		ScanDate:       r.ScanDate,
		ThreatLevel:    r.ThreatLevel,
		DetectionCount: len(r.Findings),
	}
}

// DetectionTypes returns the distinct detection types in first-seen order.
func (r *ScanRecord) DetectionTypes() []string {
	seen := make(map[DetectionType]bool, len(r.Findings))
	types := make([]string, 0, len(r.Findings))
	for _, f := range r.Findings {
		if seen[f.Type] {
			continue
		}
		seen[f.Type] = true
		types = append(types, string(f.Type))
	}
	return types
}

// ScanHistoryItem is one row of the history listing.
type ScanHistoryItem struct {
	ID             string      `json:"id"`
	FileName       string      `json:"file_name"`
	FileType       string      `json:"file_type"`
	ScanDate       time.Time   `json:"scan_date"`
	ThreatLevel    ThreatLevel `json:"threat_level"`
	DetectionCount int         `json:"detection_count"`
}

// ScanState is the coarse status reported to pollers.
type ScanState string

const (
	ScanStatePending    ScanState = "pending"
	ScanStateProcessing ScanState = "processing"
	ScanStateCompleted  ScanState = "completed"
	ScanStateFailed     ScanState = "failed"
)

// ScanStage is a step of the scan pipeline.
type ScanStage string

const (
	StageCreated           ScanStage = "created"
	StageHashing           ScanStage = "hashing"
	StageAVScanning        ScanStage = "av_scanning"
	StageHeuristicScanning ScanStage = "heuristic_scanning"
	StageReputationLookup  ScanStage = "reputation_lookup"
	StageAggregating       ScanStage = "aggregating"
	StageCompleted         ScanStage = "completed"
)

var stageProgress = map[ScanStage]int{
	StageCreated:           0,
	StageHashing:           10,
	StageAVScanning:        30,
	StageHeuristicScanning: 60,
	StageReputationLookup:  80,
	StageAggregating:       90,
	StageCompleted:         100,
}

// Progress returns the 0-100 completion percentage at the start of the stage.
func (s ScanStage) Progress() int {
	return stageProgress[s]
}

// ScanStatus is the polling view of a scan.
type ScanStatus struct {
	ScanID    string    `json:"scan_id"`
	Status    ScanState `json:"status"`
	Progress  int       `json:"progress"`
	Stage     ScanStage `json:"stage,omitempty"`
	Message   string    `json:"message,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SubmitRequest hands a stored upload to the pipeline.
type SubmitRequest struct {
	FilePath         string
	OriginalFileName string
	DeclaredMimeType string
	SizeBytes        uint64
	// RemoveOnComplete deletes FilePath once the scan has finished.
	RemoveOnComplete bool
}

// ScanRepository persists finalized scan records. Records are write-once.
type ScanRepository interface {
	Save(ctx context.Context, record *ScanRecord) error
	GetByID(ctx context.Context, scanID string) (*ScanRecord, error)
	List(ctx context.Context, limit int) ([]ScanHistoryItem, error)
}

// ScanStatusRepository tracks in-flight scan progress.
type ScanStatusRepository interface {
	Set(ctx context.Context, status *ScanStatus) error
	Get(ctx context.Context, scanID string) (*ScanStatus, error)
}

// SampleArchive keeps a copy of dangerous samples.
type SampleArchive interface {
	Archive(ctx context.Context, filePath string, record *ScanRecord) (location string, err error)
}

// ScanUsecase defines the scan pipeline operations.
type ScanUsecase interface {
	Submit(ctx context.Context, req SubmitRequest) (*ScanRecord, error)
	SubmitAsync(ctx context.Context, req SubmitRequest) (*ScanStatus, error)
	GetStatus(ctx context.Context, scanID string) (*ScanStatus, error)
	GetResult(ctx context.Context, scanID string) (*ScanRecord, error)
	ListHistory(ctx context.Context, limit int) ([]ScanHistoryItem, error)
}
