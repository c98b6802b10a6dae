package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"file-scan-backend/internal/domain"
	"file-scan-backend/pkg/apperror"
	"file-scan-backend/pkg/hasher"
	"file-scan-backend/pkg/logger"
	"file-scan-backend/pkg/security"
	"file-scan-backend/pkg/security/antivirus"
	"file-scan-backend/pkg/security/heuristic"
	"file-scan-backend/pkg/security/reputation"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultMaxUploadBytes     int64 = 100 * 1024 * 1024
	MaxUploadBytesCeiling     int64 = 1024 * 1024 * 1024
	DefaultMaxConcurrentScans       = 4
	DefaultHistoryLimit             = 20
	MaxHistoryLimit                 = 100

	// Confidence of an antivirus signature match.
	antivirusConfidence = 1.0
)

var stageMessages = map[domain.ScanStage]string{
	domain.StageCreated:           "Queued for scanning",
	domain.StageHashing:           "Computing file hashes",
	domain.StageAVScanning:        "Scanning with antivirus engine",
	domain.StageHeuristicScanning: "Analyzing code patterns",
	domain.StageReputationLookup:  "Checking hash reputation",
	domain.StageAggregating:       "Aggregating findings",
	domain.StageCompleted:         "Scan completed",
}

var degradedNotes = map[domain.ScanStage]string{
	domain.StageAVScanning:        "Antivirus scan could not be completed; signature matching is not reflected in this result.",
	domain.StageHeuristicScanning: "Code analysis could not be completed; pattern findings may be missing.",
	domain.StageReputationLookup:  "Reputation lookup failed; third-party verdicts are not reflected in this result.",
}

// ReputationLookup is satisfied by *reputation.Client.
type ReputationLookup interface {
	Configured() bool
	Lookup(ctx context.Context, sha256 string) (*reputation.Record, error)
}

// ScanDependencies are the collaborators of the scan pipeline.
// Reputation, Archive and Audit are optional.
type ScanDependencies struct {
	Records    domain.ScanRepository
	Statuses   domain.ScanStatusRepository
	Antivirus  antivirus.Scanner
	Heuristics *heuristic.Scanner
	Reputation ReputationLookup
	Archive    domain.SampleArchive
	Audit      *security.AuditLogger
}

type ScanConfig struct {
	MaxUploadBytes     int64
	MaxConcurrentScans int
}

// ScanUsecase runs uploads through hashing, antivirus, heuristics and
// reputation, then persists the aggregated record.
type ScanUsecase struct {
	records    domain.ScanRepository
	statuses   domain.ScanStatusRepository
	antivirus  antivirus.Scanner
	heuristics *heuristic.Scanner
	reputation ReputationLookup
	archive    domain.SampleArchive
	audit      *security.AuditLogger

	maxUploadBytes int64
	workers        *semaphore.Weighted
	now            func() time.Time
	newID          func() string

	// async scans run on baseCtx so they outlive the request
	baseCtx context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

var _ domain.ScanUsecase = (*ScanUsecase)(nil)

func NewScanUsecase(deps ScanDependencies, cfg ScanConfig) *ScanUsecase {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.MaxUploadBytes > MaxUploadBytesCeiling {
		cfg.MaxUploadBytes = MaxUploadBytesCeiling
	}
	if cfg.MaxConcurrentScans <= 0 {
		cfg.MaxConcurrentScans = DefaultMaxConcurrentScans
	}
	if deps.Antivirus == nil {
		deps.Antivirus = antivirus.NewNoOpScanner()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ScanUsecase{
		records:        deps.Records,
		statuses:       deps.Statuses,
		antivirus:      deps.Antivirus,
		heuristics:     deps.Heuristics,
		reputation:     deps.Reputation,
		archive:        deps.Archive,
		audit:          deps.Audit,
		maxUploadBytes: cfg.MaxUploadBytes,
		workers:        semaphore.NewWeighted(int64(cfg.MaxConcurrentScans)),
		now:            time.Now,
		newID:          uuid.NewString,
		baseCtx:        ctx,
		cancel:         cancel,
	}
}

// MaxUploadBytes is the effective upload limit after clamping.
func (u *ScanUsecase) MaxUploadBytes() int64 {
	return u.maxUploadBytes
}

// Submit runs the whole pipeline before returning the completed record.
func (u *ScanUsecase) Submit(ctx context.Context, req domain.SubmitRequest) (*domain.ScanRecord, error) {
	defer u.release(req)

	info, err := u.validate(ctx, req)
	if err != nil {
		return nil, err
	}

	scanID := u.newID()
	u.audit.LogScanSubmitted(ctx, scanID, info.Name, info.SizeBytes, ctxString(ctx, domain.KeyClientIP), ctxString(ctx, domain.KeyRequestID))
	u.setStatus(ctx, scanID, domain.ScanStatePending, domain.StageCreated, "")

	if err := u.workers.Acquire(ctx, 1); err != nil {
		u.fail(ctx, scanID, domain.StageCreated, "scan cancelled before start")
		return nil, err
	}
	defer u.workers.Release(1)

	return u.execute(ctx, scanID, req, info)
}

// SubmitAsync registers the scan and runs it on a background worker.
func (u *ScanUsecase) SubmitAsync(ctx context.Context, req domain.SubmitRequest) (*domain.ScanStatus, error) {
	info, err := u.validate(ctx, req)
	if err != nil {
		u.release(req)
		return nil, err
	}

	scanID := u.newID()
	status := u.newStatus(scanID, domain.ScanStatePending, domain.StageCreated, "")
	if err := u.statuses.Set(ctx, status); err != nil {
		u.release(req)
		return nil, apperror.Internal(fmt.Errorf("register scan %s: %w", scanID, err))
	}

	u.mu.Lock()
	if u.closing {
		u.mu.Unlock()
		u.release(req)
		u.fail(ctx, scanID, domain.StageCreated, "service shutting down")
		return nil, apperror.ServiceUnavailable("Scanner is shutting down, retry later")
	}
	u.wg.Add(1)
	u.mu.Unlock()

	u.audit.LogScanSubmitted(ctx, scanID, info.Name, info.SizeBytes, ctxString(ctx, domain.KeyClientIP), ctxString(ctx, domain.KeyRequestID))

	go func() {
		defer u.wg.Done()
		defer u.release(req)
		defer u.recoverScan(scanID)

		if err := u.workers.Acquire(u.baseCtx, 1); err != nil {
			u.fail(u.baseCtx, scanID, domain.StageCreated, "scan cancelled before start")
			return
		}
		defer u.workers.Release(1)

		if _, err := u.execute(u.baseCtx, scanID, req, info); err != nil {
			logger.Log.Warn("Async scan failed", "scan_id", scanID, "error", err)
		}
	}()

	return status, nil
}

// Shutdown stops accepting async scans and waits for running ones.
// When ctx expires first, running scans are cancelled and marked failed.
func (u *ScanUsecase) Shutdown(ctx context.Context) error {
	u.mu.Lock()
	u.closing = true
	u.mu.Unlock()

	done := make(chan struct{})
	go func() {
		u.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		u.cancel()
		return nil
	case <-ctx.Done():
		u.cancel()
		<-done
		return ctx.Err()
	}
}

func (u *ScanUsecase) GetStatus(ctx context.Context, scanID string) (*domain.ScanStatus, error) {
	status, err := u.statuses.Get(ctx, scanID)
	if err == nil {
		return status, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, apperror.Internal(err)
	}

	// Status entries expire; the stored record is authoritative for finished scans.
	record, err := u.records.GetByID(ctx, scanID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperror.NotFound("Scan not found")
		}
		return nil, apperror.Internal(err)
	}
	return &domain.ScanStatus{
		ScanID:    record.ScanID,
		Status:    domain.ScanStateCompleted,
		Progress:  domain.StageCompleted.Progress(),
		Stage:     domain.StageCompleted,
		Message:   stageMessages[domain.StageCompleted],
		UpdatedAt: record.ScanDate.Add(time.Duration(record.ScanDurationSeconds * float64(time.Second))),
	}, nil
}

func (u *ScanUsecase) GetResult(ctx context.Context, scanID string) (*domain.ScanRecord, error) {
	record, err := u.records.GetByID(ctx, scanID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperror.NotFound("Scan result not found")
		}
		return nil, apperror.Internal(err)
	}
	return record, nil
}

func (u *ScanUsecase) ListHistory(ctx context.Context, limit int) ([]domain.ScanHistoryItem, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	items, err := u.records.List(ctx, limit)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return items, nil
}

func (u *ScanUsecase) validate(ctx context.Context, req domain.SubmitRequest) (domain.FileInfo, error) {
	if req.FilePath == "" {
		return domain.FileInfo{}, apperror.BadRequest("No file provided")
	}
	if req.SizeBytes > uint64(u.maxUploadBytes) {
		u.reject(ctx, "payload too large")
		return domain.FileInfo{}, apperror.PayloadTooLarge(
			fmt.Sprintf("File exceeds the maximum upload size of %d bytes", u.maxUploadBytes))
	}

	size := int64(math.MaxInt64)
	if req.SizeBytes <= math.MaxInt64 {
		size = int64(req.SizeBytes)
	}
	result, err := security.ValidateUpload(req.OriginalFileName, size, u.maxUploadBytes)
	if err != nil {
		u.reject(ctx, err.Error())
		if errors.Is(err, security.ErrFileTooLarge) {
			return domain.FileInfo{}, apperror.PayloadTooLarge(err.Error())
		}
		return domain.FileInfo{}, apperror.Validation("Invalid upload: "+err.Error(), err)
	}

	return domain.FileInfo{
		Name:             result.FileName,
		DeclaredMimeType: req.DeclaredMimeType,
		SizeBytes:        req.SizeBytes,
	}, nil
}

// execute is the stage machine: Hashing, AVScanning, HeuristicScanning,
// ReputationLookup, Aggregating, Completed. Only hashing failures abort.
func (u *ScanUsecase) execute(ctx context.Context, scanID string, req domain.SubmitRequest, info domain.FileInfo) (*domain.ScanRecord, error) {
	start := u.now()
	log := logger.Log.With("scan_id", scanID)

	u.setStatus(ctx, scanID, domain.ScanStateProcessing, domain.StageHashing, "")
	hashes, err := hasher.ComputeHashes(req.FilePath)
	if err != nil {
		log.Error("Hashing failed", "error", err)
		u.fail(ctx, scanID, domain.StageHashing, "file could not be read")
		return nil, apperror.IO("Failed to read uploaded file", err)
	}

	if mime, err := security.DetectMIME(req.FilePath); err == nil {
		info.DetectedMimeType = mime
	}

	record := domain.NewScanRecord(scanID, info, start)
	record.FileHashes = domain.FileHashes{MD5: hashes.MD5, SHA1: hashes.SHA1, SHA256: hashes.SHA256}

	var notes []string
	degrade := func(stage domain.ScanStage, err error) {
		log.Warn("Detector degraded", "stage", stage, "error", err)
		record.MarkDegraded(stage)
		notes = append(notes, degradedNotes[stage])
		u.audit.LogDetectorDegraded(ctx, scanID, string(stage), err.Error())
	}
	if security.IsExecutableMIME(info.DetectedMimeType) {
		notes = append(notes, "File content is a native executable.")
	}

	// AVScanning
	if err := ctx.Err(); err != nil {
		return nil, u.abort(ctx, scanID, domain.StageAVScanning, err)
	}
	u.setStatus(ctx, scanID, domain.ScanStateProcessing, domain.StageAVScanning, "")
	findings, err := u.scanAntivirus(ctx, scanID, req.FilePath, hashes.SHA256)
	switch {
	case err != nil && ctx.Err() != nil:
		return nil, u.abort(ctx, scanID, domain.StageAVScanning, ctx.Err())
	case err != nil:
		degrade(domain.StageAVScanning, err)
	default:
		_ = record.AddFindings(findings...)
	}

	// HeuristicScanning
	if u.heuristics != nil && u.heuristics.Applies(info.Name) {
		if err := ctx.Err(); err != nil {
			return nil, u.abort(ctx, scanID, domain.StageHeuristicScanning, err)
		}
		u.setStatus(ctx, scanID, domain.ScanStateProcessing, domain.StageHeuristicScanning, "")
		findings, err := u.scanHeuristics(req.FilePath)
		_ = record.AddFindings(findings...)
		if err != nil {
			degrade(domain.StageHeuristicScanning, err)
		}
	}

	// ReputationLookup
	if u.reputation != nil && u.reputation.Configured() {
		if err := ctx.Err(); err != nil {
			return nil, u.abort(ctx, scanID, domain.StageReputationLookup, err)
		}
		u.setStatus(ctx, scanID, domain.ScanStateProcessing, domain.StageReputationLookup, "")
		finding, err := u.lookupReputation(ctx, hashes.SHA256)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, u.abort(ctx, scanID, domain.StageReputationLookup, ctx.Err())
		case err != nil:
			degrade(domain.StageReputationLookup, err)
		case finding != nil:
			_ = record.AddFindings(*finding)
		}
	}

	// Aggregating
	if err := ctx.Err(); err != nil {
		return nil, u.abort(ctx, scanID, domain.StageAggregating, err)
	}
	u.setStatus(ctx, scanID, domain.ScanStateProcessing, domain.StageAggregating, "")
	if err := record.Complete(BuildSummary(record, notes), u.now()); err != nil {
		u.fail(ctx, scanID, domain.StageAggregating, "internal error")
		return nil, apperror.Internal(err)
	}

	// Last chance to observe cancellation before the record becomes permanent.
	if err := ctx.Err(); err != nil {
		return nil, u.abort(ctx, scanID, domain.StageAggregating, err)
	}
	if err := u.records.Save(ctx, record); err != nil {
		log.Error("Failed to persist scan record", "error", err)
		u.fail(ctx, scanID, domain.StageAggregating, "result could not be stored")
		return nil, apperror.Internal(err)
	}

	if record.ThreatLevel == domain.ThreatHigh {
		u.quarantine(ctx, req.FilePath, record)
	}

	u.setStatus(ctx, scanID, domain.ScanStateCompleted, domain.StageCompleted, "")
	u.audit.LogScanCompleted(ctx, scanID, hashes.SHA256, string(record.ThreatLevel), len(record.Findings), record.DegradedStages)
	log.Info("Scan completed",
		"threat_level", record.ThreatLevel,
		"findings", len(record.Findings),
		"degraded", record.DegradedStages,
		"duration_seconds", record.ScanDurationSeconds,
	)
	return record, nil
}

func (u *ScanUsecase) scanAntivirus(ctx context.Context, scanID, path, sha256 string) ([]domain.Detection, error) {
	result, err := u.antivirus.Scan(ctx, path)
	if err != nil {
		return nil, err
	}
	if !result.Infected {
		return nil, nil
	}

	u.audit.LogMalwareDetected(ctx, scanID, sha256, result.Engine, result.Signatures)
	findings := make([]domain.Detection, 0, len(result.Signatures))
	for _, sig := range result.Signatures {
		findings = append(findings, domain.Detection{
			Name:       sig,
			Type:       domain.DetectionMalware,
			Confidence: antivirusConfidence,
			Details:    "Signature match reported by " + result.Engine,
			Source:     domain.SourceAntivirus,
		})
	}
	return findings, nil
}

// scanHeuristics returns the findings it has even when the file was only partly
// analysed; the error then wraps heuristic.ErrTruncated.
func (u *ScanUsecase) scanHeuristics(path string) ([]domain.Detection, error) {
	report, err := u.heuristics.ScanFile(path)
	if err != nil {
		return nil, err
	}
	if report.Truncated {
		err = fmt.Errorf("%w: analysed first %d bytes", heuristic.ErrTruncated, report.BytesScanned)
	}
	findings := make([]domain.Detection, 0, len(report.Threats))
	for _, t := range report.Threats {
		findings = append(findings, domain.Detection{
			Name:       t.Name,
			Type:       domain.ParseDetectionType(t.Type),
			Confidence: t.Confidence,
			Risk:       domain.ThreatLevel(t.Risk),
			Details:    t.Details,
			Count:      t.Count,
			Source:     domain.SourceHeuristic,
		})
	}
	return findings, err
}

// lookupReputation returns nil without error when the service has nothing to add.
func (u *ScanUsecase) lookupReputation(ctx context.Context, sha256 string) (*domain.Detection, error) {
	rec, err := u.reputation.Lookup(ctx, sha256)
	if err != nil {
		if errors.Is(err, reputation.ErrNotFound) || errors.Is(err, reputation.ErrNotConfigured) {
			return nil, nil
		}
		return nil, err
	}
	verdict, ok := rec.Detection()
	if !ok {
		return nil, nil
	}
	return &domain.Detection{
		Name:       verdict.Name,
		Type:       domain.ParseDetectionType(verdict.Type),
		Confidence: domain.ConfidenceForRisk(domain.ThreatLevel(verdict.Risk)),
		Risk:       domain.ThreatLevel(verdict.Risk),
		Details:    verdict.Details,
		Source:     domain.SourceReputation,
	}, nil
}

func (u *ScanUsecase) quarantine(ctx context.Context, path string, record *domain.ScanRecord) {
	if u.archive == nil {
		return
	}
	location, err := u.archive.Archive(ctx, path, record)
	if err != nil {
		logger.Log.Warn("Quarantine failed", "scan_id", record.ScanID, "error", err)
		return
	}
	u.audit.LogSampleQuarantined(ctx, record.ScanID, record.FileHashes.SHA256, location)
}

// recoverScan turns a panic in a background scan into a failed status.
func (u *ScanUsecase) recoverScan(scanID string) {
	r := recover()
	if r == nil {
		return
	}
	logger.Log.Error("Scan panicked", "scan_id", scanID, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))

	stage := domain.StageCreated
	if status, err := u.statuses.Get(context.WithoutCancel(u.baseCtx), scanID); err == nil {
		stage = status.Stage
	}
	u.fail(u.baseCtx, scanID, stage, "internal error")
}

// abort records a cancelled scan as failed. Nothing is persisted.
func (u *ScanUsecase) abort(ctx context.Context, scanID string, stage domain.ScanStage, err error) error {
	logger.Log.Info("Scan cancelled", "scan_id", scanID, "stage", stage, "error", err)
	u.fail(ctx, scanID, stage, "scan cancelled")
	return err
}

func (u *ScanUsecase) fail(ctx context.Context, scanID string, stage domain.ScanStage, reason string) {
	// The failure must be recorded even when ctx is the reason we stopped.
	ctx = context.WithoutCancel(ctx)
	status := u.newStatus(scanID, domain.ScanStateFailed, stage, "Scan failed: "+reason)
	if err := u.statuses.Set(ctx, status); err != nil {
		logger.Log.Warn("Failed to update scan status", "scan_id", scanID, "error", err)
	}
	u.audit.LogScanFailed(ctx, scanID, string(stage), reason)
}

func (u *ScanUsecase) setStatus(ctx context.Context, scanID string, state domain.ScanState, stage domain.ScanStage, message string) {
	if err := u.statuses.Set(ctx, u.newStatus(scanID, state, stage, message)); err != nil {
		logger.Log.Warn("Failed to update scan status", "scan_id", scanID, "error", err)
	}
}

func (u *ScanUsecase) newStatus(scanID string, state domain.ScanState, stage domain.ScanStage, message string) *domain.ScanStatus {
	if message == "" {
		message = stageMessages[stage]
	}
	return &domain.ScanStatus{
		ScanID:    scanID,
		Status:    state,
		Progress:  stage.Progress(),
		Stage:     stage,
		Message:   message,
		UpdatedAt: u.now().UTC(),
	}
}

func (u *ScanUsecase) reject(ctx context.Context, reason string) {
	u.audit.LogUploadRejected(ctx, ctxString(ctx, domain.KeyClientIP), ctxString(ctx, domain.KeyRequestID), reason)
}

func (u *ScanUsecase) release(req domain.SubmitRequest) {
	if !req.RemoveOnComplete || req.FilePath == "" {
		return
	}
	if err := os.Remove(req.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Log.Warn("Failed to remove upload", "path", req.FilePath, "error", err)
	}
}

func ctxString(ctx context.Context, key domain.CtxKey) string {
	v, _ := ctx.Value(key).(string)
	return strings.TrimSpace(v)
}
