package antivirus

import (
	"context"
)

// Result contains the outcome of one antivirus scan.
type Result struct {
	Infected   bool     // True if the engine matched at least one signature
	Signatures []string // Matched signature names, empty when clean
	Engine     string   // Name of the scanner that produced this result
}

// Scanner is the interface for pluggable antivirus engines.
// A returned error means the engine produced no verdict; callers decide
// whether to degrade or abort. Errors match ErrEngineUnavailable or
// ErrScanTimeout via errors.Is, or are the context error on cancellation.
type Scanner interface {
	Scan(ctx context.Context, path string) (Result, error)

	// Name returns the scanner implementation name (for logging)
	Name() string

	// Available checks if the scanner is operational
	Available(ctx context.Context) bool
}

// NoOpScanner always reports clean.
// Use for development/testing only
type NoOpScanner struct{}

var _ Scanner = (*NoOpScanner)(nil) // Compile-time interface check

func (n *NoOpScanner) Scan(ctx context.Context, path string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return Result{Engine: n.Name()}, nil
}

func (n *NoOpScanner) Name() string {
	return "noop"
}

func (n *NoOpScanner) Available(ctx context.Context) bool {
	return true
}

// NewNoOpScanner creates a no-op scanner for development
func NewNoOpScanner() *NoOpScanner {
	return &NoOpScanner{}
}
