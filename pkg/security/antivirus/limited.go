package antivirus

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// LimitedScanner bounds the number of concurrent calls into a shared engine.
type LimitedScanner struct {
	next Scanner
	sem  *semaphore.Weighted
}

var _ Scanner = (*LimitedScanner)(nil)

// NewLimitedScanner allows at most maxConcurrent in-flight scans on next.
func NewLimitedScanner(next Scanner, maxConcurrent int) *LimitedScanner {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &LimitedScanner{
		next: next,
		sem:  semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

// Scan waits for a free slot; a cancelled ctx abandons the wait.
func (l *LimitedScanner) Scan(ctx context.Context, path string) (Result, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return Result{}, err
	}
	defer l.sem.Release(1)
	return l.next.Scan(ctx, path)
}

func (l *LimitedScanner) Name() string {
	return l.next.Name()
}

func (l *LimitedScanner) Available(ctx context.Context) bool {
	return l.next.Available(ctx)
}
