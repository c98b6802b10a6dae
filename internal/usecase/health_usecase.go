package usecase

import (
	"context"
	"time"

	"file-scan-backend/pkg/security/antivirus"
)

type HealthUsecase interface {
	Check(ctx context.Context) map[string]string
}

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthDependencies lists what the health check probes. Nil entries are
// reported as "disabled".
type HealthDependencies struct {
	Antivirus antivirus.Scanner
	Database  Pinger
	Redis     func(ctx context.Context) error
}

type healthUsecase struct {
	deps HealthDependencies
}

func NewHealthUsecase(deps HealthDependencies) HealthUsecase {
	return &healthUsecase{deps: deps}
}

// Check reports "ok" unless a configured dependency is down, in which case
// the service still accepts scans and the status is "degraded".
func (u *healthUsecase) Check(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result := map[string]string{"status": "ok"}
	degrade := func(component string, up bool) {
		if up {
			result[component] = "available"
			return
		}
		result[component] = "unavailable"
		result["status"] = "degraded"
	}

	if u.deps.Antivirus == nil {
		result["antivirus"] = "disabled"
	} else {
		degrade("antivirus", u.deps.Antivirus.Available(ctx))
		result["antivirus_engine"] = u.deps.Antivirus.Name()
	}

	if u.deps.Database == nil {
		result["database"] = "disabled"
	} else {
		degrade("database", u.deps.Database.Ping(ctx) == nil)
	}

	if u.deps.Redis == nil {
		result["redis"] = "disabled"
	} else {
		degrade("redis", u.deps.Redis(ctx) == nil)
	}

	return result
}
