package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"file-scan-backend/config"
	v1 "file-scan-backend/internal/delivery/http/v1"
	"file-scan-backend/internal/domain"
	"file-scan-backend/internal/repository/memory"
	"file-scan-backend/internal/repository/postgres"
	redisrepo "file-scan-backend/internal/repository/redis"
	s3repo "file-scan-backend/internal/repository/s3"
	"file-scan-backend/internal/usecase"
	"file-scan-backend/pkg/database"
	"file-scan-backend/pkg/logger"
	"file-scan-backend/pkg/redis"
	"file-scan-backend/pkg/security"
	"file-scan-backend/pkg/security/antivirus"
	"file-scan-backend/pkg/security/heuristic"
	"file-scan-backend/pkg/security/reputation"
	"file-scan-backend/pkg/storage"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
)

// @title           File Scan API
// @version         1.0
// @description     Inspects uploaded files with antivirus, code heuristics and hash reputation.
// @host            localhost:8080
// @BasePath        /v1
func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	gin.SetMode(cfg.GinMode)

	// 2. Setup Logger
	logger.Init(cfg.LogLevel)
	logger.Log.Info("Starting file scan backend", "port", cfg.Port)

	audit := security.NewAuditLogger("file-scan-backend", security.Environment())
	defer audit.Sync()

	ctx := context.Background()

	// 3. Setup Database (optional)
	var dbPool *pgxpool.Pool
	var records domain.ScanRepository = memory.NewScanRepository()
	if cfg.DBUrl != "" {
		dbPool, err = database.NewPostgresConnection(ctx, cfg.DBUrl)
		if err != nil {
			logger.Log.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer dbPool.Close()

		if err := postgres.EnsureScanSchema(ctx, dbPool); err != nil {
			logger.Log.Error("Failed to prepare scan schema", "error", err)
			os.Exit(1)
		}
		records = postgres.NewScanRepository(dbPool)

		if cfg.SecurityLogToDB {
			auditRepo := security.NewAuditEventRepository(dbPool)
			if err := auditRepo.EnsureSchema(ctx); err != nil {
				logger.Log.Warn("Audit events will not be persisted", "error", err)
			} else {
				audit.SetPersistFunc(auditRepo.CreatePersistFunc())
			}
		}
	}

	// 4. Setup Redis (optional)
	var redisClient *goredis.Client
	var statuses domain.ScanStatusRepository = memory.NewStatusRepository()
	if cfg.UpstashRedisURL != "" {
		redisClient, err = redis.NewClient(ctx, redis.Config{URL: cfg.UpstashRedisURL, Password: cfg.UpstashRedisPassword})
		if err != nil {
			logger.Log.Warn("Redis unavailable, using in-memory status tracking", "error", err)
		} else {
			defer redisClient.Close()
			statuses = redisrepo.NewStatusRepository(redisClient, cfg.StatusTTL())
		}
	}

	// 5. Setup Detectors
	var av antivirus.Scanner
	if cfg.ClamAVEnabled {
		av = antivirus.NewLimitedScanner(antivirus.NewClamAVScanner(cfg.ClamAVAddress(), cfg.ClamAVTimeout()), cfg.ClamAVMaxConcurrent)
		if !av.Available(ctx) {
			logger.Log.Warn("ClamAV not reachable, antivirus stage will degrade", "address", cfg.ClamAVAddress())
		}
	} else {
		logger.Log.Warn("ClamAV disabled, files are not signature scanned")
		av = antivirus.NewNoOpScanner()
	}

	rules := heuristic.DefaultRuleSet()
	if cfg.HeuristicRulesFile != "" {
		rules, err = heuristic.LoadRuleFile(cfg.HeuristicRulesFile)
		if err != nil {
			logger.Log.Error("Failed to load heuristic rules", "path", cfg.HeuristicRulesFile, "error", err)
			os.Exit(1)
		}
	}
	heuristicOpts := []heuristic.Option{heuristic.WithMaxBytes(cfg.MaxUploadBytes)}
	if len(cfg.CodeExtensions) > 0 {
		heuristicOpts = append(heuristicOpts, heuristic.WithExtensions(cfg.CodeExtensions))
	}
	heuristics := heuristic.NewScanner(rules, heuristicOpts...)

	var rep usecase.ReputationLookup
	if cfg.VirusTotalAPIKey != "" {
		opts := []reputation.Option{reputation.WithTimeout(cfg.VirusTotalTimeout())}
		if cfg.VirusTotalBaseURL != "" {
			opts = append(opts, reputation.WithBaseURL(cfg.VirusTotalBaseURL))
		}
		rep = reputation.NewClient(cfg.VirusTotalAPIKey, opts...)
	}

	// 6. Setup Quarantine (optional)
	var archive domain.SampleArchive
	if cfg.QuarantineBucket != "" {
		s3Cfg := storage.NewS3ClientConfigFromEnv()
		s3Client, err := storage.NewS3Client(ctx, s3Cfg)
		if err != nil {
			logger.Log.Warn("Quarantine disabled", "error", err)
		} else {
			if err := storage.CheckBucket(ctx, s3Client, s3Cfg.Bucket); err != nil {
				logger.Log.Warn("Quarantine bucket not reachable", "error", err)
			}
			archive = s3repo.NewQuarantineRepository(storage.NewQuarantine(s3Client, s3Cfg.Bucket))
		}
	}

	// 7. Setup UseCases
	if err := os.MkdirAll(cfg.UploadDir, 0o700); err != nil {
		logger.Log.Error("Upload directory unusable", "path", cfg.UploadDir, "error", err)
		os.Exit(1)
	}

	scanUC := usecase.NewScanUsecase(usecase.ScanDependencies{
		Records:    records,
		Statuses:   statuses,
		Antivirus:  av,
		Heuristics: heuristics,
		Reputation: rep,
		Archive:    archive,
		Audit:      audit,
	}, usecase.ScanConfig{
		MaxUploadBytes:     cfg.MaxUploadBytes,
		MaxConcurrentScans: cfg.MaxConcurrentScans,
	})

	healthDeps := usecase.HealthDependencies{}
	if cfg.ClamAVEnabled {
		healthDeps.Antivirus = av
	}
	if dbPool != nil {
		healthDeps.Database = dbPool
	}
	if redisClient != nil {
		healthDeps.Redis = func(ctx context.Context) error { return redis.HealthCheck(ctx, redisClient) }
	}

	// 8. Setup Router
	router := v1.NewRouter(v1.RouterDeps{
		ScanUC:         scanUC,
		HealthUC:       usecase.NewHealthUsecase(healthDeps),
		UploadLimiter:  security.NewUploadLimiter(redisClient, cfg.UploadRatePerMinute),
		Redis:          redisClient,
		Audit:          audit,
		MaxUploadBytes: scanUC.MaxUploadBytes(),
		Config:         cfg,
	})

	// 9. Start Server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Error("Listen failed", "error", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Server forced to shutdown", "error", err)
	}
	if err := scanUC.Shutdown(shutdownCtx); err != nil {
		logger.Log.Warn("Background scans cancelled", "error", err)
	}

	logger.Log.Info("Server exiting")
}
