package v1

import (
	"net/http"

	"file-scan-backend/config"
	"file-scan-backend/internal/delivery/http/middleware"
	"file-scan-backend/internal/delivery/http/response"
	"file-scan-backend/internal/domain"
	"file-scan-backend/internal/usecase"
	"file-scan-backend/pkg/security"
	"file-scan-backend/pkg/validation"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	goredis "github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

type RouterDeps struct {
	ScanUC         domain.ScanUsecase
	HealthUC       usecase.HealthUsecase
	UploadLimiter  *security.UploadLimiter
	Redis          *goredis.Client // optional, backs the global rate limit
	Audit          *security.AuditLogger
	MaxUploadBytes int64
	Config         *config.Config
}

func NewRouter(deps RouterDeps) *gin.Engine {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		validation.RegisterValidators(v)
	}

	r := gin.New()

	// Global Middlewares
	r.Use(middleware.CORSMiddleware(deps.Config.AllowedOrigins, deps.Config.IsProduction())) // CORS must be first!
	r.Use(gin.Recovery())
	r.Use(gin.Logger())
	r.Use(middleware.RequestID())
	r.Use(middleware.SecurityHeadersMiddleware())
	r.Use(middleware.ErrorHandler())

	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		Limit:     deps.Config.RateLimitGlobalThreshold,
		Window:    deps.Config.RateLimitWindow(),
		KeyPrefix: "rl:ip:",
	}, deps.Redis, deps.Audit)
	r.Use(limiter.Middleware())

	v1 := r.Group("/v1")

	// Health Check
	v1.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, "System operational", deps.HealthUC.Check(c.Request.Context()))
	})

	NewScanHandler(v1, deps.ScanUC, deps.MaxUploadBytes, deps.Config.UploadDir,
		middleware.UploadRateLimit(deps.UploadLimiter, deps.Audit))

	// Swagger
	v1.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
