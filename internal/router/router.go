package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/contestvn/exam-backend/internal/config"
	"github.com/contestvn/exam-backend/internal/handler"
	"github.com/contestvn/exam-backend/internal/middleware"
	"github.com/contestvn/exam-backend/internal/response"
	"github.com/contestvn/exam-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth  *handler.AuthHandler
	Exam  *handler.ExamHandler
	Admin *handler.AdminHandler
}

// HealthChecker probes the primary datastore for the health endpoint.
type HealthChecker interface {
	Touch(ctx context.Context) error
}

// SetupRouter configures all Gin route groups with their middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	db HealthChecker,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Request ID middleware runs globally so every response carries metadata.
	router.Use(response.RequestIDMiddleware())

	router.GET("/health", func(c *gin.Context) {
		if err := db.Touch(c.Request.Context()); err != nil {
			response.Fail(c, http.StatusServiceUnavailable, response.ErrInternal)
			return
		}
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Burst protection for the credential endpoints. The sustained
	// per-identity limits live in the auth service's Redis counters.
	authLimiter := middleware.NewIPRateLimiter(30, time.Minute)

	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/register", handlers.Auth.Register)
		auth.POST("/login", handlers.Auth.Login)

		auth.GET("/me", middleware.RequireUserJWT(authService), handlers.Auth.Me)
		auth.POST("/logout", middleware.RequireUserJWT(authService), handlers.Auth.Logout)
	}

	exam := router.Group("/api/v1/exam")
	exam.Use(middleware.RequireUserJWT(authService))
	{
		exam.GET("/entry", handlers.Exam.GetEntry)
		exam.POST("/quiz/start", handlers.Exam.StartQuiz)
		exam.POST("/quiz/responses", handlers.Exam.RecordResponse)
		exam.POST("/quiz/submit", handlers.Exam.SubmitQuiz)
		exam.POST("/quiz/auto-submit", handlers.Exam.AutoSubmit)
		exam.POST("/essay", handlers.Exam.SubmitEssay)
	}

	admin := router.Group("/api/v1/admin")
	admin.POST("/login", authLimiter.Middleware(), handlers.Auth.AdminLogin)
	{
		guarded := admin.Group("")
		guarded.Use(middleware.RequireAdminJWT(authService))
		guarded.POST("/reset-exam", handlers.Admin.ResetExam)
		guarded.POST("/essay-score", handlers.Admin.GradeEssay)
		guarded.GET("/accounts/:national_id/score-audit", handlers.Admin.AuditScore)
	}

	return router
}
