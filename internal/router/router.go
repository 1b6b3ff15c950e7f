package router

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/quizlive-backend/internal/config"
	"github.com/stemsi/quizlive-backend/internal/handler"
	"github.com/stemsi/quizlive-backend/internal/middleware"
	"github.com/stemsi/quizlive-backend/internal/response"
	"github.com/stemsi/quizlive-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth    *handler.AuthHandler
	Quiz    *handler.QuizHandler
	Session *handler.SessionHandler
	WS      *handler.WSHandler
	System  *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// ctx bounds background housekeeping such as the rate limiter sweep.
func SetupRouter(
	ctx context.Context,
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	router.GET("/health", handlers.System.Health)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	authLimiter := middleware.NewRateLimiter(ctx, cfg.AuthRateLimit, time.Minute)
	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/teacher", authLimiter.Middleware(), handlers.Auth.TeacherLogin)
		auth.GET("/teacher/me", middleware.RequireTeacherJWT(authService), handlers.Auth.TeacherProfile)
	}

	// ─── 2. Public Session Lookup ──────────────────────────────────────
	public := router.Group("/api/v1")
	{
		public.GET("/sessions/:code", middleware.NoStore(), handlers.Session.SessionStatus)
	}

	// ─── 3. Teacher Group (JWT) ────────────────────────────────────────
	teacherAPI := router.Group("/api/v1/teacher")
	teacherAPI.Use(middleware.RequireTeacherJWT(authService))
	{
		teacherAPI.GET("/sessions/:code/leaderboard", middleware.NoStore(), handlers.Session.Leaderboard)
		teacherAPI.GET("/system/metrics", handlers.System.MetricsSSE)

		quizzes := teacherAPI.Group("/quizzes")
		quizzes.Use(handlers.Quiz.RequirePersistence())
		{
			quizzes.POST("", handlers.Quiz.CreateQuiz)
			quizzes.GET("", handlers.Quiz.ListQuizzes)
			quizzes.GET("/:id", handlers.Quiz.GetQuiz)
			quizzes.POST("/:id/questions", handlers.Quiz.AddQuestion)
		}
	}

	// ─── 4. WebSocket (token optional, checked by the handler) ─────────
	ws := router.Group("/ws/v1")
	{
		ws.GET("/quiz", handlers.WS.QuizStream)
	}

	return router
}
