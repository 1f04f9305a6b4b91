package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/r0o773rm1n41/dme-backend/internal/config"
	"github.com/r0o773rm1n41/dme-backend/internal/handler"
	"github.com/r0o773rm1n41/dme-backend/internal/middleware"
	"github.com/r0o773rm1n41/dme-backend/internal/model"
	"github.com/r0o773rm1n41/dme-backend/internal/response"
	"github.com/r0o773rm1n41/dme-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth    *handler.AuthHandler
	Quiz    *handler.QuizHandler
	Admin   *handler.AdminHandler
	Webhook *handler.WebhookHandler
	Monitor *handler.MonitorHandler
	WS      *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
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
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID", "X-Webhook-Signature"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Apply brotli middleware globally.
	router.Use(middleware.Brotli())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for join/auth routes (throttles participant burst traffic
	// at quiz go-live, the one moment the whole cohort hits the API at once).
	joinLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 0. Public Group (No Auth) ─────────────────────────────────────
	publicAPI := router.Group("/api/v1/public")
	{
		publicAPI.GET("/quiz/today", handlers.Quiz.Today)
		publicAPI.GET("/quiz/status", handlers.Quiz.QuizStatus)
		publicAPI.GET("/quiz/leaderboard", handlers.Quiz.Leaderboard)
	}

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/participant/login", joinLimiter.Middleware(), handlers.Auth.ParticipantLogin)
		auth.POST("/admin/login", handlers.Auth.AdminLogin)

		auth.POST("/participant/logout", middleware.RequireParticipantJWT(authService), handlers.Auth.ParticipantLogout)
		auth.GET("/participant/me", middleware.RequireParticipantJWT(authService), handlers.Auth.GetParticipantProfile)
		auth.GET("/admin/me", middleware.RequireAdminJWT(authService), handlers.Auth.GetAdminProfile)
	}

	// ─── 2. Participant Group (JWT + Single Device Session) ────────────
	participantAPI := router.Group("/api/v1/participant")
	participantAPI.Use(
		middleware.RequireParticipantJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		participantAPI.POST("/quiz/join", joinLimiter.Middleware(), handlers.Quiz.Join)
		participantAPI.GET("/quiz/current", handlers.Quiz.Current)
		participantAPI.POST("/quiz/answer", handlers.Quiz.Answer)
		participantAPI.POST("/quiz/finish", handlers.Quiz.Finish)
		participantAPI.GET("/quiz/status", handlers.Quiz.Status)
	}

	// ─── 3. WebSocket Group (Participant WS Auth) ───────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireParticipantWSAuth(authService))
	{
		ws.GET("/quiz/stream", handlers.WS.QuizStream)
	}

	// ─── 4. Payment Webhooks (No JWT — HMAC signature verified instead) ─
	webhooks := router.Group("/api/v1/webhooks")
	{
		webhooks.POST("/payment", handlers.Webhook.Payment)
	}

	// ─── 5. Admin Group (JWT + RBAC) ────────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdminJWT(authService))
	{
		adminAPI.POST("/quiz/:date/transition",
			middleware.RequirePermission(string(model.PermissionQuizTransition)),
			handlers.Admin.Transition,
		)
		adminAPI.POST("/quiz/:date/force-finalize",
			middleware.RequirePermission(string(model.PermissionQuizForceFinalize)),
			handlers.Admin.ForceFinalize,
		)
		adminAPI.GET("/quiz/:date/monitor",
			middleware.RequirePermission(string(model.PermissionQuizMonitor)),
			handlers.Monitor.QuizSSE,
		)
		adminAPI.GET("/audit",
			middleware.RequirePermission(string(model.PermissionAuditRead)),
			handlers.Admin.AuditLog,
		)
		adminAPI.POST("/participants/reset-session",
			middleware.RequirePermission(string(model.PermissionParticipantsResetSession)),
			handlers.Admin.ResetParticipantSession,
		)
	}

	return router
}
