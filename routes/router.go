package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"

	"github.com/cppla/forum/config"
	"github.com/cppla/forum/controllers"
	"github.com/cppla/forum/middleware"
	"github.com/cppla/forum/services"
	"github.com/cppla/forum/utils"
)

// postDetailRoute is the route whose successful GETs count as page views.
const postDetailRoute = "/api/v1/posts/:id"

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(cfg config.AppConfig, svc *services.ForumService) *gin.Engine {
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Access log goes to its own rolling file
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(ginzap.Ginzap(gl, time.RFC3339, true))
		r.Use(ginzap.CustomRecoveryWithZap(gl, false, utils.RecoveryResponse))
	} else {
		r.Use(gin.CustomRecovery(utils.RecoveryResponse))
	}
	r.Use(utils.HideAuthorization())
	r.MaxMultipartMemory = cfg.AvatarMaxBytes + 1<<20

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))
	r.Use(middleware.PageViewRecorder(svc, postDetailRoute))

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	authController := controllers.NewAuthController(svc)
	postController := controllers.NewPostController(svc)
	statsController := controllers.NewStatsController(svc)
	notificationController := controllers.NewNotificationController(svc)
	adminController := controllers.NewAdminController(svc)

	requireAuth := middleware.AuthRequired(svc)

	api := r.Group("/api/v1")

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimitMiddleware(cfg.RateLimitPerMinute))
	authGroup.POST("/register", authController.Register)
	authGroup.POST("/login", authController.Login)
	authGroup.POST("/logout", requireAuth, authController.Logout)

	// Public reads
	api.GET("/posts", postController.ListPosts)
	api.GET("/posts/top", postController.TopPosts)
	api.GET("/posts/:id", postController.GetPost)
	api.GET("/posts/:id/comments", postController.ListComments)
	api.GET("/categories", postController.Categories)
	api.GET("/stats", statsController.GetStats)
	api.GET("/users/:username", authController.GetUserPublic)
	api.GET("/users/:username/avatar", authController.Avatar)

	protected := api.Group("")
	protected.Use(requireAuth, middleware.RateLimitMiddleware(cfg.RateLimitPerMinute))
	protected.GET("/me", authController.Me)
	protected.PATCH("/me/profile", authController.UpdateProfile)
	protected.PATCH("/users/:username/profile", authController.UpdateProfile)
	protected.POST("/posts", postController.CreatePost)
	protected.POST("/posts/:id/comments", postController.CreateComment)
	protected.DELETE("/posts/:id", postController.DeletePost)
	protected.DELETE("/comments/:commentId", postController.DeleteComment)
	protected.GET("/notifications", notificationController.List)
	protected.GET("/notifications/unread-count", notificationController.UnreadCount)
	protected.PUT("/admin/users/:username/role", adminController.SetRole)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
	})

	return r
}
