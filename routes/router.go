package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cppla/socialbbs/config"
	"github.com/cppla/socialbbs/controllers"
	"github.com/cppla/socialbbs/middleware"
	"github.com/cppla/socialbbs/services"
	"github.com/cppla/socialbbs/utils"
)

// SetupRouter wires routes, middlewares, and controllers around core.
// cache may be nil, which disables member profile caching.
func SetupRouter(cfg config.AppConfig, core *services.Core, cache *utils.Cache) *gin.Engine {
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.RequestID())
	accessLog := utils.Logger
	if cfg.GinPath != "" {
		gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
		if err != nil {
			utils.Sugar.Warnf("access log disabled: %v", err)
		} else {
			accessLog = gl
		}
	}
	r.Use(utils.Ginzap(accessLog, time.RFC3339, true))
	r.Use(utils.RecoveryWithZap(accessLog, true))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
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

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := middleware.NewAuthenticator(cfg.JWTSecret, cfg.AdminUsernames)
	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute)

	postController := controllers.NewPostController(services.NewThreadService(core), services.NewVoteService(core))
	feedController := controllers.NewFeedController(services.NewFeedService(core))
	friendController := controllers.NewFriendshipController(services.NewFriendshipService(core))
	memberController := controllers.NewMemberController(services.NewMemberService(core), cache)

	api := r.Group("/api/v1")
	api.Use(auth.OptionalAuth(), middleware.Activity(core.Tracker))

	api.GET("/stats", memberController.Stats)
	api.GET("/posts", feedController.Posts)
	api.GET("/posts/:id", postController.GetPost)
	api.GET("/posts/:id/replies", feedController.Replies)
	api.GET("/posts/:id/thread", feedController.Thread)
	api.GET("/members/:id", memberController.GetMember)
	api.GET("/members/:id/posts", feedController.MemberPosts)
	api.GET("/members/:id/timeline", feedController.Timeline)
	api.GET("/members/:id/following", friendController.Following)
	api.GET("/members/:id/followers", friendController.Followers)
	api.GET("/members/:id/groups/:group", memberController.Group)
	api.GET("/member/by-username/:username", memberController.GetMemberByUsername)

	// Anonymous posting is a deployment policy enforced by the engine.
	api.POST("/posts", limiter.Middleware(), postController.CreatePost)

	protected := api.Group("")
	protected.Use(auth.AuthRequired(), limiter.Middleware())
	protected.GET("/feed/unread", feedController.Unread)
	protected.GET("/feed/updates", feedController.Updates)
	protected.GET("/posts/:id/raw", postController.RawPost)
	protected.PUT("/posts/:id", postController.SavePost)
	protected.DELETE("/posts/:id", postController.DeletePost)
	protected.POST("/posts/:id/hide", postController.HidePost)
	protected.POST("/posts/:id/vote", postController.Vote)
	protected.GET("/posts/:id/votes", postController.MyVotes)
	protected.POST("/friendships", friendController.Follow)
	protected.DELETE("/friendships/:id", friendController.Unfollow)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, utils.CodeNotFound, "api route not found")
	})

	return r
}
