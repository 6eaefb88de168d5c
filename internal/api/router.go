package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/coldorg/coldbot/backend/internal/api/handlers"
	"github.com/coldorg/coldbot/backend/internal/middleware"
	"github.com/coldorg/coldbot/backend/internal/ratelimit"
)

// Dependencies is everything the HTTP surface needs.
type Dependencies struct {
	Sessions    middleware.SessionProvider
	Admins      middleware.AdminChecker
	Gate        *middleware.Gate
	AuthLimiter ratelimit.Limiter

	Chat     *handlers.ChatHandler
	Admin    *handlers.AdminHandler
	Feedback *handlers.FeedbackHandler
	History  *handlers.HistoryHandler
	Auth     *handlers.AuthHandler
	Meta     *handlers.MetaHandler

	StaticDir string
	Logger    *logrus.Logger
}

// Pages served behind the gate, by route.
var pages = map[string]string{
	"/":                    "index",
	"/login":               "login",
	"/history":             "history",
	"/admin":               "admin",
	"/admin/history":       "admin-history",
	"/auth/confirm":        "confirm",
	"/auth/reset-password": "reset-password",
}

func NewRouter(deps *Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.AccessLog(deps.Logger),
		middleware.Recovery(deps.Logger),
		deps.Gate.Handler(deps.Sessions),
	)

	r.GET("/healthz", deps.Meta.HandleHealth)
	if deps.StaticDir != "" {
		r.Static("/static", deps.StaticDir)
	}
	for route, name := range pages {
		r.GET(route, deps.Meta.Page(name))
	}

	api := r.Group("/api", middleware.SecurityHeaders())
	api.GET("/public-config", deps.Meta.HandlePublicConfig)
	api.GET("/check-admin", deps.Admin.CheckAdmin)

	authRoutes := api.Group("/auth")
	{
		limited := middleware.RateLimit(deps.AuthLimiter, "auth")
		authRoutes.POST("/signin", limited, deps.Auth.HandleSignIn)
		authRoutes.POST("/signup", limited, deps.Auth.HandleSignUp)
		authRoutes.POST("/reset-password", limited, deps.Auth.HandleResetPassword)
		authRoutes.POST("/refresh", deps.Auth.HandleRefresh)
		authRoutes.POST("/signout", deps.Auth.HandleSignOut)
		authRoutes.GET("/callback", deps.Auth.HandleCallback)
		authRoutes.GET("/confirm", deps.Auth.HandleConfirm)
	}

	authed := api.Group("", middleware.RequireSession(deps.Sessions, deps.Logger))
	{
		authed.POST("/chatbot", deps.Chat.HandleChat)
		authed.POST("/feedback", deps.Feedback.HandleFeedback)
		authed.GET("/conversations", deps.History.HandleConversations)
		authed.GET("/conversations/:id/messages", deps.History.HandleConversationMessages)
		authed.GET("/history", deps.History.HandleHistory)
		authed.GET("/history/export", deps.History.HandleExport)
	}

	admin := authed.Group("/admin", middleware.RequireAdmin(deps.Admins, deps.Logger))
	{
		admin.GET("/stats", deps.Admin.HandleStats)
		admin.GET("/feedback", deps.Admin.HandleFeedback)
		admin.DELETE("/exchanges/:id", deps.Admin.HandleDeleteExchange)
	}

	return r
}
