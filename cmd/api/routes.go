package main

import (
	"net/http"

	"github.com/jordanlanch/campaigndesk/pkg/api/handlers"
	custommw "github.com/jordanlanch/campaigndesk/pkg/api/middleware"
	"github.com/jordanlanch/campaigndesk/pkg/auth"
	custommiddleware "github.com/jordanlanch/campaigndesk/pkg/middleware"
	"github.com/jordanlanch/campaigndesk/pkg/session"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// sessionStatusPath is read without counting as activity
const sessionStatusPath = "/api/v1/auth/session"

type routeDeps struct {
	Auth      *handlers.AuthHandler
	Campaigns *handlers.CampaignHandler
	Approvals *handlers.ApprovalHandler
	History   *handlers.HistoryHandler
	Catalog   *handlers.CatalogHandler
	Users     *handlers.UserHandler
	Dashboard *handlers.DashboardHandler
	Health    *handlers.HealthHandler

	Validator custommw.Validator
	Expirer   custommw.Expirer
	Sessions  *session.Registry
	// AuthRateLimit guards the unauthenticated auth endpoints; nil disables it
	AuthRateLimit echo.MiddlewareFunc
}

func registerRoutes(e *echo.Echo, d routeDeps) {
	authConfig := custommw.AuthConfig{
		Validator: d.Validator,
		Sessions:  d.Sessions,
		Expirer:   d.Expirer,
		Passive:   custommw.PathIs(sessionStatusPath),
	}
	requireAuth := custommw.Auth(authConfig)

	// Download links carry the token in the query string
	downloadConfig := authConfig
	downloadConfig.QueryToken = true
	requireDownloadAuth := custommw.Auth(downloadConfig)

	authLimit := d.AuthRateLimit
	if authLimit == nil {
		authLimit = func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	writers := custommiddleware.RequireRole(auth.RoleAdmin, auth.RoleManager)
	resolvers := custommiddleware.RequireRole(auth.RoleAdmin, auth.RoleManager, auth.RoleApprover)

	// Public endpoints
	e.GET("/health", d.Health.Check)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := e.Group("/api/v1")

	v1.GET("/ping", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"message": "pong"})
	})

	authRoutes := v1.Group("/auth")
	{
		authRoutes.POST("/login", d.Auth.Login, authLimit)
		authRoutes.POST("/forgot-password", d.Auth.ForgotPassword, authLimit)
		authRoutes.POST("/reset-password", d.Auth.ResetPassword, authLimit)
		authRoutes.POST("/logout", d.Auth.Logout, requireAuth)
		authRoutes.GET("/me", d.Auth.Me, requireAuth)
		authRoutes.GET("/session", d.Auth.Session, requireAuth)
		authRoutes.POST("/refresh", d.Auth.Refresh, requireAuth)
	}

	v1.GET("/campaign-history/export", d.History.Export, requireDownloadAuth)

	protected := v1.Group("")
	protected.Use(requireAuth)
	{
		campaigns := protected.Group("/campaigns")
		campaigns.GET("", d.Campaigns.List)
		campaigns.POST("", d.Campaigns.Create, writers)
		campaigns.GET("/:id", d.Campaigns.Get)
		campaigns.PUT("/:id", d.Campaigns.Update, writers)
		campaigns.DELETE("/:id", d.Campaigns.Delete, writers)
		campaigns.GET("/:id/history", d.Campaigns.History)

		approvals := protected.Group("/approval-requests")
		approvals.POST("", d.Approvals.Submit, writers)
		approvals.PUT("", d.Approvals.ResolveByBody, resolvers)
		approvals.GET("/:id", d.Approvals.Get)
		approvals.PUT("/:id", d.Approvals.Resolve, resolvers)

		pending := protected.Group("/pending-campaigns")
		pending.GET("", d.Approvals.Pending)
		pending.POST("", d.Approvals.Submit, writers)

		hist := protected.Group("/campaign-history")
		hist.GET("", d.History.List)
		hist.GET("/statistics", d.History.Statistics)

		groups := protected.Group("/customer-groups")
		groups.GET("", d.Catalog.ListGroups)
		groups.POST("", d.Catalog.CreateGroup, writers)
		groups.POST("/preview", d.Catalog.PreviewGroup)
		groups.GET("/:id", d.Catalog.GetGroup)
		groups.PUT("/:id", d.Catalog.UpdateGroup, writers)
		groups.DELETE("/:id", d.Catalog.DeleteGroup, writers)
		groups.POST("/:id/refresh-count", d.Catalog.RefreshGroupCount, writers)

		offers := protected.Group("/offers")
		offers.GET("", d.Catalog.ListOffers)
		offers.POST("", d.Catalog.CreateOffer, writers)
		offers.GET("/:id", d.Catalog.GetOffer)
		offers.PUT("/:id", d.Catalog.UpdateOffer, writers)
		offers.DELETE("/:id", d.Catalog.DeleteOffer, writers)

		scripts := protected.Group("/scripts")
		scripts.GET("", d.Catalog.ListScripts)
		scripts.POST("", d.Catalog.CreateScript, writers)
		scripts.GET("/:id", d.Catalog.GetScript)
		scripts.PUT("/:id", d.Catalog.UpdateScript, writers)
		scripts.DELETE("/:id", d.Catalog.DeleteScript, writers)

		channels := protected.Group("/channels")
		channels.GET("", d.Catalog.ListChannels)
		channels.POST("", d.Catalog.CreateChannel, custommiddleware.RequireAdmin())
		channels.GET("/:id", d.Catalog.GetChannel)
		channels.PUT("/:id", d.Catalog.UpdateChannel, custommiddleware.RequireAdmin())
		channels.DELETE("/:id", d.Catalog.DeleteChannel, custommiddleware.RequireAdmin())

		notices := protected.Group("/notices")
		notices.GET("", d.Catalog.ListNotices)
		notices.POST("", d.Catalog.CreateNotice, writers)
		notices.GET("/:id", d.Catalog.GetNotice)
		notices.PUT("/:id", d.Catalog.UpdateNotice, writers)
		notices.DELETE("/:id", d.Catalog.DeleteNotice, writers)

		users := protected.Group("/users")
		users.Use(custommiddleware.RequireAdmin())
		users.GET("", d.Users.List)
		users.POST("", d.Users.Create)
		users.GET("/:id", d.Users.Get)
		users.PUT("/:id", d.Users.Update)
		users.DELETE("/:id", d.Users.Delete)

		protected.GET("/dashboard/summary", d.Dashboard.Summary)
	}
}
