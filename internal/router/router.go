// Package router wires handlers, middleware and route groups onto the Echo
// instance. Versioned routes live under /v1.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/zealicon/zealicon-backend/internal/config"
	"github.com/zealicon/zealicon-backend/internal/handler"
	"github.com/zealicon/zealicon-backend/internal/middleware"
	"github.com/zealicon/zealicon-backend/internal/model"
)

// Deps bundles everything route registration needs.
type Deps struct {
	Cfg    config.Config
	Redis  *redis.Client
	Auth   *handler.AuthHandler
	Zeal   *handler.ZealHandler
	Merch  *handler.MerchHandler
	Events *handler.EventHandler
}

// Register sets up every route. Public catalog reads sit behind the Redis
// response cache; everything sits behind the rate limiter, which is
// installed globally in main.
func Register(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health)

	cache := middleware.NewRedisCache(config.LoadCacheConfig(), d.Redis)
	access := middleware.AccessAuth(d.Cfg.AccessTokenSecret)
	initAuth := middleware.InitAuth(d.Cfg.InitTokenSecret)
	societyAdmin := middleware.RequireTier(model.RoleSocietyAdmin)
	appAdmin := middleware.RequireTier(model.RoleAppAdmin)

	// Auth: the OTP flow and the token lifecycle.
	auth := e.Group("/v1/auth")
	auth.POST("/otp", d.Auth.SendOTP)
	auth.POST("/otp/resend", d.Auth.ResendOTP)
	auth.POST("/verify", d.Auth.VerifyOTP)
	auth.POST("/signup", d.Auth.Signup, initAuth)
	auth.POST("/refresh", d.Auth.RefreshAccess)
	auth.POST("/logout", d.Auth.Logout, access)
	auth.GET("/me", d.Auth.UserDetails, access)

	// Registration: fee checkout, confirmation and zeal id lookups.
	zeal := e.Group("/v1/zeal")
	zeal.POST("/checkout", d.Zeal.Checkout, access)
	zeal.POST("/verify", d.Zeal.PaymentVerification, access)
	zeal.GET("", d.Zeal.GetZealID, access)
	zeal.GET("/:zealID", d.Zeal.VerifyZealID, cache)

	// Gateway webhook; authenticated by signature, not by token.
	e.POST("/v1/webhook/payment", d.Zeal.Webhook)

	// Merchandise: public catalog, user checkout, admin order handling.
	merch := e.Group("/v1/merch")
	merch.GET("", d.Merch.GetMerch, cache)
	merch.POST("/checkout", d.Merch.Checkout, access)
	merch.POST("/verify", d.Merch.PaymentVerification, access)
	merch.GET("/orders", d.Merch.MyOrders, access)
	merch.GET("/orders/all", d.Merch.AllOrders, access, appAdmin)
	merch.PATCH("/orders/:orderID", d.Merch.UpdateOrder, access, appAdmin)
	merch.POST("", d.Merch.CreateMerch, access, appAdmin)
	merch.PATCH("/:id", d.Merch.UpdateMerch, access, appAdmin)
	merch.DELETE("/:id", d.Merch.DeleteMerch, access, appAdmin)

	// Events: public catalog, enrollment, society-admin management.
	events := e.Group("/v1/events")
	events.GET("", d.Events.GetEvents, cache)
	events.GET("/registered", d.Events.MyEvents, access)
	events.GET("/:id", d.Events.GetEvent, cache)
	events.POST("/:id/enroll", d.Events.EnrollEvent, access)
	events.DELETE("/:id/enroll", d.Events.UnenrollEvent, access)
	events.POST("", d.Events.CreateEvent, access, societyAdmin)
	events.PATCH("/:id", d.Events.UpdateEvent, access, societyAdmin)
	events.DELETE("/:id", d.Events.DeleteEvent, access, societyAdmin)
}
