package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chrismgala/verifly/internal/middleware"
)

// SetupRoutes registers all HTTP routes.
func (a *API) SetupRoutes(router *gin.Engine) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiGroup := router.Group("/api")

	// Provider and platform callbacks authenticate by signature, not by
	// shop credentials.
	webhooks := apiGroup.Group("/webhooks")
	{
		webhooks.POST("/orders/create", a.OrderCreatedWebhook)
		webhooks.POST("/veriff/verify-outcome", a.VeriffWebhook)
		webhooks.POST("/stripe/verify-outcome", a.StripeWebhook)
	}

	// Storefront widget endpoints, reached through the platform app
	// proxy. Token-gated rather than shop-key-gated.
	proxy := apiGroup.Group("/proxy")
	{
		proxy.GET("/verification/:shopId/:email", a.ProxyVerificationStatus)
		proxy.POST("/verification/:shopId/status", a.ProxyConfirmStatus)
	}

	// Install lifecycle is driven by the platform before the shop has
	// credentials.
	apiGroup.POST("/shops/install", a.InstallShop)
	apiGroup.POST("/shops/:shopId/uninstall", a.UninstallShop)

	// Merchant admin API.
	authed := apiGroup.Group("")
	authed.Use(middleware.ShopAuthMiddleware(a.db))
	{
		authed.GET("/verifications/:shopId", a.ListVerifications)
		authed.GET("/verification/:id/:sessionId", a.GetVerificationResults)
		authed.POST("/verification/:id/:sessionId", a.OverrideVerification)
		authed.GET("/settings/:shopId", a.GetSettings)
		authed.POST("/settings/:shopId", a.UpdateSettings)
		authed.GET("/products/:shopId", a.ListProducts)
		authed.POST("/products/:shopId", a.UpdateProductFlags)
		authed.POST("/test-verification/:shopId", a.SendTestVerification)
		authed.POST("/resend-verification/:shopId", a.ResendVerification)
	}
}
