package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chrismgala/verifly/internal/api"
	"github.com/chrismgala/verifly/internal/config"
	"github.com/chrismgala/verifly/internal/database"
	"github.com/chrismgala/verifly/internal/metrics"
	"github.com/chrismgala/verifly/internal/services"
	"github.com/chrismgala/verifly/pkg/logging"
)

func main() {
	// Initialize configuration
	if err := config.InitConfig(); err != nil {
		log.Fatal("Failed to initialize config:", err)
	}

	// Initialize logging
	logging.InitLogging()

	// Initialize database
	if err := database.InitDatabase(); err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer database.CloseDatabase()

	metrics.Register()

	cfg := config.AppConfig
	db := database.GetDB()
	redisClient := database.GetRedis()

	veriff := services.NewVeriffClient(cfg)
	stripe := services.NewStripeClient(cfg)
	shopify := services.NewShopifyClient(cfg)
	resend := services.NewResendClient(cfg)
	orchestrator := services.NewOrchestrator(db, veriff, shopify)
	dedupe := services.NewWebhookDedupe(redisClient, 24*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Monthly usage billing fan-out.
	billing := services.NewBillingScheduler(db, shopify, cfg.TrialLengthDays)
	billing.Start(ctx)

	// Hourly sweep moving stale pending verifications to expired.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		ttl := time.Duration(cfg.PendingTTLHours) * time.Hour
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if expired, err := orchestrator.ExpireStale(ctx, ttl); err != nil {
					logging.Errorf("Failed to expire stale verifications: %v", err)
				} else if expired > 0 {
					logging.Infof("Expired %d stale verifications", expired)
				}
			}
		}
	}()

	// Set Gin mode
	gin.SetMode(cfg.Mode)

	// Create Gin engine
	r := gin.Default()

	// Setup routes
	handlers := api.NewAPI(db, cfg, redisClient, veriff, stripe, shopify, resend, orchestrator, dedupe)
	handlers.SetupRoutes(r)

	// Start server
	port := cfg.Port
	logging.Infof("Starting server on port %s", port)

	if err := r.Run(":" + port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
