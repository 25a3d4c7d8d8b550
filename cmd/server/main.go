package main

import (
	"log"
	"net/http"

	"appstore-receipt-api/internal/api"
	"appstore-receipt-api/internal/appstore"
	"appstore-receipt-api/internal/config"
	"appstore-receipt-api/internal/database"
	"appstore-receipt-api/internal/metrics"
	"appstore-receipt-api/internal/services"
	"appstore-receipt-api/pkg/logging"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// Initialize configuration
	if err := config.InitConfig(); err != nil {
		log.Fatal("Failed to initialize config:", err)
	}
	cfg := config.AppConfig

	// Initialize logging
	logging.InitLogging()

	// Initialize database
	if err := database.InitDatabase(); err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer database.CloseDatabase()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	client := appstore.NewClient(
		appstore.NewHTTPTransport(&http.Client{}),
		appstore.WithSharedSecret(cfg.AppStoreSharedSecret),
		appstore.WithTimeout(cfg.AppStoreTimeout),
		appstore.WithObserver(m),
	)

	redisService := services.NewRedisService(database.GetRedis())

	var alerter services.SecretMismatchAlerter
	if cfg.BrevoAPIKey != "" {
		mailer := services.NewBrevoService(cfg.BrevoAPIKey, cfg.BrevoFromEmail, cfg.BrevoFromName, cfg.ServiceName)
		alerter = services.NewAlertService(redisService, mailer, cfg.AlertCooldown)
	} else {
		logging.Warnf("BREVO_API_KEY not set, shared secret alerts are disabled")
	}

	// Set Gin mode
	gin.SetMode(cfg.Mode)

	// Create Gin engine
	r := gin.Default()

	// Setup routes
	api.SetupRoutes(r, api.Dependencies{
		Projects:         services.NewProjectService(database.GetDB()),
		Receipts:         services.NewReceiptService(client, services.NewWebhookNotifier(), alerter),
		Limiter:          redisService,
		Metrics:          m,
		Gatherer:         reg,
		AdminAPIKey:      cfg.AdminAPIKey,
		DefaultRateLimit: cfg.DefaultRateLimit,
		ServiceName:      cfg.ServiceName,
	})

	// Start server
	logging.Infof("Starting server on port %s", cfg.Port)

	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
