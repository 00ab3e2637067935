package routes

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/nailbook/nailbook/backend/internal/api/handlers"
	"github.com/nailbook/nailbook/backend/internal/api/middleware"
	"github.com/nailbook/nailbook/backend/internal/config"
	"github.com/nailbook/nailbook/backend/internal/ipguard"
	"github.com/nailbook/nailbook/backend/internal/logger"
	"github.com/nailbook/nailbook/backend/internal/metrics"
	"github.com/nailbook/nailbook/backend/internal/models"
	"github.com/nailbook/nailbook/backend/internal/services"
)

// Register wires up API routes and performs automatic migrations.
func Register(router *gin.Engine, db *gorm.DB, cfg config.Config) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Appointment{},
		&models.RiskEvent{},
		&models.UserRiskState{},
		&models.SecurityIPRule{},
		&models.SecurityBlockLog{},
		&models.SecurityAudit{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	registry := prometheus.NewRegistry()
	metrics.Register(registry)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	router.GET("/api/v1/health", handlers.HealthHandler)

	auditService := services.NewAuditService(db)
	ruleService := services.NewIPRuleService(db, cfg.Security.RuleCacheTTL)
	riskService := services.NewRiskService(db, cfg.Risk)
	bookingService := services.NewBookingService(db, riskService)
	authService := services.NewAuthService(db, cfg.Security)

	api := router.Group("/api/v1")

	// The IP guard gates every API route, login included, before auth runs.
	guard := ipguard.New(cfg.Security, ruleService, auditService)
	api.Use(guard.Middleware())

	authHandler := handlers.NewAuthHandler(authService)
	api.POST("/auth/login", authHandler.Login)

	protected := api.Group("/")
	protected.Use(middleware.Auth(authService))
	{
		bookingHandler := handlers.NewBookingHandler(bookingService)
		bookingHandler.RegisterRoutes(protected)

		staff := protected.Group("/")
		staff.Use(middleware.RequireRole("admin", "staff"))
		staffBookingHandler := handlers.NewStaffBookingHandler(bookingService)
		staffBookingHandler.RegisterRoutes(staff)

		admin := protected.Group("/")
		admin.Use(middleware.RequireRole("admin"))
		{
			handlers.NewIPRuleHandler(ruleService).RegisterRoutes(admin)
			handlers.NewSecurityLogHandler(auditService).RegisterRoutes(admin)
			handlers.NewRiskHandler(riskService).RegisterRoutes(admin)
		}
	}

	startJanitor(ruleService)

	return nil
}

// startJanitor schedules the rule snapshot refresh and the daily sweep that
// deactivates expired rules. Expired rules never match either way; the sweep
// keeps the table tidy.
func startJanitor(ruleService *services.IPRuleService) {
	c := cron.New()
	if _, err := c.AddFunc("@every 1m", func() {
		if err := ruleService.Reload(); err != nil {
			logger.Log().WithError(err).Error("reload ip rule snapshot")
		}
	}); err != nil {
		logger.Log().WithError(err).Error("schedule rule snapshot refresh")
	}
	if _, err := c.AddFunc("@daily", func() {
		n, err := ruleService.SweepExpired()
		if err != nil {
			logger.Log().WithError(err).Error("sweep expired ip rules")
			return
		}
		if n > 0 {
			logger.Log().WithField("deactivated", n).Info("swept expired ip rules")
		}
	}); err != nil {
		logger.Log().WithError(err).Error("schedule expired rule sweep")
	}
	c.Start()
}
