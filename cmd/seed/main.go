package main

import (
	"log"
	"os"

	"github.com/google/uuid"

	"github.com/nailbook/nailbook/backend/internal/config"
	"github.com/nailbook/nailbook/backend/internal/database"
	"github.com/nailbook/nailbook/backend/internal/models"
)

// Seeds a development database with an admin account and a couple of starter
// IP rules so the admin UI has something to show.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Appointment{},
		&models.RiskEvent{},
		&models.UserRiskState{},
		&models.SecurityIPRule{},
		&models.SecurityBlockLog{},
		&models.SecurityAudit{},
	); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}

	adminEmail := getEnv("NAILBOOK_SEED_ADMIN_EMAIL", "admin@example.com")
	adminPassword := getEnv("NAILBOOK_SEED_ADMIN_PASSWORD", "change-me-now")

	var admin models.User
	if err := db.Where("email = ?", adminEmail).First(&admin).Error; err != nil {
		admin = models.User{
			UUID:  uuid.NewString(),
			Email: adminEmail,
			Name:  "Salon Admin",
			Role:  "admin",
		}
		if err := admin.SetPassword(adminPassword); err != nil {
			log.Fatalf("hash password: %v", err)
		}
		if err := db.Create(&admin).Error; err != nil {
			log.Fatalf("create admin: %v", err)
		}
		log.Printf("created admin user %s", adminEmail)
	} else {
		log.Printf("admin user %s already present", adminEmail)
	}

	rules := []models.SecurityIPRule{
		{
			UUID:        uuid.NewString(),
			RuleType:    models.RuleTypeAllow,
			TargetType:  models.TargetTypeCIDR,
			TargetValue: "127.0.0.0/8",
			Scope:       models.RuleScopeAll,
			Status:      models.RuleStatusActive,
			Priority:    1,
			Reason:      "always allow loopback",
			CreatedBy:   admin.ID,
		},
		{
			UUID:        uuid.NewString(),
			RuleType:    models.RuleTypeAllow,
			TargetType:  models.TargetTypeCIDR,
			TargetValue: "192.168.0.0/16",
			Scope:       models.RuleScopeAll,
			Status:      models.RuleStatusActive,
			Priority:    5,
			Reason:      "salon office network",
			CreatedBy:   admin.ID,
		},
	}
	for _, rule := range rules {
		var existing models.SecurityIPRule
		if err := db.Where("target_value = ? AND rule_type = ?", rule.TargetValue, rule.RuleType).
			First(&existing).Error; err == nil {
			continue
		}
		if err := db.Create(&rule).Error; err != nil {
			log.Fatalf("create rule %s: %v", rule.TargetValue, err)
		}
		log.Printf("created %s rule for %s", rule.RuleType, rule.TargetValue)
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
