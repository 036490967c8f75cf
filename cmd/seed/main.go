package main

import (
	"time"

	"github.com/threadposts/internal/config"
	"github.com/threadposts/internal/constants"
	"github.com/threadposts/internal/logger"
	"github.com/threadposts/internal/models"
	"github.com/threadposts/internal/repository"
	"github.com/threadposts/internal/service"

	"github.com/shopspring/decimal"
)

// 本地联调用演示数据：两个推广账户、点击、转化绑定与一笔佣金入账。
func main() {
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	// 默认管理员
	if err := models.InitDefaultAdmin("", ""); err != nil {
		stdLog.Printf("Failed to init default admin: %v", err)
	}

	// 默认推广计划设置
	settingService := service.NewSettingService(repository.NewSettingRepository(models.DB))
	if _, err := settingService.UpdateAffiliateSetting(service.AffiliateDefaultSetting()); err != nil {
		stdLog.Printf("Failed to seed affiliate setting: %v", err)
	} else {
		stdLog.Printf("Seeded affiliate setting")
	}

	users := []models.User{
		{Email: "alice@example.com", DisplayName: "Alice", Status: constants.UserStatusActive},
		{Email: "bob@example.com", DisplayName: "Bob", Status: constants.UserStatusActive},
		{Email: "carol@example.com", DisplayName: "Carol", Status: constants.UserStatusActive},
	}
	for i := range users {
		var existing models.User
		if err := models.DB.Where("email = ?", users[i].Email).First(&existing).Error; err != nil {
			if err := models.DB.Create(&users[i]).Error; err != nil {
				stdLog.Printf("Failed to create user %s: %v", users[i].Email, err)
				continue
			}
			stdLog.Printf("Created user: %s", users[i].Email)
		} else {
			users[i] = existing
			stdLog.Printf("User already exists: %s", users[i].Email)
		}
	}

	affiliates := []models.Affiliate{
		{
			UserID:             users[0].ID,
			ReferralCode:       "ALICE1",
			CommissionRate:     models.NewMoneyFromDecimal(decimal.NewFromInt(50)),
			MinPayoutThreshold: models.NewMoneyFromDecimal(decimal.NewFromInt(25)),
			Status:             constants.AffiliateStatusActive,
		},
		{
			UserID:             users[1].ID,
			ReferralCode:       "BOB123",
			CommissionRate:     models.NewMoneyFromDecimal(decimal.NewFromInt(50)),
			MinPayoutThreshold: models.NewMoneyFromDecimal(decimal.NewFromInt(25)),
			Status:             constants.AffiliateStatusActive,
		},
	}
	for i := range affiliates {
		if affiliates[i].UserID == 0 {
			continue
		}
		var existing models.Affiliate
		if err := models.DB.Where("user_id = ?", affiliates[i].UserID).First(&existing).Error; err != nil {
			if err := models.DB.Create(&affiliates[i]).Error; err != nil {
				stdLog.Printf("Failed to create affiliate %s: %v", affiliates[i].ReferralCode, err)
				continue
			}
			stdLog.Printf("Created affiliate: %s", affiliates[i].ReferralCode)
		} else {
			affiliates[i] = existing
			stdLog.Printf("Affiliate already exists: %s", affiliates[i].ReferralCode)
		}
	}

	if affiliates[0].ID != 0 {
		click := models.ReferralClick{
			AffiliateID: affiliates[0].ID,
			Source:      constants.ClickSourceDirect,
			LandingPath: "/pricing",
			ClientIP:    "203.0.113.10",
			CreatedAt:   time.Now(),
		}
		if err := models.DB.Create(&click).Error; err != nil {
			stdLog.Printf("Failed to create click: %v", err)
		}

		if users[2].ID != 0 {
			conversion := models.ReferralConversion{
				AffiliateID:    affiliates[0].ID,
				ReferredUserID: users[2].ID,
			}
			var existing models.ReferralConversion
			if err := models.DB.Where("referred_user_id = ?", users[2].ID).First(&existing).Error; err != nil {
				if err := models.DB.Create(&conversion).Error; err != nil {
					stdLog.Printf("Failed to create conversion: %v", err)
				}
			} else {
				conversion = existing
			}

			earning := models.AffiliateEarning{
				AffiliateID:  affiliates[0].ID,
				PaymentRef:   "seed_invoice_1",
				ConversionID: &conversion.ID,
				BaseAmount:   models.NewMoneyFromDecimal(decimal.NewFromInt(5)),
				RatePercent:  models.NewMoneyFromDecimal(decimal.NewFromInt(50)),
				Amount:       models.NewMoneyFromDecimal(decimal.NewFromFloat(2.5)),
			}
			var existingEarning models.AffiliateEarning
			if err := models.DB.Where("affiliate_id = ? AND payment_ref = ?", earning.AffiliateID, earning.PaymentRef).First(&existingEarning).Error; err != nil {
				if err := models.DB.Create(&earning).Error; err != nil {
					stdLog.Printf("Failed to create earning: %v", err)
				} else {
					amount := earning.Amount.Decimal
					if err := models.DB.Model(&models.Affiliate{}).Where("id = ?", earning.AffiliateID).
						Updates(map[string]interface{}{
							"pending_balance": amount,
							"total_earnings":  amount,
						}).Error; err != nil {
						stdLog.Printf("Failed to update affiliate balance: %v", err)
					}
				}
			}
		}
	}

	stdLog.Printf("Seed completed")
}
