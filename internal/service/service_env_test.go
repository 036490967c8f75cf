package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/threadposts/internal/config"
	"github.com/threadposts/internal/constants"
	"github.com/threadposts/internal/models"
	"github.com/threadposts/internal/payment/stripe"
	"github.com/threadposts/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type serviceTestEnv struct {
	db               *gorm.DB
	repo             repository.AffiliateRepository
	userRepo         repository.UserRepository
	subscriptionRepo repository.SubscriptionRepository
	settingService   *SettingService
	notificationSvc  *NotificationService
	affiliateSvc     *AffiliateService
	commissionSvc    *CommissionService
	billing          config.BillingConfig
}

func newServiceTestEnv(t *testing.T) *serviceTestEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{},
		&models.Setting{},
		&models.Subscription{},
		&models.Affiliate{},
		&models.ReferralClick{},
		&models.ReferralConversion{},
		&models.AffiliateEarning{},
		&models.AffiliateDeduction{},
		&models.AffiliatePayout{},
	); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	billing := config.BillingConfig{
		BasePrice:              5,
		Currency:               "USD",
		DefaultCommissionRate:  50,
		DefaultPayoutThreshold: 25,
	}
	repo := repository.NewAffiliateRepository(db)
	userRepo := repository.NewUserRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	settingService := NewSettingService(repository.NewSettingRepository(db))
	emailService := NewEmailService(&config.EmailConfig{Enabled: false})
	notificationSvc := NewNotificationService(repo, userRepo, emailService, nil, billing)
	affiliateSvc := NewAffiliateService(repo, userRepo, settingService, notificationSvc, billing)
	commissionSvc := NewCommissionService(repo, userRepo, notificationSvc, billing)

	return &serviceTestEnv{
		db:               db,
		repo:             repo,
		userRepo:         userRepo,
		subscriptionRepo: subscriptionRepo,
		settingService:   settingService,
		notificationSvc:  notificationSvc,
		affiliateSvc:     affiliateSvc,
		commissionSvc:    commissionSvc,
		billing:          billing,
	}
}

func (env *serviceTestEnv) createUser(t *testing.T, email string) models.User {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	user := models.User{
		Email:       email,
		DisplayName: "Tester",
		Status:      constants.UserStatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := env.db.Create(&user).Error; err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	return user
}

func (env *serviceTestEnv) createAffiliate(t *testing.T, email, code string) models.Affiliate {
	t.Helper()
	user := env.createUser(t, email)
	now := time.Now().UTC().Truncate(time.Second)
	affiliate := models.Affiliate{
		UserID:             user.ID,
		ReferralCode:       code,
		CommissionRate:     models.NewMoneyFromDecimal(decimal.NewFromInt(50)),
		MinPayoutThreshold: models.NewMoneyFromDecimal(decimal.NewFromInt(25)),
		PendingBalance:     models.NewMoneyFromDecimal(decimal.Zero),
		TotalEarnings:      models.NewMoneyFromDecimal(decimal.Zero),
		Status:             constants.AffiliateStatusActive,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := env.db.Create(&affiliate).Error; err != nil {
		t.Fatalf("create affiliate failed: %v", err)
	}
	return affiliate
}

func (env *serviceTestEnv) reloadAffiliate(t *testing.T, id uint) *models.Affiliate {
	t.Helper()
	affiliate, err := env.repo.GetByID(id)
	if err != nil {
		t.Fatalf("reload affiliate failed: %v", err)
	}
	if affiliate == nil {
		t.Fatalf("affiliate %d not found", id)
	}
	return affiliate
}

func stripeTestConfig(baseURL string) *stripe.Config {
	cfg := &stripe.Config{
		SecretKey:     "sk_test_123",
		WebhookSecret: "whsec_test",
		SuccessURL:    "https://example.com/success",
		CancelURL:     "https://example.com/cancel",
		APIBaseURL:    baseURL,
	}
	cfg.Normalize()
	return cfg
}
