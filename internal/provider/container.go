package provider

import (
	"github.com/threadposts/internal/authz"
	"github.com/threadposts/internal/cache"
	"github.com/threadposts/internal/config"
	"github.com/threadposts/internal/logger"
	"github.com/threadposts/internal/models"
	"github.com/threadposts/internal/payment/stripe"
	"github.com/threadposts/internal/queue"
	"github.com/threadposts/internal/repository"
	"github.com/threadposts/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client
	StripeCfg   *stripe.Config

	// Repositories
	AdminRepo         repository.AdminRepository
	UserRepo          repository.UserRepository
	AffiliateRepo     repository.AffiliateRepository
	SubscriptionRepo  repository.SubscriptionRepository
	SettingRepo       repository.SettingRepository
	AuthzAuditLogRepo repository.AuthzAuditLogRepository

	// Services
	AuthzService        *authz.Service
	AuthzAuditService   *service.AuthzAuditService
	AuthService         *service.AuthService
	UserAuthService     *service.UserAuthService
	EmailService        *service.EmailService
	SettingService      *service.SettingService
	NotificationService *service.NotificationService
	AffiliateService    *service.AffiliateService
	CommissionService   *service.CommissionService
	PayoutService       *service.PayoutService
	CheckoutService     *service.CheckoutService
	WebhookService      *service.WebhookService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
		StripeCfg:   buildStripeConfig(&cfg.Stripe),
	}

	c.initRepositories()
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.AdminRepo = repository.NewAdminRepository(db)
	c.UserRepo = repository.NewUserRepository(db)
	c.AffiliateRepo = repository.NewAffiliateRepository(db)
	c.SubscriptionRepo = repository.NewSubscriptionRepository(db)
	c.SettingRepo = repository.NewSettingRepository(db)
	c.AuthzAuditLogRepo = repository.NewAuthzAuditLogRepository(db)
}

func (c *Container) initServices() {
	authzService, err := authz.NewService(models.DB)
	if err != nil {
		logger.Errorw("provider_init_authz_failed", "error", err)
		panic(err)
	}
	c.AuthzService = authzService
	if err := c.AuthzService.BootstrapBuiltinRoles(); err != nil {
		logger.Errorw("provider_bootstrap_builtin_roles_failed", "error", err)
		panic(err)
	}

	c.AuthzAuditService = service.NewAuthzAuditService(c.AuthzAuditLogRepo)
	c.SettingService = service.NewSettingService(c.SettingRepo)
	c.EmailService = service.NewEmailService(&c.Config.Email)
	c.AuthService = service.NewAuthService(c.Config, c.AdminRepo)
	c.UserAuthService = service.NewUserAuthService(c.Config, c.UserRepo)
	c.NotificationService = service.NewNotificationService(c.AffiliateRepo, c.UserRepo, c.EmailService, c.QueueClient, c.Config.Billing)
	c.AffiliateService = service.NewAffiliateService(c.AffiliateRepo, c.UserRepo, c.SettingService, c.NotificationService, c.Config.Billing)
	c.CommissionService = service.NewCommissionService(c.AffiliateRepo, c.UserRepo, c.NotificationService, c.Config.Billing)
	c.PayoutService = service.NewPayoutService(c.AffiliateRepo, c.SettingService, c.NotificationService, c.StripeCfg, c.Config.Billing)
	c.CheckoutService = service.NewCheckoutService(c.AffiliateService, c.CommissionService, c.UserRepo, c.SubscriptionRepo, c.StripeCfg, c.Config.Billing)
	c.WebhookService = service.NewWebhookService(c.CheckoutService, c.CommissionService, c.AffiliateService, c.AffiliateRepo, c.UserRepo, c.SubscriptionRepo, c.StripeCfg)
}

func buildStripeConfig(cfg *config.StripeConfig) *stripe.Config {
	sc := &stripe.Config{
		SecretKey:               cfg.SecretKey,
		WebhookSecret:           cfg.WebhookSecret,
		SuccessURL:              cfg.SuccessURL,
		CancelURL:               cfg.CancelURL,
		APIBaseURL:              cfg.APIBaseURL,
		WebhookToleranceSeconds: cfg.WebhookToleranceSeconds,
	}
	sc.Normalize()
	return sc
}
