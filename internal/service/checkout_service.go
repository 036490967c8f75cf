package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/threadposts/internal/config"
	"github.com/threadposts/internal/constants"
	"github.com/threadposts/internal/logger"
	"github.com/threadposts/internal/models"
	"github.com/threadposts/internal/payment/stripe"
	"github.com/threadposts/internal/repository"

	"github.com/shopspring/decimal"
)

// CheckoutService 订阅下单服务。
// 归因令牌随下单请求进入 session metadata，支付确认后经
// 同步回跳（ConfirmCheckout）或异步 webhook 两条路径触发转化与佣金。
type CheckoutService struct {
	affiliateService  *AffiliateService
	commissionService *CommissionService
	userRepo          repository.UserRepository
	subscriptionRepo  repository.SubscriptionRepository
	stripeCfg         *stripe.Config
	billing           config.BillingConfig
}

// NewCheckoutService 创建订阅下单服务
func NewCheckoutService(
	affiliateService *AffiliateService,
	commissionService *CommissionService,
	userRepo repository.UserRepository,
	subscriptionRepo repository.SubscriptionRepository,
	stripeCfg *stripe.Config,
	billing config.BillingConfig,
) *CheckoutService {
	return &CheckoutService{
		affiliateService:  affiliateService,
		commissionService: commissionService,
		userRepo:          userRepo,
		subscriptionRepo:  subscriptionRepo,
		stripeCfg:         stripeCfg,
		billing:           billing,
	}
}

// CheckoutSessionResult 创建下单会话结果
type CheckoutSessionResult struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// ConfirmCheckoutResult 同步确认结果
type ConfirmCheckoutResult struct {
	Paid              bool   `json:"paid"`
	SubscriptionRef   string `json:"subscription_ref,omitempty"`
	CommissionApplied bool   `json:"commission_applied"`
}

// CreateCheckoutSession 创建订阅 Checkout Session。
// affiliateToken 为前端持有的归因令牌（不可信），校验失败时静默丢弃归因。
func (s *CheckoutService) CreateCheckoutSession(ctx context.Context, userID uint, affiliateToken uint) (*CheckoutSessionResult, error) {
	if userID == 0 || s.userRepo == nil {
		return nil, ErrNotFound
	}
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}
	if strings.TrimSpace(user.Status) != constants.UserStatusActive {
		return nil, ErrUserDisabled
	}

	var affiliateID uint
	if affiliateToken > 0 {
		affiliate, err := s.affiliateService.ResolveAffiliateForAttribution(affiliateToken)
		if err != nil {
			return nil, err
		}
		if affiliate != nil {
			affiliateID = affiliate.ID
		}
	}

	var customerRef string
	if s.subscriptionRepo != nil {
		if sub, err := s.subscriptionRepo.GetByUserID(userID); err == nil && sub != nil {
			customerRef = sub.CustomerRef
		}
	}

	session, err := stripe.CreateCheckoutSession(ctx, s.stripeCfg, stripe.CheckoutInput{
		UserID:      userID,
		AffiliateID: affiliateID,
		CustomerRef: customerRef,
		PriceRef:    s.billing.PriceRef,
		Amount:      decimal.NewFromFloat(s.billing.BasePrice).StringFixed(2),
		Currency:    s.billing.Currency,
		ProductName: "ThreadPosts Pro",
	})
	if err != nil {
		logger.Warnw("checkout_session_create_failed", "user_id", userID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}

	logger.Infow("checkout_session_created",
		"user_id", userID, "affiliate_id", affiliateID, "session_id", session.SessionID)
	return &CheckoutSessionResult{SessionID: session.SessionID, URL: session.URL}, nil
}

// ConfirmCheckout 同步回跳确认：查询 session 支付状态，
// 已支付则维护订阅投影并触发转化绑定与佣金累计（以 session id 为幂等键）。
func (s *CheckoutService) ConfirmCheckout(ctx context.Context, userID uint, sessionID string) (*ConfirmCheckoutResult, error) {
	result := &ConfirmCheckoutResult{}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrNotFound
	}

	session, err := stripe.RetrieveCheckoutSession(ctx, s.stripeCfg, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}
	if session.UserID == 0 || (userID > 0 && session.UserID != userID) {
		return nil, ErrNotFound
	}
	if session.PaymentStatus != "paid" {
		return result, nil
	}
	result.Paid = true
	result.SubscriptionRef = session.SubscriptionRef

	if err := s.upsertSubscription(session.UserID, session.CustomerRef, session.SubscriptionRef, nil); err != nil {
		logger.Errorw("checkout_subscription_upsert_failed", "session_id", sessionID, "error", err)
	}

	if session.AffiliateID > 0 {
		applied, err := s.settleAttribution(session.AffiliateID, session.UserID, session.SessionID, session.AmountTotal)
		if err != nil {
			// 佣金失败不影响用户侧支付结果，webhook 路径会重试
			logger.Errorw("checkout_commission_failed", "session_id", sessionID, "error", err)
		} else {
			result.CommissionApplied = applied
		}
	}
	return result, nil
}

// settleAttribution 转化绑定 + 佣金累计，两条送达路径共用
func (s *CheckoutService) settleAttribution(affiliateID, userID uint, paymentRef, amountTotal string) (bool, error) {
	_, conversion, err := s.affiliateService.RecordConversionIfAbsent(affiliateID, userID)
	if err != nil {
		return false, err
	}

	base := decimal.NewFromFloat(s.billing.BasePrice)
	if parsed, err := decimal.NewFromString(strings.TrimSpace(amountTotal)); err == nil && parsed.GreaterThan(decimal.Zero) {
		base = parsed
	}
	var conversionID *uint
	if conversion != nil {
		conversionID = &conversion.ID
	}
	accrual, err := s.commissionService.AccrueCommission(affiliateID, paymentRef, base, conversionID)
	if err != nil {
		return false, err
	}
	return accrual.Applied, nil
}

// upsertSubscription 维护订阅投影
func (s *CheckoutService) upsertSubscription(userID uint, customerRef, subscriptionRef string, periodEnd *time.Time) error {
	if s.subscriptionRepo == nil || userID == 0 {
		return nil
	}
	now := time.Now()
	existing, err := s.subscriptionRepo.GetByUserID(userID)
	if err != nil {
		return err
	}
	if existing == nil {
		return s.subscriptionRepo.Create(&models.Subscription{
			UserID:             userID,
			CustomerRef:        strings.TrimSpace(customerRef),
			SubscriptionRef:    strings.TrimSpace(subscriptionRef),
			Status:             constants.SubscriptionStatusActive,
			CurrentPeriodEndAt: periodEnd,
			CreatedAt:          now,
			UpdatedAt:          now,
		})
	}

	if ref := strings.TrimSpace(customerRef); ref != "" {
		existing.CustomerRef = ref
	}
	if ref := strings.TrimSpace(subscriptionRef); ref != "" {
		existing.SubscriptionRef = ref
	}
	existing.Status = constants.SubscriptionStatusActive
	if periodEnd != nil {
		existing.CurrentPeriodEndAt = periodEnd
	}
	existing.UpdatedAt = now
	return s.subscriptionRepo.Update(existing)
}
