package service

import (
	"context"
	"strings"
	"time"

	"github.com/threadposts/internal/constants"
	"github.com/threadposts/internal/logger"
	"github.com/threadposts/internal/payment/stripe"
	"github.com/threadposts/internal/repository"

	"github.com/shopspring/decimal"
)

// WebhookService 支付平台事件处理服务。
// 事件至少送达一次且可能乱序，所有处理必须幂等；
// 未识别的事件类型记录日志后直接确认，避免上游无限重试。
type WebhookService struct {
	checkoutService   *CheckoutService
	commissionService *CommissionService
	affiliateService  *AffiliateService
	affiliateRepo     repository.AffiliateRepository
	userRepo          repository.UserRepository
	subscriptionRepo  repository.SubscriptionRepository
	stripeCfg         *stripe.Config
}

// NewWebhookService 创建事件处理服务
func NewWebhookService(
	checkoutService *CheckoutService,
	commissionService *CommissionService,
	affiliateService *AffiliateService,
	affiliateRepo repository.AffiliateRepository,
	userRepo repository.UserRepository,
	subscriptionRepo repository.SubscriptionRepository,
	stripeCfg *stripe.Config,
) *WebhookService {
	return &WebhookService{
		checkoutService:   checkoutService,
		commissionService: commissionService,
		affiliateService:  affiliateService,
		affiliateRepo:     affiliateRepo,
		userRepo:          userRepo,
		subscriptionRepo:  subscriptionRepo,
		stripeCfg:         stripeCfg,
	}
}

// HandleWebhook 验签并分发支付平台事件
func (s *WebhookService) HandleWebhook(ctx context.Context, headers map[string]string, body []byte) error {
	event, err := stripe.VerifyAndParseWebhook(s.stripeCfg, headers, body, time.Now())
	if err != nil {
		logger.Warnw("stripe_webhook_verify_failed", "error", err)
		return ErrWebhookInvalid
	}

	switch event.EventType {
	case constants.StripeEventCheckoutCompleted:
		return s.handleCheckoutCompleted(ctx, event)
	case constants.StripeEventInvoicePaid:
		return s.handleInvoicePaid(event)
	case constants.StripeEventChargeRefunded:
		return s.handleChargeRefunded(event)
	default:
		logger.Infow("stripe_webhook_ignored", "event_id", event.EventID, "event_type", event.EventType)
		return nil
	}
}

// handleCheckoutCompleted 首笔支付：维护订阅投影并触发转化与佣金（幂等键 session id）。
// 延迟扣款方式下事件先以 payment_status=unpaid 送达，未到账前不入账。
func (s *WebhookService) handleCheckoutCompleted(ctx context.Context, event *stripe.WebhookEvent) error {
	if event.UserID == 0 {
		logger.Warnw("stripe_checkout_completed_missing_user", "event_id", event.EventID, "session_id", event.ObjectID)
		return nil
	}
	if event.PaymentStatus != "paid" {
		logger.Infow("stripe_checkout_unpaid_skipped",
			"event_id", event.EventID, "session_id", event.ObjectID, "payment_status", event.PaymentStatus)
		return nil
	}

	if err := s.checkoutService.upsertSubscription(event.UserID, event.CustomerRef, event.SubscriptionRef, nil); err != nil {
		return err
	}

	if event.AffiliateID == 0 {
		return nil
	}
	affiliate, err := s.affiliateService.ResolveAffiliateForAttribution(event.AffiliateID)
	if err != nil {
		return err
	}
	if affiliate == nil {
		logger.Infow("stripe_checkout_attribution_dropped", "event_id", event.EventID, "affiliate_id", event.AffiliateID)
		return nil
	}
	_, err = s.checkoutService.settleAttribution(affiliate.ID, event.UserID, event.ObjectID, event.Amount)
	return err
}

// handleInvoicePaid 周期扣款：按 invoice id 幂等累计佣金。
// billing_reason=subscription_create 的首笔扣款已由 checkout.session.completed
// 覆盖，必须跳过，否则同一笔支付会被记两次。
func (s *WebhookService) handleInvoicePaid(event *stripe.WebhookEvent) error {
	if strings.EqualFold(event.BillingReason, constants.BillingReasonSubscriptionCreate) {
		logger.Infow("stripe_invoice_subscription_create_skipped", "event_id", event.EventID, "invoice_id", event.ObjectID)
		return nil
	}

	userID := event.UserID
	if userID == 0 {
		resolved, err := s.resolveUserIDByRefs(event.SubscriptionRef, event.CustomerRef)
		if err != nil {
			return err
		}
		userID = resolved
	}
	if userID == 0 {
		logger.Infow("stripe_invoice_user_unresolved", "event_id", event.EventID, "invoice_id", event.ObjectID)
		return nil
	}

	if err := s.checkoutService.upsertSubscription(userID, event.CustomerRef, event.SubscriptionRef, event.PeriodEnd); err != nil {
		logger.Errorw("stripe_invoice_subscription_upsert_failed", "invoice_id", event.ObjectID, "error", err)
	}

	affiliateID := event.AffiliateID
	if affiliateID == 0 {
		conversion, err := s.affiliateRepo.GetConversionByReferredUser(userID)
		if err != nil {
			return err
		}
		if conversion == nil {
			return nil
		}
		affiliateID = conversion.AffiliateID
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(event.Amount))
	if err != nil || amount.LessThanOrEqual(decimal.Zero) {
		logger.Warnw("stripe_invoice_amount_invalid", "event_id", event.EventID, "invoice_id", event.ObjectID)
		return nil
	}
	_, err = s.commissionService.AccrueCommission(affiliateID, event.ObjectID, amount, nil)
	return err
}

// handleChargeRefunded 退款：按 refund id 幂等回退佣金
func (s *WebhookService) handleChargeRefunded(event *stripe.WebhookEvent) error {
	refundRef := event.RefundRef
	if refundRef == "" {
		// 老版本事件缺 refunds 列表时退回 charge id，幂等粒度退化为每笔 charge 一次
		refundRef = event.ObjectID
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(event.AmountRefunded))
	if err != nil || amount.LessThanOrEqual(decimal.Zero) {
		logger.Warnw("stripe_refund_amount_invalid", "event_id", event.EventID, "charge_id", event.ObjectID)
		return nil
	}

	email := event.CustomerEmail
	if email == "" {
		email, err = s.resolveEmailByCustomerRef(event.CustomerRef)
		if err != nil {
			return err
		}
	}
	if email == "" {
		logger.Infow("stripe_refund_customer_unresolved", "event_id", event.EventID, "charge_id", event.ObjectID)
		return nil
	}

	// charge 上的 invoice 引用即被退支付的入账键，用于回链原始入账流水
	_, err = s.commissionService.ReverseCommission(email, amount, refundRef, event.InvoiceRef)
	return err
}

func (s *WebhookService) resolveUserIDByRefs(subscriptionRef, customerRef string) (uint, error) {
	if s.subscriptionRepo == nil {
		return 0, nil
	}
	if ref := strings.TrimSpace(subscriptionRef); ref != "" {
		sub, err := s.subscriptionRepo.GetBySubscriptionRef(ref)
		if err != nil {
			return 0, err
		}
		if sub != nil {
			return sub.UserID, nil
		}
	}
	if ref := strings.TrimSpace(customerRef); ref != "" {
		sub, err := s.subscriptionRepo.GetByCustomerRef(ref)
		if err != nil {
			return 0, err
		}
		if sub != nil {
			return sub.UserID, nil
		}
	}
	return 0, nil
}

func (s *WebhookService) resolveEmailByCustomerRef(customerRef string) (string, error) {
	ref := strings.TrimSpace(customerRef)
	if ref == "" || s.subscriptionRepo == nil || s.userRepo == nil {
		return "", nil
	}
	sub, err := s.subscriptionRepo.GetByCustomerRef(ref)
	if err != nil {
		return "", err
	}
	if sub == nil {
		return "", nil
	}
	user, err := s.userRepo.GetByID(sub.UserID)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", nil
	}
	return user.Email, nil
}
