package service

import (
	"context"
	"errors"
	"strings"

	"github.com/threadposts/internal/config"
	"github.com/threadposts/internal/logger"
	"github.com/threadposts/internal/models"
	"github.com/threadposts/internal/queue"
	"github.com/threadposts/internal/repository"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
)

// NotificationService 推广通知编排服务。
// 通知统一走异步队列；队列未启用时降级为同步发送，发送失败只记录日志，不影响主流程。
type NotificationService struct {
	affiliateRepo repository.AffiliateRepository
	userRepo      repository.UserRepository
	emailService  *EmailService
	queueClient   *queue.Client
	billing       config.BillingConfig
}

// NewNotificationService 创建通知编排服务
func NewNotificationService(
	affiliateRepo repository.AffiliateRepository,
	userRepo repository.UserRepository,
	emailService *EmailService,
	queueClient *queue.Client,
	billing config.BillingConfig,
) *NotificationService {
	return &NotificationService{
		affiliateRepo: affiliateRepo,
		userRepo:      userRepo,
		emailService:  emailService,
		queueClient:   queueClient,
		billing:       billing,
	}
}

// NotifyAffiliateWelcome 通知推广账户开通
func (s *NotificationService) NotifyAffiliateWelcome(affiliateID uint) {
	if s == nil || affiliateID == 0 {
		return
	}
	payload := queue.AffiliateWelcomeEmailPayload{AffiliateID: affiliateID}
	if s.queueClient != nil && s.queueClient.Enabled() {
		if err := s.queueClient.EnqueueAffiliateWelcomeEmail(payload, asynq.MaxRetry(3)); err != nil {
			logger.Warnw("affiliate_welcome_enqueue_failed", "affiliate_id", affiliateID, "error", err)
		}
		return
	}
	if err := s.HandleAffiliateWelcomeEmail(context.Background(), payload); err != nil {
		logger.Warnw("affiliate_welcome_send_failed", "affiliate_id", affiliateID, "error", err)
	}
}

// NotifyThresholdReached 通知余额达到提现门槛
func (s *NotificationService) NotifyThresholdReached(affiliateID uint, balance models.Money) {
	if s == nil || affiliateID == 0 {
		return
	}
	payload := queue.AffiliateThresholdEmailPayload{
		AffiliateID: affiliateID,
		Balance:     balance.String(),
	}
	if s.queueClient != nil && s.queueClient.Enabled() {
		if err := s.queueClient.EnqueueAffiliateThresholdEmail(payload, asynq.MaxRetry(3)); err != nil {
			logger.Warnw("affiliate_threshold_enqueue_failed", "affiliate_id", affiliateID, "error", err)
		}
		return
	}
	if err := s.HandleAffiliateThresholdEmail(context.Background(), payload); err != nil {
		logger.Warnw("affiliate_threshold_send_failed", "affiliate_id", affiliateID, "error", err)
	}
}

// NotifyPayoutResult 通知提现结算结果
func (s *NotificationService) NotifyPayoutResult(payoutID uint, status string) {
	if s == nil || payoutID == 0 {
		return
	}
	payload := queue.AffiliatePayoutEmailPayload{
		PayoutID: payoutID,
		Status:   strings.TrimSpace(status),
	}
	if s.queueClient != nil && s.queueClient.Enabled() {
		if err := s.queueClient.EnqueueAffiliatePayoutEmail(payload, asynq.MaxRetry(3)); err != nil {
			logger.Warnw("affiliate_payout_enqueue_failed", "payout_id", payoutID, "error", err)
		}
		return
	}
	if err := s.HandleAffiliatePayoutEmail(context.Background(), payload); err != nil {
		logger.Warnw("affiliate_payout_send_failed", "payout_id", payoutID, "error", err)
	}
}

// NotifyCommissionReversed 通知佣金回退
func (s *NotificationService) NotifyCommissionReversed(affiliateID uint, amount models.Money, refundRef string) {
	if s == nil || affiliateID == 0 {
		return
	}
	payload := queue.AffiliateRefundEmailPayload{
		AffiliateID: affiliateID,
		Amount:      amount.String(),
		RefundRef:   strings.TrimSpace(refundRef),
	}
	if s.queueClient != nil && s.queueClient.Enabled() {
		if err := s.queueClient.EnqueueAffiliateRefundEmail(payload, asynq.MaxRetry(3)); err != nil {
			logger.Warnw("affiliate_refund_enqueue_failed", "affiliate_id", affiliateID, "error", err)
		}
		return
	}
	if err := s.HandleAffiliateRefundEmail(context.Background(), payload); err != nil {
		logger.Warnw("affiliate_refund_send_failed", "affiliate_id", affiliateID, "error", err)
	}
}

// HandleAffiliateWelcomeEmail 处理账户开通邮件任务
func (s *NotificationService) HandleAffiliateWelcomeEmail(ctx context.Context, payload queue.AffiliateWelcomeEmailPayload) error {
	if s == nil {
		return nil
	}
	affiliate, email, err := s.resolveRecipient(payload.AffiliateID)
	if err != nil {
		return s.swallowNotFound("affiliate_welcome_recipient_missing", payload.AffiliateID, err)
	}
	return s.normalizeSendResult("affiliate_welcome",
		s.emailService.SendAffiliateWelcomeEmail(email, affiliate.ReferralCode))
}

// HandleAffiliateThresholdEmail 处理提现门槛邮件任务
func (s *NotificationService) HandleAffiliateThresholdEmail(ctx context.Context, payload queue.AffiliateThresholdEmailPayload) error {
	if s == nil {
		return nil
	}
	affiliate, email, err := s.resolveRecipient(payload.AffiliateID)
	if err != nil {
		return s.swallowNotFound("affiliate_threshold_recipient_missing", payload.AffiliateID, err)
	}
	balance := parseMoneyString(payload.Balance)
	return s.normalizeSendResult("affiliate_threshold",
		s.emailService.SendAffiliateThresholdEmail(email, AffiliateThresholdEmailInput{
			Balance:   balance,
			Threshold: affiliate.MinPayoutThreshold,
			Currency:  s.billing.Currency,
		}))
}

// HandleAffiliatePayoutEmail 处理提现结算结果邮件任务
func (s *NotificationService) HandleAffiliatePayoutEmail(ctx context.Context, payload queue.AffiliatePayoutEmailPayload) error {
	if s == nil {
		return nil
	}
	payout, err := s.affiliateRepo.GetPayoutByID(payload.PayoutID)
	if err != nil {
		return err
	}
	if payout == nil {
		return s.swallowNotFound("affiliate_payout_missing", payload.PayoutID, ErrNotFound)
	}
	_, email, err := s.resolveRecipient(payout.AffiliateID)
	if err != nil {
		return s.swallowNotFound("affiliate_payout_recipient_missing", payout.AffiliateID, err)
	}
	status := payload.Status
	if status == "" {
		status = payout.Status
	}
	return s.normalizeSendResult("affiliate_payout",
		s.emailService.SendAffiliatePayoutEmail(email, AffiliatePayoutEmailInput{
			Amount:   payout.Amount,
			Currency: s.billing.Currency,
			Status:   status,
		}))
}

// HandleAffiliateRefundEmail 处理佣金回退邮件任务
func (s *NotificationService) HandleAffiliateRefundEmail(ctx context.Context, payload queue.AffiliateRefundEmailPayload) error {
	if s == nil {
		return nil
	}
	_, email, err := s.resolveRecipient(payload.AffiliateID)
	if err != nil {
		return s.swallowNotFound("affiliate_refund_recipient_missing", payload.AffiliateID, err)
	}
	return s.normalizeSendResult("affiliate_refund",
		s.emailService.SendAffiliateRefundEmail(email, AffiliateRefundEmailInput{
			Amount:   parseMoneyString(payload.Amount),
			Currency: s.billing.Currency,
		}))
}

func (s *NotificationService) resolveRecipient(affiliateID uint) (*models.Affiliate, string, error) {
	if s.affiliateRepo == nil || s.userRepo == nil {
		return nil, "", ErrNotFound
	}
	affiliate, err := s.affiliateRepo.GetByID(affiliateID)
	if err != nil {
		return nil, "", err
	}
	if affiliate == nil {
		return nil, "", ErrNotFound
	}
	user, err := s.userRepo.GetByID(affiliate.UserID)
	if err != nil {
		return nil, "", err
	}
	if user == nil {
		return nil, "", ErrNotFound
	}
	email := strings.TrimSpace(user.Email)
	if email == "" {
		return nil, "", ErrInvalidEmail
	}
	return affiliate, email, nil
}

// swallowNotFound 收件人缺失时放弃重试，其余错误交给队列重试
func (s *NotificationService) swallowNotFound(event string, id uint, err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidEmail) {
		logger.Warnw(event, "id", id, "error", err)
		return nil
	}
	return err
}

// normalizeSendResult 邮件服务未启用不算任务失败
func (s *NotificationService) normalizeSendResult(event string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrEmailServiceDisabled) || errors.Is(err, ErrEmailServiceNotConfigured) {
		logger.Debugw(event+"_skipped", "error", err)
		return nil
	}
	if errors.Is(err, ErrEmailRecipientRejected) {
		logger.Warnw(event+"_recipient_rejected", "error", err)
		return nil
	}
	return err
}

func parseMoneyString(value string) models.Money {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return models.Money{}
	}
	return models.NewMoneyFromDecimal(d)
}
