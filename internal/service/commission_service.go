package service

import (
	"context"
	"strings"
	"time"

	"github.com/threadposts/internal/cache"
	"github.com/threadposts/internal/config"
	"github.com/threadposts/internal/constants"
	"github.com/threadposts/internal/logger"
	"github.com/threadposts/internal/models"
	"github.com/threadposts/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CommissionService 佣金累计与回退引擎。
// 同一笔支付可能经同步回跳和异步 webhook 两条路径送达，
// 幂等性唯一依赖入账/回退流水上的唯一索引（插入后识别冲突）。
type CommissionService struct {
	repo            repository.AffiliateRepository
	userRepo        repository.UserRepository
	notificationSvc *NotificationService
	billing         config.BillingConfig
}

// NewCommissionService 创建佣金引擎
func NewCommissionService(
	repo repository.AffiliateRepository,
	userRepo repository.UserRepository,
	notificationSvc *NotificationService,
	billing config.BillingConfig,
) *CommissionService {
	return &CommissionService{
		repo:            repo,
		userRepo:        userRepo,
		notificationSvc: notificationSvc,
		billing:         billing,
	}
}

// AccrualResult 佣金累计结果
type AccrualResult struct {
	Applied           bool         `json:"applied"`
	Amount            models.Money `json:"amount"`
	NewPendingBalance models.Money `json:"new_pending_balance"`
	CrossedThreshold  bool         `json:"crossed_threshold"`
}

// ReversalResult 佣金回退结果
type ReversalResult struct {
	Applied bool         `json:"applied"`
	Amount  models.Money `json:"amount"`
}

// AccrueCommission 为一笔支付事件累计佣金。
// paymentRef 为上游支付标识（session/invoice id），同一标识至多入账一次。
func (s *CommissionService) AccrueCommission(affiliateID uint, paymentRef string, baseAmount decimal.Decimal, conversionID *uint) (AccrualResult, error) {
	result := AccrualResult{
		Amount:            models.NewMoneyFromDecimal(decimal.Zero),
		NewPendingBalance: models.NewMoneyFromDecimal(decimal.Zero),
	}
	ref := strings.TrimSpace(paymentRef)
	if affiliateID == 0 || ref == "" || s.repo == nil {
		return result, nil
	}
	base := baseAmount.Round(2)
	if base.LessThanOrEqual(decimal.Zero) {
		return result, nil
	}

	err := s.repo.Transaction(func(tx *gorm.DB) error {
		repoTx := s.repo.WithTx(tx)
		affiliate, err := repoTx.GetByIDForUpdate(affiliateID)
		if err != nil {
			return err
		}
		if affiliate == nil {
			logger.Warnw("commission_accrual_affiliate_missing", "affiliate_id", affiliateID, "payment_ref", ref)
			return nil
		}
		if strings.TrimSpace(affiliate.Status) != constants.AffiliateStatusActive {
			logger.Warnw("commission_accrual_affiliate_inactive", "affiliate_id", affiliateID, "payment_ref", ref)
			return nil
		}

		rate := s.resolveCommissionRate(affiliate)
		amount := base.Mul(rate).Div(decimal.NewFromInt(100)).Round(2)
		if amount.LessThanOrEqual(decimal.Zero) {
			return nil
		}

		earning := &models.AffiliateEarning{
			AffiliateID:  affiliateID,
			PaymentRef:   ref,
			ConversionID: conversionID,
			BaseAmount:   models.NewMoneyFromDecimal(base),
			RatePercent:  models.NewMoneyFromDecimal(rate),
			Amount:       models.NewMoneyFromDecimal(amount),
			CreatedAt:    time.Now(),
		}
		if err := repoTx.CreateEarning(earning); err != nil {
			if isUniqueViolation(err) {
				logger.Infow("commission_accrual_duplicate", "affiliate_id", affiliateID, "payment_ref", ref)
				return nil
			}
			return err
		}

		// before/after 来自 FOR UPDATE 的读快照，写入走 ApplyBalanceDelta 的单条
		// UPDATE；行锁持续到提交，快照与增量在此期间不会被并发写偏离。
		before := affiliate.PendingBalance.Decimal.Round(2)
		after := before.Add(amount).Round(2)
		threshold := s.resolvePayoutThreshold(affiliate)
		if err := repoTx.ApplyBalanceDelta(affiliateID, amount, amount, time.Now()); err != nil {
			return err
		}

		result.Applied = true
		result.Amount = models.NewMoneyFromDecimal(amount)
		result.NewPendingBalance = models.NewMoneyFromDecimal(after)
		result.CrossedThreshold = before.LessThan(threshold) && after.GreaterThanOrEqual(threshold)
		return nil
	})
	if err != nil {
		return AccrualResult{
			Amount:            models.NewMoneyFromDecimal(decimal.Zero),
			NewPendingBalance: models.NewMoneyFromDecimal(decimal.Zero),
		}, err
	}

	if result.Applied {
		logger.Infow("commission_accrued",
			"affiliate_id", affiliateID,
			"payment_ref", ref,
			"amount", result.Amount.String(),
			"new_pending_balance", result.NewPendingBalance.String())
		_ = cache.DelAffiliateStats(context.Background(), affiliateID)
		if result.CrossedThreshold {
			s.notificationSvc.NotifyThresholdReached(affiliateID, result.NewPendingBalance)
		}
	}
	return result, nil
}

// ReverseCommission 为一笔上游退款回退佣金。
// 解析链 邮箱→用户→转化→推广账户，任一环缺失即静默跳过。
// paymentRef 是被退那笔支付的入账引用（session/invoice id），用于回链原始入账流水；
// refundRef 只作幂等键，入账流水从不以退款 id 落库。
func (s *CommissionService) ReverseCommission(customerEmail string, refundAmount decimal.Decimal, refundRef, paymentRef string) (ReversalResult, error) {
	result := ReversalResult{Amount: models.NewMoneyFromDecimal(decimal.Zero)}
	ref := strings.TrimSpace(refundRef)
	if ref == "" || s.repo == nil || s.userRepo == nil {
		return result, nil
	}
	refund := refundAmount.Round(2)
	if refund.LessThanOrEqual(decimal.Zero) {
		return result, nil
	}

	normalized, err := normalizeEmail(customerEmail)
	if err != nil {
		logger.Warnw("commission_reversal_email_invalid", "refund_ref", ref)
		return result, nil
	}
	user, err := s.userRepo.GetByEmail(normalized)
	if err != nil {
		return result, err
	}
	if user == nil {
		logger.Infow("commission_reversal_user_missing", "refund_ref", ref, "email", normalized)
		return result, nil
	}
	conversion, err := s.repo.GetConversionByReferredUser(user.ID)
	if err != nil {
		return result, err
	}
	if conversion == nil {
		logger.Infow("commission_reversal_conversion_missing", "refund_ref", ref, "user_id", user.ID)
		return result, nil
	}

	affiliateID := conversion.AffiliateID
	err = s.repo.Transaction(func(tx *gorm.DB) error {
		repoTx := s.repo.WithTx(tx)
		affiliate, err := repoTx.GetByIDForUpdate(affiliateID)
		if err != nil {
			return err
		}
		if affiliate == nil {
			return nil
		}

		rate := s.resolveCommissionRate(affiliate)
		deduction := refund.Mul(rate).Div(decimal.NewFromInt(100)).Round(2)
		if deduction.LessThanOrEqual(decimal.Zero) {
			return nil
		}

		var earningID *uint
		if payRef := strings.TrimSpace(paymentRef); payRef != "" {
			earning, err := repoTx.GetEarningByPaymentRef(affiliateID, payRef)
			if err != nil {
				return err
			}
			if earning != nil {
				earningID = &earning.ID
			}
		}

		row := &models.AffiliateDeduction{
			AffiliateID: affiliateID,
			RefundRef:   ref,
			EarningID:   earningID,
			Amount:      models.NewMoneyFromDecimal(deduction),
			Reason:      constants.DeductionReasonRefund,
			CreatedAt:   time.Now(),
		}
		if err := repoTx.CreateDeduction(row); err != nil {
			if isUniqueViolation(err) {
				logger.Infow("commission_reversal_duplicate", "affiliate_id", affiliateID, "refund_ref", ref)
				return nil
			}
			return err
		}

		if err := repoTx.ApplyBalanceDelta(affiliateID, deduction.Neg(), deduction.Neg(), time.Now()); err != nil {
			return err
		}
		result.Applied = true
		result.Amount = models.NewMoneyFromDecimal(deduction)
		return nil
	})
	if err != nil {
		return ReversalResult{Amount: models.NewMoneyFromDecimal(decimal.Zero)}, err
	}

	if result.Applied {
		logger.Infow("commission_reversed",
			"affiliate_id", affiliateID,
			"refund_ref", ref,
			"amount", result.Amount.String())
		_ = cache.DelAffiliateStats(context.Background(), affiliateID)
		s.notificationSvc.NotifyCommissionReversed(affiliateID, result.Amount, ref)
	}
	return result, nil
}

// ListAdminEarnings 后台查询入账流水
func (s *CommissionService) ListAdminEarnings(filter repository.EarningListFilter) ([]models.AffiliateEarning, int64, error) {
	if s.repo == nil {
		return []models.AffiliateEarning{}, 0, nil
	}
	return s.repo.ListEarnings(filter)
}

// ListAdminDeductions 后台查询回退流水
func (s *CommissionService) ListAdminDeductions(filter repository.DeductionListFilter) ([]models.AffiliateDeduction, int64, error) {
	if s.repo == nil {
		return []models.AffiliateDeduction{}, 0, nil
	}
	return s.repo.ListDeductions(filter)
}

// resolveCommissionRate 读取账户佣金比例，异常值回退到配置默认值
func (s *CommissionService) resolveCommissionRate(affiliate *models.Affiliate) decimal.Decimal {
	rate := affiliate.CommissionRate.Decimal.Round(2)
	if rate.LessThanOrEqual(decimal.Zero) || rate.GreaterThan(decimal.NewFromInt(100)) {
		rate = decimal.NewFromFloat(s.billing.DefaultCommissionRate).Round(2)
	}
	if rate.LessThanOrEqual(decimal.Zero) || rate.GreaterThan(decimal.NewFromInt(100)) {
		rate = decimal.NewFromInt(50)
	}
	return rate
}

// resolvePayoutThreshold 读取账户提现门槛，异常值回退到配置默认值
func (s *CommissionService) resolvePayoutThreshold(affiliate *models.Affiliate) decimal.Decimal {
	threshold := affiliate.MinPayoutThreshold.Decimal.Round(2)
	if threshold.LessThanOrEqual(decimal.Zero) {
		threshold = decimal.NewFromFloat(s.billing.DefaultPayoutThreshold).Round(2)
	}
	if threshold.LessThanOrEqual(decimal.Zero) {
		threshold = decimal.NewFromInt(25)
	}
	return threshold
}
