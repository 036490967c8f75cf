package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/threadposts/internal/cache"
	"github.com/threadposts/internal/config"
	"github.com/threadposts/internal/constants"
	"github.com/threadposts/internal/logger"
	"github.com/threadposts/internal/models"
	"github.com/threadposts/internal/payment/stripe"
	"github.com/threadposts/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PayoutService 提现结算引擎。
// 自助结算：校验收款账户与门槛后整额转账，成功才清零 pending_balance；
// 外部转账携带由结算单ID派生的幂等键，重试不会重复打款。
type PayoutService struct {
	repo            repository.AffiliateRepository
	settingService  *SettingService
	notificationSvc *NotificationService
	stripeCfg       *stripe.Config
	billing         config.BillingConfig
}

// NewPayoutService 创建提现结算引擎
func NewPayoutService(
	repo repository.AffiliateRepository,
	settingService *SettingService,
	notificationSvc *NotificationService,
	stripeCfg *stripe.Config,
	billing config.BillingConfig,
) *PayoutService {
	return &PayoutService{
		repo:            repo,
		settingService:  settingService,
		notificationSvc: notificationSvc,
		stripeCfg:       stripeCfg,
		billing:         billing,
	}
}

// RequestPayout 自助结算：将全部待结算佣金转入推广者的收款账户。
// 转账失败时结算单置为 denied，余额不变。
func (s *PayoutService) RequestPayout(ctx context.Context, affiliateID uint) (*models.AffiliatePayout, error) {
	if affiliateID == 0 || s.repo == nil {
		return nil, ErrNotFound
	}
	setting, err := s.settingService.GetAffiliateSetting()
	if err != nil {
		return nil, err
	}
	if !setting.Enabled {
		return nil, ErrAffiliateDisabled
	}

	affiliate, err := s.repo.GetByID(affiliateID)
	if err != nil {
		return nil, err
	}
	if affiliate == nil {
		return nil, ErrNotFound
	}
	if strings.TrimSpace(affiliate.Status) != constants.AffiliateStatusActive {
		return nil, ErrAffiliateSuspended
	}

	if err := s.ensureAccountReady(ctx, affiliate); err != nil {
		return nil, err
	}

	// 先落结算单拿到ID，转账幂等键由ID派生，转账成功后再动余额。
	// 重复请求校验必须在行锁之后：并发请求由锁串行化，后到者才能看见先到者的 pending 单。
	var payout *models.AffiliatePayout
	var amount decimal.Decimal
	err = s.repo.Transaction(func(tx *gorm.DB) error {
		repoTx := s.repo.WithTx(tx)
		locked, err := repoTx.GetByIDForUpdate(affiliateID)
		if err != nil {
			return err
		}
		if locked == nil {
			return ErrNotFound
		}
		pending, err := repoTx.HasPayoutInStatus(affiliateID, []string{constants.PayoutStatusPending})
		if err != nil {
			return err
		}
		if pending {
			return ErrPayoutPendingExists
		}
		amount = locked.PendingBalance.Decimal.Round(2)
		threshold := locked.MinPayoutThreshold.Decimal.Round(2)
		if threshold.LessThanOrEqual(decimal.Zero) {
			threshold = decimal.NewFromFloat(s.billing.DefaultPayoutThreshold).Round(2)
		}
		if amount.LessThan(threshold) {
			return fmt.Errorf("%w: balance %s below threshold %s",
				ErrPayoutBelowThreshold, amount.StringFixed(2), threshold.StringFixed(2))
		}

		now := time.Now()
		payout = &models.AffiliatePayout{
			AffiliateID: affiliateID,
			Amount:      models.NewMoneyFromDecimal(amount),
			Status:      constants.PayoutStatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		return repoTx.CreatePayout(payout)
	})
	if err != nil {
		return nil, err
	}

	transfer, transferErr := stripe.CreateTransfer(ctx, s.stripeCfg, stripe.TransferInput{
		Destination:    affiliate.ConnectedAccountID,
		Amount:         amount.StringFixed(2),
		Currency:       s.billing.Currency,
		IdempotencyKey: fmt.Sprintf("payout-%d", payout.ID),
		Description:    "affiliate commission payout",
	})
	now := time.Now()
	if transferErr != nil {
		payout.Status = constants.PayoutStatusDenied
		payout.UpdatedAt = now
		if err := s.repo.UpdatePayout(payout); err != nil {
			logger.Errorw("payout_deny_update_failed", "payout_id", payout.ID, "error", err)
		}
		logger.Warnw("payout_transfer_failed", "payout_id", payout.ID, "affiliate_id", affiliateID, "error", transferErr)
		return nil, fmt.Errorf("%w: %v", ErrPayoutTransferFailed, transferErr)
	}

	err = s.repo.Transaction(func(tx *gorm.DB) error {
		repoTx := s.repo.WithTx(tx)
		locked, err := repoTx.GetByIDForUpdate(affiliateID)
		if err != nil {
			return err
		}
		if locked != nil {
			// 转账窗口内余额可能被退款回退改动，转出额以快照为准，偏差留痕对账
			current := locked.PendingBalance.Decimal.Round(2)
			if !current.Equal(amount) {
				logger.Warnw("payout_balance_diverged",
					"payout_id", payout.ID,
					"affiliate_id", affiliateID,
					"snapshot", amount.StringFixed(2),
					"current", current.StringFixed(2))
			}
		}
		if err := repoTx.ApplyBalanceDelta(affiliateID, amount.Neg(), decimal.Zero, now); err != nil {
			return err
		}
		payout.Status = constants.PayoutStatusCompleted
		payout.TransferRef = transfer.TransferID
		payout.PaidAt = &now
		payout.UpdatedAt = now
		return repoTx.UpdatePayout(payout)
	})
	if err != nil {
		// 转账已出账，结算单状态落库失败只能靠日志与对账兜底
		logger.Errorw("payout_settle_update_failed",
			"payout_id", payout.ID, "transfer_ref", transfer.TransferID, "error", err)
		return nil, err
	}

	logger.Infow("payout_completed",
		"payout_id", payout.ID,
		"affiliate_id", affiliateID,
		"amount", amount.StringFixed(2),
		"transfer_ref", transfer.TransferID)
	_ = cache.DelAffiliateStats(context.Background(), affiliateID)
	s.notificationSvc.NotifyPayoutResult(payout.ID, constants.PayoutStatusCompleted)
	return payout, nil
}

// ReviewPayout 管理端审批 pending 结算单。
// 核准时扣减余额并记结算时间；驳回仅改状态（pending 单不占用余额）。
func (s *PayoutService) ReviewPayout(payoutID uint, action string) (*models.AffiliatePayout, error) {
	if payoutID == 0 || s.repo == nil {
		return nil, ErrNotFound
	}
	act := strings.ToLower(strings.TrimSpace(action))
	if act != constants.PayoutActionPay && act != constants.PayoutActionDeny {
		return nil, ErrPayoutStatusInvalid
	}

	var affiliateID uint
	err := s.repo.Transaction(func(tx *gorm.DB) error {
		repoTx := s.repo.WithTx(tx)
		payout, err := repoTx.GetPayoutByIDForUpdate(payoutID)
		if err != nil {
			return err
		}
		if payout == nil {
			return ErrNotFound
		}
		if payout.Status != constants.PayoutStatusPending {
			return ErrPayoutStatusInvalid
		}
		affiliateID = payout.AffiliateID

		now := time.Now()
		payout.UpdatedAt = now
		if act == constants.PayoutActionDeny {
			payout.Status = constants.PayoutStatusDenied
			return repoTx.UpdatePayout(payout)
		}

		amount := payout.Amount.Decimal.Round(2)
		if err := repoTx.ApplyBalanceDelta(payout.AffiliateID, amount.Neg(), decimal.Zero, now); err != nil {
			return err
		}
		payout.Status = constants.PayoutStatusPaid
		payout.PaidAt = &now
		return repoTx.UpdatePayout(payout)
	})
	if err != nil {
		return nil, err
	}

	payout, err := s.repo.GetPayoutByID(payoutID)
	if err != nil {
		return nil, err
	}
	if payout != nil {
		logger.Infow("payout_reviewed", "payout_id", payoutID, "status", payout.Status)
		_ = cache.DelAffiliateStats(context.Background(), affiliateID)
		s.notificationSvc.NotifyPayoutResult(payoutID, payout.Status)
	}
	return payout, nil
}

// ListAdminPayouts 后台查询结算单列表
func (s *PayoutService) ListAdminPayouts(filter repository.PayoutListFilter) ([]models.AffiliatePayout, int64, error) {
	if s.repo == nil {
		return []models.AffiliatePayout{}, 0, nil
	}
	return s.repo.ListPayouts(filter)
}

// ensureAccountReady 校验收款账户可入账，必要时从支付平台刷新状态
func (s *PayoutService) ensureAccountReady(ctx context.Context, affiliate *models.Affiliate) error {
	if strings.TrimSpace(affiliate.ConnectedAccountID) == "" {
		return ErrPayoutAccountNotReady
	}
	if affiliate.ConnectedOnboarded {
		return nil
	}

	status, err := stripe.RetrieveAccountStatus(ctx, s.stripeCfg, affiliate.ConnectedAccountID)
	if err != nil {
		logger.Warnw("payout_account_status_check_failed",
			"affiliate_id", affiliate.ID, "account_id", affiliate.ConnectedAccountID, "error", err)
		return ErrPayoutAccountNotReady
	}
	if !status.PayoutsEnabled {
		return ErrPayoutAccountNotReady
	}

	affiliate.ConnectedOnboarded = true
	affiliate.UpdatedAt = time.Now()
	if err := s.repo.Update(affiliate); err != nil {
		return err
	}
	return nil
}
