package service

import (
	"context"
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/threadposts/internal/cache"
	"github.com/threadposts/internal/config"
	"github.com/threadposts/internal/constants"
	"github.com/threadposts/internal/logger"
	"github.com/threadposts/internal/models"
	"github.com/threadposts/internal/repository"

	"github.com/shopspring/decimal"
)

const (
	affiliateCodeLength  = 8
	referralCodeMinLen   = 4
	referralCodeMaxLen   = 20
	affiliateCodeRetries = 8
)

var referralCodePattern = regexp.MustCompile(`^[A-Z0-9_-]+$`)

// AffiliateService 推广账户服务：账户开通、推广码管理、点击归因与转化绑定。
// 余额只经由佣金累计、佣金回退、提现结算三条路径变更，本服务不直接改余额。
type AffiliateService struct {
	repo            repository.AffiliateRepository
	userRepo        repository.UserRepository
	settingService  *SettingService
	notificationSvc *NotificationService
	billing         config.BillingConfig
}

// NewAffiliateService 创建推广账户服务
func NewAffiliateService(
	repo repository.AffiliateRepository,
	userRepo repository.UserRepository,
	settingService *SettingService,
	notificationSvc *NotificationService,
	billing config.BillingConfig,
) *AffiliateService {
	return &AffiliateService{
		repo:            repo,
		userRepo:        userRepo,
		settingService:  settingService,
		notificationSvc: notificationSvc,
		billing:         billing,
	}
}

// TrackClickInput 推广点击记录输入
type TrackClickInput struct {
	ReferralCode string
	Source       string
	LandingPath  string
	ClientIP     string
	UserAgent    string
}

// TrackClickResult 推广点击记录结果。
// AffiliateID 即前端持有的归因令牌；服务端使用前必须重新校验。
type TrackClickResult struct {
	AffiliateID uint `json:"affiliate_id"`
	Recorded    bool `json:"recorded"`
}

// AffiliateDashboard 推广用户中心数据
type AffiliateDashboard struct {
	Opened          bool         `json:"opened"`
	ReferralCode    string       `json:"referral_code"`
	ReferralPath    string       `json:"referral_path"`
	ClickCount      int64        `json:"click_count"`
	ConversionCount int64        `json:"conversion_count"`
	PendingBalance  models.Money `json:"pending_balance"`
	TotalEarnings   models.Money `json:"total_earnings"`
	PaidOutTotal    models.Money `json:"paid_out_total"`
	PayoutThreshold models.Money `json:"payout_threshold"`
	Onboarded       bool         `json:"onboarded"`
}

// AffiliateAdminItem 后台推广账户列表项
type AffiliateAdminItem struct {
	Affiliate models.Affiliate                   `json:"affiliate"`
	Stats     repository.AffiliateStatsAggregate `json:"stats"`
}

// OpenAffiliate 为用户开通推广账户（幂等：已开通时返回既有账户）
func (s *AffiliateService) OpenAffiliate(userID uint) (*models.Affiliate, error) {
	if userID == 0 {
		return nil, ErrNotFound
	}
	if s.repo == nil || s.userRepo == nil {
		return nil, ErrNotFound
	}
	setting, err := s.settingService.GetAffiliateSetting()
	if err != nil {
		return nil, err
	}
	if !setting.Enabled {
		return nil, ErrAffiliateDisabled
	}

	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}
	if strings.TrimSpace(user.Status) == constants.UserStatusDisabled {
		return nil, ErrUserDisabled
	}

	existing, err := s.repo.GetByUserID(userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	for i := 0; i < affiliateCodeRetries; i++ {
		code, genErr := generateReferralCode()
		if genErr != nil {
			return nil, genErr
		}
		affiliate := &models.Affiliate{
			UserID:             userID,
			ReferralCode:       code,
			CommissionRate:     models.NewMoneyFromDecimal(decimal.NewFromFloat(setting.CommissionRate)),
			MinPayoutThreshold: models.NewMoneyFromDecimal(decimal.NewFromFloat(setting.PayoutThreshold)),
			Status:             constants.AffiliateStatusActive,
		}
		if err := s.repo.Create(affiliate); err != nil {
			if isUniqueViolation(err) {
				// 推广码撞库重试；user_id 撞库说明并发开通，读回既有账户
				concurrent, getErr := s.repo.GetByUserID(userID)
				if getErr == nil && concurrent != nil {
					return concurrent, nil
				}
				continue
			}
			return nil, err
		}
		logger.Infow("affiliate_opened", "affiliate_id", affiliate.ID, "user_id", userID, "referral_code", code)
		s.notificationSvc.NotifyAffiliateWelcome(affiliate.ID)
		return s.repo.GetByID(affiliate.ID)
	}
	return nil, ErrAffiliateCodeInvalid
}

// UpdateReferralCode 修改推广码（统一大写，全局唯一）
func (s *AffiliateService) UpdateReferralCode(affiliateID uint, rawCode string) (*models.Affiliate, error) {
	if affiliateID == 0 || s.repo == nil {
		return nil, ErrNotFound
	}
	code := normalizeReferralCode(rawCode)
	if !isReferralCodeValid(code) {
		return nil, ErrAffiliateCodeInvalid
	}

	affiliate, err := s.repo.GetByID(affiliateID)
	if err != nil {
		return nil, err
	}
	if affiliate == nil {
		return nil, ErrNotFound
	}
	if affiliate.ReferralCode == code {
		return affiliate, nil
	}

	if err := s.repo.UpdateReferralCode(affiliateID, code, time.Now()); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAffiliateCodeTaken
		}
		return nil, err
	}
	return s.repo.GetByID(affiliateID)
}

// UpdateAffiliateStatus 管理端更新推广账户状态
func (s *AffiliateService) UpdateAffiliateStatus(affiliateID uint, rawStatus string) (*models.Affiliate, error) {
	if affiliateID == 0 || s.repo == nil {
		return nil, ErrNotFound
	}
	nextStatus := strings.ToLower(strings.TrimSpace(rawStatus))
	if nextStatus != constants.AffiliateStatusActive && nextStatus != constants.AffiliateStatusDisabled {
		return nil, ErrAffiliateSuspended
	}

	affiliate, err := s.repo.GetByID(affiliateID)
	if err != nil {
		return nil, err
	}
	if affiliate == nil {
		return nil, ErrNotFound
	}
	if strings.TrimSpace(affiliate.Status) == nextStatus {
		return affiliate, nil
	}
	if err := s.repo.UpdateStatus(affiliateID, nextStatus, time.Now()); err != nil {
		return nil, err
	}
	_ = cache.DelAffiliateStats(context.Background(), affiliateID)
	return s.repo.GetByID(affiliateID)
}

// UpdateConnectedAccount 绑定外部收款账户
func (s *AffiliateService) UpdateConnectedAccount(affiliateID uint, accountID string, onboarded bool) (*models.Affiliate, error) {
	if affiliateID == 0 || s.repo == nil {
		return nil, ErrNotFound
	}
	affiliate, err := s.repo.GetByID(affiliateID)
	if err != nil {
		return nil, err
	}
	if affiliate == nil {
		return nil, ErrNotFound
	}
	affiliate.ConnectedAccountID = strings.TrimSpace(accountID)
	affiliate.ConnectedOnboarded = onboarded
	affiliate.UpdatedAt = time.Now()
	if err := s.repo.Update(affiliate); err != nil {
		return nil, err
	}
	return affiliate, nil
}

// TrackClick 记录推广点击。
// 未知推广码静默忽略，任何失败都不应打断前端导航。
func (s *AffiliateService) TrackClick(input TrackClickInput) (TrackClickResult, error) {
	result := TrackClickResult{}
	if s.repo == nil {
		return result, nil
	}
	code := normalizeReferralCode(input.ReferralCode)
	if code == "" {
		return result, nil
	}
	setting, err := s.settingService.GetAffiliateSetting()
	if err != nil {
		return result, err
	}
	if !setting.Enabled {
		return result, nil
	}

	affiliate, err := s.repo.GetByCode(code)
	if err != nil {
		return result, err
	}
	if affiliate == nil || strings.TrimSpace(affiliate.Status) != constants.AffiliateStatusActive {
		return result, nil
	}
	result.AffiliateID = affiliate.ID

	clientIP := strings.TrimSpace(input.ClientIP)
	landingPath := strings.TrimSpace(input.LandingPath)
	if clientIP != "" && setting.ClickDedupeMinutes > 0 {
		since := time.Now().Add(-time.Duration(setting.ClickDedupeMinutes) * time.Minute)
		duplicated, err := s.repo.HasRecentClick(affiliate.ID, clientIP, landingPath, since)
		if err != nil {
			return result, err
		}
		if duplicated {
			return result, nil
		}
	}

	source := strings.TrimSpace(input.Source)
	if source == "" {
		source = constants.ClickSourceDirect
	}
	click := &models.ReferralClick{
		AffiliateID: affiliate.ID,
		Source:      source,
		LandingPath: landingPath,
		ClientIP:    clientIP,
		UserAgent:   strings.TrimSpace(input.UserAgent),
		CreatedAt:   time.Now(),
	}
	if err := s.repo.CreateClick(click); err != nil {
		return result, err
	}
	result.Recorded = true
	_ = cache.DelAffiliateStats(context.Background(), affiliate.ID)
	return result, nil
}

// ResolveAffiliateForAttribution 校验前端归因令牌对应的推广账户。
// 令牌是不可信输入：账户不存在或停用时返回 nil。
func (s *AffiliateService) ResolveAffiliateForAttribution(affiliateID uint) (*models.Affiliate, error) {
	if affiliateID == 0 || s.repo == nil {
		return nil, nil
	}
	affiliate, err := s.repo.GetByID(affiliateID)
	if err != nil {
		return nil, err
	}
	if affiliate == nil || strings.TrimSpace(affiliate.Status) != constants.AffiliateStatusActive {
		return nil, nil
	}
	return affiliate, nil
}

// RecordConversionIfAbsent 绑定被推荐用户与推广账户（幂等）。
// 自我推荐不拦截，仅记录日志。
func (s *AffiliateService) RecordConversionIfAbsent(affiliateID, referredUserID uint) (bool, *models.ReferralConversion, error) {
	if affiliateID == 0 || referredUserID == 0 || s.repo == nil {
		return false, nil, nil
	}
	existing, err := s.repo.GetConversion(affiliateID, referredUserID)
	if err != nil {
		return false, nil, err
	}
	if existing != nil {
		return false, existing, nil
	}

	affiliate, err := s.repo.GetByID(affiliateID)
	if err != nil {
		return false, nil, err
	}
	if affiliate == nil {
		return false, nil, nil
	}
	if affiliate.UserID == referredUserID {
		logger.Warnw("self_referral_conversion", "affiliate_id", affiliateID, "user_id", referredUserID)
	}

	conversion := &models.ReferralConversion{
		AffiliateID:    affiliateID,
		ReferredUserID: referredUserID,
		CreatedAt:      time.Now(),
	}
	if err := s.repo.CreateConversion(conversion); err != nil {
		if isUniqueViolation(err) {
			// 两条送达路径并发写入时读回先到的记录
			concurrent, getErr := s.repo.GetConversion(affiliateID, referredUserID)
			if getErr != nil {
				return false, nil, getErr
			}
			return false, concurrent, nil
		}
		return false, nil, err
	}
	_ = cache.DelAffiliateStats(context.Background(), affiliateID)
	return true, conversion, nil
}

// GetDashboard 获取推广用户中心数据
func (s *AffiliateService) GetDashboard(userID uint) (AffiliateDashboard, error) {
	dashboard := AffiliateDashboard{
		PendingBalance:  models.NewMoneyFromDecimal(decimal.Zero),
		TotalEarnings:   models.NewMoneyFromDecimal(decimal.Zero),
		PaidOutTotal:    models.NewMoneyFromDecimal(decimal.Zero),
		PayoutThreshold: models.NewMoneyFromDecimal(decimal.Zero),
	}
	if userID == 0 || s.repo == nil {
		return dashboard, nil
	}
	affiliate, err := s.repo.GetByUserID(userID)
	if err != nil {
		return dashboard, err
	}
	if affiliate == nil {
		return dashboard, nil
	}

	dashboard.Opened = true
	dashboard.ReferralCode = affiliate.ReferralCode
	dashboard.ReferralPath = "/?via=" + affiliate.ReferralCode
	dashboard.PendingBalance = affiliate.PendingBalance
	dashboard.TotalEarnings = affiliate.TotalEarnings
	dashboard.PayoutThreshold = affiliate.MinPayoutThreshold
	dashboard.Onboarded = affiliate.ConnectedOnboarded

	ctx := context.Background()
	if snapshot, ok, _ := cache.GetAffiliateStats(ctx, affiliate.ID); ok && snapshot != nil {
		dashboard.ClickCount = snapshot.ClickCount
		dashboard.ConversionCount = snapshot.ConversionCount
		if paidOut, err := decimal.NewFromString(snapshot.PaidOutTotal); err == nil {
			dashboard.PaidOutTotal = models.NewMoneyFromDecimal(paidOut)
		}
		return dashboard, nil
	}

	clickCount, err := s.repo.CountClicksByAffiliate(affiliate.ID)
	if err != nil {
		return dashboard, err
	}
	conversionCount, err := s.repo.CountConversionsByAffiliate(affiliate.ID)
	if err != nil {
		return dashboard, err
	}
	paidOut, err := s.repo.SumPayoutsByAffiliate(affiliate.ID, []string{
		constants.PayoutStatusPaid,
		constants.PayoutStatusCompleted,
	})
	if err != nil {
		return dashboard, err
	}
	dashboard.ClickCount = clickCount
	dashboard.ConversionCount = conversionCount
	dashboard.PaidOutTotal = models.NewMoneyFromDecimal(paidOut)

	_ = cache.SetAffiliateStats(ctx, &cache.AffiliateStatsSnapshot{
		AffiliateID:     affiliate.ID,
		ClickCount:      clickCount,
		ConversionCount: conversionCount,
		PendingBalance:  affiliate.PendingBalance.String(),
		TotalEarnings:   affiliate.TotalEarnings.String(),
		PaidOutTotal:    dashboard.PaidOutTotal.String(),
		UpdatedAt:       time.Now().Unix(),
	})
	return dashboard, nil
}

// GetAffiliateByUserID 获取用户的推广账户
func (s *AffiliateService) GetAffiliateByUserID(userID uint) (*models.Affiliate, error) {
	if userID == 0 || s.repo == nil {
		return nil, nil
	}
	return s.repo.GetByUserID(userID)
}

// ListUserEarnings 查询用户佣金入账流水
func (s *AffiliateService) ListUserEarnings(userID uint, page, pageSize int) ([]models.AffiliateEarning, int64, error) {
	if userID == 0 || s.repo == nil {
		return []models.AffiliateEarning{}, 0, nil
	}
	affiliate, err := s.repo.GetByUserID(userID)
	if err != nil {
		return nil, 0, err
	}
	if affiliate == nil {
		return []models.AffiliateEarning{}, 0, nil
	}
	return s.repo.ListEarnings(repository.EarningListFilter{
		Page:        page,
		PageSize:    pageSize,
		AffiliateID: affiliate.ID,
	})
}

// ListUserPayouts 查询用户提现结算单
func (s *AffiliateService) ListUserPayouts(userID uint, page, pageSize int, status string) ([]models.AffiliatePayout, int64, error) {
	if userID == 0 || s.repo == nil {
		return []models.AffiliatePayout{}, 0, nil
	}
	affiliate, err := s.repo.GetByUserID(userID)
	if err != nil {
		return nil, 0, err
	}
	if affiliate == nil {
		return []models.AffiliatePayout{}, 0, nil
	}
	return s.repo.ListPayouts(repository.PayoutListFilter{
		Page:        page,
		PageSize:    pageSize,
		AffiliateID: affiliate.ID,
		Status:      strings.TrimSpace(status),
	})
}

// ListAdminAffiliates 后台查询推广账户列表（带统计）
func (s *AffiliateService) ListAdminAffiliates(filter repository.AffiliateListFilter) ([]AffiliateAdminItem, int64, error) {
	if s.repo == nil {
		return []AffiliateAdminItem{}, 0, nil
	}
	rows, total, err := s.repo.List(filter)
	if err != nil {
		return nil, 0, err
	}
	affiliateIDs := make([]uint, 0, len(rows))
	for _, row := range rows {
		if row.ID == 0 {
			continue
		}
		affiliateIDs = append(affiliateIDs, row.ID)
	}
	statsMap, err := s.repo.GetStatsBatch(affiliateIDs)
	if err != nil {
		return nil, 0, err
	}
	result := make([]AffiliateAdminItem, 0, len(rows))
	for _, row := range rows {
		result = append(result, AffiliateAdminItem{
			Affiliate: row,
			Stats:     statsMap[row.ID],
		})
	}
	return result, total, nil
}

func normalizeReferralCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func isReferralCodeValid(code string) bool {
	if len(code) < referralCodeMinLen || len(code) > referralCodeMaxLen {
		return false
	}
	return referralCodePattern.MatchString(code)
}

func generateReferralCode() (string, error) {
	const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	var builder strings.Builder
	builder.Grow(affiliateCodeLength)
	max := big.NewInt(int64(len(alphabet)))
	for i := 0; i < affiliateCodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		builder.WriteByte(alphabet[n.Int64()])
	}
	return builder.String(), nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
