package repository

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/threadposts/internal/constants"
	"github.com/threadposts/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AffiliateRepository 推广返利数据访问接口
type AffiliateRepository interface {
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) AffiliateRepository

	GetByID(id uint) (*models.Affiliate, error)
	GetByIDForUpdate(id uint) (*models.Affiliate, error)
	GetByUserID(userID uint) (*models.Affiliate, error)
	GetByCode(code string) (*models.Affiliate, error)
	Create(affiliate *models.Affiliate) error
	Update(affiliate *models.Affiliate) error
	UpdateStatus(id uint, status string, updatedAt time.Time) error
	UpdateReferralCode(id uint, code string, updatedAt time.Time) error
	List(filter AffiliateListFilter) ([]models.Affiliate, int64, error)
	ApplyBalanceDelta(id uint, pendingDelta, totalDelta decimal.Decimal, now time.Time) error

	CreateClick(click *models.ReferralClick) error
	HasRecentClick(affiliateID uint, clientIP, landingPath string, since time.Time) (bool, error)
	CountClicksByAffiliate(affiliateID uint) (int64, error)

	CreateConversion(conversion *models.ReferralConversion) error
	GetConversion(affiliateID, referredUserID uint) (*models.ReferralConversion, error)
	GetConversionByReferredUser(referredUserID uint) (*models.ReferralConversion, error)
	CountConversionsByAffiliate(affiliateID uint) (int64, error)

	CreateEarning(earning *models.AffiliateEarning) error
	GetEarningByPaymentRef(affiliateID uint, paymentRef string) (*models.AffiliateEarning, error)
	ListEarnings(filter EarningListFilter) ([]models.AffiliateEarning, int64, error)
	SumEarningsByAffiliate(affiliateID uint) (decimal.Decimal, error)

	CreateDeduction(deduction *models.AffiliateDeduction) error
	GetDeductionByRefundRef(affiliateID uint, refundRef string) (*models.AffiliateDeduction, error)
	ListDeductions(filter DeductionListFilter) ([]models.AffiliateDeduction, int64, error)

	CreatePayout(payout *models.AffiliatePayout) error
	UpdatePayout(payout *models.AffiliatePayout) error
	GetPayoutByID(id uint) (*models.AffiliatePayout, error)
	GetPayoutByIDForUpdate(id uint) (*models.AffiliatePayout, error)
	ListPayouts(filter PayoutListFilter) ([]models.AffiliatePayout, int64, error)
	HasPayoutInStatus(affiliateID uint, statuses []string) (bool, error)
	SumPayoutsByAffiliate(affiliateID uint, statuses []string) (decimal.Decimal, error)

	GetStatsBatch(affiliateIDs []uint) (map[uint]AffiliateStatsAggregate, error)
}

// GormAffiliateRepository GORM 推广返利仓储
type GormAffiliateRepository struct {
	db *gorm.DB
}

// NewAffiliateRepository 创建推广返利仓储
func NewAffiliateRepository(db *gorm.DB) *GormAffiliateRepository {
	return &GormAffiliateRepository{db: db}
}

// WithTx 绑定事务
func (r *GormAffiliateRepository) WithTx(tx *gorm.DB) AffiliateRepository {
	if tx == nil {
		return r
	}
	return &GormAffiliateRepository{db: tx}
}

// Transaction 执行事务
func (r *GormAffiliateRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// GetByID 按ID获取推广账户
func (r *GormAffiliateRepository) GetByID(id uint) (*models.Affiliate, error) {
	if id == 0 {
		return nil, nil
	}
	var affiliate models.Affiliate
	if err := r.db.Preload("User").First(&affiliate, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &affiliate, nil
}

// GetByIDForUpdate 按ID加锁获取推广账户
func (r *GormAffiliateRepository) GetByIDForUpdate(id uint) (*models.Affiliate, error) {
	if id == 0 {
		return nil, nil
	}
	var affiliate models.Affiliate
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&affiliate, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &affiliate, nil
}

// GetByUserID 按用户ID获取推广账户
func (r *GormAffiliateRepository) GetByUserID(userID uint) (*models.Affiliate, error) {
	if userID == 0 {
		return nil, nil
	}
	var affiliate models.Affiliate
	if err := r.db.Preload("User").Where("user_id = ?", userID).First(&affiliate).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &affiliate, nil
}

// GetByCode 按推广码获取推广账户
func (r *GormAffiliateRepository) GetByCode(code string) (*models.Affiliate, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return nil, nil
	}
	var affiliate models.Affiliate
	if err := r.db.Preload("User").Where("referral_code = ?", normalized).First(&affiliate).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &affiliate, nil
}

// Create 创建推广账户
func (r *GormAffiliateRepository) Create(affiliate *models.Affiliate) error {
	return r.db.Create(affiliate).Error
}

// Update 更新推广账户
func (r *GormAffiliateRepository) Update(affiliate *models.Affiliate) error {
	return r.db.Save(affiliate).Error
}

// UpdateStatus 更新推广账户状态
func (r *GormAffiliateRepository) UpdateStatus(id uint, status string, updatedAt time.Time) error {
	if id == 0 {
		return nil
	}
	return r.db.Model(&models.Affiliate{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     strings.TrimSpace(status),
			"updated_at": updatedAt,
		}).Error
}

// UpdateReferralCode 更新推广码
func (r *GormAffiliateRepository) UpdateReferralCode(id uint, code string, updatedAt time.Time) error {
	if id == 0 {
		return nil
	}
	return r.db.Model(&models.Affiliate{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"referral_code": strings.ToUpper(strings.TrimSpace(code)),
			"updated_at":    updatedAt,
		}).Error
}

// List 查询推广账户列表
func (r *GormAffiliateRepository) List(filter AffiliateListFilter) ([]models.Affiliate, int64, error) {
	query := r.db.Model(&models.Affiliate{}).Preload("User")
	if filter.UserID != 0 {
		query = query.Where("affiliates.user_id = ?", filter.UserID)
	}
	if code := strings.TrimSpace(filter.Code); code != "" {
		query = query.Where("affiliates.referral_code = ?", strings.ToUpper(code))
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("affiliates.status = ?", status)
	}
	if keyword := strings.TrimSpace(filter.Keyword); keyword != "" {
		like := "%" + keyword + "%"
		op := likeOperator(r.db)
		query = query.
			Joins("LEFT JOIN users ON users.id = affiliates.user_id").
			Where(fmt.Sprintf("(users.email %s ? OR users.display_name %s ? OR affiliates.referral_code %s ?)", op, op, op),
				like, like, strings.ToUpper(like))
	}
	if filter.CreatedFrom != nil {
		query = query.Where("affiliates.created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("affiliates.created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var rows []models.Affiliate
	if err := query.Order("affiliates.id desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// ApplyBalanceDelta 原子调整账户余额，负向结果落地为零。
// 两个余额字段禁止先读后写的回写更新，必须经由本方法的单条 UPDATE 完成。
func (r *GormAffiliateRepository) ApplyBalanceDelta(id uint, pendingDelta, totalDelta decimal.Decimal, now time.Time) error {
	if id == 0 {
		return nil
	}
	updates := map[string]interface{}{
		"updated_at": now,
	}
	if !pendingDelta.IsZero() {
		updates["pending_balance"] = gorm.Expr(
			"CASE WHEN pending_balance + ? < 0 THEN 0 ELSE pending_balance + ? END",
			pendingDelta, pendingDelta,
		)
	}
	if !totalDelta.IsZero() {
		updates["total_earnings"] = gorm.Expr(
			"CASE WHEN total_earnings + ? < 0 THEN 0 ELSE total_earnings + ? END",
			totalDelta, totalDelta,
		)
	}
	return r.db.Model(&models.Affiliate{}).Where("id = ?", id).Updates(updates).Error
}

// CreateClick 创建推广点击记录
func (r *GormAffiliateRepository) CreateClick(click *models.ReferralClick) error {
	return r.db.Create(click).Error
}

// HasRecentClick 查询是否存在近期重复点击记录
func (r *GormAffiliateRepository) HasRecentClick(affiliateID uint, clientIP, landingPath string, since time.Time) (bool, error) {
	if affiliateID == 0 || strings.TrimSpace(clientIP) == "" {
		return false, nil
	}
	query := r.db.Model(&models.ReferralClick{}).
		Where("affiliate_id = ? AND client_ip = ? AND created_at >= ?",
			affiliateID,
			strings.TrimSpace(clientIP),
			since,
		)
	if path := strings.TrimSpace(landingPath); path != "" {
		query = query.Where("landing_path = ?", path)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return false, err
	}
	return total > 0, nil
}

// CountClicksByAffiliate 统计推广点击数
func (r *GormAffiliateRepository) CountClicksByAffiliate(affiliateID uint) (int64, error) {
	if affiliateID == 0 {
		return 0, nil
	}
	var total int64
	if err := r.db.Model(&models.ReferralClick{}).Where("affiliate_id = ?", affiliateID).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// CreateConversion 创建转化绑定，唯一索引冲突由调用方识别
func (r *GormAffiliateRepository) CreateConversion(conversion *models.ReferralConversion) error {
	return r.db.Create(conversion).Error
}

// GetConversion 查询指定账户与被推荐用户的转化绑定
func (r *GormAffiliateRepository) GetConversion(affiliateID, referredUserID uint) (*models.ReferralConversion, error) {
	if affiliateID == 0 || referredUserID == 0 {
		return nil, nil
	}
	var conversion models.ReferralConversion
	if err := r.db.Where("affiliate_id = ? AND referred_user_id = ?", affiliateID, referredUserID).
		First(&conversion).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conversion, nil
}

// GetConversionByReferredUser 查询被推荐用户已有的转化绑定
func (r *GormAffiliateRepository) GetConversionByReferredUser(referredUserID uint) (*models.ReferralConversion, error) {
	if referredUserID == 0 {
		return nil, nil
	}
	var conversion models.ReferralConversion
	if err := r.db.Where("referred_user_id = ?", referredUserID).
		Order("id asc").
		First(&conversion).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conversion, nil
}

// CountConversionsByAffiliate 统计转化数
func (r *GormAffiliateRepository) CountConversionsByAffiliate(affiliateID uint) (int64, error) {
	if affiliateID == 0 {
		return 0, nil
	}
	var total int64
	if err := r.db.Model(&models.ReferralConversion{}).Where("affiliate_id = ?", affiliateID).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// CreateEarning 创建佣金入账流水，唯一索引冲突由调用方识别
func (r *GormAffiliateRepository) CreateEarning(earning *models.AffiliateEarning) error {
	return r.db.Create(earning).Error
}

// GetEarningByPaymentRef 按支付标识查询入账流水
func (r *GormAffiliateRepository) GetEarningByPaymentRef(affiliateID uint, paymentRef string) (*models.AffiliateEarning, error) {
	ref := strings.TrimSpace(paymentRef)
	if affiliateID == 0 || ref == "" {
		return nil, nil
	}
	var earning models.AffiliateEarning
	if err := r.db.Where("affiliate_id = ? AND payment_ref = ?", affiliateID, ref).
		First(&earning).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &earning, nil
}

// ListEarnings 查询佣金入账流水
func (r *GormAffiliateRepository) ListEarnings(filter EarningListFilter) ([]models.AffiliateEarning, int64, error) {
	query := r.db.Model(&models.AffiliateEarning{})
	if filter.AffiliateID != 0 {
		query = query.Where("affiliate_id = ?", filter.AffiliateID)
	}
	if ref := strings.TrimSpace(filter.PaymentRef); ref != "" {
		query = query.Where("payment_ref = ?", ref)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var rows []models.AffiliateEarning
	if err := query.Order("id desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// SumEarningsByAffiliate 汇总账户入账总额
func (r *GormAffiliateRepository) SumEarningsByAffiliate(affiliateID uint) (decimal.Decimal, error) {
	if affiliateID == 0 {
		return decimal.Zero, nil
	}
	var row struct {
		Total decimal.Decimal `gorm:"column:total"`
	}
	if err := r.db.Model(&models.AffiliateEarning{}).
		Where("affiliate_id = ?", affiliateID).
		Select("COALESCE(SUM(amount), 0) AS total").
		Scan(&row).Error; err != nil {
		return decimal.Zero, err
	}
	return row.Total.Round(2), nil
}

// CreateDeduction 创建佣金回退流水，唯一索引冲突由调用方识别
func (r *GormAffiliateRepository) CreateDeduction(deduction *models.AffiliateDeduction) error {
	return r.db.Create(deduction).Error
}

// GetDeductionByRefundRef 按退款标识查询回退流水
func (r *GormAffiliateRepository) GetDeductionByRefundRef(affiliateID uint, refundRef string) (*models.AffiliateDeduction, error) {
	ref := strings.TrimSpace(refundRef)
	if affiliateID == 0 || ref == "" {
		return nil, nil
	}
	var deduction models.AffiliateDeduction
	if err := r.db.Where("affiliate_id = ? AND refund_ref = ?", affiliateID, ref).
		First(&deduction).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &deduction, nil
}

// ListDeductions 查询佣金回退流水
func (r *GormAffiliateRepository) ListDeductions(filter DeductionListFilter) ([]models.AffiliateDeduction, int64, error) {
	query := r.db.Model(&models.AffiliateDeduction{})
	if filter.AffiliateID != 0 {
		query = query.Where("affiliate_id = ?", filter.AffiliateID)
	}
	if ref := strings.TrimSpace(filter.RefundRef); ref != "" {
		query = query.Where("refund_ref = ?", ref)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var rows []models.AffiliateDeduction
	if err := query.Order("id desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// CreatePayout 创建提现结算单
func (r *GormAffiliateRepository) CreatePayout(payout *models.AffiliatePayout) error {
	return r.db.Create(payout).Error
}

// UpdatePayout 更新提现结算单
func (r *GormAffiliateRepository) UpdatePayout(payout *models.AffiliatePayout) error {
	return r.db.Save(payout).Error
}

// GetPayoutByID 按ID查询提现结算单
func (r *GormAffiliateRepository) GetPayoutByID(id uint) (*models.AffiliatePayout, error) {
	if id == 0 {
		return nil, nil
	}
	var payout models.AffiliatePayout
	if err := r.db.Preload("Affiliate").Preload("Affiliate.User").First(&payout, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payout, nil
}

// GetPayoutByIDForUpdate 按ID加锁查询提现结算单
func (r *GormAffiliateRepository) GetPayoutByIDForUpdate(id uint) (*models.AffiliatePayout, error) {
	if id == 0 {
		return nil, nil
	}
	var payout models.AffiliatePayout
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&payout, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payout, nil
}

// ListPayouts 查询提现结算单列表
func (r *GormAffiliateRepository) ListPayouts(filter PayoutListFilter) ([]models.AffiliatePayout, int64, error) {
	query := r.db.Model(&models.AffiliatePayout{}).
		Preload("Affiliate").
		Preload("Affiliate.User")

	if filter.AffiliateID != 0 {
		query = query.Where("affiliate_payouts.affiliate_id = ?", filter.AffiliateID)
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("affiliate_payouts.status = ?", status)
	}
	if keyword := strings.TrimSpace(filter.Keyword); keyword != "" {
		like := "%" + keyword + "%"
		op := likeOperator(r.db)
		query = query.
			Joins("LEFT JOIN affiliates a ON a.id = affiliate_payouts.affiliate_id").
			Joins("LEFT JOIN users u ON u.id = a.user_id").
			Where(fmt.Sprintf("(u.email %s ? OR u.display_name %s ? OR a.referral_code %s ? OR affiliate_payouts.transfer_ref %s ?)", op, op, op, op),
				like, like, strings.ToUpper(like), like)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("affiliate_payouts.created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("affiliate_payouts.created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var rows []models.AffiliatePayout
	if err := query.Order("affiliate_payouts.id desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// HasPayoutInStatus 查询账户是否存在处于指定状态的结算单
func (r *GormAffiliateRepository) HasPayoutInStatus(affiliateID uint, statuses []string) (bool, error) {
	if affiliateID == 0 || len(statuses) == 0 {
		return false, nil
	}
	var total int64
	if err := r.db.Model(&models.AffiliatePayout{}).
		Where("affiliate_id = ? AND status IN ?", affiliateID, statuses).
		Count(&total).Error; err != nil {
		return false, err
	}
	return total > 0, nil
}

// SumPayoutsByAffiliate 汇总指定状态结算金额
func (r *GormAffiliateRepository) SumPayoutsByAffiliate(affiliateID uint, statuses []string) (decimal.Decimal, error) {
	if affiliateID == 0 || len(statuses) == 0 {
		return decimal.Zero, nil
	}
	var row struct {
		Total decimal.Decimal `gorm:"column:total"`
	}
	if err := r.db.Model(&models.AffiliatePayout{}).
		Where("affiliate_id = ? AND status IN ?", affiliateID, statuses).
		Select("COALESCE(SUM(amount), 0) AS total").
		Scan(&row).Error; err != nil {
		return decimal.Zero, err
	}
	return row.Total.Round(2), nil
}

// GetStatsBatch 批量汇总推广账户统计信息
func (r *GormAffiliateRepository) GetStatsBatch(affiliateIDs []uint) (map[uint]AffiliateStatsAggregate, error) {
	result := make(map[uint]AffiliateStatsAggregate, len(affiliateIDs))
	if len(affiliateIDs) == 0 {
		return result, nil
	}

	for _, id := range affiliateIDs {
		if id == 0 {
			continue
		}
		result[id] = AffiliateStatsAggregate{
			EarningTotal:   decimal.Zero,
			DeductionTotal: decimal.Zero,
			PaidOutTotal:   decimal.Zero,
		}
	}

	var clickRows []struct {
		AffiliateID uint  `gorm:"column:affiliate_id"`
		Total       int64 `gorm:"column:total"`
	}
	if err := r.db.Model(&models.ReferralClick{}).
		Select("affiliate_id, COUNT(*) AS total").
		Where("affiliate_id IN ?", affiliateIDs).
		Group("affiliate_id").
		Scan(&clickRows).Error; err != nil {
		return nil, err
	}
	for _, row := range clickRows {
		item := result[row.AffiliateID]
		item.ClickCount = row.Total
		result[row.AffiliateID] = item
	}

	var conversionRows []struct {
		AffiliateID uint  `gorm:"column:affiliate_id"`
		Total       int64 `gorm:"column:total"`
	}
	if err := r.db.Model(&models.ReferralConversion{}).
		Select("affiliate_id, COUNT(*) AS total").
		Where("affiliate_id IN ?", affiliateIDs).
		Group("affiliate_id").
		Scan(&conversionRows).Error; err != nil {
		return nil, err
	}
	for _, row := range conversionRows {
		item := result[row.AffiliateID]
		item.ConversionCount = row.Total
		result[row.AffiliateID] = item
	}

	var earningRows []struct {
		AffiliateID uint            `gorm:"column:affiliate_id"`
		Total       decimal.Decimal `gorm:"column:total"`
	}
	if err := r.db.Model(&models.AffiliateEarning{}).
		Select("affiliate_id, COALESCE(SUM(amount), 0) AS total").
		Where("affiliate_id IN ?", affiliateIDs).
		Group("affiliate_id").
		Scan(&earningRows).Error; err != nil {
		return nil, err
	}
	for _, row := range earningRows {
		item := result[row.AffiliateID]
		item.EarningTotal = row.Total.Round(2)
		result[row.AffiliateID] = item
	}

	var deductionRows []struct {
		AffiliateID uint            `gorm:"column:affiliate_id"`
		Total       decimal.Decimal `gorm:"column:total"`
	}
	if err := r.db.Model(&models.AffiliateDeduction{}).
		Select("affiliate_id, COALESCE(SUM(amount), 0) AS total").
		Where("affiliate_id IN ?", affiliateIDs).
		Group("affiliate_id").
		Scan(&deductionRows).Error; err != nil {
		return nil, err
	}
	for _, row := range deductionRows {
		item := result[row.AffiliateID]
		item.DeductionTotal = row.Total.Round(2)
		result[row.AffiliateID] = item
	}

	var payoutRows []struct {
		AffiliateID uint            `gorm:"column:affiliate_id"`
		Total       decimal.Decimal `gorm:"column:total"`
	}
	if err := r.db.Model(&models.AffiliatePayout{}).
		Select("affiliate_id, COALESCE(SUM(amount), 0) AS total").
		Where("affiliate_id IN ? AND status IN ?",
			affiliateIDs,
			[]string{constants.PayoutStatusPaid, constants.PayoutStatusCompleted},
		).
		Group("affiliate_id").
		Scan(&payoutRows).Error; err != nil {
		return nil, err
	}
	for _, row := range payoutRows {
		item := result[row.AffiliateID]
		item.PaidOutTotal = row.Total.Round(2)
		result[row.AffiliateID] = item
	}

	return result, nil
}
