package repository

import (
	"time"

	"github.com/shopspring/decimal"
)

// AffiliateListFilter 查询推广账户列表的过滤条件
type AffiliateListFilter struct {
	Page        int
	PageSize    int
	UserID      uint
	Code        string
	Status      string
	Keyword     string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// EarningListFilter 查询佣金入账流水的过滤条件
type EarningListFilter struct {
	Page        int
	PageSize    int
	AffiliateID uint
	PaymentRef  string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// DeductionListFilter 查询佣金回退流水的过滤条件
type DeductionListFilter struct {
	Page        int
	PageSize    int
	AffiliateID uint
	RefundRef   string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// PayoutListFilter 查询提现结算单列表的过滤条件
type PayoutListFilter struct {
	Page        int
	PageSize    int
	AffiliateID uint
	Status      string
	Keyword     string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// UserListFilter 查询用户列表的过滤条件
type UserListFilter struct {
	Page        int
	PageSize    int
	Keyword     string
	Status      string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// AuthzAuditLogListFilter 查询权限审计日志的过滤条件
type AuthzAuditLogListFilter struct {
	Page            int
	PageSize        int
	OperatorAdminID uint
	TargetAdminID   uint
	Action          string
	Role            string
	Object          string
	Method          string
	CreatedFrom     *time.Time
	CreatedTo       *time.Time
}

// AffiliateStatsAggregate 推广账户统计汇总
type AffiliateStatsAggregate struct {
	ClickCount      int64
	ConversionCount int64
	EarningTotal    decimal.Decimal
	DeductionTotal  decimal.Decimal
	PaidOutTotal    decimal.Decimal
}
