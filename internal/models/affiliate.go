package models

import (
	"time"

	"gorm.io/gorm"
)

// Affiliate 推广账户（每个用户至多一个）
// pending_balance 与 total_earnings 只允许由佣金累计、佣金回退、
// 提现结算三条路径修改，且任何时刻均不得为负。
type Affiliate struct {
	ID                 uint           `gorm:"primarykey" json:"id"`                                       // 主键
	UserID             uint           `gorm:"not null;uniqueIndex" json:"user_id"`                        // 用户ID
	ReferralCode       string         `gorm:"type:varchar(20);not null;uniqueIndex" json:"referral_code"` // 推广码（统一大写）
	CommissionRate     Money          `gorm:"type:decimal(10,2);not null;default:50" json:"commission_rate"`
	MinPayoutThreshold Money          `gorm:"type:decimal(20,2);not null;default:25" json:"min_payout_threshold"`
	PendingBalance     Money          `gorm:"type:decimal(20,2);not null;default:0" json:"pending_balance"` // 未结算佣金
	TotalEarnings      Money          `gorm:"type:decimal(20,2);not null;default:0" json:"total_earnings"`  // 累计佣金（含未结算，扣除回退）
	ConnectedAccountID string         `gorm:"type:varchar(64);default:''" json:"connected_account_id"`      // 外部收款账户
	ConnectedOnboarded bool           `gorm:"not null;default:false" json:"connected_onboarded"`            // 收款账户是否可入账
	Status             string         `gorm:"type:varchar(20);not null;index" json:"status"`                // 状态
	CreatedAt          time.Time      `gorm:"index" json:"created_at"`                                      // 创建时间
	UpdatedAt          time.Time      `gorm:"index" json:"updated_at"`                                      // 更新时间
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`                                               // 软删除时间

	User User `gorm:"foreignKey:UserID" json:"user,omitempty"` // 用户信息
}

// TableName 指定表名
func (Affiliate) TableName() string {
	return "affiliates"
}
