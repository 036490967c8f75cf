package models

import "time"

// AffiliateDeduction 佣金回退流水（只追加，创建后不可变）
// (affiliate_id, refund_ref) 唯一索引保证同一外部退款事件只回退一次。
type AffiliateDeduction struct {
	ID          uint      `gorm:"primarykey" json:"id"`                                                             // 主键
	AffiliateID uint      `gorm:"not null;index;index:idx_affiliate_deduction_unique,unique" json:"affiliate_id"`   // 推广账户ID
	RefundRef   string    `gorm:"type:varchar(128);not null;index:idx_affiliate_deduction_unique,unique" json:"refund_ref"` // 外部退款标识
	EarningID   *uint     `gorm:"index" json:"earning_id,omitempty"`                                                // 关联入账流水
	Amount      Money     `gorm:"type:decimal(20,2);not null;default:0" json:"amount"`                              // 回退金额
	Reason      string    `gorm:"type:varchar(255);default:''" json:"reason"`                                       // 回退原因
	CreatedAt   time.Time `gorm:"index" json:"created_at"`                                                          // 创建时间

	Affiliate Affiliate         `gorm:"foreignKey:AffiliateID" json:"affiliate,omitempty"` // 推广账户
	Earning   *AffiliateEarning `gorm:"foreignKey:EarningID" json:"earning,omitempty"`     // 入账流水
}

// TableName 指定表名
func (AffiliateDeduction) TableName() string {
	return "affiliate_deductions"
}
