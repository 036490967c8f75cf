package models

import "time"

// AffiliateEarning 佣金入账流水（只追加，创建后不可变）
// (affiliate_id, payment_ref) 唯一索引是同一笔支付经由
// 同步回跳与异步 webhook 两条路径送达时防止重复入账的唯一防线。
type AffiliateEarning struct {
	ID           uint      `gorm:"primarykey" json:"id"`                                                           // 主键
	AffiliateID  uint      `gorm:"not null;index;index:idx_affiliate_earning_unique,unique" json:"affiliate_id"`   // 推广账户ID
	PaymentRef   string    `gorm:"type:varchar(128);not null;index:idx_affiliate_earning_unique,unique" json:"payment_ref"` // 上游支付标识（session/invoice id）
	ConversionID *uint     `gorm:"index" json:"conversion_id,omitempty"`                                           // 关联转化记录
	BaseAmount   Money     `gorm:"type:decimal(20,2);not null;default:0" json:"base_amount"`                       // 佣金基数
	RatePercent  Money     `gorm:"type:decimal(10,2);not null;default:0" json:"rate_percent"`                      // 佣金比例（百分比）
	Amount       Money     `gorm:"type:decimal(20,2);not null;default:0" json:"amount"`                            // 佣金金额
	CreatedAt    time.Time `gorm:"index" json:"created_at"`                                                        // 创建时间

	Affiliate  Affiliate           `gorm:"foreignKey:AffiliateID" json:"affiliate,omitempty"`    // 推广账户
	Conversion *ReferralConversion `gorm:"foreignKey:ConversionID" json:"conversion,omitempty"`  // 转化记录
}

// TableName 指定表名
func (AffiliateEarning) TableName() string {
	return "affiliate_earnings"
}
