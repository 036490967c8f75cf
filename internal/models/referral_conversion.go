package models

import "time"

// ReferralConversion 转化绑定：被推荐用户与推广账户的持久关联
// (affiliate_id, referred_user_id) 全局唯一，首次付费时创建，之后不再更新。
type ReferralConversion struct {
	ID             uint      `gorm:"primarykey" json:"id"`                                                                // 主键
	AffiliateID    uint      `gorm:"not null;index;index:idx_referral_conversion_unique,unique" json:"affiliate_id"`      // 推广账户ID
	ReferredUserID uint      `gorm:"not null;index;index:idx_referral_conversion_unique,unique" json:"referred_user_id"`  // 被推荐用户ID
	CreatedAt      time.Time `gorm:"index;not null;default:CURRENT_TIMESTAMP" json:"created_at"`                          // 创建时间

	Affiliate Affiliate `gorm:"foreignKey:AffiliateID" json:"affiliate,omitempty"` // 推广账户
}

// TableName 指定表名
func (ReferralConversion) TableName() string {
	return "referral_conversions"
}
